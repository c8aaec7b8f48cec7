// Package mqtt bridges the controller onto an MQTT broker: a retained
// status topic for dashboards and a small command surface mirroring the
// HTTP API. The bridge is optional and disabled by default.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/morroware/djpower-dmx/internal/dmx"
	"github.com/morroware/djpower-dmx/internal/engine"
	"github.com/morroware/djpower-dmx/internal/gpioin"
	"github.com/morroware/djpower-dmx/internal/logger"
)

const statusInterval = 5 * time.Second

type Conf struct {
	ClientID    string
	Schema      string
	Host        string
	Port        string
	User        string
	Password    string
	TopicPrefix string
}

type Bridge struct {
	log        logger.Logger
	cfg        Conf
	client     mqtt.Client
	controller *engine.Controller
	output     *engine.OutputLoop
	monitor    *gpioin.Monitor
}

func NewBridge(log logger.Logger, cfg Conf, c *engine.Controller, o *engine.OutputLoop, m *gpioin.Monitor) *Bridge {
	if cfg.Schema == "" {
		cfg.Schema = "tcp"
	}
	return &Bridge{log: log, cfg: cfg, controller: c, output: o, monitor: m}
}

// Start connects to the broker, subscribes the command topics and
// begins the periodic status publishes.
func (b *Bridge) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%s", b.cfg.Schema, b.cfg.Host, b.cfg.Port)).
		SetUsername(b.cfg.User).
		SetPassword(b.cfg.Password).
		SetClientID(b.cfg.ClientID).
		SetOnConnectHandler(b.connectHandler).
		SetConnectionLostHandler(b.connectLostHandler).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	b.client = mqtt.NewClient(opts)

	token := b.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return token.Error()
		}
	case <-ctx.Done():
		return errors.New("context canceled")
	}

	go b.publishLoop(ctx)

	b.log.With(logger.Fields{"module": "mqtt"}).Infof("connected, prefix %q", b.cfg.TopicPrefix)
	return nil
}

func (b *Bridge) Stop() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(500)
	}
}

// connectHandler re-subscribes on every (re)connect.
func (b *Bridge) connectHandler(client mqtt.Client) {
	log := b.log.With(logger.Fields{"module": "mqtt"})
	log.Info("client connected to broker")

	subscriptions := map[string]mqtt.MessageHandler{
		b.topic("command/trigger"):  b.onTrigger,
		b.topic("command/blackout"): b.onBlackout,
		b.topic("command/scene"):    b.onScene,
	}
	for topic, handler := range subscriptions {
		if token := client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe %s: %v", topic, token.Error())
		}
	}
}

func (b *Bridge) connectLostHandler(_ mqtt.Client, err error) {
	b.log.With(logger.Fields{"module": "mqtt"}).Errorf("broker connection lost: %v", err)
}

func (b *Bridge) onTrigger(_ mqtt.Client, _ mqtt.Message) {
	b.controller.FireTrigger()
}

func (b *Bridge) onBlackout(_ mqtt.Client, _ mqtt.Message) {
	b.controller.Blackout()
}

func (b *Bridge) onScene(_ mqtt.Client, msg mqtt.Message) {
	log := b.log.With(logger.Fields{"module": "mqtt"})
	id, err := dmx.ParseSceneID(string(msg.Payload()))
	if err != nil {
		log.Warnf("scene command rejected: %v", err)
		return
	}
	if err := b.controller.SelectScene(id); err != nil {
		log.Warnf("scene command failed: %v", err)
	}
}

func (b *Bridge) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.publishStatus()
		}
	}
}

func (b *Bridge) publishStatus() {
	trigger := b.controller.Status()
	link := b.output.Status()
	input := b.monitor.Status()

	payload, err := json.Marshal(map[string]any{
		"active_scene":      trigger.ActiveScene,
		"armed":             trigger.Armed,
		"remaining_seconds": trigger.RemainingSeconds,
		"dmx_connected":     link.Connected,
		"input_state":       input.State,
	})
	if err != nil {
		b.log.With(logger.Fields{"module": "mqtt"}).Errorf("status marshal: %v", err)
		return
	}

	token := b.client.Publish(b.topic("status"), 0, true, payload)
	if token.WaitTimeout(statusInterval) && token.Error() != nil {
		b.log.With(logger.Fields{"module": "mqtt"}).Warnf("status publish: %v", token.Error())
	}
}

func (b *Bridge) topic(suffix string) string {
	return b.cfg.TopicPrefix + "/" + suffix
}
