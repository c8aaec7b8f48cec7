package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/morroware/djpower-dmx/internal/api"
	"github.com/morroware/djpower-dmx/internal/config"
	"github.com/morroware/djpower-dmx/internal/engine"
	"github.com/morroware/djpower-dmx/internal/gpioin"
	"github.com/morroware/djpower-dmx/internal/logger"
	"github.com/morroware/djpower-dmx/internal/mqtt"
	"github.com/morroware/djpower-dmx/internal/store"
	"github.com/morroware/djpower-dmx/internal/transport"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "/etc/djpower-dmx/conf.toml", "Path to configuration file")
}

func main() {
	flag.Parse()
	cfg, err := config.NewConfig(configFile)
	if err != nil {
		fmt.Printf("configuration file read error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to create a logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	st := store.New(log, cfg.Storage.Path)
	defaultDuration := time.Duration(cfg.Trigger.DurationSeconds * float64(time.Second))
	scenes, duration := st.Load(defaultDuration)

	controller := engine.NewController(log, scenes, duration, st)

	output := engine.NewOutputLoop(log, controller.Snapshot, func() (transport.Transport, error) {
		return transport.Open(cfg.DMX.Port)
	}, cfg.DMX.RefreshRate)

	monitor := gpioin.New(log,
		cfg.Trigger.Pin,
		time.Duration(cfg.Trigger.DebounceMS)*time.Millisecond,
		gpioin.OpenPin,
		controller.FireTrigger,
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); controller.Run(ctx) }()
	go func() { defer wg.Done(); output.Run(ctx) }()
	go func() { defer wg.Done(); monitor.Run(ctx) }()

	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		bridge = mqtt.NewBridge(log, mqtt.Conf{
			ClientID:    cfg.MQTT.ClientID,
			Schema:      "tcp",
			Host:        cfg.MQTT.Host,
			Port:        cfg.MQTT.Port,
			User:        cfg.MQTT.User,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, controller, output, monitor)
		if err := bridge.Start(ctx); err != nil {
			log.Error("failed to start MQTT bridge:", err.Error())
			cancel()
		}
	}

	server := api.NewServer(log, cfg.HTTP.Token, controller, output, monitor)
	go func() {
		if err := server.Run(ctx, cfg.HTTP.Listen); err != nil {
			log.Error("api server failed:", err.Error())
			cancel()
		}
	}()

	<-ctx.Done()

	if bridge != nil {
		bridge.Stop()
	}
	wg.Wait()

	log.Info("shutdown complete")
}
