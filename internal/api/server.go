// Package api exposes the controller over HTTP. Routes mirror the
// operator UI contract: scene selection, trigger, blackout, channel
// writes, scene editing and a composed status document.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/morroware/djpower-dmx/internal/dmx"
	"github.com/morroware/djpower-dmx/internal/engine"
	"github.com/morroware/djpower-dmx/internal/gpioin"
	"github.com/morroware/djpower-dmx/internal/logger"
)

// channelNames maps the DJPOWER 16-channel profile to status keys.
var channelNames = [dmx.FixtureChannels]string{
	"fog", "disabled", "outer_red", "outer_green", "outer_blue", "outer_amber",
	"inner_red", "inner_green", "inner_blue", "inner_amber",
	"led_mix1", "led_mix2", "auto_color", "strobe", "dimmer", "safety",
}

type Server struct {
	log        logger.Logger
	token      string
	controller *engine.Controller
	output     *engine.OutputLoop
	monitor    *gpioin.Monitor
	mux        *http.ServeMux
}

func NewServer(log logger.Logger, token string, c *engine.Controller, o *engine.OutputLoop, m *gpioin.Monitor) *Server {
	s := &Server{
		log:        log,
		token:      token,
		controller: c,
		output:     o,
		monitor:    m,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/trigger", s.handleTrigger)
	s.mux.HandleFunc("POST /api/blackout", s.handleBlackout)
	s.mux.HandleFunc("GET /api/scenes", s.handleListScenes)
	s.mux.HandleFunc("POST /api/scene/{name}", s.handleSelectScene)
	s.mux.HandleFunc("POST /api/scene/{name}/save", s.handleSaveScene)
	s.mux.HandleFunc("POST /api/channel", s.handleSetChannel)
	s.mux.HandleFunc("GET /api/config", s.handleGetConfig)
	s.mux.HandleFunc("POST /api/config", s.handleSetConfig)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") && !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	s.mux.ServeHTTP(w, r)
}

// authorized checks the bearer token when one is configured.
func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) == s.token
	}
	return r.Header.Get("X-Api-Token") == s.token
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.With(logger.Fields{"module": "api"}).Infof("listening on %s", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	trigger := s.controller.Status()
	link := s.output.Status()
	input := s.monitor.Status()

	channels := make(map[string]int, dmx.FixtureChannels)
	for i, name := range channelNames {
		channels[name] = int(trigger.Channels[i])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_scene":      trigger.ActiveScene,
		"armed":             trigger.Armed,
		"remaining_seconds": trigger.RemainingSeconds,
		"trigger_duration":  trigger.DurationSeconds,
		"transport": map[string]any{
			"connected":  link.Connected,
			"last_error": link.LastError,
		},
		"output_running": link.Running,
		"input_state":    input.State,
		"channels":       channels,
	})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	s.controller.FireTrigger()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleBlackout(w http.ResponseWriter, r *http.Request) {
	s.controller.Blackout()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSelectScene(w http.ResponseWriter, r *http.Request) {
	id, err := dmx.ParseSceneID(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.SelectScene(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "scene": string(id)})
}

func (s *Server) handleSaveScene(w http.ResponseWriter, r *http.Request) {
	id, err := dmx.ParseSceneID(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.SaveScene(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "scene": string(id)})
}

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	scenes := s.controller.Scenes()
	out := make(map[string]any, len(scenes))
	for id, scene := range scenes {
		out[string(id)] = map[string]any{
			"name":     scene.Name,
			"channels": channelMap(scene.Channels),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel *int `json:"channel"`
		Value   *int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Channel == nil || req.Value == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing channel or value"})
		return
	}
	if err := s.controller.SetChannel(*req.Channel, *req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "channel": *req.Channel, "value": *req.Value})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	scenes := s.controller.Scenes()
	out := make(map[string]any, len(scenes))
	for id, scene := range scenes {
		out[string(id)] = map[string]any{
			"name":     scene.Name,
			"channels": channelMap(scene.Channels),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenes":           out,
		"trigger_duration": s.controller.Duration().Seconds(),
	})
}

type configRequest struct {
	Scenes map[string]struct {
		Name     string         `json:"name"`
		Channels map[string]int `json:"channels"`
	} `json:"scenes"`
	TriggerDuration *float64 `json:"trigger_duration"`
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	for key, rec := range req.Scenes {
		id, err := dmx.ParseSceneID(key)
		if err != nil {
			writeError(w, err)
			return
		}
		channels := make(map[int]int, len(rec.Channels))
		for chKey, value := range rec.Channels {
			ch, err := strconv.Atoi(chKey)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid channel key " + chKey})
				return
			}
			channels[ch] = value
		}
		if err := s.controller.UpdateScene(id, rec.Name, channels); err != nil {
			writeError(w, err)
			return
		}
	}

	if req.TriggerDuration != nil {
		if err := s.controller.SetDuration(*req.TriggerDuration); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func channelMap(channels [dmx.FixtureChannels]byte) map[string]int {
	out := make(map[string]int, len(channels))
	for i, v := range channels {
		out[strconv.Itoa(i+1)] = int(v)
	}
	return out
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	if errors.Is(err, dmx.ErrUnknownScene) {
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
