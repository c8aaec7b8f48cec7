// Package store persists scene presets and trigger timing as a JSON
// document so edits survive restarts. Load never fails hard: missing or
// corrupt data degrades to the factory defaults with the safety channel
// forced valid, because live control must not depend on durable storage.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/morroware/djpower-dmx/internal/dmx"
	"github.com/morroware/djpower-dmx/internal/logger"
)

type Store struct {
	log  logger.Logger
	path string
}

func New(log logger.Logger, path string) *Store {
	return &Store{log: log, path: path}
}

// document is the on-disk shape. Channel keys are strings ("1".."16")
// for JSON-object compatibility with earlier revisions of the file.
type document struct {
	SceneBDuration float64                `json:"scene_b_duration"`
	Scenes         map[string]sceneRecord `json:"scenes"`
}

type sceneRecord struct {
	Name     string         `json:"name"`
	Channels map[string]int `json:"channels"`
}

// Load returns the persisted scenes and trigger duration, falling back to
// defaults per slot. All loaded data is sanitized before use: unknown
// slots and out-of-range channels are dropped, values clamped, and an
// invalid safety value corrected to 100 so a corrupted file can never
// produce a frame with the interlock disabled.
func (s *Store) Load(defaultDuration time.Duration) (map[dmx.SceneID]dmx.Scene, time.Duration) {
	scenes := dmx.DefaultScenes()
	duration := defaultDuration

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.With(logger.Fields{"module": "store"}).Warnf("read %s: %v (using defaults)", s.path, err)
		}
		return scenes, duration
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.log.With(logger.Fields{"module": "store"}).Warnf("parse %s: %v (using defaults)", s.path, err)
		return scenes, duration
	}

	if doc.SceneBDuration > 0 {
		d := doc.SceneBDuration
		if d < 0.5 {
			d = 0.5
		}
		if d > 300 {
			d = 300
		}
		duration = time.Duration(d * float64(time.Second))
	}

	for key, rec := range doc.Scenes {
		id, err := dmx.ParseSceneID(key)
		if err != nil {
			continue
		}
		scene := scenes[id]
		if rec.Name != "" {
			scene.Name = rec.Name
		}
		if len(rec.Channels) > 0 {
			var channels [dmx.FixtureChannels]byte
			for chKey, value := range rec.Channels {
				ch, err := strconv.Atoi(chKey)
				if err != nil || ch < 1 || ch > dmx.FixtureChannels {
					continue
				}
				if value < 0 {
					value = 0
				}
				if value > 255 {
					value = 255
				}
				channels[ch-1] = byte(value)
			}
			scene.Channels = channels
		}
		scene.Sanitize()
		scenes[id] = scene
	}

	s.log.With(logger.Fields{"module": "store"}).Infof("loaded configuration from %s", s.path)
	return scenes, duration
}

// Save writes the document atomically (temp file + rename) so a crash
// mid-write cannot truncate the previous good copy.
func (s *Store) Save(scenes map[dmx.SceneID]dmx.Scene, duration time.Duration) error {
	doc := document{
		SceneBDuration: duration.Seconds(),
		Scenes:         make(map[string]sceneRecord, len(scenes)),
	}
	for id, scene := range scenes {
		channels := make(map[string]int, dmx.FixtureChannels)
		for i, v := range scene.Channels {
			channels[strconv.Itoa(i+1)] = int(v)
		}
		doc.Scenes[string(id)] = sceneRecord{Name: scene.Name, Channels: channels}
	}

	raw, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("store: mkdir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}
