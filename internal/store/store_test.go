package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/morroware/djpower-dmx/internal/config"
	"github.com/morroware/djpower-dmx/internal/dmx"
	"github.com/morroware/djpower-dmx/internal/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(config.LogConf{Level: "error"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	return log
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s := New(testLogger(t), filepath.Join(t.TempDir(), "config.json"))

	scenes, duration := s.Load(10 * time.Second)

	if duration != 10*time.Second {
		t.Errorf("duration = %v, want 10s", duration)
	}
	want := dmx.DefaultScenes()
	for _, id := range dmx.SceneIDs {
		if scenes[id] != want[id] {
			t.Errorf("scene %q = %+v, want default", id, scenes[id])
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	s := New(testLogger(t), path)

	scenes := dmx.DefaultScenes()
	c := scenes[dmx.SceneC]
	c.Name = "Haze"
	c.Channels[0] = 123
	c.Channels[14] = 77
	scenes[dmx.SceneC] = c

	if err := s.Save(scenes, 42*time.Second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, duration := s.Load(10 * time.Second)
	if duration != 42*time.Second {
		t.Errorf("duration = %v, want 42s", duration)
	}
	if loaded[dmx.SceneC] != c {
		t.Errorf("scene c = %+v, want %+v", loaded[dmx.SceneC], c)
	}
}

func TestLoadCorruptJSONUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(testLogger(t), path)

	scenes, duration := s.Load(10 * time.Second)

	if duration != 10*time.Second {
		t.Errorf("duration = %v, want fallback 10s", duration)
	}
	if scenes[dmx.SceneA] != dmx.DefaultScenes()[dmx.SceneA] {
		t.Errorf("scene a not default after corrupt load")
	}
}

// TestLoadCorrectsInvalidSafety: a persisted scene with safety 0 must be
// corrected before any frame could ever be built from it.
func TestLoadCorrectsInvalidSafety(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{
		"scene_b_duration": 5,
		"scenes": {
			"b": {"name": "Broken", "channels": {"1": 255, "16": 0}},
			"zzz": {"name": "Ignored", "channels": {"1": 9}}
		}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(testLogger(t), path)

	scenes, duration := s.Load(10 * time.Second)

	if duration != 5*time.Second {
		t.Errorf("duration = %v, want 5s", duration)
	}
	b := scenes[dmx.SceneB]
	if b.Name != "Broken" {
		t.Errorf("scene b name = %q", b.Name)
	}
	if got := b.Channels[0]; got != 255 {
		t.Errorf("scene b channel 1 = %d, want 255", got)
	}
	if got := b.Channels[dmx.SafetyChannel-1]; got != dmx.SafetyDefault {
		t.Errorf("scene b safety = %d, want corrected %d", got, dmx.SafetyDefault)
	}
}

func TestLoadClampsValuesAndDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{
		"scene_b_duration": 9000,
		"scenes": {
			"c": {"channels": {"1": 999, "2": -5, "99": 1}}
		}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(testLogger(t), path)

	scenes, duration := s.Load(10 * time.Second)

	if duration != 300*time.Second {
		t.Errorf("duration = %v, want clamped 300s", duration)
	}
	c := scenes[dmx.SceneC]
	if got := c.Channels[0]; got != 255 {
		t.Errorf("channel 1 = %d, want clamped 255", got)
	}
	if got := c.Channels[1]; got != 0 {
		t.Errorf("channel 2 = %d, want clamped 0", got)
	}
}
