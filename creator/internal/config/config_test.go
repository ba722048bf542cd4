package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
	"github.com/qtcstream/qtcstream/creator/internal/qtc"
	"github.com/qtcstream/qtcstream/creator/internal/transform"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
target_frame: /odom
decay_time: 60s
processing_rate: 10
queue_limit: 50
labels:
  observer: Robot
  entity: Person
params:
  qtc_type: 2
  quantisation_factor: 0.05
  smoothing_rate: 0.5
frames:
  - child: base_link
    parent: odom
    x: 1
    yaw: 1.5707963267948966
mqtt:
  broker: "tcp://broker:1883"
  qos: 1
`
	cfg := loadFromString(t, yaml)

	if cfg.TargetFrame != "odom" {
		t.Errorf("target_frame: got %q", cfg.TargetFrame)
	}
	if cfg.DecayTime != 60*time.Second {
		t.Errorf("decay_time: got %v", cfg.DecayTime)
	}
	if cfg.ProcessingRate != 10 {
		t.Errorf("processing_rate: got %v", cfg.ProcessingRate)
	}
	if cfg.QueueLimit != 50 {
		t.Errorf("queue_limit: got %d", cfg.QueueLimit)
	}
	if cfg.Labels.Entity != "Person" {
		t.Errorf("labels.entity: got %q", cfg.Labels.Entity)
	}
	if cfg.Params.QTCType != qtc.QTCBC {
		t.Errorf("qtc_type: got %q", cfg.Params.QTCType)
	}
	if cfg.Params.QuantisationFactor != 0.05 {
		t.Errorf("quantisation_factor: got %v", cfg.Params.QuantisationFactor)
	}
	if cfg.Params.SmoothingRate != 500*time.Millisecond {
		t.Errorf("smoothing_rate: got %v", cfg.Params.SmoothingRate)
	}
	// Unset params keep their defaults.
	if cfg.Params.DistanceThreshold != 1.2 || !cfg.Params.Validate || !cfg.Params.Collapse {
		t.Errorf("params defaults lost: %+v", cfg.Params)
	}
	if len(cfg.Frames) != 1 || cfg.Frames[0].X != 1 || cfg.Frames[0].Yaw == 0 {
		t.Fatalf("frames: got %+v", cfg.Frames)
	}
	if cfg.MQTT.QoS != 1 || cfg.MQTT.EntityTopic != DefaultEntityTopic {
		t.Errorf("mqtt: got %+v", cfg.MQTT)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "{}\n")

	if cfg.TargetFrame != DefaultTargetFrame {
		t.Errorf("default target_frame: got %q", cfg.TargetFrame)
	}
	if cfg.DecayTime != DefaultDecayTime {
		t.Errorf("default decay_time: got %v", cfg.DecayTime)
	}
	if cfg.ProcessingRate != DefaultProcessingRate {
		t.Errorf("default processing_rate: got %v", cfg.ProcessingRate)
	}
	if cfg.TransformTimeout != DefaultTransformTimeout {
		t.Errorf("default transform_timeout: got %v", cfg.TransformTimeout)
	}
	if cfg.QueueLimit != 0 {
		t.Errorf("default queue_limit: got %d, want unbounded", cfg.QueueLimit)
	}
	if cfg.Labels.Observer != "Robot" || cfg.Labels.Entity != "Human" {
		t.Errorf("default labels: got %+v", cfg.Labels)
	}
	if cfg.Params != DefaultParams() {
		t.Errorf("default params: got %+v", cfg.Params)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero rate", "processing_rate: 0\n"},
		{"negative decay", "decay_time: -1s\n"},
		{"negative queue limit", "queue_limit: -1\n"},
		{"bad level", "log_level: loud\n"},
		{"bad variant", "params:\n  qtc_type: qtcx\n"},
		{"variant index out of range", "params:\n  qtc_type: 7\n"},
		{"zero quantisation", "params:\n  quantisation_factor: 0\n"},
		{"unknown param", "params:\n  smoothing: 1\n"},
		{"frame without parent", "frames:\n  - child: a\n"},
		{"self parent", "frames:\n  - child: /a\n    parent: a\n"},
		{"bad qos", "mqtt:\n  broker: tcp://b:1883\n  qos: 3\n"},
		{"bad shipper auth", "shipper:\n  endpoint: c:50051\n  auth:\n    mode: magic\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestConfig_ApplyFrames(t *testing.T) {
	cfg := loadFromString(t, `
frames:
  - child: base_link
    parent: map
    x: 2
    y: 1
`)
	tree := transform.NewTree()
	tree.Set("stale", "map", transform.Identity)
	cfg.ApplyFrames(tree)

	if tree.Frames() != 1 {
		t.Fatalf("frames: got %d, want 1", tree.Frames())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := tree.Transform(ctx, observation.Point{X: 1}, "base_link", "/map", time.Time{})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if p != (observation.Point{X: 3, Y: 1}) {
		t.Errorf("transform: got %+v", p)
	}
}

func TestMQTTConfig_Password(t *testing.T) {
	t.Setenv("TEST_MQTT_PASSWORD", "hunter2")
	m := MQTTConfig{PasswordEnv: "TEST_MQTT_PASSWORD"}
	if got := m.Password(); got != "hunter2" {
		t.Errorf("Password(): got %q", got)
	}
	if got := (MQTTConfig{}).Password(); got != "" {
		t.Errorf("Password() without env: got %q", got)
	}
}

func TestWatch_ReloadsAndSkipsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "processing_rate: 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	// Truncating writes may briefly expose an empty file, which is valid and
	// loads as defaults; only the invalid rate must never be delivered.
	writeFile(t, path, "processing_rate: 0\n")
	writeFile(t, path, "processing_rate: 5\n")

	deadline := time.After(3 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case c := <-got:
			if c.ProcessingRate == 0 {
				t.Fatalf("invalid reload delivered: %+v", c)
			}
			reloaded = c.ProcessingRate == 5
		case <-deadline:
			t.Fatal("no reload after valid write")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "info", "", "WARN", "error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("ParseLevel(trace): expected error")
	}
}

func TestInvalidParamsIsSentinel(t *testing.T) {
	_, err := loadStringErr(t, "params:\n  distance_threshold: -1\n")
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("got %v, want ErrInvalidParams", err)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)
	return Load(path)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
}
