package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qtcstream/qtcstream/creator/internal/transform"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultTargetFrame      = "map"
	DefaultDecayTime        = 120 * time.Second
	DefaultProcessingRate   = 30.0
	DefaultTransformTimeout = time.Second
	DefaultObserverLabel    = "Robot"
	DefaultEntityLabel      = "Human"
	DefaultBroker           = "tcp://localhost:1883"
	DefaultEntityTopic      = "qtc/entities"
	DefaultObserverTopic    = "qtc/observer"
	DefaultResultTopic      = "qtc/results"
	DefaultPublishTimeout   = 2 * time.Second
	DefaultBufferSize       = 1000
	DefaultAdminAddr        = ":9102"
)

// Config is the creator configuration file. Params is the only section that
// is applied live; every other field takes effect on restart.
type Config struct {
	// TargetFrame is the working frame all positions are expressed in.
	TargetFrame string `yaml:"target_frame"`

	// DecayTime is how long an entity may go unseen before its history is
	// dropped.
	DecayTime time.Duration `yaml:"decay_time"`

	// ProcessingRate is the tick frequency in Hz.
	ProcessingRate float64 `yaml:"processing_rate"`

	// TransformTimeout bounds the wait for a missing frame per detection.
	TransformTimeout time.Duration `yaml:"transform_timeout"`

	// QueueLimit caps the ingest queue; 0 means unbounded. When the cap is
	// reached the oldest batch is dropped.
	QueueLimit int `yaml:"queue_limit"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Labels  Labels        `yaml:"labels"`
	Params  Params        `yaml:"params"`
	Frames  []Frame       `yaml:"frames"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Shipper ShipperConfig `yaml:"shipper"`
	Admin   AdminConfig   `yaml:"admin"`
}

// Labels name the two agents on every published result.
type Labels struct {
	Observer string `yaml:"observer"`
	Entity   string `yaml:"entity"`
}

// Frame declares Parent as the parent of Child. The inline transform maps
// points from Child into Parent.
type Frame struct {
	Child           string `yaml:"child"`
	Parent          string `yaml:"parent"`
	transform.Rigid `yaml:",inline"`
}

// MQTTConfig configures the broker connection used for both input streams and
// the result topic.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883. Empty disables MQTT.
	Broker string `yaml:"broker"`

	// ClientID is suffixed with a random id at connect time.
	ClientID string `yaml:"client_id"`

	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`

	EntityTopic   string `yaml:"entity_topic"`
	ObserverTopic string `yaml:"observer_topic"`
	ResultTopic   string `yaml:"result_topic"`
	QoS           byte   `yaml:"qos"`

	// PublishTimeout bounds how long a tick waits for a result publish.
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// Password returns the broker password resolved from the environment.
func (m MQTTConfig) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}

// ShipperConfig configures delivery of result batches to the collector.
type ShipperConfig struct {
	// Endpoint is the collector gRPC address (host:port). Empty disables the
	// shipper.
	Endpoint string `yaml:"endpoint"`

	// BufferSize is the number of batches held while the collector is
	// unreachable.
	BufferSize int `yaml:"buffer_size"`

	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig specifies how the shipper authenticates to the collector.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | none.
	Mode string `yaml:"mode"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the gRPC metadata key carrying the API key.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// AdminConfig configures the admin HTTP listener.
type AdminConfig struct {
	// Addr is the listen address; empty disables the admin server.
	Addr string `yaml:"addr"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a config document, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		TargetFrame:      DefaultTargetFrame,
		DecayTime:        DefaultDecayTime,
		ProcessingRate:   DefaultProcessingRate,
		TransformTimeout: DefaultTransformTimeout,
		LogLevel:         "info",
		Labels: Labels{
			Observer: DefaultObserverLabel,
			Entity:   DefaultEntityLabel,
		},
		Params: DefaultParams(),
		MQTT: MQTTConfig{
			ClientID:       "qtc-creator",
			EntityTopic:    DefaultEntityTopic,
			ObserverTopic:  DefaultObserverTopic,
			ResultTopic:    DefaultResultTopic,
			PublishTimeout: DefaultPublishTimeout,
		},
		Shipper: ShipperConfig{
			BufferSize: DefaultBufferSize,
			Auth:       AuthConfig{Header: "x-api-key"},
		},
		Admin: AdminConfig{Addr: DefaultAdminAddr},
	}
}

// validate checks structural constraints and normalises frame names.
func validate(cfg *Config) error {
	cfg.TargetFrame = transform.Canonical(cfg.TargetFrame)
	if cfg.TargetFrame == "" {
		return fmt.Errorf("target_frame is required")
	}
	if cfg.DecayTime <= 0 {
		return fmt.Errorf("decay_time must be positive")
	}
	if !(cfg.ProcessingRate > 0) {
		return fmt.Errorf("processing_rate must be positive")
	}
	if cfg.TransformTimeout <= 0 {
		return fmt.Errorf("transform_timeout must be positive")
	}
	if cfg.QueueLimit < 0 {
		return fmt.Errorf("queue_limit must not be negative")
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if err := cfg.Params.Check(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	for i, f := range cfg.Frames {
		if f.Child == "" || f.Parent == "" {
			return fmt.Errorf("frames[%d]: child and parent are required", i)
		}
		if transform.Canonical(f.Child) == transform.Canonical(f.Parent) {
			return fmt.Errorf("frames[%d]: %q is its own parent", i, f.Child)
		}
	}
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.EntityTopic == "" || cfg.MQTT.ObserverTopic == "" {
			return fmt.Errorf("mqtt: entity_topic and observer_topic are required")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
		}
		if cfg.MQTT.PublishTimeout <= 0 {
			return fmt.Errorf("mqtt: publish_timeout must be positive")
		}
	}
	if cfg.Shipper.Endpoint != "" {
		if cfg.Shipper.BufferSize <= 0 {
			return fmt.Errorf("shipper: buffer_size must be positive")
		}
		switch cfg.Shipper.Auth.Mode {
		case "mtls", "apikey", "none", "":
		default:
			return fmt.Errorf("shipper: unknown auth mode %q", cfg.Shipper.Auth.Mode)
		}
	}
	return nil
}

// ApplyFrames replaces the contents of tree with the configured frames.
func (c *Config) ApplyFrames(tree *transform.Tree) {
	tree.Reset()
	for _, f := range c.Frames {
		tree.Set(f.Child, f.Parent, f.Rigid)
	}
}

// ParseLevel maps a log_level value to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log_level %q", s)
}
