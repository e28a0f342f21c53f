package config

import "time"

// Config represents the complete hype configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Stage   StageConfig   `yaml:"stage"`
	Source  SourceConfig  `yaml:"source"`
	Journal JournalConfig `yaml:"journal"`
	API     APIConfig     `yaml:"api,omitempty"`
	// Webhooks are notified when a run finishes.
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StageConfig defines the scene stage.
type StageConfig struct {
	GroupSize         uint32         `yaml:"group_size"`
	MaxWorkers        int            `yaml:"max_workers"`
	QueueCapacity     int            `yaml:"queue_capacity"`
	LenientBoundaries bool           `yaml:"lenient_boundaries,omitempty"`
	OutputCaps        string         `yaml:"output_caps,omitempty"`
	Workers           []WorkerConfig `yaml:"workers"`
}

// WorkerConfig defines one encoder slot.
type WorkerConfig struct {
	Name string `yaml:"name"`
	// Type selects the implementation: identity or exec.
	Type string `yaml:"type"`
	// Class overrides the declared element class (encoder, identity, filter).
	Class string `yaml:"class,omitempty"`
	// Caps the worker produces. Empty means ANY.
	Caps string `yaml:"caps,omitempty"`

	// identity
	Delay time.Duration `yaml:"delay,omitempty"`

	// exec
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
}

// SourceConfig defines where frames come from for `hype run`.
type SourceConfig struct {
	// Kind is synthetic or gst.
	Kind      string        `yaml:"kind"`
	Frames    int           `yaml:"frames"`
	FrameSize int           `yaml:"frame_size"`
	FrameRate int           `yaml:"frame_rate"`
	Interval  time.Duration `yaml:"interval,omitempty"`
	// Pipeline is a gst-launch style description ending in raw frames.
	Pipeline string `yaml:"pipeline,omitempty"`
	Caps     string `yaml:"caps,omitempty"`
}

// JournalConfig defines run journal storage.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings. An empty key disables
// authentication.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// WebhookConfig is one run notification endpoint.
type WebhookConfig struct {
	URL string `yaml:"url"`
	// Secret signs the body with HMAC-SHA256 when set.
	Secret  string        `yaml:"secret,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Worker types.
const (
	WorkerIdentity = "identity"
	WorkerExec     = "exec"
)

// Source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceGst       = "gst"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "hype",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Stage: StageConfig{
			GroupSize:     10,
			MaxWorkers:    5,
			QueueCapacity: 40,
		},
		Source: SourceConfig{
			Kind:      SourceSynthetic,
			Frames:    200,
			FrameSize: 1024,
			FrameRate: 30,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "./data/hype.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}

// DefaultWorkerTimeout bounds one exec invocation when no timeout is set.
const DefaultWorkerTimeout = 60 * time.Second
