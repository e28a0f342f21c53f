package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/hype/internal/caps"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults and validates a configuration file. A
// directory argument resolves to config.yaml inside it. When a .checksums
// manifest sits next to the file, the file must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := VerifyIfLocked(absPath); err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	interpolated := interpolateEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewBufferString(interpolated))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath returns the absolute path of the config file.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// Discover finds a config file: $HYPE_CONFIG, ~/.config/hype/config.yaml,
// /etc/hype/config.yaml, then ./config.yaml.
func Discover() (string, error) {
	if p := os.Getenv("HYPE_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	candidates := []string{}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "hype", "config.yaml"))
	}
	candidates = append(candidates, "/etc/hype/config.yaml", "./config.yaml")
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: $HYPE_CONFIG, %s)", strings.Join(candidates, ", "))
}

func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = def.Service.LogFormat
	}
	if cfg.Stage.MaxWorkers == 0 {
		cfg.Stage.MaxWorkers = def.Stage.MaxWorkers
	}
	if cfg.Stage.QueueCapacity == 0 {
		cfg.Stage.QueueCapacity = def.Stage.QueueCapacity
	}
	for i := range cfg.Stage.Workers {
		w := &cfg.Stage.Workers[i]
		if w.Name == "" {
			w.Name = fmt.Sprintf("encoder-%d", i)
		}
		if w.Type == WorkerExec && w.Timeout == 0 {
			w.Timeout = DefaultWorkerTimeout
		}
	}
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = def.Source.Kind
	}
	if cfg.Source.FrameRate == 0 {
		cfg.Source.FrameRate = def.Source.FrameRate
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = def.Journal.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = def.API.Listen
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is and fail validation where they matter.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs semantic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Stage.GroupSize == 0 {
		return fmt.Errorf("stage.group_size must be at least 1")
	}
	if cfg.Stage.MaxWorkers < 1 {
		return fmt.Errorf("stage.max_workers must be positive")
	}
	if cfg.Stage.QueueCapacity < 1 {
		return fmt.Errorf("stage.queue_capacity must be positive")
	}
	if len(cfg.Stage.Workers) > cfg.Stage.MaxWorkers {
		return fmt.Errorf("stage.workers: %d workers configured, max_workers is %d", len(cfg.Stage.Workers), cfg.Stage.MaxWorkers)
	}
	if cfg.Stage.OutputCaps != "" {
		if _, err := caps.Parse(cfg.Stage.OutputCaps); err != nil {
			return fmt.Errorf("stage.output_caps: %w", err)
		}
	}

	seen := make(map[string]bool)
	for i, w := range cfg.Stage.Workers {
		field := fmt.Sprintf("stage.workers[%d]", i)
		if seen[w.Name] {
			return fmt.Errorf("%s: duplicate worker name %q", field, w.Name)
		}
		seen[w.Name] = true

		switch w.Type {
		case WorkerIdentity:
			if w.Delay < 0 {
				return fmt.Errorf("%s: delay must not be negative", field)
			}
		case WorkerExec:
			if w.Command == "" {
				return fmt.Errorf("%s: command is required for exec workers", field)
			}
			if w.Timeout < 0 {
				return fmt.Errorf("%s: timeout must not be negative", field)
			}
		default:
			return fmt.Errorf("%s: type must be identity or exec (got %q)", field, w.Type)
		}

		switch w.Class {
		case "", "encoder", "identity", "filter":
		default:
			return fmt.Errorf("%s: class must be encoder, identity or filter (got %q)", field, w.Class)
		}
		if w.Caps != "" {
			if _, err := caps.Parse(w.Caps); err != nil {
				return fmt.Errorf("%s: caps: %w", field, err)
			}
		}
		if err := checkUnresolved(field+".env", w.Env); err != nil {
			return err
		}
	}

	switch cfg.Source.Kind {
	case SourceSynthetic:
		if cfg.Source.Frames < 0 || cfg.Source.FrameSize < 0 {
			return fmt.Errorf("source: frames and frame_size must not be negative")
		}
	case SourceGst:
		if cfg.Source.Pipeline == "" {
			return fmt.Errorf("source.pipeline is required for gst sources")
		}
	default:
		return fmt.Errorf("source.kind must be synthetic or gst (got %q)", cfg.Source.Kind)
	}
	if cfg.Source.FrameRate < 1 {
		return fmt.Errorf("source.frame_rate must be positive")
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}

	if cfg.API.Enabled {
		if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
			return fmt.Errorf("api.auth.api_key references an unset environment variable")
		}
	}

	for i, wh := range cfg.Webhooks {
		field := fmt.Sprintf("webhooks[%d]", i)
		u, err := url.Parse(wh.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s.url must be an absolute http(s) URL (got %q)", field, wh.URL)
		}
		if envVarPattern.MatchString(wh.Secret) {
			return fmt.Errorf("%s.secret references an unset environment variable", field)
		}
		if wh.Timeout < 0 {
			return fmt.Errorf("%s.timeout must not be negative", field)
		}
	}
	return nil
}

func checkUnresolved(field string, values map[string]string) error {
	for k, v := range values {
		if m := envVarPattern.FindStringSubmatch(v); m != nil {
			return fmt.Errorf("%s.%s: environment variable %s is not set", field, k, m[1])
		}
	}
	return nil
}
