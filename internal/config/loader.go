package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with the wire protocol defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRateHz == 0 {
		cfg.Audio.SampleRateHz = 16000
	}
	if cfg.Audio.FrameMs == 0 {
		cfg.Audio.FrameMs = 20
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.NativeSampleRateHz == 0 {
		cfg.Audio.NativeSampleRateHz = cfg.Audio.SampleRateHz
	}
	if cfg.Transport.BackoffBaseMs == 0 {
		cfg.Transport.BackoffBaseMs = 500
	}
	if cfg.Transport.BackoffCapMs == 0 {
		cfg.Transport.BackoffCapMs = 5000
	}
	if cfg.Transport.BackoffMaxExp == 0 {
		cfg.Transport.BackoffMaxExp = 4
	}
	if cfg.Relay.ControlPath == "" {
		cfg.Relay.ControlPath = "/relay/control"
	}
	if cfg.Relay.ReadyTimeoutMs == 0 {
		cfg.Relay.ReadyTimeoutMs = 8000
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Device.Role.IsValid() {
		errs = append(errs, fmt.Errorf("device.role %q is invalid; valid values: left, right, or empty", cfg.Device.Role))
	}

	if cfg.Audio.SampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate_hz %d must be positive", cfg.Audio.SampleRateHz))
	}
	if cfg.Audio.NativeSampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("audio.native_sample_rate_hz %d must be positive", cfg.Audio.NativeSampleRateHz))
	}
	if cfg.Audio.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d must be positive", cfg.Audio.FrameMs))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if cfg.Audio.SampleRateHz > 0 && cfg.Audio.FrameMs > 0 &&
		cfg.Audio.SampleRateHz*cfg.Audio.FrameMs%1000 != 0 {
		errs = append(errs, fmt.Errorf("audio: %d Hz at %d ms does not give a whole number of samples per frame", cfg.Audio.SampleRateHz, cfg.Audio.FrameMs))
	}

	if cfg.Transport.BaseURL == "" {
		errs = append(errs, errors.New("transport.base_url is required"))
	} else if !strings.HasPrefix(cfg.Transport.BaseURL, "ws://") && !strings.HasPrefix(cfg.Transport.BaseURL, "wss://") {
		errs = append(errs, fmt.Errorf("transport.base_url %q must use a ws:// or wss:// scheme", cfg.Transport.BaseURL))
	}
	if cfg.Transport.BackoffBaseMs < 0 || cfg.Transport.BackoffCapMs < 0 {
		errs = append(errs, errors.New("transport backoff delays must not be negative"))
	}

	if cfg.Relay.Enabled && !strings.HasPrefix(cfg.Relay.ControlPath, "/") {
		errs = append(errs, fmt.Errorf("relay.control_path %q must start with /", cfg.Relay.ControlPath))
	}
	if cfg.Relay.ReadyTimeoutMs < 0 {
		errs = append(errs, errors.New("relay.ready_timeout_ms must not be negative"))
	}

	return errors.Join(errs...)
}
