// Package config provides the configuration schema, loader, and file watcher
// for the hudlink client.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Role is the left/right pair identity of a device, or empty for standalone
// clients.
type Role string

const (
	RoleNone  Role = ""
	RoleLeft  Role = "left"
	RoleRight Role = "right"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleNone, RoleLeft, RoleRight:
		return true
	}
	return false
}

// Config is the root configuration structure for hudlink.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Device    DeviceConfig    `yaml:"device"`
	Audio     AudioConfig     `yaml:"audio"`
	Transport TransportConfig `yaml:"transport"`
	Relay     RelayConfig     `yaml:"relay"`
}

// ServerConfig holds the local HTTP surface (metrics, health, relay control)
// and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the local HTTP server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DeviceConfig identifies this client to the processing server.
type DeviceConfig struct {
	// ID is the device identifier sent in the hello handshake. Empty means
	// a random identifier is generated at startup.
	ID string `yaml:"id"`

	// Role is left, right, or empty for standalone clients.
	Role Role `yaml:"role"`

	// FWVersion is reported in the hello handshake.
	FWVersion string `yaml:"fw_version"`
}

// AudioConfig describes both the capture side and the wire format.
type AudioConfig struct {
	// NativeSampleRateHz is the capture device's rate.
	NativeSampleRateHz int `yaml:"native_sample_rate_hz"`

	// SampleRateHz is the wire rate. Zero selects 16000.
	SampleRateHz int `yaml:"sample_rate_hz"`

	// FrameMs is the wire frame duration. Zero selects 20.
	FrameMs int `yaml:"frame_ms"`

	// Channels is 1 or 2. Zero selects 1.
	Channels int `yaml:"channels"`

	// SourceHint names the capture path on platforms with several, for
	// diagnostics display only.
	SourceHint string `yaml:"source_hint"`
}

// TransportConfig holds the processing-server connection settings.
type TransportConfig struct {
	// BaseURL is the websocket base of the processing server
	// (e.g., "ws://10.0.0.5:8013").
	BaseURL string `yaml:"base_url"`

	// BackoffBaseMs, BackoffCapMs, and BackoffMaxExp tune the reconnect
	// delay curve. Zeros select 500, 5000, and 4.
	BackoffBaseMs int  `yaml:"backoff_base_ms"`
	BackoffCapMs  int  `yaml:"backoff_cap_ms"`
	BackoffMaxExp uint `yaml:"backoff_max_exp"`
}

// RelayConfig controls the optional relay bridge for devices that cannot run
// the full client natively.
type RelayConfig struct {
	// Enabled mounts the control endpoint on the local HTTP server.
	Enabled bool `yaml:"enabled"`

	// ControlPath is the control endpoint path. Empty selects
	// "/relay/control".
	ControlPath string `yaml:"control_path"`

	// ReadyTimeoutMs bounds how long a session start waits for both
	// upstream roles. Zero selects 8000.
	ReadyTimeoutMs int `yaml:"ready_timeout_ms"`
}
