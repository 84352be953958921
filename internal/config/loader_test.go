package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
device:
  id: hud-left-01
  role: left
  fw_version: 1.4.2
audio:
  native_sample_rate_hz: 48000
  sample_rate_hz: 16000
  frame_ms: 20
  channels: 2
  source_hint: usb-array
transport:
  base_url: ws://10.0.0.5:8013
  backoff_base_ms: 250
  backoff_cap_ms: 4000
  backoff_max_exp: 3
relay:
  enabled: true
  control_path: /bridge/control
  ready_timeout_ms: 6000
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Device.ID != "hud-left-01" || cfg.Device.Role != RoleLeft {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.Audio.NativeSampleRateHz != 48000 || cfg.Audio.Channels != 2 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Transport.BackoffBaseMs != 250 || cfg.Transport.BackoffMaxExp != 3 {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if !cfg.Relay.Enabled || cfg.Relay.ControlPath != "/bridge/control" {
		t.Errorf("relay = %+v", cfg.Relay)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("transport:\n  base_url: ws://server:8013\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr default = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log_level default = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Audio.SampleRateHz != 16000 || cfg.Audio.FrameMs != 20 || cfg.Audio.Channels != 1 {
		t.Errorf("audio defaults = %+v", cfg.Audio)
	}
	if cfg.Audio.NativeSampleRateHz != cfg.Audio.SampleRateHz {
		t.Errorf("native rate default = %d, want wire rate %d", cfg.Audio.NativeSampleRateHz, cfg.Audio.SampleRateHz)
	}
	if cfg.Transport.BackoffBaseMs != 500 || cfg.Transport.BackoffCapMs != 5000 || cfg.Transport.BackoffMaxExp != 4 {
		t.Errorf("backoff defaults = %+v", cfg.Transport)
	}
	if cfg.Relay.ControlPath != "/relay/control" || cfg.Relay.ReadyTimeoutMs != 8000 {
		t.Errorf("relay defaults = %+v", cfg.Relay)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("transport:\n  base_url: ws://x:1\n  retries: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "retries") {
		t.Errorf("error %q does not name the unknown field", err)
	}
}

func TestLoadFromReader_EmptyInputFailsValidation(t *testing.T) {
	// An empty document parses fine but lacks the required base URL.
	_, err := LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected validation error for empty config")
	}
	if !strings.Contains(err.Error(), "transport.base_url") {
		t.Errorf("error %q does not mention the missing base url", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hudlink.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device.ID != "hud-left-01" {
		t.Errorf("device.id = %q", cfg.Device.ID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
