package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Transport.BaseURL = "ws://10.0.0.5:8013"
	ApplyDefaults(cfg)
	return cfg
}

func TestLogLevel_IsValid(t *testing.T) {
	for _, l := range []LogLevel{LogDebug, LogInfo, LogWarn, LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []LogLevel{"", "trace", "INFO"} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestRole_IsValid(t *testing.T) {
	for _, r := range []Role{RoleNone, RoleLeft, RoleRight} {
		if !r.IsValid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("center").IsValid() {
		t.Error("center should be invalid")
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantSub: "server.log_level",
		},
		{
			name:    "bad role",
			mutate:  func(c *Config) { c.Device.Role = "center" },
			wantSub: "device.role",
		},
		{
			name:    "zero sample rate",
			mutate:  func(c *Config) { c.Audio.SampleRateHz = -1 },
			wantSub: "audio.sample_rate_hz",
		},
		{
			name:    "zero native rate",
			mutate:  func(c *Config) { c.Audio.NativeSampleRateHz = -1 },
			wantSub: "audio.native_sample_rate_hz",
		},
		{
			name:    "zero frame duration",
			mutate:  func(c *Config) { c.Audio.FrameMs = -5 },
			wantSub: "audio.frame_ms",
		},
		{
			name:    "three channels",
			mutate:  func(c *Config) { c.Audio.Channels = 3 },
			wantSub: "audio.channels",
		},
		{
			name: "fractional samples per frame",
			mutate: func(c *Config) {
				c.Audio.SampleRateHz = 44100
				c.Audio.FrameMs = 23
			},
			wantSub: "whole number of samples",
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Transport.BaseURL = "" },
			wantSub: "transport.base_url is required",
		},
		{
			name:    "http scheme",
			mutate:  func(c *Config) { c.Transport.BaseURL = "http://10.0.0.5:8013" },
			wantSub: "ws:// or wss://",
		},
		{
			name:    "negative backoff",
			mutate:  func(c *Config) { c.Transport.BackoffBaseMs = -1 },
			wantSub: "backoff delays",
		},
		{
			name: "relative control path",
			mutate: func(c *Config) {
				c.Relay.Enabled = true
				c.Relay.ControlPath = "relay/control"
			},
			wantSub: "relay.control_path",
		},
		{
			name:    "negative ready timeout",
			mutate:  func(c *Config) { c.Relay.ReadyTimeoutMs = -1 },
			wantSub: "relay.ready_timeout_ms",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestValidate_ReportsAllFailures(t *testing.T) {
	cfg := validConfig()
	cfg.Server.LogLevel = "verbose"
	cfg.Audio.Channels = 5
	cfg.Transport.BaseURL = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, sub := range []string{"server.log_level", "audio.channels", "transport.base_url"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("joined error %q is missing %q", err, sub)
		}
	}
}
