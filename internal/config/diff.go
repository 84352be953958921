package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// BaseURLChanged means the transport must cycle both channels against
	// the new target.
	BaseURLChanged bool
	NewBaseURL     string
}

// Changed reports whether the diff contains anything to act on.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.BaseURLChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Transport.BaseURL != new.Transport.BaseURL {
		d.BaseURLChanged = true
		d.NewBaseURL = new.Transport.BaseURL
	}
	return d
}
