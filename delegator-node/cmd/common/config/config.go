// Package config implements common configuration options.
package config

// Config is the common configuration structure.
type Config struct {
	// Node's data directory.
	DataDir string `yaml:"data_dir"`
	// Logging configuration options.
	Log LogConfig `yaml:"log,omitempty"`
}

// LogConfig is the common logging configuration structure.
type LogConfig struct {
	// Log file.
	File string `yaml:"file,omitempty"`
	// Log format (logfmt, json).
	Format string `yaml:"format,omitempty"`
	// Log level (debug, info, warn, error) per module.
	Level map[string]string `yaml:"level,omitempty"`
}

// Validate validates the configuration settings.
func (c *Config) Validate() error {
	return nil
}

// DefaultConfig returns the default configuration settings.
func DefaultConfig() Config {
	return Config{
		DataDir: "",
		Log: LogConfig{
			File:   "",
			Format: "logfmt",
			Level: map[string]string{
				"default":           "info",
				"common/persistent": "warn", // Badger is chatty at info.
			},
		},
	}
}
