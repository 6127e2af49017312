// Package config loads plexusd's optional YAML configuration file and
// merges it with command-line flags, following the teacher's convention of
// flag-first configuration (example/cmd/assistant/main.go) extended with
// an optional file for settings that are awkward as flags (activation
// toggles, per-activation options).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is plexusd's full runtime configuration. Zero value is valid and
// runs with every built-in activation enabled and default timeouts.
type Config struct {
	// Host/Port configure the WebSocket listener.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Stdio enables the notification-only adapter on os.Stdin/os.Stdout
	// instead of the WebSocket listener.
	Stdio bool `yaml:"stdio"`

	// QueueDepth overrides backpressure.DefaultDepth for every subscription.
	QueueDepth int `yaml:"queue_depth"`

	// LogFormat is "json" or "terminal"; empty auto-detects from the
	// attached terminal, matching the teacher's log.IsTerminal() check.
	LogFormat string `yaml:"log_format"`

	// Activations lists which demo activations to register. nil/empty
	// registers all of them.
	Activations []string `yaml:"activations"`

	// Bash configures the bash activation.
	Bash struct {
		Shell string `yaml:"shell"`
	} `yaml:"bash"`

	// Wizard configures the wizard activation.
	Wizard struct {
		Templates []string `yaml:"templates"`
	} `yaml:"wizard"`
}

// Default returns the zero-value Config with its documented defaults
// filled in.
func Default() Config {
	return Config{
		Host:       "localhost",
		Port:       4444,
		QueueDepth: 0, // backpressure.DefaultDepth
	}
}

// Load reads and parses the YAML file at path, overlaying it on Default().
// An empty path returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// ActivationEnabled reports whether name should be registered given the
// configured allowlist. An empty allowlist enables everything.
func (c Config) ActivationEnabled(name string) bool {
	if len(c.Activations) == 0 {
		return true
	}
	for _, a := range c.Activations {
		if a == name {
			return true
		}
	}
	return false
}
