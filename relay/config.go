package relay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds NATS relay connection settings.
type Config struct {
	URL             string `yaml:"url"`
	CredentialsFile string `yaml:"credentials_file"`
	ReconnectWait   int    `yaml:"reconnect_wait_ms"`
	MaxReconnects   int    `yaml:"max_reconnects"`
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		ReconnectWait: 2000,
		MaxReconnects: -1, // Unlimited
	}
}

// LoadConfig loads configuration from a YAML file, falling back to
// defaults when the file does not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
