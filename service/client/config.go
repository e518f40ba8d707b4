package client

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itiky/resource-sync/storage"
)

// WatchConfig is the Watcher YAML configuration.
type WatchConfig struct {
	ServerUrl string `yaml:"server_url"`
	App       string `yaml:"app"`
	// Limits the builds watched (empty: every branch)
	Branch        string        `yaml:"branch"`
	FetchMode     string        `yaml:"fetch_mode"`
	PollPeriod    time.Duration `yaml:"poll_period"`
	Timeout       time.Duration `yaml:"timeout"`
	MonitorPeriod time.Duration `yaml:"monitor_period"`
}

// DefaultWatchConfig returns the config with the default values set.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		ServerUrl:     "127.0.0.1:2412",
		FetchMode:     storage.PreserveReplace.String(),
		PollPeriod:    2 * time.Second,
		Timeout:       5 * time.Second,
		MonitorPeriod: 10 * time.Second,
	}
}

// LoadWatchConfig reads the YAML config file on top of the defaults.
func LoadWatchConfig(filePath string) (WatchConfig, error) {
	cfg := DefaultWatchConfig()

	data, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return cfg, fmt.Errorf("reading file (%s): %w", filePath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("YAML unmarshal: %w", err)
	}

	return cfg, nil
}

// Validate ensures all the necessary values are specified.
func (c WatchConfig) Validate() error {
	if c.ServerUrl == "" {
		return fmt.Errorf("%s: empty", "server_url")
	}
	if c.App == "" {
		return fmt.Errorf("%s: empty", "app")
	}
	if _, err := storage.ParseFetchMode(c.FetchMode); err != nil {
		return fmt.Errorf("%s: %w", "fetch_mode", err)
	}
	if c.PollPeriod <= 0 {
		return fmt.Errorf("%s: must be GT 0", "poll_period")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s: must be GT 0", "timeout")
	}
	if c.MonitorPeriod <= 0 {
		return fmt.Errorf("%s: must be GT 0", "monitor_period")
	}

	return nil
}
