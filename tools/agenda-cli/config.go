package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config points the CLI at the two services. A missing file is created with
// defaults on first run so the operator has something to edit.
type Config struct {
	ConsoleURL string `yaml:"console_url"`
	AgendaURL  string `yaml:"agenda_url"`
	StaffID    string `yaml:"staff_id"`
}

func defaultConfig() *Config {
	return &Config{
		ConsoleURL: "http://localhost:8091",
		AgendaURL:  "http://localhost:8090",
		StaffID:    "cli",
	}
}

func loadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := defaultConfig()
			if err := saveConfig(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func saveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
