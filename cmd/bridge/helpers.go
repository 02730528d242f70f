package main

import (
	"fmt"
	"os"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/config"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/db"
	"gorm.io/gorm"
)

// loadConfig reads the config file at path, falling back to defaults when the
// file does not exist and path is the default location.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		return config.Default(), nil
	}
	return config.Load(path)
}

const defaultConfigPath = "bridge.yaml"

// connectFromConfig loads the config and opens the conversation store.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}
