package main

import (
	"fmt"
	"io"

	"github.com/Nixie-Tech-LLC/muezzin/internal/config"
	"github.com/Nixie-Tech-LLC/muezzin/internal/logging"
)

// LoadEnvironment reads .env and the environment, validates the result and
// installs the logger.
func LoadEnvironment(envFile string) (*config.Config, io.Closer, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	closer, err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	return cfg, closer, nil
}
