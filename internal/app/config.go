package app

import (
	"errors"
	"fmt"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ConfigPaths are files or directories holding .hcl or .toml files.
	ConfigPaths []string

	LogFormat  string
	LogLevel   string
	StatusPort int

	// UpdatesDir overrides the updates path of the application config.
	UpdatesDir string
	// InProcess hosts every module inside the master process instead of
	// spawning one worker process per module.
	InProcess bool
	// WorkerExecutable is started for modules without an entry. Empty means
	// the running binary.
	WorkerExecutable string
}

func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ConfigPaths) == 0 {
		return nil, errors.New("ConfigPaths is a required configuration field and cannot be empty")
	}
	if cfg.StatusPort < 0 || cfg.StatusPort > 65535 {
		return nil, fmt.Errorf("invalid status port %d", cfg.StatusPort)
	}
	return &cfg, nil
}
