package app

import (
	"errors"
	"fmt"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ManifestsPath string // driver manifests (.hcl), file or directory
	BoardPath     string // boot-time devices (.hcl)

	LogFormat string
	LogLevel  string
	HTTPPort  int
	Workers   int

	JournalPath string

	FirmwareDirs     []string
	FirmwareBucket   string
	FirmwarePrefix   string
	FirmwareRegion   string
	FirmwareEndpoint string

	PublishURL       string
	PublishNamespace string

	Interactive bool
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.BoardPath == "" && !cfg.Interactive {
		return nil, errors.New("a board file is required unless running interactively")
	}
	if cfg.HTTPPort < 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("http port %d is out of range", cfg.HTTPPort)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("worker count %d is negative", cfg.Workers)
	}
	if cfg.PublishNamespace != "" && cfg.PublishURL == "" {
		return nil, errors.New("a publish namespace needs a publish URL")
	}
	if cfg.PublishURL != "" && cfg.PublishNamespace == "" {
		cfg.PublishNamespace = "/devices"
	}
	if cfg.FirmwareBucket == "" && (cfg.FirmwarePrefix != "" || cfg.FirmwareEndpoint != "") {
		return nil, errors.New("firmware prefix and endpoint need a firmware bucket")
	}
	return &cfg, nil
}
