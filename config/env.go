package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env carries runtime settings read from the environment under the
// AGENTCENTER prefix, e.g. AGENTCENTER_LOG_LEVEL=debug.
type Env struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LogFormat is json or text.
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Store selects the session backend: memory, file or sqlite.
	Store string `envconfig:"STORE" default:"memory"`

	// StorePath is the directory (file store) or database file (sqlite
	// store) used by durable backends.
	StorePath string `envconfig:"STORE_PATH" default:"./agentcenter-data"`

	// BundlePath optionally points at a YAML bundle loaded at startup.
	BundlePath string `envconfig:"BUNDLE"`
}

// LoadEnv reads runtime settings from the process environment. A .env
// file in the working directory is merged first when present; missing
// files are not an error.
func LoadEnv() (*Env, error) {
	_ = godotenv.Load()

	var e Env
	if err := envconfig.Process("agentcenter", &e); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	return &e, nil
}
