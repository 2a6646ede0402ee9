package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Runtime holds process settings for ov serve, read from the environment.
type Runtime struct {
	Addr             string `env:"OVERSIGHT_ADDR" envDefault:"127.0.0.1:8080"`
	BasePath         string `env:"OVERSIGHT_BASE_PATH" envDefault:"/v0"`
	JWTSecret        string `env:"OVERSIGHT_JWT_SECRET"`
	AllowActorHeader bool   `env:"OVERSIGHT_ALLOW_ACTOR_HEADER" envDefault:"false"`
	LogLevel         string `env:"OVERSIGHT_LOG_LEVEL"`
}

// ParseEnv loads Runtime from the process environment.
func ParseEnv() (Runtime, error) {
	var rt Runtime
	if err := env.Parse(&rt); err != nil {
		return Runtime{}, fmt.Errorf("parse env: %w", err)
	}
	return rt, nil
}

// ParseEnvFrom loads Runtime from an explicit environment map.
func ParseEnvFrom(environment map[string]string) (Runtime, error) {
	var rt Runtime
	if err := env.ParseWithOptions(&rt, env.Options{Environment: environment}); err != nil {
		return Runtime{}, fmt.Errorf("parse env: %w", err)
	}
	return rt, nil
}

// Validate checks settings required before serving.
func (r Runtime) Validate() error {
	if strings.TrimSpace(r.Addr) == "" {
		return errors.New("OVERSIGHT_ADDR is required")
	}
	if strings.TrimSpace(r.JWTSecret) == "" && !r.AllowActorHeader {
		return errors.New("OVERSIGHT_JWT_SECRET is required unless OVERSIGHT_ALLOW_ACTOR_HEADER is set")
	}
	if r.BasePath != "" && !strings.HasPrefix(r.BasePath, "/") {
		return fmt.Errorf("OVERSIGHT_BASE_PATH %q must start with /", r.BasePath)
	}
	return nil
}
