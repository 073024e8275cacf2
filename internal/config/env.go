package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Environment is the process environment surface. PARLEY_ENV selects the
// storage namespace so a development build never collides with a production
// install; PARLEY_INSTANCE overrides the namespace outright.
type Environment struct {
	Env      string `envconfig:"ENV" default:"production"`
	Instance string `envconfig:"INSTANCE"`
	Reset    bool   `envconfig:"RESET"`
}

// LoadEnvironment reads PARLEY_* variables from the process environment.
func LoadEnvironment() (Environment, error) {
	var env Environment
	if err := envconfig.Process("parley", &env); err != nil {
		return Environment{}, fmt.Errorf("config: read environment: %w", err)
	}
	return env, nil
}

// InstanceName resolves the storage namespace for this process.
func (e Environment) InstanceName() string {
	if e.Instance != "" {
		return e.Instance
	}
	if e.Env == "development" {
		return InstanceDevelopment
	}
	return InstanceProduction
}
