package config

import (
	"fmt"

	"github.com/amit-t/stream-llm/logger"
)

// AppConfig contains the essential configuration fields a streaming
// application needs. Projects extend this by embedding it in their own
// config structs.
//
// Example:
//
//	type MyConfig struct {
//	    config.AppConfig `yaml:",inline" mapstructure:",squash"`
//	    Stream sse.Config `yaml:"stream" mapstructure:"stream"`
//	}
type AppConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	Environment string        `yaml:"environment" mapstructure:"environment"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`
}

// ApplyDefaults applies default values to the base configuration.
// Override this in embedding structs and call AppConfig.ApplyDefaults first.
func (c *AppConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	c.Logging.ApplyDefaults()
}

// Validate validates the base configuration fields.
// Override this in embedding structs and call AppConfig.Validate first.
func (c *AppConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config.name is required")
	}
	validEnvs := []string{"development", "staging", "production"}
	for _, v := range validEnvs {
		if c.Environment == v {
			return c.Logging.Validate()
		}
	}
	return fmt.Errorf("config.environment must be one of [development, staging, production] (got: %s)", c.Environment)
}
