// Package config provides layered configuration loading for streaming
// applications: a YAML config file as the base, a .env file on top, and
// process environment variables with the highest precedence.
//
//	var cfg MyConfig
//	err := config.Load("stream-llm", &cfg)
package config
