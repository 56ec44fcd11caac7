// Package logger provides structured logging for the streaming kit
// using zerolog.
//
// It supports multiple output formats (JSON, console), log level
// configuration, and component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.WithComponent("sse")
//	log.Info("client connected", logger.Fields("session_id", id))
package logger
