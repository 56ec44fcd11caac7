// Package validation provides struct tag validation for configuration
// types in the streaming kit, using the validator library.
//
//	type Config struct {
//	    StatusCode int `mapstructure:"status_code" validate:"gte=100,lt=600"`
//	}
//	err := validation.Validate(cfg)
package validation
