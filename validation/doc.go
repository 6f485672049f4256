// Package validation checks configuration structs before they reach the
// components they configure.
//
// Struct tag validation uses go-playground/validator and reports field
// names as they appear in config files (the mapstructure tag):
//
//	type Config struct {
//	    ConcurrencyLimit int `mapstructure:"concurrency_limit" validate:"min=1"`
//	}
//	err := validation.Validate(cfg)
//
// Programmatic checks collect errors the same way:
//
//	v := validation.New()
//	v.Positive("buffer_limit", cfg.BufferLimit)
//	err := v.Validate()
//
// Both return an *errors.AppError with code INVALID_CONFIG and the
// offending fields under Details["fields"].
package validation
