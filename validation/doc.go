// Package validation provides input validation utilities for pipeline
// stage configuration.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection. Struct tag validation is
// recommended for operator parameter structs.
//
// # Struct Tag Validation
//
//	type AggSumParams struct {
//	    Expressions []string `validate:"required"`
//	    Timeout     int64    `validate:"required,min=1"`
//	}
//	err := validation.Validate(params)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Custom(history > warmup, "history", "must be greater than warmup")
//	err := v.Validate()
package validation
