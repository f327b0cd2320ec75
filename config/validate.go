package config

import (
	"fmt"

	"github.com/kbukum/watchtower-sentry/errors"
	"github.com/kbukum/watchtower-sentry/pipeline"
)

// Validate checks doc against registry: the pipeline has a source first and
// a sink last, every stage names a registered module occupying the role its
// position requires, and every stage's parameter map contains no key
// outside the module's declared schema while supplying every required key.
func Validate(doc *Document, registry *pipeline.Registry) error {
	n := len(doc.Pipeline)
	if n < 2 {
		return errors.ConfigSchema(doc.Path, "pipeline needs at least a source and a sink stage")
	}
	last := n - 1

	for i, stage := range doc.Pipeline {
		if stage.Module == "" {
			return errors.ConfigSchema(doc.Path, fmt.Sprintf("pipeline[%d]: missing required field %q", i, "module"))
		}

		def, ok := registry.Get(stage.Module)
		if !ok {
			return errors.UnknownModule(i, stage.Module)
		}

		wantRole := pipeline.RoleFilter
		switch i {
		case 0:
			wantRole = pipeline.RoleSource
		case last:
			wantRole = pipeline.RoleSink
		}
		if def.Role != wantRole {
			return errors.ConfigRole(i, stage.Module,
				fmt.Sprintf("position %d must be a %s, but %s is a %s", i, wantRole, stage.Module, def.Role))
		}

		schema := DeriveSchema(def.Params)
		for key := range stage.Params {
			if !schema.Allowed[key] {
				return errors.ConfigSchema(doc.Path, fmt.Sprintf("pipeline[%d] (%s): unknown field %q", i, stage.Module, key))
			}
		}
		for _, req := range schema.Required {
			if _, ok := stage.Params[req]; !ok {
				return errors.ConfigSchema(doc.Path, fmt.Sprintf("pipeline[%d] (%s): missing required field %q", i, stage.Module, req))
			}
		}
	}
	return nil
}
