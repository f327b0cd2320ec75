// Package config loads and validates pipeline configuration files.
//
// A pipeline file is YAML with an extra '//' line-comment convention (YAML
// only recognizes '#' natively). Load strips those comments and decodes the
// remainder into a Document; Validate checks every stage against a
// pipeline.Registry before Build wires the stages together.
//
// # Usage
//
//	doc, err := config.Load("pipeline.yaml")
//	runnable, err := config.Build(doc, pipeline.Default, log)
//	err = runnable.Run(ctx)
package config
