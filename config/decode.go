package config

import "go.yaml.in/yaml/v3"

// Decode marshals raw back to YAML and unmarshals it into a freshly
// allocated *T, giving an operator's Build function a typed parameter
// struct instead of a raw map. Callers typically run Validate first so raw
// is already known to satisfy T's schema.
func Decode[T any](raw map[string]interface{}) (*T, error) {
	var out T
	bs, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(bs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
