package config

import (
	"fmt"
	"os"
	"regexp"

	"go.yaml.in/yaml/v3"
)

// commentRe strips trailing '// ...' line comments before YAML decoding.
// YAML has no native syntax for '//' comments (only '#'); pipeline files in
// this codebase are written with '//' throughout, so this preprocessing
// pass runs before the document ever reaches the YAML decoder.
var commentRe = regexp.MustCompile(`(?m)//\s+.*$`)

// StageDoc is one raw pipeline entry: the module name, an optional
// per-stage log level override, and every remaining key as operator
// parameters.
type StageDoc struct {
	Module   string
	LogLevel string
	Params   map[string]interface{}
}

// Document is a parsed, not-yet-validated pipeline configuration file.
type Document struct {
	LogLevel string
	Pipeline []StageDoc
	Path     string
}

// rawDocument mirrors the YAML shape before module/loglevel are split out
// of each stage's parameter map.
type rawDocument struct {
	LogLevel string                   `yaml:"loglevel"`
	Pipeline []map[string]interface{} `yaml:"pipeline"`
}

// Load reads path, strips '//' comments, and decodes the remainder as YAML
// into a Document. It does not check stage schemas or roles; call Validate
// for that.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	stripped := commentRe.ReplaceAll(raw, nil)

	var doc rawDocument
	if err := yaml.Unmarshal(stripped, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	stages := make([]StageDoc, 0, len(doc.Pipeline))
	for _, entry := range doc.Pipeline {
		sd := StageDoc{Params: make(map[string]interface{}, len(entry))}
		for k, v := range entry {
			switch k {
			case "module":
				sd.Module, _ = v.(string)
			case "loglevel":
				sd.LogLevel, _ = v.(string)
			default:
				sd.Params[k] = v
			}
		}
		stages = append(stages, sd)
	}

	return &Document{LogLevel: doc.LogLevel, Pipeline: stages, Path: path}, nil
}
