package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kbukum/watchtower-sentry/config"
	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func init() {
	pipeline.Register("JsonIn", pipeline.ModuleDef{
		Role:   pipeline.RoleSource,
		Params: &JsonInParams{},
		Build:  buildJsonIn,
	})
}

// JsonInParams configures JsonIn. File is the input path; "-" or empty
// means stdin.
type JsonInParams struct {
	File string `yaml:"file"`
}

// buildJsonIn creates a source that reads one JSON [key, value, time]
// array per line.
func buildJsonIn(params map[string]interface{}, pctx *pipeline.Context, _ *logger.Logger, _ *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := config.Decode[JsonInParams](params)
	if err != nil {
		return nil, fmt.Errorf("JsonIn: %w", err)
	}
	name := p.File
	if name == "" {
		name = "-"
	}
	pipeline.Write(pctx, pipeline.ExpressionPort, name)

	src := pipeline.FromFunc(func(_ context.Context) pipeline.Iterator[sample.Sample] {
		return &jsonInIter{path: name}
	})
	return &pipeline.Stage{Role: pipeline.RoleSource, Samples: src}, nil
}

type jsonInIter struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	opened  bool
}

func (it *jsonInIter) open() error {
	it.opened = true
	var r io.Reader = os.Stdin
	if it.path != "-" {
		f, err := os.Open(it.path)
		if err != nil {
			return fmt.Errorf("JsonIn: %w", err)
		}
		it.file = f
		r = f
	}
	it.scanner = bufio.NewScanner(r)
	return nil
}

func (it *jsonInIter) Next(_ context.Context) (sample.Sample, bool, error) {
	if !it.opened {
		if err := it.open(); err != nil {
			return sample.Sample{}, false, err
		}
	}
	for it.scanner.Scan() {
		line := it.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s, err := parseKVT(line)
		if err != nil {
			return sample.Sample{}, false, fmt.Errorf("JsonIn: %w", err)
		}
		return s, true, nil
	}
	if err := it.scanner.Err(); err != nil {
		return sample.Sample{}, false, fmt.Errorf("JsonIn: %w", err)
	}
	return sample.Sample{}, false, nil
}

func (it *jsonInIter) Close() error {
	if it.file != nil {
		return it.file.Close()
	}
	return nil
}

// parseKVT decodes a [key, value, time] JSON array; value null is the
// missing-observation sentinel.
func parseKVT(line []byte) (sample.Sample, error) {
	var tuple []interface{}
	if err := json.Unmarshal(line, &tuple); err != nil {
		return sample.Sample{}, err
	}
	if len(tuple) != 3 {
		return sample.Sample{}, fmt.Errorf("expected [key, value, time], got %d elements", len(tuple))
	}
	key, ok := tuple[0].(string)
	if !ok {
		return sample.Sample{}, fmt.Errorf("key is not a string: %v", tuple[0])
	}
	t, ok := tuple[2].(float64)
	if !ok {
		return sample.Sample{}, fmt.Errorf("time is not a number: %v", tuple[2])
	}
	switch v := tuple[1].(type) {
	case nil:
		return sample.NewNull(key, int64(t)), nil
	case float64:
		return sample.New(key, v, int64(t)), nil
	default:
		return sample.Sample{}, fmt.Errorf("value is not a number or null: %v", tuple[1])
	}
}
