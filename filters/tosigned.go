package filters

import (
	"context"
	"fmt"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func init() {
	pipeline.Register("ToSigned", pipeline.ModuleDef{
		Role:   pipeline.RoleFilter,
		Params: &ToSignedParams{},
		Build:  buildToSigned,
	})
}

// ToSignedParams configures ToSigned.
type ToSignedParams struct {
	Bits int `yaml:"bits"`
}

func buildToSigned(params map[string]interface{}, _ *pipeline.Context, _ *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := decodeParams[ToSignedParams](params)
	if err != nil {
		return nil, fmt.Errorf("ToSigned: %w", err)
	}
	bits := p.Bits
	if bits == 0 {
		bits = 64
	}
	if bits < 2 || bits > 64 {
		return nil, fmt.Errorf("ToSigned: bits must be in [2, 64], got %d", bits)
	}

	negativeBit := uint64(1) << (uint(bits) - 1)
	negativeBits := ^(negativeBit - 1) // sign-extension mask: all bits at and above the sign bit

	// Values arrive as a float64, so precision above 2^53 is already lost
	// upstream; the reinterpretation is exact for values within that range.

	out := pipeline.Map(upstream, func(_ context.Context, s sample.Sample) (sample.Sample, error) {
		v, ok := s.Value.Number()
		if !ok {
			return s, nil
		}
		u := uint64(v)
		if u&negativeBit != 0 {
			u |= negativeBits
		}
		s.Value = sample.Num(float64(int64(u)))
		return s, nil
	})

	return &pipeline.Stage{Role: pipeline.RoleFilter, Samples: out}, nil
}
