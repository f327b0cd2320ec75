package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/watchtower-sentry/config"
	"github.com/kbukum/watchtower-sentry/httpclient"
	"github.com/kbukum/watchtower-sentry/httpclient/rest"
	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func init() {
	pipeline.Register("Historical", pipeline.ModuleDef{
		Role:   pipeline.RoleSource,
		Params: &HistoricalParams{},
		Build:  buildHistorical,
	})
}

// HistoricalParams configures the Historical source. Starttime/Endtime use
// the format "YYYY-mm-dd [HH:MM[:SS]]" interpreted as UTC. Batchduration
// is how many seconds of data each request fetches.
type HistoricalParams struct {
	Expression    string                 `yaml:"expression" validate:"required"`
	Starttime     string                 `yaml:"starttime" validate:"required"`
	Endtime       string                 `yaml:"endtime" validate:"required"`
	URL           string                 `yaml:"url" validate:"required"`
	Batchduration int64                  `yaml:"batchduration" validate:"required"`
	Ignorenull    bool                   `yaml:"ignorenull"`
	Queryparams   map[string]interface{} `yaml:"queryparams"`
}

// historicalSeries is one key's slice of the API response; values are
// stamped t = from + i*step.
type historicalSeries struct {
	From   int64      `json:"from"`
	Step   int64      `json:"step"`
	Values []*float64 `json:"values"`
}

type historicalResponse struct {
	QueryParameters struct {
		From  int64 `json:"from"`
		Until int64 `json:"until"`
	} `json:"queryParameters"`
	Data struct {
		Series map[string]historicalSeries `json:"series"`
	} `json:"data"`
}

// historical pages through an archived time range one batch at a time,
// feeding the handoff from its reader goroutine.
type historical struct {
	client      *rest.Client
	expression  string
	start, end  int64
	batch       int64
	ignoreNull  bool
	queryParams map[string]interface{}
	log         *logger.Logger
}

func buildHistorical(params map[string]interface{}, pctx *pipeline.Context, log *logger.Logger, _ *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := config.Decode[HistoricalParams](params)
	if err != nil {
		return nil, fmt.Errorf("Historical: %w", err)
	}
	if p.Batchduration <= 0 {
		return nil, fmt.Errorf("Historical: batchduration must be positive")
	}

	start, err := parseTimeUTC(p.Starttime)
	if err != nil {
		return nil, fmt.Errorf("Historical: starttime: %w", err)
	}
	end, err := parseTimeUTC(p.Endtime)
	if err != nil {
		return nil, fmt.Errorf("Historical: endtime: %w", err)
	}
	if start >= end {
		return nil, fmt.Errorf("Historical: starttime must be before endtime")
	}

	client, err := rest.New(httpclient.Config{
		BaseURL:        p.URL,
		Timeout:        60 * time.Second,
		Retry:          httpclient.DefaultRetryConfig(),
		CircuitBreaker: httpclient.DefaultCircuitBreakerConfig("historical"),
		RateLimiter:    httpclient.DefaultRateLimiterConfig("historical"),
	})
	if err != nil {
		return nil, fmt.Errorf("Historical: %w", err)
	}

	pipeline.Write(pctx, pipeline.ExpressionPort, p.Expression)

	h := &historical{
		client:      client,
		expression:  p.Expression,
		start:       start,
		end:         end,
		batch:       p.Batchduration,
		ignoreNull:  p.Ignorenull,
		queryParams: p.Queryparams,
		log:         log,
	}
	return &pipeline.Stage{Role: pipeline.RoleSource, Samples: Stream(log, h.read)}, nil
}

func (h *historical) read(ctx context.Context, ho *Handoff) error {
	endBatch := h.start
	for endBatch < h.end && !ho.Closed() {
		startBatch := endBatch
		endBatch += h.batch
		if endBatch > h.end {
			endBatch = h.end
		}

		body := map[string]interface{}{
			"from":       startBatch,
			"until":      endBatch,
			"expression": h.expression,
		}
		for k, v := range h.queryParams {
			body[k] = v
		}

		h.log.Debug("fetching batch", map[string]interface{}{"from": startBatch, "until": endBatch})
		resp, err := rest.Post[historicalResponse](ctx, h.client, "", body)
		if err != nil {
			return fmt.Errorf("Historical: fetching %d-%d: %w", startBatch, endBatch, err)
		}

		var batch []sample.Sample
		for key, rec := range resp.Data.Data.Series {
			t := rec.From
			for _, v := range rec.Values {
				if v == nil {
					if !h.ignoreNull {
						batch = append(batch, sample.NewNull(key, t))
					}
				} else {
					batch = append(batch, sample.New(key, *v, t))
				}
				t += rec.Step
			}
		}
		if !ho.Publish(batch) {
			return nil
		}
	}
	return nil
}

// parseTimeUTC accepts "YYYY-mm-dd", "YYYY-mm-dd HH:MM", or
// "YYYY-mm-dd HH:MM:SS" and returns seconds since epoch.
func parseTimeUTC(s string) (int64, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("cannot parse time %q", s)
}
