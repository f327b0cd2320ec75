package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/watchtower-sentry/config"
	"github.com/kbukum/watchtower-sentry/glob"
	"github.com/kbukum/watchtower-sentry/kafka"
	"github.com/kbukum/watchtower-sentry/kafka/consumer"
	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
)

func init() {
	pipeline.Register("Realtime", pipeline.ModuleDef{
		Role:   pipeline.RoleSource,
		Params: &RealtimeParams{},
		Build:  buildRealtime,
	})
}

// RealtimeParams configures the Realtime source. Each consumed Kafka
// message holds newline-separated "key value timestamp" records; only keys
// matching one of the glob expressions are forwarded.
type RealtimeParams struct {
	Expressions   []string `yaml:"expressions" validate:"required"`
	Brokers       string   `yaml:"brokers" validate:"required"`
	Consumergroup string   `yaml:"consumergroup" validate:"required"`
	Topicprefix   string   `yaml:"topicprefix" validate:"required"`
	Channelname   string   `yaml:"channelname" validate:"required"`
}

type realtime struct {
	consumer *consumer.Consumer
	matchers []func(string) bool
	log      *logger.Logger
}

func buildRealtime(params map[string]interface{}, pctx *pipeline.Context, log *logger.Logger, _ *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := config.Decode[RealtimeParams](params)
	if err != nil {
		return nil, fmt.Errorf("Realtime: %w", err)
	}
	if len(p.Expressions) == 0 {
		return nil, fmt.Errorf("Realtime: expressions is required")
	}

	matchers := make([]func(string) bool, len(p.Expressions))
	for i, exp := range p.Expressions {
		m, err := glob.MatchFunc(exp)
		if err != nil {
			return nil, fmt.Errorf("Realtime: %w", err)
		}
		matchers[i] = m
	}

	topic := p.Topicprefix + "." + p.Channelname
	cfg := kafka.Config{
		Enabled: true,
		Brokers: strings.Split(p.Brokers, ","),
		GroupID: p.Consumergroup + "." + topic,
	}
	cons, err := consumer.NewConsumer(cfg, topic, log)
	if err != nil {
		return nil, fmt.Errorf("Realtime: %w", err)
	}

	pipeline.Write(pctx, pipeline.ExpressionPort, strings.Join(p.Expressions, ","))

	r := &realtime{consumer: cons, matchers: matchers, log: log}
	return &pipeline.Stage{Role: pipeline.RoleSource, Samples: Stream(log, r.read)}, nil
}

func (r *realtime) read(ctx context.Context, ho *Handoff) error {
	defer r.consumer.Close()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := r.consumer.Consume(cctx, func(_ context.Context, msg kafkago.Message) error {
		batch := r.parseMessage(msg.Value)
		if len(batch) == 0 {
			return nil
		}
		if !ho.Publish(batch) {
			cancel()
		}
		return nil
	})
	if cctx.Err() != nil || ctx.Err() != nil {
		// consumer shut down cooperatively, not an upstream failure
		return nil
	}
	return err
}

// parseMessage splits a message into "key value timestamp" lines, keeping
// only keys matched by one of the configured expressions.
func (r *realtime) parseMessage(buf []byte) []sample.Sample {
	var batch []sample.Sample
	for _, line := range strings.Split(string(buf), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			r.log.Debug("unexpected message format", map[string]interface{}{"line": line})
			continue
		}
		val, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			r.log.Debug("unparseable value", map[string]interface{}{"line": line})
			continue
		}
		t, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			r.log.Debug("unparseable timestamp", map[string]interface{}{"line": line})
			continue
		}
		key := fields[0]
		for _, match := range r.matchers {
			if match(key) {
				batch = append(batch, sample.New(key, val, t))
				break
			}
		}
	}
	return batch
}
