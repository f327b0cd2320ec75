package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/watchtower-sentry/config"
	"github.com/kbukum/watchtower-sentry/kafka"
	"github.com/kbukum/watchtower-sentry/kafka/producer"
	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/pipeline"
	"github.com/kbukum/watchtower-sentry/sample"
	"github.com/kbukum/watchtower-sentry/telemetry"
)

func init() {
	pipeline.Register("AlertKafka", pipeline.ModuleDef{
		Role:   pipeline.RoleSink,
		Params: &AlertKafkaParams{},
		Build:  buildAlertKafka,
	})
}

// AlertKafkaParams configures AlertKafka. At least one of Min (< 1.0) or
// Max (> 1.0) is required. Minduration suppresses events shorter than the
// given number of seconds; Waitnormal applies the same suppression to the
// return-to-normal transition. Disable logs alert records instead of
// producing them.
type AlertKafkaParams struct {
	Fqid        string   `yaml:"fqid" validate:"required"`
	Name        string   `yaml:"name" validate:"required"`
	Min         *float64 `yaml:"min"`
	Max         *float64 `yaml:"max"`
	Minduration *int64   `yaml:"minduration"`
	Brokers     string   `yaml:"brokers" validate:"required"`
	Topic       string   `yaml:"topic" validate:"required"`
	Disable     bool     `yaml:"disable"`
	Waitnormal  bool     `yaml:"waitnormal"`
}

type alertStatus int

const (
	statusLow    alertStatus = -1
	statusNormal alertStatus = 0
	statusHigh   alertStatus = 1
)

// pendingAlert is a suppressed transition awaiting minduration.
type pendingAlert struct {
	t         int64
	value     float64
	actual    *float64
	predicted *float64
}

type alertViolation struct {
	Expression   string   `json:"expression"`
	Condition    string   `json:"condition"`
	Value        float64  `json:"value"`
	HistoryValue *float64 `json:"history_value"`
	History      any      `json:"history"`
	Time         int64    `json:"time"`
}

type alertRecord struct {
	Fqid              string           `json:"fqid"`
	Name              string           `json:"name"`
	Level             string           `json:"level"`
	Time              int64            `json:"time"`
	Expression        any              `json:"expression"`
	HistoryExpression any              `json:"history_expression"`
	Method            string           `json:"method"`
	Violations        []alertViolation `json:"violations"`
}

// alertKafka thresholds the incoming ratio stream into normal/high/low
// statuses and publishes one alert record per transition, with dual
// pending/pending-normal records suppressing events shorter than
// minduration.
type alertKafka struct {
	fqid, name, topic string
	method            string
	min, max          *float64
	minduration       int64
	hasMinduration    bool
	waitnormal        bool
	log               *logger.Logger

	// produce publishes one encoded record; swapped for a logger when
	// disable is set.
	produce func(ctx context.Context, key string, payload []byte) error

	status        map[string]alertStatus
	pending       map[string]pendingAlert
	pendingNormal map[string]pendingAlert
}

func buildAlertKafka(params map[string]interface{}, pctx *pipeline.Context, log *logger.Logger, upstream *pipeline.Pipeline[sample.Sample]) (*pipeline.Stage, error) {
	p, err := config.Decode[AlertKafkaParams](params)
	if err != nil {
		return nil, fmt.Errorf("AlertKafka: %w", err)
	}
	if p.Min == nil && p.Max == nil {
		return nil, fmt.Errorf("AlertKafka: at least one of min or max is required")
	}
	if p.Min != nil && *p.Min >= 1.0 {
		return nil, fmt.Errorf("AlertKafka: min must be < 1.0, got %v", *p.Min)
	}
	if p.Max != nil && *p.Max <= 1.0 {
		return nil, fmt.Errorf("AlertKafka: max must be > 1.0, got %v", *p.Max)
	}

	method, err := pipeline.RequireString(pctx, pipeline.MethodPort, "AlertKafka")
	if err != nil {
		return nil, err
	}

	a := &alertKafka{
		fqid:          p.Fqid,
		name:          p.Name,
		topic:         p.Topic,
		method:        method,
		min:           p.Min,
		max:           p.Max,
		waitnormal:    p.Waitnormal,
		log:           log,
		status:        make(map[string]alertStatus),
		pending:       make(map[string]pendingAlert),
		pendingNormal: make(map[string]pendingAlert),
	}
	if p.Minduration != nil && *p.Minduration > 0 {
		a.minduration = *p.Minduration
		a.hasMinduration = true
	}

	var prod *producer.Producer
	if p.Disable {
		a.produce = func(_ context.Context, _ string, payload []byte) error {
			log.Info("alert (kafka disabled)", map[string]interface{}{"record": string(payload)})
			return nil
		}
	} else {
		cfg := kafka.Config{Enabled: true, Brokers: strings.Split(p.Brokers, ",")}
		prod, err = producer.NewLazyProducer(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("AlertKafka: %w", err)
		}
		a.produce = func(ctx context.Context, key string, payload []byte) error {
			return prod.WriteMessages(ctx, kafkago.Message{
				Topic: a.topic,
				Key:   []byte(key),
				Value: payload,
			})
		}
	}

	run := pipeline.NewRunnable(func(ctx context.Context) error {
		defer func() {
			if prod != nil {
				if err := prod.Close(); err != nil {
					log.Error("closing producer", map[string]interface{}{"error": err.Error()})
				}
			}
		}()
		return pipeline.ForEach(ctx, upstream, a.step)
	})

	return &pipeline.Stage{Role: pipeline.RoleSink, Runnable: run}, nil
}

func (a *alertKafka) conditionLabel(status alertStatus) string {
	switch status {
	case statusLow:
		return fmt.Sprintf("< %v", *a.min)
	case statusHigh:
		return fmt.Sprintf("> %v", *a.max)
	default:
		return "normal"
	}
}

func (a *alertKafka) emit(ctx context.Context, status alertStatus, t int64, key string, value float64, actual, predicted *float64) error {
	level := "critical"
	if status == statusNormal {
		level = "normal"
	}
	outValue := value
	if actual != nil {
		outValue = *actual
	}
	record := alertRecord{
		Fqid:   a.fqid,
		Name:   a.name,
		Level:  level,
		Time:   t,
		Method: a.method,
		Violations: []alertViolation{{
			Expression:   key,
			Condition:    a.conditionLabel(status),
			Value:        outValue,
			HistoryValue: predicted,
			Time:         t,
		}},
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("AlertKafka: encoding record: %w", err)
	}
	telemetry.Pipeline().RecordAlert(ctx, level)
	if err := a.produce(ctx, key, payload); err != nil {
		// delivery failures are logged, not fatal
		a.log.Error("alert delivery failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
	return nil
}

func (a *alertKafka) step(ctx context.Context, s sample.Sample) error {
	var value float64
	var actual, predicted *float64

	switch s.Value.Kind() {
	case sample.KindNull:
		return nil
	case sample.KindNumber:
		value, _ = s.Value.Number()
	case sample.KindTriple:
		tr, _ := s.Value.Triple()
		if tr.Ratio == nil {
			return nil
		}
		value = *tr.Ratio
		av := tr.Actual
		actual = &av
		predicted = tr.Predicted
	}

	key := s.Key
	t := s.Time

	if _, seen := a.status[key]; !seen {
		a.status[key] = statusNormal
	}

	status := statusNormal
	switch {
	case a.min != nil && value < *a.min:
		status = statusLow
	case a.max != nil && value > *a.max:
		status = statusHigh
	}

	switch {
	case status != a.status[key]:
		a.status[key] = status

		if !a.hasMinduration {
			return a.emit(ctx, status, t, key, value, actual, predicted)
		}

		if status == statusNormal {
			if pend, ok := a.pending[key]; ok {
				// the non-normal event ended before it was ever emitted
				a.log.Info("discarding suppressed alert", map[string]interface{}{
					"key": key, "init_t": pend.t, "t": t,
				})
				delete(a.pending, key)
			} else if a.waitnormal {
				if _, ok := a.pendingNormal[key]; !ok {
					a.pendingNormal[key] = pendingAlert{t: t, value: value, actual: actual, predicted: predicted}
					a.log.Info("suppressing return-to-normal", map[string]interface{}{"key": key})
				}
			} else {
				return a.emit(ctx, status, t, key, value, actual, predicted)
			}
		} else {
			if pend, ok := a.pendingNormal[key]; a.waitnormal && ok {
				// return-to-normal aborted, stay in alert
				a.log.Info("discarding suppressed return-to-normal", map[string]interface{}{
					"key": key, "init_t": pend.t, "t": t,
				})
				delete(a.pendingNormal, key)
			} else {
				a.pending[key] = pendingAlert{t: t, value: value, actual: actual, predicted: predicted}
				a.log.Info("suppressing alert", map[string]interface{}{"key": key})
			}
		}

	case status != statusNormal:
		// continuation of a non-normal event
		if pend, ok := a.pending[key]; ok {
			if pend.t+a.minduration <= t {
				delete(a.pending, key)
				return a.emit(ctx, status, pend.t, key, pend.value, pend.actual, pend.predicted)
			}
			a.log.Debug("continuing to suppress alert", map[string]interface{}{
				"key": key, "duration": t - pend.t,
			})
		}

	default:
		// continuation of normal
		if pend, ok := a.pendingNormal[key]; a.waitnormal && ok {
			if pend.t+a.minduration <= t {
				delete(a.pendingNormal, key)
				return a.emit(ctx, statusNormal, pend.t, key, pend.value, pend.actual, pend.predicted)
			}
			a.log.Debug("continuing to suppress return-to-normal", map[string]interface{}{
				"key": key, "duration": t - pend.t,
			})
		}
	}
	return nil
}
