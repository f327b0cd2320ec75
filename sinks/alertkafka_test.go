package sinks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kbukum/watchtower-sentry/logger"
	"github.com/kbukum/watchtower-sentry/sample"
)

func newTestAlerter(t *testing.T, minduration int64, waitnormal bool) (*alertKafka, *[]alertRecord) {
	t.Helper()
	lo, hi := 0.5, 2.0
	var records []alertRecord
	a := &alertKafka{
		fqid:          "test.fqid",
		name:          "test source",
		topic:         "alerts",
		method:        "median",
		min:           &lo,
		max:           &hi,
		waitnormal:    waitnormal,
		log:           logger.NewDefault("test"),
		status:        make(map[string]alertStatus),
		pending:       make(map[string]pendingAlert),
		pendingNormal: make(map[string]pendingAlert),
	}
	if minduration > 0 {
		a.minduration = minduration
		a.hasMinduration = true
	}
	a.produce = func(_ context.Context, _ string, payload []byte) error {
		var rec alertRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			t.Fatalf("bad record payload: %v", err)
		}
		records = append(records, rec)
		return nil
	}
	return a, &records
}

func feed(t *testing.T, a *alertKafka, key string, values []float64, start, step int64) {
	t.Helper()
	for i, v := range values {
		if err := a.step(context.Background(), sample.New(key, v, start+int64(i)*step)); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
}

func TestAlertShortEventSuppressed(t *testing.T) {
	a, records := newTestAlerter(t, 30, false)
	// two low points spanning 10s, then back to normal: shorter than minduration
	feed(t, a, "k", []float64{1.0, 0.2, 0.3, 1.0, 1.0}, 1000, 10)
	if len(*records) != 0 {
		t.Fatalf("records = %+v, want none for an event shorter than minduration", *records)
	}
}

func TestAlertLongEventEmitsOnceWithStartTime(t *testing.T) {
	a, records := newTestAlerter(t, 30, false)
	// low from t=1010 through t=1050, return to normal at t=1060
	feed(t, a, "k", []float64{1.0, 0.2, 0.2, 0.2, 0.2, 0.2, 1.0}, 1000, 10)

	if len(*records) != 2 {
		t.Fatalf("len(records) = %d, want alert + return-to-normal", len(*records))
	}
	alert := (*records)[0]
	if alert.Level != "critical" {
		t.Errorf("level = %q, want critical", alert.Level)
	}
	if alert.Time != 1010 {
		t.Errorf("alert time = %d, want event start 1010", alert.Time)
	}
	if alert.Violations[0].Condition != "< 0.5" {
		t.Errorf("condition = %q", alert.Violations[0].Condition)
	}
	if alert.Violations[0].Value != 0.2 {
		t.Errorf("value = %v, want the pending value 0.2", alert.Violations[0].Value)
	}
	back := (*records)[1]
	if back.Level != "normal" || back.Time != 1060 {
		t.Errorf("return-to-normal = %+v", back)
	}
}

func TestAlertImmediateWithoutMinduration(t *testing.T) {
	a, records := newTestAlerter(t, 0, false)
	feed(t, a, "k", []float64{1.0, 3.0, 3.0, 1.0}, 0, 10)
	if len(*records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(*records))
	}
	if (*records)[0].Violations[0].Condition != "> 2" {
		t.Errorf("condition = %q", (*records)[0].Violations[0].Condition)
	}
	if (*records)[0].Time != 10 || (*records)[1].Time != 30 {
		t.Errorf("times = %d, %d", (*records)[0].Time, (*records)[1].Time)
	}
}

func TestAlertWaitnormalDelaysReturnToNormal(t *testing.T) {
	a, records := newTestAlerter(t, 30, true)
	// long low event, then a long stretch of normal
	feed(t, a, "k", []float64{0.2, 0.2, 0.2, 0.2, 0.2, 1.0, 1.0, 1.0, 1.0, 1.0}, 0, 10)
	if len(*records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(*records))
	}
	if (*records)[1].Level != "normal" || (*records)[1].Time != 50 {
		t.Errorf("return-to-normal = %+v, want stamped with normal-start 50", (*records)[1])
	}
}

func TestAlertTripleCarriesActualAndPredicted(t *testing.T) {
	a, records := newTestAlerter(t, 0, false)
	ratio, predicted := 0.2, 14000.0
	s := sample.Sample{
		Key:   "k",
		Time:  100,
		Value: sample.NewTriple(&ratio, 2800, &predicted),
	}
	if err := a.step(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if len(*records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(*records))
	}
	v := (*records)[0].Violations[0]
	if v.Value != 2800 {
		t.Errorf("value = %v, want the actual 2800", v.Value)
	}
	if v.HistoryValue == nil || *v.HistoryValue != 14000 {
		t.Errorf("history_value = %v, want 14000", v.HistoryValue)
	}
}

func TestAlertNullAndNilRatioSkipped(t *testing.T) {
	a, records := newTestAlerter(t, 0, false)
	if err := a.step(context.Background(), sample.NewNull("k", 0)); err != nil {
		t.Fatal(err)
	}
	if err := a.step(context.Background(), sample.Sample{Key: "k", Time: 10, Value: sample.NewTriple(nil, 1, nil)}); err != nil {
		t.Fatal(err)
	}
	if len(*records) != 0 {
		t.Fatalf("records = %+v, want none", *records)
	}
}
