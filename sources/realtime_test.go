package sources

import (
	"testing"

	"github.com/kbukum/watchtower-sentry/glob"
	"github.com/kbukum/watchtower-sentry/logger"
)

func TestRealtimeParseMessage(t *testing.T) {
	match, err := glob.MatchFunc("aaa.*.zzz")
	if err != nil {
		t.Fatal(err)
	}
	r := &realtime{
		matchers: []func(string) bool{match},
		log:      logger.NewDefault("test"),
	}

	msg := []byte("aaa.one.zzz 14000 1000000000\n" +
		"other.key 5 1000000000\n" + // filtered out
		"garbage line\n" + // wrong field count
		"aaa.two.zzz 12000 1000000000")

	batch := r.parseMessage(msg)
	if len(batch) != 2 {
		t.Fatalf("len(batch) = %d, want 2: %+v", len(batch), batch)
	}
	if batch[0].Key != "aaa.one.zzz" || batch[0].Time != 1000000000 {
		t.Errorf("batch[0] = %+v", batch[0])
	}
	if v, _ := batch[1].Value.Number(); v != 12000 {
		t.Errorf("batch[1] value = %v, want 12000", v)
	}
}

func TestRealtimeParseMessageUnparseableFields(t *testing.T) {
	match, _ := glob.MatchFunc("*")
	r := &realtime{matchers: []func(string) bool{match}, log: logger.NewDefault("test")}

	batch := r.parseMessage([]byte("key notanumber 10\nkey 5 notatime"))
	if len(batch) != 0 {
		t.Fatalf("batch = %+v, want empty", batch)
	}
}
