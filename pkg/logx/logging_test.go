package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"trace", "DEBUG", " info ", "warning", "Error"} {
		if _, ok := ParseLevel(s); !ok {
			t.Fatalf("ParseLevel(%q) not recognized", s)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatal("expected unknown level to be rejected")
	}
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "ledger"))
	log.Warn("write failed", String("id", "a1"), Int("n", 2), Err(errors.New("disk full")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	want := map[string]any{"level": "warn", "message": "write failed", "comp": "ledger", "id": "a1", "n": float64(2), "err": "disk full"}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s = %v, want %v", k, m[k], v)
		}
	}
	if m["caller"] == nil {
		t.Fatal("expected caller field")
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("debug should not be enabled")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	l.Error("nothing happens")
	Nop().With(String("a", "b")).Info("still nothing")
}
