package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	a := NewZerologAdapterWithLogger(zerolog.New(&buf))

	a.Info("sent",
		String("peer", "http://a"),
		Int("records", 3),
		Bool("compressed", true),
		Duration("took", time.Second),
		Strings("urls", []string{"x", "y"}),
		Err(errors.New("boom")),
	)

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if got["message"] != "sent" {
		t.Errorf("message = %v", got["message"])
	}
	if got["level"] != "info" {
		t.Errorf("level = %v", got["level"])
	}
	if got["peer"] != "http://a" {
		t.Errorf("peer = %v", got["peer"])
	}
	if got["records"] != float64(3) {
		t.Errorf("records = %v", got["records"])
	}
	if got["error"] != "boom" {
		t.Errorf("error = %v", got["error"])
	}
}

func TestZerologAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	a := NewZerologAdapterWithLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	a.Debug("hidden")
	a.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %s", buf.String())
	}
	a.Warn("shown")
	a.Error("shown")
	if n := bytes.Count(buf.Bytes(), []byte("\n")); n != 2 {
		t.Errorf("lines = %d, want 2", n)
	}
}

func TestNewZerologAdapterLevel(t *testing.T) {
	if got := NewZerologAdapterLevel("debug").Logger().GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", got)
	}
	if got := NewZerologAdapterLevel("nonsense").Logger().GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", got)
	}
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NewNoopLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x", Err(errors.New("ignored")))
}
