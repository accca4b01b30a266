package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestFromContextCarriesBuildID(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")

	ctx := WithBuildID(context.Background(), "20261018T120000.000000000Z")
	FromContext(ctx).Debug("chunk written", "chunk", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decoding log line %q: %v", buf.String(), err)
	}
	if rec["build_id"] != "20261018T120000.000000000Z" {
		t.Errorf("build_id = %v", rec["build_id"])
	}
	if rec["msg"] != "chunk written" {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "text")
	WithComponent("merge").Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
	WithComponent("merge").Warn("shown")
	if !bytes.Contains(buf.Bytes(), []byte("component=merge")) {
		t.Errorf("component missing: %q", buf.String())
	}
}

func TestBuildIDEmpty(t *testing.T) {
	if id := BuildID(context.Background()); id != "" {
		t.Errorf("BuildID = %q, want empty", id)
	}
}
