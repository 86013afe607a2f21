package sysutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel_AllVariants(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		SetLogLevel(tc.in)
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	origLogger, origLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() { log.Logger = origLogger; zerolog.SetGlobalLevel(origLevel) })

	var buf bytes.Buffer
	SetupLogger(&buf, "warn", false)
	log.Info().Msg("hidden")
	log.Warn().Str("stage", "facts").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["stage"] != "facts" || rec["message"] != "shown" || rec["time"] == nil {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestSetupLogger_Pretty(t *testing.T) {
	origLogger, origLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() { log.Logger = origLogger; zerolog.SetGlobalLevel(origLevel) })

	var buf bytes.Buffer
	SetupLogger(&buf, "info", true)
	log.Info().Msg("hello")

	if out := buf.String(); strings.HasPrefix(out, "{") || !strings.Contains(out, "hello") {
		t.Fatalf("expected console output, got %q", out)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("FirstNonEmpty() = %q; want \"\"", got)
	}
	if got := FirstNonEmpty(" ", "\t", "\n"); got != "" {
		t.Fatalf("FirstNonEmpty(blanks) = %q; want \"\"", got)
	}
	if got := FirstNonEmpty("", "events.csv", "data/events.csv"); got != "events.csv" {
		t.Fatalf("FirstNonEmpty(...) = %q; want events.csv", got)
	}
}
