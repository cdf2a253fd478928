package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[len(lines)-1] == "" {
		t.Fatalf("no output captured")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &payload); err != nil {
		t.Fatalf("invalid json log: %v\n%s", err, buf.String())
	}
	return payload
}

func TestLogger_IncludesStackAndServiceOnError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("concertbot-test", &buf)
	log.Error().Stack().Err(errors.New("boom")).Msg("save failed")

	payload := lastLine(t, &buf)
	if svc, _ := payload["service"].(string); svc != "concertbot-test" {
		t.Fatalf("expected service=concertbot-test, got %v", payload["service"])
	}
	if lvl, _ := payload["level"].(string); lvl != "error" {
		t.Fatalf("expected level=error, got %v", payload["level"])
	}
	if _, ok := payload["stack"]; !ok {
		t.Fatalf("expected stack field in error log: %s", buf.String())
	}
}

func TestLogger_InfoHasTimestamp(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("svc", &buf)
	log.Info().Str("token", "abc").Msg("preview cached")

	payload := lastLine(t, &buf)
	if _, ok := payload["time"]; !ok {
		t.Fatalf("expected time field: %v", payload)
	}
	if payload["token"] != "abc" {
		t.Fatalf("expected token field: %v", payload)
	}
}

func TestWithLevel(t *testing.T) {
	var buf bytes.Buffer
	log, ok := WithLevel(NewWithWriter("svc", &buf), "warn")
	if !ok {
		t.Fatal("warn should be a known level")
	}
	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
	log.Warn().Msg("kept")
	if lastLine(t, &buf)["message"] != "kept" {
		t.Fatalf("expected warn line: %s", buf.String())
	}

	if _, ok := WithLevel(log, "loud"); ok {
		t.Fatal("unknown level accepted")
	}
}

func TestNew_DebugFilteredByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("svc", &buf)
	log.Debug().Msg("noise")
	if buf.Len() != 0 {
		t.Fatalf("debug logged by default: %s", buf.String())
	}
}
