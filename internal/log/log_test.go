package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelInfo)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	Debug("hidden", "k", 1)
	Info("shown", "k", 2)
	Error("failed", errors.New("boom"), "id", "ev-1")

	got := buf.String()
	if strings.Contains(got, "hidden") {
		t.Fatalf("debug line should be filtered: %q", got)
	}
	if !strings.Contains(got, "msg=shown") || !strings.Contains(got, "k=2") {
		t.Fatalf("missing info line: %q", got)
	}
	if !strings.Contains(got, "err=boom") || !strings.Contains(got, "id=ev-1") {
		t.Fatalf("missing error fields: %q", got)
	}
}

func TestOddKeyValuesIgnored(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	Info("odd", "a", 1, "dangling")
	if strings.Contains(buf.String(), "dangling") {
		t.Fatalf("dangling key should be dropped: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
