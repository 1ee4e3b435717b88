package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/user/depthcap/pkg/ports"
)

func TestConsoleLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(ports.LevelWarn, &buf)

	log.Debug("debug line %d", 1)
	log.Info("info line %d", 2)
	log.Warn("warn line %d", 3)
	log.Error("error line %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "warn line 3") || !strings.Contains(out, "error line 4") {
		t.Errorf("expected warn and error lines, got %q", out)
	}
}

func TestConsoleLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(ports.LevelDebug, &buf).WithComponent("sync")

	log.Info("slot table size %d", 5)

	if got := buf.String(); got != "[sync] slot table size 5\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestConsoleLogger_QuietSuppressesAll(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(ports.LevelQuiet, &buf)

	log.Error("fatal line")

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	level, err := ports.ParseLogLevel("warn")
	if err != nil || level != ports.LevelWarn {
		t.Errorf("expected warn, got %v (%v)", level, err)
	}

	if _, err := ports.ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
