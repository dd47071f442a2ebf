package logger

import (
	"bytes"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return New(Config{
		Level:    level,
		Output:   buf,
		Colorize: false,
		ShowTime: false,
	})
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, WARN)

	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warnf("warn %d", 3)
	l.Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below WARN should be dropped, got:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] warn 3") {
		t.Errorf("missing warn line, got:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("missing error line, got:\n%s", out)
	}
}

func TestErrorIsNotWarn(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, ERROR)

	l.Warn("quiet")
	l.Error("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("WARN should be filtered at ERROR level, got:\n%s", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("ERROR should pass at ERROR level, got:\n%s", out)
	}
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: DEBUG, Output: &buf, Prefix: "[soundz]"})
	child := l.With("[ingest]")

	child.Info("added")
	if got := buf.String(); !strings.Contains(got, "[soundz] [ingest] added") {
		t.Errorf("unexpected child output: %q", got)
	}

	buf.Reset()
	l.Info("parent")
	if got := buf.String(); strings.Contains(got, "[ingest]") {
		t.Errorf("parent picked up child prefix: %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", DEBUG, true},
		{"INFO", INFO, true},
		{"Warning", WARN, true},
		{" error ", ERROR, true},
		{"fatal", FATAL, true},
		{"", INFO, false},
		{"loud", INFO, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevelString(t *testing.T) {
	if ERROR.String() != "ERROR" || LogLevel(42).String() != "UNKNOWN" {
		t.Error("unexpected level names")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, INFO)
	l.SetLevel(DEBUG)
	if l.Level() != DEBUG {
		t.Fatalf("expected DEBUG, got %v", l.Level())
	}
	l.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug message missing after SetLevel")
	}
}

func TestSetLevelName(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, INFO)

	if err := l.SetLevelName("warning"); err != nil {
		t.Fatalf("SetLevelName: %v", err)
	}
	if l.Level() != WARN {
		t.Errorf("expected WARN, got %v", l.Level())
	}
	if err := l.SetLevelName("chatty"); err == nil {
		t.Error("expected an error for an unknown level")
	}
	if l.Level() != WARN {
		t.Errorf("level changed by a rejected name: %v", l.Level())
	}
}
