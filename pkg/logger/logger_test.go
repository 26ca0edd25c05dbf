package logger

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestStringAppenderCollectDrains(t *testing.T) {
	a := NewStringAppender()
	a.Append("first")
	a.Append("second\n")

	got := a.Collect()
	if got != "first\nsecond\n" {
		t.Errorf("collect = %q", got)
	}
	if a.Collect() != "" {
		t.Error("collect must drain the buffer")
	}
}

func TestStringAppenderClosedDropsAppends(t *testing.T) {
	a := NewStringAppender()
	a.Append("kept")
	a.Close()
	a.Append("dropped")
	if a.Collect() != "" {
		t.Error("appends after close must be dropped")
	}
}

func TestNopAppender(t *testing.T) {
	a := NopAppender{}
	a.Append("anything")
	if a.Collect() != "" {
		t.Error("nop appender must discard everything")
	}
}

func TestScenarioLoggerTees(t *testing.T) {
	var global bytes.Buffer
	InitWriter(&global)
	t.Cleanup(func() { InitWriter(io.Discard) })

	a := NewStringAppender()
	l := New(a)
	l.Info("step %d done", 3)
	l.Print("raw output")

	captured := a.Collect()
	if !strings.Contains(captured, "[INFO] step 3 done") {
		t.Errorf("captured = %q", captured)
	}
	if !strings.Contains(captured, "raw output") || strings.Contains(captured, "[INFO] raw output") {
		t.Errorf("print must capture without a level prefix: %q", captured)
	}
	if !strings.Contains(global.String(), "step 3 done") {
		t.Errorf("global log = %q", global.String())
	}
}

func TestNewLoggerNilAppender(t *testing.T) {
	l := New(nil)
	l.Info("must not panic")
	if l.Appender().Collect() != "" {
		t.Error("nil appender must fall back to a nop sink")
	}
}
