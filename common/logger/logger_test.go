package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DebugLevel,
		"WARNING": WarnLevel,
		" error ": ErrorLevel,
		"info":    InfoLevel,
		"bogus":   InfoLevel,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Fatalf("%q: expected %d, got %d", name, want, got)
		}
	}
}

func TestObservedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	Infof("hidden %d", 1)
	Warnf("clip %s", "X")
	Errorf("fault %d", 2)
	if Enabled(InfoLevel) || !Enabled(WarnLevel) {
		t.Fatalf("unexpected level filter")
	}
	entries := logs.AllUntimed()
	if len(entries) != 2 || entries[0].Message != "clip X" || entries[1].Message != "fault 2" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	SetLogger(nil)
	Infof("dropped")
	Debug("dropped")
	Warn("dropped")
	Sync()
	if Enabled(ErrorLevel) {
		t.Fatalf("nil logger reports enabled")
	}
}
