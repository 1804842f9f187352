package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New("warn", false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Errorf("Expected info to be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Errorf("Expected error to be enabled at warn level")
	}

	if _, err := New("debug", true); err != nil {
		t.Errorf("New(debug, development) failed: %v", err)
	}
	if _, err := New("loud", false); err == nil {
		t.Errorf("Expected error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Errorf("Expected no-op logger for nil")
	}
}
