package logx

import (
	"errors"
	"testing"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-component")
	if logger.Component() != "test-component" {
		t.Errorf("Expected component 'test-component', got '%s'", logger.Component())
	}
}

func TestIsDebugEnabled_Disabled(t *testing.T) {
	SetDebug(false)
	if IsDebugEnabled("anything") {
		t.Error("Expected debug disabled by default")
	}
}

func TestIsDebugEnabled_AllDomains(t *testing.T) {
	SetDebug(true)
	defer SetDebug(false)

	if !IsDebugEnabled("workflow") {
		t.Error("Expected all domains enabled when no domain filter is set")
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := Wrap(base, "db connect")

	if wrapped == nil {
		t.Fatal("Expected non-nil wrapped error")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Expected wrapped error to match base via errors.Is")
	}
	if wrapped.Error() != "db connect: connection refused" {
		t.Errorf("Unexpected wrapped message: %s", wrapped.Error())
	}
}

func TestWrap_NilError(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Expected nil for nil input error")
	}
}

func TestErrorf(t *testing.T) {
	base := errors.New("boom")
	err := Errorf("task failed: %w", base)
	if !errors.Is(err, base) {
		t.Error("Expected errors.Is to unwrap to base error")
	}
}
