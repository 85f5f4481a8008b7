package tasks

import "testing"

func TestValidTransitions(t *testing.T) {
	valid := []struct{ from, to Status }{
		{StatusPending, StatusAssessing},
		{StatusAssessing, StatusExecuting},
		{StatusExecuting, StatusQualityGate},
		{StatusQualityGate, StatusExecuting}, // retry edge
		{StatusQualityGate, StatusApproved},
		{StatusQualityGate, StatusRejected},
		{StatusApproved, StatusCompleted},
		{StatusRejected, StatusCompleted},
		{StatusFailed, StatusCompleted},
		{StatusExecuting, StatusFailed},
	}

	for _, tr := range valid {
		if !IsValidTransition(tr.from, tr.to) {
			t.Errorf("Expected %s -> %s to be valid", tr.from, tr.to)
		}
	}
}

func TestInvalidTransitions(t *testing.T) {
	invalid := []struct{ from, to Status }{
		{StatusPending, StatusExecuting},    // must assess first
		{StatusApproved, StatusExecuting},   // outcomes never re-run
		{StatusCompleted, StatusPending},    // terminal
		{StatusCompleted, StatusExecuting},  // terminal
		{StatusRejected, StatusApproved},    // outcomes are final
		{StatusFailed, StatusExecuting},     // failures do not retry
		{StatusQualityGate, StatusPending},  // no backwards edge
	}

	for _, tr := range invalid {
		if IsValidTransition(tr.from, tr.to) {
			t.Errorf("Expected %s -> %s to be invalid", tr.from, tr.to)
		}
	}
}

func TestValidateTransition_Error(t *testing.T) {
	err := ValidateTransition(StatusCompleted, StatusPending)
	if err == nil {
		t.Fatal("Expected error for illegal transition")
	}
	expected := "invalid status transition: COMPLETED -> PENDING"
	if err.Error() != expected {
		t.Errorf("Unexpected error message: %q", err.Error())
	}
}

func TestIsTerminal(t *testing.T) {
	if !StatusCompleted.IsTerminal() {
		t.Error("Expected COMPLETED to be terminal")
	}
	for _, s := range []Status{StatusApproved, StatusRejected, StatusFailed, StatusExecuting} {
		if s.IsTerminal() {
			t.Errorf("Expected %s not terminal", s)
		}
	}
}

func TestIsOutcome(t *testing.T) {
	for _, s := range []Status{StatusApproved, StatusRejected, StatusFailed} {
		if !s.IsOutcome() {
			t.Errorf("Expected %s to be an outcome", s)
		}
	}
	if StatusExecuting.IsOutcome() {
		t.Error("Expected EXECUTING not to be an outcome")
	}
}
