package worker

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_TripsAfterFailureThreshold(t *testing.T) {
	cb := newCircuitBreaker("test")
	cb.failureThreshold = 2
	boom := errors.New("boom")

	if err := cb.Execute(func() error { return boom }); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
	if cb.State() != string(stateClosed) {
		t.Fatalf("expected closed after one failure, got %s", cb.State())
	}

	if err := cb.Execute(func() error { return boom }); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
	if cb.State() != string(stateOpen) {
		t.Fatalf("expected open after threshold failures, got %s", cb.State())
	}

	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen while breaker is open, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := newCircuitBreaker("test")
	cb.failureThreshold = 1
	cb.successThreshold = 2
	cb.cooldown = 10 * time.Millisecond

	if err := cb.Execute(func() error { return errors.New("fail") }); err == nil {
		t.Fatalf("expected failure")
	}
	if cb.State() != string(stateOpen) {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open request to pass through, got %v", err)
	}
	if cb.State() != string(stateHalfOpen) {
		t.Fatalf("expected half-open after one success, got %s", cb.State())
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected second half-open success, got %v", err)
	}
	if cb.State() != string(stateClosed) {
		t.Fatalf("expected closed after successThreshold successes, got %s", cb.State())
	}
}

func TestTranslateErrorMessage_MapsCircuitOpenToPoolFull(t *testing.T) {
	if got := translateErrorMessage(ErrCircuitOpen); got != "translation pool full" {
		t.Fatalf("expected pool full message, got %q", got)
	}
	other := errors.New("some other failure")
	if got := translateErrorMessage(other); got != other.Error() {
		t.Fatalf("expected passthrough message, got %q", got)
	}
}
