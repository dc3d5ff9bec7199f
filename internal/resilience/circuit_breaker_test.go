package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("deepgram", 3, time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state closed, got %s", cb.GetState())
	}
	if cb.Name() != "deepgram" {
		t.Errorf("Expected name deepgram, got %s", cb.Name())
	}
	if err := cb.Call(succeed); err != nil {
		t.Errorf("Expected call to pass, got %v", err)
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Second)

	cb.Call(fail)
	cb.Call(fail)
	if cb.GetState() != StateClosed {
		t.Fatal("Expected state to still be closed after 2 failures")
	}

	cb.Call(fail)
	if cb.GetState() != StateOpen {
		t.Fatal("Expected state to be open after 3 failures")
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected fn not to run while open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Second)

	cb.Call(fail)
	cb.Call(succeed)
	cb.Call(fail)

	if cb.GetState() != StateClosed {
		t.Error("Expected non-consecutive failures to keep the circuit closed")
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 50*time.Millisecond)
	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Fatal("Expected circuit to be open")
	}

	time.Sleep(80 * time.Millisecond)

	if err := cb.Call(succeed); err != nil {
		t.Fatalf("Expected probe to pass, got %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("Expected half-open after first probe, got %s", cb.GetState())
	}

	cb.Call(succeed)
	cb.Call(succeed)
	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after successful probes, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 50*time.Millisecond)
	cb.RecordResult(false)
	time.Sleep(80 * time.Millisecond)

	cb.Call(fail)
	if cb.GetState() != StateOpen {
		t.Errorf("Expected open after failed probe, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_GetStats(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Second)
	cb.RecordResult(true)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requests, failures, rate := cb.GetStats()
	if state != StateClosed {
		t.Errorf("Expected state closed, got %s", state)
	}
	if requests != 3 {
		t.Errorf("Expected 3 requests, got %d", requests)
	}
	if failures != 1 {
		t.Errorf("Expected 1 failure, got %d", failures)
	}
	if rate < 33.0 || rate > 34.0 {
		t.Errorf("Expected failure rate around 33.33%%, got %.2f%%", rate)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Second)
	cb.RecordResult(false)
	cb.Reset()

	state, requests, failures, _ := cb.GetStats()
	if state != StateClosed || requests != 0 || failures != 0 {
		t.Errorf("Expected cleared stats, got %s %d %d", state, requests, failures)
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		StateClosed:      "closed",
		StateOpen:        "open",
		StateHalfOpen:    "half-open",
		CircuitState(42): "unknown",
	}
	for state, expected := range tests {
		if state.String() != expected {
			t.Errorf("Expected %s, got %s", expected, state.String())
		}
	}
}
