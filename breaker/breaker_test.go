package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sitegauge/sitegauge/models"
)

func testSettings() Settings {
	return Settings{
		FailureThreshold:  3,
		FailureWindow:     time.Minute,
		Cooldown:          50 * time.Millisecond,
		HalfOpenSuccesses: 2,
	}
}

func failing(calls *int) func() (models.CriterionResult, error) {
	return func() (models.CriterionResult, error) {
		*calls++
		return models.CriterionResult{}, errors.New("boom")
	}
}

func succeeding(calls *int) func() (models.CriterionResult, error) {
	return func() (models.CriterionResult, error) {
		*calls++
		return models.CriterionResult{Score: 7, Status: models.StatusOK}, nil
	}
}

func baseline(string) func(error) models.CriterionResult {
	return func(error) models.CriterionResult {
		return models.CriterionResult{Score: 4, Status: models.StatusFallback}
	}
}

func TestExecute_OpensAfterThresholdFailures(t *testing.T) {
	r := NewRegistry(testSettings())
	calls := 0

	for i := 0; i < 3; i++ {
		res, err := r.Execute("svc", failing(&calls), baseline("svc"))
		if err != nil {
			t.Fatalf("fallback supplied, expected no error, got: %v", err)
		}
		if res.Status != models.StatusFallback {
			t.Errorf("attempt %d: expected fallback result, got status %q", i, res.Status)
		}
	}

	if got := r.State("svc"); got != StateOpen {
		t.Fatalf("after 3 failures state = %q, want %q", got, StateOpen)
	}

	// The 4th call within cooldown must not invoke primary at all.
	before := calls
	res, err := r.Execute("svc", failing(&calls), baseline("svc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != before {
		t.Errorf("primary invoked while circuit open (%d calls)", calls-before)
	}
	if res.Status != models.StatusFallback {
		t.Errorf("expected fallback while open, got status %q", res.Status)
	}
}

func TestExecute_OpenWithoutFallbackFailsFast(t *testing.T) {
	r := NewRegistry(testSettings())
	calls := 0
	for i := 0; i < 3; i++ {
		_, _ = r.Execute("svc", failing(&calls), baseline("svc"))
	}

	before := calls
	_, err := r.Execute("svc", failing(&calls), nil)
	if err == nil {
		t.Fatal("expected CIRCUIT_OPEN error with no fallback")
	}
	var se *models.ScoreError
	if !errors.As(err, &se) || se.Code != models.ErrCodeCircuitOpen {
		t.Errorf("expected ScoreError %s, got: %v", models.ErrCodeCircuitOpen, err)
	}
	if calls != before {
		t.Error("primary invoked while circuit open")
	}
}

func TestExecute_ClosesAfterHalfOpenSuccesses(t *testing.T) {
	r := NewRegistry(testSettings())
	calls := 0
	for i := 0; i < 3; i++ {
		_, _ = r.Execute("svc", failing(&calls), baseline("svc"))
	}
	if r.State("svc") != StateOpen {
		t.Fatal("circuit should be open")
	}

	// Let the cooldown elapse, then probe with successes.
	time.Sleep(60 * time.Millisecond)

	before := calls
	_, _ = r.Execute("svc", succeeding(&calls), baseline("svc"))
	if calls != before+1 {
		t.Fatal("half-open probe should invoke primary")
	}
	if got := r.State("svc"); got != StateHalfOpen {
		t.Fatalf("after one probe success state = %q, want %q", got, StateHalfOpen)
	}

	_, _ = r.Execute("svc", succeeding(&calls), baseline("svc"))
	if got := r.State("svc"); got != StateClosed {
		t.Fatalf("after %d probe successes state = %q, want %q", 2, got, StateClosed)
	}

	// Closed again: primary invoked directly.
	before = calls
	res, err := r.Execute("svc", succeeding(&calls), baseline("svc"))
	if err != nil || calls != before+1 {
		t.Fatalf("closed circuit should invoke primary (err=%v)", err)
	}
	if res.Status != models.StatusOK {
		t.Errorf("expected real result, got status %q", res.Status)
	}
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	r := NewRegistry(testSettings())
	calls := 0
	for i := 0; i < 3; i++ {
		_, _ = r.Execute("svc", failing(&calls), baseline("svc"))
	}

	time.Sleep(60 * time.Millisecond)

	// Single failure while half-open re-opens immediately.
	_, _ = r.Execute("svc", failing(&calls), baseline("svc"))
	if got := r.State("svc"); got != StateOpen {
		t.Fatalf("after half-open failure state = %q, want %q", got, StateOpen)
	}

	// And the next call within the fresh cooldown does not reach primary.
	before := calls
	_, _ = r.Execute("svc", failing(&calls), baseline("svc"))
	if calls != before {
		t.Error("primary invoked during cooldown after half-open failure")
	}
}

func TestExecute_SuccessResetsStreak(t *testing.T) {
	r := NewRegistry(testSettings())
	calls := 0

	_, _ = r.Execute("svc", failing(&calls), baseline("svc"))
	_, _ = r.Execute("svc", failing(&calls), baseline("svc"))
	_, _ = r.Execute("svc", succeeding(&calls), baseline("svc"))
	_, _ = r.Execute("svc", failing(&calls), baseline("svc"))
	_, _ = r.Execute("svc", failing(&calls), baseline("svc"))

	// 2 failures, success, 2 failures: never 3 consecutive.
	if got := r.State("svc"); got != StateClosed {
		t.Fatalf("state = %q, want %q", got, StateClosed)
	}
}

func TestRegistry_ServicesAreIndependent(t *testing.T) {
	r := NewRegistry(testSettings())
	calls := 0
	for i := 0; i < 3; i++ {
		_, _ = r.Execute("bad", failing(&calls), baseline("bad"))
	}

	if r.State("bad") != StateOpen {
		t.Fatal("bad service should be open")
	}
	if r.State("good") != StateClosed {
		t.Error("unrelated service must stay closed")
	}

	before := calls
	res, err := r.Execute("good", succeeding(&calls), baseline("good"))
	if err != nil || calls != before+1 || res.Status != models.StatusOK {
		t.Errorf("good service should execute normally (err=%v, status=%q)", err, res.Status)
	}
}

func TestSnapshot(t *testing.T) {
	r := NewRegistry(testSettings())
	calls := 0
	_, _ = r.Execute("a", succeeding(&calls), nil)
	for i := 0; i < 3; i++ {
		_, _ = r.Execute("b", failing(&calls), baseline("b"))
	}

	snap := r.Snapshot()
	if snap["a"] != StateClosed {
		t.Errorf("a = %q, want closed", snap["a"])
	}
	if snap["b"] != StateOpen {
		t.Errorf("b = %q, want open", snap["b"])
	}
}
