package apperr

import (
	"errors"
	"testing"
)

func TestClassifyKind(t *testing.T) {
	err := Transient("fetch timed out", errors.New("dial tcp: timeout"))

	kind, ok := ClassifyKind(err)
	if !ok || kind != KindTransient {
		t.Fatalf("expected transient kind, got %v ok=%v", kind, ok)
	}

	if !IsRetryable(err) {
		t.Errorf("transient error should be retryable")
	}
	if IsDegradable(err) {
		t.Errorf("transient error should not be degradable")
	}
}

func TestClassifyKindUnknownError(t *testing.T) {
	_, ok := ClassifyKind(errors.New("plain error"))
	if ok {
		t.Errorf("plain errors should not classify as an apperr Kind")
	}
}

func TestWrappedErrorUnwraps(t *testing.T) {
	root := errors.New("root cause")
	wrapped := Fatal("could not parse content", root)

	if !errors.Is(wrapped, root) {
		t.Errorf("expected errors.Is to find wrapped root cause")
	}
}

func TestDegradableIsNeverRetryable(t *testing.T) {
	err := Degradable("summarizer failed", nil)
	if IsRetryable(err) {
		t.Errorf("degradable errors must never be counted as job-level retryable")
	}
}
