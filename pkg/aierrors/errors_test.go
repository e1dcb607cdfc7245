package aierrors

import (
	"errors"
	"testing"
)

func TestCommunicationErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCommunicationError("dial", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
	var ce *CommunicationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected errors.As to match *CommunicationError")
	}
}

func TestServiceErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := NewServiceError("worker-1", "start", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}

func TestNoMetricValueMessage(t *testing.T) {
	err := NewNoMetricValue("ttft")
	if err.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}
