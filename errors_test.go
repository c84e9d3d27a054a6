package sellergo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

func TestClientErrorError(t *testing.T) {
	err := &ClientError{
		Kind:    KindServer,
		Message: "upstream 503",
		Cause:   errors.New("service unavailable"),
	}

	msg := err.Error()
	if !strings.Contains(msg, string(KindServer)) {
		t.Errorf("Expected the kind in the message, got %q", msg)
	}
	if !strings.Contains(msg, "upstream 503") {
		t.Errorf("Expected the message text, got %q", msg)
	}
	if !strings.Contains(msg, "service unavailable") {
		t.Errorf("Expected the cause, got %q", msg)
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &ClientError{Kind: KindNetwork, Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
}

func TestClientErrorIsMatchesKind(t *testing.T) {
	err := &ClientError{Kind: KindRateLimit, Message: "slow down"}

	if !errors.Is(err, &ClientError{Kind: KindRateLimit}) {
		t.Error("Expected errors.Is to match on kind")
	}
	if errors.Is(err, &ClientError{Kind: KindServer}) {
		t.Error("Expected errors.Is to reject a different kind")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(&ClientError{Kind: KindAuth}); got != KindAuth {
		t.Errorf("Expected %s, got %s", KindAuth, got)
	}
	if got := KindOf(fmt.Errorf("wrapped: %w", &ClientError{Kind: KindValidation})); got != KindValidation {
		t.Errorf("Expected %s through wrapping, got %s", KindValidation, got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("Expected %s for unclassified errors, got %s", KindUnknown, got)
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{400, KindValidation},
		{401, KindAuth},
		{403, KindAuth},
		{404, KindClient},
		{422, KindValidation},
		{429, KindRateLimit},
		{500, KindServer},
		{502, KindServer},
		{503, KindServer},
	}

	for _, tc := range cases {
		if got := classifyStatus(tc.status); got != tc.want {
			t.Errorf("classifyStatus(%d) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestClassifySendError(t *testing.T) {
	if got := classifySendError(context.DeadlineExceeded); got != KindNetwork {
		t.Errorf("Expected %s for a deadline, got %s", KindNetwork, got)
	}
	if got := classifySendError(&net.OpError{Op: "dial", Err: errors.New("refused")}); got != KindNetwork {
		t.Errorf("Expected %s for a dial failure, got %s", KindNetwork, got)
	}
	if got := classifySendError(errors.New("something else")); got != KindUnknown {
		t.Errorf("Expected %s for unclassified failures, got %s", KindUnknown, got)
	}
}

func TestIsTransient(t *testing.T) {
	transient := []ErrorKind{KindRateLimit, KindServer, KindNetwork, KindCircuitOpen}
	for _, kind := range transient {
		if !IsTransient(&ClientError{Kind: kind}) {
			t.Errorf("Expected %s to be transient", kind)
		}
	}

	terminal := []ErrorKind{KindValidation, KindAuth, KindClient, KindInvalidCredentials, KindTokenRefresh, KindRequestSigning}
	for _, kind := range terminal {
		if IsTransient(&ClientError{Kind: kind}) {
			t.Errorf("Expected %s to be terminal", kind)
		}
	}

	if IsTransient(nil) {
		t.Error("Expected nil to be non-transient")
	}
	if !IsTransient(fmt.Errorf("wrapped: %w", ErrCircuitOpen)) {
		t.Error("Expected the circuit-open sentinel to be transient")
	}
}

func TestRetryableKind(t *testing.T) {
	for _, kind := range []ErrorKind{KindRateLimit, KindServer, KindNetwork} {
		if !retryableKind(kind) {
			t.Errorf("Expected %s to be retryable", kind)
		}
	}
	for _, kind := range []ErrorKind{KindValidation, KindAuth, KindClient, KindCircuitOpen, KindTokenRefresh, KindUnknown} {
		if retryableKind(kind) {
			t.Errorf("Expected %s to not be retryable", kind)
		}
	}
}

func TestDebugInfo(t *testing.T) {
	err := &ClientError{
		Kind:       KindServer,
		Message:    "upstream 500",
		StatusCode: 500,
		RequestID:  "req-7",
		Method:     "GET",
		URL:        "https://example.test/orders",
		Attempt:    2,
		MaxRetries: 3,
		Timestamp:  time.Now(),
		Payload:    []byte(`{"errors":[]}`),
	}

	info := err.DebugInfo()
	for _, want := range []string{"req-7", "GET", "500", "2/3", "https://example.test/orders"} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected DebugInfo to contain %q, got:\n%s", want, info)
		}
	}
}
