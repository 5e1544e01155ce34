package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestError_Format(t *testing.T) {
	err := New(ErrCodeEditApply, "edit batch rejected").WithContext("uri", "file:///tmp/a.go")

	msg := err.Error()
	if !strings.Contains(msg, "[EDIT_APPLY]") {
		t.Errorf("Expected code in message, got %q", msg)
	}
	if !strings.Contains(msg, "uri: file:///tmp/a.go") {
		t.Errorf("Expected context in message, got %q", msg)
	}
}

func TestWrap_Unwrap(t *testing.T) {
	root := stderrors.New("connection refused")
	err := Wrap(root, ErrCodeTransport, "dial failed")

	if !stderrors.Is(err, root) {
		t.Error("Expected wrapped error to unwrap to root cause")
	}
	if !IsCode(err, ErrCodeTransport) {
		t.Error("Expected TRANSPORT code")
	}
	if IsCode(err, ErrCodeProtocol) {
		t.Error("Did not expect PROTOCOL code")
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "nothing") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(nil); got != "" {
		t.Errorf("GetCode(nil) = %q", got)
	}
	if got := GetCode(stderrors.New("plain")); got != ErrCodeInternal {
		t.Errorf("GetCode(plain) = %q, want INTERNAL", got)
	}
	if got := GetCode(New(ErrCodeURIResolve, "no root")); got != ErrCodeURIResolve {
		t.Errorf("GetCode = %q", got)
	}
}

func TestRetryable(t *testing.T) {
	err := New(ErrCodeTransport, "send failed").WithRetryable(true)
	if !IsRetryable(err) {
		t.Error("Expected retryable")
	}
	if IsRetryable(New(ErrCodeConfigInvalid, "bad endpoint")) {
		t.Error("Expected non-retryable by default")
	}
}
