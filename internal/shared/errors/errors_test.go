package errors

import (
	stderrors "errors"
	"io"
	"testing"
)

func TestError_IsKindAndInner(t *testing.T) {
	err := Network("fetch ", "http://example.com").Base(io.ErrUnexpectedEOF)

	if !Is(err, ErrNetwork) {
		t.Errorf("expected error to match ErrNetwork")
	}
	if !Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected error to match inner io.ErrUnexpectedEOF")
	}
	if Is(err, ErrParse) {
		t.Errorf("network error must not match ErrParse")
	}
}

func TestError_Message(t *testing.T) {
	err := CacheStorage("cannot write ", "dir").Base(stderrors.New("read-only"))

	want := "cache storage error: cannot write dir > read-only"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestError_WrappedByFmt(t *testing.T) {
	inner := Worker("worker 3 panicked")
	wrapped := stderrors.Join(stderrors.New("batch failed"), inner)

	if !Is(wrapped, ErrWorker) {
		t.Errorf("expected joined error to match ErrWorker")
	}

	var target *Error
	if !stderrors.As(wrapped, &target) {
		t.Fatalf("expected errors.As to find *Error")
	}
	if target != inner {
		t.Errorf("As returned a different *Error")
	}
}
