package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

// TestAppErrorMessage tests formatting with and without a wrapped cause.
func TestAppErrorMessage(t *testing.T) {
	plain := New(ErrQuotaExceeded, "record store is full")
	want := "[STORAGE_QUOTA_EXCEEDED] record store is full"
	if plain.Error() != want {
		t.Errorf("Error() = %q, want %q", plain.Error(), want)
	}

	cause := stderrors.New("disk full")
	wrapped := Wrap(ErrStorage, "put failed", cause)
	want = "[STORAGE_ERROR] put failed: disk full"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

// TestAppErrorUnwrap tests that errors.Is sees through AppError.
func TestAppErrorUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	wrapped := Wrap(ErrSyncFailed, "drain failed", cause)

	if !stderrors.Is(wrapped, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

// TestIsCode tests code matching through fmt.Errorf wrapping.
func TestIsCode(t *testing.T) {
	appErr := New(ErrQuotaExceeded, "full")

	if !Is(appErr, ErrQuotaExceeded) {
		t.Error("expected direct code match")
	}
	if Is(appErr, ErrSyncFailed) {
		t.Error("unexpected code match")
	}

	rewrapped := fmt.Errorf("saving customer: %w", appErr)
	if !Is(rewrapped, ErrQuotaExceeded) {
		t.Error("expected code match through fmt.Errorf %%w chain")
	}

	if Is(stderrors.New("plain"), ErrQuotaExceeded) {
		t.Error("plain error must not match any code")
	}
	if Is(nil, ErrQuotaExceeded) {
		t.Error("nil error must not match any code")
	}
}
