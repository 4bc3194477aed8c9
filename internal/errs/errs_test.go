package errs

import (
	"errors"
	"testing"
)

func TestTransientUnwrap(t *testing.T) {
	base := errors.New("dial tcp: timeout")
	err := &Transient{Op: "put", Err: base}

	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to find wrapped base error")
	}

	var te *Transient
	if !errors.As(err, &te) {
		t.Fatalf("expected errors.As to match *Transient")
	}
	if te.Op != "put" {
		t.Fatalf("Op = %q, want %q", te.Op, "put")
	}
}

func TestPermanentUnwrap(t *testing.T) {
	base := errors.New("400 bad request")
	err := &Permanent{Op: "fetch", Err: base}
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to find wrapped base error")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "duration", Reason: "must be positive"}
	want := "validation: duration: must be positive"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
