package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "type not found")
		if err.Error() != "[NOT_FOUND] type not found" {
			t.Errorf("expected [NOT_FOUND] type not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("exit status 1")
		err := Wrap(original, CodeToolingError, "go test failed to start")
		expected := "[TOOLING_ERROR] go test failed to start: exit status 1"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if !errors.Is(err, original) {
			t.Error("expected wrapped error to unwrap to original")
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeParseError, "no json object")
		if !IsCode(err, CodeParseError) {
			t.Error("expected IsCode to return true for CodeParseError")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("IsCodeThroughFmtWrap", func(t *testing.T) {
		err := fmt.Errorf("generate: %w", New(CodeExhausted, "retries used"))
		if !IsCode(err, CodeExhausted) {
			t.Error("expected IsCode to see through fmt.Errorf wrapping")
		}
		if CodeOf(err) != CodeExhausted {
			t.Errorf("expected CodeOf to return EXHAUSTED, got %s", CodeOf(err))
		}
	})

	t.Run("AddContext", func(t *testing.T) {
		err := AddContext(New(CodeNotFound, "missing"), CtxSymbol, "Clock")
		var de *DomainError
		if !errors.As(err, &de) {
			t.Fatal("expected DomainError")
		}
		if de.Context[CtxSymbol] != "Clock" {
			t.Errorf("expected symbol context, got %v", de.Context)
		}

		plain := AddContext(errors.New("boom"), CtxPath, "a.go")
		if CodeOf(plain) != CodeInternal {
			t.Errorf("expected plain errors to become INTERNAL_ERROR, got %s", CodeOf(plain))
		}
	})
}
