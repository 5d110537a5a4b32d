package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := New(ErrorTypeRateLimit, 429, "budget exhausted for %s", "search")
	expected := "rate_limit error (code 429): budget exhausted for search"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestErrorClassificationThroughWrapping(t *testing.T) {
	inner := New(ErrorTypeBlocked, 403, "challenge page returned")
	wrapped := fmt.Errorf("fetching page 3: %w", inner)

	var classified *Error
	if !errors.As(wrapped, &classified) {
		t.Fatal("Expected wrapped error to unwrap to *Error")
	}
	if classified.Type != ErrorTypeBlocked {
		t.Errorf("Expected blocked type, got %s", classified.Type)
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError}
	for _, et := range retryable {
		if !IsRetryable(et) {
			t.Errorf("Expected %s to be retryable", et)
		}
	}

	notRetryable := []ErrorType{ErrorTypeAuth, ErrorTypeBlocked, ErrorTypeParsing, ErrorTypeStorage, ErrorTypeNotFound, ErrorTypeUnknown}
	for _, et := range notRetryable {
		if IsRetryable(et) {
			t.Errorf("Expected %s to not be retryable", et)
		}
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(ErrorTypeBlocked) {
		t.Error("Expected blocked errors to be fatal")
	}
	if !IsFatal(ErrorTypeStorage) {
		t.Error("Expected storage errors to be fatal")
	}
	if IsFatal(ErrorTypeNetwork) {
		t.Error("Expected network errors to not be fatal")
	}
	if IsFatal(ErrorTypeParsing) {
		t.Error("Expected parsing errors to not be fatal")
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	cases := map[int]bool{
		0:   true,
		200: false,
		401: false,
		403: false,
		404: false,
		429: true,
		500: true,
		502: true,
		503: true,
		504: true,
		599: true,
	}
	for code, want := range cases {
		if got := IsRetryableStatusCode(code); got != want {
			t.Errorf("IsRetryableStatusCode(%d) = %v, want %v", code, got, want)
		}
	}
}
