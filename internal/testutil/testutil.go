package testutil

import (
	"errors"
	"strings"
	"testing"
)

func Assert[T comparable](t *testing.T, expected T, value T, message string) {
	t.Helper()

	if expected != value {
		t.Fatalf("%s: expected %v got %v", message, expected, value)
	}
}

func AssertSlice[T comparable](t *testing.T, expected []T, value []T, message string) {
	t.Helper()

	if len(expected) != len(value) {
		t.Fatalf("%s: expected %v got %v", message, expected, value)
	}

	for i := range expected {
		if expected[i] != value[i] {
			t.Fatalf("%s: expected %v got %v", message, expected, value)
		}
	}
}

func AssertErr(t *testing.T, expected error, value error, message string) {
	t.Helper()

	if expected == nil && value == nil {
		return
	}

	if expected == nil || value == nil || expected.Error() != value.Error() {
		t.Fatalf("%s: expected %v got %v", message, expected, value)
	}
}

// ErrorIs fails unless errors.Is(value, target).
func ErrorIs(t *testing.T, target error, value error, message string) {
	t.Helper()

	if !errors.Is(value, target) {
		t.Fatalf("%s: expected %v in chain of %v", message, target, value)
	}
}

func Contains(t *testing.T, haystack string, needle string, message string) {
	t.Helper()

	if !strings.Contains(haystack, needle) {
		t.Fatalf("%s: expected %q to contain %q", message, haystack, needle)
	}
}

func IsNil(t *testing.T, value interface{}, message string) {
	t.Helper()

	if value != nil {
		t.Fatalf("%s: expected nil got %v", message, value)
	}
}

func IsNotNil(t *testing.T, value interface{}, message string) {
	t.Helper()

	if value == nil {
		t.Fatalf("%s: expected not nil got nil", message)
	}
}
