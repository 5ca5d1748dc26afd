package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestScanError(t *testing.T) {
	t.Run("basic error creation", func(t *testing.T) {
		err := NewScanError(CodeScanFailed, "scan failed")
		if err.Code != CodeScanFailed {
			t.Errorf("Expected code %s, got %s", CodeScanFailed, err.Code)
		}
		if err.Context == nil {
			t.Error("Context should be initialized")
		}
		expected := "[SCAN_FAILED] scan failed"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("invalid range carries the range", func(t *testing.T) {
		err := ErrInvalidRange("10.0.0.0/99", "bad prefix")
		expected := "[INVALID_RANGE] Invalid IP range: bad prefix (range: 10.0.0.0/99)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("wrapped error", func(t *testing.T) {
		cause := fmt.Errorf("operation not permitted")
		err := ErrCapabilityUnavailable("icmp", cause)
		if !errors.Is(err, cause) {
			t.Error("Wrapped error should be unwrappable")
		}
		if err.Code != CodePermission {
			t.Errorf("Expected code %s, got %s", CodePermission, err.Code)
		}
	})

	t.Run("with context", func(t *testing.T) {
		err := NewScanError(CodeTimeout, "timeout occurred")
		err.WithContext("duration", "30s").WithContext("retries", 3)
		if err.Context["duration"] != "30s" {
			t.Errorf("Expected duration '30s', got %v", err.Context["duration"])
		}
		if err.Context["retries"] != 3 {
			t.Errorf("Expected retries 3, got %v", err.Context["retries"])
		}
	})
}

func TestProbeError(t *testing.T) {
	err := ErrProbeTimeout("192.168.1.7", "icmp")
	expected := "[PROBE_TIMEOUT] Probe timed out (host: 192.168.1.7)"
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}
	if !IsRetryable(err) {
		t.Error("probe timeouts should be retryable")
	}
	if IsFatal(err) {
		t.Error("probe timeouts must not be fatal")
	}
}

func TestDatabaseError(t *testing.T) {
	t.Run("with operation", func(t *testing.T) {
		err := NewDatabaseError(CodeDatabaseQuery, "query failed").WithOperation("upsert device")
		expected := "[DATABASE_QUERY] query failed (operation: upsert device)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("with query", func(t *testing.T) {
		query := "SELECT * FROM devices"
		err := ErrDatabaseQuery(query, fmt.Errorf("boom"))
		if err.Query != query {
			t.Errorf("Expected query '%s', got '%s'", query, err.Query)
		}
	})

	t.Run("not found", func(t *testing.T) {
		err := ErrNotFound("device", 42)
		if !IsNotFound(err) {
			t.Error("expected not-found error")
		}
		if err.Error() != "[NOT_FOUND] device 42 not found" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})
}

func TestConfigError(t *testing.T) {
	err := NewConfigFieldError(CodeValidation, "invalid port", "api.port", 70000)
	if err.Field != "api.port" {
		t.Errorf("Expected field 'api.port', got '%s'", err.Field)
	}
	expected := "[VALIDATION] invalid port (field: api.port)"
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}
	if !IsFatal(ErrConfigMissing("database.host")) {
		t.Error("missing configuration should be fatal")
	}
}

func TestGetCodeThroughWrapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"plain error", fmt.Errorf("plain"), CodeUnknown},
		{"scan error", ErrScanInProgress("10.0.0.0/24"), CodeScanInProgress},
		{"fmt wrapped", fmt.Errorf("outer: %w", ErrNotFound("device", 1)), CodeNotFound},
		{"config error", ErrConfigInvalid("scanning.workers", -1), CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestIsConflict(t *testing.T) {
	err := WrapDatabaseError(CodeConflict, "duplicate mac", fmt.Errorf("23505"))
	if !IsConflict(err) {
		t.Error("expected conflict")
	}
	if IsConflict(nil) {
		t.Error("nil is never a conflict")
	}
}
