package transfer

import (
	"errors"
	"fmt"
	"testing"
)

// TestMissingSourceError_Error verifies error message formatting
func TestMissingSourceError_Error(t *testing.T) {
	err := &MissingSourceError{ResourceID: "x"}

	expected := `resource "x" has no source url`
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestTransportError_Error verifies error message formatting
func TestTransportError_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        *TransportError
		wantFormat string
	}{
		{
			name: "with HTTP status code",
			err: &TransportError{
				Operation:  "get",
				StatusCode: 503,
				Err:        errors.New("service unavailable"),
			},
			wantFormat: "transport error during get (HTTP 503): service unavailable",
		},
		{
			name: "without HTTP status code",
			err: &TransportError{
				Operation: "get",
				Err:       errors.New("connection timeout"),
			},
			wantFormat: "transport error during get: connection timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantFormat {
				t.Errorf("Error() = %q, want %q", got, tt.wantFormat)
			}
		})
	}
}

// TestPlacementError_Error verifies error message formatting
func TestPlacementError_Error(t *testing.T) {
	err := &PlacementError{Op: "move", Path: "/d/a.png", Err: errors.New("no space left")}

	expected := "placement move failed for '/d/a.png': no space left"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestFilesystemError_Error verifies error message formatting
func TestFilesystemError_Error(t *testing.T) {
	err := &FilesystemError{Op: "remove", Path: "/d/a.png", Err: errors.New("permission denied")}

	expected := "filesystem remove failed for '/d/a.png': permission denied"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

// TestErrorTypes_Unwrap verifies error chain traversal
func TestErrorTypes_Unwrap(t *testing.T) {
	cause := errors.New("underlying cause")

	tests := []struct {
		name string
		err  error
	}{
		{"TransportError", &TransportError{Operation: "get", Err: cause}},
		{"PlacementError", &PlacementError{Op: "move", Path: "a", Err: cause}},
		{"FilesystemError", &FilesystemError{Op: "list", Path: "d", Err: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if unwrapped := errors.Unwrap(tt.err); unwrapped != cause {
				t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
			}

			// Verify errors.Is works through the chain
			wrapped := fmt.Errorf("context: %w", tt.err)
			if !errors.Is(wrapped, cause) {
				t.Error("errors.Is() should find cause in wrapped chain")
			}
		})
	}
}

// TestPlacementError_As verifies programmatic error type detection
func TestPlacementError_As(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", &PlacementError{Op: "set_attributes", Path: "/d/a.png"})

	var target *PlacementError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As() should extract PlacementError from wrapped chain")
	}

	if target.Op != "set_attributes" {
		t.Errorf("Op = %q, want %q", target.Op, "set_attributes")
	}
}

// TestIsCanceled verifies canceled transfers are detected through wrapping
func TestIsCanceled(t *testing.T) {
	err := &TransportError{Operation: "get", Err: ErrCanceled}
	if !IsCanceled(fmt.Errorf("task: %w", err)) {
		t.Error("IsCanceled() should detect ErrCanceled in chain")
	}

	if IsCanceled(errors.New("boom")) {
		t.Error("IsCanceled() should be false for unrelated errors")
	}
}

// TestErrorTypes_Nil verifies nil error handling
func TestErrorTypes_Nil(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"TransportError with nil Err", &TransportError{Operation: "get", StatusCode: 500}},
		{"PlacementError with nil Err", &PlacementError{Op: "move", Path: "a"}},
		{"FilesystemError with nil Err", &FilesystemError{Op: "list", Path: "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if unwrapped := errors.Unwrap(tt.err); unwrapped != nil {
				t.Errorf("Unwrap() = %v, want nil", unwrapped)
			}

			if errMsg := tt.err.Error(); errMsg == "" {
				t.Error("Error() should return non-empty string even when Err is nil")
			}
		})
	}
}
