package transfer

import (
	"errors"
	"fmt"
)

// MissingSourceError is returned when a resource is enqueued without a source URL.
// It is reported before any transfer is attempted.
type MissingSourceError struct {
	ResourceID string // ID of the rejected resource
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("resource %q has no source url", e.ResourceID)
}

// TransportError represents network and transfer failures reported by the transport,
// including non-2xx responses, connection failures and canceled transfers.
type TransportError struct {
	Operation  string // The operation that failed (e.g., "get", "resolve_source", "write")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error  // Underlying error, if any
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error during %s (HTTP %d): %v", e.Operation, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("transport error during %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PlacementError represents failures moving a finished transfer into the downloads
// directory or applying its attributes. When Op is "set_attributes" the file has
// already been placed at Path.
type PlacementError struct {
	Op   string // "resolve", "move" or "set_attributes"
	Path string // Destination path
	Err  error  // Underlying error, if any
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("placement %s failed for '%s': %v", e.Op, e.Path, e.Err)
}

func (e *PlacementError) Unwrap() error {
	return e.Err
}

// FilesystemError represents failures of housekeeping operations on the downloads
// directory, such as listing or removing entries.
type FilesystemError struct {
	Op   string // "list", "remove" or "resolve"
	Path string // Path the operation targeted
	Err  error  // Underlying error, if any
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem %s failed for '%s': %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err comes from a transfer that was canceled.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// ErrCanceled is carried by the terminal event of a canceled task.
var ErrCanceled = errors.New("transfer: canceled")
