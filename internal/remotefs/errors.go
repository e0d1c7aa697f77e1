package remotefs

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by Adapter is an *Error whose Kind is
// one of these, so callers can use errors.Is(err, remotefs.ErrUnableToRead).
var (
	ErrInvalidChunkSize         = errors.New("chunk size must be a positive multiple of 320 KiB")
	ErrUnableToRead             = errors.New("unable to read file")
	ErrUnableToWrite            = errors.New("unable to write file")
	ErrUploadFailed             = errors.New("upload failed")
	ErrUnableToDelete           = errors.New("unable to delete")
	ErrUnableToCreateDirectory  = errors.New("unable to create directory")
	ErrUnableToMove             = errors.New("unable to move")
	ErrUnableToCopy             = errors.New("unable to copy")
	ErrUnableToRetrieveMetadata = errors.New("unable to retrieve metadata")
	ErrListing                  = errors.New("error listing contents")
	ErrUnsupported              = errors.New("unsupported operation")
)

// Error describes a failed adapter operation on one path.
type Error struct {
	Op   string // "read", "write", "list", ...
	Path string // logical path the operation targeted
	Kind error  // one of the Err* kinds above
	Err  error  // underlying cause; may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("remotefs: %s %q: %v", e.Op, e.Path, e.Kind)
	}

	return fmt.Sprintf("remotefs: %s %q: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

func newError(op, path string, kind, err error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

// UploadStatusError reports the HTTP status of the chunk PUT that aborted
// an upload session.
type UploadStatusError struct {
	StatusCode int
	Offset     int64
	Err        error
}

func (e *UploadStatusError) Error() string {
	return fmt.Sprintf("upload failed with status %d at offset %d", e.StatusCode, e.Offset)
}

func (e *UploadStatusError) Unwrap() error {
	return e.Err
}

// errLengthMismatch is the cause when a stream yields a different number of
// bytes than its reported size.
var errLengthMismatch = errors.New("stream length does not match reported size")
