package driveops

import (
	"context"
	"io"

	"github.com/tonimelisma/onedrive-fs/internal/remotefs"
)

// Remote is the part of a drive adapter TransferManager moves files
// through. Satisfied by *remotefs.Adapter.
type Remote interface {
	Stat(ctx context.Context, path string) (*remotefs.Item, error)
	ReadStream(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, path string, content []byte, opts remotefs.WriteOptions) error
	WriteStream(ctx context.Context, path string, content io.Reader, opts remotefs.WriteOptions) error
}
