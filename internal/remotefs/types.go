// Package remotefs is a filesystem over one OneDrive or SharePoint drive.
//
// Adapter maps logical paths onto Graph path-addressing URLs (see
// itempath) and implements existence checks, reads, inline and chunked
// writes, delete, move, copy, metadata and recursive listing. It holds no
// mutable state after construction: every call is an independent sequence
// of blocking round-trips, and nothing is cached between calls.
//
// Failure policy: FileExists and DirectoryExists absorb every failure into
// false. Every other operation returns an *Error carrying the operation,
// the path, a kind sentinel and the underlying cause.
package remotefs

import (
	"context"
	"io"
	"time"
)

// Directory kinds accepted for Options.DirectoryType.
const (
	KindDrive  = "drive"
	KindDrives = "drives"
	KindSites  = "sites"
)

// Defaults applied by New for zero-valued options.
const (
	DefaultRequestTimeout = 90 * time.Second
	DefaultCopyTimeout    = 30 * time.Minute
	DefaultChunkSize      = 10 * ChunkAlignment
	DefaultDirectoryType  = KindDrive
)

// VisibilityPublic is reported for every listed entry. Graph exposes no
// per-item visibility.
const VisibilityPublic = "public"

// EntryType distinguishes files from directories in listings.
type EntryType string

// Entry types.
const (
	TypeFile      EntryType = "file"
	TypeDirectory EntryType = "dir"
)

// Options configure one Adapter. Zero values take the defaults above.
type Options struct {
	RequestTimeout time.Duration
	ChunkSize      int64
	DirectoryType  string
	// WaitForCopy makes Copy poll the async job until it finishes.
	WaitForCopy bool
	// CopyTimeout bounds the whole wait for a server-side copy. It is
	// separate from RequestTimeout because large copies run far longer
	// than any single request.
	CopyTimeout time.Duration
}

// WriteOptions override adapter defaults for one write.
type WriteOptions struct {
	ChunkSize   int64  // 0 = adapter default; must be a multiple of ChunkAlignment
	ContentType string // inline writes only; "" = text/plain
}

// Item is the metadata of one remote file or folder, fetched fresh on
// every call.
type Item struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	IsFile       bool      `json:"is_file"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
	ParentPath   string    `json:"parent_path"`
	QuickXorHash string    `json:"quickxorhash,omitempty"`
}

// StorageEntry is one listing record. Size and MimeType are set for files
// only.
type StorageEntry struct {
	Path         string    `json:"path"`
	Type         EntryType `json:"type"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	Visibility   string    `json:"visibility"`
}

// IsFile reports whether the entry is a file.
func (e StorageEntry) IsFile() bool {
	return e.Type == TypeFile
}

// Filesystem is the drive-agnostic file contract Adapter fulfills. The CLI
// and the transfer helpers depend on this interface only.
type Filesystem interface {
	FileExists(ctx context.Context, path string) bool
	DirectoryExists(ctx context.Context, path string) bool

	Write(ctx context.Context, path string, content []byte, opts WriteOptions) error
	WriteStream(ctx context.Context, path string, content io.Reader, opts WriteOptions) error
	Read(ctx context.Context, path string) ([]byte, error)
	ReadStream(ctx context.Context, path string) (io.ReadCloser, error)

	Delete(ctx context.Context, path string) error
	DeleteDirectory(ctx context.Context, path string) error
	CreateDirectory(ctx context.Context, path string) error
	Move(ctx context.Context, source, destination string) error
	Copy(ctx context.Context, source, destination string) error

	Stat(ctx context.Context, path string) (*Item, error)
	MimeType(ctx context.Context, path string) (string, error)
	FileSize(ctx context.Context, path string) (int64, error)
	LastModified(ctx context.Context, path string) (time.Time, error)
	Visibility(ctx context.Context, path string) (string, error)
	SetVisibility(ctx context.Context, path, visibility string) error

	ListContents(ctx context.Context, path string, deep bool) ([]StorageEntry, error)
}
