package remotefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tonimelisma/onedrive-fs/internal/graph"
	"github.com/tonimelisma/onedrive-fs/internal/itempath"
)

// ChunkAlignment is the upload chunk granularity required by Graph.
const ChunkAlignment = graph.ChunkAlignment

// copyPollInterval is the delay between async copy status polls.
const copyPollInterval = time.Second

// API is the subset of the Graph client the adapter drives. Satisfied by
// *graph.Client.
type API interface {
	GetItem(ctx context.Context, itemURL string) (*graph.Item, error)
	ListChildren(ctx context.Context, childrenURL string) ([]graph.Item, error)
	CreateFolder(ctx context.Context, childrenURL, name string) (*graph.Item, error)
	MoveItem(ctx context.Context, itemURL, parentPath, name string) (*graph.Item, error)
	CopyItem(ctx context.Context, copyURL, parentPath, name string) (string, error)
	DeleteItem(ctx context.Context, itemURL string) error
	WaitForOperation(ctx context.Context, monitorURL string, interval time.Duration) error

	SimpleUpload(ctx context.Context, contentURL, contentType string, body io.Reader, size int64) (*graph.Item, error)
	CreateUploadSession(ctx context.Context, sessionURL string) (*graph.UploadSession, error)
	UploadChunk(
		ctx context.Context, session *graph.UploadSession, chunk io.Reader,
		offset, length, total int64,
	) (*graph.Item, error)
	CancelUploadSession(ctx context.Context, session *graph.UploadSession) error
	Download(ctx context.Context, downloadURL string) (io.ReadCloser, error)
}

// Adapter is a Filesystem bound to one drive root. Safe for concurrent use;
// nothing is mutated after New returns.
type Adapter struct {
	api    API
	root   string
	opts   Options
	logger *slog.Logger
}

var _ Filesystem = (*Adapter)(nil)

// New creates an Adapter for drive, addressed under opts.DirectoryType
// ("/drive/<drive>/root", "/sites/<site>/drive/root", ...). It fails with
// ErrInvalidChunkSize unless the chunk size is a positive multiple of
// ChunkAlignment.
func New(api API, drive string, opts Options, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	if opts.CopyTimeout == 0 {
		opts.CopyTimeout = DefaultCopyTimeout
	}

	if opts.DirectoryType == "" {
		opts.DirectoryType = DefaultDirectoryType
	}

	if err := ValidateChunkSize(opts.ChunkSize); err != nil {
		return nil, newError("new", "", ErrInvalidChunkSize, err)
	}

	switch opts.DirectoryType {
	case KindDrive, KindDrives, KindSites:
	default:
		return nil, fmt.Errorf("remotefs: unknown directory type %q", opts.DirectoryType)
	}

	if drive == "" {
		return nil, errors.New("remotefs: drive identifier must not be empty")
	}

	a := &Adapter{
		api:    api,
		root:   itempath.RootURL(opts.DirectoryType, drive),
		opts:   opts,
		logger: logger,
	}

	logger.Debug("adapter created",
		slog.String("root", a.root),
		slog.Int64("chunk_size", opts.ChunkSize),
		slog.Duration("request_timeout", opts.RequestTimeout),
	)

	return a, nil
}

// ValidateChunkSize reports whether n is a usable upload chunk size.
func ValidateChunkSize(n int64) error {
	if n <= 0 || n%ChunkAlignment != 0 {
		return fmt.Errorf("%d bytes is not a positive multiple of %d", n, ChunkAlignment)
	}

	return nil
}

// RootURL returns the drive root URL every path is resolved under.
func (a *Adapter) RootURL() string {
	return a.root
}

// Options returns the resolved options.
func (a *Adapter) Options() Options {
	return a.opts
}

// FileExists reports whether path names a file. Any failure reads as false.
func (a *Adapter) FileExists(ctx context.Context, path string) bool {
	if itempath.Validate(path) != nil {
		return false
	}

	item, err := a.api.GetItem(ctx, itempath.ItemURL(a.root, path))
	if err != nil {
		a.logger.Debug("file existence check failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return false
	}

	return item.IsFile
}

// DirectoryExists reports whether path names a folder. Any failure reads
// as false.
func (a *Adapter) DirectoryExists(ctx context.Context, path string) bool {
	if itempath.Validate(path) != nil {
		return false
	}

	item, err := a.api.GetItem(ctx, itempath.ItemURL(a.root, path))
	if err != nil {
		a.logger.Debug("directory existence check failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return false
	}

	return item.IsFolder
}

// Read returns the whole content of the file at path.
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	body, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, newError("read", path, ErrUnableToRead, err)
	}

	return data, nil
}

// ReadStream opens the content of the file at path. The caller must close
// the returned reader.
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := checkPath("read", path, ErrUnableToRead); err != nil {
		return nil, err
	}

	a.logger.Info("reading file", slog.String("path", path))

	item, err := a.api.GetItem(ctx, itempath.ItemURL(a.root, path))
	if err != nil {
		return nil, newError("read", path, ErrUnableToRead, err)
	}

	if !item.IsFile {
		return nil, newError("read", path, ErrUnableToRead, errors.New("not a file"))
	}

	body, err := a.api.Download(ctx, item.DownloadURL)
	if err != nil {
		return nil, newError("read", path, ErrUnableToRead, err)
	}

	return body, nil
}

// Delete removes the item at path. Folders go with all their descendants.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := checkPath("delete", path, ErrUnableToDelete); err != nil {
		return err
	}

	if itempath.IsRoot(path) {
		return newError("delete", path, ErrUnableToDelete, errors.New("refusing to delete the drive root"))
	}

	a.logger.Info("deleting", slog.String("path", path))

	if err := a.api.DeleteItem(ctx, itempath.ItemURL(a.root, path)); err != nil {
		return newError("delete", path, ErrUnableToDelete, err)
	}

	return nil
}

// DeleteDirectory removes the folder at path and everything below it. The
// server deletes the subtree in one operation.
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	return a.Delete(ctx, path)
}

// CreateDirectory creates the folder at path in its parent's children
// collection. The parent must exist. An existing folder at path is not an
// error.
func (a *Adapter) CreateDirectory(ctx context.Context, path string) error {
	if err := checkPath("mkdir", path, ErrUnableToCreateDirectory); err != nil {
		return err
	}

	parent, name := itempath.Split(path)
	if name == "" {
		return nil
	}

	a.logger.Info("creating directory", slog.String("path", path))

	_, err := a.api.CreateFolder(ctx, itempath.ChildrenURL(a.root, parent), name)
	if err == nil {
		return nil
	}

	if errors.Is(err, graph.ErrConflict) && a.DirectoryExists(ctx, path) {
		a.logger.Debug("directory already exists", slog.String("path", path))
		return nil
	}

	return newError("mkdir", path, ErrUnableToCreateDirectory, err)
}

// Move renames and/or reparents source to destination in one request.
func (a *Adapter) Move(ctx context.Context, source, destination string) error {
	if err := checkPaths("move", ErrUnableToMove, source, destination); err != nil {
		return err
	}

	parent, name := itempath.Split(destination)

	a.logger.Info("moving",
		slog.String("source", source),
		slog.String("destination", destination),
	)

	_, err := a.api.MoveItem(ctx, itempath.ItemURL(a.root, source), itempath.ReferencePath(a.root, parent), name)
	if err != nil {
		return newError("move", source, ErrUnableToMove, err)
	}

	return nil
}

// Copy starts a server-side copy of source to destination. Graph runs
// copies asynchronously: unless Options.WaitForCopy is set, Copy returns as
// soon as the job is accepted and the destination may not exist yet.
func (a *Adapter) Copy(ctx context.Context, source, destination string) error {
	return a.copy(ctx, source, destination, a.opts.WaitForCopy)
}

// CopyAndWait is Copy that always polls the monitor URL until the job
// finishes or Options.CopyTimeout elapses, regardless of
// Options.WaitForCopy.
func (a *Adapter) CopyAndWait(ctx context.Context, source, destination string) error {
	return a.copy(ctx, source, destination, true)
}

func (a *Adapter) copy(ctx context.Context, source, destination string, wait bool) error {
	if err := checkPaths("copy", ErrUnableToCopy, source, destination); err != nil {
		return err
	}

	parent, name := itempath.Split(destination)

	a.logger.Info("copying",
		slog.String("source", source),
		slog.String("destination", destination),
	)

	monitor, err := a.api.CopyItem(ctx,
		itempath.ActionURL(a.root, source, "copy"), itempath.ReferencePath(a.root, parent), name)
	if err != nil {
		return newError("copy", source, ErrUnableToCopy, err)
	}

	if !wait {
		return nil
	}

	if monitor == "" {
		a.logger.Warn("copy accepted without a monitor URL, not waiting", slog.String("source", source))
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.opts.CopyTimeout)
	defer cancel()

	if err := a.api.WaitForOperation(waitCtx, monitor, copyPollInterval); err != nil {
		return newError("copy", source, ErrUnableToCopy, err)
	}

	return nil
}

// Stat fetches the metadata of the item at path.
func (a *Adapter) Stat(ctx context.Context, path string) (*Item, error) {
	if err := checkPath("stat", path, ErrUnableToRetrieveMetadata); err != nil {
		return nil, err
	}

	item, err := a.api.GetItem(ctx, itempath.ItemURL(a.root, path))
	if err != nil {
		return nil, newError("stat", path, ErrUnableToRetrieveMetadata, err)
	}

	return a.toItem(item, itempath.Clean(path)), nil
}

// MimeType returns the MIME type of the file at path.
func (a *Adapter) MimeType(ctx context.Context, path string) (string, error) {
	item, err := a.Stat(ctx, path)
	if err != nil {
		return "", err
	}

	if !item.IsFile {
		return "", newError("mimetype", path, ErrUnableToRetrieveMetadata, errors.New("not a file"))
	}

	return item.MimeType, nil
}

// FileSize returns the size in bytes of the item at path.
func (a *Adapter) FileSize(ctx context.Context, path string) (int64, error) {
	item, err := a.Stat(ctx, path)
	if err != nil {
		return 0, err
	}

	return item.Size, nil
}

// LastModified returns the last modification time of the item at path.
func (a *Adapter) LastModified(ctx context.Context, path string) (time.Time, error) {
	item, err := a.Stat(ctx, path)
	if err != nil {
		return time.Time{}, err
	}

	return item.LastModified, nil
}

// Visibility always fails: Graph exposes no per-item visibility.
func (a *Adapter) Visibility(_ context.Context, path string) (string, error) {
	return "", newError("visibility", path, ErrUnableToRetrieveMetadata, ErrUnsupported)
}

// SetVisibility always fails: Graph exposes no per-item visibility.
func (a *Adapter) SetVisibility(_ context.Context, path, _ string) error {
	return newError("set visibility", path, ErrUnsupported, nil)
}

// checkPath refuses paths with empty or dot segments before any request.
func checkPath(op, path string, kind error) error {
	if err := itempath.Validate(path); err != nil {
		return newError(op, path, kind, err)
	}

	return nil
}

func checkPaths(op string, kind error, paths ...string) error {
	for _, p := range paths {
		if err := checkPath(op, p, kind); err != nil {
			return err
		}
	}

	return nil
}

func (a *Adapter) toItem(gi *graph.Item, path string) *Item {
	parent, _ := itempath.Split(path)

	return &Item{
		ID:           gi.ID,
		Path:         path,
		Name:         gi.Name,
		IsFile:       gi.IsFile,
		Size:         gi.Size,
		MimeType:     gi.MimeType,
		LastModified: gi.ModifiedAt,
		ParentPath:   parent,
		QuickXorHash: gi.QuickXorHash,
	}
}
