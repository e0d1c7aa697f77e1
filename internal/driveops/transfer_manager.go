package driveops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/onedrive-fs/internal/remotefs"
)

// defaultMaxHashRetries is the number of extra download attempts when the
// content hash doesn't match the remote hash.
const defaultMaxHashRetries = 2

// maxSaneRetries caps MaxHashRetries.
const maxSaneRetries = 100

const partialSuffix = ".partial"

func resolveMaxRetries(configured int) int {
	if configured <= 0 {
		return defaultMaxHashRetries
	}

	return min(configured, maxSaneRetries)
}

// DownloadOpts configures a single download.
type DownloadOpts struct {
	MaxHashRetries int // 0 = default (2 retries, 3 attempts in total)
}

// UploadOpts configures a single upload.
type UploadOpts struct {
	ChunkSize   int64  // 0 = adapter default
	ContentType string // used when the file is small enough for an inline write
}

// DownloadResult reports the outcome of a successful download.
type DownloadResult struct {
	LocalHash    string
	RemoteHash   string
	Size         int64
	HashVerified bool // false when the remote sent no hash or retries ran out
}

// UploadResult reports the outcome of a successful upload.
type UploadResult struct {
	Item         *remotefs.Item
	LocalHash    string
	Size         int64
	HashVerified bool
}

// TransferManager copies whole files between the local disk and one drive.
// Downloads land in a .partial file that is renamed into place only after
// the content hash checks out.
type TransferManager struct {
	remote   Remote
	logger   *slog.Logger
	hashFunc func(string) (string, error)
}

// NewTransferManager creates a TransferManager over remote.
func NewTransferManager(remote Remote, logger *slog.Logger) *TransferManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &TransferManager{
		remote:   remote,
		logger:   logger,
		hashFunc: ComputeQuickXorHash,
	}
}

// Download fetches remotePath into targetPath. The content is streamed to
// targetPath+".partial" while being hashed; on a hash mismatch the file is
// fetched again up to MaxHashRetries times, after which the last copy is
// accepted with HashVerified false. The modification time is copied from
// the remote item before the atomic rename.
func (tm *TransferManager) Download(
	ctx context.Context, remotePath, targetPath string, opts DownloadOpts,
) (*DownloadResult, error) {
	if targetPath == "" {
		return nil, errors.New("download: target path must not be empty")
	}

	item, err := tm.remote.Stat(ctx, remotePath)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	if !item.IsFile {
		return nil, fmt.Errorf("download: %q is a directory", remotePath)
	}

	tm.logger.Debug("download",
		slog.String("remote", remotePath),
		slog.String("target", targetPath),
		slog.Int64("size", item.Size),
	)

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating parent dir for %s: %w", targetPath, err)
	}

	partialPath := targetPath + partialSuffix
	maxRetries := resolveMaxRetries(opts.MaxHashRetries)
	result := &DownloadResult{RemoteHash: item.QuickXorHash}

	for attempt := range maxRetries + 1 {
		result.LocalHash, result.Size, err = tm.downloadToPartial(ctx, remotePath, partialPath)
		if err != nil {
			return nil, err
		}

		if item.QuickXorHash == "" {
			break
		}

		if result.LocalHash == item.QuickXorHash {
			result.HashVerified = true
			break
		}

		if attempt < maxRetries {
			tm.logger.Warn("download hash mismatch, retrying",
				slog.String("target", targetPath),
				slog.Int("attempt", attempt+1),
				slog.String("local_hash", result.LocalHash),
				slog.String("remote_hash", item.QuickXorHash),
			)

			continue
		}

		tm.logger.Warn("download hash mismatch after all retries, accepting download",
			slog.String("target", targetPath),
			slog.String("local_hash", result.LocalHash),
			slog.String("remote_hash", item.QuickXorHash),
		)
	}

	if result.Size != item.Size {
		tm.logger.Warn("download size mismatch",
			slog.String("target", targetPath),
			slog.Int64("local_size", result.Size),
			slog.Int64("remote_size", item.Size),
		)
	}

	if !item.LastModified.IsZero() {
		if err := os.Chtimes(partialPath, item.LastModified, item.LastModified); err != nil {
			tm.logger.Warn("failed to set mtime on partial",
				slog.String("target", targetPath),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := os.Rename(partialPath, targetPath); err != nil {
		os.Remove(partialPath)
		return nil, fmt.Errorf("renaming partial to %s: %w", targetPath, err)
	}

	tm.logger.Debug("download complete",
		slog.String("target", targetPath),
		slog.Int64("size", result.Size),
		slog.Bool("hash_verified", result.HashVerified),
	)

	return result, nil
}

// downloadToPartial streams the remote file into partialPath, truncating
// any earlier attempt, and returns the content hash and byte count. The
// partial file is removed on failure.
func (tm *TransferManager) downloadToPartial(ctx context.Context, remotePath, partialPath string) (string, int64, error) {
	f, err := os.OpenFile(partialPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("creating partial file %s: %w", partialPath, err)
	}

	rc, err := tm.remote.ReadStream(ctx, remotePath)
	if err != nil {
		f.Close()
		os.Remove(partialPath)

		return "", 0, fmt.Errorf("download: %w", err)
	}

	digest, size, copyErr := HashReader(io.TeeReader(rc, f))
	rc.Close()

	if closeErr := f.Close(); copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("closing partial file %s: %w", partialPath, closeErr)
	}

	if copyErr != nil {
		os.Remove(partialPath)
		return "", 0, fmt.Errorf("downloading to %s: %w", partialPath, copyErr)
	}

	return digest, size, nil
}

// Upload writes the local file at localPath to remotePath, inline when it
// fits in one request and chunked otherwise, then re-reads the remote metadata and
// compares hashes. A mismatch is logged, not returned: the remote copy
// already replaced whatever was there.
func (tm *TransferManager) Upload(
	ctx context.Context, localPath, remotePath string, opts UploadOpts,
) (*UploadResult, error) {
	if localPath == "" {
		return nil, errors.New("upload: local path must not be empty")
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("upload: %s is not a regular file", localPath)
	}

	localHash, err := tm.hashFunc(localPath)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", localPath, err)
	}

	tm.logger.Debug("upload",
		slog.String("local", localPath),
		slog.String("remote", remotePath),
		slog.Int64("size", info.Size()),
	)

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s for upload: %w", localPath, err)
	}
	defer f.Close()

	wopts := remotefs.WriteOptions{ChunkSize: opts.ChunkSize, ContentType: opts.ContentType}
	if info.Size() <= remotefs.InlineWriteMax {
		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", localPath, err)
		}

		if err := tm.remote.Write(ctx, remotePath, content, wopts); err != nil {
			return nil, fmt.Errorf("uploading %s: %w", localPath, err)
		}
	} else if err := tm.remote.WriteStream(ctx, remotePath, f, wopts); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", localPath, err)
	}

	item, err := tm.remote.Stat(ctx, remotePath)
	if err != nil {
		return nil, fmt.Errorf("verifying upload of %s: %w", localPath, err)
	}

	result := &UploadResult{Item: item, LocalHash: localHash, Size: info.Size()}

	switch {
	case item.QuickXorHash == "":
		tm.logger.Debug("remote reported no hash, upload unverified", slog.String("remote", remotePath))
	case item.QuickXorHash == localHash:
		result.HashVerified = true
	default:
		tm.logger.Warn("upload hash mismatch",
			slog.String("local", localPath),
			slog.String("local_hash", localHash),
			slog.String("remote_hash", item.QuickXorHash),
		)
	}

	tm.logger.Debug("upload complete",
		slog.String("remote", remotePath),
		slog.String("item_id", item.ID),
		slog.Int64("size", result.Size),
	)

	return result, nil
}
