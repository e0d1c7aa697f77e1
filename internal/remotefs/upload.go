package remotefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tonimelisma/onedrive-fs/internal/graph"
	"github.com/tonimelisma/onedrive-fs/internal/itempath"
)

// InlineWriteMax is the largest content Write sends in one PUT. Larger
// content goes through an upload session.
const InlineWriteMax = graph.SimpleUploadMaxSize

const defaultContentType = "text/plain"

// Write stores content at path, replacing any existing file. Content up to
// InlineWriteMax bytes is sent in one request; anything larger is uploaded
// in chunks through WriteStream.
func (a *Adapter) Write(ctx context.Context, path string, content []byte, opts WriteOptions) error {
	if err := checkPath("write", path, ErrUnableToWrite); err != nil {
		return err
	}

	if len(content) > InlineWriteMax {
		return a.WriteStream(ctx, path, bytes.NewReader(content), opts)
	}

	return a.writeInline(ctx, path, bytes.NewReader(content), int64(len(content)), opts)
}

// WriteStream stores everything read from content at path through a chunked
// upload session. Chunks are sent strictly in order, one at a time. A
// reader that is not an io.Seeker is spooled to a temporary file first so
// the total size is known before the first chunk.
func (a *Adapter) WriteStream(ctx context.Context, path string, content io.Reader, opts WriteOptions) error {
	if err := checkPath("write", path, ErrUnableToWrite); err != nil {
		return err
	}

	chunkSize := a.opts.ChunkSize
	if opts.ChunkSize != 0 {
		if err := ValidateChunkSize(opts.ChunkSize); err != nil {
			return newError("write", path, ErrInvalidChunkSize, err)
		}

		chunkSize = opts.ChunkSize
	}

	src, size, cleanup, err := sizedReader(content)
	if err != nil {
		return newError("write", path, ErrUnableToWrite, err)
	}
	defer cleanup()

	// An upload session cannot carry zero bytes.
	if size == 0 {
		return a.writeInline(ctx, path, src, 0, opts)
	}

	a.logger.Info("starting chunked upload",
		slog.String("path", path),
		slog.Int64("size", size),
		slog.Int64("chunk_size", chunkSize),
	)

	session, err := a.api.CreateUploadSession(ctx, itempath.ActionURL(a.root, path, "createUploadSession"))
	if err != nil {
		return newError("write", path, ErrUnableToWrite, err)
	}

	if err := a.uploadChunks(ctx, session, src, size, chunkSize); err != nil {
		a.cancelSession(ctx, session, path)
		return newError("write", path, ErrUploadFailed, err)
	}

	a.logger.Info("chunked upload complete",
		slog.String("path", path),
		slog.Int64("size", size),
	)

	return nil
}

func (a *Adapter) writeInline(ctx context.Context, path string, body io.Reader, size int64, opts WriteOptions) error {
	contentType := opts.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	a.logger.Info("writing file", slog.String("path", path), slog.Int64("size", size))

	_, err := a.api.SimpleUpload(ctx, itempath.ActionURL(a.root, path, "content"), contentType, body, size)
	if err != nil {
		return newError("write", path, ErrUnableToWrite, err)
	}

	return nil
}

// uploadChunks sends src in sequential chunks whose Content-Range headers
// tile [0, size). The first chunk answered with a status >= 400 stops the
// loop. A stream that ends early or runs past size fails with
// errLengthMismatch before the final chunk is sent.
func (a *Adapter) uploadChunks(
	ctx context.Context, session *graph.UploadSession, src io.Reader, size, chunkSize int64,
) error {
	buf := make([]byte, min(chunkSize, size))

	for offset := int64(0); offset < size; {
		length := min(chunkSize, size-offset)
		chunk := buf[:length]

		n, err := io.ReadFull(src, chunk)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: got %d of %d bytes", errLengthMismatch, offset+int64(n), size)
			}

			return fmt.Errorf("reading chunk at offset %d: %w", offset, err)
		}

		if offset+length == size {
			if extra, _ := src.Read(make([]byte, 1)); extra > 0 {
				return fmt.Errorf("%w: more than %d bytes", errLengthMismatch, size)
			}
		}

		_, err = a.api.UploadChunk(ctx, session, bytes.NewReader(chunk), offset, length, size)
		if err != nil {
			if status := graph.StatusCode(err); status != 0 {
				return &UploadStatusError{StatusCode: status, Offset: offset, Err: err}
			}

			return fmt.Errorf("chunk at offset %d: %w", offset, err)
		}

		offset += length
	}

	return nil
}

// cancelSession deletes an abandoned upload session. Failure is logged
// only; the server expires sessions on its own.
func (a *Adapter) cancelSession(ctx context.Context, session *graph.UploadSession, path string) {
	if err := a.api.CancelUploadSession(context.WithoutCancel(ctx), session); err != nil {
		a.logger.Warn("failed to cancel upload session",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// sizedReader returns a reader positioned at the first byte to upload and
// the number of bytes remaining. Seekable readers are measured in place;
// anything else is spooled to a temp file that cleanup removes.
func sizedReader(r io.Reader) (io.Reader, int64, func(), error) {
	noop := func() {}

	if s, ok := r.(io.Seeker); ok {
		cur, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, 0, noop, fmt.Errorf("measuring stream: %w", err)
		}

		end, err := s.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, noop, fmt.Errorf("measuring stream: %w", err)
		}

		if _, err := s.Seek(cur, io.SeekStart); err != nil {
			return nil, 0, noop, fmt.Errorf("rewinding stream: %w", err)
		}

		return r, end - cur, noop, nil
	}

	f, err := os.CreateTemp("", "onedrive-fs-upload-*")
	if err != nil {
		return nil, 0, noop, fmt.Errorf("creating spool file: %w", err)
	}

	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}

	n, err := io.Copy(f, r)
	if err != nil {
		cleanup()
		return nil, 0, noop, fmt.Errorf("spooling stream: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, 0, noop, fmt.Errorf("rewinding spool file: %w", err)
	}

	return f, n, cleanup, nil
}
