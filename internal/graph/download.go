package graph

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// ErrNoDownloadURL is returned when a drive item has no pre-authenticated download URL.
// This can happen for folders or zero-byte files.
var ErrNoDownloadURL = errors.New("graph: item has no download URL")

// Download opens the content behind a pre-authenticated download URL
// (Item.DownloadURL). The caller must close the returned body.
// The URL itself is never logged because it contains embedded auth tokens.
// Only the request/response cycle is retried; a failure while the caller
// streams the body is reported by the body's Read.
func (c *Client) Download(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	if downloadURL == "" {
		return nil, ErrNoDownloadURL
	}

	resp, err := c.getPreAuth(ctx, "download", downloadURL)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("download started",
		slog.Int64("content_length", resp.ContentLength),
	)

	return resp.Body, nil
}
