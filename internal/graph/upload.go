package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ChunkAlignment is the required alignment for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const ChunkAlignment = 320 * 1024

// SimpleUploadMaxSize is the largest body sent with a single content PUT
// (4 MiB). Anything larger goes through an upload session.
const SimpleUploadMaxSize = 4 * 1024 * 1024

// Upload session request/response types for Graph API JSON serialization.
type createUploadSessionRequest struct {
	Item uploadSessionItem `json:"item"`
}

type uploadSessionItem struct {
	ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

type uploadSessionResponse struct {
	UploadURL          string `json:"uploadUrl"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// SimpleUpload replaces the content of the item behind contentURL
// (".../root:/a.txt:/content") with a single PUT of body. It is sent once:
// a partially consumed reader cannot be replayed.
func (c *Client) SimpleUpload(
	ctx context.Context, contentURL, contentType string, body io.Reader, size int64,
) (*Item, error) {
	c.logger.Info("simple upload",
		slog.String("url", contentURL),
		slog.Int64("size", size),
	)

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: obtaining token for upload: %w", err)
	}

	resp, err := c.sendOnce(ctx, "simple upload", http.MethodPut, c.baseURL+contentURL, body, func(h http.Header) {
		h.Set("Authorization", "Bearer "+tok)
		h.Set("Content-Type", contentType)
	}, size)
	if err != nil {
		return nil, err
	}

	if !isSuccess(resp.StatusCode) {
		return nil, newGraphError(resp)
	}

	return c.decodeItem(resp, "simple upload")
}

// sendOnce performs a single unretried request. setHeaders may be nil;
// contentLength < 0 leaves the transport to decide.
func (c *Client) sendOnce(
	ctx context.Context, label, method, rawURL string, body io.Reader,
	setHeaders func(http.Header), contentLength int64,
) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("graph: creating %s request: %w", label, err)
	}

	req.Header.Set("User-Agent", userAgent)

	if setHeaders != nil {
		setHeaders(req.Header)
	}

	if contentLength >= 0 {
		req.ContentLength = contentLength
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Error("request failed",
			slog.String("request", label),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("graph: %s: %w", label, err)
	}

	c.metrics.observeRequest(method, resp.StatusCode)

	return resp, nil
}

// CreateUploadSession opens an upload session for the item behind
// sessionURL (".../root:/a.bin:/createUploadSession"). An existing file is
// replaced when the session completes.
func (c *Client) CreateUploadSession(ctx context.Context, sessionURL string) (*UploadSession, error) {
	c.logger.Info("creating upload session", slog.String("url", sessionURL))

	resp, err := c.doJSON(ctx, http.MethodPost, sessionURL, createUploadSessionRequest{
		Item: uploadSessionItem{ConflictBehavior: "replace"},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var usr uploadSessionResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&usr); decErr != nil {
		return nil, fmt.Errorf("graph: decoding upload session response: %w", decErr)
	}

	if usr.UploadURL == "" {
		return nil, fmt.Errorf("graph: upload session response has no uploadUrl")
	}

	session := &UploadSession{UploadURL: usr.UploadURL}

	if usr.ExpirationDateTime != "" {
		expTime, parseErr := time.Parse(time.RFC3339, usr.ExpirationDateTime)
		if parseErr != nil {
			c.logger.Warn("invalid upload session expiration, using zero time",
				slog.String("raw", usr.ExpirationDateTime),
				slog.String("error", parseErr.Error()),
			)
		}

		session.ExpirationTime = expTime
	}

	c.logger.Debug("upload session created",
		slog.Time("expires", session.ExpirationTime),
	)

	return session, nil
}

// UploadChunk PUTs one byte range of an upload session.
// offset is the first byte, length the chunk size, total the full file size.
// Returns the completed Item on the final chunk (200/201), nil for
// intermediate chunks (202). Any status >= 400 is returned as a GraphError.
// The session URL is pre-authenticated, so no Authorization header is sent,
// and a failed chunk is never retried here.
func (c *Client) UploadChunk(
	ctx context.Context, session *UploadSession, chunk io.Reader,
	offset, length, total int64,
) (*Item, error) {
	c.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", total),
	)

	resp, err := c.sendOnce(ctx, "chunk upload", http.MethodPut, session.UploadURL, chunk, func(h http.Header) {
		h.Set("Content-Range", ContentRange(offset, length, total))
	}, length)
	if err != nil {
		return nil, err
	}

	return c.handleChunkResponse(resp, length)
}

// ContentRange formats the Content-Range header for a chunk.
func ContentRange(offset, length, total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total)
}

// handleChunkResponse processes the HTTP response from an upload chunk request.
// 202 Accepted means intermediate chunk; 200/201 means upload complete with item data.
func (c *Client) handleChunkResponse(resp *http.Response, length int64) (*Item, error) {
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		c.metrics.observeChunk(length)

		item, err := c.decodeItem(resp, "final chunk")
		if err != nil {
			return nil, err
		}

		c.logger.Debug("upload complete",
			slog.String("item_id", item.ID),
			slog.String("item_name", item.Name),
		)

		return item, nil

	case resp.StatusCode < http.StatusBadRequest:
		c.metrics.observeChunk(length)
		drainAndClose(resp)

		c.logger.Debug("intermediate chunk accepted", slog.Int("status", resp.StatusCode))

		return nil, nil

	default:
		graphErr := newGraphError(resp)

		c.logger.Error("chunk upload failed",
			slog.Int("status", graphErr.StatusCode),
		)

		return nil, graphErr
	}
}

// CancelUploadSession deletes an upload session. The session URL is
// pre-authenticated, so no Authorization header is sent.
func (c *Client) CancelUploadSession(ctx context.Context, session *UploadSession) error {
	c.logger.Info("canceling upload session")

	resp, err := c.sendOnce(ctx, "cancel upload session", http.MethodDelete, session.UploadURL, nil, nil, -1)
	if err != nil {
		return err
	}

	if !isSuccess(resp.StatusCode) {
		return newGraphError(resp)
	}

	drainAndClose(resp)

	c.logger.Debug("upload session canceled")

	return nil
}
