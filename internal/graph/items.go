package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// listChildrenPageSize is the $top value for children requests.
// 200 is the maximum allowed by the Graph API for drive item collections.
const listChildrenPageSize = 200

// Timestamp validation bounds: timestamps outside this range are replaced
// with the current time and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// driveItemResponse mirrors the Graph API driveItem JSON exactly.
// Unexported; callers use Item via toItem() normalization.
type driveItemResponse struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	ETag                 string       `json:"eTag"`
	CreatedDateTime      string       `json:"createdDateTime"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	ParentReference      *parentRef   `json:"parentReference"`
	File                 *fileFacet   `json:"file"`
	Folder               *folderFacet `json:"folder"`
	DownloadURL          string       `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle // Graph API annotation key
}

type parentRef struct {
	ID      string `json:"id,omitempty"`
	DriveID string `json:"driveId,omitempty"`
	Path    string `json:"path,omitempty"`
}

type fileFacet struct {
	MimeType string       `json:"mimeType"`
	Hashes   *hashesFacet `json:"hashes"`
}

type hashesFacet struct {
	QuickXorHash string `json:"quickXorHash"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

// emptyFolderFacet serializes as {}, the marker that turns a create-child
// request into a folder creation.
type emptyFolderFacet struct{}

type createFolderRequest struct {
	Name             string           `json:"name"`
	Folder           emptyFolderFacet `json:"folder"`
	ConflictBehavior string           `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

// relocateRequest is the body shared by move (PATCH) and copy (POST /copy).
type relocateRequest struct {
	ParentReference *parentRef `json:"parentReference,omitempty"`
	Name            string     `json:"name,omitempty"`
}

// collectionPage is one page of any Graph collection.
type collectionPage[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// toItem normalizes a Graph API driveItem response into our Item type.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:          d.ID,
		Name:        d.Name,
		Size:        d.Size,
		ETag:        d.ETag,
		IsFile:      d.File != nil,
		IsFolder:    d.Folder != nil,
		ChildCount:  ChildCountUnknown,
		DownloadURL: d.DownloadURL,
	}

	if d.ParentReference != nil {
		item.DriveID = strings.ToLower(d.ParentReference.DriveID)
		item.ParentID = d.ParentReference.ID
		item.ParentPath = d.ParentReference.Path
	}

	if d.Folder != nil {
		item.ChildCount = d.Folder.ChildCount
	}

	if d.File != nil {
		item.MimeType = d.File.MimeType

		if d.File.Hashes != nil {
			item.QuickXorHash = d.File.Hashes.QuickXorHash
		}
	}

	item.CreatedAt = parseTimestamp(d.CreatedDateTime, "createdDateTime", d.ID, logger)
	item.ModifiedAt = parseTimestamp(d.LastModifiedDateTime, "lastModifiedDateTime", d.ID, logger)

	return item
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Invalid or out-of-range timestamps are replaced with time.Now().UTC() and logged.
func parseTimestamp(raw, field, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		logger.Warn("empty timestamp, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
		)

		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Now().UTC()
	}

	return t
}

// decodeItem decodes a driveItem body and closes it.
func (c *Client) decodeItem(resp *http.Response, what string) (*Item, error) {
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("graph: decoding %s response: %w", what, err)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

// doJSON marshals payload and sends it with Do.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling %s %s request: %w", method, path, err)
	}

	return c.Do(ctx, method, path, bytes.NewReader(bodyBytes))
}

// GetItem retrieves the drive item addressed by itemURL, a path relative to
// the base URL such as "/drive/ABC/root:/docs/a.txt".
func (c *Client) GetItem(ctx context.Context, itemURL string) (*Item, error) {
	c.logger.Info("getting item", slog.String("url", itemURL))

	resp, err := c.Do(ctx, http.MethodGet, itemURL, nil)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "item")
}

// ListChildren returns every child of the collection at childrenURL,
// following @odata.nextLink until the server reports no further pages.
func (c *Client) ListChildren(ctx context.Context, childrenURL string) ([]Item, error) {
	c.logger.Info("listing children", slog.String("url", childrenURL))

	raw, err := getCollection[driveItemResponse](ctx, c, withTop(childrenURL, listChildrenPageSize))
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(raw))
	for i := range raw {
		items = append(items, raw[i].toItem(c.logger))
	}

	c.logger.Info("listed children complete",
		slog.String("url", childrenURL),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}

// withTop appends a $top page-size query parameter.
func withTop(path string, top int) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return fmt.Sprintf("%s%s$top=%d", path, sep, top)
}

// getCollection drains a paginated collection starting at apiPath.
func getCollection[T any](ctx context.Context, c *Client, apiPath string) ([]T, error) {
	var all []T

	for page := 1; apiPath != ""; page++ {
		resp, err := c.Do(ctx, http.MethodGet, apiPath, nil)
		if err != nil {
			return nil, err
		}

		var cp collectionPage[T]
		decErr := json.NewDecoder(resp.Body).Decode(&cp)
		resp.Body.Close()

		if decErr != nil {
			return nil, fmt.Errorf("graph: decoding collection page %d: %w", page, decErr)
		}

		all = append(all, cp.Value...)

		c.logger.Debug("fetched collection page",
			slog.Int("page", page),
			slog.Int("count", len(cp.Value)),
		)

		apiPath = ""
		if cp.NextLink != "" {
			if apiPath, err = c.stripBaseURL(cp.NextLink); err != nil {
				return nil, err
			}
		}
	}

	return all, nil
}

// stripBaseURL removes the client's base URL prefix from a full URL,
// returning the path + query string for use with Do().
// Returns an error if the URL doesn't start with the expected base.
func (c *Client) stripBaseURL(fullURL string) (string, error) {
	if !strings.HasPrefix(fullURL, c.baseURL) {
		return "", fmt.Errorf("graph: nextLink URL %q does not match base URL %q", fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}

// CreateFolder creates a folder named name in the children collection at
// childrenURL. Uses conflictBehavior "fail" and returns ErrConflict (409) on
// name collision.
func (c *Client) CreateFolder(ctx context.Context, childrenURL, name string) (*Item, error) {
	c.logger.Info("creating folder",
		slog.String("url", childrenURL),
		slog.String("name", name),
	)

	resp, err := c.doJSON(ctx, http.MethodPost, childrenURL, createFolderRequest{
		Name:             name,
		ConflictBehavior: "fail",
	})
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "create folder")
}

// ErrRelocateNoChanges is returned when MoveItem or CopyItem is called with
// both parentPath and name empty.
var ErrRelocateNoChanges = errors.New("graph: relocation requires a parent path or a name")

// MoveItem moves and/or renames the item at itemURL in one PATCH.
// parentPath is a path-addressing reference such as "/drive/ABC/root:/dest".
func (c *Client) MoveItem(ctx context.Context, itemURL, parentPath, name string) (*Item, error) {
	req, err := relocation(parentPath, name)
	if err != nil {
		return nil, err
	}

	c.logger.Info("moving item",
		slog.String("url", itemURL),
		slog.String("new_parent", parentPath),
		slog.String("new_name", name),
	)

	resp, err := c.doJSON(ctx, http.MethodPatch, itemURL, req)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "move")
}

// CopyItem starts a server-side copy by POSTing to copyURL. The API accepts
// the job asynchronously; the returned monitor URL (from the Location
// header, possibly empty) can be polled with WaitForOperation.
func (c *Client) CopyItem(ctx context.Context, copyURL, parentPath, name string) (string, error) {
	req, err := relocation(parentPath, name)
	if err != nil {
		return "", err
	}

	c.logger.Info("copying item",
		slog.String("url", copyURL),
		slog.String("new_parent", parentPath),
		slog.String("new_name", name),
	)

	resp, err := c.doJSON(ctx, http.MethodPost, copyURL, req)
	if err != nil {
		return "", err
	}

	monitor := resp.Header.Get("Location")
	drainAndClose(resp)

	c.logger.Debug("copy accepted",
		slog.Int("status", resp.StatusCode),
		slog.Bool("has_monitor", monitor != ""),
	)

	return monitor, nil
}

func relocation(parentPath, name string) (relocateRequest, error) {
	if parentPath == "" && name == "" {
		return relocateRequest{}, ErrRelocateNoChanges
	}

	req := relocateRequest{Name: name}
	if parentPath != "" {
		req.ParentReference = &parentRef{Path: parentPath}
	}

	return req, nil
}

// DeleteItem deletes the item at itemURL. Folders are removed together with
// their descendants by the server. Returns nil on success (HTTP 204).
func (c *Client) DeleteItem(ctx context.Context, itemURL string) error {
	c.logger.Info("deleting item", slog.String("url", itemURL))

	resp, err := c.Do(ctx, http.MethodDelete, itemURL, nil)
	if err != nil {
		return err
	}

	// 204 No Content: drain and close to reuse connection.
	defer resp.Body.Close()

	if _, copyErr := io.Copy(io.Discard, resp.Body); copyErr != nil {
		return fmt.Errorf("graph: draining delete response body: %w", copyErr)
	}

	return nil
}
