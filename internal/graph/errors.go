// Package graph is the Microsoft Graph transport used by the drive adapter:
// authenticated requests with retry and backoff, status classification,
// and the typed drive-item, upload-session, site and token calls.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Status sentinels. A GraphError unwraps to one of these, so callers test
// with errors.Is(err, graph.ErrNotFound).
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrGone         = errors.New("graph: resource gone")
	ErrRangeInvalid = errors.New("graph: requested range not satisfiable")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrServerError  = errors.New("graph: server error")
)

var statusSentinels = map[int]error{
	http.StatusBadRequest:                   ErrBadRequest,
	http.StatusUnauthorized:                 ErrUnauthorized,
	http.StatusForbidden:                    ErrForbidden,
	http.StatusNotFound:                     ErrNotFound,
	http.StatusConflict:                     ErrConflict,
	http.StatusGone:                         ErrGone,
	http.StatusRequestedRangeNotSatisfiable: ErrRangeInvalid,
	http.StatusTooManyRequests:              ErrThrottled,
	http.StatusLocked:                       ErrLocked,
}

// statusBandwidthExceeded is SharePoint's 509, retried like a 503.
const statusBandwidthExceeded = 509

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// GraphError is a non-2xx Graph response. Code is the Graph error code
// ("itemNotFound", "nameAlreadyExists", ...) when the body carried one.
type GraphError struct {
	StatusCode int
	RequestID  string
	Code       string
	Message    string
	Err        error // status sentinel, nil for unclassified codes
}

func (e *GraphError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "graph: HTTP %d", e.StatusCode)

	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request-id: %s)", e.RequestID)
	}

	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}

	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}

	return b.String()
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of the GraphError in err's chain, or 0.
func StatusCode(err error) int {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.StatusCode
	}

	return 0
}

// errorBody is Graph's error envelope: {"error":{"code":..,"message":..}}.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newGraphError consumes and closes resp.Body. The message comes from the
// error envelope when the body is one, otherwise the raw (truncated) body.
func newGraphError(resp *http.Response) *GraphError {
	defer resp.Body.Close()

	ge := &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Err:        classifyStatus(resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		ge.Message = "(failed to read response body)"
		return ge
	}

	var env errorBody
	if json.Unmarshal(body, &env) == nil && env.Error.Code != "" {
		ge.Code = env.Error.Code
		ge.Message = env.Error.Message

		return ge
	}

	ge.Message = strings.TrimSpace(string(body))

	return ge
}

// classifyStatus maps an HTTP status to its sentinel, or nil.
func classifyStatus(code int) error {
	if err, ok := statusSentinels[code]; ok {
		return err
	}

	if code >= http.StatusInternalServerError {
		return ErrServerError
	}

	return nil
}

// isRetryable reports whether a response with this status is worth
// repeating after a backoff.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		statusBandwidthExceeded:
		return true
	}

	return false
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
