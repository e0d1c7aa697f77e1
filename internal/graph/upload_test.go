package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/drive/ABC123/root:/a.txt:/content", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		assert.Equal(t, int64(5), r.ContentLength)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"new-1","name":"a.txt","size":5,"file":{"mimeType":"text/plain"}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	item, err := client.SimpleUpload(context.Background(), "/drive/ABC123/root:/a.txt:/content",
		"text/plain", strings.NewReader("hello"), 5)
	require.NoError(t, err)

	assert.Equal(t, "new-1", item.ID)
	assert.Equal(t, int64(5), item.Size)
}

func TestSimpleUpload_ErrorNotRetried(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.SimpleUpload(context.Background(), "/drive/ABC123/root:/a.txt:/content",
		"text/plain", strings.NewReader("hello"), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, 1, calls)
}

func TestCreateUploadSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/drive/ABC123/root:/big.bin:/createUploadSession", r.URL.Path)

		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "replace", body["item"]["@microsoft.graph.conflictBehavior"])

		fmt.Fprint(w, `{"uploadUrl":"https://upload.example/s1","expirationDateTime":"2030-01-01T00:00:00Z"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	session, err := client.CreateUploadSession(context.Background(), "/drive/ABC123/root:/big.bin:/createUploadSession")
	require.NoError(t, err)

	assert.Equal(t, "https://upload.example/s1", session.UploadURL)
	assert.Equal(t, 2030, session.ExpirationTime.Year())
}

func TestCreateUploadSession_MissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.CreateUploadSession(context.Background(), "/drive/ABC123/root:/big.bin:/createUploadSession")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no uploadUrl")
}

func TestUploadChunk_IntermediateAndFinal(t *testing.T) {
	var ranges []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		ranges = append(ranges, r.Header.Get("Content-Range"))

		if len(ranges) == 1 {
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprint(w, `{"nextExpectedRanges":["10-"]}`)

			return
		}

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"done","name":"big.bin","size":15,"file":{}}`)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	client := newTestClient(t, srv.URL).WithMetrics(NewMetrics(reg))
	session := &UploadSession{UploadURL: srv.URL + "/upload/s1"}

	item, err := client.UploadChunk(context.Background(), session, bytes.NewReader(make([]byte, 10)), 0, 10, 15)
	require.NoError(t, err)
	assert.Nil(t, item)

	item, err = client.UploadChunk(context.Background(), session, bytes.NewReader(make([]byte, 5)), 10, 5, 15)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "done", item.ID)

	assert.Equal(t, []string{"bytes 0-9/15", "bytes 10-14/15"}, ranges)
	assert.InDelta(t, 2, testutil.ToFloat64(client.metrics.chunks), 0)
	assert.InDelta(t, 15, testutil.ToFloat64(client.metrics.uploadedBytes), 0)
}

func TestUploadChunk_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	session := &UploadSession{UploadURL: srv.URL + "/upload/s1"}

	_, err := client.UploadChunk(context.Background(), session, bytes.NewReader([]byte("x")), 0, 1, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRangeInvalid)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, StatusCode(err))
}

func TestContentRange(t *testing.T) {
	assert.Equal(t, "bytes 0-327679/655360", ContentRange(0, ChunkAlignment, 2*ChunkAlignment))
	assert.Equal(t, "bytes 327680-655359/655360", ContentRange(ChunkAlignment, ChunkAlignment, 2*ChunkAlignment))
	assert.Equal(t, "bytes 0-0/1", ContentRange(0, 1, 1))
}

func TestCancelUploadSession(t *testing.T) {
	var deleted bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	require.NoError(t, client.CancelUploadSession(context.Background(), &UploadSession{UploadURL: srv.URL + "/upload/s1"}))
	assert.True(t, deleted)
}
