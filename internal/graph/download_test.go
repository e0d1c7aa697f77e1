package graph

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int // served in order; the last repeats
		wantErr  error
		wantBody string
		calls    int32
	}{
		{name: "ok", statuses: []int{http.StatusOK}, wantBody: "file contents", calls: 1},
		{name: "retries server error", statuses: []int{http.StatusInternalServerError, http.StatusOK}, wantBody: "file contents", calls: 2},
		{name: "gone is final", statuses: []int{http.StatusGone}, wantErr: ErrGone, calls: 1},
		{name: "expired url is not refreshed", statuses: []int{http.StatusUnauthorized}, wantErr: ErrUnauthorized, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Empty(t, r.Header.Get("Authorization"), "pre-authenticated URLs carry no bearer token")

				n := int(calls.Add(1)) - 1
				status := tt.statuses[min(n, len(tt.statuses)-1)]

				w.WriteHeader(status)

				if status == http.StatusOK {
					_, _ = w.Write([]byte("file contents"))
				}
			}))
			defer srv.Close()

			tok := &rotatingToken{}
			client := NewClient(srv.URL, http.DefaultClient, tok, slog.Default())
			client.sleepFunc = noopSleep

			body, err := client.Download(context.Background(), srv.URL+"/download/abc")
			assert.Equal(t, tt.calls, calls.Load())
			assert.Zero(t, tok.refreshes.Load())

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			defer body.Close()

			data, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(data))
		})
	}
}

func TestDownload_NoURL(t *testing.T) {
	client := newTestClient(t, "http://localhost")

	_, err := client.Download(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoDownloadURL)
}

func TestDownload_CountsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	m := NewMetrics(prometheus.NewRegistry())
	client := newTestClient(t, srv.URL).WithMetrics(m)

	body, err := client.Download(context.Background(), srv.URL+"/content")
	require.NoError(t, err)
	body.Close()

	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")), 0)
}
