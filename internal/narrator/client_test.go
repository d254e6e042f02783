package narrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sseServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeDelta(w http.ResponseWriter, content string) {
	fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
	w.(http.Flusher).Flush()
}

func TestStreamDeltas(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"stream":true`)
		assert.Contains(t, string(body), `"model":"test-model"`)

		w.Header().Set("Content-Type", "text/event-stream")
		writeDelta(w, "the night ")
		fmt.Fprint(w, ": heartbeat comment\n\n")
		writeDelta(w, "answers")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	c := NewClient(srv.URL, "test-model", 0.8, 100, discardLogger())
	var got strings.Builder
	err := c.Stream(context.Background(), []Message{{Role: "user", Content: "hello"}}, func(d string) {
		got.WriteString(d)
	})
	require.NoError(t, err)
	assert.Equal(t, "the night answers", got.String())
}

func TestStreamStopsAtSentinel(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeDelta(w, "before")
		fmt.Fprint(w, "data: [DONE]\n\n")
		writeDelta(w, "after")
	})

	c := NewClient(srv.URL, "m", 0, 10, discardLogger())
	var got strings.Builder
	err := c.Stream(context.Background(), nil, func(d string) { got.WriteString(d) })
	require.NoError(t, err)
	assert.Equal(t, "before", got.String())
}

func TestStreamNonOKStatus(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "proxy unhappy", http.StatusBadGateway)
	})

	c := NewClient(srv.URL, "m", 0, 10, discardLogger())
	err := c.Stream(context.Background(), nil, func(string) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "proxy unhappy")
}

func TestStreamSkipsUndecodableChunks(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: not json at all\n\n")
		writeDelta(w, "kept")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	c := NewClient(srv.URL, "m", 0, 10, discardLogger())
	var got strings.Builder
	err := c.Stream(context.Background(), nil, func(d string) { got.WriteString(d) })
	require.NoError(t, err)
	assert.Equal(t, "kept", got.String())
}

func TestStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeDelta(w, "first")
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(srv.URL, "m", 0, 10, discardLogger())

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Stream(ctx, nil, func(d string) {
			if d == "first" {
				cancel()
			}
		})
	}()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop promptly after cancellation")
	}
}
