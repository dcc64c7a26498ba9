package engine_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchq/fetchq/internal/engine"
	"github.com/fetchq/fetchq/internal/task"
)

func TestHTTPClientCommandRoundTrip(t *testing.T) {
	id := uuid.New()

	mux := http.NewServeMux()
	mux.HandleFunc("/rpc/add", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok":true,"data":{"id":%q}}`, id)
	})
	mux.HandleFunc("/rpc/pauseAll", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"data":{"count":3}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := engine.NewHTTPClient(server.URL, 0)
	ctx := context.Background()

	got, err := client.Add(ctx, task.Request{URL: "https://example.com/a.iso", Destination: "/downloads"})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	count, err := client.PauseAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestHTTPClientErrorMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc/pause", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":false,"error":{"code":"not_found","message":"no such task"}}`)
	})
	mux.HandleFunc("/rpc/add", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":false,"error":{"code":"invalid_request","message":"bad url"}}`)
	})
	mux.HandleFunc("/rpc/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":false,"error":{"code":"internal","message":"disk on fire"}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := engine.NewHTTPClient(server.URL, 0)
	ctx := context.Background()

	err := client.Pause(ctx, uuid.New())
	assert.ErrorIs(t, err, engine.ErrTaskNotFound)

	_, err = client.Add(ctx, task.Request{URL: "https://example.com/a.iso", Destination: "/d"})
	assert.ErrorIs(t, err, task.ErrInvalidRequest)

	err = client.Cancel(ctx, uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrTaskNotFound)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestHTTPClientUnreachableEngine(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := engine.NewHTTPClient(server.URL, 0)

	_, err := client.ListTasks(context.Background())
	assert.ErrorIs(t, err, engine.ErrUnavailable)
}

func TestHTTPClientEventStream(t *testing.T) {
	id := uuid.New()

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintf(w, `{"kind":"started","taskId":%q}`+"\n", id)
		fmt.Fprintf(w, `{"kind":"progress","taskId":%q,"downloadedBytes":512,"totalBytes":1024,"speedBytesPerSec":256}`+"\n", id)
		fmt.Fprint(w, `{"kind":"somethingNew"}`+"\n")
		fmt.Fprintf(w, `{"kind":"failed","taskId":%q,"reason":"connection reset"}`+"\n", id)
		fmt.Fprint(w, `{"kind":"queueSnapshot","stats":{"queued":2,"downloading":1}}`+"\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := engine.NewHTTPClient(server.URL, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := client.Events(ctx)
	require.NoError(t, err)

	collect := func() engine.Event {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event feed closed early")
			return ev
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
			return nil
		}
	}

	started, ok := collect().(engine.Started)
	require.True(t, ok)
	assert.Equal(t, id, started.TaskID)

	progress, ok := collect().(engine.Progress)
	require.True(t, ok)
	assert.Equal(t, int64(512), progress.DownloadedBytes)
	assert.Equal(t, int64(1024), progress.TotalBytes)
	assert.Equal(t, int64(256), progress.SpeedBPS)

	// The unknown kind was dropped; next up is the failure.
	failed, ok := collect().(engine.Failed)
	require.True(t, ok)
	assert.Equal(t, "connection reset", failed.Reason)

	snapshot, ok := collect().(engine.QueueSnapshot)
	require.True(t, ok)
	assert.Equal(t, 2, snapshot.Stats.Queued)
	assert.Equal(t, 1, snapshot.Stats.Downloading)

	// Stream ended; the channel closes.
	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("event channel did not close")
	}
}
