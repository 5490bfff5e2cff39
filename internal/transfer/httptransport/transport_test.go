package httptransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/italolelis/cedric/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T, opts ...Option) *Transport {
	t.Helper()

	tr := New(Config{
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
		ProgressInterval: 64,
		StagingDir:       t.TempDir(),
	}, opts...)
	t.Cleanup(func() { tr.Close() })

	return tr
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)

	return u
}

// collect reads events until the terminal one or the timeout.
func collect(t *testing.T, tr *Transport) (progress []transfer.Event, terminal transfer.Event) {
	t.Helper()

	timeout := time.After(5 * time.Second)

	for {
		select {
		case ev := <-tr.Events():
			if ev.Terminal() {
				return progress, ev
			}

			progress = append(progress, ev)
		case <-timeout:
			t.Fatal("timed out waiting for terminal event")
		}
	}
}

func TestTransport_DownloadsToStagingFile(t *testing.T) {
	body := strings.Repeat("cedric", 100)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	tr := newTestTransport(t)

	task, err := tr.Create(context.Background(), mustParse(t, srv.URL+"/file.bin"))
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID())

	task.Resume()
	task.Resume()

	progress, terminal := collect(t, tr)
	require.NoError(t, terminal.Err)
	assert.Same(t, task, terminal.Task)
	assert.NotEmpty(t, progress)

	data, err := os.ReadFile(terminal.Location)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	written, expected := task.Progress()
	assert.Equal(t, int64(len(body)), written)
	assert.Equal(t, int64(len(body)), expected)
}

func TestTransport_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus int
		wantHits   int32
	}{
		{name: "not found is permanent", status: http.StatusNotFound, wantStatus: http.StatusNotFound, wantHits: 1},
		{name: "server error is retried", status: http.StatusBadGateway, wantStatus: http.StatusBadGateway, wantHits: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			tr := newTestTransport(t)

			task, err := tr.Create(context.Background(), mustParse(t, srv.URL))
			require.NoError(t, err)
			task.Resume()

			_, terminal := collect(t, tr)

			var terr *transfer.TransportError
			require.ErrorAs(t, terminal.Err, &terr)
			assert.Equal(t, tt.wantStatus, terr.StatusCode)
			assert.Empty(t, terminal.Location)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestTransport_RetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tr := newTestTransport(t)

	task, err := tr.Create(context.Background(), mustParse(t, srv.URL))
	require.NoError(t, err)
	task.Resume()

	_, terminal := collect(t, tr)
	require.NoError(t, terminal.Err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestTransport_Cancel(t *testing.T) {
	started := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr := newTestTransport(t)
	staging := tr.cfg.StagingDir

	task, err := tr.Create(context.Background(), mustParse(t, srv.URL))
	require.NoError(t, err)
	task.Resume()

	<-started
	task.Cancel()

	_, terminal := collect(t, tr)
	assert.True(t, transfer.IsCanceled(terminal.Err))
	assert.Empty(t, terminal.Location)

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransport_UnsupportedScheme(t *testing.T) {
	tr := newTestTransport(t)

	_, err := tr.Create(context.Background(), mustParse(t, "ftp://example.com/file"))

	var terr *transfer.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "create_task", terr.Operation)
}

type stubResolver struct {
	target string
	err    error
}

func (s stubResolver) Scheme() string { return "stub" }

func (s stubResolver) Resolve(_ context.Context, _ *url.URL) (*url.URL, error) {
	if s.err != nil {
		return nil, s.err
	}

	return url.Parse(s.target)
}

func TestTransport_Resolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("resolved"))
	}))
	defer srv.Close()

	t.Run("resolved source is fetched", func(t *testing.T) {
		tr := newTestTransport(t, WithResolver(stubResolver{target: srv.URL}))

		task, err := tr.Create(context.Background(), mustParse(t, "stub://42"))
		require.NoError(t, err)
		task.Resume()

		_, terminal := collect(t, tr)
		require.NoError(t, terminal.Err)

		data, err := os.ReadFile(terminal.Location)
		require.NoError(t, err)
		assert.Equal(t, "resolved", string(data))
	})

	t.Run("resolver failure", func(t *testing.T) {
		tr := newTestTransport(t, WithResolver(stubResolver{err: errors.New("no such file")}))

		task, err := tr.Create(context.Background(), mustParse(t, "stub://42"))
		require.NoError(t, err)
		task.Resume()

		_, terminal := collect(t, tr)

		var terr *transfer.TransportError
		require.ErrorAs(t, terminal.Err, &terr)
		assert.Equal(t, "resolve_source", terr.Operation)
	})
}
