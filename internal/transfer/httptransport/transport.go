// Package httptransport downloads resources over HTTP(S) into a staging directory.
//
// Requests are retried with exponential backoff on network errors, 429 and 5xx
// responses. Bodies are streamed to a temporary file whose path is carried by the
// terminal event; the file belongs to the receiver from then on.
package httptransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/italolelis/cedric/internal/logctx"
	"github.com/italolelis/cedric/internal/transfer"
	"github.com/italolelis/cedric/internal/transfer/progress"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config tunes the transport. Zero values select the defaults.
type Config struct {
	RetryAttempts    uint
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	ProgressInterval int64
	// ResponseTimeout bounds the wait for response headers. The body itself is not
	// bounded.
	ResponseTimeout time.Duration
	StagingDir      string
	EventBuffer     int
}

const (
	defaultRetryAttempts    = 3
	defaultInitialBackoff   = 500 * time.Millisecond
	defaultMaxBackoff       = 30 * time.Second
	defaultProgressInterval = 1 << 20 // 1MiB
	defaultEventBuffer      = 256
)

func (c Config) withDefaults() Config {
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaultRetryAttempts
	}

	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}

	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}

	if c.ProgressInterval <= 0 {
		c.ProgressInterval = defaultProgressInterval
	}

	if c.StagingDir == "" {
		c.StagingDir = os.TempDir()
	}

	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}

	return c
}

// SourceResolver turns a URL with a custom scheme into a URL that can be fetched
// over HTTP.
type SourceResolver interface {
	Scheme() string
	Resolve(ctx context.Context, source *url.URL) (*url.URL, error)
}

type Transport struct {
	cfg       Config
	client    *http.Client
	resolvers map[string]SourceResolver
	events    chan transfer.Event

	closeOnce sync.Once
	done      chan struct{}
}

type Option func(*Transport)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		t.client = c
	}
}

// WithResolver registers a resolver for its scheme.
func WithResolver(r SourceResolver) Option {
	return func(t *Transport) {
		t.resolvers[r.Scheme()] = r
	}
}

func New(cfg Config, opts ...Option) *Transport {
	cfg = cfg.withDefaults()

	t := &Transport{
		cfg:       cfg,
		resolvers: map[string]SourceResolver{},
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.client == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.ResponseHeaderTimeout = cfg.ResponseTimeout

		t.client = &http.Client{Transport: otelhttp.NewTransport(base)}
	}

	t.events = make(chan transfer.Event, cfg.EventBuffer)

	return t
}

func (t *Transport) Events() <-chan transfer.Event {
	return t.events
}

// Close stops delivering events. Running tasks keep their context; cancel them to
// stop their transfer.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })

	return nil
}

// Create returns a suspended task for source. Only http, https and schemes with a
// registered resolver are accepted.
func (t *Transport) Create(ctx context.Context, source *url.URL) (transfer.Task, error) {
	if source == nil {
		return nil, &transfer.TransportError{Operation: "create_task", Err: errors.New("nil source")}
	}

	switch source.Scheme {
	case "http", "https":
	default:
		if _, ok := t.resolvers[source.Scheme]; !ok {
			return nil, &transfer.TransportError{
				Operation: "create_task",
				Err:       fmt.Errorf("unsupported scheme %q", source.Scheme),
			}
		}
	}

	taskCtx, cancel := context.WithCancel(ctx)

	return &task{
		id:        uuid.NewString(),
		source:    source,
		ctx:       taskCtx,
		cancel:    cancel,
		transport: t,
		expected:  -1,
	}, nil
}

type task struct {
	id        string
	source    *url.URL
	ctx       context.Context
	cancel    context.CancelFunc
	transport *Transport
	resume    sync.Once

	mu       sync.Mutex
	written  int64
	expected int64
}

func (k *task) ID() string       { return k.id }
func (k *task) Source() *url.URL { return k.source }

// Resume starts the transfer. Only the first call has an effect.
func (k *task) Resume() {
	k.resume.Do(func() {
		go k.transport.run(k)
	})
}

// Cancel stops the transfer. The terminal event carries transfer.ErrCanceled.
func (k *task) Cancel() {
	k.cancel()
}

// Progress returns the bytes written so far and the expected size, or -1 when the
// server did not announce one.
func (k *task) Progress() (int64, int64) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.written, k.expected
}

func (k *task) setProgress(written, expected int64) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.written, k.expected = written, expected
}

func (t *Transport) run(k *task) {
	defer k.cancel()

	logger := logctx.LoggerFromContext(k.ctx).With("task_id", k.id)

	location, err := t.fetch(k, logger)
	if err != nil && k.ctx.Err() != nil {
		err = &transfer.TransportError{Operation: "get", Err: fmt.Errorf("%w: %w", transfer.ErrCanceled, context.Cause(k.ctx))}
	}

	written, _ := k.Progress()

	if err != nil {
		logger.Debug("transfer failed", "err", err)
	} else {
		logger.Debug("transfer completed", "size", humanize.Bytes(uint64(max(written, 0))), "location", location)
	}

	ev := transfer.Event{
		Task:     k,
		Kind:     transfer.EventTerminal,
		Written:  written,
		Location: location,
		Err:      err,
	}

	select {
	case t.events <- ev:
	case <-t.done:
		if location != "" {
			os.Remove(location)
		}
	}
}

// fetch downloads the task source into a staging file and returns its path. On
// error no staging file is left behind.
func (t *Transport) fetch(k *task, logger *slog.Logger) (string, error) {
	source, err := t.resolve(k)
	if err != nil {
		return "", err
	}

	resp, err := t.get(k.ctx, source, logger)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	out, err := os.CreateTemp(t.cfg.StagingDir, "cedric-*.part")
	if err != nil {
		return "", &transfer.TransportError{Operation: "write", Err: err}
	}

	expected := resp.ContentLength
	k.setProgress(0, expected)

	logger.Info("downloading", "source", source.Redacted(), "size", sizeOf(expected))

	pr := progress.NewReader(resp.Body, expected, t.cfg.ProgressInterval, func(written, total int64) {
		k.setProgress(written, total)
		t.emitProgress(k, written, total)
	})

	if _, err := io.Copy(out, pr); err != nil {
		out.Close()
		os.Remove(out.Name())

		return "", &transfer.TransportError{Operation: "read", Err: err}
	}

	if err := out.Close(); err != nil {
		os.Remove(out.Name())

		return "", &transfer.TransportError{Operation: "write", Err: err}
	}

	k.setProgress(pr.Written(), expected)

	return out.Name(), nil
}

func (t *Transport) resolve(k *task) (*url.URL, error) {
	r, ok := t.resolvers[k.source.Scheme]
	if !ok {
		return k.source, nil
	}

	resolved, err := r.Resolve(k.ctx, k.source)
	if err != nil {
		return nil, &transfer.TransportError{Operation: "resolve_source", Err: err}
	}

	return resolved, nil
}

func (t *Transport) get(ctx context.Context, source *url.URL, logger *slog.Logger) (*http.Response, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = t.cfg.InitialBackoff
	eb.MaxInterval = t.cfg.MaxBackoff

	operation := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.String(), nil)
		if err != nil {
			return nil, backoff.Permanent(&transfer.TransportError{Operation: "get", Err: err})
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}

			return nil, &transfer.TransportError{Operation: "get", Err: err}
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()

		terr := &transfer.TransportError{Operation: "get", StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}

		if !retryable(resp.StatusCode) {
			return nil, backoff.Permanent(terr)
		}

		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			logger.Debug("server asked to retry later", "retry_after", secs)

			return nil, backoff.RetryAfter(secs)
		}

		return nil, terr
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(t.cfg.RetryAttempts+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn("retrying download", "err", err, "wait", wait)
		}),
	)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (t *Transport) emitProgress(k *task, written, expected int64) {
	select {
	case t.events <- transfer.Event{Task: k, Kind: transfer.EventProgress, Written: written, Expected: expected}:
	case <-k.ctx.Done():
	case <-t.done:
	}
}

func sizeOf(n int64) string {
	if n < 0 {
		return "unknown"
	}

	return humanize.Bytes(uint64(n))
}
