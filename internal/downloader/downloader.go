// Package downloader orchestrates downloads into a single downloads directory.
//
// Resources are admitted through a bounded scheduler, transferred by a Transport
// and placed by a Placer. Lifecycle events are multicast to weakly held observers
// on one delivery executor, so with the default serial executor observers see
// events in a total order: for each download, started, then progress, then exactly
// one of finished or failed, and batch finished after the terminal event that
// drained the queue.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/cedric/internal/logctx"
	"github.com/italolelis/cedric/internal/multicast"
	"github.com/italolelis/cedric/internal/registry"
	"github.com/italolelis/cedric/internal/resource"
	"github.com/italolelis/cedric/internal/scheduler"
	"github.com/italolelis/cedric/internal/telemetry"
	"github.com/italolelis/cedric/internal/transfer"
)

// DefaultMaxParallel is the number of concurrent transfers when none is configured.
const DefaultMaxParallel = 25

var ErrAlreadyStarted = errors.New("downloader: already started")

// Placer moves finished transfers into the downloads directory and manages the
// files placed there.
type Placer interface {
	Place(tempLocation string, res resource.Resource) (resource.DownloadedFile, error)
	Existing(name string) (resource.DownloadedFile, bool)
	AbsolutePath(file resource.DownloadedFile) (string, error)
	Remove(file resource.DownloadedFile) error
	Clean() error
}

type Downloader struct {
	transport transfer.Transport
	placer    Placer
	sched     *scheduler.Scheduler
	observers *multicast.Multicaster[Observer]
	items     *registry.Registry[*item]
	tel       *telemetry.Telemetry
	logger    *slog.Logger

	exec    multicast.Executor
	ownExec *multicast.SerialExecutor

	// mu serializes admission against deregistration so that draining the
	// registry and starting a new batch are atomic.
	mu    sync.Mutex
	batch *batch

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Downloader)

// WithMaxParallel sets how many transfers run at once. 1 downloads serially.
func WithMaxParallel(n int) Option {
	return func(d *Downloader) {
		d.sched = scheduler.New(n)
	}
}

// WithExecutor sets where observer callbacks run. The executor is not closed by
// the Downloader.
func WithExecutor(e multicast.Executor) Option {
	return func(d *Downloader) {
		d.exec = e
	}
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(d *Downloader) {
		d.tel = t
	}
}

// WithLogger sets the logger used by the background loops. By default the logger
// of the context passed to Start is used.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = l
	}
}

func New(transport transfer.Transport, placer Placer, opts ...Option) *Downloader {
	d := &Downloader{
		transport: transport,
		placer:    placer,
		items:     registry.New[*item](),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.sched == nil {
		d.sched = scheduler.New(DefaultMaxParallel)
	}

	if d.exec == nil {
		d.ownExec = multicast.NewSerialExecutor()
		d.exec = d.ownExec
	}

	d.observers = multicast.New[Observer](d.exec)

	return d
}

// Start launches the scheduler and the transport event loop. They stop when ctx is
// done or Close is called.
func (d *Downloader) Start(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.cancel != nil {
		return ErrAlreadyStarted
	}

	if d.logger != nil {
		ctx = logctx.WithLogger(ctx, d.logger)
	}

	ctx, d.cancel = context.WithCancel(ctx)

	if err := d.tel.RegisterQueueGauges(
		func() int64 { return int64(d.sched.Pending()) },
		func() int64 { return int64(d.sched.Running()) },
	); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to register queue gauges", "err", err)
	}

	d.wg.Add(2)

	go func() {
		defer d.wg.Done()

		if err := d.sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logctx.LoggerFromContext(ctx).Error("scheduler stopped", "err", err)
		}
	}()

	go func() {
		defer d.wg.Done()

		d.dispatch(ctx)
	}()

	logctx.LoggerFromContext(ctx).Info("downloader started", "max_parallel", d.sched.Limit())

	return nil
}

// Close cancels every download, stops the background loops and delivers the
// events already published.
func (d *Downloader) Close() error {
	d.CancelAll()

	d.runMu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.runMu.Unlock()

	d.wg.Wait()

	if d.ownExec != nil {
		d.ownExec.Close()
	}

	return nil
}

func (d *Downloader) Subscribe(o *Observer) {
	d.observers.Subscribe(o)
}

func (d *Downloader) Unsubscribe(o *Observer) {
	d.observers.Unsubscribe(o)
}

// Enqueue schedules res for download.
//
// A resource without a source fails with *transfer.MissingSourceError. In
// ModeReuseIfExists a file already present under the destination name is reported
// through OnFinished and nothing is downloaded, and a resource whose destination
// name is already being downloaded is ignored. Transfer failures are never
// returned; they are reported through OnFailed.
func (d *Downloader) Enqueue(ctx context.Context, res resource.Resource) error {
	logger := logctx.LoggerFromContext(ctx).With("resource_id", res.ID, "destination", res.DestinationName)

	if res.Source == nil {
		return &transfer.MissingSourceError{ResourceID: res.ID}
	}

	d.mu.Lock()

	if res.Mode == resource.ModeReuseIfExists {
		if file, ok := d.placer.Existing(res.DestinationName); ok {
			d.mu.Unlock()

			logger.Debug("reusing downloaded file", "file", file.RelativePath)
			d.tel.RecordReusedDownload()
			d.publish(eventFinished, nil, func(o *Observer) {
				if o.OnFinished != nil {
					o.OnFinished(res, file)
				}
			})

			return nil
		}
	}

	it := newItem(res, d.tel.DecrementActiveDownloads)

	sameName := func(other *item) bool { return other.res.DestinationName == res.DestinationName }
	if res.Mode == resource.ModeReuseIfExists {
		if !d.items.AppendUnless(sameName, it) {
			d.mu.Unlock()

			logger.Debug("destination already downloading")

			return nil
		}
	} else {
		d.items.Append(it)
	}

	if d.batch == nil {
		d.batch = newBatch()
	}

	d.batch.add()
	d.tel.IncrementActiveDownloads()

	if err := d.sched.Admit(d.startJob(it)); err != nil {
		d.items.RemoveWhere(func(other *item) bool { return other == it })
		d.tel.DecrementActiveDownloads()

		if d.items.IsEmpty() {
			d.batch = nil
		}

		d.mu.Unlock()

		return fmt.Errorf("failed to schedule download: %w", err)
	}

	d.mu.Unlock()

	logger.Debug("download enqueued", "mode", res.Mode.String(), "source", res.Source.Redacted())

	return nil
}

// EnqueueMany enqueues resources in order and stops at the first failure.
func (d *Downloader) EnqueueMany(ctx context.Context, resources []resource.Resource) error {
	for i, res := range resources {
		if err := d.Enqueue(ctx, res); err != nil {
			return fmt.Errorf("failed to enqueue resource %d (%s): %w", i, res.ID, err)
		}
	}

	return nil
}

// startJob creates and resumes the transfer of it. The slot stays held until the
// transfer ends or the item is canceled.
func (d *Downloader) startJob(it *item) scheduler.Job {
	return func(ctx context.Context, slot *scheduler.Slot) {
		if !it.attachSlot(slot) {
			slot.Release()

			return
		}

		logger := logctx.LoggerFromContext(ctx).With("resource_id", it.res.ID)

		defer func() {
			if r := recover(); r != nil {
				logger.Error("download start panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))

				task := it.Task()
				if task != nil {
					task.Cancel()
				}

				d.finish(ctx, it, task, resource.DownloadedFile{},
					&transfer.TransportError{Operation: "create_task", Err: fmt.Errorf("panic: %v", r)})
			}
		}()

		task, err := d.transport.Create(ctx, it.res.Source)
		if err != nil {
			var terr *transfer.TransportError
			if !errors.As(err, &terr) {
				err = &transfer.TransportError{Operation: "create_task", Err: err}
			}

			logger.Error("failed to create transfer", "err", err)
			d.finish(ctx, it, nil, resource.DownloadedFile{}, err)

			return
		}

		if !it.attachTask(task) {
			task.Cancel()

			return
		}

		logger.Info("download started", "task_id", task.ID(), "destination", it.res.DestinationName)

		d.publish(eventStarted, it, func(o *Observer) {
			if o.OnStarted != nil {
				o.OnStarted(it.res, task)
			}
		})

		task.Resume()
	}
}

// dispatch consumes transport events until ctx is done.
func (d *Downloader) dispatch(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)
	events := d.transport.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				logger.Warn("transport event stream closed")

				return
			}

			d.handle(ctx, ev)
		}
	}
}

func (d *Downloader) handle(ctx context.Context, ev transfer.Event) {
	it, ok := d.items.FirstWhere(func(it *item) bool { return it.owns(ev.Task) })
	if !ok {
		// Canceled items are deregistered before their transport unwinds. The
		// staging file of a transfer that completed anyway is ours to remove.
		if ev.Terminal() && ev.Location != "" {
			if err := os.Remove(ev.Location); err != nil && !errors.Is(err, os.ErrNotExist) {
				logctx.LoggerFromContext(ctx).Warn("failed to remove staging file", "location", ev.Location, "err", err)
			}
		}

		return
	}

	if !ev.Terminal() {
		task := ev.Task

		d.publish(eventProgress, it, func(o *Observer) {
			if o.OnProgress != nil {
				o.OnProgress(task, it.res)
			}
		})

		return
	}

	if ev.Err != nil {
		d.finish(ctx, it, ev.Task, resource.DownloadedFile{}, ev.Err)

		return
	}

	file, err := d.placer.Place(ev.Location, it.res)
	if err != nil {
		var perr *transfer.PlacementError
		if errors.As(err, &perr) {
			d.tel.RecordPlacementError(perr.Op)
		}
	}

	d.finish(ctx, it, ev.Task, file, err)
}

// finish deregisters it and publishes its terminal event, followed by the batch
// event when it was the last registered download. The slot is released last.
func (d *Downloader) finish(ctx context.Context, it *item, task transfer.Task, file resource.DownloadedFile, err error) {
	logger := logctx.LoggerFromContext(ctx).With("resource_id", it.res.ID, "destination", it.res.DestinationName)

	d.mu.Lock()

	if _, removed := d.items.RemoveWhere(func(other *item) bool { return other == it }); !removed {
		d.mu.Unlock()

		return
	}

	it.markCompleted()

	if err != nil && d.batch != nil {
		d.batch.fail(err)
	}

	drained := d.drainedLocked()

	d.mu.Unlock()

	var written int64
	if task != nil {
		written, _ = task.Progress()
	}

	if err != nil {
		logger.Error("download failed", "err", err)
		d.tel.RecordDownload("error", it.elapsed(), written)
		d.publish(eventFailed, nil, func(o *Observer) {
			if o.OnFailed != nil {
				o.OnFailed(err, task, it.res)
			}
		})
	} else {
		logger.Info("download finished", "file", file.RelativePath, "size", humanize.Bytes(uint64(max(written, 0))))
		d.tel.RecordDownload("success", it.elapsed(), written)
		d.publish(eventFinished, nil, func(o *Observer) {
			if o.OnFinished != nil {
				o.OnFinished(it.res, file)
			}
		})
	}

	d.publishBatchFinished(ctx, drained)

	it.complete()
}

// drainedLocked ends the current batch if the registry is empty. d.mu must be held.
func (d *Downloader) drainedLocked() *batch {
	if !d.items.IsEmpty() || d.batch == nil {
		return nil
	}

	b := d.batch
	d.batch = nil

	return b
}

func (d *Downloader) publishBatchFinished(ctx context.Context, b *batch) {
	if b == nil {
		return
	}

	lastErr := b.lastErr

	logctx.LoggerFromContext(ctx).Info("download batch finished",
		"downloads", b.items,
		"failures", b.failures,
		"duration", time.Since(b.startedAt).Round(time.Millisecond).String(),
		"last_err", lastErr)
	d.tel.RecordBatchFinished(lastErr != nil)

	d.publish(eventBatchFinished, nil, func(o *Observer) {
		if o.OnBatchFinished != nil {
			o.OnBatchFinished(lastErr)
		}
	})
}

// publish delivers an event to every observer on the executor. Events about an
// item are dropped if the item is canceled by the time they are delivered.
func (d *Downloader) publish(event string, about *item, fn func(*Observer)) {
	d.tel.RecordEvent(event)

	d.observers.Publish(func(o *Observer) {
		if about != nil && about.isCanceled() {
			return
		}

		fn(o)
	})
}

// Cancel cancels and deregisters every download of resources with id. It does not
// wait for the transport to stop.
func (d *Downloader) Cancel(id string) {
	d.cancelWhere(context.Background(), func(it *item) bool { return it.res.ID == id })
}

// CancelAll cancels and deregisters every download.
func (d *Downloader) CancelAll() {
	d.cancelWhere(context.Background(), func(*item) bool { return true })
}

func (d *Downloader) cancelWhere(ctx context.Context, match func(*item) bool) {
	d.mu.Lock()

	var (
		canceled []*item
		tasks    []transfer.Task
	)

	for {
		it, ok := d.items.RemoveWhere(match)
		if !ok {
			break
		}

		canceled = append(canceled, it)
		tasks = append(tasks, it.markCanceled())
	}

	var drained *batch
	if len(canceled) > 0 {
		drained = d.drainedLocked()
	}

	d.mu.Unlock()

	for i, it := range canceled {
		if tasks[i] != nil {
			tasks[i].Cancel()
		}

		d.tel.RecordDownload("canceled", it.elapsed(), 0)
		it.complete()
	}

	d.publishBatchFinished(ctx, drained)
}

// IsDownloading reports whether a download of a resource with id is registered,
// including downloads still waiting for a slot.
func (d *Downloader) IsDownloading(id string) bool {
	return d.items.ContainsWhere(func(it *item) bool { return it.res.ID == id })
}

// ActiveTask returns the transport task of the first registered download of a
// resource with id. Downloads waiting for a slot have no task yet.
func (d *Downloader) ActiveTask(id string) (transfer.Task, bool) {
	it, ok := d.items.FirstWhere(func(it *item) bool { return it.res.ID == id })
	if !ok {
		return nil, false
	}

	task := it.Task()

	return task, task != nil
}

// ActiveTaskFor is ActiveTask keyed by the resource's id.
func (d *Downloader) ActiveTaskFor(res resource.Resource) (transfer.Task, bool) {
	return d.ActiveTask(res.ID)
}

// ActiveTasks returns the tasks of every registered download that has started.
func (d *Downloader) ActiveTasks() []transfer.Task {
	var tasks []transfer.Task

	d.items.ForEach(func(it *item) {
		if task := it.Task(); task != nil {
			tasks = append(tasks, task)
		}
	})

	return tasks
}

// ActiveResources returns the resources of every registered download.
func (d *Downloader) ActiveResources() []resource.Resource {
	items := d.items.Snapshot()
	out := make([]resource.Resource, 0, len(items))

	for _, it := range items {
		out = append(out, it.res)
	}

	return out
}

// Active is a registered download. Task is nil until the download has started.
type Active struct {
	Resource resource.Resource
	Task     transfer.Task
}

// ActiveDownloads returns every registered download with its own task, so
// downloads sharing an id are told apart.
func (d *Downloader) ActiveDownloads() []Active {
	items := d.items.Snapshot()
	out := make([]Active, 0, len(items))

	for _, it := range items {
		out = append(out, Active{Resource: it.res, Task: it.Task()})
	}

	return out
}

// ExistingFile returns the file already downloaded under name, if any.
func (d *Downloader) ExistingFile(name string) (resource.DownloadedFile, bool) {
	return d.placer.Existing(name)
}

// RemoveDownloadedFile deletes a downloaded file. Failures are *transfer.FilesystemError.
func (d *Downloader) RemoveDownloadedFile(file resource.DownloadedFile) error {
	return d.placer.Remove(file)
}

// CleanDownloadsDirectory deletes everything in the downloads directory. Failures
// are *transfer.FilesystemError.
func (d *Downloader) CleanDownloadsDirectory() error {
	return d.placer.Clean()
}

// AbsolutePath resolves a downloaded file against the downloads directory.
func (d *Downloader) AbsolutePath(file resource.DownloadedFile) (string, error) {
	return d.placer.AbsolutePath(file)
}
