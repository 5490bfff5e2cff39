package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/italolelis/cedric/internal/downloader"
	"github.com/italolelis/cedric/internal/logctx"
	"github.com/italolelis/cedric/internal/resource"
	"github.com/italolelis/cedric/internal/transfer"
)

const (
	queueSize     = 64
	notifyTimeout = 10 * time.Second
)

// Dispatcher turns download events into notifications. Messages are queued so
// observers never wait on the network; when the queue is full they are dropped.
type Dispatcher struct {
	notifier Notifier
	queue    chan string
	observer *downloader.Observer
}

func NewDispatcher(n Notifier) *Dispatcher {
	d := &Dispatcher{notifier: n, queue: make(chan string, queueSize)}

	d.observer = &downloader.Observer{
		OnFinished: func(res resource.Resource, file resource.DownloadedFile) {
			d.enqueue(fmt.Sprintf("✅ Downloaded **%s** (%s)", file.Name(), res.ID))
		},
		OnFailed: func(err error, _ transfer.Task, res resource.Resource) {
			if transfer.IsCanceled(err) {
				return
			}

			d.enqueue(fmt.Sprintf("❌ Failed to download **%s** (%s): %v", res.DestinationName, res.ID, err))
		},
		OnBatchFinished: func(lastErr error) {
			if lastErr != nil {
				d.enqueue(fmt.Sprintf("⚠️ Downloads finished with errors, last one: %v", lastErr))
				return
			}

			d.enqueue("🏁 All downloads finished")
		},
	}

	return d
}

// Observer returns the observer to subscribe. It lives as long as the Dispatcher.
func (d *Dispatcher) Observer() *downloader.Observer {
	return d.observer
}

func (d *Dispatcher) enqueue(msg string) {
	select {
	case d.queue <- msg:
	default:
		slog.Warn("notification queue full, dropping message")
	}
}

// Run sends queued notifications until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx).With("component", "notifier")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-d.queue:
			sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
			if err := d.notifier.Notify(sendCtx, msg); err != nil {
				logger.Error("failed to send notification", "err", err)
			}
			cancel()
		}
	}
}
