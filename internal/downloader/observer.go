package downloader

import (
	"github.com/italolelis/cedric/internal/resource"
	"github.com/italolelis/cedric/internal/transfer"
)

// Observer receives download lifecycle events. Nil callbacks are skipped.
//
// The Downloader holds observers weakly: keep a reference to the Observer for as
// long as it should receive events.
type Observer struct {
	// OnStarted is called once the transport task exists, before it is resumed.
	OnStarted func(res resource.Resource, task transfer.Task)
	// OnProgress is called whenever the transport reports written bytes. Read the
	// counts from task.Progress.
	OnProgress func(task transfer.Task, res resource.Resource)
	// OnFinished is called when a resource is available on disk, either after a
	// transfer or because a previous download was reused.
	OnFinished func(res resource.Resource, file resource.DownloadedFile)
	// OnFailed is called when a transfer or its placement fails. task is nil when
	// the transport could not create one.
	OnFailed func(err error, task transfer.Task, res resource.Resource)
	// OnBatchFinished is called when the last registered download ends, with the
	// most recent failure of the batch or nil.
	OnBatchFinished func(lastErr error)
}

const (
	eventStarted       = "started"
	eventProgress      = "progress"
	eventFinished      = "finished"
	eventFailed        = "failed"
	eventBatchFinished = "batch_finished"
)
