package sqlite

import (
	"context"

	"github.com/italolelis/cedric/internal/downloader"
	"github.com/italolelis/cedric/internal/logctx"
	"github.com/italolelis/cedric/internal/resource"
	"github.com/italolelis/cedric/internal/storage"
	"github.com/italolelis/cedric/internal/telemetry"
	"github.com/italolelis/cedric/internal/transfer"
)

// NewLedgerObserver records finished and failed downloads in repo. Canceled
// transfers are not recorded. Subscribe the returned observer and keep it
// referenced for as long as the ledger should be fed.
func NewLedgerObserver(ctx context.Context, repo storage.DownloadWriteRepository) *downloader.Observer {
	logger := logctx.LoggerFromContext(ctx).With("component", "ledger")
	instance := telemetry.InstanceID()

	return &downloader.Observer{
		OnFinished: func(res resource.Resource, file resource.DownloadedFile) {
			err := repo.TrackDownload(storage.DownloadRecord{
				ResourceID: res.ID,
				Source:     sourceOf(res),
				FilePath:   file.RelativePath,
				Status:     storage.StatusDownloaded,
				RecordedBy: instance,
			})
			if err != nil {
				logger.Error("failed to track download", "resource_id", res.ID, "file", file.RelativePath, "err", err)
			}
		},
		OnFailed: func(failure error, _ transfer.Task, res resource.Resource) {
			if transfer.IsCanceled(failure) {
				return
			}

			err := repo.TrackDownload(storage.DownloadRecord{
				ResourceID: res.ID,
				Source:     sourceOf(res),
				Status:     storage.StatusFailed,
				RecordedBy: instance,
			})
			if err != nil {
				logger.Error("failed to track failed download", "resource_id", res.ID, "err", err)
			}
		},
	}
}

func sourceOf(res resource.Resource) string {
	if res.Source == nil {
		return ""
	}

	return res.Source.Redacted()
}
