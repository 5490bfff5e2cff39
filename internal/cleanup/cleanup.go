// Package cleanup removes downloaded files once they outlive the retention period.
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/italolelis/cedric/internal/logctx"
	"github.com/italolelis/cedric/internal/resource"
	"github.com/italolelis/cedric/internal/storage"
)

// FileRemover deletes files from the downloads directory.
type FileRemover interface {
	RemoveDownloadedFile(file resource.DownloadedFile) error
}

type Service struct {
	repo  storage.DownloadRepository
	files FileRemover
	keep  time.Duration
	now   func() time.Time
}

func New(repo storage.DownloadRepository, files FileRemover, keep time.Duration) *Service {
	return &Service{repo: repo, files: files, keep: keep, now: time.Now}
}

// DeleteExpiredFiles deletes tracked files downloaded more than the retention period
// ago and marks them removed. Files already gone are marked removed too. It keeps
// going after a failure and returns the number of files handled with the first
// error.
func (s *Service) DeleteExpiredFiles(ctx context.Context) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	records, err := s.repo.GetDownloadsOlderThan(s.now().Add(-s.keep))
	if err != nil {
		return 0, err
	}

	var (
		removed int
		first   error
	)

	for _, rec := range records {
		file := resource.DownloadedFile{RelativePath: rec.FilePath}

		if err := s.files.RemoveDownloadedFile(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Error("failed to delete expired file", "file", rec.FilePath, "err", err)

			if first == nil {
				first = err
			}

			continue
		}

		if err := s.repo.UpdateDownloadStatus(rec.FilePath, storage.StatusRemoved); err != nil {
			logger.Error("failed to mark file removed", "file", rec.FilePath, "err", err)

			if first == nil {
				first = err
			}

			continue
		}

		removed++

		logger.Info("deleted expired file", "file", rec.FilePath, "downloaded_at", rec.DownloadedAt)
	}

	return removed, first
}

// Run deletes expired files immediately and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	logger := logctx.LoggerFromContext(ctx).With("component", "cleanup")
	ctx = logctx.WithLogger(ctx, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.DeleteExpiredFiles(ctx); err != nil {
			logger.Error("cleanup run failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
