package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/italolelis/cedric/internal/storage"
)

func (r *DownloadRepository) GetDownloads() ([]storage.DownloadRecord, error) {
	rows, err := r.db.Query(selectDownloads + ` ORDER BY downloaded_at`)
	if err != nil {
		return nil, err
	}

	return scanRecords(rows)
}

// GetDownload returns the record of the file at filePath or storage.ErrNotFound.
func (r *DownloadRepository) GetDownload(filePath string) (storage.DownloadRecord, error) {
	record, err := scanRecord(r.db.QueryRow(selectDownloads+` WHERE file_path = ?`, filePath))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DownloadRecord{}, storage.ErrNotFound
	}

	return record, err
}

func (r *DownloadRepository) GetDownloadsOlderThan(cutoff time.Time) ([]storage.DownloadRecord, error) {
	rows, err := r.db.Query(
		selectDownloads+` WHERE status = ? AND file_path IS NOT NULL AND downloaded_at < ? ORDER BY downloaded_at`,
		storage.StatusDownloaded, cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}

	return scanRecords(rows)
}
