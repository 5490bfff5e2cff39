package sqlite

import (
	"time"

	"github.com/italolelis/cedric/internal/storage"
)

// TrackDownload records a download. A file placed again at the same path replaces
// the previous record. DownloadedAt defaults to now.
func (r *DownloadRepository) TrackDownload(record storage.DownloadRecord) error {
	if record.DownloadedAt == "" {
		record.DownloadedAt = time.Now().UTC().Format(time.RFC3339)
	}

	if record.Status == "" {
		record.Status = storage.StatusDownloaded
	}

	_, err := r.db.Exec(`
		INSERT INTO downloads (resource_id, source, file_path, downloaded_at, status, recorded_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			resource_id = excluded.resource_id,
			source = excluded.source,
			downloaded_at = excluded.downloaded_at,
			status = excluded.status,
			recorded_by = excluded.recorded_by`,
		record.ResourceID, nullable(record.Source), nullable(record.FilePath),
		record.DownloadedAt, record.Status, nullable(record.RecordedBy),
	)

	return err
}

// UpdateDownloadStatus sets the status for a file. It returns storage.ErrNotFound
// when no record exists for filePath.
func (r *DownloadRepository) UpdateDownloadStatus(filePath, status string) error {
	res, err := r.db.Exec(`UPDATE downloads SET status = ? WHERE file_path = ?`, status, filePath)
	if err != nil {
		return err
	}

	return expectAffected(res.RowsAffected())
}

func (r *DownloadRepository) DeleteDownload(filePath string) error {
	res, err := r.db.Exec(`DELETE FROM downloads WHERE file_path = ?`, filePath)
	if err != nil {
		return err
	}

	return expectAffected(res.RowsAffected())
}

func expectAffected(n int64, err error) error {
	if err != nil {
		return err
	}

	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}
