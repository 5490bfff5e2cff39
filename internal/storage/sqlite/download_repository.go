package sqlite

import (
	"database/sql"

	"github.com/italolelis/cedric/internal/storage"
)

// DownloadRepository stores the download history in SQLite. Reads live in
// read_repository.go and writes in write_repository.go.
type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(dbConn *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: dbConn}
}

const selectDownloads = `SELECT resource_id, source, file_path, downloaded_at, status, recorded_by FROM downloads`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (storage.DownloadRecord, error) {
	var (
		record     storage.DownloadRecord
		source     sql.NullString
		filePath   sql.NullString
		recordedBy sql.NullString
	)

	if err := s.Scan(&record.ResourceID, &source, &filePath, &record.DownloadedAt, &record.Status, &recordedBy); err != nil {
		return storage.DownloadRecord{}, err
	}

	record.Source = source.String
	record.FilePath = filePath.String
	record.RecordedBy = recordedBy.String

	return record, nil
}

func scanRecords(rows *sql.Rows) ([]storage.DownloadRecord, error) {
	defer rows.Close()

	var downloads []storage.DownloadRecord

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		downloads = append(downloads, record)
	}

	return downloads, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
