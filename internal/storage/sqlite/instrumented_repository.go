package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/cedric/internal/storage"
	"github.com/italolelis/cedric/internal/telemetry"
)

// InstrumentedDownloadRepository wraps DownloadRepository with telemetry.
type InstrumentedDownloadRepository struct {
	repo      *DownloadRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedDownloadRepository creates a new instrumented download repository.
func NewInstrumentedDownloadRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedDownloadRepository {
	return &InstrumentedDownloadRepository{
		repo:      NewDownloadRepository(dbConn),
		telemetry: tel,
	}
}

// GetDownloads retrieves all downloads with telemetry.
func (r *InstrumentedDownloadRepository) GetDownloads() ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(context.Background(), "get_downloads", func(context.Context) error {
		var err error
		result, err = r.repo.GetDownloads()

		return err
	})

	return result, err
}

func (r *InstrumentedDownloadRepository) GetDownload(filePath string) (storage.DownloadRecord, error) {
	var result storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(context.Background(), "get_download", func(context.Context) error {
		var err error
		result, err = r.repo.GetDownload(filePath)

		return err
	})

	return result, err
}

func (r *InstrumentedDownloadRepository) GetDownloadsOlderThan(cutoff time.Time) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(context.Background(), "get_expired_downloads", func(context.Context) error {
		var err error
		result, err = r.repo.GetDownloadsOlderThan(cutoff)

		return err
	})

	return result, err
}

// TrackDownload records a download with telemetry.
func (r *InstrumentedDownloadRepository) TrackDownload(record storage.DownloadRecord) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "track_download", func(context.Context) error {
		return r.repo.TrackDownload(record)
	})
}

// UpdateDownloadStatus updates download status with telemetry.
func (r *InstrumentedDownloadRepository) UpdateDownloadStatus(filePath, status string) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "update_download_status", func(context.Context) error {
		return r.repo.UpdateDownloadStatus(filePath, status)
	})
}

func (r *InstrumentedDownloadRepository) DeleteDownload(filePath string) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), "delete_download", func(context.Context) error {
		return r.repo.DeleteDownload(filePath)
	})
}
