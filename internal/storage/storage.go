package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when no record matches.
var ErrNotFound = errors.New("storage: record not found")

// Directory is the downloads directory. Names passed to ResolvePath are relative to
// its root; every other method takes absolute paths.
type Directory interface {
	Root() string
	ResolvePath(name string, create bool) (string, error)
	Exists(path string) bool
	Move(from, to string) error
	SetAttributes(path string, attrs map[string]any) error
	ListEntries() ([]string, error)
	RemoveEntry(path string) error
}

// DownloadRecord represents a record of a downloaded file. FilePath is relative to
// the downloads directory and empty for failed downloads.
type DownloadRecord struct {
	ResourceID   string
	Source       string
	FilePath     string
	DownloadedAt string
	Status       string
	RecordedBy   string
}

// DownloadReadRepository reads the download history.
type DownloadReadRepository interface {
	GetDownloads() ([]DownloadRecord, error)
	GetDownload(filePath string) (DownloadRecord, error)
	// GetDownloadsOlderThan returns downloaded records recorded before cutoff.
	GetDownloadsOlderThan(cutoff time.Time) ([]DownloadRecord, error)
}

// DownloadWriteRepository writes the download history.
type DownloadWriteRepository interface {
	TrackDownload(record DownloadRecord) error
	UpdateDownloadStatus(filePath, status string) error
	DeleteDownload(filePath string) error
}

// DownloadRepository is the complete download history store.
type DownloadRepository interface {
	DownloadReadRepository
	DownloadWriteRepository
}

// Download statuses kept in the history.
const (
	StatusDownloaded = "downloaded"
	StatusFailed     = "failed"
	StatusRemoved    = "removed"
)
