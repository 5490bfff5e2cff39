package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/cedric/internal/downloader"
	"github.com/italolelis/cedric/internal/logctx"
	"github.com/italolelis/cedric/internal/manifest"
	"github.com/italolelis/cedric/internal/resource"
	"github.com/italolelis/cedric/internal/transfer"
)

const maxRequestBody = 1 << 20 // 1MiB

// Orchestrator is the part of the downloader the API drives.
type Orchestrator interface {
	Enqueue(ctx context.Context, res resource.Resource) error
	EnqueueMany(ctx context.Context, resources []resource.Resource) error
	IsDownloading(id string) bool
	ActiveDownloads() []downloader.Active
	Cancel(id string)
	CancelAll()
	ExistingFile(name string) (resource.DownloadedFile, bool)
	RemoveDownloadedFile(file resource.DownloadedFile) error
	CleanDownloadsDirectory() error
	AbsolutePath(file resource.DownloadedFile) (string, error)
}

// Download is the API view of a registered resource.
type Download struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Source   string `json:"source"`
	Mode     string `json:"mode"`
	TaskID   string `json:"task_id,omitempty"`
	Written  int64  `json:"written"`
	Expected int64  `json:"expected"`
}

type File struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type DownloadsHandler struct {
	orchestrator Orchestrator
}

func NewDownloadsHandler(o Orchestrator) *DownloadsHandler {
	return &DownloadsHandler{orchestrator: o}
}

func (h *DownloadsHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/downloads", func(r chi.Router) {
		r.Get("/", h.ListDownloads)
		r.Post("/", h.EnqueueDownloads)
		r.Delete("/", h.CancelAll)
		r.Get("/{id}", h.GetDownload)
		r.Delete("/{id}", h.CancelDownload)
	})

	r.Route("/files", func(r chi.Router) {
		r.Delete("/", h.CleanFiles)
		r.Get("/{name}", h.GetFile)
		r.Delete("/{name}", h.RemoveFile)
	})

	return r
}

// EnqueueDownloads accepts a single entry or an array of entries. Arrays are
// enqueued in order and stop at the first failure.
func (h *DownloadsHandler) EnqueueDownloads(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	entries, err := decodeEntries(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resources := make([]resource.Resource, 0, len(entries))
	for _, e := range entries {
		resources = append(resources, e.Resource())
	}

	if len(resources) == 1 {
		err = h.orchestrator.Enqueue(r.Context(), resources[0])
	} else {
		err = h.orchestrator.EnqueueMany(r.Context(), resources)
	}

	if err != nil {
		var missing *transfer.MissingSourceError
		if errors.As(err, &missing) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		logger.Error("failed to enqueue downloads", "err", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())

		return
	}

	logger.Info("downloads enqueued", "count", len(resources))

	accepted := make([]downloader.Active, 0, len(resources))
	for _, res := range resources {
		accepted = append(accepted, downloader.Active{Resource: res})
	}

	writeJSON(w, http.StatusAccepted, views(accepted))
}

func decodeEntries(body []byte) ([]manifest.Entry, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty request body")
	}

	var entries []manifest.Entry

	if body[0] == '[' {
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
	} else {
		var e manifest.Entry
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}

		entries = append(entries, e)
	}

	if len(entries) == 0 {
		return nil, errors.New("no downloads in request")
	}

	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("download %d: %w", i, err)
		}
	}

	return entries, nil
}

func (h *DownloadsHandler) ListDownloads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, views(h.orchestrator.ActiveDownloads()))
}

// GetDownload lists every registered resource with the id.
func (h *DownloadsHandler) GetDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var matching []downloader.Active

	for _, a := range h.orchestrator.ActiveDownloads() {
		if a.Resource.ID == id {
			matching = append(matching, a)
		}
	}

	if len(matching) == 0 {
		writeError(w, http.StatusNotFound, "download not found")
		return
	}

	writeJSON(w, http.StatusOK, views(matching))
}

func (h *DownloadsHandler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !h.orchestrator.IsDownloading(id) {
		writeError(w, http.StatusNotFound, "download not found")
		return
	}

	h.orchestrator.Cancel(id)

	w.WriteHeader(http.StatusNoContent)
}

func (h *DownloadsHandler) CancelAll(w http.ResponseWriter, _ *http.Request) {
	h.orchestrator.CancelAll()

	w.WriteHeader(http.StatusNoContent)
}

func (h *DownloadsHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	file, ok := h.orchestrator.ExistingFile(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	path, err := h.orchestrator.AbsolutePath(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, File{Name: file.Name(), Path: path})
}

func (h *DownloadsHandler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	file, ok := h.orchestrator.ExistingFile(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	if err := h.orchestrator.RemoveDownloadedFile(file); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to remove file", "file", file.RelativePath, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DownloadsHandler) CleanFiles(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.CleanDownloadsDirectory(); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to clean downloads directory", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func views(downloads []downloader.Active) []Download {
	out := make([]Download, 0, len(downloads))

	for _, a := range downloads {
		res := a.Resource
		d := Download{
			ID:       res.ID,
			Name:     res.DestinationName,
			Mode:     res.Mode.String(),
			Expected: -1,
		}

		if res.Source != nil {
			d.Source = res.Source.Redacted()
		}

		if a.Task != nil {
			d.TaskID = a.Task.ID()
			d.Written, d.Expected = a.Task.Progress()
		}

		out = append(out, d)
	}

	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
