package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

const archivePrefix = "archive/"

// ArchiveHandler lists and streams archived execution files.
type ArchiveHandler struct {
	blobs  domain.BlobReader // optional; nil answers 501
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. blobs may be nil when object
// storage is not configured.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger.With(slog.String("handler", "archive"))}
}

type archiveFile struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// List returns archived files.
// GET /api/archive
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusNotImplemented, "archive storage not configured")
		return
	}
	objects, err := h.blobs.List(r.Context(), archivePrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archive failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	files := make([]archiveFile, 0, len(objects))
	for _, obj := range objects {
		files = append(files, archiveFile{
			Path:         obj.Key,
			Size:         obj.Size,
			LastModified: obj.ModifiedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// Download streams one archived file as JSON lines.
// GET /api/archive/{path...}
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusNotImplemented, "archive storage not configured")
		return
	}
	path := archivePrefix + strings.TrimPrefix(r.PathValue("path"), archivePrefix)
	if strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "invalid archive path")
		return
	}

	body, err := h.blobs.Open(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive file not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "stream archive interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
