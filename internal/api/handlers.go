package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/finvolv/case-intake-service/internal/core/services/intake"
	apperrors "github.com/finvolv/case-intake-service/internal/pkg/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handlers adapts HTTP requests onto the intake service.
type Handlers struct {
	service *intake.Service
	health  func() map[string]interface{}
	logger  *slog.Logger
}

const maxUploadMemory = 32 << 20 // 32 MB before spilling to disk

// StartUpload accepts a multipart upload and returns the batch id
// immediately; processing happens on the worker.
func (h *Handlers) StartUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.writeError(w, apperrors.BadRequest("request is not valid multipart form data"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, apperrors.BadRequest("missing file field"))
		return
	}
	defer file.Close()

	batchID, err := h.service.StartUpload(r.Context(), file, header.Filename, r.FormValue("uploadedBy"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"batch_id": batchID.String(),
		"status":   "PENDING",
	})
}

// Reupload accepts a corrected file against an existing batch id.
func (h *Handlers) Reupload(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.writeError(w, apperrors.BadRequest("request is not valid multipart form data"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, apperrors.BadRequest("missing file field"))
		return
	}
	defer file.Close()

	if err := h.service.Reupload(r.Context(), batchID, file, header.Filename, r.FormValue("uploadedBy")); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"batch_id": batchID.String(),
		"status":   "PENDING",
	})
}

// GetBatchStatus returns the polling view of a batch.
func (h *Handlers) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchID(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetBatchStatus(r.Context(), batchID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// GetBatchErrors returns the ordered error ledger of a batch.
func (h *Handlers) GetBatchErrors(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.GetBatchErrors(r.Context(), batchID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, entries)
}

// ExportFailedRows streams the failed-row export. Format defaults to
// CSV; ?format=xlsx selects the workbook variant.
func (h *Handlers) ExportFailedRows(w http.ResponseWriter, r *http.Request) {
	batchID, ok := h.batchID(w, r)
	if !ok {
		return
	}

	var (
		data        []byte
		err         error
		contentType string
		ext         string
	)

	switch r.URL.Query().Get("format") {
	case "xlsx":
		data, err = h.service.ExportFailedRowsXLSX(r.Context(), batchID)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		ext = "xlsx"
	default:
		data, err = h.service.ExportFailedRows(r.Context(), batchID)
		contentType = "text/csv"
		ext = "csv"
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="failed-rows-%s.%s"`, batchID, ext))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Health reports service health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health())
}

func (h *Handlers) batchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		h.writeError(w, apperrors.BadRequest("batch id must be a valid UUID"))
		return uuid.Nil, false
	}
	return batchID, true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	if appErr, ok := apperrors.GetAppError(err); ok {
		h.writeJSON(w, appErr.StatusCode, appErr)
		return
	}

	h.logger.Error("unhandled error", slog.Any("error", err))
	h.writeJSON(w, http.StatusInternalServerError, apperrors.Internal("internal server error"))
}
