package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/snarg/stt-engine/internal/catalog"
	"github.com/snarg/stt-engine/internal/engine"
	"github.com/snarg/stt-engine/internal/media"
	"github.com/snarg/stt-engine/internal/transcribe"
)

type jobHandler struct {
	scheduler Scheduler
}

// submitRequest submits a server-local file for transcription.
type submitRequest struct {
	Path        string  `json:"path"`
	Provider    string  `json:"provider,omitempty"`
	Language    string  `json:"language,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Prompt      string  `json:"prompt,omitempty"`
}

func (h *jobHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	rec, err := h.scheduler.Submit(r.Context(), engine.SubmitRequest{
		Path:         req.Path,
		ProviderHint: req.Provider,
		Options: transcribe.Options{
			Language:    req.Language,
			Temperature: req.Temperature,
			Prompt:      req.Prompt,
		},
	})
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

// writeSubmitError maps submission errors to HTTP statuses: client mistakes
// get 4xx, everything else 500.
func writeSubmitError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		writeErrorKind(w, http.StatusBadRequest, string(engine.ErrKindValidation), verr.Reason)
		return
	}
	var uerr *media.UnreadableMediaError
	if errors.As(err, &uerr) {
		writeErrorKind(w, http.StatusUnprocessableEntity, string(engine.ErrKindUnreadableMedia), uerr.Error())
		return
	}
	if errors.Is(err, catalog.ErrNoSuitableProvider) {
		writeErrorKind(w, http.StatusUnprocessableEntity, string(engine.ErrKindNoProvider), err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *jobHandler) status(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	st, err := h.scheduler.GetStatus(requestID)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownRequest) {
			writeError(w, http.StatusNotFound, "unknown request id")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type estimateRequest struct {
	FileSizeBytes   int64   `json:"file_size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	Provider        string  `json:"provider,omitempty"`
}

func (h *jobHandler) estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DurationSeconds < 0 || req.FileSizeBytes < 0 {
		writeError(w, http.StatusBadRequest, "size and duration must not be negative")
		return
	}

	est, err := h.scheduler.EstimateCost(req.FileSizeBytes, req.DurationSeconds, req.Provider)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (h *jobHandler) usage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Usage())
}

func (h *jobHandler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.StatsSnapshot(r.Context()))
}
