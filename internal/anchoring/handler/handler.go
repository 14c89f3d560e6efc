// Package handler is the thin HTTP layer over the anchoring service. It
// parses requests, delegates, and translates domain errors to JSON
// responses; business logic stays in the service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"receiptanchor/internal/anchoring/models"
	"receiptanchor/internal/platform/middleware"
	domainerrors "receiptanchor/pkg/domain-errors"
)

// Service defines the anchoring operations the HTTP layer exposes.
type Service interface {
	Anchor(ctx context.Context, recordID string) (*models.AnchorRecord, error)
	Verify(ctx context.Context, recordID string) (*models.VerificationResult, error)
	ExportProof(ctx context.Context, recordID string) (*models.ProofBundle, error)
	BulkAnchor(ctx context.Context, recordIDs []string) *models.BulkAnchorResult
	GatewayStatus(ctx context.Context) (models.GatewayStatus, error)
}

// Handler handles anchoring endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates the anchoring Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the anchoring routes on the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)

	router.Post("/anchors/bulk", h.handleBulkAnchor)
	router.Post("/anchors/{recordID}", h.handleAnchor)
	router.Get("/anchors/{recordID}/verify", h.handleVerify)
	router.Get("/anchors/{recordID}/proof", h.handleProof)
	router.Get("/ledger/status", h.handleGatewayStatus)

	r.Mount("/", router)
}

func (h *Handler) handleAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID := chi.URLParam(r, "recordID")
	if recordID == "" {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "record id is required"))
		return
	}

	record, err := h.service.Anchor(ctx, recordID)
	if err != nil {
		h.logger.WarnContext(ctx, "anchor failed",
			"record_id", recordID,
			"code", string(domainerrors.CodeOf(err)),
			"request_id", middleware.GetRequestID(ctx),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID := chi.URLParam(r, "recordID")

	result, err := h.service.Verify(ctx, recordID)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification failed",
			"record_id", recordID,
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		writeError(w, err)
		return
	}
	// An invalid verdict is a successful verification whose payload says so.
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID := chi.URLParam(r, "recordID")

	bundle, err := h.service.ExportProof(ctx, recordID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// BulkAnchorRequest is the body of POST /anchors/bulk.
type BulkAnchorRequest struct {
	RecordIDs []string `json:"recordIds"`
}

func (h *Handler) handleBulkAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkAnchorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(req.RecordIDs) == 0 {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "recordIds must not be empty"))
		return
	}

	result := h.service.BulkAnchor(ctx, req.RecordIDs)
	h.logger.InfoContext(ctx, "bulk anchor finished",
		"requested", len(req.RecordIDs),
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"request_id", middleware.GetRequestID(ctx),
	)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GatewayStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError centralizes domain error translation so every endpoint returns
// the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	writeJSON(w, domainerrors.ToHTTPStatus(code), map[string]string{
		"error": string(code),
	})
}
