package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"checkout-service/internal/card"
	"checkout-service/internal/checkout"
	"checkout-service/internal/logcontext"
	"checkout-service/internal/model"
	"checkout-service/internal/session"
	"github.com/pkg/errors"
)

// Handler is the UI binding layer: it maps HTTP requests onto the
// checkout operations and renders snapshots back as JSON.
type Handler struct {
	store     *session.Store
	gateway   checkout.Gateway
	tokenizer checkout.Tokenizer
	provider  model.Provider
	logger    *slog.Logger
}

func New(store *session.Store, gw checkout.Gateway, tokenizer checkout.Tokenizer, provider model.Provider, logger *slog.Logger) *Handler {
	return &Handler{
		store:     store,
		gateway:   gw,
		tokenizer: tokenizer,
		provider:  provider,
		logger:    logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions/{id}", h.getSession)
	mux.HandleFunc("POST /sessions/{id}/search", h.search)
	mux.HandleFunc("POST /sessions/{id}/payment", h.submitPayment)
	mux.HandleFunc("POST /sessions/{id}/retry", h.retry)
}

type createSessionRequest struct {
	LinkID string `json:"linkId"`
}

type searchRequest struct {
	Value string `json:"value"`
}

type sessionResponse struct {
	SessionID string            `json:"sessionId"`
	Snapshot  checkout.Snapshot `json:"snapshot"`
}

type validationResponse struct {
	FieldErrors card.FieldErrors `json:"fieldErrors,omitempty"`
	SearchError string           `json:"searchError,omitempty"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(r.Context(), w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	c := checkout.New(h.gateway, h.tokenizer, h.provider, h.logger)
	id := h.store.Create(c)

	ctx := logcontext.AppendCtx(r.Context(), slog.String("sessionId", id))
	h.logger.InfoContext(ctx, "Session created", "linkId", req.LinkID)

	if err := c.Start(ctx, req.LinkID); err != nil {
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to start checkout", err)
		return
	}

	h.writeJSON(ctx, w, http.StatusCreated, sessionResponse{SessionID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	c, id, ok := h.session(w, r)
	if !ok {
		return
	}

	ctx := logcontext.AppendCtx(r.Context(), slog.String("sessionId", id))
	h.writeJSON(ctx, w, http.StatusOK, sessionResponse{SessionID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	c, id, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := logcontext.AppendCtx(r.Context(), slog.String("sessionId", id))

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fieldError, err := c.Search(ctx, req.Value)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	if fieldError != "" {
		h.writeJSON(ctx, w, http.StatusUnprocessableEntity, validationResponse{SearchError: fieldError})
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, sessionResponse{SessionID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request) {
	c, id, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := logcontext.AppendCtx(r.Context(), slog.String("sessionId", id))

	var form card.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fieldErrors, err := c.Submit(ctx, form)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	if len(fieldErrors) > 0 {
		h.writeJSON(ctx, w, http.StatusUnprocessableEntity, validationResponse{FieldErrors: fieldErrors})
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, sessionResponse{SessionID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	c, id, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := logcontext.AppendCtx(r.Context(), slog.String("sessionId", id))

	if err := c.Retry(ctx); err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, sessionResponse{SessionID: id, Snapshot: c.Snapshot()})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*checkout.Checkout, string, bool) {
	id := r.PathValue("id")
	c, ok := h.store.Get(id)
	if !ok {
		h.writeError(r.Context(), w, http.StatusNotFound, "Session not found", nil)
		return nil, "", false
	}
	return c, id, true
}

func (h *Handler) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrNotReady), errors.Is(err, checkout.ErrNotRetryable):
		h.writeError(ctx, w, http.StatusConflict, "Operation not allowed in current state", err)
	default:
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		h.logger.ErrorContext(ctx, message, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"message": message}); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.ErrorContext(ctx, "Failed to encode response", "error", err)
	}
}
