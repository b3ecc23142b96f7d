package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// ArbReader is the read side of domain.ArbStore used by the API.
type ArbReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ArbRecord, error)
	GetByID(ctx context.Context, id string) (domain.ArbRecord, error)
	Profit(ctx context.Context) (domain.ProfitSummary, error)
}

// StreamReader reads entries of a durable stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error)
}

// ArbHandler serves the arbitrage history endpoints.
type ArbHandler struct {
	arbs        ArbReader // optional; nil answers 501
	stream      StreamReader
	auditStream string
	logger      *slog.Logger
}

// NewArbHandler creates an ArbHandler. arbs may be nil when Postgres is not
// configured.
func NewArbHandler(arbs ArbReader, stream StreamReader, auditStream string, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{
		arbs:        arbs,
		stream:      stream,
		auditStream: auditStream,
		logger:      logger.With(slog.String("handler", "arbitrage")),
	}
}

type listArbResponse struct {
	Opportunities []domain.ArbRecord `json:"opportunities"`
}

// ListRecent returns the latest opportunities in their current state.
// GET /api/arbitrage/recent?limit=20
func (h *ArbHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if !h.storeConfigured(w) {
		return
	}
	recs, err := h.arbs.ListRecent(r.Context(), queryInt(r, "limit", 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list arbitrage failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list arbitrage opportunities")
		return
	}
	if recs == nil {
		recs = []domain.ArbRecord{}
	}
	writeJSON(w, http.StatusOK, listArbResponse{Opportunities: recs})
}

// Get returns one opportunity by id.
// GET /api/arbitrage/{id}
func (h *ArbHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.storeConfigured(w) {
		return
	}
	id := r.PathValue("id")
	rec, err := h.arbs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "arbitrage opportunity not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get arbitrage failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get arbitrage opportunity")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type profitResponse struct {
	Executions  int64   `json:"executions"`
	Completed   int64   `json:"completed"`
	Adjusted    int64   `json:"adjusted"`
	Cancelled   int64   `json:"cancelled"`
	TotalStaked float64 `json:"total_staked"`
	TotalProfit float64 `json:"total_profit"`
}

// Profit returns the cumulative outcome of every execution.
// GET /api/arbitrage/profit
func (h *ArbHandler) Profit(w http.ResponseWriter, r *http.Request) {
	if !h.storeConfigured(w) {
		return
	}
	p, err := h.arbs.Profit(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "arbitrage profit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to compute profit")
		return
	}
	writeJSON(w, http.StatusOK, profitResponse{
		Executions:  p.Executions,
		Completed:   p.Completed,
		Adjusted:    p.Adjusted,
		Cancelled:   p.Cancelled,
		TotalStaked: p.TotalStaked,
		TotalProfit: p.TotalProfit,
	})
}

type auditEntry struct {
	ID     string          `json:"id"`
	Record json.RawMessage `json:"record"`
}

// Audit pages through the audit stream. Pass the last seen id as after.
// GET /api/arbitrage/audit?after=0&limit=100
func (h *ArbHandler) Audit(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	msgs, err := h.stream.StreamRead(r.Context(), h.auditStream, after, queryInt(r, "limit", 100, 1000))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read audit stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read audit stream")
		return
	}
	entries := make([]auditEntry, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		entries = append(entries, auditEntry{ID: m.ID, Record: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *ArbHandler) storeConfigured(w http.ResponseWriter) bool {
	if h.arbs == nil {
		writeError(w, http.StatusNotImplemented, "arbitrage history not configured")
		return false
	}
	return true
}
