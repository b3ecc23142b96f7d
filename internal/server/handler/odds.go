package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// QuoteReader reads the current quotes for a match.
type QuoteReader interface {
	Get(ctx context.Context, match string) (domain.QuoteSnapshot, error)
}

// OddsHistoryReader reads recorded quotes for a match.
type OddsHistoryReader interface {
	ListByMatch(ctx context.Context, match string, opts domain.ListOpts) ([]domain.OddsSnapshot, error)
}

// OddsHandler exposes the quote store and, when Postgres is wired, the odds
// history.
type OddsHandler struct {
	quotes  QuoteReader
	history OddsHistoryReader // optional; nil answers 501
	logger  *slog.Logger
}

// NewOddsHandler creates an OddsHandler.
func NewOddsHandler(quotes QuoteReader, logger *slog.Logger) *OddsHandler {
	return &OddsHandler{quotes: quotes, logger: logger.With(slog.String("handler", "odds"))}
}

// WithHistory enables the history endpoint.
func (h *OddsHandler) WithHistory(history OddsHistoryReader) *OddsHandler {
	h.history = history
	return h
}

type oddsResponse struct {
	Match   string                 `json:"match"`
	Quotes  map[string]domain.Odds `json:"quotes"`
	Invalid []string               `json:"invalid,omitempty"`
}

// Get returns every live bookmaker quote for a match.
// GET /api/odds/{match}
func (h *OddsHandler) Get(w http.ResponseWriter, r *http.Request) {
	match := r.PathValue("match")
	snap, err := h.quotes.Get(r.Context(), match)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read quotes failed",
			slog.String("match", match),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read odds")
		return
	}

	resp := oddsResponse{Match: match, Quotes: snap.Quotes}
	if resp.Quotes == nil {
		resp.Quotes = map[string]domain.Odds{}
	}
	for bookmaker := range snap.Invalid {
		resp.Invalid = append(resp.Invalid, bookmaker)
	}
	sort.Strings(resp.Invalid)
	writeJSON(w, http.StatusOK, resp)
}

type historyEntry struct {
	Bookmaker string    `json:"bookmaker"`
	HomeWin   float64   `json:"home_win"`
	AwayWin   float64   `json:"away_win"`
	At        time.Time `json:"timestamp"`
}

// History returns recorded quotes for a match, newest first. since and until
// are optional RFC 3339 bounds.
// GET /api/odds/{match}/history?limit=100&since=...&until=...
func (h *OddsHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "odds history not configured")
		return
	}
	match := r.PathValue("match")
	opts := domain.ListOpts{Limit: queryInt(r, "limit", 100, 1000)}
	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+name+" timestamp")
			return
		}
		*dst = &t
	}

	rows, err := h.history.ListByMatch(r.Context(), match, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read odds history failed",
			slog.String("match", match),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read odds history")
		return
	}
	entries := make([]historyEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, historyEntry{
			Bookmaker: row.Bookmaker,
			HomeWin:   row.HomeWin,
			AwayWin:   row.AwayWin,
			At:        row.CreatedAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"match": match, "history": entries})
}
