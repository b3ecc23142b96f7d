package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/server/handler"
)

type stubQuotes struct {
	snap domain.QuoteSnapshot
	err  error
}

func (s stubQuotes) Get(_ context.Context, match string) (domain.QuoteSnapshot, error) {
	if s.err != nil {
		return domain.QuoteSnapshot{}, s.err
	}
	snap := s.snap
	snap.Match = match
	return snap, nil
}

type stubArbs struct {
	recs map[string]domain.ArbRecord
}

func (s stubArbs) ListRecent(_ context.Context, limit int) ([]domain.ArbRecord, error) {
	out := make([]domain.ArbRecord, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s stubArbs) GetByID(_ context.Context, id string) (domain.ArbRecord, error) {
	r, ok := s.recs[id]
	if !ok {
		return domain.ArbRecord{}, domain.ErrNotFound
	}
	return r, nil
}

func (s stubArbs) Profit(context.Context) (domain.ProfitSummary, error) {
	return domain.ProfitSummary{Executions: 3, Completed: 1, Adjusted: 1, Cancelled: 1, TotalStaked: 250, TotalProfit: -47.5}, nil
}

type stubStream struct {
	msgs     []domain.StreamMessage
	gotAfter string
}

func (s *stubStream) StreamRead(_ context.Context, _, lastID string, _ int) ([]domain.StreamMessage, error) {
	s.gotAfter = lastID
	return s.msgs, nil
}

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allowed, l.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(cfg Config, h Handlers, limiter domain.RateLimiter) http.Handler {
	if h.Health == nil {
		h.Health = handler.NewHealthHandler()
	}
	return NewServer(cfg, h, nil, limiter, testLogger()).Handler()
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleArb() domain.ArbRecord {
	return domain.ArbRecord{
		ID:            "arb-1",
		Match:         "Man Utd vs Chelsea",
		HomeBookmaker: "Bet365",
		AwayBookmaker: "Smarkets",
		HomeOdds:      domain.Float64(2.0),
		AwayOdds:      domain.Float64(2.1),
		HomeStake:     51.22,
		AwayStake:     48.78,
		Status:        domain.ArbStatusCompleted,
	}
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(Config{}, Handlers{}, nil)

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	h := newTestServer(Config{}, Handlers{}, nil)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_APIRequiresKey(t *testing.T) {
	h := newTestServer(Config{APIKey: "secret"}, Handlers{
		Odds: handler.NewOddsHandler(stubQuotes{}, testLogger()),
	}, nil)

	rec := do(t, h, http.MethodGet, "/api/odds/A%20vs%20B", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = do(t, h, http.MethodGet, "/api/odds/A%20vs%20B", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/odds/A%20vs%20B", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/odds/A%20vs%20B", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
}

func TestServer_Odds(t *testing.T) {
	quotes := stubQuotes{snap: domain.QuoteSnapshot{
		Quotes:  map[string]domain.Odds{"Bet365": {HomeWin: 2.0, AwayWin: 1.9}},
		Invalid: map[string]error{"Smarkets": errors.New("bad"), "Betfair": errors.New("bad")},
	}}
	h := newTestServer(Config{}, Handlers{Odds: handler.NewOddsHandler(quotes, testLogger())}, nil)

	rec := do(t, h, http.MethodGet, "/api/odds/Man%20Utd%20vs%20Chelsea", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"match": "Man Utd vs Chelsea",
		"quotes": {"Bet365": {"home_win": 2.0, "away_win": 1.9}},
		"invalid": ["Betfair", "Smarkets"]
	}`, rec.Body.String())
}

func TestServer_Odds_StoreError(t *testing.T) {
	h := newTestServer(Config{}, Handlers{
		Odds: handler.NewOddsHandler(stubQuotes{err: errors.New("redis down")}, testLogger()),
	}, nil)

	rec := do(t, h, http.MethodGet, "/api/odds/x", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type stubHistory struct {
	rows    []domain.OddsSnapshot
	gotOpts domain.ListOpts
}

func (s *stubHistory) ListByMatch(_ context.Context, _ string, opts domain.ListOpts) ([]domain.OddsSnapshot, error) {
	s.gotOpts = opts
	return s.rows, nil
}

func TestServer_OddsHistory(t *testing.T) {
	at := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	history := &stubHistory{rows: []domain.OddsSnapshot{
		{Match: "A vs B", Bookmaker: "Bet365", HomeWin: 2.1, AwayWin: 1.85, CreatedAt: at},
	}}
	h := newTestServer(Config{}, Handlers{
		Odds: handler.NewOddsHandler(stubQuotes{}, testLogger()).WithHistory(history),
	}, nil)

	rec := do(t, h, http.MethodGet, "/api/odds/A%20vs%20B/history?limit=5&since=2025-03-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"match": "A vs B",
		"history": [{"bookmaker": "Bet365", "home_win": 2.1, "away_win": 1.85, "timestamp": "2025-03-01T15:00:00Z"}]
	}`, rec.Body.String())
	assert.Equal(t, 5, history.gotOpts.Limit)
	require.NotNil(t, history.gotOpts.Since)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *history.gotOpts.Since)
	assert.Nil(t, history.gotOpts.Until)

	rec = do(t, h, http.MethodGet, "/api/odds/A%20vs%20B/history?until=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_OddsHistory_NotConfigured(t *testing.T) {
	h := newTestServer(Config{}, Handlers{Odds: handler.NewOddsHandler(stubQuotes{}, testLogger())}, nil)

	rec := do(t, h, http.MethodGet, "/api/odds/A%20vs%20B/history", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_Arbitrage_NotConfigured(t *testing.T) {
	h := newTestServer(Config{}, Handlers{
		Arb: handler.NewArbHandler(nil, &stubStream{}, "arb_audit", testLogger()),
	}, nil)

	for _, path := range []string{"/api/arbitrage/recent", "/api/arbitrage/profit", "/api/arbitrage/arb-1"} {
		rec := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, path)
	}
}

func TestServer_Arbitrage(t *testing.T) {
	arbs := stubArbs{recs: map[string]domain.ArbRecord{"arb-1": sampleArb()}}
	h := newTestServer(Config{}, Handlers{
		Arb: handler.NewArbHandler(arbs, &stubStream{}, "arb_audit", testLogger()),
	}, nil)

	rec := do(t, h, http.MethodGet, "/api/arbitrage/recent?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Opportunities []domain.ArbRecord `json:"opportunities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Opportunities, 1)
	assert.Equal(t, "arb-1", list.Opportunities[0].ID)

	rec = do(t, h, http.MethodGet, "/api/arbitrage/arb-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/arbitrage/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/arbitrage/profit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"executions":3,"completed":1,"adjusted":1,"cancelled":1,"total_staked":250,"total_profit":-47.5}`, rec.Body.String())
}

func TestServer_Arbitrage_Audit(t *testing.T) {
	stream := &stubStream{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"id":"arb-1"}`)},
		{ID: "2-0", Payload: []byte(`garbage`)},
	}}
	h := newTestServer(Config{}, Handlers{
		Arb: handler.NewArbHandler(nil, stream, "arb_audit", testLogger()),
	}, nil)

	rec := do(t, h, http.MethodGet, "/api/arbitrage/audit?after=0-5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0-5", stream.gotAfter)
	assert.JSONEq(t, `{"entries":[{"id":"1-0","record":{"id":"arb-1"}}]}`, rec.Body.String())
}

type stubBlobs struct {
	files map[string]string
}

func (b stubBlobs) Open(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := b.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (b stubBlobs) List(context.Context, string) ([]domain.ArchiveObject, error) {
	out := make([]domain.ArchiveObject, 0, len(b.files))
	for p, body := range b.files {
		out = append(out, domain.ArchiveObject{Key: p, Size: int64(len(body)), ModifiedAt: time.Date(2025, 1, 31, 3, 0, 0, 0, time.UTC)})
	}
	return out, nil
}

func (b stubBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.files[path]
	return ok, nil
}

func TestServer_Archive(t *testing.T) {
	blobs := stubBlobs{files: map[string]string{
		"archive/arb_history/2025-01/2025-01-31T030000Z.jsonl": "{\"id\":\"a\"}\n",
	}}
	h := newTestServer(Config{}, Handlers{Archive: handler.NewArchiveHandler(blobs, testLogger())}, nil)

	rec := do(t, h, http.MethodGet, "/api/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"files":[{"path":"archive/arb_history/2025-01/2025-01-31T030000Z.jsonl","size":11,"last_modified":"2025-01-31T03:00:00Z"}]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/archive/arb_history/2025-01/2025-01-31T030000Z.jsonl", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, "{\"id\":\"a\"}\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/archive/arb_history/missing.jsonl", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Archive_NotConfigured(t *testing.T) {
	h := newTestServer(Config{}, Handlers{Archive: handler.NewArchiveHandler(nil, testLogger())}, nil)

	rec := do(t, h, http.MethodGet, "/api/archive", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_RateLimit(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	h := newTestServer(Config{RateLimit: 10, RateWindow: time.Minute}, Handlers{
		Odds: handler.NewOddsHandler(stubQuotes{}, testLogger()),
	}, limiter)

	rec := do(t, h, http.MethodGet, "/api/odds/x", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, []string{"api:203.0.113.7"}, limiter.keys)

	rec = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")
}

func TestServer_RateLimit_FailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	h := newTestServer(Config{RateLimit: 10, RateWindow: time.Minute}, Handlers{
		Odds: handler.NewOddsHandler(stubQuotes{}, testLogger()),
	}, limiter)

	rec := do(t, h, http.MethodGet, "/api/odds/x", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	h := newTestServer(Config{CORSOrigins: []string{"http://localhost:3000"}}, Handlers{}, nil)

	rec := do(t, h, http.MethodOptions, "/api/odds/x", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/health", map[string]string{"Origin": "http://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
