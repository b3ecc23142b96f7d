package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cancelledRecord() domain.ArbRecord {
	return domain.ArbRecord{
		ID:               "arb-1",
		Match:            "Man Utd vs Chelsea",
		HomeBookmaker:    "Bet365",
		AwayBookmaker:    "Smarkets",
		AwayOdds:         domain.Float64(2.1),
		AwayStake:        48.78,
		GuaranteedProfit: -48.78,
		Status:           domain.ArbStatusCancelled,
	}
}

func TestFormatExecution(t *testing.T) {
	title, body := FormatExecution(cancelledRecord())

	assert.Equal(t, "Arbitrage cancelled: Man Utd vs Chelsea", title)
	assert.Equal(t, "id: arb-1\n"+
		"home: Bet365 @ closed stake 0.00\n"+
		"away: Smarkets @ 2.10 stake 48.78\n"+
		"guaranteed profit: -48.78", body)
}

func TestNotifier_NotifyExecution_FiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventArbCancelled}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.NotifyExecution(ctx, cancelledRecord()))

	completed := cancelledRecord()
	completed.Status = domain.ArbStatusCompleted
	require.NoError(t, n.NotifyExecution(ctx, completed))

	detected := cancelledRecord()
	detected.Status = domain.ArbStatusDetected
	require.NoError(t, n.NotifyExecution(ctx, detected))

	assert.Equal(t, []string{"Arbitrage cancelled: Man Utd vs Chelsea"}, s.titles)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	assert.True(t, n.Allows(EventArbCompleted))
	assert.False(t, n.Enabled())
}

func TestNotifier_NilIsDisabled(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), EventArbCancelled, "t", "m"))
}

func TestNotifier_Notify_ContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("503")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), EventArbAdjusted, "title", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.titles, 1)
}

func TestDiscordSender_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Title", "body"))
	assert.Equal(t, "**Title**\nbody", got["content"])
}

func TestDiscordSender_Send_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "Title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTelegramSender_Send(t *testing.T) {
	var path string
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("123:abc", "-100").WithBaseURL(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "-100", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
	assert.Equal(t, "Markdown", got["parse_mode"])
}
