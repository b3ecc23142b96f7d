package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

type chanBus struct {
	subs map[string]chan []byte
}

func newChanBus(channels ...string) *chanBus {
	b := &chanBus{subs: make(map[string]chan []byte)}
	for _, c := range channels {
		b.subs[c] = make(chan []byte, 8)
	}
	return b
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.subs[channel], nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func oddsPayload(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(domain.NewOddsUpdate(domain.Quote{
		Match:     "A vs B",
		Bookmaker: "Bet365",
		Odds:      domain.Odds{HomeWin: 2.0, AwayWin: 1.9},
	}, time.UnixMilli(1)))
	require.NoError(t, err)
	return data
}

func arbPayload(t *testing.T, status domain.ArbStatus) []byte {
	t.Helper()
	data, err := json.Marshal(domain.ArbRecord{
		ID:            "arb-1",
		Match:         "A vs B",
		HomeBookmaker: "Bet365",
		AwayBookmaker: "Smarkets",
		HomeOdds:      domain.Float64(2.0),
		AwayOdds:      domain.Float64(2.1),
		HomeStake:     51.22,
		AwayStake:     48.78,
		Status:        status,
	})
	require.NoError(t, err)
	return data
}

func TestEncode(t *testing.T) {
	payload := oddsPayload(t)
	data, err := Encode(TypeOddsUpdate, payload)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypeOddsUpdate, env.MessageType)
	assert.JSONEq(t, string(payload), string(env.Contents))
}

func TestEncode_RejectsMismatchedPayloads(t *testing.T) {
	tests := []struct {
		name        string
		messageType string
		payload     []byte
	}{
		{"detection with terminal status", TypeArbDetection, arbPayload(t, domain.ArbStatusCompleted)},
		{"execution still detected", TypeArbExecution, arbPayload(t, domain.ArbStatusDetected)},
		{"odds payload as detection", TypeArbDetection, oddsPayload(t)},
		{"garbage odds", TypeOddsUpdate, []byte(`{"event":"odds_update"}`)},
		{"unknown type", "heartbeat", oddsPayload(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.messageType, tt.payload)
			assert.ErrorIs(t, err, domain.ErrInvalidEvent)
		})
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, check(req("")))
	assert.True(t, check(req("http://LOCALHOST:3000")))
	assert.False(t, check(req("http://evil.example")))
	assert.True(t, originChecker(nil)(req("http://evil.example")))
	assert.True(t, originChecker([]string{"*"})(req("http://evil.example")))
}

func startHub(t *testing.T) (*Hub, *chanBus, *httptest.Server) {
	t.Helper()
	b := newChanBus("odds_updates", "arb_detections", "arb_executions")
	hub := NewHub(Config{
		Bus:              b,
		OddsChannel:      "odds_updates",
		DetectionChannel: "arb_detections",
		ExecutionChannel: "arb_executions",
		RetryBackoff:     10 * time.Millisecond,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, b, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHub_RelaysBusMessages(t *testing.T) {
	hub, b, srv := startHub(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	b.subs["arb_detections"] <- []byte(`not json`)
	b.subs["arb_detections"] <- arbPayload(t, domain.ArbStatusDetected)

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeArbDetection, env.MessageType)
	rec, err := domain.DecodeArbRecord(env.Contents)
	require.NoError(t, err)
	assert.Equal(t, "arb-1", rec.ID)
}

func TestHub_ClientUnsubscribe(t *testing.T) {
	hub, b, srv := startHub(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action": "unsubscribe",
		"types":  []string{TypeOddsUpdate},
	}))
	time.Sleep(50 * time.Millisecond)

	b.subs["odds_updates"] <- oddsPayload(t)
	b.subs["arb_executions"] <- arbPayload(t, domain.ArbStatusCancelled)

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeArbExecution, env.MessageType)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, _, srv := startHub(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
