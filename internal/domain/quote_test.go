package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOdds_Validate(t *testing.T) {
	tests := []struct {
		name string
		odds Odds
		ok   bool
	}{
		{"valid", Odds{HomeWin: 2.1, AwayWin: 1.8}, true},
		{"evens is not a price", Odds{HomeWin: 1.0, AwayWin: 3}, false},
		{"negative", Odds{HomeWin: 2, AwayWin: -2}, false},
		{"nan", Odds{HomeWin: math.NaN(), AwayWin: 2}, false},
		{"inf", Odds{HomeWin: 2, AwayWin: math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.odds.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidOdds)
			}
		})
	}
}

func TestNewOddsUpdate_WireFormat(t *testing.T) {
	u := NewOddsUpdate(Quote{
		Match:     "Man Utd vs Chelsea",
		Bookmaker: "Bet365",
		Odds:      Odds{HomeWin: 2.1, AwayWin: 1.8},
	}, time.UnixMilli(1700000000123))

	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"event": "odds_update",
		"match": "Man Utd vs Chelsea",
		"bookmaker": "Bet365",
		"odds": {"home_win": 2.1, "away_win": 1.8},
		"timestamp": 1700000000123
	}`, string(data))

	q, ok := u.Quote()
	require.True(t, ok)
	assert.Equal(t, 2.1, q.Odds.HomeWin)
}

func TestNewOddsClose_WireFormat(t *testing.T) {
	u := NewOddsClose("Man Utd vs Chelsea", "Bet365", time.UnixMilli(5))

	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"odds_close","match":"Man Utd vs Chelsea","bookmaker":"Bet365","odds":null,"timestamp":5}`, string(data))

	_, ok := u.Quote()
	assert.False(t, ok)
}

func TestDecodeOddsUpdate(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"update", `{"event":"odds_update","match":"A vs B","bookmaker":"X","odds":{"home_win":2,"away_win":2},"timestamp":1}`, false},
		{"close", `{"event":"odds_close","match":"A vs B","bookmaker":"X","odds":null,"timestamp":1}`, false},
		{"update without odds", `{"event":"odds_update","match":"A vs B","bookmaker":"X","odds":null}`, true},
		{"close with odds", `{"event":"odds_close","match":"A vs B","bookmaker":"X","odds":{"home_win":2,"away_win":2}}`, true},
		{"unknown event", `{"event":"odds_suspend","match":"A vs B","bookmaker":"X"}`, true},
		{"missing match", `{"event":"odds_close","bookmaker":"X"}`, true},
		{"bad odds", `{"event":"odds_update","match":"A vs B","bookmaker":"X","odds":{"home_win":0.5,"away_win":2}}`, true},
		{"not json", `odds`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeOddsUpdate([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
