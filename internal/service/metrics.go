package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LedgerEventsTotal counts ledger messages by kind and result.
var LedgerEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arbbot_ledger_events_total",
		Help: "Total number of detection and execution messages recorded by the ledger",
	},
	[]string{"kind", "result"},
)
