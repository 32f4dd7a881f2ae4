// Package metrics holds the Prometheus collectors shared by the backend
// services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// keeper
	KeeperTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wager_keeper_ticks_total",
			Help: "Keeper ticks by outcome",
		},
		[]string{"outcome"},
	)

	KeeperForcedCloses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wager_keeper_forced_closes_total",
			Help: "Forced closes attempted by the keeper",
		},
		[]string{"result"},
	)

	KeeperOpenGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wager_keeper_open_games",
		Help: "Open wagers seen on the last keeper tick",
	})

	// indexer
	IndexerSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wager_indexer_sync_duration_seconds",
		Help:    "Duration of one indexer sync",
		Buckets: prometheus.DefBuckets,
	})

	IndexerSyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wager_indexer_sync_errors_total",
			Help: "Indexer sync failures by stage",
		},
		[]string{"stage"},
	)

	IndexerRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wager_indexer_records",
			Help: "Records decoded on the last sync",
		},
		[]string{"kind"},
	)

	IndexerSyncedSlot = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wager_indexer_synced_slot",
		Help: "Slot of the last committed sync",
	})

	// api-server
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wager_api_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wager_api_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wager_api_websocket_clients",
		Help: "Connected websocket clients",
	})
)
