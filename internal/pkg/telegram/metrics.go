package telegram

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgdisk_telegram_requests_total",
		Help: "Bot API calls by method and outcome.",
	}, []string{"method", "outcome"})

	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgdisk_telegram_bytes_total",
		Help: "Chunk payload bytes moved to or from Telegram.",
	}, []string{"direction"})

	poolClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tgdisk_telegram_pool_clients",
		Help: "Bot API clients currently held in the pool.",
	})
)

func observeRequest(method, outcome string) {
	requestsTotal.WithLabelValues(method, outcome).Inc()
}

func observeBytes(direction string, n int) {
	bytesTotal.WithLabelValues(direction).Add(float64(n))
}
