// Package metrics регистрирует счетчики Prometheus для бизнес-операций.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Checkouts попытки оформления подписки по результату.
	Checkouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardinghouse_checkouts_total",
		Help: "Checkout session requests by result.",
	}, []string{"result"})

	// WebhookEvents события шлюза по типу и результату обработки.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardinghouse_webhook_events_total",
		Help: "Gateway webhook events by type and result.",
	}, []string{"type", "result"})

	// SweeperExpired платежи, переведенные в expired.
	SweeperExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boardinghouse_sweeper_expired_total",
		Help: "Payments expired by the sweeper.",
	})

	// SweeperAbandoned зависшие pending-платежи, переведенные в failed.
	SweeperAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boardinghouse_sweeper_abandoned_total",
		Help: "Pending payments marked failed after the pending TTL.",
	})

	// SlotChanges изменения заполненности объявлений.
	SlotChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boardinghouse_slot_changes_total",
		Help: "Resident slot changes by operation and result.",
	}, []string{"op", "result"})
)
