package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"stashbox/core/events"
	coretypes "stashbox/core/types"
	"stashbox/observability/metrics"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stashbox",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of ledger events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the event counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.emitted.WithLabelValues(eventType).Inc()
}

// MetricsEmitter forwards events to an inner emitter while recording them in
// the Prometheus registries.
type MetricsEmitter struct {
	inner events.Emitter
}

// opByEventType maps committed ledger events onto operation counter labels.
var opByEventType = map[string]string{
	events.TypeSavingsJarCreated:    "create_jar",
	events.TypeSavingsDeposited:     "deposit",
	events.TypeSavingsWithdrawn:     "withdraw",
	events.TypeSavingsYieldClaimed:  "claim_yield",
	events.TypeSavingsEmergencyExit: "emergency_withdraw",
	events.TypeSavingsRebalanced:    "rebalance",
}

// NewMetricsEmitter wraps the supplied emitter. A nil inner emitter is
// replaced by a no-op sink.
func NewMetricsEmitter(inner events.Emitter) *MetricsEmitter {
	if inner == nil {
		inner = events.NoopEmitter{}
	}
	return &MetricsEmitter{inner: inner}
}

func (m *MetricsEmitter) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	Events().RecordEvent(evt.EventType())
	if op, ok := opByEventType[evt.EventType()]; ok {
		metrics.Savings().ObserveOperation(op)
	}
	if payloader, ok := evt.(interface{ Event() *coretypes.Event }); ok {
		if payload := payloader.Event(); payload != nil {
			if raw, ok := payload.Attributes["amount"]; ok {
				if amount, valid := new(big.Int).SetString(raw, 10); valid {
					if evt.EventType() == events.TypeSavingsYieldDistributed {
						metrics.Savings().AddYieldDistributed(bigToFloat(amount))
					}
				}
			}
		}
	}
	m.inner.Emit(evt)
}
