package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SavingsMetrics tracks ledger activity for the savings module.
type SavingsMetrics struct {
	operations         *prometheus.CounterVec
	yieldDistributed   prometheus.Counter
	deployedLiquidity  prometheus.Gauge
	totalShares        prometheus.Gauge
	undistributedYield prometheus.Gauge
}

var (
	savingsOnce     sync.Once
	savingsRegistry *SavingsMetrics
)

func Savings() *SavingsMetrics {
	savingsOnce.Do(func() {
		savingsRegistry = &SavingsMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stashbox",
				Subsystem: "savings",
				Name:      "operations_total",
				Help:      "Count of committed savings operations by kind.",
			}, []string{"op"}),
			yieldDistributed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stashbox",
				Subsystem: "savings",
				Name:      "yield_distributed_total",
				Help:      "Cumulative yield distributed to the pool in base units.",
			}),
			deployedLiquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stashbox",
				Subsystem: "savings",
				Name:      "deployed_liquidity",
				Help:      "Liquidity currently deployed at the venue in base units.",
			}),
			totalShares: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stashbox",
				Subsystem: "savings",
				Name:      "total_shares",
				Help:      "Total pool shares outstanding.",
			}),
			undistributedYield: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stashbox",
				Subsystem: "savings",
				Name:      "undistributed_yield",
				Help:      "Yield collected while the pool was empty, awaiting distribution.",
			}),
		}
		prometheus.MustRegister(
			savingsRegistry.operations,
			savingsRegistry.yieldDistributed,
			savingsRegistry.deployedLiquidity,
			savingsRegistry.totalShares,
			savingsRegistry.undistributedYield,
		)
	})
	return savingsRegistry
}

// ObserveOperation increments the counter for a committed operation kind.
func (m *SavingsMetrics) ObserveOperation(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op).Inc()
}

// AddYieldDistributed accumulates distributed yield.
func (m *SavingsMetrics) AddYieldDistributed(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.yieldDistributed.Add(amount)
}

// SetPoolState refreshes the pool-level gauges after a committed operation.
func (m *SavingsMetrics) SetPoolState(deployed, shares, undistributed float64) {
	if m == nil {
		return
	}
	m.deployedLiquidity.Set(deployed)
	m.totalShares.Set(shares)
	m.undistributedYield.Set(undistributed)
}
