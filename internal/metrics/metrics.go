// Package metrics exposes Prometheus instrumentation for the engine,
// grounded on the teacher's metrics.go: package-level collectors registered
// in init(), with small setter/incrementer helpers so callers never touch
// the prometheus API directly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meanrevert_signals_total",
			Help: "Signals emitted by the generator, labeled by kind.",
		},
		[]string{"kind"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meanrevert_trades_total",
			Help: "Closed trades, labeled by result (win|loss) and close reason.",
		},
		[]string{"result", "reason"},
	)

	RiskDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meanrevert_risk_denied_total",
			Help: "Order intents suppressed by the risk gate, labeled by deny reason.",
		},
		[]string{"reason"},
	)

	EquityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meanrevert_equity_usd",
			Help: "Running realized + unrealized equity in USD.",
		},
	)

	ZScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meanrevert_zscore",
			Help: "Most recently computed Z-score.",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meanrevert_circuit_breaker_state",
			Help: "Transport circuit breaker state indicator (0=closed,1=half-open,2=open), labeled by component.",
		},
		[]string{"component"},
	)

	EngineState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meanrevert_engine_state",
			Help: "Engine state machine indicator, one labeled series per Kind, flipped between 0/1.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, TradesTotal, RiskDeniedTotal)
	prometheus.MustRegister(EquityUSD, ZScore)
	prometheus.MustRegister(CircuitBreakerState, EngineState)
}

// ObserveSignal increments the per-kind signal counter.
func ObserveSignal(kind string) { SignalsTotal.WithLabelValues(kind).Inc() }

// ObserveTrade increments the per-result/reason trade counter. It does not
// touch the Z-score gauge; callers set ZScore separately from the signal
// stream.
func ObserveTrade(result, reason string) { TradesTotal.WithLabelValues(result, reason).Inc() }

// ObserveRiskDenied increments the per-reason denial counter.
func ObserveRiskDenied(reason string) { RiskDeniedTotal.WithLabelValues(reason).Inc() }

// SetEquity updates the running equity gauge.
func SetEquity(v float64) { EquityUSD.Set(v) }

// SetZScore updates the most-recent Z-score gauge.
func SetZScore(v float64) { ZScore.Set(v) }

// SetCircuitBreakerState sets one component's labeled series to the given
// state (0 closed, 1 half-open, 2 open). Other components' series are left
// unchanged.
func SetCircuitBreakerState(component string, state float64) {
	CircuitBreakerState.WithLabelValues(component).Set(state)
}

// SetEngineState flips the labeled series for kind to 1 and the rest of
// the known kinds to 0.
func SetEngineState(kind string) {
	for _, k := range []string{"Idle", "Entering", "Open", "Exiting"} {
		if k == kind {
			EngineState.WithLabelValues(k).Set(1)
		} else {
			EngineState.WithLabelValues(k).Set(0)
		}
	}
}
