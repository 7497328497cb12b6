package ledger

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the ledger's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	minted   prometheus.Counter
	burned   prometheus.Counter
	fees     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curveledger",
			Name:      "operations_total",
			Help:      "Ledger operations by kind and result code.",
		}, []string{"op", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "curveledger",
			Name:      "operation_duration_seconds",
			Help:      "Time spent inside a ledger operation.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"op"}),
		minted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "curveledger",
			Name:      "currency_minted_total",
			Help:      "Currency minted by the ledger, in base units.",
		}),
		burned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "curveledger",
			Name:      "currency_burned_total",
			Help:      "Currency burned by the ledger, in base units.",
		}),
		fees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "curveledger",
			Name:      "fees_total",
			Help:      "Currency fees delivered to the fee sink, in base units.",
		}),
	}
	for _, c := range []prometheus.Collector{m.ops, m.duration, m.minted, m.burned, m.fees} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, string(CodeOf(err))).Inc()
}

func (m *Metrics) time(op string) func() {
	if m == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(m.duration.WithLabelValues(op))
	return func() { timer.ObserveDuration() }
}

func (m *Metrics) addSupply(minted, burned *uint256.Int) {
	if m == nil {
		return
	}
	m.minted.Add(toFloat(minted))
	m.burned.Add(toFloat(burned))
}

func (m *Metrics) addFee(fee *uint256.Int) {
	if m == nil {
		return
	}
	m.fees.Add(toFloat(fee))
}

func toFloat(x *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(x.ToBig()).Float64()
	return f
}
