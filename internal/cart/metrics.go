package cart

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opAdd         = "add"
	opSetQuantity = "set_quantity"
	opRemove      = "remove"
	opClear       = "clear"
)

// Metrics holds the cart store counters.
type Metrics struct {
	Mutations       *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	LoadFailures    prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Cart mutations written to storage, by operation",
		}, []string{"op"}),
		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cart_persist_failures_total",
			Help: "Cart mutations whose storage write failed, by operation",
		}, []string{"op"}),
		LoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_cart_load_failures_total",
			Help: "Cart reads that fell back to an empty cart",
		}),
	}
}

func (m *Metrics) mutated(op string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op).Inc()
}

func (m *Metrics) persistFailed(op string) {
	if m == nil {
		return
	}
	m.PersistFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) loadFailed() {
	if m == nil {
		return
	}
	m.LoadFailures.Inc()
}
