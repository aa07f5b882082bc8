package auth

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts token endpoint outcomes. A nil *Metrics records nothing.
type Metrics struct {
	exchanges       *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tunegate",
			Name:      "oauth_callbacks_total",
			Help:      "Authorization callbacks by outcome",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tunegate",
			Name:      "oauth_refreshes_total",
			Help:      "Token refreshes by outcome",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tunegate",
			Name:      "oauth_refresh_duration_seconds",
			Help:      "Latency of refresh flights including retries",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	var err error
	if m.exchanges, err = register(reg, m.exchanges); err != nil {
		return nil, err
	}
	if m.refreshes, err = register(reg, m.refreshes); err != nil {
		return nil, err
	}
	if m.refreshDuration, err = register(reg, m.refreshDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, returning the collector already registered under the same name if there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) callback(result string) {
	if m != nil {
		m.exchanges.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refresh(result string, seconds float64) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
		m.refreshDuration.Observe(seconds)
	}
}
