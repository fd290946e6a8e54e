package gateway

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeResult = "result"
	outcomeStatus = "status"

	// unknownTarget labels calls to methods that are not registered.
	unknownTarget = "unknown"
)

type metrics struct {
	messages *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.SummaryVec
	active   *prometheus.GaugeVec
}

// register adds c to reg, an identical collector registered earlier is
// reused.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func newMetrics(reg prometheus.Registerer, namespace string) (*metrics, error) {
	var (
		m   metrics
		err error
	)

	m.messages, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "messages_total",
		Help:      "Remoting messages answered, by target and outcome.",
	}, []string{"target", "outcome"}))
	if err != nil {
		return nil, err
	}

	m.errors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "packet_errors_total",
		Help:      "Requests rejected before dispatch, by reason.",
	}, []string{"reason"}))
	if err != nil {
		return nil, err
	}

	m.duration, err = register(reg, prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "message_duration_seconds",
		Help:      "Handler latency per target.",
		Objectives: map[float64]float64{
			0.5:  0.01,
			0.9:  0.01,
			0.99: 0.001,
		},
	}, []string{"target"}))
	if err != nil {
		return nil, err
	}

	m.active, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "active_messages",
		Help:      "Messages being handled, by target.",
	}, []string{"target"}))
	if err != nil {
		return nil, err
	}

	return &m, nil
}
