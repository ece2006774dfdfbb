// Package metrics 把状态机转换事件导出为 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

// Collector 实现 statemachine.Observer
type Collector struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inflight    *prometheus.GaugeVec
}

// NewCollector namespace 为空时指标名以 fsm_ 开头
func NewCollector(namespace string) *Collector {
	return &Collector{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fsm_transitions_total",
				Help:      "Total number of transition steps by outcome",
			},
			[]string{"machine", "transition", "type", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fsm_async_duration_seconds",
				Help:      "Time from dispatch to settlement of asynchronous transitions",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"machine", "transition"},
		),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "fsm_inflight",
				Help:      "Asynchronous transitions currently in flight",
			},
			[]string{"machine"},
		),
	}
}

// Register 注册到 Prometheus
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.transitions, c.duration, c.inflight} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) OnTransition(ev statemachine.Event) {
	c.transitions.WithLabelValues(ev.Machine, ev.Transition, string(ev.Type), string(ev.Outcome)).Inc()

	if ev.Type != statemachine.TypeAsync {
		return
	}
	if ev.Outcome == statemachine.OutcomeStarted {
		c.inflight.WithLabelValues(ev.Machine).Inc()
		return
	}
	c.inflight.WithLabelValues(ev.Machine).Dec()
	c.duration.WithLabelValues(ev.Machine, ev.Transition).Observe(ev.Duration.Seconds())
}

// Handler 暴露 gatherer 中的指标
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
