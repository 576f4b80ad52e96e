// Package metrics exports engine activity as Prometheus collectors.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"pmrouter/internal/model"
)

// Sink counts committed events. It satisfies the engine's event sink.
type Sink struct {
	events     *prometheus.CounterVec
	shares     *prometheus.CounterVec
	collateral *prometheus.CounterVec
	levels     prometheus.Histogram
	failures   *prometheus.CounterVec
}

// NewSink builds the collectors and registers them with reg.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmrouter_events_total",
			Help: "Committed engine events by type.",
		}, []string{"type"}),
		shares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmrouter_fill_shares_total",
			Help: "Outcome shares exchanged through pool fills.",
		}, []string{"kind"}),
		collateral: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmrouter_fill_collateral_total",
			Help: "Collateral exchanged through pool fills.",
		}, []string{"kind"}),
		levels: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pmrouter_trade_levels",
			Help:    "Price levels touched per routed trade.",
			Buckets: prometheus.LinearBuckets(0, 5, 11),
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmrouter_failures_total",
			Help: "Rejected operations by error kind.",
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{s.events, s.shares, s.collateral, s.levels, s.failures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// PutEvents records a committed batch.
func (s *Sink) PutEvents(_ context.Context, events []model.Event) error {
	for _, ev := range events {
		s.events.WithLabelValues(string(ev.Type)).Inc()
		switch ev.Type {
		case model.EventFill:
			kind := ev.Kind.String()
			s.shares.WithLabelValues(kind).Add(amount(ev.Shares))
			s.collateral.WithLabelValues(kind).Add(amount(ev.Collateral))
		case model.EventTrade:
			s.levels.Observe(float64(ev.Levels))
		}
	}
	return nil
}

// ObserveFailure counts a rejected operation.
func (s *Sink) ObserveFailure(err error) {
	if err == nil {
		return
	}
	s.failures.WithLabelValues(string(model.KindOf(err))).Inc()
}

func amount(v string) float64 {
	if v == "" {
		return 0
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
