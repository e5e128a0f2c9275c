// Package metrics exposes scheduler activity as prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the scheduler metrics. A nil *Collector records nothing.
type Collector struct {
	answers  *prometheus.CounterVec
	leeches  prometheus.Counter
	undos    *prometheus.CounterVec
	rebuilds prometheus.Histogram
	due      *prometheus.GaugeVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knolsched",
			Name:      "answers_total",
			Help:      "Cards answered, by queue and ease.",
		}, []string{"queue", "ease"}),
		leeches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knolsched",
			Name:      "leeches_total",
			Help:      "Cards that became leeches.",
		}),
		undos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knolsched",
			Name:      "undo_total",
			Help:      "Operations undone, by kind.",
		}, []string{"kind"}),
		rebuilds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "knolsched",
			Name:      "filtered_rebuild_cards",
			Help:      "Cards pulled into a filtered deck per rebuild.",
			Buckets:   []float64{0, 10, 50, 100, 500, 1000},
		}),
		due: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "knolsched",
			Name:      "due_cards",
			Help:      "Cards due in the current study context, by tier.",
		}, []string{"tier"}),
	}
	for _, m := range []prometheus.Collector{c.answers, c.leeches, c.undos, c.rebuilds, c.due} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Answer records one graded card.
func (c *Collector) Answer(queue string, ease int) {
	if c == nil {
		return
	}
	c.answers.WithLabelValues(queue, strconv.Itoa(ease)).Inc()
}

// Leech records a card turning into a leech.
func (c *Collector) Leech() {
	if c == nil {
		return
	}
	c.leeches.Inc()
}

// Undo records an undone operation.
func (c *Collector) Undo(kind string) {
	if c == nil {
		return
	}
	c.undos.WithLabelValues(kind).Inc()
}

// Rebuild records the size of a filtered deck after a rebuild.
func (c *Collector) Rebuild(cards int) {
	if c == nil {
		return
	}
	c.rebuilds.Observe(float64(cards))
}

// Due publishes the current per-tier counts.
func (c *Collector) Due(newCount, learnCount, reviewCount int) {
	if c == nil {
		return
	}
	c.due.WithLabelValues("new").Set(float64(newCount))
	c.due.WithLabelValues("learning").Set(float64(learnCount))
	c.due.WithLabelValues("review").Set(float64(reviewCount))
}
