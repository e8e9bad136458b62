// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	evictions     prometheus.Counter
	computeErrors prometheus.Counter

	registerer prometheus.Registerer
	gauges     []prometheus.Collector
}

func newMetrics(name string) *metrics {
	counter := func(metric, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pakforge",
			Subsystem:   "cache",
			Name:        metric,
			Help:        help,
			ConstLabels: prometheus.Labels{"cache": name},
		})
	}
	return &metrics{
		hits:          counter("hits_total", "Lookups answered from a stored entry."),
		misses:        counter("misses_total", "Lookups that had to compute a value."),
		evictions:     counter("evictions_total", "Entries dropped to stay under the entry or byte ceiling."),
		computeErrors: counter("compute_errors_total", "Computations that failed or were cancelled."),
	}
}

// register adds the counters and the size gauges to registerer.
// Counters already registered under the same descriptor are adopted,
// so a reopened cache keeps counting into the same series. Gauges
// report on the live cache and are removed again by unregister.
func (m *metrics) register(registerer prometheus.Registerer, name string, entries, bytes func() float64) error {
	for _, counter := range []*prometheus.Counter{&m.hits, &m.misses, &m.evictions, &m.computeErrors} {
		if err := registerer.Register(*counter); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return fmt.Errorf("registering cache metrics: %w", err)
			}
			existing, ok := already.ExistingCollector.(prometheus.Counter)
			if !ok {
				return fmt.Errorf("registering cache metrics: %w", err)
			}
			*counter = existing
		}
	}

	gauge := func(metric, help string, value func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "pakforge",
			Subsystem:   "cache",
			Name:        metric,
			Help:        help,
			ConstLabels: prometheus.Labels{"cache": name},
		}, value)
	}
	m.registerer = registerer
	for _, collector := range []prometheus.Collector{
		gauge("entries", "Entries currently stored.", entries),
		gauge("bytes", "Sum of the reported sizes of stored entries.", bytes),
	} {
		if err := registerer.Register(collector); err != nil {
			m.unregister()
			return fmt.Errorf("registering cache metrics: %w", err)
		}
		m.gauges = append(m.gauges, collector)
	}
	return nil
}

func (m *metrics) unregister() {
	if m.registerer == nil {
		return
	}
	for _, collector := range m.gauges {
		m.registerer.Unregister(collector)
	}
	m.gauges = nil
}
