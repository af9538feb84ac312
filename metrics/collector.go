// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes prometheus instrumentation for adapter operations.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "basicdb"

// Collector records operation counts, latencies and open connections in a
// private registry. A nil *Collector is valid and records nothing.
type Collector struct {
	registry          *prometheus.Registry
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	openConnections   prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of adapter operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of adapter operations",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"operation"},
		),
		openConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_connections",
			Help:      "Number of database connections opened through the adapter and not yet closed",
		}),
	}

	for _, m := range []prometheus.Collector{c.operationCounter, c.operationDuration, c.openConnections} {
		if err := c.registry.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// RecordOperation records one finished operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{"operation": operation, "status": status}).Inc()
	c.operationDuration.With(prometheus.Labels{"operation": operation}).Observe(duration.Seconds())
}

// Observe is RecordOperation with the duration measured from start. It is
// meant for defer statements.
func (c *Collector) Observe(operation string, start time.Time, err *error) {
	if c == nil {
		return
	}
	var e error
	if err != nil {
		e = *err
	}
	c.RecordOperation(operation, time.Since(start), e)
}

// ConnectionOpened increments the open connection gauge.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.openConnections.Inc()
}

// ConnectionClosed decrements the open connection gauge.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.openConnections.Dec()
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's registry in the prometheus exposition
// format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
