// Package vxmetrics exposes the probe's gross counters and flow-table state
// as Prometheus metrics.
package vxmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "vxlanprobe"
	subsystem = "capture"
)

// Collector holds all capture Prometheus metrics.
//
// Metrics are designed for production traffic-observation monitoring:
//   - Gross counters track ingest-loop throughput per cycle.
//   - FlowsActive tracks the live occupied-count just before each flush.
//   - FlowTableSaturations flags observable aggregation loss (table
//     soft-cap or probe-budget exhaustion).
type Collector struct {
	// DatagramsReceived counts all datagrams received by the ingest loop.
	DatagramsReceived prometheus.Counter

	// RawBytesReceived counts on-wire datagram bytes received.
	RawBytesReceived prometheus.Counter

	// DatagramsParsed counts datagrams successfully decoded into flow
	// updates, whether or not the table accepted them.
	DatagramsParsed prometheus.Counter

	// FlowsActive is the live occupied-count observed just before the
	// most recent flush.
	FlowsActive prometheus.Gauge

	// FlowsFlushed counts flow records emitted by flush calls.
	FlowsFlushed prometheus.Counter

	// FlowTableSaturations counts the observable loss per cycle: datagrams
	// parsed but not reflected in the flushed snapshot's packet sum.
	FlowTableSaturations prometheus.Counter
}

// NewCollector creates a Collector with all metrics registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.DatagramsReceived,
		c.RawBytesReceived,
		c.DatagramsParsed,
		c.FlowsActive,
		c.FlowsFlushed,
		c.FlowTableSaturations,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "datagrams_received_total",
			Help:      "Total UDP datagrams received by the ingest loop.",
		}),

		RawBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "raw_bytes_received_total",
			Help:      "Total on-wire bytes received by the ingest loop.",
		}),

		DatagramsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "datagrams_parsed_total",
			Help:      "Total datagrams successfully decoded into flow updates.",
		}),

		FlowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flows_active",
			Help:      "Live occupied-count of the flow table before the most recent flush.",
		}),

		FlowsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flows_flushed_total",
			Help:      "Total flow records emitted by flush calls.",
		}),

		FlowTableSaturations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flow_table_saturations_total",
			Help:      "Total observable aggregation loss (parsed datagrams not reflected in a flushed snapshot).",
		}),
	}
}

// -------------------------------------------------------------------------
// Cycle Reporting
// -------------------------------------------------------------------------

// ObserveCycle records one run/flush cycle's results: the gross counter
// deltas for the cycle, the occupied-count observed before flush, the
// number of records the flush produced, and the total packet count summed
// across those records (used to derive the saturation counter).
func (c *Collector) ObserveCycle(receivedDelta, rawBytesDelta, parsedDelta uint64, flowsBeforeFlush, recordsFlushed int, snapshotPacketSum uint64) {
	c.DatagramsReceived.Add(float64(receivedDelta))
	c.RawBytesReceived.Add(float64(rawBytesDelta))
	c.DatagramsParsed.Add(float64(parsedDelta))
	c.FlowsActive.Set(float64(flowsBeforeFlush))
	c.FlowsFlushed.Add(float64(recordsFlushed))

	if parsedDelta > snapshotPacketSum {
		c.FlowTableSaturations.Add(float64(parsedDelta - snapshotPacketSum))
	}
}
