package vxmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	vxmetrics "github.com/vxlanprobe/vxlanprobe/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := vxmetrics.NewCollector(reg)

	if c.DatagramsReceived == nil {
		t.Error("DatagramsReceived is nil")
	}
	if c.RawBytesReceived == nil {
		t.Error("RawBytesReceived is nil")
	}
	if c.DatagramsParsed == nil {
		t.Error("DatagramsParsed is nil")
	}
	if c.FlowsActive == nil {
		t.Error("FlowsActive is nil")
	}
	if c.FlowsFlushed == nil {
		t.Error("FlowsFlushed is nil")
	}
	if c.FlowTableSaturations == nil {
		t.Error("FlowTableSaturations is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestObserveCycleNoSaturation(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := vxmetrics.NewCollector(reg)

	c.ObserveCycle(100, 12800, 90, 3, 3, 90)

	if got := counterValue(t, c.DatagramsReceived); got != 100 {
		t.Errorf("DatagramsReceived = %v, want 100", got)
	}
	if got := counterValue(t, c.DatagramsParsed); got != 90 {
		t.Errorf("DatagramsParsed = %v, want 90", got)
	}
	if got := gaugeValue(t, c.FlowsActive); got != 3 {
		t.Errorf("FlowsActive = %v, want 3", got)
	}
	if got := counterValue(t, c.FlowTableSaturations); got != 0 {
		t.Errorf("FlowTableSaturations = %v, want 0", got)
	}
}

func TestObserveCycleWithSaturation(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := vxmetrics.NewCollector(reg)

	// 200,001 parsed but snapshot only reflects 200,000 packets: a 1-packet
	// discrepancy, matching the table-saturation scenario.
	c.ObserveCycle(200_001, 200_001*128, 200_001, 200_000, 200_000, 200_000)

	if got := counterValue(t, c.FlowTableSaturations); got != 1 {
		t.Errorf("FlowTableSaturations = %v, want 1", got)
	}
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
