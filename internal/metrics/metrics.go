// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exposes RecoveryManager and CryptoStream state as
// Prometheus collectors, registered through a docker/go-metrics
// namespace the way distribution/distribution's metrics package wires
// its storage and middleware namespaces (metrics/prometheus.go).
package metrics

import (
	metrics "github.com/docker/go-metrics"

	"github.com/cybort/kwik/internal/quic"
)

// NamespacePrefix matches distribution/distribution's convention of a
// single top-level namespace name for the whole binary.
const NamespacePrefix = "kwik"

// RecoveryNamespace is the prometheus namespace for loss-recovery
// gauges, registered with metrics.Register by the caller (typically
// cmd/kwik-recover's serve-metrics subcommand).
var RecoveryNamespace = metrics.NewNamespace(NamespacePrefix, "recovery", nil)

// Collector polls a *quic.RecoveryManager on each Collect and updates
// the registered gauges, the way a docker/go-metrics collector is
// expected to be cheap to call from promhttp's scrape path.
type Collector struct {
	rm *quic.RecoveryManager

	bytesInFlight metrics.LabeledGauge
	smoothedRTT   metrics.Gauge
	minRTT        metrics.Gauge
	ptoCount      metrics.Gauge
}

// NewCollector registers gauges under ns and returns a Collector that
// reads rm's state on every Collect call.
func NewCollector(ns *metrics.Namespace, rm *quic.RecoveryManager) *Collector {
	c := &Collector{
		rm:            rm,
		bytesInFlight: ns.NewLabeledGauge("bytes_in_flight", "Bytes currently in flight per packet-number space", metrics.Bytes, "space"),
		smoothedRTT:   ns.NewGauge("smoothed_rtt_ms", "Smoothed RTT estimate", metrics.Unit("milliseconds")),
		minRTT:        ns.NewGauge("min_rtt_ms", "Minimum observed RTT", metrics.Unit("milliseconds")),
		ptoCount:      ns.NewGauge("pto_count", "Consecutive PTO expirations since the last ack", metrics.Unit("total")),
	}
	return c
}

// Collect refreshes every gauge from a fresh RecoveryManager snapshot.
// Call this immediately before a scrape, or on a short ticker.
func (c *Collector) Collect() {
	stats := c.rm.Snapshot()
	for space := quic.Space(0); int(space) < len(stats.BytesInFlight); space++ {
		c.bytesInFlight.WithValues(space.String()).Set(float64(stats.BytesInFlight[space]))
	}
	c.smoothedRTT.Set(float64(stats.SmoothedRTT))
	c.minRTT.Set(float64(stats.MinRTT))
	c.ptoCount.Set(float64(stats.PTOCount))
}

// ReassemblyNamespace is the prometheus namespace for CryptoStream
// reassembly gauges.
var ReassemblyNamespace = metrics.NewNamespace(NamespacePrefix, "reassembly", nil)

// ReassemblyCollector tracks how many messages a CryptoStream has
// produced and how far its read cursor has advanced.
type ReassemblyCollector struct {
	cs *quic.CryptoStream

	messagesProduced metrics.Gauge
	readOffset       metrics.Gauge
}

// NewReassemblyCollector registers gauges under ns for cs.
func NewReassemblyCollector(ns *metrics.Namespace, cs *quic.CryptoStream) *ReassemblyCollector {
	return &ReassemblyCollector{
		cs:               cs,
		messagesProduced: ns.NewGauge("messages_produced", "Handshake messages produced so far", metrics.Unit("total")),
		readOffset:       ns.NewGauge("read_offset_bytes", "Contiguous bytes consumed from the CRYPTO stream", metrics.Bytes),
	}
}

// Collect refreshes the reassembly gauges.
func (r *ReassemblyCollector) Collect() {
	r.messagesProduced.Set(float64(len(r.cs.Messages())))
	r.readOffset.Set(float64(r.cs.ReadOffset()))
}
