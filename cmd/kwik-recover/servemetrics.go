// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net/http"
	"os"
	"time"

	gometrics "github.com/docker/go-metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cybort/kwik/internal/config"
	"github.com/cybort/kwik/internal/metrics"
	"github.com/cybort/kwik/internal/quic"
	"github.com/cybort/kwik/internal/quic/quictest"
)

var scrapeInterval time.Duration

func newServeMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-metrics <addr>",
		Short: "Serve Prometheus gauges for a live RecoveryManager and CryptoStream on addr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeMetrics(cmd, args[0])
		},
	}
	cmd.Flags().DurationVar(&scrapeInterval, "refresh", time.Second, "how often to poll the recovery core for fresh gauge values")
	return cmd
}

func runServeMetrics(cmd *cobra.Command, addr string) error {
	cfg, err := config.FromEnv(os.LookupEnv)
	if err != nil {
		return err
	}

	advisor := &quictest.CongestionAdvisor{}
	probe := &quictest.ProbeSender{}
	rm := quic.NewRecoveryManager(cfg, advisor, probe, log)
	cs := quic.NewCryptoStream(cfg, quic.IdentityParser)

	gometrics.Register(metrics.RecoveryNamespace)
	gometrics.Register(metrics.ReassemblyNamespace)
	recoveryCollector := metrics.NewCollector(metrics.RecoveryNamespace, rm)
	reassemblyCollector := metrics.NewReassemblyCollector(metrics.ReassemblyNamespace, cs)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go pollCollectors(ctx, recoveryCollector, reassemblyCollector)
	go logProbeActivity(ctx, probe)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.WithField("addr", addr).Info("kwik-recover: serving metrics")
	return http.ListenAndServe(addr, mux)
}

type collector interface {
	Collect()
}

func pollCollectors(ctx context.Context, collectors ...collector) {
	ticker := time.NewTicker(scrapeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range collectors {
				c.Collect()
			}
		}
	}
}

// logProbeActivity periodically reports how many PTO probes the
// running RecoveryManager has had to send, so an operator watching the
// logs can see probe activity without scraping /metrics.
func logProbeActivity(ctx context.Context, probe *quictest.ProbeSender) {
	ticker := time.NewTicker(scrapeInterval)
	defer ticker.Stop()
	last := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := probe.Len(); n != last {
				log.WithField("probes_sent", n).Info("kwik-recover: PTO probe activity")
				last = n
			}
		}
	}
}
