// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command kwik-recover is a small operator tool around the recovery
// core in internal/quic: it replays a captured CRYPTO-frame trace
// through reassembly, and it can expose live RecoveryManager/
// CryptoStream gauges to Prometheus. Subcommand layout follows
// grafana/k6's cmd package (one file per subcommand, a shared root
// command wiring global flags in main.go).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	log      = logrus.New()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kwik-recover",
		Short:         "Inspect and replay the kwik CRYPTO-stream and loss-recovery core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}
			log.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")
	root.AddCommand(newReassembleCmd())
	root.AddCommand(newServeMetricsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
