// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the recovery core's tunable constants from
// defaults plus environment overrides, the way grafana/k6's
// cloudapi.GetConsolidatedConfig layers a NewConfig() default over an
// envconfig.Process pass (cloudapi/config.go).
package config

import (
	"github.com/mstoykov/envconfig"

	"github.com/cybort/kwik/internal/quic"
)

// Env holds the recovery/reassembly tunables as they're named when
// overridden from the environment. Zero fields are left at
// quic.DefaultConfig()'s value: unlike k6's cloudapi.Config (which
// uses gopkg.in/guregu/null.v3 to distinguish "unset" from "zero"),
// every field here has a meaningful nonzero RFC 9002 default, so a
// plain zero-value check is enough to detect "not overridden."
type Env struct {
	PacketThreshold     uint64 `envconfig:"KWIK_PACKET_THRESHOLD"`
	TimeThresholdNum    int64  `envconfig:"KWIK_TIME_THRESHOLD_NUM"`
	TimeThresholdDen    int64  `envconfig:"KWIK_TIME_THRESHOLD_DEN"`
	GranularityMs       int64  `envconfig:"KWIK_GRANULARITY_MS"`
	InitialRTTMs        int64  `envconfig:"KWIK_INITIAL_RTT_MS"`
	ReceiverMaxAckDelay int64  `envconfig:"KWIK_RECEIVER_MAX_ACK_DELAY_MS"`
	CryptoPrefixSize    int    `envconfig:"KWIK_CRYPTO_PREFIX_SIZE"`
}

// FromEnv returns quic.DefaultConfig() with any variables present in
// env overlaid on top. lookup mirrors envconfig.Process's lookuper
// signature (cloudapi/config.go's GetConsolidatedConfig passes an
// equivalent closure over a map[string]string).
func FromEnv(lookup func(key string) (string, bool)) (quic.Config, error) {
	var e Env
	if err := envconfig.Process("", &e, lookup); err != nil {
		return quic.Config{}, err
	}

	cfg := quic.DefaultConfig()
	if e.PacketThreshold != 0 {
		cfg.PacketThreshold = e.PacketThreshold
	}
	if e.TimeThresholdNum != 0 {
		cfg.TimeThresholdNum = e.TimeThresholdNum
	}
	if e.TimeThresholdDen != 0 {
		cfg.TimeThresholdDen = e.TimeThresholdDen
	}
	if e.GranularityMs != 0 {
		cfg.Granularity = quic.Duration(e.GranularityMs)
	}
	if e.InitialRTTMs != 0 {
		cfg.InitialRTT = quic.Duration(e.InitialRTTMs)
	}
	if e.ReceiverMaxAckDelay != 0 {
		cfg.ReceiverMaxAckDelay = quic.Duration(e.ReceiverMaxAckDelay)
	}
	if e.CryptoPrefixSize != 0 {
		cfg.CryptoPrefixSize = e.CryptoPrefixSize
	}
	return cfg, nil
}
