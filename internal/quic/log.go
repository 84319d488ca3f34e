// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import (
	"time"

	"github.com/sirupsen/logrus"
)

// recoveryLogger is the narrow slice of logging the recovery core
// actually needs: a negative RTT sample, a coerced missing
// last-ack-eliciting-sent time, and a spurious timer fire are each
// worth recording but never returned as errors, since none of them
// breaks a guarantee the caller needs to react to.
type recoveryLogger interface {
	negativeRTTSample(space Space, timeReceived, timeSent time.Time)
	coercedLastAckElicitingSent(space Space, now time.Time)
	spuriousTimerFire(space Space)
}

// logrusRecoveryLogger adapts a logrus.FieldLogger to recoveryLogger,
// in the style distribution-distribution's cmd/registry configures
// and calls logrus: structured fields, no free-form string building
// at call sites.
type logrusRecoveryLogger struct {
	log logrus.FieldLogger
}

// newLogrusRecoveryLogger wraps log, or logrus.StandardLogger() if
// log is nil.
func newLogrusRecoveryLogger(log logrus.FieldLogger) *logrusRecoveryLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &logrusRecoveryLogger{log: log}
}

func (l *logrusRecoveryLogger) negativeRTTSample(space Space, timeReceived, timeSent time.Time) {
	l.log.WithFields(logrus.Fields{
		"space":         space.String(),
		"time_received": timeReceived,
		"time_sent":     timeSent,
	}).Warn("quic: discarding RTT sample with time_received before time_sent")
}

func (l *logrusRecoveryLogger) coercedLastAckElicitingSent(space Space, now time.Time) {
	l.log.WithFields(logrus.Fields{
		"space": space.String(),
		"now":   now,
	}).Warn("quic: no last-ack-eliciting-sent time available during address validation, coercing to now")
}

func (l *logrusRecoveryLogger) spuriousTimerFire(space Space) {
	l.log.WithField("space", space.String()).Debug("quic: spurious loss-detection timer fire, ignoring")
}

// nopRecoveryLogger discards everything. Used by tests that don't
// want logrus output cluttering `go test -v`.
type nopRecoveryLogger struct{}

func (nopRecoveryLogger) negativeRTTSample(Space, time.Time, time.Time) {}
func (nopRecoveryLogger) coercedLastAckElicitingSent(Space, time.Time) {}
func (nopRecoveryLogger) spuriousTimerFire(Space)                      {}
