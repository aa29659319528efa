// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the retry policy shared by the pipeline stages.
//
// Each stage decides for itself what counts as a failed attempt (a rejected
// grammar, a non-zero compiler exit, a failing interpreter test); the policy
// only bounds how many attempts are made and how long to pause in between.
package model

import (
	"context"
	"time"
)

// DefaultMaxRetries is the attempt budget of every retrying stage.
const DefaultMaxRetries = 3

// RetryPolicy bounds the attempts of a stage. The delay between attempts is
// fixed.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Normalize fills in defaults for a zero policy.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultMaxRetries
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// Wait pauses for the policy delay or until ctx is done.
func (p RetryPolicy) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
