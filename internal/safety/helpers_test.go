// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package safety_test

import (
	"context"
	"sync/atomic"

	"github.com/sigil-dev/aegis/internal/safety"
	"github.com/sigil-dev/aegis/pkg/types"
)

type fixedScorer struct {
	score float64
	err   error
	calls atomic.Int32
	dirs  []types.Direction
}

func (s *fixedScorer) Score(_ context.Context, _ string, dir types.Direction) (safety.Score, error) {
	s.calls.Add(1)
	s.dirs = append(s.dirs, dir)
	if s.err != nil {
		return safety.Score{}, s.err
	}
	return safety.Score{Value: s.score}, nil
}

type countingDiscoverer struct {
	inner safety.Discoverer
	err   error
	calls atomic.Int32
}

func (d *countingDiscoverer) Discover(ctx context.Context, text string) (safety.Discovery, error) {
	d.calls.Add(1)
	if d.err != nil {
		return safety.Discovery{}, d.err
	}
	return d.inner.Discover(ctx, text)
}

// staticDiscoverer reports a fixed entity list against the input text.
type staticDiscoverer struct {
	entities []safety.Entity
}

func (d staticDiscoverer) Discover(_ context.Context, text string) (safety.Discovery, error) {
	return safety.Discovery{Text: text, Entities: d.entities}, nil
}
