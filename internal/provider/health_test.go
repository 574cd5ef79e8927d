// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/aegis/internal/provider"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func mustTracker(t *testing.T, cooldown time.Duration) *provider.HealthTracker {
	t.Helper()
	h, err := provider.NewHealthTracker(cooldown)
	require.NoError(t, err)
	return h
}

func TestNewHealthTracker_RejectsNonPositiveCooldown(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		_, err := provider.NewHealthTracker(d)
		require.Error(t, err)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigValidateInvalidValue))
	}
}

func TestHealthTracker_CooldownBoundary(t *testing.T) {
	cooldown := 10 * time.Second
	now := time.Now()

	tests := []struct {
		name        string
		elapsed     time.Duration
		wantHealthy bool
	}{
		{name: "before cooldown", elapsed: 9 * time.Second, wantHealthy: false},
		{name: "at cooldown", elapsed: cooldown, wantHealthy: true},
		{name: "after cooldown", elapsed: 11 * time.Second, wantHealthy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mustTracker(t, cooldown)
			h.SetNowFunc(func() time.Time { return now })
			h.RecordFailure()

			h.SetNowFunc(func() time.Time { return now.Add(tt.elapsed) })
			assert.Equal(t, tt.wantHealthy, h.IsHealthy())
		})
	}
}

func TestHealthTracker_Observe(t *testing.T) {
	h := mustTracker(t, time.Minute)
	assert.True(t, h.IsHealthy())

	h.Observe(errors.New("boom"))
	assert.False(t, h.IsHealthy())

	h.Observe(nil)
	assert.True(t, h.IsHealthy())

	var nilTracker *provider.HealthTracker
	assert.NotPanics(t, func() { nilTracker.Observe(errors.New("ignored")) })
}

func TestHealthTracker_HealthMetrics(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	second := now.Add(5 * time.Second)
	cooldownUntilSecond := second.Add(10 * time.Second)

	tests := []struct {
		name  string
		setup func(h *provider.HealthTracker)
		want  provider.HealthMetrics
	}{
		{
			name:  "initial state",
			setup: func(*provider.HealthTracker) {},
			want:  provider.HealthMetrics{Available: true},
		},
		{
			name: "multiple failures reflect most recent",
			setup: func(h *provider.HealthTracker) {
				h.SetNowFunc(func() time.Time { return now })
				h.RecordFailure()
				h.SetNowFunc(func() time.Time { return second })
				h.RecordFailure()
			},
			want: provider.HealthMetrics{
				Available:     false,
				FailureCount:  2,
				LastFailureAt: &second,
				CooldownUntil: &cooldownUntilSecond,
			},
		},
		{
			name: "success keeps failure count",
			setup: func(h *provider.HealthTracker) {
				h.SetNowFunc(func() time.Time { return now })
				h.RecordFailure()
				h.RecordSuccess()
			},
			want: provider.HealthMetrics{
				Available:     true,
				FailureCount:  1,
				LastFailureAt: &now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mustTracker(t, 10*time.Second)
			tt.setup(h)
			assert.Equal(t, tt.want, h.HealthMetrics())
		})
	}
}

func TestHealthTracker_ConcurrentRecordCalls(t *testing.T) {
	h := mustTracker(t, 30*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.RecordFailure()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.RecordSuccess()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = h.HealthMetrics()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), h.HealthMetrics().FailureCount)
}
