package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalmind/internal/state"
)

type fakeReconciler struct {
	calls  atomic.Int32
	cutoff atomic.Value
	err    error
}

func (f *fakeReconciler) ReconcileStale(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls.Add(1)
	f.cutoff.Store(cutoff)
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func TestJanitorRunOnce(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore(time.Minute)
	require.NoError(t, store.Save(ctx, state.NewGeneration("c1", "u", time.Now())))

	reconciler := &fakeReconciler{}
	j := NewJanitor(store, reconciler, time.Minute, 10*time.Minute)
	now := time.Now().Add(2 * time.Minute)
	j.now = func() time.Time { return now }

	j.RunOnce(ctx)
	assert.Zero(t, store.Len())
	assert.Equal(t, int32(1), reconciler.calls.Load())
	assert.Equal(t, now.Add(-10*time.Minute), reconciler.cutoff.Load())
}

func TestJanitorKeepsLiveStates(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore(time.Hour)
	require.NoError(t, store.Save(ctx, state.NewGeneration("c1", "u", time.Now())))

	j := NewJanitor(store, nil, time.Minute, time.Minute)
	j.RunOnce(ctx)
	assert.Equal(t, 1, store.Len())
}

func TestJanitorReconcileError(t *testing.T) {
	reconciler := &fakeReconciler{err: errors.New("database is locked")}
	j := NewJanitor(nil, reconciler, time.Minute, time.Minute)
	assert.NotPanics(t, func() { j.RunOnce(context.Background()) })
	assert.Equal(t, int32(1), reconciler.calls.Load())
}

func TestJanitorStartStop(t *testing.T) {
	reconciler := &fakeReconciler{}
	j := NewJanitor(nil, reconciler, 5*time.Millisecond, time.Minute)

	j.Start()
	assert.Eventually(t, func() bool { return reconciler.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	j.Stop()
}

func TestJanitorStopWithoutStart(t *testing.T) {
	j := NewJanitor(nil, nil, time.Minute, time.Minute)
	assert.NotPanics(t, j.Stop)
}
