package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"legalmind/internal/state"
)

type staleReconciler interface {
	ReconcileStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically drops expired in-memory document states and fails
// document requests left in processing, e.g. by a restart mid-render.
type Janitor struct {
	sweeper    state.Sweeper
	documents  staleReconciler
	interval   time.Duration
	staleAfter time.Duration
	ticker     *time.Ticker
	done       chan bool
	now        func() time.Time
}

// NewJanitor builds a janitor. sweeper may be nil when the state store
// expires entries itself.
func NewJanitor(sweeper state.Sweeper, documents staleReconciler, interval, staleAfter time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &Janitor{
		sweeper:    sweeper,
		documents:  documents,
		interval:   interval,
		staleAfter: staleAfter,
		done:       make(chan bool),
		now:        time.Now,
	}
}

func (j *Janitor) Start() {
	j.ticker = time.NewTicker(j.interval)
	go func() {
		for {
			select {
			case <-j.done:
				return
			case <-j.ticker.C:
				j.RunOnce(context.Background())
			}
		}
	}()
	logrus.WithField("interval", j.interval.String()).Info("Janitor started")
}

func (j *Janitor) Stop() {
	if j.ticker == nil {
		return
	}
	j.ticker.Stop()
	j.done <- true
	logrus.Info("Janitor stopped")
}

// RunOnce performs one sweep and reconciliation pass.
func (j *Janitor) RunOnce(ctx context.Context) {
	now := j.now()
	if j.sweeper != nil {
		if n := j.sweeper.Sweep(now); n > 0 {
			logrus.WithField("count", n).Info("Expired document states removed")
		}
	}
	if j.documents == nil {
		return
	}
	n, err := j.documents.ReconcileStale(ctx, now.Add(-j.staleAfter))
	if err != nil {
		logrus.WithError(err).Error("Failed to reconcile stale document requests")
		return
	}
	if n > 0 {
		logrus.WithField("count", n).Warn("Stale processing document requests marked failed")
	}
}
