package handler

import (
	"sync/atomic"

	"github.com/use-agent/scrollgrab/models"
	"golang.org/x/sync/semaphore"
)

// RunGate caps concurrent pipeline runs. Each run owns a full browser
// process, so the cap is small and a full gate answers immediately with
// server-busy instead of queueing callers behind long renders.
type RunGate struct {
	sem    *semaphore.Weighted
	active atomic.Int32
	max    int
}

// NewRunGate creates a gate with maxRuns slots (minimum 1).
func NewRunGate(maxRuns int) *RunGate {
	if maxRuns < 1 {
		maxRuns = 1
	}
	return &RunGate{
		sem: semaphore.NewWeighted(int64(maxRuns)),
		max: maxRuns,
	}
}

// TryAcquire claims a run slot without blocking. Callers that get true must
// call Release when the run finishes.
func (g *RunGate) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.active.Add(1)
	return true
}

// Release returns a slot claimed by TryAcquire.
func (g *RunGate) Release() {
	g.active.Add(-1)
	g.sem.Release(1)
}

// Stats returns a snapshot of slot occupancy.
func (g *RunGate) Stats() models.RunStats {
	return models.RunStats{
		MaxRuns:    g.max,
		ActiveRuns: int(g.active.Load()),
	}
}
