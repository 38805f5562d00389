package tasklib

import (
	"context"
	"sync/atomic"
)

// OffloadStats is a snapshot of offload backpressure.
type OffloadStats struct {
	// Limit is the configured concurrency; 0 means unlimited.
	Limit     int    `json:"limit"`
	Running   int64  `json:"running"`
	Waiting   int64  `json:"waiting"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Abandoned uint64 `json:"abandoned"`
}

// gate admits offload jobs and counts them as they queue, run and finish.
// slots is nil when concurrency is unlimited.
type gate struct {
	slots chan struct{}

	running   atomic.Int64
	waiting   atomic.Int64
	completed atomic.Uint64
	failed    atomic.Uint64
	abandoned atomic.Uint64
}

func newGate(limit int) *gate {
	g := &gate{}
	if limit > 0 {
		g.slots = make(chan struct{}, limit)
	}
	return g
}

// enter takes a slot for one job. A job that finds every slot busy counts as
// waiting until it gets one. enter returns false if ctx ends first; the job
// is then counted as abandoned and must not call leave.
func (g *gate) enter(ctx context.Context) bool {
	if g.slots != nil {
		select {
		case g.slots <- struct{}{}:
		default:
			g.waiting.Add(1)
			select {
			case g.slots <- struct{}{}:
				g.waiting.Add(-1)
			case <-ctx.Done():
				g.waiting.Add(-1)
				g.abandoned.Add(1)
				return false
			}
		}
	}
	g.running.Add(1)
	return true
}

// leave returns the slot taken by enter and records how the job ended.
func (g *gate) leave(err error) {
	g.running.Add(-1)
	if err != nil {
		g.failed.Add(1)
	} else {
		g.completed.Add(1)
	}
	if g.slots != nil {
		<-g.slots
	}
}

func (g *gate) stats() OffloadStats {
	return OffloadStats{
		Limit:     cap(g.slots),
		Running:   g.running.Load(),
		Waiting:   g.waiting.Load(),
		Completed: g.completed.Load(),
		Failed:    g.failed.Load(),
		Abandoned: g.abandoned.Load(),
	}
}
