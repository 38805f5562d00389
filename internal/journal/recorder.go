package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/me/coloop/pkg/model"
)

// Recorder is a scheduler observer that writes step records to a Journal on
// a background goroutine, so a slow disk never stalls a step.
type Recorder struct {
	journal Journal
	logger  *slog.Logger
	ch      chan model.StepRecord
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	failed int
}

// NewRecorder starts a recorder with room for buffer pending records.
func NewRecorder(j Journal, buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		journal: j,
		logger:  logger.With("component", "recorder"),
		ch:      make(chan model.StepRecord, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// ObserveStep queues rec for writing. It blocks only when the buffer is full.
func (r *Recorder) ObserveStep(rec model.StepRecord) {
	r.ch <- rec
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.ch {
		if err := r.journal.RecordStep(context.Background(), rec); err != nil {
			r.mu.Lock()
			r.failed++
			r.mu.Unlock()
			r.logger.Error("record step", "run_id", rec.RunID, "seq", rec.Seq, "error", err)
		}
	}
}

// Close flushes pending records and stops the writer. No ObserveStep call
// may happen after Close.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.ch) })
	<-r.done
}

// Failed returns how many records could not be written.
func (r *Recorder) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}
