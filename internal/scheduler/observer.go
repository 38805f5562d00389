package scheduler

import "github.com/me/coloop/pkg/model"

// Observer receives a record for every non-empty step. Observers run on the
// scheduler goroutine and must not call back into the scheduler.
type Observer interface {
	ObserveStep(rec model.StepRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(rec model.StepRecord)

func (f ObserverFunc) ObserveStep(rec model.StepRecord) { f(rec) }
