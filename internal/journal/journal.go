// Package journal persists scheduler runs and their step records.
package journal

import (
	"context"

	"github.com/me/coloop/pkg/model"
)

// Journal defines the persistence layer for runs and steps.
type Journal interface {
	// Runs
	BeginRun(ctx context.Context, runID, script string) error
	EndRun(ctx context.Context, runID string, state model.RunState, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.RunSummary, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.RunSummary, int, error)

	// Steps
	RecordStep(ctx context.Context, rec model.StepRecord) error
	ListSteps(ctx context.Context, runID string, opts model.ListOptions) ([]model.StepRecord, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
