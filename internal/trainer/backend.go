package trainer

import (
	"context"

	"github.com/signalnine/motifsweep/internal/export"
)

// Backend is one trainer worker. Calls are made by a single goroutine.
type Backend interface {
	// Reset drops any model and framework state left by the previous trial.
	Reset(ctx context.Context) error
	Build(ctx context.Context, p BuildParams) error
	Compile(ctx context.Context, p CompileParams) error
	FitEpoch(ctx context.Context, p EpochParams) (Logs, error)
	SaveWeights(ctx context.Context, path string) error
	Evaluate(ctx context.Context, batchSize int) (Logs, error)
	Predict(ctx context.Context, batchSize int) (*Predictions, error)
	Filters(ctx context.Context, p FilterParams) ([]export.Filter, error)
	Close(ctx context.Context) error
}

// Launcher starts trainer workers.
type Launcher interface {
	Launch(ctx context.Context) (Backend, error)
}
