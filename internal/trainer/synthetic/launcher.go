package synthetic

import (
	"context"

	"github.com/signalnine/motifsweep/internal/trainer"
)

// Launcher hands out in-process synthetic backends.
type Launcher struct {
	Options Options
}

func (l *Launcher) Launch(ctx context.Context) (trainer.Backend, error) {
	return New(l.Options), nil
}
