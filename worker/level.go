package worker

import (
	"context"
	"fmt"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/task"
)

// ResolveLevel turns the integer levels given on a command line into a
// range. No levels means unbounded, one level l means [l, l+1) and two
// levels a, b mean [a, b).
func ResolveLevel(levels []int) (task.LevelRange, error) {
	switch len(levels) {
	case 0:
		return task.LevelRange{}, nil
	case 1:
		return task.Levels(float64(levels[0]), float64(levels[0]+1)), nil
	case 2:
		if levels[0] >= levels[1] {
			return task.LevelRange{}, fmt.Errorf("%w: empty range [%d, %d)", taskq.ErrInvalidLevel, levels[0], levels[1])
		}
		return task.Levels(float64(levels[0]), float64(levels[1])), nil
	default:
		return task.LevelRange{}, fmt.Errorf("%w: expected 1 or 2 levels, got %d", taskq.ErrInvalidLevel, len(levels))
	}
}

// CheckLevelGate returns taskq.ErrLevelGate if any task of the scope's job
// below the scope's start level is still pending. A scope without a start
// level always passes.
func CheckLevelGate(ctx context.Context, s task.Store, scope task.Scope) error {
	if scope.Levels.Start == nil {
		return nil
	}
	n, err := s.CountPendingTasksBelowLevel(ctx, scope.JobID, *scope.Levels.Start)
	if err != nil {
		return fmt.Errorf("count pending tasks below level: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %d pending below level %g, cannot run %s", taskq.ErrLevelGate, n, *scope.Levels.Start, scope.Levels)
	}
	return nil
}
