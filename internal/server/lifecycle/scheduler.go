package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/fileforge/fileforge/internal/logging"
)

// Task is a named, idempotent job run on a fixed interval. The business
// logic lives in Run, independent of the trigger mechanism, so it stays
// unit-testable without the scheduler.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives recurring tasks on ticking timers. It replaces cron-style
// triggers with an explicit, cancelable loop.
type Scheduler struct {
	logger logging.Logger
	tasks  []Task
	wg     sync.WaitGroup
}

// NewScheduler constructs an empty Scheduler.
func NewScheduler(logger logging.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(t Task) {
	s.tasks = append(s.tasks, t)
}

// Start launches one ticker loop per task and returns. Loops stop when the
// context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			ticker := time.NewTicker(t.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := t.Run(ctx); err != nil {
						s.logger.Warn(ctx, "scheduled task failed", "task", t.Name, "error", err)
					}
				}
			}
		}(t)
	}
}

// Wait blocks until all task loops have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
