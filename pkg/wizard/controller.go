package wizard

import (
	"sync"

	"github.com/finvisor/finvisor/pkg/apperr"
)

var (
	ErrStepIncomplete = apperr.New(apperr.Conflict, "Current step has not finished playing", nil)
	ErrOutOfOrder     = apperr.New(apperr.Conflict, "Only the current step can be completed", nil)
)

// Controller tracks one walkthrough. A step counts as done only once its
// script has fully played, and Next refuses to move past an unfinished step,
// so the dashboard is reachable only after every earlier step completed.
type Controller struct {
	mu      sync.Mutex
	current int
	done    [NumSteps]bool
}

func NewController() *Controller {
	return &Controller{}
}

func (c *Controller) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Done reports whether step finished playing.
func (c *Controller) Done(step int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return step >= 0 && step < NumSteps && c.done[step]
}

// Complete marks the current step as fully played.
func (c *Controller) Complete(step int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if step != c.current {
		return ErrOutOfOrder
	}
	c.done[step] = true
	return nil
}

// Next advances to the following step and returns it. The last step stays
// put.
func (c *Controller) Next() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.done[c.current] {
		return c.current, ErrStepIncomplete
	}
	c.current = min(c.current+1, NumSteps-1)
	return c.current, nil
}

// Finished reports whether the final step has played.
func (c *Controller) Finished() bool {
	return c.Done(NumSteps - 1)
}

// Progress is a snapshot of the done flags.
func (c *Controller) Progress() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]bool, NumSteps)
	copy(out, c.done[:])
	return out
}
