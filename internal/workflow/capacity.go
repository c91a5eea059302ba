package workflow

// capacity is the bounded set of tasks holding an execution slot. A slot is
// keyed by task id so that releasing the same task twice is a no-op.
// Callers hold Scheduler.seqMu.
type capacity struct {
	limit int
	held  map[string]struct{}
}

func newCapacity(limit int) *capacity {
	if limit < 1 {
		limit = 1
	}
	return &capacity{limit: limit, held: make(map[string]struct{}, limit)}
}

func (c *capacity) available() bool {
	return len(c.held) < c.limit
}

func (c *capacity) acquire(taskID string) bool {
	if _, ok := c.held[taskID]; ok || !c.available() {
		return false
	}
	c.held[taskID] = struct{}{}
	return true
}

// release frees the slot held by taskID and reports whether one was held.
func (c *capacity) release(taskID string) bool {
	if _, ok := c.held[taskID]; !ok {
		return false
	}
	delete(c.held, taskID)
	return true
}

func (c *capacity) inUse() int {
	return len(c.held)
}
