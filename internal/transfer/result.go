package transfer

// ResultBuilder assembles the terminal Result of a run.
type ResultBuilder struct {
	RunID     string
	Direction Direction
}

// Fatal builds the result of a run that aborted during setup.
func (b ResultBuilder) Fatal(err error) *Result {
	return &Result{
		RunID:       b.RunID,
		Direction:   b.Direction,
		Success:     false,
		Error:       err.Error(),
		FailedTasks: []FailedTask{},
		TaskQueue:   []Item{},
	}
}

// Build snapshots a finished or cancelled run. Success requires no failed
// task and no cancellation.
func (b ResultBuilder) Build(stats Stats, failed []FailedTask, queue []Item, cancelled bool) *Result {
	failedCopy := make([]FailedTask, len(failed))
	copy(failedCopy, failed)
	queueCopy := make([]Item, len(queue))
	copy(queueCopy, queue)

	return &Result{
		RunID:       b.RunID,
		Direction:   b.Direction,
		Success:     len(failed) == 0 && !cancelled,
		Cancelled:   cancelled,
		Stats:       stats,
		FailedTasks: failedCopy,
		TaskQueue:   queueCopy,
	}
}
