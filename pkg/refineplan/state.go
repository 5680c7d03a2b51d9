package refineplan

// WorkerState is a refinement worker's Active/Parked status. The
// controller only publishes numbers; this is the little state machine
// the refinement scheduler drives off them.
type WorkerState uint8

const (
	Active WorkerState = iota
	Parked
)

func (s WorkerState) String() string {
	if s == Parked {
		return "parked"
	}

	return "active"
}

// ShouldBeActive reports whether a worker at the given zero-based pool
// index ought to be running, per the controller's last published
// ThreadsNeeded: a worker is Active while its index is below
// threadsNeeded.
func ShouldBeActive(index int, threadsNeeded uint) bool {
	return uint(index) < threadsNeeded
}

// ShouldPark reports whether an Active worker has satisfied both
// parking conditions: the queue set's
// published pending-card count has fallen to or below the controller's
// deactivation threshold, and the worker has no dirty-card work left
// of its own (workDone).
func ShouldPark(pendingCards, deactivationThreshold int64, workDone bool) bool {
	return workDone && pendingCards <= deactivationThreshold
}
