package manipulator

// Metrics observes completed runs. Pass nil to disable.
type Metrics interface {
	// ObserveRun records one run of action. err is the error that aborted
	// it, nil for a normal termination.
	ObserveRun(action Action, candidates int, stats RunStats, err error)
}
