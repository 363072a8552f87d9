package manipulator

// Reporter receives the timing and counters of a run. Selectors bracket the
// candidate query with StartTiming/EndTiming and call RecordQueryResult;
// executors bracket the transition loop, call RecordTransition once per
// processed object and finish with FlushSummary.
//
// A Reporter is used by one run at a time.
type Reporter interface {
	StartTiming()
	EndTiming()
	RecordQueryResult(count int)
	RecordTransition(bytes int64)
	FlushSummary()
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) StartTiming()           {}
func (NopReporter) EndTiming()             {}
func (NopReporter) RecordQueryResult(int)  {}
func (NopReporter) RecordTransition(int64) {}
func (NopReporter) FlushSummary()          {}
