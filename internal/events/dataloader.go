package events

import "time"

// DataLoaderBatchDispatched is emitted when a loader's window closes and its
// batch function starts running.
type DataLoaderBatchDispatched struct {
	KeyCount int
}

// DataLoaderBatchCompleted is emitted after a loader's batch function
// returns.
type DataLoaderBatchCompleted struct {
	KeyCount int
	Duration time.Duration
}
