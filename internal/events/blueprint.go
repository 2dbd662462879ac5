package events

import "time"

// BlueprintCompileStart is emitted when the compiler begins turning a loaded
// Config into a Blueprint.
type BlueprintCompileStart struct{}

// BlueprintCompileFinish is emitted after compilation completes, whether it
// succeeded or accumulated validation errors.
type BlueprintCompileFinish struct {
	Err      error
	Duration time.Duration
}
