package events

import "time"

// UpstreamCallStart is emitted before a plain HTTP upstream call (the @http
// and @graphql resolver paths; gRPC upstream calls emit GRPCClientStart
// instead).
type UpstreamCallStart struct {
	Method string
	URL    string
}

// UpstreamCallFinish is emitted after an upstream HTTP call completes.
type UpstreamCallFinish struct {
	Method   string
	URL      string
	Status   int
	Err      error
	Duration time.Duration
}
