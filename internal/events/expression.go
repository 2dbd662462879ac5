package events

import "time"

// ExpressionEvalStart is emitted when an IO expression node (@http, @graphql,
// @grpc) begins evaluating. Scoped to IO nodes only, not every expression in
// the tree, to keep event cardinality proportional to upstream calls rather
// than to field count.
type ExpressionEvalStart struct {
	Kind string // "@http", "@graphql", "@grpc"
}

// ExpressionEvalFinish is emitted once the IO node's evaluation completes,
// whether it resolved a value or returned an error.
type ExpressionEvalFinish struct {
	Kind     string
	Err      error
	Duration time.Duration
}
