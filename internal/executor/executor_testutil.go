package executor

import (
	"testing"

	language "github.com/tailcallhq/tailcall-go/internal/language"
)

// mustParseQuery parses a GraphQL query document for the executor_*_test.go
// suite, which exercises Executor against hand-built schema.Schema values
// standing in for a compiled Blueprint's schema output.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}
