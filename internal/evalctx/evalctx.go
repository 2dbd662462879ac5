// Package evalctx implements the per-field evaluation context (§4.H): the
// bridge between a running GraphQL field resolution and the expression
// evaluator, request-scoped state (headers, env, data loaders, cache-control
// accumulator, error collector) and the resolver-scoped state (parent
// value, field arguments, selection set, response path).
package evalctx

import (
	"net/http"
	"sync"

	"github.com/tailcallhq/tailcall-go/internal/cachecontrol"
	"github.com/tailcallhq/tailcall-go/internal/mustache"
	"github.com/tailcallhq/tailcall-go/internal/runtimereg"
)

// GraphQLError mirrors the executor's error shape without importing it,
// keeping evalctx free of a dependency on the GraphQL engine wiring.
type GraphQLError struct {
	Message string
	Path    []any
}

// RequestContext holds everything shared by every field resolved within one
// incoming GraphQL operation.
type RequestContext struct {
	Headers      http.Header
	Env          runtimereg.Env
	Runtime      *runtimereg.Registry
	CacheControl *cachecontrol.Policy
	Vars         map[string]string

	// Loader tables are populated per request by blueprint.BuildLoaders;
	// the loader_id assigned during Blueprint compilation is a dense index
	// into these slices.
	HTTPLoaders  []any
	GQLLoaders   []any
	GRPCLoaders  []any

	mu     sync.Mutex
	errors []GraphQLError
}

// AddError appends err to the request's GraphQL error list.
func (rc *RequestContext) AddError(err GraphQLError) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.errors = append(rc.errors, err)
}

// Errors returns every error collected so far.
func (rc *RequestContext) Errors() []GraphQLError {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]GraphQLError, len(rc.errors))
	copy(out, rc.errors)
	return out
}

// SetCacheControl folds an upstream response's Cache-Control header into
// the request's accumulator (§4.I).
func (rc *RequestContext) SetCacheControl(header string) {
	if rc.CacheControl != nil {
		rc.CacheControl.Observe(header)
	}
}

// HTTPLoader returns the loader registered at id, or nil if out of range.
func (rc *RequestContext) HTTPLoader(id int) any { return lookup(rc.HTTPLoaders, id) }

// GQLLoader returns the loader registered at id, or nil if out of range.
func (rc *RequestContext) GQLLoader(id int) any { return lookup(rc.GQLLoaders, id) }

// GRPCLoader returns the loader registered at id, or nil if out of range.
func (rc *RequestContext) GRPCLoader(id int) any { return lookup(rc.GRPCLoaders, id) }

func lookup(loaders []any, id int) any {
	if id < 0 || id >= len(loaders) {
		return nil
	}
	return loaders[id]
}

// FieldContext holds the resolver-scoped state for a single field
// resolution: the parent value, argument values, and response path.
type FieldContext struct {
	Request *RequestContext

	Value     any
	Args      map[string]any
	Path      []any
	Selection string // the current field's rendered GraphQL selection set, for IO::GraphQL
}

// ResolvePath implements mustache.PathResolver, routing the distinguished
// path prefixes `value`, `args`, `headers`, `vars`, `env` to their source.
func (fc *FieldContext) ResolvePath(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	switch path[0] {
	case "value":
		return walk(fc.Value, path[1:])
	case "args":
		return walk(fc.Args, path[1:])
	case "headers":
		if len(path) < 2 {
			return nil, false
		}
		v := fc.Request.Headers.Get(path[1])
		if v == "" {
			return nil, false
		}
		return v, true
	case "vars":
		if len(path) < 2 {
			return nil, false
		}
		v, ok := fc.Request.Vars[path[1]]
		return v, ok
	case "env":
		if len(path) < 2 || fc.Request.Env == nil {
			return nil, false
		}
		return fc.Request.Env.Get(path[1])
	default:
		return nil, false
	}
}

var _ mustache.PathResolver = (*FieldContext)(nil)

func walk(v any, path []string) (any, bool) {
	cur := v
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	if cur == nil && len(path) == 0 && v == nil {
		return nil, false
	}
	return cur, true
}

// PathValue follows path against the field context's combined sources,
// without stringifying — the raw value, as Expression::Context(Path) needs.
func (fc *FieldContext) PathValue(path []string) (any, bool) {
	return fc.ResolvePath(path)
}

// PathString renders path to a string via mustache.Stringify.
func (fc *FieldContext) PathString(path []string) (string, bool) {
	v, ok := fc.ResolvePath(path)
	if !ok {
		return "", false
	}
	return mustache.Stringify(v), true
}

// PathGraphQL renders path as an inline GraphQL value.
func (fc *FieldContext) PathGraphQL(path []string) (string, bool) {
	v, ok := fc.ResolvePath(path)
	if !ok {
		return "", false
	}
	return mustache.EncodeGraphQLValue(v), true
}
