package server

import (
	"context"
	"net/http"
	"time"

	"github.com/tailcallhq/tailcall-go/internal/blueprint"
	"github.com/tailcallhq/tailcall-go/internal/cachecontrol"
	"github.com/tailcallhq/tailcall-go/internal/evalctx"
	"github.com/tailcallhq/tailcall-go/internal/executor"
	"github.com/tailcallhq/tailcall-go/internal/introspection"
	"github.com/tailcallhq/tailcall-go/internal/resolverrt"
	"github.com/tailcallhq/tailcall-go/internal/runtimereg"
	"github.com/tailcallhq/tailcall-go/internal/schema"
)

// NewGateway builds a Handler over a compiled Blueprint. Unlike New, which
// binds one fixed executor.Runtime for the Handler's lifetime, NewGateway
// gives every incoming operation its own evalctx.RequestContext (headers,
// vars, a fresh cache-control accumulator) and resolverrt.Runtime, since a
// RequestContext's error collector and cache-control policy are only valid
// for the single operation that populates them.
//
// When bp.Server.EnableIntrospection is set, the served schema is the
// introspection.Wrap-extended one and every per-request Runtime is wrapped
// to answer __schema/__type, computed once here rather than per request
// since both the extension and the wrapper are stateless over the base
// Blueprint.
func NewGateway(bp *blueprint.Blueprint, sch *schema.Schema, registry *runtimereg.Registry, opts ...Option) (*Handler, error) {
	op := Options{Timeout: 10 * time.Second, GraphiQL: true}
	for _, f := range opts {
		f(&op)
	}

	buildBase := func(headers http.Header) executor.Runtime {
		rc := &evalctx.RequestContext{
			Headers:      headers,
			Env:          runtimereg.NewOSEnv(),
			Runtime:      registry,
			CacheControl: cachecontrol.New(),
			Vars:         bp.Server.Vars,
		}
		bp.BuildLoaders(rc)
		return resolverrt.New(bp, rc)
	}

	servedSchema := sch
	runtimeFor := func(_ context.Context, headers http.Header) executor.Runtime {
		return buildBase(headers)
	}
	if bp.Server.EnableIntrospection {
		wrapper := introspection.Wrap(buildBase(http.Header{}), sch)
		servedSchema = wrapper.Schema
		runtimeFor = func(_ context.Context, headers http.Header) executor.Runtime {
			return introspection.Wrap(buildBase(headers), sch).Runtime
		}
	}

	h := &Handler{schema: servedSchema, opt: op}
	h.runtimeFor = runtimeFor
	return h, nil
}
