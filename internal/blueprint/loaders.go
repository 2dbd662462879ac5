package blueprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tailcallhq/tailcall-go/internal/dataloader"
	"github.com/tailcallhq/tailcall-go/internal/evalctx"
	"github.com/tailcallhq/tailcall-go/internal/reqtemplate"
	"github.com/tailcallhq/tailcall-go/internal/runtimereg"
)

// HTTPLoaderSpec is the compiled shape of one GET @http field that
// participates in request coalescing (§4.E): every such field is assigned a
// dense loader_id during compilation, whether or not it declares groupBy —
// a plain GET field still dedups identical concurrent calls, it just never
// combines distinct keys into one upstream request.
type HTTPLoaderSpec struct {
	Template     *reqtemplate.HTTP
	IsListField  bool
	BatchHeaders []string
}

// GraphQLLoaderSpec is the compiled shape of one @graphql(batch: true) field.
type GraphQLLoaderSpec struct {
	Template  *reqtemplate.GraphQL
	FieldName string
}

// GrpcLoaderSpec is the compiled shape of one @grpc(groupBy: [...]) field.
// Unlike HTTPLoaderSpec's group-by path, a single batched call combining N
// keys into one protobuf request would require synthesizing a repeated
// field from the descriptor, which internal/protoreg does not attempt (see
// DESIGN.md); GrpcLoaderSpec instead gets single-request-per-key dedup,
// still satisfying the coalescing guarantee for identical concurrent keys.
type GrpcLoaderSpec struct {
	Template *reqtemplate.Grpc
	Encode   func(FieldContextLike) ([]byte, error)
	Decode   func([]byte) (any, error)
}

// LoaderTable collects every loader spec assigned a dense id while
// compileDefinitions walks the config (§3 "loader_id is assigned during
// compilation and is a dense index into the per-process data-loader
// table").
type LoaderTable struct {
	HTTP    []HTTPLoaderSpec
	GraphQL []GraphQLLoaderSpec
	Grpc    []GrpcLoaderSpec
}

// loaderBuilder accumulates LoaderTable entries during compileDefinitions.
// valid.FromIter's traversal is a plain sequential for loop (internal/valid/
// valid.go), so appending here in compilation order is deterministic and
// reproduces the same ids on every compile of the same Config.
type loaderBuilder struct {
	table        LoaderTable
	batchHeaders []string
}

func (lb *loaderBuilder) addHTTP(tpl *reqtemplate.HTTP) int {
	lb.table.HTTP = append(lb.table.HTTP, HTTPLoaderSpec{Template: tpl, BatchHeaders: lb.batchHeaders})
	return len(lb.table.HTTP) - 1
}

func (lb *loaderBuilder) setHTTPListField(id int, isList bool) {
	if id < 0 || id >= len(lb.table.HTTP) {
		return
	}
	lb.table.HTTP[id].IsListField = isList
}

func (lb *loaderBuilder) addGraphQL(tpl *reqtemplate.GraphQL, fieldName string) int {
	lb.table.GraphQL = append(lb.table.GraphQL, GraphQLLoaderSpec{Template: tpl, FieldName: fieldName})
	return len(lb.table.GraphQL) - 1
}

func (lb *loaderBuilder) addGrpc(tpl *reqtemplate.Grpc, encode func(FieldContextLike) ([]byte, error), decode func([]byte) (any, error)) int {
	lb.table.Grpc = append(lb.table.Grpc, GrpcLoaderSpec{Template: tpl, Encode: encode, Decode: decode})
	return len(lb.table.Grpc) - 1
}

// BuildLoaders instantiates one dataloader.Loader per entry in bp.Loaders
// and attaches them to rc so expr.IOHttp/IOGraphQL/IOGrpc nodes carrying a
// loader_id can find their loader via evalctx.RequestContext.HTTPLoader/
// GQLLoader/GRPCLoader (§4.H). Loaders are built fresh per request: the
// Loader value itself is cheap (an empty pending map), and its "per-process"
// character per §3's lifecycle section comes from sharing the same
// compiled Template/spec across every request, not from retaining
// in-flight state across requests.
func (bp *Blueprint) BuildLoaders(rc *evalctx.RequestContext) {
	delay := time.Duration(bp.Upstream.Batch.DelayMs) * time.Millisecond
	maxBatch := bp.Upstream.Batch.MaxSize

	rc.HTTPLoaders = make([]any, len(bp.Loaders.HTTP))
	for i, spec := range bp.Loaders.HTTP {
		spec := spec
		if len(spec.Template.GroupBy) > 0 {
			groupField := spec.Template.GroupBy[0]
			rc.HTTPLoaders[i] = dataloader.New(delay, maxBatch, dataloader.BatchByGroup(
				bp.httpGroupCall(rc, spec),
				func(item map[string]any) string { return fmt.Sprint(item[groupField]) },
				spec.IsListField,
			))
		} else {
			rc.HTTPLoaders[i] = dataloader.New(delay, maxBatch, bp.httpSingleBatchFunc(rc, spec))
		}
	}

	rc.GQLLoaders = make([]any, len(bp.Loaders.GraphQL))
	for i, spec := range bp.Loaders.GraphQL {
		rc.GQLLoaders[i] = dataloader.New(delay, maxBatch, bp.graphqlBatchFunc(rc, spec))
	}

	rc.GRPCLoaders = make([]any, len(bp.Loaders.Grpc))
	for i, spec := range bp.Loaders.Grpc {
		rc.GRPCLoaders[i] = dataloader.New(delay, maxBatch, bp.grpcSingleBatchFunc(rc, spec))
	}
}

// httpGroupCall renders one batched request for the union of keys arriving
// in a window, using a representative (valueless) FieldContext — every
// template part other than the group-by query parameter must be identical
// across callers sharing a loader_id by construction, so nothing the
// representative context can't see (headers, env, vars) ever needs a real
// parent value.
func (bp *Blueprint) httpGroupCall(rc *evalctx.RequestContext, spec HTTPLoaderSpec) dataloader.GroupByCall[string] {
	return func(ctx context.Context, keys []string) ([]map[string]any, error) {
		fc := &evalctx.FieldContext{Request: rc}
		req, err := spec.Template.RenderGroup(fc, rc.Headers, spec.Template.GroupBy[0], keys)
		if err != nil {
			return nil, err
		}
		if rc.Runtime == nil || rc.Runtime.HTTP == nil {
			return nil, errNoHTTPRuntime
		}
		resp, err := rc.Runtime.HTTP.Execute(ctx, req)
		if err != nil {
			return nil, err
		}
		rc.SetCacheControl(resp.Headers.Get("cache-control"))
		var items []map[string]any
		if len(resp.Body) > 0 {
			if err := json.Unmarshal(resp.Body, &items); err != nil {
				return nil, err
			}
		}
		return items, nil
	}
}

// httpSingleBatchFunc dedups identical concurrent calls to a non-groupBy GET
// field: every unique key in the window still issues its own upstream call
// (there is nothing to combine them into), but calls that arrive for the
// same cache key within the window attach to the same shared future.
func (bp *Blueprint) httpSingleBatchFunc(rc *evalctx.RequestContext, spec HTTPLoaderSpec) dataloader.BatchFunc[reqtemplate.RequestKey, any] {
	return func(ctx context.Context, keys []reqtemplate.RequestKey) []dataloader.Result[any] {
		results := make([]dataloader.Result[any], len(keys))
		var wg sync.WaitGroup
		wg.Add(len(keys))
		for i, k := range keys {
			go func(i int, k reqtemplate.RequestKey) {
				defer wg.Done()
				if rc.Runtime == nil || rc.Runtime.HTTP == nil {
					results[i] = dataloader.Result[any]{Err: errNoHTTPRuntime}
					return
				}
				req := k.ToRequest()
				resp, err := rc.Runtime.HTTP.Execute(ctx, req)
				if err != nil {
					results[i] = dataloader.Result[any]{Err: err}
					return
				}
				rc.SetCacheControl(resp.Headers.Get("cache-control"))
				var decoded any
				if len(resp.Body) > 0 {
					if jsonErr := json.Unmarshal(resp.Body, &decoded); jsonErr != nil {
						results[i] = dataloader.Result[any]{Err: jsonErr}
						return
					}
				}
				results[i] = dataloader.Result[any]{Value: decoded}
			}(i, k)
		}
		wg.Wait()
		return results
	}
}

// graphqlBatchFunc concatenates the window's rendered operation bodies into
// one JSON array request and demultiplexes the array response back to
// callers by position (§4.D "IO::GraphQL path", scenario S4).
func (bp *Blueprint) graphqlBatchFunc(rc *evalctx.RequestContext, spec GraphQLLoaderSpec) dataloader.BatchFunc[string, any] {
	return func(ctx context.Context, keys []string) []dataloader.Result[any] {
		results := make([]dataloader.Result[any], len(keys))
		if rc.Runtime == nil || rc.Runtime.HTTP == nil {
			for i := range results {
				results[i] = dataloader.Result[any]{Err: errNoHTTPRuntime}
			}
			return results
		}

		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(k)
		}
		buf.WriteByte(']')

		fc := &evalctx.FieldContext{Request: rc}
		headerReq, err := spec.Template.Render(fc, "")
		if err != nil {
			for i := range results {
				results[i] = dataloader.Result[any]{Err: err}
			}
			return results
		}
		req := &runtimereg.Request{Method: headerReq.Method, URL: headerReq.URL, Headers: headerReq.Headers, Body: buf.Bytes()}
		resp, err := rc.Runtime.HTTP.Execute(ctx, req)
		if err != nil {
			for i := range results {
				results[i] = dataloader.Result[any]{Err: err}
			}
			return results
		}
		rc.SetCacheControl(resp.Headers.Get("cache-control"))

		var envelopes []struct {
			Data   map[string]any `json:"data"`
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		if err := json.Unmarshal(resp.Body, &envelopes); err != nil {
			for i := range results {
				results[i] = dataloader.Result[any]{Err: err}
			}
			return results
		}
		for i := range results {
			if i >= len(envelopes) {
				results[i] = dataloader.Result[any]{Err: errShortGraphQLBatch}
				continue
			}
			env := envelopes[i]
			for _, e := range env.Errors {
				rc.AddError(evalctx.GraphQLError{Message: e.Message})
			}
			if env.Data == nil {
				continue
			}
			results[i] = dataloader.Result[any]{Value: env.Data[spec.FieldName]}
		}
		return results
	}
}

// grpcSingleBatchFunc dedups identical concurrent @grpc(groupBy) calls; see
// GrpcLoaderSpec's doc comment for why this isn't a true combined batch.
func (bp *Blueprint) grpcSingleBatchFunc(rc *evalctx.RequestContext, spec GrpcLoaderSpec) dataloader.BatchFunc[string, any] {
	return func(ctx context.Context, keys []string) []dataloader.Result[any] {
		results := make([]dataloader.Result[any], len(keys))
		var wg sync.WaitGroup
		wg.Add(len(keys))
		for i, k := range keys {
			go func(i int, argsJSON string) {
				defer wg.Done()
				if rc.Runtime == nil || rc.Runtime.HTTP2Only == nil {
					results[i] = dataloader.Result[any]{Err: errNoGRPCRuntime}
					return
				}
				var args map[string]any
				_ = json.Unmarshal([]byte(argsJSON), &args)
				fc := &evalctx.FieldContext{Request: rc, Args: args}
				req, err := spec.Template.Render(fc)
				if err != nil {
					results[i] = dataloader.Result[any]{Err: err}
					return
				}
				if spec.Encode != nil {
					body, encErr := spec.Encode(FieldContextLike(fc))
					if encErr != nil {
						results[i] = dataloader.Result[any]{Err: encErr}
						return
					}
					req.Body = body
				}
				resp, err := rc.Runtime.HTTP2Only.Execute(ctx, req)
				if err != nil {
					results[i] = dataloader.Result[any]{Err: err}
					return
				}
				if spec.Decode != nil {
					v, decErr := spec.Decode(resp.Body)
					if decErr != nil {
						results[i] = dataloader.Result[any]{Err: decErr}
						return
					}
					results[i] = dataloader.Result[any]{Value: v}
					return
				}
				results[i] = dataloader.Result[any]{Value: resp.Body}
			}(i, k)
		}
		wg.Wait()
		return results
	}
}

var (
	errNoHTTPRuntime     = fmt.Errorf("blueprint: no HTTP runtime capability configured")
	errNoGRPCRuntime     = fmt.Errorf("blueprint: no HTTP/2 runtime capability configured")
	errShortGraphQLBatch = fmt.Errorf("blueprint: graphql batch response shorter than request")
)
