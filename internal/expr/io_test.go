package expr_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailcallhq/tailcall-go/internal/cachecontrol"
	"github.com/tailcallhq/tailcall-go/internal/dataloader"
	"github.com/tailcallhq/tailcall-go/internal/evalctx"
	"github.com/tailcallhq/tailcall-go/internal/expr"
	"github.com/tailcallhq/tailcall-go/internal/mustache"
	"github.com/tailcallhq/tailcall-go/internal/reqtemplate"
	"github.com/tailcallhq/tailcall-go/internal/runtimereg"
)

type recordingHTTP struct {
	calls int
	fn    func(req *runtimereg.Request) (*runtimereg.Response, error)
}

func (r *recordingHTTP) Execute(_ context.Context, req *runtimereg.Request) (*runtimereg.Response, error) {
	r.calls++
	return r.fn(req)
}

func requestContext(http runtimereg.HTTP) *evalctx.RequestContext {
	return &evalctx.RequestContext{
		Headers:      http2Header(),
		Runtime:      &runtimereg.Registry{HTTP: http},
		CacheControl: cachecontrol.New(),
	}
}

func http2Header() http.Header { return http.Header{} }

func TestIOHttpFallsBackToDirectCallWithoutLoader(t *testing.T) {
	rec := &recordingHTTP{fn: func(req *runtimereg.Request) (*runtimereg.Response, error) {
		return &runtimereg.Response{Headers: http.Header{}, Body: []byte(`{"id":1}`)}, nil
	}}
	rc := requestContext(rec)
	fc := &evalctx.FieldContext{Request: rc}

	io := expr.IOHttp{
		Template: &reqtemplate.HTTP{Method: "GET", URL: mustache.MustParse("http://upstream/users/1")},
		LoaderID: -1,
	}
	v, err := io.Eval(context.Background(), fc, expr.Sequential)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(1)}, v)
	assert.Equal(t, 1, rec.calls)
}

func TestIOHttpGroupByRoutesThroughLoaderAndCoalesces(t *testing.T) {
	rec := &recordingHTTP{fn: func(req *runtimereg.Request) (*runtimereg.Response, error) {
		return &runtimereg.Response{
			Headers: http.Header{},
			Body:    []byte(`[{"id":1,"userId":1},{"id":2,"userId":1}]`),
		}, nil
	}}
	rc := requestContext(rec)

	tpl := &reqtemplate.HTTP{
		Method:  "GET",
		URL:     mustache.MustParse("http://upstream/posts"),
		Query:   []reqtemplate.QueryParam{{Key: "userId", Value: mustache.MustParse("{{args.userId}}")}},
		GroupBy: []string{"userId"},
	}
	loader := dataloader.New(5*time.Millisecond, 100, dataloader.BatchByGroup(
		func(ctx context.Context, keys []string) ([]map[string]any, error) {
			req, err := tpl.RenderGroup(&evalctx.FieldContext{Request: rc}, rc.Headers, "userId", keys)
			require.NoError(t, err)
			resp, execErr := rc.Runtime.HTTP.Execute(ctx, req)
			require.NoError(t, execErr)
			var items []map[string]any
			require.NoError(t, json.Unmarshal(resp.Body, &items))
			return items, nil
		},
		func(item map[string]any) string { return fmt.Sprint(item["userId"]) },
		true,
	))
	rc.HTTPLoaders = []any{loader}

	io := expr.IOHttp{Template: tpl, LoaderID: 0}

	fc1 := &evalctx.FieldContext{Request: rc, Args: map[string]any{"userId": float64(1)}}
	fc2 := &evalctx.FieldContext{Request: rc, Args: map[string]any{"userId": float64(1)}}

	type result struct {
		v   any
		err error
	}
	ch1, ch2 := make(chan result, 1), make(chan result, 1)
	go func() { v, err := io.Eval(context.Background(), fc1, expr.Sequential); ch1 <- result{v, err} }()
	go func() { v, err := io.Eval(context.Background(), fc2, expr.Sequential); ch2 <- result{v, err} }()

	r1, r2 := <-ch1, <-ch2
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)
	assert.Equal(t, 1, rec.calls, "both calls should coalesce into a single upstream request")
	assert.IsType(t, []map[string]any{}, r1.v)
	assert.Len(t, r1.v, 2)
}

func TestIOGraphQLRoutesThroughLoader(t *testing.T) {
	rc := requestContext(&recordingHTTP{fn: func(*runtimereg.Request) (*runtimereg.Response, error) {
		t.Fatal("loader path should never call the upstream HTTP capability directly in this test")
		return nil, nil
	}})

	tpl := &reqtemplate.GraphQL{URL: "http://upstream/graphql", OperationType: "query", OperationName: "user"}
	var gotKeys []string
	loader := dataloader.New(5*time.Millisecond, 100, func(_ context.Context, keys []string) []dataloader.Result[any] {
		gotKeys = keys
		results := make([]dataloader.Result[any], len(keys))
		for i := range results {
			results[i] = dataloader.Result[any]{Value: map[string]any{"id": float64(1)}}
		}
		return results
	})
	rc.GQLLoaders = []any{loader}

	io := expr.IOGraphQL{Template: tpl, FieldName: "user", LoaderID: 0}
	fc := &evalctx.FieldContext{Request: rc, Selection: "{ id }"}
	v, err := io.Eval(context.Background(), fc, expr.Sequential)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(1)}, v)
	require.Len(t, gotKeys, 1)
	assert.Contains(t, gotKeys[0], "query")
}

func TestIOGrpcFallsBackToDirectCallWithoutLoader(t *testing.T) {
	rec := &recordingHTTP{fn: func(req *runtimereg.Request) (*runtimereg.Response, error) {
		return &runtimereg.Response{Body: []byte("raw-bytes")}, nil
	}}
	rc := &evalctx.RequestContext{
		Runtime:      &runtimereg.Registry{HTTP2Only: rec},
		CacheControl: cachecontrol.New(),
	}
	tpl := &reqtemplate.Grpc{URL: mustache.MustParse("http://upstream/pkg.Svc/Method"), Service: "pkg.Svc", Method: "Method"}
	io := expr.IOGrpc{Template: tpl, LoaderID: -1}
	fc := &evalctx.FieldContext{Request: rc}
	v, err := io.Eval(context.Background(), fc, expr.Sequential)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw-bytes"), v)
	assert.Equal(t, 1, rec.calls)
}
