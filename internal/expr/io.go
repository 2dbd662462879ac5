package expr

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tailcallhq/tailcall-go/internal/dataloader"
	"github.com/tailcallhq/tailcall-go/internal/evalctx"
	"github.com/tailcallhq/tailcall-go/internal/evalerr"
	"github.com/tailcallhq/tailcall-go/internal/eventbus"
	"github.com/tailcallhq/tailcall-go/internal/events"
	"github.com/tailcallhq/tailcall-go/internal/jsonschema"
	"github.com/tailcallhq/tailcall-go/internal/reqtemplate"
	"github.com/tailcallhq/tailcall-go/internal/runtimereg"
)

// IOHttp evaluates an @http resolver. A non-negative LoaderID routes the
// call through the dataloader registered at that index — keyed by the
// group_by value for a groupBy field, by the rendered request's identity
// otherwise — so concurrent calls sharing a window coalesce into fewer
// upstream requests; a field with no registered loader (or LoaderID < 0)
// calls the runtime's HTTP capability directly.
type IOHttp struct {
	Template       *reqtemplate.HTTP
	LoaderID       int
	BatchHeaders   []string
	OutputSchema   *jsonschema.Schema // nil disables response validation
	ValidateOutput bool
}

func (io IOHttp) Eval(ctx context.Context, fc *evalctx.FieldContext, _ Policy) (result any, err error) {
	start := time.Now()
	eventbus.Publish(ctx, events.ExpressionEvalStart{Kind: "@http"})
	defer func() {
		eventbus.Publish(ctx, events.ExpressionEvalFinish{Kind: "@http", Err: err, Duration: time.Since(start)})
	}()

	req, err := io.Template.Render(fc, fc.Request.Headers)
	if err != nil {
		return nil, evalerr.ExprEval("@http", err.Error())
	}

	decoded, handled, err := io.loadViaLoader(ctx, fc, req)
	if err != nil {
		return nil, evalerr.IO("@http", err)
	}
	if !handled {
		body, err := callHTTP(ctx, fc, req)
		if err != nil {
			return nil, evalerr.IO("@http", err)
		}
		if len(body) > 0 {
			if jsonErr := json.Unmarshal(body, &decoded); jsonErr != nil {
				return nil, evalerr.Deserialize("@http", jsonErr)
			}
		}
	}

	if io.ValidateOutput && io.OutputSchema != nil {
		if v := jsonschema.Validate(io.OutputSchema, decoded); !v.IsSucceed() {
			return nil, evalerr.APIValidation("@http", v.Causes()[0].Message)
		}
	}
	return decoded, nil
}

// loadViaLoader routes req through the data loader registered under
// io.LoaderID, if one is (§4.E). handled is false when no loader is
// registered or the field carries no loader_id, signalling the caller to
// fall back to a direct upstream call.
func (io IOHttp) loadViaLoader(ctx context.Context, fc *evalctx.FieldContext, req *runtimereg.Request) (decoded any, handled bool, err error) {
	if io.LoaderID < 0 {
		return nil, false, nil
	}
	if len(io.Template.GroupBy) > 0 {
		loader, ok := fc.Request.HTTPLoader(io.LoaderID).(*dataloader.Loader[string, any])
		if !ok || loader == nil {
			return nil, false, nil
		}
		key, ok := io.Template.GroupKeyValue(fc, io.Template.GroupBy[0])
		if !ok {
			return nil, false, nil
		}
		v, err := loader.Load(ctx, key)
		if err != nil {
			return nil, true, err
		}
		return v, true, nil
	}

	loader, ok := fc.Request.HTTPLoader(io.LoaderID).(*dataloader.Loader[reqtemplate.RequestKey, any])
	if !ok || loader == nil {
		return nil, false, nil
	}
	key := reqtemplate.NewRequestKey(req, io.BatchHeaders)
	v, err := loader.Load(ctx, key)
	if err != nil {
		return nil, true, err
	}
	return v, true, nil
}

func callHTTP(ctx context.Context, fc *evalctx.FieldContext, req *runtimereg.Request) ([]byte, error) {
	if fc.Request.Runtime == nil || fc.Request.Runtime.HTTP == nil {
		return nil, errNoRuntime
	}
	resp, err := fc.Request.Runtime.HTTP.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	fc.Request.SetCacheControl(resp.Headers.Get("cache-control"))
	return resp.Body, nil
}

// IOGraphQL evaluates an @graphql resolver, issuing a query/mutation against
// an upstream GraphQL service and projecting `data[field_name]` out of the
// response.
type IOGraphQL struct {
	Template  *reqtemplate.GraphQL
	FieldName string
	LoaderID  int
}

func (io IOGraphQL) Eval(ctx context.Context, fc *evalctx.FieldContext, _ Policy) (result any, err error) {
	start := time.Now()
	eventbus.Publish(ctx, events.ExpressionEvalStart{Kind: "@graphql"})
	defer func() {
		eventbus.Publish(ctx, events.ExpressionEvalFinish{Kind: "@graphql", Err: err, Duration: time.Since(start)})
	}()

	req, err := io.Template.Render(fc, fc.Selection)
	if err != nil {
		return nil, evalerr.ExprEval("@graphql", err.Error())
	}

	if io.LoaderID >= 0 {
		if loader, ok := fc.Request.GQLLoader(io.LoaderID).(*dataloader.Loader[string, any]); ok && loader != nil {
			// The loader's batch func concatenates every window member's
			// query body into one JSON array request, so the key is the
			// rendered operation body itself, not a digest of it.
			opBody := extractGraphQLQuery(req.Body)
			v, err := loader.Load(ctx, opBody)
			if err != nil {
				return nil, evalerr.IO("@graphql", err)
			}
			return v, nil
		}
	}

	if fc.Request.Runtime == nil || fc.Request.Runtime.HTTP == nil {
		return nil, evalerr.IO("@graphql", errNoRuntime)
	}
	resp, err := fc.Request.Runtime.HTTP.Execute(ctx, req)
	if err != nil {
		return nil, evalerr.IO("@graphql", err)
	}
	fc.Request.SetCacheControl(resp.Headers.Get("cache-control"))

	var envelope struct {
		Data   map[string]any `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, evalerr.Deserialize("@graphql", err)
	}
	for _, e := range envelope.Errors {
		fc.Request.AddError(evalctx.GraphQLError{Message: e.Message, Path: fc.Path})
	}
	if envelope.Data == nil {
		return nil, nil
	}
	return envelope.Data[io.FieldName], nil
}

// extractGraphQLQuery pulls the "query" field back out of a rendered
// GraphQL request body (`{"query":"..."}`) so the batch loader can
// concatenate N operations into one `{"query":...}` array element each.
func extractGraphQLQuery(body []byte) string {
	var envelope struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return string(body)
	}
	encoded, _ := json.Marshal(map[string]string{"query": envelope.Query})
	return string(encoded)
}

// IOGrpc evaluates a @grpc resolver. Message encode/decode against the
// protobuf descriptor is delegated to internal/protoreg/internal/grpctp at
// the Blueprint-wiring layer; this node only renders the transport request
// and hands the already-encoded bytes to the runtime's http2-only client.
type IOGrpc struct {
	Template *reqtemplate.Grpc
	Encode   func(fc *evalctx.FieldContext) ([]byte, error)
	Decode   func(body []byte) (any, error)
	LoaderID int
}

func (io IOGrpc) Eval(ctx context.Context, fc *evalctx.FieldContext, _ Policy) (result any, err error) {
	start := time.Now()
	eventbus.Publish(ctx, events.ExpressionEvalStart{Kind: "@grpc"})
	defer func() {
		eventbus.Publish(ctx, events.ExpressionEvalFinish{Kind: "@grpc", Err: err, Duration: time.Since(start)})
	}()

	if io.LoaderID >= 0 {
		if loader, ok := fc.Request.GRPCLoader(io.LoaderID).(*dataloader.Loader[string, any]); ok && loader != nil {
			argsJSON, err := json.Marshal(fc.Args)
			if err != nil {
				return nil, evalerr.ExprEval("@grpc", err.Error())
			}
			v, err := loader.Load(ctx, string(argsJSON))
			if err != nil {
				return nil, evalerr.IO("@grpc", err)
			}
			return v, nil
		}
	}

	req, err := io.Template.Render(fc)
	if err != nil {
		return nil, evalerr.ExprEval("@grpc", err.Error())
	}
	if io.Encode != nil {
		body, encErr := io.Encode(fc)
		if encErr != nil {
			return nil, evalerr.ExprEval("@grpc", encErr.Error())
		}
		req.Body = body
	}
	if fc.Request.Runtime == nil || fc.Request.Runtime.HTTP2Only == nil {
		return nil, evalerr.IO("@grpc", errNoRuntime)
	}
	resp, err := fc.Request.Runtime.HTTP2Only.Execute(ctx, req)
	if err != nil {
		return nil, evalerr.IO("@grpc", err)
	}
	if io.Decode != nil {
		v, decErr := io.Decode(resp.Body)
		if decErr != nil {
			return nil, evalerr.Deserialize("@grpc", decErr)
		}
		return v, nil
	}
	return resp.Body, nil
}

// IOScript evaluates Input, then hands (input, source) to the runtime's
// script capability.
type IOScript struct {
	Input   Expression
	Source  string
	Timeout time.Duration
}

func (io IOScript) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	input, err := io.Input.Eval(ctx, fc, policy)
	if err != nil {
		return nil, err
	}
	if fc.Request.Runtime == nil || fc.Request.Runtime.Script == nil {
		return nil, evalerr.JS("@script", errNoScriptRuntime)
	}
	result, err := fc.Request.Runtime.Script.Execute(ctx, io.Source, input, io.Timeout)
	if err != nil {
		return nil, evalerr.JS("@script", err)
	}
	return result, nil
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const (
	errNoRuntime       = sentinelError("expr: no runtime HTTP capability configured")
	errNoScriptRuntime = sentinelError("expr: no runtime script capability configured")
)
