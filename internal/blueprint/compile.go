package blueprint

import (
	"context"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/tailcallhq/tailcall-go/internal/config"
	"github.com/tailcallhq/tailcall-go/internal/eventbus"
	"github.com/tailcallhq/tailcall-go/internal/events"
	"github.com/tailcallhq/tailcall-go/internal/expr"
	"github.com/tailcallhq/tailcall-go/internal/schema"
	"github.com/tailcallhq/tailcall-go/internal/valid"
)

// ProtoResolver locates a gRPC service+method against a loaded protobuf
// descriptor set and builds the encode/decode closures an IOGrpc node needs.
// Implemented by internal/protoreg once a proto descriptor set has been
// loaded; a nil ProtoResolver is valid and simply fails compilation of any
// `@grpc` field with a clear cause, rather than silently ignoring it.
type ProtoResolver interface {
	Resolve(service, method string) (*GrpcBinding, error)
}

// GrpcBinding is what ProtoResolver hands back for one `@grpc` field.
type GrpcBinding struct {
	Encode func(fc FieldContextLike) ([]byte, error)
	Decode func(body []byte) (any, error)
}

// FieldContextLike avoids an import of evalctx from the ProtoResolver
// boundary; internal/protoreg's implementation closes over *evalctx.FieldContext
// directly since it lives below evalctx in the dependency order.
type FieldContextLike = any

var builtinScalars = map[string]bool{
	"String": true, "Int": true, "Float": true, "Boolean": true, "ID": true,
}

// Compile runs the full compiler pipeline over doc, producing either a
// Blueprint or an accumulated valid.Error naming every problem found.
func Compile(ctx context.Context, doc *config.Document, protos ProtoResolver) (*Blueprint, error) {
	start := time.Now()
	eventbus.Publish(ctx, events.BlueprintCompileStart{})
	bp, err := compileValidation(doc, protos).ToResult()
	eventbus.Publish(ctx, events.BlueprintCompileFinish{Err: err, Duration: time.Since(start)})
	return bp, err
}

func compileValidation(doc *config.Document, protos ProtoResolver) valid.Validation[*Blueprint] {
	serverV := valid.Trace(compileServer(doc.Server), "server")
	upstreamV := valid.Trace(compileUpstream(doc.Upstream), "upstream")
	schemaV := valid.Trace(compileSchemaRoot(doc.SDL), "schema")

	names := make(map[string]*ast.Definition, len(doc.SDL.Definitions))
	for _, d := range doc.SDL.Definitions {
		names[d.Name] = d
	}
	var batchHeaders []string
	if doc.Upstream.Batch != nil {
		batchHeaders = doc.Upstream.Batch.Headers
	}
	lb := &loaderBuilder{batchHeaders: batchHeaders}
	defsV := valid.Trace(compileDefinitions(doc.SDL.Definitions, names, protos, lb), "definitions")

	merged := valid.Zip(valid.Zip(valid.Zip(serverV, upstreamV), schemaV), defsV)
	return valid.Map(merged, func(p valid.Pair[valid.Pair[valid.Pair[Server, Upstream], SchemaRoot], []*Definition]) *Blueprint {
		b := &Blueprint{
			Server:      p.First.First.First,
			Upstream:    p.First.First.Second,
			Schema:      p.First.Second,
			Definitions: p.Second,
			Loaders:     lb.table,
		}
		if hasGroupBy(b.Definitions) && b.Upstream.Batch.MaxSize == 0 {
			b.Upstream.Batch = DefaultBatchPolicy()
		}
		return b
	})
}

func compileServer(s config.ServerSettings) valid.Validation[Server] {
	hostname := s.Hostname
	if hostname == "" {
		hostname = "0.0.0.0"
	} else if hostname == "localhost" {
		hostname = "127.0.0.1"
	}

	http2 := s.Version == "HTTP2"
	if http2 && (s.CertPath == "" || s.KeyPath == "") {
		return valid.Fail[Server]("HTTP/2 requires both certPath and keyPath")
	}

	return valid.Succeed(Server{
		Hostname:                hostname,
		Port:                    s.Port,
		HTTP2:                   http2,
		CertPath:                s.CertPath,
		KeyPath:                 s.KeyPath,
		ResponseHeaders:         s.ResponseHeaders,
		EnableGraphiQL:          s.EnableGraphiQL,
		GlobalResponseTimeoutMs: s.GlobalResponseTimeout,
		EnableBatchRequests:     s.EnableBatchRequests,
		EnableApolloTracing:     s.EnableApolloTracing,
		EnableCacheControl:      s.EnableCacheControl,
		EnableHTTPValidation:    s.EnableHTTPValidation,
		EnableIntrospection:     s.EnableIntrospection,
		WorkerCount:             s.WorkerCount,
		CORS:                    compileCORS(s.CORS),
		Vars:                    s.Vars,
	})
}

func compileCORS(c *config.CORSSettings) *CORS {
	if c == nil {
		return nil
	}
	return &CORS{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAgeSeconds:    c.MaxAge,
	}
}

func compileUpstream(u config.UpstreamSettings) valid.Validation[Upstream] {
	out := Upstream{
		BaseURL:          u.BaseURL,
		HTTP2Only:        u.HTTP2Only,
		AllowedHeaders:   u.AllowedHeaders,
		ConnectTimeoutMs: u.ConnectTimeoutMs,
		TimeoutMs:        u.TimeoutMs,
		Proxy:            u.Proxy,
	}
	if u.Batch != nil {
		out.Batch = BatchPolicy{MaxSize: u.Batch.MaxSize, DelayMs: u.Batch.Delay, Headers: u.Batch.Headers}
	}
	return valid.Succeed(out)
}

func compileSchemaRoot(doc *ast.SchemaDocument) valid.Validation[SchemaRoot] {
	root := SchemaRoot{Query: "Query", Mutation: "Mutation"}
	explicitMutation := false
	for _, def := range doc.Schema {
		for _, op := range def.OperationTypes {
			switch op.Operation {
			case ast.Query:
				root.Query = op.Type
			case ast.Mutation:
				root.Mutation = op.Type
				explicitMutation = true
			}
		}
	}

	defined := make(map[string]bool, len(doc.Definitions))
	for _, d := range doc.Definitions {
		defined[d.Name] = true
	}
	if !defined[root.Query] {
		return valid.FailWith[SchemaRoot](valid.Cause{Message: "query root type " + root.Query + " is not defined"})
	}
	if explicitMutation && !defined[root.Mutation] {
		return valid.FailWith[SchemaRoot](valid.Cause{Message: "mutation root type " + root.Mutation + " is not defined"})
	}
	if !defined[root.Mutation] {
		root.Mutation = ""
	}
	return valid.Succeed(root)
}

func compileDefinitions(defs ast.DefinitionList, names map[string]*ast.Definition, protos ProtoResolver, lb *loaderBuilder) valid.Validation[[]*Definition] {
	return valid.FromIter(defs, func(d *ast.Definition) valid.Validation[*Definition] {
		return valid.Trace(compileDefinition(d, names, protos, lb), d.Name)
	})
}

func compileDefinition(d *ast.Definition, names map[string]*ast.Definition, protos ProtoResolver, lb *loaderBuilder) valid.Validation[*Definition] {
	switch d.Kind {
	case ast.Object, ast.Interface:
		return compileObjectLike(d, names, protos, lb)
	case ast.InputObject:
		return compileInputObject(d, names)
	case ast.Union:
		return compileUnion(d, names)
	case ast.Enum:
		return compileEnum(d)
	case ast.Scalar:
		return valid.Succeed(&Definition{Kind: KindScalar, Name: d.Name, Description: d.Description})
	default:
		return valid.Fail[*Definition]("unsupported definition kind for " + d.Name)
	}
}

func compileUnion(d *ast.Definition, names map[string]*ast.Definition) valid.Validation[*Definition] {
	members := valid.FromIter(d.Types, func(name string) valid.Validation[string] {
		if _, ok := names[name]; !ok {
			return valid.Fail[string]("union member " + name + " is not defined")
		}
		return valid.Succeed(name)
	})
	return valid.Map(members, func(ms []string) *Definition {
		return &Definition{Kind: KindUnion, Name: d.Name, Description: d.Description, Members: ms}
	})
}

func compileEnum(d *ast.Definition) valid.Validation[*Definition] {
	seen := make(map[string]bool, len(d.EnumValues))
	valuesV := valid.FromIter(d.EnumValues, func(v *ast.EnumValueDefinition) valid.Validation[string] {
		if seen[v.Name] {
			return valid.Fail[string]("duplicate enum value " + v.Name)
		}
		seen[v.Name] = true
		return valid.Succeed(v.Name)
	})
	return valid.Map(valuesV, func(values []string) *Definition {
		return &Definition{Kind: KindEnum, Name: d.Name, Description: d.Description, Values: values}
	})
}

func compileInputObject(d *ast.Definition, names map[string]*ast.Definition) valid.Validation[*Definition] {
	fieldsV := valid.FromIter(d.Fields, func(f *ast.FieldDefinition) valid.Validation[*FieldDefinition] {
		typeRef, err := compileTypeRef(f.Type, names)
		if err != nil {
			return valid.Fail[*FieldDefinition](err.Error())
		}
		return valid.Succeed(&FieldDefinition{Name: f.Name, Description: f.Description, OfType: typeRef})
	})
	return valid.Map(fieldsV, func(fs []*FieldDefinition) *Definition {
		return &Definition{Kind: KindInputObject, Name: d.Name, Description: d.Description, Fields: fs}
	})
}

func compileObjectLike(d *ast.Definition, names map[string]*ast.Definition, protos ProtoResolver, lb *loaderBuilder) valid.Validation[*Definition] {
	kind := KindObject
	if d.Kind == ast.Interface {
		kind = KindInterface
	}
	fieldsV := valid.FromIter(d.Fields, func(f *ast.FieldDefinition) valid.Validation[*FieldDefinition] {
		return valid.Trace(compileField(f, names, protos, lb), f.Name)
	})
	return valid.Map(fieldsV, func(fs []*FieldDefinition) *Definition {
		return &Definition{Kind: kind, Name: d.Name, Description: d.Description, Implements: append([]string(nil), d.Interfaces...), Fields: fs}
	})
}

func compileTypeRef(t *ast.Type, names map[string]*ast.Definition) (*schema.TypeRef, error) {
	if t.NamedType != "" {
		if !builtinScalars[t.NamedType] {
			if _, ok := names[t.NamedType]; !ok {
				return nil, fmt.Errorf("type %s is not defined", t.NamedType)
			}
		}
		ref := schema.NamedType(t.NamedType)
		if t.NonNull {
			ref = schema.NonNullType(ref)
		}
		return ref, nil
	}
	inner, err := compileTypeRef(t.Elem, names)
	if err != nil {
		return nil, err
	}
	ref := schema.ListType(inner)
	if t.NonNull {
		ref = schema.NonNullType(ref)
	}
	return ref, nil
}

func hasGroupBy(defs []*Definition) bool {
	for _, d := range defs {
		for _, f := range d.Fields {
			if io, ok := f.Resolver.(expr.IOHttp); ok && len(io.Template.GroupBy) > 0 {
				return true
			}
		}
	}
	return false
}
