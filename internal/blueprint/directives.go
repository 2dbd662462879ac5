package blueprint

import (
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/tailcallhq/tailcall-go/internal/evalctx"
	"github.com/tailcallhq/tailcall-go/internal/expr"
	"github.com/tailcallhq/tailcall-go/internal/mustache"
	"github.com/tailcallhq/tailcall-go/internal/reqtemplate"
	"github.com/tailcallhq/tailcall-go/internal/schema"
	"github.com/tailcallhq/tailcall-go/internal/valid"
)

// compileField builds one field's args, return type, and resolver
// Expression, applying `@modify`/`@inline`/`@cache` after the core resolver directive
// is resolved. Resolver directives are mutually exclusive and resolved in
// the priority order §4.G specifies: http, graphql, grpc, expr/const,
// script; a field with none of these is a plain parent-value projection
// (Resolver == nil).
func compileField(f *ast.FieldDefinition, names map[string]*ast.Definition, protos ProtoResolver, lb *loaderBuilder) valid.Validation[*FieldDefinition] {
	typeRefV := compileTypeRefV(f.Type, names, "of_type")

	argsV := valid.FromIter(f.Arguments, func(a *ast.ArgumentDefinition) valid.Validation[*schema.InputValue] {
		t, err := compileTypeRef(a.Type, names)
		if err != nil {
			return valid.Fail[*schema.InputValue](err.Error())
		}
		var def any
		if a.DefaultValue != nil {
			def = astToGo(a.DefaultValue)
		}
		return valid.Succeed(&schema.InputValue{Name: a.Name, Description: a.Description, Type: t, DefaultValue: def})
	})

	resolverV := compileResolver(f, names, protos, lb)

	merged := valid.Zip(valid.Zip(typeRefV, argsV), resolverV)
	return valid.Map(merged, func(p valid.Pair[valid.Pair[*schema.TypeRef, []*schema.InputValue], expr.Expression]) *FieldDefinition {
		fd := &FieldDefinition{
			Name:        f.Name,
			Description: f.Description,
			OfType:      p.First.First,
			Args:        p.First.Second,
			Resolver:    p.Second,
		}
		// The HTTP loader's IsListField can only be set once OfType is known,
		// which happens after compileResolver already assigned the loader id.
		if io, ok := fd.Resolver.(expr.IOHttp); ok && io.LoaderID >= 0 {
			lb.setHTTPListField(io.LoaderID, schema.IsList(fd.OfType))
		}
		applyModify(fd, f.Directives)
		applyInline(fd, f.Directives)
		applyCache(fd, f.Directives)
		return fd
	})
}

func compileTypeRefV(t *ast.Type, names map[string]*ast.Definition, trace string) valid.Validation[*schema.TypeRef] {
	ref, err := compileTypeRef(t, names)
	if err != nil {
		return valid.Trace(valid.Fail[*schema.TypeRef](err.Error()), trace)
	}
	return valid.Succeed(ref)
}

// compileResolver dispatches on the first matching resolver directive, in
// priority order. A field with no resolver directive returns a nil
// Expression (plain parent-value projection).
func compileResolver(f *ast.FieldDefinition, names map[string]*ast.Definition, protos ProtoResolver, lb *loaderBuilder) valid.Validation[expr.Expression] {
	if d := findDirective(f.Directives, "http"); d != nil {
		return valid.Trace(compileHTTPResolver(d, lb), "@http")
	}
	if d := findDirective(f.Directives, "graphql"); d != nil {
		return valid.Trace(compileGraphQLResolver(d, f.Name, lb), "@graphql")
	}
	if d := findDirective(f.Directives, "grpc"); d != nil {
		return valid.Trace(compileGrpcResolver(d, protos, lb), "@grpc")
	}
	if d := findDirective(f.Directives, "expr"); d != nil {
		return valid.Trace(compileDynamicResolver(directiveArg(d, "body")), "@expr")
	}
	if d := findDirective(f.Directives, "const"); d != nil {
		return valid.Trace(compileDynamicResolver(directiveArg(d, "data")), "@const")
	}
	if d := findDirective(f.Directives, "script"); d != nil {
		return valid.Trace(compileScriptResolver(d), "@script")
	}
	return valid.Succeed[expr.Expression](nil)
}

func findDirective(dirs ast.DirectiveList, name string) *ast.Directive {
	for _, d := range dirs {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func directiveArg(d *ast.Directive, name string) *ast.Argument {
	if d == nil {
		return nil
	}
	for _, a := range d.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func argString(d *ast.Directive, name string) (string, bool) {
	a := directiveArg(d, name)
	if a == nil || a.Value == nil {
		return "", false
	}
	return a.Value.Raw, true
}

func argStringList(d *ast.Directive, name string) []string {
	a := directiveArg(d, name)
	if a == nil || a.Value == nil {
		return nil
	}
	var out []string
	for _, c := range a.Value.Children {
		out = append(out, c.Value.Raw)
	}
	return out
}

// compileHTTPResolver builds an expr.IOHttp from an `@http(...)` directive.
func compileHTTPResolver(d *ast.Directive, lb *loaderBuilder) valid.Validation[expr.Expression] {
	pathStr, ok := argString(d, "path")
	if !ok {
		return valid.Trace(valid.Fail[expr.Expression]("missing required argument"), "path")
	}
	urlTpl, err := mustache.Parse(pathStr)
	if err != nil {
		return valid.Trace(valid.Fail[expr.Expression](err.Error()), "path")
	}

	method := "GET"
	if m, ok := argString(d, "method"); ok {
		method = strings.ToUpper(m)
	}

	var groupBy []string
	if gb := directiveArg(d, "groupBy"); gb != nil && gb.Value != nil {
		for _, c := range gb.Value.Children {
			groupBy = append(groupBy, c.Value.Raw)
		}
	}
	if len(groupBy) > 0 && method != "GET" {
		return valid.Trace(valid.Fail[expr.Expression]("group_by requires method GET"), "method")
	}

	var query []reqtemplate.QueryParam
	if q := directiveArg(d, "query"); q != nil && q.Value != nil {
		for _, c := range q.Value.Children {
			tpl, err := mustache.Parse(c.Value.Raw)
			if err != nil {
				return valid.Trace(valid.Fail[expr.Expression](err.Error()), "query."+c.Name)
			}
			query = append(query, reqtemplate.QueryParam{Key: c.Name, Value: tpl})
		}
	}

	var headers []reqtemplate.Header
	if h := directiveArg(d, "headers"); h != nil && h.Value != nil {
		for _, c := range h.Value.Children {
			tpl, err := mustache.Parse(c.Value.Raw)
			if err != nil {
				return valid.Trace(valid.Fail[expr.Expression](err.Error()), "headers."+c.Name)
			}
			headers = append(headers, reqtemplate.Header{Name: c.Name, Value: tpl})
		}
	}

	var body *mustache.Template
	if b, ok := argString(d, "body"); ok {
		tpl, err := mustache.Parse(b)
		if err != nil {
			return valid.Trace(valid.Fail[expr.Expression](err.Error()), "body")
		}
		body = tpl
	}

	tpl := &reqtemplate.HTTP{Method: method, URL: urlTpl, Query: query, Headers: headers, Body: body, GroupBy: groupBy}
	if err := tpl.Validate(); err != nil {
		return valid.Fail[expr.Expression](err.Error())
	}

	loaderID := -1
	if method == "GET" {
		loaderID = lb.addHTTP(tpl)
	}

	return valid.Succeed[expr.Expression](expr.IOHttp{Template: tpl, LoaderID: loaderID, BatchHeaders: lb.batchHeaders})
}

// compileGraphQLResolver builds an expr.IOGraphQL from an `@graphql(...)`
// directive.
func compileGraphQLResolver(d *ast.Directive, fieldName string, lb *loaderBuilder) valid.Validation[expr.Expression] {
	name := fieldName
	if n, ok := argString(d, "name"); ok {
		name = n
	}
	baseURL, _ := argString(d, "baseURL")

	var args []reqtemplate.Header
	if a := directiveArg(d, "args"); a != nil && a.Value != nil {
		for _, c := range a.Value.Children {
			tpl, err := mustache.Parse(c.Value.Raw)
			if err != nil {
				return valid.Trace(valid.Fail[expr.Expression](err.Error()), "args."+c.Name)
			}
			args = append(args, reqtemplate.Header{Name: c.Name, Value: tpl})
		}
	}

	var headers []reqtemplate.Header
	if h := directiveArg(d, "headers"); h != nil && h.Value != nil {
		for _, c := range h.Value.Children {
			tpl, err := mustache.Parse(c.Value.Raw)
			if err != nil {
				return valid.Trace(valid.Fail[expr.Expression](err.Error()), "headers."+c.Name)
			}
			headers = append(headers, reqtemplate.Header{Name: c.Name, Value: tpl})
		}
	}

	tpl := &reqtemplate.GraphQL{
		URL:           baseURL,
		OperationType: "query",
		OperationName: name,
		Arguments:     args,
		Headers:       headers,
	}

	loaderID := -1
	if batch, ok := argString(d, "batch"); ok && batch == "true" {
		loaderID = lb.addGraphQL(tpl, name)
	}

	return valid.Succeed[expr.Expression](expr.IOGraphQL{Template: tpl, FieldName: name, LoaderID: loaderID})
}

// compileGrpcResolver builds an expr.IOGrpc from a `@grpc(...)` directive,
// locating the service/method against protos. A nil protos fails cleanly:
// @grpc cannot be compiled without a loaded descriptor set.
func compileGrpcResolver(d *ast.Directive, protos ProtoResolver, lb *loaderBuilder) valid.Validation[expr.Expression] {
	service, ok := argString(d, "service")
	if !ok {
		return valid.Trace(valid.Fail[expr.Expression]("missing required argument"), "service")
	}
	method, ok := argString(d, "method")
	if !ok {
		return valid.Trace(valid.Fail[expr.Expression]("missing required argument"), "method")
	}
	if protos == nil {
		return valid.Fail[expr.Expression]("no protobuf descriptor set configured for @grpc")
	}
	binding, err := protos.Resolve(service, method)
	if err != nil {
		return valid.Fail[expr.Expression](err.Error())
	}

	baseURL, _ := argString(d, "baseURL")
	var body *mustache.Template
	if b, ok := argString(d, "body"); ok {
		tpl, err := mustache.Parse(b)
		if err != nil {
			return valid.Trace(valid.Fail[expr.Expression](err.Error()), "body")
		}
		body = tpl
	}
	var headers []reqtemplate.Header
	if h := directiveArg(d, "headers"); h != nil && h.Value != nil {
		for _, c := range h.Value.Children {
			tpl, err := mustache.Parse(c.Value.Raw)
			if err != nil {
				return valid.Trace(valid.Fail[expr.Expression](err.Error()), "headers."+c.Name)
			}
			headers = append(headers, reqtemplate.Header{Name: c.Name, Value: tpl})
		}
	}

	var groupBy []string
	if gb := directiveArg(d, "groupBy"); gb != nil && gb.Value != nil {
		for _, c := range gb.Value.Children {
			groupBy = append(groupBy, c.Value.Raw)
		}
	}

	tpl := &reqtemplate.Grpc{
		URL:     mustache.MustParse(baseURL),
		Headers: headers,
		Body:    body,
		Service: service,
		Method:  method,
		GroupBy: groupBy,
	}
	encode := func(fc FieldContextLike) ([]byte, error) { return binding.Encode(fc) }
	if len(groupBy) > 0 {
		loaderID := lb.addGrpc(tpl, encode, binding.Decode)
		return valid.Succeed[expr.Expression](expr.IOGrpc{
			Template: tpl,
			Encode:   func(fc *evalctx.FieldContext) ([]byte, error) { return encode(fc) },
			Decode:   binding.Decode,
			LoaderID: loaderID,
		})
	}
	return valid.Succeed[expr.Expression](expr.IOGrpc{
		Template: tpl,
		Encode:   func(fc *evalctx.FieldContext) ([]byte, error) { return encode(fc) },
		Decode:   binding.Decode,
		LoaderID: -1,
	})
}

// compileDynamicResolver parses an `@expr`/`@const` argument's AST value
// into an expr.Dynamic tree, preserving embedded mustache expressions in
// string leaves.
func compileDynamicResolver(arg *ast.Argument) valid.Validation[expr.Expression] {
	if arg == nil || arg.Value == nil {
		return valid.Fail[expr.Expression]("missing required argument")
	}
	dv, err := astToDynamicValue(arg.Value)
	if err != nil {
		return valid.Fail[expr.Expression](err.Error())
	}
	return valid.Succeed[expr.Expression](expr.Dynamic{Value: dv})
}

func astToDynamicValue(v *ast.Value) (expr.DynamicValue, error) {
	switch v.Kind {
	case ast.StringValue, ast.BlockValue:
		tpl, err := mustache.Parse(v.Raw)
		if err != nil {
			return nil, err
		}
		if tpl.IsConst() {
			return expr.DynConst{Value: v.Raw}, nil
		}
		return expr.DynString{Tpl: tpl}, nil
	case ast.ListValue:
		items := make([]expr.DynamicValue, 0, len(v.Children))
		for _, c := range v.Children {
			item, err := astToDynamicValue(c.Value)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return expr.DynArray{Items: items}, nil
	case ast.ObjectValue:
		fields := make(map[string]expr.DynamicValue, len(v.Children))
		for _, c := range v.Children {
			item, err := astToDynamicValue(c.Value)
			if err != nil {
				return nil, err
			}
			fields[c.Name] = item
		}
		return expr.DynObject{Fields: fields}, nil
	default:
		return expr.DynConst{Value: astToGo(v)}, nil
	}
}

// compileScriptResolver wraps a context-based input expression in an
// expr.IOScript, per §4.G's "script: wrap a context-based input expression".
func compileScriptResolver(d *ast.Directive) valid.Validation[expr.Expression] {
	source, ok := argString(d, "source")
	if !ok {
		return valid.Trace(valid.Fail[expr.Expression]("missing required argument"), "source")
	}
	return valid.Succeed[expr.Expression](expr.IOScript{Input: expr.Context{}, Source: source})
}

// applyModify renames or omits a field per `@modify(name?, omit?)`. Omitted
// fields are marked by clearing the name to empty, which
// internal/schemabuild filters out of the served schema; renaming a field the straightforward
// way, in place, since FieldDefinition carries no separate "original name".
func applyModify(fd *FieldDefinition, dirs ast.DirectiveList) {
	d := findDirective(dirs, "modify")
	if d == nil {
		return
	}
	if name, ok := argString(d, "name"); ok && name != "" {
		fd.Name = name
	}
	if omit := directiveArg(d, "omit"); omit != nil && omit.Value != nil && omit.Value.Raw == "true" {
		fd.Name = ""
	}
}

// applyInline wraps the field's resolver in expr.Input{Inner, Path} per
// `@inline(path: [...])`, projecting a nested path out of the resolver's
// result up into this field — e.g. a `@http` field returning
// `{"data": {"id": 1}}` with `@inline(path: ["data"])` resolves to
// `{"id": 1}` directly. Unlike the original's of_type rewrite, this compiler
// doesn't carry enough structural knowledge of an arbitrary resolver's
// result shape to re-derive the projected field's type automatically, so
// the SDL author declares the field's return type to already match the
// projected shape, the same way `@modify`'s renamed field keeps an
// author-chosen name rather than a derived one.
func applyInline(fd *FieldDefinition, dirs ast.DirectiveList) {
	d := findDirective(dirs, "inline")
	if d == nil || fd.Resolver == nil {
		return
	}
	path := argStringList(d, "path")
	if len(path) == 0 {
		return
	}
	fd.Resolver = expr.Input{Inner: fd.Resolver, Path: path}
}

// applyCache attaches a CachePolicy from `@cache(maxAge: N)`.
func applyCache(fd *FieldDefinition, dirs ast.DirectiveList) {
	d := findDirective(dirs, "cache")
	if d == nil {
		return
	}
	if raw, ok := argString(d, "maxAge"); ok {
		if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
			fd.Cache = &CachePolicy{MaxAgeSeconds: uint32(n)}
		}
	}
}

// astToGo converts a constant ast.Value into a plain Go value (used for
// argument default values and `@const` literals with no template leaves).
func astToGo(v *ast.Value) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case ast.IntValue:
		n, _ := strconv.ParseInt(v.Raw, 10, 64)
		return n
	case ast.FloatValue:
		f, _ := strconv.ParseFloat(v.Raw, 64)
		return f
	case ast.BooleanValue:
		return v.Raw == "true"
	case ast.NullValue:
		return nil
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return v.Raw
	case ast.ListValue:
		out := make([]any, len(v.Children))
		for i, c := range v.Children {
			out[i] = astToGo(c.Value)
		}
		return out
	case ast.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			out[c.Name] = astToGo(c.Value)
		}
		return out
	default:
		return v.Raw
	}
}
