// Package reqtemplate implements the three request-template kinds (§4.C):
// HTTP, gRPC, and GraphQL. Each renders a mustache.Template-parameterised
// shape into a concrete runtimereg.Request given a mustache.PathResolver.
package reqtemplate

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/tailcallhq/tailcall-go/internal/mustache"
	"github.com/tailcallhq/tailcall-go/internal/runtimereg"
)

// Header is one templated header entry. Illegal header-name characters are
// rejected at Validate time, not at render time.
type Header struct {
	Name  string
	Value *mustache.Template
}

// HTTP is the @http request template.
type HTTP struct {
	Method      string
	URL         *mustache.Template
	Query       []QueryParam
	Headers     []Header
	Body        *mustache.Template // nil when the field has no request body
	GroupBy     []string           // empty when this field is not group-by batched
}

// QueryParam is one templated query-string parameter.
type QueryParam struct {
	Key   string
	Value *mustache.Template
}

// Validate rejects header names containing characters net/http would
// reject, surfacing the failure at template-construction time as §4.C
// requires ("illegal characters cause failure at template construction, not
// at request time").
func (h *HTTP) Validate() error {
	for _, hdr := range h.Headers {
		if !validHeaderName(hdr.Name) {
			return fmt.Errorf("reqtemplate: invalid header name %q", hdr.Name)
		}
	}
	if len(h.GroupBy) > 0 && h.Method != "" && h.Method != http.MethodGet {
		return fmt.Errorf("reqtemplate: group_by requires method GET, got %s", h.Method)
	}
	return nil
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("!#$%&'*+-.^_`|~", r):
		default:
			return false
		}
	}
	return true
}

// Render produces a concrete request. allowedHeaders is the request
// context's allow-listed headers to merge in after template headers, per
// §4.C's "header-map merging" rule.
func (h *HTTP) Render(resolver mustache.PathResolver, allowedHeaders http.Header) (*runtimereg.Request, error) {
	rawURL := h.URL.Render(resolver)
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("reqtemplate: invalid URL %q: %w", rawURL, err)
	}
	if len(h.Query) > 0 {
		q := u.Query()
		for _, qp := range h.Query {
			v := qp.Value.Render(resolver)
			if v != "" {
				q.Set(qp.Key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	headers := make(http.Header)
	for _, hdr := range h.Headers {
		headers.Set(hdr.Name, hdr.Value.Render(resolver))
	}
	for k, vs := range allowedHeaders {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if h.Body != nil {
		rendered := h.Body.Render(resolver)
		body = []byte(rendered)
		if headers.Get("content-type") == "" {
			headers.Set("content-type", "application/json")
		}
	}

	return &runtimereg.Request{Method: method, URL: u.String(), Headers: headers, Body: body}, nil
}

// GroupKeyValue renders the query parameter named by the field's single
// group_by key (§4.E "group_by batching") for one call's resolver, giving
// the value that identifies which upstream item this call wants.
func (h *HTTP) GroupKeyValue(resolver mustache.PathResolver, groupByKey string) (string, bool) {
	for _, qp := range h.Query {
		if qp.Key == groupByKey {
			return qp.Value.Render(resolver), true
		}
	}
	return "", false
}

// RenderGroup renders one request that stands in for an entire batching
// window: identical to Render except the query parameter named groupByKey is
// overridden with the union of every key in the window, so the upstream
// receives exactly one call instead of one per field resolution (§4.E,
// scenario S2).
func (h *HTTP) RenderGroup(resolver mustache.PathResolver, allowedHeaders http.Header, groupByKey string, values []string) (*runtimereg.Request, error) {
	req, err := h.Render(resolver, allowedHeaders)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("reqtemplate: invalid URL %q: %w", req.URL, err)
	}
	q := u.Query()
	q.Del(groupByKey)
	for _, v := range values {
		q.Add(groupByKey, v)
	}
	u.RawQuery = q.Encode()
	req.URL = u.String()
	return req, nil
}

// CacheKey returns a deterministic identity for req, considering only the
// parts that make two requests batch-equivalent: method, URL, body, and the
// headers named in batchHeaders (§4.E "Key identity").
func CacheKey(req *runtimereg.Request, batchHeaders []string) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(req.URL)
	b.WriteByte('\n')
	b.Write(req.Body)
	names := append([]string(nil), batchHeaders...)
	sort.Strings(names)
	for _, name := range names {
		b.WriteByte('\n')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(req.Headers.Get(name))
	}
	return b.String()
}

// RequestKey is the comparable, map-key-safe identity of a rendered request
// used for dataloader coalescing (§4.E "DataLoaderRequest"): two calls
// attach to the same in-flight future only when they agree on method, URL,
// body, and every header named in batchHeaders. Headers outside that
// allow-list never affect which requests are considered identical, nor are
// they forwarded on the single upstream call made on behalf of the group.
type RequestKey struct {
	Method  string
	URL     string
	Body    string
	Headers string // "name: value\n"-per-line, batchHeaders only, self-describing
}

// NewRequestKey builds a RequestKey for req, considering only the headers
// named in batchHeaders.
func NewRequestKey(req *runtimereg.Request, batchHeaders []string) RequestKey {
	names := append([]string(nil), batchHeaders...)
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(req.Headers.Get(name))
		b.WriteByte('\n')
	}
	return RequestKey{Method: req.Method, URL: req.URL, Body: string(req.Body), Headers: b.String()}
}

// ToRequest reconstructs the request this key was built from, forwarding
// only the batch-significant headers captured in the key.
func (k RequestKey) ToRequest() *runtimereg.Request {
	headers := make(http.Header)
	for _, line := range strings.Split(strings.TrimSuffix(k.Headers, "\n"), "\n") {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ": ")
		if ok {
			headers.Set(name, value)
		}
	}
	return &runtimereg.Request{Method: k.Method, URL: k.URL, Headers: headers, Body: []byte(k.Body)}
}

// Grpc is the @grpc request template. The protobuf operation itself
// (service/method descriptors) lives in internal/protoreg; this template
// only carries the transport-level shape.
type Grpc struct {
	URL     *mustache.Template
	Headers []Header
	Body    *mustache.Template
	Service string
	Method  string
	GroupBy []string
}

func (g *Grpc) Render(resolver mustache.PathResolver) (*runtimereg.Request, error) {
	baseURL := strings.TrimRight(g.URL.Render(resolver), "/")
	fullMethod := fmt.Sprintf("/%s/%s", g.Service, g.Method)
	headers := make(http.Header)
	headers.Set("content-type", "application/grpc")
	for _, hdr := range g.Headers {
		headers.Set(hdr.Name, hdr.Value.Render(resolver))
	}
	var body []byte
	if g.Body != nil {
		body = []byte(g.Body.Render(resolver))
	}
	return &runtimereg.Request{Method: "POST", URL: baseURL + fullMethod, Headers: headers, Body: body}, nil
}

// GraphQL is the @graphql request template.
type GraphQL struct {
	URL           string
	OperationType string // "query" | "mutation"
	OperationName string
	Arguments     []Header // reuse Header shape: (name, Mustache value)
	Headers       []Header
}

// Render builds the JSON request body `{"query":"<op> { <name>(<args>)
// <selectionSet> }"}` per §4.C, where selectionSet is supplied by the
// current field's GraphQL selection (evalctx.FieldContext.Selection).
func (g *GraphQL) Render(resolver mustache.PathResolver, selectionSet string) (*runtimereg.Request, error) {
	var args strings.Builder
	if len(g.Arguments) > 0 {
		args.WriteByte('(')
		for i, a := range g.Arguments {
			if i > 0 {
				args.WriteString(", ")
			}
			args.WriteString(a.Name)
			args.WriteString(": ")
			args.WriteString(a.Value.RenderGraphQL(resolver))
		}
		args.WriteByte(')')
	}
	query := fmt.Sprintf("%s { %s%s %s }", g.OperationType, g.OperationName, args.String(), selectionSet)
	body := fmt.Sprintf(`{"query":%s}`, mustache.EncodeGraphQLValue(query))

	headers := make(http.Header)
	headers.Set("content-type", "application/json")
	for _, hdr := range g.Headers {
		headers.Set(hdr.Name, hdr.Value.Render(resolver))
	}
	return &runtimereg.Request{Method: http.MethodPost, URL: g.URL, Headers: headers, Body: []byte(body)}, nil
}
