// Package config implements the on-disk Config document: a GraphQL SDL
// source carrying `@http`/`@graphql`/`@grpc`/`@expr`/`@const`/`@script`/
// `@modify`/`@inline`/`@cache` field directives plus `@server`/`@upstream`
// schema-root directives, merged with a YAML sidecar for settings that do
// not have a natural SDL expression (TLS material, timeouts, batch policy).
// This mirrors the split the original implementation uses between its SDL
// schema file and its `tailcall.yml`. Parsing of the SDL itself is delegated
// to the same gqlparser dependency the teacher already uses for query
// parsing (internal/language).
package config

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"gopkg.in/yaml.v3"

	"github.com/tailcallhq/tailcall-go/internal/language"
)

// Document is a loaded, unmerged Config: the parsed SDL plus the sidecar's
// decoded settings. The Blueprint compiler treats this as its sole input.
type Document struct {
	SDL      *ast.SchemaDocument
	Server   ServerSettings
	Upstream UpstreamSettings
}

// ServerSettings is the sidecar's `server:` section.
type ServerSettings struct {
	Hostname              string            `yaml:"hostname"`
	Port                  int               `yaml:"port"`
	Version               string            `yaml:"version"` // "HTTP1" | "HTTP2"
	CertPath              string            `yaml:"certPath"`
	KeyPath               string            `yaml:"keyPath"`
	ResponseHeaders       map[string]string `yaml:"responseHeaders"`
	EnableGraphiQL        bool              `yaml:"enableGraphiql"`
	GlobalResponseTimeout int               `yaml:"globalResponseTimeout"` // ms
	EnableBatchRequests   bool              `yaml:"enableBatchRequests"`
	EnableApolloTracing   bool              `yaml:"enableApolloTracing"`
	EnableCacheControl    bool              `yaml:"enableCacheControlHeader"`
	EnableHTTPValidation  bool              `yaml:"enableHttpValidation"`
	EnableIntrospection   bool              `yaml:"enableIntrospection"`
	WorkerCount           int               `yaml:"workers"`
	CORS                  *CORSSettings     `yaml:"cors"`
	Script                *ScriptSettings   `yaml:"script"`
	Vars                  map[string]string `yaml:"vars"`
}

// CORSSettings mirrors the server.CORSOptions shape the teacher's HTTP
// transport already accepts, so the Blueprint "server stage" only has to
// translate, not invent, CORS semantics.
type CORSSettings struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowMethods     []string `yaml:"allowMethods"`
	AllowHeaders     []string `yaml:"allowHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// ScriptSettings configures the optional JS escape hatch: either an inline
// source string or a path to a file the runtime's File capability reads.
type ScriptSettings struct {
	Source  string `yaml:"source"`
	Path    string `yaml:"path"`
	Timeout int    `yaml:"timeoutMs"`
}

// UpstreamSettings is the sidecar's `upstream:` section.
type UpstreamSettings struct {
	BaseURL           string        `yaml:"baseURL"`
	HTTP2Only         bool          `yaml:"http2Only"`
	AllowedHeaders    []string      `yaml:"allowedHeaders"`
	ConnectTimeoutMs  int           `yaml:"connectTimeout"`
	TimeoutMs         int           `yaml:"timeout"`
	Proxy             string        `yaml:"proxy"`
	Batch             *BatchSettings `yaml:"batch"`
}

// BatchSettings configures group-by/GraphQL batching (§4.G batching stage
// defaults: max_size=100, delay=0, headers empty).
type BatchSettings struct {
	MaxSize int      `yaml:"maxSize"`
	Delay   int      `yaml:"delay"` // ms
	Headers []string `yaml:"headers"`
}

// sidecar is the YAML document shape; `server`/`upstream` are both optional,
// each defaulting to its Go zero value when absent.
type sidecar struct {
	Server   ServerSettings   `yaml:"server"`
	Upstream UpstreamSettings `yaml:"upstream"`
}

// Load parses sdlSource as GraphQL SDL-with-directives and yamlSource (which
// may be nil/empty) as the settings sidecar, returning a merged Document.
func Load(name, sdlSource string, yamlSource []byte) (*Document, error) {
	schema, err := language.ParseSchema(name, sdlSource)
	if err != nil {
		return nil, fmt.Errorf("config: parsing SDL: %w", err)
	}

	var sc sidecar
	if len(yamlSource) > 0 {
		if err := yaml.Unmarshal(yamlSource, &sc); err != nil {
			return nil, fmt.Errorf("config: parsing sidecar YAML: %w", err)
		}
	}

	return &Document{SDL: schema, Server: sc.Server, Upstream: sc.Upstream}, nil
}

// FindDirective returns the named directive on dirs, or nil.
func FindDirective(dirs ast.DirectiveList, name string) *ast.Directive {
	for _, d := range dirs {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// Arg returns the named argument of a directive, or (nil, false) if the
// directive is nil or has no such argument. Callers needing a typed value
// parse the argument's ast.Value themselves.
func Arg(dir *ast.Directive, name string) (*ast.Argument, bool) {
	if dir == nil {
		return nil, false
	}
	for _, a := range dir.Arguments {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}
