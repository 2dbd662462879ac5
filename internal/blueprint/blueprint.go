// Package blueprint implements the compiler (§4.G) that turns a loaded
// config.Document into a validated, typed, executable Blueprint: a type
// graph plus one resolver Expression per field. Grounded on the teacher's
// internal/ir compiler-as-staged-builder pattern (internal/ir/build.go),
// adapted from "discover Go packages" to "walk a directive-annotated SDL
// document", and on internal/schema's neutral TypeRef representation, which
// Blueprint reuses directly rather than duplicating.
package blueprint

import (
	"github.com/tailcallhq/tailcall-go/internal/expr"
	"github.com/tailcallhq/tailcall-go/internal/schema"
)

// Blueprint is the compiler's immutable output, shared by reference across
// every request the process serves.
type Blueprint struct {
	Server      Server
	Upstream    Upstream
	Schema      SchemaRoot
	Definitions []*Definition
	Loaders     LoaderTable
}

// SchemaRoot names the root operation types.
type SchemaRoot struct {
	Query    string
	Mutation string
}

// Server is the effective runtime configuration (§3 "server").
type Server struct {
	Hostname              string
	Port                  int
	HTTP2                 bool
	CertPath              string
	KeyPath               string
	ResponseHeaders       map[string]string
	EnableGraphiQL        bool
	GlobalResponseTimeoutMs int
	EnableBatchRequests   bool
	EnableApolloTracing   bool
	EnableCacheControl    bool
	EnableHTTPValidation  bool
	EnableIntrospection   bool
	WorkerCount           int
	CORS                  *CORS
	Vars                  map[string]string
}

// CORS mirrors internal/server's CORS option shape.
type CORS struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// Upstream is the effective upstream policy (§3 "upstream").
type Upstream struct {
	BaseURL          string
	HTTP2Only        bool
	AllowedHeaders   []string
	ConnectTimeoutMs int
	TimeoutMs        int
	Proxy            string
	Batch            BatchPolicy
}

// BatchPolicy configures request coalescing (§4.G batching stage: defaults
// max_size=100, delay=0, headers empty).
type BatchPolicy struct {
	MaxSize int
	DelayMs int
	Headers []string
}

// DefaultBatchPolicy returns the batching-stage defaults.
func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{MaxSize: 100, DelayMs: 0}
}

// DefinitionKind discriminates a Definition's GraphQL type-system kind.
type DefinitionKind int

const (
	KindObject DefinitionKind = iota
	KindInterface
	KindInputObject
	KindUnion
	KindEnum
	KindScalar
)

// Definition is one named type in the Blueprint's type graph.
type Definition struct {
	Kind        DefinitionKind
	Name        string
	Description string
	Implements  []string           // Object/Interface
	Fields      []*FieldDefinition // Object/Interface/InputObject
	Members     []string           // Union
	Values      []string           // Enum
}

// FieldDefinition is one field on an Object/Interface/InputObject.
type FieldDefinition struct {
	Name        string
	Description string
	Args        []*schema.InputValue
	OfType      *schema.TypeRef
	Resolver    expr.Expression // nil means plain parent-value projection
	Cache       *CachePolicy
	DefaultValue any // InputObject fields only
}

// CachePolicy is the compiled form of `@cache(maxAge: N)`.
type CachePolicy struct {
	MaxAgeSeconds uint32
}
