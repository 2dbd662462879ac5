// Package runtimereg defines the boundary adapters (§4.J) through which the
// Blueprint compiler and evaluator touch the outside world: HTTP, a second
// HTTP/2-pinned client for gRPC, file, env, a TTL cache, and an optional
// script capability. Everything else in the module is deterministic over
// this bundle, which is what lets tests substitute in-memory fakes instead
// of hitting real upstreams.
package runtimereg

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/tailcallhq/tailcall-go/internal/eventbus"
	"github.com/tailcallhq/tailcall-go/internal/events"
)

// Request is a transport-neutral HTTP/gRPC request, already fully rendered
// by a request template (§4.C) — no further templating happens here.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is a transport-neutral response.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// HTTP is the universal client capability.
type HTTP interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// File is the file-read/write capability used by config loaders and script
// source resolution.
type File interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
}

// Env is the environment-variable capability.
type Env interface {
	Get(name string) (string, bool)
}

// Cache is the resolver result cache — distinct from the DataLoader's
// per-request dedup cache, this one may outlive a single request.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Script is the optional JS-escape-hatch capability for `@script`/IO::Script.
type Script interface {
	Execute(ctx context.Context, source string, input any, timeout time.Duration) (any, error)
}

// Registry bundles every boundary capability. A nil Script means the
// deployment has no script runtime configured; IO::Script nodes fail at
// evaluation time with a clear error rather than a nil pointer panic.
type Registry struct {
	HTTP      HTTP
	HTTP2Only HTTP
	File      File
	Env       Env
	Cache     Cache
	Script    Script
}

// netHTTP is the default HTTP implementation, a thin wrapper over
// net/http.Client — the same client-construction pattern the teacher's
// grpctp.Transport uses for its pooled *grpc.ClientConn, adapted here for
// plain HTTP upstreams.
type netHTTP struct {
	client *http.Client
}

// NewHTTPClient returns an HTTP backed by client, or http.DefaultClient's
// transport settings when client is nil.
func NewHTTPClient(client *http.Client) HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &netHTTP{client: client}
}

func (n *netHTTP) Execute(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	eventbus.Publish(ctx, events.UpstreamCallStart{Method: req.Method, URL: req.URL})
	resp, err := n.execute(ctx, req)
	status := 0
	if resp != nil {
		status = resp.Status
	}
	eventbus.Publish(ctx, events.UpstreamCallFinish{
		Method: req.Method, URL: req.URL, Status: status, Err: err, Duration: time.Since(start),
	})
	return resp, err
}

func (n *netHTTP) execute(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header = req.Headers.Clone()
	resp, err := n.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

// osFile is the default File implementation over the local filesystem.
type osFile struct{}

// NewOSFile returns a File backed by os.ReadFile/os.WriteFile.
func NewOSFile() File { return osFile{} }

func (osFile) Read(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (osFile) Write(_ context.Context, path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// osEnv is the default Env implementation over os.LookupEnv.
type osEnv struct{}

// NewOSEnv returns an Env backed by the process environment.
func NewOSEnv() Env { return osEnv{} }

func (osEnv) Get(name string) (string, bool) { return os.LookupEnv(name) }

// memCache is an in-memory, TTL-aware Cache used by tests and by `check`/
// `compile-sdl` one-shot CLI invocations that never need durability.
type memCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// NewMemCache returns an in-memory Cache. A zero TTL on Set means "never
// expires".
func NewMemCache() Cache {
	return &memCache{entries: make(map[string]memEntry)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.entries[key] = memEntry{value: value, expires: expires}
}
