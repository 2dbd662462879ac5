package grpctp

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	eventbus "github.com/tailcallhq/tailcall-go/internal/eventbus"
	events "github.com/tailcallhq/tailcall-go/internal/events"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/tailcallhq/tailcall-go/internal/runtimereg"
)

// Transport is runtimereg.HTTP2Only's real implementation: a pooled
// *grpc.ClientConn per endpoint, invoked with the request/response bytes
// IOGrpc already encoded/will decode via the Blueprint-resolved
// protobuf descriptors. Unlike a generated gRPC client, Transport never
// touches message types — it passes raw wire bytes through a codec that
// does no marshaling of its own, so any service+method pair compiled by
// internal/protoreg can be called without codegen.
type Transport struct {
	opts *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: endpoint
	closed atomic.Bool
}

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return &Transport{
		opts:  o,
		pools: make(map[string]*connPool),
	}
}

var _ runtimereg.HTTP = (*Transport)(nil)

// Execute implements runtimereg.HTTP. req.URL is "<baseURL>/<package.Service>/<Method>",
// the shape reqtemplate.Grpc.Render produces; req.Body is already the
// wire-encoded protobuf request message.
func (t *Transport) Execute(ctx context.Context, req *runtimereg.Request) (*runtimereg.Response, error) {
	if t.closed.Load() {
		return nil, fmt.Errorf("grpctp: closed")
	}
	endpoint, fullMethod, service, err := splitGRPCURL(req.URL)
	if err != nil {
		return nil, err
	}
	if t.opts.Provider != nil {
		endpoints, err := t.opts.Provider.Endpoints(ctx, service)
		if err != nil {
			return nil, err
		}
		endpoint = endpoints[rand.Intn(len(endpoints))]
	}

	if _, ok := ctx.Deadline(); !ok && t.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, "x-tailcall-service", service)
	for k, vs := range req.Headers {
		for _, v := range vs {
			ctx = metadata.AppendToOutgoingContext(ctx, strings.ToLower(k), v)
		}
	}

	cc, err := t.getConn(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer t.returnConn(endpoint, cc)

	start := time.Now()
	eventbus.Publish(ctx, events.GRPCClientStart{Service: service, Method: fullMethod, Target: endpoint})
	var respBody []byte
	invokeErr := cc.Invoke(ctx, fullMethod, req.Body, &respBody, grpc.ForceCodec(rawCodec{}))
	eventbus.Publish(ctx, events.GRPCClientFinish{
		Service:  service,
		Method:   fullMethod,
		Target:   endpoint,
		Code:     status.Code(invokeErr),
		Err:      invokeErr,
		Duration: time.Since(start),
	})
	if invokeErr != nil {
		return nil, invokeErr
	}
	return &runtimereg.Response{Status: 200, Body: respBody}, nil
}

// splitGRPCURL extracts the dial target, the full gRPC method path, and the
// service name from a rendered "<scheme://host:port>/<package.Service>/<Method>" URL.
func splitGRPCURL(raw string) (endpoint, fullMethod, service string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", fmt.Errorf("grpctp: invalid URL %q: %w", raw, err)
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return "", "", "", fmt.Errorf("grpctp: URL %q missing /Service/Method path", raw)
	}
	return u.Host, "/" + segments[0] + "/" + segments[1], segments[0], nil
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

// rawCodec passes already-encoded protobuf bytes straight through,
// letting Transport invoke any method without a generated client.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("grpctp: rawCodec.Marshal expects []byte, got %T", v)
	}
	return b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	out, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("grpctp: rawCodec.Unmarshal expects *[]byte, got %T", v)
	}
	*out = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "proto" }

// ---------------- internals ----------------

type connPool struct {
	endpoint string
	opts     *Options
	conns    chan *grpc.ClientConn
	once     sync.Once
	closed   atomic.Bool
}

func newConnPool(endpoint string, opts *Options) *connPool {
	n := opts.MaxConnsPerEndpoint
	if n <= 0 {
		n = 2
	}
	return &connPool{
		endpoint: endpoint,
		opts:     opts,
		conns:    make(chan *grpc.ClientConn, n),
	}
}

func (p *connPool) get(ctx context.Context) (*grpc.ClientConn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("grpctp: pool closed")
	}
	select {
	case cc := <-p.conns:
		return cc, nil
	default:
		cc, err := grpc.DialContext(ctx, p.endpoint, p.opts.DialOptions...)
		if err != nil {
			return nil, err
		}
		return cc, nil
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if cc == nil || p.closed.Load() {
		if cc != nil {
			_ = cc.Close()
		}
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (t *Transport) getConn(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.opts)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	return pool.get(ctx)
}

func (t *Transport) returnConn(endpoint string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}
