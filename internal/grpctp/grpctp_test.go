package grpctp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitGRPCURL(t *testing.T) {
	endpoint, fullMethod, service, err := splitGRPCURL("http://user-svc:50051/greet.Greeter/GetUser")
	require.NoError(t, err)
	assert.Equal(t, "user-svc:50051", endpoint)
	assert.Equal(t, "/greet.Greeter/GetUser", fullMethod)
	assert.Equal(t, "greet.Greeter", service)
}

func TestSplitGRPCURLRejectsMissingMethod(t *testing.T) {
	_, _, _, err := splitGRPCURL("http://user-svc:50051/greet.Greeter")
	assert.Error(t, err)
}

func TestRawCodecRoundTrip(t *testing.T) {
	var c rawCodec
	payload := []byte{0x01, 0x02, 0x03}

	encoded, err := c.Marshal(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, encoded)

	var out []byte
	require.NoError(t, c.Unmarshal(encoded, &out))
	assert.Equal(t, payload, out)
}

func TestRawCodecRejectsWrongTypes(t *testing.T) {
	var c rawCodec
	_, err := c.Marshal("not bytes")
	assert.Error(t, err)

	var notBytes string
	err = c.Unmarshal([]byte("x"), &notBytes)
	assert.Error(t, err)
}

func TestStaticEndpointsReturnsCopyAndErrorsWhenMissing(t *testing.T) {
	p := NewStaticEndpoints(map[string][]string{"greet.Greeter": {"a:1", "b:2"}})

	got, err := p.Endpoints(context.Background(), "greet.Greeter")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, got)

	got[0] = "mutated"
	got2, _ := p.Endpoints(context.Background(), "greet.Greeter")
	assert.Equal(t, "a:1", got2[0], "Endpoints must return a defensive copy")

	_, err = p.Endpoints(context.Background(), "unknown.Service")
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	assert.Equal(t, 2, o.MaxConnsPerEndpoint)
	assert.Equal(t, 3*time.Second, o.RPCTimeout)
}

func TestOptionSetters(t *testing.T) {
	p := NewStaticEndpoints(nil)
	o := defaultOptions()
	WithProvider(p)(o)
	WithMaxConnsPerEndpoint(5)(o)
	WithRPCTimeout(7 * time.Second)(o)

	assert.Same(t, p, o.Provider)
	assert.Equal(t, 5, o.MaxConnsPerEndpoint)
	assert.Equal(t, 7*time.Second, o.RPCTimeout)
}

func TestNewTransportSatisfiesRuntimeregHTTP(t *testing.T) {
	tr := New()
	require.NotNil(t, tr)
	assert.NoError(t, tr.Close())
}
