package reqtemplate_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailcallhq/tailcall-go/internal/mustache"
	"github.com/tailcallhq/tailcall-go/internal/reqtemplate"
	"github.com/tailcallhq/tailcall-go/internal/runtimereg"
)

func resolver(values map[string]any) mustache.PathResolver {
	return mustache.PathResolverFunc(func(path []string) (any, bool) {
		key := path[0]
		for _, p := range path[1:] {
			key += "." + p
		}
		v, ok := values[key]
		return v, ok
	})
}

func TestHTTPRenderSubstitutesURLAndQuery(t *testing.T) {
	tpl := &reqtemplate.HTTP{
		Method: http.MethodGet,
		URL:    mustache.MustParse("http://x/users/{{args.id}}"),
		Query: []reqtemplate.QueryParam{
			{Key: "verbose", Value: mustache.MustParse("{{args.verbose}}")},
		},
	}
	require.NoError(t, tpl.Validate())

	req, err := tpl.Render(resolver(map[string]any{"args.id": 7, "args.verbose": "true"}), nil)
	require.NoError(t, err)
	assert.Equal(t, "http://x/users/7?verbose=true", req.URL)
}

func TestHTTPValidateRejectsBadHeaderName(t *testing.T) {
	tpl := &reqtemplate.HTTP{
		URL:     mustache.MustParse("http://x"),
		Headers: []reqtemplate.Header{{Name: "bad header", Value: mustache.MustParse("v")}},
	}
	assert.Error(t, tpl.Validate())
}

func TestHTTPValidateRejectsGroupByWithNonGET(t *testing.T) {
	tpl := &reqtemplate.HTTP{
		Method:  http.MethodPost,
		URL:     mustache.MustParse("http://x"),
		GroupBy: []string{"id"},
	}
	assert.Error(t, tpl.Validate())
}

func TestCacheKeyIgnoresNonBatchHeaders(t *testing.T) {
	base := &runtimereg.Request{Method: http.MethodGet, URL: "http://x", Headers: http.Header{
		"Authorization": []string{"token-a"},
		"X-Batch":       []string{"same"},
	}}
	other := &runtimereg.Request{Method: http.MethodGet, URL: "http://x", Headers: http.Header{
		"Authorization": []string{"token-b"},
		"X-Batch":       []string{"same"},
	}}

	assert.Equal(t,
		reqtemplate.CacheKey(base, []string{"X-Batch"}),
		reqtemplate.CacheKey(other, []string{"X-Batch"}),
	)
}

func TestGraphQLRenderBuildsQueryBody(t *testing.T) {
	tpl := &reqtemplate.GraphQL{
		URL:           "http://x/graphql",
		OperationType: "query",
		OperationName: "user",
		Arguments: []reqtemplate.Header{
			{Name: "id", Value: mustache.MustParse("{{args.id}}")},
		},
	}
	req, err := tpl.Render(resolver(map[string]any{"args.id": "1"}), "{ id name }")
	require.NoError(t, err)
	assert.Contains(t, string(req.Body), `query { user(id: \"1\") { id name } }`)
}
