package tools

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

func TestEchoTool(t *testing.T) {
	tool := &EchoTool{}
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]interface{}{"msg": "hello"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"echo": "hello"}, out)

	args := map[string]interface{}{"a": 1, "b": 2}
	out, err = tool.Execute(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"echo": args}, out, "without msg, all args echo back")
}

func TestSleepTool(t *testing.T) {
	tool := &SleepTool{}
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]interface{}{"duration_ms": float64(5), "value": "carried"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out["slept_ms"])
	assert.Equal(t, "carried", out["value"])

	_, err = tool.Execute(ctx, map[string]interface{}{"duration_ms": "soon"})
	require.Error(t, err)
	assert.Equal(t, sdk.ErrValidation, sdk.KindOf(err))
}

func TestSleepTool_Canceled(t *testing.T) {
	tool := &SleepTool{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tool.Execute(ctx, map[string]interface{}{"duration_ms": float64(5000)})
	require.Error(t, err)
	assert.Equal(t, sdk.ErrCanceled, sdk.KindOf(err))
}

// roundTripFunc lets tests stub HTTP responses without network access.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func stubbedHTTPTool(status int, body string) *HTTPTool {
	tool := NewHTTPTool()
	tool.resolve = func(context.Context, string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	}
	tool.client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       http.NoBody,
			Request:    req,
			Header:     make(http.Header),
		}, nil
	})}
	if body != "" {
		tool.client.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: status,
				Body:       newBodyReader(body),
				Request:    req,
				Header:     make(http.Header),
			}, nil
		})
	}
	return tool
}

func newBodyReader(s string) *bodyReader { return &bodyReader{r: strings.NewReader(s)} }

type bodyReader struct{ r *strings.Reader }

func (b *bodyReader) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *bodyReader) Close() error               { return nil }

func TestHTTPTool_SchemeAllowlist(t *testing.T) {
	tool := NewHTTPTool()
	ctx := context.Background()

	for _, bad := range []string{"ftp://example.com/file", "file:///etc/passwd", "gopher://x"} {
		_, err := tool.Execute(ctx, map[string]interface{}{"url": bad})
		require.Error(t, err, bad)
		assert.Equal(t, sdk.ErrSandboxViolation, sdk.KindOf(err), bad)
	}
}

func TestHTTPTool_BlocksInternalAddresses(t *testing.T) {
	tool := NewHTTPTool()
	ctx := context.Background()

	for _, bad := range []string{
		"http://127.0.0.1/admin",
		"http://10.0.0.5/metadata",
		"http://192.168.1.1/router",
		"http://169.254.169.254/latest/meta-data",
		"http://0.0.0.0/",
	} {
		_, err := tool.Execute(ctx, map[string]interface{}{"url": bad})
		require.Error(t, err, bad)
		assert.Equal(t, sdk.ErrSandboxViolation, sdk.KindOf(err), bad)
	}
}

func TestHTTPTool_BlocksHostsResolvingPrivately(t *testing.T) {
	tool := NewHTTPTool()
	tool.resolve = func(context.Context, string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("10.1.2.3")}, nil
	}
	_, err := tool.Execute(context.Background(), map[string]interface{}{"url": "http://internal.example.com/"})
	require.Error(t, err)
	assert.Equal(t, sdk.ErrSandboxViolation, sdk.KindOf(err))
}

func TestHTTPTool_RequiresURL(t *testing.T) {
	tool := NewHTTPTool()
	_, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, sdk.ErrValidation, sdk.KindOf(err))
}

func TestHTTPTool_StatusMapping(t *testing.T) {
	ctx := context.Background()
	args := map[string]interface{}{"url": "http://api.example.com/things"}

	_, err := stubbedHTTPTool(http.StatusTooManyRequests, "").Execute(ctx, args)
	require.Error(t, err)
	assert.Equal(t, sdk.ErrRateLimited, sdk.KindOf(err))

	_, err = stubbedHTTPTool(http.StatusBadGateway, "").Execute(ctx, args)
	require.Error(t, err)
	assert.Equal(t, sdk.ErrTransient, sdk.KindOf(err))

	_, err = stubbedHTTPTool(http.StatusNotFound, "").Execute(ctx, args)
	require.Error(t, err)
	assert.Equal(t, sdk.ErrValidation, sdk.KindOf(err))
}

func TestHTTPTool_ParsesJSONBody(t *testing.T) {
	tool := stubbedHTTPTool(http.StatusOK, `{"items": [1, 2]}`)
	out, err := tool.Execute(context.Background(), map[string]interface{}{"url": "http://api.example.com/things"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out["status"])
	assert.Equal(t, map[string]interface{}{"items": []interface{}{float64(1), float64(2)}}, out["body"])
}

func TestHTTPTool_KeepsNonJSONBodyAsString(t *testing.T) {
	tool := stubbedHTTPTool(http.StatusOK, "plain text")
	out, err := tool.Execute(context.Background(), map[string]interface{}{"url": "http://api.example.com/page"})
	require.NoError(t, err)
	assert.Equal(t, "plain text", out["body"])
}

func TestCatalog_CoversBuiltins(t *testing.T) {
	catalog := Catalog()
	for _, name := range []string{"echo", "sleep", "http", "template"} {
		factory, ok := catalog[name]
		require.True(t, ok, name)
		tool, err := factory()
		require.NoError(t, err)
		assert.Equal(t, name, tool.Name())
	}
}

func TestTemplateTool_RendersWithVars(t *testing.T) {
	tool := &TemplateTool{}
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"template": "Dear {{user.name}}, your score is {{score}}.",
		"vars": map[string]interface{}{
			"user":  map[string]interface{}{"name": "Ada"},
			"score": 0.97,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"rendered": "Dear Ada, your score is 0.97."}, out)
}

func TestTemplateTool_FallsBackToRemainingArgs(t *testing.T) {
	tool := &TemplateTool{}
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"template": "{{greeting}}, {{name}}",
		"greeting": "Hello",
		"name":     "world",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", out["rendered"])
}

func TestTemplateTool_Validation(t *testing.T) {
	tool := &TemplateTool{}
	ctx := context.Background()

	_, err := tool.Execute(ctx, map[string]interface{}{"vars": map[string]interface{}{}})
	assert.Equal(t, sdk.ErrValidation, sdk.KindOf(err), "missing template argument")

	_, err = tool.Execute(ctx, map[string]interface{}{
		"template": "{{missing}}",
		"vars":     map[string]interface{}{},
	})
	assert.Equal(t, sdk.ErrValidation, sdk.KindOf(err), "unresolvable placeholder")
}
