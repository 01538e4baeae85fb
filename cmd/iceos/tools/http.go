package tools

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

const maxHTTPResponseBytes = 4 << 20

// HTTPTool performs outbound HTTP requests with SSRF protection: only
// http/https schemes, and every resolved address must be publicly
// routable.
type HTTPTool struct {
	client  *http.Client
	resolve func(ctx context.Context, host string) ([]net.IP, error)
}

// NewHTTPTool creates the tool with a bounded-timeout client.
func NewHTTPTool() *HTTPTool {
	return &HTTPTool{
		client: &http.Client{Timeout: 30 * time.Second},
		resolve: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, len(addrs))
			for i, a := range addrs {
				ips[i] = a.IP
			}
			return ips, nil
		},
	}
}

func (t *HTTPTool) Name() string { return "http" }

func (t *HTTPTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return nil, sdk.NewError(sdk.ErrValidation, "http requires a url argument")
	}
	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	if err := t.validateURL(ctx, rawURL); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload, ok := args["body"]; ok {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, sdk.WrapError(sdk.ErrValidation, err, "marshal request body")
		}
		body = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, sdk.WrapError(sdk.ErrValidation, err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := args["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, isString := v.(string); isString {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, sdk.WrapError(sdk.ErrCanceled, ctx.Err(), "http request canceled")
		}
		return nil, sdk.WrapError(sdk.ErrTransient, err, "http request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseBytes))
	if err != nil {
		return nil, sdk.WrapError(sdk.ErrTransient, err, "read response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, sdk.NewError(sdk.ErrRateLimited, "http %d from %s", resp.StatusCode, req.URL.Host)
	case resp.StatusCode >= 500:
		return nil, sdk.NewError(sdk.ErrTransient, "http %d from %s", resp.StatusCode, req.URL.Host)
	case resp.StatusCode >= 400:
		return nil, sdk.NewError(sdk.ErrValidation, "http %d from %s", resp.StatusCode, req.URL.Host)
	}

	out := map[string]interface{}{"status": resp.StatusCode}
	var parsed interface{}
	if json.Unmarshal(data, &parsed) == nil {
		out["body"] = parsed
	} else {
		out["body"] = string(data)
	}
	return out, nil
}

// validateURL enforces the scheme allowlist and blocks requests whose host
// resolves to loopback, private, link-local, multicast, or unspecified
// addresses.
func (t *HTTPTool) validateURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return sdk.WrapError(sdk.ErrValidation, err, "parse url")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return sdk.NewError(sdk.ErrSandboxViolation, "scheme %q is not allowed (only http/https)", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return sdk.NewError(sdk.ErrValidation, "url has no host")
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		ips, err = t.resolve(ctx, host)
		if err != nil {
			return sdk.WrapError(sdk.ErrTransient, err, "resolve %s", host)
		}
	}
	for _, ip := range ips {
		if err := checkIP(ip); err != nil {
			return err
		}
	}
	return nil
}

// checkIP rejects addresses that would let a blueprint reach internal
// infrastructure.
func checkIP(ip net.IP) error {
	blocked := ""
	switch {
	case ip.IsLoopback():
		blocked = "loopback"
	case ip.IsPrivate():
		blocked = "private network"
	case ip.IsLinkLocalUnicast():
		blocked = "link-local"
	case ip.IsMulticast():
		blocked = "multicast"
	case ip.IsUnspecified():
		blocked = "unspecified"
	}
	if blocked != "" {
		return sdk.NewError(sdk.ErrSandboxViolation, "address %s is blocked (%s)", ip, blocked)
	}
	return nil
}
