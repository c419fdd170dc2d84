package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/autoflow/pkg/schema"
)

const (
	defaultMaxResponseBody int64 = 10 * 1024 * 1024
	defaultHTTPTimeout           = 30 * time.Second
)

// HTTPConfig configures the http integration.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

// NewHTTPIntegration exposes http_request. The tenant credential supplies
// authentication and an optional base URL:
//
//	{"base_url": "https://api.example.com", "token": "..."}                 bearer
//	{"username": "u", "password": "p"}                                     basic
//	{"header_name": "X-Api-Key", "header_value": "..."}                    api key
//
// Step config: "url" (absolute, or relative to base_url), "method"
// (default GET), "headers", "body" (JSON-encoded), "fail_on_error_status".
// When base_url is set, auth is only sent to URLs on that scheme and host.
func NewHTTPIntegration(cfg HTTPConfig, client *http.Client) Integration {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	a := &httpRequestAction{config: cfg, client: client}
	return NewIntegration("http", true, a)
}

type httpRequestAction struct {
	config HTTPConfig
	client *http.Client
}

func (a *httpRequestAction) Name() string { return "request" }

func (a *httpRequestAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	params := input.Config
	if params == nil {
		params = map[string]any{}
	}

	baseURL := stringParam(input.Credentials, "base_url", "")
	target, err := resolveURL(baseURL, stringParam(params, "url", ""))
	if err != nil {
		return nil, err
	}
	method := strings.ToUpper(stringParam(params, "method", http.MethodGet))

	timeout := a.config.DefaultTimeout
	if ts := stringParam(params, "timeout", ""); ts != "" {
		if d, err := time.ParseDuration(ts); err == nil {
			timeout = d
		}
	}

	var body io.Reader
	if raw, ok := params["body"]; ok && raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if hdrs, ok := params["headers"].(map[string]any); ok {
		for k, v := range hdrs {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	if sameOrigin(baseURL, req.URL) {
		applyCredentialAuth(req, input.Credentials)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout, "%s %s timed out after %s", method, target, timeout).WithCause(err)
		}
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, a.config.MaxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if boolParam(params, "fail_on_error_status", true) && resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s returned %s", method, target, resp.Status)
	}

	var decoded any = string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			decoded = v
		}
	}

	return JSONOutput(map[string]any{
		"status_code": resp.StatusCode,
		"body":        decoded,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func resolveURL(base, ref string) (string, error) {
	if ref == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "missing required config \"url\"")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid url %q", ref)
	}
	if !u.IsAbs() {
		if base == "" {
			return "", schema.NewErrorf(schema.ErrCodeValidation, "relative url %q without a base_url credential", ref)
		}
		b, err := url.Parse(base)
		if err != nil {
			return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid base_url %q", base)
		}
		u = b.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unsupported url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// sameOrigin reports whether target may receive the tenant's auth. With a
// base_url configured only its scheme and host qualify.
func sameOrigin(base string, target *url.URL) bool {
	if base == "" {
		return true
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return strings.EqualFold(b.Scheme, target.Scheme) && strings.EqualFold(b.Host, target.Host)
}

func applyCredentialAuth(req *http.Request, creds map[string]any) {
	switch {
	case stringParam(creds, "token", "") != "":
		req.Header.Set("Authorization", "Bearer "+stringParam(creds, "token", ""))
	case stringParam(creds, "username", "") != "":
		req.SetBasicAuth(stringParam(creds, "username", ""), stringParam(creds, "password", ""))
	case stringParam(creds, "header_name", "") != "":
		req.Header.Set(stringParam(creds, "header_name", ""), stringParam(creds, "header_value", ""))
	case stringParam(creds, "value", "") != "":
		// Plain-text credential.
		req.Header.Set("Authorization", "Bearer "+stringParam(creds, "value", ""))
	}
}
