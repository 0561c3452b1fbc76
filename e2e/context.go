// Package e2e drives a running sovren backend through its HTTP surface.
//
// Scenarios read SOVREN_BASE_URL, ADMIN_TOKEN and JWT_SECRET from the
// environment; they must match the server under test.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// TestContext carries one scenario's HTTP client and last response.
type TestContext struct {
	BaseURL     string
	AdminToken  string
	TokenSecret string
	Prefix      string

	client       *http.Client
	lastStatus   int
	lastBody     []byte
	lastResponse map[string]interface{}
}

// NewTestContext reads the target server from the environment.
func NewTestContext() *TestContext {
	base := os.Getenv("SOVREN_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return &TestContext{
		BaseURL:     strings.TrimRight(base, "/"),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),
		TokenSecret: os.Getenv("JWT_SECRET"),
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.Prefix = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastResponse = nil
}

// SetPrefix mounts subsequent telephony requests under prefix.
func (tc *TestContext) SetPrefix(prefix string) {
	tc.Prefix = prefix
}

// GetPrefix returns the current telephony mount prefix.
func (tc *TestContext) GetPrefix() string {
	return tc.Prefix
}

// GetAdminToken returns the configured admin secret.
func (tc *TestContext) GetAdminToken() string {
	return tc.AdminToken
}

// GetTokenSecret returns the signing secret used to verify assertions.
func (tc *TestContext) GetTokenSecret() string {
	return tc.TokenSecret
}

// GET sends a GET request with optional headers.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.Do(http.MethodGet, path, nil, headers)
}

// Do sends a request with query parameters encoded into the path.
func (tc *TestContext) Do(method, path string, query map[string]string, headers map[string]string) error {
	u, err := url.Parse(tc.BaseURL + path)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequest(method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	tc.lastResponse = nil
	if json.Valid(body) && bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		var parsed map[string]interface{}
		if err := json.Unmarshal(body, &parsed); err == nil {
			tc.lastResponse = parsed
		}
	}
	return nil
}

// GetLastResponseStatus returns the status of the last response.
func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

// GetLastResponseBody returns the raw body of the last response.
func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField returns a top-level field of the last JSON response.
// Dotted paths descend into nested objects.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	if tc.lastResponse == nil {
		return nil, fmt.Errorf("last response is not a JSON object: %s", tc.lastBody)
	}
	var cur interface{} = tc.lastResponse
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		cur, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not found in response: %s", field, tc.lastBody)
		}
	}
	return cur, nil
}
