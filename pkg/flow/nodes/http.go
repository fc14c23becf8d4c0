package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tombee/ironflow/pkg/flow"
	"github.com/tombee/ironflow/pkg/httpclient"
)

// httpMaxResponseBytes caps how much of a response body is read into the
// context.
const httpMaxResponseBytes = 10 * 1024 * 1024

var (
	sharedClient     *http.Client
	sharedClientOnce sync.Once
)

// defaultClient lazily builds the shared outbound client: pooled transport,
// retries on transient failures, sanitized request logging.
func defaultClient() *http.Client {
	sharedClientOnce.Do(func() {
		c, err := httpclient.New(httpclient.DefaultConfig())
		if err != nil {
			c = &http.Client{Timeout: httpclient.DefaultConfig().Timeout}
		}
		sharedClient = c
	})
	return sharedClient
}

// HTTPRequestNode performs an HTTP call and writes status_code, body, and a
// parsed json value (when the response is JSON) into the context, nested
// under output_key when one is configured.
type HTTPRequestNode struct {
	// Client allows tests to inject a custom HTTP client.
	Client *http.Client
}

// Type implements flow.Node.
func (n *HTTPRequestNode) Type() string { return "http_request" }

// Description implements flow.Node.
func (n *HTTPRequestNode) Description() string {
	return "Makes an HTTP request; outputs status_code, body, and parsed json"
}

// Execute implements flow.Node.
func (n *HTTPRequestNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	url, err := config.GetString("url")
	if err != nil {
		return nil, fmt.Errorf("http_request requires a 'url' string: %w", err)
	}
	url = renderTemplate(url, snapshot)
	method := strings.ToUpper(config.GetStringOr("method", http.MethodGet))

	var body io.Reader
	contentType := ""
	if jsonBody, err := config.GetMap("json"); err == nil {
		encoded, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, fmt.Errorf("encoding json body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	} else if raw := config.GetStringOr("body", ""); raw != "" {
		body = strings.NewReader(renderTemplate(raw, snapshot))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, err := config.GetMap("headers"); err == nil {
		for name, value := range headers {
			req.Header.Set(name, fmt.Sprintf("%v", value))
		}
	}

	client := n.Client
	if client == nil {
		client = defaultClient()
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httpMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(data),
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if err := json.Unmarshal(data, &parsed); err == nil {
			output["json"] = parsed
		}
	}

	if key := config.GetStringOr("output_key", ""); key != "" {
		return map[string]any{key: output}, nil
	}
	return output, nil
}
