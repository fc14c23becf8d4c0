// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/ironflow/internal/config"
	"github.com/tombee/ironflow/internal/flows"
	"github.com/tombee/ironflow/pkg/flow"
)

const helloFlow = `
name: hello
steps:
  - name: greet
    node_type: echo
`

func testRegistry(t *testing.T) *flow.Registry {
	t.Helper()
	reg := flow.NewRegistry()
	reg.MustRegister(flow.NodeFunc{
		NodeType: "echo",
		Desc:     "echoes its config",
		Fn: func(ctx context.Context, cfg flow.Values, snap flow.Values) (map[string]any, error) {
			return map[string]any{"echoed": true}, nil
		},
	})
	reg.MustRegister(flow.NodeFunc{
		NodeType: "boom",
		Desc:     "always fails",
		Fn: func(ctx context.Context, cfg flow.Values, snap flow.Values) (map[string]any, error) {
			return nil, fmt.Errorf("boom")
		},
	})
	return reg
}

type testEnv struct {
	server   *Server
	ts       *httptest.Server
	flowsDir string
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.yaml"), []byte(helloFlow), 0o644))

	cfg := config.Default()
	cfg.FlowsDir = dir
	cfg.MaxConcurrentTasks = 2
	if mutate != nil {
		mutate(cfg)
	}

	index := flows.NewIndex(dir, nil)
	require.NoError(t, index.Reload(context.Background()))

	srv := New(Options{
		Config:   cfg,
		Registry: testRegistry(t),
		Store:    flow.NewMemoryStore(),
		Index:    index,
		Version:  "test",
		ResolveSecret: func(ref string) (string, error) {
			return strings.TrimPrefix(ref, "literal:"), nil
		},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, ts: ts, flowsDir: dir}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRunFlowInline(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.postJSON(t, "/flows/run", map[string]any{
		"source":  helloFlow,
		"context": map[string]any{"who": "world"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "hello", body["flow_name"])
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["run_id"])
}

func TestRunFlowFromFile(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.postJSON(t, "/flows/run", map[string]any{"file": "hello.yaml"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])

	// The run's context carries _flow_dir for nested-flow resolution.
	runResp, err := http.Get(env.ts.URL + "/runs/" + body["run_id"].(string))
	require.NoError(t, err)
	run := decodeBody(t, runResp)
	runCtx := run["context"].(map[string]any)
	assert.Equal(t, env.flowsDir, runCtx["_flow_dir"])
}

func TestRunFlowRequestShape(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.postJSON(t, "/flows/run", map[string]any{"source": helloFlow, "file": "hello.yaml"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/flows/run", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/flows/run", map[string]any{"file": "absent.yaml"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRunFlowInvalidGraph(t *testing.T) {
	env := newTestEnv(t, nil)

	bad := `
name: bad
steps:
  - name: a
    node_type: echo
    dependencies: [missing]
`
	resp := env.postJSON(t, "/flows/run", map[string]any{"source": bad})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "invalid flow", body["error"])
	assert.Contains(t, body["details"], "missing")
}

func TestValidateFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.postJSON(t, "/flows/validate", map[string]any{"source": helloFlow})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "hello", body["flow_name"])
	assert.Equal(t, float64(1), body["steps"])
	assert.Empty(t, body["errors"])

	// Unknown node type comes back as a validation result, not an error.
	resp = env.postJSON(t, "/flows/validate", map[string]any{
		"source": "name: x\nsteps:\n  - name: a\n    node_type: nope\n",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, false, body["valid"])
	assert.NotEmpty(t, body["errors"])

	// Unparseable source is also a validation result.
	resp = env.postJSON(t, "/flows/validate", map[string]any{"source": "steps: ["})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, false, body["valid"])
}

func TestRunsLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.postJSON(t, "/flows/run", map[string]any{"source": helloFlow})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	runID := decodeBody(t, resp)["run_id"].(string)

	listResp, err := http.Get(env.ts.URL + "/runs")
	require.NoError(t, err)
	list := decodeBody(t, listResp)
	assert.Equal(t, float64(1), list["total"])
	summary := list["runs"].([]any)[0].(map[string]any)
	assert.Equal(t, runID, summary["run_id"])
	tasks := summary["tasks"].(map[string]any)
	assert.Equal(t, float64(1), tasks["total"])
	assert.Equal(t, float64(1), tasks["success"])

	// Status filter.
	listResp, err = http.Get(env.ts.URL + "/runs?status=failed")
	require.NoError(t, err)
	assert.Equal(t, float64(0), decodeBody(t, listResp)["total"])

	listResp, err = http.Get(env.ts.URL + "/runs?status=bogus")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, listResp.StatusCode)
	listResp.Body.Close()

	// Fetch, delete, fetch again.
	getResp, err := http.Get(env.ts.URL + "/runs/" + runID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
	run := decodeBody(t, getResp)
	assert.Equal(t, "hello", run["flow_name"])

	req, err := http.NewRequest(http.MethodDelete, env.ts.URL+"/runs/"+runID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, delResp.StatusCode)
	assert.Equal(t, runID, decodeBody(t, delResp)["deleted"])

	getResp, err = http.Get(env.ts.URL + "/runs/" + runID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	getResp.Body.Close()
}

func TestNodesEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/nodes")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["total"])
	first := body["nodes"].([]any)[0].(map[string]any)
	assert.Equal(t, "boom", first["node_type"])
}

func TestFlowsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/flows")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["total"])
	entry := body["flows"].([]any)[0].(map[string]any)
	assert.Equal(t, "hello", entry["name"])
	assert.Equal(t, "hello.yaml", entry["file"])
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ironflow_")
}

func TestWebhookDispatch(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Webhooks = map[string]config.WebhookRoute{
			"hello": {Flow: "hello.yaml"},
		}
	})

	resp := env.postJSON(t, "/webhooks/hello", map[string]any{"payload": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "hello", body["flow_name"])
	assert.Equal(t, "success", body["status"])

	// The run context carries _webhook and lowercased _headers.
	runResp, err := http.Get(env.ts.URL + "/runs/" + body["run_id"].(string))
	require.NoError(t, err)
	run := decodeBody(t, runResp)
	runCtx := run["context"].(map[string]any)
	assert.Equal(t, "hello", runCtx["_webhook"])
	headers := runCtx["_headers"].(map[string]any)
	assert.Equal(t, "application/json", headers["content-type"])
	assert.Equal(t, float64(1), runCtx["payload"])

	// Unknown webhook name.
	resp = env.postJSON(t, "/webhooks/nope", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestWebhookSignature(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Webhooks = map[string]config.WebhookRoute{
			"guarded": {Flow: "hello.yaml", Secret: "literal:s3cret"},
		}
	})

	payload := []byte(`{"n":1}`)

	// No signature.
	resp, err := http.Post(env.ts.URL+"/webhooks/guarded", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Wrong signature.
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/webhooks/guarded", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256=deadbeef")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Valid signature.
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	req, err = http.NewRequest(http.MethodPost, env.ts.URL+"/webhooks/guarded", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+sig)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", decodeBody(t, resp)["status"])
}

func TestWebhookRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Webhooks = map[string]config.WebhookRoute{
			"busy": {Flow: "hello.yaml", RatePerMinute: 1},
		}
	})

	resp := env.postJSON(t, "/webhooks/busy", map[string]any{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/webhooks/busy", map[string]any{})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	resp.Body.Close()
}

func TestMaxBodyLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.MaxBody = 64
	})

	big := map[string]any{"source": strings.Repeat("x", 256)}
	resp := env.postJSON(t, "/flows/run", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	resp.Body.Close()
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/flows/run", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/flows/run")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
