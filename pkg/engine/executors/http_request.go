package executors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/model"
)

// httpRequestExecutor dispatches an outbound HTTP call. Grounded on the
// teacher's weather client: a plain net/http.Client is the pack's own
// idiomatic baseline for outbound calls, so this leaf stays on it directly
// rather than reaching for a higher-level HTTP client library.
type httpRequestExecutor struct{}

func init() {
	Register("http_request", func(model.Node) (Executor, error) { return httpRequestExecutor{}, nil })
}

func (httpRequestExecutor) Execute(in Inputs) (Outputs, error) {
	cfg, _ := in["config"].(map[string]any)
	nodeID, _ := in["node_id"].(string)

	method, _ := cfg["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	rawURL, _ := cfg["url"].(string)
	if rawURL == "" {
		return nil, &errs.NodeExecutionFailed{NodeID: nodeID, Cause: fmt.Errorf("http_request: missing url")}
	}

	if query, ok := cfg["query"].(map[string]any); ok && len(query) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, &errs.NodeExecutionFailed{NodeID: nodeID, Cause: err}
		}
		q := u.Query()
		for k, v := range query {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	var body io.Reader
	if raw, ok := cfg["body"]; ok && raw != nil {
		switch b := raw.(type) {
		case string:
			body = strings.NewReader(b)
		default:
			encoded, err := json.Marshal(b)
			if err != nil {
				return nil, &errs.NodeExecutionFailed{NodeID: nodeID, Cause: err}
			}
			body = bytes.NewReader(encoded)
		}
	}

	timeoutSeconds := 80.0
	if t, ok := cfg["timeout"].(float64); ok && t > 0 {
		timeoutSeconds = t
	}
	client := &http.Client{Timeout: time.Duration(timeoutSeconds * float64(time.Second))}

	req, err := http.NewRequest(method, rawURL, body)
	if err != nil {
		return nil, &errs.NodeExecutionFailed{NodeID: nodeID, Cause: err}
	}
	if headers, ok := cfg["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}

	slog.Debug("http_request dispatching", "node_id", nodeID, "method", method, "url", rawURL)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &errs.NodeExecutionFailed{NodeID: nodeID, Cause: fmt.Errorf("http_request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.NodeExecutionFailed{NodeID: nodeID, Cause: fmt.Errorf("failed to read response: %w", err)}
	}

	respHeaders := map[string]any{}
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	var result any
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		if err := json.Unmarshal(respBody, &result); err != nil {
			result = string(respBody)
		}
	} else {
		result = string(respBody)
	}

	out := Outputs{
		"status_code": resp.StatusCode,
		"result":      result,
		"headers":     respHeaders,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &errs.NodeExecutionFailed{
			NodeID: nodeID,
			Cause:  fmt.Errorf("http_request: non-2xx status %d", resp.StatusCode),
		}
	}

	return out, nil
}
