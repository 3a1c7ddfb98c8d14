package tools

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

	"hugchat/internal/domain/models"
)

const (
	configToolTimeout     = 20 * time.Second
	configToolMaxBodySize = 50 * 1024
)

// ConfigToolRunner executes stored community tool specs: one HTTP call
// per invocation, with arguments interpolated into the URL for GET and
// sent as a JSON body otherwise. Target URLs get the same private
// network sandbox as the fetch tool.
type ConfigToolRunner struct {
	httpClient *http.Client
}

// NewConfigToolRunner creates a runner with the default client.
func NewConfigToolRunner() *ConfigToolRunner {
	return &ConfigToolRunner{
		httpClient: &http.Client{Timeout: configToolTimeout},
	}
}

// Run executes one tool spec with the model's arguments.
func (r *ConfigToolRunner) Run(ctx context.Context, spec *models.ToolSpec, args map[string]interface{}) (interface{}, error) {
	if err := validateArgs(spec, args); err != nil {
		return nil, err
	}

	method := strings.ToUpper(spec.Endpoint.Method)
	if method == "" {
		method = http.MethodGet
	}

	target := spec.Endpoint.URL
	var body io.Reader
	if method == http.MethodGet {
		target = interpolateURL(target, args)
	} else {
		payload, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode arguments: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid tool url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	local, err := IsURLLocal(parsed)
	if err != nil {
		return nil, fmt.Errorf("could not resolve %s: %w", parsed.Hostname(), err)
	}
	if local {
		return nil, fmt.Errorf("refusing to call local or private address %s", parsed.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, method, parsed.String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range spec.Endpoint.Header {
		req.Header.Set(key, value)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, configToolMaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read tool response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tool returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	// pass JSON responses through structured, anything else as text
	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		return decoded, nil
	}
	return string(raw), nil
}

func validateArgs(spec *models.ToolSpec, args map[string]interface{}) error {
	for _, input := range spec.Inputs {
		if !input.Required {
			continue
		}
		if _, ok := args[input.Name]; !ok {
			return fmt.Errorf("missing required parameter: %s", input.Name)
		}
	}
	return nil
}

// interpolateURL replaces {name} placeholders with URL-escaped argument
// values.
func interpolateURL(target string, args map[string]interface{}) string {
	for name, value := range args {
		placeholder := "{" + name + "}"
		target = strings.ReplaceAll(target, placeholder, url.QueryEscape(fmt.Sprint(value)))
	}
	return target
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
