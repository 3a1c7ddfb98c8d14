package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hugchat/internal/llm"
)

const (
	fetchTimeout     = 15 * time.Second
	fetchMaxBodySize = 50 * 1024 // characters returned to the model
)

// FetchTool retrieves the content of a public URL for the model.
// Requests to local or private network addresses are refused so the tool
// cannot be used to probe the server's own network.
type FetchTool struct {
	httpClient *http.Client
}

// NewFetchTool creates a fetch tool with the default sandboxed client.
func NewFetchTool() *FetchTool {
	return &FetchTool{
		httpClient: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				// redirects are re-validated so a public URL cannot
				// bounce into the private network
				local, err := IsURLLocal(req.URL)
				if err != nil {
					return err
				}
				if local {
					return errors.New("redirect to a private address refused")
				}
				return nil
			},
		},
	}
}

func (t *FetchTool) Name() string { return "fetchUrl" }

func (t *FetchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.Name(),
		Description: "Fetch the text content of a public web page by URL.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The absolute http(s) URL to fetch",
				},
			},
			"required": []string{"url"},
		},
	}
}

func (t *FetchTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	raw, ok := input["url"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errors.New("missing required parameter: url (string)")
	}

	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	local, err := IsURLLocal(parsed)
	if err != nil {
		return nil, fmt.Errorf("could not resolve %s: %w", parsed.Hostname(), err)
	}
	if local {
		return nil, fmt.Errorf("refusing to fetch local or private address %s", parsed.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "hugchat-fetch/1.0")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	truncated := false
	if len(body) > fetchMaxBodySize {
		body = body[:fetchMaxBodySize]
		truncated = true
	}

	return map[string]any{
		"url":       parsed.String(),
		"content":   string(body),
		"truncated": truncated,
	}, nil
}

// IsURLLocal reports whether every address the URL's host resolves to is
// loopback, private, link-local or otherwise non-public. Resolution
// failures are returned as errors rather than treated as public.
func IsURLLocal(u *url.URL) (bool, error) {
	host := u.Hostname()
	if host == "" {
		return true, nil
	}
	if strings.EqualFold(host, "localhost") {
		return true, nil
	}

	if ip := net.ParseIP(host); ip != nil {
		return isIPLocal(ip), nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return false, err
	}
	for _, ip := range ips {
		if isIPLocal(ip) {
			return true, nil
		}
	}
	return false, nil
}

func isIPLocal(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
