package tools

import (
	"context"
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestIsURLLocal(t *testing.T) {
	cases := []struct {
		name  string
		url   string
		local bool
	}{
		{"loopback v4", "http://127.0.0.1/", true},
		{"loopback v4 high", "http://127.8.9.10:8080/x", true},
		{"loopback v6", "http://[::1]/", true},
		{"localhost", "http://localhost:3000/", true},
		{"localhost mixed case", "http://LocalHost/", true},
		{"private 10", "http://10.0.0.5/", true},
		{"private 172.16", "http://172.16.1.1/", true},
		{"private 192.168", "http://192.168.1.10/", true},
		{"link local", "http://169.254.169.254/latest/meta-data", true},
		{"unspecified", "http://0.0.0.0/", true},
		{"empty host", "http:///path", true},
		{"public v4", "http://93.184.216.34/", false},
		{"public v6", "http://[2606:2800:220:1:248:1893:25c8:1946]/", false},
	}

	for _, tc := range cases {
		got, err := IsURLLocal(mustParse(t, tc.url))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
			continue
		}
		if got != tc.local {
			t.Errorf("%s: IsURLLocal(%s) = %v, want %v", tc.name, tc.url, got, tc.local)
		}
	}
}

func TestFetchTool_RefusesLocalTargets(t *testing.T) {
	tool := NewFetchTool()

	for _, raw := range []string{
		"http://127.0.0.1:8080/admin",
		"http://localhost/secrets",
		"http://169.254.169.254/latest/meta-data",
		"http://192.168.0.1/router",
	} {
		if _, err := tool.Execute(context.Background(), map[string]interface{}{"url": raw}); err == nil {
			t.Errorf("fetch of %s succeeded, want refusal", raw)
		}
	}
}

func TestFetchTool_RejectsBadInput(t *testing.T) {
	tool := NewFetchTool()

	cases := []struct {
		name  string
		input map[string]interface{}
	}{
		{"missing url", map[string]interface{}{}},
		{"empty url", map[string]interface{}{"url": "  "}},
		{"non-string url", map[string]interface{}{"url": 42}},
		{"file scheme", map[string]interface{}{"url": "file:///etc/passwd"}},
		{"ftp scheme", map[string]interface{}{"url": "ftp://example.com/x"}},
	}

	for _, tc := range cases {
		if _, err := tool.Execute(context.Background(), tc.input); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}

func TestFetchTool_Definition(t *testing.T) {
	tool := NewFetchTool()
	def := tool.Definition()
	if def.Name != "fetchUrl" {
		t.Errorf("name = %q, want fetchUrl", def.Name)
	}
	if def.Parameters["type"] != "object" {
		t.Errorf("parameters type = %v, want object", def.Parameters["type"])
	}
}

func TestGalleryTool_Execute(t *testing.T) {
	tool := NewGalleryTool()

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"images":  []interface{}{"https://img.example/a.png", "https://img.example/b.png"},
		"caption": "Two images",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	payload, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want map", result)
	}
	if payload["display"] != "gallery" {
		t.Errorf("display = %v, want gallery", payload["display"])
	}
	images, ok := payload["images"].([]string)
	if !ok || len(images) != 2 {
		t.Errorf("images = %v, want 2 entries", payload["images"])
	}
	if payload["caption"] != "Two images" {
		t.Errorf("caption = %v", payload["caption"])
	}
}

func TestGalleryTool_RejectsBadInput(t *testing.T) {
	tool := NewGalleryTool()

	cases := []struct {
		name  string
		input map[string]interface{}
	}{
		{"missing images", map[string]interface{}{}},
		{"empty images", map[string]interface{}{"images": []interface{}{}}},
		{"non-string entry", map[string]interface{}{"images": []interface{}{"ok", 7}}},
		{"empty string entry", map[string]interface{}{"images": []interface{}{""}}},
	}

	for _, tc := range cases {
		if _, err := tool.Execute(context.Background(), tc.input); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}
