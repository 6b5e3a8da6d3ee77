// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package latest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tagscout/tagscout/internal/httpx/httpxtest"
)

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		input     string
		wantRepo  string
		wantMajor string
		wantAt    string
	}{
		{"nginx", "nginx", "", ""},
		{"nginx:1.26", "nginx", "1.26", ""},
		{"https://github.com/acme/widget", "https://github.com/acme/widget", "", ""},
		{"https://github.com/acme/charts/blob/main/widget/Chart.yaml", "https://github.com/acme/charts/blob/main/widget/Chart.yaml", "", "helm_chart"},
	}
	for _, tc := range tests {
		opt := Options{}
		repo, err := NormalizeInput(tc.input, &opt)
		if err != nil {
			t.Errorf("NormalizeInput(%q): %v", tc.input, err)
			continue
		}
		if repo != tc.wantRepo || opt.Major != tc.wantMajor || opt.At != tc.wantAt {
			t.Errorf("NormalizeInput(%q) = %q major=%q at=%q, want %q %q %q",
				tc.input, repo, opt.Major, opt.At, tc.wantRepo, tc.wantMajor, tc.wantAt)
		}
	}
}

func TestNormalizeInputDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yml")
	if err := os.WriteFile(path, []byte("repo: acme/widget\n"), 0644); err != nil {
		t.Fatal(err)
	}
	opt := Options{}
	repo, err := NormalizeInput(path, &opt)
	if err != nil {
		t.Fatal(err)
	}
	if repo != "acme/widget" {
		t.Errorf("got %q, want acme/widget", repo)
	}
}

func TestCacheKey(t *testing.T) {
	base := Options{}
	k1 := cacheKey("acme/widget", &base)
	if k1 != cacheKey("acme/widget", &Options{}) {
		t.Error("cache key not deterministic")
	}
	pre := Options{Pre: true}
	if k1 == cacheKey("acme/widget", &pre) {
		t.Error("pre filter must change the cache key")
	}
	having := ""
	ha := Options{HavingAsset: &having}
	if k1 == cacheKey("acme/widget", &ha) {
		t.Error("having-asset filter must change the cache key")
	}
}

func githubCalls(t *testing.T, version string) []httpxtest.Call {
	t.Helper()
	recent := time.Now().Add(-24 * time.Hour).Format(time.RFC3339)
	atom := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><feed xmlns="http://www.w3.org/2005/Atom"><title>r</title><entry><title>%[1]s</title><link rel="alternate" href="https://github.com/acme/widget/releases/tag/%[1]s"/><updated>%[2]s</updated></entry></feed>`, version, recent)
	return []httpxtest.Call{
		{
			URL:      "https://github.com/acme/widget/releases.atom",
			Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(atom)},
		},
		{
			URL:      "https://api.github.com/repos/acme/widget/releases?per_page=100",
			Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`[]`)},
		},
	}
}

func TestLatestResolvesAndCaches(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)
	dir := t.TempDir()
	client := &httpxtest.MockClient{Calls: githubCalls(t, "v1.2.3"), URLValidator: httpxtest.NewURLValidator(t)}

	opt := Options{UseCache: true, CacheDir: dir, Client: client}
	res, err := Latest(context.Background(), "acme/widget", opt)
	if err != nil {
		t.Fatal(err)
	}
	if res.Release.Version.String() != "1.2.3" || res.Stale {
		t.Fatalf("got %+v", res.Release)
	}
	if res.Release.SourceURL == "" || res.Release.From != "https://github.com/acme/widget" {
		t.Errorf("enrichment fields missing: %+v", res.Release)
	}

	// A second resolution is served from the cache without network access.
	opt.Client = failingClient{}
	res2, err := Latest(context.Background(), "acme/widget", opt)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Release.Version.String() != "1.2.3" || res2.Holder != nil {
		t.Fatalf("expected cache hit, got %+v", res2)
	}
	if res2.Release.Version.Compare(res.Release.Version) != 0 {
		t.Error("cached version does not round-trip")
	}
}

func TestLatestStaleFallback(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)
	dir := t.TempDir()
	client := &httpxtest.MockClient{Calls: githubCalls(t, "v2.0.0"), URLValidator: httpxtest.NewURLValidator(t)}

	opt := Options{UseCache: true, CacheDir: dir, TTL: time.Nanosecond, Client: client}
	if _, err := Latest(context.Background(), "acme/widget", opt); err != nil {
		t.Fatal(err)
	}

	// The entry has expired; a network failure should surface it anyway.
	opt.Client = failingClient{}
	res, err := Latest(context.Background(), "acme/widget", opt)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Stale || res.Release.Version.String() != "2.0.0" {
		t.Fatalf("expected stale result 2.0.0, got %+v", res)
	}
}

func TestLatestKeepsKnownProjectFilters(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)
	clearGitHubTokens(t)
	recent := time.Now().Add(-24 * time.Hour).Format(time.RFC3339)
	atom := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><feed xmlns="http://www.w3.org/2005/Atom"><title>r</title>`+
		`<entry><title>yaf-3.0.0</title><link rel="alternate" href="https://github.com/php/php-src/releases/tag/yaf-3.0.0"/><updated>%[1]s</updated></entry>`+
		`<entry><title>php-8.3.0</title><link rel="alternate" href="https://github.com/php/php-src/releases/tag/php-8.3.0"/><updated>%[1]s</updated></entry>`+
		`</feed>`, recent)
	client := &httpxtest.MockClient{Calls: []httpxtest.Call{
		{
			URL:      "https://github.com/php/php-src/releases.atom",
			Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(atom)},
		},
		{
			URL:      "https://api.github.com/repos/php/php-src/releases?per_page=100",
			Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`[]`)},
		},
	}, URLValidator: httpxtest.NewURLValidator(t)}

	// No filters on the options: the built-in tag filter for the project
	// must still reject the extension tag.
	res, err := Latest(context.Background(), "php", Options{Client: client})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Release.Version.String(); got != "8.3.0" {
		t.Fatalf("got %s, want 8.3.0", got)
	}
	if res.Release.TagName != "php-8.3.0" {
		t.Errorf("got tag %q, want php-8.3.0", res.Release.TagName)
	}
}

func TestLatestNoReleaseFilteredOut(t *testing.T) {
	ResetCache()
	t.Cleanup(ResetCache)
	clearGitHubTokens(t)
	calls := githubCalls(t, "v1.2.3")
	calls = append(calls, httpxtest.Call{
		URL:      "https://api.github.com/repos/acme/widget/tags?per_page=100&page=1",
		Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`[]`)},
	})
	client := &httpxtest.MockClient{Calls: calls, URLValidator: httpxtest.NewURLValidator(t)}
	opt := Options{Only: "nomatch", Client: client}
	_, err := Latest(context.Background(), "acme/widget", opt)
	if err == nil {
		t.Fatal("expected no-release error")
	}
}

func clearGitHubTokens(t *testing.T) {
	t.Helper()
	for _, env := range []string{"LASTVERSION_GITHUB_API_TOKEN", "GITHUB_API_TOKEN", "GITHUB_TOKEN"} {
		t.Setenv(env, "")
	}
}

// failingClient simulates an unreachable network.
type failingClient struct{}

func (failingClient) Do(*http.Request) (*http.Response, error) {
	return nil, &net.DNSError{Err: "no such host", Name: "github.com"}
}
