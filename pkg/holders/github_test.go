// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/tagscout/tagscout/internal/cache"
	"github.com/tagscout/tagscout/internal/httpx/httpxtest"
	"github.com/tagscout/tagscout/pkg/version"
)

type fakeNames struct {
	m map[string][]byte
}

func (f *fakeNames) GetBytes(key string) ([]byte, error) {
	if v, ok := f.m[key]; ok {
		return v, nil
	}
	return nil, cache.ErrNotExist
}

func (f *fakeNames) SetBytes(key string, val []byte, ttl time.Duration) error {
	if f.m == nil {
		f.m = make(map[string][]byte)
	}
	f.m[key] = val
	return nil
}

func atomBody(entries ...[2]string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><feed xmlns="http://www.w3.org/2005/Atom"><title>Release notes</title>`
	for _, e := range entries {
		body += fmt.Sprintf(`<entry><title>%[1]s</title><link rel="alternate" href="https://github.com/acme/widget/releases/tag/%[1]s"/><updated>%[2]s</updated></entry>`, e[0], e[1])
	}
	return body + `</feed>`
}

func clearTokens(t *testing.T) {
	t.Helper()
	for _, env := range GitHubTraits.TokenEnv {
		t.Setenv(env, "")
	}
}

func TestGitHubFeedWithFormalRelease(t *testing.T) {
	clearTokens(t)
	recent := time.Now().Add(-48 * time.Hour).Format(time.RFC3339)
	older := time.Now().Add(-96 * time.Hour).Format(time.RFC3339)
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://github.com/acme/widget/releases.atom",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(atomBody([2]string{"v1.2.3", recent}, [2]string{"v1.2.2", older}))},
			},
			{
				URL: "https://api.github.com/repos/acme/widget/releases?per_page=100",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`[
					{"tag_name": "v1.2.3", "created_at": "` + recent + `", "assets": [{"name": "widget.tar.gz", "browser_download_url": "https://dl/widget.tar.gz"}], "body": "notes"}
				]`)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	g := NewGitHub("acme/widget", "", client, nil)
	r, err := g.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "1.2.3" {
		t.Fatalf("got %+v, want 1.2.3", r)
	}
	if r.Type != "release" || len(r.Assets) != 1 || r.Body != "notes" {
		t.Errorf("formal release data not applied: %+v", r)
	}
	if client.CallCount() != 2 {
		t.Errorf("expected the fresh feed result to short-circuit, made %d calls", client.CallCount())
	}
}

func TestGitHubRenamedRepo(t *testing.T) {
	clearTokens(t)
	recent := time.Now().Add(-24 * time.Hour).Format(time.RFC3339)
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://github.com/acme/widget/releases.atom",
				Response: &http.Response{StatusCode: 404, Body: httpxtest.Body("")},
			},
			{
				URL:      "https://api.github.com/repos/acme/widget",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`{"full_name": "acme/gadget"}`)},
			},
			{
				URL:      "https://github.com/acme/gadget/releases.atom",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(atomBody([2]string{"v2.0.0", recent}))},
			},
			{
				URL:      "https://api.github.com/repos/acme/gadget/releases?per_page=100",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`[]`)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	g := NewGitHub("acme/widget", "", client, nil)
	r, err := g.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "2.0.0" || r.Type != "feed" {
		t.Fatalf("got %+v, want feed release 2.0.0", r)
	}
	if g.Repo() != "acme/gadget" {
		t.Errorf("repo not updated after rename, got %s", g.Repo())
	}
}

func TestGitHubFormalPassSkipsDraftsAndPrereleases(t *testing.T) {
	clearTokens(t)
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://github.com/acme/widget/releases.atom",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(atomBody())},
			},
			{
				URL: "https://api.github.com/repos/acme/widget/releases?per_page=100",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`[
					{"tag_name": "v2.0.0", "draft": true},
					{"tag_name": "v1.9.0-rc1", "prerelease": true},
					{"tag_name": "v1.5.0", "created_at": "2020-01-01T00:00:00Z"}
				]`)},
			},
			{
				URL:      "https://api.github.com/repos/acme/widget/tags?per_page=100&page=1",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`[]`)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	g := NewGitHub("acme/widget", "", client, nil)
	r, err := g.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "1.5.0" {
		t.Fatalf("got %+v, want 1.5.0", r)
	}
}

func TestGitHubOneWordResolution(t *testing.T) {
	clearTokens(t)
	recent := time.Now().Add(-24 * time.Hour).Format(time.RFC3339)
	names := &fakeNames{}
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://github.com/widget/widget/releases.atom",
				Response: &http.Response{StatusCode: 404, Body: httpxtest.Body("")},
			},
			{
				URL:      "https://api.github.com/search/repositories?q=widget+in%3Aname&sort=stars&per_page=1",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`{"items": [{"full_name": "acme/widget"}]}`)},
			},
			{
				URL:      "https://github.com/acme/widget/releases.atom",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(atomBody([2]string{"v3.1.4", recent}))},
			},
			{
				URL:      "https://api.github.com/repos/acme/widget/releases?per_page=100",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`[]`)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	g := NewGitHub("widget", "", client, names)
	r, err := g.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "3.1.4" {
		t.Fatalf("got %+v, want 3.1.4", r)
	}
	if string(names.m["github-name:widget"]) != "acme/widget" {
		t.Errorf("resolution not cached: %q", names.m["github-name:widget"])
	}
}

func TestGitHubOneWordNegativeCache(t *testing.T) {
	clearTokens(t)
	names := &fakeNames{m: map[string][]byte{"github-name:nosuch": nil}}
	g := NewGitHub("nosuch", "", noNetwork{}, names)
	_, err := g.LatestRelease(context.Background(), false)
	var bad *BadProjectError
	if !errors.As(err, &bad) {
		t.Fatalf("want BadProjectError, got %v", err)
	}
}

func TestGitHubHavingAssetRejectsBareTag(t *testing.T) {
	clearTokens(t)
	recent := time.Now().Add(-24 * time.Hour).Format(time.RFC3339)
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://github.com/acme/widget/releases.atom",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(atomBody([2]string{"v1.0.0", recent}))},
			},
			{
				URL:      "https://api.github.com/repos/acme/widget/releases?per_page=100",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`[{"tag_name": "v1.0.0", "assets": []}]`)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	g := NewGitHub("acme/widget", "", client, nil)
	want := ""
	g.Filters().HavingAsset = &want
	r, err := g.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatalf("release without assets accepted under having-asset: %+v", r)
	}
}

func TestBetter(t *testing.T) {
	now := time.Now()
	v1 := version.MustNew("1.0.0")
	v2 := version.MustNew("2.0.0")
	ret := &Release{Version: v2, TagDate: now}
	if better(ret, v1, now) {
		t.Error("older version with same date should not win")
	}
	if !better(ret, v1, now.Add(2*time.Hour)) {
		t.Error("a tag over an hour newer should win")
	}
	if !better(nil, v1, time.Time{}) {
		t.Error("anything beats nothing")
	}
}

func TestTagFromLink(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://github.com/acme/widget/releases/tag/v1.2.3", "v1.2.3"},
		{"https://github.com/acme/widget/releases/tag/v1.2.3/", "v1.2.3"},
		{"https://github.com/acme/widget/releases/tag/v1.2.3%2Bbuild", "v1.2.3+build"},
	}
	for _, tc := range tests {
		if got := tagFromLink(tc.link); got != tc.want {
			t.Errorf("tagFromLink(%q) = %q, want %q", tc.link, got, tc.want)
		}
	}
}
