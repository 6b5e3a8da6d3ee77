// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tagscout/tagscout/pkg/version"
)

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		filter string
		tag    string
		want   bool
	}{
		{"beta", "v1.0-beta1", true},
		{"beta", "v1.0", false},
		{"~^php-", "php-8.3.1", true},
		{"~^php-", "8.3.1", false},
		{"!beta", "v1.0", true},
		{"!beta", "v1.0-beta1", false},
		{"!~^php-", "8.3.1", true},
		{"!~^php-", "php-8.3.1", false},
		{"~[", "anything", false}, // invalid regex never matches
	}
	for _, tc := range tests {
		if got := MatchesFilter(tc.filter, tc.tag); got != tc.want {
			t.Errorf("MatchesFilter(%q, %q) = %v, want %v", tc.filter, tc.tag, got, tc.want)
		}
	}
}

func TestTraitsMatchesHostname(t *testing.T) {
	tests := []struct {
		hostname string
		want     bool
	}{
		{"github.com", true},
		{"github.com:8443", true},
		{"gist.github.com", true},
		{"gitlab.com", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := GitHubTraits.MatchesHostname(tc.hostname); got != tc.want {
			t.Errorf("MatchesHostname(%q) = %v, want %v", tc.hostname, got, tc.want)
		}
	}
	if !MercurialTraits.MatchesHostname("hg.nginx.org") {
		t.Error("expected hg. subdomain to match the Mercurial adapter")
	}
}

func TestTraitsBaseRepo(t *testing.T) {
	tests := []struct {
		traits *Traits
		arg    string
		want   string
	}{
		{GitHubTraits, "nginx/nginx", "nginx/nginx"},
		{GitHubTraits, "nginx/nginx/releases/latest", "nginx/nginx"},
		{SourceForgeTraits, "projects/keepass/files", "keepass"},
		{PyPITraits, "project/requests/", "requests"},
	}
	for _, tc := range tests {
		if got := tc.traits.BaseRepo(tc.arg); got != tc.want {
			t.Errorf("BaseRepo(%q) = %q, want %q", tc.arg, got, tc.want)
		}
	}
}

func TestSanitizeVersionFilters(t *testing.T) {
	b := newBase(GitHubTraits, "acme/widget", "", &noNetwork{})

	if v := b.SanitizeVersion("v1.2.3", false); v == nil || v.String() != "1.2.3" {
		t.Fatalf("plain tag: got %v", v)
	}
	if v := b.SanitizeVersion("v2.0-rc1", false); v != nil {
		t.Errorf("pre-release admitted without pre_ok: %v", v)
	}
	if v := b.SanitizeVersion("v2.0-rc1", true); v == nil {
		t.Error("pre-release rejected with pre_ok")
	}

	b.filters.Only = "~^v"
	if v := b.SanitizeVersion("1.2.3", false); v != nil {
		t.Errorf("only filter not applied: %v", v)
	}
	b.filters.Only = ""

	b.filters.Exclude = "dontuse"
	if v := b.SanitizeVersion("v1.9-dontuse", true); v != nil {
		t.Errorf("exclude filter not applied: %v", v)
	}
	b.filters.Exclude = ""

	b.filters.Even = true
	if v := b.SanitizeVersion("1.3.0", false); v != nil {
		t.Errorf("odd minor admitted with even filter: %v", v)
	}
	if v := b.SanitizeVersion("1.4.0", false); v == nil {
		t.Error("even minor rejected with even filter")
	}
	b.filters.Even = false

	b.filters.Major = "2"
	if v := b.SanitizeVersion("v3.0.1", false); v != nil {
		t.Errorf("major filter not applied: %v", v)
	}
	if v := b.SanitizeVersion("v2.0.1", false); v == nil {
		t.Error("matching major rejected")
	}
	b.filters.Major = "2.4"
	if v := b.SanitizeVersion("v2.4.1", false); v == nil {
		t.Error("major prefix rejected")
	}
	b.filters.Major = ""
}

func TestSanitizeVersionBranches(t *testing.T) {
	b := newBase(GitHubTraits, "nginx/nginx", "", &noNetwork{})
	b.filters.Branches = map[string]string{"stable": `\.\d?[02468]\.`}
	b.filters.Major = "stable"
	if v := b.SanitizeVersion("release-1.27.1", false); v != nil {
		t.Errorf("mainline tag admitted on stable branch: %v", v)
	}
	if v := b.SanitizeVersion("release-1.26.2", false); v == nil {
		t.Error("stable tag rejected on stable branch")
	}
}

func TestDownloadURLTemplate(t *testing.T) {
	b := newBase(GitHubTraits, "acme/widget", "", &noNetwork{})
	r := &Release{Version: version.MustNew("v1.2.3"), TagName: "v1.2.3"}
	want := "https://github.com/acme/widget/archive/v1.2.3/widget-v1.2.3.tar.gz"
	if got := b.DownloadURL(r, false); got != want {
		t.Errorf("DownloadURL = %q, want %q", got, want)
	}
	want = "https://github.com/acme/widget/archive/v1.2.3.tar.gz"
	if got := b.DownloadURL(r, true); got != want {
		t.Errorf("short DownloadURL = %q, want %q", got, want)
	}
}

func TestMatchesHavingAsset(t *testing.T) {
	b := newBase(GitHubTraits, "acme/widget", "", &noNetwork{})
	assets := []Asset{{Name: "widget-linux-amd64.tar.gz", Label: "Linux build"}}

	if !b.matchesHavingAsset(assets) {
		t.Error("nil filter should accept anything")
	}

	any := ""
	b.filters.HavingAsset = &any
	if !b.matchesHavingAsset(assets) {
		t.Error("empty filter should accept non-empty assets")
	}
	if b.matchesHavingAsset(nil) {
		t.Error("empty filter should reject empty assets")
	}

	named := "Linux build"
	b.filters.HavingAsset = &named
	if !b.matchesHavingAsset(assets) {
		t.Error("label match rejected")
	}
	named = "windows.zip"
	if b.matchesHavingAsset(assets) {
		t.Error("non-matching name accepted")
	}

	pattern := "~linux-amd64"
	b.filters.HavingAsset = &pattern
	if !b.matchesHavingAsset(assets) {
		t.Error("regex match rejected")
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(&BadProjectError{Project: "x"}) {
		t.Error("bad project must not be transient")
	}
	if !IsTransient(&CredentialsError{Host: "github.com", Reason: "403"}) {
		t.Error("credentials errors trigger the stale-cache fallback")
	}
	if IsTransient(nil) {
		t.Error("nil is not an error")
	}
}

func TestReleaseAssetsSelection(t *testing.T) {
	b := newBase(GitHubTraits, "acme/widget", "", &noNetwork{})
	h := &GitHub{base: b}
	r := &Release{
		Version: version.MustNew("v1.0.0"),
		TagName: "v1.0.0",
		Assets: []Asset{
			{Name: "widget-1.0.0-windows.exe", URL: "https://dl/win"},
			{Name: "widget-1.0.0-linux-x86_64.tar.gz", URL: "https://dl/linux"},
		},
	}
	urls, err := h.Assets(context.Background(), r, false, "linux")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"https://dl/linux"}, urls); diff != "" {
		t.Errorf("filtered assets mismatch (-want +got):\n%s", diff)
	}
}

// noNetwork fails any test that unexpectedly reaches for the network.
type noNetwork struct{}

func (noNetwork) Do(*http.Request) (*http.Response, error) {
	panic("unexpected network call")
}
