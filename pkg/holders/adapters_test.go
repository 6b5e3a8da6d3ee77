// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/tagscout/tagscout/internal/httpx/httpxtest"
)

func TestWordPressPlugin(t *testing.T) {
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://api.wordpress.org/plugins/info/1.0/akismet.json",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`{"version": "5.3.2", "download_link": "https://downloads.wordpress.org/plugin/akismet.5.3.2.zip"}`)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	w := NewWordPress("akismet", "", client)
	r, err := w.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "5.3.2" {
		t.Fatalf("got %+v, want 5.3.2", r)
	}
	if got := w.DownloadURL(r, false); got != "https://downloads.wordpress.org/plugin/akismet.5.3.2.zip" {
		t.Errorf("DownloadURL = %q", got)
	}
}

func TestWordPressCore(t *testing.T) {
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL: "https://api.wordpress.org/core/version-check/1.7/",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(`{"offers": [
					{"version": "6.8.1", "download": "https://wordpress.org/wordpress-6.8.1.zip"},
					{"version": "6.7.2", "download": "https://wordpress.org/wordpress-6.7.2.zip"}
				]}`)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	w := NewWordPress("wordpress", "", client)
	r, err := w.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "6.8.1" {
		t.Fatalf("got %+v, want 6.8.1", r)
	}
}

func TestHelmChartURLRewrite(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			"https://github.com/acme/charts/blob/main/widget/Chart.yaml",
			"https://raw.githubusercontent.com/acme/charts/main/widget/Chart.yaml",
		},
		{
			"https://example.com/charts/widget",
			"https://example.com/charts/widget/Chart.yaml",
		},
		{
			"https://example.com/charts/widget/Chart.yaml",
			"https://example.com/charts/widget/Chart.yaml",
		},
	}
	for _, tc := range tests {
		if got := ChartURL(tc.in); got != tc.want {
			t.Errorf("ChartURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHelmChartVersion(t *testing.T) {
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://raw.githubusercontent.com/acme/charts/main/widget/Chart.yaml",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body("name: widget\nversion: 0.4.2\nappVersion: 1.8.0\n")},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	h := NewHelmChart("https://github.com/acme/charts/blob/main/widget/Chart.yaml", "", client)
	r, err := h.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "0.4.2" || r.Type != "helm" {
		t.Fatalf("got %+v, want helm 0.4.2", r)
	}
}

func apkIndexArchive(t *testing.T, index string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: "APKINDEX", Mode: 0644, Size: int64(len(index))}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(index)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestAlpinePackage(t *testing.T) {
	index := "C:Q1abc\nP:nginx\nV:1.26.2-r0\n\nC:Q1def\nP:curl\nV:8.9.1-r1\n"
	archive := apkIndexArchive(t, index)
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://dl-cdn.alpinelinux.org/alpine/latest-stable/main/x86_64/APKINDEX.tar.gz",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(string(archive))},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	a := NewAlpine("nginx", "", client)
	r, err := a.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "1.26.2" || r.Type != "source" {
		t.Fatalf("got %+v, want 1.26.2", r)
	}
}

func TestWikipediaInfobox(t *testing.T) {
	page := `<html><body><table class="infobox">
		<tr><th>Developer</th><td>Acme</td></tr>
		<tr><th>Stable release</th><td>7.0.4<span> / 20 May 2025</span></td></tr>
	</table></body></html>`
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://en.wikipedia.org/wiki/MongoDB",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(page)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	w := NewWikipedia("MongoDB", "", client)
	r, err := w.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "7.0.4" || r.Type != "source" {
		t.Fatalf("got %+v, want 7.0.4", r)
	}
}

func TestLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "VERSION")
	if err := os.WriteFile(path, []byte("1.9.3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	l := NewLocal(path, "", noNetwork{})
	r, err := l.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "1.9.3" || r.Type != "source" {
		t.Fatalf("got %+v, want 1.9.3", r)
	}
}

func TestSourceForgeFiles(t *testing.T) {
	rss := `<rss version="2.0"><channel><title>keepass files</title>
		<item><title>/KeePass 2.x/2.45/KeePass-2.45.zip</title><link>https://sourceforge.net/projects/keepass/files/KeePass%202.x/2.45/KeePass-2.45.zip/download</link></item>
		<item><title>/KeePass 2.x/2.44/KeePass-2.44.zip</title><link>https://sourceforge.net/projects/keepass/files/KeePass%202.x/2.44/KeePass-2.44.zip/download</link></item>
	</channel></rss>`
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://sourceforge.net/projects/keepass/rss?path=/&limit=200",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(rss)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	s := NewSourceForge("keepass", "", client)
	r, err := s.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "2.45" || r.Type != "feed" {
		t.Fatalf("got %+v, want 2.45", r)
	}
	want := "https://downloads.sourceforge.net/keepass/KeePass-2.45.zip"
	if got := s.DownloadURL(r, false); got != want {
		t.Errorf("DownloadURL = %q, want %q", got, want)
	}
}

func TestUnauthorizedAPIRejection(t *testing.T) {
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://gitlab.com/api/v4/projects/inkscape%2Finkscape/repository/tags?per_page=100",
				Response: &http.Response{StatusCode: 401, Status: "401 Unauthorized", Body: httpxtest.Body(`{"message":"401 Unauthorized"}`)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	g := NewGitLab("inkscape/inkscape", "", client)
	_, err := g.LatestRelease(context.Background(), false)
	var cred *CredentialsError
	if !errors.As(err, &cred) {
		t.Fatalf("got %v, want credentials error", err)
	}
	if cred.Host != "gitlab.com" {
		t.Errorf("got host %q, want gitlab.com", cred.Host)
	}
}

func TestGiteaFeed(t *testing.T) {
	rss := `<rss version="2.0"><channel><title>releases</title>
		<item><title>v9.0.1</title><link>https://codeberg.org/forgejo/forgejo/releases/tag/v9.0.1</link></item>
	</channel></rss>`
	client := &httpxtest.MockClient{
		Calls: []httpxtest.Call{
			{
				URL:      "https://codeberg.org/forgejo/forgejo/releases.rss",
				Response: &http.Response{StatusCode: 200, Body: httpxtest.Body(rss)},
			},
		},
		URLValidator: httpxtest.NewURLValidator(t),
	}
	g := NewGitea("forgejo/forgejo", "", client)
	r, err := g.LatestRelease(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Version.String() != "9.0.1" {
		t.Fatalf("got %+v, want 9.0.1", r)
	}
}
