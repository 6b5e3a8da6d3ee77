// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package uri recognizes forge repository references inside free-form text
// and URLs.
package uri

import (
	"net/url"
	re "regexp"
	"strings"

	"github.com/pkg/errors"
)

// forges lists the recognizable hosting platforms, most common first. The
// adapter names match the resolver's forceable adapter keys.
var forges = []struct {
	adapter string
	host    string
	re      *re.Regexp
}{
	{"github", "github.com", re.MustCompile(`(?i)\bgithub(\.com)?[:/]([\w-]+/[\w-\.]+)`)},
	{"gitlab", "gitlab.com", re.MustCompile(`(?i)\bgitlab(\.com)?[:/]([\w-]+/[\w-\.]+)`)},
	{"bitbucket", "bitbucket.org", re.MustCompile(`(?i)\bbitbucket(\.org)?[:/]([\w-]+/[\w-\.]+)`)},
}

var errUnsupportedRepo = errors.Errorf("unsupported repo type")

// FindForgeRepo scans text for a link to a known forge and returns the
// adapter name and the owner/name repo reference.
func FindForgeRepo(text string) (adapter, repo string, ok bool) {
	for _, f := range forges {
		if m := f.re.FindStringSubmatch(text); m != nil {
			return f.adapter, strings.TrimSuffix(m[2], ".git"), true
		}
	}
	return "", "", false
}

// FindGitHubRepo extracts an owner/name GitHub reference from free-form
// text, such as a project homepage.
func FindGitHubRepo(text string) (string, bool) {
	m := forges[0].re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSuffix(m[2], ".git"), true
}

// CanonicalizeRepoURI turns any recognizable repo reference (scp-style git
// remotes included) into a canonical HTTPS URL.
func CanonicalizeRepoURI(uri string) (string, error) {
	if uri == "" {
		return "", errors.New("no repo URL")
	}
	repo := uri
	// Case folding is safe on these platforms: repo slugs are
	// case-insensitive there.
	for _, f := range forges {
		if m := f.re.FindString(uri); m != "" {
			repo = "//" + f.host + "/" + strings.TrimSuffix(strings.ToLower(m[strings.IndexAny(m, ":/")+1:]), ".git")
			break
		}
	}
	u, err := url.Parse(repo)
	if err != nil || u.Host == "" || u.User.String() != "" {
		return "", errors.Wrap(errUnsupportedRepo, uri)
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	if strings.HasSuffix(u.Path, "/.") || strings.HasSuffix(u.Path, "/..") {
		return "", errors.Wrap(errUnsupportedRepo, uri)
	}
	u.RawQuery = ""
	return u.String(), nil
}

// SmellsLikeARepo reports whether the uri matches a known forge pattern.
func SmellsLikeARepo(uri string) bool {
	_, _, ok := FindForgeRepo(uri)
	return ok
}
