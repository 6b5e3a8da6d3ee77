// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package uri

import (
	"testing"
)

func TestFindForgeRepo(t *testing.T) {
	tests := []struct {
		input       string
		wantAdapter string
		wantRepo    string
		wantOK      bool
	}{
		{"", "", "", false},
		{"foobar", "", "", false},
		{"github.com/user/repo", "github", "user/repo", true},
		{"github:user/repo", "github", "user/repo", true},
		{"https://github.com/org/project.git", "github", "org/project", true},
		{"http://github.com/org/project/tree/branch", "github", "org/project", true},
		{"GitLab.com/Group/Repo", "gitlab", "Group/Repo", true},
		{"https://bitbucket.org/team/repo", "bitbucket", "team/repo", true},
	}
	for _, test := range tests {
		adapter, repo, ok := FindForgeRepo(test.input)
		if adapter != test.wantAdapter || repo != test.wantRepo || ok != test.wantOK {
			t.Errorf("FindForgeRepo(%s) = %s, %s, %v, expected %s, %s, %v",
				test.input, adapter, repo, ok, test.wantAdapter, test.wantRepo, test.wantOK)
		}
	}
}

func TestFindGitHubRepo(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		found    bool
	}{
		{"", "", false},
		{"no links here", "", false},
		{`<a href="https://github.com/nginx/nginx">source</a>`, "nginx/nginx", true},
		{"git clone https://github.com/org/project.git", "org/project", true},
	}
	for _, test := range tests {
		actual, found := FindGitHubRepo(test.input)
		if actual != test.expected || found != test.found {
			t.Errorf("FindGitHubRepo(%s) = %s, %v, expected %s, %v", test.input, actual, found, test.expected, test.found)
		}
	}
}

func TestCanonicalizeRepoURI(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"", "", true},    // Empty input
		{"foo", "", true}, // Invalid URL
		{"github.com/user/repo", "https://github.com/user/repo", false},                        // GitHub, basic
		{"github:user/repo", "https://github.com/user/repo", false},                            // GitHub, alt format
		{"https://github.com/org/project.git", "https://github.com/org/project", false},        // GitHub, with .git
		{"http://github.com/org/project/tree/branch", "https://github.com/org/project", false}, // GitHub, with path
		{"GitLab.com/Group/Repo", "https://gitlab.com/group/repo", false},                      // GitLab, case insensitive
		{"https://bitbucket.org/team/repo", "https://bitbucket.org/team/repo", false},          // Bitbucket
		{"github.com/user/..", "", true},                                                       // Invalid repo name
		{"github.com/user/.", "", true},                                                        // Invalid repo name
		{"https://foo.com", "https://foo.com", false},                                          // Unknown URL
		{"https://foo.com/path.git", "https://foo.com/path.git", false},                        // Unknown URL, retain .git
		{"https://foo.com/this/path?this=query", "https://foo.com/this/path", false},           // Unknown URL, strip query
		{"https://Foo.com/this/path", "https://foo.com/this/path", false},                      // Unknown URL, case insensitive domain
		{"https://Foo.com/This/Path", "https://foo.com/This/Path", false},                      // Unknown URL, case sensitive
		{"ssh://git@foo.com/path", "", true},                                                   // SSH URL
	}

	for _, test := range tests {
		actual, err := CanonicalizeRepoURI(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("CanonicalizeRepoURI(%s) error = %v, wantErr %v", test.input, err, test.wantErr)
		}
		if actual != test.expected {
			t.Errorf("CanonicalizeRepoURI(%s) = %s, expected %s", test.input, actual, test.expected)
		}
	}
}
