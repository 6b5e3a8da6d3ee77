// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"strings"

	"github.com/tagscout/tagscout/internal/httpx"
)

// GiteaTraits configures the Gitea adapter, which also serves Codeberg and
// self-hosted Forgejo instances.
var GiteaTraits = &Traits{
	Name:              "gitea",
	DefaultHostname:   "codeberg.org",
	CanBeSelfHosted:   true,
	RepoURLComponents: 2,
	ReleaseURLFormat:  "https://{hostname}/{repo}/archive/{tag}.{ext}",
	TokenEnv:          []string{"GITEA_API_TOKEN"},
	TokenScheme:       "token",
}

// Gitea resolves releases from a Gitea-compatible forge's release feed.
type Gitea struct {
	base
}

var _ Holder = &Gitea{}
var _ InstanceProber = &Gitea{}

func NewGitea(repo, hostname string, client httpx.BasicClient) *Gitea {
	return &Gitea{base: newBase(GiteaTraits, repo, hostname, client)}
}

// IsInstance sniffs a self-hosted Gitea by looking for the releases feed
// link on the project page.
func (g *Gitea) IsInstance(ctx context.Context) bool {
	body, err := getBytes(ctx, g.client, g.CanonicalLink())
	if err != nil {
		return false
	}
	return strings.Contains(string(body), "/releases.rss") ||
		strings.Contains(string(body), "Powered by Gitea") ||
		strings.Contains(string(body), "Forgejo")
}

func (g *Gitea) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	url := "https://" + g.hostname + "/" + g.repo + "/releases.rss"
	ret, err := feedLatest(ctx, g.client, url, preOK, &g.base, feedEntryLinkTag)
	if err != nil || ret != nil {
		return ret, err
	}
	// Projects without formal releases still expose the tag feed.
	url = "https://" + g.hostname + "/" + g.repo + "/tags.rss"
	return feedLatest(ctx, g.client, url, preOK, &g.base, feedEntryLinkTag)
}
