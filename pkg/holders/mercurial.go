// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"

	"github.com/tagscout/tagscout/internal/httpx"
)

// MercurialTraits configures the hgweb adapter.
var MercurialTraits = &Traits{
	Name:               "hg",
	SubdomainIndicator: "hg",
	ReleaseURLFormat:   "https://{hostname}/{repo}/archive/{tag}.{ext}",
}

// Mercurial resolves releases from an hgweb instance's tag feed.
type Mercurial struct {
	base
}

var _ Holder = &Mercurial{}

func NewMercurial(repo, hostname string, client httpx.BasicClient) *Mercurial {
	return &Mercurial{base: newBase(MercurialTraits, repo, hostname, client)}
}

func (m *Mercurial) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	url := "https://" + m.hostname + "/" + m.repo + "/atom-tags"
	return feedLatest(ctx, m.client, url, preOK, &m.base, feedEntryTitle)
}
