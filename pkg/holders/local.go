// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"os"
	"strings"

	"github.com/tagscout/tagscout/internal/httpx"
)

// LocalTraits configures the local-file adapter.
var LocalTraits = &Traits{
	Name: "local",
}

// Local reads a version string out of a file on disk, e.g. a VERSION file
// maintained next to a deployment.
type Local struct {
	base
}

var _ Holder = &Local{}

func NewLocal(repo, hostname string, client httpx.BasicClient) *Local {
	return &Local{base: newBase(LocalTraits, repo, hostname, client)}
}

func (l *Local) CanonicalLink() string { return l.repo }

func (l *Local) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	b, err := os.ReadFile(l.repo)
	if err != nil {
		return nil, &BadProjectError{Project: l.repo}
	}
	tag := strings.TrimSpace(string(b))
	v := l.SanitizeVersion(tag, preOK)
	if v == nil {
		return nil, nil
	}
	return &Release{Version: v, TagName: tag, Type: "source"}, nil
}

func (l *Local) DownloadURL(r *Release, shortURLs bool) string { return "" }
