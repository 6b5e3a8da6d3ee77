// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"os/exec"
	"strings"

	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
)

// SystemTraits configures the installed-package adapter.
var SystemTraits = &Traits{
	Name: "system",
}

// System reports the version of a package installed on this machine,
// querying rpm then dpkg.
type System struct {
	base
}

var _ Holder = &System{}

func NewSystem(repo, hostname string, client httpx.BasicClient) *System {
	return &System{base: newBase(SystemTraits, repo, hostname, client)}
}

var systemQueries = [][]string{
	{"rpm", "-q", "--queryformat", "%{VERSION}"},
	{"dpkg-query", "-W", "-f", "${Version}"},
}

func (s *System) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	for _, q := range systemQueries {
		if _, err := exec.LookPath(q[0]); err != nil {
			continue
		}
		out, err := exec.CommandContext(ctx, q[0], append(q[1:], s.repo)...).Output()
		if err != nil {
			logx.Debugf("%s query: %v", q[0], err)
			continue
		}
		tag := strings.TrimSpace(string(out))
		// Debian versions carry epoch and revision decorations.
		if i := strings.Index(tag, ":"); i >= 0 {
			tag = tag[i+1:]
		}
		if i := strings.Index(tag, "-"); i >= 0 {
			tag = tag[:i]
		}
		if v := s.SanitizeVersion(tag, preOK); v != nil {
			return &Release{Version: v, TagName: tag, Type: "source"}, nil
		}
	}
	return nil, &BadProjectError{Project: s.repo}
}

func (s *System) DownloadURL(r *Release, shortURLs bool) string { return "" }
