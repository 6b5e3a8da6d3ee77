// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"strings"

	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
	"github.com/tagscout/tagscout/pkg/feed"
)

// SourceForgeTraits configures the SourceForge adapter.
var SourceForgeTraits = &Traits{
	Name:               "sf",
	DefaultHostname:    "sourceforge.net",
	SubdomainIndicator: "sourceforge",
	RepoURLComponents:  1,
	RepoURLOffset:      1,
	KnownNames: map[string]KnownRepo{
		"keepass": {Repo: "keepass"},
	},
}

// SourceForge resolves releases from a project's file-listing RSS feed,
// whose entry titles are file paths like "/KeePass 2.x/2.45/KeePass-2.45.zip".
type SourceForge struct {
	base
}

var _ Holder = &SourceForge{}
var _ AssetLister = &SourceForge{}

func NewSourceForge(repo, hostname string, client httpx.BasicClient) *SourceForge {
	s := &SourceForge{base: newBase(SourceForgeTraits, repo, hostname, client)}
	if k, ok := SourceForgeTraits.OfficialRepo(repo, ""); ok {
		s.applyKnown(k)
	}
	return s
}

func (s *SourceForge) CanonicalLink() string {
	return "https://sourceforge.net/projects/" + s.repo + "/"
}

func (s *SourceForge) feedURL() string {
	return "https://sourceforge.net/projects/" + s.repo + "/rss?path=/&limit=200"
}

func (s *SourceForge) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	body, err := getBytes(ctx, s.client, s.feedURL())
	if err != nil {
		if strings.Contains(err.Error(), "404") {
			return nil, &BadProjectError{Project: s.repo}
		}
		return nil, err
	}
	var ret *Release
	for _, e := range feed.Parse(body).Entries {
		v := s.SanitizeVersion(e.Title, preOK)
		if v == nil {
			continue
		}
		if ret == nil || v.Compare(ret.Version) > 0 {
			logx.Infof("selected %s as current selection", v)
			ret = &Release{
				Version: v,
				TagName: e.Title,
				TagDate: firstTime(e.Published, e.Updated),
				Type:    "feed",
				Assets:  []Asset{fileAsset(e)},
			}
		} else if ret.Version != nil && v.Compare(ret.Version) == 0 {
			// More files of the winning release.
			ret.Assets = append(ret.Assets, fileAsset(e))
		}
	}
	return ret, nil
}

// fileAsset turns a file entry into an asset, rewriting the web "/download"
// redirect page into the direct link.
func fileAsset(e feed.Entry) Asset {
	name := e.Title
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return Asset{Name: name, URL: strings.TrimSuffix(e.Link, "/download")}
}

// DownloadURL rewrites the winning file's listing page into the direct
// mirror link, downloads.sourceforge.net/<project>/<file>.
func (s *SourceForge) DownloadURL(r *Release, shortURLs bool) string {
	if r == nil || len(r.Assets) == 0 {
		return ""
	}
	return "https://downloads.sourceforge.net/" + s.repo + "/" + r.Assets[0].Name
}

func (s *SourceForge) Assets(ctx context.Context, r *Release, shortURLs bool, filter string) ([]string, error) {
	return s.SelectAssets(s, r, shortURLs, filter)
}
