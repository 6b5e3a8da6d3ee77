// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"net/url"
	"time"

	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
)

// GitLabTraits configures the GitLab adapter.
var GitLabTraits = &Traits{
	Name:              "gitlab",
	DefaultHostname:   "gitlab.com",
	CanBeSelfHosted:   true,
	RepoURLComponents: 2,
	ReleaseURLFormat:  "https://{hostname}/{repo}/-/archive/{tag}/{name}-{tag}.{ext}",
	TokenEnv:          []string{"GITLAB_PA_TOKEN"},
	TokenHeaderName:   "Private-Token",
}

// GitLab resolves releases via the GitLab tags and releases APIs.
type GitLab struct {
	base
}

var _ Holder = &GitLab{}
var _ AssetLister = &GitLab{}

func NewGitLab(repo, hostname string, client httpx.BasicClient) *GitLab {
	return &GitLab{base: newBase(GitLabTraits, repo, hostname, client)}
}

func (g *GitLab) api(suffix string) string {
	return "https://" + g.hostname + "/api/v4/projects/" + url.PathEscape(g.repo) + suffix
}

type gitlabTag struct {
	Name   string `json:"name"`
	Commit struct {
		CreatedAt time.Time `json:"created_at"`
	} `json:"commit"`
}

type gitlabRelease struct {
	TagName     string    `json:"tag_name"`
	Description string    `json:"description"`
	ReleasedAt  time.Time `json:"released_at"`
	Assets      struct {
		Links []struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"links"`
	} `json:"assets"`
}

// LatestRelease scans the tag list, newest first, and overlays formal
// release data for the winner.
func (g *GitLab) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	var tags []gitlabTag
	if err := getJSON(ctx, g.client, g.api("/repository/tags?per_page=100"), &tags); err != nil {
		return nil, err
	}
	var ret *Release
	for _, t := range tags {
		v := g.SanitizeVersion(t.Name, preOK)
		if v == nil {
			continue
		}
		if ret != nil && !t.Commit.CreatedAt.IsZero() &&
			t.Commit.CreatedAt.Before(ret.TagDate.Add(-tagLookback)) {
			break
		}
		if ret == nil || v.Compare(ret.Version) > 0 {
			logx.Infof("selected %s as current selection", v)
			ret = &Release{Version: v, TagName: t.Name, TagDate: t.Commit.CreatedAt, Type: "tag"}
		}
	}
	if ret == nil {
		return nil, nil
	}
	var rel gitlabRelease
	if err := getJSON(ctx, g.client, g.api("/releases/"+url.PathEscape(ret.TagName)), &rel); err == nil && rel.TagName != "" {
		ret.Type = "release"
		ret.Body = rel.Description
		if !rel.ReleasedAt.IsZero() {
			ret.TagDate = rel.ReleasedAt
		}
		for _, l := range rel.Assets.Links {
			ret.Assets = append(ret.Assets, Asset{Name: l.Name, URL: l.URL})
		}
	}
	return ret, nil
}

// Assets adds generic package registry files for the release version to the
// formal release links.
func (g *GitLab) Assets(ctx context.Context, r *Release, shortURLs bool, filter string) ([]string, error) {
	if r != nil && r.Version != nil {
		var pkgs []struct {
			Name    string `json:"name"`
			Version string `json:"version"`
			Links   struct {
				WebPath string `json:"web_path"`
			} `json:"_links"`
		}
		endpoint := g.api("/packages?per_page=100")
		if err := getJSON(ctx, g.client, endpoint, &pkgs); err == nil {
			for _, p := range pkgs {
				if p.Version != r.Version.String() || p.Links.WebPath == "" {
					continue
				}
				r.Assets = append(r.Assets, Asset{Name: p.Name, URL: "https://" + g.hostname + p.Links.WebPath})
			}
		}
	}
	return g.SelectAssets(g, r, shortURLs, filter)
}
