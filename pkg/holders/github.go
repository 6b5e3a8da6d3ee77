// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"

	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
	"github.com/tagscout/tagscout/pkg/feed"
	"github.com/tagscout/tagscout/pkg/version"
)

// GitHubTraits configures the GitHub adapter.
var GitHubTraits = &Traits{
	Name:                  "github",
	DefaultHostname:       "github.com",
	CanBeSelfHosted:       true,
	RepoURLComponents:     2,
	ReleaseURLFormat:      "https://{hostname}/{repo}/archive/{tag}/{name}-{tag}.{ext}",
	ShortReleaseURLFormat: "https://{hostname}/{repo}/archive/{tag}.{ext}",
	TokenEnv:              []string{"LASTVERSION_GITHUB_API_TOKEN", "GITHUB_API_TOKEN", "GITHUB_TOKEN"},
	TokenScheme:           "token",
	KnownNames: map[string]KnownRepo{
		"nginx": {
			Repo: "nginx/nginx",
			Branches: map[string]string{
				"stable":   `\.\d?[02468]\.`,
				"mainline": `\.\d?[13579]\.`,
			},
		},
		"php":     {Repo: "php/php-src", Only: "~^php-"},
		"openssl": {Repo: "openssl/openssl"},
		"wp-cli":  {Repo: "wp-cli/wp-cli"},
		"mysql":   {Repo: "mysql/mysql-server"},
	},
	KnownURLs: map[string]KnownRepo{
		"nginx.org": {
			Repo:     "nginx/nginx",
			Hostname: "github.com",
			Branches: map[string]string{
				"stable":   `\.\d?[02468]\.`,
				"mainline": `\.\d?[13579]\.`,
			},
		},
	},
}

const (
	nameCacheTTL = 30 * 24 * time.Hour
	feedFreshAge = 365 * 24 * time.Hour
	tagLookback  = 365 * 24 * time.Hour
	feedPassSlop = 30 * 24 * time.Hour
)

// NameCache persists one-word repo resolutions. *cache.DirCache satisfies it.
type NameCache interface {
	GetBytes(key string) ([]byte, error)
	SetBytes(key string, val []byte, ttl time.Duration) error
}

// GitHub resolves releases for a repository on github.com or a GitHub
// Enterprise host.
type GitHub struct {
	base
	names    NameCache
	resolved bool

	// formals is the lazily fetched first page of /releases, keyed by tag.
	formals     map[string]*githubFormalRelease
	formalOrder []string
}

var _ Holder = &GitHub{}
var _ LicenseProvider = &GitHub{}
var _ ReadmeProvider = &GitHub{}
var _ AssetLister = &GitHub{}

// NewGitHub builds a GitHub adapter. A nil client gets the default stack
// with the token from the environment; names may be nil to disable the
// one-word resolution cache.
func NewGitHub(repo, hostname string, client httpx.BasicClient, names NameCache) *GitHub {
	g := &GitHub{base: newBase(GitHubTraits, repo, hostname, client), names: names}
	g.resolved = strings.Contains(g.repo, "/")
	if k, ok := GitHubTraits.OfficialRepo(repo, ""); ok {
		g.applyKnown(k)
		g.resolved = true
	}
	return g
}

func (g *GitHub) apiBase() string {
	if g.hostname == "github.com" {
		return "https://api.github.com"
	}
	return "https://" + g.hostname + "/api/v3"
}

func (g *GitHub) api(format string, a ...any) string {
	return g.apiBase() + fmt.Sprintf(format, a...)
}

type githubAsset struct {
	Name               string `json:"name"`
	Label              string `json:"label"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
	Digest             string `json:"digest"`
}

type githubFormalRelease struct {
	TagName     string        `json:"tag_name"`
	Name        string        `json:"name"`
	Draft       bool          `json:"draft"`
	Prerelease  bool          `json:"prerelease"`
	PublishedAt time.Time     `json:"published_at"`
	CreatedAt   time.Time     `json:"created_at"`
	Body        string        `json:"body"`
	Assets      []githubAsset `json:"assets"`
}

func (r *githubFormalRelease) tagDate() time.Time {
	if r.PublishedAt.After(r.CreatedAt) {
		return r.PublishedAt
	}
	return r.CreatedAt
}

func (r *githubFormalRelease) toAssets() []Asset {
	var out []Asset
	for _, a := range r.Assets {
		out = append(out, Asset{Name: a.Name, Label: a.Label, URL: a.BrowserDownloadURL, Size: a.Size, Digest: a.Digest})
	}
	return out
}

// resolveRepo turns a bare one-word input into owner/name, consulting the
// name cache, the owner/owner convention, then the search API.
func (g *GitHub) resolveRepo(ctx context.Context) error {
	if g.resolved || strings.Contains(g.repo, "/") {
		g.resolved = true
		return nil
	}
	name := g.repo
	key := "github-name:" + strings.ToLower(name)
	if g.names != nil {
		if b, err := g.names.GetBytes(key); err == nil {
			if len(b) == 0 {
				return &BadProjectError{Project: name}
			}
			g.repo = string(b)
			g.resolved = true
			return nil
		}
	}
	if g.feedExists(ctx, name+"/"+name) {
		g.repo = name + "/" + name
	} else {
		full, err := g.searchRepo(ctx, name)
		if err != nil {
			return err
		}
		if full == "" {
			if g.names != nil {
				g.names.SetBytes(key, nil, nameCacheTTL)
			}
			return &BadProjectError{Project: name}
		}
		g.repo = full
	}
	if g.names != nil {
		if err := g.names.SetBytes(key, []byte(g.repo), nameCacheTTL); err != nil {
			logx.Debugf("name cache write: %v", err)
		}
	}
	g.resolved = true
	return nil
}

func (g *GitHub) feedExists(ctx context.Context, repo string) bool {
	resp, err := get(ctx, g.client, "https://"+g.hostname+"/"+repo+"/releases.atom")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == 200
}

func (g *GitHub) searchRepo(ctx context.Context, name string) (string, error) {
	var result struct {
		Items []struct {
			FullName string `json:"full_name"`
		} `json:"items"`
	}
	q := url.QueryEscape(name + " in:name")
	if err := getJSON(ctx, g.client, g.api("/search/repositories?q=%s&sort=stars&per_page=1", q), &result); err != nil {
		return "", err
	}
	if len(result.Items) == 0 {
		return "", nil
	}
	return result.Items[0].FullName, nil
}

// LatestRelease walks feed, formal releases and finally the full tag
// history, never regressing a chosen candidate.
func (g *GitHub) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	if err := g.resolveRepo(ctx); err != nil {
		return nil, err
	}
	var ret *Release
	seenSemver := false
	if !g.filters.Formal {
		var err error
		if ret, err = g.feedPass(ctx, preOK, &seenSemver); err != nil {
			return nil, err
		}
		if ret != nil && time.Since(ret.TagDate) < feedFreshAge {
			return ret, nil
		}
	}
	if err := g.formalPass(ctx, &ret, preOK); err != nil {
		return nil, err
	}
	if g.filters.HavingAsset != nil || g.filters.Formal {
		return ret, nil
	}
	var err error
	if Token(g.traits) != "" {
		err = g.graphqlTagSearch(ctx, &ret, preOK, &seenSemver)
	} else {
		logx.Infof("no API token, falling back to tags API")
		err = g.restTagSearch(ctx, &ret, preOK, &seenSemver)
	}
	if err != nil && ret == nil {
		return nil, err
	}
	return ret, nil
}

func (g *GitHub) feedPass(ctx context.Context, preOK bool, seenSemver *bool) (*Release, error) {
	body, err := g.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}
	f := feed.Parse(body)
	updateStyle := false
	for _, e := range f.Entries {
		if version.IsUpdateStyle(tagFromLink(e.Link)) {
			updateStyle = true
			break
		}
	}
	var ret *Release
	for _, e := range f.Entries {
		tag := tagFromLink(e.Link)
		if updateStyle && !version.IsUpdateStyle(tag) {
			continue
		}
		v := g.SanitizeVersion(tag, preOK)
		if v == nil {
			continue
		}
		if !g.admitSemver(v, seenSemver) {
			continue
		}
		if ret != nil && !e.Updated.IsZero() && e.Updated.Before(ret.TagDate.Add(-feedPassSlop)) {
			break
		}
		if ret != nil && ret.Version != nil && v.Compare(ret.Version) <= 0 {
			continue
		}
		if rel, ok := g.formalFor(ctx, tag); ok {
			g.setMatchingFormalRelease(&ret, rel, v, preOK, "release")
		} else if g.filters.HavingAsset == nil {
			logx.Infof("selected %s as current selection", v)
			ret = &Release{Version: v, TagName: tag, TagDate: e.Updated, Type: "feed"}
		}
	}
	return ret, nil
}

// fetchFeed gets releases.atom with a one-shot rename check on 404.
func (g *GitHub) fetchFeed(ctx context.Context) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		resp, err := get(ctx, g.client, "https://"+g.hostname+"/"+g.repo+"/releases.atom")
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == 200:
			defer resp.Body.Close()
			return io.ReadAll(resp.Body)
		case resp.StatusCode == 404 && attempt == 0:
			resp.Body.Close()
			moved, ok := g.checkRenamed(ctx)
			if !ok {
				return nil, &BadProjectError{Project: g.repo}
			}
			logx.Infof("repository moved to %s", moved)
			g.repo = moved
		case resp.StatusCode == 401 || resp.StatusCode == 403:
			resp.Body.Close()
			return nil, &CredentialsError{Host: g.hostname, Reason: resp.Status}
		default:
			resp.Body.Close()
			return nil, &BadProjectError{Project: g.repo}
		}
	}
}

func (g *GitHub) checkRenamed(ctx context.Context) (string, bool) {
	var info struct {
		FullName string `json:"full_name"`
	}
	if err := getJSON(ctx, g.client, g.api("/repos/%s", g.repo), &info); err != nil {
		return "", false
	}
	if info.FullName == "" || strings.EqualFold(info.FullName, g.repo) {
		return "", false
	}
	return info.FullName, true
}

// admitSemver enforces semver consistency within one scan: once a candidate
// with at least two release components is seen, shorter ones are discarded.
func (g *GitHub) admitSemver(v *version.Version, seenSemver *bool) bool {
	isSemver := len(v.Release()) >= 2
	if *seenSemver && !isSemver {
		return false
	}
	if isSemver {
		*seenSemver = true
	}
	return true
}

func (g *GitHub) loadFormals(ctx context.Context) error {
	if g.formals != nil {
		return nil
	}
	var rels []*githubFormalRelease
	if err := getJSON(ctx, g.client, g.api("/repos/%s/releases?per_page=100", g.repo), &rels); err != nil {
		return err
	}
	g.formals = make(map[string]*githubFormalRelease, len(rels))
	for _, r := range rels {
		if _, ok := g.formals[r.TagName]; !ok {
			g.formals[r.TagName] = r
			g.formalOrder = append(g.formalOrder, r.TagName)
		}
	}
	return nil
}

func (g *GitHub) formalFor(ctx context.Context, tag string) (*githubFormalRelease, bool) {
	if err := g.loadFormals(ctx); err != nil {
		logx.Warnf("listing releases: %v", err)
		return nil, false
	}
	rel, ok := g.formals[tag]
	return rel, ok
}

func (g *GitHub) formalPass(ctx context.Context, ret **Release, preOK bool) error {
	if err := g.loadFormals(ctx); err != nil {
		return err
	}
	for _, tag := range g.formalOrder {
		rel := g.formals[tag]
		v := g.SanitizeVersion(tag, preOK)
		if v == nil {
			continue
		}
		if *ret != nil && (*ret).Version != nil && v.Compare((*ret).Version) <= 0 {
			continue
		}
		g.setMatchingFormalRelease(ret, rel, v, preOK, "release")
	}
	return nil
}

// setMatchingFormalRelease is the single acceptance predicate for formal
// release data.
func (g *GitHub) setMatchingFormalRelease(ret **Release, rel *githubFormalRelease, v *version.Version, preOK bool, typ string) {
	if rel.Draft {
		logx.Debugf("skipping draft %s", rel.TagName)
		return
	}
	if rel.Prerelease && !preOK {
		logx.Debugf("skipping prerelease %s", rel.TagName)
		return
	}
	if !g.matchesHavingAsset(rel.toAssets()) {
		return
	}
	logx.Infof("selected %s as current selection", v)
	*ret = &Release{
		Version: v,
		TagName: rel.TagName,
		TagDate: rel.tagDate(),
		Type:    typ,
		Assets:  rel.toAssets(),
		Body:    rel.Body,
	}
}

// better reports whether a tag-history candidate should displace ret, by
// version or by a tag date at least an hour newer.
func better(ret *Release, v *version.Version, date time.Time) bool {
	if ret == nil || ret.Version == nil {
		return true
	}
	if v.Compare(ret.Version) > 0 {
		return true
	}
	return !date.IsZero() && date.Sub(ret.TagDate) >= time.Hour
}

func (g *GitHub) graphqlTagSearch(ctx context.Context, ret **Release, preOK bool, seenSemver *bool) error {
	hc := &http.Client{Transport: basicClientTransport{g.client}}
	var gql *githubv4.Client
	if g.hostname == "github.com" {
		gql = githubv4.NewClient(hc)
	} else {
		gql = githubv4.NewEnterpriseClient(g.apiBase()+"/graphql", hc)
	}
	owner, name, ok := strings.Cut(g.repo, "/")
	if !ok {
		return &BadProjectError{Project: g.repo}
	}
	var q struct {
		Repository struct {
			Refs struct {
				PageInfo struct {
					EndCursor   githubv4.String
					HasNextPage bool
				}
				Nodes []struct {
					Name   string
					Target struct {
						Commit struct {
							CommittedDate githubv4.DateTime
						} `graphql:"... on Commit"`
						Tag struct {
							Tagger struct {
								Date githubv4.DateTime
							}
						} `graphql:"... on Tag"`
					}
				}
			} `graphql:"refs(refPrefix: \"refs/tags/\", first: 100, after: $cursor, orderBy: {field: TAG_COMMIT_DATE, direction: DESC})"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]any{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(name),
		"cursor": (*githubv4.String)(nil),
	}
	cutoff := time.Now().Add(-tagLookback)
	for {
		if err := gql.Query(ctx, &q, vars); err != nil {
			return err
		}
		for _, node := range q.Repository.Refs.Nodes {
			date := node.Target.Commit.CommittedDate.Time
			if date.IsZero() {
				date = node.Target.Tag.Tagger.Date.Time
			}
			if !date.IsZero() && date.Before(cutoff) {
				return nil
			}
			v := g.SanitizeVersion(node.Name, preOK)
			if v == nil || !g.admitSemver(v, seenSemver) {
				continue
			}
			if !better(*ret, v, date) {
				continue
			}
			if rel, ok := g.formalFor(ctx, node.Name); ok {
				g.setMatchingFormalRelease(ret, rel, v, preOK, "release")
			} else {
				logx.Infof("selected %s as current selection", v)
				*ret = &Release{Version: v, TagName: node.Name, TagDate: date, Type: "graphql"}
			}
		}
		if !q.Repository.Refs.PageInfo.HasNextPage {
			return nil
		}
		vars["cursor"] = githubv4.NewString(q.Repository.Refs.PageInfo.EndCursor)
	}
}

func (g *GitHub) restTagSearch(ctx context.Context, ret **Release, preOK bool, seenSemver *bool) error {
	cutoff := time.Now().Add(-tagLookback)
	for page := 1; ; page++ {
		var tags []struct {
			Name   string `json:"name"`
			Commit struct {
				SHA string `json:"sha"`
			} `json:"commit"`
		}
		if err := getJSON(ctx, g.client, g.api("/repos/%s/tags?per_page=100&page=%d", g.repo, page), &tags); err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}
		for _, t := range tags {
			v := g.SanitizeVersion(t.Name, preOK)
			if v == nil || !g.admitSemver(v, seenSemver) {
				continue
			}
			date := g.commitDate(ctx, t.Commit.SHA)
			if !date.IsZero() && date.Before(cutoff) {
				return nil
			}
			if !better(*ret, v, date) {
				continue
			}
			if rel, ok := g.formalFor(ctx, t.Name); ok {
				g.setMatchingFormalRelease(ret, rel, v, preOK, "tag")
			} else {
				logx.Infof("selected %s as current selection", v)
				*ret = &Release{Version: v, TagName: t.Name, TagDate: date, Type: "tag"}
			}
		}
		if len(tags) < 100 {
			return nil
		}
	}
}

func (g *GitHub) commitDate(ctx context.Context, sha string) time.Time {
	if sha == "" {
		return time.Time{}
	}
	var commit struct {
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	}
	if err := getJSON(ctx, g.client, g.api("/repos/%s/git/commits/%s", g.repo, sha), &commit); err != nil {
		logx.Debugf("commit %s: %v", sha, err)
		return time.Time{}
	}
	return commit.Committer.Date
}

// Assets implements AssetLister.
func (g *GitHub) Assets(ctx context.Context, r *Release, shortURLs bool, filter string) ([]string, error) {
	return g.SelectAssets(g, r, shortURLs, filter)
}

// RepoLicense fetches the repository license text.
func (g *GitHub) RepoLicense(ctx context.Context) (string, error) {
	var lic struct {
		Content string `json:"content"`
		License struct {
			SPDXID string `json:"spdx_id"`
		} `json:"license"`
	}
	if err := getJSON(ctx, g.client, g.api("/repos/%s/license", g.repo), &lic); err != nil {
		return "", err
	}
	if b, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(lic.Content, "\n", "")); err == nil && len(b) > 0 {
		return string(b), nil
	}
	return lic.License.SPDXID, nil
}

// RepoReadme fetches the repository readme text.
func (g *GitHub) RepoReadme(ctx context.Context) (string, error) {
	var readme struct {
		Content string `json:"content"`
	}
	if err := getJSON(ctx, g.client, g.api("/repos/%s/readme", g.repo), &readme); err != nil {
		return "", err
	}
	b, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(readme.Content, "\n", ""))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func tagFromLink(link string) string {
	link = strings.TrimSuffix(link, "/")
	tag := link
	if i := strings.LastIndex(link, "/"); i >= 0 {
		tag = link[i+1:]
	}
	if dec, err := url.PathUnescape(tag); err == nil {
		tag = dec
	}
	return tag
}

// basicClientTransport adapts a BasicClient to http.RoundTripper for the
// GraphQL client.
type basicClientTransport struct {
	c httpx.BasicClient
}

func (t basicClientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.c.Do(req)
}
