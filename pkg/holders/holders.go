// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package holders resolves "the latest release" against heterogeneous
// upstream providers: source forges, package indices, distribution
// repositories, feeds and encyclopedic pages.
//
// Each provider is an adapter sharing one protocol: select the newest
// acceptable release under the user's filters and describe how to download
// it. The factory in this package picks exactly one adapter for an arbitrary
// user input.
package holders

import (
	"context"
	"net/http"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
	"github.com/tagscout/tagscout/internal/platx"
	"github.com/tagscout/tagscout/pkg/version"
)

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Label  string `json:"label,omitempty"`
	Digest string `json:"digest,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// Release is the adapter output.
type Release struct {
	Version *version.Version `json:"version"`
	TagName string           `json:"tag_name"`
	TagDate time.Time        `json:"tag_date,omitzero"`
	// Type records which path produced the release, for diagnostics:
	// feed, release, tag, graphql, helm or source.
	Type   string  `json:"type,omitempty"`
	Assets []Asset `json:"assets,omitempty"`
	Body   string  `json:"body,omitempty"`

	// Enrichments added by the orchestrator.
	License   string `json:"license,omitempty"`
	Readme    string `json:"readme,omitempty"`
	Changelog string `json:"changelog,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	From      string `json:"from,omitempty"`
}

// Filters restricts which tags are acceptable.
type Filters struct {
	// Only and Exclude are tag predicates: plain substring, "~regex", or
	// "!"-negated (composable as "!~regex").
	Only    string
	Exclude string
	// HavingAsset, when non-nil, requires a formal release with assets.
	// A non-empty value must match an asset name or label (or "~regex").
	HavingAsset *string
	// Even restricts to even minor components.
	Even bool
	// Formal restricts to formally tracked releases.
	Formal bool
	// Major restricts to one release branch, by number or branch name.
	Major string
	// Branches maps branch names to tag regexes, from known-repo records.
	Branches map[string]string
}

// Holder is the capability set every adapter satisfies.
type Holder interface {
	// Name is the adapter identifier, e.g. "github".
	Name() string
	Repo() string
	Hostname() string
	Filters() *Filters
	// LatestRelease selects the newest acceptable release, or nil when the
	// project has none.
	LatestRelease(ctx context.Context, preOK bool) (*Release, error)
	// DownloadURL builds the source download URL for a release.
	DownloadURL(r *Release, shortURLs bool) string
	// CanonicalLink is the project's canonical web page.
	CanonicalLink() string
}

// LicenseProvider is satisfied by adapters that can fetch a license text.
type LicenseProvider interface {
	RepoLicense(ctx context.Context) (string, error)
}

// ReadmeProvider is satisfied by adapters that can fetch a readme.
type ReadmeProvider interface {
	RepoReadme(ctx context.Context) (string, error)
}

// AssetLister is satisfied by adapters whose releases carry assets beyond
// the source tarball.
type AssetLister interface {
	// Assets returns download URLs filtered for the current machine, with
	// filter applied as a regular expression when non-empty.
	Assets(ctx context.Context, r *Release, shortURLs bool, filter string) ([]string, error)
}

// InstanceProber is satisfied by adapters that can sniff self-hosted
// instances of their software.
type InstanceProber interface {
	IsInstance(ctx context.Context) bool
}

// KnownRepo is a static record mapping a short alias or hostname to a
// canonical project.
type KnownRepo struct {
	Repo             string
	Hostname         string
	ReleaseURLFormat string
	Branches         map[string]string
	Only             string
}

// Traits is the per-adapter configuration record.
type Traits struct {
	Name               string
	DefaultHostname    string
	SubdomainIndicator string
	CanBeSelfHosted    bool
	// RepoURLComponents is how many path components identify a project on
	// this provider, offset by RepoURLOffset.
	RepoURLComponents int
	RepoURLOffset     int
	// ReleaseURLFormat is a template over {hostname} {repo} {name} {tag}
	// {ext} {version}. ShortReleaseURLFormat, when set, is used for short
	// download URLs.
	ReleaseURLFormat      string
	ShortReleaseURLFormat string
	// TokenEnv lists token environment variables in priority order.
	// TokenHeaderName defaults to Authorization, TokenScheme prefixes the
	// value ("token", "Bearer") when non-empty.
	TokenEnv        []string
	TokenHeaderName string
	TokenScheme     string
	// KnownNames maps one-word aliases, KnownURLs maps hostnames.
	KnownNames map[string]KnownRepo
	KnownURLs  map[string]KnownRepo
}

func stripPort(hostname string) string {
	if host, _, ok := strings.Cut(hostname, ":"); ok {
		return host
	}
	return hostname
}

// MatchesHostname reports whether hostname belongs to this provider,
// ignoring any port.
func (t *Traits) MatchesHostname(hostname string) bool {
	h := stripPort(hostname)
	if h == "" {
		return false
	}
	if t.DefaultHostname != "" && (h == t.DefaultHostname || strings.HasSuffix(h, "."+t.DefaultHostname)) {
		return true
	}
	return t.SubdomainIndicator != "" && strings.HasPrefix(h, t.SubdomainIndicator+".")
}

// OfficialRepo consults the known-repos tables for a user input.
func (t *Traits) OfficialRepo(repo, hostname string) (KnownRepo, bool) {
	if hostname != "" {
		if k, ok := t.KnownURLs[stripPort(hostname)]; ok {
			return k, true
		}
		return KnownRepo{}, false
	}
	if strings.Contains(repo, "/") {
		return KnownRepo{}, false
	}
	k, ok := t.KnownNames[strings.ToLower(repo)]
	return k, ok
}

// BaseRepo normalizes a user-supplied project identifier to this provider's
// repo path shape.
func (t *Traits) BaseRepo(arg string) string {
	arg = strings.Trim(arg, "/")
	if t.RepoURLComponents <= 0 {
		return arg
	}
	parts := strings.Split(arg, "/")
	if t.RepoURLOffset >= len(parts) {
		return arg
	}
	parts = parts[t.RepoURLOffset:]
	if len(parts) > t.RepoURLComponents {
		parts = parts[:t.RepoURLComponents]
	}
	return strings.Join(parts, "/")
}

// base carries the state and behavior shared by all adapters.
type base struct {
	traits   *Traits
	hostname string
	repo     string
	filters  Filters
	client   httpx.BasicClient
	parser   version.Parser
}

func newBase(traits *Traits, repo, hostname string, client httpx.BasicClient) base {
	if hostname == "" {
		hostname = traits.DefaultHostname
	}
	if client == nil {
		client = defaultClient(traits)
	}
	name := repo
	if i := strings.LastIndex(repo, "/"); i >= 0 {
		name = repo[i+1:]
	}
	return base{
		traits:   traits,
		hostname: hostname,
		repo:     repo,
		client:   client,
		parser:   version.Parser{ProjectNames: []string{name}},
	}
}

func defaultClient(traits *Traits) httpx.BasicClient {
	var c httpx.BasicClient = &http.Client{Timeout: 30 * time.Second}
	c = &httpx.WithUserAgent{BasicClient: c, UserAgent: "tagscout"}
	if h := TokenHeader(traits); len(h) > 0 {
		c = &httpx.WithHeaders{BasicClient: c, Header: h}
	}
	c = httpx.NewRetryClient(c)
	c = httpx.NewRateLimitAwareClient(c)
	if s := responseStore(); s != nil {
		c = httpx.NewCachedClient(c, s)
	}
	return c
}

func (b *base) Name() string      { return b.traits.Name }
func (b *base) Repo() string      { return b.repo }
func (b *base) Hostname() string  { return b.hostname }
func (b *base) Filters() *Filters { return &b.filters }

// CanonicalLink defaults to the project page on the provider's host.
func (b *base) CanonicalLink() string {
	return "https://" + b.hostname + "/" + b.repo
}

// applyKnown overrides instance configuration from a known-repo record.
func (b *base) applyKnown(k KnownRepo) {
	if k.Repo != "" {
		b.repo = k.Repo
	}
	if k.Hostname != "" {
		b.hostname = k.Hostname
	}
	if k.Only != "" {
		b.filters.Only = k.Only
	}
	if k.Branches != nil {
		b.filters.Branches = k.Branches
	}
	if k.ReleaseURLFormat != "" {
		t := *b.traits
		t.ReleaseURLFormat = k.ReleaseURLFormat
		b.traits = &t
	}
}

// MatchesFilter evaluates one filter expression against a tag. Supported
// shapes: plain substring, "~"-prefixed regex, "!"-prefixed negation
// (composable as "!~regex").
func MatchesFilter(filter string, tag string) bool {
	if neg, ok := strings.CutPrefix(filter, "!"); ok {
		return !MatchesFilter(neg, tag)
	}
	if expr, ok := strings.CutPrefix(filter, "~"); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			logx.Warnf("invalid filter regex %q: %v", expr, err)
			return false
		}
		return re.MatchString(tag)
	}
	return strings.Contains(tag, filter)
}

// SanitizeVersion applies the only/exclude predicates, the version pipeline,
// and the post-parse filters. A nil result means "skip this tag".
func (b *base) SanitizeVersion(tag string, preOK bool) *version.Version {
	if b.filters.Only != "" && !MatchesFilter(b.filters.Only, tag) {
		return nil
	}
	if b.filters.Exclude != "" && MatchesFilter(b.filters.Exclude, tag) {
		return nil
	}
	v, err := b.parser.Parse(tag)
	if err != nil {
		return nil
	}
	if !b.passesMajor(v, tag) {
		return nil
	}
	if !preOK && v.HasPreSegment() {
		logx.Debugf("skipping pre-release %s", tag)
		return nil
	}
	if b.filters.Even && !v.Even() {
		return nil
	}
	return v
}

func (b *base) passesMajor(v *version.Version, tag string) bool {
	major := b.filters.Major
	if major == "" {
		return true
	}
	if expr, ok := b.filters.Branches[major]; ok {
		re, err := regexp.Compile(expr)
		if err == nil && re.MatchString(tag) {
			return true
		}
		return false
	}
	if n, err := strconv.Atoi(major); err == nil {
		if rel := v.Release(); len(rel) > 0 && rel[0] == n {
			return true
		}
	}
	return strings.HasPrefix(v.String(), major+".")
}

// DownloadURL builds the source download URL from the adapter's template.
func (b *base) DownloadURL(r *Release, shortURLs bool) string {
	if shortURLs && b.traits.ShortReleaseURLFormat != "" {
		return b.expandURL(b.traits.ShortReleaseURLFormat, r)
	}
	return b.expandURL(b.traits.ReleaseURLFormat, r)
}

func (b *base) expandURL(format string, r *Release) string {
	if format == "" || r == nil {
		return ""
	}
	name := b.repo
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	ext := "tar.gz"
	if runtime.GOOS == "windows" {
		ext = "zip"
	}
	ver := ""
	if r.Version != nil {
		ver = r.Version.String()
	}
	return strings.NewReplacer(
		"{hostname}", b.hostname,
		"{repo}", b.repo,
		"{name}", name,
		"{tag}", r.TagName,
		"{ext}", ext,
		"{version}", ver,
	).Replace(format)
}

// SelectAssets starts from the release's assets and filters them for the
// current machine, falling back to the source download URL when nothing
// suits. A non-empty filter is applied as a regular expression.
func (b *base) SelectAssets(h Holder, r *Release, shortURLs bool, filter string) ([]string, error) {
	var re *regexp.Regexp
	if filter != "" {
		var err error
		if re, err = regexp.Compile(filter); err != nil {
			return nil, errors.Wrap(err, "compiling asset filter")
		}
	}
	plat := platx.Host()
	candidates := r.Assets
	if re == nil && runtime.GOARCH == "amd64" {
		var preferred []Asset
		for _, a := range candidates {
			if strings.Contains(strings.ToLower(a.Name), "x86_64") {
				preferred = append(preferred, a)
			}
		}
		if len(preferred) > 0 {
			candidates = preferred
		}
	}
	var urls []string
	for _, a := range candidates {
		if re != nil {
			if re.MatchString(a.Name) {
				urls = append(urls, a.URL)
			}
			continue
		}
		if plat.Suits(a.Name) {
			urls = append(urls, a.URL)
		}
	}
	if len(urls) == 0 && re == nil {
		if u := h.DownloadURL(r, shortURLs); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// matchesHavingAsset evaluates the having-asset filter against a formal
// release's assets.
func (b *base) matchesHavingAsset(assets []Asset) bool {
	want := b.filters.HavingAsset
	if want == nil {
		return true
	}
	if len(assets) == 0 {
		return false
	}
	if *want == "" {
		return true
	}
	for _, a := range assets {
		if strings.HasPrefix(*want, "~") {
			if MatchesFilter(*want, a.Name) || MatchesFilter(*want, a.Label) {
				return true
			}
		} else if a.Name == *want || a.Label == *want {
			return true
		}
	}
	return false
}
