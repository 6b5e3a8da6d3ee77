// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package latest is the public entry point: it parses what kind of project
// reference the caller gave, picks an adapter, and assembles the enriched
// release record, consulting the result cache on both sides of the network.
package latest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tagscout/tagscout/internal/cache"
	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
	"github.com/tagscout/tagscout/pkg/changelog"
	"github.com/tagscout/tagscout/pkg/holders"
	"github.com/tagscout/tagscout/pkg/version"
)

// ErrNoRelease reports that the project exists but has no acceptable
// release under the current filters.
var ErrNoRelease = errors.New("no release found")

// DefaultCacheTTL applies when result caching is enabled without an
// explicit TTL.
const DefaultCacheTTL = time.Hour

// Options controls one resolution.
type Options struct {
	Pre     bool
	Formal  bool
	Even    bool
	Major   string
	Only    string
	Exclude string
	// HavingAsset is nil when unset; empty string means "any asset".
	HavingAsset *string
	// At forces an adapter by name.
	At string

	// ShortURLs prefers the compact download URL shape.
	ShortURLs bool
	// Enrich adds license, readme and changelog, for json/dict output.
	Enrich bool

	// UseCache enables the result cache; TTL zero means DefaultCacheTTL.
	UseCache bool
	TTL      time.Duration
	CacheDir string

	// Client overrides the HTTP stack, for tests.
	Client httpx.BasicClient
}

// Result is a resolved release plus where it came from.
type Result struct {
	Release *holders.Release
	// Holder is nil when the result was served from the cache.
	Holder holders.Holder
	// Stale marks a cached result served after a network failure.
	Stale bool
}

var (
	cacheMu    sync.Mutex
	cacheInst  *cache.DirCache
	cacheDirFn = defaultCacheDir
)

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "tagscout")
}

func resultCache(dir string) *cache.DirCache {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cacheInst != nil {
		return cacheInst
	}
	if dir == "" {
		dir = cacheDirFn()
	}
	if dir == "" {
		return nil
	}
	c, err := cache.NewDirCache(filepath.Join(dir, "release_cache"), DefaultCacheTTL)
	if err != nil {
		logx.Warnf("release cache unavailable: %v", err)
		return nil
	}
	if h, err := cache.NewDirCache(filepath.Join(dir, "http_cache"), DefaultCacheTTL); err == nil {
		holders.SetResponseStore(h)
	}
	cacheInst = c
	return c
}

// ResetCache drops the cache singleton. Test hook.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cacheInst = nil
	holders.SetResponseStore(nil)
}

// descriptor is the .yml project file shape.
type descriptor struct {
	Repo     string `yaml:"repo"`
	ModuleOf string `yaml:"module_of"`
}

// NormalizeInput resolves the input-kind shorthands: a trailing :MAJOR
// selector, a Chart.yaml URL, and a .yml project descriptor. It returns the
// effective project reference and mutates opt accordingly.
func NormalizeInput(input string, opt *Options) (string, error) {
	if strings.HasSuffix(input, ".yml") || strings.HasSuffix(input, ".yaml") {
		if !strings.Contains(input, "://") && !strings.HasSuffix(input, "Chart.yaml") {
			b, err := os.ReadFile(input)
			if err != nil {
				return "", errors.Wrap(err, "reading project descriptor")
			}
			var d descriptor
			if err := yaml.Unmarshal(b, &d); err != nil {
				return "", errors.Wrap(err, "parsing project descriptor")
			}
			if d.Repo == "" {
				return "", errors.Errorf("%s: no repo key", input)
			}
			return d.Repo, nil
		}
	}
	if strings.HasSuffix(input, "Chart.yaml") && strings.Contains(input, "://") {
		opt.At = "helm_chart"
		return input, nil
	}
	// repo:MAJOR shorthand, leaving URL schemes and forge shorthands alone.
	if !strings.Contains(input, "://") && strings.Count(input, ":") == 1 {
		repo, major, _ := strings.Cut(input, ":")
		if repo != "" && major != "" && !strings.Contains(major, "/") {
			opt.Major = major
			return repo, nil
		}
	}
	return input, nil
}

// cacheKey is the repo plus the sorted filter parameters.
func cacheKey(repo string, opt *Options) string {
	params := map[string]string{
		"pre":     boolParam(opt.Pre),
		"formal":  boolParam(opt.Formal),
		"even":    boolParam(opt.Even),
		"major":   opt.Major,
		"only":    opt.Only,
		"exclude": opt.Exclude,
		"at":      opt.At,
	}
	if opt.HavingAsset != nil {
		params["having_asset"] = *opt.HavingAsset
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(repo)
	for _, k := range keys {
		sb.WriteString("|")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(params[k])
	}
	return sb.String()
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return ""
}

// Latest resolves the newest acceptable release of a project.
func Latest(ctx context.Context, input string, opt Options) (*Result, error) {
	repo, err := NormalizeInput(input, &opt)
	if err != nil {
		return nil, err
	}
	key := cacheKey(repo, &opt)
	ttl := opt.TTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	var store *cache.DirCache
	if opt.UseCache {
		store = resultCache(opt.CacheDir)
	}
	if store != nil {
		if b, err := store.GetBytes(key); err == nil {
			var rel holders.Release
			if json.Unmarshal(b, &rel) == nil && rel.Version != nil {
				logx.Debugf("result cache hit for %s", repo)
				return &Result{Release: &rel}, nil
			}
		}
	}

	hopt := holders.Options{Client: opt.Client}
	if store != nil {
		hopt.Names = store
	}
	holder, err := holders.New(ctx, repo, opt.At, hopt)
	if err != nil {
		return nil, err
	}
	applyFilters(holder, &opt)

	rel, err := holder.LatestRelease(ctx, opt.Pre)
	if err != nil {
		if store != nil && holders.IsTransient(err) {
			if b, _, serr := store.GetStale(key); serr == nil {
				var cached holders.Release
				if json.Unmarshal(b, &cached) == nil && cached.Version != nil {
					logx.Warnf("network failure (%v), serving cached result", err)
					return &Result{Release: &cached, Stale: true}, nil
				}
			}
		}
		return nil, err
	}
	if rel == nil || rel.Version == nil {
		return nil, errors.Wrap(ErrNoRelease, repo)
	}

	rel.SourceURL = holder.DownloadURL(rel, opt.ShortURLs)
	rel.From = holder.CanonicalLink()
	if opt.Enrich {
		enrich(ctx, holder, rel)
	}

	if store != nil {
		if b, merr := json.Marshal(rel); merr == nil {
			if werr := store.SetBytes(key, b, ttl); werr != nil {
				logx.Debugf("result cache write: %v", werr)
			}
		}
	}
	return &Result{Release: rel, Holder: holder}, nil
}

// applyFilters layers the caller's filters on top of whatever the adapter
// already carries for a known project, so an unset option never clears a
// built-in filter.
func applyFilters(h holders.Holder, opt *Options) {
	f := h.Filters()
	if opt.Only != "" {
		f.Only = opt.Only
	}
	if opt.Exclude != "" {
		f.Exclude = opt.Exclude
	}
	if opt.HavingAsset != nil {
		f.HavingAsset = opt.HavingAsset
	}
	if opt.Even {
		f.Even = true
	}
	if opt.Formal {
		f.Formal = true
	}
	if opt.Major != "" {
		f.Major = opt.Major
	}
}

func enrich(ctx context.Context, h holders.Holder, rel *holders.Release) {
	if lp, ok := h.(holders.LicenseProvider); ok && rel.License == "" {
		if lic, err := lp.RepoLicense(ctx); err == nil {
			rel.License = lic
		}
	}
	if rp, ok := h.(holders.ReadmeProvider); ok {
		if readme, err := rp.RepoReadme(ctx); err == nil {
			rel.Readme = readme
		}
	}
	if rel.Body != "" {
		rel.Changelog = changelog.Summarize(ctx, rel.Body)
	}
}

// Assets lists the download URLs for a resolved release, platform-filtered
// unless filter names an explicit regular expression.
func (r *Result) Assets(ctx context.Context, shortURLs bool, filter string) ([]string, error) {
	if r.Holder == nil {
		var urls []string
		for _, a := range r.Release.Assets {
			urls = append(urls, a.URL)
		}
		return urls, nil
	}
	if al, ok := r.Holder.(holders.AssetLister); ok {
		return al.Assets(ctx, r.Release, shortURLs, filter)
	}
	if u := r.Holder.DownloadURL(r.Release, shortURLs); u != "" {
		return []string{u}, nil
	}
	return nil, nil
}

// Sem truncates the release version for printing, per the --sem flag.
func (r *Result) Sem(level version.SemLevel) *version.Version {
	return r.Release.Version.SemBase(level)
}
