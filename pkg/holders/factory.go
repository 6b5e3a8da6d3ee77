// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/tagscout/tagscout/internal/cache"
	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
	"github.com/tagscout/tagscout/internal/uri"
	"github.com/tagscout/tagscout/pkg/feed"
)

// Options carries injected collaborators for adapter construction. Zero
// values mean environment defaults.
type Options struct {
	Client httpx.BasicClient
	Names  NameCache
}

type constructor func(repo, hostname string, opt Options) Holder

// Adapters maps the forceable adapter names to their constructors.
var Adapters = map[string]constructor{
	"github":       func(r, h string, o Options) Holder { return NewGitHub(r, h, o.Client, o.Names) },
	"gitlab":       func(r, h string, o Options) Holder { return NewGitLab(r, h, o.Client) },
	"bitbucket":    func(r, h string, o Options) Holder { return NewBitBucket(r, h, o.Client) },
	"hg":           func(r, h string, o Options) Holder { return NewMercurial(r, h, o.Client) },
	"sf":           func(r, h string, o Options) Holder { return NewSourceForge(r, h, o.Client) },
	"wiki":         func(r, h string, o Options) Holder { return NewWikipedia(r, h, o.Client) },
	"pip":          func(r, h string, o Options) Holder { return NewPyPI(r, h, o.Client) },
	"wp":           func(r, h string, o Options) Holder { return NewWordPress(r, h, o.Client) },
	"helm_chart":   func(r, h string, o Options) Holder { return NewHelmChart(r, h, o.Client) },
	"alpine":       func(r, h string, o Options) Holder { return NewAlpine(r, h, o.Client) },
	"gitea":        func(r, h string, o Options) Holder { return NewGitea(r, h, o.Client) },
	"website-feed": func(r, h string, o Options) Holder { return NewFeedRepo(r, h, "", o.Client) },
	"local":        func(r, h string, o Options) Holder { return NewLocal(r, h, o.Client) },
	"system":       func(r, h string, o Options) Holder { return NewSystem(r, h, o.Client) },
}

// probeOrder lists adapters with recognizable domains, most specific first.
var probeOrder = []struct {
	traits *Traits
	name   string
}{
	{GitHubTraits, "github"},
	{GitLabTraits, "gitlab"},
	{BitBucketTraits, "bitbucket"},
	{MercurialTraits, "hg"},
	{SourceForgeTraits, "sf"},
	{WikipediaTraits, "wiki"},
	{PyPITraits, "pip"},
	{WordPressTraits, "wp"},
	{AlpineTraits, "alpine"},
	{GiteaTraits, "gitea"},
}

// selfHostProbes lists adapters probed on unrecognized hostnames.
var selfHostProbes = []string{"gitea", "pip"}

// probeCache memoizes instance-probe results per adapter and host for the
// life of the process, so bulk runs hit each host once.
var probeCache = &cache.CoalescingMemoryCache{}

// New picks one adapter for a user input: a URL, owner/name, or a one-word
// project name. A non-empty at forces the adapter.
func New(ctx context.Context, input, at string, opt Options) (Holder, error) {
	// Scheme-less forge references (github.com/user/repo, github:user/repo,
	// scp-style remotes) become regular HTTPS URLs first.
	if !strings.Contains(input, "://") && uri.SmellsLikeARepo(input) {
		if canon, err := uri.CanonicalizeRepoURI(input); err == nil {
			input = canon
		}
	}
	repo := input
	hostname := ""
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		u, err := url.Parse(input)
		if err != nil {
			return nil, errors.Wrap(err, "parsing project URL")
		}
		hostname = u.Host
		repo = strings.TrimPrefix(u.Path, "/")
	}
	if at != "" {
		build, ok := Adapters[at]
		if !ok {
			return nil, errors.Errorf("unknown adapter %q", at)
		}
		if at == "helm_chart" || at == "local" {
			return build(input, hostname, opt), nil
		}
		return build(repo, hostname, opt), nil
	}
	for _, p := range probeOrder {
		if hostname != "" && p.traits.MatchesHostname(hostname) {
			h := Adapters[p.name](p.traits.BaseRepo(repo), hostname, opt)
			return h, nil
		}
		if k, ok := p.traits.OfficialRepo(repo, hostname); ok {
			h := Adapters[p.name](repo, hostname, opt)
			if ka, can := h.(interface{ applyKnown(KnownRepo) }); can {
				ka.applyKnown(k)
			}
			return h, nil
		}
	}
	if hostname == "" {
		// Bare name: GitHub resolves it through the search API.
		return Adapters["github"](repo, "", opt), nil
	}
	for _, name := range selfHostProbes {
		h := Adapters[name](repo, hostname, opt)
		p, ok := h.(InstanceProber)
		if !ok {
			continue
		}
		hit, err := probeCache.GetOrSet(name+"|"+hostname, func() (any, error) {
			return p.IsInstance(ctx), nil
		})
		if err == nil && hit.(bool) {
			logx.Infof("detected self-hosted %s at %s", name, hostname)
			return h, nil
		}
	}
	if h := homepageFallback(ctx, repo, hostname, opt); h != nil {
		return h, nil
	}
	return nil, &BadProjectError{Project: input}
}

// homepageFallback fetches the site root and looks for a usable feed, then
// for a GitHub link.
func homepageFallback(ctx context.Context, repo, hostname string, opt Options) Holder {
	client := opt.Client
	if client == nil {
		client = defaultClient(FeedRepoTraits)
	}
	page, err := getBytes(ctx, client, "https://"+hostname+"/")
	if err != nil {
		return nil
	}
	for _, candidate := range feedCandidates(page, "https://"+hostname+"/") {
		body, err := getBytes(ctx, client, candidate)
		if err != nil {
			continue
		}
		if len(feed.Parse(body).Entries) > 0 {
			logx.Infof("using feed %s", candidate)
			return NewFeedRepo(repo, hostname, candidate, opt.Client)
		}
	}
	if adapter, linked, ok := uri.FindForgeRepo(string(page)); ok {
		logx.Infof("following %s link to %s", adapter, linked)
		return Adapters[adapter](linked, "", opt)
	}
	return nil
}

// feedCandidates extracts feed-looking URLs from a homepage: alternate
// links with an XML type, then anchors mentioning xml, rss or feed.
func feedCandidates(page []byte, baseURL string) []string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	var alternates, anchors []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			attrs := make(map[string]string, len(n.Attr))
			for _, a := range n.Attr {
				attrs[strings.ToLower(a.Key)] = a.Val
			}
			switch n.Data {
			case "link":
				if strings.EqualFold(attrs["rel"], "alternate") && strings.Contains(attrs["type"], "xml") && attrs["href"] != "" {
					alternates = append(alternates, attrs["href"])
				}
			case "a":
				href := attrs["href"]
				lower := strings.ToLower(href)
				if href != "" && (strings.Contains(lower, "xml") || strings.Contains(lower, "rss") || strings.Contains(lower, "feed")) {
					anchors = append(anchors, href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	var out []string
	seen := make(map[string]bool)
	for _, href := range append(alternates, anchors...) {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}
	return out
}
