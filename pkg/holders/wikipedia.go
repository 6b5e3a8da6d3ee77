// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/tagscout/tagscout/internal/httpx"
)

// WikipediaTraits configures the Wikipedia infobox adapter.
var WikipediaTraits = &Traits{
	Name:               "wiki",
	DefaultHostname:    "en.wikipedia.org",
	SubdomainIndicator: "wikipedia",
	RepoURLComponents:  1,
	RepoURLOffset:      1,
}

// Wikipedia reads a software article's infobox "Stable release" or
// "Latest release" row.
type Wikipedia struct {
	base
}

var _ Holder = &Wikipedia{}

func NewWikipedia(repo, hostname string, client httpx.BasicClient) *Wikipedia {
	return &Wikipedia{base: newBase(WikipediaTraits, repo, hostname, client)}
}

func (w *Wikipedia) CanonicalLink() string {
	return "https://" + w.hostname + "/wiki/" + w.repo
}

func (w *Wikipedia) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	body, err := getBytes(ctx, w.client, w.CanonicalLink())
	if err != nil {
		return nil, &BadProjectError{Project: w.repo}
	}
	text := infoboxReleaseText(body)
	if text == "" {
		return nil, nil
	}
	v := w.SanitizeVersion(text, preOK)
	if v == nil {
		return nil, nil
	}
	return &Release{Version: v, TagName: text, Type: "source"}, nil
}

// infoboxReleaseText walks the page for a table row whose header mentions a
// stable or latest release and returns the row's data cell text.
func infoboxReleaseText(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "tr" {
			var header, data string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode {
					continue
				}
				switch c.Data {
				case "th":
					header = nodeText(c)
				case "td":
					data = nodeText(c)
				}
			}
			lower := strings.ToLower(header)
			if data != "" && (strings.Contains(lower, "stable release") || strings.Contains(lower, "latest release")) {
				found = strings.TrimSpace(data)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
