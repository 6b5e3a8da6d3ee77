// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"strings"
	"time"

	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
	"github.com/tagscout/tagscout/pkg/feed"
)

// FeedRepoTraits configures the generic website-feed adapter.
var FeedRepoTraits = &Traits{
	Name: "website-feed",
}

// FeedRepo treats an arbitrary site's RSS or Atom feed as a release
// history. The factory discovers the feed URL from the homepage.
type FeedRepo struct {
	base
	feedURL string
}

var _ Holder = &FeedRepo{}

func NewFeedRepo(repo, hostname, feedURL string, client httpx.BasicClient) *FeedRepo {
	f := &FeedRepo{base: newBase(FeedRepoTraits, repo, hostname, client), feedURL: feedURL}
	if f.feedURL == "" {
		f.feedURL = "https://" + f.hostname + "/feed"
	}
	return f
}

func (f *FeedRepo) CanonicalLink() string {
	return "https://" + f.hostname + "/"
}

func (f *FeedRepo) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	return feedLatest(ctx, f.client, f.feedURL, preOK, &f.base, feedEntryTitle)
}

func feedEntryTitle(e feed.Entry) string { return e.Title }

func firstTime(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func feedEntryLinkTag(e feed.Entry) string { return tagFromLink(e.Link) }

// feedLatest selects the highest sanitized version across a feed's entries.
// extract maps an entry to the candidate tag string.
func feedLatest(ctx context.Context, c httpx.BasicClient, url string, preOK bool, b *base, extract func(feed.Entry) string) (*Release, error) {
	body, err := getBytes(ctx, c, url)
	if err != nil {
		if strings.Contains(err.Error(), "404") {
			return nil, &BadProjectError{Project: b.repo}
		}
		return nil, err
	}
	var ret *Release
	for _, e := range feed.Parse(body).Entries {
		tag := extract(e)
		v := b.SanitizeVersion(tag, preOK)
		if v == nil {
			continue
		}
		if ret == nil || v.Compare(ret.Version) > 0 {
			logx.Infof("selected %s as current selection", v)
			ret = &Release{Version: v, TagName: tag, TagDate: e.Updated, Type: "feed"}
		}
	}
	return ret, nil
}
