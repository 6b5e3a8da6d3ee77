// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"time"

	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
)

// BitBucketTraits configures the BitBucket adapter.
var BitBucketTraits = &Traits{
	Name:              "bitbucket",
	DefaultHostname:   "bitbucket.org",
	RepoURLComponents: 2,
	ReleaseURLFormat:  "https://{hostname}/{repo}/get/{tag}.{ext}",
}

// BitBucket resolves releases from the downloads area when the project uses
// it, falling back to the tag list.
type BitBucket struct {
	base
}

var _ Holder = &BitBucket{}

func NewBitBucket(repo, hostname string, client httpx.BasicClient) *BitBucket {
	return &BitBucket{base: newBase(BitBucketTraits, repo, hostname, client)}
}

func (b *BitBucket) api(suffix string) string {
	return "https://api.bitbucket.org/2.0/repositories/" + b.repo + suffix
}

type bitbucketDownload struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedOn time.Time `json:"created_on"`
	Links     struct {
		Self struct {
			Href string `json:"href"`
		} `json:"self"`
	} `json:"links"`
}

type bitbucketTagPage struct {
	Values []struct {
		Name   string `json:"name"`
		Target struct {
			Date time.Time `json:"date"`
		} `json:"target"`
	} `json:"values"`
	Next string `json:"next"`
}

func (b *BitBucket) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	if ret := b.fromDownloads(ctx, preOK); ret != nil {
		return ret, nil
	}
	logx.Infof("no usable downloads, scanning tags")
	return b.fromTags(ctx, preOK)
}

// fromDownloads picks the highest version parsed out of the downloads file
// names. Projects without the downloads feature return an error page here.
func (b *BitBucket) fromDownloads(ctx context.Context, preOK bool) *Release {
	var page struct {
		Values []bitbucketDownload `json:"values"`
	}
	if err := getJSON(ctx, b.client, b.api("/downloads"), &page); err != nil || len(page.Values) == 0 {
		return nil
	}
	var ret *Release
	for _, d := range page.Values {
		v := b.SanitizeVersion(d.Name, preOK)
		if v == nil {
			continue
		}
		if ret == nil || v.Compare(ret.Version) > 0 {
			ret = &Release{
				Version: v,
				TagName: d.Name,
				TagDate: d.CreatedOn,
				Type:    "release",
				Assets:  []Asset{{Name: d.Name, URL: d.Links.Self.Href, Size: d.Size}},
			}
		}
	}
	return ret
}

func (b *BitBucket) fromTags(ctx context.Context, preOK bool) (*Release, error) {
	next := b.api("/refs/tags?pagelen=100")
	var ret *Release
	for next != "" {
		var page bitbucketTagPage
		if err := getJSON(ctx, b.client, next, &page); err != nil {
			if ret != nil {
				return ret, nil
			}
			return nil, err
		}
		for _, t := range page.Values {
			v := b.SanitizeVersion(t.Name, preOK)
			if v == nil {
				continue
			}
			if ret == nil || v.Compare(ret.Version) > 0 {
				logx.Infof("selected %s as current selection", v)
				ret = &Release{Version: v, TagName: t.Name, TagDate: t.Target.Date, Type: "tag"}
			}
		}
		next = page.Next
	}
	return ret, nil
}
