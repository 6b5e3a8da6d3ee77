// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"

	"github.com/tagscout/tagscout/internal/httpx"
)

// WordPressTraits configures the wordpress.org adapter.
var WordPressTraits = &Traits{
	Name:              "wp",
	DefaultHostname:   "wordpress.org",
	RepoURLComponents: 1,
	RepoURLOffset:     1,
}

// WordPress resolves WordPress core and plugin versions from the
// api.wordpress.org JSON endpoints.
type WordPress struct {
	base
}

var _ Holder = &WordPress{}

func NewWordPress(repo, hostname string, client httpx.BasicClient) *WordPress {
	return &WordPress{base: newBase(WordPressTraits, repo, hostname, client)}
}

func (w *WordPress) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	if w.repo == "" || w.repo == "wordpress" {
		return w.core(ctx, preOK)
	}
	return w.plugin(ctx, preOK)
}

func (w *WordPress) core(ctx context.Context, preOK bool) (*Release, error) {
	var check struct {
		Offers []struct {
			Version  string `json:"version"`
			Download string `json:"download"`
		} `json:"offers"`
	}
	if err := getJSON(ctx, w.client, "https://api.wordpress.org/core/version-check/1.7/", &check); err != nil {
		return nil, err
	}
	var ret *Release
	for _, o := range check.Offers {
		v := w.SanitizeVersion(o.Version, preOK)
		if v == nil {
			continue
		}
		if ret == nil || v.Compare(ret.Version) > 0 {
			ret = &Release{
				Version: v,
				TagName: o.Version,
				Type:    "release",
				Assets:  []Asset{{Name: "wordpress-" + o.Version + ".zip", URL: o.Download}},
			}
		}
	}
	return ret, nil
}

func (w *WordPress) plugin(ctx context.Context, preOK bool) (*Release, error) {
	var info struct {
		Version      string `json:"version"`
		DownloadLink string `json:"download_link"`
	}
	url := "https://api.wordpress.org/plugins/info/1.0/" + w.repo + ".json"
	if err := getJSON(ctx, w.client, url, &info); err != nil || info.Version == "" {
		return nil, &BadProjectError{Project: w.repo}
	}
	v := w.SanitizeVersion(info.Version, preOK)
	if v == nil {
		return nil, nil
	}
	ret := &Release{Version: v, TagName: info.Version, Type: "release"}
	if info.DownloadLink != "" {
		ret.Assets = []Asset{{Name: w.repo + "." + info.Version + ".zip", URL: info.DownloadLink}}
	}
	return ret, nil
}

func (w *WordPress) DownloadURL(r *Release, shortURLs bool) string {
	if r != nil && len(r.Assets) > 0 {
		return r.Assets[0].URL
	}
	return ""
}
