// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"time"

	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/internal/logx"
	"github.com/tagscout/tagscout/pkg/version"
)

// PyPITraits configures the PyPI adapter.
var PyPITraits = &Traits{
	Name:              "pip",
	DefaultHostname:   "pypi.org",
	CanBeSelfHosted:   true,
	RepoURLComponents: 1,
	RepoURLOffset:     1,
}

// PyPI resolves releases from the package index JSON API.
type PyPI struct {
	base
}

var _ Holder = &PyPI{}
var _ InstanceProber = &PyPI{}

func NewPyPI(repo, hostname string, client httpx.BasicClient) *PyPI {
	return &PyPI{base: newBase(PyPITraits, repo, hostname, client)}
}

type pypiProject struct {
	Info struct {
		Name     string `json:"name"`
		Version  string `json:"version"`
		Homepage string `json:"home_page"`
		License  string `json:"license"`
	} `json:"info"`
	Releases map[string][]struct {
		Filename   string    `json:"filename"`
		URL        string    `json:"url"`
		Size       int64     `json:"size"`
		UploadTime time.Time `json:"upload_time_iso_8601"`
	} `json:"releases"`
}

func (p *PyPI) project(ctx context.Context) (*pypiProject, error) {
	var proj pypiProject
	if err := p.fetchProject(ctx, &proj); err != nil {
		return nil, err
	}
	return &proj, nil
}

func (p *PyPI) fetchProject(ctx context.Context, proj *pypiProject) error {
	return getJSON(ctx, p.client, "https://"+p.hostname+"/pypi/"+p.repo+"/json", proj)
}

// IsInstance probes for a devpi or warehouse style JSON endpoint.
func (p *PyPI) IsInstance(ctx context.Context) bool {
	var proj pypiProject
	return p.fetchProject(ctx, &proj) == nil && proj.Info.Name != ""
}

// LatestRelease trusts info.version unless filters force a scan of all
// release keys.
func (p *PyPI) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	proj, err := p.project(ctx)
	if err != nil {
		return nil, &BadProjectError{Project: p.repo}
	}
	scan := p.filters.Major != "" || p.filters.Only != "" || p.filters.Exclude != "" || p.filters.Even
	if !scan {
		if v := p.SanitizeVersion(proj.Info.Version, preOK); v != nil {
			return p.release(proj, v, proj.Info.Version), nil
		}
	}
	var ret *Release
	var retKey string
	for key := range proj.Releases {
		v := p.SanitizeVersion(key, preOK)
		if v == nil {
			continue
		}
		if ret == nil || v.Compare(ret.Version) > 0 {
			logx.Infof("selected %s as current selection", v)
			ret = &Release{Version: v}
			retKey = key
		}
	}
	if ret == nil {
		return nil, nil
	}
	return p.release(proj, ret.Version, retKey), nil
}

func (p *PyPI) release(proj *pypiProject, v *version.Version, key string) *Release {
	ret := &Release{Version: v, TagName: key, Type: "release", License: proj.Info.License}
	for _, f := range proj.Releases[key] {
		ret.Assets = append(ret.Assets, Asset{Name: f.Filename, URL: f.URL, Size: f.Size})
		if ret.TagDate.IsZero() || f.UploadTime.After(ret.TagDate) {
			ret.TagDate = f.UploadTime
		}
	}
	return ret
}

func (p *PyPI) DownloadURL(r *Release, shortURLs bool) string {
	for _, a := range r.Assets {
		if len(a.Name) > 7 && a.Name[len(a.Name)-7:] == ".tar.gz" {
			return a.URL
		}
	}
	if len(r.Assets) > 0 {
		return r.Assets[0].URL
	}
	return ""
}
