// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tagscout/tagscout/internal/httpx"
)

// HelmChartTraits configures the Helm chart adapter.
var HelmChartTraits = &Traits{
	Name: "helm_chart",
}

// HelmChart reads a Chart.yaml, local or remote, and reports the chart
// version.
type HelmChart struct {
	base
}

var _ Holder = &HelmChart{}

func NewHelmChart(repo, hostname string, client httpx.BasicClient) *HelmChart {
	return &HelmChart{base: newBase(HelmChartTraits, repo, hostname, client)}
}

type chartManifest struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	AppVersion string `yaml:"appVersion"`
	Home       string `yaml:"home"`
}

// ChartURL normalizes a user-facing Chart.yaml location for fetching,
// rewriting GitHub blob pages to their raw content URLs.
func ChartURL(u string) string {
	if strings.Contains(u, "github.com/") && strings.Contains(u, "/blob/") {
		u = strings.Replace(u, "github.com/", "raw.githubusercontent.com/", 1)
		u = strings.Replace(u, "/blob/", "/", 1)
	}
	if !strings.HasSuffix(u, "Chart.yaml") {
		u = strings.TrimSuffix(u, "/") + "/Chart.yaml"
	}
	return u
}

func (h *HelmChart) chartLocation() string {
	if strings.HasPrefix(h.repo, "http://") || strings.HasPrefix(h.repo, "https://") {
		return ChartURL(h.repo)
	}
	return ChartURL("https://" + h.hostname + "/" + h.repo)
}

func (h *HelmChart) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	body, err := getBytes(ctx, h.client, h.chartLocation())
	if err != nil {
		return nil, &BadProjectError{Project: h.repo}
	}
	var chart chartManifest
	if err := yaml.Unmarshal(body, &chart); err != nil {
		return nil, err
	}
	if chart.Version == "" {
		return nil, nil
	}
	v := h.SanitizeVersion(chart.Version, preOK)
	if v == nil {
		return nil, nil
	}
	return &Release{Version: v, TagName: chart.Version, Type: "helm"}, nil
}

func (h *HelmChart) DownloadURL(r *Release, shortURLs bool) string { return "" }
