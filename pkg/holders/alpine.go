// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package holders

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/tagscout/tagscout/internal/httpx"
)

// AlpineTraits configures the Alpine package index adapter.
var AlpineTraits = &Traits{
	Name:            "alpine",
	DefaultHostname: "dl-cdn.alpinelinux.org",
}

// Alpine resolves a package's version from an APKINDEX.tar.gz.
type Alpine struct {
	base
	// Branch and Repository select the index, e.g. latest-stable/main.
	Branch     string
	Repository string
	Arch       string
}

var _ Holder = &Alpine{}

func NewAlpine(repo, hostname string, client httpx.BasicClient) *Alpine {
	return &Alpine{
		base:       newBase(AlpineTraits, repo, hostname, client),
		Branch:     "latest-stable",
		Repository: "main",
		Arch:       "x86_64",
	}
}

func (a *Alpine) indexURL() string {
	return "https://" + a.hostname + "/alpine/" + a.Branch + "/" + a.Repository + "/" + a.Arch + "/APKINDEX.tar.gz"
}

// apkIndex maps package name to pkgver from APKINDEX's stanza format
// (P: name, V: version, blank-line separated).
func apkIndex(r io.Reader) (map[string]string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing index")
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading index archive")
		}
		if hdr.Name != "APKINDEX" {
			continue
		}
		pkgs := make(map[string]string)
		var name string
		sc := bufio.NewScanner(tr)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				name = ""
			case strings.HasPrefix(line, "P:"):
				name = line[2:]
			case strings.HasPrefix(line, "V:") && name != "":
				pkgs[name] = line[2:]
			}
		}
		return pkgs, sc.Err()
	}
	return nil, errors.New("no APKINDEX member in archive")
}

func (a *Alpine) LatestRelease(ctx context.Context, preOK bool) (*Release, error) {
	body, err := getBytes(ctx, a.client, a.indexURL())
	if err != nil {
		return nil, err
	}
	pkgs, err := apkIndex(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	raw, ok := pkgs[a.repo]
	if !ok {
		return nil, &BadProjectError{Project: a.repo}
	}
	// Strip the -rN package revision before parsing.
	tag := raw
	if i := strings.LastIndex(tag, "-r"); i > 0 {
		tag = tag[:i]
	}
	v := a.SanitizeVersion(tag, preOK)
	if v == nil {
		return nil, nil
	}
	return &Release{Version: v, TagName: raw, Type: "source"}, nil
}

func (a *Alpine) DownloadURL(r *Release, shortURLs bool) string { return "" }
