// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpmspec reads the subset of RPM spec files needed to track
// upstream releases: the preamble tags plus the %global conventions used to
// point a package at its upstream project.
package rpmspec

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/tagscout/tagscout/pkg/version"
)

var (
	globalRE = regexp.MustCompile(`^%(?:global|define)\s+(\S+)\s+(.+?)\s*$`)
	tagRE    = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]*)\s*:\s*(.+?)\s*$`)
)

// Spec is one parsed spec file. Line content is retained so updates can be
// written back without disturbing the rest of the file.
type Spec struct {
	Path    string
	Name    string
	Version string
	URL     string
	Source0 string
	License string
	// Globals holds %global/%define macros, including the lastversion_*
	// and upstream_* tracking conventions and commit pins.
	Globals map[string]string

	lines []string
}

// Parse reads a spec file from disk.
func Parse(path string) (*Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading spec")
	}
	s := ParseBytes(b)
	s.Path = path
	return s, nil
}

// ParseBytes parses spec content.
func ParseBytes(b []byte) *Spec {
	s := &Spec{Globals: make(map[string]string)}
	s.lines = strings.Split(string(b), "\n")
	for _, line := range s.lines {
		if m := globalRE.FindStringSubmatch(line); m != nil {
			s.Globals[m[1]] = m[2]
			continue
		}
		m := tagRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch m[1] {
		case "Name":
			s.Name = m[2]
		case "Version":
			s.Version = m[2]
		case "URL":
			s.URL = m[2]
		case "Source0", "Source":
			if s.Source0 == "" {
				s.Source0 = m[2]
			}
		case "License":
			s.License = m[2]
		}
	}
	return s
}

// Repo is the upstream project reference: the lastversion_repo macro when
// present, otherwise the URL tag.
func (s *Spec) Repo() string {
	if r, ok := s.Globals["lastversion_repo"]; ok {
		return r
	}
	if r, ok := s.Globals["upstream_github"]; ok {
		return r
	}
	return s.URL
}

// Only returns the tag predicate configured for this package, if any.
func (s *Spec) Only() string {
	return s.Globals["lastversion_only"]
}

// Commit returns the pinned commit, if the package tracks one.
func (s *Spec) Commit() string {
	return s.Globals["commit"]
}

// CurrentVersion parses the version the spec currently packages: the
// upstream_version macro wins over the Version tag, which may hold a
// sanitized (RPM-legal) rendition.
func (s *Spec) CurrentVersion() (*version.Version, error) {
	raw := s.Version
	if uv, ok := s.Globals["upstream_version"]; ok {
		raw = uv
	}
	if raw == "" {
		return nil, errors.New("spec has no Version")
	}
	return version.New(raw)
}

// SetVersion rewrites the packaged version in place and reports whether
// anything changed. When the spec tracks upstream_version, that macro is
// rewritten and the Version tag gets an RPM-legal rendition (dashes become
// dots); otherwise the Version tag is rewritten directly.
func (s *Spec) SetVersion(v string) bool {
	rpmVersion := strings.ReplaceAll(v, "-", ".")
	_, hasUpstream := s.Globals["upstream_version"]
	changed := false
	for i, line := range s.lines {
		if hasUpstream {
			if m := globalRE.FindStringSubmatch(line); m != nil && m[1] == "upstream_version" {
				if m[2] != v {
					s.lines[i] = "%global upstream_version " + v
					changed = true
				}
				continue
			}
		}
		m := tagRE.FindStringSubmatch(line)
		if m == nil || m[1] != "Version" {
			continue
		}
		want := v
		if hasUpstream {
			want = rpmVersion
		}
		if m[2] != want {
			prefix := line[:strings.Index(line, ":")+1]
			ws := strings.TrimSuffix(line[len(prefix):], m[2])
			s.lines[i] = prefix + ws + want
			changed = true
		}
	}
	if changed {
		s.Version = rpmVersion
		if hasUpstream {
			s.Globals["upstream_version"] = v
		}
	}
	return changed
}

// Save writes the (possibly rewritten) spec back to its path.
func (s *Spec) Save() error {
	if s.Path == "" {
		return errors.New("spec has no path")
	}
	return errors.Wrap(os.WriteFile(s.Path, []byte(strings.Join(s.lines, "\n")), 0644), "writing spec")
}

// String renders the current content.
func (s *Spec) String() string {
	return strings.Join(s.lines, "\n")
}
