// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package version turns heterogeneous upstream tag spellings into comparable
// PEP 440 versions.
//
// Upstream tags are messy: "release-3_0_2", "v2.41.0-rc2.windows.1",
// "8u462-b08", "blah-1.2.3-devel". A normalization pipeline rewrites such
// spellings into something the PEP 440 grammar accepts, and rejects strings
// that carry no version at all.
package version

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/datawire/ocibuild/pkg/python/pep440"
	"github.com/pkg/errors"
)

// ErrInvalid reports that a string has no recognizable version. Holders treat
// it as "skip this tag", never as fatal.
var ErrInvalid = errors.New("invalid version")

// Version is an immutable parsed version, comparable by PEP 440 rules.
type Version struct {
	v   *pep440.Version
	tag string
	// letter, when non-zero, is a trailing patch letter (OpenSSL "1.1.1b")
	// that parsed into a post-release and is re-emitted by String.
	letter byte
}

// Parser carries the per-repo knobs of the normalization pipeline.
type Parser struct {
	// ProjectNames are known name prefixes to strip, so "libssh2-1.2.3"
	// yields 1.2.3 rather than 2.1.2.3.
	ProjectNames []string
	// LastLetterPost enables the OpenSSL-style convention where a trailing
	// letter is a post-release ("1.1.1b" > "1.1.1a").
	LastLetterPost bool
}

// New parses a tag with default options.
func New(tag string) (*Version, error) {
	return Parser{}.Parse(tag)
}

// MustNew parses a tag with default options, panicking on failure. Test use.
func MustNew(tag string) *Version {
	v, err := New(tag)
	if err != nil {
		panic(err)
	}
	return v
}

var (
	updateStyleRE     = regexp.MustCompile(`(\d{1,3})u(\d{1,4})(?:-b(\d+))?`)
	updateDetectRE    = regexp.MustCompile(`\d{1,3}u\d{1,4}`)
	betaRCRE          = regexp.MustCompile(`-beta[-.]rc(\d+)`)
	previewNumRE      = regexp.MustCompile(`-preview-(\d+)`)
	earlyAccessRE     = regexp.MustCompile(`-early-access-(\d+)`)
	preNumRE          = regexp.MustCompile(`-pre-(\d+)`)
	pNumRE            = regexp.MustCompile(`-p(\d+)\b`)
	rcTailRE          = regexp.MustCompile(`^rc(\d+)\.(.+)$`)
	postTokenRE       = regexp.MustCompile(`^p(\d+)$`)
	alphabeticRE      = regexp.MustCompile(`^[A-Za-z]+$`)
	numericRE         = regexp.MustCompile(`^\d+$`)
	underscoreVerRE   = regexp.MustCompile(`^(\d+_)+\d+$`)
	releaseAffixRE    = regexp.MustCompile(`(?i)(?:^release[._-]|[._-]release$)`)
	lastLetterRE      = regexp.MustCompile(`(\d)([a-z])$`)
	leadingNonDigitRE = regexp.MustCompile(`^[^0-9]+`)
	// Rescue search for step 8: version-looking substrings of the raw input.
	rescueRE = regexp.MustCompile(`\d+(\.\d+|\.x)+(rc\d+)?`)
)

// IsUpdateStyle reports whether a tag uses the OpenJDK "Nu<UPDATE>"
// convention.
func IsUpdateStyle(tag string) bool {
	return updateDetectRE.MatchString(tag)
}

// Parse runs the normalization pipeline on a raw tag and hands the result to
// the PEP 440 parser.
func (p Parser) Parse(tag string) (*Version, error) {
	s := tag
	// Special-case textual substitutions.
	s = strings.ReplaceAll(s, " SP-", ".post")
	s = updateStyleRE.ReplaceAllStringFunc(s, func(m string) string {
		g := updateStyleRE.FindStringSubmatch(m)
		if g[3] != "" {
			return g[1] + "." + g[2] + ".post" + g[3]
		}
		return g[1] + "." + g[2]
	})
	// Dash-group normalizations.
	s = betaRCRE.ReplaceAllString(s, "-beta$1")
	s = previewNumRE.ReplaceAllString(s, "-pre$1")
	s = earlyAccessRE.ReplaceAllString(s, "-alpha$1")
	s = preNumRE.ReplaceAllString(s, "-pre$1")
	s = pNumRE.ReplaceAllString(s, "-post$1")
	if rest, ok := strings.CutPrefix(s, "pre-"); ok {
		s = rest + "-pre0"
	}
	// Known project-name prefix strip.
	for _, name := range p.ProjectNames {
		if name == "" {
			continue
		}
		low, n := strings.ToLower(s), strings.ToLower(name)
		if strings.HasPrefix(low, n+"-") || strings.HasPrefix(low, n+"_") {
			s = s[len(name)+1:]
			break
		}
	}
	tokens := normalizeTokens(strings.Split(s, "-"))
	if len(tokens) == 0 {
		return nil, errors.Wrapf(ErrInvalid, "%q", tag)
	}
	tokens[0] = leadingNonDigitRE.ReplaceAllString(tokens[0], "")
	if strings.Contains(tokens[0], ".") && len(tokens) > 1 && numericRE.MatchString(tokens[1]) {
		tokens = tokens[:1]
	}
	joined := strings.Join(tokens, ".")
	joined = releaseAffixRE.ReplaceAllString(joined, "")
	if underscoreVerRE.MatchString(joined) {
		joined = strings.ReplaceAll(joined, "_", ".")
	}
	var letter byte
	if p.LastLetterPost {
		if m := lastLetterRE.FindStringSubmatch(joined); m != nil {
			letter = m[2][0]
			joined = joined[:len(joined)-1] + ".post" + strconv.Itoa(int(letter))
		}
	}
	if v, err := pep440.ParseVersion(joined); err == nil {
		return &Version{v: v, tag: tag, letter: letter}, nil
	}
	// Last resort: look for a version-shaped substring of the raw input.
	for _, m := range rescueRE.FindAllString(tag, -1) {
		if v, err := pep440.ParseVersion(m); err == nil {
			return &Version{v: v, tag: tag}, nil
		}
	}
	return nil, errors.Wrapf(ErrInvalid, "%q", tag)
}

func normalizeTokens(raw []string) []string {
	var tokens []string
	for _, tok := range raw {
		switch strings.ToLower(tok) {
		case "devel", "test", "dev":
			tokens = append(tokens, "dev0")
			continue
		case "alpha":
			tokens = append(tokens, "a0")
			continue
		case "beta":
			tokens = append(tokens, "b0")
			continue
		case "rc", "preview", "pre":
			tokens = append(tokens, "rc0")
			continue
		}
		if m := rcTailRE.FindStringSubmatch(tok); m != nil {
			// Collapse trailing numeric segments: rc2.windows.1 -> rc2.post1.
			segs := strings.Split(m[2], ".")
			post := ""
			for i := len(segs) - 1; i >= 0; i-- {
				if numericRE.MatchString(segs[i]) {
					post = segs[i]
				} else {
					break
				}
			}
			if post != "" {
				tokens = append(tokens, "rc"+m[1]+".post"+post)
			} else {
				tokens = append(tokens, "rc"+m[1])
			}
			continue
		}
		if m := postTokenRE.FindStringSubmatch(tok); m != nil {
			tokens = append(tokens, "post"+m[1])
			continue
		}
		if alphabeticRE.MatchString(tok) || tok == "" {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Tag returns the original tag string the version was parsed from.
func (v *Version) Tag() string { return v.tag }

// Compare orders versions by PEP 440 rules: negative when v < o.
func (v *Version) Compare(o *Version) int { return v.v.Cmp(*o.v) }

// String returns the canonical form. The trailing patch letter, when the
// repo uses that convention, is emitted back in place of its post-release.
func (v *Version) String() string {
	if v.letter != 0 && v.v.Post != nil {
		bare := *v.v
		bare.Post = nil
		return bare.String() + string(v.letter)
	}
	return v.v.String()
}

// Release returns the release tuple.
func (v *Version) Release() []int { return v.v.Release }

// Epoch returns the version epoch.
func (v *Version) Epoch() int { return v.v.Epoch }

// Major returns the first release component (0 when absent).
func (v *Version) Major() int { return v.v.Major() }

// Minor returns the second release component (0 when absent).
func (v *Version) Minor() int { return v.v.Minor() }

// Micro returns the third release component (0 when absent).
func (v *Version) Micro() int { return v.v.Micro() }

// HasPreSegment reports whether a pre or dev segment is present, which is
// what the pre_ok filter rejects.
func (v *Version) HasPreSegment() bool {
	return v.v.Pre != nil || v.v.Dev != nil
}

// IsPreRelease reports whether this version is a pre-release. Beyond PEP 440
// segments, a micro component of 90 or above marks nightly-style builds as
// pre-releases, unless that component is a YYYYMMDD date stamp.
func (v *Version) IsPreRelease() bool {
	if v.HasPreSegment() {
		return true
	}
	if micro := v.Micro(); micro >= 90 && !looksLikeDate(micro) {
		return true
	}
	return false
}

func looksLikeDate(n int) bool {
	if n < 10000101 || n > 99991231 {
		return false
	}
	_, err := time.Parse("20060102", strconv.Itoa(n))
	return err == nil
}

// Even reports whether the minor component is present and even, the common
// stable-track convention of nginx and the Linux kernel.
func (v *Version) Even() bool {
	rel := v.v.Release
	return len(rel) >= 2 && rel[1]%2 == 0
}

// SemLevel selects how much of the release tuple SemBase keeps.
type SemLevel string

const (
	SemAny   SemLevel = "any"
	SemMajor SemLevel = "major"
	SemMinor SemLevel = "minor"
	SemPatch SemLevel = "patch"
)

// ParseSemLevel validates a --sem flag value.
func ParseSemLevel(s string) (SemLevel, error) {
	switch SemLevel(s) {
	case SemAny, SemMajor, SemMinor, SemPatch:
		return SemLevel(s), nil
	}
	return "", errors.Errorf("invalid sem level %q", s)
}

// SemBase returns a new Version truncated to the requested semver prefix.
func (v *Version) SemBase(level SemLevel) *Version {
	var keep int
	switch level {
	case SemMajor:
		keep = 1
	case SemMinor:
		keep = 2
	case SemPatch:
		keep = 3
	default:
		return v
	}
	rel := v.v.Release
	if len(rel) > keep {
		rel = rel[:keep]
	}
	out := pep440.Version{PublicVersion: pep440.PublicVersion{
		Epoch:   v.v.Epoch,
		Release: append([]int(nil), rel...),
	}}
	return &Version{v: &out, tag: v.tag}
}

// versionJSON is the stable serialized form used by the release cache.
type versionJSON struct {
	Version string `json:"version"`
	Tag     string `json:"tag,omitempty"`
	Letter  string `json:"letter,omitempty"`
}

// MarshalJSON serializes the canonical PEP 440 string plus the original tag,
// so cached releases survive process restarts.
func (v *Version) MarshalJSON() ([]byte, error) {
	j := versionJSON{Version: v.v.String(), Tag: v.tag}
	if v.letter != 0 {
		j.Letter = string(v.letter)
	}
	return json.Marshal(j)
}

func (v *Version) UnmarshalJSON(data []byte) error {
	var j versionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	parsed, err := pep440.ParseVersion(j.Version)
	if err != nil {
		return errors.Wrapf(ErrInvalid, "%q", j.Version)
	}
	v.v = parsed
	v.tag = j.Tag
	v.letter = 0
	if j.Letter != "" {
		v.letter = j.Letter[0]
	}
	return nil
}
