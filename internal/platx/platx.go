// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package platx decides whether a release asset is appropriate for a machine.
package platx

import (
	"bufio"
	"os"
	"regexp"
	"runtime"
	"strings"
	"sync"
)

// Filter holds the machine traits an asset name is matched against.
type Filter struct {
	// OS is a runtime.GOOS-style value.
	OS string
	// Arch is a runtime.GOARCH-style value.
	Arch string
	// Distro is the package-family of the host: "debian", "rhel", "alpine",
	// or empty when unknown.
	Distro string
}

var (
	hostOnce   sync.Once
	hostDistro string
)

// Host returns the filter for the current machine.
func Host() Filter {
	hostOnce.Do(func() { hostDistro = detectDistro("/etc/os-release") })
	return Filter{OS: runtime.GOOS, Arch: runtime.GOARCH, Distro: hostDistro}
}

func detectDistro(osRelease string) string {
	f, err := os.Open(osRelease)
	if err != nil {
		return ""
	}
	defer f.Close()
	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "ID=") || strings.HasPrefix(line, "ID_LIKE=") {
			_, v, _ := strings.Cut(line, "=")
			ids = append(ids, strings.Fields(strings.Trim(v, `"`))...)
		}
	}
	for _, id := range ids {
		switch id {
		case "debian", "ubuntu":
			return "debian"
		case "rhel", "fedora", "centos":
			return "rhel"
		case "alpine":
			return "alpine"
		}
	}
	return ""
}

// Platform marker words inside asset names, e.g. "win64", "linux", "darwin".
var markerRE = regexp.MustCompile(`(?i)\b(windows|win|linux|osx|darwin|macos|freebsd)\d*\b`)

// Extensions that only make sense on one OS. Tarballs are deliberately
// tolerated everywhere.
var osExclusiveExt = map[string]string{
	".exe": "windows",
	".msi": "windows",
}

// Extensions that belong to one distro family (".dmg" rides along here since
// it behaves the same way). AppImage is always permitted.
var distroExclusiveExt = map[string]string{
	".deb": "debian",
	".rpm": "rhel",
	".apk": "alpine",
	".dmg": "darwin",
}

func archRejects(arch string) *regexp.Regexp {
	switch arch {
	case "amd64":
		return regexp.MustCompile(`(?i)\b(i386|i686|arm64|aarch64|armhf|armv7\w*|arm|mips64|ppc64\w*)\b`)
	case "arm64":
		return regexp.MustCompile(`(?i)\b(x86-64|amd64|x64|i386|i686)\b`)
	default:
		return nil
	}
}

func markerOS(marker string) string {
	switch strings.ToLower(marker) {
	case "windows", "win":
		return "windows"
	case "osx", "darwin", "macos":
		return "darwin"
	default:
		return strings.ToLower(marker)
	}
}

// Suits reports whether the asset name looks usable on this machine.
func (f Filter) Suits(name string) bool {
	// Underscores become dashes so that word boundaries stay meaningful.
	norm := strings.ReplaceAll(strings.ToLower(name), "_", "-")
	for ext, wantOS := range osExclusiveExt {
		if strings.HasSuffix(norm, ext) && f.OS != wantOS {
			return false
		}
	}
	if m := markerRE.FindStringSubmatch(norm); m != nil {
		if markerOS(m[1]) != f.OS {
			return false
		}
	}
	if !strings.HasSuffix(norm, ".appimage") {
		for ext, family := range distroExclusiveExt {
			if !strings.HasSuffix(norm, ext) {
				continue
			}
			if family == "darwin" {
				if f.OS != "darwin" {
					return false
				}
				continue
			}
			if f.Distro != family {
				return false
			}
		}
	}
	if re := archRejects(f.Arch); re != nil && re.MatchString(norm) {
		return false
	}
	return true
}
