// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"

	"github.com/tagscout/tagscout/internal/httpx"
	"github.com/tagscout/tagscout/pkg/latest"
)

var downloadCmd = &cobra.Command{
	Use:           "download <repo-or-url>",
	Short:         "Download the latest release",
	Args:          cobra.ArbitraryArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runDownload,
}

var extractCmd = &cobra.Command{
	Use:           "extract <repo-or-url>",
	Aliases:       []string{"unzip"},
	Short:         "Download and unpack the latest release into the current directory",
	Args:          cobra.ArbitraryArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runExtract,
}

var installCmd = &cobra.Command{
	Use:           "install <repo-or-url>",
	Short:         "Install the latest release (rpm assets or an AppImage)",
	Args:          cobra.ArbitraryArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runInstall,
}

func downloadClient() httpx.BasicClient {
	// No overall timeout: large downloads are paced by the progress reader.
	return &httpx.WithUserAgent{BasicClient: &http.Client{}, UserAgent: "tagscout"}
}

// downloadURLs resolves a project and picks what to fetch: the matching
// assets when an asset filter is in play, the source archive otherwise.
func downloadURLs(cmd *cobra.Command, repo string) (*latest.Result, []string, error) {
	opt := baseOptions(cmd)
	res, err := latest.Latest(cmd.Context(), repo, opt)
	if err != nil {
		return nil, nil, err
	}
	if flagAssets || flagFilter != "" || opt.HavingAsset != nil {
		urls, err := res.Assets(cmd.Context(), false, flagFilter)
		if err != nil {
			return nil, nil, err
		}
		if len(urls) == 0 {
			return nil, nil, &exitCodeError{code: 3, msg: "no matching assets"}
		}
		return res, urls, nil
	}
	if res.Release.SourceURL == "" {
		return nil, nil, &exitCodeError{code: 3, msg: "release has no downloadable source"}
	}
	return res, []string{res.Release.SourceURL}, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	repos, err := inputRepos(args)
	if err != nil {
		return err
	}
	client := downloadClient()
	for _, repo := range repos {
		_, urls, err := downloadURLs(cmd, repo)
		if err != nil {
			return err
		}
		for _, u := range urls {
			dest := ""
			if flagOutput != "" && len(urls) == 1 && len(repos) == 1 {
				dest = flagOutput
			}
			name, err := downloadFile(cmd.Context(), client, u, dest)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	repos, err := inputRepos(args)
	if err != nil {
		return err
	}
	if len(repos) != 1 {
		return errors.New("extract takes exactly one project")
	}
	_, urls, err := downloadURLs(cmd, repos[0])
	if err != nil {
		return err
	}
	tmp, err := os.MkdirTemp("", "tagscout-extract-")
	if err != nil {
		return errors.Wrap(err, "creating temp dir")
	}
	defer os.RemoveAll(tmp)
	client := downloadClient()
	name, err := downloadFile(cmd.Context(), client, urls[0], "")
	if err != nil {
		return err
	}
	archive := filepath.Join(tmp, filepath.Base(name))
	if err := os.Rename(name, archive); err != nil {
		return errors.Wrap(err, "staging archive")
	}
	dest, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := unpack(archive, dest); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "extracted %s\n", filepath.Base(archive))
	return nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	repos, err := inputRepos(args)
	if err != nil {
		return err
	}
	if len(repos) != 1 {
		return errors.New("install takes exactly one project")
	}
	res, urls, err := installCandidates(cmd, repos[0])
	if err != nil {
		return err
	}
	var rpms, appImages []string
	for _, u := range urls {
		switch {
		case strings.HasSuffix(u, ".rpm"):
			rpms = append(rpms, u)
		case strings.Contains(path.Base(u), ".AppImage"):
			appImages = append(appImages, u)
		}
	}
	switch {
	case len(rpms) > 0:
		return installRPMs(cmd, rpms)
	case len(appImages) > 0:
		return installAppImage(cmd, appImages[0], res.Release.Version.String())
	default:
		return &exitCodeError{code: 3, msg: "no installable assets (rpm or AppImage)"}
	}
}

func installCandidates(cmd *cobra.Command, repo string) (*latest.Result, []string, error) {
	opt := baseOptions(cmd)
	res, err := latest.Latest(cmd.Context(), repo, opt)
	if err != nil {
		return nil, nil, err
	}
	urls, err := res.Assets(cmd.Context(), false, flagFilter)
	if err != nil {
		return nil, nil, err
	}
	return res, urls, nil
}

func installRPMs(cmd *cobra.Command, rpms []string) error {
	pm, err := exec.LookPath("dnf")
	if err != nil {
		if pm, err = exec.LookPath("yum"); err != nil {
			return errors.New("neither dnf nor yum found")
		}
	}
	cargs := []string{"install"}
	if flagAssumeYes {
		cargs = append(cargs, "-y")
	}
	cargs = append(cargs, rpms...)
	c := exec.CommandContext(cmd.Context(), pm, cargs...)
	c.Stdin = os.Stdin
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	if err := c.Run(); err != nil {
		return errors.Wrapf(err, "running %s install", pm)
	}
	return nil
}

func installAppImage(cmd *cobra.Command, url, version string) error {
	name, err := downloadFile(cmd.Context(), downloadClient(), url, flagOutput)
	if err != nil {
		return err
	}
	if err := os.Chmod(name, 0o755); err != nil {
		return errors.Wrap(err, "marking AppImage executable")
	}
	if flagOutput == "" {
		if home, err := os.UserHomeDir(); err == nil {
			bin := filepath.Join(home, ".local", "bin")
			if err := os.MkdirAll(bin, 0o755); err == nil {
				target := filepath.Join(bin, filepath.Base(name))
				if err := os.Rename(name, target); err == nil {
					name = target
				}
			}
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "installed %s (%s)\n", name, version)
	return nil
}

// downloadFile streams url to dest, showing progress on stderr. An empty
// dest derives the filename from Content-Disposition or the URL path. It
// returns the name the file was saved under.
func downloadFile(ctx context.Context, client httpx.BasicClient, rawURL, dest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "creating request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "downloading %s", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrap(errors.New(resp.Status), "downloading "+rawURL)
	}
	if dest == "" {
		dest = responseFilename(resp, rawURL)
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	var r io.Reader = resp.Body
	var bar *pb.ProgressBar
	if resp.ContentLength > 0 {
		bar = pb.New64(resp.ContentLength).SetUnits(pb.U_BYTES)
		bar.Output = os.Stderr
		bar.Start()
		r = bar.NewProxyReader(resp.Body)
	}
	_, err = io.Copy(f, r)
	if bar != nil {
		bar.Finish()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return "", errors.Wrapf(err, "writing %s", dest)
	}
	return dest, nil
}

// responseFilename derives a local filename, preferring the server's
// Content-Disposition over the URL path.
func responseFilename(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := filepath.Base(params["filename"]); name != "." && name != "/" && name != "" {
				return name
			}
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		p := strings.TrimSuffix(u.Path, "/download")
		if name := path.Base(p); name != "." && name != "/" && name != "" {
			return name
		}
	}
	return "download.bin"
}

// unpack extracts an archive into dest, refusing entries that would land
// outside it.
func unpack(archive, dest string) error {
	switch {
	case strings.HasSuffix(archive, ".zip"):
		return unzipFile(archive, dest)
	case strings.HasSuffix(archive, ".tar.gz"), strings.HasSuffix(archive, ".tgz"):
		f, err := os.Open(archive)
		if err != nil {
			return err
		}
		defer f.Close()
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "opening gzip stream")
		}
		defer gz.Close()
		return untar(gz, dest)
	case strings.HasSuffix(archive, ".tar.xz"), strings.HasSuffix(archive, ".txz"):
		f, err := os.Open(archive)
		if err != nil {
			return err
		}
		defer f.Close()
		xzr, err := xz.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "opening xz stream")
		}
		return untar(xzr, dest)
	default:
		return errors.Errorf("don't know how to extract %s", filepath.Base(archive))
	}
}

func untar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading archive")
		}
		if !filepath.IsLocal(hdr.Name) {
			return errors.Errorf("archive entry escapes destination: %s", hdr.Name)
		}
		target := filepath.Join(dest, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
			_, err = io.Copy(f, tr)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return errors.Wrapf(err, "writing %s", hdr.Name)
			}
		case tar.TypeSymlink:
			link := filepath.Join(filepath.Dir(hdr.Name), hdr.Linkname)
			if filepath.IsAbs(hdr.Linkname) || !filepath.IsLocal(link) {
				return errors.Errorf("archive symlink escapes destination: %s", hdr.Name)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return err
			}
		}
	}
}

func unzipFile(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return errors.Wrap(err, "opening zip")
	}
	defer zr.Close()
	for _, zf := range zr.File {
		if !filepath.IsLocal(filepath.FromSlash(zf.Name)) {
			return errors.Errorf("archive entry escapes destination: %s", zf.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(zf.Name))
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		f, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(f, rc)
		rc.Close()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrapf(err, "writing %s", zf.Name)
		}
	}
	return nil
}
