// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Command tagscout prints the latest stable release of a software project,
// resolving it from release feeds, hosting APIs, and package indexes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tagscout/tagscout/internal/logx"
	"github.com/tagscout/tagscout/pkg/holders"
	"github.com/tagscout/tagscout/pkg/latest"
	"github.com/tagscout/tagscout/pkg/rpmspec"
	"github.com/tagscout/tagscout/pkg/version"
)

const appVersion = "1.0.0"

var (
	flagPre         bool
	flagFormal      bool
	flagSem         string
	flagFormat      string
	flagAssets      bool
	flagSource      bool
	flagNewerThan   string
	flagMajor       string
	flagOnly        string
	flagExclude     string
	flagFilter      string
	flagHavingAsset string
	flagEven        bool
	flagAt          string
	flagAssumeYes   bool
	flagNoCache     bool
	flagVerbose     int
	flagInput       string
	flagDownload    bool
	flagOutput      string
)

// exitCodeError carries a process exit status through cobra. An empty
// message means the command already printed what it had to.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }

var rootCmd = &cobra.Command{
	Use:     "tagscout [action] <repo-or-url>",
	Short:   "Find the latest stable release of a project",
	Version: appVersion,
	Args:    cobra.ArbitraryArgs,
	// Silence errors because main prints them itself.
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runGet,
}

var getCmd = &cobra.Command{
	Use:           "get <repo-or-url>",
	Short:         "Print the latest release (default action)",
	Args:          cobra.ArbitraryArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runGet,
}

var testCmd = &cobra.Command{
	Use:           "test <tag>",
	Short:         "Parse a tag and print the version it carries",
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := version.New(args[0])
		if err != nil {
			return errors.Wrapf(err, "%q", args[0])
		}
		if flagNewerThan != "" {
			return emitVersion(cmd.OutOrStdout(), v, version.SemAny)
		}
		if v.IsPreRelease() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (pre-release)\n", v)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return nil
	},
}

var formatCmd = &cobra.Command{
	Use:           "format <string>",
	Short:         "Print the canonical version found in a string",
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := version.New(args[0])
		if err != nil {
			return errors.Wrapf(err, "%q", args[0])
		}
		sem, err := version.ParseSemLevel(flagSem)
		if err != nil {
			return err
		}
		return emitVersion(cmd.OutOrStdout(), v, sem)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagPre, "pre", false, "include pre-releases")
	pf.BoolVar(&flagFormal, "formal", false, "only consider formally published releases")
	pf.StringVar(&flagSem, "sem", "any", "semantic level for printing and comparison [major, minor, patch, any]")
	pf.StringVar(&flagFormat, "format", "version", "output format [version, assets, source, json, tag]")
	pf.BoolVar(&flagAssets, "assets", false, "shortcut for --format=assets")
	pf.BoolVar(&flagSource, "source", false, "shortcut for --format=source")
	pf.StringVar(&flagNewerThan, "newer-than", "", "print the newer of latest and VER; exit 2 when latest is not newer")
	pf.StringVarP(&flagMajor, "major", "b", "", "only consider versions of this major (or branch)")
	pf.StringVar(&flagOnly, "only", "", "only consider tags matching this (substring, ~regex, or !negation)")
	pf.StringVar(&flagExclude, "exclude", "", "skip tags matching this")
	pf.StringVar(&flagFilter, "filter", "", "regular expression applied to asset names")
	pf.StringVar(&flagHavingAsset, "having-asset", "", "only consider releases with a matching asset (no value: any asset)")
	pf.Lookup("having-asset").NoOptDefVal = "*"
	pf.BoolVar(&flagEven, "even", false, "treat odd minor versions as unstable")
	pf.StringVar(&flagAt, "at", "", "force a project holder [github, gitlab, bitbucket, hg, pip, wp, sf, wiki, helm_chart, alpine, gitea, website-feed, local, system]")
	pf.BoolVarP(&flagAssumeYes, "assumeyes", "y", false, "answer yes to package manager prompts")
	pf.BoolVar(&flagNoCache, "no-cache", false, "skip the release result cache")
	pf.CountVarP(&flagVerbose, "verbose", "v", "increase verbosity (-v info, -vv debug)")
	pf.StringVarP(&flagInput, "input", "i", "", "file with one project per line (# comments allowed)")
	pf.BoolVarP(&flagDownload, "download", "d", false, "download the release instead of printing it")
	pf.StringVarP(&flagOutput, "output", "o", "", "download target filename (implies --download)")

	rootCmd.AddCommand(getCmd, downloadCmd, extractCmd, installCmd, updateSpecCmd, testCmd, formatCmd)
	cobra.OnInitialize(initLogger, initConfig)
}

func initLogger() {
	level := log.WarnLevel
	switch {
	case flagVerbose >= 2:
		level = log.DebugLevel
	case flagVerbose == 1:
		level = log.InfoLevel
	}
	logx.Set(log.NewWithOptions(os.Stderr, log.Options{Level: level}))
}

// initConfig loads lastversion.yml from the platform config directory and
// applies it to flags the user did not set on the command line.
func initConfig() {
	viper.SetConfigName("lastversion")
	viper.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(dir, "tagscout"))
		viper.AddConfigPath(dir)
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logx.Warnf("reading config: %v", err)
		}
		return
	}
	pf := rootCmd.PersistentFlags()
	for _, name := range []string{"pre", "formal", "sem", "at", "even", "only", "exclude", "no-cache"} {
		f := pf.Lookup(name)
		if f != nil && !f.Changed && viper.IsSet(name) {
			if err := f.Value.Set(viper.GetString(name)); err != nil {
				logx.Warnf("config key %s: %v", name, err)
			}
		}
	}
}

// baseOptions translates the flag surface into resolver options.
func baseOptions(cmd *cobra.Command) latest.Options {
	opt := latest.Options{
		Pre:      flagPre,
		Formal:   flagFormal,
		Even:     flagEven,
		Major:    flagMajor,
		Only:     flagOnly,
		Exclude:  flagExclude,
		At:       flagAt,
		UseCache: !flagNoCache,
	}
	if cmd.Flags().Changed("having-asset") {
		v := flagHavingAsset
		if v == "*" {
			v = ""
		}
		opt.HavingAsset = &v
	}
	if outputFormat() == "json" {
		opt.Enrich = true
	}
	return opt
}

func outputFormat() string {
	switch {
	case flagAssets:
		return "assets"
	case flagSource:
		return "source"
	default:
		return flagFormat
	}
}

// inputRepos returns the projects to resolve: the bulk input file when -i
// is given, the positional arguments otherwise.
func inputRepos(args []string) ([]string, error) {
	if flagInput == "" {
		if len(args) == 0 {
			return nil, errors.New("no project given")
		}
		return args, nil
	}
	b, err := os.ReadFile(flagInput)
	if err != nil {
		return nil, errors.Wrap(err, "reading input file")
	}
	var repos []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		repos = append(repos, line)
	}
	if len(repos) == 0 {
		return nil, errors.Errorf("%s: no projects listed", flagInput)
	}
	return repos, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	if flagDownload || flagOutput != "" {
		return runDownload(cmd, args)
	}
	repos, err := inputRepos(args)
	if err != nil {
		return err
	}
	sem, err := version.ParseSemLevel(flagSem)
	if err != nil {
		return err
	}
	format := outputFormat()
	switch format {
	case "version", "assets", "source", "json", "tag":
	default:
		return errors.Errorf("unsupported format: %s", format)
	}
	worst := 0
	for _, repo := range repos {
		if err := resolveAndPrint(cmd, repo, format, sem); err != nil {
			if code := exitCode(err); code > worst {
				worst = code
			}
			if err.Error() != "" {
				color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "%s: %v\n", repo, err)
			}
		}
	}
	if worst != 0 {
		return &exitCodeError{code: worst}
	}
	return nil
}

func resolveAndPrint(cmd *cobra.Command, repo, format string, sem version.SemLevel) error {
	opt := baseOptions(cmd)
	if strings.HasSuffix(repo, ".spec") {
		s, err := rpmspec.Parse(repo)
		if err != nil {
			return err
		}
		if s.Repo() == "" {
			return errors.Errorf("%s: no project URL in spec", repo)
		}
		if opt.Only == "" {
			opt.Only = s.Only()
		}
		repo = s.Repo()
	}
	res, err := latest.Latest(cmd.Context(), repo, opt)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if flagNewerThan != "" {
		return emitVersion(out, res.Release.Version, sem)
	}
	switch format {
	case "version":
		fmt.Fprintln(out, res.Sem(sem))
	case "tag":
		fmt.Fprintln(out, res.Release.TagName)
	case "source":
		fmt.Fprintln(out, res.Release.SourceURL)
	case "assets":
		urls, err := res.Assets(cmd.Context(), false, flagFilter)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			return &exitCodeError{code: 3, msg: "no matching assets"}
		}
		for _, u := range urls {
			fmt.Fprintln(out, u)
		}
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Release); err != nil {
			return errors.Wrap(err, "encoding json")
		}
	}
	return nil
}

// emitVersion prints v truncated to the requested semantic level. When
// --newer-than is set the newer of the two versions is printed instead, and
// a v that is not strictly newer maps to exit status 2.
func emitVersion(out io.Writer, v *version.Version, sem version.SemLevel) error {
	got := v.SemBase(sem)
	if flagNewerThan == "" {
		fmt.Fprintln(out, got)
		return nil
	}
	ref, err := version.New(flagNewerThan)
	if err != nil {
		return &exitCodeError{code: 4, msg: fmt.Sprintf("invalid --newer-than value %q", flagNewerThan)}
	}
	if got.Compare(ref) > 0 {
		fmt.Fprintln(out, got)
		return nil
	}
	fmt.Fprintln(out, ref)
	return &exitCodeError{code: 2}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	var cred *holders.CredentialsError
	if errors.As(err, &cred) {
		return 4
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) && ec.msg == "" {
			os.Exit(ec.code)
		}
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
