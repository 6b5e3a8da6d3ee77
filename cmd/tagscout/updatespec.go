// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tagscout/tagscout/pkg/latest"
	"github.com/tagscout/tagscout/pkg/rpmspec"
)

var updateSpecCmd = &cobra.Command{
	Use:           "update-spec <file.spec>",
	Short:         "Bump the Version in an RPM spec file to the latest release",
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runUpdateSpec,
}

func runUpdateSpec(cmd *cobra.Command, args []string) error {
	s, err := rpmspec.Parse(args[0])
	if err != nil {
		return err
	}
	repo := s.Repo()
	if repo == "" {
		return errors.Errorf("%s: no project URL to check against", args[0])
	}
	opt := baseOptions(cmd)
	if opt.Only == "" {
		opt.Only = s.Only()
	}
	res, err := latest.Latest(cmd.Context(), repo, opt)
	if err != nil {
		return err
	}
	got := res.Release.Version
	if cur, err := s.CurrentVersion(); err == nil && got.Compare(cur) <= 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already at %s\n", s.Name, cur)
		return &exitCodeError{code: 2}
	}
	if !s.SetVersion(got.String()) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already at %s\n", s.Name, got)
		return &exitCodeError{code: 2}
	}
	if err := s.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s updated to %s\n", args[0], got)
	return nil
}
