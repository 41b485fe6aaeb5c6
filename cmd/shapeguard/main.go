// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// shapeguard checks, evaluates and reshapes shape templates against literal shapes, from the command line.
//
// Examples:
//
//	shapeguard check "N,...,C=2,3,4,5" "N,C*2=2,10"
//	shapeguard eval --dims N=2,H=6 "N,H/2,?rest"
//	shapeguard reshape --dims-file dims.yaml "Batch,H*W" 8,32,32
//
// Shapes are comma-separated lists of sizes, optionally in brackets ("[2,3]"). An empty shape ("" or "[]")
// is a scalar.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/shapeguard/pkg/shapeguard"
	"github.com/gomlx/shapeguard/pkg/shapeguard/dims"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// RootOptions holds the flags shared by all commands.
type RootOptions struct {
	Dims     []string
	DimsFile string
	Format   string
}

// ValidFormats are the accepted values of --format.
var ValidFormats = []string{"table", "yaml"}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:   "shapeguard",
		Short: "Check shapes against shape templates",
		Long: `Check, evaluate and reshape shape templates like "N,...,C" against literal shapes.

Dimension names bound by a check are used by the following ones. Initial bindings
can be given with --dims and --dims-file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return errors.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	goFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(goFlags)
	cmd.PersistentFlags().AddGoFlagSet(goFlags)

	cmd.PersistentFlags().StringSliceVar(&opts.Dims, "dims", nil, "initial dimension bindings, e.g.: --dims N=2,C=3")
	cmd.PersistentFlags().StringVar(&opts.DimsFile, "dims-file", "", "YAML file with a mapping of dimension names to sizes")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "table", "output format (table|yaml)")

	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newEvalCommand(opts))
	cmd.AddCommand(newReshapeCommand(opts))
	return cmd
}

// newInterface returns an Interface with the base context seeded with the --dims-file and --dims bindings.
func (opts *RootOptions) newInterface() (*shapeguard.Interface, error) {
	sg := shapeguard.NewInterface()
	if opts.DimsFile != "" {
		contents, err := os.ReadFile(opts.DimsFile)
		if err != nil {
			return nil, errors.Wrapf(err, "reading --dims-file")
		}
		var fromFile dims.Bindings
		if err = yaml.Unmarshal(contents, &fromFile); err != nil {
			return nil, errors.Wrapf(err, "parsing --dims-file %q", opts.DimsFile)
		}
		if err = sg.Base().Update(fromFile); err != nil {
			return nil, errors.WithMessagef(err, "--dims-file %q", opts.DimsFile)
		}
	}
	fromFlags, err := parseBindings(opts.Dims)
	if err != nil {
		return nil, err
	}
	if err = sg.Base().Update(fromFlags); err != nil {
		return nil, errors.WithMessage(err, "--dims")
	}
	return sg, nil
}

// parseBindings parses "name=size" pairs.
func parseBindings(pairs []string) (dims.Bindings, error) {
	bindings := make(dims.Bindings, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, errors.Errorf("invalid binding %q, expected name=size", pair)
		}
		size, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || size < 0 {
			return nil, errors.Errorf("invalid size in binding %q", pair)
		}
		bindings[name] = size
	}
	return bindings, nil
}

// parseShape parses a literal shape: comma-separated sizes, optionally in brackets.
func parseShape(text string) ([]int, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")
	if strings.TrimSpace(text) == "" {
		return []int{}, nil
	}
	parts := strings.Split(text, ",")
	shape := make([]int, len(parts))
	for ii, part := range parts {
		size, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || size < 0 {
			return nil, errors.Errorf("invalid size %q in shape %q", part, text)
		}
		shape[ii] = size
	}
	return shape, nil
}

// formatSizes renders sizes, with unresolved ones as "?".
func formatSizes(sizes []int) string {
	parts := make([]string, len(sizes))
	for ii, size := range sizes {
		if size == dims.Unknown {
			parts[ii] = "?"
		} else {
			parts[ii] = strconv.Itoa(size)
		}
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}
