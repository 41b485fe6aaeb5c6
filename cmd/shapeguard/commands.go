// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/shapeguard/pkg/shapeguard/dims"
	"github.com/gomlx/shapeguard/pkg/support/xslices"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// checkResult is the outcome of one check, as reported by the check command.
type checkResult struct {
	Template string `yaml:"template"`
	Shape    []int  `yaml:"shape,flow"`
	Error    string `yaml:"error,omitempty"`
}

type checkReport struct {
	Checks []checkResult  `yaml:"checks"`
	Dims   dims.Bindings `yaml:"dims"`
}

func newCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check TEMPLATE=SHAPE...",
		Short: "Check shapes against templates, in order",
		Long: `Check each shape against its template, in order, on the same dimension store.

All checks are run, and the failures are reported together. The dimension bindings
after the checks are printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd.OutOrStdout())
		},
	}
}

func runCheck(opts *RootOptions, args []string, w io.Writer) error {
	sg, err := opts.newInterface()
	if err != nil {
		return err
	}
	report := checkReport{}
	var errs error
	for _, arg := range args {
		idx := strings.LastIndex(arg, "=")
		if idx < 0 {
			return errors.Errorf("invalid check %q, expected TEMPLATE=SHAPE", arg)
		}
		tmpl := arg[:idx]
		shape, err := parseShape(arg[idx+1:])
		if err != nil {
			return err
		}
		result := checkResult{Template: tmpl, Shape: shape}
		if err := sg.Check(shape, tmpl); err != nil {
			result.Error = err.Error()
			errs = multierr.Append(errs, errors.WithMessagef(err, "check %q", arg))
		}
		report.Checks = append(report.Checks, result)
	}
	report.Dims = sg.Dims()

	if opts.Format == "yaml" {
		if err := writeYAML(w, report); err != nil {
			return err
		}
		return errs
	}
	fmt.Fprintln(w, titleStyle.Render("Checks"))
	table := newReportTable([]string{"Template", "Shape", "Elements", "Result"},
		lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Left)
	for _, result := range report.Checks {
		status := "ok"
		if result.Error != "" {
			status = firstLine(result.Error)
		}
		table.Add(result.Error != "", result.Template, formatSizes(result.Shape),
			humanize.Comma(int64(xslices.Product(result.Shape))), status)
	}
	fmt.Fprintln(w, table.Render())
	fmt.Fprintln(w, renderDims(report.Dims))
	return errs
}

func newEvalCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "eval TEMPLATE",
		Short: "Evaluate a template with the given dimensions",
		Long: `Evaluate a template with the dimensions given by --dims and --dims-file.
Unresolved dimensions are shown as "?".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd.OutOrStdout())
		},
	}
}

func runEval(opts *RootOptions, tmpl string, w io.Writer) error {
	sg, err := opts.newInterface()
	if err != nil {
		return err
	}
	sizes, err := sg.Evaluate(tmpl, nil)
	if err != nil {
		return err
	}
	if opts.Format == "yaml" {
		return writeYAML(w, map[string]any{"template": tmpl, "sizes": sizes})
	}
	table := newReportTable(nil, lipgloss.Right, lipgloss.Left)
	table.Add(false, "template", tmpl)
	table.Add(false, "sizes", formatSizes(sizes))
	fmt.Fprintln(w, table.Render())
	return nil
}

func newReshapeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reshape TEMPLATE SHAPE",
		Short: "Reshape a shape to a template",
		Long: `Reshape SHAPE to the sizes given by TEMPLATE, evaluated with the dimensions given by
--dims and --dims-file. The number of elements must be preserved. One dynamic
dimension (e.g. "?rest") may be left unbound, and is inferred from the number of elements.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReshape(opts, args[0], args[1], cmd.OutOrStdout())
		},
	}
}

func runReshape(opts *RootOptions, tmpl, shapeText string, w io.Writer) error {
	sg, err := opts.newInterface()
	if err != nil {
		return err
	}
	shape, err := parseShape(shapeText)
	if err != nil {
		return err
	}
	reshaped, err := sg.Reshape(shape, tmpl)
	if err != nil {
		return err
	}
	newShape := reshaped.([]int)
	if opts.Format == "yaml" {
		return writeYAML(w, map[string]any{"from": shape, "to": newShape})
	}
	table := newReportTable(nil, lipgloss.Right, lipgloss.Left)
	table.Add(false, "from", formatSizes(shape))
	table.Add(false, "to", formatSizes(newShape))
	table.Add(false, "elements", humanize.Comma(int64(xslices.Product(shape))))
	fmt.Fprintln(w, table.Render())
	return nil
}

// renderDims renders the bindings as a table, sorted by name.
func renderDims(bindings dims.Bindings) string {
	table := newReportTable([]string{"Dimension", "Size"}, lipgloss.Left, lipgloss.Right)
	for _, name := range xslices.SortedKeys(bindings) {
		table.Add(false, name, humanize.Comma(int64(bindings[name])))
	}
	return titleStyle.Render("Dimensions") + "\n" + table.Render()
}

func writeYAML(w io.Writer, v any) error {
	contents, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding yaml")
	}
	_, err = w.Write(contents)
	return errors.Wrap(err, "writing yaml")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
