// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Command eta drives the back-end pipeline (internal/driver) over a
// source file's front-end translation (internal/frontend) through a
// build/dump command tree.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"eta/internal/driver"
	"eta/internal/frontend"
	"eta/internal/hir"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eta",
		Short:         "eta compiles a type-checked eta source unit to x86-64 Intel-syntax assembly",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBuildCmd(), newDumpCmd())
	return root
}

// buildOptions holds the flags shared by build and dump: which
// intermediate forms to print and whether the SSA optimization round-trip
// runs at all.
type buildOptions struct {
	emitHIR bool
	emitLIR bool
	noOpt   bool
	out     string
}

func addPipelineFlags(cmd *cobra.Command, o *buildOptions) {
	cmd.Flags().BoolVar(&o.emitHIR, "emit-hir", false, "print each function's folded HIR before lowering")
	cmd.Flags().BoolVar(&o.emitLIR, "emit-lir", false, "print each function's LIR after reordering and optimization")
	cmd.Flags().BoolVar(&o.noOpt, "no-opt", false, "skip the SSA copy-propagation/dead-code round-trip")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "write assembly to this file instead of stdout")
}

func (o *buildOptions) driverOptions() driver.Options {
	opts := driver.Options{NoOpt: o.noOpt}
	if o.emitHIR {
		opts.OnHIR = func(name, text string) {
			fmt.Fprintf(os.Stderr, "-- hir %s --\n%s\n", name, text)
		}
	}
	if o.emitLIR {
		opts.OnLIR = func(name, text string) {
			fmt.Fprintf(os.Stderr, "-- lir %s --\n%s\n", name, text)
		}
	}
	return opts
}

// newBuildCmd is `eta build file.eta`: translate and compile the whole
// unit, writing the assembled text to --out or stdout.
func newBuildCmd() *cobra.Command {
	o := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build <source>",
		Short: "compile one source file to an assembly text stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cu, err := translateFile(args[0])
			if err != nil {
				return err
			}
			text, err := driver.Text(cu, o.driverOptions())
			if err != nil {
				return err
			}
			return writeOutput(o.out, text)
		},
	}
	addPipelineFlags(cmd, o)
	return cmd
}

// newDumpCmd is `eta dump file.eta`: same pipeline as build, but defaults
// to emitting HIR and LIR traces instead of (not in addition to) assembly,
// for inspecting the back end's intermediate forms.
func newDumpCmd() *cobra.Command {
	o := &buildOptions{emitHIR: true, emitLIR: true}
	cmd := &cobra.Command{
		Use:   "dump <source>",
		Short: "print intermediate representations for one source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cu, err := translateFile(args[0])
			if err != nil {
				return err
			}
			_, err = driver.Unit(cu, o.driverOptions())
			return err
		},
	}
	addPipelineFlags(cmd, o)
	return cmd
}

func translateFile(path string) (*hir.CompilationUnit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cu, err := frontend.Translate(unitName(path), string(src))
	if err != nil {
		return nil, fmt.Errorf("translating %s: %w", path, err)
	}
	return cu, nil
}

// unitName derives the compilation unit's name from its source file's
// base name, with the extension stripped.
func unitName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func writeOutput(out, text string) error {
	if out == "" {
		_, err := fmt.Print(text)
		return err
	}
	return os.WriteFile(out, []byte(text), 0644)
}
