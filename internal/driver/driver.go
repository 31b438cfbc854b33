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

// Package driver wires the pass pipeline together, one function at a time:
// fold, lower, reorder, SSA-based cleanup, tile, allocate. Data flows
// strictly forward through the pipeline. It is the only package that
// knows about all the others; every individual pass stays ignorant of its
// neighbors.
package driver

import (
	"fmt"
	"sort"
	"strings"

	"eta/internal/asm"
	"eta/internal/cfg"
	"eta/internal/emit"
	"eta/internal/fold"
	"eta/internal/hir"
	"eta/internal/lir"
	"eta/internal/lower"
	"eta/internal/opt"
	"eta/internal/reorder"
	"eta/internal/regalloc"
	"eta/internal/ssa"
	"eta/internal/tile"

	"github.com/pkg/errors"
)

// Options toggles the parts of the pipeline a caller can observe or skip.
// The zero value runs the full pipeline with no tracing.
type Options struct {
	// NoOpt skips the SSA round-trip (copy propagation + dead-code
	// elimination) and tiles the reordered LIR directly. Constant folding
	// and trace reordering always run; they are correctness-preserving
	// rewrites, not optional cleanups.
	NoOpt bool

	// OnHIR and OnLIR, when set, receive a textual dump of each
	// function's tree: OnHIR right after folding, OnLIR after trace
	// reordering and, unless NoOpt is set, after the SSA round-trip.
	OnHIR func(name, text string)
	OnLIR func(name, text string)
}

// Func runs one function through the whole pipeline and returns its
// allocated (physical-register-only) instruction stream, ready for
// internal/emit.
func Func(decl *hir.FuncDecl, opts Options) ([]asm.Instruction, error) {
	foldedBody, err := fold.Stmt(decl.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "folding %s", decl.SourceName)
	}
	folded := &hir.FuncDecl{
		SourceName: decl.SourceName,
		ABIName:    decl.ABIName,
		NumParams:  decl.NumParams,
		NumReturns: decl.NumReturns,
		Body:       foldedBody,
	}
	if opts.OnHIR != nil {
		opts.OnHIR(decl.SourceName, foldedBody.String())
	}

	lirFn := lower.Func(folded)
	lirFn = reorder.Func(lirFn)

	if !opts.NoOpt {
		lirFn = optimize(lirFn)
	}
	if opts.OnLIR != nil {
		opts.OnLIR(decl.SourceName, dumpLIR(lirFn))
	}

	abstract := tile.Func(lirFn)
	return regalloc.Allocate(abstract), nil
}

// optimize takes a function through the CFG/SSA round-trip: build the
// graph, place and rename phis, destruct back to flat LIR with
// SSA-versioned names, then clean up the copies destruction introduced
// with copy propagation and dead-code elimination.
func optimize(fn *lir.Func) *lir.Func {
	g := cfg.Build(fn)
	form := ssa.Build(g)
	out := ssa.Destruct(form, fn.Name, fn.ABIName, fn.NumReturns)
	opt.CopyPropagate(out)
	opt.DeadCodeEliminate(out)
	return out
}

// Unit compiles every exported function of a compilation unit and renders
// the whole thing as one emit.Unit, ready for Text.
func Unit(cu *hir.CompilationUnit, opts Options) (emit.Unit, error) {
	u := emit.Unit{}
	for _, name := range sortedDataNames(cu.Data) {
		u.Data = append(u.Data, cu.Data[name])
	}
	for _, name := range cu.Exported {
		decl, ok := cu.Functions[name]
		if !ok {
			return emit.Unit{}, errors.Errorf("exported function %q has no declaration", name)
		}
		instrs, err := Func(decl, opts)
		if err != nil {
			return emit.Unit{}, errors.Wrapf(err, "compiling %s", name)
		}
		u.Functions = append(u.Functions, emit.Function{ABIName: decl.ABIName, Instrs: instrs})
	}
	return u, nil
}

// Text compiles cu and renders it as a complete Intel-syntax assembly file.
func Text(cu *hir.CompilationUnit, opts Options) (string, error) {
	u, err := Unit(cu, opts)
	if err != nil {
		return "", err
	}
	return emit.Text(u), nil
}

func sortedDataNames(data map[string]*hir.GlobalData) []string {
	names := make([]string, 0, len(data))
	for n := range data {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// dumpLIR renders a flattened function body one statement per line, using
// each statement's own String method.
func dumpLIR(fn *lir.Func) string {
	var b strings.Builder
	for _, s := range fn.Stmts {
		fmt.Fprintf(&b, "%s\n", s)
	}
	return b.String()
}
