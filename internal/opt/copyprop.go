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

// Package opt implements the dataflow-driven cleanups that run on SSA or
// flat LIR: copy propagation and dead-code elimination.
package opt

import (
	"eta/internal/hir"
	"eta/internal/lir"
)

// CopyPropagate traverses fn's statements in order, maintaining a map
// from a plain-copy's destination to its canonical source, and rewrites
// every later temporary use through that map. ABI-reserved names
// (_RV*, _ARG*) are never recorded or substituted,
// since they carry calling-convention meaning rather than dataflow value.
func CopyPropagate(fn *lir.Func) {
	rep := map[string]string{}
	canonical := func(name string) string {
		for {
			r, ok := rep[name]
			if !ok {
				return name
			}
			name = r
		}
	}
	substitute := func(e hir.Expr) hir.Expr { return substituteTemps(e, canonical) }

	for _, s := range fn.Stmts {
		switch x := s.(type) {
		case *lir.Move:
			if m, ok := x.Dst.(*hir.Mem); ok {
				m.Addr = substitute(m.Addr)
			}
			x.Src = substitute(x.Src)
			if dstT, ok := x.Dst.(*hir.Temp); ok {
				if srcT, ok := x.Src.(*hir.Temp); ok &&
					!hir.IsReserved(dstT.Name) && !hir.IsReserved(srcT.Name) {
					rep[dstT.Name] = srcT.Name
				}
			}
		case *lir.CJump:
			x.Cond = substitute(x.Cond)
		case *lir.CallStmt:
			x.Callee = substitute(x.Callee)
			for i, a := range x.Args {
				x.Args[i] = substitute(a)
			}
		case *lir.Return:
			for i, v := range x.Values {
				x.Values[i] = substitute(v)
			}
		}
	}
}

func substituteTemps(e hir.Expr, canonical func(string) string) hir.Expr {
	switch x := e.(type) {
	case *hir.Temp:
		return &hir.Temp{Name: canonical(x.Name)}
	case *hir.Bin:
		return &hir.Bin{Op: x.Op, L: substituteTemps(x.L, canonical), R: substituteTemps(x.R, canonical)}
	case *hir.Mem:
		return &hir.Mem{Addr: substituteTemps(x.Addr, canonical)}
	case *hir.Call:
		args := make([]hir.Expr, len(x.Args))
		for i, a := range x.Args {
			args[i] = substituteTemps(a, canonical)
		}
		return &hir.Call{Callee: substituteTemps(x.Callee, canonical), Args: args, NumReturns: x.NumReturns}
	default:
		return e
	}
}
