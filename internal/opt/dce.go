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

package opt

import (
	"eta/internal/cfg"
	"eta/internal/hir"
	"eta/internal/lir"
)

// isMemExpr reports whether e is a memory dereference.
func isMemExpr(e hir.Expr) bool {
	_, ok := e.(*hir.Mem)
	return ok
}

// hasObservableEffect reports whether a defining site must run even when
// its defined value goes unused: a call, or a store through memory.
func hasObservableEffect(s lir.Stmt) bool {
	switch x := s.(type) {
	case *lir.CallStmt:
		return true
	case *lir.Move:
		return isMemExpr(x.Dst)
	default:
		return false
	}
}

// DeadCodeEliminate removes every defining site whose value is never
// used and which carries no observable side effect, via a worklist
// algorithm.
func DeadCodeEliminate(fn *lir.Func) {
	n := len(fn.Stmts)
	siteUses := make([]cfg.Set, n)
	defSite := map[string]int{}

	for i, s := range fn.Stmts {
		u, d := cfg.UsesDefs(s)
		siteUses[i] = u
		for name := range d {
			defSite[name] = i
		}
	}

	uses := make([]map[int]bool, n)
	for i := range uses {
		uses[i] = map[int]bool{}
	}
	for i, u := range siteUses {
		for name := range u {
			if ds, ok := defSite[name]; ok {
				uses[ds][i] = true
			}
		}
	}

	dead := make([]bool, n)
	var worklist []string
	for name := range defSite {
		worklist = append(worklist, name)
	}

	for len(worklist) > 0 {
		v := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		site, ok := defSite[v]
		if !ok || dead[site] {
			continue
		}
		if len(uses[site]) > 0 {
			continue
		}
		if hasObservableEffect(fn.Stmts[site]) {
			continue
		}
		dead[site] = true
		for usedName := range siteUses[site] {
			if ds, ok := defSite[usedName]; ok {
				delete(uses[ds], site)
				worklist = append(worklist, usedName)
			}
		}
	}

	out := fn.Stmts[:0]
	for i, s := range fn.Stmts {
		if !dead[i] {
			out = append(out, s)
		}
	}
	fn.Stmts = out
}
