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

package ssa

import (
	"fmt"

	"eta/internal/cfg"
	"eta/internal/hir"
	"eta/internal/lir"
)

// Phi is one phi node: Dst is the versioned name it defines, Var is the
// original (pre-SSA) variable it renames, and Args gives, for each
// predecessor block that supplied a dominating definition, the versioned
// name contributed along that edge.
type Phi struct {
	Block int
	Var   string
	Dst   string
	Args  map[int]string // predecessor block index -> versioned source name; absent means synthetic default
}

// Form is a function's graph together with its placed and renamed phis,
// ready for the optimizer (internal/opt) and later destruction.
type Form struct {
	Graph *cfg.Graph
	Dom   *DomTree
	Phis  map[int][]*Phi // block index -> phis at that block's head
}

// Build places phis to fixpoint and renames every temporary to a
// versioned SSA name.
func Build(g *cfg.Graph) *Form {
	dom := BuildDomTree(g)
	phis := placePhis(g, dom)
	f := &Form{Graph: g, Dom: dom, Phis: phis}
	rename(f)
	return f
}

// placePhis iteratively inserts a phi at every block in DF(defs(v)) until
// fixpoint, for every variable v.
func placePhis(g *cfg.Graph, dom *DomTree) map[int][]*Phi {
	defsOf := map[string]cfg.Set{}
	for bi, b := range g.Blocks {
		for _, s := range b.Stmts {
			_, d := cfg.UsesDefs(s)
			for name := range d {
				if hir.IsReserved(name) {
					continue
				}
				if defsOf[name] == nil {
					defsOf[name] = cfg.Set{}
				}
				defsOf[name][key(bi)] = true
			}
		}
	}

	hasPhi := map[string]cfg.Set{} // var -> set of blocks that already have a phi for it
	phis := map[int][]*Phi{}

	for v, defs := range defsOf {
		hasPhi[v] = cfg.Set{}
		worklist := make([]int, 0, len(defs))
		for k := range defs {
			worklist = append(worklist, unkey(k))
		}
		for len(worklist) > 0 {
			n := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for k := range dom.Frontier[n] {
				d := unkey(k)
				if hasPhi[v][key(d)] {
					continue
				}
				hasPhi[v][key(d)] = true
				phis[d] = append(phis[d], &Phi{Block: d, Var: v, Args: map[int]string{}})
				if !defs[key(d)] {
					defs[key(d)] = true
					worklist = append(worklist, d)
				}
			}
		}
	}
	return phis
}

type renamer struct {
	f          *Form
	counter    map[string]int
	stack      map[string][]string
	lastDefAt  map[int]map[string]string // block -> var -> versioned name live at block exit
}

// rename performs a dominator-tree preorder renaming pass: a fresh
// version is pushed at each definition, later uses in the same block
// read the stack top, and versions are popped on return from the
// recursive walk of dominated children.
func rename(f *Form) {
	r := &renamer{
		f:         f,
		counter:   map[string]int{},
		stack:     map[string][]string{},
		lastDefAt: map[int]map[string]string{},
	}
	r.visit(f.Graph.Entry)
	materializePhiArgs(f, r.lastDefAt)
}

func (r *renamer) fresh(v string) string {
	r.counter[v]++
	name := fmt.Sprintf("%s.%d", v, r.counter[v])
	r.stack[v] = append(r.stack[v], name)
	return name
}

func (r *renamer) top(v string) (string, bool) {
	s := r.stack[v]
	if len(s) == 0 {
		return "", false
	}
	return s[len(s)-1], true
}

func (r *renamer) pop(v string) {
	s := r.stack[v]
	r.stack[v] = s[:len(s)-1]
}

func (r *renamer) visit(b int) {
	pushed := map[string]int{}

	for _, phi := range r.f.Phis[b] {
		phi.Dst = r.fresh(phi.Var)
		pushed[phi.Var]++
	}

	for _, s := range r.f.Graph.Blocks[b].Stmts {
		renameUses(s, r)
		_, defs := cfg.UsesDefs(s)
		for name := range defs {
			if hir.IsReserved(name) {
				continue
			}
			renameDef(s, name, r.fresh(name))
			pushed[name]++
		}
	}

	r.lastDefAt[b] = map[string]string{}
	for v := range r.counter {
		if top, ok := r.top(v); ok {
			r.lastDefAt[b][v] = top
		}
	}

	for _, c := range r.f.Dom.Children[b] {
		r.visit(c)
	}

	for v, n := range pushed {
		for i := 0; i < n; i++ {
			r.pop(v)
		}
	}
}

// renameUses rewrites every Temp read by s (not including a Move's own
// destination Temp) to the stack's current top for that name.
func renameUses(s lir.Stmt, r *renamer) {
	rename := func(e hir.Expr) hir.Expr { return substTemp(e, r) }
	switch x := s.(type) {
	case *lir.Move:
		x.Src = rename(x.Src)
		if m, ok := x.Dst.(*hir.Mem); ok {
			m.Addr = rename(m.Addr)
		}
	case *lir.CJump:
		x.Cond = rename(x.Cond)
	case *lir.CallStmt:
		x.Callee = rename(x.Callee)
		for i, a := range x.Args {
			x.Args[i] = rename(a)
		}
	case *lir.Return:
		for i, v := range x.Values {
			x.Values[i] = rename(v)
		}
	}
}

func substTemp(e hir.Expr, r *renamer) hir.Expr {
	switch x := e.(type) {
	case *hir.Temp:
		if hir.IsReserved(x.Name) {
			return x
		}
		if top, ok := r.top(x.Name); ok {
			return &hir.Temp{Name: top}
		}
		return x
	case *hir.Bin:
		return &hir.Bin{Op: x.Op, L: substTemp(x.L, r), R: substTemp(x.R, r)}
	case *hir.Mem:
		return &hir.Mem{Addr: substTemp(x.Addr, r)}
	case *hir.Call:
		args := make([]hir.Expr, len(x.Args))
		for i, a := range x.Args {
			args[i] = substTemp(a, r)
		}
		return &hir.Call{Callee: substTemp(x.Callee, r), Args: args, NumReturns: x.NumReturns}
	default:
		return e
	}
}

func renameDef(s lir.Stmt, oldName, newName string) {
	switch x := s.(type) {
	case *lir.Move:
		if t, ok := x.Dst.(*hir.Temp); ok && t.Name == oldName {
			x.Dst = &hir.Temp{Name: newName}
		}
	}
}

// materializePhiArgs records, for every phi, the versioned name each
// predecessor contributes (or leaves it absent for a synthetic default
// at destruction time).
func materializePhiArgs(f *Form, lastDefAt map[int]map[string]string) {
	for b, phis := range f.Phis {
		for _, phi := range phis {
			for _, pred := range f.Graph.Blocks[b].Preds {
				if v, ok := lastDefAt[pred][phi.Var]; ok {
					phi.Args[pred] = v
				}
			}
		}
	}
}
