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

package cfg

import "eta/internal/hir"
import "eta/internal/lir"

// UsesDefs returns the set of temporaries statement s reads and the set
// it defines.
func UsesDefs(s lir.Stmt) (uses, defs Set) {
	uses, defs = Set{}, Set{}
	addUses(s, uses)
	switch x := s.(type) {
	case *lir.Move:
		if t, ok := x.Dst.(*hir.Temp); ok {
			defs[t.Name] = true
		}
	case *lir.CallStmt:
		for i := 1; i <= x.NumReturns; i++ {
			defs[hir.RVName(i)] = true
		}
	}
	return uses, defs
}

func addUses(s lir.Stmt, out Set) {
	walkExprs(s, func(e hir.Expr) { collectTemps(e, out) })
}

// walkExprs visits every expression s reads (a Move's Dst address is a
// read when the destination is memory; the Dst temp itself is a write,
// not a read).
func walkExprs(s lir.Stmt, visit func(hir.Expr)) {
	switch x := s.(type) {
	case *lir.Move:
		if m, ok := x.Dst.(*hir.Mem); ok {
			visit(m.Addr)
		}
		visit(x.Src)
	case *lir.Jump:
	case *lir.CJump:
		visit(x.Cond)
	case *lir.CallStmt:
		visit(x.Callee)
		for _, a := range x.Args {
			visit(a)
		}
	case *lir.Label:
	case *lir.Return:
		for _, v := range x.Values {
			visit(v)
		}
	}
}

func collectTemps(e hir.Expr, out Set) {
	switch x := e.(type) {
	case *hir.Temp:
		out[x.Name] = true
	case *hir.Bin:
		collectTemps(x.L, out)
		collectTemps(x.R, out)
	case *hir.Mem:
		collectTemps(x.Addr, out)
	case *hir.Call:
		collectTemps(x.Callee, out)
		for _, a := range x.Args {
			collectTemps(a, out)
		}
	}
}

// LiveVariables is backward, union-meet, transfer use(n) ∪ (out − def(n)).
func LiveVariables(g *Graph) (in, out []Set) {
	return Solve(Problem{
		Graph:     g,
		Direction: Backward,
		Top:       func() Set { return Set{} },
		Meet:      Union,
		Transfer: func(blockOut Set, b *Block) Set {
			live := blockOut.Clone()
			for i := len(b.Stmts) - 1; i >= 0; i-- {
				uses, defs := UsesDefs(b.Stmts[i])
				for d := range defs {
					delete(live, d)
				}
				for u := range uses {
					live[u] = true
				}
			}
			return live
		},
	})
}

// Definition identifies one defining site: the block and statement index
// that writes to a temporary.
type Definition struct {
	Block int
	Stmt  int
	Name  string
}

// ReachingDefinitions is forward, union-meet; the transfer function
// generates the block's own definitions and kills all other definitions
// of the same temporaries. Sets contain encoded "name@block:stmt"
// definition keys.
func ReachingDefinitions(g *Graph) (in, out []Set, defs []Definition) {
	for bi, b := range g.Blocks {
		for si, s := range b.Stmts {
			_, d := UsesDefs(s)
			for name := range d {
				defs = append(defs, Definition{Block: bi, Stmt: si, Name: name})
			}
		}
	}

	key := func(d Definition) string { return defKey(d) }

	killSet := func(name string) Set {
		s := Set{}
		for _, d := range defs {
			if d.Name == name {
				s[key(d)] = true
			}
		}
		return s
	}

	in, out = Solve(Problem{
		Graph:     g,
		Direction: Forward,
		Top:       func() Set { return Set{} },
		Meet:      Union,
		Transfer: func(blockIn Set, b *Block) Set {
			cur := blockIn.Clone()
			for si, s := range b.Stmts {
				_, d := UsesDefs(s)
				for name := range d {
					for k := range killSet(name) {
						delete(cur, k)
					}
					cur[defKey(Definition{Block: b.Index, Stmt: si, Name: name})] = true
				}
			}
			return cur
		},
	})
	return in, out, defs
}

func defKey(d Definition) string {
	return d.Name + "@" + itoa(d.Block) + ":" + itoa(d.Stmt)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
