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
	"eta/internal/hir"
	"eta/internal/lir"
)

// placeholderDefault is the value a phi destructs to along an edge with
// no dominating definition of its variable. Zero is indistinguishable
// from a real program value, but the path is provably unreachable for
// any variable the type-checker accepted, so the constant's value
// cannot be observed by well-typed input.
const placeholderDefault = 0

// Destruct inserts, in every predecessor of a block with phis, a Move
// assigning each phi's destination from the predecessor's contributed
// version (or the placeholder default), then erases phi metadata. The
// inserted moves precede the predecessor's terminal jump when it has
// one; a fall-through predecessor (reorder deletes its terminal jump
// when its successor is next in trace) gets them appended at the end,
// since there is no terminator to precede and the fall-through still
// must observe the phi copies before flowing into the successor.
func Destruct(f *Form, name, abiName string, numReturns int) *lir.Func {
	g := f.Graph
	inserts := map[int][]lir.Stmt{} // block -> moves to append before its terminator

	for b, phis := range f.Phis {
		for _, phi := range phis {
			for _, pred := range g.Blocks[b].Preds {
				var src hir.Expr
				if v, ok := phi.Args[pred]; ok {
					src = &hir.Temp{Name: v}
				} else {
					src = &hir.Const{Value: placeholderDefault}
				}
				inserts[pred] = append(inserts[pred], &lir.Move{
					Dst: &hir.Temp{Name: phi.Dst},
					Src: src,
				})
			}
		}
	}

	out := lir.NewFunc(name, abiName, numReturns)
	for bi, b := range g.Blocks {
		if b.Label != "" {
			out.Append(&lir.Label{Name: b.Label})
		}
		if len(b.Stmts) == 0 {
			for _, mv := range inserts[bi] {
				out.Append(mv)
			}
			continue
		}
		last := b.Stmts[len(b.Stmts)-1]
		if lir.IsTerminator(last) {
			for _, s := range b.Stmts[:len(b.Stmts)-1] {
				out.Append(s)
			}
			for _, mv := range inserts[bi] {
				out.Append(mv)
			}
			out.Append(last)
		} else {
			for _, s := range b.Stmts {
				out.Append(s)
			}
			for _, mv := range inserts[bi] {
				out.Append(mv)
			}
		}
	}
	return out
}
