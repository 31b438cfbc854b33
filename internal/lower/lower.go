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

// Package lower translates HIR into LIR: it flattens expression-sequences,
// resolves commutativity of side effects, expands short-circuit boolean
// control forms, and expands array/string literals, indexing, and
// concatenation into the runtime-call sequences the ABI expects.
package lower

import (
	"fmt"

	"eta/internal/diag"
	"eta/internal/hir"
	"eta/internal/lir"
)

type lowerer struct {
	tmp   int
	label int

	boundsLabel  string
	boundsNeeded bool
}

// Func lowers one HIR function declaration to LIR. The virtual-temporary
// and label counters are local to this call and reset at function entry.
func Func(fn *hir.FuncDecl) *lir.Func {
	l := &lowerer{boundsLabel: "__eta_out_of_bounds_" + fn.SourceName}
	out := lir.NewFunc(fn.SourceName, fn.ABIName, fn.NumReturns)
	for _, s := range l.lowerStmt(fn.Body) {
		out.Append(s)
	}
	if l.boundsNeeded {
		out.Append(&lir.Label{Name: l.boundsLabel})
		out.Append(&lir.CallStmt{Callee: &hir.Name{Sym: "_eta_out_of_bounds"}, NumReturns: 0})
		out.Append(&lir.Return{})
	}
	return out
}

func (l *lowerer) freshTemp() *hir.Temp {
	l.tmp++
	return &hir.Temp{Name: fmt.Sprintf("_t%d", l.tmp)}
}

func (l *lowerer) freshLabel() string {
	l.label++
	return fmt.Sprintf("_L%d", l.label)
}

// ---------------------------------------------------------------------------
// Statements

func (l *lowerer) lowerStmt(s hir.Stmt) []lir.Stmt {
	switch x := s.(type) {
	case *hir.Seq:
		var out []lir.Stmt
		for _, sub := range x.Stmts {
			out = append(out, l.lowerStmt(sub)...)
		}
		return out
	case *hir.Move:
		return l.lowerMove(x.Dst, x.Src)
	case *hir.MultiMove:
		return l.lowerMultiMove(x)
	case *hir.Jump:
		return []lir.Stmt{&lir.Jump{Target: x.Target}}
	case *hir.CJump:
		return l.controlForm(x.Cond, x.True, x.False)
	case *hir.CallStmt:
		sideCallee, pcallee := l.exprPair(x.Callee)
		out := sideCallee
		var pargs []hir.Expr
		for _, a := range x.Args {
			sideA, pa := l.exprPair(a)
			out = append(out, sideA...)
			pargs = append(pargs, pa)
		}
		out = append(out, &lir.CallStmt{Callee: pcallee, Args: pargs, NumReturns: x.NumReturns})
		return out
	case *hir.Label:
		return []lir.Stmt{&lir.Label{Name: x.Name}}
	case *hir.Return:
		var out []lir.Stmt
		var pvals []hir.Expr
		for _, v := range x.Values {
			side, pv := l.exprPair(v)
			out = append(out, side...)
			pvals = append(pvals, pv)
		}
		out = append(out, &lir.Return{Values: pvals})
		return out
	default:
		diag.Unreachable("lower: unhandled statement %T", s)
		return nil
	}
}

func (l *lowerer) lowerMove(dst, src hir.Expr) []lir.Stmt {
	switch d := dst.(type) {
	case *hir.Temp:
		side, psrc := l.exprPair(src)
		return append(side, &lir.Move{Dst: &hir.Temp{Name: d.Name}, Src: psrc})
	case *hir.Mem:
		if l.commute(d.Addr, src) {
			sideA, paddr := l.exprPair(d.Addr)
			sideS, psrc := l.exprPair(src)
			out := append(sideA, sideS...)
			return append(out, &lir.Move{Dst: &hir.Mem{Addr: paddr}, Src: psrc})
		}
		sideA, paddr := l.exprPair(d.Addr)
		t := l.freshTemp()
		out := append(sideA, &lir.Move{Dst: t, Src: paddr})
		sideS, psrc := l.exprPair(src)
		out = append(out, sideS...)
		return append(out, &lir.Move{Dst: &hir.Mem{Addr: t}, Src: psrc})
	default:
		diag.Unreachable("lower: invalid move destination %T", dst)
		return nil
	}
}

// lowerMultiMove implements multi-value assignment: a single call
// supplying every right-hand value is invoked once and its
// _RV{i} slots copied out in order; otherwise every right value is staged
// into a fresh temporary before any destination is written, so that
// `a, b := b, a` cannot alias.
func (l *lowerer) lowerMultiMove(m *hir.MultiMove) []lir.Stmt {
	if len(m.Srcs) == 1 {
		if call, ok := m.Srcs[0].(*hir.Call); ok && len(m.Dsts) == call.NumReturns {
			sideCallee, pcallee := l.exprPair(call.Callee)
			out := sideCallee
			var pargs []hir.Expr
			for _, a := range call.Args {
				sideA, pa := l.exprPair(a)
				out = append(out, sideA...)
				pargs = append(pargs, pa)
			}
			out = append(out, &lir.CallStmt{Callee: pcallee, Args: pargs, NumReturns: call.NumReturns})
			for i, d := range m.Dsts {
				if d == nil {
					continue
				}
				out = append(out, l.lowerMove(d, &hir.Temp{Name: hir.RVName(i + 1)})...)
			}
			return out
		}
	}

	var out []lir.Stmt
	staged := make([]hir.Expr, len(m.Srcs))
	for i, s := range m.Srcs {
		side, p := l.exprPair(s)
		out = append(out, side...)
		t := l.freshTemp()
		out = append(out, &lir.Move{Dst: t, Src: p})
		staged[i] = t
	}
	for i, d := range m.Dsts {
		if d == nil {
			continue // `_` discard: side effects already ran above
		}
		out = append(out, l.lowerMove(d, staged[i])...)
	}
	return out
}

// ---------------------------------------------------------------------------
// Control-form boolean translation

func (l *lowerer) controlForm(e hir.Expr, tlabel, flabel string) []lir.Stmt {
	switch x := e.(type) {
	case *hir.Bin:
		switch x.Op {
		case hir.And:
			inter := l.freshLabel()
			out := l.controlForm(x.L, inter, flabel)
			out = append(out, &lir.Label{Name: inter})
			return append(out, l.controlForm(x.R, tlabel, flabel)...)
		case hir.Or:
			inter := l.freshLabel()
			out := l.controlForm(x.L, tlabel, inter)
			out = append(out, &lir.Label{Name: inter})
			return append(out, l.controlForm(x.R, tlabel, flabel)...)
		case hir.Eq, hir.Neq, hir.Ult, hir.Lt, hir.Leq, hir.Gt, hir.Geq:
			sideL, pl := l.exprPair(x.L)
			sideR, pr := l.exprPair(x.R)
			out := append(sideL, sideR...)
			return append(out, &lir.CJump{Cond: &hir.Bin{Op: x.Op, L: pl, R: pr}, True: tlabel, False: flabel})
		}
	case *hir.Not:
		return l.controlForm(x.X, flabel, tlabel)
	case *hir.Const:
		if x.Value != 0 {
			return []lir.Stmt{&lir.Jump{Target: tlabel}}
		}
		return []lir.Stmt{&lir.Jump{Target: flabel}}
	}
	side, pe := l.exprPair(e)
	return append(side, &lir.CJump{Cond: pe, True: tlabel, False: flabel})
}

// materializeBool evaluates a boolean expression to a 0/1 value, routing
// And/Or/Not through the control-form translator; all other
// boolean-valued expressions lower via direct materialization.
func (l *lowerer) materializeBool(e hir.Expr) ([]lir.Stmt, hir.Expr) {
	logical := false
	switch x := e.(type) {
	case *hir.Bin:
		logical = x.Op == hir.And || x.Op == hir.Or
	case *hir.Not:
		logical = true
	}
	if !logical {
		return l.exprPair(e)
	}

	t := l.freshTemp()
	tlabel, flabel, done := l.freshLabel(), l.freshLabel(), l.freshLabel()
	var out []lir.Stmt
	out = append(out, l.controlForm(e, tlabel, flabel)...)
	out = append(out, &lir.Label{Name: tlabel})
	out = append(out, &lir.Move{Dst: t, Src: &hir.Const{Value: 1}})
	out = append(out, &lir.Jump{Target: done})
	out = append(out, &lir.Label{Name: flabel})
	out = append(out, &lir.Move{Dst: t, Src: &hir.Const{Value: 0}})
	out = append(out, &lir.Label{Name: done})
	return out, t
}

// ---------------------------------------------------------------------------
// Expressions

// exprPair lowers e to its side-effect sequence and pure residual value.
func (l *lowerer) exprPair(e hir.Expr) ([]lir.Stmt, hir.Expr) {
	switch x := e.(type) {
	case *hir.Const, *hir.Temp, *hir.Name:
		return nil, x
	case *hir.Mem:
		side, paddr := l.exprPair(x.Addr)
		return side, &hir.Mem{Addr: paddr}
	case *hir.Bin:
		if x.Op == hir.And || x.Op == hir.Or {
			return l.materializeBool(x)
		}
		return l.lowerBin(x)
	case *hir.Not:
		return l.materializeBool(x)
	case *hir.Call:
		return l.lowerCall(x)
	case *hir.ESeq:
		side := l.lowerStmt(x.Side)
		sideV, pv := l.exprPair(x.Value)
		return append(side, sideV...), pv
	case *hir.ArrayLit:
		return l.lowerArrayLit(x.Elems)
	case *hir.StringLit:
		return l.lowerStringLit(x.Value)
	case *hir.Index:
		return l.lowerIndex(x)
	case *hir.Concat:
		return l.lowerConcat(x)
	default:
		diag.Unreachable("lower: unhandled expression %T", e)
		return nil, nil
	}
}

// lowerBin implements the commutativity analysis: when the two
// subexpressions' side effects commute, both side-effect
// lists are concatenated and the pure form is returned directly; otherwise
// the left value is materialized into a fresh temporary before the right
// side effects run.
func (l *lowerer) lowerBin(b *hir.Bin) ([]lir.Stmt, hir.Expr) {
	if l.commute(b.L, b.R) {
		sideL, pl := l.exprPair(b.L)
		sideR, pr := l.exprPair(b.R)
		return append(sideL, sideR...), &hir.Bin{Op: b.Op, L: pl, R: pr}
	}
	sideL, pl := l.exprPair(b.L)
	t := l.freshTemp()
	out := append(sideL, &lir.Move{Dst: t, Src: pl})
	sideR, pr := l.exprPair(b.R)
	out = append(out, sideR...)
	return out, &hir.Bin{Op: b.Op, L: t, R: pr}
}

func (l *lowerer) lowerCall(c *hir.Call) ([]lir.Stmt, hir.Expr) {
	sideCallee, pcallee := l.exprPair(c.Callee)
	out := sideCallee
	var pargs []hir.Expr
	for _, a := range c.Args {
		sideA, pa := l.exprPair(a)
		out = append(out, sideA...)
		pargs = append(pargs, pa)
	}
	out = append(out, &lir.CallStmt{Callee: pcallee, Args: pargs, NumReturns: c.NumReturns})
	if c.NumReturns == 0 {
		return out, &hir.Const{Value: 0}
	}
	return out, &hir.Temp{Name: hir.RVName(1)}
}

// ---------------------------------------------------------------------------
// Array / string expansion
//
// Layout convention: _eta_alloc(8*(n+1)) returns a base pointer; the
// length word lives at [base], and the array value threaded through the
// rest of the program is base+8, so that element i sits at
// [arrPtr + 8*i], while the length remains reachable as [arrPtr - 8].

func arrayLen(arrPtr hir.Expr) hir.Expr {
	return &hir.Mem{Addr: &hir.Bin{Op: hir.Sub, L: arrPtr, R: &hir.Const{Value: 8}}}
}

func elemAddr(arrPtr hir.Expr, idx hir.Expr) hir.Expr {
	return &hir.Bin{Op: hir.Add, L: arrPtr, R: &hir.Bin{Op: hir.Mul, L: idx, R: &hir.Const{Value: 8}}}
}

// FieldAddr computes the address of a record field as base+offset.
// Records have no dedicated HIR expression kind: a field access lowers
// directly to the same Add-of-Const-offset shape array indexing uses,
// rather than growing the HIR expression alphabet.
func FieldAddr(base hir.Expr, recType *hir.Type, field string) (hir.Expr, error) {
	offset, ok := recType.FieldOffset(field)
	if !ok {
		return nil, fmt.Errorf("record %s has no field %q", recType.Name, field)
	}
	return &hir.Bin{Op: hir.Add, L: base, R: &hir.Const{Value: int64(offset)}}, nil
}

func (l *lowerer) allocArray(n int, writeElem func(i int, out *[]lir.Stmt, arrPtr hir.Expr)) ([]lir.Stmt, hir.Expr) {
	var out []lir.Stmt
	base := l.freshTemp()
	out = append(out, &lir.CallStmt{Callee: &hir.Name{Sym: "_eta_alloc"}, Args: []hir.Expr{&hir.Const{Value: int64(8 * (n + 1))}}, NumReturns: 1})
	out = append(out, &lir.Move{Dst: base, Src: &hir.Temp{Name: hir.RVName(1)}})
	out = append(out, &lir.Move{Dst: &hir.Mem{Addr: base}, Src: &hir.Const{Value: int64(n)}})
	arrPtr := l.freshTemp()
	out = append(out, &lir.Move{Dst: arrPtr, Src: &hir.Bin{Op: hir.Add, L: base, R: &hir.Const{Value: 8}}})
	for i := 0; i < n; i++ {
		writeElem(i, &out, arrPtr)
	}
	return out, arrPtr
}

func (l *lowerer) lowerArrayLit(elems []hir.Expr) ([]lir.Stmt, hir.Expr) {
	return l.allocArray(len(elems), func(i int, out *[]lir.Stmt, arrPtr hir.Expr) {
		side, pe := l.exprPair(elems[i])
		*out = append(*out, side...)
		*out = append(*out, &lir.Move{Dst: &hir.Mem{Addr: elemAddr(arrPtr, &hir.Const{Value: int64(i)})}, Src: pe})
	})
}

func (l *lowerer) lowerStringLit(value string) ([]lir.Stmt, hir.Expr) {
	runes := []rune(value)
	return l.allocArray(len(runes), func(i int, out *[]lir.Stmt, arrPtr hir.Expr) {
		*out = append(*out, &lir.Move{
			Dst: &hir.Mem{Addr: elemAddr(arrPtr, &hir.Const{Value: int64(i)})},
			Src: &hir.Const{Value: int64(runes[i])},
		})
	})
}

// lowerIndex emits the bounds check and a jump to the per-function
// out-of-bounds trampoline.
func (l *lowerer) lowerIndex(x *hir.Index) ([]lir.Stmt, hir.Expr) {
	sideArr, parr := l.exprPair(x.Arr)
	sideIdx, pidx := l.exprPair(x.Idx)
	var out []lir.Stmt
	if l.commute(x.Arr, x.Idx) {
		out = append(append(out, sideArr...), sideIdx...)
	} else {
		arrTemp := l.freshTemp()
		out = append(out, sideArr...)
		out = append(out, &lir.Move{Dst: arrTemp, Src: parr})
		parr = arrTemp
		out = append(out, sideIdx...)
	}

	l.boundsNeeded = true
	ok := l.freshLabel()
	out = append(out, &lir.CJump{
		Cond:  &hir.Bin{Op: hir.Ult, L: pidx, R: arrayLen(parr)},
		True:  ok,
		False: l.boundsLabel,
	})
	out = append(out, &lir.Label{Name: ok})
	return out, &hir.Mem{Addr: elemAddr(parr, pidx)}
}

// lowerConcat emits the canonical length-prefixed, loop-copy sequence for
// array concatenation.
func (l *lowerer) lowerConcat(x *hir.Concat) ([]lir.Stmt, hir.Expr) {
	sideL, pl := l.exprPair(x.L)
	sideR, pr := l.exprPair(x.R)
	out := append(sideL, sideR...)

	lt := l.freshTemp()
	out = append(out, &lir.Move{Dst: lt, Src: pl})
	rt := l.freshTemp()
	out = append(out, &lir.Move{Dst: rt, Src: pr})
	lenL := l.freshTemp()
	out = append(out, &lir.Move{Dst: lenL, Src: arrayLen(lt)})
	lenR := l.freshTemp()
	out = append(out, &lir.Move{Dst: lenR, Src: arrayLen(rt)})
	total := l.freshTemp()
	out = append(out, &lir.Move{Dst: total, Src: &hir.Bin{Op: hir.Add, L: lenL, R: lenR}})

	allocSide, resPtr := l.allocArrayDynamic(total)
	out = append(out, allocSide...)

	i := l.freshTemp()
	out = append(out, &lir.Move{Dst: i, Src: &hir.Const{Value: 0}})
	loop, test, done := l.freshLabel(), l.freshLabel(), l.freshLabel()
	out = append(out, &lir.Jump{Target: test})
	out = append(out, &lir.Label{Name: loop})
	out = append(out, &lir.Move{
		Dst: &hir.Mem{Addr: elemAddr(resPtr, i)},
		Src: &hir.Mem{Addr: elemAddr(lt, i)},
	})
	out = append(out, &lir.Move{Dst: i, Src: &hir.Bin{Op: hir.Add, L: i, R: &hir.Const{Value: 1}}})
	out = append(out, &lir.Label{Name: test})
	out = append(out, &lir.CJump{Cond: &hir.Bin{Op: hir.Lt, L: i, R: lenL}, True: loop, False: done})
	out = append(out, &lir.Label{Name: done})

	j := l.freshTemp()
	out = append(out, &lir.Move{Dst: j, Src: &hir.Const{Value: 0}})
	loop2, test2, done2 := l.freshLabel(), l.freshLabel(), l.freshLabel()
	out = append(out, &lir.Jump{Target: test2})
	out = append(out, &lir.Label{Name: loop2})
	out = append(out, &lir.Move{
		Dst: &hir.Mem{Addr: elemAddr(resPtr, &hir.Bin{Op: hir.Add, L: lenL, R: j})},
		Src: &hir.Mem{Addr: elemAddr(rt, j)},
	})
	out = append(out, &lir.Move{Dst: j, Src: &hir.Bin{Op: hir.Add, L: j, R: &hir.Const{Value: 1}}})
	out = append(out, &lir.Label{Name: test2})
	out = append(out, &lir.CJump{Cond: &hir.Bin{Op: hir.Lt, L: j, R: lenR}, True: loop2, False: done2})
	out = append(out, &lir.Label{Name: done2})

	return out, resPtr
}

// allocArrayDynamic allocates an array whose length is a runtime value
// (unlike allocArray, used for literals of statically known length).
func (l *lowerer) allocArrayDynamic(length hir.Expr) ([]lir.Stmt, hir.Expr) {
	var out []lir.Stmt
	size := l.freshTemp()
	out = append(out, &lir.Move{Dst: size, Src: &hir.Bin{Op: hir.Mul, L: &hir.Bin{Op: hir.Add, L: length, R: &hir.Const{Value: 1}}, R: &hir.Const{Value: 8}}})
	base := l.freshTemp()
	out = append(out, &lir.CallStmt{Callee: &hir.Name{Sym: "_eta_alloc"}, Args: []hir.Expr{size}, NumReturns: 1})
	out = append(out, &lir.Move{Dst: base, Src: &hir.Temp{Name: hir.RVName(1)}})
	out = append(out, &lir.Move{Dst: &hir.Mem{Addr: base}, Src: length})
	arrPtr := l.freshTemp()
	out = append(out, &lir.Move{Dst: arrPtr, Src: &hir.Bin{Op: hir.Add, L: base, R: &hir.Const{Value: 8}}})
	return out, arrPtr
}

// ---------------------------------------------------------------------------
// Commutativity analysis

type effects struct {
	writes   map[string]bool
	memWrite bool
	hasCall  bool
}

func newEffects() *effects { return &effects{writes: make(map[string]bool)} }

// commute conservatively reports whether l and r's side effects may be
// reordered freely. It declares non-commutative whenever it is uncertain.
func (lw *lowerer) commute(l, r hir.Expr) bool {
	el, er := newEffects(), newEffects()
	collectEffects(l, el)
	collectEffects(r, er)
	if el.hasCall || er.hasCall {
		return false
	}
	if el.memWrite && containsMemRead(r) {
		return false
	}
	if er.memWrite && containsMemRead(l) {
		return false
	}
	for name := range el.writes {
		if readsTemp(r, name) {
			return false
		}
	}
	for name := range er.writes {
		if readsTemp(l, name) {
			return false
		}
	}
	return true
}

// collectEffects walks e's embedded side-effect statements (reachable
// through ESeq) and records which temporaries they write, whether any
// writes through memory, and whether a call occurs anywhere in e.
func collectEffects(e hir.Expr, acc *effects) {
	switch x := e.(type) {
	case *hir.Call:
		acc.hasCall = true
		for _, a := range x.Args {
			collectEffects(a, acc)
		}
		collectEffects(x.Callee, acc)
	case *hir.ESeq:
		collectStmtEffects(x.Side, acc)
		collectEffects(x.Value, acc)
	case *hir.Bin:
		collectEffects(x.L, acc)
		collectEffects(x.R, acc)
	case *hir.Not:
		collectEffects(x.X, acc)
	case *hir.Mem:
		collectEffects(x.Addr, acc)
	case *hir.Index:
		collectEffects(x.Arr, acc)
		collectEffects(x.Idx, acc)
	case *hir.Concat:
		collectEffects(x.L, acc)
		collectEffects(x.R, acc)
	case *hir.ArrayLit:
		for _, el := range x.Elems {
			collectEffects(el, acc)
		}
	}
}

func collectStmtEffects(s hir.Stmt, acc *effects) {
	switch x := s.(type) {
	case *hir.Seq:
		for _, sub := range x.Stmts {
			collectStmtEffects(sub, acc)
		}
	case *hir.Move:
		collectEffects(x.Src, acc)
		switch d := x.Dst.(type) {
		case *hir.Temp:
			acc.writes[d.Name] = true
		case *hir.Mem:
			acc.memWrite = true
			collectEffects(d.Addr, acc)
		}
	case *hir.MultiMove:
		for _, s := range x.Srcs {
			collectEffects(s, acc)
		}
		for _, d := range x.Dsts {
			if t, ok := d.(*hir.Temp); ok {
				acc.writes[t.Name] = true
			} else if m, ok := d.(*hir.Mem); ok {
				acc.memWrite = true
				collectEffects(m.Addr, acc)
			}
		}
	case *hir.CallStmt:
		acc.hasCall = true
	}
}

// containsMemRead reports whether e reads through a memory location
// anywhere in its tree (conservative: true for any Mem node).
func containsMemRead(e hir.Expr) bool {
	found := false
	var walk func(hir.Expr)
	walk = func(e hir.Expr) {
		if found {
			return
		}
		switch x := e.(type) {
		case *hir.Mem:
			found = true
		case *hir.Bin:
			walk(x.L)
			walk(x.R)
		case *hir.Not:
			walk(x.X)
		case *hir.Call:
			walk(x.Callee)
			for _, a := range x.Args {
				walk(a)
			}
		case *hir.ESeq:
			walk(x.Value)
		case *hir.Index:
			walk(x.Arr)
			walk(x.Idx)
		case *hir.Concat:
			walk(x.L)
			walk(x.R)
		case *hir.ArrayLit:
			for _, el := range x.Elems {
				walk(el)
			}
		}
	}
	walk(e)
	return found
}

// readsTemp reports whether e reads the named temporary anywhere in its
// tree (including inside nested ESeq side effects, conservatively).
func readsTemp(e hir.Expr, name string) bool {
	found := false
	var walk func(hir.Expr)
	walk = func(e hir.Expr) {
		if found {
			return
		}
		switch x := e.(type) {
		case *hir.Temp:
			if x.Name == name {
				found = true
			}
		case *hir.Bin:
			walk(x.L)
			walk(x.R)
		case *hir.Not:
			walk(x.X)
		case *hir.Mem:
			walk(x.Addr)
		case *hir.Call:
			walk(x.Callee)
			for _, a := range x.Args {
				walk(a)
			}
		case *hir.ESeq:
			walk(x.Value)
		case *hir.Index:
			walk(x.Arr)
			walk(x.Idx)
		case *hir.Concat:
			walk(x.L)
			walk(x.R)
		case *hir.ArrayLit:
			for _, el := range x.Elems {
				walk(el)
			}
		}
	}
	walk(e)
	return found
}
