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

// Package fold implements a recursive post-order constant folder over
// HIR. It is the one source of recoverable errors the core produces:
// arithmetic overflow, divide by zero, and bad shift counts abort the
// containing compilation unit.
package fold

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"eta/internal/hir"
)

// Error is returned, wrapped with location context by the caller, when a
// constant expression cannot be folded: overflow, divide/mod by zero, or a
// negative shift count.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "undefined, may overflow: " + e.Reason }

// Expr folds e, returning a new tree with every all-constant subexpression
// reduced to a Const. Non-constant subtrees are returned with their
// children recursively folded.
func Expr(e hir.Expr) (hir.Expr, error) {
	switch x := e.(type) {
	case *hir.Const, *hir.Temp, *hir.Name:
		return x, nil
	case *hir.Mem:
		addr, err := Expr(x.Addr)
		if err != nil {
			return nil, err
		}
		return &hir.Mem{Addr: addr}, nil
	case *hir.Call:
		callee, err := Expr(x.Callee)
		if err != nil {
			return nil, err
		}
		args, err := foldAll(x.Args)
		if err != nil {
			return nil, err
		}
		return &hir.Call{Callee: callee, Args: args, NumReturns: x.NumReturns}, nil
	case *hir.ESeq:
		side, err := Stmt(x.Side)
		if err != nil {
			return nil, err
		}
		val, err := Expr(x.Value)
		if err != nil {
			return nil, err
		}
		return &hir.ESeq{Side: side, Value: val}, nil
	case *hir.ArrayLit:
		elems, err := foldAll(x.Elems)
		if err != nil {
			return nil, err
		}
		return &hir.ArrayLit{Elems: elems}, nil
	case *hir.StringLit:
		return x, nil
	case *hir.Index:
		arr, err := Expr(x.Arr)
		if err != nil {
			return nil, err
		}
		idx, err := Expr(x.Idx)
		if err != nil {
			return nil, err
		}
		return &hir.Index{Arr: arr, Idx: idx}, nil
	case *hir.Concat:
		l, err := Expr(x.L)
		if err != nil {
			return nil, err
		}
		r, err := Expr(x.R)
		if err != nil {
			return nil, err
		}
		return &hir.Concat{L: l, R: r}, nil
	case *hir.Bin:
		return foldBin(x)
	case *hir.Not:
		v, err := Expr(x.X)
		if err != nil {
			return nil, err
		}
		if c, ok := v.(*hir.Const); ok {
			return &hir.Const{Value: boolInt(c.Value == 0)}, nil
		}
		return &hir.Not{X: v}, nil
	default:
		return nil, errors.Errorf("fold: unhandled expression %T", e)
	}
}

func foldAll(es []hir.Expr) ([]hir.Expr, error) {
	out := make([]hir.Expr, len(es))
	for i, e := range es {
		f, err := Expr(e)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func foldBin(b *hir.Bin) (hir.Expr, error) {
	l, err := Expr(b.L)
	if err != nil {
		return nil, err
	}

	// Short-circuit on a constant left operand of Or/And before the right
	// side is even folded.
	if lc, ok := l.(*hir.Const); ok {
		if b.Op == hir.Or && lc.Value == 1 {
			return &hir.Const{Value: 1}, nil
		}
		if b.Op == hir.And && lc.Value == 0 {
			return &hir.Const{Value: 0}, nil
		}
	}

	r, err := Expr(b.R)
	if err != nil {
		return nil, err
	}

	lc, lok := l.(*hir.Const)
	rc, rok := r.(*hir.Const)
	if !lok || !rok {
		return &hir.Bin{Op: b.Op, L: l, R: r}, nil
	}

	v, err := evalConst(b.Op, lc.Value, rc.Value)
	if err != nil {
		return nil, errors.Wrapf(err, "folding %s", b.Op)
	}
	return &hir.Const{Value: v}, nil
}

func evalConst(op hir.BinOp, l, r int64) (int64, error) {
	switch op {
	case hir.Add:
		v, carry := bits.Add64(uint64(l), uint64(r), 0)
		if overflowsAdd(l, r, int64(v)) {
			return 0, &Error{"add overflow"}
		}
		_ = carry
		return int64(v), nil
	case hir.Sub:
		v := l - r
		if overflowsSub(l, r, v) {
			return 0, &Error{"sub overflow"}
		}
		return v, nil
	case hir.Mul:
		hi, lo := bits.Mul64(absU(l), absU(r))
		if hi != 0 || lo > math.MaxInt64 {
			return 0, &Error{"mul overflow"}
		}
		v := l * r
		if (l != 0 && v/l != r) || (l == math.MinInt64 && r == -1) {
			return 0, &Error{"mul overflow"}
		}
		return v, nil
	case hir.HMul:
		hi, _ := bits.Mul64(uint64(l), uint64(r))
		return int64(hi), nil
	case hir.Div:
		if r == 0 {
			return 0, &Error{"divide by zero"}
		}
		if l == math.MinInt64 && r == -1 {
			return 0, &Error{"div overflow"}
		}
		return l / r, nil
	case hir.Mod:
		if r == 0 {
			return 0, &Error{"mod by zero"}
		}
		if l == math.MinInt64 && r == -1 {
			return 0, nil
		}
		return l % r, nil
	case hir.And:
		return l & r, nil
	case hir.Or:
		return l | r, nil
	case hir.Xor:
		return l ^ r, nil
	case hir.LShift:
		if r < 0 {
			return 0, &Error{"negative shift count"}
		}
		if r >= 64 {
			r = 63 // clamp to word size
		}
		return l << uint(r), nil
	case hir.RShift:
		if r < 0 {
			return 0, &Error{"negative shift count"}
		}
		if r >= 64 {
			r = 63
		}
		return l >> uint(r), nil
	case hir.Eq:
		return boolInt(l == r), nil
	case hir.Neq:
		return boolInt(l != r), nil
	case hir.Lt:
		return boolInt(l < r), nil
	case hir.Leq:
		return boolInt(l <= r), nil
	case hir.Gt:
		return boolInt(l > r), nil
	case hir.Geq:
		return boolInt(l >= r), nil
	case hir.Ult:
		return boolInt(uint64(l) < uint64(r)), nil
	default:
		return 0, errors.Errorf("unhandled binop %s", op)
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func absU(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

func overflowsAdd(l, r, v int64) bool {
	return ((l > 0 && r > 0 && v < 0) || (l < 0 && r < 0 && v > 0))
}

func overflowsSub(l, r, v int64) bool {
	return ((l >= 0 && r < 0 && v < 0) || (l < 0 && r > 0 && v > 0))
}

// Stmt folds every expression reachable from s, rewriting s's tree in
// place-equivalent fashion (a fresh tree is returned; inputs are never
// mutated).
func Stmt(s hir.Stmt) (hir.Stmt, error) {
	switch x := s.(type) {
	case *hir.Move:
		dst, err := Expr(x.Dst)
		if err != nil {
			return nil, err
		}
		src, err := Expr(x.Src)
		if err != nil {
			return nil, err
		}
		return &hir.Move{Dst: dst, Src: src}, nil
	case *hir.MultiMove:
		dsts := make([]hir.Expr, len(x.Dsts))
		for i, d := range x.Dsts {
			if d == nil {
				continue
			}
			f, err := Expr(d)
			if err != nil {
				return nil, err
			}
			dsts[i] = f
		}
		srcs, err := foldAll(x.Srcs)
		if err != nil {
			return nil, err
		}
		return &hir.MultiMove{Dsts: dsts, Srcs: srcs}, nil
	case *hir.Seq:
		out := make([]hir.Stmt, len(x.Stmts))
		for i, st := range x.Stmts {
			f, err := Stmt(st)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return &hir.Seq{Stmts: out}, nil
	case *hir.Jump:
		return x, nil
	case *hir.CJump:
		cond, err := Expr(x.Cond)
		if err != nil {
			return nil, err
		}
		if c, ok := cond.(*hir.Const); ok {
			if c.Value != 0 {
				return &hir.Jump{Target: x.True}, nil
			}
			return &hir.Jump{Target: x.False}, nil
		}
		return &hir.CJump{Cond: cond, True: x.True, False: x.False}, nil
	case *hir.CallStmt:
		callee, err := Expr(x.Callee)
		if err != nil {
			return nil, err
		}
		args, err := foldAll(x.Args)
		if err != nil {
			return nil, err
		}
		return &hir.CallStmt{Callee: callee, Args: args, NumReturns: x.NumReturns}, nil
	case *hir.Label:
		return x, nil
	case *hir.Return:
		vals, err := foldAll(x.Values)
		if err != nil {
			return nil, err
		}
		return &hir.Return{Values: vals}, nil
	default:
		return nil, errors.Errorf("fold: unhandled statement %T", s)
	}
}
