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

// Package tile is the dynamic-program maximal-munch instruction tiler:
// it rewrites flat LIR into abstract x86-64 assembly using virtual
// registers.
package tile

import (
	"eta/internal/asm"
	"eta/internal/diag"
	"eta/internal/hir"
	"eta/internal/lir"
)

// translation is the tiler's per-node memo entry: the instructions
// needed to compute the node's value, plus the operand that names the
// result once those instructions have run. The child-splice list is
// implicit here since every instruction slice already embeds its
// children's instructions in program order, which is equivalent for a
// tree with no shared subexpressions.
type translation struct {
	instrs []asm.Instruction
	cost   int
	result asm.Operand
}

type tiler struct {
	nextVirt int
	memo     map[hir.Expr]*translation
	names    map[string]asm.Register
}

// Func tiles fn's statement list into a flat abstract-assembly sequence
// using virtual registers.
func Func(fn *lir.Func) []asm.Instruction {
	t := &tiler{memo: map[hir.Expr]*translation{}}
	var out []asm.Instruction
	for _, s := range fn.Stmts {
		out = append(out, t.stmt(s, fn.NumReturns)...)
	}
	return out
}

func (t *tiler) freshVirt() asm.Register {
	r := asm.Virt(t.nextVirt)
	t.nextVirt++
	return r
}

// ---------------------------------------------------------------------------
// Statements

func (t *tiler) stmt(s lir.Stmt, numReturns int) []asm.Instruction {
	switch x := s.(type) {
	case *lir.Label:
		return []asm.Instruction{{Op: asm.OpLabel, Text: x.Name}}
	case *lir.Jump:
		return []asm.Instruction{{Op: asm.OpJmp, Text: x.Target}}
	case *lir.Move:
		return t.move(x.Dst, x.Src)
	case *lir.CJump:
		return t.cjump(x)
	case *lir.CallStmt:
		return t.call(x.Callee, x.Args, x.NumReturns)
	case *lir.Return:
		var out []asm.Instruction
		for i, v := range x.Values {
			tr := t.expr(v)
			out = append(out, tr.instrs...)
			if reg, ok := asm.ReturnReg(i); ok {
				out = append(out, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(reg), Srcs: []asm.Operand{tr.result}})
			} else {
				// spilled into the caller's pre-allocated return area at
				// [RDI + 8*(i-2)].
				mem := &asm.MemOperand{Base: asm.RDI, Offset: int64(8 * (i - 2))}
				out = append(out, asm.Instruction{Op: asm.OpMov, Dst: asm.MemOp(mem), Srcs: []asm.Operand{tr.result}})
			}
		}
		out = append(out, asm.Instruction{Op: asm.OpEpilogue})
		return out
	default:
		diag.Unreachable("tile: unhandled statement %T", s)
		return nil
	}
}

// move implements the Move matchers: in-place
// update when the destination temp also appears as one operand of a
// commutative RHS op, LEA when the source is address-form, otherwise
// naive materialize-then-mov.
func (t *tiler) move(dst, src hir.Expr) []asm.Instruction {
	if m, ok := dst.(*hir.Mem); ok {
		addrTr := t.addressForm(m.Addr)
		srcTr := t.expr(src)
		out := append(append([]asm.Instruction{}, addrTr.instrs...), srcTr.instrs...)
		out = append(out, asm.Instruction{Op: asm.OpMov, Dst: asm.MemOp(addrTr.mem), Srcs: []asm.Operand{srcTr.result}})
		return out
	}

	dstTemp, ok := dst.(*hir.Temp)
	diag.Assert(ok, "tile: move destination is neither Temp nor Mem: %T", dst)
	dstReg := t.regFor(dstTemp)

	if lea, mem, ok := t.tryLEA(src); ok {
		return append(lea, asm.Instruction{Op: asm.OpLea, Dst: asm.RegOp(dstReg), Srcs: []asm.Operand{asm.MemOp(mem)}})
	}

	if b, ok := src.(*hir.Bin); ok && b.Op.Commutative() {
		var other hir.Expr
		if lhsTemp, ok := b.L.(*hir.Temp); ok && lhsTemp.Name == dstTemp.Name {
			other = b.R
		} else if rhsTemp, ok := b.R.(*hir.Temp); ok && rhsTemp.Name == dstTemp.Name {
			other = b.L
		}
		if _, isCmp := conditionCode(b.Op); other != nil && !isCmp {
			rhsTr := t.expr(other)
			out := append([]asm.Instruction{}, rhsTr.instrs...)
			return append(out, asm.Instruction{Op: binOpcode(b.Op), Dst: asm.RegOp(dstReg), Srcs: []asm.Operand{rhsTr.result}})
		}
	}

	srcTr := t.expr(src)
	out := append([]asm.Instruction{}, srcTr.instrs...)
	return append(out, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(dstReg), Srcs: []asm.Operand{srcTr.result}})
}

// cjump tiles a conditional jump: cmp+jcc for a directly expressible
// comparison, else test+jnz on the materialized condition.
func (t *tiler) cjump(c *lir.CJump) []asm.Instruction {
	if b, ok := c.Cond.(*hir.Bin); ok {
		if cc, ok := conditionCode(b.Op); ok {
			lt := t.expr(b.L)
			rt := t.expr(b.R)
			out := append(append([]asm.Instruction{}, lt.instrs...), rt.instrs...)
			out = append(out, asm.Instruction{Op: asm.OpCmp, Srcs: []asm.Operand{lt.result, rt.result}})
			out = append(out, asm.Instruction{Op: asm.OpJcc, Cond: cc, Text: c.True})
			out = append(out, asm.Instruction{Op: asm.OpJmp, Text: c.False})
			return out
		}
	}
	tr := t.expr(c.Cond)
	out := append([]asm.Instruction{}, tr.instrs...)
	out = append(out, asm.Instruction{Op: asm.OpTest, Srcs: []asm.Operand{tr.result, tr.result}})
	out = append(out, asm.Instruction{Op: asm.OpJcc, Cond: "nz", Text: c.True})
	out = append(out, asm.Instruction{Op: asm.OpJmp, Text: c.False})
	return out
}

// call implements the calling-convention sequencing: arguments
// materialize into the first six integer registers (or the stack past
// the sixth), then OpCall.
func (t *tiler) call(callee hir.Expr, args []hir.Expr, numReturns int) []asm.Instruction {
	var out []asm.Instruction
	for i, a := range args {
		tr := t.expr(a)
		out = append(out, tr.instrs...)
		if reg, ok := asm.ArgReg(i); ok {
			out = append(out, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(reg), Srcs: []asm.Operand{tr.result}})
		} else {
			out = append(out, asm.Instruction{Op: asm.OpPush, Srcs: []asm.Operand{tr.result}})
		}
	}
	if numReturns > 2 {
		// caller reserves 8*(n-2) bytes and passes the area's address in
		// RDI, ahead of the positional arguments already placed above.
		out = append(out, asm.Instruction{Op: asm.OpSub, Dst: asm.RegOp(asm.RSP), Srcs: []asm.Operand{asm.ImmOp(int64(8 * (numReturns - 2)))}})
		out = append(out, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(asm.RDI), Srcs: []asm.Operand{asm.RegOp(asm.RSP)}})
	}
	if name, ok := callee.(*hir.Name); ok {
		out = append(out, asm.Instruction{Op: asm.OpCall, Text: name.Sym})
	} else {
		tr := t.expr(callee)
		out = append(out, tr.instrs...)
		out = append(out, asm.Instruction{Op: asm.OpCall, Srcs: []asm.Operand{tr.result}})
	}
	if numReturns > 2 {
		out = append(out, asm.Instruction{Op: asm.OpAdd, Dst: asm.RegOp(asm.RSP), Srcs: []asm.Operand{asm.ImmOp(int64(8 * (numReturns - 2)))}})
	}
	return out
}

func binOpcode(op hir.BinOp) asm.Opcode {
	switch op {
	case hir.Add:
		return asm.OpAdd
	case hir.Sub:
		return asm.OpSub
	case hir.Mul:
		return asm.OpIMul
	case hir.And:
		return asm.OpAnd
	case hir.Or:
		return asm.OpOr
	case hir.Xor:
		return asm.OpXor
	case hir.LShift:
		return asm.OpShl
	case hir.RShift:
		return asm.OpSar
	default:
		diag.Unreachable("tile: no direct opcode for operator %s", op)
		return 0
	}
}

func conditionCode(op hir.BinOp) (string, bool) {
	switch op {
	case hir.Eq:
		return "e", true
	case hir.Neq:
		return "ne", true
	case hir.Lt:
		return "l", true
	case hir.Leq:
		return "le", true
	case hir.Gt:
		return "g", true
	case hir.Geq:
		return "ge", true
	case hir.Ult:
		return "b", true
	default:
		return "", false
	}
}
