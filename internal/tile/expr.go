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

package tile

import (
	"strconv"
	"strings"

	"eta/internal/asm"
	"eta/internal/diag"
	"eta/internal/hir"
)

// addressTranslation is like translation but names its result as a
// ready-to-use memory operand rather than a register/immediate operand,
// for the Mem and LEA matchers.
type addressTranslation struct {
	instrs []asm.Instruction
	mem    *asm.MemOperand
}

// regFor assigns a source-level temporary name the single virtual
// register that stands for it throughout a function. ABI-reserved names
// materialize to fixed physical locations instead, via reservedReg.
func (t *tiler) regFor(temp *hir.Temp) asm.Register {
	if t.names == nil {
		t.names = map[string]asm.Register{}
	}
	if hir.IsReserved(temp.Name) {
		return reservedReg(temp.Name)
	}
	if r, ok := t.names[temp.Name]; ok {
		return r
	}
	r := t.freshVirt()
	t.names[temp.Name] = r
	return r
}

// reservedReg materializes an ABI-reserved name: _ARG1..6 to
// RDI/RSI/RDX/RCX/R8/R9, _RV1/_RV2 to RAX/RDX. _ARG7+ and
// higher-numbered returns are memory operands, not registers, and are
// handled by regOrMem instead.
func reservedReg(name string) asm.Register {
	if strings.HasPrefix(name, "_ARG") {
		n, _ := strconv.Atoi(name[4:])
		if reg, ok := asm.ArgReg(n - 1); ok {
			return reg
		}
	}
	if strings.HasPrefix(name, "_RV") {
		n, _ := strconv.Atoi(name[3:])
		if reg, ok := asm.ReturnReg(n - 1); ok {
			return reg
		}
	}
	diag.Unreachable("tile: reserved name has no register form: %s", name)
	return asm.RAX
}

// regOrMemForReserved handles the stack-resident ABI slots: the 7th+
// incoming argument at [RBP+8k], and the 3rd+ return value at [RDI+8k].
func regOrMemForReserved(name string) (asm.Operand, bool) {
	if strings.HasPrefix(name, "_ARG") {
		n, _ := strconv.Atoi(name[4:])
		if n >= 7 {
			off := int64(8 * (n - 7 + 2)) // +2 for saved RBP/return address
			return asm.MemOp(&asm.MemOperand{Base: asm.RBP, Offset: off}), true
		}
	}
	if strings.HasPrefix(name, "_RV") {
		n, _ := strconv.Atoi(name[3:])
		if n >= 3 {
			return asm.MemOp(&asm.MemOperand{Base: asm.RDI, Offset: int64(8 * (n - 3))}), true
		}
	}
	return asm.Operand{}, false
}

// expr tiles e to a (possibly empty) instruction prelude plus the
// operand naming its value, memoized per node since lowering never
// shares a subexpression between two parents.
func (t *tiler) expr(e hir.Expr) *translation {
	if tr, ok := t.memo[e]; ok {
		return tr
	}
	tr := t.computeExpr(e)
	t.memo[e] = tr
	return tr
}

func (t *tiler) computeExpr(e hir.Expr) *translation {
	switch x := e.(type) {
	case *hir.Const:
		return &translation{result: asm.ImmOp(x.Value)}
	case *hir.Temp:
		if op, ok := regOrMemForReserved(x.Name); ok {
			return &translation{result: op}
		}
		return &translation{result: asm.RegOp(t.regFor(x))}
	case *hir.Name:
		return &translation{result: asm.GlobalOp(x.Sym)}
	case *hir.GlobalAddr:
		dst := t.freshVirt()
		instrs := []asm.Instruction{{Op: asm.OpLea, Dst: asm.RegOp(dst), Srcs: []asm.Operand{asm.GlobalOffsetOp(x.Sym, x.Offset)}}}
		return &translation{instrs: instrs, result: asm.RegOp(dst)}
	case *hir.Mem:
		addrTr := t.addressForm(x.Addr)
		return &translation{instrs: addrTr.instrs, result: asm.MemOp(addrTr.mem)}
	case *hir.Bin:
		return t.binExpr(x)
	case *hir.Call:
		dst := t.freshVirt()
		instrs := t.call(x.Callee, x.Args, x.NumReturns)
		if x.NumReturns > 0 {
			instrs = append(instrs, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(dst), Srcs: []asm.Operand{asm.RegOp(asm.RAX)}})
			return &translation{instrs: instrs, result: asm.RegOp(dst)}
		}
		return &translation{instrs: instrs, result: asm.ImmOp(0)}
	default:
		diag.Unreachable("tile: unhandled expression kind %T", e)
		return nil
	}
}

// binExpr tiles binary operators: three-address lowering for the
// general case, condition-code materialization for comparisons via
// setcc, and high/low multiply and division's fixed register
// conventions.
func (t *tiler) binExpr(b *hir.Bin) *translation {
	if cc, ok := conditionCode(b.Op); ok {
		lt := t.expr(b.L)
		rt := t.expr(b.R)
		dst := t.freshVirt()
		instrs := append(append([]asm.Instruction{}, lt.instrs...), rt.instrs...)
		instrs = append(instrs, asm.Instruction{Op: asm.OpCmp, Srcs: []asm.Operand{lt.result, rt.result}})
		instrs = append(instrs, asm.Instruction{Op: asm.OpSetcc, Cond: cc, Dst: asm.RegOp(dst)})
		instrs = append(instrs, asm.Instruction{Op: asm.OpMovsx, Dst: asm.RegOp(dst), Srcs: []asm.Operand{asm.RegOp(dst)}})
		return &translation{instrs: instrs, result: asm.RegOp(dst)}
	}

	switch b.Op {
	case hir.Div, hir.Mod:
		lt := t.expr(b.L)
		rt := t.expr(b.R)
		instrs := append(append([]asm.Instruction{}, lt.instrs...), rt.instrs...)
		instrs = append(instrs, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(asm.RAX), Srcs: []asm.Operand{lt.result}})
		instrs = append(instrs, asm.Instruction{Op: asm.OpCqo})
		instrs = append(instrs, asm.Instruction{Op: asm.OpIDiv, Srcs: []asm.Operand{rt.result}})
		dst := t.freshVirt()
		src := asm.RAX
		if b.Op == hir.Mod {
			src = asm.RDX
		}
		instrs = append(instrs, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(dst), Srcs: []asm.Operand{asm.RegOp(src)}})
		return &translation{instrs: instrs, result: asm.RegOp(dst)}
	case hir.HMul:
		lt := t.expr(b.L)
		rt := t.expr(b.R)
		instrs := append(append([]asm.Instruction{}, lt.instrs...), rt.instrs...)
		instrs = append(instrs, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(asm.RAX), Srcs: []asm.Operand{lt.result}})
		instrs = append(instrs, asm.Instruction{Op: asm.OpIMul, Srcs: []asm.Operand{rt.result}})
		dst := t.freshVirt()
		instrs = append(instrs, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(dst), Srcs: []asm.Operand{asm.RegOp(asm.RDX)}})
		return &translation{instrs: instrs, result: asm.RegOp(dst)}
	}

	if lea, mem, ok := t.tryLEA(b); ok {
		dst := t.freshVirt()
		instrs := append(lea, asm.Instruction{Op: asm.OpLea, Dst: asm.RegOp(dst), Srcs: []asm.Operand{asm.MemOp(mem)}})
		return &translation{instrs: instrs, result: asm.RegOp(dst)}
	}

	lt := t.expr(b.L)
	rt := t.expr(b.R)
	dst := t.freshVirt()
	instrs := append(append([]asm.Instruction{}, lt.instrs...), rt.instrs...)
	instrs = append(instrs, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(dst), Srcs: []asm.Operand{lt.result}})
	instrs = append(instrs, asm.Instruction{Op: binOpcode(b.Op), Dst: asm.RegOp(dst), Srcs: []asm.Operand{rt.result}})
	return &translation{instrs: instrs, result: asm.RegOp(dst)}
}

// addressForm tiles an address expression directly into a MemOperand,
// folding Add/Mul forms into `[base + index*scale + offset]`: a single
// recursive matcher covering the three shapes (plain base, base+offset,
// base+index*scale[+offset]) directly instead of naming each one.
func (t *tiler) addressForm(e hir.Expr) *addressTranslation {
	if mem, ok := t.matchAddress(e); ok {
		return mem
	}
	tr := t.expr(e)
	switch tr.result.Kind {
	case asm.OperandReg:
		return &addressTranslation{instrs: tr.instrs, mem: &asm.MemOperand{Base: tr.result.Reg}}
	default:
		dst := t.freshVirt()
		instrs := append(append([]asm.Instruction{}, tr.instrs...), asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(dst), Srcs: []asm.Operand{tr.result}})
		return &addressTranslation{instrs: instrs, mem: &asm.MemOperand{Base: dst}}
	}
}

// matchAddress recognizes three address-form families: base+const,
// base+index*scale, and the combined base+index*scale+const full form
// (spec §4.7's is_deref_full). A non-constant offset is declined here
// so the caller falls back to materializing the whole address. Both
// base and index must be plain temps already holding a value, since
// folding an arbitrary subexpression into an addressing slot would
// reorder its side effects relative to the rest of the instruction.
func (t *tiler) matchAddress(e hir.Expr) (*addressTranslation, bool) {
	b, ok := e.(*hir.Bin)
	if !ok || b.Op != hir.Add {
		return nil, false
	}

	// (base + index*scale) + const
	if inner, ok := b.L.(*hir.Bin); ok && inner.Op == hir.Add {
		if base, ok := inner.L.(*hir.Temp); ok {
			if idxMul, ok := inner.R.(*hir.Bin); ok && idxMul.Op == hir.Mul {
				if idx, ok := idxMul.L.(*hir.Temp); ok {
					if scale, ok := idxMul.R.(*hir.Const); ok && isValidScale(scale.Value) {
						if c, ok := b.R.(*hir.Const); ok {
							return &addressTranslation{mem: &asm.MemOperand{
								Base: t.regFor(base), HasIdx: true, Index: t.regFor(idx),
								Scale: int(scale.Value), Offset: c.Value,
							}}, true
						}
					}
				}
			}
		}
	}

	// base + const
	if base, ok := b.L.(*hir.Temp); ok {
		if c, ok := b.R.(*hir.Const); ok {
			return &addressTranslation{mem: &asm.MemOperand{Base: t.regFor(base), Offset: c.Value}}, true
		}
		// base + index*scale
		if idxMul, ok := b.R.(*hir.Bin); ok && idxMul.Op == hir.Mul {
			if idx, ok := idxMul.L.(*hir.Temp); ok {
				if scale, ok := idxMul.R.(*hir.Const); ok && isValidScale(scale.Value) {
					return &addressTranslation{mem: &asm.MemOperand{
						Base: t.regFor(base), HasIdx: true, Index: t.regFor(idx), Scale: int(scale.Value),
					}}, true
				}
			}
		}
	}
	return nil, false
}

func isValidScale(v int64) bool { return v == 1 || v == 2 || v == 4 || v == 8 }

// tryLEA recognizes when e (a full expression, not just an address) is
// itself address-form, so that `t ← e` can be emitted as a single LEA
// instead of materializing arithmetic and copying.
func (t *tiler) tryLEA(e hir.Expr) ([]asm.Instruction, *asm.MemOperand, bool) {
	b, ok := e.(*hir.Bin)
	if !ok || b.Op != hir.Add {
		return nil, nil, false
	}
	at, ok := t.matchAddress(b)
	if !ok {
		return nil, nil, false
	}
	if at.mem.HasIdx || at.mem.Offset != 0 {
		return at.instrs, at.mem, true
	}
	return nil, nil, false
}
