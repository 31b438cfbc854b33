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

// Package emit renders allocated abstract assembly to Intel-syntax text:
// one .data section for the compilation unit's static data segment, one
// .text section with a .globl-decorated label per function.
package emit

import (
	"fmt"
	"strings"

	"eta/internal/asm"
	"eta/internal/hir"
)

// Unit is a fully allocated compilation unit ready for text emission: one
// physical-register-only instruction stream per exported function.
type Unit struct {
	Data      []*hir.GlobalData
	Functions []Function
}

// Function pairs a function's mangled ABI name with its finished
// instruction stream (the output of internal/regalloc.Allocate).
type Function struct {
	ABIName string
	Instrs  []asm.Instruction
}

// Text renders u as a complete Intel-syntax assembly file.
func Text(u Unit) string {
	var b strings.Builder
	b.WriteString(".intel_syntax noprefix\n")
	emitData(&b, u.Data)
	b.WriteString(".text\n")
	for _, fn := range u.Functions {
		emitFunc(&b, fn)
	}
	return b.String()
}

func emitData(b *strings.Builder, data []*hir.GlobalData) {
	if len(data) == 0 {
		return
	}
	b.WriteString(".data\n")
	for _, d := range data {
		fmt.Fprintf(b, "%s:\n", d.Name)
		if len(d.Words) == 0 && d.Zeros > 0 {
			fmt.Fprintf(b, "\t.zero %d\n", 8*d.Zeros)
			continue
		}
		for _, w := range d.Words {
			fmt.Fprintf(b, "\t.quad %d\n", w)
		}
	}
}

func emitFunc(b *strings.Builder, fn Function) {
	fmt.Fprintf(b, ".globl %s\n", fn.ABIName)
	fmt.Fprintf(b, "%s:\n", fn.ABIName)
	for _, ins := range fn.Instrs {
		emitInstr(b, ins)
	}
}

func emitInstr(b *strings.Builder, ins asm.Instruction) {
	switch ins.Op {
	case asm.OpLabel:
		fmt.Fprintf(b, "%s:\n", ins.Text)
		return
	case asm.OpJmp:
		fmt.Fprintf(b, "\tjmp %s\n", ins.Text)
		return
	case asm.OpJcc:
		fmt.Fprintf(b, "\tj%s %s\n", ins.Cond, ins.Text)
		return
	case asm.OpCall:
		if ins.Text != "" {
			fmt.Fprintf(b, "\tcall %s\n", ins.Text)
		} else {
			fmt.Fprintf(b, "\tcall %s\n", operand(ins.Srcs[0]))
		}
		return
	case asm.OpRet:
		b.WriteString("\tret\n")
		return
	case asm.OpLeave:
		b.WriteString("\tleave\n")
		return
	case asm.OpCqo:
		b.WriteString("\tcqo\n")
		return
	case asm.OpSetcc:
		fmt.Fprintf(b, "\tset%s %s\n", ins.Cond, operand(ins.Dst))
		return
	}

	mnemonic := opcodeMnemonic(ins.Op)
	var operands []string
	if hasDstOperand(ins.Op) {
		operands = append(operands, operand(ins.Dst))
	}
	for _, s := range ins.Srcs {
		operands = append(operands, operand(s))
	}
	fmt.Fprintf(b, "\t%s %s\n", mnemonic, strings.Join(operands, ", "))
}

// hasDstOperand reports whether op's rendering includes a leading
// destination operand (false for the compare/test/stack-effect forms,
// which render their operands purely from Srcs).
func hasDstOperand(op asm.Opcode) bool {
	switch op {
	case asm.OpMov, asm.OpLea, asm.OpAdd, asm.OpSub, asm.OpIMul, asm.OpAnd, asm.OpOr, asm.OpXor, asm.OpShl, asm.OpShr, asm.OpSar:
		return true
	default:
		return false
	}
}

func opcodeMnemonic(op asm.Opcode) string {
	switch op {
	case asm.OpMov:
		return "mov"
	case asm.OpLea:
		return "lea"
	case asm.OpAdd:
		return "add"
	case asm.OpSub:
		return "sub"
	case asm.OpIMul:
		return "imul"
	case asm.OpIDiv:
		return "idiv"
	case asm.OpAnd:
		return "and"
	case asm.OpOr:
		return "or"
	case asm.OpXor:
		return "xor"
	case asm.OpShl:
		return "shl"
	case asm.OpShr:
		return "shr"
	case asm.OpSar:
		return "sar"
	case asm.OpCmp:
		return "cmp"
	case asm.OpTest:
		return "test"
	case asm.OpPush:
		return "push"
	case asm.OpPop:
		return "pop"
	default:
		return "?"
	}
}

func operand(op asm.Operand) string {
	switch op.Kind {
	case asm.OperandReg:
		return op.Reg.String()
	case asm.OperandImm:
		return fmt.Sprintf("%d", op.Imm)
	case asm.OperandMem:
		return memOperand(op.Mem)
	case asm.OperandLabel:
		return op.Sym
	case asm.OperandGlobal:
		if op.Offset > 0 {
			return fmt.Sprintf("QWORD PTR [rip + %s + %d]", op.Sym, op.Offset)
		} else if op.Offset < 0 {
			return fmt.Sprintf("QWORD PTR [rip + %s - %d]", op.Sym, -op.Offset)
		}
		return fmt.Sprintf("QWORD PTR [rip + %s]", op.Sym)
	default:
		return "?"
	}
}

// memOperand renders the `QWORD PTR [base + index*scale ± offset]` form,
// omitting absent components.
func memOperand(m *asm.MemOperand) string {
	var sb strings.Builder
	sb.WriteString("QWORD PTR [")
	sb.WriteString(m.Base.String())
	if m.HasIdx {
		fmt.Fprintf(&sb, " + %s*%d", m.Index.String(), m.Scale)
	}
	if m.Offset > 0 {
		fmt.Fprintf(&sb, " + %d", m.Offset)
	} else if m.Offset < 0 {
		fmt.Fprintf(&sb, " - %d", -m.Offset)
	}
	sb.WriteString("]")
	return sb.String()
}
