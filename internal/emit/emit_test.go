package emit

import (
	"strings"
	"testing"

	"eta/internal/asm"
	"eta/internal/hir"
)

func TestTextStartsWithIntelDirective(t *testing.T) {
	out := Text(Unit{})
	if !strings.HasPrefix(out, ".intel_syntax noprefix\n") {
		t.Fatalf("expected the output to start with the Intel syntax directive, got %q", out[:40])
	}
}

func TestTextEmitsGlobalAndLabelPerFunction(t *testing.T) {
	out := Text(Unit{Functions: []Function{
		{ABIName: "_If_i", Instrs: []asm.Instruction{
			{Op: asm.OpMov, Dst: asm.RegOp(asm.RAX), Srcs: []asm.Operand{asm.ImmOp(5)}},
			{Op: asm.OpRet},
		}},
	}})
	if !strings.Contains(out, ".globl _If_i\n") {
		t.Fatalf("expected a .globl declaration, got %s", out)
	}
	if !strings.Contains(out, "_If_i:\n") {
		t.Fatalf("expected a function label, got %s", out)
	}
	if !strings.Contains(out, "mov rax, 5\n") {
		t.Fatalf("expected the mov instruction rendered, got %s", out)
	}
}

func TestTextRendersMemoryOperandWithQwordPtr(t *testing.T) {
	out := Text(Unit{Functions: []Function{
		{ABIName: "_If_i", Instrs: []asm.Instruction{
			{Op: asm.OpMov, Dst: asm.RegOp(asm.RAX), Srcs: []asm.Operand{asm.MemOp(&asm.MemOperand{
				Base: asm.RDI, HasIdx: true, Index: asm.RSI, Scale: 8, Offset: 16,
			})}},
		}},
	}})
	want := "QWORD PTR [rdi + rsi*8 + 16]"
	if !strings.Contains(out, want) {
		t.Fatalf("expected memory operand %q, got %s", want, out)
	}
}

func TestTextRendersDataSection(t *testing.T) {
	out := Text(Unit{Data: []*hir.GlobalData{
		{Name: "g1", Words: []int64{42}},
		{Name: "g2", Zeros: 2},
	}})
	if !strings.Contains(out, ".data\n") {
		t.Fatalf("expected a .data section, got %s", out)
	}
	if !strings.Contains(out, "g1:\n\t.quad 42\n") {
		t.Fatalf("expected g1's initializer, got %s", out)
	}
	if !strings.Contains(out, "g2:\n\t.zero 16\n") {
		t.Fatalf("expected g2's zero-fill reservation, got %s", out)
	}
}

func TestTextRendersConditionalJump(t *testing.T) {
	out := Text(Unit{Functions: []Function{
		{ABIName: "_If_i", Instrs: []asm.Instruction{
			{Op: asm.OpCmp, Srcs: []asm.Operand{asm.RegOp(asm.RAX), asm.RegOp(asm.RBX)}},
			{Op: asm.OpJcc, Cond: "l", Text: "L1"},
		}},
	}})
	if !strings.Contains(out, "cmp rax, rbx\n") {
		t.Fatalf("expected the cmp instruction rendered, got %s", out)
	}
	if !strings.Contains(out, "jl L1\n") {
		t.Fatalf("expected jl L1, got %s", out)
	}
}
