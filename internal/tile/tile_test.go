package tile

import (
	"testing"

	"eta/internal/asm"
	"eta/internal/hir"
	"eta/internal/lir"
)

func buildFunc(stmts ...lir.Stmt) *lir.Func {
	f := lir.NewFunc("f", "_If_i", 1)
	for _, s := range stmts {
		f.Append(s)
	}
	return f
}

func opcodes(instrs []asm.Instruction) []asm.Opcode {
	out := make([]asm.Opcode, len(instrs))
	for i, ins := range instrs {
		out[i] = ins.Op
	}
	return out
}

func contains(ops []asm.Opcode, op asm.Opcode) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func TestFuncConstantMoveTilesToSingleMov(t *testing.T) {
	fn := buildFunc(
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 7}},
		&lir.Return{Values: []hir.Expr{&hir.Temp{Name: "x"}}},
	)
	instrs := Func(fn)
	ops := opcodes(instrs)
	if ops[0] != asm.OpMov {
		t.Fatalf("expected the constant move to tile to a single mov, got %v", ops)
	}
}

func TestMoveInPlaceUpdateForCommutativeOp(t *testing.T) {
	// x <- x + y should become a single add instead of materialize+mov+add.
	fn := buildFunc(
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Bin{Op: hir.Add, L: &hir.Temp{Name: "x"}, R: &hir.Temp{Name: "y"}}},
		&lir.Return{},
	)
	instrs := Func(fn)
	ops := opcodes(instrs)
	if contains(ops, asm.OpMov) {
		t.Fatalf("expected in-place add with no intervening mov, got %v", ops)
	}
	if !contains(ops, asm.OpAdd) {
		t.Fatalf("expected an add instruction, got %v", ops)
	}
}

func TestMoveLEAForAddressForm(t *testing.T) {
	// p <- base + idx*8 should tile to a single LEA.
	addr := &hir.Bin{
		Op: hir.Add,
		L:  &hir.Temp{Name: "base"},
		R:  &hir.Bin{Op: hir.Mul, L: &hir.Temp{Name: "idx"}, R: &hir.Const{Value: 8}},
	}
	fn := buildFunc(
		&lir.Move{Dst: &hir.Temp{Name: "p"}, Src: addr},
		&lir.Return{},
	)
	instrs := Func(fn)
	ops := opcodes(instrs)
	if !contains(ops, asm.OpLea) {
		t.Fatalf("expected address-form add to tile to a LEA, got %v", ops)
	}
	if contains(ops, asm.OpIMul) {
		t.Fatalf("expected the multiply to fold into the LEA's scale, got %v", ops)
	}
}

func TestCJumpComparisonUsesCmpAndJcc(t *testing.T) {
	fn := buildFunc(
		&lir.CJump{Cond: &hir.Bin{Op: hir.Lt, L: &hir.Temp{Name: "a"}, R: &hir.Temp{Name: "b"}}, True: "L1", False: "L2"},
	)
	instrs := Func(fn)
	ops := opcodes(instrs)
	if !contains(ops, asm.OpCmp) {
		t.Fatalf("expected a cmp instruction, got %v", ops)
	}
	var jcc *asm.Instruction
	for i := range instrs {
		if instrs[i].Op == asm.OpJcc {
			jcc = &instrs[i]
			break
		}
	}
	if jcc == nil || jcc.Cond != "l" || jcc.Text != "L1" {
		t.Fatalf("expected jl L1, got %+v", jcc)
	}
}

func TestCJumpOpaqueConditionUsesTestAndJnz(t *testing.T) {
	fn := buildFunc(
		&lir.CJump{Cond: &hir.Temp{Name: "flag"}, True: "L1", False: "L2"},
	)
	instrs := Func(fn)
	ops := opcodes(instrs)
	if !contains(ops, asm.OpTest) {
		t.Fatalf("expected test on the materialized condition, got %v", ops)
	}
	found := false
	for _, ins := range instrs {
		if ins.Op == asm.OpJcc && ins.Cond == "nz" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected jnz, got %v", ops)
	}
}

func TestCallPlacesArgsInABIRegistersAndEmitsCall(t *testing.T) {
	fn := buildFunc(
		&lir.CallStmt{Callee: &hir.Name{Sym: "_Ig_i"}, Args: []hir.Expr{&hir.Temp{Name: "a"}, &hir.Temp{Name: "b"}}, NumReturns: 1},
		&lir.Return{},
	)
	instrs := Func(fn)
	var call *asm.Instruction
	movesToArgRegs := 0
	for i := range instrs {
		if instrs[i].Op == asm.OpCall {
			call = &instrs[i]
		}
		if instrs[i].Op == asm.OpMov && instrs[i].Dst.Kind == asm.OperandReg {
			if instrs[i].Dst.Reg == asm.RDI || instrs[i].Dst.Reg == asm.RSI {
				movesToArgRegs++
			}
		}
	}
	if call == nil || call.Text != "_Ig_i" {
		t.Fatalf("expected a call to _Ig_i, got %+v", instrs)
	}
	if movesToArgRegs != 2 {
		t.Fatalf("expected both args placed in RDI/RSI, got %d of the expected moves: %v", movesToArgRegs, instrs)
	}
}

func TestCallPastSixthArgumentPushesToStack(t *testing.T) {
	args := make([]hir.Expr, 7)
	for i := range args {
		args[i] = &hir.Temp{Name: string(rune('a' + i))}
	}
	fn := buildFunc(
		&lir.CallStmt{Callee: &hir.Name{Sym: "_Ig7_i"}, Args: args, NumReturns: 0},
		&lir.Return{},
	)
	instrs := Func(fn)
	if !contains(opcodes(instrs), asm.OpPush) {
		t.Fatalf("expected the 7th argument to be pushed to the stack, got %v", instrs)
	}
}

func TestReturnEmitsEpiloguePseudoOpcode(t *testing.T) {
	fn := buildFunc(&lir.Return{Values: []hir.Expr{&hir.Const{Value: 0}}})
	instrs := Func(fn)
	if instrs[len(instrs)-1].Op != asm.OpEpilogue {
		t.Fatalf("expected every return site to end in the EPILOGUE pseudo-opcode, got %v", opcodes(instrs))
	}
}

func TestReservedArgNameMaterializesToFixedRegister(t *testing.T) {
	fn := buildFunc(
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Temp{Name: hir.ArgName(1)}},
		&lir.Return{},
	)
	instrs := Func(fn)
	found := false
	for _, ins := range instrs {
		if ins.Op == asm.OpMov {
			for _, s := range ins.Srcs {
				if s.Kind == asm.OperandReg && s.Reg == asm.RDI {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatalf("expected _ARG1 to materialize to RDI, got %v", opcodes(instrs))
	}
}

func TestSameTempReusesSameVirtualRegister(t *testing.T) {
	fn := buildFunc(
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 1}},
		&lir.Move{Dst: &hir.Temp{Name: "y"}, Src: &hir.Temp{Name: "x"}},
		&lir.Return{Values: []hir.Expr{&hir.Temp{Name: "x"}}},
	)
	instrs := Func(fn)
	var xReg asm.Register
	set := false
	for _, ins := range instrs {
		if ins.Op == asm.OpMov && ins.Dst.Kind == asm.OperandReg && !set {
			xReg = ins.Dst.Reg
			set = true
			continue
		}
		if ins.Op == asm.OpMov {
			for _, s := range ins.Srcs {
				if s.Kind == asm.OperandReg && s.Reg == xReg {
					return
				}
			}
		}
	}
	t.Fatalf("expected x's virtual register to be reused across its uses, got %v", instrs)
}
