package regalloc

import (
	"testing"

	"eta/internal/asm"
)

func virt(n int) asm.Register { return asm.Virt(n) }

func TestAllocatePrependsPrologue(t *testing.T) {
	instrs := []asm.Instruction{
		{Op: asm.OpMov, Dst: asm.RegOp(virt(0)), Srcs: []asm.Operand{asm.ImmOp(1)}},
		{Op: asm.OpEpilogue},
	}
	out := Allocate(instrs)
	if out[0].Op != asm.OpPush || out[0].Srcs[0].Reg != asm.RBP {
		t.Fatalf("expected the first instruction to push rbp, got %+v", out[0])
	}
	if out[1].Op != asm.OpMov || out[1].Dst.Reg != asm.RBP || out[1].Srcs[0].Reg != asm.RSP {
		t.Fatalf("expected the second instruction to set up rbp, got %+v", out[1])
	}
}

func TestAllocateExpandsEpilogue(t *testing.T) {
	instrs := []asm.Instruction{
		{Op: asm.OpMov, Dst: asm.RegOp(virt(0)), Srcs: []asm.Operand{asm.ImmOp(1)}},
		{Op: asm.OpEpilogue},
	}
	out := Allocate(instrs)
	last := out[len(out)-1]
	secondLast := out[len(out)-2]
	if secondLast.Op != asm.OpLeave || last.Op != asm.OpRet {
		t.Fatalf("expected OpEpilogue to expand to leave;ret, got tail %+v %+v", secondLast, last)
	}
	for _, ins := range out {
		if ins.Op == asm.OpEpilogue {
			t.Fatalf("expected no OpEpilogue pseudo-opcode left in the output, got %v", out)
		}
	}
}

func TestAllocateAssignsDistinctAllocatablePhysicalRegisters(t *testing.T) {
	instrs := []asm.Instruction{
		{Op: asm.OpMov, Dst: asm.RegOp(virt(0)), Srcs: []asm.Operand{asm.ImmOp(1)}},
		{Op: asm.OpMov, Dst: asm.RegOp(virt(1)), Srcs: []asm.Operand{asm.ImmOp(2)}},
		{Op: asm.OpAdd, Dst: asm.RegOp(virt(0)), Srcs: []asm.Operand{asm.RegOp(virt(1))}},
		{Op: asm.OpEpilogue},
	}
	out := Allocate(instrs)
	isAllocatable := func(r asm.Register) bool {
		for _, a := range asm.Allocatable {
			if a == r {
				return true
			}
		}
		return false
	}
	for _, ins := range out {
		if ins.Dst.Kind == asm.OperandReg && ins.Dst.Reg.IsVirt {
			t.Fatalf("found an unresolved virtual register in the output: %+v", ins)
		}
		if ins.Dst.Kind == asm.OperandReg && ins.Op == asm.OpMov && ins.Dst.Reg != asm.RBP && ins.Dst.Reg != asm.RSP {
			if !isAllocatable(ins.Dst.Reg) && ins.Dst.Reg != asm.RAX && ins.Dst.Reg != asm.RCX && ins.Dst.Reg != asm.RDX {
				t.Fatalf("destination register %v is neither allocatable nor a scratch register", ins.Dst.Reg)
			}
		}
	}
}

func TestAllocateSpillsWhenIntervalsExceedAllocatableRegisters(t *testing.T) {
	// 20 simultaneously live temporaries, more than the 11 allocatable
	// physical registers, forces at least one spill.
	const n = 20
	var instrs []asm.Instruction
	for i := 0; i < n; i++ {
		instrs = append(instrs, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(virt(i)), Srcs: []asm.Operand{asm.ImmOp(int64(i))}})
	}
	var sumSrcs []asm.Operand
	for i := 0; i < n; i++ {
		sumSrcs = append(sumSrcs, asm.RegOp(virt(i)))
	}
	instrs = append(instrs, asm.Instruction{Op: asm.OpAdd, Dst: asm.RegOp(virt(0)), Srcs: sumSrcs})
	instrs = append(instrs, asm.Instruction{Op: asm.OpEpilogue})

	a := newAllocator(instrs)
	a.buildIntervals()
	a.linearScan()

	spilled := 0
	for _, iv := range a.virtual {
		if !iv.hasReg {
			spilled++
		}
	}
	if spilled == 0 {
		t.Fatalf("expected at least one spill with %d simultaneously live temporaries and 11 registers", n)
	}
}

func TestAllocateReferencesRBPMinusSlotsForSpilled(t *testing.T) {
	const n = 20
	var instrs []asm.Instruction
	var sumSrcs []asm.Operand
	for i := 0; i < n; i++ {
		instrs = append(instrs, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(virt(i)), Srcs: []asm.Operand{asm.ImmOp(int64(i))}})
		sumSrcs = append(sumSrcs, asm.RegOp(virt(i)))
	}
	instrs = append(instrs, asm.Instruction{Op: asm.OpAdd, Dst: asm.RegOp(virt(0)), Srcs: sumSrcs})
	instrs = append(instrs, asm.Instruction{Op: asm.OpEpilogue})

	out := Allocate(instrs)
	found := false
	for _, ins := range out {
		if ins.Dst.Kind == asm.OperandMem && ins.Dst.Mem.Base == asm.RBP && ins.Dst.Mem.Offset < 0 {
			found = true
		}
		for _, s := range ins.Srcs {
			if s.Kind == asm.OperandMem && s.Mem.Base == asm.RBP && s.Mem.Offset < 0 {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected at least one [RBP - 8k] spill slot reference in the output")
	}
}

func TestAllocateCallCrossingIntervalGetsCalleeSavedRegister(t *testing.T) {
	instrs := []asm.Instruction{
		{Op: asm.OpMov, Dst: asm.RegOp(virt(0)), Srcs: []asm.Operand{asm.ImmOp(1)}},
		{Op: asm.OpCall, Text: "_Ig_i"},
		{Op: asm.OpAdd, Dst: asm.RegOp(virt(0)), Srcs: []asm.Operand{asm.ImmOp(1)}},
		{Op: asm.OpEpilogue},
	}
	a := newAllocator(instrs)
	a.buildIntervals()
	a.linearScan()
	iv := a.virtual[0]
	if !iv.hasReg {
		t.Fatalf("expected the call-crossing interval to get a register, not spill")
	}
	if !asm.IsCalleeSaved(iv.assigned) {
		t.Fatalf("expected a call-crossing interval to be assigned a callee-saved register, got %v", iv.assigned)
	}
}

func TestAllocateElidesRedundantSelfMove(t *testing.T) {
	instrs := []asm.Instruction{
		{Op: asm.OpMov, Dst: asm.RegOp(virt(0)), Srcs: []asm.Operand{asm.RegOp(virt(0))}},
		{Op: asm.OpEpilogue},
	}
	out := Allocate(instrs)
	for _, ins := range out {
		if ins.Op == asm.OpMov && ins.Dst.Kind == asm.OperandReg && len(ins.Srcs) == 1 &&
			ins.Srcs[0].Kind == asm.OperandReg && ins.Srcs[0].Reg == ins.Dst.Reg {
			t.Fatalf("expected redundant mov r,r to be dropped, found %+v", ins)
		}
	}
}
