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

// Package regalloc is the linear-scan register allocator: it rewrites a
// flat abstract-assembly sequence using virtual registers into one using
// only physical registers and stack slots, with a synthesized prologue
// and epilogue.
package regalloc

import (
	"sort"

	"eta/internal/asm"
)

// Range is one contiguous span of instruction indices, inclusive on both
// ends, during which an interval is live.
type Range struct{ From, To int }

// Interval is a register's (virtual or named) live range, built from
// live-variable analysis over the flat instruction sequence.
type Interval struct {
	reg    asm.Register
	ranges []Range

	assigned  asm.Register
	hasReg    bool
	spillSlot int // -1 unless spilled
}

func (iv *Interval) start() int { return iv.ranges[0].From }
func (iv *Interval) end() int   { return iv.ranges[len(iv.ranges)-1].To }

func (iv *Interval) addPoint(i int) {
	for _, r := range iv.ranges {
		if r.From <= i && i <= r.To {
			return
		}
	}
	for idx, r := range iv.ranges {
		if i == r.To+1 {
			iv.ranges[idx].To = i
			return
		}
		if i == r.From-1 {
			iv.ranges[idx].From = i
			return
		}
	}
	iv.ranges = append(iv.ranges, Range{From: i, To: i})
	sort.Slice(iv.ranges, func(a, b int) bool { return iv.ranges[a].From < iv.ranges[b].From })
}

func (iv *Interval) overlaps(from, to int) bool {
	for _, r := range iv.ranges {
		if r.From <= to && from <= r.To {
			return true
		}
	}
	return false
}

// Allocate assigns physical registers and stack slots to every virtual
// register in instrs, splicing auxiliary moves where an instruction needs
// one, and synthesizes the function's prologue and the expansion of every
// OpEpilogue pseudo-instruction.
func Allocate(instrs []asm.Instruction) []asm.Instruction {
	a := newAllocator(instrs)
	a.buildIntervals()
	a.linearScan()
	body := a.rewrite()

	frameSize := align16(8*a.slotCount + 8*len(a.calleeSavedUsed))

	var out []asm.Instruction
	out = append(out, asm.Instruction{Op: asm.OpPush, Srcs: []asm.Operand{asm.RegOp(asm.RBP)}})
	out = append(out, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(asm.RBP), Srcs: []asm.Operand{asm.RegOp(asm.RSP)}})
	if frameSize > 0 {
		out = append(out, asm.Instruction{Op: asm.OpSub, Dst: asm.RegOp(asm.RSP), Srcs: []asm.Operand{asm.ImmOp(int64(frameSize))}})
	}
	for i, reg := range a.calleeSavedUsed {
		off := -int64(8 * (a.slotCount + i + 1))
		out = append(out, asm.Instruction{Op: asm.OpMov, Dst: asm.MemOp(&asm.MemOperand{Base: asm.RBP, Offset: off}), Srcs: []asm.Operand{asm.RegOp(reg)}})
	}

	for _, ins := range body {
		if ins.Op != asm.OpEpilogue {
			out = append(out, ins)
			continue
		}
		for i := len(a.calleeSavedUsed) - 1; i >= 0; i-- {
			reg := a.calleeSavedUsed[i]
			off := -int64(8 * (a.slotCount + i + 1))
			out = append(out, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(reg), Srcs: []asm.Operand{asm.MemOp(&asm.MemOperand{Base: asm.RBP, Offset: off})}})
		}
		out = append(out, asm.Instruction{Op: asm.OpLeave})
		out = append(out, asm.Instruction{Op: asm.OpRet})
	}
	return out
}

func align16(n int) int {
	if n%16 != 0 {
		n += 16 - n%16
	}
	return n
}

// ---------------------------------------------------------------------------
// Interval construction

type allocator struct {
	instrs []asm.Instruction
	succs  [][]int

	virtual map[int]*Interval // keyed by Register.Virtual
	named   map[string][]*Interval

	order []int // virtual register ids, sorted by interval start

	callSites []int

	slotCount       int
	freeSlots       []int
	calleeSavedUsed []asm.Register
	usedCalleeSet   map[asm.Register]bool
}

func newAllocator(instrs []asm.Instruction) *allocator {
	a := &allocator{
		instrs:  instrs,
		virtual: map[int]*Interval{},
		named:   map[string][]*Interval{},
	}
	labelIdx := map[string]int{}
	for i, ins := range instrs {
		if ins.Op == asm.OpLabel {
			labelIdx[ins.Text] = i
		}
		if ins.Op == asm.OpCall {
			a.callSites = append(a.callSites, i)
		}
	}
	a.succs = make([][]int, len(instrs))
	for i, ins := range instrs {
		switch ins.Op {
		case asm.OpJmp:
			a.succs[i] = []int{labelIdx[ins.Text]}
		case asm.OpJcc:
			s := []int{labelIdx[ins.Text]}
			if i+1 < len(instrs) {
				s = append(s, i+1)
			}
			a.succs[i] = s
		case asm.OpRet, asm.OpEpilogue:
			a.succs[i] = nil
		default:
			if i+1 < len(instrs) {
				a.succs[i] = []int{i + 1}
			}
		}
	}
	return a
}

// regOperands reports the registers an instruction reads and, separately,
// the one it writes (if any), including registers folded into a memory
// operand's base/index (which are always reads regardless of whether the
// memory operand itself is the Dst or a Src).
func regOperands(ins asm.Instruction) (uses []asm.Register, def asm.Register, hasDef bool) {
	collectMem := func(m *asm.MemOperand) {
		if m == nil {
			return
		}
		uses = append(uses, m.Base)
		if m.HasIdx {
			uses = append(uses, m.Index)
		}
	}
	for _, s := range ins.Srcs {
		switch s.Kind {
		case asm.OperandReg:
			uses = append(uses, s.Reg)
		case asm.OperandMem:
			collectMem(s.Mem)
		}
	}
	switch ins.Dst.Kind {
	case asm.OperandReg:
		def, hasDef = ins.Dst.Reg, true
		if readsAndWritesDst(ins.Op) {
			uses = append(uses, ins.Dst.Reg)
		}
	case asm.OperandMem:
		collectMem(ins.Dst.Mem)
	}
	return
}

// readsAndWritesDst reports whether opcode op treats its Dst operand as
// both a source and the destination (the two-operand x86 RMW forms).
func readsAndWritesDst(op asm.Opcode) bool {
	switch op {
	case asm.OpAdd, asm.OpSub, asm.OpIMul, asm.OpAnd, asm.OpOr, asm.OpXor, asm.OpShl, asm.OpShr, asm.OpSar:
		return true
	default:
		return false
	}
}

func (a *allocator) buildIntervals() {
	n := len(a.instrs)
	liveIn := make([]map[asm.Register]bool, n)
	liveOut := make([]map[asm.Register]bool, n)
	for i := range liveIn {
		liveIn[i] = map[asm.Register]bool{}
		liveOut[i] = map[asm.Register]bool{}
	}

	uses := make([][]asm.Register, n)
	defs := make([]asm.Register, n)
	hasDef := make([]bool, n)
	for i, ins := range a.instrs {
		u, d, ok := regOperands(ins)
		uses[i] = u
		defs[i] = d
		hasDef[i] = ok
	}

	changed := true
	for changed {
		changed = false
		for i := n - 1; i >= 0; i-- {
			out := map[asm.Register]bool{}
			for _, s := range a.succs[i] {
				for r := range liveIn[s] {
					out[r] = true
				}
			}
			in := map[asm.Register]bool{}
			for r := range out {
				if !(hasDef[i] && r == defs[i] && !readsAndWritesDst(a.instrs[i].Op)) {
					in[r] = true
				}
			}
			for _, u := range uses[i] {
				in[u] = true
			}
			if !sameSet(out, liveOut[i]) {
				liveOut[i] = out
				changed = true
			}
			if !sameSet(in, liveIn[i]) {
				liveIn[i] = in
				changed = true
			}
		}
	}

	touch := func(reg asm.Register, i int) {
		if reg.IsVirt {
			iv, ok := a.virtual[reg.Virtual]
			if !ok {
				iv = &Interval{reg: reg, spillSlot: -1}
				a.virtual[reg.Virtual] = iv
			}
			iv.addPoint(i)
			return
		}
		if reg == asm.RSP || reg == asm.RBP {
			return
		}
		list := a.named[reg.Phy]
		if len(list) == 0 || !adjacentOrOverlap(list[len(list)-1], i) {
			list = append(list, &Interval{reg: reg, spillSlot: -1})
			a.named[reg.Phy] = list
		}
		list[len(list)-1].addPoint(i)
	}

	for i := range a.instrs {
		for r := range liveOut[i] {
			touch(r, i)
		}
		if hasDef[i] {
			touch(defs[i], i)
		}
		for _, u := range uses[i] {
			touch(u, i)
		}
	}

	for id := range a.virtual {
		a.order = append(a.order, id)
	}
	sort.Slice(a.order, func(i, j int) bool {
		return a.virtual[a.order[i]].start() < a.virtual[a.order[j]].start()
	})
}

func adjacentOrOverlap(iv *Interval, i int) bool {
	return i <= iv.end()+1
}

func sameSet(a, b map[asm.Register]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for r := range a {
		if !b[r] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Linear scan

func (a *allocator) overlapsCallSite(from, to int) bool {
	lo := sort.SearchInts(a.callSites, from)
	return lo < len(a.callSites) && a.callSites[lo] <= to
}

func (a *allocator) namedOverlap(reg asm.Register, from, to int) bool {
	for _, iv := range a.named[reg.Phy] {
		if iv.overlaps(from, to) {
			return true
		}
	}
	return false
}

func (a *allocator) linearScan() {
	a.usedCalleeSet = map[asm.Register]bool{}
	var active []*Interval
	var spilled []*Interval

	expire := func(start int) {
		kept := active[:0]
		for _, iv := range active {
			if iv.end() < start {
				continue
			}
			kept = append(kept, iv)
		}
		active = kept
		keptSpilled := spilled[:0]
		for _, iv := range spilled {
			if iv.end() < start {
				a.freeSlots = append(a.freeSlots, iv.spillSlot)
				continue
			}
			keptSpilled = append(keptSpilled, iv)
		}
		spilled = keptSpilled
	}

	isActive := func(reg asm.Register) bool {
		for _, iv := range active {
			if iv.hasReg && iv.assigned == reg {
				return true
			}
		}
		return false
	}

	for _, id := range a.order {
		iv := a.virtual[id]
		start, end := iv.start(), iv.end()
		expire(start)

		var candidates []asm.Register
		if a.overlapsCallSite(start, end) {
			for _, r := range asm.Allocatable {
				if asm.IsCalleeSaved(r) {
					candidates = append(candidates, r)
				}
			}
		} else {
			for _, r := range asm.Allocatable {
				if !asm.IsCalleeSaved(r) {
					candidates = append(candidates, r)
				}
			}
			for _, r := range asm.Allocatable {
				if asm.IsCalleeSaved(r) {
					candidates = append(candidates, r)
				}
			}
		}

		assigned := false
		for _, r := range candidates {
			if isActive(r) || a.namedOverlap(r, start, end) {
				continue
			}
			iv.assigned, iv.hasReg = r, true
			if asm.IsCalleeSaved(r) && !a.usedCalleeSet[r] {
				a.usedCalleeSet[r] = true
				a.calleeSavedUsed = append(a.calleeSavedUsed, r)
			}
			active = append(active, iv)
			assigned = true
			break
		}
		if !assigned {
			iv.spillSlot = a.allocSlot()
			spilled = append(spilled, iv)
		}
	}
}

func (a *allocator) allocSlot() int {
	if n := len(a.freeSlots); n > 0 {
		s := a.freeSlots[n-1]
		a.freeSlots = a.freeSlots[:n-1]
		return s
	}
	s := a.slotCount
	a.slotCount++
	return s
}

// ---------------------------------------------------------------------------
// Operand rewriting

func (a *allocator) locate(reg asm.Register) (phys asm.Register, slot int, spilled bool) {
	iv, ok := a.virtual[reg.Virtual]
	if !ok || iv.hasReg {
		if ok {
			return iv.assigned, 0, false
		}
		return reg, 0, false
	}
	return asm.Register{}, iv.spillSlot, true
}

func slotOperand(slot int) asm.Operand {
	return asm.MemOp(&asm.MemOperand{Base: asm.RBP, Offset: -int64(8 * (slot + 1))})
}

// rewrite replaces every virtual-register operand with its assigned
// physical register or spill slot, inserting scratch loads/stores and
// splitting double-memory operands as needed.
func (a *allocator) rewrite() []asm.Instruction {
	var out []asm.Instruction

	for _, ins := range a.instrs {
		if ins.Op == asm.OpLabel || ins.Op == asm.OpJmp || ins.Op == asm.OpJcc ||
			ins.Op == asm.OpRet || ins.Op == asm.OpEpilogue || ins.Op == asm.OpCqo {
			out = append(out, ins)
			continue
		}

		// OpIDiv/OpIMul implicitly read and write RAX/RDX, so scratch loads
		// for their operands must avoid those two to not clobber the
		// dividend/multiplicand already staged there; every other opcode
		// has no hidden register use.
		scratch := []asm.Register{asm.RAX, asm.RCX, asm.RDX}
		if ins.Op == asm.OpIDiv || ins.Op == asm.OpIMul {
			scratch = []asm.Register{asm.RCX}
		}
		next := 0
		takeScratch := func() asm.Register {
			r := scratch[next%len(scratch)]
			next++
			return r
		}

		var pre []asm.Instruction
		resolveMem := func(m *asm.MemOperand) *asm.MemOperand {
			if m == nil {
				return nil
			}
			nm := *m
			if m.Base.IsVirt {
				phys, slot, spilled := a.locate(m.Base)
				if spilled {
					s := takeScratch()
					pre = append(pre, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(s), Srcs: []asm.Operand{slotOperand(slot)}})
					nm.Base = s
				} else {
					nm.Base = phys
				}
			}
			if m.HasIdx && m.Index.IsVirt {
				phys, slot, spilled := a.locate(m.Index)
				if spilled {
					s := takeScratch()
					pre = append(pre, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(s), Srcs: []asm.Operand{slotOperand(slot)}})
					nm.Index = s
				} else {
					nm.Index = phys
				}
			}
			return &nm
		}

		resolveRead := func(op asm.Operand) asm.Operand {
			switch op.Kind {
			case asm.OperandReg:
				if !op.Reg.IsVirt {
					return op
				}
				phys, slot, spilled := a.locate(op.Reg)
				if spilled {
					s := takeScratch()
					pre = append(pre, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(s), Srcs: []asm.Operand{slotOperand(slot)}})
					return asm.RegOp(s)
				}
				return asm.RegOp(phys)
			case asm.OperandMem:
				return asm.MemOp(resolveMem(op.Mem))
			default:
				return op
			}
		}

		newSrcs := make([]asm.Operand, len(ins.Srcs))
		for i, s := range ins.Srcs {
			newSrcs[i] = resolveRead(s)
		}

		newDst := ins.Dst
		var writeBack *asm.Instruction
		switch ins.Dst.Kind {
		case asm.OperandReg:
			if ins.Dst.Reg.IsVirt {
				phys, slot, spilled := a.locate(ins.Dst.Reg)
				if spilled {
					s := takeScratch()
					if readsAndWritesDst(ins.Op) {
						pre = append(pre, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(s), Srcs: []asm.Operand{slotOperand(slot)}})
					}
					newDst = asm.RegOp(s)
					mv := asm.Instruction{Op: asm.OpMov, Dst: slotOperand(slot), Srcs: []asm.Operand{asm.RegOp(s)}}
					writeBack = &mv
				} else {
					newDst = asm.RegOp(phys)
				}
			}
		case asm.OperandMem:
			newDst = asm.MemOp(resolveMem(ins.Dst.Mem))
		}

		// split a double-memory operand: load the (first) memory source
		// into a scratch register so the rewritten instruction has at
		// most one memory operand.
		if newDst.Kind == asm.OperandMem {
			for i, s := range newSrcs {
				if s.Kind == asm.OperandMem {
					r := takeScratch()
					pre = append(pre, asm.Instruction{Op: asm.OpMov, Dst: asm.RegOp(r), Srcs: []asm.Operand{s}})
					newSrcs[i] = asm.RegOp(r)
				}
			}
		}

		out = append(out, pre...)
		if ins.Op == asm.OpMov && newDst.Kind == asm.OperandReg && len(newSrcs) == 1 &&
			newSrcs[0].Kind == asm.OperandReg && newSrcs[0].Reg == newDst.Reg && writeBack == nil {
			// redundant mov r, r after rewriting: drop it.
		} else {
			out = append(out, asm.Instruction{Op: ins.Op, Dst: newDst, Srcs: newSrcs, Cond: ins.Cond, Text: ins.Text})
		}
		if writeBack != nil {
			out = append(out, *writeBack)
		}
	}
	return out
}
