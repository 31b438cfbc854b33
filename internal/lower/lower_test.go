package lower

import (
	"testing"

	"eta/internal/hir"
	"eta/internal/lir"
)

func c(v int64) *hir.Const { return &hir.Const{Value: v} }

func countStmts(stmts []lir.Stmt, pred func(lir.Stmt) bool) int {
	n := 0
	for _, s := range stmts {
		if pred(s) {
			n++
		}
	}
	return n
}

func TestFuncFlattensSeq(t *testing.T) {
	fn := &hir.FuncDecl{
		SourceName: "f",
		ABIName:    "_If_i",
		NumReturns: 1,
		Body: &hir.Seq{Stmts: []hir.Stmt{
			&hir.Label{Name: "f_entry"},
			&hir.Move{Dst: &hir.Temp{Name: "x"}, Src: c(1)},
			&hir.Return{Values: []hir.Expr{&hir.Temp{Name: "x"}}},
		}},
	}
	out := Func(fn)
	if len(out.Stmts) != 3 {
		t.Fatalf("got %d statements, want 3: %v", len(out.Stmts), out.Stmts)
	}
	if _, ok := out.Stmts[0].(*lir.Label); !ok {
		t.Fatalf("expected first statement to be a Label, got %T", out.Stmts[0])
	}
	if _, ok := out.Stmts[2].(*lir.Return); !ok {
		t.Fatalf("expected last statement to be a Return, got %T", out.Stmts[2])
	}
}

func TestLowerMoveCommutingOperandsNoStaging(t *testing.T) {
	l := &lowerer{boundsLabel: "__eta_out_of_bounds_f"}
	// dst address and src share no effects: should not need a staging temp.
	stmts := l.lowerMove(&hir.Mem{Addr: &hir.Temp{Name: "p"}}, c(5))
	if len(stmts) != 1 {
		t.Fatalf("got %d statements, want 1: %v", len(stmts), stmts)
	}
	mv, ok := stmts[0].(*lir.Move)
	if !ok {
		t.Fatalf("expected *lir.Move, got %T", stmts[0])
	}
	if _, ok := mv.Dst.(*hir.Mem); !ok {
		t.Fatalf("expected Mem destination")
	}
}

func TestLowerMoveNonCommutingStagesAddress(t *testing.T) {
	l := &lowerer{boundsLabel: "__eta_out_of_bounds_f"}
	// src is a call: must not be reordered around the address evaluation,
	// so the address needs to be staged into a temp first.
	callSrc := &hir.Call{Callee: &hir.Name{Sym: "_Ig_i"}, NumReturns: 1}
	stmts := l.lowerMove(&hir.Mem{Addr: &hir.Temp{Name: "p"}}, callSrc)
	if countStmts(stmts, func(s lir.Stmt) bool { _, ok := s.(*lir.CallStmt); return ok }) != 1 {
		t.Fatalf("expected exactly one call statement: %v", stmts)
	}
	// the final statement must be the Move into memory.
	if _, ok := stmts[len(stmts)-1].(*lir.Move); !ok {
		t.Fatalf("expected last statement to be a Move, got %T", stmts[len(stmts)-1])
	}
}

func TestControlFormAndShortCircuit(t *testing.T) {
	l := &lowerer{boundsLabel: "__eta_out_of_bounds_f"}
	cond := &hir.Bin{Op: hir.And,
		L: &hir.Bin{Op: hir.Lt, L: &hir.Temp{Name: "a"}, R: c(0)},
		R: &hir.Bin{Op: hir.Lt, L: &hir.Temp{Name: "b"}, R: c(0)},
	}
	stmts := l.controlForm(cond, "Ltrue", "Lfalse")
	cjumps := 0
	for _, s := range stmts {
		if _, ok := s.(*lir.CJump); ok {
			cjumps++
		}
	}
	if cjumps != 2 {
		t.Fatalf("expected 2 CJumps for a two-operand And, got %d: %v", cjumps, stmts)
	}
	// the first CJump's true branch must NOT be Ltrue directly (it goes
	// through the intermediate label so the right operand is only
	// evaluated when the left one is true); its false branch goes straight
	// to Lfalse.
	first := stmts[0].(*lir.CJump)
	if first.True == "Ltrue" || first.False != "Lfalse" {
		t.Fatalf("left operand should jump (intermediate, Lfalse), got (%s, %s)", first.True, first.False)
	}
}

func TestLowerIndexEmitsBoundsCheck(t *testing.T) {
	l := &lowerer{boundsLabel: "__eta_out_of_bounds_f"}
	stmts, val := l.lowerIndex(&hir.Index{Arr: &hir.Temp{Name: "arr"}, Idx: c(2)})
	if !l.boundsNeeded {
		t.Fatal("expected boundsNeeded to be set")
	}
	foundCheck := false
	for _, s := range stmts {
		if cj, ok := s.(*lir.CJump); ok && cj.False == l.boundsLabel {
			foundCheck = true
		}
	}
	if !foundCheck {
		t.Fatalf("expected a CJump branching to the bounds trampoline: %v", stmts)
	}
	mem, ok := val.(*hir.Mem)
	if !ok {
		t.Fatalf("expected resulting value to be a Mem read, got %T", val)
	}
	_ = mem
}

func TestFuncEmitsBoundsTrampolineWhenNeeded(t *testing.T) {
	fn := &hir.FuncDecl{
		SourceName: "f",
		ABIName:    "_If_i",
		NumReturns: 1,
		Body: &hir.Seq{Stmts: []hir.Stmt{
			&hir.Label{Name: "f_entry"},
			&hir.Return{Values: []hir.Expr{
				&hir.Index{Arr: &hir.Temp{Name: "arr"}, Idx: c(0)},
			}},
		}},
	}
	out := Func(fn)
	foundTrampoline := false
	for _, s := range out.Stmts {
		if lbl, ok := s.(*lir.Label); ok && lbl.Name == "__eta_out_of_bounds_f" {
			foundTrampoline = true
		}
	}
	if !foundTrampoline {
		t.Fatalf("expected out-of-bounds trampoline label in output: %v", out.Stmts)
	}
}

func TestLowerArrayLitAllocatesAndInitializes(t *testing.T) {
	l := &lowerer{boundsLabel: "__eta_out_of_bounds_f"}
	stmts, _ := l.lowerArrayLit([]hir.Expr{c(1), c(2), c(3)})
	calls := countStmts(stmts, func(s lir.Stmt) bool {
		cs, ok := s.(*lir.CallStmt)
		if !ok {
			return false
		}
		name, ok := cs.Callee.(*hir.Name)
		return ok && name.Sym == "_eta_alloc"
	})
	if calls != 1 {
		t.Fatalf("expected exactly one _eta_alloc call, got %d: %v", calls, stmts)
	}
	writes := countStmts(stmts, func(s lir.Stmt) bool {
		mv, ok := s.(*lir.Move)
		if !ok {
			return false
		}
		_, ok = mv.Dst.(*hir.Mem)
		return ok
	})
	// one length-word write plus three element writes.
	if writes != 4 {
		t.Fatalf("expected 4 memory writes (length + 3 elements), got %d: %v", writes, stmts)
	}
}

func TestCommuteRejectsSharedMemoryEffect(t *testing.T) {
	l := &lowerer{boundsLabel: "__eta_out_of_bounds_f"}
	write := &hir.ESeq{
		Side:  &hir.Move{Dst: &hir.Mem{Addr: &hir.Temp{Name: "p"}}, Src: c(1)},
		Value: c(0),
	}
	read := &hir.Mem{Addr: &hir.Temp{Name: "p"}}
	if l.commute(write, read) {
		t.Fatal("expected non-commutativity when one side writes memory and the other reads it")
	}
}

func TestCommuteRejectsCall(t *testing.T) {
	l := &lowerer{boundsLabel: "__eta_out_of_bounds_f"}
	call := &hir.Call{Callee: &hir.Name{Sym: "_Ig_i"}, NumReturns: 1}
	if l.commute(call, c(1)) {
		t.Fatal("expected non-commutativity whenever either side has a call")
	}
}

func TestCommuteAllowsIndependentPureExprs(t *testing.T) {
	l := &lowerer{boundsLabel: "__eta_out_of_bounds_f"}
	a := &hir.Bin{Op: hir.Add, L: &hir.Temp{Name: "x"}, R: c(1)}
	b := &hir.Bin{Op: hir.Add, L: &hir.Temp{Name: "y"}, R: c(2)}
	if !l.commute(a, b) {
		t.Fatal("expected commutativity for two independent pure expressions")
	}
}
