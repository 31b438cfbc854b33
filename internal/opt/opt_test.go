package opt

import (
	"testing"

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

func TestCopyPropagateChainsThroughReplacement(t *testing.T) {
	fn := buildFunc(
		&lir.Move{Dst: &hir.Temp{Name: "a"}, Src: &hir.Const{Value: 1}},
		&lir.Move{Dst: &hir.Temp{Name: "b"}, Src: &hir.Temp{Name: "a"}},
		&lir.Return{Values: []hir.Expr{&hir.Temp{Name: "b"}}},
	)
	CopyPropagate(fn)
	ret := fn.Stmts[2].(*lir.Return)
	tmp, ok := ret.Values[0].(*hir.Temp)
	if !ok || tmp.Name != "a" {
		t.Fatalf("expected return to read through to 'a', got %v", ret.Values[0])
	}
}

func TestCopyPropagateSkipsReservedNames(t *testing.T) {
	fn := buildFunc(
		&lir.CallStmt{Callee: &hir.Name{Sym: "_Ig_i"}, NumReturns: 1},
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Temp{Name: hir.RVName(1)}},
		&lir.Return{Values: []hir.Expr{&hir.Temp{Name: "x"}}},
	)
	CopyPropagate(fn)
	ret := fn.Stmts[2].(*lir.Return)
	tmp, ok := ret.Values[0].(*hir.Temp)
	if !ok || tmp.Name != "x" {
		t.Fatalf("expected return to still read 'x' (no substitution through an ABI name), got %v", ret.Values[0])
	}
}

func TestDeadCodeEliminateRemovesUnusedDef(t *testing.T) {
	fn := buildFunc(
		&lir.Move{Dst: &hir.Temp{Name: "dead"}, Src: &hir.Const{Value: 1}},
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 2}},
		&lir.Return{Values: []hir.Expr{&hir.Temp{Name: "x"}}},
	)
	DeadCodeEliminate(fn)
	if len(fn.Stmts) != 2 {
		t.Fatalf("expected unused def to be removed, got %d statements: %v", len(fn.Stmts), fn.Stmts)
	}
}

func TestDeadCodeEliminateKeepsCallsAndStores(t *testing.T) {
	fn := buildFunc(
		&lir.CallStmt{Callee: &hir.Name{Sym: "_Ig_i"}, NumReturns: 1},
		&lir.Move{Dst: &hir.Mem{Addr: &hir.Const{Value: 8}}, Src: &hir.Const{Value: 1}},
		&lir.Return{},
	)
	before := len(fn.Stmts)
	DeadCodeEliminate(fn)
	if len(fn.Stmts) != before {
		t.Fatalf("expected call and store to survive DCE, got %d statements: %v", len(fn.Stmts), fn.Stmts)
	}
}

func TestDeadCodeEliminateCascades(t *testing.T) {
	// y is used only to build dead, which is itself unused: removing dead
	// should re-enqueue y and remove it too.
	fn := buildFunc(
		&lir.Move{Dst: &hir.Temp{Name: "y"}, Src: &hir.Const{Value: 1}},
		&lir.Move{Dst: &hir.Temp{Name: "dead"}, Src: &hir.Temp{Name: "y"}},
		&lir.Return{Values: []hir.Expr{&hir.Const{Value: 0}}},
	)
	DeadCodeEliminate(fn)
	if len(fn.Stmts) != 1 {
		t.Fatalf("expected both defs to cascade away, got %d statements: %v", len(fn.Stmts), fn.Stmts)
	}
}
