package reorder

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

func TestFuncSingleBlockIsUnchanged(t *testing.T) {
	fn := buildFunc(
		&lir.Label{Name: "entry"},
		&lir.Return{Values: []hir.Expr{&hir.Const{Value: 0}}},
	)
	out := Func(fn)
	if len(out.Stmts) != 2 {
		t.Fatalf("got %d statements, want 2: %v", len(out.Stmts), out.Stmts)
	}
}

// TestFuncInvertsTakenBranch covers a cjump whose true target is the
// textual successor: it gets inverted so the taken block stays distant
// and the fall-through is natural.
func TestFuncInvertsTakenBranch(t *testing.T) {
	fn := buildFunc(
		&lir.Label{Name: "A"},
		&lir.CJump{Cond: &hir.Temp{Name: "c"}, True: "C", False: "B"},
		&lir.Label{Name: "B"},
		&lir.Jump{Target: "end"},
		&lir.Label{Name: "C"},
		&lir.Jump{Target: "end"},
		&lir.Label{Name: "end"},
		&lir.Return{},
	)
	out := Func(fn)

	var cjump *lir.CJump
	for _, s := range out.Stmts {
		if cj, ok := s.(*lir.CJump); ok {
			cjump = cj
		}
	}
	if cjump == nil {
		t.Fatal("expected a CJump in reordered output")
	}
	bin, ok := cjump.Cond.(*hir.Bin)
	if !ok || bin.Op != hir.Xor {
		t.Fatalf("expected inverted (Xor) condition, got %v", cjump.Cond)
	}
	// The rewritten jump must still distinguish its two outcomes: taking
	// the (inverted) branch reaches the original false target, and the
	// fall-through reaches the original true target's label -- never the
	// same label twice, or the branch direction is lost.
	if cjump.True == cjump.False {
		t.Fatalf("inverted cjump collapsed both targets to %q, original branch is unreachable", cjump.True)
	}
	if cjump.True != "B" {
		t.Fatalf("expected inverted cjump's taken target to be the original false target B, got %q", cjump.True)
	}
	if cjump.False != "C" {
		t.Fatalf("expected inverted cjump's fall-through to be the original true target C, got %q", cjump.False)
	}
}

func TestFuncDropsRedundantJump(t *testing.T) {
	fn := buildFunc(
		&lir.Label{Name: "A"},
		&lir.Jump{Target: "B"},
		&lir.Label{Name: "B"},
		&lir.Return{},
	)
	out := Func(fn)
	jumps := 0
	for _, s := range out.Stmts {
		if _, ok := s.(*lir.Jump); ok {
			jumps++
		}
	}
	if jumps != 0 {
		t.Fatalf("expected the fall-through jump to be dropped, got %d jumps", jumps)
	}
}
