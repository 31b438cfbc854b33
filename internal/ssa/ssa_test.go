package ssa

import (
	"testing"

	"eta/internal/cfg"
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

// TestBuildPlacesPhiAtJoin covers a join point: x is defined differently
// on two incoming paths into D, so a phi belongs at D's head.
func TestBuildPlacesPhiAtJoin(t *testing.T) {
	fn := buildFunc(
		&lir.Label{Name: "A"},
		&lir.CJump{Cond: &hir.Temp{Name: "c"}, True: "B", False: "C"},
		&lir.Label{Name: "B"},
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 1}},
		&lir.Jump{Target: "D"},
		&lir.Label{Name: "C"},
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 2}},
		&lir.Jump{Target: "D"},
		&lir.Label{Name: "D"},
		&lir.Return{Values: []hir.Expr{&hir.Temp{Name: "x"}}},
	)
	g := cfg.Build(fn)
	form := Build(g)

	d, _ := g.BlockOf("D")
	phis := form.Phis[d]
	if len(phis) != 1 {
		t.Fatalf("expected exactly one phi at D, got %d", len(phis))
	}
	if phis[0].Var != "x" {
		t.Fatalf("expected phi for variable x, got %s", phis[0].Var)
	}
	if len(phis[0].Args) != 2 {
		t.Fatalf("expected 2 incoming args, got %d: %v", len(phis[0].Args), phis[0].Args)
	}
}

func TestDestructInsertsMovesInPredecessors(t *testing.T) {
	fn := buildFunc(
		&lir.Label{Name: "A"},
		&lir.CJump{Cond: &hir.Temp{Name: "c"}, True: "B", False: "C"},
		&lir.Label{Name: "B"},
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 1}},
		&lir.Jump{Target: "D"},
		&lir.Label{Name: "C"},
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 2}},
		&lir.Jump{Target: "D"},
		&lir.Label{Name: "D"},
		&lir.Return{Values: []hir.Expr{&hir.Temp{Name: "x"}}},
	)
	g := cfg.Build(fn)
	form := Build(g)
	out := Destruct(form, fn.Name, fn.ABIName, fn.NumReturns)

	moves := 0
	for _, s := range out.Stmts {
		if _, ok := s.(*lir.Move); ok {
			moves++
		}
	}
	// original two defs of x plus the two phi-resolving moves inserted in
	// B and C.
	if moves != 4 {
		t.Fatalf("expected 4 moves after destruction, got %d: %v", moves, out.Stmts)
	}
}

// TestDestructAppendsMovesAfterFallThroughPredecessor covers a
// predecessor whose last statement is not a terminator (the shape
// reorder leaves behind when it deletes the jump of a block whose
// successor is next in trace): the phi-resolving move must be appended
// after that last statement, not spliced before it, or it would read
// the very version the statement defines before the definition runs.
func TestDestructAppendsMovesAfterFallThroughPredecessor(t *testing.T) {
	fn := buildFunc(
		&lir.Label{Name: "A"},
		&lir.CJump{Cond: &hir.Temp{Name: "c"}, True: "B", False: "C"},
		&lir.Label{Name: "B"},
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 1}},
		&lir.Jump{Target: "D"},
		&lir.Label{Name: "C"},
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 2}},
		&lir.Label{Name: "D"},
		&lir.Return{Values: []hir.Expr{&hir.Temp{Name: "x"}}},
	)
	g := cfg.Build(fn)
	form := Build(g)
	out := Destruct(form, fn.Name, fn.ABIName, fn.NumReturns)

	c, _ := g.BlockOf("C")
	_ = c
	var cStmts []lir.Stmt
	inC := false
	for _, s := range out.Stmts {
		if lbl, ok := s.(*lir.Label); ok {
			if lbl.Name == "C" {
				inC = true
				continue
			}
			if inC {
				break
			}
			continue
		}
		if inC {
			cStmts = append(cStmts, s)
		}
	}

	if len(cStmts) < 2 {
		t.Fatalf("expected at least 2 statements in block C, got %d: %v", len(cStmts), cStmts)
	}
	first, ok := cStmts[0].(*lir.Move)
	if !ok || first.Src.(*hir.Const).Value != 2 {
		t.Fatalf("expected block C's original x<-2 def to stay first, got %v", cStmts[0])
	}
	last, ok := cStmts[len(cStmts)-1].(*lir.Move)
	if !ok {
		t.Fatalf("expected the phi-resolving move to be a Move appended last in C, got %v", cStmts[len(cStmts)-1])
	}
	if src, ok := last.Src.(*hir.Temp); !ok || src.Name != first.Dst.(*hir.Temp).Name {
		t.Fatalf("expected the appended move to read x's version defined earlier in C (%s), got %v", first.Dst.(*hir.Temp).Name, last.Src)
	}
}

func TestRenameGivesDistinctVersions(t *testing.T) {
	fn := buildFunc(
		&lir.Label{Name: "A"},
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 1}},
		&lir.Move{Dst: &hir.Temp{Name: "x"}, Src: &hir.Const{Value: 2}},
		&lir.Return{Values: []hir.Expr{&hir.Temp{Name: "x"}}},
	)
	g := cfg.Build(fn)
	Build(g)

	a, _ := g.BlockOf("A")
	names := map[string]bool{}
	for _, s := range g.Blocks[a].Stmts {
		if mv, ok := s.(*lir.Move); ok {
			if t, ok := mv.Dst.(*hir.Temp); ok {
				names[t.Name] = true
			}
		}
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 distinct SSA versions of x, got %v", names)
	}
}
