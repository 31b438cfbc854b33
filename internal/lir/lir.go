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

// Package lir is the low-level intermediate representation: the same
// expression algebra as internal/hir with the expression-sequence node
// eliminated. Control flow is expressed only through Label and Jump/CJump;
// statements form a flat ordered list.
package lir

import (
	"fmt"

	"eta/internal/hir"
)

// Expr reuses hir's expression kinds minus ESeq: Const, Temp, Bin, Mem,
// Call, Name. A *hir.ESeq reaching this package is a lowering bug.
type Expr = hir.Expr

// Func is one function's flattened statement list plus a dense per-node
// numbering used later by the tiler's memo table.
type Func struct {
	Name       string
	ABIName    string
	NumReturns int
	Stmts      []Stmt

	// nextID mints the dense indices tiling needs; it starts at zero for
	// every Func made by NewFunc.
	nextID int
}

func NewFunc(name, abiName string, numReturns int) *Func {
	return &Func{Name: name, ABIName: abiName, NumReturns: numReturns}
}

func (f *Func) Append(s Stmt) { f.Stmts = append(f.Stmts, s) }

// NextNodeID mints the next dense node index for the tiler's memo array.
func (f *Func) NextNodeID() int {
	id := f.nextID
	f.nextID++
	return id
}

func (f *Func) NodeCount() int { return f.nextID }

// Stmt is a flat LIR statement. Concrete variants: Move, Jump, CJump,
// CallStmt, Label, Return.
type Stmt interface {
	isStmt()
	String() string
}

type Move struct{ Dst, Src Expr }

func (*Move) isStmt()          {}
func (m *Move) String() string { return fmt.Sprintf("%s <- %s", m.Dst, m.Src) }

type Jump struct{ Target string }

func (*Jump) isStmt()          {}
func (j *Jump) String() string { return fmt.Sprintf("jump %s", j.Target) }

type CJump struct {
	Cond        Expr
	True, False string
}

func (*CJump) isStmt() {}
func (c *CJump) String() string {
	return fmt.Sprintf("cjump %s ? %s : %s", c.Cond, c.True, c.False)
}

type CallStmt struct {
	Callee     Expr
	Args       []Expr
	NumReturns int
}

func (*CallStmt) isStmt() {}
func (c *CallStmt) String() string {
	return fmt.Sprintf("call %s %v", c.Callee, c.Args)
}

type Label struct{ Name string }

func (*Label) isStmt()          {}
func (l *Label) String() string { return fmt.Sprintf("%s:", l.Name) }

type Return struct{ Values []Expr }

func (*Return) isStmt()          {}
func (r *Return) String() string { return fmt.Sprintf("return %v", r.Values) }

// IsTerminator reports whether s ends a basic block: every jump or
// return does.
func IsTerminator(s Stmt) bool {
	switch s.(type) {
	case *Jump, *CJump, *Return:
		return true
	default:
		return false
	}
}

// Targets returns the labels s may transfer control to, in priority
// order: for CJump, [true, false]; for Jump, [target]; otherwise nil.
func Targets(s Stmt) []string {
	switch x := s.(type) {
	case *Jump:
		return []string{x.Target}
	case *CJump:
		return []string{x.True, x.False}
	default:
		return nil
	}
}
