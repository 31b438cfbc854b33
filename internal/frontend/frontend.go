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

// Package frontend bridges the lexer/parser/type-inference front end
// (eta/ast) into the core pipeline's HIR (eta/internal/hir). It exists
// only far enough to give the core pipeline real input for tests and the
// command-line tool: a narrow imperative subset (int/bool/array values,
// if/while/for, short-circuit booleans) rather than the whole of the
// front end's richer type system.
package frontend

import (
	"fmt"

	"eta/ast"
	"eta/internal/hir"
)

// Translate parses source, runs the front end's type inference and checks,
// and lowers the result into a HIR compilation unit named unitName.
func Translate(unitName, source string) (*hir.CompilationUnit, error) {
	pkg := ast.ParseText(source)
	ast.InferTypes(false, pkg)
	ast.TypeCheck(false, pkg)

	tr := &translator{cu: hir.NewCompilationUnit(unitName)}
	for _, decl := range pkg.Func {
		fd := decl.(*ast.FuncDecl)
		if fd.Builtin {
			continue
		}
		hfn, err := tr.translateFunc(fd)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fd.Name, err)
		}
		tr.cu.Functions[hfn.ABIName] = hfn
		tr.cu.Exported = append(tr.cu.Exported, hfn.ABIName)
	}
	return tr.cu, nil
}

type translator struct {
	cu       *hir.CompilationUnit
	tmp      int
	label    int
	loops    []loopLabels
	funcSigs map[string]*ast.FuncDecl
}

type loopLabels struct {
	breakLabel, continueLabel string
}

func (tr *translator) freshTemp() string {
	tr.tmp++
	return fmt.Sprintf("t$%d", tr.tmp)
}

func (tr *translator) freshLabel(prefix string) string {
	tr.label++
	return fmt.Sprintf("%s$%d", prefix, tr.label)
}

// translateFunc lowers one source-level function into a HIR FuncDecl whose
// body is a flat Seq of statements starting with the function's entry
// label, matching the shape internal/lower.Func expects.
func (tr *translator) translateFunc(fd *ast.FuncDecl) (*hir.FuncDecl, error) {
	var params, rets []*hir.Type
	for _, p := range fd.Params {
		ht, err := translateType(p.GetType())
		if err != nil {
			return nil, err
		}
		params = append(params, ht)
	}
	if !fd.RetType.IsVoid() {
		rt, err := translateType(fd.RetType)
		if err != nil {
			return nil, err
		}
		rets = []*hir.Type{rt}
	}
	abiName := hir.MangleName(fd.Name, params, rets)

	var body []hir.Stmt
	body = append(body, &hir.Label{Name: fd.Name + "_entry"})
	for i, p := range fd.Params {
		name := p.(*ast.VarExpr).Name
		body = append(body, &hir.Move{Dst: &hir.Temp{Name: name}, Src: &hir.Temp{Name: hir.ArgName(i + 1)}})
	}

	block := fd.Block.(*ast.BlockDecl)
	stmts, err := tr.translateBlock(block)
	if err != nil {
		return nil, err
	}
	body = append(body, stmts...)
	// A falling-off-the-end void function still needs a terminating Return
	// for the lowering pipeline's Return-always-present invariant.
	if len(body) == 0 || !isTerminator(body[len(body)-1]) {
		body = append(body, &hir.Return{})
	}

	return &hir.FuncDecl{
		SourceName: fd.Name,
		ABIName:    abiName,
		NumParams:  len(params),
		NumReturns: len(rets),
		Body:       &hir.Seq{Stmts: body},
	}, nil
}

func isTerminator(s hir.Stmt) bool {
	switch s.(type) {
	case *hir.Return, *hir.Jump:
		return true
	}
	return false
}

func translateType(t *ast.Type) (*hir.Type, error) {
	switch {
	case t.IsInt():
		return hir.TInt, nil
	case t.IsBool():
		return hir.TBool, nil
	case t.IsArray():
		elem, err := translateType(t.ElemType)
		if err != nil {
			return nil, err
		}
		return hir.ArrayOf(elem), nil
	default:
		return nil, fmt.Errorf("unsupported source type %s", t.String())
	}
}

func (tr *translator) translateBlock(b *ast.BlockDecl) ([]hir.Stmt, error) {
	var out []hir.Stmt
	for _, s := range b.Stmts {
		stmts, err := tr.translateStmt(s)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// translateDecl handles the places the parser hangs a bare block or a
// single statement off an AstDecl (If/While/For bodies).
func (tr *translator) translateDecl(d ast.AstDecl) ([]hir.Stmt, error) {
	switch x := d.(type) {
	case *ast.BlockDecl:
		return tr.translateBlock(x)
	case nil:
		return nil, nil
	case ast.AstStmt:
		// `else if ...`/`else while ...` hang a bare control statement off
		// Else instead of wrapping it in a block.
		return tr.translateStmt(x)
	default:
		return nil, fmt.Errorf("unsupported block form %T", d)
	}
}

func (tr *translator) translateStmt(s ast.AstStmt) ([]hir.Stmt, error) {
	switch x := s.(type) {
	case *ast.LetStmt:
		init, pre, err := tr.translateExpr(x.Init)
		if err != nil {
			return nil, err
		}
		return append(pre, &hir.Move{Dst: &hir.Temp{Name: x.Var.Name}, Src: init}), nil

	case *ast.AssignStmt:
		return tr.translateAssign(x.Left, x.Right)

	case *ast.SimpleStmt:
		if call, ok := x.Expr.(*ast.FuncCallExpr); ok {
			args, pre, err := tr.translateArgs(call.Args)
			if err != nil {
				return nil, err
			}
			return append(pre, &hir.CallStmt{Callee: &hir.Name{Sym: tr.calleeABI(call)}, Args: args, NumReturns: 0}), nil
		}
		_, pre, err := tr.translateExpr(x.Expr)
		return pre, err

	case *ast.ReturnStmt:
		if x.Expr == nil {
			return []hir.Stmt{&hir.Return{}}, nil
		}
		v, pre, err := tr.translateExpr(x.Expr)
		if err != nil {
			return nil, err
		}
		return append(pre, &hir.Return{Values: []hir.Expr{v}}), nil

	case *ast.IfStmt:
		return tr.translateIf(x)

	case *ast.WhileStmt:
		return tr.translateWhile(x.Cond, x.Body)

	case *ast.ForStmt:
		return tr.translateFor(x)

	case *ast.DoWhileStmt:
		return tr.translateDoWhile(x)

	case *ast.BreakStmt:
		if len(tr.loops) == 0 {
			return nil, fmt.Errorf("break outside of a loop")
		}
		return []hir.Stmt{&hir.Jump{Target: tr.loops[len(tr.loops)-1].breakLabel}}, nil

	case *ast.ContinueStmt:
		if len(tr.loops) == 0 {
			return nil, fmt.Errorf("continue outside of a loop")
		}
		return []hir.Stmt{&hir.Jump{Target: tr.loops[len(tr.loops)-1].continueLabel}}, nil

	case *ast.IncDecStmt:
		step := int64(1)
		if x.Opt == ast.TK_DECREMENT {
			step = -1
		}
		name := x.Var.Name
		return []hir.Stmt{&hir.Move{
			Dst: &hir.Temp{Name: name},
			Src: &hir.Bin{Op: hir.Add, L: &hir.Temp{Name: name}, R: &hir.Const{Value: step}},
		}}, nil

	case *ast.PackageStmt:
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported statement %T", s)
	}
}

// translateExprStmt lowers an expression used in statement position: a
// for-loop's init/post clause, which the parser stores as a bare AstExpr
// (most commonly an AssignExpr) behind the AstStmt field type.
func (tr *translator) translateExprStmt(e ast.AstExpr) ([]hir.Stmt, error) {
	if assign, ok := e.(*ast.AssignExpr); ok {
		return tr.translateAssign(assign.Left, assign.Right)
	}
	_, pre, err := tr.translateExpr(e)
	return pre, err
}

func (tr *translator) translateAssign(left, right ast.AstExpr) ([]hir.Stmt, error) {
	rhs, pre, err := tr.translateExpr(right)
	if err != nil {
		return nil, err
	}
	switch l := left.(type) {
	case *ast.VarExpr:
		return append(pre, &hir.Move{Dst: &hir.Temp{Name: l.Name}, Src: rhs}), nil
	default:
		// Writing through an array index or a record field requires the
		// bounds-checked/offset address arithmetic internal/lower builds
		// during HIR-to-LIR lowering; the front end has no HIR-level
		// construct to express that write directly, so it is left
		// unsupported here rather than emitting an unchecked store.
		return nil, fmt.Errorf("unsupported assignment target %T", left)
	}
}

func (tr *translator) translateIf(x *ast.IfStmt) ([]hir.Stmt, error) {
	elseLabel := tr.freshLabel("else")
	endLabel := tr.freshLabel("endif")

	cond, pre, err := tr.translateExpr(x.Cond)
	if err != nil {
		return nil, err
	}
	thenStmts, err := tr.translateDecl(x.Then)
	if err != nil {
		return nil, err
	}
	elseStmts, err := tr.translateDecl(x.Else)
	if err != nil {
		return nil, err
	}

	thenLabel := tr.freshLabel("then")
	out := append([]hir.Stmt{}, pre...)
	out = append(out, &hir.CJump{Cond: cond, True: thenLabel, False: elseLabel})
	out = append(out, &hir.Label{Name: thenLabel})
	out = append(out, thenStmts...)
	out = append(out, &hir.Jump{Target: endLabel})
	out = append(out, &hir.Label{Name: elseLabel})
	out = append(out, elseStmts...)
	out = append(out, &hir.Label{Name: endLabel})
	return out, nil
}

func (tr *translator) translateWhile(cond ast.AstExpr, body ast.AstDecl) ([]hir.Stmt, error) {
	top := tr.freshLabel("loop")
	bodyLabel := tr.freshLabel("loopbody")
	end := tr.freshLabel("loopend")

	tr.loops = append(tr.loops, loopLabels{breakLabel: end, continueLabel: top})
	bodyStmts, err := tr.translateDecl(body)
	tr.loops = tr.loops[:len(tr.loops)-1]
	if err != nil {
		return nil, err
	}

	condVal, pre, err := tr.translateExpr(cond)
	if err != nil {
		return nil, err
	}

	out := []hir.Stmt{&hir.Label{Name: top}}
	out = append(out, pre...)
	out = append(out, &hir.CJump{Cond: condVal, True: bodyLabel, False: end})
	out = append(out, &hir.Label{Name: bodyLabel})
	out = append(out, bodyStmts...)
	out = append(out, &hir.Jump{Target: top})
	out = append(out, &hir.Label{Name: end})
	return out, nil
}

// translateDoWhile lowers `do { body } while cond`: the body runs once
// unconditionally before the condition is ever tested.
func (tr *translator) translateDoWhile(x *ast.DoWhileStmt) ([]hir.Stmt, error) {
	top := tr.freshLabel("dowhile")
	end := tr.freshLabel("dowhileend")

	tr.loops = append(tr.loops, loopLabels{breakLabel: end, continueLabel: top})
	bodyStmts, err := tr.translateDecl(x.Body)
	tr.loops = tr.loops[:len(tr.loops)-1]
	if err != nil {
		return nil, err
	}

	condVal, condPre, err := tr.translateExpr(x.Cond)
	if err != nil {
		return nil, err
	}

	out := []hir.Stmt{&hir.Label{Name: top}}
	out = append(out, bodyStmts...)
	out = append(out, condPre...)
	out = append(out, &hir.CJump{Cond: condVal, True: top, False: end})
	out = append(out, &hir.Label{Name: end})
	return out, nil
}

func (tr *translator) translateFor(x *ast.ForStmt) ([]hir.Stmt, error) {
	var out []hir.Stmt
	if x.Init != nil {
		initExpr, ok := x.Init.(ast.AstExpr)
		if !ok {
			return nil, fmt.Errorf("unsupported for-loop init form %T", x.Init)
		}
		initStmts, err := tr.translateExprStmt(initExpr)
		if err != nil {
			return nil, err
		}
		out = append(out, initStmts...)
	}

	top := tr.freshLabel("for")
	bodyLabel := tr.freshLabel("forbody")
	continueLabel := tr.freshLabel("forpost")
	end := tr.freshLabel("forend")

	condVal, condPre, err := tr.translateExpr(x.Cond)
	if err != nil {
		return nil, err
	}

	tr.loops = append(tr.loops, loopLabels{breakLabel: end, continueLabel: continueLabel})
	bodyStmts, err := tr.translateDecl(x.Body)
	tr.loops = tr.loops[:len(tr.loops)-1]
	if err != nil {
		return nil, err
	}

	var postStmts []hir.Stmt
	if x.Post != nil {
		pre, err := tr.translateExprStmt(x.Post)
		if err != nil {
			return nil, err
		}
		postStmts = pre
	}

	out = append(out, &hir.Label{Name: top})
	out = append(out, condPre...)
	out = append(out, &hir.CJump{Cond: condVal, True: bodyLabel, False: end})
	out = append(out, &hir.Label{Name: bodyLabel})
	out = append(out, bodyStmts...)
	out = append(out, &hir.Label{Name: continueLabel})
	out = append(out, postStmts...)
	out = append(out, &hir.Jump{Target: top})
	out = append(out, &hir.Label{Name: end})
	return out, nil
}

func (tr *translator) translateArgs(args []ast.AstExpr) ([]hir.Expr, []hir.Stmt, error) {
	var out []hir.Expr
	var pre []hir.Stmt
	for _, a := range args {
		v, p, err := tr.translateExpr(a)
		if err != nil {
			return nil, nil, err
		}
		pre = append(pre, p...)
		out = append(out, v)
	}
	return out, pre, nil
}

// calleeABI re-derives a callee's mangled name from the call site's own
// argument/return types, since the front end does not thread full
// signatures through call expressions.
func (tr *translator) calleeABI(call *ast.FuncCallExpr) string {
	var params []*hir.Type
	for _, a := range call.Args {
		if t, err := translateType(a.GetType()); err == nil {
			params = append(params, t)
		} else {
			params = append(params, hir.TInt)
		}
	}
	var rets []*hir.Type
	if call.GetType() != nil && !call.GetType().IsVoid() {
		if t, err := translateType(call.GetType()); err == nil {
			rets = []*hir.Type{t}
		}
	}
	return hir.MangleName(call.Name, params, rets)
}

// translateExpr returns the expression's HIR value plus any statements
// that must run first to produce it (control flow for short-circuit
// booleans and the ternary operator).
func (tr *translator) translateExpr(e ast.AstExpr) (hir.Expr, []hir.Stmt, error) {
	switch x := e.(type) {
	case *ast.IntExpr:
		return &hir.Const{Value: int64(x.Value)}, nil, nil
	case *ast.BoolExpr:
		v := int64(0)
		if x.Value {
			v = 1
		}
		return &hir.Const{Value: v}, nil, nil
	case *ast.VarExpr:
		return &hir.Temp{Name: x.Name}, nil, nil
	case *ast.ArrayExpr:
		var elems []hir.Expr
		var pre []hir.Stmt
		for _, el := range x.Elems {
			v, p, err := tr.translateExpr(el)
			if err != nil {
				return nil, nil, err
			}
			pre = append(pre, p...)
			elems = append(elems, v)
		}
		return &hir.ArrayLit{Elems: elems}, pre, nil
	case *ast.IndexExpr:
		idx, pre, err := tr.translateExpr(x.Index)
		if err != nil {
			return nil, nil, err
		}
		return &hir.Index{Arr: &hir.Temp{Name: x.Name}, Idx: idx}, pre, nil
	case *ast.UnaryExpr:
		return tr.translateUnary(x)
	case *ast.BinaryExpr:
		return tr.translateBinary(x)
	case *ast.FuncCallExpr:
		args, pre, err := tr.translateArgs(x.Args)
		if err != nil {
			return nil, nil, err
		}
		numReturns := 0
		if x.GetType() != nil && !x.GetType().IsVoid() {
			numReturns = 1
		}
		return &hir.Call{Callee: &hir.Name{Sym: tr.calleeABI(x)}, Args: args, NumReturns: numReturns}, pre, nil
	case *ast.TernaryExpr:
		return tr.translateTernary(x)
	case *ast.AssignExpr:
		stmts, err := tr.translateAssign(x.Left, x.Right)
		if err != nil {
			return nil, nil, err
		}
		v, _, err := tr.translateExpr(x.Left)
		return v, stmts, err
	default:
		return nil, nil, fmt.Errorf("unsupported expression %T", e)
	}
}

func (tr *translator) translateUnary(x *ast.UnaryExpr) (hir.Expr, []hir.Stmt, error) {
	v, pre, err := tr.translateExpr(x.Left)
	if err != nil {
		return nil, nil, err
	}
	switch x.Opt {
	case ast.TK_MINUS:
		return &hir.Bin{Op: hir.Sub, L: &hir.Const{Value: 0}, R: v}, pre, nil
	case ast.TK_LOGNOT:
		return &hir.Bin{Op: hir.Eq, L: v, R: &hir.Const{Value: 0}}, pre, nil
	case ast.TK_BITNOT:
		return &hir.Bin{Op: hir.Xor, L: v, R: &hir.Const{Value: -1}}, pre, nil
	default:
		return nil, nil, fmt.Errorf("unsupported unary operator %s", x.Opt.String())
	}
}

var binOps = map[ast.TokenKind]hir.BinOp{
	ast.TK_PLUS:   hir.Add,
	ast.TK_MINUS:  hir.Sub,
	ast.TK_TIMES:  hir.Mul,
	ast.TK_DIV:    hir.Div,
	ast.TK_MOD:    hir.Mod,
	ast.TK_BITAND: hir.And,
	ast.TK_BITOR:  hir.Or,
	ast.TK_BITXOR: hir.Xor,
	ast.TK_LSHIFT: hir.LShift,
	ast.TK_RSHIFT: hir.RShift,
	ast.TK_EQ:     hir.Eq,
	ast.TK_NE:     hir.Neq,
	ast.TK_LT:     hir.Lt,
	ast.TK_LE:     hir.Leq,
	ast.TK_GT:     hir.Gt,
	ast.TK_GE:     hir.Geq,
}

// translateBinary maps straight-line operators directly and desugars the
// short-circuit forms into an if/else that assigns a fresh temporary, since
// HIR has no lazy boolean connective of its own.
func (tr *translator) translateBinary(x *ast.BinaryExpr) (hir.Expr, []hir.Stmt, error) {
	if x.Opt == ast.TK_LOGAND || x.Opt == ast.TK_LOGOR {
		return tr.translateShortCircuit(x)
	}
	op, ok := binOps[x.Opt]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported binary operator %s", x.Opt.String())
	}
	l, lpre, err := tr.translateExpr(x.Left)
	if err != nil {
		return nil, nil, err
	}
	r, rpre, err := tr.translateExpr(x.Right)
	if err != nil {
		return nil, nil, err
	}
	pre := append(lpre, rpre...)
	return &hir.Bin{Op: op, L: l, R: r}, pre, nil
}

func (tr *translator) translateShortCircuit(x *ast.BinaryExpr) (hir.Expr, []hir.Stmt, error) {
	l, lpre, err := tr.translateExpr(x.Left)
	if err != nil {
		return nil, nil, err
	}
	result := tr.freshTemp()
	rhsLabel := tr.freshLabel("scrhs")
	shortLabel := tr.freshLabel("scshort")
	endLabel := tr.freshLabel("scend")

	out := append([]hir.Stmt{}, lpre...)
	if x.Opt == ast.TK_LOGAND {
		out = append(out, &hir.CJump{Cond: l, True: rhsLabel, False: shortLabel})
	} else {
		out = append(out, &hir.CJump{Cond: l, True: shortLabel, False: rhsLabel})
	}
	out = append(out, &hir.Label{Name: rhsLabel})
	r, rpre, err := tr.translateExpr(x.Right)
	if err != nil {
		return nil, nil, err
	}
	out = append(out, rpre...)
	out = append(out, &hir.Move{Dst: &hir.Temp{Name: result}, Src: r})
	out = append(out, &hir.Jump{Target: endLabel})
	out = append(out, &hir.Label{Name: shortLabel})
	shortValue := int64(0)
	if x.Opt == ast.TK_LOGOR {
		shortValue = 1
	}
	out = append(out, &hir.Move{Dst: &hir.Temp{Name: result}, Src: &hir.Const{Value: shortValue}})
	out = append(out, &hir.Label{Name: endLabel})
	return &hir.Temp{Name: result}, out, nil
}

func (tr *translator) translateTernary(x *ast.TernaryExpr) (hir.Expr, []hir.Stmt, error) {
	cond, pre, err := tr.translateExpr(x.Cond)
	if err != nil {
		return nil, nil, err
	}
	result := tr.freshTemp()
	thenLabel := tr.freshLabel("ternthen")
	elseLabel := tr.freshLabel("ternelse")
	endLabel := tr.freshLabel("ternend")

	out := append([]hir.Stmt{}, pre...)
	out = append(out, &hir.CJump{Cond: cond, True: thenLabel, False: elseLabel})
	out = append(out, &hir.Label{Name: thenLabel})
	thenVal, thenPre, err := tr.translateExpr(x.Then)
	if err != nil {
		return nil, nil, err
	}
	out = append(out, thenPre...)
	out = append(out, &hir.Move{Dst: &hir.Temp{Name: result}, Src: thenVal})
	out = append(out, &hir.Jump{Target: endLabel})
	out = append(out, &hir.Label{Name: elseLabel})
	elseVal, elsePre, err := tr.translateExpr(x.Else)
	if err != nil {
		return nil, nil, err
	}
	out = append(out, elsePre...)
	out = append(out, &hir.Move{Dst: &hir.Temp{Name: result}, Src: elseVal})
	out = append(out, &hir.Label{Name: endLabel})
	return &hir.Temp{Name: result}, out, nil
}
