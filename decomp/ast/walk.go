package ast

// RewriteExpr rewrites x bottom-up, children before the node itself.
// Function bodies are separate scopes and are not entered.
func RewriteExpr(x Expr, f func(Expr) Expr) Expr {
	exprs := func(l []Expr) {
		for i, a := range l {
			l[i] = RewriteExpr(a, f)
		}
	}

	switch x := x.(type) {
	case nil:
		return nil
	case *Variable:
		x.Instance = RewriteExpr(x.Instance, f)
	case *ArrayAccess:
		x.Array = RewriteExpr(x.Array, f)
		x.Index = RewriteExpr(x.Index, f)
	case *Binary:
		x.Left = RewriteExpr(x.Left, f)
		x.Right = RewriteExpr(x.Right, f)
	case *Unary:
		x.X = RewriteExpr(x.X, f)
	case *Call:
		exprs(x.Args)
	case *MethodCall:
		x.Func = RewriteExpr(x.Func, f)
		x.Instance = RewriteExpr(x.Instance, f)
		exprs(x.Args)
	case *ShortCircuit:
		exprs(x.Conds)
	case *Conditional:
		x.Cond = RewriteExpr(x.Cond, f)
		x.Then = RewriteExpr(x.Then, f)
		x.Else = RewriteExpr(x.Else, f)
	case *Nullish:
		x.Left = RewriteExpr(x.Left, f)
		x.Right = RewriteExpr(x.Right, f)
	case *StructLit:
		for i := range x.Fields {
			x.Fields[i].Value = RewriteExpr(x.Fields[i].Value, f)
		}
	case *ArrayLit:
		exprs(x.Elems)
	case *New:
		x.Func = RewriteExpr(x.Func, f)
		exprs(x.Args)
	}

	return f(x)
}

// rewriteStmt rewrites the expressions owned directly by s.
// Nested blocks are left to the caller.
func rewriteStmt(s Stmt, f func(Expr) Expr) {
	switch s := s.(type) {
	case *Assign:
		s.Target = RewriteExpr(s.Target, f)
		s.Value = RewriteExpr(s.Value, f)
	case *IncDec:
		s.Target = RewriteExpr(s.Target, f)
	case *ExprStmt:
		s.X = RewriteExpr(s.X, f)
	case *If:
		s.Cond = RewriteExpr(s.Cond, f)
	case *While:
		s.Cond = RewriteExpr(s.Cond, f)
	case *For:
		rewriteStmt(s.Init, f)
		s.Cond = RewriteExpr(s.Cond, f)
		rewriteStmt(s.Step, f)
	case *DoUntil:
		s.Cond = RewriteExpr(s.Cond, f)
	case *Repeat:
		s.Count = RewriteExpr(s.Count, f)
	case *With:
		s.Target = RewriteExpr(s.Target, f)
	case *Switch:
		s.Value = RewriteExpr(s.Value, f)

		for _, c := range s.Cases {
			for i, v := range c.Values {
				c.Values[i] = RewriteExpr(v, f)
			}
		}
	case *Return:
		s.Value = RewriteExpr(s.Value, f)
	case *Throw:
		s.Value = RewriteExpr(s.Value, f)
	case *VarDecl:
		for i := range s.Vars {
			s.Vars[i].Value = RewriteExpr(s.Vars[i].Value, f)
		}
	}
}

// nested returns the blocks directly held by s.
func nested(s Stmt) []*Block {
	switch s := s.(type) {
	case *Block:
		return []*Block{s}
	case *If:
		return []*Block{s.Then, s.Else}
	case *While:
		return []*Block{s.Body}
	case *For:
		return []*Block{s.Body}
	case *DoUntil:
		return []*Block{s.Body}
	case *Repeat:
		return []*Block{s.Body}
	case *With:
		return []*Block{s.Body}
	case *Switch:
		r := make([]*Block, len(s.Cases))
		for i, c := range s.Cases {
			r[i] = c.Body
		}

		return r
	case *Try:
		return []*Block{s.Body, s.Catch, s.Finally}
	case *StaticInit:
		return []*Block{s.Body}
	}

	return nil
}

// WalkBlocks calls f for b and every block below it in the same
// function, outer blocks first.
func WalkBlocks(b *Block, f func(*Block)) {
	if b == nil {
		return
	}

	f(b)

	for _, s := range b.Stmts {
		for _, n := range nested(s) {
			WalkBlocks(n, f)
		}
	}
}

// RewriteExprs rewrites every expression of one function body.
func RewriteExprs(b *Block, f func(Expr) Expr) {
	WalkBlocks(b, func(b *Block) {
		for _, s := range b.Stmts {
			rewriteStmt(s, f)
		}
	})
}

// Functions returns the functions declared directly in the body b,
// nested declarations excluded.
func Functions(b *Block) (r []*FunctionDecl) {
	seen := map[*FunctionDecl]bool{}

	add := func(d *FunctionDecl) {
		if !seen[d] {
			seen[d] = true
			r = append(r, d)
		}
	}

	WalkBlocks(b, func(b *Block) {
		for _, s := range b.Stmts {
			if fd, ok := s.(*FuncDeclStmt); ok {
				add(fd.Decl)
				continue
			}

			rewriteStmt(s, func(x Expr) Expr {
				if d, ok := x.(*FunctionDecl); ok {
					add(d)
				}

				return x
			})
		}
	})

	return r
}
