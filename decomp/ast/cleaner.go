package ast

import (
	"context"
	"strings"

	"tlog.app/go/tlog"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	// Cleaner rewrites a built tree into the source a programmer would
	// have written.
	Cleaner struct {
		game *GameContext
		opts Options

		Enums *EnumSet
	}
)

func NewCleaner(game *GameContext, opts Options) *Cleaner {
	if game == nil {
		game = &GameContext{}
	}

	return &Cleaner{
		game:  game,
		opts:  opts,
		Enums: NewEnumSet(),
	}
}

// Clean rewrites root in place and returns the enums it used.
func Clean(ctx context.Context, root *Block, game *GameContext, opts Options) (enums *EnumSet, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "ast: clean")
	defer tr.Finish("err", &err)

	c := NewCleaner(game, opts)
	c.Function(root, nil)

	if opts.CreateEnumDeclarations {
		for _, d := range c.Enums.Decls() {
			root.Add(d)
		}
	}

	if tr.If("dump_enums") {
		tr.Printw("enums", "count", c.Enums.Len())
	}

	return c.Enums, nil
}

// Function cleans one function body, nested functions first.
// d is nil for the root.
func (c *Cleaner) Function(body *Block, d *FunctionDecl) {
	for _, fd := range Functions(body) {
		c.Function(fd.Body, fd)
	}

	if d != nil {
		if c.opts.CleanupDefaultArgumentValues {
			c.defaults(d)
		}

		c.renameArgs(d)
	}

	WalkBlocks(body, func(b *Block) {
		c.forLoops(b)

		if c.opts.CleanupElseToContinue {
			c.elseToContinue(b)
		}
	})

	RewriteExprs(body, c.expr)
	WalkBlocks(body, c.constantStmts)

	c.locals(body)

	if _, ok := body.Last().(*Exit); ok {
		body.Stmts = body.Stmts[:len(body.Stmts)-1]
	}
}

// argIndex returns which argument v refers to in d, -1 if none.
func argIndex(d *FunctionDecl, x Expr) int {
	v, ok := x.(*Variable)
	if !ok || v.Instance != nil || v.Kind != vm.Argument && v.Kind != vm.Self {
		return -1
	}

	if n, ok := argumentIndex(v.Name); ok {
		return n
	}

	for i, a := range d.Args {
		if a == v.Name {
			return i
		}
	}

	return -1
}

// defaults folds leading `if (arg == undefined) arg = v;` into the
// argument list.
func (c *Cleaner) defaults(d *FunctionDecl) {
	for len(d.Body.Stmts) != 0 {
		s, ok := d.Body.Stmts[0].(*If)
		if !ok || s.Else != nil || len(s.Then.Stmts) != 1 {
			return
		}

		cond, ok := s.Cond.(*Binary)
		if !ok || cond.Op != "==" || !IsUndefined(cond.Right) {
			return
		}

		a, ok := s.Then.Stmts[0].(*Assign)
		if !ok || a.Op != "" || !Equal(a.Target, cond.Left) {
			return
		}

		i := argIndex(d, cond.Left)
		if i < 0 || i >= len(d.Args) {
			return
		}

		if d.Defaults == nil {
			d.Defaults = make([]Expr, len(d.Args))
		}

		d.Defaults[i] = a.Value
		d.Body.Stmts = d.Body.Stmts[1:]
	}
}

func (c *Cleaner) renameArgs(d *FunctionDecl) {
	if c.opts.UnknownArgumentNamePattern == "" {
		return
	}

	names := map[string]string{}

	for i, a := range d.Args {
		if n, ok := argumentIndex(a); ok && n == i {
			d.Args[i] = expand(c.opts.UnknownArgumentNamePattern, int64(i))
			names[a] = d.Args[i]
		}
	}

	if len(names) == 0 {
		return
	}

	rename := func(x Expr) Expr {
		v, ok := x.(*Variable)
		if ok && v.Instance == nil && (v.Kind == vm.Argument || v.Kind == vm.Self) {
			if n, ok := names[v.Name]; ok {
				v.Name = n
			}
		}

		return x
	}

	RewriteExprs(d.Body, rename)

	for i, x := range d.Defaults {
		d.Defaults[i] = RewriteExpr(x, rename)
	}
}

// forLoops turns `init; while (cond) { ...; step }` into a for loop
// when cond reads the initialized variable and the body has no continue.
func (c *Cleaner) forLoops(b *Block) {
	for i := 1; i < len(b.Stmts); i++ {
		init, ok := b.Stmts[i-1].(*Assign)
		if !ok || init.Op != "" {
			continue
		}

		switch l := b.Stmts[i].(type) {
		case *For:
			if l.Init != nil || !Equal(stepTarget(l.Step), init.Target) {
				continue
			}

			l.Init = init
		case *While:
			if l.Cond == nil || len(l.Body.Stmts) < 2 || !mentions(l.Cond, init.Target) || hasContinue(l.Body) {
				continue
			}

			step := l.Body.Last()
			if !Equal(stepTarget(step), init.Target) {
				continue
			}

			l.Body.Stmts = l.Body.Stmts[:len(l.Body.Stmts)-1]
			b.Stmts[i] = &For{Init: init, Cond: l.Cond, Step: step, Body: l.Body}
		default:
			continue
		}

		b.Stmts = append(b.Stmts[:i-1], b.Stmts[i:]...)
		i--
	}
}

func stepTarget(s Stmt) Expr {
	switch s := s.(type) {
	case *Assign:
		return s.Target
	case *IncDec:
		return s.Target
	}

	return nil
}

func mentions(x, v Expr) (found bool) {
	RewriteExpr(x, func(x Expr) Expr {
		if !found && Equal(x, v) {
			found = true
		}

		return x
	})

	return found
}

// hasContinue reports a continue belonging to the loop owning b.
func hasContinue(b *Block) bool {
	for _, s := range b.Stmts {
		switch s := s.(type) {
		case *Continue:
			return true
		case *While, *For, *DoUntil, *Repeat, *With:
		default:
			for _, n := range nested(s) {
				if n != nil && hasContinue(n) {
					return true
				}
			}
		}
	}

	return false
}

// elseToContinue rewrites an if-else closing a loop body into an if
// ending in continue followed by the else arm.
func (c *Cleaner) elseToContinue(b *Block) {
	for _, s := range b.Stmts {
		var body *Block

		switch l := s.(type) {
		case *While:
			body = l.Body
		case *For:
			body = l.Body
		case *DoUntil:
			body = l.Body
		case *Repeat:
			body = l.Body
		case *With:
			body = l.Body
		default:
			continue
		}

		last, ok := body.Last().(*If)
		if !ok || last.Else == nil || terminates(last.Then) {
			continue
		}

		if !last.Then.Empty() && len(last.Else.Stmts) <= len(last.Then.Stmts) {
			continue
		}

		last.Then.Add(&Continue{})
		body.Stmts = append(body.Stmts, last.Else.Stmts...)
		last.Else = nil
	}
}

// expr resolves constants and drops implicit builtin array indexes.
func (c *Cleaner) expr(x Expr) Expr {
	switch x := x.(type) {
	case *ArrayAccess:
		if !c.opts.CleanupBuiltinArrayVariables {
			break
		}

		v, ok := x.Array.(*Variable)
		if !ok || !v.Builtin {
			break
		}

		bi, ok := c.game.builtin(v.Name)
		if idx, isInt := IntValue(x.Index); ok && !bi.Array && isInt && idx == 0 {
			return v
		}
	case *Call:
		groups := c.registry().FunctionArgs[x.Func]

		for i, a := range x.Args {
			if i < len(groups) {
				x.Args[i] = c.constant(groups[i], a)
			}
		}
	case *Binary:
		if v, ok := x.Left.(*Variable); ok && (x.Op == "==" || x.Op == "!=") {
			x.Right = c.constant(c.registry().Variables[v.Name], x.Right)
		}
	case *Literal:
		switch v := x.Value.(type) {
		case float64:
			if c.game == nil {
				break
			}

			if n, ok := c.game.PredefinedDoubles[v]; ok {
				return &NamedConstant{Name: n}
			}
		case int64:
			if c.opts.CreateEnumDeclarations && c.opts.UnknownEnumName != "" {
				name := expand(c.opts.UnknownEnumValuePattern, v)
				c.Enums.Add(c.opts.UnknownEnumName, name, v)

				return &EnumValue{Enum: c.opts.UnknownEnumName, Name: name, Value: v}
			}
		}
	}

	return x
}

// constantStmts resolves values assigned to registry variables.
func (c *Cleaner) constantStmts(b *Block) {
	for _, s := range b.Stmts {
		a, ok := s.(*Assign)
		if !ok {
			continue
		}

		if v, ok := a.Target.(*Variable); ok {
			a.Value = c.constant(c.registry().Variables[v.Name], a.Value)
		}
	}
}

func (c *Cleaner) registry() *Registry {
	if c.game == nil || c.game.Registry == nil {
		return &Registry{}
	}

	return c.game.Registry
}

// constant names an integer literal from a registry group.
func (c *Cleaner) constant(group string, x Expr) Expr {
	if group == "" {
		return x
	}

	v, ok := IntValue(x)
	if !ok {
		return x
	}

	if typ, ok := strings.CutPrefix(group, "asset:"); ok {
		if n := c.game.assetName(typ, int(v)); n != "" {
			return &AssetRef{Type: typ, Index: int(v), Name: n}
		}

		return x
	}

	if n, ok := c.registry().Constant(group, v); ok {
		return &NamedConstant{Name: n}
	}

	return x
}

// locals declares every local variable once: the first plain assignment
// in source order becomes `var`, locals never assigned are declared at
// the top.
func (c *Cleaner) locals(body *Block) {
	used := map[string]bool{}
	var order []string

	RewriteExprs(body, func(x Expr) Expr {
		if v, ok := x.(*Variable); ok && isLocal(v) && !used[v.Name] {
			used[v.Name] = true
			order = append(order, v.Name)
		}

		return x
	})

	declared := map[string]bool{}

	var walk func(b *Block)
	walk = func(b *Block) {
		for i, s := range b.Stmts {
			if d := declare(s, declared); d != nil {
				b.Stmts[i] = d
			}

			if f, ok := s.(*For); ok {
				if d := declare(f.Init, declared); d != nil {
					f.Init = d
				}
			}

			for _, n := range nested(s) {
				if n != nil {
					walk(n)
				}
			}
		}
	}

	walk(body)

	var top []VarSpec

	for _, n := range order {
		if !declared[n] {
			top = append(top, VarSpec{Name: n})
		}
	}

	if len(top) != 0 {
		body.Stmts = append([]Stmt{&VarDecl{Vars: top}}, body.Stmts...)
	}
}

func declare(s Stmt, declared map[string]bool) *VarDecl {
	a, ok := s.(*Assign)
	if !ok || a.Op != "" {
		return nil
	}

	v, ok := a.Target.(*Variable)
	if !ok || !isLocal(v) || declared[v.Name] {
		return nil
	}

	declared[v.Name] = true

	return &VarDecl{Vars: []VarSpec{{Name: v.Name, Value: a.Value}}}
}

func isLocal(v *Variable) bool {
	return v.Kind == vm.Local && v.Instance == nil && v.Name != TempVar
}
