package ast

import (
	"context"
	"sort"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/cfg"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

func (b *Builder) while(ctx context.Context, n *cfg.WhileLoop, out *Block) (err error) {
	w := &While{}
	from := n.Start

	if n.CondBranch >= 0 {
		cb := b.g.Instr(n.CondBranch)

		if w.Cond, err = b.cond(ctx, n.ID, n.Start, cb.End(), out); err != nil {
			return err
		}

		from = cb.End()
	}

	if n.ContinueAddr == n.Start {
		if w.Body, err = b.sub(ctx, n.ID, from, n.End); err != nil {
			return err
		}

		out.Add(w)

		return nil
	}

	// continue jumps to the step, so this can only be a for loop
	body, err := b.sub(ctx, n.ID, from, n.ContinueAddr)
	if err != nil {
		return err
	}

	step, err := b.sub(ctx, n.ID, n.ContinueAddr, n.End)
	if err != nil {
		return err
	}

	if len(step.Stmts) != 1 {
		return errors.Wrap(cfg.ErrUnsupported, "for step at %d: %d statements", n.ContinueAddr, len(step.Stmts))
	}

	out.Add(&For{Cond: w.Cond, Step: step.Stmts[0], Body: body})

	return nil
}

func (b *Builder) doUntil(ctx context.Context, n *cfg.DoUntilLoop, out *Block) (err error) {
	d := &DoUntil{Body: &Block{}}
	depth := len(b.stack)

	err = b.region(ctx, n.ID, n.Start, n.End, d.Body)
	if err != nil {
		return err
	}

	if d.Cond, err = b.pop(); err != nil {
		return err
	}

	if len(b.stack) != depth {
		return errors.Wrap(cfg.ErrMalformed, "unbalanced do-until at %d", n.Start)
	}

	if n.Negate {
		d.Cond = Not(d.Cond)
	}

	out.Add(d)

	return nil
}

func (b *Builder) repeat(ctx context.Context, n *cfg.RepeatLoop, out *Block) (err error) {
	entry := b.g.Instr(n.EntryBranch)
	r := &Repeat{}

	if r.Count, err = b.cond(ctx, n.ID, n.Start, entry.End(), out); err != nil {
		return err
	}

	// decrement, back edge and counter pop are all skipped
	if r.Body, err = b.floorSub(ctx, n.ID, n.Head, n.End); err != nil {
		return err
	}

	out.Add(r)

	return nil
}

func (b *Builder) with(ctx context.Context, n *cfg.WithLoop, out *Block) (err error) {
	push := b.g.Instr(n.PushEnv)

	target, err := b.cond(ctx, n.ID, n.Start, push.End(), out)
	if err != nil {
		return err
	}

	w := &With{Target: b.instanceExpr(target)}

	if w.Body, err = b.sub(ctx, n.ID, n.Head, n.End); err != nil {
		return err
	}

	out.Add(w)

	return nil
}

func (b *Builder) switchStmt(ctx context.Context, n *cfg.Switch, out *Block) (err error) {
	if len(n.CaseBranches) == 0 {
		return errors.Wrap(cfg.ErrUnsupported, "switch at %d without cases", n.Start)
	}

	jmp := b.g.Instr(n.DefaultJump)

	err = b.region(ctx, n.ID, n.Start, jmp.End(), out)
	if err != nil {
		return err
	}

	vals := make([]Expr, len(n.CaseBranches))
	for i := len(vals) - 1; i >= 0; i-- {
		if vals[i], err = b.pop(); err != nil {
			return errors.Wrap(err, "case value")
		}
	}

	s := &Switch{}

	if s.Value, err = b.pop(); err != nil {
		return errors.Wrap(err, "switch value")
	}

	s.Value = b.instanceValue(s.Value)

	byAddr := map[int]*Case{}
	get := func(addr int) *Case {
		c := byAddr[addr]
		if c == nil {
			c = &Case{}
			byAddr[addr] = c
		}

		return c
	}

	for i, t := range n.CaseTargets {
		c := get(t)
		c.Values = append(c.Values, vals[i])
	}

	if n.DefaultAddr >= 0 {
		get(n.DefaultAddr).Default = true
	}

	addrs := make([]int, 0, len(byAddr))
	for a := range byAddr {
		addrs = append(addrs, a)
	}

	sort.Ints(addrs)

	end := n.EndPop
	if n.ContinueAddr >= 0 {
		end = n.ContinueAddr
	}

	// the switch value stays on the VM stack while cases run
	for i, a := range addrs {
		next := end
		if i+1 < len(addrs) {
			next = addrs[i+1]
		}

		c := byAddr[a]

		if c.Body, err = b.floorSub(ctx, n.ID, a, next); err != nil {
			return errors.Wrap(err, "case at %d", a)
		}

		c.Fallthrough = i+1 < len(addrs) && !terminates(c.Body)

		s.Cases = append(s.Cases, c)
	}

	out.Add(s)

	return nil
}

// instanceValue keeps switch(self) and friends readable.
func (b *Builder) instanceValue(x Expr) Expr {
	if v, ok := IntValue(x); ok && v < 0 && vm.InstanceType(v) >= vm.Noone {
		return b.instanceExpr(x)
	}

	return x
}

func terminates(b *Block) bool {
	switch b.Last().(type) {
	case *Break, *Continue, *Return, *Exit, *Throw:
		return true
	}

	return false
}

func (b *Builder) try(ctx context.Context, n *cfg.TryCatch, out *Block) (err error) {
	err = b.region(ctx, n.ID, n.Start, n.TryStart, out)
	if err != nil {
		return err
	}

	t := &Try{}

	if t.Body, err = b.sub(ctx, n.ID, n.TryStart, n.TryEnd); err != nil {
		return errors.Wrap(err, "try")
	}

	if n.CatchAddr >= 0 {
		t.CatchVar = n.CatchVar

		if t.Catch, err = b.sub(ctx, n.ID, n.CatchStart, n.CatchEnd); err != nil {
			return errors.Wrap(err, "catch")
		}
	}

	fin, err := b.sub(ctx, n.ID, n.Finally, n.FinallyEnd)
	if err != nil {
		return errors.Wrap(err, "finally")
	}

	if !fin.Empty() {
		t.Finally = fin
	}

	out.Add(t)

	return nil
}

func (b *Builder) shortCircuit(ctx context.Context, n *cfg.ShortCircuit, out *Block) error {
	sc := &ShortCircuit{Or: n.Or}
	from := n.Start

	for _, br := range n.Branches {
		in := b.g.Instr(br)

		c, err := b.cond(ctx, n.ID, from, in.End(), out)
		if err != nil {
			return errors.Wrap(err, "short circuit at %d", n.Start)
		}

		sc.Conds = append(sc.Conds, c)
		from = in.End()
	}

	c, err := b.cond(ctx, n.ID, from, n.Terminal, out)
	if err != nil {
		return errors.Wrap(err, "short circuit at %d", n.Start)
	}

	sc.Conds = append(sc.Conds, c)

	if tr := tlog.SpanFromContext(ctx); tr.If("dump_sc") {
		tr.Printw("short circuit", "start", n.Start, "or", n.Or, "conds", len(sc.Conds))
	}

	b.push(sc, vm.Bool)

	return nil
}

func (b *Builder) branch(ctx context.Context, n *cfg.BinaryBranch, out *Block) (err error) {
	cb := b.g.Instr(n.CondBranch)

	cond, err := b.cond(ctx, n.ID, n.Start, cb.End(), out)
	if err != nil {
		return err
	}

	if n.Negate {
		cond = Not(cond)
	}

	thenEnd := n.End
	if n.ElseJump >= 0 {
		thenEnd = n.ElseAddr
	}

	depth := len(b.stack)
	then := &Block{}

	err = b.region(ctx, n.ID, cb.End(), thenEnd, then)
	if err != nil {
		return err
	}

	pushed := len(b.stack) - depth

	if n.ElseJump < 0 {
		if pushed != 0 {
			return errors.Wrap(cfg.ErrMalformed, "if at %d leaves %d values", n.Start, pushed)
		}

		out.Add(&If{Cond: cond, Then: then})

		return nil
	}

	var tv Expr

	switch {
	case pushed == 1 && then.Empty():
		tv, _ = b.pop()
	case pushed != 0:
		return errors.Wrap(cfg.ErrMalformed, "if at %d leaves %d values", n.Start, pushed)
	}

	els := &Block{}

	err = b.region(ctx, n.ID, n.ElseAddr, n.End, els)
	if err != nil {
		return err
	}

	pushed = len(b.stack) - depth

	if tv != nil {
		if pushed != 1 || !els.Empty() {
			return errors.Wrap(cfg.ErrMalformed, "ternary at %d: bad else arm", n.Start)
		}

		ev, t, _ := b.popType()
		b.push(&Conditional{Cond: cond, Then: tv, Else: ev}, t)

		return nil
	}

	if pushed != 0 {
		return errors.Wrap(cfg.ErrMalformed, "else at %d leaves %d values", n.ElseAddr, pushed)
	}

	out.Add(&If{Cond: cond, Then: then, Else: els})

	return nil
}

func (b *Builder) nullish(ctx context.Context, n *cfg.Nullish, out *Block) error {
	br := b.g.Instr(n.Branch)

	lhs, err := b.cond(ctx, n.ID, n.Start, br.End(), out)
	if err != nil {
		return err
	}

	if !n.Assign {
		rhs, err := b.cond(ctx, n.ID, br.End(), n.End, out)
		if err != nil {
			return err
		}

		b.push(&Nullish{Left: lhs, Right: rhs}, vm.Variable)

		return nil
	}

	tmp, err := b.sub(ctx, n.ID, br.End(), n.End)
	if err != nil {
		return err
	}

	a, ok := tmp.Last().(*Assign)
	if !ok || len(tmp.Stmts) != 1 {
		return errors.Wrap(cfg.ErrMalformed, "nullish assignment at %d", n.Start)
	}

	out.Add(&Assign{Target: a.Target, Op: "??", Value: a.Value})

	return nil
}

func (b *Builder) staticInit(ctx context.Context, n *cfg.StaticInit, out *Block) error {
	body, err := b.sub(ctx, n.ID, n.Start, n.End)
	if err != nil {
		return err
	}

	out.Add(&StaticInit{Body: body})

	return nil
}

// cond builds [from, to) and pops the single value it leaves.
// The code may instead consume a value computed right before it by a
// short circuit, ternary or nullish node, as in `if (a && b)`.
func (b *Builder) cond(ctx context.Context, parent cfg.NodeID, from, to int, out *Block) (Expr, error) {
	depth := len(b.stack)

	var below Expr
	if depth > b.floor() {
		below = b.stack[depth-1]
	}

	err := b.region(ctx, parent, from, to, out)
	if err != nil {
		return nil, err
	}

	switch l := len(b.stack); {
	case l == depth+1:
	case l == depth && isValueNode(below):
	default:
		return nil, errors.Wrap(cfg.ErrMalformed, "expected one value in [%d:%d], got %d", from, to, l-depth)
	}

	return b.pop()
}

// floor is the stack depth the current body may not pop below.
func (b *Builder) floor() int {
	if l := len(b.floors); l != 0 {
		return b.floors[l-1]
	}

	return 0
}

// isValueNode reports expressions only built from value producing nodes.
func isValueNode(x Expr) bool {
	switch x.(type) {
	case *ShortCircuit, *Conditional, *Nullish:
		return true
	}

	return false
}

// Not negates a condition.
func Not(x Expr) Expr {
	if u, ok := x.(*Unary); ok && u.Op == "!" {
		return u.X
	}

	return &Unary{Op: "!", X: x}
}
