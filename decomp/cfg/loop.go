package cfg

import (
	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	backEdges struct {
		heap.Heap[*vm.Instruction]
	}
)

// FindLoops detects while, do-until, repeat and with loops from back edges.
// Back edges are taken in increasing source address so inner loops are
// claimed before the loops around them.
func (g *Graph) FindLoops(f *Fragment) error {
	q := backEdges{Heap: heap.Heap[*vm.Instruction]{Less: sourceLess}}
	lastJump := map[int]int{}

	for _, b := range g.Blocks(f) {
		in := b.Last()
		if in == nil || !in.HasTarget() || in.BranchTarget() > in.Address || g.handled(in.Address) {
			continue
		}

		if in.Op == vm.B && in.Address > lastJump[in.BranchTarget()] {
			lastJump[in.BranchTarget()] = in.Address
		}

		q.Push(in)
	}

	for q.Len() != 0 {
		in := q.Pop()

		tlog.V("loops").Printw("back edge", "addr", in.Address, "op", in.Op, "target", in.BranchTarget())

		var err error

		switch in.Op {
		case vm.B:
			if lastJump[in.BranchTarget()] != in.Address {
				continue // continue statement of a while loop
			}

			err = g.whileLoop(f, in)
		case vm.Bf:
			err = g.doUntilLoop(f, in, false)
		case vm.Bt:
			if g.isRepeatTail(in) {
				err = g.repeatLoop(f, in)
			} else {
				err = g.doUntilLoop(f, in, true)
			}
		case vm.PopEnv:
			err = g.withLoop(f, in)
		default:
			err = errors.Wrap(ErrMalformed, "backward %v", in.Op)
		}

		if err != nil {
			return errors.Wrap(err, "loop at %d", in.Address)
		}
	}

	return nil
}

func (g *Graph) whileLoop(f *Fragment, back *vm.Instruction) error {
	l := &WhileLoop{BackEdge: back.Address, CondBranch: -1}
	l.Start, l.End = back.BranchTarget(), back.End()

	for addr := l.Start; addr < back.Address; {
		in := g.Instr(addr)

		if in.Op == vm.Bf && in.BranchTarget() == l.End && !g.handled(in.Address) {
			l.CondBranch = in.Address
			break
		}

		addr = in.End()
	}

	if l.CondBranch < 0 {
		g.warnf("loop at %d has no exit condition", l.Start)
	} else {
		g.handle(RoleCond, l.CondBranch)
	}

	g.handle(RoleSkip, back.Address)

	l.ContinueAddr = g.forStep(l, back)

	return g.claim(l, f.ID)
}

// forStep finds the step of a for loop: the smallest target of a continue
// jump in the body such that only straight code runs from there to the
// back edge. The loop head is returned if there is none.
func (g *Graph) forStep(l *WhileLoop, back *vm.Instruction) int {
	from := l.Start
	if l.CondBranch >= 0 {
		from = g.Instr(l.CondBranch).End()
	}

	step := l.Start

	for addr := from; addr < back.Address; {
		in := g.Instr(addr)
		addr = in.End()

		if in.Op != vm.B || g.handled(in.Address) {
			continue
		}

		t := in.BranchTarget()
		if t <= in.Address || t >= back.Address || step != l.Start && t >= step {
			continue
		}

		// switch break
		if g.Instr(t).Op == vm.Popz {
			continue
		}

		if !g.straight(t, back.Address) || g.inLoop(in.Address) || !g.continueJump(from, in, t) {
			continue
		}

		step = t
	}

	return step
}

// continueJump reports whether jmp to t can only be a continue statement.
// A jump closing a non-empty then arm is read as the jump over an else arm
// unless that else arm would cross the end of another conditional.
func (g *Graph) continueJump(from int, jmp *vm.Instruction, t int) bool {
	if p := g.Prev(jmp); p != nil && p.Op.IsConditional() && p.BranchTarget() == jmp.End() && !g.handled(p.Address) {
		return true
	}

	closes := false
	crosses := false

	for addr := from; addr < jmp.Address; {
		in := g.Instr(addr)
		addr = in.End()

		if !in.Op.IsConditional() || g.handled(in.Address) {
			continue
		}

		x := in.BranchTarget()

		closes = closes || x == jmp.End()
		crosses = crosses || x > jmp.End() && x < t
	}

	return !closes || crosses
}

// inLoop reports whether addr is inside an already claimed loop.
func (g *Graph) inLoop(addr int) bool {
	b := g.BlockContaining(addr)
	if b == nil {
		return false
	}

	for _, n := range g.Enclosing(b.ID) {
		if IsLoop(n) {
			return true
		}
	}

	return false
}

// straight reports whether [from, to) has no branches.
func (g *Graph) straight(from, to int) bool {
	for addr := from; addr < to; {
		in := g.Instr(addr)
		if in.IsBlockEnd() {
			return false
		}

		addr = in.End()
	}

	return true
}

func (g *Graph) doUntilLoop(f *Fragment, back *vm.Instruction, negate bool) error {
	l := &DoUntilLoop{BackEdge: back.Address, Negate: negate, ContinueAddr: -1}
	l.Start, l.End = back.BranchTarget(), back.End()

	// continue jumps to the start of the condition; the condition alone
	// runs from there to the back edge
	for addr := l.Start; addr < back.Address; {
		in := g.Instr(addr)
		addr = in.End()

		if in.Op != vm.B || g.handled(in.Address) {
			continue
		}

		t := in.BranchTarget()
		if t <= in.Address || t > back.Address || !g.exprOnly(t, back.Address) {
			continue
		}

		if l.ContinueAddr < 0 || t < l.ContinueAddr {
			l.ContinueAddr = t
		}
	}

	g.handle(RoleCond, back.Address)

	return g.claim(l, f.ID)
}

// exprOnly reports whether [from, to) can only compute a value.
func (g *Graph) exprOnly(from, to int) bool {
	for addr := from; addr < to; {
		in := g.Instr(addr)

		switch in.Op {
		case vm.Pop, vm.Popz, vm.Ret, vm.Exit, vm.PushEnv, vm.PopEnv:
			return false
		}

		addr = in.End()
	}

	return true
}

// isRepeatTail matches `push 1; sub.i.i; dup.i 0; conv.i.b; bt head`.
func (g *Graph) isRepeatTail(bt *vm.Instruction) bool {
	seq := g.window(bt, 4)
	if seq == nil {
		return false
	}

	return seq[0].IsPushInt(1) &&
		seq[1].Op == vm.Sub &&
		seq[2].Op == vm.Dup &&
		seq[3].Op == vm.Conv && seq[3].Type2 == vm.Bool
}

func (g *Graph) repeatLoop(f *Fragment, back *vm.Instruction) error {
	tail := g.window(back, 4)

	head := back.BranchTarget()

	pop := g.Instr(back.End())
	if pop == nil || pop.Op != vm.Popz {
		return errors.Wrap(ErrMalformed, "repeat: no counter pop after %d", back.Address)
	}

	entry := g.before(head)
	if entry == nil || entry.Op != vm.Bt || entry.BranchTarget() != pop.Address {
		return errors.Wrap(ErrMalformed, "repeat: no entry check before %d", head)
	}

	pre := g.window(entry, 3)
	if pre == nil || pre[0].Op != vm.Dup || !pre[1].IsPushInt(0) || pre[2].Op != vm.Cmp || pre[2].Cmp != vm.CmpLTE {
		return errors.Wrap(ErrMalformed, "repeat: bad entry check before %d", head)
	}

	if _, err := g.SplitBlock(pop.End()); err != nil && pop.End() != g.Entry.End() {
		return errors.Wrap(err, "repeat")
	}

	l := &RepeatLoop{
		EntryBranch: entry.Address,
		Head:        head,
		Tail:        tail[0].Address,
		EndPop:      pop.Address,
	}
	l.Start, l.End = g.BlockContaining(entry.Address).Start, pop.End()

	g.handle(RoleSkip, pre[0].Address, pre[1].Address, pre[2].Address, entry.Address)
	g.handle(RoleSkip, tail[0].Address, tail[1].Address, tail[2].Address, tail[3].Address, back.Address)
	g.handle(RoleSkip, pop.Address)

	return g.claim(l, f.ID)
}

func (g *Graph) withLoop(f *Fragment, back *vm.Instruction) error {
	head := back.BranchTarget()

	push := g.before(head)
	if push == nil || push.Op != vm.PushEnv || push.BranchTarget() != back.Address {
		return errors.Wrap(ErrMalformed, "with: no pushenv before %d", head)
	}

	l := &WithLoop{
		PushEnv:   push.Address,
		Head:      head,
		PopEnv:    back.Address,
		BreakAddr: -1,
	}
	l.Start, l.End = g.BlockContaining(push.Address).Start, back.End()

	if jmp := g.Next(back); jmp != nil && jmp.Op == vm.B && !g.handled(jmp.Address) {
		exit := g.Next(jmp)

		if exit != nil && exit.Op == vm.PopEnv && exit.PopEnvExit && jmp.BranchTarget() == exit.End() {
			l.BreakAddr = exit.Address
			l.End = exit.End()

			g.handle(RoleSkip, jmp.Address, exit.Address)

			if _, err := g.SplitBlock(l.End); err != nil && l.End != g.Entry.End() {
				return errors.Wrap(err, "with")
			}
		}
	}

	g.handle(RoleCond, push.Address)
	g.handle(RoleSkip, back.Address)

	return g.claim(l, f.ID)
}

// window returns the n instructions right before in.
func (g *Graph) window(in *vm.Instruction, n int) []*vm.Instruction {
	r := make([]*vm.Instruction, n)

	p := in
	for i := n - 1; i >= 0; i-- {
		p = g.Prev(p)
		if p == nil {
			return nil
		}

		r[i] = p
	}

	return r
}

func sourceLess(d []*vm.Instruction, i, j int) bool {
	return d[i].Address < d[j].Address
}
