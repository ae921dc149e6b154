package cfg

import (
	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

const (
	TryHook       = "@@try_hook@@"
	TryUnhook     = "@@try_unhook@@"
	FinishCatch   = "@@finish_catch@@"
	FinishFinally = "@@finish_finally@@"
)

type (
	// flagCheck is the compiler's `if (flag) continue|break;` after a
	// finally block inside a loop.
	flagCheck struct {
		Var    string
		Target int
		Code   []*vm.Instruction
	}
)

// FindTryCatch detects try/catch/finally from its sentinel calls:
//
//	push.i finally; conv; push.i catch|-1; conv; call @@try_hook@@(2); popz
//	<try>; call @@try_unhook@@; popz; [b finally]
//	catch: pop local.e; call @@try_unhook@@; popz; <catch>; call @@finish_catch@@; popz; [b finally]
//	finally: <finally>; call @@finish_finally@@; popz
func (g *Graph) FindTryCatch(f *Fragment) error {
	var hooks []*vm.Instruction

	for _, b := range g.Blocks(f) {
		for _, in := range b.Code {
			if in.IsCall(TryHook) {
				hooks = append(hooks, in)
			}
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		err := g.tryCatch(f, hooks[i])
		if err != nil {
			return errors.Wrap(err, "try at %d", hooks[i].Address)
		}
	}

	return nil
}

func (g *Graph) tryCatch(f *Fragment, hook *vm.Instruction) (err error) {
	pre := g.window(hook, 4)
	if pre == nil || hook.ArgCount != 2 {
		return errors.Wrap(ErrMalformed, "bad hook arguments")
	}

	fin, ok1 := pre[0].IntValue()
	catch, ok2 := pre[2].IntValue()
	hpop := g.Next(hook)

	if !ok1 || !ok2 || hpop == nil || hpop.Op != vm.Popz {
		return errors.Wrap(ErrMalformed, "bad hook sequence")
	}

	t := &TryCatch{
		TryStart:  hpop.End(),
		CatchAddr: int(catch),
		Finally:   int(fin),
	}

	g.handle(RoleSkip, pre[0].Address, pre[1].Address, pre[2].Address, pre[3].Address, hook.Address, hpop.Address)

	bodyEnd := t.Finally
	if t.CatchAddr >= 0 {
		bodyEnd = t.CatchAddr
	}

	t.TryEnd, err = g.sentinelBefore(bodyEnd, TryUnhook)
	if err != nil {
		return errors.Wrap(err, "try body")
	}

	if t.CatchAddr >= 0 {
		exc := g.Instr(t.CatchAddr)
		if exc == nil || exc.Op != vm.Pop || exc.Var == nil {
			return errors.Wrap(ErrMalformed, "catch at %d: no exception pop", t.CatchAddr)
		}

		unhook := g.Next(exc)
		if unhook == nil || !unhook.IsCall(TryUnhook) {
			return errors.Wrap(ErrMalformed, "catch at %d: no unhook", t.CatchAddr)
		}

		upop := g.Next(unhook)
		if upop == nil || upop.Op != vm.Popz {
			return errors.Wrap(ErrMalformed, "catch at %d: no unhook pop", t.CatchAddr)
		}

		t.CatchStart = upop.End()
		t.CatchVar = exc.Var.Name

		g.handle(RoleSkip, exc.Address, unhook.Address, upop.Address)

		t.CatchEnd, err = g.sentinelBefore(t.Finally, FinishCatch)
		if err != nil {
			return errors.Wrap(err, "catch")
		}
	}

	t.FinallyEnd = -1
	depth := 0

	for addr := t.Finally; addr < f.End; {
		in := g.Instr(addr)
		if in == nil {
			return errors.Wrap(ErrMalformed, "finally at %d: not an instruction", addr)
		}

		addr = in.End()

		switch {
		case in.IsCall(TryHook):
			depth++
		case in.IsCall(FinishFinally) && depth != 0:
			depth--
		case in.IsCall(FinishFinally):
			t.FinallyEnd = in.Address
		}

		if t.FinallyEnd >= 0 {
			break
		}
	}

	if t.FinallyEnd < 0 {
		return errors.Wrap(ErrMalformed, "finally at %d: no end", t.Finally)
	}

	fpop := g.Next(g.Instr(t.FinallyEnd))
	if fpop == nil || fpop.Op != vm.Popz {
		return errors.Wrap(ErrMalformed, "finally at %d: no pop", t.Finally)
	}

	g.handle(RoleSkip, t.FinallyEnd, fpop.Address)

	t.Start = g.BlockContaining(pre[0].Address).Start
	t.End = fpop.End()

	for _, a := range []int{t.TryStart, t.TryEnd, t.CatchStart, t.CatchEnd, t.FinallyEnd, t.End} {
		if a <= 0 || a == g.Entry.End() {
			continue
		}

		if _, err = g.SplitBlock(a); err != nil {
			return err
		}
	}

	g.findFlagChecks(f, t)

	return g.claim(t, f.ID)
}

// sentinelBefore matches `call name; popz; [b ...]` ending at addr.
// It returns the call address.
func (g *Graph) sentinelBefore(addr int, name string) (int, error) {
	in := g.before(addr)

	if in != nil && in.Op == vm.B && in.BranchTarget() >= addr {
		g.handle(RoleSkip, in.Address)
		in = g.Prev(in)
	}

	if in == nil || in.Op != vm.Popz {
		return 0, errors.Wrap(ErrMalformed, "%v before %d: no pop", name, addr)
	}

	call := g.Prev(in)
	if call == nil || !call.IsCall(name) {
		return 0, errors.Wrap(ErrMalformed, "%v before %d: not found", name, addr)
	}

	g.handle(RoleSkip, call.Address, in.Address)

	return call.Address, nil
}

// findFlagChecks records the compiler's break/continue flag locals
// of a try statement inside a loop.
func (g *Graph) findFlagChecks(f *Fragment, t *TryCatch) {
	addr := t.End

	for k := 0; k < 2; k++ {
		c, ok := g.flagCheckAt(addr)
		if !ok {
			return
		}

		blk := g.BlockContaining(c.Code[0].Address)
		if blk == nil {
			return
		}

		for _, n := range g.Enclosing(blk.ID) {
			switch c.Target {
			case ContinueTarget(n):
				t.ContinueVar = c.Var
			case BreakTarget(n):
				t.BreakVar = c.Var
			default:
				continue
			}

			break
		}

		addr = c.Code[len(c.Code)-1].End()
	}
}

// flagCheckAt matches `push local.flag; conv.v.b; bf L; b target; L:`.
func (g *Graph) flagCheckAt(addr int) (c flagCheck, ok bool) {
	push := g.Instr(addr)
	if push == nil || push.Var == nil || push.Var.Instance != vm.Local || push.Op == vm.Pop {
		return c, false
	}

	conv := g.Next(push)
	if conv == nil || conv.Op != vm.Conv {
		return c, false
	}

	bf := g.Next(conv)
	if bf == nil || bf.Op != vm.Bf {
		return c, false
	}

	jmp := g.Next(bf)
	if jmp == nil || jmp.Op != vm.B || bf.BranchTarget() != jmp.End() {
		return c, false
	}

	return flagCheck{
		Var:    push.Var.Name,
		Target: jmp.BranchTarget(),
		Code:   []*vm.Instruction{push, conv, bf, jmp},
	}, true
}

// CleanTryCatch folds the break/continue flags of try statements back
// into plain jumps. The flag checks after the finally block, the flag
// initializations before the hook and the flag stores in the body are
// dropped, and the jumps leaving the body are redirected to the loop.
func (g *Graph) CleanTryCatch(f *Fragment) {
	for _, n := range g.Nodes {
		t, ok := n.(*TryCatch)
		if !ok || g.FragmentOf(t.ID) != f || t.BreakVar == "" && t.ContinueVar == "" {
			continue
		}

		targets := map[string]int{}

		for addr, k := t.End, 0; k < 2; k++ {
			c, ok := g.flagCheckAt(addr)
			if !ok || c.Var != t.BreakVar && c.Var != t.ContinueVar {
				break
			}

			targets[c.Var] = c.Target

			for _, in := range c.Code {
				g.handle(RoleSkip, in.Address)
			}

			addr = c.Code[len(c.Code)-1].End()
		}

		for addr := t.Start; addr < t.TryStart; {
			in := g.Instr(addr)
			addr = in.End()

			if in.Op != vm.Pop || in.Var == nil {
				continue
			}

			if _, ok := targets[in.Var.Name]; !ok {
				continue
			}

			if v := g.Prev(in); v != nil && v.IsPushInt(0) {
				g.handle(RoleSkip, v.Address, in.Address)
			}
		}

		for addr := t.TryStart; addr < t.TryEnd; {
			in := g.Instr(addr)
			addr = in.End()

			if in.Op != vm.B || in.BranchTarget() != t.TryEnd || g.handled(in.Address) {
				continue
			}

			store := g.Prev(in)
			if store == nil || store.Op != vm.Pop || store.Var == nil {
				continue
			}

			target, ok := targets[store.Var.Name]
			v := g.Prev(store)

			if !ok || v == nil || !v.IsPushInt(1) {
				continue
			}

			g.handle(RoleSkip, v.Address, store.Address)
			g.Redirect[in.Address] = target
		}
	}
}
