package cfg

import (
	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

// FindBinaryBranches detects if, if-else and ternaries:
//
//	<cond>; bf X; <then>; X:
//	<cond>; bf X; <then>; b Y; X: <else>; Y:
//
// bt instead of bf negates the condition.
// Branches are taken from the last one up so inner statements are
// claimed before the statements holding them.
func (g *Graph) FindBinaryBranches(f *Fragment) error {
	blocks := g.Blocks(f)

	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]

		last := b.Last()
		if last == nil || last.Op != vm.Bf && last.Op != vm.Bt || g.handled(last.Address) {
			continue
		}

		x := last.BranchTarget()
		if x <= last.Address {
			return errors.Wrap(ErrMalformed, "branch at %d goes backwards", last.Address)
		}

		container := g.Base(b.Parent)
		if x > container.End {
			return errors.Wrap(ErrUnsupported, "branch at %d leaves %v", last.Address, container)
		}

		n := &BinaryBranch{
			CondBranch: last.Address,
			Negate:     last.Op == vm.Bt,
			ElseJump:   -1,
			ElseAddr:   -1,
		}
		n.Start, n.End = b.Start, x

		if jmp := g.elseJump(b, x, container.End); jmp != nil {
			n.ElseJump = jmp.Address
			n.ElseAddr = x
			n.End = jmp.BranchTarget()

			g.handle(RoleSkip, jmp.Address)
		}

		g.handle(RoleCond, last.Address)

		err := g.claim(n, f.ID)
		if err != nil {
			return errors.Wrap(err, "if at %d", last.Address)
		}
	}

	return nil
}

// elseJump returns the jump over the else arm, nil if there is no else.
// A jump leaving the enclosing loop or switch, or to the step of a for
// loop, is a break or continue statement closing the then arm, not an else.
func (g *Graph) elseJump(b *Block, x, limit int) *vm.Instruction {
	jmp := g.before(x)
	if jmp == nil || jmp.Op != vm.B || jmp.Address < b.End || g.handled(jmp.Address) {
		return nil
	}

	if _, ok := g.Redirect[jmp.Address]; ok {
		return nil
	}

	y := jmp.BranchTarget()
	if y <= x || y > limit {
		return nil
	}

	for _, n := range g.Enclosing(b.ID) {
		if y == BreakTarget(n) {
			return nil
		}

		switch n := n.(type) {
		case *Switch:
			if y == n.ContinueAddr {
				return nil
			}
		case *WhileLoop:
			if n.ContinueAddr != n.Start && y == n.ContinueAddr {
				return nil
			}
		}
	}

	return jmp
}
