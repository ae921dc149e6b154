package cfg

import (
	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

// FindNullish detects `??` and `??=`:
//
//	<lhs>; isnullish; bf L; popz.v; <rhs>; L:
//	<lhs>; isnullish; bf L; popz.v; <rhs>; pop lhs; b E; L: popz.v; E:
func (g *Graph) FindNullish(f *Fragment) error {
	blocks := g.Blocks(f)

	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]

		last := b.Last()
		if last == nil || last.Op != vm.Bf || g.handled(last.Address) {
			continue
		}

		check := g.Prev(last)
		if check == nil || !check.IsExt(vm.IsNullishValue) {
			continue
		}

		pop := g.Instr(b.End)
		if pop == nil || pop.Op != vm.Popz {
			return errors.Wrap(ErrMalformed, "nullish at %d: expected popz", last.Address)
		}

		l := last.BranchTarget()

		n := &Nullish{Branch: last.Address}
		n.Start, n.End = b.Start, l

		g.handle(RoleSkip, check.Address, last.Address, pop.Address)

		if jmp := g.before(l); jmp != nil && jmp.Op == vm.B {
			lpop := g.Instr(l)
			if lpop == nil || lpop.Op != vm.Popz || jmp.BranchTarget() != lpop.End() {
				return errors.Wrap(ErrMalformed, "nullish assign at %d: bad epilogue", last.Address)
			}

			n.Assign = true
			n.End = lpop.End()

			g.handle(RoleSkip, jmp.Address, lpop.Address)

			if _, err := g.SplitBlock(n.End); err != nil {
				return errors.Wrap(err, "nullish assign at %d", last.Address)
			}
		}

		err := g.claim(n, f.ID)
		if err != nil {
			return errors.Wrap(err, "nullish at %d", last.Address)
		}
	}

	return nil
}
