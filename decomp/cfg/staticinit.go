package cfg

import (
	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

// FindStaticInits detects the first-run guard around static variables:
//
//	isstaticok; bt end; <body>; setstatic; end:
func (g *Graph) FindStaticInits(f *Fragment) error {
	for _, b := range g.Blocks(f) {
		last := b.Last()
		if last == nil || last.Op != vm.Bt || g.handled(last.Address) {
			continue
		}

		prev := g.Prev(last)
		if prev == nil || !prev.IsExt(vm.HasStaticInitialized) {
			continue
		}

		end := last.BranchTarget()

		endBlock, ok := g.BlockAt(end)
		if !ok || end <= b.End {
			return errors.Wrap(ErrMalformed, "static init at %d: bad target %d", last.Address, end)
		}

		set := g.before(endBlock.Start)

		if set == nil || !set.IsExt(vm.SetStaticInitialized) {
			return errors.Wrap(ErrMalformed, "static init at %d: no setstatic before %d", last.Address, end)
		}

		s := &StaticInit{Branch: last.Address}
		s.Start, s.End = b.End, end

		g.handle(RoleSkip, prev.Address, last.Address, set.Address)

		err := g.claim(s, f.ID)
		if err != nil {
			return errors.Wrap(err, "static init at %d", last.Address)
		}
	}

	return nil
}
