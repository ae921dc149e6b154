package cfg

import (
	"sort"

	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

// FindFragments carves nested function bodies out of the root fragment.
// The compiler jumps over every inline body: `b after` directly followed
// by the child entry's first instruction.
func (g *Graph) FindFragments() error {
	var found []*Fragment

	for _, in := range g.Code {
		if in.Op != vm.B {
			continue
		}

		next := g.Next(in)
		if next == nil {
			continue
		}

		child, ok := g.Entry.ChildAt(next.Address)
		if !ok {
			continue
		}

		end := in.BranchTarget()
		if end <= next.Address {
			return errors.Wrap(ErrMalformed, "fragment %v: skip branch at %d goes backwards", child.Name, in.Address)
		}

		f := &Fragment{Entry: child}
		f.Start, f.End = next.Address, end

		g.handle(RoleSkip, in.Address)

		found = append(found, f)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Start < found[j].Start
	})

	for i, f := range found {
		f.Index = i + 1

		err := g.claim(f, g.Root)
		if err != nil {
			return errors.Wrap(err, "fragment %v", f.Entry.Name)
		}

		g.Fragments = append(g.Fragments, f.ID)
	}

	for _, id := range g.Fragments {
		f := g.Nodes[id].(*Fragment)
		f.Blocks = g.ownBlocks(id)
	}

	return nil
}

func (g *Graph) ownBlocks(id NodeID) (r []NodeID) {
	for _, c := range g.Base(id).Children {
		switch g.Nodes[c].(type) {
		case *Block:
			r = append(r, c)
		case *Fragment:
		default:
			r = append(r, g.ownBlocks(c)...)
		}
	}

	return r
}

// FragmentList returns fragments in discovery order, root first.
func (g *Graph) FragmentList() []*Fragment {
	r := make([]*Fragment, len(g.Fragments))

	for i, id := range g.Fragments {
		r[i] = g.Nodes[id].(*Fragment)
	}

	return r
}
