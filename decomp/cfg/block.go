package cfg

import (
	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/set"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

// FindBlocks splits the instruction stream into basic blocks and creates
// the root fragment holding all of them.
//
// Conditional blocks store the fall-through edge first and the branch
// target second. Every finder relies on that order.
func (g *Graph) FindBlocks() (err error) {
	end := g.Entry.End()

	for i, in := range g.Code {
		g.index[in.Address] = i
	}

	cuts := set.MakeBitmap(end + 1)
	if len(g.Code) != 0 {
		cuts.Set(g.Code[0].Address)
	}

	for _, in := range g.Code {
		if in.IsBlockEnd() {
			cuts.Set(in.End())
		}

		if !in.HasTarget() {
			continue
		}

		t := in.BranchTarget()

		if _, ok := g.index[t]; !ok && t != end {
			return errors.Wrap(ErrMalformed, "branch at %d to %d: no such instruction", in.Address, t)
		}

		cuts.Set(t)
	}

	root := &Fragment{Entry: vm.ChildEntry{
		Name:       g.Entry.Name,
		ArgCount:   g.Entry.ArgCount,
		LocalCount: g.Entry.LocalCount,
	}}

	g.Root = g.add(root)
	root.Start, root.End = 0, end
	if len(g.Code) != 0 {
		root.Start = g.Code[0].Address
	}

	g.Fragments = append(g.Fragments, g.Root)

	var cur *Block

	for _, in := range g.Code {
		if cuts.IsSet(in.Address) || cur == nil {
			cur = g.newBlock(in.Address)
		}

		cur.Code = append(cur.Code, in)
		cur.End = in.End()
	}

	// empty block terminating the code, target of trailing jumps
	g.newBlock(end)
	cuts.Set(end)

	for _, id := range root.Children {
		g.linkBlock(g.Nodes[id].(*Block))
	}

	root.Blocks = append([]NodeID{}, root.Children...)
	g.Leaders = cuts

	return nil
}

func (g *Graph) newBlock(addr int) *Block {
	b := &Block{}
	b.Start, b.End = addr, addr

	id := g.add(b)
	b.Parent = g.Root

	root := g.Base(g.Root)
	root.Children = append(root.Children, id)

	g.blockAt[addr] = id

	return b
}

func (g *Graph) linkBlock(b *Block) {
	if len(b.Code) == 0 {
		return
	}

	last := b.Code[len(b.Code)-1]

	next, hasNext := g.blockAt[b.End]

	switch {
	case last.Op == vm.Ret || last.Op == vm.Exit:
	case last.Op == vm.B:
		g.link(b.ID, g.blockAt[last.BranchTarget()])
	case last.HasTarget():
		if hasNext {
			g.link(b.ID, next)
		}

		g.link(b.ID, g.blockAt[last.BranchTarget()])
	case hasNext:
		g.link(b.ID, next)
	}
}

func (g *Graph) link(from, to NodeID) {
	f, t := g.Base(from), g.Base(to)

	f.Succs = append(f.Succs, to)
	t.Preds = append(t.Preds, from)
}

func (g *Graph) unlink(from, to NodeID) {
	f, t := g.Base(from), g.Base(to)

	f.Succs = removeID(f.Succs, to)
	t.Preds = removeID(t.Preds, from)
}

// SplitBlock cuts the block containing addr so that a new block starts there.
func (g *Graph) SplitBlock(addr int) (*Block, error) {
	if b, ok := g.BlockAt(addr); ok {
		return b, nil
	}

	old := g.BlockContaining(addr)
	if old == nil {
		return nil, errors.Wrap(ErrMalformed, "split at %d: no block", addr)
	}

	k := 0
	for k < len(old.Code) && old.Code[k].Address < addr {
		k++
	}

	if k == len(old.Code) || old.Code[k].Address != addr {
		return nil, errors.Wrap(ErrMalformed, "split at %d: not an instruction boundary", addr)
	}

	if !g.Leaders.Add(addr) {
		return nil, errors.Wrap(ErrMalformed, "split at %d: leader without a block", addr)
	}

	nb := &Block{Code: old.Code[k:len(old.Code):len(old.Code)]}
	nb.Start, nb.End = addr, old.End
	old.Code = old.Code[:k:k]
	old.End = addr

	id := g.add(nb)
	g.blockAt[addr] = id

	nb.Succs, old.Succs = old.Succs, nil

	for _, s := range nb.Succs {
		sb := g.Base(s)
		for i, p := range sb.Preds {
			if p == old.ID {
				sb.Preds[i] = id
			}
		}
	}

	g.link(old.ID, id)

	parent := g.Base(old.Parent)
	nb.Parent = old.Parent
	parent.Children = insertAfter(parent.Children, old.ID, id)

	if f := g.FragmentOf(old.ID); f != nil {
		f.Blocks = insertAfter(f.Blocks, old.ID, id)
	}

	return nb, nil
}

// Blocks returns the fragment's blocks in address order.
func (g *Graph) Blocks(f *Fragment) []*Block {
	r := make([]*Block, 0, len(f.Blocks))

	for _, id := range f.Blocks {
		r = append(r, g.Nodes[id].(*Block))
	}

	return r
}

// Last returns the block's final instruction, nil for an empty block.
func (b *Block) Last() *vm.Instruction {
	if len(b.Code) == 0 {
		return nil
	}

	return b.Code[len(b.Code)-1]
}

func removeID(s []NodeID, id NodeID) []NodeID {
	for i, x := range s {
		if x == id {
			return append(s[:i:i], s[i+1:]...)
		}
	}

	return s
}

func insertAfter(s []NodeID, after, id NodeID) []NodeID {
	for i, x := range s {
		if x == after {
			r := make([]NodeID, 0, len(s)+1)
			r = append(r, s[:i+1]...)
			r = append(r, id)
			r = append(r, s[i+1:]...)

			return r
		}
	}

	return append(s, id)
}
