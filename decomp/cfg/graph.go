package cfg

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/set"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	Role byte

	// Graph is the arena holding every node of one code entry.
	// Relationships are stored as NodeIDs, never as pointers between nodes.
	Graph struct {
		Entry *vm.CodeEntry
		Code  []*vm.Instruction

		Nodes []Node
		Root  NodeID

		Fragments []NodeID

		// Handled maps an instruction address to the role a finder gave it.
		Handled map[int]Role

		// Redirect maps a jump address to the address it really transfers to.
		Redirect map[int]int

		// Leaders are block start addresses.
		Leaders set.Bitmap

		index   map[int]int
		blockAt map[int]NodeID

		warn func(msg string)
	}
)

const (
	// RoleNone is an ordinary instruction.
	RoleNone Role = iota

	// RoleSkip instructions have no effect on the rebuilt source.
	RoleSkip

	// RoleCond branches leave their condition on the stack for the
	// structured node that owns them.
	RoleCond
)

var (
	ErrMalformed   = errors.New("malformed bytecode")
	ErrUnsupported = errors.New("unsupported control flow")
)

func New(e *vm.CodeEntry) *Graph {
	return &Graph{
		Entry:    e,
		Code:     e.Instructions,
		Handled:  map[int]Role{},
		Redirect: map[int]int{},
		index:    map[int]int{},
		blockAt:  map[int]NodeID{},
		Root:     Nil,
	}
}

// OnWarning sets the callback receiving recoverable shape warnings.
func (g *Graph) OnWarning(f func(msg string)) { g.warn = f }

func (g *Graph) warnf(f string, args ...any) {
	if g.warn != nil {
		g.warn(fmt.Sprintf(f, args...))
	}
}

func (g *Graph) Node(id NodeID) Node {
	if id < 0 || int(id) >= len(g.Nodes) {
		return nil
	}

	return g.Nodes[id]
}

func (g *Graph) Base(id NodeID) *Base {
	return g.Nodes[id].base()
}

func (g *Graph) add(n Node) NodeID {
	id := NodeID(len(g.Nodes))
	b := n.base()
	b.ID = id
	b.Parent = Nil

	g.Nodes = append(g.Nodes, n)

	return id
}

// Instr returns the instruction at addr.
func (g *Graph) Instr(addr int) *vm.Instruction {
	i, ok := g.index[addr]
	if !ok {
		return nil
	}

	return g.Code[i]
}

// Next returns the instruction following in, or nil.
func (g *Graph) Next(in *vm.Instruction) *vm.Instruction {
	i, ok := g.index[in.Address]
	if !ok || i+1 >= len(g.Code) {
		return nil
	}

	return g.Code[i+1]
}

// Prev returns the instruction preceding in, or nil.
func (g *Graph) Prev(in *vm.Instruction) *vm.Instruction {
	i, ok := g.index[in.Address]
	if !ok || i == 0 {
		return nil
	}

	return g.Code[i-1]
}

// before returns the instruction ending right at addr, or nil.
func (g *Graph) before(addr int) *vm.Instruction {
	if in := g.Instr(addr); in != nil {
		return g.Prev(in)
	}

	if l := len(g.Code); l != 0 && g.Code[l-1].End() == addr {
		return g.Code[l-1]
	}

	return nil
}

// BlockAt returns the block starting at addr.
func (g *Graph) BlockAt(addr int) (*Block, bool) {
	id, ok := g.blockAt[addr]
	if !ok {
		return nil, false
	}

	return g.Nodes[id].(*Block), true
}

// BlockContaining returns the block holding the instruction at addr.
func (g *Graph) BlockContaining(addr int) *Block {
	for _, n := range g.Nodes {
		b, ok := n.(*Block)
		if ok && b.Start <= addr && addr < b.End {
			return b
		}
	}

	return nil
}

func (g *Graph) handle(r Role, addrs ...int) {
	for _, a := range addrs {
		g.Handled[a] = r
	}
}

func (g *Graph) handled(addr int) bool {
	return g.Handled[addr] != RoleNone
}

// claim wraps the nodes covering [n.Start, n.End) into n and adds n to the arena.
// The outermost contiguous run of children matching the range is used.
func (g *Graph) claim(n Node, within NodeID) error {
	nb := n.base()
	s, e := nb.Start, nb.End

	c := within

	for {
		cb := g.Base(c)

		i := sort.Search(len(cb.Children), func(i int) bool {
			return g.Base(cb.Children[i]).End > s
		})
		if i == len(cb.Children) {
			return errors.Wrap(ErrMalformed, "claim %v [%d:%d]: no child in %v", n.Kind(), s, e, cb)
		}

		first := g.Base(cb.Children[i])

		if first.Start == s {
			j := i
			for j < len(cb.Children) && g.Base(cb.Children[j]).End < e {
				j++
			}

			if j < len(cb.Children) && g.Base(cb.Children[j]).End == e {
				g.add(n)
				g.replace(c, i, j, n)

				return nil
			}
		}

		if first.Start <= s && e <= first.End && len(first.Children) != 0 {
			c = first.ID
			continue
		}

		return errors.Wrap(ErrMalformed, "claim %v [%d:%d]: overlaps %v", n.Kind(), s, e, first)
	}
}

func (g *Graph) replace(c NodeID, i, j int, n Node) {
	cb := g.Base(c)
	nb := n.base()

	nb.Children = append([]NodeID{}, cb.Children[i:j+1]...)
	nb.Parent = c

	for _, id := range nb.Children {
		g.Base(id).Parent = nb.ID
	}

	ch := make([]NodeID, 0, len(cb.Children)-len(nb.Children)+1)
	ch = append(ch, cb.Children[:i]...)
	ch = append(ch, nb.ID)
	ch = append(ch, cb.Children[j+1:]...)
	cb.Children = ch

	g.linkExternal(n)
}

// linkExternal gives a structured node the edges crossing its range.
func (g *Graph) linkExternal(n Node) {
	nb := n.base()
	nb.Succs, nb.Preds = nil, nil

	in := func(id NodeID) bool {
		b := g.Base(id)
		return b.Start >= nb.Start && b.End <= nb.End && !(b.Start == b.End && b.Start == nb.End)
	}

	for _, id := range g.blocksOf(nb.ID) {
		b := g.Base(id)

		for _, p := range b.Preds {
			if !in(p) {
				nb.Preds = appendUnique(nb.Preds, p)
			}
		}

		for _, s := range b.Succs {
			if !in(s) {
				nb.Succs = appendUnique(nb.Succs, s)
			}
		}
	}
}

// blocksOf returns every block below id in address order.
func (g *Graph) blocksOf(id NodeID) (r []NodeID) {
	var walk func(id NodeID)
	walk = func(id NodeID) {
		if _, ok := g.Nodes[id].(*Block); ok {
			r = append(r, id)
			return
		}

		for _, c := range g.Base(id).Children {
			walk(c)
		}
	}

	walk(id)

	return r
}

// Flatten returns instructions in tree order.
// It must equal the original instruction order.
func (g *Graph) Flatten() (r []*vm.Instruction) {
	for _, id := range g.blocksOf(g.Root) {
		r = append(r, g.Nodes[id].(*Block).Code...)
	}

	return r
}

// Enclosing returns ancestors of id from the innermost up to the fragment.
func (g *Graph) Enclosing(id NodeID) (r []Node) {
	for p := g.Base(id).Parent; p != Nil; p = g.Base(p).Parent {
		r = append(r, g.Nodes[p])

		if _, ok := g.Nodes[p].(*Fragment); ok {
			break
		}
	}

	return r
}

// FragmentOf returns the fragment holding node id.
func (g *Graph) FragmentOf(id NodeID) *Fragment {
	for p := id; p != Nil; p = g.Base(p).Parent {
		if f, ok := g.Nodes[p].(*Fragment); ok {
			return f
		}
	}

	return nil
}

func (g *Graph) Dump(w io.Writer) {
	var dump func(id NodeID, d int)
	dump = func(id NodeID, d int) {
		n := g.Nodes[id]
		b := n.base()
		pad := strings.Repeat("  ", d)

		fmt.Fprintf(w, "%s%v %v succs=%v preds=%v\n", pad, n.Kind(), b, b.Succs, b.Preds)

		if blk, ok := n.(*Block); ok {
			for _, in := range blk.Code {
				fmt.Fprintf(w, "%s  %v\n", pad, in)
			}

			return
		}

		for _, c := range b.Children {
			dump(c, d+1)
		}
	}

	dump(g.Root, 0)
}

func appendUnique(s []NodeID, id NodeID) []NodeID {
	for _, x := range s {
		if x == id {
			return s
		}
	}

	return append(s, id)
}
