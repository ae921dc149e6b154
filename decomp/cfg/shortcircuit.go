package cfg

import (
	"sort"

	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	// ShortCircuitRecord is one detected && or || chain, waiting to be
	// folded by InsertShortCircuits.
	ShortCircuitRecord struct {
		Fragment NodeID

		Start, End int

		Or        bool
		Branches  []int
		FinalJump int
		Terminal  int
	}
)

// FindShortCircuits locates && and || chains:
//
//	<a>; bf F; <b>; bf F; <c>; b E; F: push.e 0; E:
//
// || uses bt and pushes 1.
// Chain instructions are marked handled so the loop finder leaves them
// alone, the nodes are created later by InsertShortCircuits.
func (g *Graph) FindShortCircuits(f *Fragment) (recs []ShortCircuitRecord, err error) {
	for _, t := range g.Blocks(f) {
		if len(t.Code) != 1 {
			continue
		}

		v, ok := pushedBool(t.Code[0])
		if !ok {
			continue
		}

		jmp := g.before(t.Start)
		if jmp == nil || jmp.Op != vm.B || jmp.BranchTarget() != t.End || g.handled(jmp.Address) {
			continue
		}

		want := vm.Bf
		if v {
			want = vm.Bt
		}

		var branches []int
		match := len(t.Preds) != 0

		for _, p := range t.Preds {
			last := g.Base(p).End

			in := g.before(last)
			if in == nil || in.Op != want || in.BranchTarget() != t.Start || g.handled(in.Address) {
				match = false
				break
			}

			branches = append(branches, in.Address)
		}

		if !match {
			continue
		}

		sort.Ints(branches)

		first := g.BlockContaining(branches[0])

		g.handle(RoleCond, branches...)
		g.handle(RoleSkip, jmp.Address, t.Start)

		recs = append(recs, ShortCircuitRecord{
			Fragment:  f.ID,
			Start:     first.Start,
			End:       t.End,
			Or:        v,
			Branches:  branches,
			FinalJump: jmp.Address,
			Terminal:  t.Start,
		})
	}

	return recs, nil
}

// InsertShortCircuits folds detected chains into ShortCircuit nodes,
// innermost first.
func (g *Graph) InsertShortCircuits(recs []ShortCircuitRecord) error {
	recs = append([]ShortCircuitRecord{}, recs...)

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].End < recs[j].End
	})

	for _, r := range recs {
		n := &ShortCircuit{
			Or:       r.Or,
			Branches: r.Branches,
			Terminal: r.Terminal,
		}
		n.Start, n.End = r.Start, r.End

		err := g.claim(n, r.Fragment)
		if err != nil {
			return errors.Wrap(err, "short circuit at %d", r.Start)
		}
	}

	return nil
}

func pushedBool(in *vm.Instruction) (v bool, ok bool) {
	// pushi.e is an ordinary literal; short circuits use push.e
	if in.Op != vm.Push {
		return false, false
	}

	if b, ok := in.Value.(bool); ok {
		return b, true
	}

	if in.Type1 != vm.Int16 {
		return false, false
	}

	x, ok := in.IntValue()
	if !ok || x != 0 && x != 1 {
		return false, false
	}

	return x == 1, true
}

func (r ShortCircuitRecord) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 4)
	b = e.AppendKeyInt(b, "start", r.Start)
	b = e.AppendKeyInt(b, "end", r.End)
	b = e.AppendKeyInt(b, "conds", len(r.Branches)+1)

	or := 0
	if r.Or {
		or = 1
	}

	b = e.AppendKeyInt(b, "or", or)

	return b
}
