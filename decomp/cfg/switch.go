package cfg

import (
	"sort"

	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	SwitchRecord struct {
		Fragment NodeID
		Switch   *Switch
	}
)

// FindSwitches locates switch statements without changing the graph:
//
//	<expr>; dup.v 0; <case>; cmp.EQ; bt C1; ...; b D
//	C1: <body>; ...; D: <default>
//	[b End; Cont: popz.v; b <loop continue>]
//	End: popz.v
func (g *Graph) FindSwitches(f *Fragment) (recs []SwitchRecord, err error) {
	for _, b := range g.Blocks(f) {
		if len(b.Code) != 1 || b.Code[0].Op != vm.B || g.handled(b.Code[0].Address) {
			continue
		}

		jmp := b.Code[0]

		last := g.before(b.Start)
		if !g.isCaseBranch(last) {
			continue
		}

		s := &Switch{
			DefaultJump:  jmp.Address,
			DefaultAddr:  -1,
			ContinueAddr: -1,
		}

		for bt := last; g.isCaseBranch(bt); {
			dup := g.caseDup(bt)
			if dup == nil {
				return nil, errors.Wrap(ErrMalformed, "switch case at %d: no dup", bt.Address)
			}

			s.CaseDups = append(s.CaseDups, dup.Address)
			s.CaseBranches = append(s.CaseBranches, bt.Address)
			s.CaseTargets = append(s.CaseTargets, bt.BranchTarget())

			bt = g.Prev(dup)
		}

		reverse(s.CaseDups)
		reverse(s.CaseBranches)
		reverse(s.CaseTargets)

		d := jmp.BranchTarget()

		if in := g.Instr(d); in != nil && in.Op == vm.Popz && g.isBlockStart(d) {
			s.EndPop = d
		} else {
			s.DefaultAddr = d
			s.EndPop, s.ContinueAddr = g.switchEnd(f, d)
		}

		if s.EndPop < 0 {
			return nil, errors.Wrap(ErrMalformed, "switch at %d: no end", s.CaseDups[0])
		}

		if s.ContinueAddr < 0 {
			s.ContinueAddr = g.continueTrampoline(s.EndPop)
		}

		s.Start = s.CaseDups[0]
		s.End = g.Instr(s.EndPop).End()

		recs = append(recs, SwitchRecord{Fragment: f.ID, Switch: s})
	}

	return recs, nil
}

// InsertSwitches claims detected switches, innermost first.
func (g *Graph) InsertSwitches(recs []SwitchRecord) error {
	recs = append([]SwitchRecord{}, recs...)

	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Switch, recs[j].Switch
		if a.End != b.End {
			return a.End < b.End
		}

		return a.Start > b.Start
	})

	for _, r := range recs {
		s := r.Switch

		for _, a := range []int{s.Start, s.EndPop, s.End} {
			if a == g.Entry.End() {
				continue
			}

			if _, err := g.SplitBlock(a); err != nil {
				return errors.Wrap(err, "switch at %d", s.Start)
			}
		}

		for i, bt := range s.CaseBranches {
			cmp := g.Prev(g.Instr(bt))

			g.handle(RoleSkip, s.CaseDups[i], cmp.Address, bt)
		}

		g.handle(RoleSkip, s.DefaultJump, s.EndPop)

		if s.ContinueAddr >= 0 {
			tramp := g.Instr(s.ContinueAddr)

			g.handle(RoleSkip, g.Prev(tramp).Address, tramp.Address, g.Next(tramp).Address)
		}

		err := g.claim(s, r.Fragment)
		if err != nil {
			return errors.Wrap(err, "switch at %d", s.Start)
		}
	}

	return nil
}

func (g *Graph) isCaseBranch(in *vm.Instruction) bool {
	if in == nil || in.Op != vm.Bt || g.handled(in.Address) {
		return false
	}

	cmp := g.Prev(in)

	return cmp != nil && cmp.Op == vm.Cmp && cmp.Cmp == vm.CmpEQ
}

// caseDup finds the dup starting the case test ending with bt.
// Case labels are constants so the nearest dup is the one.
func (g *Graph) caseDup(bt *vm.Instruction) *vm.Instruction {
	for in := g.Prev(g.Prev(bt)); in != nil; in = g.Prev(in) {
		if in.Op == vm.Dup && in.DupSize == 0 {
			return in
		}

		if in.IsBlockEnd() {
			return nil
		}
	}

	return nil
}

// switchEnd finds the counter pop closing a switch whose last label starts at from.
// It skips the continue trampoline if there is one.
func (g *Graph) switchEnd(f *Fragment, from int) (end, cont int) {
	for addr := from; addr < f.End; {
		in := g.Instr(addr)
		addr = in.End()

		if in.Op != vm.Popz || in.Type1 != vm.Variable || !g.isBlockStart(in.Address) || g.handled(in.Address) {
			continue
		}

		t := g.continueTrampoline(in.Address)
		if t == in.Address {
			continue
		}

		return in.Address, t
	}

	return -1, -1
}

// continueTrampoline matches `b End; Cont: popz.v; b <continue>; End: popz.v`
// and returns Cont, or -1.
// end may be either Cont or End.
func (g *Graph) continueTrampoline(end int) int {
	pop := g.Instr(end)
	if pop == nil {
		return -1
	}

	if next := g.Next(pop); next != nil && next.Op == vm.B {
		jmp := g.Prev(pop)
		if jmp != nil && jmp.Op == vm.B && jmp.BranchTarget() == next.End() {
			return pop.Address
		}
	}

	skip := g.Prev(pop)
	if skip == nil || skip.Op != vm.B {
		return -1
	}

	tramp := g.Prev(skip)
	if tramp == nil || tramp.Op != vm.Popz {
		return -1
	}

	jmp := g.Prev(tramp)
	if jmp == nil || jmp.Op != vm.B || jmp.BranchTarget() != end {
		return -1
	}

	return tramp.Address
}

func (g *Graph) isBlockStart(addr int) bool {
	_, ok := g.BlockAt(addr)
	return ok
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
