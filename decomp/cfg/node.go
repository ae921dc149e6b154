package cfg

import (
	"fmt"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	NodeID int
	Kind   byte

	// Node is one control-flow graph node living in the Graph arena.
	// The set of variants is closed: Block, Fragment, the loops, Switch,
	// TryCatch, ShortCircuit, BinaryBranch, Nullish and StaticInit.
	Node interface {
		Kind() Kind
		base() *Base
	}

	// Base holds the fields every node kind shares.
	// Children of a node are contiguous and ordered by address.
	Base struct {
		ID NodeID

		Start int
		End   int

		Succs []NodeID
		Preds []NodeID

		Parent   NodeID
		Children []NodeID
	}

	Block struct {
		Base

		Code []*vm.Instruction
	}

	Fragment struct {
		Base

		Index int
		Entry vm.ChildEntry

		// Blocks are the fragment's own blocks, nested fragments excluded.
		Blocks []NodeID
	}

	WhileLoop struct {
		Base

		CondBranch int // bf exiting the loop, -1 for an infinite loop
		BackEdge   int

		// ContinueAddr is the step of a for loop, Start otherwise.
		ContinueAddr int
	}

	DoUntilLoop struct {
		Base

		BackEdge int
		Negate   bool

		ContinueAddr int
	}

	RepeatLoop struct {
		Base

		EntryBranch int
		Head        int
		Tail        int // decrement sequence, continue target
		EndPop      int // popz of the counter, break target
	}

	WithLoop struct {
		Base

		PushEnv int
		Head    int
		PopEnv  int

		BreakAddr int // popenv <exit> trampoline, -1 if unused
	}

	Switch struct {
		Base

		CaseDups     []int // dup starting each case test
		CaseBranches []int
		CaseTargets  []int
		DefaultJump  int
		DefaultAddr  int // -1 without default
		EndPop       int

		// ContinueAddr is the popz trampoline used by continue statements
		// of an enclosing loop, -1 if absent.
		ContinueAddr int
	}

	TryCatch struct {
		Base

		TryStart   int
		TryEnd     int // unhook call ending the try body
		CatchAddr  int // -1 without catch
		CatchVar   string
		CatchStart int // after exception pop and unhook
		CatchEnd   int // finish_catch call
		Finally    int
		FinallyEnd int // finish_finally call

		BreakVar    string
		ContinueVar string
	}

	ShortCircuit struct {
		Base

		Or       bool
		Branches []int
		Terminal int
	}

	BinaryBranch struct {
		Base

		CondBranch int
		Negate     bool
		ElseJump   int // -1 without else
		ElseAddr   int // -1 without else
	}

	Nullish struct {
		Base

		Branch int
		Assign bool
	}

	StaticInit struct {
		Base

		Branch int
	}
)

const (
	KindBlock Kind = iota
	KindFragment
	KindWhile
	KindDoUntil
	KindRepeat
	KindWith
	KindSwitch
	KindTryCatch
	KindShortCircuit
	KindBinaryBranch
	KindNullish
	KindStaticInit
)

const Nil NodeID = -1

var kindNames = [...]string{
	KindBlock:        "block",
	KindFragment:     "fragment",
	KindWhile:        "while",
	KindDoUntil:      "do_until",
	KindRepeat:       "repeat",
	KindWith:         "with",
	KindSwitch:       "switch",
	KindTryCatch:     "try_catch",
	KindShortCircuit: "short_circuit",
	KindBinaryBranch: "binary_branch",
	KindNullish:      "nullish",
	KindStaticInit:   "static_init",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return "kind?"
}

func (b *Base) base() *Base { return b }

func (*Block) Kind() Kind        { return KindBlock }
func (*Fragment) Kind() Kind     { return KindFragment }
func (*WhileLoop) Kind() Kind    { return KindWhile }
func (*DoUntilLoop) Kind() Kind  { return KindDoUntil }
func (*RepeatLoop) Kind() Kind   { return KindRepeat }
func (*WithLoop) Kind() Kind     { return KindWith }
func (*Switch) Kind() Kind       { return KindSwitch }
func (*TryCatch) Kind() Kind     { return KindTryCatch }
func (*ShortCircuit) Kind() Kind { return KindShortCircuit }
func (*BinaryBranch) Kind() Kind { return KindBinaryBranch }
func (*Nullish) Kind() Kind      { return KindNullish }
func (*StaticInit) Kind() Kind   { return KindStaticInit }

func (b *Base) String() string {
	return fmt.Sprintf("n%d[%d:%d]", b.ID, b.Start, b.End)
}

// BreakTarget returns where break jumps, -1 if the node is not breakable.
func BreakTarget(n Node) int {
	switch n := n.(type) {
	case *WhileLoop:
		return n.End
	case *DoUntilLoop:
		return n.End
	case *RepeatLoop:
		return n.EndPop
	case *WithLoop:
		return n.BreakAddr
	case *Switch:
		return n.EndPop
	case *TryCatch:
		return n.TryEnd
	}

	return -1
}

// ContinueTarget returns where continue jumps, -1 if unsupported.
func ContinueTarget(n Node) int {
	switch n := n.(type) {
	case *WhileLoop:
		return n.ContinueAddr
	case *DoUntilLoop:
		return n.ContinueAddr
	case *RepeatLoop:
		return n.Tail
	case *WithLoop:
		return n.PopEnv
	case *Switch:
		return n.ContinueAddr
	}

	return -1
}

func IsLoop(n Node) bool {
	switch n.(type) {
	case *WhileLoop, *DoUntilLoop, *RepeatLoop, *WithLoop:
		return true
	}

	return false
}
