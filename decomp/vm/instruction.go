package vm

import (
	"fmt"
	"strings"
)

type (
	// Instruction is one decoded VM instruction.
	// It is supplied by the decoder and never mutated afterwards.
	Instruction struct {
		Op      Opcode
		Type1   DataType
		Type2   DataType
		Address int

		// BranchOffset is relative to the end of the instruction.
		BranchOffset int

		Value any // int16, int32, int64, float64, bool, string

		Var   *VarRef
		Func  string
		Asset *AssetRef

		ArgCount int
		DupSize  int
		Cmp      CmpKind
		Ext      ExtendedOp

		// PopEnvExit marks the popenv emitted on early exit from a with loop.
		PopEnvExit bool
	}

	VarRef struct {
		Name     string
		Instance InstanceType
		Ref      RefKind
	}

	AssetRef struct {
		Type  string
		Index int
	}

	CodeEntry struct {
		Name string

		Instructions []*Instruction
		Children     []ChildEntry

		ArgCount   int
		LocalCount int
	}

	// ChildEntry describes a function body compiled inline into its parent.
	ChildEntry struct {
		Name         string
		FunctionName string `yaml:"function"`
		Start        int

		ArgCount   int      `yaml:"args"`
		LocalCount int      `yaml:"locals"`
		ArgNames   []string `yaml:"argnames"`

		Struct bool
	}
)

func (in *Instruction) Size() int {
	switch in.Op {
	case Push, PushLoc, PushGlb, PushBltn:
		switch in.Type1 {
		case Int16:
			return 4
		case Int64, Double:
			return 12
		}

		return 8
	case Pop, Call:
		return 8
	case Extended:
		if in.Ext == PushReference {
			return 8
		}
	}

	return 4
}

func (in *Instruction) End() int {
	return in.Address + in.Size()
}

func (in *Instruction) BranchTarget() int {
	return in.End() + in.BranchOffset
}

// IsBlockEnd reports whether a basic block must end after the instruction.
func (in *Instruction) IsBlockEnd() bool {
	switch in.Op {
	case Ret, Exit:
		return true
	case PopEnv:
		return !in.PopEnvExit
	}

	return in.Op.IsBranch()
}

// HasTarget reports whether the instruction carries a branch target.
func (in *Instruction) HasTarget() bool {
	if in.Op == PopEnv {
		return !in.PopEnvExit
	}

	return in.Op.IsBranch()
}

func (in *Instruction) IsCall(name string) bool {
	return in.Op == Call && in.Func == name
}

func (in *Instruction) IsExt(x ExtendedOp) bool {
	return in.Op == Extended && in.Ext == x
}

// IntValue returns a pushed integer literal.
func (in *Instruction) IntValue() (int64, bool) {
	switch v := in.Value.(type) {
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}

	return 0, false
}

func (in *Instruction) IsPushInt(v int64) bool {
	if in.Op != Push && in.Op != PushI {
		return false
	}

	x, ok := in.IntValue()

	return ok && x == v
}

func (in *Instruction) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%5d: %v", in.Address, in.Op)

	switch in.Op {
	case Conv, Mul, Div, Rem, Mod, Add, Sub, And, Or, Xor, Shl, Shr, Pop:
		fmt.Fprintf(&b, ".%v.%v", in.Type1, in.Type2)
	case Cmp:
		fmt.Fprintf(&b, ".%v.%v %v", in.Type1, in.Type2, in.Cmp)
	case Neg, Not, Ret, Exit, Popz, Push, PushLoc, PushGlb, PushBltn, PushI, Call, CallV:
		fmt.Fprintf(&b, ".%v", in.Type1)
	case Dup:
		fmt.Fprintf(&b, ".%v %d", in.Type1, in.DupSize)
	case Extended:
		fmt.Fprintf(&b, " %v", in.Ext)
	}

	switch {
	case in.HasTarget():
		fmt.Fprintf(&b, " -> %d", in.BranchTarget())
	case in.Op == PopEnv:
		b.WriteString(" <exit>")
	case in.Var != nil:
		fmt.Fprintf(&b, " %v", in.Var)
	case in.Func != "":
		fmt.Fprintf(&b, " %s", in.Func)

		if in.Op == Call {
			fmt.Fprintf(&b, "(argc=%d)", in.ArgCount)
		}
	case in.Op == CallV:
		fmt.Fprintf(&b, " %d", in.ArgCount)
	case in.Asset != nil:
		fmt.Fprintf(&b, " %s:%d", in.Asset.Type, in.Asset.Index)
	case in.Value != nil:
		fmt.Fprintf(&b, " %v", in.Value)
	}

	return b.String()
}

func (v *VarRef) String() string {
	switch v.Ref {
	case RefArray:
		return fmt.Sprintf("[array]%v.%s", v.Instance, v.Name)
	case RefStackTop:
		return fmt.Sprintf("[stacktop]%v.%s", v.Instance, v.Name)
	case RefMultiPush, RefMultiPushPop:
		return fmt.Sprintf("[multi]%v.%s", v.Instance, v.Name)
	}

	return fmt.Sprintf("%v.%s", v.Instance, v.Name)
}

// End is the address just past the last instruction.
func (e *CodeEntry) End() int {
	if len(e.Instructions) == 0 {
		return 0
	}

	return e.Instructions[len(e.Instructions)-1].End()
}

func (e *CodeEntry) ChildAt(addr int) (ChildEntry, bool) {
	for _, c := range e.Children {
		if c.Start == addr {
			return c, true
		}
	}

	return ChildEntry{}, false
}

func (e *CodeEntry) ChildByName(name string) (ChildEntry, bool) {
	for _, c := range e.Children {
		if c.Name == name {
			return c, true
		}
	}

	return ChildEntry{}, false
}
