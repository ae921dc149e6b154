package vm

import (
	"tlog.app/go/errors"
)

type (
	// Asm builds address-stamped instruction lists with symbolic branch labels.
	Asm struct {
		code   []*Instruction
		addr   int
		labels map[string]int
		fixups []fixup
	}

	fixup struct {
		in    *Instruction
		label string
		value bool
	}
)

func NewAsm() *Asm {
	return &Asm{labels: map[string]int{}}
}

func (a *Asm) Addr() int { return a.addr }

func (a *Asm) Label(name string) *Asm {
	a.labels[name] = a.addr
	return a
}

func (a *Asm) Instr(in *Instruction) *Asm {
	in.Address = a.addr
	a.addr += in.Size()
	a.code = append(a.code, in)

	return a
}

func (a *Asm) Branch(op Opcode, label string) *Asm {
	in := &Instruction{Op: op}
	a.fixups = append(a.fixups, fixup{in: in, label: label})

	return a.Instr(in)
}

func (a *Asm) B(label string) *Asm  { return a.Branch(B, label) }
func (a *Asm) Bt(label string) *Asm { return a.Branch(Bt, label) }
func (a *Asm) Bf(label string) *Asm { return a.Branch(Bf, label) }

func (a *Asm) PushEnv(label string) *Asm { return a.Branch(PushEnv, label) }
func (a *Asm) PopEnv(label string) *Asm  { return a.Branch(PopEnv, label) }

func (a *Asm) PopEnvExit() *Asm {
	return a.Instr(&Instruction{Op: PopEnv, PopEnvExit: true})
}

func (a *Asm) PushI(v int16) *Asm {
	return a.Instr(&Instruction{Op: PushI, Type1: Int16, Value: v})
}

// PushE emits push.e, the short circuit terminal form of an int16 literal.
func (a *Asm) PushE(v int16) *Asm {
	return a.Instr(&Instruction{Op: Push, Type1: Int16, Value: v})
}

func (a *Asm) PushInt32(v int32) *Asm {
	return a.Instr(&Instruction{Op: Push, Type1: Int32, Value: v})
}

func (a *Asm) PushInt64(v int64) *Asm {
	return a.Instr(&Instruction{Op: Push, Type1: Int64, Value: v})
}

func (a *Asm) PushDouble(v float64) *Asm {
	return a.Instr(&Instruction{Op: Push, Type1: Double, Value: v})
}

func (a *Asm) PushString(v string) *Asm {
	return a.Instr(&Instruction{Op: Push, Type1: String, Value: v})
}

func (a *Asm) PushBool(v bool) *Asm {
	return a.Instr(&Instruction{Op: Push, Type1: Bool, Value: v})
}

// PushAddr pushes the address of a label as an int32 literal.
func (a *Asm) PushAddr(label string) *Asm {
	in := &Instruction{Op: Push, Type1: Int32, Value: int32(0)}
	a.fixups = append(a.fixups, fixup{in: in, label: label, value: true})

	return a.Instr(in)
}

// PushFunc pushes a reference to a function by its entry name.
func (a *Asm) PushFunc(name string) *Asm {
	return a.Instr(&Instruction{Op: Push, Type1: Int32, Func: name})
}

func (a *Asm) PushVar(inst InstanceType, name string) *Asm {
	return a.PushRef(&VarRef{Name: name, Instance: inst})
}

func (a *Asm) PushRef(v *VarRef) *Asm {
	op := Push

	switch {
	case v.Ref != RefNormal:
	case v.Instance == Local:
		op = PushLoc
	case v.Instance == Global:
		op = PushGlb
	case v.Instance == Builtin:
		op = PushBltn
	}

	return a.Instr(&Instruction{Op: op, Type1: Variable, Var: v})
}

func (a *Asm) PopVar(inst InstanceType, name string, t DataType) *Asm {
	return a.Pop(&VarRef{Name: name, Instance: inst}, Variable, t)
}

func (a *Asm) Pop(v *VarRef, t1, t2 DataType) *Asm {
	return a.Instr(&Instruction{Op: Pop, Type1: t1, Type2: t2, Var: v})
}

func (a *Asm) Popz(t DataType) *Asm {
	return a.Instr(&Instruction{Op: Popz, Type1: t})
}

func (a *Asm) Dup(t DataType, n int) *Asm {
	return a.Instr(&Instruction{Op: Dup, Type1: t, DupSize: n})
}

func (a *Asm) Conv(from, to DataType) *Asm {
	return a.Instr(&Instruction{Op: Conv, Type1: from, Type2: to})
}

func (a *Asm) Op(op Opcode, t1, t2 DataType) *Asm {
	return a.Instr(&Instruction{Op: op, Type1: t1, Type2: t2})
}

func (a *Asm) Cmp(k CmpKind, t1, t2 DataType) *Asm {
	return a.Instr(&Instruction{Op: Cmp, Type1: t1, Type2: t2, Cmp: k})
}

func (a *Asm) Call(name string, argc int) *Asm {
	return a.Instr(&Instruction{Op: Call, Type1: Int32, Func: name, ArgCount: argc})
}

func (a *Asm) CallV(argc int) *Asm {
	return a.Instr(&Instruction{Op: CallV, Type1: Variable, ArgCount: argc})
}

func (a *Asm) Ext(x ExtendedOp) *Asm {
	t := Int16
	if x == PushReference {
		t = Int32
	}

	return a.Instr(&Instruction{Op: Extended, Type1: t, Ext: x})
}

func (a *Asm) PushAsset(typ string, idx int) *Asm {
	return a.Instr(&Instruction{Op: Extended, Type1: Int32, Ext: PushReference, Asset: &AssetRef{Type: typ, Index: idx}})
}

func (a *Asm) Ret() *Asm  { return a.Instr(&Instruction{Op: Ret, Type1: Variable}) }
func (a *Asm) Exit() *Asm { return a.Instr(&Instruction{Op: Exit, Type1: Int32}) }

// Assemble resolves branch labels and returns the instructions.
func (a *Asm) Assemble() ([]*Instruction, error) {
	for _, f := range a.fixups {
		addr, ok := a.labels[f.label]
		if !ok {
			return nil, errors.New("undefined label: %v", f.label)
		}

		if f.value {
			f.in.Value = int32(addr)
			continue
		}

		f.in.BranchOffset = addr - f.in.End()
	}

	return a.code, nil
}

// LabelAddr returns the address a label was placed at.
func (a *Asm) LabelAddr(name string) (int, bool) {
	addr, ok := a.labels[name]
	return addr, ok
}

func (a *Asm) MustAssemble() []*Instruction {
	code, err := a.Assemble()
	if err != nil {
		panic(err)
	}

	return code
}
