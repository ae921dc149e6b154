package vm

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"
)

// Text appends instructions written one per line as
//
//	loop:
//	push.v self.x
//	pushi.e 1
//	add.i.v
//	pop.v.v self.x
//	b loop
//
// Operands follow the disassembly form of Instruction.String with label
// names instead of branch addresses.
func (a *Asm) Text(lines ...string) error {
	for i, l := range lines {
		err := a.line(strings.TrimSpace(l))
		if err != nil {
			return errors.Wrap(err, "line %d: %q", i+1, l)
		}
	}

	return nil
}

func (a *Asm) line(l string) (err error) {
	if l == "" || strings.HasPrefix(l, "#") {
		return nil
	}

	if strings.HasSuffix(l, ":") && !strings.ContainsAny(l, " \t") {
		a.Label(strings.TrimSuffix(l, ":"))
		return nil
	}

	mn, arg, _ := strings.Cut(l, " ")
	arg = strings.TrimSpace(arg)

	name, types, _ := strings.Cut(mn, ".")

	op, ok := ParseOpcode(name)
	if !ok {
		return errors.New("unknown opcode: %v", name)
	}

	var t [2]DataType

	if types != "" {
		for i, s := range strings.SplitN(types, ".", 2) {
			if t[i], ok = ParseDataType(s); !ok {
				return errors.New("unknown type: %v", s)
			}
		}
	}

	switch op {
	case Conv, Mul, Div, Rem, Mod, Add, Sub, And, Or, Xor, Shl, Shr:
		a.Instr(&Instruction{Op: op, Type1: t[0], Type2: t[1]})
	case Neg, Not, Ret, Exit, Popz:
		a.Instr(&Instruction{Op: op, Type1: t[0]})
	case Cmp:
		k, ok := ParseCmpKind(arg)
		if !ok {
			return errors.New("bad comparison: %v", arg)
		}

		a.Cmp(k, t[0], t[1])
	case Dup:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return errors.Wrap(err, "dup size")
		}

		a.Dup(t[0], n)
	case B, Bt, Bf, PushEnv:
		if arg == "" {
			return errors.New("label expected")
		}

		a.Branch(op, arg)
	case PopEnv:
		if arg == "<exit>" {
			a.PopEnvExit()
		} else {
			a.PopEnv(arg)
		}
	case Pop:
		v, err := ParseVarRef(arg)
		if err != nil {
			return err
		}

		a.Pop(v, t[0], t[1])
	case PushI:
		v, err := strconv.ParseInt(arg, 10, 16)
		if err != nil {
			return errors.Wrap(err, "pushi value")
		}

		a.PushI(int16(v))
	case Push, PushLoc, PushGlb, PushBltn:
		return a.push(op, t[0], arg)
	case Call:
		fn, argc, _ := strings.Cut(arg, " ")

		n, err := strconv.Atoi(strings.TrimSpace(argc))
		if err != nil {
			return errors.Wrap(err, "argument count")
		}

		a.Call(fn, n)
	case CallV:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return errors.Wrap(err, "argument count")
		}

		a.CallV(n)
	case Extended:
		return a.ext(arg)
	default:
		return errors.New("unsupported opcode: %v", op)
	}

	return nil
}

func (a *Asm) push(op Opcode, t DataType, arg string) error {
	switch {
	case t == Variable:
		v, err := ParseVarRef(arg)
		if err != nil {
			return err
		}

		a.Instr(&Instruction{Op: op, Type1: Variable, Var: v})

		return nil
	case t == Int32 && strings.HasPrefix(arg, "@"):
		a.PushAddr(arg[1:])
		return nil
	case t == Int32 && strings.HasPrefix(arg, "fn:"):
		a.PushFunc(arg[3:])
		return nil
	}

	var v any
	var err error

	switch t {
	case Int16:
		var x int64
		x, err = strconv.ParseInt(arg, 10, 16)
		v = int16(x)
	case Int32:
		var x int64
		x, err = strconv.ParseInt(arg, 10, 32)
		v = int32(x)
	case Int64:
		v, err = strconv.ParseInt(arg, 10, 64)
	case Double:
		v, err = strconv.ParseFloat(arg, 64)
	case Bool:
		v, err = strconv.ParseBool(arg)
	case String:
		v, err = strconv.Unquote(arg)
	default:
		return errors.New("unsupported push type: %v", t)
	}

	if err != nil {
		return errors.Wrap(err, "push value")
	}

	a.Instr(&Instruction{Op: op, Type1: t, Value: v})

	return nil
}

func (a *Asm) ext(arg string) error {
	name, rest, _ := strings.Cut(arg, " ")

	x, ok := ParseExtendedOp(name)
	if !ok {
		return errors.New("unknown extended op: %v", name)
	}

	if x != PushReference || rest == "" {
		a.Ext(x)
		return nil
	}

	typ, idx, ok := strings.Cut(strings.TrimSpace(rest), ":")
	if !ok {
		return errors.New("asset expected: %v", rest)
	}

	n, err := strconv.Atoi(idx)
	if err != nil {
		return errors.Wrap(err, "asset index")
	}

	a.PushAsset(typ, n)

	return nil
}

// ParseVarRef parses the VarRef.String form, like [array]self.x or 3.hp.
func ParseVarRef(s string) (*VarRef, error) {
	v := &VarRef{}

	for _, p := range []struct {
		prefix string
		ref    RefKind
	}{
		{"[array]", RefArray},
		{"[stacktop]", RefStackTop},
		{"[multi]", RefMultiPush},
		{"[multipop]", RefMultiPushPop},
	} {
		if rest, ok := strings.CutPrefix(s, p.prefix); ok {
			s, v.Ref = rest, p.ref
			break
		}
	}

	inst, name, ok := strings.Cut(s, ".")
	if !ok || name == "" {
		return nil, errors.New("variable expected: %q", s)
	}

	v.Name = name

	if v.Instance, ok = ParseInstanceType(inst); ok {
		return v, nil
	}

	n, err := strconv.ParseInt(inst, 10, 16)
	if err != nil {
		return nil, errors.New("bad instance: %q", inst)
	}

	v.Instance = InstanceType(n)

	return v, nil
}
