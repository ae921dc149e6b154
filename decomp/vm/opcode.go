package vm

type (
	Opcode     byte
	DataType   byte
	CmpKind    byte
	ExtendedOp int16

	InstanceType int16
	RefKind      byte
)

const (
	Conv Opcode = iota + 1
	Mul
	Div
	Rem
	Mod
	Add
	Sub
	And
	Or
	Xor
	Neg
	Not
	Shl
	Shr
	Cmp
	Pop
	Dup
	Ret
	Exit
	Popz
	B
	Bt
	Bf
	PushEnv
	PopEnv
	Push
	PushLoc
	PushGlb
	PushBltn
	PushI
	Call
	CallV
	Extended
)

const (
	Double   DataType = 0
	Int32    DataType = 2
	Int64    DataType = 3
	Bool     DataType = 4
	Variable DataType = 5
	String   DataType = 6
	Int16    DataType = 15

	Unset DataType = 0xff
)

const (
	_ CmpKind = iota
	CmpLT
	CmpLTE
	CmpEQ
	CmpNEQ
	CmpGTE
	CmpGT
)

const (
	CheckArrayIndex       ExtendedOp = -1
	PushArrayFinal        ExtendedOp = -2
	PopArrayFinal         ExtendedOp = -3
	PushArrayContainer    ExtendedOp = -4
	SetArrayOwner         ExtendedOp = -5
	HasStaticInitialized  ExtendedOp = -6
	SetStaticInitialized  ExtendedOp = -7
	SaveArrayReference    ExtendedOp = -8
	RestoreArrayReference ExtendedOp = -9
	IsNullishValue        ExtendedOp = -10
	PushReference         ExtendedOp = -11
)

const (
	Self     InstanceType = -1
	Other    InstanceType = -2
	All      InstanceType = -3
	Noone    InstanceType = -4
	Global   InstanceType = -5
	Builtin  InstanceType = -6
	Local    InstanceType = -7
	StackTop InstanceType = -9
	Argument InstanceType = -15
	Static   InstanceType = -16
)

const (
	RefNormal RefKind = iota
	RefArray
	RefStackTop
	RefMultiPush
	RefMultiPushPop
)

var opcodeNames = [...]string{
	Conv:     "conv",
	Mul:      "mul",
	Div:      "div",
	Rem:      "rem",
	Mod:      "mod",
	Add:      "add",
	Sub:      "sub",
	And:      "and",
	Or:       "or",
	Xor:      "xor",
	Neg:      "neg",
	Not:      "not",
	Shl:      "shl",
	Shr:      "shr",
	Cmp:      "cmp",
	Pop:      "pop",
	Dup:      "dup",
	Ret:      "ret",
	Exit:     "exit",
	Popz:     "popz",
	B:        "b",
	Bt:       "bt",
	Bf:       "bf",
	PushEnv:  "pushenv",
	PopEnv:   "popenv",
	Push:     "push",
	PushLoc:  "pushloc",
	PushGlb:  "pushglb",
	PushBltn: "pushbltn",
	PushI:    "pushi",
	Call:     "call",
	CallV:    "callv",
	Extended: "break",
}

var typeNames = map[DataType]string{
	Double:   "d",
	Int32:    "i",
	Int64:    "l",
	Bool:     "b",
	Variable: "v",
	String:   "s",
	Int16:    "e",
}

var cmpNames = [...]string{
	CmpLT:  "LT",
	CmpLTE: "LTE",
	CmpEQ:  "EQ",
	CmpNEQ: "NEQ",
	CmpGTE: "GTE",
	CmpGT:  "GT",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}

	return "op?"
}

func ParseOpcode(s string) (Opcode, bool) {
	for op, n := range opcodeNames {
		if n != "" && n == s {
			return Opcode(op), true
		}
	}

	return 0, false
}

// IsBranch reports whether the instruction ends a basic block.
func (op Opcode) IsBranch() bool {
	switch op {
	case B, Bt, Bf, PushEnv, PopEnv:
		return true
	}

	return false
}

func (op Opcode) IsConditional() bool {
	return op == Bt || op == Bf
}

func (t DataType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}

	return "?"
}

func ParseDataType(s string) (DataType, bool) {
	for t, n := range typeNames {
		if n == s {
			return t, true
		}
	}

	return Unset, false
}

// Size is the number of stack slots a value of this type occupies,
// as dup counts them.
func (t DataType) Size() int {
	switch t {
	case Double, Int64:
		return 2
	case Variable:
		return 4
	default:
		return 1
	}
}

// Bias orders types for binary operation results.
func (t DataType) Bias() int {
	switch t {
	case Int16, Bool:
		return 0
	case Int32:
		return 1
	case Int64:
		return 2
	case Double:
		return 3
	case Variable, String:
		return 4
	}

	return 0
}

// BinaryResult is the data type a binary instruction leaves on the stack.
func BinaryResult(op Opcode, l, r DataType) DataType {
	if op == Cmp {
		return Bool
	}

	if l == String || r == String {
		return Double
	}

	bl, br := l.Bias(), r.Bias()

	switch {
	case bl > br:
		return l
	case br > bl:
		return r
	case l < r:
		return l
	default:
		return r
	}
}

func (k CmpKind) String() string {
	if int(k) < len(cmpNames) && cmpNames[k] != "" {
		return cmpNames[k]
	}

	return "?"
}

func ParseCmpKind(s string) (CmpKind, bool) {
	for k, n := range cmpNames {
		if n != "" && n == s {
			return CmpKind(k), true
		}
	}

	return 0, false
}

func (x ExtendedOp) String() string {
	switch x {
	case CheckArrayIndex:
		return "chkindex"
	case PushArrayFinal:
		return "pushaf"
	case PopArrayFinal:
		return "popaf"
	case PushArrayContainer:
		return "pushac"
	case SetArrayOwner:
		return "setowner"
	case HasStaticInitialized:
		return "isstaticok"
	case SetStaticInitialized:
		return "setstatic"
	case SaveArrayReference:
		return "savearef"
	case RestoreArrayReference:
		return "restorearef"
	case IsNullishValue:
		return "isnullish"
	case PushReference:
		return "pushref"
	}

	return "ext?"
}

func ParseExtendedOp(s string) (ExtendedOp, bool) {
	for x := PushReference; x <= CheckArrayIndex; x++ {
		if x.String() == s {
			return x, true
		}
	}

	return 0, false
}

func (t InstanceType) String() string {
	switch t {
	case Self:
		return "self"
	case Other:
		return "other"
	case All:
		return "all"
	case Noone:
		return "noone"
	case Global:
		return "global"
	case Builtin:
		return "builtin"
	case Local:
		return "local"
	case StackTop:
		return "stacktop"
	case Argument:
		return "arg"
	case Static:
		return "static"
	}

	return "inst?"
}

func ParseInstanceType(s string) (InstanceType, bool) {
	for _, t := range []InstanceType{Self, Other, All, Noone, Global, Builtin, Local, StackTop, Argument, Static} {
		if t.String() == s {
			return t, true
		}
	}

	return 0, false
}
