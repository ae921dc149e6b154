package ast

type (
	// GameContext holds the read-only tables of one game.
	// It is shared by concurrent decompilations and never mutated by them.
	GameContext struct {
		Builtins        BuiltinTable     `yaml:"-"`
		GlobalFunctions FunctionResolver `yaml:"-"`
		Assets          AssetResolver    `yaml:"-"`

		Registry *Registry `yaml:"registry"`

		// TypedBooleans is set for VM versions with a distinct bool type.
		TypedBooleans bool `yaml:"typed_booleans"`
		UsingNullish  bool `yaml:"nullish"`

		PredefinedDoubles map[float64]string `yaml:"doubles"`
	}

	BuiltinTable interface {
		Builtin(name string) (Builtin, bool)
	}

	FunctionResolver interface {
		FunctionName(entry string) (string, bool)
	}

	AssetResolver interface {
		AssetName(typ string, index int) (string, bool)
	}

	Builtin struct {
		Args     int  `yaml:"args"`
		Array    bool `yaml:"array"`
		Global   bool `yaml:"global"`
		Settable bool `yaml:"settable"`
	}

	BuiltinMap  map[string]Builtin
	FunctionMap map[string]string
	AssetMap    map[string][]string

	// Registry names constants the game passes to known functions.
	Registry struct {
		// FunctionArgs lists the constant group of every argument of a
		// function, empty for plain arguments. Groups named "asset:<type>"
		// resolve asset indexes.
		FunctionArgs map[string][]string `yaml:"function_args"`

		// Variables gives the constant group of builtin variables.
		Variables map[string]string `yaml:"variables"`

		Groups map[string]map[int64]string `yaml:"groups"`
	}
)

func (m BuiltinMap) Builtin(name string) (Builtin, bool) {
	b, ok := m[name]
	return b, ok
}

func (m FunctionMap) FunctionName(entry string) (string, bool) {
	n, ok := m[entry]
	return n, ok
}

func (m AssetMap) AssetName(typ string, index int) (string, bool) {
	l := m[typ]
	if index < 0 || index >= len(l) || l[index] == "" {
		return "", false
	}

	return l[index], true
}

func (g *GameContext) builtin(name string) (Builtin, bool) {
	if g == nil || g.Builtins == nil {
		return Builtin{}, false
	}

	return g.Builtins.Builtin(name)
}

func (g *GameContext) functionName(entry string) string {
	if g != nil && g.GlobalFunctions != nil {
		if n, ok := g.GlobalFunctions.FunctionName(entry); ok {
			return n
		}
	}

	return entry
}

func (g *GameContext) assetName(typ string, index int) string {
	if g == nil || g.Assets == nil {
		return ""
	}

	n, _ := g.Assets.AssetName(typ, index)

	return n
}

// Constant resolves value in group.
func (r *Registry) Constant(group string, value int64) (string, bool) {
	if r == nil {
		return "", false
	}

	n, ok := r.Groups[group][value]

	return n, ok
}
