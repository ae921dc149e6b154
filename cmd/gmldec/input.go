package main

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/ast"
	"github.com/UnderminersTeam/UndertaleModTool-sub009/decomp/vm"
)

type (
	// Input is a set of code entries with the game tables they refer to.
	Input struct {
		Game    Game    `yaml:"game"`
		Entries []Entry `yaml:"entries"`
	}

	Game struct {
		ast.GameContext `yaml:",inline"`

		BuiltinVars ast.BuiltinMap  `yaml:"builtins"`
		Functions   ast.FunctionMap `yaml:"functions"`
		AssetNames  ast.AssetMap    `yaml:"assets"`
	}

	Entry struct {
		Name     string  `yaml:"name"`
		Args     int     `yaml:"args"`
		Locals   int     `yaml:"locals"`
		Children []Child `yaml:"children"`

		// Code is vm.Asm text.
		Code string `yaml:"code"`
	}

	// Child is a function body starting at label At.
	Child struct {
		vm.ChildEntry `yaml:",inline"`

		At string `yaml:"at"`
	}
)

func LoadInput(name string) (*Input, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}

	return ParseInput(data)
}

func ParseInput(data []byte) (*Input, error) {
	var in Input

	err := yaml.Unmarshal(data, &in)
	if err != nil {
		return nil, errors.Wrap(err, "parse input")
	}

	return &in, nil
}

// Context returns the game context with the loaded tables attached.
func (g *Game) Context() *ast.GameContext {
	c := g.GameContext

	if g.BuiltinVars != nil {
		c.Builtins = g.BuiltinVars
	}

	if g.Functions != nil {
		c.GlobalFunctions = g.Functions
	}

	if g.AssetNames != nil {
		c.Assets = g.AssetNames
	}

	return &c
}

// CodeEntries assembles all entries.
func (in *Input) CodeEntries() ([]*vm.CodeEntry, error) {
	r := make([]*vm.CodeEntry, 0, len(in.Entries))

	for _, e := range in.Entries {
		ce, err := e.Assemble()
		if err != nil {
			return nil, errors.Wrap(err, "entry %v", e.Name)
		}

		r = append(r, ce)
	}

	return r, nil
}

func (e *Entry) Assemble() (*vm.CodeEntry, error) {
	a := vm.NewAsm()

	err := a.Text(strings.Split(e.Code, "\n")...)
	if err != nil {
		return nil, err
	}

	code, err := a.Assemble()
	if err != nil {
		return nil, err
	}

	ce := &vm.CodeEntry{
		Name:         e.Name,
		Instructions: code,
		ArgCount:     e.Args,
		LocalCount:   e.Locals,
	}

	for _, c := range e.Children {
		ch := c.ChildEntry

		if c.At != "" {
			addr, ok := a.LabelAddr(c.At)
			if !ok {
				return nil, errors.New("child %v: undefined label: %v", c.Name, c.At)
			}

			ch.Start = addr
		}

		ce.Children = append(ce.Children, ch)
	}

	return ce, nil
}
