package config

import (
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
)

type (
	// Settings control decompilation and printing.
	Settings struct {
		UseSemicolon                        bool   `yaml:"use_semicolon"`
		OpenBlockBraceOnSameLine            bool   `yaml:"open_block_brace_on_same_line"`
		RemoveSingleLineBlockBraces         bool   `yaml:"remove_single_line_block_braces"`
		EmptyLineAroundBranchStatements     bool   `yaml:"empty_line_around_branch_statements"`
		EmptyLineBeforeSwitchCases          bool   `yaml:"empty_line_before_switch_cases"`
		EmptyLineAfterSwitchCases           bool   `yaml:"empty_line_after_switch_cases"`
		EmptyLineAroundFunctionDeclarations bool   `yaml:"empty_line_around_function_declarations"`
		EmptyLineAroundStaticInitialization bool   `yaml:"empty_line_around_static_initialization"`
		IndentString                        string `yaml:"indent"`

		CleanupTry                   bool `yaml:"cleanup_try"`
		CleanupElseToContinue        bool `yaml:"cleanup_else_to_continue"`
		CleanupDefaultArgumentValues bool `yaml:"cleanup_default_argument_values"`
		CleanupBuiltinArrayVariables bool `yaml:"cleanup_builtin_array_variables"`

		CreateEnumDeclarations  bool   `yaml:"create_enum_declarations"`
		UnknownEnumName         string `yaml:"unknown_enum_name"`
		UnknownEnumValuePattern string `yaml:"unknown_enum_value_pattern"`

		UnknownArgumentNamePattern string `yaml:"unknown_argument_name_pattern"`

		AllowLeftoverDataOnStack bool `yaml:"allow_leftover_data_on_stack"`

		// Workers bounds concurrent entries of a whole-game run.
		Workers int `yaml:"workers"`
	}
)

func Default() *Settings {
	return &Settings{
		UseSemicolon:                        true,
		OpenBlockBraceOnSameLine:            false,
		RemoveSingleLineBlockBraces:         false,
		EmptyLineAroundBranchStatements:     false,
		EmptyLineBeforeSwitchCases:          false,
		EmptyLineAfterSwitchCases:           false,
		EmptyLineAroundFunctionDeclarations: true,
		EmptyLineAroundStaticInitialization: true,
		IndentString:                        "    ",

		CleanupTry:                   true,
		CleanupElseToContinue:        true,
		CleanupDefaultArgumentValues: true,
		CleanupBuiltinArrayVariables: true,

		CreateEnumDeclarations:  true,
		UnknownEnumName:         "UnknownEnum",
		UnknownEnumValuePattern: "Value_{0}",

		UnknownArgumentNamePattern: "arg{0}",

		Workers: 4,
	}
}

// Load reads settings from a yaml file on top of the defaults.
func Load(name string) (*Settings, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}

	return Parse(data)
}

func Parse(data []byte) (*Settings, error) {
	s := Default()

	err := yaml.Unmarshal(data, s)
	if err != nil {
		return nil, errors.Wrap(err, "parse settings")
	}

	if s.Workers < 1 {
		return nil, errors.New("workers must be positive: %d", s.Workers)
	}

	return s, nil
}
