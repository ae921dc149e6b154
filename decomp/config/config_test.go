package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverridesDefaults(t *testing.T) {
	s, err := Parse([]byte(`
use_semicolon: false
indent: "\t"
workers: 8
unknown_enum_name: Enum
`))
	require.NoError(t, err)

	assert.False(t, s.UseSemicolon)
	assert.Equal(t, "\t", s.IndentString)
	assert.Equal(t, 8, s.Workers)
	assert.Equal(t, "Enum", s.UnknownEnumName)

	// untouched keys keep defaults
	assert.Equal(t, Default().UnknownEnumValuePattern, s.UnknownEnumValuePattern)
	assert.True(t, s.CleanupTry)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("workers: 0\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("workers: [1\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	name := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(name, []byte("cleanup_try: false\n"), 0o644))

	s, err := Load(name)
	require.NoError(t, err)
	assert.False(t, s.CleanupTry)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
