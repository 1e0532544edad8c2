package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePrecedenceAndExpansion(t *testing.T) {
	e := New()
	e.env = Var{"PATH": "/usr/bin", "HOME": "/home/u", "PORT": "1"}
	e.Set("PORT", "8000")
	e.Set("DATA", "${HOME}/data")

	out := e.Merge([]string{"PYTHONPATH=/opt/backend", "PORT=9000", "=skipped", "noequals"})

	assert.Equal(t, []string{
		"DATA=/home/u/data",
		"HOME=/home/u",
		"PATH=/usr/bin",
		"PORT=9000",
		"PYTHONPATH=/opt/backend",
	}, out)
}

func TestExpandLeavesUnknownAndPlainDollar(t *testing.T) {
	m := Var{"A": "1"}
	assert.Equal(t, "1-${B}-$A", expand("${A}-${B}-$A", m))
	assert.Equal(t, "x${A", expand("x${A", m))
}

func TestReadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nexport MISTRAL_API_KEY='secret'\nDEBUG=\"false\"\nPORT = 8000\nbroken line\n"
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	m, err := ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, Var{"MISTRAL_API_KEY": "secret", "DEBUG": "false", "PORT": "8000"}, m)
}

func TestLoadFilesOrderAndMissing(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	base := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(base, []byte("LOG_LEVEL=INFO\nPORT=8000\n"), 0o600))
	require.NoError(t, os.WriteFile(local, []byte("LOG_LEVEL=DEBUG\n"), 0o600))

	e := New()
	applied, err := e.LoadFiles(base, filepath.Join(dir, "missing.env"), local)
	require.NoError(t, err)
	assert.Equal(t, []string{base, local}, applied)
	assert.Equal(t, "DEBUG", e.Var["LOG_LEVEL"])
	assert.Equal(t, "8000", e.Var["PORT"])
}
