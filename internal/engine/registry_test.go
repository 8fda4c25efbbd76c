package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistryDefaultsOnly(t *testing.T) {
	r, err := LoadRegistry("")
	require.NoError(t, err)

	p, err := r.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", p.Command)
	assert.Equal(t, "--resume", p.ResumeFlag)

	_, err = r.Get("nope")
	assert.Error(t, err)
}

func TestLoadRegistryFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	content := `
profiles:
  - name: mock
    command: mock-engine
    args: ["--stream"]
    resumeFlag: "-r"
  - name: claude
    command: /opt/claude/bin/claude
    args: ["-p"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := LoadRegistry(path)
	require.NoError(t, err)

	mock, err := r.Get("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock-engine", mock.Command)
	assert.Equal(t, []string{"--stream"}, mock.Args)
	assert.Equal(t, "-r", mock.ResumeFlag)

	// File entry overrides the built-in claude profile.
	claude, err := r.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, "/opt/claude/bin/claude", claude.Command)
}

func TestLoadRegistryRejectsInvalidProfiles(t *testing.T) {
	dir := t.TempDir()

	missingName := filepath.Join(dir, "noname.yaml")
	require.NoError(t, os.WriteFile(missingName, []byte("profiles:\n  - command: x\n"), 0o644))
	_, err := LoadRegistry(missingName)
	assert.ErrorContains(t, err, "missing name")

	missingCommand := filepath.Join(dir, "nocmd.yaml")
	require.NoError(t, os.WriteFile(missingCommand, []byte("profiles:\n  - name: x\n"), 0o644))
	_, err = LoadRegistry(missingCommand)
	assert.ErrorContains(t, err, "missing command")
}
