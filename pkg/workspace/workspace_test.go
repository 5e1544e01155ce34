package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider_Snapshot(t *testing.T) {
	p := NewStaticProvider([]string{"/work/repo"})

	snap := p.Snapshot()
	assert.Equal(t, []string{"/work/repo"}, snap.Roots)
	assert.False(t, snap.Timestamp.IsZero())
	assert.NotEmpty(t, snap.WorkingDir)
}

func TestStaticProvider_GitBranch(t *testing.T) {
	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	require.NoError(t, os.MkdirAll(gitDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/feature/bridge\n"), 0o644))

	p := NewStaticProvider([]string{root})
	assert.Equal(t, "feature/bridge", p.Snapshot().GitBranch)
}

func TestStaticProvider_DetachedHead(t *testing.T) {
	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	require.NoError(t, os.MkdirAll(gitDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("0123456789abcdef\n"), 0o644))

	p := NewStaticProvider([]string{root})
	assert.Empty(t, p.Snapshot().GitBranch)
}

func TestStaticProvider_NoGit(t *testing.T) {
	p := NewStaticProvider([]string{t.TempDir()})
	assert.Empty(t, p.Snapshot().GitBranch)
}
