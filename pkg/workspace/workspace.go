// Package workspace captures the host workspace state sent to the agent as
// a context snapshot.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Snapshot is a structured summary of the current workspace, attached to
// action invocations and chat messages and sent in reply to context
// requests.
type Snapshot struct {
	Roots      []string  `json:"roots,omitempty"`
	WorkingDir string    `json:"workingDir,omitempty"`
	GitBranch  string    `json:"gitBranch,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Provider supplies the current snapshot on demand.
type Provider interface {
	Snapshot() Snapshot
}

// StaticProvider builds snapshots from a fixed root list, reading the
// working directory and git branch fresh each time.
type StaticProvider struct {
	roots []string
}

// NewStaticProvider creates a provider over the given workspace roots.
func NewStaticProvider(roots []string) *StaticProvider {
	return &StaticProvider{roots: roots}
}

// Roots returns the configured workspace roots.
func (p *StaticProvider) Roots() []string {
	return p.roots
}

// Snapshot implements Provider.
func (p *StaticProvider) Snapshot() Snapshot {
	snap := Snapshot{
		Roots:     p.roots,
		Timestamp: time.Now().UTC(),
	}
	if wd, err := os.Getwd(); err == nil {
		snap.WorkingDir = wd
	}
	if len(p.roots) > 0 {
		snap.GitBranch = currentBranch(p.roots[0])
	}
	return snap
}

// currentBranch reads .git/HEAD directly so snapshots stay cheap. Returns
// empty for detached heads and non-git roots.
func currentBranch(root string) string {
	data, err := os.ReadFile(filepath.Join(root, ".git", "HEAD"))
	if err != nil {
		return ""
	}
	head := strings.TrimSpace(string(data))
	const refPrefix = "ref: refs/heads/"
	if strings.HasPrefix(head, refPrefix) {
		return strings.TrimPrefix(head, refPrefix)
	}
	return ""
}
