package coordinator

import (
	"fmt"

	"github.com/odvcencio/tether/pkg/editapply"
	"github.com/odvcencio/tether/pkg/metrics"
	"github.com/odvcencio/tether/pkg/protocol"
	"github.com/odvcencio/tether/pkg/uri"
)

// handleApplyEdits resolves each file's URI against the workspace and
// applies the resolved edits as one atomic batch. Unresolvable files are
// skipped with a warning; they do not fail the batch.
func (c *Coordinator) handleApplyEdits(m protocol.ApplyEdits) {
	if len(m.Edits) == 0 {
		c.bus.Log("apply-edits frame carried no edits", "warn")
		return
	}

	roots := c.workspace.Roots()
	changes := make([]editapply.FileChange, 0, len(m.Edits))
	for _, file := range m.Edits {
		path, err := uri.Resolve(file.URI, roots)
		if err != nil {
			c.bus.Log(fmt.Sprintf("skipping edits for %q: %v", file.URI, err), "warn")
			continue
		}
		changes = append(changes, editapply.FileChange{Path: path, Edits: file.Edits})
	}

	if err := c.applier.Apply(changes); err != nil {
		metrics.ObserveEditBatch(false)
		c.bus.Log(fmt.Sprintf("edit batch rejected: %v", err), "error")
		if m.ActionID != "" {
			c.completeAction(m.ActionID, protocol.StatusError, fmt.Sprintf("edits failed: %v", err))
		}
		return
	}

	metrics.ObserveEditBatch(true)
	description := m.Description
	if description == "" {
		description = editapply.Describe(changes)
	}
	c.bus.Log("applied edits: "+description, "info")
	if m.ActionID != "" {
		c.completeAction(m.ActionID, protocol.StatusSuccess, "")
	}
}
