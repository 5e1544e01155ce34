// Package action maintains the authoritative set of user-invocable actions,
// partitioned by the source that owns each one. Every mutation republishes
// the merged list so UI surfaces stay in sync.
package action

import (
	"sync"
)

// Well-known action sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Action is one invocable operation exposed through the registry.
type Action struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Command     string   `json:"command"`
	Args        []string `json:"args,omitempty"`
	Emphasis    bool     `json:"emphasis,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`
	Source      string   `json:"source"`
}

// Patch is a shallow merge applied by Update. Nil fields keep the current
// value.
type Patch struct {
	Label       *string
	Description *string
	Emphasis    *bool
	Disabled    *bool
}

// ListPublisher receives the merged action list after every change.
type ListPublisher interface {
	PublishActionList(actions []Action)
}

// Registry maps action ids to descriptors. An id belongs to exactly one
// source at a time; registering it under a new source evicts the old entry.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]Action
	order     []string
	publisher ListPublisher
}

// NewRegistry creates an empty registry. The publisher may be nil, in which
// case changes are tracked but not announced.
func NewRegistry(publisher ListPublisher) *Registry {
	return &Registry{
		byID:      make(map[string]Action),
		publisher: publisher,
	}
}

// SetActionsForSource atomically replaces every action owned by source with
// the given list and republishes.
func (r *Registry) SetActionsForSource(source string, actions []Action) {
	r.mu.Lock()
	kept := r.order[:0]
	for _, id := range r.order {
		if r.byID[id].Source != source {
			kept = append(kept, id)
		} else {
			delete(r.byID, id)
		}
	}
	r.order = kept
	for _, a := range actions {
		a.Source = source
		r.addLocked(a)
	}
	merged := r.snapshotLocked()
	r.mu.Unlock()

	r.publish(merged)
}

// Register adds or replaces a single action under the given source.
func (r *Registry) Register(a Action, source string) {
	a.Source = source
	r.mu.Lock()
	r.addLocked(a)
	merged := r.snapshotLocked()
	r.mu.Unlock()

	r.publish(merged)
}

// Update shallow-merges a patch into an existing action. Patching an unknown
// id is a no-op.
func (r *Registry) Update(id string, patch Patch) {
	r.mu.Lock()
	a, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if patch.Label != nil {
		a.Label = *patch.Label
	}
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	if patch.Emphasis != nil {
		a.Emphasis = *patch.Emphasis
	}
	if patch.Disabled != nil {
		a.Disabled = *patch.Disabled
	}
	r.byID[id] = a
	merged := r.snapshotLocked()
	r.mu.Unlock()

	r.publish(merged)
}

// Get returns the action for id, if present.
func (r *Registry) Get(id string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// Actions returns a snapshot of all actions in insertion order.
func (r *Registry) Actions() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// addLocked inserts an action, evicting any entry with the same id from its
// previous source first so the id never appears twice.
func (r *Registry) addLocked(a Action) {
	if _, exists := r.byID[a.ID]; exists {
		for i, id := range r.order {
			if id == a.ID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.byID[a.ID] = a
	r.order = append(r.order, a.ID)
}

func (r *Registry) snapshotLocked() []Action {
	out := make([]Action, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) publish(actions []Action) {
	if r.publisher != nil {
		r.publisher.PublishActionList(actions)
	}
}
