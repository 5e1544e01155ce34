// Package coordinator turns inbound bridge frames into side effects: action
// registry updates, multi-file edits, task execution, and aggregate status.
// It also owns the set of in-flight remote actions.
package coordinator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/tether/pkg/action"
	"github.com/odvcencio/tether/pkg/bridge"
	"github.com/odvcencio/tether/pkg/bus"
	"github.com/odvcencio/tether/pkg/editapply"
	"github.com/odvcencio/tether/pkg/metrics"
	"github.com/odvcencio/tether/pkg/protocol"
	"github.com/odvcencio/tether/pkg/terminal"
	"github.com/odvcencio/tether/pkg/workspace"
)

// RunRemoteActionCommand is the local command id that mapped remote actions
// point at; its single argument is the remote action id.
const RunRemoteActionCommand = "tether.runRemoteAction"

// remoteIDPrefix namespaces agent action ids inside the registry.
const remoteIDPrefix = "remote:"

// Aggregate status values published on the bus.
const (
	StatusIdle       = "idle"
	StatusProcessing = "processing"
	StatusError      = "error"
)

// Sender transmits outbound frames. Satisfied by *bridge.Bridge.
type Sender interface {
	Send(frame protocol.Frame, silent bool) bool
}

// WorkspaceSource supplies context snapshots and the roots used for URI
// resolution.
type WorkspaceSource interface {
	Snapshot() workspace.Snapshot
	Roots() []string
}

// EditApplier applies a resolved edit batch atomically.
type EditApplier interface {
	Apply(changes []editapply.FileChange) error
}

// ApplyFunc adapts a function to EditApplier.
type ApplyFunc func(changes []editapply.FileChange) error

// Apply implements EditApplier.
func (f ApplyFunc) Apply(changes []editapply.FileChange) error {
	return f(changes)
}

// Options configures a Coordinator.
type Options struct {
	Bus       *bus.Bus
	Sender    Sender
	Registry  *action.Registry
	Workspace WorkspaceSource
	Terminals *terminal.Manager
	// Applier defaults to writing edits to disk via editapply.Apply.
	Applier EditApplier
	// ActionDeadline bounds how long an invoked action may stay in-flight.
	// Zero means unbounded.
	ActionDeadline time.Duration
}

// Coordinator dispatches inbound bridge messages and tracks in-flight remote
// actions.
type Coordinator struct {
	bus       *bus.Bus
	sender    Sender
	registry  *action.Registry
	workspace WorkspaceSource
	terminals *terminal.Manager
	applier   EditApplier
	deadline  time.Duration

	mu       sync.Mutex
	remote   map[string]protocol.RemoteActionDescriptor
	inFlight map[string]struct{}
	subIDs   []string
}

// New creates a coordinator. Call Start to attach it to the bus.
func New(opts Options) *Coordinator {
	applier := opts.Applier
	if applier == nil {
		applier = ApplyFunc(editapply.Apply)
	}
	return &Coordinator{
		bus:       opts.Bus,
		sender:    opts.Sender,
		registry:  opts.Registry,
		workspace: opts.Workspace,
		terminals: opts.Terminals,
		applier:   applier,
		deadline:  opts.ActionDeadline,
		remote:    make(map[string]protocol.RemoteActionDescriptor),
		inFlight:  make(map[string]struct{}),
	}
}

// Start subscribes to bridge traffic and bridge state events.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subIDs = append(c.subIDs,
		c.bus.SubscribeBridgeMessage(c.handleBridgeMessage),
		c.bus.SubscribeBridgeState(c.handleBridgeState),
	)
}

// Close detaches the coordinator from the bus. Already spawned subprocesses
// are not cancelled.
func (c *Coordinator) Close() {
	c.mu.Lock()
	ids := c.subIDs
	c.subIDs = nil
	c.mu.Unlock()
	for _, id := range ids {
		c.bus.Unsubscribe(id)
	}
}

// localActionID maps a remote action id into the registry's namespace. The
// transform is deterministic and idempotent.
func localActionID(remoteID string) string {
	if strings.HasPrefix(remoteID, remoteIDPrefix) {
		return remoteID
	}
	return remoteIDPrefix + remoteID
}

// remoteActionID reverses localActionID.
func remoteActionID(id string) string {
	return strings.TrimPrefix(id, remoteIDPrefix)
}

// InvokeRemoteAction sends an invocation frame for the given action id
// (local or remote form). Unknown ids produce a user-visible warning and no
// network traffic.
func (c *Coordinator) InvokeRemoteAction(id string) {
	remoteID := remoteActionID(id)

	c.mu.Lock()
	desc, ok := c.remote[remoteID]
	c.mu.Unlock()
	if !ok {
		c.bus.Log(fmt.Sprintf("unknown remote action %q", id), "warn")
		return
	}

	var snapshot any
	if !desc.OmitContext {
		snapshot = c.workspace.Snapshot()
	}
	if !c.sender.Send(protocol.NewActionInvoked(remoteID, snapshot), false) {
		// Bridge already logged the cause.
		return
	}

	c.bus.Log(fmt.Sprintf("invoked remote action %q", desc.Label), "info")

	c.mu.Lock()
	c.inFlight[remoteID] = struct{}{}
	n := len(c.inFlight)
	c.mu.Unlock()

	metrics.SetActionsInFlight(n)
	c.bus.PublishStatus(StatusProcessing, fmt.Sprintf("%d action(s) in flight", n))

	if c.deadline > 0 {
		time.AfterFunc(c.deadline, func() {
			c.mu.Lock()
			_, still := c.inFlight[remoteID]
			c.mu.Unlock()
			if still {
				c.completeAction(remoteID, protocol.StatusError,
					fmt.Sprintf("action %q exceeded its %s deadline", remoteID, c.deadline))
			}
		})
	}
}

// SendChatMessage trims and sends a chat frame, optionally attaching a
// context snapshot. Empty input is a no-op.
func (c *Coordinator) SendChatMessage(text string, includeContext bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	var snapshot any
	if includeContext {
		snapshot = c.workspace.Snapshot()
	}
	if !c.sender.Send(protocol.NewChatMessage(text, snapshot), false) {
		return
	}

	c.bus.PublishStatus(StatusProcessing, "waiting for agent reply")
	c.bus.Log("you: "+text, "info")
}

// InFlightCount reports the number of actions awaiting completion.
func (c *Coordinator) InFlightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

func (c *Coordinator) handleBridgeMessage(ev bus.BridgeMessageEvent) {
	if ev.Direction != bridge.DirectionInbound {
		return
	}

	msg, err := protocol.Decode(ev.Frame)
	if err != nil {
		c.bus.Log(fmt.Sprintf("dropping inbound frame: %v", err), "warn")
		return
	}

	switch m := msg.(type) {
	case protocol.RegisterActions:
		c.handleRegisterActions(m)
	case protocol.ContextRequest:
		c.handleContextRequest()
	case protocol.ActionStateUpdate:
		c.handleActionStateUpdate(m)
	case protocol.ApplyEdits:
		c.handleApplyEdits(m)
	case protocol.TaskRequest:
		c.handleTaskRequest(m)
	case protocol.LogMessage:
		c.bus.Log(m.Message, m.Level)
	case protocol.ChatResponse:
		c.handleChatResponse(m)
	case protocol.ActionComplete:
		status := m.Status
		if status == "" {
			status = protocol.StatusSuccess
		}
		c.completeAction(m.ActionID, status, m.Message)
	}
}

// handleBridgeState clears the remote action surface when the connection
// leaves Ready. The in-flight set is untouched: completions for those ids
// will simply never arrive.
func (c *Coordinator) handleBridgeState(ev bus.BridgeStateEvent) {
	if ev.State != bridge.StateDisconnected && ev.State != bridge.StateError {
		return
	}

	c.mu.Lock()
	n := len(c.remote)
	if n > 0 {
		c.remote = make(map[string]protocol.RemoteActionDescriptor)
	}
	c.mu.Unlock()

	if n > 0 {
		c.registry.SetActionsForSource(action.SourceRemote, nil)
		c.bus.Log(fmt.Sprintf("connection lost, cleared %d remote action(s)", n), "info")
	}
}

func (c *Coordinator) handleRegisterActions(m protocol.RegisterActions) {
	mapped := make([]action.Action, 0, len(m.Actions))
	remote := make(map[string]protocol.RemoteActionDescriptor, len(m.Actions))
	for _, desc := range m.Actions {
		if desc.ID == "" {
			continue
		}
		label := desc.Label
		if label == "" {
			label = desc.ID
		}
		remote[desc.ID] = desc
		mapped = append(mapped, action.Action{
			ID:          localActionID(desc.ID),
			Label:       label,
			Description: desc.Description,
			Command:     RunRemoteActionCommand,
			Args:        []string{desc.ID},
			Emphasis:    desc.Emphasis,
			Disabled:    desc.Disabled,
		})
	}

	c.mu.Lock()
	c.remote = remote
	c.mu.Unlock()

	c.registry.SetActionsForSource(action.SourceRemote, mapped)
	c.bus.Log(fmt.Sprintf("agent registered %d action(s)", len(mapped)), "info")
}

func (c *Coordinator) handleContextRequest() {
	snapshot := c.workspace.Snapshot()
	c.bus.PublishContext(snapshot)
	c.sender.Send(protocol.NewContextSnapshot(snapshot), true)
}

// handleActionStateUpdate patches a registered remote action. Unknown ids
// are a lenient no-op, not a protocol violation.
func (c *Coordinator) handleActionStateUpdate(m protocol.ActionStateUpdate) {
	remoteID := remoteActionID(m.ActionID)

	c.mu.Lock()
	desc, ok := c.remote[remoteID]
	c.mu.Unlock()
	if !ok {
		return
	}

	// Unsupplied fields fall back to the original descriptor's values.
	label := desc.Label
	if label == "" {
		label = desc.ID
	}
	description := desc.Description
	emphasis := desc.Emphasis
	disabled := desc.Disabled
	if m.Label != nil {
		label = *m.Label
	}
	if m.Description != nil {
		description = *m.Description
	}
	if m.Emphasis != nil {
		emphasis = *m.Emphasis
	}
	if m.Disabled != nil {
		disabled = *m.Disabled
	}

	c.registry.Update(localActionID(remoteID), action.Patch{
		Label:       &label,
		Description: &description,
		Emphasis:    &emphasis,
		Disabled:    &disabled,
	})
}

func (c *Coordinator) handleChatResponse(m protocol.ChatResponse) {
	prefix := "system"
	if m.Role == "assistant" {
		prefix = "assistant"
	}
	c.bus.Log(prefix+": "+m.Message, "info")
	c.bus.PublishStatus(StatusIdle, "")
}

// completeAction removes id from the in-flight set and recomputes aggregate
// status. Idempotent on the set; a duplicate call may still log its message.
func (c *Coordinator) completeAction(id, status, message string) {
	remoteID := remoteActionID(id)

	c.mu.Lock()
	delete(c.inFlight, remoteID)
	n := len(c.inFlight)
	c.mu.Unlock()

	metrics.SetActionsInFlight(n)

	isError := status == protocol.StatusError
	switch {
	case isError:
		c.bus.PublishStatus(StatusError, message)
	case n > 0:
		c.bus.PublishStatus(StatusProcessing, fmt.Sprintf("%d action(s) in flight", n))
	default:
		// Success detail (step counts and the like) rides on the status
		// event; only failures earn a log line.
		c.bus.PublishStatus(StatusIdle, message)
	}

	if isError && message != "" {
		c.bus.Log(message, "error")
	}
}
