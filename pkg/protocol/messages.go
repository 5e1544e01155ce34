package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is the closed union of decoded inbound frames. Handlers receive a
// concrete message type instead of re-parsing optional fields.
type Message interface {
	isMessage()
}

// RemoteActionDescriptor is the agent-advertised metadata for one action.
type RemoteActionDescriptor struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Emphasis    bool   `json:"emphasis,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
	// OmitContext opts this action out of the context snapshot normally
	// attached to its invocation frames.
	OmitContext bool `json:"omitContext,omitempty"`
}

// RegisterActions replaces the full set of agent actions.
type RegisterActions struct {
	Actions []RemoteActionDescriptor `json:"actions"`
}

// ContextRequest asks for a context-snapshot reply.
type ContextRequest struct{}

// ActionStateUpdate patches a previously registered action. Nil fields keep
// the values from the original descriptor.
type ActionStateUpdate struct {
	ActionID    string  `json:"actionId"`
	Disabled    *bool   `json:"disabled,omitempty"`
	Label       *string `json:"label,omitempty"`
	Description *string `json:"description,omitempty"`
	Emphasis    *bool   `json:"emphasis,omitempty"`
}

// Position is a zero-based line/character location.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open [start, end) text span.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextEdit replaces one range with new text.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// FileEdit groups the edits for a single file, addressed by a raw URI that
// the coordinator resolves against the workspace.
type FileEdit struct {
	URI   string     `json:"uri"`
	Edits []TextEdit `json:"edits"`
}

// ApplyEdits requests a multi-file text edit batch.
type ApplyEdits struct {
	ActionID    string     `json:"actionId,omitempty"`
	Description string     `json:"description,omitempty"`
	Edits       []FileEdit `json:"edits"`
	Preview     bool       `json:"preview,omitempty"`
}

// TaskStep is one command in an ordered task sequence.
type TaskStep struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Task execution modes.
const (
	ModeTerminal = "terminal"
	ModeProcess  = "process"
)

// TaskRequest asks the host to run a command sequence, either injected into
// a terminal (fire and forget) or executed as streamed subprocesses.
type TaskRequest struct {
	ActionID     string     `json:"actionId,omitempty"`
	Command      string     `json:"command,omitempty"`
	Args         []string   `json:"args,omitempty"`
	Sequence     []TaskStep `json:"sequence,omitempty"`
	Cwd          string     `json:"cwd,omitempty"`
	TerminalName string     `json:"terminalName,omitempty"`
	Mode         string     `json:"mode,omitempty"`
}

// Steps normalizes the request into an ordered step list. An explicit
// sequence takes priority over the single legacy command form.
func (t TaskRequest) Steps() []TaskStep {
	if len(t.Sequence) > 0 {
		steps := make([]TaskStep, 0, len(t.Sequence))
		for _, s := range t.Sequence {
			if strings.TrimSpace(s.Command) == "" {
				continue
			}
			steps = append(steps, s)
		}
		return steps
	}
	if strings.TrimSpace(t.Command) != "" {
		return []TaskStep{{Command: t.Command, Args: t.Args}}
	}
	return nil
}

// LogMessage forwards an agent-side log entry.
type LogMessage struct {
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}

// ChatResponse carries the agent's reply to a chat message.
type ChatResponse struct {
	Message string `json:"message"`
	Role    string `json:"role,omitempty"`
}

// ActionComplete reports the terminal state of an invoked action.
type ActionComplete struct {
	ActionID string `json:"actionId"`
	Status   string `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (RegisterActions) isMessage()   {}
func (ContextRequest) isMessage()    {}
func (ActionStateUpdate) isMessage() {}
func (ApplyEdits) isMessage()        {}
func (TaskRequest) isMessage()       {}
func (LogMessage) isMessage()        {}
func (ChatResponse) isMessage()      {}
func (ActionComplete) isMessage()    {}

// UnknownTypeError reports a recognized JSON frame with an unrecognized type
// tag. Callers log it as a warning and drop the frame.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// Decode validates a frame's payload against its type tag and returns the
// typed message. The payload may be absent for types that carry none.
func Decode(f Frame) (Message, error) {
	payload := f.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	switch f.Type {
	case TypeRegisterActions:
		var m RegisterActions
		return m, decodePayload(f.Type, payload, &m)
	case TypeContextRequest:
		var m ContextRequest
		return m, decodePayload(f.Type, payload, &m)
	case TypeActionStateUpdate:
		var m ActionStateUpdate
		return m, decodePayload(f.Type, payload, &m)
	case TypeApplyEdits:
		var m ApplyEdits
		return m, decodePayload(f.Type, payload, &m)
	case TypeTaskRequest:
		var m TaskRequest
		return m, decodePayload(f.Type, payload, &m)
	case TypeLog:
		var m LogMessage
		return m, decodePayload(f.Type, payload, &m)
	case TypeChatResponse:
		var m ChatResponse
		return m, decodePayload(f.Type, payload, &m)
	case TypeActionComplete:
		var m ActionComplete
		return m, decodePayload(f.Type, payload, &m)
	default:
		return nil, &UnknownTypeError{Type: f.Type}
	}
}

func decodePayload(frameType string, payload json.RawMessage, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", frameType, err)
	}
	return nil
}
