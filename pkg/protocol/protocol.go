// Package protocol defines the JSON frame format spoken between the host
// and the external agent. Frames are newline-free JSON text messages with a
// string type tag and an optional structured payload. Inbound frames are
// decoded exactly once, at the bridge boundary, into a closed set of typed
// messages.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame is the wire envelope for both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound frame types.
const (
	TypeRegisterActions   = "register-actions"
	TypeContextRequest    = "context-request"
	TypeActionStateUpdate = "action-state-update"
	TypeApplyEdits        = "apply-edits"
	TypeTaskRequest       = "task-request"
	TypeLog               = "log"
	TypeChatResponse      = "chat-response"
	TypeActionComplete    = "action-complete"
)

// Outbound frame types.
const (
	TypeHello           = "hello"
	TypeActionInvoked   = "action-invoked"
	TypeChatMessage     = "chat-message"
	TypeContextSnapshot = "context-snapshot"
)

// Completion statuses carried by action-complete frames and reused by the
// coordinator's local completion paths.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Parse decodes a raw inbound message into a Frame envelope.
func Parse(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("invalid frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("invalid frame: missing type")
	}
	return f, nil
}

// Encode serializes a frame for transmission.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

func makeFrame(frameType string, payload any) Frame {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payload types are our own structs; marshal failure is a programming
		// error surfaced at send time by an empty payload.
		return Frame{Type: frameType}
	}
	return Frame{Type: frameType, Payload: data}
}

// HelloPayload identifies the client on connect.
type HelloPayload struct {
	Client    string    `json:"client"`
	ClientID  string    `json:"clientId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHello builds the silent handshake frame sent after the socket opens.
func NewHello(clientName, clientID string) Frame {
	return makeFrame(TypeHello, HelloPayload{
		Client:    clientName,
		ClientID:  clientID,
		Timestamp: time.Now().UTC(),
	})
}

// ActionInvokedPayload asks the agent to run one of its registered actions.
type ActionInvokedPayload struct {
	ActionID  string    `json:"actionId"`
	Timestamp time.Time `json:"timestamp"`
	Context   any       `json:"context,omitempty"`
}

// NewActionInvoked builds an invocation frame. A nil snapshot omits the
// context field entirely.
func NewActionInvoked(actionID string, snapshot any) Frame {
	return makeFrame(TypeActionInvoked, ActionInvokedPayload{
		ActionID:  actionID,
		Timestamp: time.Now().UTC(),
		Context:   snapshot,
	})
}

// ChatMessagePayload carries a user chat message to the agent.
type ChatMessagePayload struct {
	Message string `json:"message"`
	Context any    `json:"context,omitempty"`
}

// NewChatMessage builds a chat frame.
func NewChatMessage(text string, snapshot any) Frame {
	return makeFrame(TypeChatMessage, ChatMessagePayload{Message: text, Context: snapshot})
}

// NewContextSnapshot builds the reply to a context-request frame.
func NewContextSnapshot(snapshot any) Frame {
	return makeFrame(TypeContextSnapshot, snapshot)
}
