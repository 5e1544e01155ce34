// Package bus is the typed publish/subscribe hub connecting the bridge,
// the coordinator, and whatever surfaces observe them. Each event kind has
// its own channel; there is no cross-channel coupling, no buffering, and no
// replay. Delivery is synchronous: Publish returns after every handler ran.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/tether/pkg/action"
	"github.com/odvcencio/tether/pkg/bridge"
	"github.com/odvcencio/tether/pkg/protocol"
	"github.com/odvcencio/tether/pkg/workspace"
)

// StatusEvent carries the coordinator's aggregate status.
type StatusEvent struct {
	Status string
	Detail string
}

// LogEvent is one log entry. IDs are strictly increasing and never reused.
type LogEvent struct {
	ID        uint64
	Timestamp string
	Level     string
	Message   string
}

// ContextEvent announces a freshly captured workspace snapshot.
type ContextEvent struct {
	Snapshot workspace.Snapshot
}

// ActionListEvent carries the merged action list after a registry change.
type ActionListEvent struct {
	Actions []action.Action
}

// BridgeStateEvent announces a bridge connection state transition.
type BridgeStateEvent struct {
	State   bridge.State
	Message string
}

// BridgeMessageEvent carries one frame crossing the bridge, either way.
type BridgeMessageEvent struct {
	Direction bridge.Direction
	Frame     protocol.Frame
}

// channel is one independent pub/sub lane. Handlers run outside the lock so
// they may subscribe or unsubscribe reentrantly.
type channel[T any] struct {
	mu       sync.RWMutex
	handlers map[string]func(T)
}

func (c *channel[T]) subscribe(handler func(T)) string {
	if handler == nil {
		return ""
	}
	id := ulid.Make().String()
	c.mu.Lock()
	if c.handlers == nil {
		c.handlers = make(map[string]func(T))
	}
	c.handlers[id] = handler
	c.mu.Unlock()
	return id
}

func (c *channel[T]) unsubscribe(id string) {
	c.mu.Lock()
	delete(c.handlers, id)
	c.mu.Unlock()
}

func (c *channel[T]) publish(ev T) {
	c.mu.RLock()
	handlers := make([]func(T), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Bus is the event hub. The zero value is not usable; construct with New.
type Bus struct {
	closed atomic.Bool
	seq    atomic.Uint64

	status        channel[StatusEvent]
	log           channel[LogEvent]
	context       channel[ContextEvent]
	actionList    channel[ActionListEvent]
	bridgeState   channel[BridgeStateEvent]
	bridgeMessage channel[BridgeMessageEvent]
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Close permanently stops publishes from reaching subscribers. Repeated
// close is a no-op.
func (b *Bus) Close() {
	b.closed.Store(true)
}

// Log assigns the next sequence id, stamps an ISO-8601 timestamp, publishes
// the entry, and returns it. An empty level defaults to info.
func (b *Bus) Log(message, level string) LogEvent {
	if level == "" {
		level = "info"
	}
	ev := LogEvent{
		ID:        b.seq.Add(1),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   message,
	}
	if !b.closed.Load() {
		b.log.publish(ev)
	}
	return ev
}

// PublishStatus announces the aggregate status.
func (b *Bus) PublishStatus(status, detail string) {
	if b.closed.Load() {
		return
	}
	b.status.publish(StatusEvent{Status: status, Detail: detail})
}

// PublishContext announces a workspace snapshot.
func (b *Bus) PublishContext(snapshot workspace.Snapshot) {
	if b.closed.Load() {
		return
	}
	b.context.publish(ContextEvent{Snapshot: snapshot})
}

// PublishActionList implements action.ListPublisher.
func (b *Bus) PublishActionList(actions []action.Action) {
	if b.closed.Load() {
		return
	}
	b.actionList.publish(ActionListEvent{Actions: actions})
}

// PublishBridgeState implements part of bridge.EventSink.
func (b *Bus) PublishBridgeState(state bridge.State, message string) {
	if b.closed.Load() {
		return
	}
	b.bridgeState.publish(BridgeStateEvent{State: state, Message: message})
}

// PublishBridgeMessage implements part of bridge.EventSink.
func (b *Bus) PublishBridgeMessage(direction bridge.Direction, frame protocol.Frame) {
	if b.closed.Load() {
		return
	}
	b.bridgeMessage.publish(BridgeMessageEvent{Direction: direction, Frame: frame})
}

// PublishLog implements part of bridge.EventSink.
func (b *Bus) PublishLog(level, message string) {
	b.Log(message, level)
}

// SubscribeStatus registers a status handler and returns its subscription id.
func (b *Bus) SubscribeStatus(handler func(StatusEvent)) string {
	return b.status.subscribe(handler)
}

// SubscribeLog registers a log handler.
func (b *Bus) SubscribeLog(handler func(LogEvent)) string {
	return b.log.subscribe(handler)
}

// SubscribeContext registers a workspace snapshot handler.
func (b *Bus) SubscribeContext(handler func(ContextEvent)) string {
	return b.context.subscribe(handler)
}

// SubscribeActionList registers an action list handler.
func (b *Bus) SubscribeActionList(handler func(ActionListEvent)) string {
	return b.actionList.subscribe(handler)
}

// SubscribeBridgeState registers a bridge state handler.
func (b *Bus) SubscribeBridgeState(handler func(BridgeStateEvent)) string {
	return b.bridgeState.subscribe(handler)
}

// SubscribeBridgeMessage registers a bridge traffic handler.
func (b *Bus) SubscribeBridgeMessage(handler func(BridgeMessageEvent)) string {
	return b.bridgeMessage.subscribe(handler)
}

// Unsubscribe removes a subscription from whichever channel owns it.
func (b *Bus) Unsubscribe(id string) {
	if id == "" {
		return
	}
	b.status.unsubscribe(id)
	b.log.unsubscribe(id)
	b.context.unsubscribe(id)
	b.actionList.unsubscribe(id)
	b.bridgeState.unsubscribe(id)
	b.bridgeMessage.unsubscribe(id)
}
