// Package bridge maintains the websocket connection to the external agent.
// It owns the reconnect state machine and guarantees at most one live socket
// at any instant; everything above it talks frames, never sockets.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/odvcencio/tether/pkg/config"
	"github.com/odvcencio/tether/pkg/protocol"
)

// State is the bridge connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateError        State = "error"
)

// Direction tags a bridge message event with its flow direction.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// EventSink receives bridge lifecycle events, traffic events, and log lines.
type EventSink interface {
	PublishBridgeState(state State, message string)
	PublishBridgeMessage(direction Direction, frame protocol.Frame)
	PublishLog(level, message string)
}

const (
	clientName     = "tether"
	dialTimeout    = 15 * time.Second
	writeTimeout   = 10 * time.Second
	maxReadLimit   = 32 << 20
	maxBackoffStep = 5
	maxBackoff     = 30 * time.Second
)

// ReconnectDelay returns the backoff before reconnect attempt retry
// (1-based). Doubles from 2s up to a 30s ceiling.
func ReconnectDelay(retry int) time.Duration {
	step := retry
	if step > maxBackoffStep {
		step = maxBackoffStep
	}
	d := time.Second * time.Duration(1<<step)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Bridge is the connection manager. All state transitions happen under mu;
// the generation counter invalidates callbacks from sockets and timers that
// belong to a torn-down connection attempt.
type Bridge struct {
	sink     EventSink
	clientID string

	mu         sync.Mutex
	cfg        config.BridgeConfig
	state      State
	stateMsg   string
	retry      int
	generation uint64
	conn       *websocket.Conn
	cancelRead context.CancelFunc
	reconnect  *time.Timer
	disposed   bool
}

// New creates a bridge with the given configuration. The bridge stays
// Disconnected until Restart is called.
func New(cfg config.BridgeConfig, sink EventSink) *Bridge {
	return &Bridge{
		sink:     sink,
		clientID: uuid.NewString(),
		cfg:      cfg,
		state:    StateDisconnected,
	}
}

// State returns the current connection state and its message.
func (b *Bridge) State() (State, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.stateMsg
}

// ApplyConfiguration replaces the bridge configuration and restarts the
// connection.
func (b *Bridge) ApplyConfiguration(cfg config.BridgeConfig) {
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
	b.Restart()
}

// Restart tears down any live socket and pending reconnect, then connects
// fresh according to the current configuration.
func (b *Bridge) Restart() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.teardownLocked()
	b.retry = 0

	var notify func()
	switch {
	case !b.cfg.Enabled:
		notify = b.setStateLocked(StateDisconnected, "bridge disabled")
	case b.cfg.Endpoint == "":
		notify = b.setStateLocked(StateError, "no agent endpoint configured")
	default:
		notify = b.connectLocked()
	}
	b.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Close permanently disposes the bridge. Subsequent Restart and Send calls
// are no-ops.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	b.teardownLocked()
	notify := b.setStateLocked(StateDisconnected, "bridge closed")
	b.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Send transmits a frame over the live socket. Returns false without
// transmitting when the bridge is not Ready. Transmission failures are
// reported through the sink and flip the bridge into Error; they never
// propagate to the caller.
func (b *Bridge) Send(frame protocol.Frame, silent bool) bool {
	b.mu.Lock()
	if b.state != StateReady || b.conn == nil {
		b.mu.Unlock()
		b.sink.PublishLog("warn", fmt.Sprintf("bridge not ready, dropping %s frame", frame.Type))
		return false
	}
	conn := b.conn
	gen := b.generation
	b.mu.Unlock()

	payload, err := frame.Encode()
	if err != nil {
		b.sink.PublishLog("error", fmt.Sprintf("encode %s frame: %v", frame.Type, err))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	err = conn.Write(ctx, websocket.MessageText, payload)
	cancel()
	if err != nil {
		b.sink.PublishLog("error", fmt.Sprintf("bridge send failed: %v", err))
		b.socketDown(gen, StateError, fmt.Sprintf("send failed: %v", err))
		return false
	}

	b.sink.PublishBridgeMessage(DirectionOutbound, frame)
	if !silent {
		b.sink.PublishLog("debug", fmt.Sprintf("sent %s frame", frame.Type))
	}
	return true
}

// connectLocked begins a connection attempt. Caller holds mu. Returns the
// deferred state notification.
func (b *Bridge) connectLocked() func() {
	notify := b.setStateLocked(StateConnecting, "")
	gen := b.generation
	endpoint := b.cfg.Endpoint
	token := b.cfg.AuthToken
	go b.dial(gen, endpoint, token)
	return notify
}

// dial performs the websocket handshake off the lock. The generation check
// discards the result if the bridge was restarted or closed meanwhile.
func (b *Bridge) dial(gen uint64, endpoint, token string) {
	opts := &websocket.DialOptions{
		HTTPHeader: http.Header{},
	}
	if token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, resp, err := websocket.Dial(dialCtx, endpoint, opts)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		msg := fmt.Sprintf("connection failed: %v", err)
		if resp != nil {
			msg = fmt.Sprintf("connection failed (%s): %v", resp.Status, err)
		}
		b.mu.Lock()
		if gen != b.generation || b.disposed {
			b.mu.Unlock()
			return
		}
		notify := b.setStateLocked(StateError, msg)
		b.scheduleReconnectLocked()
		b.mu.Unlock()
		if notify != nil {
			notify()
		}
		return
	}

	conn.SetReadLimit(maxReadLimit)

	b.mu.Lock()
	if gen != b.generation || b.disposed {
		b.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	readCtx, cancelRead := context.WithCancel(context.Background())
	b.conn = conn
	b.cancelRead = cancelRead
	b.retry = 0
	notify := b.setStateLocked(StateReady, "")
	b.mu.Unlock()

	if notify != nil {
		notify()
	}

	b.Send(protocol.NewHello(clientName, b.clientID), true)
	go b.readLoop(readCtx, gen, conn)
}

// readLoop pumps inbound frames until the socket dies or is torn down.
func (b *Bridge) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Torn down locally; Restart or Close already handled state.
				return
			}
			if websocket.CloseStatus(err) != -1 {
				b.socketDown(gen, StateDisconnected, "connection closed by agent")
			} else {
				b.socketDown(gen, StateError, fmt.Sprintf("connection error: %v", err))
			}
			return
		}

		frame, err := protocol.Parse(data)
		if err != nil {
			b.sink.PublishLog("warn", fmt.Sprintf("dropping unparseable frame: %v", err))
			continue
		}
		b.sink.PublishBridgeMessage(DirectionInbound, frame)
	}
}

// socketDown handles an asynchronous socket failure for generation gen.
// Stale generations are ignored so only the live socket can change state.
func (b *Bridge) socketDown(gen uint64, state State, message string) {
	b.mu.Lock()
	if gen != b.generation || b.disposed {
		b.mu.Unlock()
		return
	}
	b.teardownLocked()
	notify := b.setStateLocked(state, message)
	b.scheduleReconnectLocked()
	b.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// teardownLocked invalidates in-flight callbacks and closes any live socket.
// Caller holds mu.
func (b *Bridge) teardownLocked() {
	b.generation++
	if b.reconnect != nil {
		b.reconnect.Stop()
		b.reconnect = nil
	}
	if b.cancelRead != nil {
		b.cancelRead()
		b.cancelRead = nil
	}
	if b.conn != nil {
		conn := b.conn
		b.conn = nil
		go conn.Close(websocket.StatusNormalClosure, "bridge restarting")
	}
}

// scheduleReconnectLocked arms the reconnect timer with exponential backoff.
// Caller holds mu.
func (b *Bridge) scheduleReconnectLocked() {
	if b.disposed || !b.cfg.Enabled || b.cfg.Endpoint == "" {
		return
	}
	b.retry++
	gen := b.generation
	delay := ReconnectDelay(b.retry)
	b.reconnect = time.AfterFunc(delay, func() {
		b.mu.Lock()
		if gen != b.generation || b.disposed || b.state == StateReady {
			b.mu.Unlock()
			return
		}
		notify := b.connectLocked()
		b.mu.Unlock()
		if notify != nil {
			notify()
		}
	})
}

// setStateLocked records a state transition and returns the deferred sink
// notification, or nil when the transition is a duplicate. Caller holds mu
// and must invoke the returned func after unlocking.
func (b *Bridge) setStateLocked(state State, message string) func() {
	if b.state == state && b.stateMsg == message {
		return nil
	}
	b.state = state
	b.stateMsg = message
	return func() {
		b.sink.PublishBridgeState(state, message)
	}
}
