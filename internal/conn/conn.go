// Package conn owns the single long-lived WebSocket connection to the search
// backend and reports its lifecycle to registered observers.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrNotOpen is returned by Send when the connection is not Open.
var ErrNotOpen = errors.New("connection is not open")

type State int

const (
	Idle State = iota
	Connecting
	Open
	Closed
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Conn is the subset of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c, resp, err := dialer.DialContext(ctx, endpoint, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return c, nil
}

// Endpoint derives ws://<host>/ws, or wss:// when secure.
func Endpoint(host string, secure bool) string {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	if secure {
		u.Scheme = "wss"
	}
	return u.String()
}

// Manager holds one connection. It never reconnects: once the connection is
// closed or errored every Send fails until a new Manager is created.
type Manager struct {
	endpoint string
	dialer   Dialer
	log      zerolog.Logger

	mu         sync.Mutex
	state      State
	conn       Conn
	onMessage  func([]byte)
	onError    func(error)
	onClose    func()
	errorFired bool
	closeFired bool

	writeMu sync.Mutex
}

func NewManager(endpoint string, dialer Dialer, log zerolog.Logger) *Manager {
	return &Manager{
		endpoint: endpoint,
		dialer:   dialer,
		log:      log.With().Str("endpoint", endpoint).Logger(),
	}
}

func (m *Manager) Endpoint() string { return m.endpoint }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnMessage registers the handler for inbound payloads. Payloads are
// delivered one at a time, in the order the backend sent them.
func (m *Manager) OnMessage(fn func([]byte)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

func (m *Manager) OnError(fn func(error)) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

func (m *Manager) OnClose(fn func()) {
	m.mu.Lock()
	m.onClose = fn
	m.mu.Unlock()
}

// Open starts the handshake. Only the first call does anything; it returns
// once the handshake has succeeded or failed. Failures are reported through
// the error observer, not returned.
func (m *Manager) Open(ctx context.Context) {
	m.mu.Lock()
	if m.state != Idle {
		m.mu.Unlock()
		return
	}
	m.state = Connecting
	m.mu.Unlock()
	m.log.Debug().Msg("connecting")

	c, err := m.dialer.Dial(ctx, m.endpoint)
	if err != nil {
		m.fail(err)
		return
	}

	m.mu.Lock()
	if m.state != Connecting {
		// Closed locally while the handshake was in flight.
		m.mu.Unlock()
		_ = c.Close()
		return
	}
	m.state = Open
	m.conn = c
	m.mu.Unlock()
	m.log.Info().Msg("connection established")

	go m.readLoop(c)
}

// Send transmits payload as one text message.
func (m *Manager) Send(payload []byte) error {
	m.mu.Lock()
	state, c := m.state, m.conn
	m.mu.Unlock()
	if state != Open {
		m.log.Debug().Str("state", state.String()).Msg("send rejected")
		return fmt.Errorf("%w (state %s)", ErrNotOpen, state)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Close closes the connection locally. The close observer fires if the
// connection had been opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	prev, c := m.state, m.conn
	if prev == Closed || prev == Errored {
		m.mu.Unlock()
		return nil
	}
	m.state = Closed
	m.mu.Unlock()
	if prev == Idle {
		return nil
	}
	m.log.Info().Msg("closing connection")

	var err error
	if c != nil {
		m.writeMu.Lock()
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		err = c.Close()
	}
	m.fireClose()
	return err
}

func (m *Manager) readLoop(c Conn) {
	for {
		mt, payload, err := c.ReadMessage()
		if err != nil {
			m.handleReadError(c, err)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		m.mu.Lock()
		fn := m.onMessage
		m.mu.Unlock()
		if fn != nil {
			fn(payload)
		}
	}
}

func (m *Manager) handleReadError(c Conn, err error) {
	m.mu.Lock()
	if m.state != Open {
		// Local Close already reported the termination.
		m.mu.Unlock()
		return
	}
	clean := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	if clean {
		m.state = Closed
	} else {
		m.state = Errored
	}
	m.mu.Unlock()
	_ = c.Close()

	if clean {
		m.log.Info().Msg("connection closed by backend")
		m.fireClose()
		return
	}
	m.log.Error().Err(err).Msg("connection dropped")
	m.fireError(err)
	m.fireClose()
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	if m.state != Connecting {
		m.mu.Unlock()
		return
	}
	m.state = Errored
	m.mu.Unlock()
	m.log.Error().Err(err).Msg("connection failed")
	m.fireError(err)
	m.fireClose()
}

func (m *Manager) fireError(err error) {
	m.mu.Lock()
	fn := m.onError
	fired := m.errorFired
	m.errorFired = true
	m.mu.Unlock()
	if fn != nil && !fired {
		fn(err)
	}
}

func (m *Manager) fireClose() {
	m.mu.Lock()
	fn := m.onClose
	fired := m.closeFired
	m.closeFired = true
	m.mu.Unlock()
	if fn != nil && !fired {
		fn()
	}
}
