package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConnected indicates a send on a socket that is not open.
	ErrNotConnected = errors.New("network: websocket not connected")
	// ErrHandshakeRejected indicates the server refused the upgrade.
	ErrHandshakeRejected = errors.New("network: handshake rejected")
)

// ConnectionState represents the lifecycle state of one WebSocket.
type ConnectionState string

const (
	StateConnecting ConnectionState = "CONNECTING"
	StateOpen       ConnectionState = "OPEN"
	StateClosing    ConnectionState = "CLOSING"
	StateClosed     ConnectionState = "CLOSED"
)

const (
	defaultSendRate  = rate.Limit(20)
	defaultSendBurst = 10
)

// ConnectionOptions controls runtime behavior of a Connection.
type ConnectionOptions struct {
	// PingInterval sends PingFrame periodically. Zero disables keep-alive.
	PingInterval time.Duration
	// PingFrame defaults to {"type":"ping"}.
	PingFrame    []byte
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	SendRate     rate.Limit
	SendBurst    int
	Header       http.Header
	Dialer       *websocket.Dialer
}

// HandshakeError carries the HTTP status of a refused upgrade.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("network: handshake rejected with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() []error {
	return []error{ErrHandshakeRejected, e.Err}
}

// Connection manages one client WebSocket.
type Connection struct {
	ws *websocket.Conn

	limiter      *rate.Limiter
	writeTimeout time.Duration
	pingInterval time.Duration
	pingFrame    []byte

	sendMu sync.Mutex

	stateMu sync.RWMutex
	state   ConnectionState

	lastActivity atomic.Int64

	inbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	errMu     sync.RWMutex
	closeErr  error
	closeCode int
}

// Dial opens a WebSocket to rawURL.
func Dial(ctx context.Context, rawURL string, options ConnectionOptions) (*Connection, error) {
	dialer := options.Dialer
	if dialer == nil {
		timeout := options.DialTimeout
		if timeout <= 0 {
			timeout = DefaultConnectionTimeout
		}
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		}
	}

	ws, resp, err := dialer.DialContext(ctx, rawURL, options.Header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("dial %s: %w", RedactURL(rawURL), err)
	}

	return newConnection(ws, options), nil
}

func newConnection(ws *websocket.Conn, options ConnectionOptions) *Connection {
	writeTimeout := options.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	sendRate := options.SendRate
	if sendRate <= 0 {
		sendRate = defaultSendRate
	}
	sendBurst := options.SendBurst
	if sendBurst <= 0 {
		sendBurst = defaultSendBurst
	}
	pingFrame := options.PingFrame
	if len(pingFrame) == 0 {
		pingFrame = []byte(`{"type":"ping"}`)
	}

	c := &Connection{
		ws:           ws,
		limiter:      rate.NewLimiter(sendRate, sendBurst),
		writeTimeout: writeTimeout,
		pingInterval: options.PingInterval,
		pingFrame:    pingFrame,
		inbound:      make(chan []byte, 64),
		closed:       make(chan struct{}),
		state:        StateConnecting,
	}
	ws.SetReadLimit(MaxFrameSize)

	c.touchActivity()
	c.setState(StateOpen)
	go c.readLoop()
	if c.pingInterval > 0 {
		go c.keepAliveLoop()
	}

	return c
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Done is closed when the connection is fully closed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// LastError returns the terminal connection error, if any.
func (c *Connection) LastError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.closeErr
}

// CloseCode returns the close code once closed, or 0 while open.
func (c *Connection) CloseCode() int {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.closeCode
}

// LastActivity returns the time of the last frame in either direction.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Send marshals a frame and writes it as one text message.
func (c *Connection) Send(frame any) error {
	payload, err := EncodeJSON(frame)
	if err != nil {
		return err
	}
	return c.SendRaw(payload)
}

// SendRaw writes a pre-marshaled payload as one text message.
func (c *Connection) SendRaw(payload []byte) error {
	if c.State() != StateOpen {
		return ErrNotConnected
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send rate: %w", err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.closeWithError(CloseAbnormal, fmt.Errorf("write frame: %w", err))
		return err
	}

	c.touchActivity()
	return nil
}

// Receive waits for the next inbound frame. Frames already buffered are
// returned before the close is reported.
func (c *Connection) Receive(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-c.inbound:
		return payload, nil
	default:
	}

	select {
	case payload := <-c.inbound:
		return payload, nil
	case <-c.closed:
		select {
		case payload := <-c.inbound:
			return payload, nil
		default:
		}
		if err := c.LastError(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a close frame with code and reason, then tears down the socket.
func (c *Connection) Close(code int, reason string) error {
	if c.State() == StateOpen {
		c.setState(StateClosing)
		c.sendMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		c.sendMu.Unlock()
	}
	c.closeWithError(code, nil)
	return nil
}

func (c *Connection) readLoop() {
	for {
		msgType, payload, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			switch {
			case errors.As(err, &closeErr):
				if closeErr.Code == CloseNormal {
					c.closeWithError(closeErr.Code, nil)
				} else {
					c.closeWithError(closeErr.Code, err)
				}
			case errors.Is(err, net.ErrClosed):
				c.closeWithError(CloseAbnormal, nil)
			default:
				c.closeWithError(CloseAbnormal, fmt.Errorf("read frame: %w", err))
			}
			return
		}

		c.touchActivity()
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if len(payload) == 0 {
			continue
		}
		if kind, err := DecodeFrameKind(payload); err == nil && kind == KindPong {
			continue
		}

		select {
		case c.inbound <- payload:
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) keepAliveLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.State() != StateOpen {
				return
			}
			if err := c.SendRaw(c.pingFrame); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) setState(state ConnectionState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = state
}

func (c *Connection) touchActivity() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Connection) closeWithError(code int, err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.closeErr = err
		c.closeCode = code
		c.errMu.Unlock()

		c.setState(StateClosed)
		_ = c.ws.Close()
		close(c.closed)
	})
}

// RedactURL hides the token query parameter for logs.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
