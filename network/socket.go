package network

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatline/logging"
)

var (
	// ErrSocketStopped indicates the socket was stopped.
	ErrSocketStopped = errors.New("network: socket stopped")
	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("network: socket already started")
)

// Status is the human-readable connection label shown to the user.
type Status string

const (
	StatusConnecting   Status = "Connecting..."
	StatusConnected    Status = "Connected"
	StatusDisconnected Status = "Disconnected"
	StatusError        Status = "Error"
)

// closeReasonUnmount is sent when a view tears its socket down.
const closeReasonUnmount = "Component unmounting"

var defaultReconnectBackoff = []time.Duration{
	DefaultReconnectDelay,
}

// FrameHandler receives inbound frames in arrival order on one goroutine.
type FrameHandler func(kind FrameKind, payload []byte)

// SocketOptions configures a Socket.
type SocketOptions struct {
	// Name labels log lines, e.g. "chat:12" or "notifications".
	Name string
	// URL is resolved on every dial so a refreshed token is picked up.
	URL func() (string, error)
	// ReconnectBackoff lists the delay before each successive redial; later
	// attempts reuse the last entry.
	ReconnectBackoff []time.Duration
	// NoRetryCodes are close codes, besides 1000, that end the socket for good.
	NoRetryCodes []int
	Connection   ConnectionOptions

	// OnOpen runs after each successful dial, before frames are delivered.
	OnOpen   func(conn *Connection)
	OnFrame  FrameHandler
	// OnInvalid sees frames that are not JSON objects.
	OnInvalid func(payload []byte, err error)
	OnStatus  func(Status)
	// OnClose reports every close of a live connection with its code.
	OnClose func(code int, err error)
	Logger  *zap.SugaredLogger
}

// Socket keeps at most one live Connection for a view and redials it after
// abnormal closes.
type Socket struct {
	options SocketOptions
	log     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	deliver chan []byte

	mu              sync.Mutex
	conn            *Connection
	reconnectCancel context.CancelFunc
	attempt         int
	started         bool
	stopped         bool
	status          Status

	stopOnce sync.Once
}

// NewSocket creates an idle Socket. Call Start to dial.
func NewSocket(options SocketOptions) *Socket {
	if len(options.ReconnectBackoff) == 0 {
		options.ReconnectBackoff = append([]time.Duration(nil), defaultReconnectBackoff...)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Socket{
		options: options,
		log:     logging.OrNop(options.Logger).With("socket", options.Name),
		ctx:     ctx,
		cancel:  cancel,
		deliver: make(chan []byte, 256),
		status:  StatusDisconnected,
	}
}

// Start dials the first connection. A failed first dial is returned and a
// reconnect is still scheduled unless the failure is terminal.
func (s *Socket) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSocketStopped
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.deliverLoop()

	if err := s.dial(s.ctx); err != nil {
		if s.shouldRetry(dialCloseCode(err)) {
			s.scheduleReconnect(s.nextDelay(), false)
		}
		return err
	}
	return nil
}

// Stop cancels any pending reconnect and closes the live connection with 1000.
// It must not be called from inside a handler.
func (s *Socket) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		conn := s.conn
		s.conn = nil
		if s.reconnectCancel != nil {
			s.reconnectCancel()
			s.reconnectCancel = nil
		}
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close(CloseNormal, closeReasonUnmount)
		}
		s.cancel()
		s.wg.Wait()
		s.setStatus(StatusDisconnected)
		s.log.Debugw("socket stopped")
	})
}

// Send writes a frame on the live connection. When no connection is open it
// returns ErrNotConnected and redials immediately.
func (s *Socket) Send(frame any) error {
	s.mu.Lock()
	conn := s.conn
	stopped := s.stopped
	s.mu.Unlock()

	if stopped {
		return ErrSocketStopped
	}
	if conn == nil || conn.State() != StateOpen {
		s.log.Infow("send while disconnected, reconnecting")
		s.scheduleReconnect(0, true)
		return ErrNotConnected
	}
	return conn.Send(frame)
}

// Connected reports whether a connection is currently open.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn != nil && conn.State() == StateOpen
}

// Status returns the last reported status label.
func (s *Socket) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ReconnectPending reports whether a redial is scheduled.
func (s *Socket) ReconnectPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectCancel != nil
}

func (s *Socket) dial(ctx context.Context) error {
	s.setStatus(StatusConnecting)

	rawURL, err := s.options.URL()
	if err != nil {
		s.setStatus(StatusError)
		return err
	}

	conn, err := Dial(ctx, rawURL, s.options.Connection)
	if err != nil {
		s.log.Warnw("dial failed", "url", RedactURL(rawURL), "error", err)
		s.setStatus(StatusError)
		return err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = conn.Close(CloseNormal, closeReasonUnmount)
		return ErrSocketStopped
	}
	prev := s.conn
	s.conn = conn
	s.attempt = 0
	s.wg.Add(1)
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Close(CloseNormal, "replaced")
	}

	s.log.Infow("connected", "url", RedactURL(rawURL))
	s.setStatus(StatusConnected)
	if s.options.OnOpen != nil {
		s.options.OnOpen(conn)
	}

	go s.pump(conn)
	return nil
}

func (s *Socket) pump(conn *Connection) {
	defer s.wg.Done()
	for {
		payload, err := conn.Receive(s.ctx)
		if err != nil {
			break
		}
		select {
		case s.deliver <- payload:
		case <-s.ctx.Done():
			return
		}
	}
	s.handleClose(conn)
}

func (s *Socket) handleClose(conn *Connection) {
	code := conn.CloseCode()
	closeErr := conn.LastError()

	s.mu.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
	}
	stopped := s.stopped
	s.mu.Unlock()

	if !current || stopped {
		return
	}

	s.log.Infow("disconnected", "code", code, "error", closeErr)
	s.setStatus(StatusDisconnected)
	if s.options.OnClose != nil {
		s.options.OnClose(code, closeErr)
	}

	if !s.shouldRetry(code) {
		return
	}
	s.scheduleReconnect(s.nextDelay(), false)
}

// scheduleReconnect arms a single redial. With replace set, a pending redial
// is cancelled and re-armed with delay.
func (s *Socket) scheduleReconnect(delay time.Duration, replace bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.reconnectCancel != nil {
		if !replace {
			s.mu.Unlock()
			return
		}
		s.reconnectCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.reconnectCancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Debugw("reconnect scheduled", "delay", delay)

	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}

		s.mu.Lock()
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.reconnectCancel = nil
		live := s.conn != nil
		s.mu.Unlock()
		defer cancel()

		if live {
			return
		}
		if err := s.dial(ctx); err != nil {
			if errors.Is(err, ErrSocketStopped) || s.ctx.Err() != nil {
				return
			}
			if s.shouldRetry(dialCloseCode(err)) {
				s.scheduleReconnect(s.nextDelay(), false)
			}
		}
	}()
}

func (s *Socket) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	delay := s.backoffForAttempt(s.attempt)
	s.attempt++
	return delay
}

func (s *Socket) backoffForAttempt(attempt int) time.Duration {
	backoff := s.options.ReconnectBackoff
	if len(backoff) == 0 {
		return 0
	}
	if attempt < len(backoff) {
		return backoff[attempt]
	}
	return backoff[len(backoff)-1]
}

func (s *Socket) shouldRetry(code int) bool {
	if code == CloseNormal {
		return false
	}
	for _, c := range s.options.NoRetryCodes {
		if c == code {
			return false
		}
	}
	return true
}

func (s *Socket) deliverLoop() {
	defer s.wg.Done()
	for {
		select {
		case payload := <-s.deliver:
			kind, err := DecodeFrameKind(payload)
			if err != nil {
				s.log.Warnw("dropping undecodable frame", "error", err)
				if s.options.OnInvalid != nil {
					s.options.OnInvalid(payload, err)
				}
				continue
			}
			if s.options.OnFrame != nil {
				s.options.OnFrame(kind, payload)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Socket) setStatus(status Status) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()

	if changed && s.options.OnStatus != nil {
		s.options.OnStatus(status)
	}
}

// dialCloseCode maps a dial failure onto the close code a browser would
// eventually see. A refused upgrade for auth reasons counts as 4001.
func dialCloseCode(err error) int {
	var hsErr *HandshakeError
	if errors.As(err, &hsErr) {
		switch hsErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return CloseUnauthorized
		}
	}
	return CloseAbnormal
}
