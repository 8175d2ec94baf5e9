package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatline/api"
	"chatline/logging"
	"chatline/models"
	"chatline/network"
)

const DefaultPingInterval = 30 * time.Second

var (
	ErrFetchCounts = errors.New("Failed to fetch notification counts")
	ErrMarkRead    = errors.New("Failed to mark conversation as read")
)

// CountsAPI is the REST surface the service needs.
type CountsAPI interface {
	NotificationCounts(ctx context.Context) (*models.NotificationCounts, error)
	MarkConversationRead(ctx context.Context, id models.ID) (*api.MarkReadResult, error)
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	API    CountsAPI
	Counts *Counts
	// SocketURL resolves the notifications socket URL, token included.
	SocketURL      func() (string, error)
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	Connection     network.ConnectionOptions

	OnConversationUpdate func(conv models.Conversation, isNew bool)
	OnConversationDelete func(id models.ID)
	OnStatus             func(network.Status)
	Logger               *zap.SugaredLogger
}

// Service keeps the notifications socket open and folds its pushes into Counts.
type Service struct {
	options ServiceOptions
	counts  *Counts
	socket  *network.Socket
	log     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	errText string
}

// NewService builds a stopped Service. A nil Counts gets a fresh store.
func NewService(options ServiceOptions) *Service {
	if options.Counts == nil {
		options.Counts = NewCounts()
	}
	if options.ReconnectDelay <= 0 {
		options.ReconnectDelay = network.DefaultReconnectDelay
	}
	if options.PingInterval <= 0 {
		options.PingInterval = DefaultPingInterval
	}
	options.Connection.PingInterval = options.PingInterval

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		options: options,
		counts:  options.Counts,
		log:     logging.OrNop(options.Logger).With("component", "notifications"),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.socket = network.NewSocket(network.SocketOptions{
		Name:             "notifications",
		URL:              options.SocketURL,
		ReconnectBackoff: []time.Duration{options.ReconnectDelay},
		NoRetryCodes:     []int{network.CloseUnauthorized},
		Connection:       options.Connection,
		OnOpen:           s.handleOpen,
		OnFrame:          s.handleFrame,
		OnStatus:         s.handleStatus,
		OnClose:          s.handleClose,
		Logger:           options.Logger,
	})
	return s
}

// Counts returns the store the service writes to.
func (s *Service) Counts() *Counts {
	return s.counts
}

// Start fetches the counts once and connects the socket. A failed dial is
// returned; the socket retries in the background unless the server refused
// the token.
func (s *Service) Start() error {
	s.fetchAsync()
	if err := s.socket.Start(); err != nil {
		return fmt.Errorf("connect notifications socket: %w", err)
	}
	return nil
}

// Stop closes the socket with 1000 and waits for background fetches.
func (s *Service) Stop() {
	s.socket.Stop()
	s.cancel()
	s.wg.Wait()
}

// Refresh fetches counts over REST now.
func (s *Service) Refresh(ctx context.Context) error {
	counts, err := s.options.API.NotificationCounts(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			s.log.Debugw("count fetch unauthorized, clearing counts")
			s.counts.ApplyFetched(models.NotificationCounts{})
			return nil
		}
		s.setError(api.Message(err, ErrFetchCounts.Error()))
		return fmt.Errorf("%w: %v", ErrFetchCounts, err)
	}
	s.counts.ApplyFetched(*counts)
	return nil
}

// MarkRead marks a conversation read on the server and clears its counter.
func (s *Service) MarkRead(ctx context.Context, id models.ID) error {
	if _, err := s.options.API.MarkConversationRead(ctx, id); err != nil {
		s.setError(api.Message(err, ErrMarkRead.Error()))
		return fmt.Errorf("%w: %v", ErrMarkRead, err)
	}
	s.counts.Reset(id)
	return nil
}

// Ping sends an application ping if the socket is open.
func (s *Service) Ping() {
	if !s.socket.Connected() {
		return
	}
	if err := s.socket.Send(network.TypeFrame{Type: network.TypePing}); err != nil {
		s.log.Debugw("ping failed", "error", err)
	}
}

// Connected reports whether the notifications socket is open.
func (s *Service) Connected() bool {
	return s.socket.Connected()
}

// Status returns the socket status label.
func (s *Service) Status() network.Status {
	return s.socket.Status()
}

// Error returns the last error line, or "".
func (s *Service) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errText
}

func (s *Service) fetchAsync() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Refresh(s.ctx); err != nil && s.ctx.Err() == nil {
			s.log.Warnw("count fetch failed", "error", err)
		}
	}()
}

func (s *Service) handleOpen(conn *network.Connection) {
	s.setError("")
	if err := conn.Send(network.TypeFrame{Type: network.TypeRequestCounts}); err != nil {
		s.log.Warnw("request_counts failed", "error", err)
	}
	s.fetchAsync()
}

func (s *Service) handleFrame(kind network.FrameKind, payload []byte) {
	switch kind {
	case network.KindCountUpdate:
		var frame network.CountUpdateFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.log.Warnw("bad count update", "error", err)
			return
		}
		s.counts.ApplyPush(frame.NotificationData)

	case network.KindConversation:
		var frame network.ConversationUpdateFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.log.Warnw("bad conversation update", "error", err)
			return
		}
		if s.options.OnConversationUpdate != nil {
			s.options.OnConversationUpdate(frame.Conversation, frame.IsNew)
		}

	case network.KindConversationDel:
		var frame network.ConversationDeleteFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.log.Warnw("bad conversation delete", "error", err)
			return
		}
		s.counts.Reset(frame.ConversationID)
		if s.options.OnConversationDelete != nil {
			s.options.OnConversationDelete(frame.ConversationID)
		}

	case network.KindPong:
		s.log.Debugw("pong")

	default:
		s.log.Debugw("ignoring frame", "kind", kind)
	}
}

func (s *Service) handleStatus(status network.Status) {
	if status == network.StatusError {
		s.setError("WebSocket connection error")
	}
	if s.options.OnStatus != nil {
		s.options.OnStatus(status)
	}
}

func (s *Service) handleClose(code int, err error) {
	if code == network.CloseUnauthorized {
		s.log.Infow("notifications socket rejected token", "error", err)
	}
}

func (s *Service) setError(text string) {
	s.mu.Lock()
	s.errText = text
	s.mu.Unlock()
}
