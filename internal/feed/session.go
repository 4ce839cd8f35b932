package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"marketfeed/internal/obs"
	"marketfeed/pkg/exception"
	"marketfeed/pkg/transport"
)

// State is the session lifecycle phase.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticated
	StateActive
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Sink consumes decoded packets, tagged with the owning session id.
type Sink interface {
	OnPacket(sessionID string, pkt Packet)
}

// Option configures a session.
type Option struct {
	ID             string
	AccountID      string
	Dialer         transport.Dialer
	Sink           Sink
	Metrics        *obs.Metrics
	Backoff        transport.Backoff
	WriteQueueSize int
}

type wireKey struct {
	code  byte
	scrip int32
}

// Session owns one authenticated connection to the broker feed. It drives
// login, heartbeat replies, wire-level token registration and reconnects
// with backoff. Transport failures never escape the session.
type Session struct {
	opt Option
	out chan []byte

	mu            sync.Mutex
	state         State
	lastHeartbeat time.Time
	registered    map[wireKey]struct{}

	connected atomic.Bool
	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSession validates the option and builds an idle session.
func NewSession(opt Option) (*Session, error) {
	if opt.Dialer == nil {
		return nil, errors.New("feed: nil dialer")
	}
	if opt.Sink == nil {
		return nil, errors.New("feed: nil sink")
	}
	if opt.ID == "" {
		opt.ID = opt.AccountID
	}
	if opt.WriteQueueSize <= 0 {
		opt.WriteQueueSize = 64
	}
	if opt.Backoff == (transport.Backoff{}) {
		opt.Backoff = transport.DefaultBackoff()
	}
	return &Session{
		opt:        opt,
		out:        make(chan []byte, opt.WriteQueueSize),
		state:      StateIdle,
		registered: make(map[wireKey]struct{}),
		done:       make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.opt.ID
}

// Start launches the connection lifecycle. Safe to call once.
func (s *Session) Start(parent context.Context) {
	if parent == nil || !s.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	go func() {
		s.run(ctx)
		close(s.done)
	}()
}

// Terminate stops the session permanently and waits for the run loop to
// exit. Cancels any in-flight backoff timer.
func (s *Session) Terminate() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if s.running.Load() {
		<-s.done
	}
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastHeartbeat reports when the broker last pinged this session.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// RegisteredCount reports how many scrips are registered on the wire.
func (s *Session) RegisteredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registered)
}

// RegisterToken records a scrip in the wire-registration set and, when
// connected, sends the subscribe frame. The set is replayed after every
// reconnect so the broker-side subscription survives transport churn.
func (s *Session) RegisterToken(exchange string, scrip int32) error {
	code, ok := exchangeCode(exchange)
	if !ok {
		return errors.Wrap(exception.ErrUnknownExchange, exchange)
	}
	if s.State() == StateTerminated {
		return exception.ErrSessionTerminated
	}
	key := wireKey{code: code, scrip: scrip}
	s.mu.Lock()
	_, exists := s.registered[key]
	if !exists {
		s.registered[key] = struct{}{}
	}
	s.mu.Unlock()
	if exists || !s.connected.Load() {
		return nil
	}
	return s.enqueue(EncodeSubscribe(code, scrip, true))
}

// UnregisterToken removes a scrip from the wire-registration set and,
// when connected, sends the unsubscribe frame.
func (s *Session) UnregisterToken(exchange string, scrip int32) error {
	code, ok := exchangeCode(exchange)
	if !ok {
		return errors.Wrap(exception.ErrUnknownExchange, exchange)
	}
	if s.State() == StateTerminated {
		return exception.ErrSessionTerminated
	}
	key := wireKey{code: code, scrip: scrip}
	s.mu.Lock()
	_, exists := s.registered[key]
	if exists {
		delete(s.registered, key)
	}
	s.mu.Unlock()
	if !exists || !s.connected.Load() {
		return nil
	}
	return s.enqueue(EncodeSubscribe(code, scrip, false))
}

func (s *Session) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			s.setState(StateTerminated)
			return
		}
		s.setState(StateConnecting)
		conn, err := s.opt.Dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(StateTerminated)
				return
			}
			logs.Warnf("session %s: dial failed: %v", s.opt.ID, err)
			attempt++
			s.opt.Metrics.AddReconnect()
			s.setState(StateReconnecting)
			s.sleepBackoff(ctx, attempt)
			continue
		}
		attempt = 0

		if err := conn.Write(ctx, EncodeLogin(s.opt.AccountID)); err != nil {
			logs.Warnf("session %s: login send failed: %v", s.opt.ID, err)
			_ = conn.Close()
			attempt++
			s.opt.Metrics.AddReconnect()
			s.setState(StateReconnecting)
			s.sleepBackoff(ctx, attempt)
			continue
		}
		s.setState(StateAuthenticated)
		s.connected.Store(true)
		s.resendRegistrations()

		err = s.runConn(ctx, conn)
		s.connected.Store(false)
		s.drainOut()
		_ = conn.Close()

		if ctx.Err() != nil {
			s.setState(StateTerminated)
			return
		}
		// A drop before the first valid frame means the broker never
		// accepted the login.
		if s.State() == StateAuthenticated {
			logs.Errorf("session %s: %v", s.opt.ID,
				errors.Wrapf(exception.ErrLoginRejected, "connection dropped before first frame: %v", err))
			s.opt.Metrics.AddLoginFailure()
		} else {
			logs.Warnf("session %s: connection lost: %v", s.opt.ID, err)
		}
		attempt++
		s.opt.Metrics.AddReconnect()
		s.setState(StateReconnecting)
		s.sleepBackoff(ctx, attempt)
	}
}

func (s *Session) runConn(ctx context.Context, conn transport.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go s.readLoop(connCtx, conn, errCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case payload := <-s.out:
			if err := conn.Write(connCtx, payload); err != nil {
				return err
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context, conn transport.Conn, errCh chan<- error) {
	// Alignment restarts with each connection.
	reasm := &Reassembler{}
	for {
		chunk, err := conn.Read(ctx)
		if err != nil {
			errCh <- err
			return
		}
		for _, frame := range reasm.Feed(chunk) {
			s.handleFrame(frame)
		}
	}
}

func (s *Session) handleFrame(frame []byte) {
	pkt, err := DecodeFrame(frame)
	if err != nil {
		// Malformed frame: drop it, keep the session alive.
		s.opt.Metrics.AddDecodeError()
		logs.Warnf("session %s: drop frame: %v", s.opt.ID, err)
		return
	}
	s.opt.Metrics.AddFrame()
	s.markActive()

	if pkt.Kind == KindHeartbeat {
		s.opt.Metrics.AddHeartbeat()
		s.markHeartbeat(pkt.Time)
		if err := s.enqueue(EncodeHeartbeatReply()); err != nil {
			logs.Warnf("session %s: heartbeat reply dropped: %v", s.opt.ID, err)
		}
		return
	}
	s.opt.Sink.OnPacket(s.opt.ID, pkt)
}

func (s *Session) enqueue(payload []byte) error {
	if !s.connected.Load() {
		return exception.ErrNotConnected
	}
	select {
	case s.out <- payload:
		return nil
	default:
		return exception.ErrWriteQueueFull
	}
}

func (s *Session) resendRegistrations() {
	s.mu.Lock()
	keys := make([]wireKey, 0, len(s.registered))
	for key := range s.registered {
		keys = append(keys, key)
	}
	s.mu.Unlock()
	for _, key := range keys {
		if err := s.enqueue(EncodeSubscribe(key.code, key.scrip, true)); err != nil {
			logs.Warnf("session %s: resend registration %c/%d failed: %v",
				s.opt.ID, key.code, key.scrip, err)
		}
	}
}

func (s *Session) drainOut() {
	for {
		select {
		case <-s.out:
		default:
			return
		}
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) markActive() {
	s.mu.Lock()
	if s.state == StateAuthenticated {
		s.state = StateActive
	}
	s.mu.Unlock()
}

func (s *Session) markHeartbeat(at time.Time) {
	s.mu.Lock()
	s.lastHeartbeat = at
	s.mu.Unlock()
}

func (s *Session) sleepBackoff(ctx context.Context, attempt int) {
	wait := s.opt.Backoff.Next(attempt)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
