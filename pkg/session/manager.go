package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatbot-client/pkg/identity"
	"github.com/go-go-golems/chatbot-client/pkg/locale"
	"github.com/go-go-golems/chatbot-client/pkg/transport"
)

const (
	DefaultNewChatTimeout    = 10 * time.Second
	DefaultFirstChunkTimeout = 120 * time.Second
)

var errManagerClosed = errors.New("session manager closed")

// Config wires a Manager. Dialer and Endpoint.SourceURL are required.
type Config struct {
	Endpoint Endpoint
	Dialer   transport.Dialer
	Identity *identity.Tracker
	Locale   locale.Provider
	Policy   ReconnectPolicy

	NewChatTimeout    time.Duration
	FirstChunkTimeout time.Duration

	Logger *zerolog.Logger
}

// Manager owns one connection at a time and the operations running on it.
type Manager struct {
	endpoint          Endpoint
	dialer            transport.Dialer
	identity          *identity.Tracker
	locale            locale.Provider
	policy            ReconnectPolicy
	newChatTimeout    time.Duration
	firstChunkTimeout time.Duration
	logger            zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// connectMu serialises dial sequences, streamMu serialises exchanges.
	connectMu sync.Mutex
	streamMu  sync.Mutex

	mu         sync.Mutex
	state      State
	conn       transport.Conn
	gen        uint64
	dials      int
	closed     bool
	exchange   *exchange
	ackWaiters map[uint64]chan struct{}
	nextWaiter uint64
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("session manager: dialer is nil")
	}
	if cfg.Endpoint.SourceURL == "" {
		return nil, errors.New("session manager: source url is empty")
	}
	logger := log.With().Str("component", "session").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "session").Logger()
	}
	if cfg.Identity == nil {
		cfg.Identity = identity.NewTracker(cfg.Endpoint.ChatbotSlug, nil, logger)
	}
	if cfg.Locale == nil {
		cfg.Locale = locale.Env{}
	}
	if cfg.Policy == (ReconnectPolicy{}) {
		cfg.Policy = DefaultReconnectPolicy()
	}
	if cfg.Policy.MaxDelay < cfg.Policy.BaseDelay {
		cfg.Policy.MaxDelay = cfg.Policy.BaseDelay
	}
	if cfg.NewChatTimeout <= 0 {
		cfg.NewChatTimeout = DefaultNewChatTimeout
	}
	if cfg.FirstChunkTimeout <= 0 {
		cfg.FirstChunkTimeout = DefaultFirstChunkTimeout
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		endpoint:          cfg.Endpoint,
		dialer:            cfg.Dialer,
		identity:          cfg.Identity,
		locale:            cfg.Locale,
		policy:            cfg.Policy,
		newChatTimeout:    cfg.NewChatTimeout,
		firstChunkTimeout: cfg.FirstChunkTimeout,
		logger:            logger,
		baseCtx:           baseCtx,
		cancel:            cancel,
		state:             StateDisconnected,
		ackWaiters:        map[uint64]chan struct{}{},
	}, nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dials returns the number of dial attempts made so far.
func (m *Manager) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// EnsureConnected returns immediately when the connection is open. Otherwise it dials,
// retrying per the reconnect policy, and returns a *ConnectionError if it gives up.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	state, closed := m.state, m.closed
	m.mu.Unlock()
	if closed {
		return &ConnectionError{Err: errManagerClosed}
	}
	if state == StateOpen {
		return nil
	}
	return m.connectLocked(ctx)
}

// connectLocked runs one dial sequence. connectMu must be held.
func (m *Manager) connectLocked(ctx context.Context) error {
	m.setState(StateConnecting)

	attempts := 0
	op := func() error {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return backoff.Permanent(errManagerClosed)
		}
		m.dials++
		m.mu.Unlock()
		attempts++
		return m.dialOnce(ctx)
	}
	notify := func(err error, next time.Duration) {
		m.logger.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", next).Msg("websocket connection failed, retrying")
	}

	err := backoff.RetryNotify(op, m.policy.backOff(ctx), notify)
	if err == nil {
		return nil
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed || ctx.Err() != nil {
		// abandoned, not exhausted: keep the identity
		m.setState(StateDisconnected)
		if ctx.Err() != nil && !closed {
			err = ctx.Err()
		}
		return &ConnectionError{Attempts: attempts, Err: err}
	}

	m.logger.Error().Err(err).Int("attempts", attempts).Msg("giving up on websocket connection, resetting session")
	m.setState(StateDisconnected)
	if rerr := m.identity.Reset(context.WithoutCancel(ctx)); rerr != nil {
		m.logger.Warn().Err(rerr).Msg("could not clear persisted identity")
	}
	return &ConnectionError{Attempts: attempts, Err: err}
}

func (m *Manager) dialOnce(ctx context.Context) error {
	rawURL, err := m.endpoint.URL(m.identity.Current(), locale.Primary(m.locale))
	if err != nil {
		return backoff.Permanent(err)
	}
	conn, err := m.dialer.Dial(ctx, rawURL)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return backoff.Permanent(errManagerClosed)
	}
	m.gen++
	gen := m.gen
	m.conn = conn
	m.state = StateOpen
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info().Uint64("generation", gen).Msg("websocket connection established")
	go m.readLoop(conn, gen)
	return nil
}

// readLoop is the single dispatcher for a connection.
func (m *Manager) readLoop(conn transport.Conn, gen uint64) {
	defer m.wg.Done()
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleDrop(conn, gen, err)
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			m.logger.Warn().Err(err).Int("bytes", len(data)).Msg("ignoring undecodable frame")
			continue
		}
		m.route(f)
	}
}

func (m *Manager) route(f Frame) {
	m.mu.Lock()
	if f.Type == TypeNewChatCreated {
		for id, ch := range m.ackWaiters {
			close(ch)
			delete(m.ackWaiters, id)
		}
		m.mu.Unlock()
		return
	}
	ex := m.exchange
	m.mu.Unlock()

	if ex == nil {
		m.logger.Debug().Str("type", f.Type).Msg("no pending exchange, dropping frame")
		return
	}
	ex.deliver(f)
}

func (m *Manager) handleDrop(conn transport.Conn, gen uint64, cause error) {
	_ = conn.Close()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateClosed
	ex := m.exchange
	reconnect := ex == nil && !m.closed
	if reconnect {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	m.logger.Info().Err(cause).Uint64("generation", gen).Msg("websocket connection closed")
	if ex != nil {
		ex.dropped(cause)
		return
	}
	if reconnect {
		go m.reconnect()
	}
}

func (m *Manager) reconnect() {
	defer m.wg.Done()
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	skip := m.closed || m.state == StateOpen
	m.mu.Unlock()
	if skip {
		return
	}
	m.logger.Info().Msg("attempting to reconnect")
	if err := m.connectLocked(m.baseCtx); err != nil {
		m.logger.Warn().Err(err).Msg("background reconnect failed")
	}
}

func (m *Manager) send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return &ConnectionError{Err: errors.New("no open connection")}
	}
	if err := conn.WriteMessage(data); err != nil {
		return &ConnectionError{Err: errors.Wrapf(err, "send %s", f.Type)}
	}
	return nil
}

// NewChat asks the backend to start a new conversation and waits for its acknowledgement.
func (m *Manager) NewChat(ctx context.Context) error {
	if err := m.EnsureConnected(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.nextWaiter++
	id := m.nextWaiter
	ack := make(chan struct{})
	m.ackWaiters[id] = ack
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.ackWaiters, id)
		m.mu.Unlock()
	}()

	if err := m.send(Frame{Type: TypeClientCreatedNewChat}); err != nil {
		return err
	}

	timer := time.NewTimer(m.newChatTimeout)
	defer timer.Stop()
	select {
	case <-ack:
		m.logger.Debug().Msg("new chat acknowledged")
		return nil
	case <-timer.C:
		return &TimeoutError{Op: OpNewChat, After: m.newChatTimeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) pendingAcks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ackWaiters)
}

// Close tears the connection down and stops background reconnects. An exchange in flight
// completes as if the server had closed the stream.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.gen++
	m.state = StateDisconnected
	ex := m.exchange
	m.mu.Unlock()

	m.cancel()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if ex != nil {
		ex.dropped(errManagerClosed)
	}
	m.wg.Wait()
	return err
}
