package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// ErrNotConnected is returned when an acknowledged publish is attempted
// while the session is not in the Connected state. Outbound commands are
// never buffered across a disconnect: a stale "start" replayed after
// reconnection is a gameplay hazard, so the caller gets the failure
// immediately instead.
var ErrNotConnected = errors.New("transport: not connected")

// MessageHandler receives every inbound message on subscribed topics.
type MessageHandler func(topic string, payload []byte)

// Config describes one broker session.
type Config struct {
	// BrokerURL is the broker address (tcp://, ssl:// or wss://).
	BrokerURL string

	// RigID scopes credential fetches and the default client ID.
	RigID string

	// ClientID overrides the generated "web-<rigId>-<suffix>" client ID.
	ClientID string

	// Credentials is consulted once per connection attempt.
	Credentials CredentialsProvider

	// OnMessage receives inbound messages in broker delivery order.
	OnMessage MessageHandler

	KeepAlive      time.Duration // default 30s
	ConnectTimeout time.Duration // default 30s
	ReconnectMax   time.Duration // backoff ceiling, default 8s
	PublishTimeout time.Duration // ack wait, default 5s
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = fmt.Sprintf("web-%s-%s", c.RigID, uuid.NewString()[:8])
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 8 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	return c
}

// client is the slice of the paho API the session uses, split out so tests
// can substitute a fake broker.
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// Session owns one logical connection to the broker. Reconnection with
// exponential backoff is handled underneath it (paho auto-reconnect, capped
// at Config.ReconnectMax and reset on success); the session's job is to
// keep the caller's view consistent: registered topic patterns are
// re-subscribed after every reconnect without caller intervention, and the
// state observable reflects every transition.
type Session struct {
	cfg Config

	mu        sync.Mutex
	cli       client
	state     ConnState
	subs      map[string]struct{}
	observers map[int]func(ConnState)
	obsSeq    int
	closed    bool
	lastCreds Credentials
	haveCreds bool

	// newClient is a test seam; it defaults to the real paho constructor.
	newClient func(*mqtt.ClientOptions) client
}

// New creates a session for the given configuration. The session is
// Disconnected until Open succeeds.
func New(cfg Config) *Session {
	return &Session{
		cfg:       cfg.withDefaults(),
		subs:      make(map[string]struct{}),
		observers: make(map[int]func(ConnState)),
		newClient: func(opts *mqtt.ClientOptions) client { return mqtt.NewClient(opts) },
	}
}

// Open fetches credentials for the rig and connects to the broker. A
// credential fetch failure is terminal for this attempt and surfaced as a
// *CredentialError; it is not retried here. Once connected the session
// keeps itself alive until Close.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("transport: session closed")
	}
	if s.cli != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	creds, err := s.cfg.Credentials.Credentials(ctx, s.cfg.RigID)
	if err != nil {
		return &CredentialError{RigID: s.cfg.RigID, Err: err}
	}

	s.mu.Lock()
	s.lastCreds = creds
	s.haveCreds = true
	s.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetKeepAlive(s.cfg.KeepAlive)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(s.cfg.ReconnectMax)
	// Re-fetched on every (re)connect attempt so short-lived credentials
	// stay fresh; a failed refresh falls back to the last good pair.
	opts.SetCredentialsProvider(s.refreshCredentials)
	opts.SetOnConnectHandler(func(mqtt.Client) { s.handleConnected() })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { s.handleConnectionLost(err) })
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) { s.handleReconnecting() })

	cli := s.newClient(opts)

	s.mu.Lock()
	s.cli = cli
	s.mu.Unlock()
	s.setState(Connecting)

	token := cli.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		s.discardFailedClient(cli)
		return fmt.Errorf("transport: connect to %s timed out", s.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		s.discardFailedClient(cli)
		return fmt.Errorf("transport: connect to %s: %w", s.cfg.BrokerURL, err)
	}
	return nil
}

// discardFailedClient drops a client whose initial connect never succeeded.
// Paho's auto-reconnect only engages after a first successful connect, so a
// client stuck here would never recover on its own; clearing s.cli lets the
// caller's retry loop call Open again.
func (s *Session) discardFailedClient(cli client) {
	s.mu.Lock()
	if s.cli == cli {
		s.cli = nil
	}
	s.mu.Unlock()

	s.setState(Disconnected)
	cli.Disconnect(0)
}

func (s *Session) refreshCredentials() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	creds, err := s.cfg.Credentials.Credentials(ctx, s.cfg.RigID)
	if err != nil {
		s.mu.Lock()
		fallback := s.lastCreds
		have := s.haveCreds
		s.mu.Unlock()
		if have {
			slog.Warn("credential refresh failed, reusing previous credentials",
				slog.String("rig_id", s.cfg.RigID),
				slog.Any("error", err))
			return fallback.Username, fallback.Password
		}
		slog.Error("credential refresh failed with no fallback",
			slog.String("rig_id", s.cfg.RigID),
			slog.Any("error", err))
		return "", ""
	}

	s.mu.Lock()
	s.lastCreds = creds
	s.haveCreds = true
	s.mu.Unlock()
	return creds.Username, creds.Password
}

func (s *Session) handleConnected() {
	s.setState(Connected)

	s.mu.Lock()
	cli := s.cli
	patterns := make([]string, 0, len(s.subs))
	for p := range s.subs {
		patterns = append(patterns, p)
	}
	s.mu.Unlock()

	// Re-subscribing everything on each connect makes recovery invisible
	// to callers; the broker treats repeat subscriptions as idempotent.
	for _, pattern := range patterns {
		if err := s.subscribeNow(cli, pattern); err != nil {
			slog.Error("resubscribe failed",
				slog.String("pattern", pattern),
				slog.Any("error", err))
		}
	}
	slog.Info("broker session connected",
		slog.String("broker", s.cfg.BrokerURL),
		slog.Int("subscriptions", len(patterns)))
}

func (s *Session) handleConnectionLost(err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	slog.Warn("broker connection lost", slog.Any("error", err))
	s.setState(Reconnecting)
}

func (s *Session) handleReconnecting() {
	s.setState(Reconnecting)
}

// Subscribe registers a topic pattern. The registration survives
// reconnects: the pattern is re-subscribed automatically every time the
// session connects. Safe to call before Open.
func (s *Session) Subscribe(pattern string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("transport: session closed")
	}
	s.subs[pattern] = struct{}{}
	cli := s.cli
	connected := cli != nil && cli.IsConnected()
	s.mu.Unlock()

	if !connected {
		return nil // subscribed on next connect
	}
	return s.subscribeNow(cli, pattern)
}

func (s *Session) subscribeNow(cli client, pattern string) error {
	token := cli.Subscribe(pattern, 1, func(_ mqtt.Client, m mqtt.Message) {
		s.deliver(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(s.cfg.PublishTimeout) {
		return fmt.Errorf("transport: subscribe %s timed out", pattern)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: subscribe %s: %w", pattern, err)
	}
	return nil
}

func (s *Session) deliver(topic string, payload []byte) {
	s.mu.Lock()
	closed := s.closed
	handler := s.cfg.OnMessage
	s.mu.Unlock()

	if closed || handler == nil {
		return
	}
	handler(topic, payload)
}

// Unsubscribe removes a topic pattern registration. Idempotent.
func (s *Session) Unsubscribe(pattern string) error {
	s.mu.Lock()
	_, had := s.subs[pattern]
	delete(s.subs, pattern)
	cli := s.cli
	connected := cli != nil && cli.IsConnected()
	s.mu.Unlock()

	if !had || !connected {
		return nil
	}

	token := cli.Unsubscribe(pattern)
	if !token.WaitTimeout(s.cfg.PublishTimeout) {
		return fmt.Errorf("transport: unsubscribe %s timed out", pattern)
	}
	return token.Error()
}

// Publish sends payload to topic. With requireAck the publish goes out at
// QoS 1 and fails fast with ErrNotConnected when the session is not
// Connected; it is never queued for later.
func (s *Session) Publish(topic string, payload []byte, requireAck bool) error {
	s.mu.Lock()
	cli := s.cli
	state := s.state
	s.mu.Unlock()

	if cli == nil || (requireAck && state != Connected) {
		return ErrNotConnected
	}

	qos := byte(0)
	if requireAck {
		qos = 1
	}

	token := cli.Publish(topic, qos, false, payload)
	if requireAck {
		if !token.WaitTimeout(s.cfg.PublishTimeout) {
			return fmt.Errorf("transport: publish to %s timed out", topic)
		}
	} else {
		token.WaitTimeout(s.cfg.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: publish to %s: %w", topic, err)
	}
	return nil
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers cb for every state transition and returns its
// removal function. Callbacks run outside the session lock.
func (s *Session) OnStateChange(cb func(ConnState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.obsSeq++
	id := s.obsSeq
	s.observers[id] = cb

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Session) setState(next ConnState) {
	s.mu.Lock()
	if s.closed && next != Disconnected {
		s.mu.Unlock()
		return
	}
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	cbs := make([]func(ConnState), 0, len(s.observers))
	for _, cb := range s.observers {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(next)
	}
}

// Close tears the session down: no further reconnect attempts, no further
// message delivery, observers released. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cli := s.cli
	s.cli = nil
	s.mu.Unlock()

	s.setState(Disconnected)

	s.mu.Lock()
	s.observers = make(map[int]func(ConnState))
	s.mu.Unlock()

	if cli != nil {
		cli.Disconnect(250)
	}
}
