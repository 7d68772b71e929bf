package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishRecord struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	subs        map[string]mqtt.MessageHandler
	subCalls    []string
	published   []publishRecord
	disconnects int
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeClient) Connect() mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr == nil {
		f.connected = true
	}
	return &fakeToken{err: f.connectErr}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = cb
	f.subCalls = append(f.subCalls, topic)
	return &fakeToken{}
}

func (f *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.subs, t)
	}
	return &fakeToken{}
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishRecord{topic: topic, qos: qos, payload: payload.([]byte)})
	return &fakeToken{}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// newTestSession wires a session to a fake client and returns the captured
// paho options so tests can fire the connection lifecycle handlers.
func newTestSession(t *testing.T, cfg Config) (*Session, *fakeClient, **mqtt.ClientOptions) {
	t.Helper()

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://broker.test:1883"
	}
	if cfg.RigID == "" {
		cfg.RigID = "rig-ff-001"
	}
	if cfg.Credentials == nil {
		cfg.Credentials = StaticCredentials{Username: "web-rig-ff-001", Password: "pw"}
	}

	fc := newFakeClient()
	var opts *mqtt.ClientOptions

	s := New(cfg)
	s.newClient = func(o *mqtt.ClientOptions) client {
		opts = o
		return fc
	}
	return s, fc, &opts
}

type failingCredentials struct{ err error }

func (f failingCredentials) Credentials(context.Context, string) (Credentials, error) {
	return Credentials{}, f.err
}

func TestSession_OpenConnects(t *testing.T) {
	s, fc, opts := newTestSession(t, Config{})
	defer s.Close()

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.State() != Connecting {
		t.Errorf("expected Connecting before the connect handler fires, got %v", s.State())
	}

	(*opts).OnConnect(nil)

	if s.State() != Connected {
		t.Errorf("expected Connected, got %v", s.State())
	}
	if !fc.IsConnected() {
		t.Error("fake client should be connected")
	}
}

func TestSession_OpenRetriesAfterFailedConnect(t *testing.T) {
	s, fc, opts := newTestSession(t, Config{})
	defer s.Close()

	// Broker down at boot: the first connect attempt fails.
	fc.mu.Lock()
	fc.connectErr = errors.New("connection refused")
	fc.mu.Unlock()

	if err := s.Open(context.Background()); err == nil {
		t.Fatal("expected the first open to fail")
	}
	if s.State() != Disconnected {
		t.Errorf("expected Disconnected after a failed connect, got %v", s.State())
	}
	if fc.disconnects != 1 {
		t.Errorf("the dead client should be disconnected, got %d disconnects", fc.disconnects)
	}

	// Broker comes back: a later Open must attempt a fresh connection
	// instead of reporting success on the stale client.
	fc.mu.Lock()
	fc.connectErr = nil
	fc.mu.Unlock()

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("reopen after broker recovery: %v", err)
	}
	(*opts).OnConnect(nil)

	if s.State() != Connected {
		t.Errorf("expected Connected after retry, got %v", s.State())
	}
	if !fc.IsConnected() {
		t.Error("retry should actually connect the client")
	}
}

func TestSession_CredentialFailureIsTerminal(t *testing.T) {
	cause := errors.New("token endpoint unreachable")
	s, _, _ := newTestSession(t, Config{Credentials: failingCredentials{err: cause}})
	defer s.Close()

	clientBuilt := false
	s.newClient = func(*mqtt.ClientOptions) client {
		clientBuilt = true
		return newFakeClient()
	}

	err := s.Open(context.Background())
	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected *CredentialError, got %v", err)
	}
	if credErr.RigID != "rig-ff-001" {
		t.Errorf("expected rig id on the error, got %q", credErr.RigID)
	}
	if clientBuilt {
		t.Error("no client should be constructed when credentials fail")
	}
}

func TestSession_ResubscribesAfterReconnect(t *testing.T) {
	s, fc, opts := newTestSession(t, Config{})
	defer s.Close()

	// Registered before the session is even open.
	if err := s.Subscribe("rig/rig-ff-001/events"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	(*opts).OnConnect(nil)

	if len(fc.subCalls) != 1 {
		t.Fatalf("expected 1 subscribe on first connect, got %d", len(fc.subCalls))
	}

	(*opts).OnConnectionLost(nil, errors.New("broker went away"))
	if s.State() != Reconnecting {
		t.Errorf("expected Reconnecting, got %v", s.State())
	}

	(*opts).OnConnect(nil)
	if s.State() != Connected {
		t.Errorf("expected Connected after reconnect, got %v", s.State())
	}
	if len(fc.subCalls) != 2 {
		t.Errorf("expected re-subscribe on reconnect, got %d subscribe calls", len(fc.subCalls))
	}
}

func TestSession_DeliversInboundMessages(t *testing.T) {
	var gotTopic string
	var gotPayload []byte

	s, fc, opts := newTestSession(t, Config{
		OnMessage: func(topic string, payload []byte) {
			gotTopic = topic
			gotPayload = payload
		},
	})
	defer s.Close()

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	(*opts).OnConnect(nil)

	if err := s.Subscribe("rig/rig-ff-001/events"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cb := fc.subs["rig/rig-ff-001/events"]
	if cb == nil {
		t.Fatal("subscription callback not registered")
	}
	cb(nil, &fakeMessage{topic: "rig/rig-ff-001/events", payload: []byte(`{"pad":3}`)})

	if gotTopic != "rig/rig-ff-001/events" {
		t.Errorf("unexpected topic %q", gotTopic)
	}
	if string(gotPayload) != `{"pad":3}` {
		t.Errorf("unexpected payload %q", gotPayload)
	}
}

func TestSession_PublishGating(t *testing.T) {
	s, fc, opts := newTestSession(t, Config{})
	defer s.Close()

	if err := s.Publish("rig/rig-ff-001/command", []byte(`{}`), true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before open, got %v", err)
	}

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Connecting, not Connected: acknowledged publishes still refuse.
	if err := s.Publish("rig/rig-ff-001/command", []byte(`{}`), true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected while connecting, got %v", err)
	}

	(*opts).OnConnect(nil)

	if err := s.Publish("rig/rig-ff-001/command", []byte(`{"cmd":"start"}`), true); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(fc.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(fc.published))
	}
	if fc.published[0].qos != 1 {
		t.Errorf("acknowledged publish should use QoS 1, got %d", fc.published[0].qos)
	}

	// Fire-and-forget publishes go out regardless of state.
	(*opts).OnConnectionLost(nil, errors.New("gone"))
	if err := s.Publish("rig/rig-ff-001/status", []byte(`ping`), false); err != nil {
		t.Errorf("unacknowledged publish should not gate on state: %v", err)
	}
	if fc.published[1].qos != 0 {
		t.Errorf("unacknowledged publish should use QoS 0, got %d", fc.published[1].qos)
	}
}

func TestSession_StateObserver(t *testing.T) {
	s, _, opts := newTestSession(t, Config{})
	defer s.Close()

	var transitions []ConnState
	remove := s.OnStateChange(func(st ConnState) { transitions = append(transitions, st) })

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	(*opts).OnConnect(nil)
	(*opts).OnConnectionLost(nil, errors.New("gone"))

	want := []ConnState{Connecting, Connected, Reconnecting}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], transitions[i])
		}
	}

	remove()
	(*opts).OnConnect(nil)
	if len(transitions) != len(want) {
		t.Error("removed observer should not be notified")
	}
}

func TestSession_CloseIsTerminal(t *testing.T) {
	delivered := 0
	s, fc, opts := newTestSession(t, Config{
		OnMessage: func(string, []byte) { delivered++ },
	})

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	(*opts).OnConnect(nil)
	if err := s.Subscribe("rig/rig-ff-001/events"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cb := fc.subs["rig/rig-ff-001/events"]

	s.Close()
	s.Close() // must not panic

	if s.State() != Disconnected {
		t.Errorf("expected Disconnected after close, got %v", s.State())
	}
	if fc.disconnects != 1 {
		t.Errorf("expected exactly 1 broker disconnect, got %d", fc.disconnects)
	}

	// Late deliveries from the broker library are dropped.
	cb(nil, &fakeMessage{topic: "rig/rig-ff-001/events", payload: []byte(`{"pad":1}`)})
	if delivered != 0 {
		t.Errorf("expected no delivery after close, got %d", delivered)
	}

	if err := s.Subscribe("rig/rig-ff-001/status"); err == nil {
		t.Error("subscribe after close should fail")
	}
	if err := s.Open(context.Background()); err == nil {
		t.Error("open after close should fail")
	}
}
