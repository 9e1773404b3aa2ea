package broker

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/nerrad567/tabi-core/internal/infrastructure/config"
)

// listenerID names the TCP listener inside the broker.
const listenerID = "tabi-tcp"

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("broker: already started")

	// ErrNotStarted is returned by operations that need a running broker.
	ErrNotStarted = errors.New("broker: not started")
)

// Logger is the logging interface used for client presence events.
type Logger interface {
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}

// Handler receives messages from an inline subscription.
type Handler func(topic string, payload []byte)

// Broker wraps a mochi MQTT server with a single TCP listener.
type Broker struct {
	cfg    config.EmbeddedBrokerConfig
	creds  config.MQTTAuthConfig
	server *mochi.Server
	tcp    *listeners.TCP
	logger Logger
	slog   *slog.Logger

	presence *presenceHook

	mu      sync.Mutex
	started bool
	nextSub int
}

// New creates a broker. Nothing listens until Start is called.
//
// When creds.Username is set, clients must present those credentials;
// otherwise every client is allowed.
func New(cfg config.EmbeddedBrokerConfig, creds config.MQTTAuthConfig) *Broker {
	return &Broker{
		cfg:     cfg,
		creds:   creds,
		logger:  noopLogger{},
		nextSub: 1,
	}
}

// SetLogger sets the logger for presence events. The underlying slog logger
// is also handed to mochi for its own diagnostics.
func (b *Broker) SetLogger(logger Logger, sl *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
	b.slog = sl
}

// Start adds hooks and the TCP listener and begins serving.
func (b *Broker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}

	opts := &mochi.Options{InlineClient: true}
	if b.slog != nil {
		opts.Logger = b.slog
	}
	server := mochi.New(opts)

	if err := b.addAuthHook(server); err != nil {
		return err
	}

	b.presence = &presenceHook{logger: b.logger}
	if err := server.AddHook(b.presence, nil); err != nil {
		return fmt.Errorf("broker: adding presence hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: listenerID, Address: b.cfg.Address})
	if err := server.AddListener(tcp); err != nil {
		return fmt.Errorf("broker: listening on %s: %w", b.cfg.Address, err)
	}

	if err := server.Serve(); err != nil {
		return fmt.Errorf("broker: serving: %w", err)
	}

	b.server = server
	b.tcp = tcp
	b.started = true
	b.logger.Info("embedded MQTT broker started", "address", tcp.Address())
	return nil
}

func (b *Broker) addAuthHook(server *mochi.Server) error {
	if b.creds.Username == "" {
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return fmt.Errorf("broker: adding auth hook: %w", err)
		}
		return nil
	}

	ledger := &auth.Ledger{
		Auth: auth.AuthRules{
			{Username: auth.RString(b.creds.Username), Password: auth.RString(b.creds.Password), Allow: true},
		},
	}
	if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
		return fmt.Errorf("broker: adding auth hook: %w", err)
	}
	return nil
}

// Addr returns the address the TCP listener is bound to.
func (b *Broker) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tcp == nil {
		return b.cfg.Address
	}
	return b.tcp.Address()
}

// ConnectedClients returns the number of network clients with an
// established session.
func (b *Broker) ConnectedClients() int {
	b.mu.Lock()
	p := b.presence
	b.mu.Unlock()
	if p == nil {
		return 0
	}
	return int(p.sessions.Load())
}

// Subscribe registers an in-process subscription on filter.
func (b *Broker) Subscribe(filter string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrNotStarted
	}

	id := b.nextSub
	b.nextSub++
	err := b.server.Subscribe(filter, id, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		handler(pk.TopicName, pk.Payload)
	})
	if err != nil {
		return fmt.Errorf("broker: subscribing to %q: %w", filter, err)
	}
	return nil
}

// Publish sends a message from the broker's inline client.
func (b *Broker) Publish(topic string, payload []byte, retain bool, qos byte) error {
	b.mu.Lock()
	server := b.server
	b.mu.Unlock()

	if server == nil {
		return ErrNotStarted
	}
	return server.Publish(topic, payload, retain, qos)
}

// Close stops the listener and disconnects every client.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}
	b.started = false
	return b.server.Close()
}

// presenceHook logs controller sessions and keeps a live count.
type presenceHook struct {
	mochi.HookBase
	logger   Logger
	clients  sync.Map
	sessions atomic.Int64
}

func (h *presenceHook) ID() string {
	return "tabi-presence"
}

func (h *presenceHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mochi.OnSessionEstablished,
		mochi.OnDisconnect,
	}, []byte{b})
}

func (h *presenceHook) OnSessionEstablished(cl *mochi.Client, _ packets.Packet) {
	if _, loaded := h.clients.LoadOrStore(cl.ID, struct{}{}); !loaded {
		h.sessions.Add(1)
	}
	h.logger.Info("MQTT client connected", "client_id", cl.ID, "remote", cl.Net.Remote)
}

func (h *presenceHook) OnDisconnect(cl *mochi.Client, err error, _ bool) {
	if _, ok := h.clients.LoadAndDelete(cl.ID); !ok {
		return
	}
	h.sessions.Add(-1)
	h.logger.Info("MQTT client disconnected", "client_id", cl.ID, "error", err)
}
