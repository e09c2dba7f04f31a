package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/shared"
	"golang.org/x/oauth2"
)

const (
	DefaultReconnectDelay       = time.Second
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 10

	writeTimeout = 10 * time.Second
)

// TopicForUser returns the topic carrying verdicts for userID's submissions.
func TopicForUser(userID string) string {
	return "/topic/submit/" + userID
}

// State is the connection state of a [Client].
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler receives verdicts delivered on a topic.
type Handler func(models.Verdict)

// ProtocolError is a STOMP ERROR frame sent by the server.
type ProtocolError struct {
	Message string
	Detail  string
}

func (e *ProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("stomp error: %s: %s", e.Message, e.Detail)
	}
	return "stomp error: " + e.Message
}

// BackoffDelay returns the wait before reconnect attempt n (1-based): base doubled n-1 times, capped at max.
func BackoffDelay(n int, base, maxDelay time.Duration) time.Duration {
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}

// Options configures a [Client].
type Options struct {
	Dialer Dialer
	// Host is sent in the CONNECT frame. Derived from URL when empty.
	Host string
	URL  string
	// Tokens supplies the bearer sent with CONNECT. Optional.
	Tokens               oauth2.TokenSource
	Logger               *log.Logger
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
}

// Client maintains the push connection and delivers verdicts to topic handlers.
type Client struct {
	dialer      Dialer
	host        string
	tokens      oauth2.TokenSource
	logger      *log.Logger
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	connectMu sync.Mutex // serializes Connect

	mu        sync.Mutex
	state     State
	conn      Conn
	gen       int
	registry  map[string]Handler
	active    map[string]string // topic -> subscription id
	topics    map[string]string // subscription id -> topic
	listeners []func(State)
	stopRetry context.CancelFunc
}

// NewClient creates a disconnected [Client]. When opts.Dialer is nil a [WebSocketDialer] for opts.URL is used.
func NewClient(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = NewWebSocketDialer(opts.URL)
	}
	if opts.Host == "" {
		if u, err := url.Parse(opts.URL); err == nil {
			opts.Host = u.Hostname()
		}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	return &Client{
		dialer:      opts.Dialer,
		host:        opts.Host,
		tokens:      opts.Tokens,
		logger:      shared.WithLogger(opts.Logger, "component", "live"),
		baseDelay:   opts.ReconnectDelay,
		maxDelay:    opts.MaxReconnectDelay,
		maxAttempts: opts.MaxReconnectAttempts,
		registry:    make(map[string]Handler),
		active:      make(map[string]string),
		topics:      make(map[string]string),
	}
}

// OnStateChange registers fn to be called after every state transition.
// Listeners run on the goroutine that caused the transition and must not block.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the client is currently connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// setStateLocked records s and returns a func that notifies listeners. Call it after unlocking.
func (c *Client) setStateLocked(s State) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	listeners := append(([]func(State))(nil), c.listeners...)
	return func() {
		for _, fn := range listeners {
			fn(s)
		}
	}
}

// Connect opens the push connection and subscribes every registered topic.
// It returns nil immediately when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	conn, err := c.handshake(ctx)
	if err != nil {
		c.mu.Lock()
		notify := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify()
		return err
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		notify := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		conn.Close()
		notify()
		return ctx.Err()
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	notify = c.setStateLocked(StateConnected)

	var out []outbound
	for topic := range c.registry {
		out = append(out, c.subscribeLocked(topic)...)
	}
	topics := len(c.registry)
	c.mu.Unlock()

	if err := c.flush(conn, gen, out); err != nil {
		c.logger.Warn("failed to resubscribe", "error", err)
	}
	c.logger.Info("connected", "topics", topics)
	notify()

	go c.readLoop(conn, gen)
	return nil
}

// handshake dials and exchanges CONNECT/CONNECTED.
func (c *Client) handshake(ctx context.Context) (Conn, error) {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrTransport, err)
	}

	connect := NewFrame(CmdConnect, "accept-version", "1.2", "host", c.host, "heart-beat", "0,0")
	if c.tokens != nil {
		if tok, err := c.tokens.Token(); err == nil && tok.AccessToken != "" {
			connect.Headers["Authorization"] = tok.Type() + " " + tok.AccessToken
		}
	}

	if err := c.send(ctx, conn, connect); err != nil {
		conn.Close()
		return nil, err
	}

	reply, err := conn.Receive(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", shared.ErrTransport, err)
	}

	switch reply.Command {
	case CmdConnected:
		return conn, nil
	case CmdError:
		conn.Close()
		return nil, &ProtocolError{Message: reply.Header("message"), Detail: string(reply.Body)}
	default:
		conn.Close()
		return nil, &ProtocolError{Message: "unexpected " + reply.Command + " frame during connect"}
	}
}

func (c *Client) send(ctx context.Context, conn Conn, f *Frame) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Send(ctx, f); err != nil {
		return fmt.Errorf("%w: send %s: %w", shared.ErrTransport, f.Command, err)
	}
	return nil
}

// Disconnect clears the registry, closes the connection and stops reconnecting.
// It is safe to call when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.stopRetry != nil {
		c.stopRetry()
		c.stopRetry = nil
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	clear(c.registry)
	clear(c.active)
	clear(c.topics)
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		if err := c.send(context.Background(), conn, NewFrame(CmdDisconnect)); err != nil {
			c.logger.Debug("disconnect frame not sent", "error", err)
		}
		conn.Close()
		c.logger.Info("disconnected")
	}
	notify()
}

// Subscribe registers handler for topic, replacing any previous handler.
//
// When connected the subscription is activated immediately, after the previous live subscription
// for the topic is removed. Otherwise activation waits for the next successful [Client.Connect].
func (c *Client) Subscribe(topic string, handler Handler) error {
	if topic == "" || handler == nil {
		return fmt.Errorf("%w: topic and handler are required", shared.ErrInvalidArgument)
	}

	c.mu.Lock()
	c.registry[topic] = handler
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil
	}
	conn, gen := c.conn, c.gen
	out := c.subscribeLocked(topic)
	c.mu.Unlock()

	return c.flush(conn, gen, out)
}

// Unsubscribe removes topic from the registry and deactivates its live subscription.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.registry, topic)
	conn, gen := c.conn, c.gen
	out := c.unsubscribeLocked(topic)
	c.mu.Unlock()

	return c.flush(conn, gen, out)
}

// Topics returns the registered topics.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedTopics(c.registry)
}

// outbound is a frame built under c.mu and written by [Client.flush] after unlocking.
type outbound struct {
	topic string
	id    string
	frame *Frame
}

// subscribeLocked records a new subscription id for topic and returns the frames that replace
// the previous live subscription with it.
func (c *Client) subscribeLocked(topic string) []outbound {
	out := c.unsubscribeLocked(topic)

	id := shared.GenerateID()
	c.active[topic] = id
	c.topics[id] = topic
	return append(out, outbound{
		topic: topic,
		id:    id,
		frame: NewFrame(CmdSubscribe, "id", id, "destination", topic, "ack", "auto"),
	})
}

func (c *Client) unsubscribeLocked(topic string) []outbound {
	id, ok := c.active[topic]
	if !ok {
		return nil
	}
	delete(c.active, topic)
	delete(c.topics, id)

	if c.conn == nil {
		return nil
	}
	return []outbound{{topic: topic, id: id, frame: NewFrame(CmdUnsubscribe, "id", id)}}
}

// flush writes out on conn unless the connection identified by gen has been replaced.
// A SUBSCRIBE that fails to send is removed again so it cannot shadow a later attempt.
func (c *Client) flush(conn Conn, gen int, out []outbound) error {
	var errs []error
	for _, o := range out {
		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale {
			return errors.Join(errs...)
		}

		err := c.send(context.Background(), conn, o.frame)
		switch {
		case err == nil && o.frame.Command == CmdSubscribe:
			c.logger.Debug("subscribed", "topic", o.topic, "id", o.id)
		case err == nil:
		case o.frame.Command == CmdSubscribe:
			c.mu.Lock()
			if gen == c.gen && c.active[o.topic] == o.id {
				delete(c.active, o.topic)
				delete(c.topics, o.id)
			}
			c.mu.Unlock()
			errs = append(errs, fmt.Errorf("subscribe %s: %w", o.topic, err))
		default:
			c.logger.Debug("subscription not removed", "topic", o.topic, "id", o.id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) readLoop(conn Conn, gen int) {
	for {
		f, err := conn.Receive(context.Background())
		if err != nil {
			c.handleClose(gen, fmt.Errorf("%w: %w", shared.ErrTransport, err))
			return
		}

		switch f.Command {
		case CmdMessage:
			c.dispatch(f)
		case CmdError:
			c.handleClose(gen, &ProtocolError{Message: f.Header("message"), Detail: string(f.Body)})
			return
		case CmdReceipt:
		default:
			c.logger.Debug("ignoring frame", "command", f.Command)
		}
	}
}

func (c *Client) dispatch(f *Frame) {
	id := f.Header("subscription")

	c.mu.Lock()
	topic, ok := c.topics[id]
	handler := c.registry[topic]
	c.mu.Unlock()

	if !ok || handler == nil {
		c.logger.Debug("dropping message for inactive subscription", "subscription", id)
		return
	}

	var v models.Verdict
	if err := json.Unmarshal(f.Body, &v); err != nil {
		c.logger.Warn("dropping message", "topic", topic, "error", fmt.Errorf("%w: %w", shared.ErrMalformedMessage, err))
		return
	}
	if err := v.Validate(); err != nil {
		c.logger.Warn("dropping message", "topic", topic, "error", fmt.Errorf("%w: %w", shared.ErrMalformedMessage, err))
		return
	}

	handler(v)
}

// handleClose tears down the connection identified by gen and schedules reconnection.
// Closes of connections that were already replaced or disconnected are ignored.
func (c *Client) handleClose(gen int, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	clear(c.active)
	clear(c.topics)
	notify := c.setStateLocked(StateDisconnected)

	ctx, cancel := context.WithCancel(context.Background())
	if c.stopRetry != nil {
		c.stopRetry()
	}
	c.stopRetry = cancel
	c.mu.Unlock()

	conn.Close()
	c.logger.Warn("connection lost", "error", cause)
	notify()

	go c.reconnect(ctx)
}

func (c *Client) reconnect(ctx context.Context) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		delay := BackoffDelay(attempt, c.baseDelay, c.maxDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		err := c.Connect(ctx)
		if err == nil {
			c.logger.Info("reconnected", "attempt", attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}

		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			c.logger.Warn("reconnect rejected", "attempt", attempt, "error", err)
		} else {
			c.logger.Warn("reconnect failed", "attempt", attempt, "next_delay", BackoffDelay(attempt+1, c.baseDelay, c.maxDelay), "error", err)
		}
	}

	c.logger.Error("giving up on reconnect", "attempts", c.maxAttempts)
}
