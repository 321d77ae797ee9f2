package eventclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/trellis-network/trellis-go/pkg/eventrpc"
	"github.com/trellis-network/trellis-go/pkg/eventrpc/result"
)

const (
	// DefaultHandshakeTimeout bounds the transport-level open sequence
	// started by Connect.
	DefaultHandshakeTimeout = 30 * time.Second
	// DefaultHeartbeatTimeout is how long the channel waits for a server
	// PING before declaring the connection dead. The server pings well below
	// this period, so expiration means the connection is gone even when the
	// transport hasn't noticed yet.
	DefaultHeartbeatTimeout = 16 * time.Second

	// wsReadLimit is the largest inbound frame accepted, messages above it
	// kill the connection.
	wsReadLimit = 10 * 1024 * 1024
	// wsWriteLimit is the write deadline applied to every outbound message.
	wsWriteLimit = 10 * time.Second
	// requestQueueSize is the number of outbound messages that can be queued
	// before senders block on the writer.
	requestQueueSize = 16
)

var (
	// ErrNotConnected is returned when an operation requires an established
	// connection and there is none.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by Connect while a connection is live.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNoEventChannel is returned by Connect when the node reports no
	// event-channel URL.
	ErrNoEventChannel = errors.New("server has no event channel")
	// ErrHeartbeatTimeout is the teardown cause reported to the disconnect
	// handler when no PING arrived within the heartbeat interval.
	ErrHeartbeatTimeout = errors.New("heartbeat timed out")

	// errLocalClose marks a teardown requested via Disconnect, it's
	// translated to a nil cause before reaching the disconnect handler.
	errLocalClose = errors.New("closed by user")
)

// ConnState represents the state of the channel connection.
type ConnState int32

const (
	// Disconnected means no connection attempt is in flight.
	Disconnected ConnState = iota
	// Connecting means Connect is resolving the endpoint or dialing.
	Connecting
	// Connected means the transport is open and serviced.
	Connected
)

// String implements the fmt.Stringer interface.
func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// ChannelResolver tells the channel client where the event channel of the
// configured node lives. It's implemented by [rpcclient.Client].
type ChannelResolver interface {
	GetEventChannel(ctx context.Context) (*result.ChannelInfo, error)
}

// EventSink consumes inbound events and errors decoded by the channel
// client. It's implemented by [Registry].
type EventSink interface {
	EmitEvent(filterID string, category eventrpc.EventCategory, payload interface{}) error
	EmitError(filterID string, code int64, message string)
}

// DisconnectHandler is invoked exactly once when an established connection is
// torn down, whatever the trigger was. cause is nil for a teardown requested
// via Disconnect.
type DisconnectHandler func(cause error)

// ChannelOptions defines options for the event channel client. All fields
// are optional.
type ChannelOptions struct {
	// HandshakeTimeout limits the transport open sequence, zero means
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
	// HeartbeatTimeout is the longest tolerated silence between server
	// PINGs, zero means DefaultHeartbeatTimeout.
	HeartbeatTimeout time.Duration
	// Dialer is used to open the transport, which allows to customize how
	// the underlying connection is created. nil means a default
	// websocket.Dialer. Its HandshakeTimeout is overridden by the channel's
	// one.
	Dialer *websocket.Dialer
	// Logger is used for all channel logging, nil disables it.
	Logger *zap.Logger
}

// Channel is the client side of the real-time event channel. It owns the
// single WebSocket transport and its two timeout clocks, performs message
// (de)serialization and hands decoded events to the configured sink. It can
// be connected and disconnected repeatedly, but serves at most one
// connection at a time.
type Channel struct {
	resolver ChannelResolver
	sink     EventSink
	opts     ChannelOptions
	log      *zap.Logger

	state *uatomic.Int32

	connLock sync.RWMutex
	link     *wsLink
	info     *result.ChannelInfo
}

// wsLink bundles the state of one served connection: the transport, the
// outbound queue and the signal channels of the reader/writer pair. Every
// successful Connect creates a fresh one.
type wsLink struct {
	ws       *websocket.Conn
	requests chan *eventrpc.Message
	hbReset  chan struct{}
	shutdown chan struct{}
	done     chan struct{}

	onDisconnect DisconnectHandler

	closeErrLock sync.Mutex
	closeErr     error
	shutdownOnce sync.Once
}

// setCloseErr records the teardown cause, the first recorded one wins.
func (l *wsLink) setCloseErr(err error) {
	l.closeErrLock.Lock()
	defer l.closeErrLock.Unlock()
	if l.closeErr == nil {
		l.closeErr = err
	}
}

func (l *wsLink) closeError() error {
	l.closeErrLock.Lock()
	defer l.closeErrLock.Unlock()
	return l.closeErr
}

func (l *wsLink) requestShutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdown)
	})
}

// NewChannel returns a new event channel client resolving its endpoint via
// the given resolver and delivering inbound traffic to the given sink.
func NewChannel(resolver ChannelResolver, sink EventSink, opts ChannelOptions) *Channel {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.HeartbeatTimeout == 0 {
		opts.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Channel{
		resolver: resolver,
		sink:     sink,
		opts:     opts,
		log:      log,
		state:    uatomic.NewInt32(int32(Disconnected)),
	}
}

// State returns the current connection state.
func (c *Channel) State() ConnState {
	return ConnState(c.state.Load())
}

// IsConnected reports whether the transport is open and serviced.
func (c *Channel) IsConnected() bool {
	return c.State() == Connected
}

// ChannelInfo returns the endpoint description resolved by the last
// successful Connect, nil if there was none yet.
func (c *Channel) ChannelInfo() *result.ChannelInfo {
	c.connLock.RLock()
	defer c.connLock.RUnlock()
	return c.info
}

// Connect resolves the event-channel endpoint and opens the transport. It
// blocks until the protocol-level handshake completes, fails or hits the
// handshake timeout. onDisconnect, if non-nil, is invoked exactly once when
// this connection dies, with a nil cause if the death was a local
// Disconnect. A connection that never got established doesn't invoke it, the
// failure is returned from Connect instead.
func (c *Channel) Connect(ctx context.Context, onDisconnect DisconnectHandler) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if ConnState(c.state.Load()) != Disconnected {
		return ErrAlreadyConnected
	}
	c.state.Store(int32(Connecting))

	info, err := c.resolver.GetEventChannel(ctx)
	if err != nil {
		c.state.Store(int32(Disconnected))
		return fmt.Errorf("failed to resolve event channel: %w", err)
	}
	if info == nil || info.URL == "" {
		c.state.Store(int32(Disconnected))
		return ErrNoEventChannel
	}

	dialer := websocket.Dialer{}
	if c.opts.Dialer != nil {
		dialer = *c.opts.Dialer
	}
	dialer.HandshakeTimeout = c.opts.HandshakeTimeout

	start := time.Now()
	ws, _, err := dialer.DialContext(ctx, info.URL, nil)
	if err != nil {
		c.state.Store(int32(Disconnected))
		return fmt.Errorf("failed to open event channel at %s: %w", info.URL, err)
	}
	ws.SetReadLimit(wsReadLimit)

	l := &wsLink{
		ws:           ws,
		requests:     make(chan *eventrpc.Message, requestQueueSize),
		hbReset:      make(chan struct{}, 1),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		onDisconnect: onDisconnect,
	}
	c.link = l
	c.info = info
	go c.wsReader(l)
	go c.wsWriter(l)
	c.state.Store(int32(Connected))
	updateConnectTime(time.Since(start))
	c.log.Info("event channel connected", zap.String("url", info.URL))
	return nil
}

// Disconnect closes the transport if it's open and waits until the teardown
// has finished. It's idempotent and also safe to call on a channel that was
// never connected.
func (c *Channel) Disconnect() {
	c.connLock.Lock()
	l := c.link
	c.link = nil
	c.connLock.Unlock()
	if l == nil {
		return
	}
	l.setCloseErr(errLocalClose)
	l.requestShutdown()
	<-l.done
}

func (c *Channel) currentLink() *wsLink {
	c.connLock.RLock()
	defer c.connLock.RUnlock()
	return c.link
}

// SendMessage hands the given message to the connection writer. It fails
// with ErrNotConnected if the channel is not connected.
func (c *Channel) SendMessage(m *eventrpc.Message) error {
	l := c.currentLink()
	if l == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	select {
	case l.requests <- m:
		return nil
	case <-l.shutdown:
		return ErrNotConnected
	case <-l.done:
		return fmt.Errorf("%w: connection lost", ErrNotConnected)
	}
}

// RegisterFilter asks the server to start serving events for the given
// filter.
func (c *Channel) RegisterFilter(f *eventrpc.Filter) error {
	m, err := eventrpc.NewRegisterFilterMessage(f)
	if err != nil {
		return err
	}
	return c.SendMessage(m)
}

// DeregisterFilter asks the server to stop serving events for the given
// filter. The server acknowledges with a FILTER_DELETED notification.
func (c *Channel) DeregisterFilter(f *eventrpc.Filter) error {
	m, err := eventrpc.NewDeregisterFilterMessage(f)
	if err != nil {
		return err
	}
	return c.SendMessage(m)
}

// wsReader is the only goroutine reading the transport. It decodes and
// dispatches inbound messages and performs the teardown finalization once
// the transport dies, whatever killed it.
func (c *Channel) wsReader(l *wsLink) {
	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			l.setCloseErr(fmt.Errorf("connection lost: %w", err))
			break
		}
		c.handleMessage(l, data)
	}

	c.connLock.Lock()
	if c.link == l {
		c.link = nil
	}
	c.state.Store(int32(Disconnected))
	c.connLock.Unlock()

	incDisconnect()
	cause := l.closeError()
	if errors.Is(cause, errLocalClose) {
		cause = nil
	}
	if cause != nil {
		c.log.Warn("event channel lost", zap.Error(cause))
	} else {
		c.log.Info("event channel closed")
	}
	if l.onDisconnect != nil {
		l.onDisconnect(cause)
	}
	close(l.done)
}

// wsWriter is the only goroutine writing to the transport. Its select loop
// is also the single consumer of the heartbeat timer, so timer firings are
// serialized with outbound traffic.
func (c *Channel) wsWriter(l *wsLink) {
	hbTimer := time.NewTimer(c.opts.HeartbeatTimeout)
	defer hbTimer.Stop()
	defer l.ws.Close()
	for {
		select {
		case <-l.shutdown:
			return
		case <-l.done:
			return
		case m := <-l.requests:
			if err := l.ws.SetWriteDeadline(time.Now().Add(wsWriteLimit)); err != nil {
				l.setCloseErr(fmt.Errorf("failed to set write deadline: %w", err))
				return
			}
			if err := l.ws.WriteJSON(m); err != nil {
				l.setCloseErr(fmt.Errorf("failed to write %s: %w", m.Type, err))
				return
			}
		case <-l.hbReset:
			if !hbTimer.Stop() {
				select {
				case <-hbTimer.C:
				default:
				}
			}
			hbTimer.Reset(c.opts.HeartbeatTimeout)
		case <-hbTimer.C:
			l.setCloseErr(ErrHeartbeatTimeout)
			c.log.Warn("no server ping within heartbeat interval, dropping connection",
				zap.Duration("timeout", c.opts.HeartbeatTimeout))
			return
		}
	}
}

// handleMessage dispatches one inbound frame. Malformed frames are logged
// and dropped, they must not kill an otherwise healthy connection; unknown
// message types are ignored to keep the client compatible with newer
// servers.
func (c *Channel) handleMessage(l *wsLink, data []byte) {
	var aux struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		c.log.Warn("failed to decode channel message", zap.Error(err))
		incDroppedMessage()
		return
	}
	if aux.Type == "" {
		c.log.Warn("dropping channel message without type")
		incDroppedMessage()
		return
	}
	typ, err := eventrpc.GetMessageTypeFromString(aux.Type)
	if err != nil {
		c.log.Debug("ignoring channel message of unknown type", zap.String("type", aux.Type))
		return
	}

	switch typ {
	case eventrpc.PingMsg:
		select {
		case l.hbReset <- struct{}{}:
		default:
		}
		// The PONG goes out on the link the PING came in on, bypassing the
		// connection-state check of SendMessage.
		select {
		case l.requests <- eventrpc.NewPongMessage():
		case <-l.shutdown:
		case <-l.done:
		}
	case eventrpc.EmitEventMsg:
		if len(aux.Data) == 0 {
			c.log.Warn("dropping EMIT_EVENT without data")
			incDroppedMessage()
			return
		}
		var notif eventrpc.EventNotification
		if err := json.Unmarshal(aux.Data, &notif); err != nil {
			c.log.Warn("failed to decode event notification", zap.Error(err))
			incDroppedMessage()
			return
		}
		payload, err := notif.DecodePayload()
		if err != nil {
			c.log.Warn("failed to decode event payload",
				zap.String("filter", notif.FilterID),
				zap.Error(err))
			incDroppedMessage()
			return
		}
		incEventReceived(notif.Category)
		if err := c.sink.EmitEvent(notif.FilterID, notif.Category, payload); err != nil {
			c.log.Info("dropping event",
				zap.String("filter", notif.FilterID),
				zap.Stringer("category", notif.Category),
				zap.Error(err))
		}
	case eventrpc.EmitErrorMsg:
		if len(aux.Data) == 0 {
			c.log.Warn("dropping EMIT_ERROR without data")
			incDroppedMessage()
			return
		}
		var chanErr eventrpc.EventError
		if err := json.Unmarshal(aux.Data, &chanErr); err != nil {
			c.log.Warn("failed to decode channel error", zap.Error(err))
			incDroppedMessage()
			return
		}
		incErrorReceived()
		c.sink.EmitError(chanErr.FilterID, chanErr.Code, chanErr.Message)
	default:
		// Clients never receive REGISTER_FILTER, DEREGISTER_FILTER or PONG.
		c.log.Debug("ignoring unexpected channel message", zap.Stringer("type", typ))
	}
}
