package eventclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/trellis-network/trellis-go/pkg/eventrpc"
)

// ErrFilterLimitReached is returned by Subscribe when the node declared a
// maximum number of active filters for this connection and it's been reached.
var ErrFilterLimitReached = errors.New("filter limit reached")

// Manager is the public face of the event subscription subsystem. It
// composes the channel client with the callback registry and holds no
// mutable state of its own.
type Manager struct {
	channel  *Channel
	registry *Registry
	log      *zap.Logger
}

// NewManager returns a new event manager resolving the channel endpoint via
// the given resolver.
func NewManager(resolver ChannelResolver, opts ChannelOptions) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
		opts.Logger = log
	}
	registry := NewRegistry(log)
	return &Manager{
		channel:  NewChannel(resolver, registry, opts),
		registry: registry,
		log:      log,
	}
}

// Connect opens the event channel. onDisconnect, if non-nil, is invoked
// exactly once when the established connection dies for any reason, with a
// nil cause for a local Disconnect. Note that losing the connection
// invalidates every server-side subscription without per-filter
// notifications, so after reconnecting the caller has to subscribe anew (see
// also ClearFilters).
func (m *Manager) Connect(ctx context.Context, onDisconnect DisconnectHandler) error {
	return m.channel.Connect(ctx, onDisconnect)
}

// Disconnect closes the event channel if it's open. It's idempotent.
func (m *Manager) Disconnect() {
	m.channel.Disconnect()
}

// IsConnected reports whether the event channel is connected.
func (m *Manager) IsConnected() bool {
	return m.channel.IsConnected()
}

// Subscribe creates a filter for the given category/config pair, announces
// it to the server and binds the given callbacks to it. The filter is stored
// before REGISTER_FILTER is sent, so server replies can never outrun the
// local bookkeeping. The returned filter ID is the caller's handle for
// Unsubscribe. Subscribe returns once the registration is on its way to the
// server, it doesn't wait for an acknowledgment.
func (m *Manager) Subscribe(category eventrpc.EventCategory, config eventrpc.FilterConfig, onEvent EventCallback, onError ErrorCallback, onDeleted FilterDeletedCallback) (string, error) {
	if !m.channel.IsConnected() {
		return "", ErrNotConnected
	}
	if info := m.channel.ChannelInfo(); info != nil && info.MaxActiveFilters > 0 &&
		m.registry.FilterCount() >= info.MaxActiveFilters {
		return "", fmt.Errorf("%w: node allows %d filters per connection", ErrFilterLimitReached, info.MaxActiveFilters)
	}
	f, err := m.registry.CreateFilter(category, config)
	if err != nil {
		return "", err
	}
	if _, err := m.registry.CreateSubscription(f, onEvent, onError, onDeleted); err != nil {
		m.registry.DeleteFilter(f.ID)
		return "", err
	}
	if err := m.channel.RegisterFilter(f); err != nil {
		m.registry.DeleteFilter(f.ID)
		return "", fmt.Errorf("failed to register filter: %w", err)
	}
	return f.ID, nil
}

// Unsubscribe asks the server to drop the given filter and returns the
// filter that was submitted for deregistration. Success means only that the
// request was sent, the filter stays in place until the server acknowledges
// with a FILTER_DELETED notification, which performs the final cleanup.
func (m *Manager) Unsubscribe(filterID string) (*eventrpc.Filter, error) {
	f, err := m.registry.GetFilter(filterID)
	if err != nil {
		return nil, err
	}
	if err := m.channel.DeregisterFilter(f); err != nil {
		return nil, fmt.Errorf("failed to deregister filter: %w", err)
	}
	return f, nil
}

// ClearFilters drops all local filters and subscriptions without contacting
// the server. It's meant to be used after a connection loss, which kills
// every server-side subscription anyway.
func (m *Manager) ClearFilters() {
	if n := m.registry.FilterCount(); n > 0 {
		m.log.Info("clearing local filters", zap.Int("count", n))
	}
	m.registry.Clear()
}

// SubscribeBlockFinalized subscribes to block finalization events. A nil
// filter means every block. onError and onDeleted may be nil.
func (m *Manager) SubscribeBlockFinalized(flt *eventrpc.BlockFilter, onBlock func(*eventrpc.BlockFinalized), onError ErrorCallback, onDeleted FilterDeletedCallback) (string, error) {
	if flt == nil {
		flt = new(eventrpc.BlockFilter)
	}
	var onEvent EventCallback
	if onBlock != nil {
		onEvent = func(e *Event) {
			if b, ok := e.Payload.(*eventrpc.BlockFinalized); ok {
				onBlock(b)
			}
		}
	}
	return m.Subscribe(eventrpc.BlockFinalizedCategory, flt, onEvent, onError, onDeleted)
}

// SubscribeValueChanged subscribes to changes of the state path watched by
// the given filter. onError and onDeleted may be nil.
func (m *Manager) SubscribeValueChanged(flt *eventrpc.ValueFilter, onValue func(*eventrpc.ValueChanged), onError ErrorCallback, onDeleted FilterDeletedCallback) (string, error) {
	var onEvent EventCallback
	if onValue != nil {
		onEvent = func(e *Event) {
			if v, ok := e.Payload.(*eventrpc.ValueChanged); ok {
				onValue(v)
			}
		}
	}
	return m.Subscribe(eventrpc.ValueChangedCategory, flt, onEvent, onError, onDeleted)
}

// SubscribeTxStateChanged subscribes to state transitions of the transaction
// named by the given filter. The server deletes the filter once the
// transaction reaches an end state, delivering a FILTER_DELETED with the
// END_STATE_REACHED reason. onError and onDeleted may be nil.
func (m *Manager) SubscribeTxStateChanged(flt *eventrpc.TxFilter, onTx func(*eventrpc.TxStateChanged), onError ErrorCallback, onDeleted FilterDeletedCallback) (string, error) {
	var onEvent EventCallback
	if onTx != nil {
		onEvent = func(e *Event) {
			if tx, ok := e.Payload.(*eventrpc.TxStateChanged); ok {
				onTx(tx)
			}
		}
	}
	return m.Subscribe(eventrpc.TxStateChangedCategory, flt, onEvent, onError, onDeleted)
}
