package eventclient

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/trellis-network/trellis-go/pkg/eventrpc"
)

// deletedCacheSize is the number of recently deleted filter IDs remembered to
// tell a benign deletion race (server events still in flight for a filter we
// just dropped) from a genuinely unknown filter.
const deletedCacheSize = 128

var (
	// ErrUnknownFilter is returned when the given filter ID is not present
	// in the registry.
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrDuplicateFilterID is returned when a newly allocated filter ID is
	// already taken. It can't happen with a sane ID generator and is treated
	// as a programming error, not a retryable condition.
	ErrDuplicateFilterID = errors.New("duplicate filter ID")
	// ErrUnknownSubscription is returned when an event arrives for a filter
	// that has no subscription bound.
	ErrUnknownSubscription = errors.New("no subscription for filter")
)

// Registry is the authoritative owner of the live filter set and the live
// subscription set. It allocates filter IDs, validates requested categories
// and configurations, routes inbound events and errors to the correct
// subscription and removes filters when they're deleted. All methods are safe
// for concurrent use; callbacks are always invoked outside of the internal
// lock, so they're free to call back into the registry.
type Registry struct {
	lock    sync.RWMutex
	filters map[string]*eventrpc.Filter
	subs    map[string]*Subscription
	deleted *lru.Cache
	genID   func() string
	log     *zap.Logger
}

// NewRegistry returns a new empty Registry. A nil logger is replaced with a
// no-op one.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	cache, _ := lru.New(deletedCacheSize) // the only error is a non-positive size
	return &Registry{
		filters: make(map[string]*eventrpc.Filter),
		subs:    make(map[string]*Subscription),
		deleted: cache,
		genID:   uuid.NewString,
		log:     log,
	}
}

// CreateFilter validates the category/config pair, allocates a fresh filter
// ID and stores the resulting filter. The returned filter is the stored one
// and must not be modified.
func (r *Registry) CreateFilter(category eventrpc.EventCategory, config eventrpc.FilterConfig) (*eventrpc.Filter, error) {
	if !category.IsRequestable() {
		return nil, fmt.Errorf("%w: %s", eventrpc.ErrInvalidCategory, category)
	}
	if config == nil {
		return nil, fmt.Errorf("%w: missing config", eventrpc.ErrInvalidFilter)
	}
	if got := config.EventCategory(); got != category {
		return nil, fmt.Errorf("%w: %s config used with %s category", eventrpc.ErrInvalidFilter, got, category)
	}
	if err := config.IsValid(); err != nil {
		return nil, err
	}

	id := r.genID()
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.filters[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFilterID, id)
	}
	f := eventrpc.NewFilter(id, category, config)
	r.filters[id] = f
	return f, nil
}

// GetFilter returns the live filter with the given ID.
func (r *Registry) GetFilter(id string) (*eventrpc.Filter, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	f, ok := r.filters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, id)
	}
	return f, nil
}

// FilterCount returns the number of currently live filters.
func (r *Registry) FilterCount() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.filters)
}

// CreateSubscription binds the given callbacks to a live filter. Nil
// callbacks are allowed, the corresponding deliveries are then logged only,
// see [Subscription].
func (r *Registry) CreateSubscription(f *eventrpc.Filter, onEvent EventCallback, onError ErrorCallback, onDeleted FilterDeletedCallback) (*Subscription, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.filters[f.ID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, f.ID)
	}
	if _, ok := r.subs[f.ID]; ok {
		return nil, fmt.Errorf("%w: subscription for %s exists", ErrDuplicateFilterID, f.ID)
	}
	sub := newSubscription(f, onEvent, onError, onDeleted, r.log)
	r.subs[f.ID] = sub
	return sub, nil
}

// EmitEvent routes an inbound event to the subscription bound to filterID.
// FILTER_DELETED notifications remove the filter and the subscription before
// the filter-deleted callback runs, so a delivered deletion is self-cleaning
// whether or not the caller observes it. An event for an unknown filter is
// reported with ErrUnknownSubscription unless the filter was deleted a moment
// ago, which is a benign race with the server.
func (r *Registry) EmitEvent(filterID string, category eventrpc.EventCategory, payload interface{}) error {
	r.lock.RLock()
	sub, ok := r.subs[filterID]
	r.lock.RUnlock()
	if !ok {
		if r.deleted.Contains(filterID) {
			r.log.Debug("event for deleted filter",
				zap.String("filter", filterID),
				zap.Stringer("category", category))
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, filterID)
	}

	if category == eventrpc.FilterDeletedCategory {
		d, ok := payload.(*eventrpc.FilterDeleted)
		if !ok {
			return fmt.Errorf("unexpected FILTER_DELETED payload %T", payload)
		}
		r.DeleteFilter(filterID)
		sub.NotifyDeleted(d)
		return nil
	}
	sub.NotifyEvent(&Event{
		FilterID: filterID,
		Category: category,
		Payload:  payload,
	})
	return nil
}

// EmitError routes a server-reported error to the affected subscription. An
// empty filterID means the error concerns the connection as a whole and is
// logged here. Unknown filter IDs are logged and swallowed, errors may
// legitimately race with filter deletion. A registration failure deletes the
// filter first, the server never admitted it, and the error is still
// delivered to the callback the subscription had.
func (r *Registry) EmitError(filterID string, code int64, message string) {
	if filterID == "" {
		r.log.Warn("event channel error",
			zap.Int64("code", code),
			zap.String("message", message))
		return
	}
	r.lock.RLock()
	sub, ok := r.subs[filterID]
	r.lock.RUnlock()
	if !ok {
		r.log.Info("error for unknown filter",
			zap.String("filter", filterID),
			zap.Int64("code", code),
			zap.String("message", message))
		return
	}
	if code == eventrpc.FilterRegistrationFailedCode {
		r.DeleteFilter(filterID)
	}
	sub.NotifyError(eventrpc.NewEventError(filterID, code, message))
}

// DeleteFilter removes both the filter and its subscription. Requesting the
// deletion of an absent filter is fine and only logged, deletions can be
// triggered twice (locally and by the server's FILTER_DELETED confirmation).
func (r *Registry) DeleteFilter(id string) {
	r.lock.Lock()
	_, okF := r.filters[id]
	_, okS := r.subs[id]
	delete(r.filters, id)
	delete(r.subs, id)
	if okF || okS {
		r.deleted.Add(id, true)
	}
	r.lock.Unlock()
	if !okF && !okS {
		r.log.Debug("filter already deleted", zap.String("filter", id))
	}
}

// Clear drops every live filter and subscription. It's used after a
// connection loss, which invalidates all server-side subscriptions without
// per-filter notifications.
func (r *Registry) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id := range r.filters {
		r.deleted.Add(id, true)
	}
	r.filters = make(map[string]*eventrpc.Filter)
	r.subs = make(map[string]*Subscription)
}
