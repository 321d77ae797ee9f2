package eventclient

import (
	"go.uber.org/zap"

	"github.com/trellis-network/trellis-go/pkg/eventrpc"
)

// Event is a single decoded event delivered to a subscription. Payload holds
// the category-specific payload, one of *eventrpc.BlockFinalized,
// *eventrpc.ValueChanged or *eventrpc.TxStateChanged.
type Event struct {
	FilterID string
	Category eventrpc.EventCategory
	Payload  interface{}
}

type (
	// EventCallback is invoked for every event delivered to a subscription.
	EventCallback func(e *Event)
	// ErrorCallback is invoked for server-reported errors scoped to the
	// subscription's filter.
	ErrorCallback func(e *eventrpc.EventError)
	// FilterDeletedCallback is invoked when the server reports that the
	// subscription's filter has been deleted. By the time it runs, the local
	// filter and subscription are already removed.
	FilterDeletedCallback func(d *eventrpc.FilterDeleted)
)

// Subscription binds caller callbacks to a single filter. Each delivery
// channel (event, error, filter-deleted) holds at most one callback; a
// missing callback makes the corresponding deliveries log-only. Once created
// a Subscription is immutable, it's the Registry that decides when it stops
// receiving deliveries.
type Subscription struct {
	filterID  string
	category  eventrpc.EventCategory
	onEvent   EventCallback
	onError   ErrorCallback
	onDeleted FilterDeletedCallback
	log       *zap.Logger
}

func newSubscription(f *eventrpc.Filter, onEvent EventCallback, onError ErrorCallback, onDeleted FilterDeletedCallback, log *zap.Logger) *Subscription {
	return &Subscription{
		filterID:  f.ID,
		category:  f.Category,
		onEvent:   onEvent,
		onError:   onError,
		onDeleted: onDeleted,
		log:       log.With(zap.String("filter", f.ID)),
	}
}

// FilterID returns the identifier of the filter this subscription is bound to.
func (s *Subscription) FilterID() string {
	return s.filterID
}

// EventCategory returns the category the bound filter was created with.
func (s *Subscription) EventCategory() eventrpc.EventCategory {
	return s.category
}

// NotifyEvent delivers an event to the event callback. Events are dropped
// with a log line when no callback is bound.
func (s *Subscription) NotifyEvent(e *Event) {
	if s.onEvent == nil {
		s.log.Debug("no event callback bound, dropping event",
			zap.Stringer("category", e.Category))
		return
	}
	s.onEvent(e)
}

// NotifyError delivers a server-reported error to the error callback. Errors
// are logged when no callback is bound.
func (s *Subscription) NotifyError(e *eventrpc.EventError) {
	if s.onError == nil {
		s.log.Warn("server error for filter",
			zap.Int64("code", e.Code),
			zap.String("message", e.Message))
		return
	}
	s.onError(e)
}

// NotifyDeleted delivers a filter-deleted notification to the filter-deleted
// callback. The default behavior, with no callback bound, is to log the
// deleted filter and the server's reason.
func (s *Subscription) NotifyDeleted(d *eventrpc.FilterDeleted) {
	if s.onDeleted == nil {
		s.log.Info("filter deleted by server",
			zap.Stringer("reason", d.Reason))
		return
	}
	s.onDeleted(d)
}
