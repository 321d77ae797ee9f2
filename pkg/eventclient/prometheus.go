package eventclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trellis-network/trellis-go/pkg/eventrpc"
)

// Metrics used in monitoring service.
var (
	eventCounters = map[eventrpc.EventCategory]prometheus.Counter{}

	errorsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of EMIT_ERROR messages received over the event channel",
			Name:      "channel_errors_received",
			Namespace: "trellisgo",
		},
	)
	droppedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of malformed channel messages dropped",
			Name:      "channel_messages_dropped",
			Namespace: "trellisgo",
		},
	)
	disconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of event channel teardowns",
			Name:      "channel_disconnects",
			Namespace: "trellisgo",
		},
	)
	connectTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Help:      "Event channel connect time",
			Name:      "channel_connect_time",
			Namespace: "trellisgo",
		},
	)
)

func incEventReceived(category eventrpc.EventCategory) {
	ctr, ok := eventCounters[category]
	if ok {
		ctr.Inc()
	}
}

func incErrorReceived() {
	errorsReceived.Inc()
}

func incDroppedMessage() {
	droppedMessages.Inc()
}

func incDisconnect() {
	disconnects.Inc()
}

func updateConnectTime(t time.Duration) {
	connectTime.Observe(t.Seconds())
}

func regEventCounter(category eventrpc.EventCategory) {
	ctr := prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      fmt.Sprintf("Number of %s events received", category),
			Name:      fmt.Sprintf("%s_events_received", strings.ToLower(category.String())),
			Namespace: "trellisgo",
		},
	)
	prometheus.MustRegister(ctr)
	eventCounters[category] = ctr
}

func init() {
	for _, category := range []eventrpc.EventCategory{
		eventrpc.BlockFinalizedCategory,
		eventrpc.ValueChangedCategory,
		eventrpc.TxStateChangedCategory,
		eventrpc.FilterDeletedCategory,
	} {
		regEventCounter(category)
	}
	prometheus.MustRegister(
		errorsReceived,
		droppedMessages,
		disconnects,
		connectTime,
	)
}
