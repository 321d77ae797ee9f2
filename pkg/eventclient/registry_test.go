package eventclient

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trellis-network/trellis-go/pkg/eventrpc"
)

func TestRegistryCreateFilter(t *testing.T) {
	t.Run("good", func(t *testing.T) {
		r := NewRegistry(zaptest.NewLogger(t))
		num := uint64(7)
		for _, tc := range []struct {
			category eventrpc.EventCategory
			config   eventrpc.FilterConfig
		}{
			{eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter)},
			{eventrpc.BlockFinalizedCategory, &eventrpc.BlockFilter{BlockNumber: &num}},
			{eventrpc.ValueChangedCategory, &eventrpc.ValueFilter{Path: "/acc/*"}},
			{eventrpc.TxStateChangedCategory, &eventrpc.TxFilter{TxHash: "0xdead"}},
		} {
			f, err := r.CreateFilter(tc.category, tc.config)
			require.NoError(t, err)
			require.NotEmpty(t, f.ID)
			require.Equal(t, tc.category, f.Category)

			got, err := r.GetFilter(f.ID)
			require.NoError(t, err)
			require.Equal(t, f, got)
		}
		require.Equal(t, 4, r.FilterCount())
	})

	t.Run("unique IDs", func(t *testing.T) {
		r := NewRegistry(zaptest.NewLogger(t))
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			f, err := r.CreateFilter(eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter))
			require.NoError(t, err)
			require.False(t, seen[f.ID])
			seen[f.ID] = true
		}
	})

	t.Run("bad category", func(t *testing.T) {
		r := NewRegistry(zaptest.NewLogger(t))
		_, err := r.CreateFilter(eventrpc.InvalidCategory, new(eventrpc.BlockFilter))
		require.ErrorIs(t, err, eventrpc.ErrInvalidCategory)

		// FILTER_DELETED can only be pushed by the server.
		_, err = r.CreateFilter(eventrpc.FilterDeletedCategory, new(eventrpc.BlockFilter))
		require.ErrorIs(t, err, eventrpc.ErrInvalidCategory)
	})

	t.Run("bad config", func(t *testing.T) {
		r := NewRegistry(zaptest.NewLogger(t))
		_, err := r.CreateFilter(eventrpc.BlockFinalizedCategory, nil)
		require.ErrorIs(t, err, eventrpc.ErrInvalidFilter)

		_, err = r.CreateFilter(eventrpc.BlockFinalizedCategory, &eventrpc.TxFilter{TxHash: "0xdead"})
		require.ErrorIs(t, err, eventrpc.ErrInvalidFilter)

		_, err = r.CreateFilter(eventrpc.TxStateChangedCategory, new(eventrpc.TxFilter))
		require.ErrorIs(t, err, eventrpc.ErrInvalidFilter)

		require.Equal(t, 0, r.FilterCount())
	})

	t.Run("colliding IDs", func(t *testing.T) {
		r := NewRegistry(zaptest.NewLogger(t))
		r.genID = func() string { return "not-so-unique" }
		_, err := r.CreateFilter(eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter))
		require.NoError(t, err)
		_, err = r.CreateFilter(eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter))
		require.ErrorIs(t, err, ErrDuplicateFilterID)
	})
}

func TestRegistryGetFilter(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	f, err := r.CreateFilter(eventrpc.ValueChangedCategory, &eventrpc.ValueFilter{Path: "/acc/*"})
	require.NoError(t, err)

	got, err := r.GetFilter(f.ID)
	require.NoError(t, err)
	require.Equal(t, f, got)

	_, err = r.GetFilter("no-such-filter")
	require.ErrorIs(t, err, ErrUnknownFilter)
}

func TestRegistryCreateSubscription(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	f, err := r.CreateFilter(eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter))
	require.NoError(t, err)

	sub, err := r.CreateSubscription(f, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, f.ID, sub.FilterID())
	require.Equal(t, eventrpc.BlockFinalizedCategory, sub.EventCategory())

	// One callback set per filter.
	_, err = r.CreateSubscription(f, nil, nil, nil)
	require.Error(t, err)

	// A subscription needs a live filter.
	stray := eventrpc.NewFilter("stray", eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter))
	_, err = r.CreateSubscription(stray, nil, nil, nil)
	require.ErrorIs(t, err, ErrUnknownFilter)
}

func TestRegistryEmitEvent(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	f, err := r.CreateFilter(eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter))
	require.NoError(t, err)

	var received []*Event
	_, err = r.CreateSubscription(f, func(e *Event) {
		received = append(received, e)
	}, nil, nil)
	require.NoError(t, err)

	b := &eventrpc.BlockFinalized{BlockNumber: 42, BlockHash: "0xabc"}
	require.NoError(t, r.EmitEvent(f.ID, eventrpc.BlockFinalizedCategory, b))
	require.Len(t, received, 1)
	require.Equal(t, f.ID, received[0].FilterID)
	require.Equal(t, eventrpc.BlockFinalizedCategory, received[0].Category)
	require.Equal(t, b, received[0].Payload)

	// Events for filters that never existed are rejected, not raised.
	err = r.EmitEvent("no-such-filter", eventrpc.BlockFinalizedCategory, b)
	require.ErrorIs(t, err, ErrUnknownSubscription)
	require.Len(t, received, 1)

	// A filter without a subscription can't receive events either.
	lone, err := r.CreateFilter(eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter))
	require.NoError(t, err)
	err = r.EmitEvent(lone.ID, eventrpc.BlockFinalizedCategory, b)
	require.ErrorIs(t, err, ErrUnknownSubscription)
}

func TestRegistryEmitEventNilCallback(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	f, err := r.CreateFilter(eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter))
	require.NoError(t, err)
	_, err = r.CreateSubscription(f, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, r.EmitEvent(f.ID, eventrpc.BlockFinalizedCategory, &eventrpc.BlockFinalized{BlockNumber: 1}))
}

func TestRegistryFilterDeleted(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	f, err := r.CreateFilter(eventrpc.TxStateChangedCategory, &eventrpc.TxFilter{TxHash: "0xdead"})
	require.NoError(t, err)

	var (
		deleted   []*eventrpc.FilterDeleted
		goneErr   error
		eventsGot int
	)
	_, err = r.CreateSubscription(f, func(e *Event) {
		eventsGot++
	}, nil, func(d *eventrpc.FilterDeleted) {
		// The local filter is gone before the callback runs.
		_, goneErr = r.GetFilter(f.ID)
		deleted = append(deleted, d)
	})
	require.NoError(t, err)

	d := &eventrpc.FilterDeleted{FilterID: f.ID, Reason: eventrpc.EndStateReachedReason}
	require.NoError(t, r.EmitEvent(f.ID, eventrpc.FilterDeletedCategory, d))
	require.Len(t, deleted, 1)
	require.Equal(t, d, deleted[0])
	require.ErrorIs(t, goneErr, ErrUnknownFilter)

	_, err = r.GetFilter(f.ID)
	require.ErrorIs(t, err, ErrUnknownFilter)

	// Trailing events for the deleted filter are dropped silently.
	require.NoError(t, r.EmitEvent(f.ID, eventrpc.TxStateChangedCategory, &eventrpc.TxStateChanged{Transaction: "0xdead"}))
	require.Zero(t, eventsGot)

	// An unexpected payload shape is an error, not a deletion.
	f2, err := r.CreateFilter(eventrpc.TxStateChangedCategory, &eventrpc.TxFilter{TxHash: "0xbeef"})
	require.NoError(t, err)
	_, err = r.CreateSubscription(f2, nil, nil, nil)
	require.NoError(t, err)
	require.Error(t, r.EmitEvent(f2.ID, eventrpc.FilterDeletedCategory, "nope"))
	_, err = r.GetFilter(f2.ID)
	require.NoError(t, err)
}

func TestRegistryEmitError(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	f, err := r.CreateFilter(eventrpc.ValueChangedCategory, &eventrpc.ValueFilter{Path: "/acc/*"})
	require.NoError(t, err)

	var errs []*eventrpc.EventError
	_, err = r.CreateSubscription(f, nil, func(e *eventrpc.EventError) {
		errs = append(errs, e)
	}, nil)
	require.NoError(t, err)

	// Connection-scoped and unknown-filter errors are logged only.
	r.EmitError("", eventrpc.InternalChannelErrorCode, "event queue overflow")
	r.EmitError("no-such-filter", eventrpc.InternalChannelErrorCode, "whatever")
	require.Empty(t, errs)

	r.EmitError(f.ID, eventrpc.InternalChannelErrorCode, "transient failure")
	require.Len(t, errs, 1)
	require.Equal(t, eventrpc.NewEventError(f.ID, eventrpc.InternalChannelErrorCode, "transient failure"), errs[0])

	// The filter survives an ordinary error.
	_, err = r.GetFilter(f.ID)
	require.NoError(t, err)
}

func TestRegistryRegistrationFailed(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	f, err := r.CreateFilter(eventrpc.ValueChangedCategory, &eventrpc.ValueFilter{Path: "/acc/*"})
	require.NoError(t, err)

	var (
		errs    []*eventrpc.EventError
		goneErr error
	)
	_, err = r.CreateSubscription(f, nil, func(e *eventrpc.EventError) {
		// A rejected registration drops the filter before the callback runs.
		_, goneErr = r.GetFilter(f.ID)
		errs = append(errs, e)
	}, nil)
	require.NoError(t, err)

	r.EmitError(f.ID, eventrpc.FilterRegistrationFailedCode, "no such path")
	require.Len(t, errs, 1)
	require.Equal(t, eventrpc.FilterRegistrationFailedCode, errs[0].Code)
	require.ErrorIs(t, goneErr, ErrUnknownFilter)
	require.Equal(t, 0, r.FilterCount())
}

func TestRegistryDeleteFilter(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	f, err := r.CreateFilter(eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter))
	require.NoError(t, err)
	_, err = r.CreateSubscription(f, nil, nil, nil)
	require.NoError(t, err)

	r.DeleteFilter(f.ID)
	_, err = r.GetFilter(f.ID)
	require.ErrorIs(t, err, ErrUnknownFilter)

	// Deleting twice is allowed, the server confirms local deletions.
	r.DeleteFilter(f.ID)
	r.DeleteFilter("never-existed")

	// Events for the recently deleted filter are dropped silently, while
	// never-existed IDs are still rejected.
	require.NoError(t, r.EmitEvent(f.ID, eventrpc.BlockFinalizedCategory, &eventrpc.BlockFinalized{}))
	require.ErrorIs(t, r.EmitEvent("never-existed", eventrpc.BlockFinalizedCategory, &eventrpc.BlockFinalized{}), ErrUnknownSubscription)
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	var ids []string
	for i := 0; i < 3; i++ {
		f, err := r.CreateFilter(eventrpc.BlockFinalizedCategory, new(eventrpc.BlockFilter))
		require.NoError(t, err)
		_, err = r.CreateSubscription(f, nil, nil, nil)
		require.NoError(t, err)
		ids = append(ids, f.ID)
	}
	require.Equal(t, 3, r.FilterCount())

	r.Clear()
	require.Equal(t, 0, r.FilterCount())
	for _, id := range ids {
		_, err := r.GetFilter(id)
		require.ErrorIs(t, err, ErrUnknownFilter)
		require.NoError(t, r.EmitEvent(id, eventrpc.BlockFinalizedCategory, &eventrpc.BlockFinalized{}))
	}
}
