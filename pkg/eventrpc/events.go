package eventrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventCategory represents a category of server-pushed events available over
// the event channel.
type EventCategory byte

const (
	// InvalidCategory is an invalid event category that is the default value
	// of EventCategory. It's only used as an initial value similar to nil.
	InvalidCategory EventCategory = iota
	// BlockFinalizedCategory is a `BLOCK_FINALIZED` event category, emitted
	// once per finalized block.
	BlockFinalizedCategory
	// ValueChangedCategory is a `VALUE_CHANGED` event category, emitted when
	// a watched state path changes.
	ValueChangedCategory
	// TxStateChangedCategory is a `TX_STATE_CHANGED` event category, emitted
	// on transaction lifecycle transitions.
	TxStateChangedCategory
	// FilterDeletedCategory is a `FILTER_DELETED` notification category. It
	// is pushed by the server only and can never be requested by a caller.
	FilterDeletedCategory EventCategory = 255
)

// ErrInvalidCategory is returned when a string does not name a known event
// category or when a caller requests the reserved FILTER_DELETED category.
var ErrInvalidCategory = errors.New("invalid event category")

// String is a good old Stringer implementation.
func (c EventCategory) String() string {
	switch c {
	case BlockFinalizedCategory:
		return "BLOCK_FINALIZED"
	case ValueChangedCategory:
		return "VALUE_CHANGED"
	case TxStateChangedCategory:
		return "TX_STATE_CHANGED"
	case FilterDeletedCategory:
		return "FILTER_DELETED"
	default:
		return "unknown"
	}
}

// GetCategoryFromString converts the input string into an EventCategory if
// it's possible.
func GetCategoryFromString(s string) (EventCategory, error) {
	switch s {
	case "BLOCK_FINALIZED":
		return BlockFinalizedCategory, nil
	case "VALUE_CHANGED":
		return ValueChangedCategory, nil
	case "TX_STATE_CHANGED":
		return TxStateChangedCategory, nil
	case "FILTER_DELETED":
		return FilterDeletedCategory, nil
	default:
		return InvalidCategory, fmt.Errorf("%w: %s", ErrInvalidCategory, s)
	}
}

// IsRequestable reports whether a caller may subscribe to this category.
// FILTER_DELETED is delivered by the server on its own initiative and is
// not requestable.
func (c EventCategory) IsRequestable() bool {
	switch c {
	case BlockFinalizedCategory, ValueChangedCategory, TxStateChangedCategory:
		return true
	default:
		return false
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (c EventCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (c *EventCategory) UnmarshalJSON(b []byte) error {
	var s string

	err := json.Unmarshal(b, &s)
	if err != nil {
		return err
	}
	cat, err := GetCategoryFromString(s)
	if err != nil {
		return err
	}
	*c = cat
	return nil
}
