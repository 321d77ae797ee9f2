package eventrpc

import (
	"encoding/json"
	"fmt"
)

// EventSource denotes what kind of processing caused a watched value to
// change.
type EventSource byte

const (
	// InvalidSource is an invalid event source that is the default value of
	// EventSource. It's only used as an initial value similar to nil.
	InvalidSource EventSource = iota
	// BlockSource marks changes applied to the state while finalizing a block.
	BlockSource
	// UserSource marks changes applied to the state by a direct user request.
	UserSource
)

// String implements the fmt.Stringer interface.
func (s EventSource) String() string {
	switch s {
	case BlockSource:
		return "BLOCK"
	case UserSource:
		return "USER"
	default:
		return "unknown"
	}
}

// GetEventSourceFromString converts the input string into an EventSource if
// it's possible.
func GetEventSourceFromString(s string) (EventSource, error) {
	switch s {
	case "BLOCK":
		return BlockSource, nil
	case "USER":
		return UserSource, nil
	default:
		return InvalidSource, fmt.Errorf("invalid event source: %s", s)
	}
}

// IsValid reports whether the value names a known event source.
func (s EventSource) IsValid() bool {
	return s == BlockSource || s == UserSource
}

// MarshalJSON implements the json.Marshaler interface.
func (s EventSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *EventSource) UnmarshalJSON(b []byte) error {
	var str string

	err := json.Unmarshal(b, &str)
	if err != nil {
		return err
	}
	src, err := GetEventSourceFromString(str)
	if err != nil {
		return err
	}
	*s = src
	return nil
}

// TxState represents a point in the lifecycle of a transaction as observed
// by the event-serving node.
type TxState byte

const (
	// InvalidTxState is an invalid transaction state that is the default
	// value of TxState. It's only used as an initial value similar to nil.
	InvalidTxState TxState = iota
	// TxPending means the transaction sits in the mempool.
	TxPending
	// TxInBlock means the transaction has been included in a block.
	TxInBlock
	// TxExecuted means the transaction has been executed.
	TxExecuted
	// TxFinalized means the block containing the transaction was finalized.
	TxFinalized
	// TxReverted means execution was rolled back.
	TxReverted
	// TxFailed means execution failed permanently.
	TxFailed
	// TxTimedOut means the transaction was dropped without being included.
	TxTimedOut
)

// String implements the fmt.Stringer interface.
func (t TxState) String() string {
	switch t {
	case TxPending:
		return "PENDING"
	case TxInBlock:
		return "IN_BLOCK"
	case TxExecuted:
		return "EXECUTED"
	case TxFinalized:
		return "FINALIZED"
	case TxReverted:
		return "REVERTED"
	case TxFailed:
		return "FAILED"
	case TxTimedOut:
		return "TIMED_OUT"
	default:
		return "unknown"
	}
}

// GetTxStateFromString converts the input string into a TxState if it's
// possible.
func GetTxStateFromString(s string) (TxState, error) {
	switch s {
	case "PENDING":
		return TxPending, nil
	case "IN_BLOCK":
		return TxInBlock, nil
	case "EXECUTED":
		return TxExecuted, nil
	case "FINALIZED":
		return TxFinalized, nil
	case "REVERTED":
		return TxReverted, nil
	case "FAILED":
		return TxFailed, nil
	case "TIMED_OUT":
		return TxTimedOut, nil
	default:
		return InvalidTxState, fmt.Errorf("invalid transaction state: %s", s)
	}
}

// IsEndState reports whether the state is terminal, that is no further
// transitions are possible and the server is about to delete any filter
// following the transaction.
func (t TxState) IsEndState() bool {
	switch t {
	case TxFinalized, TxReverted, TxFailed, TxTimedOut:
		return true
	default:
		return false
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (t TxState) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *TxState) UnmarshalJSON(b []byte) error {
	var s string

	err := json.Unmarshal(b, &s)
	if err != nil {
		return err
	}
	st, err := GetTxStateFromString(s)
	if err != nil {
		return err
	}
	*t = st
	return nil
}

// DeleteReason explains why the server deleted a filter.
type DeleteReason byte

const (
	// InvalidReason is an invalid delete reason that is the default value of
	// DeleteReason. It's only used as an initial value similar to nil.
	InvalidReason DeleteReason = iota
	// FilterTimeoutReason means the filter was inactive for too long and the
	// server garbage-collected it.
	FilterTimeoutReason
	// EndStateReachedReason means the watched entity reached a terminal
	// condition after which no further events are possible.
	EndStateReachedReason
)

// String implements the fmt.Stringer interface.
func (r DeleteReason) String() string {
	switch r {
	case FilterTimeoutReason:
		return "FILTER_TIMEOUT"
	case EndStateReachedReason:
		return "END_STATE_REACHED"
	default:
		return "unknown"
	}
}

// GetDeleteReasonFromString converts the input string into a DeleteReason if
// it's possible.
func GetDeleteReasonFromString(s string) (DeleteReason, error) {
	switch s {
	case "FILTER_TIMEOUT":
		return FilterTimeoutReason, nil
	case "END_STATE_REACHED":
		return EndStateReachedReason, nil
	default:
		return InvalidReason, fmt.Errorf("invalid delete reason: %s", s)
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (r DeleteReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (r *DeleteReason) UnmarshalJSON(b []byte) error {
	var s string

	err := json.Unmarshal(b, &s)
	if err != nil {
		return err
	}
	reason, err := GetDeleteReasonFromString(s)
	if err != nil {
		return err
	}
	*r = reason
	return nil
}

type (
	// BlockFinalized is the payload of BLOCK_FINALIZED events.
	BlockFinalized struct {
		BlockNumber uint64 `json:"block_number"`
		BlockHash   string `json:"block_hash"`
	}

	// ValueAuth identifies the authority behind a value change. Both fields
	// are optional.
	ValueAuth struct {
		Addr string `json:"addr,omitempty"`
		FID  string `json:"fid,omitempty"`
	}

	// ValueDelta holds a watched value before and after a change. The value
	// shape is application-defined, so both sides are kept raw.
	ValueDelta struct {
		Before json.RawMessage `json:"before"`
		After  json.RawMessage `json:"after"`
	}

	// ValueChanged is the payload of VALUE_CHANGED events. FilterPath is the
	// path pattern of the matched filter, MatchedPath the concrete state path
	// that changed.
	ValueChanged struct {
		FilterPath  string          `json:"filter_path"`
		MatchedPath string          `json:"matched_path"`
		Params      json.RawMessage `json:"params"`
		Transaction string          `json:"transaction"`
		EventSource EventSource     `json:"event_source"`
		Auth        ValueAuth       `json:"auth"`
		Values      ValueDelta      `json:"values"`
	}

	// TxStateDelta holds a transaction state before and after a transition.
	TxStateDelta struct {
		Before TxState `json:"before"`
		After  TxState `json:"after"`
	}

	// TxStateChanged is the payload of TX_STATE_CHANGED events.
	TxStateChanged struct {
		Transaction string       `json:"transaction"`
		TxState     TxStateDelta `json:"tx_state"`
	}

	// FilterDeleted is the payload of FILTER_DELETED notifications: the
	// server has terminated the subscription behind the given filter and
	// will push no further events for it.
	FilterDeleted struct {
		FilterID string       `json:"filter_id"`
		Reason   DeleteReason `json:"reason"`
	}
)
