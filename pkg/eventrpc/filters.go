package eventrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

type (
	// BlockFilter is a configuration structure for BLOCK_FINALIZED
	// subscriptions. It allows to wait for the finalization of one specific
	// block. nil BlockNumber means any block.
	BlockFilter struct {
		BlockNumber *uint64 `json:"block_number"`
	}
	// ValueFilter is a configuration structure for VALUE_CHANGED
	// subscriptions. It watches a single state path and optionally narrows
	// events down to one change source. nil EventSource means any source.
	ValueFilter struct {
		Path        string       `json:"path"`
		EventSource *EventSource `json:"event_source"`
	}
	// TxFilter is a configuration structure for TX_STATE_CHANGED
	// subscriptions. It follows the lifecycle of one transaction given by
	// its hash.
	TxFilter struct {
		TxHash string `json:"tx_hash"`
	}
)

// FilterConfig is an interface for all category-specific filter
// configurations.
type FilterConfig interface {
	// EventCategory returns the category this configuration belongs to.
	EventCategory() EventCategory
	// IsValid checks whether the configuration is well-formed and returns
	// a specific [ErrInvalidFilter] error if not.
	IsValid() error
	// Copy creates a deep copy of the configuration.
	Copy() FilterConfig
}

// ErrInvalidFilter is returned when a filter configuration is malformed or
// does not match the requested event category.
var ErrInvalidFilter = errors.New("invalid filter")

// Filter describes a single subscription: an event category together with a
// category-specific configuration, identified by a client-generated opaque
// ID. Filters are treated as immutable once created.
type Filter struct {
	ID       string
	Category EventCategory
	Config   FilterConfig
}

// filterAux is an auxiliary struct for Filter JSON unmarshalling, the config
// shape is not known until the category is decoded.
type filterAux struct {
	ID       string          `json:"id"`
	Category EventCategory   `json:"category"`
	Config   json.RawMessage `json:"config"`
}

// NewFilter returns a new Filter with a deep copy of the given configuration.
func NewFilter(id string, category EventCategory, config FilterConfig) *Filter {
	return &Filter{
		ID:       id,
		Category: category,
		Config:   config.Copy(),
	}
}

// Copy creates a deep copy of the Filter.
func (f *Filter) Copy() *Filter {
	if f == nil {
		return nil
	}
	res := &Filter{
		ID:       f.ID,
		Category: f.Category,
	}
	if f.Config != nil {
		res.Config = f.Config.Copy()
	}
	return res
}

// MarshalJSON implements the json.Marshaler interface.
func (f Filter) MarshalJSON() ([]byte, error) {
	cfg, err := json.Marshal(f.Config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(filterAux{
		ID:       f.ID,
		Category: f.Category,
		Config:   cfg,
	})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (f *Filter) UnmarshalJSON(data []byte) error {
	aux := new(filterAux)
	err := json.Unmarshal(data, aux)
	if err != nil {
		return fmt.Errorf("not a filter: %w", err)
	}

	var cfg FilterConfig
	switch aux.Category {
	case BlockFinalizedCategory:
		cfg = new(BlockFilter)
	case ValueChangedCategory:
		cfg = new(ValueFilter)
	case TxStateChangedCategory:
		cfg = new(TxFilter)
	default:
		return fmt.Errorf("%w: category %s is not requestable", ErrInvalidFilter, aux.Category)
	}
	if len(aux.Config) == 0 {
		return fmt.Errorf("%w: missing config", ErrInvalidFilter)
	}
	if err := json.Unmarshal(aux.Config, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	f.ID = aux.ID
	f.Category = aux.Category
	f.Config = cfg
	return nil
}

// EventCategory implements the FilterConfig interface.
func (f *BlockFilter) EventCategory() EventCategory {
	return BlockFinalizedCategory
}

// IsValid implements the FilterConfig interface.
func (f *BlockFilter) IsValid() error {
	if f == nil {
		return fmt.Errorf("%w: nil BlockFilter", ErrInvalidFilter)
	}
	return nil
}

// Copy implements the FilterConfig interface. It handles nil BlockFilter
// correctly.
func (f *BlockFilter) Copy() FilterConfig {
	if f == nil {
		return (*BlockFilter)(nil)
	}
	var res = new(BlockFilter)
	if f.BlockNumber != nil {
		res.BlockNumber = new(uint64)
		*res.BlockNumber = *f.BlockNumber
	}
	return res
}

// EventCategory implements the FilterConfig interface.
func (f *ValueFilter) EventCategory() EventCategory {
	return ValueChangedCategory
}

// IsValid implements the FilterConfig interface.
func (f *ValueFilter) IsValid() error {
	if f == nil {
		return fmt.Errorf("%w: nil ValueFilter", ErrInvalidFilter)
	}
	if f.Path == "" {
		return fmt.Errorf("%w: ValueFilter path must not be empty", ErrInvalidFilter)
	}
	if f.EventSource != nil && !f.EventSource.IsValid() {
		return fmt.Errorf("%w: ValueFilter event source must be either %s or %s", ErrInvalidFilter, BlockSource, UserSource)
	}
	return nil
}

// Copy implements the FilterConfig interface. It handles nil ValueFilter
// correctly.
func (f *ValueFilter) Copy() FilterConfig {
	if f == nil {
		return (*ValueFilter)(nil)
	}
	var res = new(ValueFilter)
	res.Path = f.Path
	if f.EventSource != nil {
		res.EventSource = new(EventSource)
		*res.EventSource = *f.EventSource
	}
	return res
}

// EventCategory implements the FilterConfig interface.
func (f *TxFilter) EventCategory() EventCategory {
	return TxStateChangedCategory
}

// IsValid implements the FilterConfig interface.
func (f *TxFilter) IsValid() error {
	if f == nil {
		return fmt.Errorf("%w: nil TxFilter", ErrInvalidFilter)
	}
	if f.TxHash == "" {
		return fmt.Errorf("%w: TxFilter transaction hash must not be empty", ErrInvalidFilter)
	}
	return nil
}

// Copy implements the FilterConfig interface. It handles nil TxFilter
// correctly.
func (f *TxFilter) Copy() FilterConfig {
	if f == nil {
		return (*TxFilter)(nil)
	}
	return &TxFilter{TxHash: f.TxHash}
}
