package eventrpc

import (
	"fmt"
)

const (
	// FilterRegistrationFailedCode is used by the server to reject a
	// REGISTER_FILTER request. The filter was never admitted server-side, so
	// on reception the client drops its local copy before reporting the
	// error.
	FilterRegistrationFailedCode int64 = -32050
	// FilterLimitReachedCode is used by the server when the connection has
	// reached its maximum number of active filters.
	FilterLimitReachedCode int64 = -32051
	// InternalChannelErrorCode is used by the server for failures scoped to
	// the whole connection rather than to a single filter.
	InternalChannelErrorCode int64 = -32060
)

// EventError is the data of an EMIT_ERROR message: a server-reported error
// scoped either to a single filter or, when FilterID is empty, to the whole
// connection.
type EventError struct {
	FilterID string `json:"filter_id,omitempty"`
	Code     int64  `json:"code"`
	Message  string `json:"message"`
}

// NewEventError is an utility function able to create ad-hoc channel errors.
func NewEventError(filterID string, code int64, message string) *EventError {
	return &EventError{
		FilterID: filterID,
		Code:     code,
		Message:  message,
	}
}

// ConnectionScoped reports whether the error relates to the connection as a
// whole instead of one filter.
func (e *EventError) ConnectionScoped() bool {
	return e.FilterID == ""
}

// Error implements the error interface.
func (e *EventError) Error() string {
	if e.ConnectionScoped() {
		return fmt.Sprintf("%s (%d)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s (%d) - filter %s", e.Message, e.Code, e.FilterID)
}
