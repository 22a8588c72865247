package types

import (
	"errors"
	"fmt"
)

// Connection error taxonomy. Callers match with errors.Is; the REST
// layer maps these onto HTTP status codes.
var (
	// ErrNotConnected is returned for any protocol operation attempted
	// before connect() succeeded or after the connection was lost.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionLost is returned when an I/O error occurs mid-session.
	// The connection is unusable afterwards and must be re-established.
	ErrConnectionLost = errors.New("connection lost")

	// ErrInstrumentClosed is returned when a protocol operation races a
	// close request. The operation is rejected at the next protocol
	// boundary instead of blocking on a socket about to be torn down.
	ErrInstrumentClosed = errors.New("instrument closed")

	// ErrUnknownInstrumentType is returned when the identification
	// response matches no supported instrument family or model.
	ErrUnknownInstrumentType = errors.New("unknown instrument type")
)

// LookupError reports a conversion-table miss: the instrument returned
// a value the table does not know about. This is a data error, never
// silently defaulted, because guessing could drive the instrument to an
// unintended electrical state.
type LookupError struct {
	Model  string
	Family string
	Value  string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no %s conversion entry for %q (model %s)", e.Family, e.Value, e.Model)
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
