package intellicar

import (
	"errors"
	"fmt"
)

const (
	statusSuccess = "SUCCESS"

	tokenEndpoint   = "gettoken"
	vehicleEndpoint = "listvehicledevicemapping"
)

var (
	// ErrSoftMiss is returned when the API answered but had no usable data for the request.
	ErrSoftMiss = errors.New("no data returned")
	// ErrFleetLookup is returned when the vehicle listing was rejected by the API.
	ErrFleetLookup = errors.New("fleet lookup failed")
)

// AuthError is returned when the API rejects the credentials. Payload is the raw response body.
type AuthError struct {
	Payload string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Payload)
}

// Window is an extraction time range in epoch milliseconds.
type Window struct {
	Start int64
	End   int64
}

// Request describes a single call to a data endpoint.
type Request struct {
	// Endpoint is the API operation name, e.g. "getgpshistory".
	Endpoint  string
	VehicleNo string
	// Window is nil for live-status endpoints.
	Window *Window
	// Extra is merged into the request body last, so it can override the standard fields.
	Extra map[string]any
	// FlattenMetrics expands nested {"value","timestamp"} objects into
	// <metric>_value and <metric>_timestamp fields.
	FlattenMetrics bool
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
