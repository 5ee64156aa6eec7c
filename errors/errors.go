package errors

import (
	// Go internal packages
	"bytes"
	"encoding/json"
	"errors"
)

// Error defines a standard application error.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// Wrapped underlying error.
	WrappedErr error `json:"wrapped_err,omitempty"`
}

// Error returns the string representation of the error message.
func (e *Error) Error() string {
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(e)
	return buf.String()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.WrappedErr
}

// NewError returns standard go error with given string
func NewError(e string) error {
	return errors.New(e)
}

// Kind defines the kind or class of an error.
type Kind uint8

// Transport agnostic error "kinds"
const (
	Other        Kind = iota // Unclassified error
	Internal                 // Internal error
	Conflict                 // Conflict when an entity already exists
	Invalid                  // Invalid input, validation error etc
	NotFound                 // Entity or endpoint does not exist
	Unauthorized             // Missing or expired session token
	Forbidden                // Forbidden access

	// Payment lifecycle kinds
	Concurrent               // Duplicate attempt while one is in flight
	Network                  // Fetch-level failure, DNS or connectivity
	Malformed                // 2xx response whose body matches no known shape
	GatewayUnavailable       // Checkout library not wired into the environment
	Configuration            // Invalid or placeholder merchant key
	Gateway                  // Gateway-reported payment failure
	GatewayAuth              // Gateway rejected the merchant credentials
	VerificationAfterCapture // Gateway reported success but verification failed
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "unclassified error"
	case Internal:
		return "internal error"
	case Conflict:
		return "conflict"
	case Invalid:
		return "invalid input"
	case NotFound:
		return "entity not found"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case Concurrent:
		return "operation already in progress"
	case Network:
		return "network error"
	case Malformed:
		return "malformed response"
	case GatewayUnavailable:
		return "gateway unavailable"
	case Configuration:
		return "configuration error"
	case Gateway:
		return "gateway failure"
	case GatewayAuth:
		return "gateway authentication failure"
	case VerificationAfterCapture:
		return "verification failed after capture"
	default:
		return "unknown error kind"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case error:
			e.WrappedErr = arg
		case string:
			e.Message = arg
		}
	}
	return e
}

// KindOf returns the Kind carried by err, or Other for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// MessageOf returns the application message carried by err, falling back to
// err.Error() for plain errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

var (
	As = errors.As
	Is = errors.Is
)
