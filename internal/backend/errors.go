package backend

import (
	"errors"
	"fmt"
)

// NetworkError is a transport failure or a non-2xx response.
type NetworkError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("backend %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BusinessError is a 2xx response carrying success:false. Message is shown
// to the user verbatim.
type BusinessError struct {
	Op      string
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("backend %s rejected: %s", e.Op, e.Message)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsBusiness reports whether err is a BusinessError.
func IsBusiness(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}

// UserMessage returns the text to show for err: the backend's own message
// for business errors, a generic one otherwise.
func UserMessage(err error) string {
	var be *BusinessError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return "Could not reach the server. Please try again."
}
