package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnauthorized indicates the session token was missing, expired, or
// rejected. It is propagated to the caller rather than handled here so
// the conversational context stays visible while the user re-authenticates.
var ErrUnauthorized = errors.New("unauthorized")

// ServerError indicates the backend answered with a 5xx status.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d)", e.Status)
}

// IsTimeout reports whether err is a transient network timeout. Only
// these failures are eligible for retry.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// IsServerError reports whether err is a 5xx response.
func IsServerError(err error) bool {
	var serr *ServerError
	return errors.As(err, &serr)
}
