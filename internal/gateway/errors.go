package gateway

import "errors"

var (
	// ErrHandshakeFailed wraps any failure between dial and ready: a
	// rejected connect request, a transport error, or a silent gateway.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrRequestTimeout rejects a pending request that got no response
	// within its budget. The session itself is unaffected.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrSessionClosed fails in-flight requests when their session goes
	// away, so no caller is left blocked on a response that cannot come.
	ErrSessionClosed = errors.New("session closed")
)

// ServerError is a well-formed ok:false response from the gateway. It is
// surfaced only to the caller awaiting that request.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}
