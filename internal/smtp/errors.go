package smtp

import (
	"errors"
	"fmt"
	"net/textproto"
)

var (
	ErrAuthenticationFailed = errors.New("relay rejected sender credentials")
	ErrRelayConnection      = errors.New("relay connection failure")
	ErrSessionClosed        = errors.New("relay session is closed")
	// ErrSessionBroken is returned, wrapped in ErrRelayConnection, when Send is called on a
	// session that already faulted. Nothing reached the wire for that envelope.
	ErrSessionBroken = errors.New("relay session faulted earlier")
)

// RejectionError is a relay reply refusing a single envelope. The session stays usable.
type RejectionError struct {
	Recipient string
	Code      int
	Reason    string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("relay rejected %s: %d %s", e.Recipient, e.Code, e.Reason)
}

// Temporary reports whether the relay used a transient (4xx) reply.
func (e *RejectionError) Temporary() bool {
	return e.Code >= 400 && e.Code < 500
}

const codeServiceNotAvailable = 421

func connectionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRelayConnection, op, err)
}

// classifySendError maps an error raised during an envelope transaction to either
// a rejection of this recipient or a fault of the whole session.
func classifySendError(recipient string, op string, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code != codeServiceNotAvailable {
		return &RejectionError{Recipient: recipient, Code: protoErr.Code, Reason: protoErr.Msg}
	}
	return connectionError(op, err)
}

// isAuthRejection reports whether the relay permanently refused the AUTH exchange.
// Transient replies such as 454 are setup faults, not bad credentials.
func isAuthRejection(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 500
	}
	return false
}
