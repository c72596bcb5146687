package smtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

const quitTimeout = 5 * time.Second

// Session is one authenticated relay connection. It is not safe for concurrent use.
type Session struct {
	conn     net.Conn
	client   *smtp.Client
	identity string
	builder  *MessageBuilder
	timeout  time.Duration
	broken   bool
	closed   bool
}

// Identity is the authenticated login, used as the envelope sender.
func (s *Session) Identity() string {
	return s.identity
}

// Send transmits env as a single MAIL/RCPT/DATA transaction. A *RejectionError means
// only this envelope failed; an error wrapping ErrRelayConnection means the session is gone.
func (s *Session) Send(ctx context.Context, env Envelope) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.broken {
		return connectionError("send", ErrSessionBroken)
	}

	message, err := s.builder.Build(env)
	if err != nil {
		return &RejectionError{Recipient: env.To, Reason: err.Error()}
	}

	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetDeadline(time.Now()) })
	defer stop()

	_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
	defer func() { _ = s.conn.SetDeadline(time.Time{}) }()

	if err := s.client.Mail(message.From); err != nil {
		return s.fail(ctx, env.To, "mail", err)
	}

	if err := s.client.Rcpt(message.To); err != nil {
		return s.fail(ctx, env.To, "rcpt", err)
	}

	writer, err := s.client.Data()
	if err != nil {
		return s.fail(ctx, env.To, "data", err)
	}

	if _, err := writer.Write(message.Data); err != nil {
		_ = writer.Close()
		return s.fail(ctx, env.To, "data", err)
	}

	if err := writer.Close(); err != nil {
		return s.fail(ctx, env.To, "data", err)
	}

	return nil
}

func (s *Session) fail(ctx context.Context, recipient, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.broken = true
		return fmt.Errorf("%w: %s interrupted: %w", ErrRelayConnection, op, ctxErr)
	}

	classified := classifySendError(recipient, op, err)

	var rejection *RejectionError
	if !errors.As(classified, &rejection) {
		s.broken = true
		return classified
	}

	// The relay keeps the half-open transaction after a refusal.
	if resetErr := s.client.Reset(); resetErr != nil {
		s.broken = true
	}

	return rejection
}

// Close ends the session. It is idempotent and only the first call touches the wire.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if !s.broken {
		_ = s.conn.SetDeadline(time.Now().Add(quitTimeout))
		if err := s.client.Quit(); err == nil {
			return nil
		}
	}

	if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
