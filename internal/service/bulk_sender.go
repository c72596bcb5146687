package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"bulkmail/internal/credentials"
	"bulkmail/internal/dispatch"
	"bulkmail/internal/locker"
	"bulkmail/internal/smtp"
)

var (
	ErrSenderBusy      = errors.New("another dispatch for this sender is in progress")
	ErrLockUnavailable = errors.New("sender lock is unavailable")
)

const (
	RunCompleted        = "completed"
	RunAborted          = "aborted"
	RunSenderNotFound   = "sender_not_found"
	RunAuthFailed       = "auth_failed"
	RunRelayUnavailable = "relay_unavailable"
	RunSenderBusy       = "sender_busy"
	RunLockUnavailable  = "lock_unavailable"
	RunError            = "error"
)

type Session interface {
	Identity() string
	Send(ctx context.Context, env smtp.Envelope) error
	Close() error
}

type Relay interface {
	Open(ctx context.Context, creds credentials.Credentials) (Session, error)
}

type RelayFunc func(ctx context.Context, creds credentials.Credentials) (Session, error)

func (f RelayFunc) Open(ctx context.Context, creds credentials.Credentials) (Session, error) {
	return f(ctx, creds)
}

type senderLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// credentialsInvalidator is implemented by resolvers that keep copies of credentials.
type credentialsInvalidator interface {
	Invalidate(ctx context.Context, senderId string) error
}

type metricsRecorder interface {
	ObserveRun(result string)
	ObserveOutcomes(outcomes []dispatch.Outcome)
	SessionOpened()
	SessionClosed()
}

// Request is one bulk send. Credentials, when set, bypass the resolver.
type Request struct {
	SenderId    string
	Credentials *credentials.Credentials
	Subject     string
	Body        string
	Recipients  []string
}

type BulkSender struct {
	resolver credentials.Resolver
	relay    Relay
	engine   *dispatch.Engine
	locker   senderLocker
	metrics  metricsRecorder
	logger   *slog.Logger
}

type Option func(*BulkSender)

func WithLocker(locker senderLocker) Option {
	return func(s *BulkSender) {
		s.locker = locker
	}
}

func WithMetrics(metrics metricsRecorder) Option {
	return func(s *BulkSender) {
		s.metrics = metrics
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *BulkSender) {
		s.logger = logger
	}
}

func NewBulkSender(resolver credentials.Resolver, relay Relay, engine *dispatch.Engine, opts ...Option) *BulkSender {
	s := &BulkSender{
		resolver: resolver,
		relay:    relay,
		engine:   engine,
		metrics:  noopMetrics{},
		logger:   slog.With("component", "bulk-sender"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send resolves the sender, opens one relay session and dispatches the batch over it.
// An error is returned only when nothing was attempted; a run that aborted mid-way is
// reported through the returned Result.
func (s *BulkSender) Send(ctx context.Context, req Request) (dispatch.Result, error) {
	logger := s.logger.With("dispatch", uuid.NewString())

	creds, err := s.credentialsFor(ctx, req)
	if err != nil {
		return s.fail(logger, err)
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, creds.LoginIdentity)
		if errors.Is(err, locker.ErrTaken) {
			return s.fail(logger, fmt.Errorf("%w: %w", ErrSenderBusy, err))
		}
		if errors.Is(err, locker.ErrUnavailable) {
			return s.fail(logger, fmt.Errorf("%w: %w", ErrLockUnavailable, err))
		}
		if err != nil {
			return s.fail(logger, err)
		}
		defer release()
	}

	session, err := s.relay.Open(ctx, creds)
	if err != nil {
		if errors.Is(err, smtp.ErrAuthenticationFailed) && req.Credentials == nil {
			s.invalidate(ctx, logger, req.SenderId)
		}
		return s.fail(logger, err)
	}
	s.metrics.SessionOpened()

	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn(fmt.Sprintf("error while closing relay session: %v", err))
		}
		s.metrics.SessionClosed()
	}()

	logger.Info(fmt.Sprintf("dispatching to %d recipients as %s", len(req.Recipients), session.Identity()))

	res := s.engine.WithLogger(logger).Dispatch(ctx, session, dispatch.Message{Subject: req.Subject, Body: req.Body}, req.Recipients)

	s.metrics.ObserveOutcomes(res.Outcomes)
	if res.Aborted() {
		s.metrics.ObserveRun(RunAborted)
	} else {
		s.metrics.ObserveRun(RunCompleted)
	}

	logger.Info(fmt.Sprintf("dispatch %s, sent: %d, failed: %d", res.State, res.Tally.Sent, res.Tally.Failed))
	return res, nil
}

func (s *BulkSender) credentialsFor(ctx context.Context, req Request) (credentials.Credentials, error) {
	resolver := s.resolver
	if req.Credentials != nil {
		resolver = credentials.NewStatic(*req.Credentials)
	}

	creds, err := resolver.Resolve(ctx, req.SenderId)
	if err != nil {
		return credentials.Credentials{}, fmt.Errorf("failed to resolve sender %s: %w", req.SenderId, err)
	}

	return creds, nil
}

// invalidate drops cached credentials the relay refused, so a rotated secret is read again.
func (s *BulkSender) invalidate(ctx context.Context, logger *slog.Logger, senderId string) {
	inv, ok := s.resolver.(credentialsInvalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, senderId); err != nil {
		logger.Warn(fmt.Sprintf("failed to invalidate cached credentials for %s: %v", senderId, err))
	}
}

func (s *BulkSender) fail(logger *slog.Logger, err error) (dispatch.Result, error) {
	result := RunError
	switch {
	case errors.Is(err, credentials.ErrSenderNotFound):
		result = RunSenderNotFound
	case errors.Is(err, ErrSenderBusy):
		result = RunSenderBusy
	case errors.Is(err, ErrLockUnavailable):
		result = RunLockUnavailable
	case errors.Is(err, smtp.ErrAuthenticationFailed):
		result = RunAuthFailed
	case errors.Is(err, smtp.ErrRelayConnection):
		result = RunRelayUnavailable
	}

	s.metrics.ObserveRun(result)
	logger.Error(fmt.Sprintf("dispatch not started: %v", err))

	return dispatch.Result{State: dispatch.StateNotStarted}, err
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(string) {}
func (noopMetrics) ObserveOutcomes([]dispatch.Outcome) {}
func (noopMetrics) SessionOpened() {}
func (noopMetrics) SessionClosed() {}
