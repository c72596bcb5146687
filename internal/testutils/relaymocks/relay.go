package relaymocks

import (
	"context"

	"bulkmail/internal/smtp"
)

type RelaySessionMock struct {
	identity   string
	sendErrors map[int]error
	sendCalls  int
	closeCalls int
	Envelopes  []smtp.Envelope
}

type RelaySessionMockOptions func(*RelaySessionMock)

func Identity(identity string) RelaySessionMockOptions {
	return func(s *RelaySessionMock) {
		s.identity = identity
	}
}

// SendFailsCall makes the n-th Send (1-based) return err.
func SendFailsCall(n int, err error) RelaySessionMockOptions {
	return func(s *RelaySessionMock) {
		s.sendErrors[n] = err
	}
}

func NewRelaySessionMock(opts ...RelaySessionMockOptions) *RelaySessionMock {
	s := &RelaySessionMock{
		identity:   "sender@example.com",
		sendErrors: map[int]error{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RelaySessionMock) Identity() string {
	return s.identity
}

func (s *RelaySessionMock) Send(_ context.Context, env smtp.Envelope) error {
	s.sendCalls++
	s.Envelopes = append(s.Envelopes, env)
	return s.sendErrors[s.sendCalls]
}

func (s *RelaySessionMock) Close() error {
	s.closeCalls++
	return nil
}

func (s *RelaySessionMock) SendCalls() int {
	return s.sendCalls
}

func (s *RelaySessionMock) CloseCalls() int {
	return s.closeCalls
}

type PacerMock struct {
	waitError error
	failsCall int
	calls     int
}

// NewPacerMock returns a pacer that never sleeps. When failsCall > 0 that wait returns waitError.
func NewPacerMock(failsCall int, waitError error) *PacerMock {
	return &PacerMock{failsCall: failsCall, waitError: waitError}
}

func (p *PacerMock) Wait(ctx context.Context) error {
	p.calls++
	if p.calls == p.failsCall {
		return p.waitError
	}
	return ctx.Err()
}

func (p *PacerMock) Calls() int {
	return p.calls
}
