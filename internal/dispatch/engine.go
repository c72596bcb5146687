package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bulkmail/internal/smtp"
)

type relaySession interface {
	Identity() string
	Send(ctx context.Context, env smtp.Envelope) error
}

// Engine drives one batch over one session, strictly in recipient order.
type Engine struct {
	pacer  Pacer
	logger *slog.Logger
}

func NewEngine(pacer Pacer) *Engine {
	return &Engine{
		pacer:  pacer,
		logger: slog.With("component", "dispatch"),
	}
}

func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	return &Engine{pacer: e.pacer, logger: logger}
}

// Dispatch never returns per-recipient failures as errors. Session faults and
// cancellation end the run in StateAborted with Result.Err set.
func (e *Engine) Dispatch(ctx context.Context, session relaySession, msg Message, recipients []string) Result {
	r := &run{
		engine:     e,
		session:    session,
		msg:        msg,
		recipients: recipients,
		result: Result{
			State:    StateNotStarted,
			Outcomes: make([]Outcome, 0, len(recipients)),
		},
	}

	r.start()
	for r.result.State == StateSending {
		r.step(ctx)
	}

	return r.result
}

type run struct {
	engine     *Engine
	session    relaySession
	msg        Message
	recipients []string
	next       int
	result     Result
}

func (r *run) start() {
	if len(r.recipients) == 0 {
		r.result.State = StateCompleted
		return
	}
	r.result.State = StateSending
}

// step performs Sending(next): pace, attempt, classify, then move to next or terminate.
func (r *run) step(ctx context.Context) {
	if r.next > 0 {
		if err := r.engine.pacer.Wait(ctx); err != nil {
			r.abort(fmt.Errorf("paced wait interrupted: %w", err), false)
			return
		}
	}

	if err := ctx.Err(); err != nil {
		r.abort(err, false)
		return
	}

	recipient := r.recipients[r.next]
	err := r.session.Send(ctx, smtp.Envelope{
		From:     r.session.Identity(),
		To:       recipient,
		Subject:  r.msg.Subject,
		HTMLBody: r.msg.Body,
	})

	var rejection *smtp.RejectionError
	switch {
	case err == nil:
		r.result.Tally.Sent++
		r.result.Outcomes = append(r.result.Outcomes, Outcome{Recipient: recipient, Status: StatusDelivered})
		r.engine.logger.Info(fmt.Sprintf("delivered %d/%d to %s", r.next+1, len(r.recipients), recipient))
	case errors.As(err, &rejection):
		r.result.Tally.Failed++
		r.result.Outcomes = append(r.result.Outcomes, Outcome{Recipient: recipient, Status: StatusRejected, Reason: rejection.Error()})
		r.engine.logger.Warn(fmt.Sprintf("rejected %d/%d: %v", r.next+1, len(r.recipients), rejection))
	default:
		inFlight := !errors.Is(err, smtp.ErrSessionBroken) && !errors.Is(err, smtp.ErrSessionClosed)
		r.abort(err, inFlight)
		return
	}

	r.next++
	if r.next == len(r.recipients) {
		r.result.State = StateCompleted
	}
}

// abort settles every remaining recipient without counting it in the tally.
func (r *run) abort(cause error, inFlight bool) {
	r.result.State = StateAborted
	r.result.Err = cause

	for i := r.next; i < len(r.recipients); i++ {
		status := StatusNotAttempted
		if i == r.next && inFlight {
			status = StatusInterrupted
		}
		r.result.Outcomes = append(r.result.Outcomes, Outcome{Recipient: r.recipients[i], Status: status})
	}

	r.engine.logger.Error(fmt.Sprintf("aborted with %d/%d recipients settled: %v", r.next, len(r.recipients), cause))
}
