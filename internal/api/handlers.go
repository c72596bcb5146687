package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"bulkmail/internal/credentials"
	"bulkmail/internal/dispatch"
	"bulkmail/internal/service"
	"bulkmail/internal/smtp"
)

const maxRequestBodyBytes = 10 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// sendEmailsRequest carries the sender identifier in Email. AppPassword, when
// present, turns it into inline credentials and skips the store lookup.
type sendEmailsRequest struct {
	Email       string   `json:"email" validate:"required"`
	AppPassword string   `json:"appPassword"`
	Subject     string   `json:"subject"`
	NewMessage  string   `json:"newmessage" validate:"required"`
	Receivers   []string `json:"receivers" validate:"required,dive,required"`
}

type sendEmailsResponse struct {
	Sent         int                `json:"sent"`
	Failed       int                `json:"failed"`
	Aborted      bool               `json:"aborted"`
	NotAttempted int                `json:"not_attempted"`
	Results      []dispatch.Outcome `json:"results"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) sendEmails(w http.ResponseWriter, r *http.Request) {
	var body sendEmailsRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := validate.Struct(body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := service.Request{
		SenderId:   body.Email,
		Subject:    body.Subject,
		Body:       body.NewMessage,
		Recipients: body.Receivers,
	}
	if body.AppPassword != "" {
		req.Credentials = &credentials.Credentials{LoginIdentity: body.Email, Secret: body.AppPassword}
	}

	ctx := r.Context()
	if s.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DispatchTimeout)
		defer cancel()
	}

	res, err := s.sender.Send(ctx, req)
	if err != nil {
		status, detail := errorStatus(err)
		respondError(w, status, detail)
		return
	}

	outcomes := res.Outcomes
	if outcomes == nil {
		outcomes = []dispatch.Outcome{}
	}

	respondJSON(w, http.StatusOK, sendEmailsResponse{
		Sent:         res.Tally.Sent,
		Failed:       res.Tally.Failed,
		Aborted:      res.Aborted(),
		NotAttempted: res.Unsettled(),
		Results:      outcomes,
	})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, credentials.ErrSenderNotFound):
		return http.StatusNotFound, "Sender not found"
	case errors.Is(err, smtp.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "Authentication failed. Check the sender email and app password."
	case errors.Is(err, service.ErrSenderBusy):
		return http.StatusConflict, "Another dispatch for this sender is in progress"
	case errors.Is(err, service.ErrLockUnavailable):
		return http.StatusServiceUnavailable, "Sender lock is unavailable, retry later"
	case errors.Is(err, smtp.ErrRelayConnection):
		return http.StatusBadGateway, "Could not connect to the mail relay"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, errorResponse{Detail: detail})
}
