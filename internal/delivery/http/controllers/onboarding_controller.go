package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"membershipinitiation/internal/delivery/http/helpers"
	"membershipinitiation/internal/delivery/http/middleware"
	"membershipinitiation/internal/domain"
)

type OnboardingController struct {
	Logger  *slog.Logger
	Service domain.OnboardingService
}

func NewOnboardingController(logger *slog.Logger, svc domain.OnboardingService) *OnboardingController {
	return &OnboardingController{
		Logger:  logger,
		Service: svc,
	}
}

// StartSessionRequest is the request body for POST /onboarding/sessions.
type StartSessionRequest struct {
	InvitationCode string `json:"invitation_code"`
}

// Validate implements helpers.Validator.
func (r *StartSessionRequest) Validate() []string {
	r.InvitationCode = strings.TrimSpace(r.InvitationCode)
	if !invitationCodeRegex.MatchString(r.InvitationCode) {
		return []string{"invitation_code must be 18 alphanumeric characters"}
	}
	return nil
}

// SessionSuccessResponse is the success response envelope for onboarding session endpoints.
type SessionSuccessResponse struct {
	Data  *domain.OnboardingSession `json:"data"`
	Error *helpers.APIError         `json:"error"`
}

// StartSession godoc
// @Summary Start an onboarding session
// @Description Opens the onboarding session for a redeemed invitation. Idempotent: returns 201 when a new session is created, 200 when one already exists.
// @Tags onboarding
// @Accept json
// @Produce json
// @Param body body controllers.StartSessionRequest true "Redeemed invitation code"
// @Success 200 {object} controllers.SessionSuccessResponse "Existing session"
// @Success 201 {object} controllers.SessionSuccessResponse "New session created"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state (invitation not redeemed)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /onboarding/sessions [post]
func (c *OnboardingController) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	session, created, err := c.Service.StartSession(r.Context(), req.InvitationCode)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "invitation not found")
		case errors.Is(err, domain.ErrInvalidState):
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeInvalidState, "invitation is not redeemed")
		default:
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		}
		return
	}
	if created {
		helpers.WriteJSONSuccess(w, http.StatusCreated, session)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, session)
}

// RecordConsentRequest is the request body for POST /onboarding/sessions/{code}/consent.
type RecordConsentRequest struct {
	Granted bool `json:"granted"`
}

// Validate implements helpers.Validator.
func (r *RecordConsentRequest) Validate() []string {
	return nil
}

// RecordConsent godoc
// @Summary Record applicant consent
// @Description Records whether the applicant consents to validation of their responses. Consent can only change while the session is still collecting.
// @Tags onboarding
// @Accept json
// @Produce json
// @Param code path string true "Invitation code (18 alphanumeric characters)"
// @Param body body controllers.RecordConsentRequest true "Consent flag"
// @Success 200 {object} helpers.APIResponse "data contains the consent flag"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state (session no longer collecting)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /onboarding/sessions/{code}/consent [post]
func (c *OnboardingController) RecordConsent(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !invitationCodeRegex.MatchString(code) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid invitation code")
		return
	}
	var req RecordConsentRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := c.Service.RecordConsent(r.Context(), code, req.Granted); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "session not found")
		case errors.Is(err, domain.ErrInvalidState):
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeInvalidState, "session is no longer collecting")
		default:
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		}
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, RecordConsentRequest{Granted: req.Granted})
}

// SubmitResponseEntry is one question/answer pair in a submission.
type SubmitResponseEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SubmitResponsesRequest is the request body for POST /onboarding/sessions/{code}/responses.
type SubmitResponsesRequest struct {
	Responses []SubmitResponseEntry `json:"responses"`
}

// Validate implements helpers.Validator.
func (r *SubmitResponsesRequest) Validate() []string {
	if len(r.Responses) == 0 {
		return []string{"responses must not be empty"}
	}
	var problems []string
	for i := range r.Responses {
		r.Responses[i].Question = strings.TrimSpace(r.Responses[i].Question)
		r.Responses[i].Answer = strings.TrimSpace(r.Responses[i].Answer)
		if r.Responses[i].Question == "" {
			problems = append(problems, "responses must all have a question")
			break
		}
	}
	return problems
}

// SubmitResponses godoc
// @Summary Submit onboarding responses
// @Description Finalizes the applicant's answers and hands the session to the validation gate. Requires prior consent. Resubmitting after the session left collecting returns the current session unchanged.
// @Tags onboarding
// @Accept json
// @Produce json
// @Param code path string true "Invitation code (18 alphanumeric characters)"
// @Param body body controllers.SubmitResponsesRequest true "Ordered question/answer pairs"
// @Success 200 {object} controllers.SessionSuccessResponse "Session after the gate ran (or its current state on resubmit)"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 422 {object} helpers.APIResponse "error.code: consent_required"
// @Failure 429 {object} helpers.APIResponse "error.code: rate_limited"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /onboarding/sessions/{code}/responses [post]
func (c *OnboardingController) SubmitResponses(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !invitationCodeRegex.MatchString(code) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid invitation code")
		return
	}
	var req SubmitResponsesRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	entries := make([]domain.ResponseEntry, 0, len(req.Responses))
	for i, resp := range req.Responses {
		entries = append(entries, domain.ResponseEntry{
			Position: i + 1,
			Question: resp.Question,
			Answer:   resp.Answer,
		})
	}

	session, err := c.Service.SubmitResponses(r.Context(), code, entries, middleware.ClientAddr(r))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "session not found")
		case errors.Is(err, domain.ErrConsentRequired):
			helpers.WriteJSONError(w, http.StatusUnprocessableEntity, helpers.ErrCodeConsentRequired, "consent is required before submitting responses")
		case errors.Is(err, domain.ErrInvalidInput):
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
		case errors.Is(err, domain.ErrRateLimited):
			helpers.WriteJSONError(w, http.StatusTooManyRequests, helpers.ErrCodeRateLimited, "too many attempts")
		default:
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		}
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, session)
}
