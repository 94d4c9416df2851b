package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"membershipinitiation/internal/delivery/http/helpers"
	"membershipinitiation/internal/delivery/http/middleware"
	"membershipinitiation/internal/domain"
)

type ReviewController struct {
	Logger  *slog.Logger
	Service domain.ReviewService
}

func NewReviewController(logger *slog.Logger, svc domain.ReviewService) *ReviewController {
	return &ReviewController{
		Logger:  logger,
		Service: svc,
	}
}

// ListReviewsSuccessResponse is the success response envelope for GET /admin/reviews (200).
type ListReviewsSuccessResponse struct {
	Data  []*domain.OnboardingSession `json:"data"`
	Error *helpers.APIError           `json:"error"`
}

// List godoc
// @Summary List sessions awaiting human review
// @Description Returns sessions escalated to admin review, oldest submission first.
// @Tags admin-reviews
// @Produce json
// @Security BearerAuth
// @Success 200 {object} controllers.ListReviewsSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/reviews [get]
func (c *ReviewController) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := c.Service.ListPending(r.Context())
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, sessions)
}

// DecideReviewRequest is the request body for POST /admin/reviews/{code}/decision.
type DecideReviewRequest struct {
	Approve bool `json:"approve"`
}

// Validate implements helpers.Validator.
func (r *DecideReviewRequest) Validate() []string {
	return nil
}

// Decide godoc
// @Summary Decide an escalated session
// @Description Records the operator's verdict on a session in admin review and transitions it to approved or rejected. Exactly one concurrent decision wins.
// @Tags admin-reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Invitation code (18 alphanumeric characters)"
// @Param body body controllers.DecideReviewRequest true "Verdict"
// @Success 200 {object} controllers.SessionSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: invalid_state (session not in admin review)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/reviews/{code}/decision [post]
func (c *ReviewController) Decide(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !invitationCodeRegex.MatchString(code) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid invitation code")
		return
	}
	var req DecideReviewRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}

	session, err := c.Service.Decide(r.Context(), code, req.Approve, identity.Subject)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "session not found")
		case errors.Is(err, domain.ErrInvalidState):
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeInvalidState, "session is not awaiting admin review")
		default:
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		}
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, session)
}
