package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"membershipinitiation/internal/delivery/http/helpers"
	"membershipinitiation/internal/delivery/http/middleware"
	"membershipinitiation/internal/domain"
)

// invitationCodeRegex matches an 18-character alphanumeric invitation code.
var invitationCodeRegex = regexp.MustCompile(`^[A-Za-z0-9]{18}$`)

// pinRegex matches a 4-digit invitation PIN.
var pinRegex = regexp.MustCompile(`^[0-9]{4}$`)

type InvitationController struct {
	Logger  *slog.Logger
	Service domain.InvitationService
}

func NewInvitationController(logger *slog.Logger, svc domain.InvitationService) *InvitationController {
	return &InvitationController{
		Logger:  logger,
		Service: svc,
	}
}

// CreateInvitationRequest is the request body for POST /admin/invitations.
type CreateInvitationRequest struct {
	InvitedName  string `json:"invited_name"`
	InvitedEmail string `json:"invited_email"`
}

// Validate implements helpers.Validator.
func (r *CreateInvitationRequest) Validate() []string {
	r.InvitedName = strings.TrimSpace(r.InvitedName)
	r.InvitedEmail = strings.TrimSpace(r.InvitedEmail)
	var problems []string
	if r.InvitedName == "" {
		problems = append(problems, "invited_name is required")
	}
	if r.InvitedEmail != "" && !strings.Contains(r.InvitedEmail, "@") {
		problems = append(problems, "invited_email must be a valid email address")
	}
	return problems
}

// CreateInvitationSuccessResponse is the success response envelope for POST /admin/invitations (201).
type CreateInvitationSuccessResponse struct {
	Data  *domain.InvitationCredentials `json:"data"`
	Error *helpers.APIError             `json:"error"`
}

// Create godoc
// @Summary Create an invitation
// @Description Creates a pending invitation and returns its code and PIN. The PIN is returned exactly once; storage keeps only a hash. When invited_email is set, the credentials are also emailed to the applicant.
// @Tags admin-invitations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body controllers.CreateInvitationRequest true "Invitee details"
// @Success 201 {object} controllers.CreateInvitationSuccessResponse "Invitation credentials (code + pin)"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/invitations [post]
func (c *InvitationController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvitationRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	creds, err := c.Service.Create(r.Context(), req.InvitedName, req.InvitedEmail)
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusCreated, creds)
}

// ListInvitationsSuccessResponse is the success response envelope for GET /admin/invitations (200).
type ListInvitationsSuccessResponse struct {
	Data  []*domain.Invitation `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// List godoc
// @Summary List invitations
// @Description Returns all invitations, newest first. PIN hashes are never included.
// @Tags admin-invitations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} controllers.ListInvitationsSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/invitations [get]
func (c *InvitationController) List(w http.ResponseWriter, r *http.Request) {
	invs, err := c.Service.List(r.Context())
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, invs)
}

// RevokeInvitationResponse is the payload in the response for POST /admin/invitations/{code}/revoke.
type RevokeInvitationResponse struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

// Revoke godoc
// @Summary Revoke an invitation
// @Description Marks the invitation revoked so it can no longer be redeemed. Idempotent: revoking an already-revoked invitation succeeds.
// @Tags admin-invitations
// @Produce json
// @Security BearerAuth
// @Param code path string true "Invitation code (18 alphanumeric characters)"
// @Success 200 {object} helpers.APIResponse "data contains code and status"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/invitations/{code}/revoke [post]
func (c *InvitationController) Revoke(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !invitationCodeRegex.MatchString(code) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid invitation code")
		return
	}

	if err := c.Service.Revoke(r.Context(), code); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "invitation not found")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, RevokeInvitationResponse{
		Code:   code,
		Status: string(domain.InvitationRevoked),
	})
}

// AuditTrailSuccessResponse is the success response envelope for GET /admin/invitations/{code}/audit (200).
type AuditTrailSuccessResponse struct {
	Data  []*domain.AuditRecord `json:"data"`
	Error *helpers.APIError     `json:"error"`
}

// AuditTrail godoc
// @Summary Get the audit trail for an invitation
// @Description Returns every recorded transition for the invitation, oldest first, including rejected attempts.
// @Tags admin-invitations
// @Produce json
// @Security BearerAuth
// @Param code path string true "Invitation code (18 alphanumeric characters)"
// @Success 200 {object} controllers.AuditTrailSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/invitations/{code}/audit [get]
func (c *InvitationController) AuditTrail(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !invitationCodeRegex.MatchString(code) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid invitation code")
		return
	}

	records, err := c.Service.AuditTrail(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "invitation not found")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, records)
}

// RedeemInvitationRequest is the request body for POST /invitations/redeem.
type RedeemInvitationRequest struct {
	Code string `json:"code"`
	PIN  string `json:"pin"`
}

// Validate implements helpers.Validator.
func (r *RedeemInvitationRequest) Validate() []string {
	r.Code = strings.TrimSpace(r.Code)
	r.PIN = strings.TrimSpace(r.PIN)
	var problems []string
	if !invitationCodeRegex.MatchString(r.Code) {
		problems = append(problems, "code must be 18 alphanumeric characters")
	}
	if !pinRegex.MatchString(r.PIN) {
		problems = append(problems, "pin must be 4 digits")
	}
	return problems
}

// RedeemInvitationSuccessResponse is the success response envelope for POST /invitations/redeem (200).
type RedeemInvitationSuccessResponse struct {
	Data  *domain.Invitation `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

// Redeem godoc
// @Summary Redeem an invitation
// @Description Validates the code and PIN and atomically marks the invitation redeemed. Under concurrent redemptions of the same code exactly one caller succeeds.
// @Tags invitations
// @Accept json
// @Produce json
// @Param body body controllers.RedeemInvitationRequest true "Invitation credentials"
// @Success 200 {object} controllers.RedeemInvitationSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized (pin mismatch)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (already redeemed, revoked or expired)"
// @Failure 429 {object} helpers.APIResponse "error.code: rate_limited"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /invitations/redeem [post]
func (c *InvitationController) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemInvitationRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	inv, err := c.Service.Redeem(r.Context(), req.Code, req.PIN, middleware.ClientAddr(r))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "invitation not found")
		case errors.Is(err, domain.ErrPinMismatch):
			helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "invalid credentials")
		case errors.Is(err, domain.ErrAlreadyRedeemed):
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "invitation already redeemed")
		case errors.Is(err, domain.ErrRevoked):
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "invitation revoked")
		case errors.Is(err, domain.ErrExpired):
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "invitation expired")
		case errors.Is(err, domain.ErrRateLimited):
			helpers.WriteJSONError(w, http.StatusTooManyRequests, helpers.ErrCodeRateLimited, "too many attempts")
		default:
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		}
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, inv)
}
