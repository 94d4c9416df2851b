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

// membershipCodeRegex matches a membership code such as MEMBER-1A2B3C.
var membershipCodeRegex = regexp.MustCompile(`^MEMBER-[0-9A-F]{6}$`)

// membershipKeyRegex matches a 64-character hex membership key.
var membershipKeyRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

type MembershipController struct {
	Logger  *slog.Logger
	Service domain.MembershipService
}

func NewMembershipController(logger *slog.Logger, svc domain.MembershipService) *MembershipController {
	return &MembershipController{
		Logger:  logger,
		Service: svc,
	}
}

// IssueMembershipRequest is the request body for POST /admin/memberships.
type IssueMembershipRequest struct {
	InvitationCode string `json:"invitation_code"`
}

// Validate implements helpers.Validator.
func (r *IssueMembershipRequest) Validate() []string {
	r.InvitationCode = strings.TrimSpace(r.InvitationCode)
	if !invitationCodeRegex.MatchString(r.InvitationCode) {
		return []string{"invitation_code must be 18 alphanumeric characters"}
	}
	return nil
}

// IssueMembershipSuccessResponse is the success response envelope for POST /admin/memberships (201).
type IssueMembershipSuccessResponse struct {
	Data  *domain.MembershipCredentials `json:"data"`
	Error *helpers.APIError             `json:"error"`
}

// Issue godoc
// @Summary Issue a membership credential
// @Description Mints the membership code and key for an approved session. The raw key is returned exactly once; storage keeps only its hash. At most one membership ever exists per invitation.
// @Tags admin-memberships
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body controllers.IssueMembershipRequest true "Approved invitation code"
// @Success 201 {object} controllers.IssueMembershipSuccessResponse "Membership credentials (code + key)"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (already issued) or invalid_state (session not approved)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/memberships [post]
func (c *MembershipController) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueMembershipRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}

	creds, err := c.Service.Issue(r.Context(), req.InvitationCode, identity.Subject)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "session not found")
		case errors.Is(err, domain.ErrAlreadyIssued):
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "membership already issued for this invitation")
		case errors.Is(err, domain.ErrInvalidState):
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeInvalidState, "session is not approved")
		default:
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		}
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusCreated, creds)
}

// RevokeMembershipResponse is the payload in the response for POST /admin/memberships/{code}/revoke.
type RevokeMembershipResponse struct {
	MembershipCode string `json:"membership_code"`
	Active         bool   `json:"active"`
}

// Revoke godoc
// @Summary Revoke a membership
// @Description Deactivates the membership so its key no longer validates. Idempotent.
// @Tags admin-memberships
// @Produce json
// @Security BearerAuth
// @Param code path string true "Membership code (MEMBER-XXXXXX)"
// @Success 200 {object} helpers.APIResponse "data contains membership_code and active=false"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/memberships/{code}/revoke [post]
func (c *MembershipController) Revoke(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !membershipCodeRegex.MatchString(code) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid membership code")
		return
	}

	if err := c.Service.Revoke(r.Context(), code); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "membership not found")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, RevokeMembershipResponse{
		MembershipCode: code,
		Active:         false,
	})
}

// ListMembershipsSuccessResponse is the success response envelope for GET /admin/memberships (200).
type ListMembershipsSuccessResponse struct {
	Data  []*domain.Membership `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// List godoc
// @Summary List memberships
// @Description Returns all issued memberships, newest first. Key hashes are never included.
// @Tags admin-memberships
// @Produce json
// @Security BearerAuth
// @Success 200 {object} controllers.ListMembershipsSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/memberships [get]
func (c *MembershipController) List(w http.ResponseWriter, r *http.Request) {
	memberships, err := c.Service.List(r.Context())
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, memberships)
}

// ValidateKeyRequest is the request body for POST /memberships/validate-key.
type ValidateKeyRequest struct {
	MembershipKey string `json:"membership_key"`
}

// Validate implements helpers.Validator.
func (r *ValidateKeyRequest) Validate() []string {
	r.MembershipKey = strings.ToLower(strings.TrimSpace(r.MembershipKey))
	if !membershipKeyRegex.MatchString(r.MembershipKey) {
		return []string{"membership_key must be 64 hex characters"}
	}
	return nil
}

// ValidateKeySuccessResponse is the success response envelope for POST /memberships/validate-key (200).
type ValidateKeySuccessResponse struct {
	Data  *domain.Membership `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

// ValidateKey godoc
// @Summary Validate a membership key
// @Description Checks a raw membership key against the stored hash and returns the membership when it is valid and active. Unknown and inactive keys are indistinguishable.
// @Tags memberships
// @Accept json
// @Produce json
// @Param body body controllers.ValidateKeyRequest true "Raw membership key"
// @Success 200 {object} controllers.ValidateKeySuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /memberships/validate-key [post]
func (c *MembershipController) ValidateKey(w http.ResponseWriter, r *http.Request) {
	var req ValidateKeyRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	m, err := c.Service.ValidateKey(r.Context(), req.MembershipKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "membership key is not valid")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusOK, m)
}
