package http

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "membershipinitiation/docs"
	"membershipinitiation/internal/delivery/http/controllers"
	"membershipinitiation/internal/delivery/http/helpers"
)

// Middleware wraps a handler func, short-circuiting the request when its
// precondition fails.
type Middleware func(http.HandlerFunc) http.HandlerFunc

// RouterDeps holds everything the router needs to register routes.
type RouterDeps struct {
	Invitations  *controllers.InvitationController
	Onboarding   *controllers.OnboardingController
	Reviews      *controllers.ReviewController
	Memberships  *controllers.MembershipController
	RequireAdmin Middleware
	RateLimit    Middleware
}

// NewRouter initializes the HTTP router with all application routes.
// Admin routes go through the privilege middleware; public applicant routes
// go through the per-address rate limiter.
func NewRouter(deps RouterDeps) *http.ServeMux {
	mux := http.NewServeMux()
	admin := deps.RequireAdmin
	limited := deps.RateLimit

	// Public applicant routes
	mux.HandleFunc("POST /invitations/redeem", limited(deps.Invitations.Redeem))
	mux.HandleFunc("POST /onboarding/sessions", limited(deps.Onboarding.StartSession))
	mux.HandleFunc("POST /onboarding/sessions/{code}/consent", limited(deps.Onboarding.RecordConsent))
	mux.HandleFunc("POST /onboarding/sessions/{code}/responses", limited(deps.Onboarding.SubmitResponses))
	mux.HandleFunc("POST /memberships/validate-key", limited(deps.Memberships.ValidateKey))

	// Admin routes
	mux.HandleFunc("POST /admin/invitations", admin(deps.Invitations.Create))
	mux.HandleFunc("GET /admin/invitations", admin(deps.Invitations.List))
	mux.HandleFunc("POST /admin/invitations/{code}/revoke", admin(deps.Invitations.Revoke))
	mux.HandleFunc("GET /admin/invitations/{code}/audit", admin(deps.Invitations.AuditTrail))
	mux.HandleFunc("GET /admin/reviews", admin(deps.Reviews.List))
	mux.HandleFunc("POST /admin/reviews/{code}/decision", admin(deps.Reviews.Decide))
	mux.HandleFunc("POST /admin/memberships", admin(deps.Memberships.Issue))
	mux.HandleFunc("GET /admin/memberships", admin(deps.Memberships.List))
	mux.HandleFunc("POST /admin/memberships/{code}/revoke", admin(deps.Memberships.Revoke))

	// Health
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
