package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/backoffice-kit/auth-service/internal/http/handler"
	"github.com/backoffice-kit/auth-service/internal/http/middleware"
	"github.com/backoffice-kit/auth-service/internal/http/response"
	"github.com/backoffice-kit/auth-service/internal/security"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	TokenManager     *security.TokenManager
	CORSOrigins      []string
	AuthRateLimitRPM int
	APIRateLimitRPM  int
	AuthRateLimiter  AuthRateLimiterFunc
	EnableOTelHTTP   bool
}

type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	requireAuth := middleware.AuthMiddleware(dep.TokenManager)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/verify", dep.AuthHandler.VerifyAuth)
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.With(authLimiter).Post("/password/reset", dep.AuthHandler.ResetPassword)
			r.With(authLimiter).Post("/token/one-time", dep.AuthHandler.TokenByOneTimeToken)
			r.With(requireAuth).Post("/one-time-token", dep.AuthHandler.GenerateOneTimeToken)

			r.Route("/webauthn", func(r chi.Router) {
				r.With(requireAuth).Post("/register/begin", dep.AuthHandler.WebAuthnBeginRegistration)
				r.With(requireAuth).Post("/register/finish", dep.AuthHandler.WebAuthnFinishRegistration)
				r.With(authLimiter).Post("/login/begin", dep.AuthHandler.WebAuthnBeginAuthentication)
			})
		})

		r.With(requireAuth).Post("/users/invite", dep.AuthHandler.Invite)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
