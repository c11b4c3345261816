package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/backoffice-kit/auth-service/internal/domain"
	"github.com/backoffice-kit/auth-service/internal/http/middleware"
	"github.com/backoffice-kit/auth-service/internal/http/response"
	"github.com/backoffice-kit/auth-service/internal/observability"
	"github.com/backoffice-kit/auth-service/internal/service"
)

// AuthHandler is the transport boundary: it decodes requests, drives the
// orchestrator and maps domain error kinds to typed responses. It never
// reclassifies component errors on the way through.
type AuthHandler struct {
	flow *service.LoginOrchestrator
}

func NewAuthHandler(flow *service.LoginOrchestrator) *AuthHandler {
	return &AuthHandler{flow: flow}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Email      string          `json:"email"`
	DigitCode  string          `json:"digit_code,omitempty"`
	Credential json.RawMessage `json:"credential,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type inviteRequest struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	AccountType string `json:"account_type,omitempty"`
}

type oneTimeTokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.flow.Login(r.Context(), req.Email, req.Password, sourceContext(r))
	if err != nil {
		observability.RecordAuthLogin("failure")
		writeDomainError(w, r, err)
		return
	}
	observability.RecordAuthLogin("success")
	response.JSON(w, r, http.StatusOK, result)
}

func (h *AuthHandler) VerifyAuth(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	factor := "digit_code"
	if len(req.Credential) > 0 {
		factor = "webauthn"
	}
	pair, err := h.flow.VerifyAuth(r.Context(), req.Email, req.DigitCode, req.Credential, sourceContext(r))
	if err != nil {
		observability.RecordAuthVerify(factor, "failure")
		writeDomainError(w, r, err)
		return
	}
	observability.RecordAuthVerify(factor, "success")
	response.JSON(w, r, http.StatusOK, pair)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, err := h.flow.RefreshToken(r.Context(), req.RefreshToken, sourceContext(r))
	if err != nil {
		observability.RecordAuthRefresh("failure")
		writeDomainError(w, r, err)
		return
	}
	observability.RecordAuthRefresh("success")
	response.JSON(w, r, http.StatusOK, pair)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, err := h.flow.ResetPassword(r.Context(), req.Token, req.Password, req.ConfirmPassword, sourceContext(r))
	if err != nil {
		observability.RecordPasswordReset("failure")
		writeDomainError(w, r, err)
		return
	}
	observability.RecordPasswordReset("success")
	response.JSON(w, r, http.StatusOK, pair)
}

func (h *AuthHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	identity, err := h.flow.InviteUser(r.Context(), req.Email, req.FirstName, req.LastName, domain.AccountType(req.AccountType), sourceContext(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, identity)
}

func (h *AuthHandler) GenerateOneTimeToken(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	token, err := h.flow.GenerateOneTimeToken(r.Context(), subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"token": token})
}

func (h *AuthHandler) TokenByOneTimeToken(w http.ResponseWriter, r *http.Request) {
	var req oneTimeTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, err := h.flow.TokenByOneTimeToken(r.Context(), req.Token)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, pair)
}

func (h *AuthHandler) WebAuthnBeginRegistration(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	options, err := h.flow.BeginCredentialRegistration(r.Context(), subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, options)
}

func (h *AuthHandler) WebAuthnFinishRegistration(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	var assertion json.RawMessage
	if !decodeJSON(w, r, &assertion) {
		return
	}
	if _, err := h.flow.FinishCredentialRegistration(r.Context(), subject, assertion); err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"verified": true})
}

func (h *AuthHandler) WebAuthnBeginAuthentication(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	options, err := h.flow.BeginCredentialAuthentication(r.Context(), req.Email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, options)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return false
	}
	return true
}

func sourceContext(r *http.Request) service.SourceContext {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return service.SourceContext{IP: host, UserAgent: r.UserAgent()}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var weak *domain.WeakPasswordError
	if errors.As(err, &weak) {
		response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", weak.Error(), map[string]string{"rule": string(weak.Rule)})
		return
	}

	switch {
	case errors.Is(err, domain.ErrAuthentication):
		response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_FAILED", domain.ErrAuthentication.Error(), nil)
	case errors.Is(err, domain.ErrExpiredSignature):
		response.Error(w, r, http.StatusUnauthorized, "EXPIRED_SIGNATURE", domain.ErrExpiredSignature.Error(), nil)
	case errors.Is(err, domain.ErrInvalidScope):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_SCOPE", domain.ErrInvalidScope.Error(), nil)
	case errors.Is(err, domain.ErrInvalidToken):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN", domain.ErrInvalidToken.Error(), nil)
	case errors.Is(err, domain.ErrOTPFailedAttempts):
		response.Error(w, r, http.StatusUnauthorized, "OTP_FAILED_ATTEMPTS", domain.ErrOTPFailedAttempts.Error(), nil)
	case errors.Is(err, domain.ErrDigitCode):
		response.Error(w, r, http.StatusUnauthorized, "DIGIT_CODE_INVALID", domain.ErrDigitCode.Error(), nil)
	case errors.Is(err, domain.ErrChallengeNotFound):
		response.Error(w, r, http.StatusUnauthorized, "CHALLENGE_NOT_FOUND", domain.ErrChallengeNotFound.Error(), nil)
	case errors.Is(err, domain.ErrCredentialCloned):
		response.Error(w, r, http.StatusUnauthorized, "CREDENTIAL_CLONED", domain.ErrCredentialCloned.Error(), nil)
	case errors.Is(err, domain.ErrWebAuthnVerification):
		response.Error(w, r, http.StatusUnauthorized, "WEBAUTHN_VERIFICATION_FAILED", domain.ErrWebAuthnVerification.Error(), nil)
	case errors.Is(err, domain.ErrCredentialNotFound):
		response.Error(w, r, http.StatusBadRequest, "CREDENTIAL_NOT_FOUND", domain.ErrCredentialNotFound.Error(), nil)
	case errors.Is(err, domain.ErrInviteExpiredSignature):
		response.Error(w, r, http.StatusBadRequest, "INVITE_LINK_EXPIRED", domain.ErrInviteExpiredSignature.Error(), nil)
	case errors.Is(err, domain.ErrInviteLink):
		response.Error(w, r, http.StatusBadRequest, "INVITE_LINK_INVALID", domain.ErrInviteLink.Error(), nil)
	case errors.Is(err, domain.ErrInvalidOneTimeToken):
		response.Error(w, r, http.StatusUnauthorized, "ONE_TIME_TOKEN_INVALID", domain.ErrInvalidOneTimeToken.Error(), nil)
	case errors.Is(err, domain.ErrPasswordMismatch):
		response.Error(w, r, http.StatusBadRequest, "PASSWORD_MISMATCH", domain.ErrPasswordMismatch.Error(), nil)
	case errors.Is(err, domain.ErrUnsupportedFactor):
		response.Error(w, r, http.StatusBadRequest, "UNSUPPORTED_FACTOR", domain.ErrUnsupportedFactor.Error(), nil)
	case errors.Is(err, domain.ErrIdentityExists):
		response.Error(w, r, http.StatusConflict, "IDENTITY_EXISTS", domain.ErrIdentityExists.Error(), nil)
	case errors.Is(err, domain.ErrSendMail):
		response.Error(w, r, http.StatusBadGateway, "SEND_MAIL_FAILED", domain.ErrSendMail.Error(), nil)
	default:
		// Unexpected failures keep their detail server-side, correlated by
		// request id.
		slog.ErrorContext(r.Context(), "unexpected error",
			"error", err,
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "an internal error occurred", nil)
	}
}
