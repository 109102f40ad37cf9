package devserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ryanKinoti/LCS-v1/internal/identity"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeIdentityError(w http.ResponseWriter, status int, code identity.Code, msg string) {
	writeJSON(w, status, identity.ErrorBody{Error: identity.ErrorDetail{Code: code, Message: msg}})
}

func (s *Server) tokenResponse(acct *Account, t *Tokens) identity.TokenResponse {
	return identity.TokenResponse{
		UID:          acct.UID,
		Email:        acct.Email,
		IDToken:      t.IDToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    int64(s.tokenTTL.Seconds()),
	}
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req identity.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeIdentityError(w, http.StatusBadRequest, identity.CodeInvalidCredentials, "malformed request")
		return
	}
	if s.signin != nil && !s.signin.Allow() {
		writeIdentityError(w, http.StatusTooManyRequests, identity.CodeTooManyAttempts, "too many sign-in attempts, try again later")
		return
	}

	acct, err := s.store.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		writeIdentityError(w, http.StatusBadRequest, identity.CodeInvalidCredentials, "invalid email or password")
		return
	case errors.Is(err, ErrAccountDisabled):
		writeIdentityError(w, http.StatusForbidden, identity.CodeUserDisabled, "this account has been disabled")
		return
	case err != nil:
		s.log.WithError(err).Error("sign-in lookup failed")
		writeIdentityError(w, http.StatusInternalServerError, identity.CodeUnavailable, "sign-in failed")
		return
	}

	t, err := s.store.IssueTokens(r.Context(), acct.UID, s.tokenTTL)
	if err != nil {
		s.log.WithError(err).Error("issue tokens failed")
		writeIdentityError(w, http.StatusInternalServerError, identity.CodeUnavailable, "sign-in failed")
		return
	}
	if err := s.store.DropLoginTokens(r.Context(), acct.UID); err != nil {
		s.log.WithError(err).WithField("uid", acct.UID).Warn("drop registration login token failed")
	}
	s.log.WithField("uid", acct.UID).Info("signed in")
	writeJSON(w, http.StatusOK, s.tokenResponse(acct, t))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req identity.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeIdentityError(w, http.StatusBadRequest, identity.CodeTokenExpired, "refresh token required")
		return
	}

	acct, t, err := s.store.Refresh(r.Context(), req.RefreshToken, s.tokenTTL)
	switch {
	case errors.Is(err, ErrTokenInvalid):
		writeIdentityError(w, http.StatusBadRequest, identity.CodeTokenExpired, "refresh token is invalid or revoked")
		return
	case errors.Is(err, ErrAccountDisabled):
		writeIdentityError(w, http.StatusForbidden, identity.CodeUserDisabled, "this account has been disabled")
		return
	case err != nil:
		s.log.WithError(err).Error("refresh failed")
		writeIdentityError(w, http.StatusInternalServerError, identity.CodeUnavailable, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, s.tokenResponse(acct, t))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	var req identity.TokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := s.store.RevokeSession(r.Context(), bearerToken(r), req.RefreshToken); err != nil {
		s.log.WithError(err).Error("revoke session failed")
		writeIdentityError(w, http.StatusInternalServerError, identity.CodeUnavailable, "sign-out failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDisable disables an account and pushes a revocation to its open
// sessions.
func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	err := s.store.Disable(r.Context(), uid)
	switch {
	case errors.Is(err, ErrUserNotFound):
		writeIdentityError(w, http.StatusNotFound, identity.CodeInvalidCredentials, "no such account")
		return
	case err != nil:
		s.log.WithError(err).Error("disable failed")
		writeIdentityError(w, http.StatusInternalServerError, identity.CodeUnavailable, "disable failed")
		return
	}
	s.events.Revoke(uid, "account disabled")
	s.log.WithField("uid", uid).Info("account disabled")
	w.WriteHeader(http.StatusNoContent)
}
