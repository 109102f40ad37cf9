package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ryanKinoti/LCS-v1/internal/account"
)

type ctxKey struct{}

func userFrom(ctx context.Context) *userRecord {
	u, _ := ctx.Value(ctxKey{}).(*userRecord)
	return u
}

// authenticate verifies the bearer ID token and loads the linked backend
// user.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		acct, err := s.store.VerifyIDToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrTokenInvalid) && !errors.Is(err, ErrAccountDisabled) {
				s.log.WithError(err).Error("token verification failed")
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid or expired token."})
			return
		}
		u, err := s.store.UserByUID(r.Context(), acct.UID)
		if errors.Is(err, ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
			return
		}
		if err != nil {
			s.log.WithError(err).Error("user lookup failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Authentication failed"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

// meResponse is the /me body. Role is null for users with no profile.
type meResponse struct {
	User    account.User    `json:"user"`
	Profile account.Profile `json:"profile"`
	Role    *account.Role   `json:"role"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	resp := meResponse{User: u.User(), Profile: u.Profile()}
	if role := u.Role(); role != "" {
		resp.Role = &role
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	if u.Role() == "" {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}

	d, err := s.buildDashboard(r.Context(), u)
	if err == nil {
		var body []byte
		if body, err = account.EncodeDashboard(u.User(), d); err == nil {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
			return
		}
	}
	s.log.WithError(err).WithField("user", u.ID).Error("dashboard failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch dashboard data"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request body."})
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		var ve *account.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, fieldErrors(ve.Fields))
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	uid, err := s.store.Register(r.Context(), req)
	switch {
	case errors.Is(err, ErrEmailExists):
		writeJSON(w, http.StatusBadRequest, fieldErrors(map[string]string{"email": "user with this email already exists."}))
		return
	case err != nil:
		s.log.WithError(err).Error("registration failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Registration failed"})
		return
	}

	// The client signs in with the password right after registering, and
	// that sign-in drops this token again.
	loginToken, err := s.store.IssueLoginToken(r.Context(), uid)
	if err != nil {
		s.log.WithError(err).Error("issue login token failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Registration failed"})
		return
	}
	s.log.WithField("uid", uid).WithField("profile_type", req.ProfileType).Info("registered")
	writeJSON(w, http.StatusCreated, account.RegisterResponse{
		Message: fmt.Sprintf("Successfully created %s account", req.ProfileType),
		Data: account.RegisterData{
			Email:       req.Email,
			ProfileType: req.ProfileType,
			LoginToken:  loginToken,
		},
	})
}

// fieldErrors shapes validation problems as {"field": ["message"]}.
func fieldErrors(fields map[string]string) map[string][]string {
	out := make(map[string][]string, len(fields))
	for k, v := range fields {
		out[k] = []string{v}
	}
	return out
}
