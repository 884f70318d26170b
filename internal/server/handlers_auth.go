package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/storesense/storesense/internal/auth"
	"github.com/storesense/storesense/internal/metrics"
	"github.com/storesense/storesense/internal/middleware"
)

// loginResponse is the successful login payload.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Username    string `json:"username"`
}

// handleLoginForm authenticates the admin with form-encoded credentials
// (OAuth2 password flow style).
//
// POST /auth/login
func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid form body")
		return
	}
	s.completeLogin(w, r, r.PostFormValue("username"), r.PostFormValue("password"))
}

// handleLoginJSON authenticates the admin with a JSON body.
//
// POST /auth/login/json
func (s *Server) handleLoginJSON(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	s.completeLogin(w, r, creds.Username, creds.Password)
}

// completeLogin verifies the credentials and issues the session token.
func (s *Server) completeLogin(w http.ResponseWriter, r *http.Request, username, password string) {
	if !auth.VerifyCredentials(s.cfg.Auth.AdminUsername, s.cfg.Auth.AdminPassword, username, password) {
		metrics.AuthFailuresTotal.Inc()
		s.audit.LogAuthFailure(r.Context(), clientAddr(r), "invalid credentials")
		s.log.Warn("failed login attempt", zap.String("username", username))
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token, err := auth.IssueToken(s.cfg.Auth.JWTSecret, username, s.cfg.TokenExpiry())
	if err != nil {
		s.log.Error("token issue failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "failed to create session token")
		return
	}

	s.log.Info("admin login", zap.String("username", username))
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.cfg.Auth.TokenExpireMinutes,
		Username:    username,
	})
}

// requireAdmin validates the bearer token and returns its claims, or
// answers 401 and reports false.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	token := middleware.ExtractBearer(r)
	claims, err := auth.ValidateToken(s.cfg.Auth.JWTSecret, token)
	if err != nil {
		metrics.AuthFailuresTotal.Inc()
		s.audit.LogAuthFailure(r.Context(), clientAddr(r), "invalid bearer token")
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return nil, false
	}
	return claims, true
}

// handleMe describes the authenticated admin session.
//
// GET /auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": claims.Username,
		"is_admin": true,
	})
}

// handleLogout acknowledges a logout. Sessions are stateless; the
// client discards the token.
//
// POST /auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	s.log.Info("admin logout", zap.String("username", claims.Username))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
