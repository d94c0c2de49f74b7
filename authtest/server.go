// Package authtest runs an in-process fake of the back-office auth API: credential
// exchange with optional MFA step-up, rotating refresh tokens, a permissions endpoint
// and a couple of protected resources. Tests and the diagnostic CLI drive the session
// core against it and use its controls to force expiry, revocation and latency.
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/internal/logging"
	"github.com/jrsteele09/go-session-client/internal/utils"
)

// Paths of the protected resources served next to the auth endpoints.
const (
	RatesPath = "/api/rates/"
	EchoPath  = "/api/echo/"
)

type refreshGrant struct {
	username string
	rotated  bool
}

type tempGrant struct {
	username  string
	expiresAt time.Time
}

type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// Server is the fake backend. Its zero value is not usable; build it with New.
type Server struct {
	httpServer *httptest.Server
	signer     *Signer
	log        zerolog.Logger
	nowTime    func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
	tempTTL    time.Duration
	endpoints  authapi.Endpoints

	mu            sync.Mutex
	users         map[string]*User
	refreshGrants map[string]*refreshGrant // by jti
	tempGrants    map[string]tempGrant     // by temp token
	accessEpoch   int64

	refreshDelay      atomic.Int64
	refreshFailStatus atomic.Int32
	permissionsFail   atomic.Bool

	loginCalls      atomic.Int32
	verifyCalls     atomic.Int32
	refreshCalls    atomic.Int32
	permissionCalls atomic.Int32
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithUsers registers accounts. Without it DefaultUsers are used.
func WithUsers(users ...User) Option {
	return func(s *Server) {
		for i := range users {
			u := users[i]
			s.users[u.Username] = &u
		}
	}
}

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = d
	}
}

// WithTempTokenTTL sets the MFA temp token lifetime.
func WithTempTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.tempTTL = d
	}
}

// WithNowTime overrides the server clock.
func WithNowTime(nowTime func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowTime
	}
}

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// New starts a fake backend on a loopback port. Close it when done.
func New(options ...Option) (*Server, error) {
	s := &Server{
		signer:        NewSigner(uuid.NewString()),
		log:           logging.Component("authtest"),
		nowTime:       time.Now,
		accessTTL:     5 * time.Minute,
		refreshTTL:    24 * time.Hour,
		tempTTL:       5 * time.Minute,
		endpoints:     authapi.DefaultEndpoints(),
		users:         make(map[string]*User),
		refreshGrants: make(map[string]*refreshGrant),
		tempGrants:    make(map[string]tempGrant),
	}
	for _, opt := range options {
		opt(s)
	}
	if len(s.users) == 0 {
		WithUsers(DefaultUsers()...)(s)
	}
	for _, u := range s.users {
		hash, err := HashPassword(u.Password)
		if err != nil {
			return nil, errors.Wrapf(err, "[authtest.New] hash password of %s", u.Username)
		}
		u.passwordHash = hash
		u.Password = ""
	}

	mw := s.middleware()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.endpoints.Login, ChainMiddleware(s.handleLogin, mw...))
	mux.HandleFunc("POST "+s.endpoints.Refresh, ChainMiddleware(s.handleRefresh, mw...))
	mux.HandleFunc("POST "+s.endpoints.MfaVerify, ChainMiddleware(s.handleVerify, mw...))
	mux.HandleFunc("GET "+s.endpoints.Permissions, ChainMiddleware(s.handlePermissions, mw...))
	mux.HandleFunc("GET "+RatesPath, ChainMiddleware(s.handleRates, mw...))
	mux.HandleFunc("POST "+EchoPath, ChainMiddleware(s.handleEcho, mw...))

	s.httpServer = httptest.NewServer(mux)
	return s, nil
}

// URL is the API base URL to hand to authapi.New.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// Endpoints returns the paths the fake serves.
func (s *Server) Endpoints() authapi.Endpoints {
	return s.endpoints
}

// Client builds an authapi client pointed at the fake.
func (s *Server) Client() (*authapi.Client, error) {
	return authapi.New(s.URL(), s.endpoints)
}

func (s *Server) Close() {
	s.httpServer.Close()
}

// ExpireAccessTokens makes every access token issued so far fail with 401.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessEpoch++
}

// RevokeRefreshTokens invalidates every outstanding refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refreshGrants)
}

// ExpireTempTokens invalidates every pending MFA challenge.
func (s *Server) ExpireTempTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.tempGrants)
}

// SetRefreshDelay delays every refresh response.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// SetRefreshFailure makes the refresh endpoint answer with status; 0 restores normal behaviour.
func (s *Server) SetRefreshFailure(status int) {
	s.refreshFailStatus.Store(int32(status))
}

// SetPermissionsFailure makes the permissions endpoint fail with 500.
func (s *Server) SetPermissionsFailure(fail bool) {
	s.permissionsFail.Store(fail)
}

func (s *Server) LoginCalls() int      { return int(s.loginCalls.Load()) }
func (s *Server) VerifyCalls() int     { return int(s.verifyCalls.Load()) }
func (s *Server) RefreshCalls() int    { return int(s.refreshCalls.Load()) }
func (s *Server) PermissionCalls() int { return int(s.permissionCalls.Load()) }

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var creds authapi.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "malformed request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[creds.Username]
	if !ok || !CheckPasswordHash(creds.Password, u.passwordHash) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "No active account found with the given credentials"})
		return
	}

	if u.MfaCode != "" {
		temp := uuid.NewString()
		s.tempGrants[temp] = tempGrant{username: u.Username, expiresAt: s.nowTime().Add(s.tempTTL)}
		writeJSON(w, http.StatusOK, authapi.TokenResponse{MfaRequired: true, TempToken: utils.Ptr(temp)})
		return
	}
	s.issuePairLocked(w, u)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.verifyCalls.Add(1)

	var req authapi.MfaVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "malformed request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.tempGrants[req.TempToken]
	if !ok || s.nowTime().After(grant.expiresAt) {
		delete(s.tempGrants, req.TempToken)
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "Temp token expired or invalid", Code: "token_not_valid"})
		return
	}
	u := s.users[grant.username]
	if req.Code != u.MfaCode {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Invalid code"})
		return
	}
	delete(s.tempGrants, req.TempToken)
	s.issuePairLocked(w, u)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		time.Sleep(d)
	}
	if status := int(s.refreshFailStatus.Load()); status != 0 {
		writeJSON(w, status, errorBody{Detail: http.StatusText(status)})
		return
	}

	var req authapi.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "malformed request"})
		return
	}

	claims, err := s.signer.Verify(req.Refresh, jwt.WithTimeFunc(s.nowTime))
	if err != nil || claims["token_type"] != "refresh" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "Token is invalid or expired", Code: "token_not_valid"})
		return
	}
	jti, _ := claims["jti"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.refreshGrants[jti]
	if !ok || grant.rotated {
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "Token is blacklisted", Code: "token_not_valid"})
		return
	}
	grant.rotated = true
	s.issuePairLocked(w, s.users[grant.username])
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	s.permissionCalls.Add(1)
	u, ok := s.authorize(w, r)
	if !ok {
		return
	}
	if s.permissionsFail.Load() {
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "permissions unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, authapi.PermissionsResponse{Perms: u.Perms})
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"base":  "USD",
		"rates": map[string]float64{"EUR": 0.92, "GBP": 0.79, "KES": 129.5},
	})
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r); !ok {
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "malformed request"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// authorize validates the bearer token and returns its user, writing a 401 otherwise.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (*User, bool) {
	raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "Authentication credentials were not provided."})
		return nil, false
	}
	claims, err := s.signer.Verify(raw, jwt.WithTimeFunc(s.nowTime))
	if err != nil || claims["token_type"] != "access" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "Given token not valid for any token type", Code: "token_not_valid"})
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	epoch, _ := claims["epoch"].(float64)
	if int64(epoch) != s.accessEpoch {
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "Token is expired", Code: "token_not_valid"})
		return nil, false
	}
	username, _ := claims["username"].(string)
	u, ok := s.users[username]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "User not found"})
		return nil, false
	}
	return u, true
}

// issuePairLocked mints an access/refresh pair for u; s.mu must be held.
func (s *Server) issuePairLocked(w http.ResponseWriter, u *User) {
	now := s.nowTime()
	access, err := s.signer.Sign(jwt.MapClaims{
		"token_type":   "access",
		"jti":          uuid.NewString(),
		"user_id":      u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"is_staff":     u.IsStaff,
		"is_superuser": u.IsSuperuser,
		"roles":        u.Roles,
		"epoch":        s.accessEpoch,
		"iat":          now.Unix(),
		"exp":          now.Add(s.accessTTL).Unix(),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
		return
	}

	jti := uuid.NewString()
	refresh, err := s.signer.Sign(jwt.MapClaims{
		"token_type": "refresh",
		"jti":        jti,
		"user_id":    u.ID,
		"iat":        now.Unix(),
		"exp":        now.Add(s.refreshTTL).Unix(),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
		return
	}
	s.refreshGrants[jti] = &refreshGrant{username: u.Username}

	writeJSON(w, http.StatusOK, authapi.TokenResponse{Access: utils.Ptr(access), Refresh: utils.Ptr(refresh)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
