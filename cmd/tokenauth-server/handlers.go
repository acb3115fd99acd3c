package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/middleware"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/rights"
	"go.uber.org/zap"
)

type app struct {
	engine     *tokenauth.Engine
	principals *principalStore
	logger     *zap.Logger
	metrics    http.Handler
	purger     purger

	// Nil when rate limiting is off or the store has no Redis.
	loginLimit *rate.Limiter
	resetLimit *rate.Limiter
	// proxies decides whether X-Forwarded-For names the client.
	proxies *middleware.ProxyTrust
}

type userView struct {
	tokenauth.Principal
	IsEmailVerified bool `json:"isEmailVerified"`
}

func (a *app) view(p *tokenauth.Principal) *userView {
	if p == nil {
		return nil
	}
	return &userView{Principal: *p, IsEmailVerified: a.principals.isVerified(p.ID)}
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/auth/register", a.register)
	mux.HandleFunc("POST /v1/auth/login", a.login)
	mux.HandleFunc("POST /v1/auth/session", a.session)
	mux.HandleFunc("POST /v1/auth/logout", a.logout)
	mux.HandleFunc("POST /v1/auth/refresh-tokens", a.refreshTokens)
	mux.HandleFunc("POST /v1/auth/forgot-password", a.forgotPassword)
	mux.HandleFunc("POST /v1/auth/reset-password", a.resetPassword)
	mux.Handle("POST /v1/auth/send-verification-email",
		middleware.Require(a.engine)(http.HandlerFunc(a.sendVerificationEmail)))
	mux.HandleFunc("POST /v1/auth/verify-email", a.verifyEmail)

	mux.Handle("GET /v1/users",
		middleware.Require(a.engine, middleware.WithRights(rights.GetUsers))(http.HandlerFunc(a.listUsers)))
	mux.Handle("GET /v1/users/{userId}",
		middleware.Require(a.engine,
			middleware.WithRights(rights.GetUsers),
			middleware.WithOwnerParam("userId"),
		)(http.HandlerFunc(a.getUser)))

	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}
	mux.HandleFunc("GET /healthz", a.healthz)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, middleware.ErrorBody{Code: status, Message: message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// storeDown answers 503 for store outages and reports whether it did.
func storeDown(w http.ResponseWriter, err error) bool {
	if errors.Is(err, tokenauth.ErrStoreUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return true
	}
	return false
}

// limited answers 429 when err is a spent budget. Limiter outages are logged
// and the request goes through.
func (a *app) limited(w http.ResponseWriter, l *rate.Limiter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, rate.ErrRateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(l.Window().Seconds())))
		writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
		return true
	default:
		a.logger.Warn("rate limiter unavailable", zap.Error(err))
		return false
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (a *app) register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !decode(w, r, &body) {
		return
	}

	p, err := a.principals.create(body.Email, body.Password, body.Name, rights.RoleUser)
	switch {
	case errors.Is(err, password.ErrWeak):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, errEmailTaken):
		writeError(w, http.StatusBadRequest, "Email already taken")
		return
	case err != nil:
		a.logger.Error("register failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	pair, err := a.engine.GenerateAuthTokens(a.proxies.RequestContext(r), p.ID)
	if err != nil {
		if !storeDown(w, err) {
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": a.view(p), "tokens": pair})
}

func (a *app) login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !decode(w, r, &body) {
		return
	}

	attemptKey := normalizeEmail(body.Email) + "|" + a.proxies.ClientIP(r)
	if a.loginLimit != nil && a.limited(w, a.loginLimit, a.loginLimit.Check(r.Context(), attemptKey)) {
		return
	}

	p, err := a.principals.authenticate(body.Email, body.Password)
	if err != nil {
		if a.loginLimit != nil && a.limited(w, a.loginLimit, a.loginLimit.Hit(r.Context(), attemptKey)) {
			return
		}
		writeError(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	if a.loginLimit != nil {
		if err := a.loginLimit.Reset(r.Context(), attemptKey); err != nil {
			a.logger.Warn("rate limiter unavailable", zap.Error(err))
		}
	}

	pair, err := a.engine.GenerateAuthTokens(a.proxies.RequestContext(r), p.ID)
	if err != nil {
		if !storeDown(w, err) {
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	middleware.SetAuthCookies(w, a.engine.CookieConfig(), pair)
	writeJSON(w, http.StatusOK, map[string]any{"user": a.view(p), "tokens": pair})
}

// session rotates the refresh cookie, if any, and returns the signed-in
// principal. Without a cookie it answers {"user": null}.
func (a *app) session(w http.ResponseWriter, r *http.Request) {
	cfg := a.engine.CookieConfig()
	_, refresh := middleware.NewTransport(w, r, cfg).Tokens()
	if refresh == "" {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}

	ctx := a.proxies.RequestContext(r)
	pair, err := a.engine.RefreshAuth(ctx, refresh)
	if err != nil {
		middleware.ClearAuthCookies(w, cfg)
		if !storeDown(w, err) {
			writeError(w, http.StatusUnauthorized, "Please authenticate")
		}
		return
	}
	p, err := a.engine.PrincipalForToken(ctx, pair.Access.Token)
	if err != nil {
		middleware.ClearAuthCookies(w, cfg)
		writeError(w, http.StatusUnauthorized, "Please authenticate")
		return
	}

	middleware.SetAuthCookies(w, cfg, pair)
	writeJSON(w, http.StatusOK, map[string]any{"user": a.view(p)})
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *app) logout(w http.ResponseWriter, r *http.Request) {
	cfg := a.engine.CookieConfig()

	var body refreshBody
	if r.ContentLength != 0 && !decode(w, r, &body) {
		return
	}
	if body.RefreshToken == "" {
		_, body.RefreshToken = middleware.NewTransport(w, r, cfg).Tokens()
	}
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	err := a.engine.Logout(a.proxies.RequestContext(r), body.RefreshToken)
	if storeDown(w, err) {
		return
	}
	middleware.ClearAuthCookies(w, cfg)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Please authenticate")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if !decode(w, r, &body) {
		return
	}

	pair, err := a.engine.RefreshAuth(a.proxies.RequestContext(r), body.RefreshToken)
	if err != nil {
		if !storeDown(w, err) {
			writeError(w, http.StatusUnauthorized, "Please authenticate")
		}
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (a *app) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}

	if a.resetLimit != nil && a.limited(w, a.resetLimit, a.resetLimit.Hit(r.Context(), normalizeEmail(body.Email))) {
		return
	}

	err := a.engine.RequestPasswordReset(a.proxies.RequestContext(r), body.Email)
	if errors.Is(err, tokenauth.ErrPrincipalNotFound) {
		writeError(w, http.StatusNotFound, "No users found with this email")
		return
	}
	if err != nil {
		if !storeDown(w, err) {
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}
	if err := password.CheckPolicy(body.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := a.proxies.RequestContext(r)
	subject, err := a.engine.ConsumeResetPasswordToken(ctx, r.URL.Query().Get("token"))
	if err != nil {
		if !storeDown(w, err) {
			writeError(w, http.StatusUnauthorized, "Password reset failed")
		}
		return
	}
	if err := a.principals.setPassword(subject, body.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "Password reset failed")
		return
	}
	// Sessions opened with the old password end here.
	if _, err := a.engine.LogoutAll(ctx, subject); err != nil {
		a.logger.Warn("logout after password reset failed", zap.String("subject", subject), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) sendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	if err := a.engine.RequestEmailVerification(a.proxies.RequestContext(r), p); err != nil {
		if !storeDown(w, err) {
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) verifyEmail(w http.ResponseWriter, r *http.Request) {
	subject, err := a.engine.ConsumeVerifyEmailToken(a.proxies.RequestContext(r), r.URL.Query().Get("token"))
	if err != nil {
		if !storeDown(w, err) {
			writeError(w, http.StatusUnauthorized, "Email verification failed")
		}
		return
	}
	if err := a.principals.markVerified(subject); err != nil {
		writeError(w, http.StatusUnauthorized, "Email verification failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) listUsers(w http.ResponseWriter, _ *http.Request) {
	all := a.principals.list()
	out := make([]*userView, 0, len(all))
	for i := range all {
		out = append(out, a.view(&all[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (a *app) getUser(w http.ResponseWriter, r *http.Request) {
	p, err := a.principals.FindByID(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, a.view(p))
}

func (a *app) healthz(w http.ResponseWriter, r *http.Request) {
	h := a.engine.Health(r.Context())
	status := http.StatusOK
	if !h.StoreAvailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"store":      h.StoreAvailable,
		"latency_ms": h.StoreLatency.Milliseconds(),
	})
}
