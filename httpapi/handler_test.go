package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/middleware"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	email    = "user@example.com"
	password = "Str0ng!Pw"
)

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (o *outbox) Deliver(_ context.Context, msg mail.Message) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return "id", nil
}

func (o *outbox) last(kind mail.Kind) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind {
			return o.sent[i].Data[mail.DataToken]
		}
	}
	return ""
}

type server struct {
	e      *echo.Echo
	engine *goIdentity.Engine
	store  *memory.Store
	outbox *outbox
}

type serverOption func(engine *goIdentity.Config, api *Config)

func newServer(t *testing.T, opts ...serverOption) *server {
	t.Helper()

	cfg := goIdentity.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("0123456789abcdef0123456789abcdef-access")
	cfg.JWT.RefreshSecret = []byte("0123456789abcdef0123456789abcdef-refresh")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	api := Config{
		SecureCookies: true,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("goidentity_login_success_total 0\n"))
		}),
	}
	for _, opt := range opts {
		opt(&cfg, &api)
	}

	s := &server{store: memory.New(), outbox: &outbox{}}
	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithStore(s.store).
		WithMailer(s.outbox).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	s.engine = engine

	s.e = echo.New()
	New(engine, api, nil).Mount(s.e)
	return s
}

type call struct {
	method  string
	path    string
	body    any
	bearer  string
	cookies []*http.Cookie
	header  http.Header
}

func (s *server) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()

	var body strings.Builder
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(body.String()))
	if c.body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set("User-Agent", "httpapi-test")
	if c.bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.bearer)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *server) register(t *testing.T, addr string) goIdentity.Grant {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/register", body: echo.Map{
		"email": addr, "password": password, "name": "Test User",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var grant goIdentity.Grant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grant))
	return grant
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestRegisterSetsCookies(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/register", body: echo.Map{
		"email": email, "password": password,
	}})
	require.Equal(t, http.StatusCreated, rec.Code)

	var grant goIdentity.Grant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grant))
	assert.NotEmpty(t, grant.AccessToken)
	assert.Equal(t, email, grant.Account.Email)
	assert.False(t, grant.Account.EmailVerified)

	refresh := cookie(rec, RefreshCookieName)
	require.NotNil(t, refresh)
	assert.Equal(t, grant.RefreshToken, refresh.Value)
	assert.Equal(t, DefaultPrefix, refresh.Path)
	assert.True(t, refresh.HttpOnly)
	assert.True(t, refresh.Secure)
	assert.Equal(t, http.SameSiteStrictMode, refresh.SameSite)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), refresh.MaxAge)

	access := cookie(rec, AccessCookieName)
	require.NotNil(t, access)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, grant.AccessToken, access.Value)
}

func TestRegisterErrors(t *testing.T) {
	s := newServer(t)
	s.register(t, email)

	rec := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/register", body: echo.Map{
		"email": "USER@example.com", "password": password,
	}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, goIdentity.ErrEmailTaken.Code, errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/register", body: echo.Map{
		"email": "other@example.com", "password": "short",
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, goIdentity.ErrPasswordPolicy.Code, errorCode(t, rec))

	req := httptest.NewRequest(http.MethodPost, DefaultPrefix+"/register", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	raw := httptest.NewRecorder()
	s.e.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestLoginAndMe(t *testing.T) {
	s := newServer(t)
	s.register(t, email)

	rec := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/login", body: echo.Map{
		"email": email, "password": "wrong-Passw0rd",
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, goIdentity.ErrInvalidCredentials.Code, errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/login", body: echo.Map{
		"email": email, "password": password,
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	var grant goIdentity.Grant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grant))

	rec = s.do(t, call{method: http.MethodGet, path: DefaultPrefix + "/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: DefaultPrefix + "/me", bearer: grant.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), email)
	assert.Contains(t, rec.Body.String(), `"session_count":2`)

	rec = s.do(t, call{method: http.MethodGet, path: DefaultPrefix + "/me", cookies: []*http.Cookie{
		{Name: AccessCookieName, Value: grant.AccessToken},
	}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateMe(t *testing.T) {
	s := newServer(t)
	grant := s.register(t, email)

	rec := s.do(t, call{method: http.MethodPatch, path: DefaultPrefix + "/me", bearer: grant.AccessToken, body: echo.Map{
		"name": "Renamed",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"name":"Renamed"`)

	rec = s.do(t, call{method: http.MethodPatch, path: DefaultPrefix + "/me", bearer: grant.AccessToken, body: echo.Map{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshRotatesCookie(t *testing.T) {
	s := newServer(t)
	grant := s.register(t, email)
	old := &http.Cookie{Name: RefreshCookieName, Value: grant.RefreshToken}

	rec := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/refresh", cookies: []*http.Cookie{old}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := cookie(rec, RefreshCookieName)
	require.NotNil(t, rotated)
	assert.NotEqual(t, grant.RefreshToken, rotated.Value)

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/refresh", cookies: []*http.Cookie{old}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, goIdentity.ErrTokenInvalid.Code, errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/refresh"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, goIdentity.ErrRefreshTokenMissing.Code, errorCode(t, rec))

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/refresh", body: echo.Map{
		"refresh_token": rotated.Value,
	}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutClearsCookies(t *testing.T) {
	s := newServer(t)
	grant := s.register(t, email)

	rec := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/logout", body: echo.Map{
		"refresh_token": grant.RefreshToken,
	}})
	require.Equal(t, http.StatusNoContent, rec.Code)
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		ck := cookie(rec, name)
		require.NotNil(t, ck, name)
		assert.Empty(t, ck.Value)
		assert.Negative(t, ck.MaxAge)
	}

	// Idempotent.
	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/logout", body: echo.Map{
		"refresh_token": grant.RefreshToken,
	}})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/refresh", body: echo.Map{
		"refresh_token": grant.RefreshToken,
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	s := newServer(t)
	first := s.register(t, email)
	rec := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/login", body: echo.Map{
		"email": email, "password": password,
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/logout-all", bearer: first.AccessToken})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: DefaultPrefix + "/sessions", bearer: first.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":[]}`, rec.Body.String())
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	s := newServer(t)
	s.register(t, email)

	known := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/password/forgot", body: echo.Map{"email": email}})
	unknown := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/password/forgot", body: echo.Map{"email": "nobody@example.com"}})

	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.NotEmpty(t, s.outbox.last(mail.KindPasswordReset))
}

func TestResetPasswordFlow(t *testing.T) {
	s := newServer(t)
	s.register(t, email)

	rec := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/password/forgot", body: echo.Map{"email": email}})
	require.Equal(t, http.StatusAccepted, rec.Code)
	token := s.outbox.last(mail.KindPasswordReset)
	require.NotEmpty(t, token)

	const next = "N3wer!Passw0rd"
	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/password/reset", body: echo.Map{
		"token": token, "password": next,
	}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/password/reset", body: echo.Map{
		"token": token, "password": next,
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/login", body: echo.Map{
		"email": email, "password": next,
	}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePassword(t *testing.T) {
	s := newServer(t)
	grant := s.register(t, email)

	rec := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/password/change", bearer: grant.AccessToken, body: echo.Map{
		"current_password": "wrong-Passw0rd", "new_password": "N3wer!Passw0rd",
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/password/change", bearer: grant.AccessToken, body: echo.Map{
		"current_password": password, "new_password": "N3wer!Passw0rd",
	}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.NotNil(t, cookie(rec, RefreshCookieName))

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/refresh", body: echo.Map{
		"refresh_token": grant.RefreshToken,
	}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEmailVerification(t *testing.T) {
	s := newServer(t)
	grant := s.register(t, email)
	token := s.outbox.last(mail.KindEmailVerification)
	require.NotEmpty(t, token)

	rec := s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/email/verify", body: echo.Map{"token": token}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"email_verified":true`)

	rec = s.do(t, call{method: http.MethodPost, path: DefaultPrefix + "/email/resend", bearer: grant.AccessToken})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, goIdentity.ErrAlreadyVerified.Code, errorCode(t, rec))
}

func TestSessionsListAndRevoke(t *testing.T) {
	s := newServer(t)
	grant := s.register(t, email)

	rec := s.do(t, call{method: http.MethodGet, path: DefaultPrefix + "/sessions", bearer: grant.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []goIdentity.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, grant.SessionID, list.Sessions[0].ID)
	assert.Equal(t, "httpapi-test", list.Sessions[0].UserAgent)
	assert.Equal(t, "192.0.2.1", list.Sessions[0].IP)

	rec = s.do(t, call{method: http.MethodDelete, path: DefaultPrefix + "/sessions/missing", bearer: grant.AccessToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, call{method: http.MethodDelete, path: DefaultPrefix + "/sessions/" + grant.SessionID, bearer: grant.AccessToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminRoutesRequirePermission(t *testing.T) {
	s := newServer(t)
	grant := s.register(t, email)
	other := s.register(t, "other@example.com")

	path := DefaultPrefix + "/accounts/" + other.Account.ID
	rec := s.do(t, call{method: http.MethodPatch, path: path + "/status", bearer: grant.AccessToken, body: echo.Map{"active": false}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, call{method: http.MethodPatch, path: path + "/status", bearer: grant.AccessToken, body: echo.Map{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, call{method: http.MethodPatch, path: path + "/role", bearer: grant.AccessToken, body: echo.Map{"role": "administrator"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = s.do(t, call{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goidentity_login_success_total")
}

func withLoginLimit(limit int) serverOption {
	return func(cfg *goIdentity.Config, _ *Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.Login = goIdentity.RateLimitRule{Limit: limit, Window: time.Minute}
	}
}

func loginFrom(t *testing.T, s *server, forwardedFor string) int {
	t.Helper()
	rec := s.do(t, call{
		method: http.MethodPost,
		path:   DefaultPrefix + "/login",
		body:   echo.Map{"email": "nobody@example.com", "password": password},
		header: http.Header{echo.HeaderXForwardedFor: {forwardedFor}},
	})
	return rec.Code
}

func TestForwardedForIgnoredWithoutTrustedProxies(t *testing.T) {
	s := newServer(t, withLoginLimit(3))

	limited := 0
	for i := 0; i < 10; i++ {
		code := loginFrom(t, s, fmt.Sprintf("198.51.100.%d", i+1))
		if code == http.StatusTooManyRequests {
			limited++
			continue
		}
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	assert.Equal(t, 7, limited)
}

func TestForwardedForReadFromTrustedProxy(t *testing.T) {
	// httptest requests arrive from 192.0.2.1.
	_, proxies, err := net.ParseCIDR("192.0.2.0/24")
	require.NoError(t, err)
	s := newServer(t, withLoginLimit(3), func(_ *goIdentity.Config, api *Config) {
		api.TrustedProxies = []*net.IPNet{proxies}
	})

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusUnauthorized, loginFrom(t, s, fmt.Sprintf("198.51.100.%d", i+1)))
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, loginFrom(t, s, "203.0.113.7"))
	}
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(t, s, "203.0.113.7"))
}
