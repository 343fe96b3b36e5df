package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/internal/logging"
	"github.com/MrEthical07/goIdentity/middleware"
	"github.com/labstack/echo/v4"
)

const (
	DefaultPrefix      = "/api/v1/auth"
	RefreshCookieName  = "refresh_token"
	AccessCookieName   = middleware.AccessCookieName
	defaultCallTimeout = 10 * time.Second
)

// Identity is the engine surface the handlers call.
type Identity interface {
	Register(ctx context.Context, req goIdentity.RegisterRequest) (*goIdentity.Grant, error)
	Login(ctx context.Context, email, password string) (*goIdentity.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*goIdentity.Grant, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, accountID string) error
	Authenticate(ctx context.Context, accessToken string) (*goIdentity.AuthResult, error)
	Authorize(result *goIdentity.AuthResult, permission string) error
	ChangePassword(ctx context.Context, accountID, current, next string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) (*account.Public, error)
	ResendVerification(ctx context.Context, accountID string) error
	GetAccount(ctx context.Context, accountID string) (*account.Public, error)
	UpdateProfile(ctx context.Context, accountID string, upd goIdentity.ProfileUpdate) (*account.Public, error)
	ListSessions(ctx context.Context, accountID string) ([]goIdentity.SessionInfo, error)
	RevokeSession(ctx context.Context, accountID, sessionID string) error
	SetAccountActive(ctx context.Context, actor *goIdentity.AuthResult, accountID string, active bool) error
	SetRole(ctx context.Context, actor *goIdentity.AuthResult, accountID string, role account.Role) error
}

// Config controls routing and cookies.
type Config struct {
	Prefix        string
	SecureCookies bool
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// CallTimeout bounds each engine call.
	CallTimeout time.Duration
	// Metrics, when set, is served at GET /metrics.
	Metrics http.Handler
	// TrustedProxies are the only peers whose X-Forwarded-For is read.
	// Without them the client address is the TCP peer.
	TrustedProxies []*net.IPNet
}

// Handler holds the route handlers.
type Handler struct {
	id  Identity
	cfg Config
	log logging.Logger
}

func New(id Identity, cfg Config, log logging.Logger) *Handler {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Handler{id: id, cfg: cfg, log: log}
}

// Mount registers every route on e and sets its client IP extractor.
func (h *Handler) Mount(e *echo.Echo) {
	e.IPExtractor = h.ipExtractor()

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if h.cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.cfg.Metrics))
	}

	g := e.Group(h.cfg.Prefix, h.requestMeta)
	g.POST("/register", h.register)
	g.POST("/login", h.login)
	g.POST("/refresh", h.refresh)
	g.POST("/logout", h.logout)
	g.POST("/password/forgot", h.forgotPassword)
	g.POST("/password/reset", h.resetPassword)
	g.POST("/email/verify", h.verifyEmail)

	authed := g.Group("", echo.WrapMiddleware(middleware.Guard(h.id)))
	authed.POST("/logout-all", h.logoutAll)
	authed.POST("/password/change", h.changePassword)
	authed.POST("/email/resend", h.resendVerification)
	authed.GET("/me", h.me)
	authed.PATCH("/me", h.updateMe)
	authed.GET("/sessions", h.listSessions)
	authed.DELETE("/sessions/:id", h.revokeSession)
	authed.PATCH("/accounts/:id/status", h.setStatus)
	authed.PATCH("/accounts/:id/role", h.setRole)
}

func (h *Handler) ipExtractor() echo.IPExtractor {
	if len(h.cfg.TrustedProxies) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range h.cfg.TrustedProxies {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// requestMeta copies the client address and user agent into the request
// context for session records and audit events.
func (h *Handler) requestMeta(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := goIdentity.WithClientIP(req.Context(), c.RealIP())
		ctx = goIdentity.WithUserAgent(ctx, req.UserAgent())
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func (h *Handler) callContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.cfg.CallTimeout)
}

func (h *Handler) caller(c echo.Context) *goIdentity.AuthResult {
	res, _ := middleware.AuthResultFromContext(c.Request().Context())
	return res
}

// fail writes err with its mapped status. Internal errors are logged with
// their cause and answered without it.
func (h *Handler) fail(c echo.Context, err error) error {
	status := middleware.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(c.Request().Context(), "request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}
	return c.JSON(status, middleware.Body(err))
}

func (h *Handler) bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return goIdentity.ErrValidation.WithMessage("invalid request body")
	}
	return nil
}

func (h *Handler) setTokenCookies(c echo.Context, grant *goIdentity.Grant) {
	c.SetCookie(&http.Cookie{
		Name:     AccessCookieName,
		Value:    grant.AccessToken,
		Path:     "/",
		MaxAge:   int(h.cfg.AccessTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    grant.RefreshToken,
		Path:     h.cfg.Prefix,
		MaxAge:   int(h.cfg.RefreshTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearTokenCookies(c echo.Context) {
	for _, ck := range []struct{ name, path string }{
		{AccessCookieName, "/"},
		{RefreshCookieName, h.cfg.Prefix},
	} {
		c.SetCookie(&http.Cookie{
			Name:     ck.name,
			Value:    "",
			Path:     ck.path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cfg.SecureCookies,
		})
	}
}

// refreshToken reads the token from the body field, then the cookie.
func refreshToken(c echo.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if ck, err := c.Cookie(RefreshCookieName); err == nil {
		return ck.Value
	}
	return ""
}
