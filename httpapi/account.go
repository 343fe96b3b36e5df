package httpapi

import (
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/account"
	"github.com/labstack/echo/v4"
)

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type statusRequest struct {
	Active *bool `json:"active"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) verifyEmail(c echo.Context) error {
	var req verifyEmailRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	pub, err := h.id.VerifyEmail(ctx, req.Token)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pub)
}

func (h *Handler) resendVerification(c echo.Context) error {
	ctx, cancel := h.callContext(c)
	defer cancel()

	if err := h.id.ResendVerification(ctx, h.caller(c).AccountID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) me(c echo.Context) error {
	ctx, cancel := h.callContext(c)
	defer cancel()

	pub, err := h.id.GetAccount(ctx, h.caller(c).AccountID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pub)
}

func (h *Handler) updateMe(c echo.Context) error {
	var upd goIdentity.ProfileUpdate
	if err := h.bind(c, &upd); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	pub, err := h.id.UpdateProfile(ctx, h.caller(c).AccountID, upd)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pub)
}

func (h *Handler) listSessions(c echo.Context) error {
	ctx, cancel := h.callContext(c)
	defer cancel()

	sessions, err := h.id.ListSessions(ctx, h.caller(c).AccountID)
	if err != nil {
		return h.fail(c, err)
	}
	if sessions == nil {
		sessions = []goIdentity.SessionInfo{}
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions})
}

func (h *Handler) revokeSession(c echo.Context) error {
	ctx, cancel := h.callContext(c)
	defer cancel()

	if err := h.id.RevokeSession(ctx, h.caller(c).AccountID, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) setStatus(c echo.Context) error {
	var req statusRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	if req.Active == nil {
		return h.fail(c, goIdentity.ErrValidation.WithField("active"))
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	if err := h.id.SetAccountActive(ctx, h.caller(c), c.Param("id"), *req.Active); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) setRole(c echo.Context) error {
	var req roleRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	if err := h.id.SetRole(ctx, h.caller(c), c.Param("id"), account.Role(req.Role)); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
