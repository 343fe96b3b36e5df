package httpapi

import (
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/labstack/echo/v4"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) register(c echo.Context) error {
	var req credentialsRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	grant, err := h.id.Register(ctx, goIdentity.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return h.fail(c, err)
	}
	h.setTokenCookies(c, grant)
	return c.JSON(http.StatusCreated, grant)
}

func (h *Handler) login(c echo.Context) error {
	var req credentialsRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	grant, err := h.id.Login(ctx, req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	h.setTokenCookies(c, grant)
	return c.JSON(http.StatusOK, grant)
}

func (h *Handler) refresh(c echo.Context) error {
	var req refreshRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	grant, err := h.id.Refresh(ctx, refreshToken(c, req.RefreshToken))
	if err != nil {
		return h.fail(c, err)
	}
	h.setTokenCookies(c, grant)
	return c.JSON(http.StatusOK, grant)
}

func (h *Handler) logout(c echo.Context) error {
	var req refreshRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	if err := h.id.Logout(ctx, refreshToken(c, req.RefreshToken)); err != nil {
		return h.fail(c, err)
	}
	h.clearTokenCookies(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) logoutAll(c echo.Context) error {
	ctx, cancel := h.callContext(c)
	defer cancel()

	if err := h.id.LogoutAll(ctx, h.caller(c).AccountID); err != nil {
		return h.fail(c, err)
	}
	h.clearTokenCookies(c)
	return c.NoContent(http.StatusNoContent)
}
