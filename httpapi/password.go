package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// forgotPasswordAccepted is the only body forgot-password ever answers
// with, so callers cannot tell registered addresses apart.
var forgotPasswordAccepted = echo.Map{
	"message": "if the address is registered, a reset link has been sent",
}

func (h *Handler) forgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	if err := h.id.ForgotPassword(ctx, req.Email); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, forgotPasswordAccepted)
}

func (h *Handler) resetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	if err := h.id.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) changePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.callContext(c)
	defer cancel()

	if err := h.id.ChangePassword(ctx, h.caller(c).AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		return h.fail(c, err)
	}
	// Every session, including this one, is gone.
	h.clearTokenCookies(c)
	return c.NoContent(http.StatusNoContent)
}
