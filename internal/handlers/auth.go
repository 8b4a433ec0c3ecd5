package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/identity"
	"github.com/localnerve/reportdesk/internal/middleware"
	"github.com/localnerve/reportdesk/internal/routing"
	"github.com/localnerve/reportdesk/internal/utils"
	"go.uber.org/zap"
)

// AuthHandler serves sign in, sign out and password recovery
type AuthHandler struct {
	Deps
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	// From is the page the user was sent away from; defaults to /
	From string `json:"from"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	// Fragment is the reset link's URL fragment, with or without the leading #
	Fragment        string `json:"fragment"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// sessionResponse is the resolved caller as the client sees it
type sessionResponse struct {
	identity.State
	Redirect string `json:"redirect,omitempty"`
}

func (h *AuthHandler) setCookie(c *fiber.Ctx, s *identity.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    s.AccessToken,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HTTPOnly: true,
		Secure:   c.Protocol() == "https",
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// landing follows guard redirects from path until a page admits the caller
func landing(path string, state identity.State) string {
	if path == "" {
		path = routing.PathHome
	}
	for hops := 0; hops < 4; hops++ {
		d := routing.Resolve(path, "", state)
		if d.Allow || d.Redirect == "" {
			return path
		}
		path = d.Redirect
	}
	return path
}

// Login godoc
// @Summary Sign in
// @Description Authenticate with email and password; sets the session cookie
// @Tags Auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 401 {object} utils.ErrorResponseStruct
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body loginRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, nil, "auth.login")
	}
	if err := utils.Validate(&body); err != nil {
		return badRequest(c, err, "auth.login")
	}

	state, err := h.Auth.SignIn(c.UserContext(), body.Email, body.Password)
	if err != nil {
		return fail(c, err, "auth.login")
	}
	h.setCookie(c, state.Session)

	redirect := landing(body.From, state)
	return c.Status(fiber.StatusOK).JSON(sessionResponse{State: state, Redirect: redirect})
}

// Logout godoc
// @Summary Sign out
// @Tags Auth
// @Produce json
// @Success 200 {object} utils.MessageResponseStruct
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token := middleware.Token(c)
	h.clearCookie(c)
	if token != "" {
		if err := h.Auth.SignOut(c.UserContext(), token); err != nil {
			h.Log.Warn("sign out failed", zap.Error(err))
		}
	}
	return utils.MessageResponse(c, fiber.StatusOK, "Signed out", nil)
}

// Session godoc
// @Summary Current session
// @Description Resolve the caller's session and role
// @Tags Auth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /auth/session [get]
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(sessionResponse{State: middleware.State(c)})
}

// ForgotPassword godoc
// @Summary Request a password reset link
// @Tags Auth
// @Accept json
// @Produce json
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var body forgotPasswordRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, nil, "auth.recover")
	}

	if err := h.Auth.RequestPasswordReset(c.UserContext(), body.Email, h.Config.PublicURL); err != nil {
		return fail(c, err, "auth.recover")
	}
	return utils.MessageResponse(c, fiber.StatusOK,
		"Password reset email sent! Check your inbox and follow the link to reset your password.", nil)
}

// ResetPassword godoc
// @Summary Set a new password from a recovery link
// @Tags Auth
// @Accept json
// @Produce json
// @Success 200 {object} utils.MessageResponseStruct
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var body resetPasswordRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, nil, "auth.reset")
	}

	err := h.Auth.ResetPassword(c.UserContext(), body.Fragment, body.Password, body.ConfirmPassword)
	if err != nil {
		return fail(c, err, "auth.reset")
	}
	h.clearCookie(c)
	return utils.MessageResponse(c, fiber.StatusOK, "Password updated successfully! Redirecting to login...",
		fiber.Map{"redirect": routing.PathLogin})
}

// ResolveRoute godoc
// @Summary Resolve a client route
// @Description Apply the route guards to a path for the current caller
// @Tags Routing
// @Produce json
// @Param path query string true "Client path"
// @Param fragment query string false "URL fragment"
// @Success 200 {object} routing.Decision
// @Router /routes/resolve [get]
func (h *AuthHandler) ResolveRoute(c *fiber.Ctx) error {
	decision := routing.Resolve(c.Query("path", routing.PathHome), c.Query("fragment"), middleware.State(c))
	return c.Status(fiber.StatusOK).JSON(decision)
}
