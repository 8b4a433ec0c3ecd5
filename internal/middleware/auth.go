package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/reportdesk/internal/identity"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/store"
	"github.com/localnerve/reportdesk/internal/types"
)

// SessionCookie is the cookie name set on login
const SessionCookie = "session"

const (
	localState = "state"
	localToken = "token"
)

// Token reads the bearer token, falling back to the session cookie
func Token(c *fiber.Ctx) string {
	if auth := c.Get(fiber.HeaderAuthorization); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
			return strings.TrimSpace(auth[7:])
		}
	}
	return c.Cookies(SessionCookie)
}

// Authenticate resolves the caller's session and role and stores them in context.
// Signed out callers pass through with an empty state; guards decide what they may do.
func Authenticate(app *identity.AppContext) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := Token(c)
		state, err := app.Resolve(c.UserContext(), token)
		if err != nil {
			return &types.CustomError{
				Code:    fiber.StatusServiceUnavailable,
				Message: "Session check failed: " + err.Error(),
				Type:    "auth.session",
			}
		}

		c.Locals(localState, state)
		if state.Session != nil {
			c.Locals(localToken, token)
			// the postgrest backend forwards the caller's token
			c.SetUserContext(store.WithAccessToken(c.UserContext(), token))
		}
		return c.Next()
	}
}

// State returns the resolved caller state
func State(c *fiber.Ctx) identity.State {
	state, _ := c.Locals(localState).(identity.State)
	return state
}

// SessionToken returns the token the caller authenticated with
func SessionToken(c *fiber.Ctx) string {
	token, _ := c.Locals(localToken).(string)
	return token
}

// CurrentUser returns the caller's application user, nil when signed out or unknown
func CurrentUser(c *fiber.Ctx) *models.User {
	return State(c).User
}

func requireSession(state identity.State) error {
	if state.Checking {
		return &types.CustomError{
			Code:    fiber.StatusServiceUnavailable,
			Message: "Session check in progress",
			Type:    "auth.pending",
		}
	}
	if !state.SignedIn() {
		return &types.CustomError{
			Code:    fiber.StatusUnauthorized,
			Message: "Authentication required",
			Type:    "auth.session",
		}
	}
	return nil
}

// RequireSession rejects callers without a usable session
func RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := requireSession(State(c)); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireRoles allows signed in callers holding one of roles
func RequireRoles(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := State(c)
		if err := requireSession(state); err != nil {
			return err
		}
		if !state.HasRole(roles...) {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: "Insufficient role",
				Type:    "auth.role",
			}
		}
		return c.Next()
	}
}
