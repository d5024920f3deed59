package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"instructapi/internal/model"
)

// Headers set by the authenticating gateway in front of the API.
const (
	UserIDHeader   = "X-User-ID"
	UserNameHeader = "X-User-Name"
	UserRoleHeader = "X-User-Role"

	callerLocalKey = "caller"
)

// Identity turns the gateway identity headers into a model.Caller stored in
// locals. Requests without a user id or with an unknown role are refused
// with 401.
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(UserIDHeader))
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user identity")
		}
		role, ok := model.ParseRole(strings.TrimSpace(c.Get(UserRoleHeader)))
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unknown user role")
		}
		name := strings.TrimSpace(c.Get(UserNameHeader))
		if name == "" {
			name = userID
		}

		c.Locals(callerLocalKey, model.Caller{UserID: userID, DisplayName: name, Role: role})
		return c.Next()
	}
}

// CallerFromCtx returns the caller stored by Identity.
func CallerFromCtx(c *fiber.Ctx) (model.Caller, bool) {
	caller, ok := c.Locals(callerLocalKey).(model.Caller)
	return caller, ok
}
