package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/realtime"
)

const CookieName = "jm_token"

// Authenticator turns a session token into a caller.
type Authenticator interface {
	Authenticate(token string) (auth.Caller, error)
}

func tokenFrom(c *fiber.Ctx) string {
	if t := c.Cookies(CookieName); t != "" {
		return t
	}
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// JWTFromCookie authenticates the request from the session cookie (or a
// bearer token) and stores the caller in locals.
func JWTFromCookie(a Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := a.Authenticate(tokenFrom(c))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": apperr.Message(err),
				"code":    apperr.KindUnauthorized,
			})
		}
		caller.IP = c.IP()
		caller.UserAgent = c.Get(fiber.HeaderUserAgent)
		c.Locals(realtime.LocalsCaller, caller)
		return c.Next()
	}
}

// Refresher reloads a caller's role and status from storage.
type Refresher interface {
	Refresh(ctx context.Context, caller auth.Caller) (auth.Caller, error)
}

// FreshCaller re-reads the caller from storage so a demoted or blocked user
// loses access before the token expires. Mount it after JWTFromCookie.
func FreshCaller(r Refresher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := r.Refresh(c.UserContext(), Caller(c))
		if err != nil {
			kind := apperr.KindOf(err)
			return c.Status(apperr.HTTPStatus(kind)).JSON(fiber.Map{
				"success": false,
				"message": apperr.Message(err),
				"code":    kind,
			})
		}
		c.Locals(realtime.LocalsCaller, caller)
		return c.Next()
	}
}

// Caller returns the authenticated caller, or an anonymous one carrying only
// request metadata.
func Caller(c *fiber.Ctx) auth.Caller {
	if caller, ok := c.Locals(realtime.LocalsCaller).(auth.Caller); ok {
		return caller
	}
	return auth.Caller{IP: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}
}
