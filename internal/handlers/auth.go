package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/middleware"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/identity"
)

type AuthHandler struct {
	Identity *identity.IdentityService
	Log      *zap.Logger
	Expires  int
	Secure   bool
}

func (h *AuthHandler) setSession(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.Secure,
		SameSite: "Lax",
		MaxAge:   h.Expires * 60,
	})
}

func (h *AuthHandler) clearSession(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   h.Secure,
		SameSite: "Lax",
	})
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req identity.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if errs := req.Validate(); len(errs) > 0 {
		return validationFail(c, fieldErrorsOf(errs))
	}

	sess, err := h.Identity.Register(c.UserContext(), req, middleware.Caller(c))
	if err != nil {
		return fail(c, h.Log, err)
	}
	h.setSession(c, sess.Token)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Registration successful",
		"data":    fiber.Map{"user": sess.User},
	})
}

type LoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginReq
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	errs := FieldErrors{}
	if req.Email == "" {
		errs.Add("email", "Email is required")
	}
	if req.Password == "" {
		errs.Add("password", "Password is required")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	sess, err := h.Identity.SignIn(c.UserContext(), req.Email, req.Password, middleware.Caller(c))
	if err != nil {
		return fail(c, h.Log, err)
	}
	h.setSession(c, sess.Token)
	return ok(c, "Login successful", fiber.Map{"user": sess.User})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	// the session cookie is optional here
	if caller, err := h.Identity.Authenticate(c.Cookies(middleware.CookieName)); err == nil {
		h.Identity.SignOut(c.UserContext(), caller)
	}
	h.clearSession(c)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logout successful",
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	u, err := h.Identity.Session(c.UserContext(), middleware.Caller(c))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", u)
}

type forgotReq struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotReq
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := h.Identity.SendPasswordReset(c.UserContext(), req.Email); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "If the email is registered, a reset link has been sent",
	})
}

type resetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetReq
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := h.Identity.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Password updated"})
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordReq
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := h.Identity.ChangePassword(c.UserContext(), middleware.Caller(c), req.CurrentPassword, req.NewPassword); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Password updated"})
}
