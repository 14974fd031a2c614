package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/websocket/v2"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/middleware"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/realtime"
)

type Routes struct {
	Auth       *AuthHandler
	Google     *GoogleOAuthHandler
	Wallet     *WalletHandler
	Investment *InvestmentHandler
	Product    *ProductHandler
	Payment    *PaymentHandler
	Admin      *AdminHandler
	Hub        *realtime.Hub

	// AuthRateLimit caps credential requests per IP per minute; zero disables it.
	AuthRateLimit int
}

func (r *Routes) Mount(app *fiber.App) {
	api := app.Group("/api")

	authLimit := func(c *fiber.Ctx) error { return c.Next() }
	if r.AuthRateLimit > 0 {
		authLimit = limiter.New(limiter.Config{
			Max:        r.AuthRateLimit,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"success": false,
					"message": "Too many attempts, try again later",
				})
			},
		})
	}

	// public
	api.Post("/auth/register", authLimit, r.Auth.Register)
	api.Post("/auth/login", authLimit, r.Auth.Login)
	api.Post("/auth/logout", r.Auth.Logout)
	api.Post("/auth/forgot-password", authLimit, r.Auth.ForgotPassword)
	api.Post("/auth/reset-password", authLimit, r.Auth.ResetPassword)
	if r.Google != nil {
		api.Get("/auth/google/start", r.Google.GoogleStart)
		api.Get("/auth/google/callback", r.Google.GoogleCallback)
	}
	api.Get("/products", r.Product.List)
	api.Get("/payment/channels", r.Payment.GetChannels)
	app.Post("/tripay/callback", r.Payment.HandleCallback)

	session := middleware.JWTFromCookie(r.Auth.Identity)

	if r.Hub != nil {
		app.Use("/ws", session, func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(r.Hub.Handler))
	}

	// protected (JWT)
	protected := api.Group("/", session)

	protected.Get("/me", r.Auth.Me)
	protected.Post("/auth/change-password", r.Auth.ChangePassword)

	protected.Get("/wallet/balance", r.Wallet.Balance)
	protected.Get("/wallet/transactions", r.Wallet.Transactions)
	protected.Get("/wallet/reconcile", r.Wallet.Reconcile)
	protected.Post("/wallet/recharge", r.Wallet.Recharge)
	protected.Post("/wallet/withdraw", r.Wallet.Withdraw)
	protected.Get("/wallet/requests", r.Wallet.MyRequests)

	protected.Post("/investments", r.Investment.Invest)
	protected.Get("/investments", r.Investment.Mine)
	protected.Post("/checkin", r.Investment.CheckInNow)
	protected.Get("/checkin", r.Investment.CheckInStatus)
	protected.Get("/referrals", r.Investment.Referrals)

	// admin only
	adm := protected.Group("/admin",
		middleware.FreshCaller(r.Auth.Identity),
		middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))

	adm.Get("/stats", r.Admin.Stats)
	adm.Get("/users", r.Admin.Users)
	adm.Patch("/users/:id", r.Admin.UpdateUser)
	adm.Patch("/users/:id/status", r.Admin.SetUserStatus)
	adm.Post("/users/:id/adjust", r.Admin.AdjustBalance)
	adm.Get("/users/:id/reconcile", r.Admin.Reconcile)
	adm.Get("/investments", r.Admin.Investments)
	adm.Post("/investments/accrue", r.Admin.RunAccrual)
	adm.Get("/export/:collection", r.Admin.Export)

	adm.Get("/products", r.Product.AdminList)
	adm.Post("/products", r.Product.Create)
	adm.Put("/products/:id", r.Product.Update)
	adm.Post("/products/image", r.Product.UploadImage)

	adm.Get("/requests/:kind", r.Admin.FundRequests)
	adm.Post("/recharges/:id/approve", r.Admin.Moderate(models.FundRecharge, true))
	adm.Post("/recharges/:id/reject", r.Admin.Moderate(models.FundRecharge, false))
	adm.Post("/withdrawals/:id/approve", r.Admin.Moderate(models.FundWithdrawal, true))
	adm.Post("/withdrawals/:id/reject", r.Admin.Moderate(models.FundWithdrawal, false))

	adm.Get("/settings/referral", r.Admin.ReferralSettings)
	adm.Put("/settings/referral", r.Admin.UpdateReferralSettings)
}
