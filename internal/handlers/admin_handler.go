package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/middleware"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/admin"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/funding"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/investment"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/referral"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
)

type AdminHandler struct {
	Admin      *admin.AdminService
	Funding    *funding.FundingService
	Referral   *referral.ReferralService
	Investment *investment.InvestmentService
	Wallet     *wallet.WalletService
	Log        *zap.Logger
}

func (h *AdminHandler) Users(c *fiber.Ctx) error {
	page, err := h.Admin.ListUsers(c.UserContext(), middleware.Caller(c), c.Query("cursor"), queryInt(c, "limit", 20))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", page)
}

func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	id, valid := paramUUID(c, "id")
	if !valid {
		return badRequest(c, "invalid user id")
	}
	var req admin.UserUpdate
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	u, err := h.Admin.UpdateUser(c.UserContext(), middleware.Caller(c), id, req)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "User updated", u)
}

type statusReq struct {
	Status models.UserStatus `json:"status"`
}

func (h *AdminHandler) SetUserStatus(c *fiber.Ctx) error {
	id, valid := paramUUID(c, "id")
	if !valid {
		return badRequest(c, "invalid user id")
	}
	var req statusReq
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	u, err := h.Admin.SetUserStatus(c.UserContext(), middleware.Caller(c), id, req.Status)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "User status updated", u)
}

type adjustReq struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (h *AdminHandler) AdjustBalance(c *fiber.Ctx) error {
	id, valid := paramUUID(c, "id")
	if !valid {
		return badRequest(c, "invalid user id")
	}
	var req adjustReq
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	errs := FieldErrors{}
	if req.Amount.IsZero() {
		errs.Add("amount", "Amount must not be zero")
	}
	if strings.TrimSpace(req.Reason) == "" {
		errs.Add("reason", "Reason is required")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	entry, err := h.Admin.AdjustBalance(c.UserContext(), middleware.Caller(c), id, req.Amount, req.Reason)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "Balance adjusted", entry)
}

func (h *AdminHandler) Reconcile(c *fiber.Ctx) error {
	id, valid := paramUUID(c, "id")
	if !valid {
		return badRequest(c, "invalid user id")
	}
	r, err := h.Wallet.Reconcile(c.UserContext(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", r)
}

func (h *AdminHandler) Investments(c *fiber.Ctx) error {
	status := models.InvestmentStatus(c.Query("status"))
	list, err := h.Admin.ListInvestments(c.UserContext(), middleware.Caller(c), status, queryInt(c, "limit", 100))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", list)
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	st, err := h.Admin.DashboardStats(c.UserContext(), middleware.Caller(c))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", st)
}

func queryDate(c *fiber.Ctx, name string) (*time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func (h *AdminHandler) Export(c *fiber.Ctx) error {
	from, okFrom := queryDate(c, "from")
	to, okTo := queryDate(c, "to")
	if !okFrom || !okTo {
		return badRequest(c, "dates must be formatted as YYYY-MM-DD")
	}
	if to != nil {
		// inclusive end date
		end := to.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}

	rows, err := h.Admin.Export(c.UserContext(), middleware.Caller(c), c.Params("collection"), from, to)
	if err != nil {
		return fail(c, h.Log, err)
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+c.Params("collection")+`.json"`)
	return ok(c, "", rows)
}

func (h *AdminHandler) FundRequests(c *fiber.Ctx) error {
	kind := models.FundKind(c.Params("kind"))
	status := models.FundStatus(c.Query("status"))
	list, err := h.Funding.List(c.UserContext(), middleware.Caller(c), kind, status, queryInt(c, "limit", 50))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", list)
}

type rejectReq struct {
	Reason string `json:"reason"`
}

// Moderate approves or rejects a recharge or withdrawal; the kind and the
// decision come from the route.
func (h *AdminHandler) Moderate(kind models.FundKind, approve bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, valid := paramUUID(c, "id")
		if !valid {
			return badRequest(c, "invalid request id")
		}
		var reason string
		if !approve {
			var req rejectReq
			// an empty body falls back to the default reason
			if len(c.Body()) > 0 {
				if err := c.BodyParser(&req); err != nil {
					return badRequest(c, "invalid request body")
				}
			}
			reason = req.Reason
		}

		caller := middleware.Caller(c)
		ctx := c.UserContext()
		var (
			fr  *models.FundRequest
			err error
		)
		switch {
		case kind == models.FundRecharge && approve:
			fr, err = h.Funding.ApproveRecharge(ctx, caller, id)
		case kind == models.FundRecharge:
			fr, err = h.Funding.RejectRecharge(ctx, caller, id, reason)
		case approve:
			fr, err = h.Funding.ApproveWithdrawal(ctx, caller, id)
		default:
			fr, err = h.Funding.RejectWithdrawal(ctx, caller, id, reason)
		}
		if err != nil {
			return fail(c, h.Log, err)
		}
		return ok(c, "Request "+string(fr.Status), fr)
	}
}

func (h *AdminHandler) ReferralSettings(c *fiber.Ctx) error {
	s, err := h.Referral.Settings(c.UserContext())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", s)
}

func (h *AdminHandler) UpdateReferralSettings(c *fiber.Ctx) error {
	var req referral.Settings
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := h.Referral.UpdateSettings(c.UserContext(), middleware.Caller(c), req); err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "Settings updated", req)
}

// RunAccrual triggers the daily profit sweep by hand. Investments already
// paid today are skipped, so this is safe next to the scheduled run.
func (h *AdminHandler) RunAccrual(c *fiber.Ctx) error {
	if err := middleware.Caller(c).RequireAdmin(); err != nil {
		return fail(c, h.Log, err)
	}
	res, err := h.Investment.AccrueDailyProfits(c.UserContext())
	if err != nil && res == nil {
		return fail(c, h.Log, err)
	}
	if err != nil {
		// paid batches are committed; failed ones are retried on the next run
		h.Log.Warn("manual accrual incomplete", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Some accrual batches failed",
			"data":    res,
		})
	}
	return ok(c, "Accrual complete", res)
}
