package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/middleware"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/funding"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
)

type WalletHandler struct {
	Wallet  *wallet.WalletService
	Funding *funding.FundingService
	Log     *zap.Logger
}

func (h *WalletHandler) Balance(c *fiber.Ctx) error {
	caller := middleware.Caller(c)
	bal, err := h.Wallet.GetBalance(c.UserContext(), caller.UserID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", fiber.Map{"balance": bal})
}

func (h *WalletHandler) Transactions(c *fiber.Ctx) error {
	typ := models.TransactionType(c.Query("type"))
	list, err := h.Wallet.ListTransactions(c.UserContext(), middleware.Caller(c), typ, queryInt(c, "limit", 50))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", list)
}

func (h *WalletHandler) Reconcile(c *fiber.Ctx) error {
	r, err := h.Wallet.Reconcile(c.UserContext(), middleware.Caller(c).UserID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", r)
}

type fundReq struct {
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
	Details string          `json:"details"`
}

func (r fundReq) validate(withdrawal bool) FieldErrors {
	errs := FieldErrors{}
	if !r.Amount.IsPositive() {
		errs.Add("amount", "Amount must be greater than 0")
	}
	if strings.TrimSpace(r.Method) == "" {
		errs.Add("method", "Method is required")
	}
	if withdrawal && strings.TrimSpace(r.Details) == "" {
		errs.Add("details", "Account details are required")
	}
	return errs
}

func (h *WalletHandler) Recharge(c *fiber.Ctx) error {
	var req fundReq
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if errs := req.validate(false); len(errs) > 0 {
		return validationFail(c, errs)
	}

	fr, err := h.Funding.RequestRecharge(c.UserContext(), middleware.Caller(c), req.Amount, strings.TrimSpace(req.Method))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Recharge request submitted",
		"data":    fr,
	})
}

func (h *WalletHandler) Withdraw(c *fiber.Ctx) error {
	var req fundReq
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if errs := req.validate(true); len(errs) > 0 {
		return validationFail(c, errs)
	}

	fr, err := h.Funding.RequestWithdrawal(c.UserContext(), middleware.Caller(c), req.Amount, strings.TrimSpace(req.Method), req.Details)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Withdrawal request submitted",
		"data":    fr,
	})
}

func (h *WalletHandler) MyRequests(c *fiber.Ctx) error {
	list, err := h.Funding.ListMine(c.UserContext(), middleware.Caller(c), models.FundKind(c.Query("kind")))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", list)
}
