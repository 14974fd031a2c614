package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/middleware"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/checkin"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/investment"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/referral"
)

type InvestmentHandler struct {
	Investment *investment.InvestmentService
	CheckIn    *checkin.CheckInService
	Referral   *referral.ReferralService
	Log        *zap.Logger
}

type investReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *InvestmentHandler) Invest(c *fiber.Ctx) error {
	var req investReq
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	errs := FieldErrors{}
	pid, err := uuid.Parse(req.ProductID)
	if err != nil {
		errs.Add("product_id", "Product is required")
	}
	if req.Quantity < 1 {
		errs.Add("quantity", "Quantity must be at least 1")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	inv, err := h.Investment.CreateInvestment(c.UserContext(), middleware.Caller(c), pid, req.Quantity)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Investment created",
		"data":    inv,
	})
}

func (h *InvestmentHandler) Mine(c *fiber.Ctx) error {
	status := models.InvestmentStatus(c.Query("status"))
	list, err := h.Investment.ListUserInvestments(c.UserContext(), middleware.Caller(c), status)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", list)
}

func (h *InvestmentHandler) CheckInNow(c *fiber.Ctx) error {
	res, err := h.CheckIn.CheckIn(c.UserContext(), middleware.Caller(c))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "Check-in successful", res)
}

func (h *InvestmentHandler) CheckInStatus(c *fiber.Ctx) error {
	st, err := h.CheckIn.Status(c.UserContext(), middleware.Caller(c).UserID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", st)
}

func (h *InvestmentHandler) Referrals(c *fiber.Ctx) error {
	sum, err := h.Referral.Referrals(c.UserContext(), middleware.Caller(c))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", sum)
}
