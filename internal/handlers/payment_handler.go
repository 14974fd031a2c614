package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/funding"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/tripay"
)

type PaymentHandler struct {
	TripayService *tripay.TripayService
	Funding       *funding.FundingService
	Log           *zap.Logger
}

func NewPaymentHandler(tripayService *tripay.TripayService, fs *funding.FundingService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{TripayService: tripayService, Funding: fs, Log: log}
}

func (h *PaymentHandler) GetChannels(c *fiber.Ctx) error {
	if !h.TripayService.Enabled() {
		return ok(c, "", []tripay.PaymentChannel{})
	}
	channels, err := h.TripayService.GetPaymentChannels(c.UserContext())
	if err != nil {
		return fail(c, h.Log, apperr.Wrap(apperr.KindUpstreamUnavailable, "failed to fetch payment channels", err))
	}
	return ok(c, "", channels)
}

// HandleCallback settles a gateway recharge. Anything that is not a signature
// or payload problem answers success so the gateway stops retrying.
func (h *PaymentHandler) HandleCallback(c *fiber.Ctx) error {
	signature := c.Get("X-Callback-Signature")
	if signature == "" {
		return badRequest(c, "Missing signature")
	}

	body := c.Body()
	if !h.TripayService.ValidateSignature(signature, body) {
		h.Log.Warn("tripay callback with invalid signature", zap.String("ip", c.IP()))
		return badRequest(c, "Invalid signature")
	}

	var payload tripay.CallbackPayload
	if err := c.BodyParser(&payload); err != nil {
		return badRequest(c, "Invalid payload")
	}

	if err := h.Funding.HandleGatewayCallback(c.UserContext(), payload); err != nil {
		if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindValidation) {
			h.Log.Warn("tripay callback ignored",
				zap.String("reference", payload.Reference),
				zap.String("merchant_ref", payload.MerchantRef),
				zap.Error(err))
			return c.JSON(fiber.Map{"success": true, "message": "ignored"})
		}
		return fail(c, h.Log, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
