package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
)

type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func fieldErrorsOf(m map[string]string) FieldErrors {
	errs := FieldErrors{}
	for k, v := range m {
		errs.Add(k, v)
	}
	return errs
}

func validationFail(c *fiber.Ctx, errs FieldErrors) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"success": false,
		"message": "Validation error",
		"code":    apperr.KindValidation,
		"errors":  errs,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": msg,
	})
}

// fail writes err with the status of its kind. Internal details are logged,
// never returned.
func fail(c *fiber.Ctx, log *zap.Logger, err error) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	msg := apperr.Message(err)
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		if kind == apperr.KindInternal {
			msg = "internal server error"
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": msg,
		"code":    kind,
	})
}

func ok(c *fiber.Ctx, msg string, data any) error {
	body := fiber.Map{"success": true, "data": data}
	if msg != "" {
		body["message"] = msg
	}
	return c.JSON(body)
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

func queryInt(c *fiber.Ctx, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
