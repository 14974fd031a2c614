package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/middleware"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/admin"
)

type ProductHandler struct {
	Admin     *admin.AdminService
	Log       *zap.Logger
	UploadDir string // served under /uploads
	BaseURL   string
}

func NewProductHandler(a *admin.AdminService, log *zap.Logger, uploadDir, baseURL string) *ProductHandler {
	return &ProductHandler{Admin: a, Log: log, UploadDir: uploadDir, BaseURL: baseURL}
}

// List is the public catalog of active products.
func (h *ProductHandler) List(c *fiber.Ctx) error {
	list, err := h.Admin.ListProducts(c.UserContext(), false)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", list)
}

func (h *ProductHandler) AdminList(c *fiber.Ctx) error {
	list, err := h.Admin.ListProducts(c.UserContext(), true)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "", list)
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var req admin.ProductInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if errs := req.Validate(); len(errs) > 0 {
		return validationFail(c, fieldErrorsOf(errs))
	}

	p, err := h.Admin.CreateProduct(c.UserContext(), middleware.Caller(c), req)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Product created",
		"data":    p,
	})
}

func (h *ProductHandler) Update(c *fiber.Ctx) error {
	id, valid := paramUUID(c, "id")
	if !valid {
		return badRequest(c, "invalid product id")
	}
	var req admin.ProductInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if errs := req.Validate(); len(errs) > 0 {
		return validationFail(c, fieldErrorsOf(errs))
	}

	p, err := h.Admin.UpdateProduct(c.UserContext(), middleware.Caller(c), id, req)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, "Product updated", p)
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// UploadImage stores a product picture and returns its public URL. The URL is
// then sent as image_url on create or update.
func (h *ProductHandler) UploadImage(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "Image file is required")
	}
	if file.Size <= 0 {
		return badRequest(c, "Invalid file size")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !imageExts[ext] {
		return badRequest(c, "Unsupported image format")
	}

	dir := filepath.Join(h.UploadDir, "products")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(c, h.Log, err)
	}

	filename := fmt.Sprintf("product_%s_%d%s", middleware.Caller(c).UserID, time.Now().UnixNano(), ext)
	if err := c.SaveFile(file, filepath.Join(dir, filename)); err != nil {
		return fail(c, h.Log, err)
	}

	publicPath := "/uploads/products/" + filename
	url := publicPath
	if h.BaseURL != "" {
		url = strings.TrimRight(h.BaseURL, "/") + publicPath
	}
	return ok(c, "Image uploaded", fiber.Map{"url": url, "path": publicPath})
}
