package admin

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
)

type ProductInput struct {
	Name        string          `json:"name"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	DailyProfit decimal.Decimal `json:"daily_profit"`
	TotalIncome decimal.Decimal `json:"total_income"`
	Days        int             `json:"days"`
	Active      *bool           `json:"active"`
}

// Validate returns per-field messages, empty when the input is acceptable.
func (in ProductInput) Validate() map[string]string {
	errs := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		errs["name"] = "Name is required"
	}
	if !in.Price.IsPositive() {
		errs["price"] = "Price must be greater than zero"
	}
	if !in.DailyProfit.IsPositive() {
		errs["daily_profit"] = "Daily profit must be greater than zero"
	}
	if in.TotalIncome.LessThan(in.DailyProfit) {
		errs["total_income"] = "Total income must be at least the daily profit"
	}
	if in.Days < 1 {
		errs["days"] = "Days must be at least 1"
	}
	return errs
}

func (in ProductInput) apply(p *models.Product) {
	p.Name = strings.TrimSpace(in.Name)
	p.ImageURL = in.ImageURL
	p.Price = in.Price
	p.DailyProfit = in.DailyProfit
	p.TotalIncome = in.TotalIncome
	p.Days = in.Days
	if in.Active != nil {
		p.Active = *in.Active
	}
}

func invalidProduct(errs map[string]string) error {
	keys := slices.Sorted(maps.Keys(errs))
	return apperr.Validation(errs[keys[0]])
}

// ListProducts is the public catalog; admins may include inactive products.
func (s *AdminService) ListProducts(ctx context.Context, includeInactive bool) ([]models.Product, error) {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var out []models.Product
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListProducts(!includeInactive)
		return err
	})
	return out, store.Translate(err, "product")
}

func (s *AdminService) CreateProduct(ctx context.Context, caller auth.Caller, in ProductInput) (*models.Product, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	if errs := in.Validate(); len(errs) > 0 {
		return nil, invalidProduct(errs)
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	now := s.Now()
	p := &models.Product{ID: uuid.New(), Active: true, CreatedBy: caller.ActorID(), CreatedAt: now, UpdatedAt: now}
	in.apply(p)
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error { return tx.CreateProduct(p) })
	if err != nil {
		return nil, store.Translate(err, "product")
	}
	s.Log.Info("product created", zap.String("product_id", p.ID.String()), zap.String("name", p.Name))
	return p, nil
}

// UpdateProduct edits the catalog entry. Existing investments keep the
// economics they were bought with.
func (s *AdminService) UpdateProduct(ctx context.Context, caller auth.Caller, id uuid.UUID, in ProductInput) (*models.Product, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	if errs := in.Validate(); len(errs) > 0 {
		return nil, invalidProduct(errs)
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var p *models.Product
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		if p, err = tx.GetProduct(id); err != nil {
			return err
		}
		in.apply(p)
		p.UpdatedBy = caller.ActorID()
		p.UpdatedAt = s.Now()
		return tx.SaveProduct(p)
	})
	if err != nil {
		return nil, store.Translate(err, "product")
	}
	return p, nil
}

// DefaultProducts is the starter catalog installed on an empty store.
func DefaultProducts() []ProductInput {
	mk := func(name string, price, daily, total int64) ProductInput {
		return ProductInput{
			Name:        name,
			Price:       decimal.NewFromInt(price),
			DailyProfit: decimal.NewFromInt(daily),
			TotalIncome: decimal.NewFromInt(total),
			Days:        2,
		}
	}
	return []ProductInput{
		mk("Dairy Milk 1", 800, 3250, 6500),
		mk("Dairy Milk 2", 1600, 6500, 13000),
		mk("Dairy Milk 3", 3200, 13000, 26000),
	}
}

// SeedProducts installs the default catalog when no product exists yet.
func (s *AdminService) SeedProducts(ctx context.Context) (int, error) {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	created := 0
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		created = 0
		n, err := tx.CountProducts()
		if err != nil || n > 0 {
			return err
		}
		now := s.Now()
		for _, in := range DefaultProducts() {
			p := &models.Product{ID: uuid.New(), Active: true, CreatedAt: now, UpdatedAt: now}
			in.apply(p)
			if err := tx.CreateProduct(p); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, store.Translate(err, "product")
	}
	if created > 0 {
		s.Log.Info("default products seeded", zap.Int("count", created))
	}
	return created, nil
}
