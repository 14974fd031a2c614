package investment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/monitoring"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/outbox"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/utils"
)

type InvestmentService struct {
	Store     store.Store
	Wallet    *wallet.WalletService
	Log       *zap.Logger
	Location  *time.Location
	BatchSize int
	Now       func() time.Time
	Timeout   time.Duration
}

func NewInvestmentService(st store.Store, w *wallet.WalletService, log *zap.Logger, loc *time.Location) *InvestmentService {
	if loc == nil {
		loc = time.UTC
	}
	return &InvestmentService{
		Store:     st,
		Wallet:    w,
		Log:       log,
		Location:  loc,
		BatchSize: 100,
		Now:       time.Now,
		Timeout:   10 * time.Second,
	}
}

func units(q int) string {
	if q == 1 {
		return "unit"
	}
	return "units"
}

// CreateInvestment buys quantity units of a product from the caller's wallet.
// The referral bonus is scheduled through the outbox in the same transaction.
func (s *InvestmentService) CreateInvestment(ctx context.Context, caller auth.Caller, productID uuid.UUID, quantity int) (*models.Investment, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var (
		inv   *models.Investment
		entry *models.Transaction
	)
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(productID)
		if err != nil {
			return store.Translate(err, "product")
		}
		if !p.Active {
			return apperr.Validation("product is not available")
		}
		amount := p.Price.Mul(decimal.NewFromInt(int64(quantity)))

		u, err := tx.GetUser(caller.UserID)
		if err != nil {
			return store.Translate(err, "user")
		}
		if u.Wallet.LessThan(amount) {
			return apperr.InsufficientFunds()
		}

		now := s.Now()
		q := decimal.NewFromInt(int64(quantity))
		inv = &models.Investment{
			ID:          uuid.New(),
			UserID:      caller.UserID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    quantity,
			Amount:      amount,
			DailyProfit: p.DailyProfit.Mul(q),
			TotalIncome: p.TotalIncome.Mul(q),
			Days:        p.Days,
			StartDate:   now,
			EndDate:     now.AddDate(0, 0, p.Days),
			Status:      models.InvestmentStatusActive,
			ProfitPaid:  decimal.Zero,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateInvestment(inv); err != nil {
			return err
		}

		_, entry, err = s.Wallet.Apply(tx, caller.UserID, models.UserDelta{Wallet: amount.Neg(), TotalInvestment: amount}, wallet.Entry{
			Type:        models.TrxInvestment,
			Description: fmt.Sprintf("Invested in %s (%d %s)", p.Name, quantity, units(quantity)),
			RefType:     models.RefInvestment,
			RefID:       inv.ID.String(),
		})
		if err != nil {
			return err
		}

		_, err = outbox.Enqueue(tx, models.TaskReferralBonus, outbox.ReferralBonusPayload{
			UserID:       caller.UserID,
			InvestmentID: inv.ID,
			Amount:       amount,
		}, now)
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "investment")
	}

	s.Log.Info("investment created",
		zap.String("investment_id", inv.ID.String()),
		zap.String("user_id", caller.UserID.String()),
		zap.String("product", inv.ProductName),
		zap.Int("quantity", quantity),
		zap.String("amount", inv.Amount.String()))
	s.Wallet.Committed(entry)
	return inv, nil
}

func (s *InvestmentService) ListUserInvestments(ctx context.Context, caller auth.Caller, status models.InvestmentStatus) ([]models.Investment, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var out []models.Investment
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListInvestments(store.InvestmentQuery{UserID: &caller.UserID, Status: status})
		return err
	})
	return out, store.Translate(err, "investment")
}

type SweepResult struct {
	Day       string          `json:"day"`
	Paid      int             `json:"paid"`
	Skipped   int             `json:"skipped"`
	Completed int             `json:"completed"`
	Total     decimal.Decimal `json:"total"`
}

// AccrueDailyProfits pays one day of profit on every active investment. Each
// batch is one transaction; an investment already paid today is skipped, so a
// sweep interrupted halfway can simply be run again.
func (s *InvestmentService) AccrueDailyProfits(ctx context.Context) (*SweepResult, error) {
	started := time.Now()
	now := s.Now()
	dayStart := utils.StartOfDay(now, s.Location)
	res := &SweepResult{Day: utils.DayKey(now, s.Location), Total: decimal.Zero}

	var ids []uuid.UUID
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		ids, err = tx.ListActiveInvestmentIDs()
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "investment")
	}

	size := s.BatchSize
	if size <= 0 {
		size = len(ids)
	}
	// a failed batch is rolled back and left for the next run
	var errs []error
	for startIdx := 0; startIdx < len(ids); startIdx += size {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		end := min(startIdx+size, len(ids))
		if err := s.accrueBatch(ctx, ids[startIdx:end], now, dayStart, res); err != nil {
			s.Log.Error("accrual batch failed",
				zap.String("day", res.Day),
				zap.Int("offset", startIdx),
				zap.Int("size", end-startIdx),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("batch at %d: %w", startIdx, err))
		}
	}

	monitoring.AccrualSweepPaid.Add(float64(res.Paid))
	monitoring.AccrualSweepSkipped.Add(float64(res.Skipped))
	monitoring.AccrualSweepDuration.Observe(time.Since(started).Seconds())
	s.Log.Info("accrual sweep finished",
		zap.String("day", res.Day),
		zap.Int("paid", res.Paid),
		zap.Int("skipped", res.Skipped),
		zap.Int("completed", res.Completed),
		zap.String("total", res.Total.String()),
		zap.Int("failed_batches", len(errs)))
	return res, errors.Join(errs...)
}

func (s *InvestmentService) accrueBatch(ctx context.Context, ids []uuid.UUID, now, dayStart time.Time, res *SweepResult) error {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var (
		entries   []*models.Transaction
		paid      int
		skipped   int
		completed int
		total     decimal.Decimal
	)
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		// reset per attempt, RunInTx may re-run fn on conflict
		entries, paid, skipped, completed, total = nil, 0, 0, 0, decimal.Zero

		for _, id := range ids {
			inv, err := tx.GetInvestment(id)
			if err != nil {
				return err
			}
			if inv.Status != models.InvestmentStatusActive || inv.AccruedSince(dayStart) {
				skipped++
				continue
			}
			payout := decimal.Min(inv.DailyProfit, inv.Remaining())
			if !payout.IsPositive() {
				inv.Status = models.InvestmentStatusCompleted
				inv.UpdatedAt = now
				if err := tx.SaveInvestment(inv); err != nil {
					return err
				}
				completed++
				skipped++
				continue
			}

			today := now
			inv.ProfitPaid = inv.ProfitPaid.Add(payout)
			inv.LastProfitDate = &today
			inv.UpdatedAt = now
			if inv.Remaining().IsZero() {
				inv.Status = models.InvestmentStatusCompleted
				completed++
			}
			if err := tx.SaveInvestment(inv); err != nil {
				return err
			}

			_, entry, err := s.Wallet.Apply(tx, inv.UserID, models.UserDelta{Wallet: payout, TotalEarnings: payout}, wallet.Entry{
				Type:           models.TrxProfit,
				Description:    "Daily profit from " + inv.ProductName,
				RefType:        models.RefInvestment,
				RefID:          inv.ID.String(),
				IdempotencyKey: fmt.Sprintf("profit:%s:%s", inv.ID, utils.DayKey(now, s.Location)),
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			paid++
			total = total.Add(payout)
		}
		return nil
	})
	if err != nil {
		return store.Translate(err, "investment")
	}

	res.Paid += paid
	res.Skipped += skipped
	res.Completed += completed
	res.Total = res.Total.Add(total)
	s.Wallet.Committed(entries...)
	return nil
}
