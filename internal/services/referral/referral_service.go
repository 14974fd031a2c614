package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/outbox"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
)

// Settings are the bonus percentages per referral level. Only two levels are
// paid; a stored "level3" key is ignored.
type Settings struct {
	Level1 decimal.Decimal `json:"level1"`
	Level2 decimal.Decimal `json:"level2"`
}

func DefaultSettings() Settings {
	return Settings{Level1: decimal.NewFromInt(5), Level2: decimal.NewFromInt(3)}
}

func (s Settings) Validate() error {
	hundred := decimal.NewFromInt(100)
	for _, p := range []decimal.Decimal{s.Level1, s.Level2} {
		if p.IsNegative() || p.GreaterThan(hundred) {
			return apperr.Validation("referral percentage must be between 0 and 100")
		}
	}
	return nil
}

type ReferralService struct {
	Store   store.Store
	Wallet  *wallet.WalletService
	Log     *zap.Logger
	Now     func() time.Time
	Timeout time.Duration
}

func NewReferralService(st store.Store, w *wallet.WalletService, log *zap.Logger) *ReferralService {
	return &ReferralService{Store: st, Wallet: w, Log: log, Now: time.Now, Timeout: 10 * time.Second}
}

func loadSettings(tx store.Tx) (Settings, error) {
	s := DefaultSettings()
	row, err := tx.GetSetting(models.SettingReferral)
	if errors.Is(err, store.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(row.Value, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("decode referral settings: %w", err)
	}
	return s, nil
}

func (s *ReferralService) Settings(ctx context.Context) (Settings, error) {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var out Settings
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = loadSettings(tx)
		return err
	})
	return out, store.Translate(err, "settings")
}

func (s *ReferralService) UpdateSettings(ctx context.Context, caller auth.Caller, in Settings) error {
	if err := caller.RequireAdmin(); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(in)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode settings", err)
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	err = s.Store.RunInTx(ctx, func(tx store.Tx) error {
		return tx.PutSetting(&models.Setting{Key: models.SettingReferral, Value: datatypes.JSON(b), UpdatedAt: s.Now()})
	})
	return store.Translate(err, "settings")
}

// ProcessReferral links a freshly registered user to the owner of referralCode.
// Unknown codes and self-referrals are ignored.
func (s *ReferralService) ProcessReferral(ctx context.Context, referralCode string, newUserID uuid.UUID) error {
	if referralCode == "" {
		return nil
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		referrer, err := tx.GetUserByReferralCode(referralCode)
		if errors.Is(err, store.ErrNotFound) {
			s.Log.Info("unknown referral code", zap.String("code", referralCode))
			return nil
		}
		if err != nil {
			return err
		}
		if referrer.ID == newUserID {
			return nil
		}

		now := s.Now()
		if err := tx.UpdateUser(newUserID, store.UserFields{ReferredBy: &referrer.ID, UpdatedAt: now}); err != nil {
			return err
		}
		return tx.CreateReferralLink(&models.ReferralLink{
			ID:         uuid.New(),
			ReferrerID: referrer.ID,
			ReferredID: newUserID,
			Status:     models.ReferralStatusPending,
			CreatedAt:  now,
		})
	})
	return store.Translate(err, "user")
}

type Bonus struct {
	Level      int                 `json:"level"`
	ReferrerID uuid.UUID           `json:"referrer_id"`
	Amount     decimal.Decimal     `json:"amount"`
	Entry      *models.Transaction `json:"entry,omitempty"`
}

func bonusOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
}

// ProcessReferralBonus credits the direct referrer and the referrer's own
// referrer for an investment. Each level is booked in its own transaction with
// an idempotency key, so re-running after a partial failure pays nothing twice.
func (s *ReferralService) ProcessReferralBonus(ctx context.Context, userID uuid.UUID, investmentAmount decimal.Decimal, investmentID uuid.UUID) ([]Bonus, error) {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var (
		settings Settings
		chain    []uuid.UUID
	)
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		if settings, err = loadSettings(tx); err != nil {
			return err
		}
		chain = chain[:0]
		current := userID
		for level := 1; level <= 2; level++ {
			u, err := tx.GetUser(current)
			if err != nil {
				return err
			}
			if u.ReferredBy == nil || *u.ReferredBy == userID {
				break
			}
			chain = append(chain, *u.ReferredBy)
			current = *u.ReferredBy
		}
		return nil
	})
	if err != nil {
		return nil, store.Translate(err, "user")
	}
	if len(chain) == 0 {
		return nil, nil
	}

	pcts := []decimal.Decimal{settings.Level1, settings.Level2}
	var bonuses []Bonus
	for i, referrerID := range chain {
		level := i + 1
		amount := bonusOf(investmentAmount, pcts[i])
		if !amount.IsPositive() {
			continue
		}
		b, err := s.creditLevel(ctx, level, referrerID, userID, investmentID, amount)
		if err != nil {
			return bonuses, err
		}
		if b != nil {
			bonuses = append(bonuses, *b)
		}
	}
	return bonuses, nil
}

func (s *ReferralService) creditLevel(ctx context.Context, level int, referrerID, referredID, investmentID uuid.UUID, amount decimal.Decimal) (*Bonus, error) {
	key := fmt.Sprintf("referral:%s:%d", investmentID, level)
	desc := "Referral bonus from investment"
	if level > 1 {
		desc = fmt.Sprintf("Level %d referral bonus", level)
	}

	var entry *models.Transaction
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		_, entry, err = s.Wallet.Apply(tx, referrerID, models.UserDelta{Wallet: amount, TotalEarnings: amount}, wallet.Entry{
			Type:           models.TrxReferralBonus,
			Description:    desc,
			RefType:        models.RefInvestment,
			RefID:          investmentID.String(),
			IdempotencyKey: key,
		})
		if err != nil {
			return err
		}
		if level == 1 {
			return s.markLinkCredited(tx, referredID, investmentID)
		}
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		s.Log.Debug("referral bonus already credited", zap.String("key", key))
		return nil, nil
	}
	if err != nil {
		return nil, store.Translate(err, "referrer")
	}

	s.Wallet.Committed(entry)
	return &Bonus{Level: level, ReferrerID: referrerID, Amount: amount, Entry: entry}, nil
}

func (s *ReferralService) markLinkCredited(tx store.Tx, referredID, investmentID uuid.UUID) error {
	link, err := tx.GetReferralLinkByReferred(referredID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if link.Status != models.ReferralStatusPending {
		return nil
	}
	now := s.Now()
	inv := investmentID
	link.Status = models.ReferralStatusCredited
	link.FirstInvestmentID = &inv
	link.CreditedAt = &now
	return tx.SaveReferralLink(link)
}

// HandleTask is the outbox handler for referral bonus tasks.
func (s *ReferralService) HandleTask(ctx context.Context, payload []byte) error {
	var p outbox.ReferralBonusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode referral task: %w", err)
	}
	bonuses, err := s.ProcessReferralBonus(ctx, p.UserID, p.Amount, p.InvestmentID)
	if err != nil {
		return err
	}
	for _, b := range bonuses {
		s.Log.Info("referral bonus credited",
			zap.Int("level", b.Level),
			zap.String("referrer_id", b.ReferrerID.String()),
			zap.String("amount", b.Amount.String()),
			zap.String("investment_id", p.InvestmentID.String()))
	}
	return nil
}

// Referee is what a referrer may see about a user they referred.
type Referee struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
	Invested  bool      `json:"invested"`
}

func refereeOf(u *models.User) Referee {
	return Referee{
		ID:        u.ID,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
		Active:    u.Status == models.UserStatusActive,
		Invested:  u.TotalInvestment.IsPositive(),
	}
}

type Summary struct {
	ReferralCode string    `json:"referral_code"`
	Referrals    []Referee `json:"referrals"`
}

// Referrals lists the users directly referred by the caller.
func (s *ReferralService) Referrals(ctx context.Context, caller auth.Caller) (*Summary, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var out Summary
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(caller.UserID)
		if err != nil {
			return err
		}
		out.ReferralCode = u.ReferralCode
		referred, err := tx.ListReferrals(caller.UserID)
		if err != nil {
			return err
		}
		out.Referrals = make([]Referee, 0, len(referred))
		for i := range referred {
			out.Referrals = append(out.Referrals, refereeOf(&referred[i]))
		}
		return nil
	})
	if err != nil {
		return nil, store.Translate(err, "user")
	}
	return &out, nil
}
