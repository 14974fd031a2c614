package checkin

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
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/utils"
)

// Reward returns the bonus for a check-in made with the given streak, counted
// before the check-in itself.
func Reward(streak int) decimal.Decimal {
	switch {
	case streak >= 30:
		return decimal.NewFromInt(500)
	case streak >= 15:
		return decimal.NewFromInt(100)
	case streak >= 7:
		return decimal.NewFromInt(50)
	default:
		return decimal.NewFromInt(10)
	}
}

type CheckInService struct {
	Store    store.Store
	Wallet   *wallet.WalletService
	Log      *zap.Logger
	Location *time.Location
	Now      func() time.Time
	Timeout  time.Duration
}

func NewCheckInService(st store.Store, w *wallet.WalletService, log *zap.Logger, loc *time.Location) *CheckInService {
	if loc == nil {
		loc = time.UTC
	}
	return &CheckInService{Store: st, Wallet: w, Log: log, Location: loc, Now: time.Now, Timeout: 10 * time.Second}
}

type Result struct {
	Reward decimal.Decimal     `json:"reward"`
	Streak int                 `json:"streak"`
	Entry  *models.Transaction `json:"transaction"`
}

// CheckIn credits the daily reward. The check-in row is keyed by user and
// date, so a second call on the same day collides and changes nothing.
func (s *CheckInService) CheckIn(ctx context.Context, caller auth.Caller) (*Result, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var res Result
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		now := s.Now()
		day := utils.StartOfDay(now, s.Location)
		id := models.CheckInID(caller.UserID, day)

		if _, err := tx.GetCheckIn(id); err == nil {
			return apperr.New(apperr.KindAlreadyCheckedIn, "already checked in today")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		u, err := tx.GetUser(caller.UserID)
		if err != nil {
			return err
		}
		reward := Reward(u.CheckInStreak)
		streak := u.CheckInStreak + 1

		err = tx.CreateCheckIn(&models.CheckIn{
			ID:        id,
			UserID:    caller.UserID,
			Date:      day,
			Reward:    reward,
			Streak:    streak,
			CreatedAt: now,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return apperr.New(apperr.KindAlreadyCheckedIn, "already checked in today")
		}
		if err != nil {
			return err
		}

		_, entry, err := s.Wallet.Apply(tx, caller.UserID, models.UserDelta{
			Wallet:        reward,
			CheckInStreak: 1,
			LastCheckIn:   &now,
		}, wallet.Entry{
			Type:        models.TrxCheckinBonus,
			Description: fmt.Sprintf("Day %d check-in bonus", streak),
			RefType:     models.RefCheckIn,
			RefID:       id,
		})
		if err != nil {
			return err
		}
		res = Result{Reward: reward, Streak: streak, Entry: entry}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.New(apperr.KindAlreadyCheckedIn, "already checked in today")
		}
		return nil, store.Translate(err, "user")
	}

	s.Log.Info("checked in",
		zap.String("user_id", caller.UserID.String()),
		zap.Int("streak", res.Streak),
		zap.String("reward", res.Reward.String()))
	s.Wallet.Committed(res.Entry)
	return &res, nil
}

type Status struct {
	CheckedInToday bool            `json:"checked_in_today"`
	Streak         int             `json:"streak"`
	NextReward     decimal.Decimal `json:"next_reward"`
	LastCheckIn    *time.Time      `json:"last_check_in,omitempty"`
}

func (s *CheckInService) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var st Status
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		_, err = tx.GetCheckIn(models.CheckInID(userID, utils.StartOfDay(s.Now(), s.Location)))
		switch {
		case err == nil:
			st.CheckedInToday = true
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		st.Streak = u.CheckInStreak
		st.NextReward = Reward(u.CheckInStreak)
		st.LastCheckIn = u.LastCheckIn
		return nil
	})
	if err != nil {
		return nil, store.Translate(err, "user")
	}
	return &st, nil
}
