package admin

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type AdminService struct {
	Store    store.Store
	Wallet   *wallet.WalletService
	Log      *zap.Logger
	Location *time.Location
	Now      func() time.Time
	Timeout  time.Duration
}

func NewAdminService(st store.Store, w *wallet.WalletService, log *zap.Logger, loc *time.Location) *AdminService {
	if loc == nil {
		loc = time.UTC
	}
	return &AdminService{Store: st, Wallet: w, Log: log, Location: loc, Now: time.Now, Timeout: 10 * time.Second}
}

func pageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	return min(n, maxPageSize)
}

// EncodeCursor makes an opaque page token from the last row of a page.
func EncodeCursor(c store.Cursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (*store.Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.Validation("invalid cursor")
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, apperr.Validation("invalid cursor")
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, apperr.Validation("invalid cursor")
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.Validation("invalid cursor")
	}
	return &store.Cursor{CreatedAt: time.Unix(0, nanos), ID: uid}, nil
}

type UserPage struct {
	Users      []models.User `json:"users"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// ListUsers pages through users newest first.
func (s *AdminService) ListUsers(ctx context.Context, caller auth.Caller, cursor string, limit int) (*UserPage, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = pageSize(limit)

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var users []models.User
	err = s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		users, err = tx.ListUsers(store.UserQuery{After: after, Limit: limit})
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "user")
	}

	page := &UserPage{Users: users}
	if len(users) == limit {
		last := users[len(users)-1]
		page.NextCursor = EncodeCursor(store.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// UserUpdate holds the fields an administrator may change. Balances, referral
// data and credentials are not editable here.
type UserUpdate struct {
	Name  *string      `json:"name"`
	Phone *string      `json:"phone"`
	Role  *models.Role `json:"role"`
}

func (s *AdminService) UpdateUser(ctx context.Context, caller auth.Caller, id uuid.UUID, in UserUpdate) (*models.User, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, apperr.Validation("name must not be empty")
	}
	if in.Role != nil {
		switch *in.Role {
		case models.RoleUser, models.RoleAdmin, models.RoleSuperAdmin:
		default:
			return nil, apperr.Validation("unknown role")
		}
		if *in.Role == models.RoleSuperAdmin && caller.Role != models.RoleSuperAdmin {
			return nil, apperr.New(apperr.KindForbidden, "only a super admin can grant super admin")
		}
	}
	return s.update(ctx, caller, id, store.UserFields{Name: in.Name, Phone: in.Phone, Role: in.Role})
}

// SetUserStatus blocks or unblocks a user. Existing sessions are not revoked;
// sign-in refuses blocked users.
func (s *AdminService) SetUserStatus(ctx context.Context, caller auth.Caller, id uuid.UUID, status models.UserStatus) (*models.User, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	if status != models.UserStatusActive && status != models.UserStatusBlocked {
		return nil, apperr.Validation("status must be active or blocked")
	}
	if id == caller.UserID {
		return nil, apperr.Validation("cannot change your own status")
	}
	return s.update(ctx, caller, id, store.UserFields{Status: &status})
}

func (s *AdminService) update(ctx context.Context, caller auth.Caller, id uuid.UUID, f store.UserFields) (*models.User, error) {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	f.UpdatedBy = caller.ActorID()
	f.UpdatedAt = s.Now()

	var u *models.User
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetUser(id); err != nil {
			return err
		}
		if err := tx.UpdateUser(id, f); err != nil {
			return err
		}
		var err error
		u, err = tx.GetUser(id)
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "user")
	}
	s.Log.Info("user updated by admin",
		zap.String("user_id", id.String()),
		zap.Stringer("actor", caller.UserID))
	return u, nil
}

// AdjustBalance applies an audited manual correction through the wallet.
func (s *AdminService) AdjustBalance(ctx context.Context, caller auth.Caller, id uuid.UUID, amount decimal.Decimal, reason string) (*models.Transaction, error) {
	return s.Wallet.AdjustBalance(ctx, caller, id, amount, reason)
}

// ListInvestments returns positions with their owner's display name.
func (s *AdminService) ListInvestments(ctx context.Context, caller auth.Caller, status models.InvestmentStatus, limit int) ([]models.Investment, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var out []models.Investment
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		invs, err := tx.ListInvestments(store.InvestmentQuery{Status: status, Limit: pageSize(limit)})
		if err != nil {
			return err
		}
		names := map[uuid.UUID]string{}
		for i := range invs {
			name, ok := names[invs[i].UserID]
			if !ok {
				u, err := tx.GetUser(invs[i].UserID)
				switch {
				case err == nil:
					name = u.DisplayName()
				case errors.Is(err, store.ErrNotFound):
					name = "Unknown"
				default:
					return err
				}
				names[invs[i].UserID] = name
			}
			invs[i].OwnerName = name
		}
		out = invs
		return nil
	})
	if err != nil {
		return nil, store.Translate(err, "investment")
	}
	return out, nil
}

type DashboardStats struct {
	TotalUsers         int64           `json:"total_users"`
	TotalInvestment    decimal.Decimal `json:"total_investment"`
	PendingWithdrawals int64           `json:"pending_withdrawals"`
	PendingRecharges   int64           `json:"pending_recharges"`
	TodayUsers         int64           `json:"today_users"`
	TodayInvestments   int64           `json:"today_investments"`
	TotalProducts      int64           `json:"total_products"`
}

// DashboardStats runs the aggregate queries concurrently, one read
// transaction each.
func (s *AdminService) DashboardStats(ctx context.Context, caller auth.Caller) (*DashboardStats, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	today := utils.StartOfDay(s.Now(), s.Location)
	var st DashboardStats

	g, gctx := errgroup.WithContext(ctx)
	read := func(fn func(tx store.Tx) error) {
		g.Go(func() error { return s.Store.RunInTx(gctx, fn) })
	}
	read(func(tx store.Tx) (err error) { st.TotalUsers, err = tx.CountUsers(nil); return })
	read(func(tx store.Tx) (err error) { st.TotalInvestment, err = tx.SumInvestmentAmount(); return })
	read(func(tx store.Tx) (err error) {
		st.PendingWithdrawals, err = tx.CountFundRequests(models.FundWithdrawal, models.FundStatusPending)
		return
	})
	read(func(tx store.Tx) (err error) {
		st.PendingRecharges, err = tx.CountFundRequests(models.FundRecharge, models.FundStatusPending)
		return
	})
	read(func(tx store.Tx) (err error) { st.TodayUsers, err = tx.CountUsers(&today); return })
	read(func(tx store.Tx) (err error) { st.TodayInvestments, err = tx.CountInvestments(&today); return })
	read(func(tx store.Tx) (err error) { st.TotalProducts, err = tx.CountProducts(); return })

	if err := g.Wait(); err != nil {
		return nil, store.Translate(err, "stats")
	}
	return &st, nil
}

// Export dumps a collection, optionally bounded by creation time.
func (s *AdminService) Export(ctx context.Context, caller auth.Caller, collection string, from, to *time.Time) ([]any, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	c, ok := store.ParseCollection(collection)
	if !ok {
		return nil, apperr.Validation("unknown collection: " + collection)
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, apperr.Validation("end date is before start date")
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var rows []any
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.Export(c, from, to)
		return err
	})
	if err != nil {
		return nil, store.Translate(err, collection)
	}
	s.Log.Info("collection exported",
		zap.String("collection", collection),
		zap.Int("rows", len(rows)),
		zap.Stringer("actor", caller.UserID))
	return rows, nil
}
