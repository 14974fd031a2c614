// Package testutil builds in-memory fixtures for service and handler tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store/memstore"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/utils"
)

// Clock is a settable time source.
type Clock struct{ T time.Time }

func NewClock(t time.Time) *Clock { return &Clock{T: t} }

func (c *Clock) Now() time.Time { return c.T }

func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

func NewStore() *memstore.Store {
	return memstore.New().WithRetryPolicy(store.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
}

func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type UserOpt func(*models.User)

func WithWallet(amount string) UserOpt {
	return func(u *models.User) { u.Wallet = D(amount) }
}

func WithRole(r models.Role) UserOpt {
	return func(u *models.User) { u.Role = r }
}

func ReferredBy(id uuid.UUID) UserOpt {
	return func(u *models.User) { ref := id; u.ReferredBy = &ref }
}

// SeedUser inserts an active user and returns it with a caller acting as them.
func SeedUser(t testing.TB, st store.Store, opts ...UserOpt) (*models.User, auth.Caller) {
	t.Helper()
	id := uuid.New()
	u := &models.User{
		ID:           id,
		Name:         "user-" + id.String()[:8],
		Email:        id.String()[:8] + "@example.com",
		ReferralCode: utils.ReferralCode(),
		Role:         models.RoleUser,
		Status:       models.UserStatusActive,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	for _, o := range opts {
		o(u)
	}
	require.NoError(t, st.RunInTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateUser(u)
	}))
	return u, auth.Caller{UserID: u.ID, Role: u.Role}
}

// SeedProduct inserts an active product.
func SeedProduct(t testing.TB, st store.Store, price, daily, total string, days int) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:          uuid.New(),
		Name:        "Dairy Milk",
		Price:       D(price),
		DailyProfit: D(daily),
		TotalIncome: D(total),
		Days:        days,
		Active:      true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, st.RunInTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateProduct(p)
	}))
	return p
}

// User reloads a user outside any service.
func User(t testing.TB, st store.Store, id uuid.UUID) *models.User {
	t.Helper()
	var u *models.User
	require.NoError(t, st.RunInTx(context.Background(), func(tx store.Tx) error {
		var err error
		u, err = tx.GetUser(id)
		return err
	}))
	return u
}

// Ledger returns a user's entries, newest first.
func Ledger(t testing.TB, st store.Store, id uuid.UUID) []models.Transaction {
	t.Helper()
	var out []models.Transaction
	require.NoError(t, st.RunInTx(context.Background(), func(tx store.Tx) error {
		var err error
		out, err = tx.ListTransactions(store.TransactionQuery{UserID: &id})
		return err
	}))
	return out
}

// RequireDecimal compares decimals by value, ignoring representation.
func RequireDecimal(t testing.TB, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, D(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
