package wallet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/testutil"
)

type recorder struct{ entries []*models.Transaction }

func (r *recorder) LedgerEntry(e *models.Transaction) { r.entries = append(r.entries, e) }

func newWallet(t *testing.T) (*wallet.WalletService, store.Store, *recorder) {
	t.Helper()
	st := testutil.NewStore()
	w := wallet.NewWalletService(st, zap.NewNop())
	rec := &recorder{}
	w.Notifier = rec
	w.Now = testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)).Now
	return w, st, rec
}

func TestDebit(t *testing.T) {
	tests := []struct {
		name    string
		wallet  string
		amount  string
		wantErr apperr.Kind
		after   string
	}{
		{name: "exact balance", wallet: "800", amount: "800", after: "0"},
		{name: "partial", wallet: "1000", amount: "250.50", after: "749.50"},
		{name: "insufficient", wallet: "500", amount: "800", wantErr: apperr.KindInsufficientFunds, after: "500"},
		{name: "zero amount", wallet: "500", amount: "0", wantErr: apperr.KindValidation, after: "500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, st, _ := newWallet(t)
			u, _ := testutil.SeedUser(t, st, testutil.WithWallet(tt.wallet))

			err := st.RunInTx(context.Background(), func(tx store.Tx) error {
				_, err := w.Debit(tx, u.ID, testutil.D(tt.amount), wallet.Entry{Type: models.TrxWithdrawal, Description: "test"})
				return err
			})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			testutil.RequireDecimal(t, tt.after, testutil.User(t, st, u.ID).Wallet)
		})
	}
}

func TestApplyRecordsBalanceAfter(t *testing.T) {
	w, st, _ := newWallet(t)
	u, _ := testutil.SeedUser(t, st, testutil.WithWallet("100"))

	var entry *models.Transaction
	require.NoError(t, st.RunInTx(context.Background(), func(tx store.Tx) error {
		var err error
		_, entry, err = w.Apply(tx, u.ID, models.UserDelta{Wallet: testutil.D("40"), TotalEarnings: testutil.D("40")}, wallet.Entry{
			Type:        models.TrxProfit,
			Description: "Daily profit",
		})
		return err
	}))

	require.NotNil(t, entry.BalanceAfter)
	testutil.RequireDecimal(t, "140", *entry.BalanceAfter)
	assert.Equal(t, models.TransactionStatusCompleted, entry.Status)
	assert.Len(t, entry.ReferenceCode, 26)

	got := testutil.User(t, st, u.ID)
	testutil.RequireDecimal(t, "140", got.Wallet)
	testutil.RequireDecimal(t, "40", got.TotalEarnings)
}

func TestIdempotencyKeyRejectsSecondEntry(t *testing.T) {
	w, st, _ := newWallet(t)
	u, _ := testutil.SeedUser(t, st)

	credit := func() error {
		return st.RunInTx(context.Background(), func(tx store.Tx) error {
			_, err := w.Credit(tx, u.ID, testutil.D("10"), wallet.Entry{Type: models.TrxProfit, IdempotencyKey: "profit:x:2026-03-01"})
			return err
		})
	}
	require.NoError(t, credit())
	err := credit()
	require.ErrorIs(t, err, store.ErrDuplicate)

	// the failed attempt rolled back its balance change
	testutil.RequireDecimal(t, "10", testutil.User(t, st, u.ID).Wallet)
}

func TestAdjustBalance(t *testing.T) {
	w, st, rec := newWallet(t)
	u, caller := testutil.SeedUser(t, st, testutil.WithWallet("100"))
	_, adminCaller := testutil.SeedUser(t, st, testutil.WithRole(models.RoleAdmin))

	_, err := w.AdjustBalance(context.Background(), caller, u.ID, testutil.D("50"), "bonus")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = w.AdjustBalance(context.Background(), adminCaller, u.ID, testutil.D("0"), "noop")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// corrections may take the wallet below zero
	entry, err := w.AdjustBalance(context.Background(), adminCaller, u.ID, testutil.D("-150"), "")
	require.NoError(t, err)
	assert.Equal(t, "Manual balance adjustment", entry.Description)
	assert.Equal(t, adminCaller.UserID, *entry.ActorID)
	testutil.RequireDecimal(t, "-50", testutil.User(t, st, u.ID).Wallet)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, models.TrxAdminAdjustment, rec.entries[0].Type)
}

func TestReconcile(t *testing.T) {
	w, st, _ := newWallet(t)
	_, adminCaller := testutil.SeedUser(t, st, testutil.WithRole(models.RoleAdmin))
	u, _ := testutil.SeedUser(t, st)

	_, err := w.AdjustBalance(context.Background(), adminCaller, u.ID, testutil.D("300"), "opening")
	require.NoError(t, err)

	// a pending entry does not count
	require.NoError(t, st.RunInTx(context.Background(), func(tx store.Tx) error {
		_, err := w.AppendPending(tx, u.ID, testutil.D("-100"), wallet.Entry{Type: models.TrxWithdrawal})
		return err
	}))

	r, err := w.Reconcile(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, r.Balanced)
	testutil.RequireDecimal(t, "300", r.LedgerSum)

	// a balance change with no entry shows up as drift
	require.NoError(t, st.RunInTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.ApplyUserDelta(u.ID, models.UserDelta{Wallet: testutil.D("5")})
		return err
	}))
	r, err = w.Reconcile(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, r.Balanced)
}

func TestListTransactions(t *testing.T) {
	w, st, _ := newWallet(t)
	u, caller := testutil.SeedUser(t, st)

	require.NoError(t, st.RunInTx(context.Background(), func(tx store.Tx) error {
		if _, err := w.Credit(tx, u.ID, testutil.D("10"), wallet.Entry{Type: models.TrxCheckinBonus}); err != nil {
			return err
		}
		_, err := w.Credit(tx, u.ID, testutil.D("20"), wallet.Entry{Type: models.TrxProfit})
		return err
	}))

	all, err := w.ListTransactions(context.Background(), caller, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	profits, err := w.ListTransactions(context.Background(), caller, models.TrxProfit, 10)
	require.NoError(t, err)
	require.Len(t, profits, 1)
	testutil.RequireDecimal(t, "20", profits[0].Amount)

	_, err = w.ListTransactions(context.Background(), auth.Caller{}, "", 10)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
