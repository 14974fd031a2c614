package investment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/investment"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store/memstore"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/testutil"
)

type fixture struct {
	st    *memstore.Store
	clock *testutil.Clock
	svc   *investment.InvestmentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := testutil.NewStore()
	clock := testutil.NewClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	w := wallet.NewWalletService(st, zap.NewNop())
	w.Now = clock.Now
	svc := investment.NewInvestmentService(st, w, zap.NewNop(), time.UTC)
	svc.Now = clock.Now
	return &fixture{st: st, clock: clock, svc: svc}
}

func (f *fixture) dueTasks(t *testing.T) []models.OutboxTask {
	t.Helper()
	var out []models.OutboxTask
	require.NoError(t, f.st.RunInTx(context.Background(), func(tx store.Tx) error {
		var err error
		out, err = tx.ListDueTasks(f.clock.Now().Add(time.Hour), 10)
		return err
	}))
	return out
}

func TestCreateInvestment(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProduct(t, f.st, "800", "3250", "6500", 2)
	u, caller := testutil.SeedUser(t, f.st, testutil.WithWallet("2000"))

	inv, err := f.svc.CreateInvestment(context.Background(), caller, p.ID, 2)
	require.NoError(t, err)

	testutil.RequireDecimal(t, "1600", inv.Amount)
	testutil.RequireDecimal(t, "6500", inv.DailyProfit)
	testutil.RequireDecimal(t, "13000", inv.TotalIncome)
	assert.Equal(t, models.InvestmentStatusActive, inv.Status)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 2), inv.EndDate)

	got := testutil.User(t, f.st, u.ID)
	testutil.RequireDecimal(t, "400", got.Wallet)
	testutil.RequireDecimal(t, "1600", got.TotalInvestment)

	ledger := testutil.Ledger(t, f.st, u.ID)
	require.Len(t, ledger, 1)
	assert.Equal(t, models.TrxInvestment, ledger[0].Type)
	testutil.RequireDecimal(t, "-1600", ledger[0].Amount)
	assert.Equal(t, "Invested in Dairy Milk (2 units)", ledger[0].Description)

	tasks := f.dueTasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskReferralBonus, tasks[0].Kind)
}

func TestCreateInvestmentRejects(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProduct(t, f.st, "800", "3250", "6500", 2)
	inactive := testutil.SeedProduct(t, f.st, "800", "3250", "6500", 2)
	require.NoError(t, f.st.RunInTx(context.Background(), func(tx store.Tx) error {
		inactive.Active = false
		return tx.SaveProduct(inactive)
	}))

	tests := []struct {
		name     string
		wallet   string
		product  uuid.UUID
		quantity int
		want     apperr.Kind
	}{
		{name: "insufficient balance", wallet: "500", product: p.ID, quantity: 1, want: apperr.KindInsufficientFunds},
		{name: "unknown product", wallet: "5000", product: uuid.New(), quantity: 1, want: apperr.KindNotFound},
		{name: "inactive product", wallet: "5000", product: inactive.ID, quantity: 1, want: apperr.KindValidation},
		{name: "zero quantity", wallet: "5000", product: p.ID, quantity: 0, want: apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, caller := testutil.SeedUser(t, f.st, testutil.WithWallet(tt.wallet))

			_, err := f.svc.CreateInvestment(context.Background(), caller, tt.product, tt.quantity)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))

			// nothing moved
			got := testutil.User(t, f.st, u.ID)
			testutil.RequireDecimal(t, tt.wallet, got.Wallet)
			assert.True(t, got.TotalInvestment.IsZero())
			assert.Empty(t, testutil.Ledger(t, f.st, u.ID))
		})
	}
	assert.Empty(t, f.dueTasks(t))
}

func TestAccrueDailyProfitsOncePerDay(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProduct(t, f.st, "800", "3250", "6500", 2)
	u, caller := testutil.SeedUser(t, f.st, testutil.WithWallet("800"))

	_, err := f.svc.CreateInvestment(context.Background(), caller, p.ID, 1)
	require.NoError(t, err)

	res, err := f.svc.AccrueDailyProfits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Paid)
	testutil.RequireDecimal(t, "3250", res.Total)

	// a second sweep the same day pays nothing
	f.clock.Advance(3 * time.Hour)
	res, err = f.svc.AccrueDailyProfits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Paid)
	assert.Equal(t, 1, res.Skipped)

	got := testutil.User(t, f.st, u.ID)
	testutil.RequireDecimal(t, "3250", got.Wallet)
	testutil.RequireDecimal(t, "3250", got.TotalEarnings)

	profits := 0
	for _, e := range testutil.Ledger(t, f.st, u.ID) {
		if e.Type == models.TrxProfit {
			profits++
			assert.Equal(t, "Daily profit from Dairy Milk", e.Description)
		}
	}
	assert.Equal(t, 1, profits)
}

func TestAccrueCompletesAtTotalIncome(t *testing.T) {
	f := newFixture(t)
	// 1500 a day against a 4000 total caps the third payout at 1000
	p := testutil.SeedProduct(t, f.st, "800", "1500", "4000", 3)
	u, caller := testutil.SeedUser(t, f.st, testutil.WithWallet("800"))

	inv, err := f.svc.CreateInvestment(context.Background(), caller, p.ID, 1)
	require.NoError(t, err)

	want := []struct {
		paid      string
		completed int
	}{
		{paid: "1500"},
		{paid: "1500"},
		{paid: "1000", completed: 1},
		{paid: "0"},
	}
	for day, w := range want {
		res, err := f.svc.AccrueDailyProfits(context.Background())
		require.NoError(t, err, "day %d", day)
		testutil.RequireDecimal(t, w.paid, res.Total, "day", day)
		assert.Equal(t, w.completed, res.Completed, "day %d", day)
		f.clock.Advance(24 * time.Hour)
	}

	list, err := f.svc.ListUserInvestments(context.Background(), caller, models.InvestmentStatusCompleted)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, inv.ID, list[0].ID)
	testutil.RequireDecimal(t, "4000", list[0].ProfitPaid)
	testutil.RequireDecimal(t, "4000", testutil.User(t, f.st, u.ID).Wallet)
}

func TestAccrueAcrossBatches(t *testing.T) {
	f := newFixture(t)
	f.svc.BatchSize = 2
	p := testutil.SeedProduct(t, f.st, "100", "10", "100", 10)

	var users []uuid.UUID
	for range 5 {
		u, caller := testutil.SeedUser(t, f.st, testutil.WithWallet("100"))
		_, err := f.svc.CreateInvestment(context.Background(), caller, p.ID, 1)
		require.NoError(t, err)
		users = append(users, u.ID)
	}

	// injected write conflicts are retried, not surfaced
	f.st.InjectConflicts(2)

	res, err := f.svc.AccrueDailyProfits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Paid)
	testutil.RequireDecimal(t, "50", res.Total)
	for _, id := range users {
		testutil.RequireDecimal(t, "10", testutil.User(t, f.st, id).Wallet)
	}
}

func TestAccrueContinuesPastFailedBatch(t *testing.T) {
	f := newFixture(t)
	f.svc.BatchSize = 1
	p := testutil.SeedProduct(t, f.st, "100", "10", "100", 10)

	var users []uuid.UUID
	for range 3 {
		u, caller := testutil.SeedUser(t, f.st, testutil.WithWallet("100"))
		_, err := f.svc.CreateInvestment(context.Background(), caller, p.ID, 1)
		require.NoError(t, err)
		users = append(users, u.ID)
	}

	// an investment whose owner is gone fails its own batch only
	orphan := &models.Investment{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    1,
		Amount:      testutil.D("100"),
		DailyProfit: testutil.D("10"),
		TotalIncome: testutil.D("100"),
		Days:        10,
		StartDate:   f.clock.Now(),
		EndDate:     f.clock.Now().AddDate(0, 0, 10),
		Status:      models.InvestmentStatusActive,
	}
	require.NoError(t, f.st.RunInTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateInvestment(orphan)
	}))

	res, err := f.svc.AccrueDailyProfits(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	require.NotNil(t, res)
	assert.Equal(t, 3, res.Paid)
	testutil.RequireDecimal(t, "30", res.Total)
	for _, id := range users {
		testutil.RequireDecimal(t, "10", testutil.User(t, f.st, id).Wallet)
	}
}
