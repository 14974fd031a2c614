package referral_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/outbox"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/referral"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/testutil"
)

func newService(t *testing.T) (*referral.ReferralService, store.Store) {
	t.Helper()
	st := testutil.NewStore()
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	w := wallet.NewWalletService(st, zap.NewNop())
	w.Now = clock.Now
	svc := referral.NewReferralService(st, w, zap.NewNop())
	svc.Now = clock.Now
	return svc, st
}

// chain seeds n users where each one was referred by the previous one.
func chain(t *testing.T, svc *referral.ReferralService, st store.Store, n int) []*models.User {
	t.Helper()
	var users []*models.User
	for i := range n {
		u, _ := testutil.SeedUser(t, st)
		if i > 0 {
			require.NoError(t, svc.ProcessReferral(context.Background(), users[i-1].ReferralCode, u.ID))
		}
		users = append(users, u)
	}
	return users
}

func link(t *testing.T, st store.Store, referred uuid.UUID) *models.ReferralLink {
	t.Helper()
	var l *models.ReferralLink
	require.NoError(t, st.RunInTx(context.Background(), func(tx store.Tx) error {
		var err error
		l, err = tx.GetReferralLinkByReferred(referred)
		return err
	}))
	return l
}

func TestProcessReferral(t *testing.T) {
	svc, st := newService(t)
	referrer, _ := testutil.SeedUser(t, st)
	fresh, _ := testutil.SeedUser(t, st)

	require.NoError(t, svc.ProcessReferral(context.Background(), referrer.ReferralCode, fresh.ID))

	got := testutil.User(t, st, fresh.ID)
	require.NotNil(t, got.ReferredBy)
	assert.Equal(t, referrer.ID, *got.ReferredBy)
	assert.Equal(t, models.ReferralStatusPending, link(t, st, fresh.ID).Status)

	t.Run("unknown code is ignored", func(t *testing.T) {
		other, _ := testutil.SeedUser(t, st)
		require.NoError(t, svc.ProcessReferral(context.Background(), "NOPE0000", other.ID))
		assert.Nil(t, testutil.User(t, st, other.ID).ReferredBy)
	})

	t.Run("self referral is ignored", func(t *testing.T) {
		self, _ := testutil.SeedUser(t, st)
		require.NoError(t, svc.ProcessReferral(context.Background(), self.ReferralCode, self.ID))
		assert.Nil(t, testutil.User(t, st, self.ID).ReferredBy)
	})
}

func TestProcessReferralBonusTwoLevels(t *testing.T) {
	svc, st := newService(t)
	users := chain(t, svc, st, 4)
	top, grand, parent, investor := users[0], users[1], users[2], users[3]
	invID := uuid.New()

	bonuses, err := svc.ProcessReferralBonus(context.Background(), investor.ID, testutil.D("1000"), invID)
	require.NoError(t, err)
	require.Len(t, bonuses, 2)

	assert.Equal(t, 1, bonuses[0].Level)
	assert.Equal(t, parent.ID, bonuses[0].ReferrerID)
	testutil.RequireDecimal(t, "50", bonuses[0].Amount)
	assert.Equal(t, "Referral bonus from investment", bonuses[0].Entry.Description)

	assert.Equal(t, 2, bonuses[1].Level)
	assert.Equal(t, grand.ID, bonuses[1].ReferrerID)
	testutil.RequireDecimal(t, "30", bonuses[1].Amount)
	assert.Equal(t, "Level 2 referral bonus", bonuses[1].Entry.Description)

	testutil.RequireDecimal(t, "50", testutil.User(t, st, parent.ID).Wallet)
	testutil.RequireDecimal(t, "50", testutil.User(t, st, parent.ID).TotalEarnings)
	testutil.RequireDecimal(t, "30", testutil.User(t, st, grand.ID).Wallet)
	// a third level earns nothing
	testutil.RequireDecimal(t, "0", testutil.User(t, st, top.ID).Wallet)

	l := link(t, st, investor.ID)
	assert.Equal(t, models.ReferralStatusCredited, l.Status)
	require.NotNil(t, l.FirstInvestmentID)
	assert.Equal(t, invID, *l.FirstInvestmentID)
}

func TestProcessReferralBonusIsIdempotent(t *testing.T) {
	svc, st := newService(t)
	users := chain(t, svc, st, 3)
	invID := uuid.New()

	_, err := svc.ProcessReferralBonus(context.Background(), users[2].ID, testutil.D("800"), invID)
	require.NoError(t, err)

	again, err := svc.ProcessReferralBonus(context.Background(), users[2].ID, testutil.D("800"), invID)
	require.NoError(t, err)
	assert.Empty(t, again)

	testutil.RequireDecimal(t, "40", testutil.User(t, st, users[1].ID).Wallet)
	testutil.RequireDecimal(t, "24", testutil.User(t, st, users[0].ID).Wallet)

	// a different investment pays again
	_, err = svc.ProcessReferralBonus(context.Background(), users[2].ID, testutil.D("800"), uuid.New())
	require.NoError(t, err)
	testutil.RequireDecimal(t, "80", testutil.User(t, st, users[1].ID).Wallet)
}

func TestProcessReferralBonusWithoutReferrer(t *testing.T) {
	svc, st := newService(t)
	u, _ := testutil.SeedUser(t, st)

	bonuses, err := svc.ProcessReferralBonus(context.Background(), u.ID, testutil.D("1000"), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, bonuses)
}

func TestSettings(t *testing.T) {
	svc, st := newService(t)
	_, admin := testutil.SeedUser(t, st, testutil.WithRole(models.RoleAdmin))
	_, user := testutil.SeedUser(t, st)

	s, err := svc.Settings(context.Background())
	require.NoError(t, err)
	testutil.RequireDecimal(t, "5", s.Level1)
	testutil.RequireDecimal(t, "3", s.Level2)

	err = svc.UpdateSettings(context.Background(), user, referral.Settings{Level1: testutil.D("10"), Level2: testutil.D("1")})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	err = svc.UpdateSettings(context.Background(), admin, referral.Settings{Level1: testutil.D("101"), Level2: testutil.D("1")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	require.NoError(t, svc.UpdateSettings(context.Background(), admin, referral.Settings{Level1: testutil.D("10"), Level2: testutil.D("2.5")}))

	users := chain(t, svc, st, 3)
	_, err = svc.ProcessReferralBonus(context.Background(), users[2].ID, testutil.D("1000"), uuid.New())
	require.NoError(t, err)
	testutil.RequireDecimal(t, "100", testutil.User(t, st, users[1].ID).Wallet)
	testutil.RequireDecimal(t, "25", testutil.User(t, st, users[0].ID).Wallet)
}

func TestSettingsIgnoreLevelThree(t *testing.T) {
	svc, st := newService(t)
	require.NoError(t, st.RunInTx(context.Background(), func(tx store.Tx) error {
		return tx.PutSetting(&models.Setting{
			Key:   models.SettingReferral,
			Value: datatypes.JSON(`{"level1":"6","level2":"4","level3":"2"}`),
		})
	}))

	users := chain(t, svc, st, 4)
	bonuses, err := svc.ProcessReferralBonus(context.Background(), users[3].ID, testutil.D("100"), uuid.New())
	require.NoError(t, err)
	require.Len(t, bonuses, 2)
	testutil.RequireDecimal(t, "6", bonuses[0].Amount)
	testutil.RequireDecimal(t, "4", bonuses[1].Amount)
	testutil.RequireDecimal(t, "0", testutil.User(t, st, users[0].ID).Wallet)
}

func TestHandleTask(t *testing.T) {
	svc, st := newService(t)
	users := chain(t, svc, st, 2)

	payload, err := json.Marshal(outbox.ReferralBonusPayload{UserID: users[1].ID, InvestmentID: uuid.New(), Amount: testutil.D("200")})
	require.NoError(t, err)

	require.NoError(t, svc.HandleTask(context.Background(), payload))
	require.NoError(t, svc.HandleTask(context.Background(), payload))
	testutil.RequireDecimal(t, "10", testutil.User(t, st, users[0].ID).Wallet)

	assert.Error(t, svc.HandleTask(context.Background(), []byte("{")))
}

func TestReferrals(t *testing.T) {
	svc, st := newService(t)
	users := chain(t, svc, st, 2)

	sum, err := svc.Referrals(context.Background(), auth.Caller{UserID: users[0].ID, Role: users[0].Role})
	require.NoError(t, err)
	assert.Equal(t, users[0].ReferralCode, sum.ReferralCode)
	require.Len(t, sum.Referrals, 1)
	assert.Equal(t, users[1].ID, sum.Referrals[0].ID)
	assert.Equal(t, users[1].Name, sum.Referrals[0].Name)
	assert.True(t, sum.Referrals[0].Active)
	assert.False(t, sum.Referrals[0].Invested)
}

func TestReferralsHidePersonalData(t *testing.T) {
	svc, st := newService(t)
	top, _ := testutil.SeedUser(t, st)
	referred, _ := testutil.SeedUser(t, st, testutil.WithWallet("98765"), testutil.ReferredBy(top.ID))
	require.NoError(t, svc.ProcessReferral(context.Background(), top.ReferralCode, referred.ID))

	sum, err := svc.Referrals(context.Background(), auth.Caller{UserID: top.ID, Role: top.Role})
	require.NoError(t, err)

	b, err := json.Marshal(sum)
	require.NoError(t, err)
	body := string(b)
	assert.Contains(t, body, referred.ID.String())
	for _, leaked := range []string{referred.Email, `"email"`, `"phone"`, `"wallet"`, `"total_investment"`, `"role"`, `"referred_by"`} {
		assert.NotContains(t, body, leaked)
	}
}
