package identity_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/geo"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/identity"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/outbox"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store/memstore"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/testutil"
)

type referrer struct {
	codes []string
	err   error
}

func (r *referrer) ProcessReferral(_ context.Context, code string, _ uuid.UUID) error {
	r.codes = append(r.codes, code)
	return r.err
}

type mailbox struct {
	links map[string]string
}

func (m *mailbox) SendPasswordReset(_ context.Context, email, link string) error {
	m.links[email] = link
	return nil
}

func (m *mailbox) token(t *testing.T, email string) string {
	t.Helper()
	u, err := url.Parse(m.links[email])
	require.NoError(t, err)
	return u.Query().Get("token")
}

type locator struct{ fail bool }

func (l locator) Lookup(_ context.Context, ip string) (*geo.Location, error) {
	if l.fail {
		return nil, errors.New("lookup timed out")
	}
	return &geo.Location{City: "Mumbai", Region: "Maharashtra", Country: "India"}, nil
}

type fixture struct {
	st     *memstore.Store
	ref    *referrer
	mail   *mailbox
	tokens *identity.MemoryTokens
	clock  *testutil.Clock
	svc    *identity.IdentityService
	events []identity.SessionEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:     testutil.NewStore(),
		ref:    &referrer{},
		mail:   &mailbox{links: map[string]string{}},
		tokens: identity.NewMemoryTokens(),
		clock:  testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.tokens.Now = f.clock.Now
	f.svc = identity.NewIdentityService(f.st, f.ref, f.tokens, f.mail, locator{}, zap.NewNop(), identity.Options{
		JWTSecret:    "test-secret",
		ExpiresMin:   60,
		ResetTTL:     time.Hour,
		ResetBaseURL: "https://app.example",
	})
	f.svc.Now = f.clock.Now
	f.svc.OnSessionChange(func(_ auth.Caller, ev identity.SessionEvent) { f.events = append(f.events, ev) })
	return f
}

func (f *fixture) register(t *testing.T, email string) *identity.Session {
	t.Helper()
	sess, err := f.svc.Register(context.Background(), identity.RegisterInput{
		Name: "Asha", Email: email, Password: "secret1", ReferralCode: " ab12cd34 ",
	}, auth.Caller{IP: "10.0.0.1"})
	require.NoError(t, err)
	return sess
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	sess := f.register(t, " Asha@Example.com ")

	assert.Equal(t, "asha@example.com", sess.User.Email)
	assert.True(t, strings.HasPrefix(sess.User.ReferralCode, "CAD"))
	assert.Equal(t, models.RoleUser, sess.User.Role)
	assert.True(t, sess.User.Wallet.IsZero())
	assert.Equal(t, []string{"AB12CD34"}, f.ref.codes)
	assert.Equal(t, []identity.SessionEvent{identity.EventRegistered}, f.events)

	caller, err := f.svc.Authenticate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, caller.UserID)

	_, err = f.svc.Register(context.Background(), identity.RegisterInput{Name: "B", Email: "asha@example.com", Password: "secret1"}, auth.Caller{})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   identity.RegisterInput
	}{
		{name: "missing name", in: identity.RegisterInput{Email: "a@b.c", Password: "secret1"}},
		{name: "bad email", in: identity.RegisterInput{Name: "A", Email: "nope", Password: "secret1"}},
		{name: "short password", in: identity.RegisterInput{Name: "A", Email: "a@b.c", Password: "12345"}},
		{name: "short phone", in: identity.RegisterInput{Name: "A", Email: "a@b.c", Password: "secret1", Phone: "123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.in, auth.Caller{})
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestRegisterSurvivesReferralFailure(t *testing.T) {
	f := newFixture(t)
	f.ref.err = errors.New("referrer lookup failed")
	sess := f.register(t, "asha@example.com")
	assert.NotEmpty(t, sess.Token)
}

func TestSignIn(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "asha@example.com")

	_, err := f.svc.SignIn(context.Background(), "asha@example.com", "wrong!", auth.Caller{})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = f.svc.SignIn(context.Background(), "nobody@example.com", "secret1", auth.Caller{})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	sess, err := f.svc.SignIn(context.Background(), "ASHA@example.com", "secret1", auth.Caller{IP: "10.0.0.9", UserAgent: "curl"})
	require.NoError(t, err)
	require.NotNil(t, sess.User.LastLogin)
	assert.Equal(t, f.clock.Now(), *sess.User.LastLogin)

	// the login is recorded through the outbox
	var tasks []models.OutboxTask
	require.NoError(t, f.st.RunInTx(context.Background(), func(tx store.Tx) error {
		var err error
		tasks, err = tx.ListDueTasks(f.clock.Now(), 10)
		return err
	}))
	require.Len(t, tasks, 1)
	var p outbox.LoginActivityPayload
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &p))
	assert.Equal(t, reg.User.ID, p.UserID)
	assert.Equal(t, "curl", p.Device)

	require.NoError(t, f.svc.HandleLoginTask(context.Background(), tasks[0].Payload))
}

func TestSignInBlocked(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "asha@example.com")
	blocked := models.UserStatusBlocked
	require.NoError(t, f.st.RunInTx(context.Background(), func(tx store.Tx) error {
		return tx.UpdateUser(reg.User.ID, store.UserFields{Status: &blocked})
	}))

	_, err := f.svc.SignIn(context.Background(), "asha@example.com", "secret1", auth.Caller{})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Authenticate("")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = f.svc.Authenticate("not.a.token")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	other := newFixture(t)
	other.svc.Opts.JWTSecret = "someone-else"
	foreign := other.register(t, "x@example.com")
	_, err = f.svc.Authenticate(foreign.Token)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestRefreshUsesStoredRole(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "asha@example.com")
	admin := models.RoleAdmin
	require.NoError(t, f.st.RunInTx(context.Background(), func(tx store.Tx) error {
		return tx.UpdateUser(reg.User.ID, store.UserFields{Role: &admin})
	}))

	// the token was issued before the promotion
	caller, err := f.svc.Authenticate(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, caller.Role)

	fresh, err := f.svc.Refresh(context.Background(), caller)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, fresh.Role)

	blocked := models.UserStatusBlocked
	require.NoError(t, f.st.RunInTx(context.Background(), func(tx store.Tx) error {
		return tx.UpdateUser(reg.User.ID, store.UserFields{Status: &blocked})
	}))
	_, err = f.svc.Refresh(context.Background(), fresh)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.svc.Refresh(context.Background(), auth.Caller{UserID: uuid.New(), Role: models.RoleAdmin})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	f.register(t, "asha@example.com")

	// unknown addresses look the same to the caller
	require.NoError(t, f.svc.SendPasswordReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, f.mail.links)

	require.NoError(t, f.svc.SendPasswordReset(context.Background(), "asha@example.com"))
	token := f.mail.token(t, "asha@example.com")
	require.NotEmpty(t, token)

	err := f.svc.ResetPassword(context.Background(), token, "123")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	require.NoError(t, f.svc.ResetPassword(context.Background(), token, "brand-new"))
	_, err = f.svc.SignIn(context.Background(), "asha@example.com", "brand-new", auth.Caller{})
	require.NoError(t, err)

	// single use
	err = f.svc.ResetPassword(context.Background(), token, "another1")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestPasswordResetExpires(t *testing.T) {
	f := newFixture(t)
	f.register(t, "asha@example.com")
	require.NoError(t, f.svc.SendPasswordReset(context.Background(), "asha@example.com"))

	f.clock.Advance(2 * time.Hour)
	err := f.svc.ResetPassword(context.Background(), f.mail.token(t, "asha@example.com"), "brand-new")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	sess := f.register(t, "asha@example.com")
	caller := auth.Caller{UserID: sess.User.ID, Role: sess.User.Role}

	err := f.svc.ChangePassword(context.Background(), caller, "wrong!", "brand-new")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	require.NoError(t, f.svc.ChangePassword(context.Background(), caller, "secret1", "brand-new"))
	assert.Contains(t, f.events, identity.EventPasswordChanged)

	_, err = f.svc.SignIn(context.Background(), "asha@example.com", "secret1", auth.Caller{})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestSignInWithGoogle(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.SignInWithGoogle(context.Background(), identity.GoogleProfile{Email: "G@example.com", Name: "Gita"}, auth.Caller{})
	require.NoError(t, err)
	assert.Equal(t, "g@example.com", first.User.Email)

	again, err := f.svc.SignInWithGoogle(context.Background(), identity.GoogleProfile{Email: "g@example.com", Name: "Gita R"}, auth.Caller{})
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID)
	assert.Equal(t, "Gita R", again.User.Name)

	_, err = f.svc.SignInWithGoogle(context.Background(), identity.GoogleProfile{}, auth.Caller{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.EnsureAdmin(context.Background(), "root@example.com", "rootpass"))
	sess, err := f.svc.SignIn(context.Background(), "root@example.com", "rootpass", auth.Caller{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, sess.User.Role)

	f.register(t, "asha@example.com")
	require.NoError(t, f.svc.EnsureAdmin(context.Background(), "asha@example.com", "ignored"))
	sess, err = f.svc.SignIn(context.Background(), "asha@example.com", "secret1", auth.Caller{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, sess.User.Role)
}

func TestHandleLoginTaskWithoutLocation(t *testing.T) {
	f := newFixture(t)
	f.svc.Geo = locator{fail: true}
	payload, err := json.Marshal(outbox.LoginActivityPayload{UserID: uuid.New(), IP: "10.1.1.1", At: f.clock.Now()})
	require.NoError(t, err)
	assert.NoError(t, f.svc.HandleLoginTask(context.Background(), payload))
	assert.Error(t, f.svc.HandleLoginTask(context.Background(), []byte("nope")))
}
