// Package identity owns accounts and sessions: registration, password sign-in,
// Google sign-in, password reset and change. Sessions are HS256 tokens; the
// caller's identity is handed to other services as an auth.Caller.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/geo"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/outbox"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/utils"
)

const (
	minPasswordLen      = 6
	referralCodeRetries = 5
)

type SessionEvent string

const (
	EventRegistered      SessionEvent = "registered"
	EventSignedIn        SessionEvent = "signed_in"
	EventSignedOut       SessionEvent = "signed_out"
	EventPasswordChanged SessionEvent = "password_changed"
)

// Referrer links a new account to the owner of a referral code.
type Referrer interface {
	ProcessReferral(ctx context.Context, referralCode string, newUserID uuid.UUID) error
}

// Locator resolves an IP for login history.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*geo.Location, error)
}

type Options struct {
	JWTSecret    string
	ExpiresMin   int
	ResetTTL     time.Duration
	ResetBaseURL string
}

type IdentityService struct {
	Store    store.Store
	Referral Referrer
	Tokens   TokenStore
	Mailer   Mailer
	Geo      Locator
	Log      *zap.Logger
	Opts     Options
	Now      func() time.Time
	Timeout  time.Duration

	mu        sync.RWMutex
	listeners []func(auth.Caller, SessionEvent)
}

func NewIdentityService(st store.Store, ref Referrer, tokens TokenStore, mailer Mailer, loc Locator, log *zap.Logger, opts Options) *IdentityService {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	return &IdentityService{
		Store:    st,
		Referral: ref,
		Tokens:   tokens,
		Mailer:   mailer,
		Geo:      loc,
		Log:      log,
		Opts:     opts,
		Now:      time.Now,
		Timeout:  10 * time.Second,
	}
}

// OnSessionChange registers fn to be told about sign-ins, sign-outs and
// credential changes.
func (s *IdentityService) OnSessionChange(fn func(auth.Caller, SessionEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *IdentityService) emit(c auth.Caller, ev SessionEvent) {
	s.mu.RLock()
	ls := append([]func(auth.Caller, SessionEvent){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range ls {
		fn(c, ev)
	}
}

type Session struct {
	Token     string       `json:"-"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (s *IdentityService) issue(u *models.User) (*Session, error) {
	token, err := utils.SignJWT(s.Opts.JWTSecret, u.ID.String(), string(u.Role), s.Opts.ExpiresMin)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to sign token", err)
	}
	return &Session{
		Token:     token,
		ExpiresAt: s.Now().Add(time.Duration(s.Opts.ExpiresMin) * time.Minute),
		User:      u,
	}, nil
}

// Authenticate turns a session token into a Caller.
func (s *IdentityService) Authenticate(token string) (auth.Caller, error) {
	if token == "" {
		return auth.Caller{}, apperr.New(apperr.KindUnauthorized, "login required")
	}
	claims, err := utils.ParseJWT(s.Opts.JWTSecret, token)
	if err != nil {
		return auth.Caller{}, apperr.Wrap(apperr.KindUnauthorized, "invalid session", err)
	}
	uid, err := uuid.Parse(strings.TrimSpace(claims.UserID))
	if err != nil {
		return auth.Caller{}, apperr.New(apperr.KindUnauthorized, "invalid session")
	}
	return auth.Caller{UserID: uid, Role: models.Role(strings.ToLower(claims.Role))}, nil
}

// Refresh replaces the role carried by the token with the stored one. A user
// deleted or blocked since the token was issued is turned away.
func (s *IdentityService) Refresh(ctx context.Context, caller auth.Caller) (auth.Caller, error) {
	if err := caller.RequireUser(); err != nil {
		return caller, err
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var u *models.User
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUser(caller.UserID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return caller, apperr.New(apperr.KindUnauthorized, "invalid session")
	}
	if err != nil {
		return caller, store.Translate(err, "user")
	}
	if u.Status == models.UserStatusBlocked {
		return caller, apperr.New(apperr.KindForbidden, "account is blocked")
	}
	caller.Role = u.Role
	return caller, nil
}

type RegisterInput struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Phone        string `json:"phone"`
	ReferralCode string `json:"referral_code"`
}

// Validate returns per-field messages, empty when the input is acceptable.
func (in *RegisterInput) Validate() map[string]string {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.ReferralCode = strings.ToUpper(strings.TrimSpace(in.ReferralCode))

	errs := map[string]string{}
	if in.Name == "" {
		errs["name"] = "Name is required"
	}
	if in.Email == "" {
		errs["email"] = "Email is required"
	} else if !strings.Contains(in.Email, "@") {
		errs["email"] = "Invalid email format"
	}
	if len(in.Password) < minPasswordLen {
		errs["password"] = fmt.Sprintf("Password must be at least %d characters", minPasswordLen)
	}
	if in.Phone != "" && len(in.Phone) < 8 {
		errs["phone"] = "Invalid phone number"
	}
	return errs
}

var errEmailTaken = apperr.New(apperr.KindConflict, "email already registered")

// Register creates an account with a fresh referral code and, when a code was
// given, links it to the referrer. Linking failures do not fail registration.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput, meta auth.Caller) (*Session, error) {
	if errs := in.Validate(); len(errs) > 0 {
		for _, k := range []string{"name", "email", "password", "phone"} {
			if msg, ok := errs[k]; ok {
				return nil, apperr.Validation(msg)
			}
		}
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to hash password", err)
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	u, err := s.createUser(ctx, in.Name, in.Email, in.Phone, hash, models.RoleUser)
	if err != nil {
		return nil, err
	}

	if in.ReferralCode != "" && s.Referral != nil {
		if err := s.Referral.ProcessReferral(ctx, in.ReferralCode, u.ID); err != nil {
			s.Log.Warn("referral linking failed",
				zap.String("user_id", u.ID.String()),
				zap.String("code", in.ReferralCode),
				zap.Error(err))
		}
	}

	sess, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	s.Log.Info("user registered", zap.String("user_id", u.ID.String()))
	s.emit(auth.Caller{UserID: u.ID, Role: u.Role, IP: meta.IP, UserAgent: meta.UserAgent}, EventRegistered)
	return sess, nil
}

// createUser retries on a referral code collision. Each attempt is its own
// transaction because a failed insert aborts the surrounding one.
func (s *IdentityService) createUser(ctx context.Context, name, email, phone, hash string, role models.Role) (*models.User, error) {
	var lastErr error
	for range referralCodeRetries {
		now := s.Now()
		u := &models.User{
			ID:              uuid.New(),
			Name:            name,
			Email:           email,
			Phone:           phone,
			Password:        hash,
			Wallet:          decimal.Zero,
			TotalInvestment: decimal.Zero,
			TotalEarnings:   decimal.Zero,
			ReferralCode:    utils.ReferralCode(),
			Role:            role,
			Status:          models.UserStatusActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
			if _, err := tx.GetUserByEmail(email); err == nil {
				return errEmailTaken
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return tx.CreateUser(u)
		})
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, store.Translate(err, "user")
		}
		lastErr = err
	}
	return nil, store.Translate(lastErr, "user")
}

// SignIn checks credentials and records the login. Geo lookup of the login
// happens later through the outbox.
func (s *IdentityService) SignIn(ctx context.Context, email, password string, meta auth.Caller) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var u *models.User
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUserByEmail(email)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindUnauthorized, "invalid email or password")
		}
		if err != nil {
			return err
		}
		if !utils.CheckPassword(u.Password, password) {
			return apperr.New(apperr.KindUnauthorized, "invalid email or password")
		}
		if u.Status == models.UserStatusBlocked {
			return apperr.New(apperr.KindForbidden, "account is blocked")
		}
		return s.recordLogin(tx, u, meta)
	})
	if err != nil {
		return nil, store.Translate(err, "user")
	}

	sess, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	s.emit(auth.Caller{UserID: u.ID, Role: u.Role, IP: meta.IP, UserAgent: meta.UserAgent}, EventSignedIn)
	return sess, nil
}

func (s *IdentityService) recordLogin(tx store.Tx, u *models.User, meta auth.Caller) error {
	now := s.Now()
	if err := tx.UpdateUser(u.ID, store.UserFields{LastLogin: &now, UpdatedAt: now}); err != nil {
		return err
	}
	u.LastLogin = &now
	_, err := outbox.Enqueue(tx, models.TaskLoginActivity, outbox.LoginActivityPayload{
		UserID: u.ID,
		IP:     meta.IP,
		Device: meta.UserAgent,
		At:     now,
	}, now)
	return err
}

type GoogleProfile struct {
	Email string
	Name  string
}

// SignInWithGoogle upserts the account behind a verified Google profile.
func (s *IdentityService) SignInWithGoogle(ctx context.Context, p GoogleProfile, meta auth.Caller) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	name := strings.TrimSpace(p.Name)
	if email == "" {
		return nil, apperr.Validation("email not provided by Google")
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var u *models.User
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUserByEmail(email)
		return err
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		// the account cannot sign in with a password until it is reset
		hash, herr := utils.HashPassword(utils.RandomToken(24))
		if herr != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to hash password", herr)
		}
		if name == "" {
			name = email
		}
		if u, err = s.createUser(ctx, name, email, "", hash, models.RoleUser); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, store.Translate(err, "user")
	}

	if u.Status == models.UserStatusBlocked {
		return nil, apperr.New(apperr.KindForbidden, "account is blocked")
	}

	err = s.Store.RunInTx(ctx, func(tx store.Tx) error {
		if name != "" && u.Name != name {
			if err := tx.UpdateUser(u.ID, store.UserFields{Name: &name, UpdatedAt: s.Now()}); err != nil {
				return err
			}
			u.Name = name
		}
		return s.recordLogin(tx, u, meta)
	})
	if err != nil {
		return nil, store.Translate(err, "user")
	}

	sess, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	s.emit(auth.Caller{UserID: u.ID, Role: u.Role, IP: meta.IP, UserAgent: meta.UserAgent}, EventSignedIn)
	return sess, nil
}

// SignOut only notifies listeners; the token itself is dropped by the client.
func (s *IdentityService) SignOut(_ context.Context, caller auth.Caller) {
	if caller.UserID == uuid.Nil {
		return
	}
	s.emit(caller, EventSignedOut)
}

// Session returns the account behind the caller.
func (s *IdentityService) Session(ctx context.Context, caller auth.Caller) (*models.User, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var u *models.User
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUser(caller.UserID)
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "user")
	}
	return u, nil
}

// SendPasswordReset mails a single-use link. Unknown emails succeed silently
// so the endpoint does not reveal which addresses are registered.
func (s *IdentityService) SendPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperr.Validation("email is required")
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var u *models.User
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUserByEmail(email)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		s.Log.Info("password reset for unknown email")
		return nil
	}
	if err != nil {
		return store.Translate(err, "user")
	}

	token := utils.RandomToken(32)
	if err := s.Tokens.Put(ctx, token, u.ID, s.Opts.ResetTTL); err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "token store unavailable", err)
	}
	link := s.Opts.ResetBaseURL + "/auth/reset-password?token=" + url.QueryEscape(token)
	if err := s.Mailer.SendPasswordReset(ctx, u.Email, link); err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "failed to send reset email", err)
	}
	return nil
}

func (s *IdentityService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	uid, err := s.Tokens.Take(ctx, token)
	if errors.Is(err, ErrTokenNotFound) {
		return apperr.Validation("reset link is invalid or expired")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "token store unavailable", err)
	}
	if err := s.setPassword(ctx, uid, newPassword); err != nil {
		return err
	}
	s.emit(auth.Caller{UserID: uid}, EventPasswordChanged)
	return nil
}

// ChangePassword re-authenticates with the current password first.
func (s *IdentityService) ChangePassword(ctx context.Context, caller auth.Caller, current, next string) error {
	if err := caller.RequireUser(); err != nil {
		return err
	}
	if len(next) < minPasswordLen {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var hash string
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(caller.UserID)
		if err != nil {
			return err
		}
		hash = u.Password
		return nil
	})
	if err != nil {
		return store.Translate(err, "user")
	}
	if !utils.CheckPassword(hash, current) {
		return apperr.New(apperr.KindUnauthorized, "current password is incorrect")
	}
	if err := s.setPassword(ctx, caller.UserID, next); err != nil {
		return err
	}
	s.emit(caller, EventPasswordChanged)
	return nil
}

func (s *IdentityService) setPassword(ctx context.Context, userID uuid.UUID, raw string) error {
	hash, err := utils.HashPassword(raw)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to hash password", err)
	}
	err = s.Store.RunInTx(ctx, func(tx store.Tx) error {
		return tx.UpdateUser(userID, store.UserFields{Password: &hash, UpdatedAt: s.Now()})
	})
	return store.Translate(err, "user")
}

// EnsureAdmin creates or promotes the bootstrap super admin.
func (s *IdentityService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	role := models.RoleSuperAdmin
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUserByEmail(email)
		if err != nil {
			return err
		}
		if u.Role == role {
			return nil
		}
		return tx.UpdateUser(u.ID, store.UserFields{Role: &role, UpdatedAt: s.Now()})
	})
	if !errors.Is(err, store.ErrNotFound) {
		return store.Translate(err, "user")
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := s.createUser(ctx, "Administrator", email, "", hash, role); err != nil {
		return err
	}
	s.Log.Info("bootstrap admin created", zap.String("email", email))
	return nil
}

// HandleLoginTask is the outbox handler that stores a login with its location.
// A failed geo lookup still stores the login without location.
func (s *IdentityService) HandleLoginTask(ctx context.Context, payload []byte) error {
	var p outbox.LoginActivityPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode login task: %w", err)
	}

	rec := &models.LoginRecord{
		ID:        uuid.New(),
		UserID:    p.UserID,
		IP:        p.IP,
		Device:    p.Device,
		CreatedAt: p.At,
	}
	if s.Geo != nil && p.IP != "" {
		loc, err := s.Geo.Lookup(ctx, p.IP)
		if err != nil {
			s.Log.Debug("geo lookup failed", zap.String("ip", p.IP), zap.Error(err))
		} else {
			rec.City, rec.Region, rec.Country = loc.City, loc.Region, loc.Country
		}
	}

	return s.Store.RunInTx(ctx, func(tx store.Tx) error { return tx.CreateLoginRecord(rec) })
}
