// Package store is the persistence boundary of the ledger. Every operation that
// reads and then writes a balance or a status runs inside RunInTx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
	ErrConflict  = errors.New("concurrent write conflict")

	// ErrAlreadyResolved is returned when a pending entry has already been
	// completed or rejected. It is final and never retried.
	ErrAlreadyResolved = errors.New("entry already resolved")
)

// Store runs fn atomically. Implementations retry fn on ErrConflict according to
// their RetryPolicy, so fn must not have side effects outside tx.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the store inside one transaction. Get* methods that are
// followed by writes lock the row until commit.
type Tx interface {
	GetUser(id uuid.UUID) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByReferralCode(code string) (*models.User, error)
	CreateUser(u *models.User) error
	UpdateUser(id uuid.UUID, fields UserFields) error
	ApplyUserDelta(id uuid.UUID, d models.UserDelta) (*models.User, error)
	ListUsers(q UserQuery) ([]models.User, error)
	ListReferrals(referrerID uuid.UUID) ([]models.User, error)
	CountUsers(since *time.Time) (int64, error)

	GetProduct(id uuid.UUID) (*models.Product, error)
	ListProducts(activeOnly bool) ([]models.Product, error)
	CreateProduct(p *models.Product) error
	SaveProduct(p *models.Product) error
	CountProducts() (int64, error)

	CreateInvestment(inv *models.Investment) error
	GetInvestment(id uuid.UUID) (*models.Investment, error)
	SaveInvestment(inv *models.Investment) error
	ListInvestments(q InvestmentQuery) ([]models.Investment, error)
	ListActiveInvestmentIDs() ([]uuid.UUID, error)
	SumInvestmentAmount() (decimal.Decimal, error)
	CountInvestments(since *time.Time) (int64, error)

	CreateTransaction(t *models.Transaction) error
	FindTransactionByReference(refType models.ReferenceType, refID string) (*models.Transaction, error)
	ResolveTransaction(id uuid.UUID, to models.TransactionStatus, balanceAfter *decimal.Decimal) error
	ListTransactions(q TransactionQuery) ([]models.Transaction, error)
	SumCompleted(userID uuid.UUID) (decimal.Decimal, error)

	CreateFundRequest(r *models.FundRequest) error
	GetFundRequest(id uuid.UUID) (*models.FundRequest, error)
	GetFundRequestByGatewayRef(ref string) (*models.FundRequest, error)
	SaveFundRequest(r *models.FundRequest) error
	ListFundRequests(q FundQuery) ([]models.FundRequest, error)
	CountFundRequests(kind models.FundKind, status models.FundStatus) (int64, error)

	CreateCheckIn(c *models.CheckIn) error
	GetCheckIn(id string) (*models.CheckIn, error)

	CreateReferralLink(l *models.ReferralLink) error
	GetReferralLinkByReferred(referredID uuid.UUID) (*models.ReferralLink, error)
	SaveReferralLink(l *models.ReferralLink) error

	GetSetting(key string) (*models.Setting, error)
	PutSetting(s *models.Setting) error

	EnqueueTask(t *models.OutboxTask) error
	ListDueTasks(now time.Time, limit int) ([]models.OutboxTask, error)
	SaveTask(t *models.OutboxTask) error

	CreateLoginRecord(r *models.LoginRecord) error

	Export(c Collection, from, to *time.Time) ([]any, error)
}

// UserFields is a partial update of a user. Nil pointers are left untouched.
type UserFields struct {
	Name       *string
	Phone      *string
	Role       *models.Role
	Status     *models.UserStatus
	ReferredBy *uuid.UUID
	Password   *string
	LastLogin  *time.Time
	UpdatedBy  *uuid.UUID
	UpdatedAt  time.Time
}

// Cursor points at the last row of a page ordered by created_at desc, id desc.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type UserQuery struct {
	After *Cursor
	Limit int
}

type InvestmentQuery struct {
	UserID *uuid.UUID
	Status models.InvestmentStatus
	Limit  int
}

type TransactionQuery struct {
	UserID *uuid.UUID
	Type   models.TransactionType
	Status models.TransactionStatus
	Limit  int
}

type FundQuery struct {
	UserID *uuid.UUID
	Kind   models.FundKind
	Status models.FundStatus
	Limit  int
}

type Collection string

const (
	CollectionUsers        Collection = "users"
	CollectionInvestments  Collection = "investments"
	CollectionTransactions Collection = "transactions"
	CollectionRecharges    Collection = "recharges"
	CollectionWithdrawals  Collection = "withdrawals"
	CollectionCheckIns     Collection = "checkins"
	CollectionProducts     Collection = "products"
)

func ParseCollection(s string) (Collection, bool) {
	switch c := Collection(s); c {
	case CollectionUsers, CollectionInvestments, CollectionTransactions,
		CollectionRecharges, CollectionWithdrawals, CollectionCheckIns, CollectionProducts:
		return c, true
	}
	return "", false
}

// Translate maps store sentinels onto the application error taxonomy. what names
// the entity for NotFound messages. *apperr.Error values pass through untouched.
func Translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound(what)
	case errors.Is(err, ErrConflict):
		return apperr.Wrap(apperr.KindConflict, "concurrent update, please retry", err)
	case errors.Is(err, ErrAlreadyResolved):
		return apperr.Wrap(apperr.KindConflict, what+" was already resolved", err)
	case errors.Is(err, ErrDuplicate):
		return apperr.Wrap(apperr.KindConflict, what+" already exists", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "store timeout", err)
	}
	return apperr.Wrap(apperr.KindInternal, "store error", err)
}
