package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/monitoring"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/utils"
)

// Notifier is told about ledger entries after their transaction commits.
type Notifier interface {
	LedgerEntry(entry *models.Transaction)
}

type nopNotifier struct{}

func (nopNotifier) LedgerEntry(*models.Transaction) {}

type WalletService struct {
	Store    store.Store
	Log      *zap.Logger
	Notifier Notifier
	Now      func() time.Time
	Timeout  time.Duration
}

func NewWalletService(st store.Store, log *zap.Logger) *WalletService {
	return &WalletService{
		Store:    st,
		Log:      log,
		Notifier: nopNotifier{},
		Now:      time.Now,
		Timeout:  10 * time.Second,
	}
}

// Entry describes the ledger row booked together with a balance change.
type Entry struct {
	Type           models.TransactionType
	Description    string
	RefType        models.ReferenceType
	RefID          string
	IdempotencyKey string
	Actor          *uuid.UUID
}

func (s *WalletService) newTransaction(userID uuid.UUID, amount decimal.Decimal, status models.TransactionStatus, e Entry) *models.Transaction {
	now := s.Now()
	t := &models.Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          e.Type,
		Amount:        amount,
		Status:        status,
		Description:   e.Description,
		ReferenceType: e.RefType,
		ReferenceID:   e.RefID,
		ReferenceCode: utils.ReceiptCode(now),
		ActorID:       e.Actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if e.IdempotencyKey != "" {
		key := e.IdempotencyKey
		t.IdempotencyKey = &key
	}
	return t
}

// Apply books delta on the user and appends a completed ledger entry of
// delta.Wallet. It must be called within a store transaction; it does not
// check the resulting balance.
func (s *WalletService) Apply(tx store.Tx, userID uuid.UUID, delta models.UserDelta, e Entry) (*models.User, *models.Transaction, error) {
	u, err := tx.ApplyUserDelta(userID, delta)
	if err != nil {
		return nil, nil, store.Translate(err, "user")
	}
	entry := s.newTransaction(userID, delta.Wallet, models.TransactionStatusCompleted, e)
	after := u.Wallet
	entry.BalanceAfter = &after
	if err := tx.CreateTransaction(entry); err != nil {
		return nil, nil, err
	}
	return u, entry, nil
}

// Credit adds amount to the user's wallet and creates a ledger entry.
// This should be called within a store transaction.
func (s *WalletService) Credit(tx store.Tx, userID uuid.UUID, amount decimal.Decimal, e Entry) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation("amount to credit must be greater than zero")
	}
	_, entry, err := s.Apply(tx, userID, models.UserDelta{Wallet: amount}, e)
	return entry, err
}

// Debit deducts amount from the user's wallet and creates a ledger entry.
// The balance is read under lock first so it never goes negative.
func (s *WalletService) Debit(tx store.Tx, userID uuid.UUID, amount decimal.Decimal, e Entry) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation("amount to debit must be greater than zero")
	}
	u, err := tx.GetUser(userID)
	if err != nil {
		return nil, store.Translate(err, "user")
	}
	if u.Wallet.LessThan(amount) {
		return nil, apperr.InsufficientFunds()
	}
	_, entry, err := s.Apply(tx, userID, models.UserDelta{Wallet: amount.Neg()}, e)
	return entry, err
}

// AppendPending records a pending entry that moves no funds until resolved.
func (s *WalletService) AppendPending(tx store.Tx, userID uuid.UUID, amount decimal.Decimal, e Entry) (*models.Transaction, error) {
	entry := s.newTransaction(userID, amount, models.TransactionStatusPending, e)
	if err := tx.CreateTransaction(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Committed publishes entries once their transaction is durable.
func (s *WalletService) Committed(entries ...*models.Transaction) {
	for _, e := range entries {
		if e == nil {
			continue
		}
		monitoring.LedgerEntriesTotal.WithLabelValues(string(e.Type), string(e.Status)).Inc()
		s.Notifier.LedgerEntry(e)
	}
}

func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var balance decimal.Decimal
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		balance = u.Wallet
		return nil
	})
	return balance, store.Translate(err, "user")
}

// AdjustBalance applies a signed admin correction. It is unconditional: a
// negative amount may take the wallet below zero.
func (s *WalletService) AdjustBalance(ctx context.Context, caller auth.Caller, userID uuid.UUID, amount decimal.Decimal, reason string) (*models.Transaction, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, apperr.Validation("adjustment amount must not be zero")
	}
	if reason == "" {
		reason = "Manual balance adjustment"
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var entry *models.Transaction
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetUser(userID); err != nil {
			return err
		}
		var err error
		_, entry, err = s.Apply(tx, userID, models.UserDelta{Wallet: amount}, Entry{
			Type:        models.TrxAdminAdjustment,
			Description: reason,
			Actor:       caller.ActorID(),
		})
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "user")
	}

	s.Log.Info("balance adjusted",
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()),
		zap.Stringer("actor", caller.UserID),
		zap.String("reason", reason))
	s.Committed(entry)
	return entry, nil
}

type Reconciliation struct {
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
	Balanced  bool            `json:"balanced"`
}

// Reconcile compares the wallet with the sum of completed ledger entries.
func (s *WalletService) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var r Reconciliation
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		sum, err := tx.SumCompleted(userID)
		if err != nil {
			return err
		}
		r = Reconciliation{UserID: userID, Balance: u.Wallet, LedgerSum: sum, Balanced: u.Wallet.Equal(sum)}
		return nil
	})
	if err != nil {
		return nil, store.Translate(err, "user")
	}
	if !r.Balanced {
		s.Log.Warn("wallet does not reconcile with ledger",
			zap.String("user_id", userID.String()),
			zap.String("balance", r.Balance.String()),
			zap.String("ledger_sum", r.LedgerSum.String()))
	}
	return &r, nil
}

// ListTransactions returns the caller's ledger, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, caller auth.Caller, typ models.TransactionType, limit int) ([]models.Transaction, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var out []models.Transaction
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListTransactions(store.TransactionQuery{UserID: &caller.UserID, Type: typ, Limit: limit})
		return err
	})
	return out, store.Translate(err, "transaction")
}
