// Package funding holds the recharge and withdrawal request queue. Requests are
// created pending together with a pending ledger entry that references them;
// money only moves when an administrator (or the payment gateway) resolves them.
package funding

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/auth"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/tripay"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/services/wallet"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
)

const gatewayPrefix = "tripay:"

// Gateway creates hosted checkouts for recharges.
type Gateway interface {
	Enabled() bool
	CreateCheckout(ctx context.Context, merchantRef string, amount int64, cust tripay.Customer, method string) (*tripay.Checkout, error)
}

type FundingService struct {
	Store   store.Store
	Wallet  *wallet.WalletService
	Gateway Gateway
	Log     *zap.Logger
	Now     func() time.Time
	Timeout time.Duration
}

func NewFundingService(st store.Store, w *wallet.WalletService, gw Gateway, log *zap.Logger) *FundingService {
	return &FundingService{Store: st, Wallet: w, Gateway: gw, Log: log, Now: time.Now, Timeout: 10 * time.Second}
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperr.Validation("amount must have at most two decimals")
	}
	return nil
}

func description(kind models.FundKind, method string) string {
	if kind == models.FundWithdrawal {
		return "Withdrawal via " + method
	}
	return "Recharge via " + method
}

func (s *FundingService) create(ctx context.Context, caller auth.Caller, kind models.FundKind, amount decimal.Decimal, method, details string) (*models.FundRequest, *models.Transaction, error) {
	var (
		req   *models.FundRequest
		entry *models.Transaction
	)
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(caller.UserID)
		if err != nil {
			return store.Translate(err, "user")
		}
		if kind == models.FundWithdrawal && u.Wallet.LessThan(amount) {
			return apperr.InsufficientFunds()
		}

		now := s.Now()
		req = &models.FundRequest{
			ID:          uuid.New(),
			UserID:      caller.UserID,
			Kind:        kind,
			Amount:      amount,
			Method:      method,
			Details:     details,
			Status:      models.FundStatusPending,
			RequestedAt: now,
			UpdatedAt:   now,
		}
		if err := tx.CreateFundRequest(req); err != nil {
			return err
		}

		signed := amount
		if kind == models.FundWithdrawal {
			signed = amount.Neg()
		}
		entry, err = s.Wallet.AppendPending(tx, caller.UserID, signed, wallet.Entry{
			Type:        kind.TransactionType(),
			Description: description(kind, method),
			RefType:     models.RefFundRequest,
			RefID:       req.ID.String(),
		})
		return err
	})
	if err != nil {
		return nil, nil, store.Translate(err, string(kind))
	}
	return req, entry, nil
}

// RequestRecharge queues a top-up. A method of the form "tripay:<CHANNEL>"
// also opens a gateway checkout whose callback resolves the request.
func (s *FundingService) RequestRecharge(ctx context.Context, caller auth.Caller, amount decimal.Decimal, method string) (*models.FundRequest, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, apperr.Validation("method is required")
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	req, entry, err := s.create(ctx, caller, models.FundRecharge, amount, method, "")
	if err != nil {
		return nil, err
	}
	s.Wallet.Committed(entry)
	s.Log.Info("recharge requested",
		zap.String("request_id", req.ID.String()),
		zap.String("user_id", caller.UserID.String()),
		zap.String("amount", amount.String()),
		zap.String("method", method))

	if channel, ok := strings.CutPrefix(method, gatewayPrefix); ok {
		if err := s.openCheckout(ctx, caller, req, channel); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (s *FundingService) openCheckout(ctx context.Context, caller auth.Caller, req *models.FundRequest, channel string) error {
	if s.Gateway == nil || !s.Gateway.Enabled() {
		_, _ = s.resolve(ctx, auth.System, req.ID, models.FundRecharge, false, "payment gateway is not configured")
		return apperr.New(apperr.KindUpstreamUnavailable, "payment gateway is not configured")
	}

	var cust tripay.Customer
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(caller.UserID)
		if err != nil {
			return err
		}
		cust = tripay.Customer{Name: u.DisplayName(), Email: u.Email, Phone: u.Phone}
		return nil
	})
	if err != nil {
		return store.Translate(err, "user")
	}

	co, err := s.Gateway.CreateCheckout(ctx, req.ID.String(), req.Amount.Ceil().IntPart(), cust, channel)
	if err != nil {
		s.Log.Warn("checkout failed", zap.String("request_id", req.ID.String()), zap.Error(err))
		if _, rerr := s.resolve(context.WithoutCancel(ctx), auth.System, req.ID, models.FundRecharge, false, "payment gateway error"); rerr != nil {
			s.Log.Error("failed to reject recharge after checkout error", zap.String("request_id", req.ID.String()), zap.Error(rerr))
		}
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "payment gateway unavailable", err)
	}

	err = s.Store.RunInTx(ctx, func(tx store.Tx) error {
		r, err := tx.GetFundRequest(req.ID)
		if err != nil {
			return err
		}
		r.GatewayReference = co.Reference
		r.CheckoutURL = co.CheckoutURL
		r.UpdatedAt = s.Now()
		*req = *r
		return tx.SaveFundRequest(r)
	})
	return store.Translate(err, "recharge")
}

// RequestWithdrawal queues a payout. The balance is checked now and again on
// approval; nothing is debited until then.
func (s *FundingService) RequestWithdrawal(ctx context.Context, caller auth.Caller, amount decimal.Decimal, method, details string) (*models.FundRequest, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, apperr.Validation("method is required")
	}

	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	req, entry, err := s.create(ctx, caller, models.FundWithdrawal, amount, method, details)
	if err != nil {
		return nil, err
	}
	s.Wallet.Committed(entry)
	s.Log.Info("withdrawal requested",
		zap.String("request_id", req.ID.String()),
		zap.String("user_id", caller.UserID.String()),
		zap.String("amount", amount.String()),
		zap.String("method", method))
	return req, nil
}

func (s *FundingService) ApproveRecharge(ctx context.Context, caller auth.Caller, id uuid.UUID) (*models.FundRequest, error) {
	return s.moderate(ctx, caller, id, models.FundRecharge, true, "")
}

func (s *FundingService) RejectRecharge(ctx context.Context, caller auth.Caller, id uuid.UUID, reason string) (*models.FundRequest, error) {
	return s.moderate(ctx, caller, id, models.FundRecharge, false, reason)
}

func (s *FundingService) ApproveWithdrawal(ctx context.Context, caller auth.Caller, id uuid.UUID) (*models.FundRequest, error) {
	return s.moderate(ctx, caller, id, models.FundWithdrawal, true, "")
}

func (s *FundingService) RejectWithdrawal(ctx context.Context, caller auth.Caller, id uuid.UUID, reason string) (*models.FundRequest, error) {
	return s.moderate(ctx, caller, id, models.FundWithdrawal, false, reason)
}

func (s *FundingService) moderate(ctx context.Context, caller auth.Caller, id uuid.UUID, kind models.FundKind, approve bool, reason string) (*models.FundRequest, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	if !approve && strings.TrimSpace(reason) == "" {
		reason = "Rejected by administrator"
	}
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()
	return s.resolve(ctx, caller, id, kind, approve, reason)
}

// resolve moves a pending request to completed or rejected together with its
// ledger entry. Approving moves the money; a request that is no longer pending
// yields Conflict, so nothing is ever applied twice.
func (s *FundingService) resolve(ctx context.Context, caller auth.Caller, id uuid.UUID, kind models.FundKind, approve bool, reason string) (*models.FundRequest, error) {
	var (
		req   *models.FundRequest
		entry *models.Transaction
	)
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		req, err = tx.GetFundRequest(id)
		if err != nil {
			return store.Translate(err, string(kind))
		}
		if req.Kind != kind {
			return apperr.NotFound(string(kind))
		}
		if req.Status != models.FundStatusPending {
			return apperr.Newf(apperr.KindConflict, "%s already %s", kind, req.Status)
		}

		entry, err = tx.FindTransactionByReference(models.RefFundRequest, req.ID.String())
		if err != nil {
			return store.Translate(err, "ledger entry")
		}

		now := s.Now()
		req.ResolvedAt = &now
		req.ResolvedBy = caller.ActorID()
		req.UpdatedAt = now

		if !approve {
			req.Status = models.FundStatusRejected
			req.RejectionReason = reason
			if err := tx.SaveFundRequest(req); err != nil {
				return err
			}
			entry.Status = models.TransactionStatusRejected
			return tx.ResolveTransaction(entry.ID, models.TransactionStatusRejected, nil)
		}

		delta := req.Amount
		if kind == models.FundWithdrawal {
			u, err := tx.GetUser(req.UserID)
			if err != nil {
				return store.Translate(err, "user")
			}
			if u.Wallet.LessThan(req.Amount) {
				return apperr.InsufficientFunds()
			}
			delta = req.Amount.Neg()
		}

		u, err := tx.ApplyUserDelta(req.UserID, models.UserDelta{Wallet: delta})
		if err != nil {
			return store.Translate(err, "user")
		}
		req.Status = models.FundStatusCompleted
		if err := tx.SaveFundRequest(req); err != nil {
			return err
		}
		after := u.Wallet
		entry.Status = models.TransactionStatusCompleted
		entry.BalanceAfter = &after
		return tx.ResolveTransaction(entry.ID, models.TransactionStatusCompleted, &after)
	})
	if err != nil {
		return nil, store.Translate(err, string(kind))
	}

	s.Log.Info("fund request resolved",
		zap.String("request_id", id.String()),
		zap.String("kind", string(kind)),
		zap.String("status", string(req.Status)),
		zap.String("amount", req.Amount.String()),
		zap.Bool("system", caller.IsSystem()))
	s.Wallet.Committed(entry)
	return req, nil
}

// HandleGatewayCallback resolves the recharge behind a verified gateway
// callback. Repeated callbacks for an already resolved recharge are ignored.
func (s *FundingService) HandleGatewayCallback(ctx context.Context, p tripay.CallbackPayload) error {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var req *models.FundRequest
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		req, err = tx.GetFundRequestByGatewayRef(p.Reference)
		return err
	})
	if err != nil {
		return store.Translate(err, "recharge")
	}
	if req.ID.String() != p.MerchantRef {
		return apperr.Validation("merchant reference mismatch")
	}
	if req.Status != models.FundStatusPending {
		return nil
	}

	switch p.Status {
	case "PAID":
		_, err = s.resolve(ctx, auth.System, req.ID, models.FundRecharge, true, "")
	case "FAILED", "EXPIRED":
		_, err = s.resolve(ctx, auth.System, req.ID, models.FundRecharge, false, "payment "+strings.ToLower(p.Status))
	default:
		s.Log.Info("ignoring gateway status", zap.String("reference", p.Reference), zap.String("status", p.Status))
		return nil
	}
	if apperr.Is(err, apperr.KindConflict) {
		return nil
	}
	return err
}

func (s *FundingService) ListMine(ctx context.Context, caller auth.Caller, kind models.FundKind) ([]models.FundRequest, error) {
	if err := caller.RequireUser(); err != nil {
		return nil, err
	}
	return s.list(ctx, store.FundQuery{UserID: &caller.UserID, Kind: kind, Limit: 100})
}

// List is the admin queue view.
func (s *FundingService) List(ctx context.Context, caller auth.Caller, kind models.FundKind, status models.FundStatus, limit int) ([]models.FundRequest, error) {
	if err := caller.RequireAdmin(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.list(ctx, store.FundQuery{Kind: kind, Status: status, Limit: limit})
}

func (s *FundingService) list(ctx context.Context, q store.FundQuery) ([]models.FundRequest, error) {
	ctx, cancel := store.Bounded(ctx, s.Timeout)
	defer cancel()

	var out []models.FundRequest
	err := s.Store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListFundRequests(q)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return out, store.Translate(err, "request")
}
