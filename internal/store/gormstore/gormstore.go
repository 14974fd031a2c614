// Package gormstore is the Postgres Store used in production.
package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
)

type Store struct {
	DB     *gorm.DB
	Policy store.RetryPolicy
}

func New(db *gorm.DB, policy store.RetryPolicy) *Store {
	return &Store{DB: db, Policy: policy}
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.Retry(ctx, s.Policy, func() error {
		err := s.DB.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			return fn(&tx{db: gtx})
		})
		return classify(err)
	})
}

// classify turns driver errors into store sentinels. Serialization failures and
// deadlocks are retryable conflicts.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.ErrDuplicate
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return errors.Join(store.ErrConflict, err)
		case "23505":
			return errors.Join(store.ErrDuplicate, err)
		}
	}
	return err
}

type tx struct {
	db *gorm.DB
}

func (t *tx) locked() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func first[T any](db *gorm.DB, query string, args ...any) (*T, error) {
	var v T
	if err := db.Where(query, args...).First(&v).Error; err != nil {
		return nil, classify(err)
	}
	return &v, nil
}

func limited(db *gorm.DB, n int) *gorm.DB {
	if n > 0 {
		return db.Limit(n)
	}
	return db
}

// ---- users

func (t *tx) GetUser(id uuid.UUID) (*models.User, error) {
	return first[models.User](t.locked(), "id = ?", id)
}

func (t *tx) GetUserByEmail(email string) (*models.User, error) {
	return first[models.User](t.db, "lower(email) = lower(?)", email)
}

func (t *tx) GetUserByReferralCode(code string) (*models.User, error) {
	return first[models.User](t.db, "referral_code = ?", code)
}

func (t *tx) CreateUser(u *models.User) error {
	return classify(t.db.Create(u).Error)
}

func (t *tx) UpdateUser(id uuid.UUID, f store.UserFields) error {
	updates := map[string]any{}
	if f.Name != nil {
		updates["name"] = *f.Name
	}
	if f.Phone != nil {
		updates["phone"] = *f.Phone
	}
	if f.Role != nil {
		updates["role"] = *f.Role
	}
	if f.Status != nil {
		updates["status"] = *f.Status
	}
	if f.ReferredBy != nil {
		updates["referred_by"] = *f.ReferredBy
	}
	if f.Password != nil {
		updates["password"] = *f.Password
	}
	if f.LastLogin != nil {
		updates["last_login"] = *f.LastLogin
	}
	if f.UpdatedBy != nil {
		updates["updated_by"] = *f.UpdatedBy
	}
	if !f.UpdatedAt.IsZero() {
		updates["updated_at"] = f.UpdatedAt
	}
	if len(updates) == 0 {
		return nil
	}
	res := t.db.Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) ApplyUserDelta(id uuid.UUID, d models.UserDelta) (*models.User, error) {
	updates := map[string]any{
		"wallet":           gorm.Expr("wallet + ?", d.Wallet),
		"total_investment": gorm.Expr("total_investment + ?", d.TotalInvestment),
		"total_earnings":   gorm.Expr("total_earnings + ?", d.TotalEarnings),
		"check_in_streak":  gorm.Expr("check_in_streak + ?", d.CheckInStreak),
	}
	if d.LastCheckIn != nil {
		updates["last_check_in"] = *d.LastCheckIn
	}
	res := t.db.Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return first[models.User](t.db, "id = ?", id)
}

func (t *tx) ListUsers(q store.UserQuery) ([]models.User, error) {
	db := t.db.Order("created_at DESC").Order("id DESC")
	if q.After != nil {
		db = db.Where("(created_at, id) < (?, ?)", q.After.CreatedAt, q.After.ID)
	}
	var out []models.User
	return out, classify(limited(db, q.Limit).Find(&out).Error)
}

func (t *tx) ListReferrals(referrerID uuid.UUID) ([]models.User, error) {
	var out []models.User
	err := t.db.Where("referred_by = ?", referrerID).Order("created_at DESC").Find(&out).Error
	return out, classify(err)
}

func (t *tx) CountUsers(since *time.Time) (int64, error) {
	db := t.db.Model(&models.User{})
	if since != nil {
		db = db.Where("created_at >= ?", *since)
	}
	var n int64
	return n, classify(db.Count(&n).Error)
}

// ---- products

func (t *tx) GetProduct(id uuid.UUID) (*models.Product, error) {
	return first[models.Product](t.db, "id = ?", id)
}

func (t *tx) ListProducts(activeOnly bool) ([]models.Product, error) {
	db := t.db.Order("price ASC")
	if activeOnly {
		db = db.Where("active = ?", true)
	}
	var out []models.Product
	return out, classify(db.Find(&out).Error)
}

func (t *tx) CreateProduct(p *models.Product) error {
	return classify(t.db.Create(p).Error)
}

func (t *tx) SaveProduct(p *models.Product) error {
	return classify(t.db.Save(p).Error)
}

func (t *tx) CountProducts() (int64, error) {
	var n int64
	return n, classify(t.db.Model(&models.Product{}).Count(&n).Error)
}

// ---- investments

func (t *tx) CreateInvestment(inv *models.Investment) error {
	return classify(t.db.Create(inv).Error)
}

func (t *tx) GetInvestment(id uuid.UUID) (*models.Investment, error) {
	return first[models.Investment](t.locked(), "id = ?", id)
}

func (t *tx) SaveInvestment(inv *models.Investment) error {
	return classify(t.db.Save(inv).Error)
}

func (t *tx) ListInvestments(q store.InvestmentQuery) ([]models.Investment, error) {
	db := t.db.Order("start_date DESC")
	if q.UserID != nil {
		db = db.Where("user_id = ?", *q.UserID)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	var out []models.Investment
	return out, classify(limited(db, q.Limit).Find(&out).Error)
}

func (t *tx) ListActiveInvestmentIDs() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := t.db.Model(&models.Investment{}).
		Where("status = ?", models.InvestmentStatusActive).
		Order("start_date ASC").
		Pluck("id", &ids).Error
	return ids, classify(err)
}

func (t *tx) SumInvestmentAmount() (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.db.Model(&models.Investment{}).Select("COALESCE(SUM(amount), 0)").Row().Scan(&sum)
	return sum, classify(err)
}

func (t *tx) CountInvestments(since *time.Time) (int64, error) {
	db := t.db.Model(&models.Investment{})
	if since != nil {
		db = db.Where("start_date >= ?", *since)
	}
	var n int64
	return n, classify(db.Count(&n).Error)
}

// ---- ledger

func (t *tx) CreateTransaction(tr *models.Transaction) error {
	return classify(t.db.Create(tr).Error)
}

func (t *tx) FindTransactionByReference(refType models.ReferenceType, refID string) (*models.Transaction, error) {
	return first[models.Transaction](t.locked(), "reference_type = ? AND reference_id = ?", refType, refID)
}

func (t *tx) ResolveTransaction(id uuid.UUID, to models.TransactionStatus, balanceAfter *decimal.Decimal) error {
	res := t.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]any{"status": to, "balance_after": balanceAfter, "updated_at": time.Now()})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := t.db.Model(&models.Transaction{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return classify(err)
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return store.ErrAlreadyResolved
	}
	return nil
}

func (t *tx) ListTransactions(q store.TransactionQuery) ([]models.Transaction, error) {
	db := t.db.Order("created_at DESC").Order("reference_code DESC")
	if q.UserID != nil {
		db = db.Where("user_id = ?", *q.UserID)
	}
	if q.Type != "" {
		db = db.Where("type = ?", q.Type)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	var out []models.Transaction
	return out, classify(limited(db, q.Limit).Find(&out).Error)
}

func (t *tx) SumCompleted(userID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND status = ?", userID, models.TransactionStatusCompleted).
		Row().Scan(&sum)
	return sum, classify(err)
}

// ---- fund requests

func (t *tx) CreateFundRequest(r *models.FundRequest) error {
	return classify(t.db.Create(r).Error)
}

func (t *tx) GetFundRequest(id uuid.UUID) (*models.FundRequest, error) {
	return first[models.FundRequest](t.locked(), "id = ?", id)
}

func (t *tx) GetFundRequestByGatewayRef(ref string) (*models.FundRequest, error) {
	return first[models.FundRequest](t.locked(), "gateway_reference = ?", ref)
}

func (t *tx) SaveFundRequest(r *models.FundRequest) error {
	return classify(t.db.Save(r).Error)
}

func (t *tx) ListFundRequests(q store.FundQuery) ([]models.FundRequest, error) {
	db := t.db.Order("requested_at DESC")
	if q.UserID != nil {
		db = db.Where("user_id = ?", *q.UserID)
	}
	if q.Kind != "" {
		db = db.Where("kind = ?", q.Kind)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	var out []models.FundRequest
	return out, classify(limited(db, q.Limit).Find(&out).Error)
}

func (t *tx) CountFundRequests(kind models.FundKind, status models.FundStatus) (int64, error) {
	db := t.db.Model(&models.FundRequest{}).Where("kind = ?", kind)
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var n int64
	return n, classify(db.Count(&n).Error)
}

// ---- check-ins

func (t *tx) CreateCheckIn(c *models.CheckIn) error {
	return classify(t.db.Create(c).Error)
}

func (t *tx) GetCheckIn(id string) (*models.CheckIn, error) {
	return first[models.CheckIn](t.db, "id = ?", id)
}

// ---- referral links

func (t *tx) CreateReferralLink(l *models.ReferralLink) error {
	return classify(t.db.Create(l).Error)
}

func (t *tx) GetReferralLinkByReferred(referredID uuid.UUID) (*models.ReferralLink, error) {
	return first[models.ReferralLink](t.locked(), "referred_id = ?", referredID)
}

func (t *tx) SaveReferralLink(l *models.ReferralLink) error {
	return classify(t.db.Save(l).Error)
}

// ---- settings

func (t *tx) GetSetting(key string) (*models.Setting, error) {
	return first[models.Setting](t.db, "key = ?", key)
}

func (t *tx) PutSetting(s *models.Setting) error {
	return classify(t.db.Save(s).Error)
}

// ---- outbox

func (t *tx) EnqueueTask(task *models.OutboxTask) error {
	return classify(t.db.Create(task).Error)
}

// ListDueTasks skips rows another worker already holds.
func (t *tx) ListDueTasks(now time.Time, n int) ([]models.OutboxTask, error) {
	var out []models.OutboxTask
	err := limited(t.db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND next_run_at <= ?", models.TaskStatusPending, now).
		Order("next_run_at ASC"), n).
		Find(&out).Error
	return out, classify(err)
}

func (t *tx) SaveTask(task *models.OutboxTask) error {
	return classify(t.db.Save(task).Error)
}

func (t *tx) CreateLoginRecord(r *models.LoginRecord) error {
	return classify(t.db.Create(r).Error)
}

// ---- export

func (t *tx) Export(c store.Collection, from, to *time.Time) ([]any, error) {
	switch c {
	case store.CollectionUsers:
		return exportRows[models.User](t.db, "created_at", from, to)
	case store.CollectionInvestments:
		return exportRows[models.Investment](t.db, "start_date", from, to)
	case store.CollectionTransactions:
		return exportRows[models.Transaction](t.db, "created_at", from, to)
	case store.CollectionRecharges:
		return exportRows[models.FundRequest](t.db.Where("kind = ?", models.FundRecharge), "requested_at", from, to)
	case store.CollectionWithdrawals:
		return exportRows[models.FundRequest](t.db.Where("kind = ?", models.FundWithdrawal), "requested_at", from, to)
	case store.CollectionCheckIns:
		return exportRows[models.CheckIn](t.db, "created_at", from, to)
	case store.CollectionProducts:
		return exportRows[models.Product](t.db, "created_at", from, to)
	}
	return nil, store.ErrNotFound
}

func exportRows[T any](db *gorm.DB, column string, from, to *time.Time) ([]any, error) {
	if from != nil {
		db = db.Where(column+" >= ?", *from)
	}
	if to != nil {
		db = db.Where(column+" <= ?", *to)
	}
	var rows []T
	if err := db.Order(column + " ASC").Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]any, len(rows))
	for i := range rows {
		out[i] = rows[i]
	}
	return out, nil
}
