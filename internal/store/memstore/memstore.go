// Package memstore is an in-process Store. Transactions are serialized by one
// mutex and applied copy-on-commit, so a failing fn leaves no trace.
package memstore

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
)

type state struct {
	users        map[uuid.UUID]models.User
	products     map[uuid.UUID]models.Product
	investments  map[uuid.UUID]models.Investment
	transactions map[uuid.UUID]models.Transaction
	funds        map[uuid.UUID]models.FundRequest
	checkins     map[string]models.CheckIn
	links        map[uuid.UUID]models.ReferralLink
	settings     map[string]models.Setting
	tasks        map[uuid.UUID]models.OutboxTask
	logins       map[uuid.UUID]models.LoginRecord
}

func newState() *state {
	return &state{
		users:        map[uuid.UUID]models.User{},
		products:     map[uuid.UUID]models.Product{},
		investments:  map[uuid.UUID]models.Investment{},
		transactions: map[uuid.UUID]models.Transaction{},
		funds:        map[uuid.UUID]models.FundRequest{},
		checkins:     map[string]models.CheckIn{},
		links:        map[uuid.UUID]models.ReferralLink{},
		settings:     map[string]models.Setting{},
		tasks:        map[uuid.UUID]models.OutboxTask{},
		logins:       map[uuid.UUID]models.LoginRecord{},
	}
}

func (s *state) clone() *state {
	return &state{
		users:        maps.Clone(s.users),
		products:     maps.Clone(s.products),
		investments:  maps.Clone(s.investments),
		transactions: maps.Clone(s.transactions),
		funds:        maps.Clone(s.funds),
		checkins:     maps.Clone(s.checkins),
		links:        maps.Clone(s.links),
		settings:     maps.Clone(s.settings),
		tasks:        maps.Clone(s.tasks),
		logins:       maps.Clone(s.logins),
	}
}

type Store struct {
	mu        sync.Mutex
	st        *state
	policy    store.RetryPolicy
	conflicts int
}

func New() *Store {
	return &Store{st: newState(), policy: store.DefaultRetryPolicy()}
}

// WithRetryPolicy replaces the conflict retry policy.
func (s *Store) WithRetryPolicy(p store.RetryPolicy) *Store {
	s.policy = p
	return s
}

// InjectConflicts makes the next n transaction attempts fail with ErrConflict
// before fn runs.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	s.conflicts = n
	s.mu.Unlock()
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return store.Retry(ctx, s.policy, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conflicts > 0 {
			s.conflicts--
			return store.ErrConflict
		}
		work := s.st.clone()
		if err := fn(&tx{st: work}); err != nil {
			return err
		}
		s.st = work
		return nil
	})
}

type tx struct {
	st *state
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func limit[T any](xs []T, n int) []T {
	if n > 0 && len(xs) > n {
		return xs[:n]
	}
	return xs
}

// ---- users

func (t *tx) GetUser(id uuid.UUID) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (t *tx) GetUserByEmail(email string) (*models.User, error) {
	for _, u := range t.st.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) GetUserByReferralCode(code string) (*models.User, error) {
	for _, u := range t.st.users {
		if u.ReferralCode == code {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) CreateUser(u *models.User) error {
	if _, ok := t.st.users[u.ID]; ok {
		return store.ErrDuplicate
	}
	for _, o := range t.st.users {
		if strings.EqualFold(o.Email, u.Email) || o.ReferralCode == u.ReferralCode {
			return store.ErrDuplicate
		}
	}
	t.st.users[u.ID] = *u
	return nil
}

func (t *tx) UpdateUser(id uuid.UUID, f store.UserFields) error {
	u, ok := t.st.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if f.Name != nil {
		u.Name = *f.Name
	}
	if f.Phone != nil {
		u.Phone = *f.Phone
	}
	if f.Role != nil {
		u.Role = *f.Role
	}
	if f.Status != nil {
		u.Status = *f.Status
	}
	if f.ReferredBy != nil {
		ref := *f.ReferredBy
		u.ReferredBy = &ref
	}
	if f.Password != nil {
		u.Password = *f.Password
	}
	if f.LastLogin != nil {
		ll := *f.LastLogin
		u.LastLogin = &ll
	}
	if f.UpdatedBy != nil {
		by := *f.UpdatedBy
		u.UpdatedBy = &by
	}
	if !f.UpdatedAt.IsZero() {
		u.UpdatedAt = f.UpdatedAt
	}
	t.st.users[id] = u
	return nil
}

func (t *tx) ApplyUserDelta(id uuid.UUID, d models.UserDelta) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.Wallet = u.Wallet.Add(d.Wallet)
	u.TotalInvestment = u.TotalInvestment.Add(d.TotalInvestment)
	u.TotalEarnings = u.TotalEarnings.Add(d.TotalEarnings)
	u.CheckInStreak += d.CheckInStreak
	if d.LastCheckIn != nil {
		lc := *d.LastCheckIn
		u.LastCheckIn = &lc
	}
	t.st.users[id] = u
	return &u, nil
}

func sortUsersDesc(us []models.User) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].CreatedAt.Equal(us[j].CreatedAt) {
			return us[i].ID.String() > us[j].ID.String()
		}
		return us[i].CreatedAt.After(us[j].CreatedAt)
	})
}

func (t *tx) ListUsers(q store.UserQuery) ([]models.User, error) {
	var out []models.User
	for _, u := range t.st.users {
		if q.After != nil {
			c := q.After
			older := u.CreatedAt.Before(c.CreatedAt) ||
				(u.CreatedAt.Equal(c.CreatedAt) && u.ID.String() < c.ID.String())
			if !older {
				continue
			}
		}
		out = append(out, u)
	}
	sortUsersDesc(out)
	return limit(out, q.Limit), nil
}

func (t *tx) ListReferrals(referrerID uuid.UUID) ([]models.User, error) {
	var out []models.User
	for _, u := range t.st.users {
		if u.ReferredBy != nil && *u.ReferredBy == referrerID {
			out = append(out, u)
		}
	}
	sortUsersDesc(out)
	return out, nil
}

func (t *tx) CountUsers(since *time.Time) (int64, error) {
	var n int64
	for _, u := range t.st.users {
		if inRange(u.CreatedAt, since, nil) {
			n++
		}
	}
	return n, nil
}

// ---- products

func (t *tx) GetProduct(id uuid.UUID) (*models.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *tx) ListProducts(activeOnly bool) ([]models.Product, error) {
	var out []models.Product
	for _, p := range t.st.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

func (t *tx) CreateProduct(p *models.Product) error {
	if _, ok := t.st.products[p.ID]; ok {
		return store.ErrDuplicate
	}
	t.st.products[p.ID] = *p
	return nil
}

func (t *tx) SaveProduct(p *models.Product) error {
	if _, ok := t.st.products[p.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.products[p.ID] = *p
	return nil
}

func (t *tx) CountProducts() (int64, error) {
	return int64(len(t.st.products)), nil
}

// ---- investments

func (t *tx) CreateInvestment(inv *models.Investment) error {
	if _, ok := t.st.investments[inv.ID]; ok {
		return store.ErrDuplicate
	}
	t.st.investments[inv.ID] = *inv
	return nil
}

func (t *tx) GetInvestment(id uuid.UUID) (*models.Investment, error) {
	inv, ok := t.st.investments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (t *tx) SaveInvestment(inv *models.Investment) error {
	if _, ok := t.st.investments[inv.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *inv
	cp.OwnerName = ""
	t.st.investments[inv.ID] = cp
	return nil
}

func (t *tx) ListInvestments(q store.InvestmentQuery) ([]models.Investment, error) {
	var out []models.Investment
	for _, inv := range t.st.investments {
		if q.UserID != nil && inv.UserID != *q.UserID {
			continue
		}
		if q.Status != "" && inv.Status != q.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return limit(out, q.Limit), nil
}

func (t *tx) ListActiveInvestmentIDs() ([]uuid.UUID, error) {
	var out []models.Investment
	for _, inv := range t.st.investments {
		if inv.Status == models.InvestmentStatusActive {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	ids := make([]uuid.UUID, len(out))
	for i, inv := range out {
		ids[i] = inv.ID
	}
	return ids, nil
}

func (t *tx) SumInvestmentAmount() (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, inv := range t.st.investments {
		sum = sum.Add(inv.Amount)
	}
	return sum, nil
}

func (t *tx) CountInvestments(since *time.Time) (int64, error) {
	var n int64
	for _, inv := range t.st.investments {
		if inRange(inv.StartDate, since, nil) {
			n++
		}
	}
	return n, nil
}

// ---- ledger

func (t *tx) CreateTransaction(tr *models.Transaction) error {
	if _, ok := t.st.transactions[tr.ID]; ok {
		return store.ErrDuplicate
	}
	if tr.IdempotencyKey != nil {
		for _, o := range t.st.transactions {
			if o.IdempotencyKey != nil && *o.IdempotencyKey == *tr.IdempotencyKey {
				return store.ErrDuplicate
			}
		}
	}
	t.st.transactions[tr.ID] = *tr
	return nil
}

func (t *tx) FindTransactionByReference(refType models.ReferenceType, refID string) (*models.Transaction, error) {
	for _, tr := range t.st.transactions {
		if tr.ReferenceType == refType && tr.ReferenceID == refID {
			return &tr, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) ResolveTransaction(id uuid.UUID, to models.TransactionStatus, balanceAfter *decimal.Decimal) error {
	tr, ok := t.st.transactions[id]
	if !ok {
		return store.ErrNotFound
	}
	if tr.Status != models.TransactionStatusPending {
		return store.ErrAlreadyResolved
	}
	tr.Status = to
	tr.BalanceAfter = balanceAfter
	t.st.transactions[id] = tr
	return nil
}

func (t *tx) ListTransactions(q store.TransactionQuery) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tr := range t.st.transactions {
		if q.UserID != nil && tr.UserID != *q.UserID {
			continue
		}
		if q.Type != "" && tr.Type != q.Type {
			continue
		}
		if q.Status != "" && tr.Status != q.Status {
			continue
		}
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ReferenceCode > out[j].ReferenceCode
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return limit(out, q.Limit), nil
}

func (t *tx) SumCompleted(userID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tr := range t.st.transactions {
		if tr.UserID == userID && tr.Status == models.TransactionStatusCompleted {
			sum = sum.Add(tr.Amount)
		}
	}
	return sum, nil
}

// ---- fund requests

func (t *tx) CreateFundRequest(r *models.FundRequest) error {
	if _, ok := t.st.funds[r.ID]; ok {
		return store.ErrDuplicate
	}
	t.st.funds[r.ID] = *r
	return nil
}

func (t *tx) GetFundRequest(id uuid.UUID) (*models.FundRequest, error) {
	r, ok := t.st.funds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (t *tx) GetFundRequestByGatewayRef(ref string) (*models.FundRequest, error) {
	for _, r := range t.st.funds {
		if ref != "" && r.GatewayReference == ref {
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) SaveFundRequest(r *models.FundRequest) error {
	if _, ok := t.st.funds[r.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.funds[r.ID] = *r
	return nil
}

func (t *tx) ListFundRequests(q store.FundQuery) ([]models.FundRequest, error) {
	var out []models.FundRequest
	for _, r := range t.st.funds {
		if q.UserID != nil && r.UserID != *q.UserID {
			continue
		}
		if q.Kind != "" && r.Kind != q.Kind {
			continue
		}
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return limit(out, q.Limit), nil
}

func (t *tx) CountFundRequests(kind models.FundKind, status models.FundStatus) (int64, error) {
	var n int64
	for _, r := range t.st.funds {
		if r.Kind == kind && (status == "" || r.Status == status) {
			n++
		}
	}
	return n, nil
}

// ---- check-ins

func (t *tx) CreateCheckIn(c *models.CheckIn) error {
	if _, ok := t.st.checkins[c.ID]; ok {
		return store.ErrDuplicate
	}
	t.st.checkins[c.ID] = *c
	return nil
}

func (t *tx) GetCheckIn(id string) (*models.CheckIn, error) {
	c, ok := t.st.checkins[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

// ---- referral links

func (t *tx) CreateReferralLink(l *models.ReferralLink) error {
	for _, o := range t.st.links {
		if o.ReferredID == l.ReferredID {
			return store.ErrDuplicate
		}
	}
	t.st.links[l.ID] = *l
	return nil
}

func (t *tx) GetReferralLinkByReferred(referredID uuid.UUID) (*models.ReferralLink, error) {
	for _, l := range t.st.links {
		if l.ReferredID == referredID {
			return &l, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) SaveReferralLink(l *models.ReferralLink) error {
	if _, ok := t.st.links[l.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.links[l.ID] = *l
	return nil
}

// ---- settings

func (t *tx) GetSetting(key string) (*models.Setting, error) {
	s, ok := t.st.settings[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (t *tx) PutSetting(s *models.Setting) error {
	t.st.settings[s.Key] = *s
	return nil
}

// ---- outbox

func (t *tx) EnqueueTask(task *models.OutboxTask) error {
	if _, ok := t.st.tasks[task.ID]; ok {
		return store.ErrDuplicate
	}
	t.st.tasks[task.ID] = *task
	return nil
}

func (t *tx) ListDueTasks(now time.Time, n int) ([]models.OutboxTask, error) {
	var out []models.OutboxTask
	for _, task := range t.st.tasks {
		if task.Status == models.TaskStatusPending && !task.NextRunAt.After(now) {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(out[j].NextRunAt) })
	return limit(out, n), nil
}

func (t *tx) SaveTask(task *models.OutboxTask) error {
	if _, ok := t.st.tasks[task.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.tasks[task.ID] = *task
	return nil
}

func (t *tx) CreateLoginRecord(r *models.LoginRecord) error {
	t.st.logins[r.ID] = *r
	return nil
}

// ---- export

func (t *tx) Export(c store.Collection, from, to *time.Time) ([]any, error) {
	var out []any
	switch c {
	case store.CollectionUsers:
		for _, u := range t.st.users {
			if inRange(u.CreatedAt, from, to) {
				out = append(out, u)
			}
		}
	case store.CollectionInvestments:
		for _, inv := range t.st.investments {
			if inRange(inv.StartDate, from, to) {
				out = append(out, inv)
			}
		}
	case store.CollectionTransactions:
		for _, tr := range t.st.transactions {
			if inRange(tr.CreatedAt, from, to) {
				out = append(out, tr)
			}
		}
	case store.CollectionRecharges, store.CollectionWithdrawals:
		kind := models.FundRecharge
		if c == store.CollectionWithdrawals {
			kind = models.FundWithdrawal
		}
		for _, r := range t.st.funds {
			if r.Kind == kind && inRange(r.RequestedAt, from, to) {
				out = append(out, r)
			}
		}
	case store.CollectionCheckIns:
		for _, ci := range t.st.checkins {
			if inRange(ci.CreatedAt, from, to) {
				out = append(out, ci)
			}
		}
	case store.CollectionProducts:
		for _, p := range t.st.products {
			if inRange(p.CreatedAt, from, to) {
				out = append(out, p)
			}
		}
	default:
		return nil, store.ErrNotFound
	}
	return out, nil
}
