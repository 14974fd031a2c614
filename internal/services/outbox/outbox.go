// Package outbox runs follow-up work that must not fail the operation that
// scheduled it. Tasks are written in the same store transaction as the primary
// change and executed later by Worker with bounded retries.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/monitoring"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
)

type ReferralBonusPayload struct {
	UserID       uuid.UUID       `json:"user_id"`
	InvestmentID uuid.UUID       `json:"investment_id"`
	Amount       decimal.Decimal `json:"amount"`
}

type LoginActivityPayload struct {
	UserID uuid.UUID `json:"user_id"`
	IP     string    `json:"ip"`
	Device string    `json:"device"`
	At     time.Time `json:"at"`
}

// Enqueue writes a pending task inside tx.
func Enqueue(tx store.Tx, kind models.TaskKind, payload any, now time.Time) (*models.OutboxTask, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	task := &models.OutboxTask{
		ID:        uuid.New(),
		Kind:      kind,
		Payload:   datatypes.JSON(b),
		Status:    models.TaskStatusPending,
		NextRunAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.EnqueueTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Handler executes one task. Returning an error schedules a retry.
type Handler func(ctx context.Context, payload []byte) error

type Worker struct {
	Store       store.Store
	Log         *zap.Logger
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
	BaseBackoff time.Duration
	Lease       time.Duration
	Now         func() time.Time

	mu       sync.RWMutex
	handlers map[models.TaskKind]Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(st store.Store, log *zap.Logger, interval time.Duration, maxAttempts int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		Store:       st,
		Log:         log,
		Interval:    interval,
		MaxAttempts: maxAttempts,
		BatchSize:   50,
		BaseBackoff: 10 * time.Second,
		Lease:       time.Minute,
		Now:         time.Now,
		handlers:    map[models.TaskKind]Handler{},
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (w *Worker) Register(kind models.TaskKind, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

func (w *Worker) handler(kind models.TaskKind) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[kind]
	return h, ok
}

func (w *Worker) backoff(attempts int) time.Duration {
	d := w.BaseBackoff << (attempts - 1)
	if d <= 0 || d > time.Hour {
		d = time.Hour
	}
	return d
}

// claim picks due tasks and pushes their next_run_at forward by the lease so a
// concurrent worker does not pick them again while they run.
func (w *Worker) claim(ctx context.Context) ([]models.OutboxTask, error) {
	var tasks []models.OutboxTask
	err := w.Store.RunInTx(ctx, func(tx store.Tx) error {
		now := w.Now()
		due, err := tx.ListDueTasks(now, w.BatchSize)
		if err != nil {
			return err
		}
		for i := range due {
			due[i].NextRunAt = now.Add(w.Lease)
			due[i].UpdatedAt = now
			if err := tx.SaveTask(&due[i]); err != nil {
				return err
			}
		}
		tasks = due
		return nil
	})
	return tasks, err
}

// RunOnce executes every due task once and returns how many succeeded.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.claim(ctx)
	if err != nil {
		return 0, err
	}

	done := 0
	for i := range tasks {
		task := &tasks[i]
		runErr := w.run(ctx, task)

		now := w.Now()
		task.Attempts++
		task.UpdatedAt = now
		switch {
		case runErr == nil:
			task.Status = models.TaskStatusDone
			task.LastError = ""
			done++
			monitoring.OutboxTasksTotal.WithLabelValues(string(task.Kind), "done").Inc()
		case task.Attempts >= w.MaxAttempts:
			task.Status = models.TaskStatusDead
			task.LastError = runErr.Error()
			monitoring.OutboxTasksTotal.WithLabelValues(string(task.Kind), "dead").Inc()
			w.Log.Error("outbox task dead",
				zap.String("task_id", task.ID.String()),
				zap.String("kind", string(task.Kind)),
				zap.Int("attempts", task.Attempts),
				zap.Error(runErr))
		default:
			task.LastError = runErr.Error()
			task.NextRunAt = now.Add(w.backoff(task.Attempts))
			monitoring.OutboxTasksTotal.WithLabelValues(string(task.Kind), "retry").Inc()
			w.Log.Warn("outbox task failed, will retry",
				zap.String("task_id", task.ID.String()),
				zap.String("kind", string(task.Kind)),
				zap.Int("attempts", task.Attempts),
				zap.Time("next_run_at", task.NextRunAt),
				zap.Error(runErr))
		}

		if err := w.Store.RunInTx(ctx, func(tx store.Tx) error { return tx.SaveTask(task) }); err != nil {
			w.Log.Error("failed to save outbox task", zap.String("task_id", task.ID.String()), zap.Error(err))
		}
	}
	return done, nil
}

func (w *Worker) run(ctx context.Context, task *models.OutboxTask) (err error) {
	h, ok := w.handler(task.Kind)
	if !ok {
		return fmt.Errorf("no handler for task kind %q", task.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return h(ctx, task.Payload)
}

// Start polls for due tasks until Stop is called.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if w.Interval <= 0 {
			w.Interval = time.Second
		}
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()

		w.Log.Info("outbox worker started", zap.Duration("interval", w.Interval))
		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.RunOnce(w.ctx); err != nil && w.ctx.Err() == nil {
					w.Log.Error("outbox poll failed", zap.Error(err))
				}
			}
		}
	}()
}

func (w *Worker) Stop() {
	w.Log.Info("stopping outbox worker")
	w.cancel()
	w.wg.Wait()
}
