// Package scheduler drives the daily accrual sweep from a cron expression.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Locker grants a lease so only one instance runs a job at a time. Acquire
// returns an owner token; Release frees the lease only while that token still
// holds it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

type RedisLocker struct {
	RDB *redis.Client
}

// releaseScript deletes the key only if it still carries our token, so a lease
// that expired and was taken over elsewhere is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (l RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.RDB.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (l RedisLocker) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.RDB, []string{key}, token).Err()
}

// LocalLocker serializes jobs within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func (l *LocalLocker) Acquire(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]string{}
	}
	if _, taken := l.held[key]; taken {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// cronLogger routes cron's own messages, including recovered panics, to zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func CronLogger(log *zap.Logger) cron.Logger {
	return cronLogger{log: log.Sugar()}
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

type Job func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	log     *zap.Logger
	timeout time.Duration
}

func New(loc *time.Location, locker Locker, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(CronLogger(log)), cron.WithChain(cron.Recover(CronLogger(log)))),
		locker:  locker,
		log:     log,
		timeout: 30 * time.Minute,
	}
}

// Add registers job under the cron schedule. The job runs only if the lock named name can
// be taken, and always under a deadline.
func (s *Scheduler) Add(schedule, name string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() { s.Run(context.Background(), name, job) })
	return err
}

// Run executes job once under the lock.
func (s *Scheduler) Run(ctx context.Context, name string, job Job) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := "lock:job:" + name
	token, ok, err := s.locker.Acquire(ctx, key, s.timeout)
	if err != nil {
		s.log.Error("job lock failed", zap.String("job", name), zap.Error(err))
		return false
	}
	if !ok {
		s.log.Info("job already running elsewhere", zap.String("job", name))
		return false
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("job unlock failed", zap.String("job", name), zap.Error(err))
		}
	}()

	started := time.Now()
	if err := job(ctx); err != nil {
		s.log.Error("job failed", zap.String("job", name), zap.Duration("took", time.Since(started)), zap.Error(err))
		return true
	}
	s.log.Info("job finished", zap.String("job", name), zap.Duration("took", time.Since(started)))
	return true
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
