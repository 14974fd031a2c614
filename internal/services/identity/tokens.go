package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrTokenNotFound = errors.New("token not found or expired")

// TokenStore keeps single-use password reset tokens.
type TokenStore interface {
	Put(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error
	// Take returns the owner of token and deletes it.
	Take(ctx context.Context, token string) (uuid.UUID, error)
}

type RedisTokens struct {
	RDB    *redis.Client
	Prefix string
}

func NewRedisTokens(rdb *redis.Client) *RedisTokens {
	return &RedisTokens{RDB: rdb, Prefix: "pwreset:"}
}

func (r *RedisTokens) Put(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	return r.RDB.Set(ctx, r.Prefix+token, userID.String(), ttl).Err()
}

func (r *RedisTokens) Take(ctx context.Context, token string) (uuid.UUID, error) {
	v, err := r.RDB.GetDel(ctx, r.Prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrTokenNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(v)
}

// MemoryTokens is a process-local TokenStore for runs without Redis.
type MemoryTokens struct {
	mu     sync.Mutex
	tokens map[string]memToken
	Now    func() time.Time
}

type memToken struct {
	userID  uuid.UUID
	expires time.Time
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: map[string]memToken{}, Now: time.Now}
}

func (m *MemoryTokens) Put(_ context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = memToken{userID: userID, expires: m.Now().Add(ttl)}
	return nil
}

func (m *MemoryTokens) Take(_ context.Context, token string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	delete(m.tokens, token)
	if !ok || m.Now().After(t.expires) {
		return uuid.Nil, ErrTokenNotFound
	}
	return t.userID, nil
}

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogMailer writes the link to the log instead of sending mail.
type LogMailer struct {
	Log *zap.Logger
}

func (m LogMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.Log.Info("password reset link", zap.String("email", email), zap.String("link", link))
	return nil
}
