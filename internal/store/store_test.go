package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/store"
)

func TestRetry(t *testing.T) {
	p := store.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("conflict then success", func(t *testing.T) {
		calls := 0
		err := store.Retry(context.Background(), p, func() error {
			calls++
			if calls < 3 {
				return store.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := store.Retry(context.Background(), p, func() error {
			calls++
			return store.ErrConflict
		})
		require.ErrorIs(t, err, store.ErrConflict)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "gave up after 3 attempts")
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := store.Retry(context.Background(), p, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := store.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}
		err := store.Retry(ctx, slow, func() error { return store.ErrConflict })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTranslate(t *testing.T) {
	validation := apperr.Validation("bad amount")
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{name: "not found", err: store.ErrNotFound, want: apperr.KindNotFound},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", store.ErrNotFound), want: apperr.KindNotFound},
		{name: "conflict", err: store.ErrConflict, want: apperr.KindConflict},
		{name: "duplicate", err: store.ErrDuplicate, want: apperr.KindConflict},
		{name: "already resolved", err: store.ErrAlreadyResolved, want: apperr.KindConflict},
		{name: "timeout", err: context.DeadlineExceeded, want: apperr.KindUpstreamUnavailable},
		{name: "unknown", err: errors.New("disk on fire"), want: apperr.KindInternal},
		{name: "already classified", err: validation, want: apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(store.Translate(tt.err, "product")))
		})
	}

	assert.NoError(t, store.Translate(nil, "product"))
	assert.Same(t, validation, store.Translate(validation, "product"))
	assert.Equal(t, "product not found", apperr.Message(store.Translate(store.ErrNotFound, "product")))
}

func TestParseCollection(t *testing.T) {
	c, ok := store.ParseCollection("withdrawals")
	assert.True(t, ok)
	assert.Equal(t, store.CollectionWithdrawals, c)

	_, ok = store.ParseCollection("sessions")
	assert.False(t, ok)
}
