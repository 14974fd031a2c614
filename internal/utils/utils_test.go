package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := SignJWT("s3cret", "5b1c7a8e-0000-4000-8000-000000000001", "admin", 5)
	require.NoError(t, err)

	claims, err := ParseJWT("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "5b1c7a8e-0000-4000-8000-000000000001", claims.UserID)
	assert.Equal(t, "admin", claims.Role)

	_, err = ParseJWT("other", token)
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	token, err := SignJWT("s3cret", "u", "user", -1)
	require.NoError(t, err)
	_, err = ParseJWT("s3cret", token)
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "secret1"))
	assert.False(t, CheckPassword(hash, "secret2"))
}

func TestReferralCode(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		c := ReferralCode()
		require.Len(t, c, 9)
		assert.True(t, strings.HasPrefix(c, "CAD"))
		assert.Equal(t, strings.ToUpper(c), c)
		seen[c] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestReceiptCodeSorts(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := ReceiptCode(at)
	b := ReceiptCode(at)
	c := ReceiptCode(at.Add(time.Second))
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestDayKey(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2026-03-01", DayKey(at, time.UTC))
	assert.Equal(t, "2026-03-02", DayKey(at, ist))
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, ist), StartOfDay(at, ist))
}
