package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
)

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/8.8.8.8/json/":
			_, _ = w.Write([]byte(`{"ip":"8.8.8.8","city":"Mountain View","region":"California","country_name":"United States"}`))
		case "/1.1.1.1/json/":
			_, _ = w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient()
	c.BaseURL = srv.URL

	loc, err := c.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "Mountain View", loc.City)
	assert.Equal(t, "United States", loc.Country)

	_, err = c.Lookup(context.Background(), "1.1.1.1")
	assert.Equal(t, apperr.KindUpstreamUnavailable, apperr.KindOf(err))

	_, err = c.Lookup(context.Background(), "9.9.9.9")
	assert.Equal(t, apperr.KindUpstreamUnavailable, apperr.KindOf(err))

	_, err = c.Lookup(context.Background(), "not-an-ip")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLookupSkipsPrivateAddresses(t *testing.T) {
	c := NewClient()
	c.BaseURL = "http://127.0.0.1:1"
	for _, ip := range []string{"127.0.0.1", "10.0.0.5", "192.168.1.20", "::1"} {
		loc, err := c.Lookup(context.Background(), ip)
		require.NoError(t, err, ip)
		assert.Equal(t, ip, loc.IP)
		assert.Empty(t, loc.City)
	}
}
