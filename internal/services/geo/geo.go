// Package geo resolves client IPs to a coarse location. Lookups are best effort.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/apperr"
)

type Location struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country_name"`
}

type Client struct {
	HTTP    *http.Client
	BaseURL string
}

func NewClient() *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		BaseURL: "https://ipapi.co",
	}
}

type apiResponse struct {
	Location
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// Lookup returns the location of ip. Private and loopback addresses resolve
// to an empty location without a network call.
func (c *Client) Lookup(ctx context.Context, ip string) (*Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, apperr.Validation("invalid ip address")
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return &Location{IP: ip}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json/", c.BaseURL, ip), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "platfrom-be-invest/1.0")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "geo lookup failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.KindUpstreamUnavailable, "geo lookup returned %d", resp.StatusCode)
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "geo lookup decode", err)
	}
	if out.Error {
		return nil, apperr.New(apperr.KindUpstreamUnavailable, "geo lookup: "+out.Reason)
	}
	if out.IP == "" {
		out.IP = ip
	}
	return &out.Location, nil
}
