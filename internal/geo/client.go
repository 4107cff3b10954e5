// Package geo enriches events with geolocation/ISP data from the apiip.net
// lookup API. Enrichment is strictly best-effort: a missing IP or credential
// is a deliberate skip, and provider failures degrade to empty fields.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/convrelay/convrelay/internal/logging"
	"github.com/convrelay/convrelay/internal/metrics"
	"github.com/convrelay/convrelay/internal/models"
)

const defaultBaseURL = "https://apiip.net"

// Config holds the geo provider settings.
type Config struct {
	// BaseURL of the provider; defaults to the public apiip.net endpoint.
	BaseURL string

	// AccessKey authenticates with the provider. Empty disables enrichment.
	AccessKey string

	// Timeout bounds each lookup request.
	Timeout time.Duration
}

// Client calls the geo provider. Safe for concurrent use.
type Client struct {
	baseURL    string
	accessKey  string
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a geo client. A zero AccessKey yields a client whose
// Enrich always skips, which keeps the pipeline wiring unconditional.
func NewClient(cfg Config, log *logging.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		accessKey:  cfg.AccessKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// apiipResponse is the subset of the provider response we consume.
type apiipResponse struct {
	City          string   `json:"city"`
	RegionName    string   `json:"regionName"`
	PostalCode    string   `json:"postalCode"`
	CountryCode   string   `json:"countryCode"`
	CountryName   string   `json:"countryName"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	ContinentCode string   `json:"continentCode"`
	ContinentName string   `json:"continentName"`
	Timezone      string   `json:"timezone"`
	Currency      struct {
		Code   string `json:"code"`
		Symbol string `json:"symbol"`
	} `json:"currency"`
	ISP string `json:"isp"`
	ASN any    `json:"asn"`
}

// Enrich looks up ip and returns the mapped geo fields. It returns empty
// fields without a network call when ip or the access key is missing, and
// on any provider error after logging a warning. Never fatal to the caller.
func (c *Client) Enrich(ctx context.Context, ip string) models.GeoFields {
	if ip == "" {
		c.log.DebugContext(ctx, "geo lookup skipped: no client IP")
		metrics.GeoLookups.WithLabelValues("skipped").Inc()
		return models.GeoFields{}
	}
	if c.accessKey == "" {
		c.log.DebugContext(ctx, "geo lookup skipped: access key not configured")
		metrics.GeoLookups.WithLabelValues("skipped").Inc()
		return models.GeoFields{}
	}

	start := time.Now()
	fields, err := c.lookup(ctx, ip)
	metrics.GeoLookupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.WarnContext(ctx, "geo lookup failed", logging.IP(ip), logging.Error(err))
		metrics.GeoLookups.WithLabelValues("error").Inc()
		return models.GeoFields{}
	}

	metrics.GeoLookups.WithLabelValues("ok").Inc()
	return fields
}

func (c *Client) lookup(ctx context.Context, ip string) (models.GeoFields, error) {
	q := url.Values{}
	q.Set("ip", ip)
	q.Set("accessKey", c.accessKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/check?"+q.Encode(), nil)
	if err != nil {
		return models.GeoFields{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.GeoFields{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.GeoFields{}, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var body apiipResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.GeoFields{}, fmt.Errorf("decode response: %w", err)
	}

	return mapResponse(&body), nil
}

// mapResponse converts the provider payload into GeoFields. Absent provider
// fields stay nil; nothing is fabricated.
func mapResponse(r *apiipResponse) models.GeoFields {
	return models.GeoFields{
		City:           optStr(r.City),
		State:          optStr(r.RegionName),
		Zip:            optStr(r.PostalCode),
		Country:        optStr(r.CountryCode),
		CountryName:    optStr(r.CountryName),
		RegionName:     optStr(r.RegionName),
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		ContinentCode:  optStr(r.ContinentCode),
		ContinentName:  optStr(r.ContinentName),
		Timezone:       optStr(r.Timezone),
		CurrencyCode:   optStr(r.Currency.Code),
		CurrencySymbol: optStr(r.Currency.Symbol),
		ISP:            optStr(r.ISP),
		ASN:            parseASN(r.ASN),
	}
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseASN accepts the provider's number or "AS15169"-style string form.
func parseASN(v any) *int64 {
	switch t := v.(type) {
	case float64:
		n := int64(t)
		return &n
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(t), "AS")
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return &n
		}
	}
	return nil
}
