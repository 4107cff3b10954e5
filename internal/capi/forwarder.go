// Package capi forwards conversion events to the Meta Conversions API.
//
// The forwarder never transmits raw identity or location values: location
// tokens and external ids are normalized and hashed before they cross the
// boundary, while fbp/fbc (opaque browser tokens) and client IP/user agent
// (required in cleartext for matching) pass through.
package capi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/convrelay/convrelay/internal/identity"
	"github.com/convrelay/convrelay/internal/logging"
	"github.com/convrelay/convrelay/internal/metrics"
	"github.com/convrelay/convrelay/internal/models"
	"github.com/convrelay/convrelay/pkg/pii"
)

const (
	defaultGraphURL   = "https://graph.facebook.com"
	defaultAPIVersion = "v24.0"

	// DefaultMaxEventAge is how far back the Conversions API accepts events.
	DefaultMaxEventAge = 7 * 24 * time.Hour
)

// Outcome is the terminal result of a forwarding attempt. Skips are
// successes: they mean the event was deliberately not transmitted.
type Outcome string

const (
	OutcomeSent                Outcome = "sent"
	OutcomeSkippedUnconfigured Outcome = "skipped_unconfigured"
	OutcomeSkippedStale        Outcome = "skipped_stale"
)

// Config holds the Conversions API settings.
type Config struct {
	// GraphURL overrides the Graph API host, mainly for tests.
	GraphURL string

	// APIVersion is the Graph API version path segment.
	APIVersion string

	// PixelID and AccessToken identify the dataset. Forwarding is disabled
	// while either is empty.
	PixelID     string
	AccessToken string

	// TestEventCode routes events to the test console when set.
	TestEventCode string

	// MaxEventAge rejects events older than this before transmission,
	// because the API would reject them anyway.
	MaxEventAge time.Duration

	// Timeout bounds each API request.
	Timeout time.Duration
}

// Forwarder transmits hashed conversion events. Safe for concurrent use.
type Forwarder struct {
	cfg        Config
	httpClient *http.Client
	log        *logging.Logger

	// now is swappable in tests for the staleness check.
	now func() time.Time
}

// NewForwarder creates a forwarder. With PixelID or AccessToken empty every
// Forward call returns OutcomeSkippedUnconfigured, so wiring stays
// unconditional.
func NewForwarder(cfg Config, log *logging.Logger) *Forwarder {
	if cfg.GraphURL == "" {
		cfg.GraphURL = defaultGraphURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.MaxEventAge <= 0 {
		cfg.MaxEventAge = DefaultMaxEventAge
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logging.Default()
	}
	return &Forwarder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
		now:        time.Now,
	}
}

// UserData is the privacy-safe identity projection. The ct/st/zp/country
// fields only ever carry SHA-256 digests of normalized values.
type UserData struct {
	FBP             string `json:"fbp,omitempty"`
	FBC             string `json:"fbc,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
	City            string `json:"ct,omitempty"`
	State           string `json:"st,omitempty"`
	Zip             string `json:"zp,omitempty"`
	Country         string `json:"country,omitempty"`
}

type eventEnvelope struct {
	EventName    string         `json:"event_name"`
	EventTime    int64          `json:"event_time"`
	ActionSource string         `json:"action_source"`
	EventID      string         `json:"event_id"`
	UserData     UserData       `json:"user_data"`
	CustomData   map[string]any `json:"custom_data"`
}

type requestBody struct {
	Data          []eventEnvelope `json:"data"`
	AccessToken   string          `json:"access_token"`
	TestEventCode string          `json:"test_event_code,omitempty"`
}

// Forward builds the hashed payload from the original raw fields plus the
// geo enrichment result and transmits one event envelope.
//
// It returns a skip outcome without transmitting when the API is not
// configured or the event is older than MaxEventAge. A transport failure or
// non-2xx response is an error the job system may retry.
func (f *Forwarder) Forward(ctx context.Context, raw *models.RawEvent, geo models.GeoFields, eventID string, eventTime int64) (Outcome, error) {
	if f.cfg.PixelID == "" || f.cfg.AccessToken == "" {
		metrics.ForwardOutcomes.WithLabelValues(string(OutcomeSkippedUnconfigured)).Inc()
		return OutcomeSkippedUnconfigured, nil
	}

	if age := f.now().Unix() - eventTime; age > int64(f.cfg.MaxEventAge.Seconds()) {
		f.log.WarnContext(ctx, "skipping forward: event too old",
			logging.EventID(eventID), "age_seconds", age)
		metrics.ForwardOutcomes.WithLabelValues(string(OutcomeSkippedStale)).Inc()
		return OutcomeSkippedStale, nil
	}

	eventName := raw.DisplayName()
	if eventName == "" {
		eventName = "custom_event"
	}

	body := requestBody{
		Data: []eventEnvelope{{
			EventName:    eventName,
			EventTime:    eventTime,
			ActionSource: "website",
			EventID:      eventID,
			UserData:     buildUserData(raw, geo),
			CustomData:   buildCustomData(raw),
		}},
		AccessToken:   f.cfg.AccessToken,
		TestEventCode: f.cfg.TestEventCode,
	}

	start := time.Now()
	err := f.send(ctx, &body)
	metrics.ForwardDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ForwardOutcomes.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.ForwardOutcomes.WithLabelValues(string(OutcomeSent)).Inc()
	return OutcomeSent, nil
}

func (f *Forwarder) send(ctx context.Context, body *requestBody) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events",
		strings.TrimRight(f.cfg.GraphURL, "/"), f.cfg.APIVersion, f.cfg.PixelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("conversions api status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// buildUserData assembles the hashed identity projection from the original
// payload and the enrichment result, never from persisted state. Hashes are
// emitted only when the normalized source value is non-empty.
func buildUserData(raw *models.RawEvent, geo models.GeoFields) UserData {
	loc := identity.ExtractLocation(raw, geo)

	return UserData{
		FBP:             raw.FBP,
		FBC:             raw.FBC,
		ExternalID:      pii.Hash(pii.Normalize(raw.ResolvedExternalID())),
		ClientIPAddress: raw.ClientIPAddress(),
		ClientUserAgent: raw.UserAgent,
		City:            pii.Hash(pii.Normalize(loc.City)),
		State:           pii.Hash(pii.Normalize(loc.State)),
		Zip:             pii.Hash(pii.NormalizeAlnum(loc.Zip)),
		Country:         pii.Hash(pii.Normalize(loc.Country)),
	}
}

// buildCustomData passes through the non-identifying commerce fields and any
// free-form props.
func buildCustomData(raw *models.RawEvent) map[string]any {
	custom := make(map[string]any, 4+len(raw.Props))
	if raw.Value != nil {
		custom["value"] = *raw.Value
	}
	if raw.Currency != "" {
		custom["currency"] = raw.Currency
	}
	if raw.ContentName != "" {
		custom["content_name"] = raw.ContentName
	}
	if raw.ContentCategory != "" {
		custom["content_category"] = raw.ContentCategory
	}
	for k, v := range raw.Props {
		custom[k] = v
	}
	return custom
}
