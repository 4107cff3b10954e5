package capi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/convrelay/convrelay/internal/models"
	"github.com/convrelay/convrelay/pkg/pii"
)

func newTestForwarder(t *testing.T, handler http.HandlerFunc) (*Forwarder, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fwd := NewForwarder(Config{
		GraphURL:      server.URL,
		PixelID:       "pixel123",
		AccessToken:   "token456",
		TestEventCode: "TEST999",
	}, nil)
	fwd.now = func() time.Time { return time.Unix(1700000100, 0) }
	return fwd, server
}

func sampleEvent() *models.RawEvent {
	value := 150.0
	return &models.RawEvent{
		EventName:  "Lead",
		FBP:        "fb.1.123.456",
		FBC:        "fb.1.123.789",
		ExternalID: "User-42",
		Value:      &value,
		Currency:   "BRL",
		UserAgent:  "Mozilla/5.0",
		ClientIP:   "203.0.113.7",
		LeadData: map[string]any{
			"city":    "Rio de Janeiro",
			"estado":  "RJ",
			"cep":     "22041-001",
			"country": "BR",
		},
		Props: map[string]any{"utm_source": "instagram"},
	}
}

func TestForwarder_Forward_SkipsWhenUnconfigured(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	fwd := NewForwarder(Config{GraphURL: server.URL}, nil)

	outcome, err := fwd.Forward(context.Background(), sampleEvent(), models.GeoFields{}, "evt-1", 1700000000)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if outcome != OutcomeSkippedUnconfigured {
		t.Errorf("Forward() outcome = %q, want %q", outcome, OutcomeSkippedUnconfigured)
	}
	if calls != 0 {
		t.Errorf("API called %d times, want 0", calls)
	}
}

func TestForwarder_Forward_SkipsStaleEvents(t *testing.T) {
	calls := 0
	fwd, _ := newTestForwarder(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	// now is pinned to 1700000100; anything more than 7 days older is stale.
	stale := int64(1700000100) - int64((7*24*time.Hour).Seconds()) - 1

	outcome, err := fwd.Forward(context.Background(), sampleEvent(), models.GeoFields{}, "evt-old", stale)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if outcome != OutcomeSkippedStale {
		t.Errorf("Forward() outcome = %q, want %q", outcome, OutcomeSkippedStale)
	}
	if calls != 0 {
		t.Errorf("API called %d times, want 0", calls)
	}
}

func TestForwarder_Forward_SendsHashedPayload(t *testing.T) {
	var (
		gotPath string
		gotBody []byte
	)
	fwd, _ := newTestForwarder(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"events_received":1}`))
	})

	outcome, err := fwd.Forward(context.Background(), sampleEvent(), models.GeoFields{}, "evt-2", 1700000000)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if outcome != OutcomeSent {
		t.Fatalf("Forward() outcome = %q, want %q", outcome, OutcomeSent)
	}
	if gotPath != "/v24.0/pixel123/events" {
		t.Errorf("request path = %q, want /v24.0/pixel123/events", gotPath)
	}

	var body requestBody
	if err := json.Unmarshal(gotBody, &body); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	if body.AccessToken != "token456" {
		t.Errorf("access_token = %q, want token456", body.AccessToken)
	}
	if body.TestEventCode != "TEST999" {
		t.Errorf("test_event_code = %q, want TEST999", body.TestEventCode)
	}
	if len(body.Data) != 1 {
		t.Fatalf("data length = %d, want 1", len(body.Data))
	}

	event := body.Data[0]
	if event.EventName != "Lead" || event.EventID != "evt-2" || event.EventTime != 1700000000 {
		t.Errorf("envelope = %+v, want Lead/evt-2/1700000000", event)
	}
	if event.ActionSource != "website" {
		t.Errorf("action_source = %q, want website", event.ActionSource)
	}

	ud := event.UserData
	if ud.City != pii.Hash(pii.Normalize("Rio de Janeiro")) {
		t.Errorf("ct = %q, want hash of normalized city", ud.City)
	}
	if ud.State != pii.Hash(pii.Normalize("RJ")) {
		t.Errorf("st = %q, want hash of normalized state", ud.State)
	}
	if ud.Zip != pii.Hash("22041001") {
		t.Errorf("zp = %q, want hash of digits-only zip", ud.Zip)
	}
	if ud.Country != pii.Hash(pii.Normalize("BR")) {
		t.Errorf("country = %q, want hash of normalized country", ud.Country)
	}
	if ud.ExternalID != pii.Hash(pii.Normalize("User-42")) {
		t.Errorf("external_id = %q, want hash of normalized external id", ud.ExternalID)
	}
	if ud.FBP != "fb.1.123.456" || ud.FBC != "fb.1.123.789" {
		t.Errorf("fbp/fbc = %q/%q, want passthrough", ud.FBP, ud.FBC)
	}
	if ud.ClientIPAddress != "203.0.113.7" || ud.ClientUserAgent != "Mozilla/5.0" {
		t.Errorf("ip/ua = %q/%q, want cleartext passthrough", ud.ClientIPAddress, ud.ClientUserAgent)
	}

	// No raw location token may survive anywhere in the wire payload.
	raw := string(gotBody)
	for _, leak := range []string{"Rio", "RJ", "22041"} {
		if strings.Contains(raw, leak) {
			t.Errorf("payload leaks plaintext %q", leak)
		}
	}

	if event.CustomData["value"] != 150.0 {
		t.Errorf("custom_data.value = %v, want 150", event.CustomData["value"])
	}
	if event.CustomData["currency"] != "BRL" {
		t.Errorf("custom_data.currency = %v, want BRL", event.CustomData["currency"])
	}
	if event.CustomData["utm_source"] != "instagram" {
		t.Errorf("custom_data.utm_source = %v, want instagram", event.CustomData["utm_source"])
	}
}

func TestForwarder_Forward_GeoFallbackWhenPayloadHasNoLocation(t *testing.T) {
	var gotBody []byte
	fwd, _ := newTestForwarder(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{}`))
	})

	event := sampleEvent()
	event.LeadData = nil

	city := "São Paulo"
	geo := models.GeoFields{City: &city}

	if _, err := fwd.Forward(context.Background(), event, geo, "evt-3", 1700000000); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	var body requestBody
	if err := json.Unmarshal(gotBody, &body); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	ud := body.Data[0].UserData
	if ud.City != pii.Hash("sao paulo") {
		t.Errorf("ct = %q, want hash of accent-folded geo city", ud.City)
	}
	if ud.State != "" || ud.Zip != "" {
		t.Errorf("st/zp = %q/%q, want omitted when no source value", ud.State, ud.Zip)
	}
}

func TestForwarder_Forward_APIErrorIsRetryable(t *testing.T) {
	fwd, _ := newTestForwarder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	})

	outcome, err := fwd.Forward(context.Background(), sampleEvent(), models.GeoFields{}, "evt-4", 1700000000)
	if err == nil {
		t.Fatal("Forward() error = nil, want non-nil on 500")
	}
	if outcome != "" {
		t.Errorf("Forward() outcome = %q, want empty on error", outcome)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error %q does not mention status code", err)
	}
}

func TestForwarder_Forward_DefaultEventName(t *testing.T) {
	var gotBody []byte
	fwd, _ := newTestForwarder(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{}`))
	})

	event := sampleEvent()
	event.EventName = ""
	event.Name = ""

	if _, err := fwd.Forward(context.Background(), event, models.GeoFields{}, "evt-5", 1700000000); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	var body requestBody
	if err := json.Unmarshal(gotBody, &body); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	if got := body.Data[0].EventName; got != "custom_event" {
		t.Errorf("event_name = %q, want custom_event", got)
	}
}
