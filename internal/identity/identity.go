// Package identity derives a stable event identifier, a finite event time,
// and a best-effort location from heterogeneous conversion payloads.
package identity

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/convrelay/convrelay/internal/models"
)

// Key synonym lists per location field. Order is significant: lead forms
// localize field names (Portuguese spellings included) and the first present
// value wins.
var (
	cityKeys    = []string{"city", "cidade"}
	stateKeys   = []string{"state", "estado", "region", "region_name", "regionName"}
	countryKeys = []string{"country", "pais", "country_code", "countryCode"}
	zipKeys     = []string{"zip", "zip_code", "postal_code", "postalCode", "cep"}
)

// Location is the resolved city/state/country/zip for an event. Empty string
// means no source supplied the field.
type Location struct {
	City    string
	State   string
	Country string
	Zip     string
}

// PickFirst scans sources in order and, within each source, keys in order,
// returning the first scalar value that is present and non-empty. Both
// orderings are part of the contract; callers declare resolution priority
// by the order they pass.
func PickFirst(sources []map[string]any, keys ...string) string {
	for _, source := range sources {
		if source == nil {
			continue
		}
		for _, key := range keys {
			if s := stringify(source[key]); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		// Objects, arrays, booleans and nil are not usable tokens.
		return ""
	}
}

// ResolveEventTime returns the payload's event_time as unix seconds when it
// parses as a finite number (JSON number or numeric string), otherwise now.
func ResolveEventTime(raw *models.RawEvent, now time.Time) int64 {
	switch v := raw.EventTime.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int64(f)
		}
	}
	return now.Unix()
}

// ResolveEventID returns the caller-supplied event id when present. Otherwise
// it synthesizes "{external_id|anon}_{eventTime}_{name|event_name|event}".
//
// The synthesized id is only as stable as its inputs: two distinct events
// sharing external_id, time and name collide, and retries that re-resolve
// event_time produce fresh ids. Callers needing strict idempotence must
// supply event_id explicitly.
func ResolveEventID(raw *models.RawEvent, eventTime int64) string {
	if id := raw.ResolvedEventID(); id != "" {
		return id
	}

	ext := raw.ResolvedExternalID()
	if ext == "" {
		ext = "anon"
	}
	name := raw.DisplayName()
	if name == "" {
		name = "event"
	}
	return fmt.Sprintf("%s_%d_%s", ext, eventTime, name)
}

// ExtractLocation resolves city/state/country/zip by scanning, in priority
// order: lead_data, lead_data.address, lead_data.location, the top-level
// payload, and finally the geo enrichment result. A lead form's nested
// address overrides flatter guesses; geo data only fills what nothing else
// supplied.
func ExtractLocation(raw *models.RawEvent, geo models.GeoFields) Location {
	sources := []map[string]any{
		raw.LeadData,
		subMap(raw.LeadData, "address"),
		subMap(raw.LeadData, "location"),
		raw.LocationHints(),
		geo.LocationHints(),
	}

	return Location{
		City:    PickFirst(sources, cityKeys...),
		State:   PickFirst(sources, stateKeys...),
		Country: PickFirst(sources, countryKeys...),
		Zip:     PickFirst(sources, zipKeys...),
	}
}

func subMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if nested, ok := m[key].(map[string]any); ok {
		return nested
	}
	return nil
}
