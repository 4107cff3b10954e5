// Package seeder generates realistic fake conversion events for local
// development and load testing.
package seeder

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

var eventNames = []string{"Lead", "Purchase", "CompleteRegistration", "Schedule", "Contact"}

// Event produces one fake conversion payload. Every event carries an explicit
// event_id so seeded runs are idempotent across retries.
func Event(now time.Time) map[string]any {
	name := eventNames[gofakeit.Number(0, len(eventNames)-1)]
	fullName := gofakeit.Name()

	event := map[string]any{
		"event_id":    uuid.NewString(),
		"event_name":  name,
		"event_time":  now.Add(-time.Duration(gofakeit.Number(0, 3600)) * time.Second).Unix(),
		"external_id": fmt.Sprintf("seed-%s", gofakeit.Username()),
		"email":       gofakeit.Email(),
		"phone":       gofakeit.Phone(),
		"first_name":  gofakeit.FirstName(),
		"last_name":   gofakeit.LastName(),
		"userAgent":   gofakeit.UserAgent(),
		"lead_data": map[string]any{
			"name":   fullName,
			"cidade": gofakeit.City(),
			"estado": gofakeit.StateAbr(),
			"cep":    gofakeit.Zip(),
			"pais":   "BR",
		},
		"props": map[string]any{
			"utm_source":   gofakeit.RandomString([]string{"instagram", "facebook", "google", "direct"}),
			"utm_campaign": gofakeit.Word(),
		},
	}

	if name == "Purchase" {
		event["value"] = gofakeit.Price(10, 500)
		event["currency"] = "BRL"
		event["content_name"] = gofakeit.ProductName()
	}

	return event
}
