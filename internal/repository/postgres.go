package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convrelay/convrelay/internal/metrics"
	"github.com/convrelay/convrelay/internal/models"
)

// PostgresRepository implements EventStore using a pgx connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to PostgreSQL and verifies the connection.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() { r.pool.Close() }

const insertEventSQL = `
	INSERT INTO events (
		event_id, event_name, event_time,
		fbp, fbc, external_id,
		value, currency, content_name, content_category, product_name,
		user_agent, client_ip_address,
		email, phone, first_name, last_name, instagram, language,
		city, state, zip, country,
		latitude, longitude,
		continent_code, continent_name, country_name, region_name,
		timezone, timezone_offset, currency_code, currency_symbol,
		isp, asn, connection_type,
		is_proxy, is_vpn, is_tor_exit_node, security_threat,
		is_mobile, is_tablet, browser, browser_version, os, platform,
		lead_data, scheduling, props
	) VALUES (
		$1, $2, $3,
		$4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13,
		$14, $15, $16, $17, $18, $19,
		$20, $21, $22, $23,
		$24, $25,
		$26, $27, $28, $29,
		$30, $31, $32, $33,
		$34, $35, $36,
		$37, $38, $39, $40,
		$41, $42, $43, $44, $45, $46,
		$47, $48, $49
	)
	ON CONFLICT (event_id) DO NOTHING
	RETURNING event_id, created_at`

// Insert stores an enriched event. A duplicate event_id resolves to a no-op:
// the existing row is untouched and (nil, nil) is returned. Everything else
// that goes wrong is a fatal error for the job.
func (r *PostgresRepository) Insert(ctx context.Context, event *models.EnrichedEvent) (*StoredEvent, error) {
	raw := &event.Raw

	eventName := raw.DisplayName()
	if eventName == "" {
		eventName = "unknown"
	}

	value := 0.0
	if raw.Value != nil {
		value = *raw.Value
	}
	currency := raw.Currency
	if currency == "" {
		currency = "BRL"
	}

	start := time.Now()
	var stored StoredEvent
	err := r.pool.QueryRow(ctx, insertEventSQL,
		event.EventID, eventName, event.EventTime,
		textOrNil(raw.FBP), textOrNil(raw.FBC), textOrNil(raw.ResolvedExternalID()),
		value, currency, textOrNil(raw.ContentName), textOrNil(raw.ContentCategory), textOrNil(raw.ProductName),
		textOrNil(raw.UserAgent), textOrNil(raw.ClientIPAddress()),
		textOrNil(raw.Email), textOrNil(raw.Phone), textOrNil(raw.FirstName), textOrNil(raw.LastName),
		textOrNil(raw.Instagram), textOrNil(raw.Language),
		coalesce(event.Geo.City, raw.City), coalesce(event.Geo.State, raw.State),
		coalesce(event.Geo.Zip, raw.Zip), coalesce(event.Geo.Country, raw.Country),
		event.Geo.Latitude, event.Geo.Longitude,
		event.Geo.ContinentCode, event.Geo.ContinentName, event.Geo.CountryName,
		coalesce(event.Geo.RegionName, raw.RegionName),
		event.Geo.Timezone, textOrNil(raw.TimezoneOffset), event.Geo.CurrencyCode, event.Geo.CurrencySymbol,
		event.Geo.ISP, event.Geo.ASN, textOrNil(raw.ConnectionType),
		raw.IsProxy, raw.IsVPN, raw.IsTorExitNode, textOrNil(raw.SecurityThreat),
		raw.IsMobile, raw.IsTablet, textOrNil(raw.Browser), textOrNil(raw.BrowserVersion),
		textOrNil(raw.OS), textOrNil(raw.Platform),
		jsonOrNil(raw.LeadData), jsonOrNil(raw.Scheduling), jsonOrNil(raw.Props),
	).Scan(&stored.EventID, &stored.CreatedAt)
	metrics.PersistDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		// ON CONFLICT DO NOTHING yields no row on duplicates, surfacing here
		// as ErrNoRows. That is the idempotent re-delivery path, not a failure.
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.PersistOutcomes.WithLabelValues("duplicate").Inc()
			return nil, nil
		}
		metrics.PersistOutcomes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("insert event %s: %w", event.EventID, err)
	}

	metrics.PersistOutcomes.WithLabelValues("inserted").Inc()
	return &stored, nil
}

// textOrNil maps the empty string to SQL NULL.
func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonOrNil maps an absent object to SQL NULL instead of a JSON null blob.
func jsonOrNil(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	return m
}

// coalesce prefers the geo-resolved value, falling back to the payload's
// own location hint, and NULL when neither is set.
func coalesce(geo *string, hint string) any {
	if geo != nil && *geo != "" {
		return *geo
	}
	return textOrNil(hint)
}
