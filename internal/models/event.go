// Package models defines the event shapes flowing through the pipeline:
// the raw payload accepted by ingress, the geo enrichment result, and the
// enriched record that gets persisted.
package models

// RawEvent is a conversion event as validated and enqueued by ingress.
// The worker treats it as read-only input: the forwarder must see the
// original unhashed fields, so every derived record is a new value.
//
// Several fields accept both snake_case and camelCase spellings because
// browser pixels and form webhooks disagree on the wire format.
type RawEvent struct {
	Name      string `json:"name,omitempty"`
	EventName string `json:"event_name,omitempty"`

	EventID      string `json:"event_id,omitempty"`
	EventIDCamel string `json:"eventId,omitempty"`

	// EventTime is unix seconds but arrives untyped: it may be absent,
	// a number, or a non-numeric string. identity.ResolveEventTime owns it.
	EventTime any `json:"event_time,omitempty"`

	FBP             string `json:"fbp,omitempty"`
	FBC             string `json:"fbc,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	ExternalIDCamel string `json:"externalId,omitempty"`

	Value           *float64 `json:"value,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	ContentName     string   `json:"content_name,omitempty"`
	ContentCategory string   `json:"content_category,omitempty"`
	ProductName     string   `json:"product_name,omitempty"`

	UserAgent     string `json:"userAgent,omitempty"`
	ClientIP      string `json:"clientIpAddress,omitempty"`
	ClientIPSnake string `json:"client_ip_address,omitempty"`

	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	Language  string `json:"language,omitempty"`

	// Top-level location hints, including the localized and aliased
	// spellings lead forms use. Nested lead_data locations take precedence,
	// see identity.ExtractLocation.
	City             string `json:"city,omitempty"`
	Cidade           string `json:"cidade,omitempty"`
	State            string `json:"state,omitempty"`
	Estado           string `json:"estado,omitempty"`
	Region           string `json:"region,omitempty"`
	RegionName       string `json:"region_name,omitempty"`
	RegionNameCamel  string `json:"regionName,omitempty"`
	Zip              string `json:"zip,omitempty"`
	ZipCode          string `json:"zip_code,omitempty"`
	PostalCode       string `json:"postal_code,omitempty"`
	PostalCodeCamel  string `json:"postalCode,omitempty"`
	CEP              string `json:"cep,omitempty"`
	Country          string `json:"country,omitempty"`
	Pais             string `json:"pais,omitempty"`
	CountryCode      string `json:"country_code,omitempty"`
	CountryCodeCamel string `json:"countryCode,omitempty"`

	// Network, device and security attributes supplied by the client.
	TimezoneOffset string `json:"timezone_offset,omitempty"`
	ConnectionType string `json:"connection_type,omitempty"`
	IsProxy        bool   `json:"is_proxy,omitempty"`
	IsVPN          bool   `json:"is_vpn,omitempty"`
	IsTorExitNode  bool   `json:"is_tor_exit_node,omitempty"`
	SecurityThreat string `json:"security_threat,omitempty"`
	IsMobile       bool   `json:"is_mobile,omitempty"`
	IsTablet       bool   `json:"is_tablet,omitempty"`
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	Platform       string `json:"platform,omitempty"`

	LeadData   map[string]any `json:"lead_data,omitempty"`
	Scheduling map[string]any `json:"scheduling,omitempty"`
	Props      map[string]any `json:"props,omitempty"`
}

// DisplayName returns the event name, preferring "name" over "event_name".
// Empty when neither is set; callers choose their own default.
func (e *RawEvent) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.EventName
}

// ResolvedEventID returns the caller-supplied event id in either spelling.
func (e *RawEvent) ResolvedEventID() string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.EventIDCamel
}

// ResolvedExternalID returns the external id in either spelling.
func (e *RawEvent) ResolvedExternalID() string {
	if e.ExternalID != "" {
		return e.ExternalID
	}
	return e.ExternalIDCamel
}

// ClientIPAddress returns the client IP in either spelling.
func (e *RawEvent) ClientIPAddress() string {
	if e.ClientIP != "" {
		return e.ClientIP
	}
	return e.ClientIPSnake
}

// LocationHints exposes the top-level location fields, under every accepted
// spelling, as a lookup source for identity.PickFirst.
func (e *RawEvent) LocationHints() map[string]any {
	return map[string]any{
		"city":         e.City,
		"cidade":       e.Cidade,
		"state":        e.State,
		"estado":       e.Estado,
		"region":       e.Region,
		"region_name":  e.RegionName,
		"regionName":   e.RegionNameCamel,
		"zip":          e.Zip,
		"zip_code":     e.ZipCode,
		"postal_code":  e.PostalCode,
		"postalCode":   e.PostalCodeCamel,
		"cep":          e.CEP,
		"country":      e.Country,
		"pais":         e.Pais,
		"country_code": e.CountryCode,
		"countryCode":  e.CountryCodeCamel,
	}
}

// GeoFields holds the geolocation/ISP attributes resolved from the client IP.
// Nil means the provider did not return the field; values are never fabricated.
type GeoFields struct {
	City           *string  `json:"city,omitempty"`
	State          *string  `json:"state,omitempty"`
	Zip            *string  `json:"zip,omitempty"`
	Country        *string  `json:"country,omitempty"`
	CountryName    *string  `json:"country_name,omitempty"`
	RegionName     *string  `json:"region_name,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	ContinentCode  *string  `json:"continent_code,omitempty"`
	ContinentName  *string  `json:"continent_name,omitempty"`
	Timezone       *string  `json:"timezone,omitempty"`
	CurrencyCode   *string  `json:"currency_code,omitempty"`
	CurrencySymbol *string  `json:"currency_symbol,omitempty"`
	ISP            *string  `json:"isp,omitempty"`
	ASN            *int64   `json:"asn,omitempty"`
}

// LocationHints exposes the resolved geo fields as the lowest-priority
// lookup source for identity.PickFirst.
func (g GeoFields) LocationHints() map[string]any {
	m := make(map[string]any, 5)
	if g.City != nil {
		m["city"] = *g.City
	}
	if g.State != nil {
		m["state"] = *g.State
	}
	if g.Zip != nil {
		m["zip"] = *g.Zip
	}
	if g.Country != nil {
		m["country"] = *g.Country
	}
	if g.RegionName != nil {
		m["region_name"] = *g.RegionName
	}
	return m
}

// EnrichedEvent is the record the pipeline persists: the raw payload plus a
// resolved identity and the geo enrichment result. EventTime is always a
// finite unix-seconds value once constructed. Never mutated after the
// persistence attempt.
type EnrichedEvent struct {
	Raw       RawEvent
	EventID   string
	EventTime int64
	Geo       GeoFields
}
