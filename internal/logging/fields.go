package logging

import "log/slog"

// Common field names for consistent logging across the ingress and worker.
const (
	FieldService  = "service"
	FieldEventID  = "event_id"
	FieldEvent    = "event_name"
	FieldIP       = "ip"
	FieldOutcome  = "outcome"
	FieldError    = "error"
	FieldDuration = "duration_ms"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventName returns a slog attribute for the event name.
func EventName(name string) slog.Attr {
	return slog.String(FieldEvent, name)
}

// IP returns a slog attribute for a client IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Outcome returns a slog attribute for a pipeline stage outcome.
func Outcome(v string) slog.Attr {
	return slog.String(FieldOutcome, v)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}
