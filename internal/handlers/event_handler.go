// Package handlers implements the ingress HTTP API.
package handlers

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/convrelay/convrelay/internal/logging"
	"github.com/convrelay/convrelay/internal/messaging"
	"github.com/convrelay/convrelay/internal/metrics"
	"github.com/convrelay/convrelay/internal/ratelimit"
)

// maxBodySize caps event payloads at 1MB.
const maxBodySize = 1 << 20

// EventHandler accepts conversion events and enqueues them durably.
type EventHandler struct {
	publisher messaging.Publisher
	limiter   ratelimit.RateLimiter
	apiKey    string
	log       *logging.Logger
}

// NewEventHandler creates the handler. An empty apiKey disables
// authentication with a startup warning rather than rejecting traffic.
func NewEventHandler(publisher messaging.Publisher, limiter ratelimit.RateLimiter, apiKey string, log *logging.Logger) *EventHandler {
	if log == nil {
		log = logging.Default()
	}
	h := &EventHandler{
		publisher: publisher,
		limiter:   limiter,
		apiKey:    apiKey,
		log:       log,
	}
	if apiKey == "" {
		h.log.Warn("api key not configured, authentication disabled")
	}
	return h
}

type apiResponse struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Details []string `json:"details,omitempty"`
}

// HandleTrack accepts POST /api/event. The payload is validated, stamped with
// the caller's user agent and IP, and enqueued; a 202 means the event is
// durably queued, not yet processed.
func (h *EventHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	clientIP := getClientIP(r)

	allowed, err := h.limiter.Allow(ctx, clientIP)
	if err != nil {
		// Admission must not depend on Redis availability.
		h.log.WarnContext(ctx, "rate limiter unavailable, admitting request",
			logging.IP(clientIP), logging.FieldError, err.Error())
	} else if !allowed {
		metrics.EventsReceived.WithLabelValues("rate_limited").Inc()
		h.sendError(w, http.StatusTooManyRequests, "too many requests, please try again later")
		return
	}

	if !h.authorized(r) {
		metrics.EventsReceived.WithLabelValues("unauthorized").Inc()
		h.sendError(w, http.StatusUnauthorized, "unauthorized - invalid api key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		metrics.EventsReceived.WithLabelValues("invalid").Inc()
		h.sendError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	payload = transformFilloutPayload(payload)

	if errs := validateEvent(payload); len(errs) > 0 {
		metrics.EventsReceived.WithLabelValues("invalid").Inc()
		h.log.WarnContext(ctx, "validation failed", "details", strings.Join(errs, "; "))
		h.sendJSON(w, http.StatusBadRequest, apiResponse{
			OK: false, Error: "validation failed", Details: errs,
		})
		return
	}

	// The request's own transport facts win over whatever the body claims.
	if ua := r.Header.Get("User-Agent"); ua != "" {
		payload["userAgent"] = ua
	}
	if clientIP != "" {
		payload["clientIpAddress"] = clientIP
	}

	data, err := json.Marshal(payload)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.publisher.Publish(ctx, messaging.SubjectConversionsTrack, data); err != nil {
		metrics.EnqueueErrors.Inc()
		metrics.EventsReceived.WithLabelValues("enqueue_error").Inc()
		h.log.ErrorContext(ctx, "enqueue failed", logging.FieldError, err.Error())
		h.sendError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	metrics.EventsReceived.WithLabelValues("accepted").Inc()
	h.log.InfoContext(ctx, "event enqueued",
		logging.EventName(eventName(payload)), logging.IP(clientIP))
	h.sendJSON(w, http.StatusAccepted, apiResponse{OK: true})
}

// Health reports liveness.
func (h *EventHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, apiResponse{OK: true})
}

// Ready reports readiness: a 503 while the broker connection is down keeps
// load balancers from routing events that could not be enqueued.
func (h *EventHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if conn, ok := h.publisher.(interface{ IsConnected() bool }); ok && !conn.IsConnected() {
		h.sendError(w, http.StatusServiceUnavailable, "message broker unavailable")
		return
	}
	h.sendJSON(w, http.StatusOK, apiResponse{OK: true})
}

func (h *EventHandler) authorized(r *http.Request) bool {
	if h.apiKey == "" {
		return true
	}
	return r.Header.Get("X-API-Key") == h.apiKey
}

func (h *EventHandler) sendError(w http.ResponseWriter, status int, msg string) {
	h.sendJSON(w, status, apiResponse{OK: false, Error: msg})
}

func (h *EventHandler) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// validateEvent enforces the minimal contract: some event name must be
// present. Field-level shape problems are tolerated; the worker treats the
// payload as read-only and works around gaps.
func validateEvent(payload map[string]any) []string {
	if eventName(payload) == "" {
		return []string{"one of name or event_name is required"}
	}
	return nil
}

func eventName(payload map[string]any) string {
	if s, ok := payload["name"].(string); ok && s != "" {
		return s
	}
	if s, ok := payload["event_name"].(string); ok && s != "" {
		return s
	}
	return ""
}

// transformFilloutPayload rewrites a Fillout form webhook into the standard
// event shape: the submission becomes a Lead with the form answers preserved
// in lead_data and the submission id as external_id. Non-Fillout payloads
// pass through untouched.
func transformFilloutPayload(payload map[string]any) map[string]any {
	submissionID, hasID := payload["submissionId"].(string)
	data, hasData := payload["data"].(map[string]any)
	if !hasID || !hasData {
		return payload
	}

	fullName, _ := data["name"].(string)
	if fullName == "" {
		fullName, _ = data["nome"].(string)
	}
	firstName, lastName := splitName(fullName)

	phone, _ := data["phone"].(string)
	if phone == "" {
		phone, _ = data["telefone"].(string)
	}

	out := map[string]any{
		"event_name":  "Lead",
		"external_id": submissionID,
		"lead_data":   data,
	}
	if email, ok := data["email"].(string); ok && email != "" {
		out["email"] = email
	}
	if phone != "" {
		out["phone"] = phone
	}
	if firstName != "" {
		out["first_name"] = firstName
	}
	if lastName != "" {
		out["last_name"] = lastName
	}
	return out
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(full))
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// getClientIP resolves the originating client address, trusting proxy
// headers first.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
