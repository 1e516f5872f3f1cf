package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuelReschke/LedgerFox/internal/pkg/money"
	"github.com/shopspring/decimal"
)

// ErrMissingReference is returned when no transaction reference can be found
// in a payload.
var ErrMissingReference = errors.New("gateway: payload has no transaction reference")

// ErrInvalidPayload is returned when a body is not a JSON object.
var ErrInvalidPayload = errors.New("gateway: payload is not a JSON object")

// Candidate keys, tried in order at the top level and inside "data".
var (
	referenceKeys = []string{"referenceGateway", "reference_gateway", "reference", "external_reference", "externalReference", "transaction_id", "transactionId", "id"}
	eventIDKeys   = []string{"eventId", "event_id"}
	statusKeys    = []string{"status", "payment_status", "paymentStatus", "state", "event_status"}
	methodKeys    = []string{"method", "payment_method", "paymentMethod", "payment_type", "billing_type", "billingType"}
	grossKeys     = []string{"amount", "transaction_amount", "transactionAmount", "gross_amount", "value", "total"}
	feeKeys       = []string{"fee", "taxa", "fee_amount", "fees"}
	netKeys       = []string{"net_amount", "netAmount", "net_value", "netValue", "net_received_amount"}
	reasonKeys    = []string{"status_detail", "statusDetail", "rejection_reason", "refusal_reason", "reason"}
)

// CanonicalEvent is the provider-agnostic view of a webhook notification.
type CanonicalEvent struct {
	ProviderReference string
	EventID           string
	ExternalStatus    string
	MappedStatus      string
	MappedMethod      string
	GrossAmount       decimal.Decimal
	Fee               decimal.Decimal
	NetAmount         decimal.Decimal
	RejectionReason   string
}

// Headers is a case-insensitive view over request headers.
type Headers map[string]string

// NewHeaders lowercases the keys of h.
func NewHeaders(h map[string]string) Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v
	}
	return out
}

func (h Headers) Get(key string) string {
	return strings.TrimSpace(h[strings.ToLower(key)])
}

// ParsePayload decodes a JSON object keeping numbers as json.Number.
func ParsePayload(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload == nil {
		return nil, ErrInvalidPayload
	}
	return payload, nil
}

// Normalize maps a provider payload into a CanonicalEvent.
func Normalize(payload map[string]any, headers Headers) (CanonicalEvent, error) {
	var ev CanonicalEvent

	ev.ProviderReference = firstString(payload, referenceKeys)
	if ev.ProviderReference == "" {
		return ev, ErrMissingReference
	}

	ev.EventID = headers.Get("x-event-id")
	if ev.EventID == "" {
		ev.EventID = EventIDFromPayload(payload)
	}

	ev.ExternalStatus = firstString(payload, statusKeys)
	ev.MappedStatus = MapStatus(ev.ExternalStatus)
	ev.MappedMethod = MapMethod(firstString(payload, methodKeys))
	ev.RejectionReason = firstString(payload, reasonKeys)

	if v, ok := firstAmount(payload, grossKeys); ok {
		ev.GrossAmount = money.Round(v)
	}
	if v, ok := firstAmount(payload, feeKeys); ok {
		ev.Fee = money.Round(v)
	}
	if v, ok := firstAmount(payload, netKeys); ok {
		ev.NetAmount = money.Round(v)
	} else {
		ev.NetAmount = money.NonNegative(ev.GrossAmount.Sub(ev.Fee))
	}
	return ev, nil
}

// EventIDFromPayload returns the provider event id carried in the payload, if any.
func EventIDFromPayload(payload map[string]any) string {
	return firstString(payload, eventIDKeys)
}

func lookup(payload map[string]any, key string) (any, bool) {
	if v, ok := payload[key]; ok && v != nil {
		return v, true
	}
	if data, ok := payload["data"].(map[string]any); ok {
		if v, ok := data[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(payload map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := lookup(payload, k)
		if !ok {
			continue
		}
		if s := stringValue(v); s != "" {
			return s
		}
	}
	return ""
}

func firstAmount(payload map[string]any, keys []string) (decimal.Decimal, bool) {
	for _, k := range keys {
		v, ok := lookup(payload, k)
		if !ok {
			continue
		}
		if d, ok := money.Parse(v); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
