package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SignatureHeader is the request header carrying the webhook body signature.
const SignatureHeader = "X-Paystack-Signature"

// ErrInvalidSignature is returned when the webhook signature does not match the body.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// VerifySignature checks the hex-encoded HMAC-SHA512 signature of the raw
// request body in constant time. It must run on the exact bytes received,
// before any JSON decoding.
func VerifySignature(secret, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if len(secret) == 0 || signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}

// EventKind classifies a decoded webhook event.
type EventKind string

const (
	// EventChargeSuccess is a settled charge notification.
	EventChargeSuccess EventKind = "charge.success"
	// EventIgnored covers every event type this service does not consume.
	// Ignored events are acknowledged without side effects.
	EventIgnored EventKind = "ignored"
)

// ChargeEvent is the payload of a charge.success delivery.
type ChargeEvent struct {
	Reference string
	Status    Status
	Amount    int64
	Currency  string
	Channel   string
	PaidAt    *time.Time
	Metadata  ChargeMetadata
}

// Event is the tagged result of decoding a webhook body. Exactly one variant
// field is populated for non-ignored kinds.
type Event struct {
	Kind    EventKind
	RawType string
	Charge  *ChargeEvent
}

type webhookEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		Reference string         `json:"reference"`
		Status    string         `json:"status"`
		Amount    int64          `json:"amount"`
		Currency  string         `json:"currency"`
		Channel   string         `json:"channel"`
		PaidAt    *time.Time     `json:"paid_at"`
		Metadata  ChargeMetadata `json:"metadata"`
	} `json:"data"`
}

// DecodeEvent parses a verified webhook body into its tagged variant. Unknown
// event types decode successfully as EventIgnored; only malformed JSON or a
// missing event tag is an error.
func DecodeEvent(body []byte) (Event, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Event{}, fmt.Errorf("payments: decode webhook event: %w", err)
	}
	eventType := strings.TrimSpace(envelope.Event)
	if eventType == "" {
		return Event{}, errors.New("payments: webhook event type is missing")
	}

	switch eventType {
	case string(EventChargeSuccess):
		return Event{
			Kind:    EventChargeSuccess,
			RawType: eventType,
			Charge: &ChargeEvent{
				Reference: strings.TrimSpace(envelope.Data.Reference),
				Status:    normaliseStatus(envelope.Data.Status),
				Amount:    envelope.Data.Amount,
				Currency:  strings.ToUpper(envelope.Data.Currency),
				Channel:   envelope.Data.Channel,
				PaidAt:    envelope.Data.PaidAt,
				Metadata:  envelope.Data.Metadata,
			},
		}, nil
	default:
		return Event{Kind: EventIgnored, RawType: eventType}, nil
	}
}
