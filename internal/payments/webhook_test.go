package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"
)

func signBody(secret, body []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"event":"charge.success","data":{"reference":"ord_01J5"}}`)
	signature := signBody(secret, body)

	if !VerifySignature(secret, body, signature) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifySignature(secret, body, "") {
		t.Fatal("empty signature must not verify")
	}
	if VerifySignature(nil, body, signature) {
		t.Fatal("empty secret must not verify")
	}
	if VerifySignature(secret, body, "not-hex") {
		t.Fatal("non-hex signature must not verify")
	}
}

func TestVerifySignatureRejectsMutatedBody(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"event":"charge.success","data":{"reference":"ord_01J5","amount":300000}}`)
	signature := signBody(secret, body)

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		if VerifySignature(secret, mutated, signature) {
			t.Fatalf("signature verified after flipping byte %d", i)
		}
	}
}

func TestDecodeEventChargeSuccess(t *testing.T) {
	body := []byte(`{
		"event": "charge.success",
		"data": {
			"reference": " ord_01J5 ",
			"status": "success",
			"amount": 300000,
			"currency": "ngn",
			"channel": "card",
			"metadata": {"orderId": "ord_01J5", "userId": "user-1"}
		}
	}`)

	event, err := DecodeEvent(body)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if event.Kind != EventChargeSuccess {
		t.Fatalf("unexpected kind %q", event.Kind)
	}
	if event.Charge == nil {
		t.Fatal("charge payload missing")
	}
	if event.Charge.Reference != "ord_01J5" {
		t.Fatalf("reference not trimmed: %q", event.Charge.Reference)
	}
	if event.Charge.Status != StatusSuccess {
		t.Fatalf("unexpected status %q", event.Charge.Status)
	}
	if event.Charge.Metadata.OrderID != "ord_01J5" {
		t.Fatalf("unexpected metadata %+v", event.Charge.Metadata)
	}
}

func TestDecodeEventIgnoredKinds(t *testing.T) {
	for _, eventType := range []string{"charge.failed", "transfer.success", "refund.processed", "subscription.create"} {
		event, err := DecodeEvent([]byte(`{"event":"` + eventType + `","data":{}}`))
		if err != nil {
			t.Fatalf("DecodeEvent(%s): %v", eventType, err)
		}
		if event.Kind != EventIgnored {
			t.Fatalf("event %s should be ignored, got %q", eventType, event.Kind)
		}
		if event.RawType != eventType {
			t.Fatalf("raw type not preserved: %q", event.RawType)
		}
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"event":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if _, err := DecodeEvent([]byte(`{"data":{}}`)); err == nil {
		t.Fatal("expected error for missing event type")
	}
}
