package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long completed records are retained before cleanup.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a stored record.
type Status string

const (
	// StatusPending marks a key reserved by an in-flight request.
	StatusPending Status = "pending"
	// StatusCompleted marks a key whose response has been captured for replay.
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of Reserve for a given key.
type ReservationState int

const (
	// ReservationStateNew means the key was free and the request may proceed.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a stored response exists and should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means a concurrent request holds the key.
	ReservationStatePending
)

// Reservation is the result of reserving a key, with the stored record when one exists.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted state for one idempotency key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is the captured HTTP response saved for future replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists idempotency reservations and their responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request payload.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// recordID derives the document identifier for a key. The fingerprint is not
// part of the identifier so that a mismatch is detected instead of silently
// creating a second record.
func recordID(key, _ string) string {
	return hashHex([]byte(strings.TrimSpace(key)))
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hopByHopHeaders are never replayed; they describe the original connection,
// not the response payload.
var hopByHopHeaders = map[string]struct{}{
	"content-length":      {},
	"date":                {},
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

func sanitizeHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}

	kept := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if _, omit := hopByHopHeaders[strings.ToLower(canonical)]; omit {
			continue
		}
		kept[canonical] = append([]string(nil), values...)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func headersFromRecord(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		header[name] = append([]string(nil), vals...)
	}
	return header
}
