package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised transaction states reported by the PSP.
type Status string

const (
	// StatusPending indicates the transaction is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSuccess indicates the PSP reports the charge as successfully settled.
	StatusSuccess Status = "success"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusAbandoned indicates the customer never completed the checkout page.
	StatusAbandoned Status = "abandoned"
)

// ErrProviderUnavailable is returned when the PSP cannot be reached or answers
// with a server-side failure. Callers may retry.
var ErrProviderUnavailable = errors.New("payments: provider unavailable")

// ErrTransactionNotFound is returned when the PSP has no record of the reference.
var ErrTransactionNotFound = errors.New("payments: transaction not found")

// ChargeMetadata travels with the transaction through the PSP and comes back
// on webhook deliveries, tying the charge to our aggregates.
type ChargeMetadata struct {
	OrderID string `json:"orderId,omitempty"`
	CartID  string `json:"cartId,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

// InitializeRequest captures the payload required to start a hosted checkout.
// Amount is in minor currency units.
type InitializeRequest struct {
	Email       string
	Amount      int64
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    ChargeMetadata
}

// Authorization is the hosted-checkout handle returned to the client.
type Authorization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// TransactionDetails normalises PSP transaction fields for verification flows.
type TransactionDetails struct {
	Reference string
	Status    Status
	Amount    int64
	Currency  string
	Channel   string
	PaidAt    *time.Time
	Metadata  ChargeMetadata
}

// RefundRequest defines a PSP refund attempt. A nil Amount refunds in full.
// MerchantReference is used by the PSP to deduplicate retried refunds.
type RefundRequest struct {
	Reference         string
	Amount            *int64
	MerchantReference string
	Reason            string
}

// Refund describes the PSP-side refund record.
type Refund struct {
	ID        int64
	Reference string
	Status    string
	Amount    int64
}

// Provider defines the contract the settlement services program against.
type Provider interface {
	InitializeTransaction(ctx context.Context, req InitializeRequest) (Authorization, error)
	VerifyTransaction(ctx context.Context, reference string) (TransactionDetails, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
}
