package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vpio/server/internal/infra/kvstore"
)

func init() {
	// Amounts are JSON numbers on the wire and in the store.
	decimal.MarshalJSONWithoutQuotes = true
}

// Key namespace shared with every deployment reading the same backend.
const (
	paymentKeyPrefix = "payment:"
	intentKeyPrefix  = "payment_intent:"
	recentKey        = "recent_payments"

	// MaxRecentPayments caps the recency list.
	MaxRecentPayments = 100
	// IntentCacheTTL is how long a cached payment intent lives.
	IntentCacheTTL = 24 * time.Hour

	defaultRecentLimit = 20
	defaultSearchLimit = 50

	sourceTag = "vpio_api"
)

// timestampLayout renders UTC instants with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Status represents the status of a payment.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
	StatusRefunded   Status = "refunded"
)

// Record is a stored payment. Records are only ever overwritten whole.
type Record struct {
	ID              string           `json:"id"`
	PaymentIntentID string           `json:"payment_intent_id,omitempty"`
	Amount          decimal.Decimal  `json:"amount"`
	OriginalAmount  *decimal.Decimal `json:"original_amount,omitempty"`
	Fee             *decimal.Decimal `json:"fee,omitempty"`
	Currency        string           `json:"currency"`
	Status          Status           `json:"status"`
	Processor       string           `json:"processor"`
	CreatedAt       int64            `json:"created_at"` // epoch milliseconds
	Timestamp       string           `json:"timestamp"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

// CreatedTime returns CreatedAt as a time.
func (r *Record) CreatedTime() time.Time {
	return time.UnixMilli(r.CreatedAt).UTC()
}

// RecencyEntry is the projection of a Record kept in the recency list.
type RecencyEntry struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Processor string          `json:"processor"`
}

// RecentResult holds the resolved records for a recency read. Total is the
// length of the recency list, which can exceed len(Payments) when entries no
// longer resolve.
type RecentResult struct {
	Payments []*Record `json:"payments"`
	Total    int       `json:"total"`
}

// IntentCacheEntry is a short-lived snapshot of a processor payment intent.
type IntentCacheEntry struct {
	ID           string    `json:"id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	Amount       int64     `json:"amount"` // minor units
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	Created      int64     `json:"created"` // epoch seconds
	CachedAt     time.Time `json:"cached_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SearchCriteria filters a payment scan. Empty fields match everything;
// amount bounds are inclusive.
type SearchCriteria struct {
	Status    Status           `json:"status,omitempty"`
	Processor string           `json:"processor,omitempty"`
	AmountMin *decimal.Decimal `json:"amount_min,omitempty"`
	AmountMax *decimal.Decimal `json:"amount_max,omitempty"`
	Limit     int              `json:"limit"`
}

func (c *SearchCriteria) matches(r *Record) bool {
	if c.Status != "" && r.Status != c.Status {
		return false
	}
	if c.Processor != "" && r.Processor != c.Processor {
		return false
	}
	if c.AmountMin != nil && r.Amount.LessThan(*c.AmountMin) {
		return false
	}
	if c.AmountMax != nil && r.Amount.GreaterThan(*c.AmountMax) {
		return false
	}
	return true
}

// Stats aggregates the most recent payments only, not the full history.
type Stats struct {
	TotalPayments      int             `json:"total_payments"`
	SuccessfulPayments int             `json:"successful_payments"`
	FailedPayments     int             `json:"failed_payments"`
	PendingPayments    int             `json:"pending_payments"`
	ByStatus           map[Status]int  `json:"by_status"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	Processors         map[string]int  `json:"processors"`
	Last24h            int             `json:"last_24h"`
	Last7d             int             `json:"last_7d"`
}

// StoreStatus merges the store's serving mode with recency-list health.
type StoreStatus struct {
	kvstore.Status
	PaymentsStored int     `json:"payments_stored"`
	LastPayment    *string `json:"last_payment"`
	Healthy        bool    `json:"store_healthy"`
}
