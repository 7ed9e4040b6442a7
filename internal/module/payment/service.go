package payment

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/shopspring/decimal"
	"github.com/vpio/server/internal/infra/kvstore"
	"go.uber.org/zap"
)

// Store is the subset of the dual-tier store the service needs.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	Get(ctx context.Context, key string, dest any) bool
	Keys(ctx context.Context, pattern string) []string
	Status() kvstore.Status
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for timestamps and activity windows.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// Service maintains payment records, the recency list, and the intent cache.
type Service struct {
	store  Store
	clock  clock.Clock
	logger *zap.Logger

	// recentMu serializes every read-modify-write of the recency list.
	recentMu sync.Mutex
}

// NewService creates a new payment record service.
func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:  store,
		clock:  clock.WallClock,
		logger: logger.Named("payment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SavePayment stores a record and prepends it to the recency list. The id is
// taken from ID, then PaymentIntentID, then the current epoch milliseconds.
func (s *Service) SavePayment(ctx context.Context, in *Record) (string, error) {
	now := s.clock.Now().UTC()
	rec := s.enrich(in, now)

	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	if !s.store.Set(ctx, paymentKeyPrefix+rec.ID, rec, 0) {
		s.logger.Error("failed to save payment", zap.String("payment_id", rec.ID))
		return "", ErrSaveFailed
	}
	if err := s.addToRecentLocked(ctx, rec.ID, rec); err != nil {
		return "", err
	}

	s.logger.Debug("payment saved", zap.String("payment_id", rec.ID), zap.String("status", string(rec.Status)))
	return rec.ID, nil
}

func (s *Service) enrich(in *Record, now time.Time) *Record {
	rec := *in

	switch {
	case rec.ID != "":
	case rec.PaymentIntentID != "":
		rec.ID = rec.PaymentIntentID
	default:
		rec.ID = strconv.FormatInt(now.UnixMilli(), 10)
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.Currency == "" {
		rec.Currency = "usd"
	}
	if rec.Processor == "" {
		rec.Processor = "auto"
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now.UnixMilli()
	}
	rec.Timestamp = now.Format(timestampLayout)

	metadata := make(map[string]any, len(in.Metadata)+2)
	maps.Copy(metadata, in.Metadata)
	metadata["saved_at"] = rec.Timestamp
	metadata["source"] = sourceTag
	rec.Metadata = metadata

	return &rec
}

// AddToRecentPayments prepends a projection of rec to the recency list and
// truncates it to MaxRecentPayments.
func (s *Service) AddToRecentPayments(ctx context.Context, id string, rec *Record) error {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	return s.addToRecentLocked(ctx, id, rec)
}

func (s *Service) addToRecentLocked(ctx context.Context, id string, rec *Record) error {
	list := s.recentList(ctx)

	entry := RecencyEntry{
		ID:        id,
		Amount:    rec.Amount,
		Status:    rec.Status,
		Timestamp: rec.Timestamp,
		Processor: rec.Processor,
	}
	list = append([]RecencyEntry{entry}, list...)
	if len(list) > MaxRecentPayments {
		list = list[:MaxRecentPayments]
	}

	if !s.store.Set(ctx, recentKey, list, 0) {
		s.logger.Error("failed to update recent payments", zap.String("payment_id", id))
		return ErrSaveFailed
	}
	return nil
}

func (s *Service) recentList(ctx context.Context) []RecencyEntry {
	var list []RecencyEntry
	if !s.store.Get(ctx, recentKey, &list) {
		return nil
	}
	return list
}

// GetPayment returns the record stored under id.
func (s *Service) GetPayment(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if !s.store.Get(ctx, paymentKeyPrefix+id, &rec) {
		return nil, ErrPaymentNotFound
	}
	return &rec, nil
}

// UpdateStatus rewrites the stored record for id with a new status and
// patches its recency entry in place. The recency order is left unchanged.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Record, error) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	rec, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == status {
		return rec, nil
	}

	rec.Status = status
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]any, 1)
	}
	rec.Metadata["status_updated_at"] = s.clock.Now().UTC().Format(timestampLayout)

	if !s.store.Set(ctx, paymentKeyPrefix+id, rec, 0) {
		s.logger.Error("failed to update payment status", zap.String("payment_id", id))
		return nil, ErrSaveFailed
	}

	list := s.recentList(ctx)
	patched := false
	for i := range list {
		if list[i].ID == id {
			list[i].Status = status
			patched = true
		}
	}
	if patched && !s.store.Set(ctx, recentKey, list, 0) {
		s.logger.Error("failed to update recent payments", zap.String("payment_id", id))
		return nil, ErrSaveFailed
	}

	s.logger.Debug("payment status updated", zap.String("payment_id", id), zap.String("status", string(status)))
	return rec, nil
}

// GetRecentPayments resolves the first limit entries of the recency list.
// Entries whose record is missing are skipped.
func (s *Service) GetRecentPayments(ctx context.Context, limit int) (*RecentResult, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	list := s.recentList(ctx)
	result := &RecentResult{
		Payments: make([]*Record, 0, min(limit, len(list))),
		Total:    len(list),
	}

	for _, entry := range list[:min(limit, len(list))] {
		rec, err := s.GetPayment(ctx, entry.ID)
		if err != nil {
			s.logger.Debug("recent payment no longer resolves", zap.String("payment_id", entry.ID))
			continue
		}
		result.Payments = append(result.Payments, rec)
	}
	return result, nil
}

// CachePaymentIntent stores intent for IntentCacheTTL.
func (s *Service) CachePaymentIntent(ctx context.Context, id string, intent *IntentCacheEntry) error {
	now := s.clock.Now().UTC()
	entry := *intent
	entry.CachedAt = now
	entry.ExpiresAt = now.Add(IntentCacheTTL)

	if !s.store.Set(ctx, intentKeyPrefix+id, &entry, IntentCacheTTL) {
		s.logger.Error("failed to cache payment intent", zap.String("intent_id", id))
		return ErrSaveFailed
	}
	return nil
}

// GetCachedPaymentIntent returns a cached intent that has not expired.
func (s *Service) GetCachedPaymentIntent(ctx context.Context, id string) (*IntentCacheEntry, error) {
	var entry IntentCacheEntry
	if !s.store.Get(ctx, intentKeyPrefix+id, &entry) {
		return nil, ErrIntentNotCached
	}
	return &entry, nil
}

// SearchPayments scans every payment key and returns the first matches found
// in enumeration order, up to the limit, newest first. Because the scan stops
// at the limit, the result is not the globally newest set of matches.
func (s *Service) SearchPayments(ctx context.Context, c *SearchCriteria) ([]*Record, error) {
	if c == nil {
		c = &SearchCriteria{}
	}
	limit := c.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	matches := make([]*Record, 0)
	for _, key := range s.store.Keys(ctx, paymentKeyPrefix+"*") {
		if len(matches) >= limit {
			break
		}
		var rec Record
		if !s.store.Get(ctx, key, &rec) {
			continue
		}
		if c.matches(&rec) {
			matches = append(matches, &rec)
		}
	}

	slices.SortStableFunc(matches, func(a, b *Record) int {
		return parseTimestamp(b.Timestamp).Compare(parseTimestamp(a.Timestamp))
	})
	return matches, nil
}

// GetPaymentStats aggregates the MaxRecentPayments most recent records.
func (s *Service) GetPaymentStats(ctx context.Context) (*Stats, error) {
	recent, err := s.GetRecentPayments(ctx, MaxRecentPayments)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	const day = 24 * time.Hour

	stats := &Stats{
		TotalPayments: len(recent.Payments),
		ByStatus:      make(map[Status]int),
		TotalAmount:   decimal.Zero,
		Processors:    make(map[string]int),
	}
	for _, p := range recent.Payments {
		stats.ByStatus[p.Status]++
		switch p.Status {
		case StatusSucceeded:
			stats.SuccessfulPayments++
		case StatusFailed:
			stats.FailedPayments++
		case StatusPending:
			stats.PendingPayments++
		}

		stats.TotalAmount = stats.TotalAmount.Add(p.Amount)

		processor := p.Processor
		if processor == "" {
			processor = "unknown"
		}
		stats.Processors[processor]++

		age := now.Sub(time.UnixMilli(p.CreatedAt))
		if age < day {
			stats.Last24h++
		}
		if age < 7*day {
			stats.Last7d++
		}
	}
	return stats, nil
}

// GetStoreStatus reports the store mode with the size and head of the
// recency list.
func (s *Service) GetStoreStatus(ctx context.Context) *StoreStatus {
	status := &StoreStatus{Status: s.store.Status()}

	recent, err := s.GetRecentPayments(ctx, 1)
	if err != nil {
		return status
	}
	status.Healthy = true
	status.PaymentsStored = recent.Total
	if len(recent.Payments) > 0 {
		ts := recent.Payments[0].Timestamp
		status.LastPayment = &ts
	}
	return status
}

func parseTimestamp(ts string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
