package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/khobz-app/checkout/internal/domain"
)

const (
	defaultLowStockThreshold = 3
	defaultAvailabilityTTL   = 2 * time.Minute
)

// ErrAvailabilityUnavailable indicates the stock check could not be completed.
var ErrAvailabilityUnavailable = errors.New("availability: stock check unavailable")

// AvailabilityResolverDeps wires the dependencies of the availability resolver.
type AvailabilityResolverDeps struct {
	Backend AvailabilityBackend
	// LowStockThreshold is the minimum-remaining-units figure at or below
	// which a branch is shown as "limited". Zero units is always "warning".
	LowStockThreshold int
	CacheTTL          time.Duration
	Clock             Clock
	Logger            EventLogger
}

// AvailabilityResolver maps per-branch stock-check responses into
// presentation-ready statuses. Identical (branch-set, cart-signature) pairs
// are answered from a TTL cache so rapid selector reopens do not refetch.
type AvailabilityResolver struct {
	backend   AvailabilityBackend
	threshold int
	now       func() time.Time
	logger    EventLogger
	cache     *availabilityCache
}

// NewAvailabilityResolver constructs the resolver validating required dependencies.
func NewAvailabilityResolver(deps AvailabilityResolverDeps) (*AvailabilityResolver, error) {
	if deps.Backend == nil {
		return nil, errors.New("availability resolver: backend is required")
	}
	threshold := deps.LowStockThreshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultAvailabilityTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopEventLogger
	}
	now := func() time.Time { return clock().UTC() }
	return &AvailabilityResolver{
		backend:   deps.Backend,
		threshold: threshold,
		now:       now,
		logger:    logger,
		cache:     newAvailabilityCache(ttl, now),
	}, nil
}

// Resolve checks stock for the cart across the candidate branches and
// returns one resolved status per requested branch id.
func (r *AvailabilityResolver) Resolve(ctx context.Context, lines []CartLine, branchIDs []string) ([]BranchAvailability, error) {
	if len(lines) == 0 || len(branchIDs) == 0 {
		return nil, nil
	}

	key := cartBranchSignature(lines, branchIDs)
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	reports, err := r.backend.CheckBranchStock(ctx, lines, branchIDs)
	if err != nil {
		r.logger(ctx, "availability.check_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("%w: %s", ErrAvailabilityUnavailable, err)
	}

	byBranch := make(map[string]BranchStockReport, len(reports))
	for _, report := range reports {
		byBranch[report.BranchID] = report
	}

	resolved := make([]BranchAvailability, 0, len(branchIDs))
	for _, branchID := range branchIDs {
		report, ok := byBranch[branchID]
		if !ok {
			resolved = append(resolved, BranchAvailability{BranchID: branchID, Tone: domain.ToneUnknown})
			continue
		}
		resolved = append(resolved, r.resolveReport(report))
	}

	r.cache.Put(key, resolved)
	return resolved, nil
}

// resolveReport derives the presentation tone from a raw backend report.
func (r *AvailabilityResolver) resolveReport(report BranchStockReport) BranchAvailability {
	out := BranchAvailability{
		BranchID:     report.BranchID,
		MinAvailable: report.MinAvailable,
		Issues:       report.Issues,
		Message:      strings.TrimSpace(report.Message),
	}

	switch strings.ToLower(strings.TrimSpace(report.Status)) {
	case "inactive":
		out.Tone = domain.ToneInactive
	case "unavailable":
		out.Tone = domain.ToneUnavailable
	case "error":
		out.Tone = domain.ToneError
	case "available":
		out.Tone = r.availableTone(report.MinAvailable)
	default:
		out.Tone = domain.ToneUnknown
	}
	return out
}

func (r *AvailabilityResolver) availableTone(minAvailable *int) AvailabilityTone {
	if minAvailable == nil {
		return domain.ToneAvailable
	}
	switch {
	case *minAvailable <= 0:
		return domain.ToneWarning
	case *minAvailable <= r.threshold:
		return domain.ToneLimited
	default:
		return domain.ToneAvailable
	}
}

// cartBranchSignature derives a deterministic key from sorted
// product/variant/quantity tuples and branch ids so identical requests
// deduplicate regardless of slice order.
func cartBranchSignature(lines []CartLine, branchIDs []string) string {
	lineParts := make([]string, 0, len(lines))
	for _, line := range lines {
		variants := append([]string(nil), line.VariantIDs...)
		sort.Strings(variants)
		lineParts = append(lineParts, strings.Join([]string{
			strings.TrimSpace(line.ProductID),
			strings.TrimSpace(line.VariantID),
			strings.Join(variants, "+"),
			fmt.Sprintf("%d", line.Quantity),
		}, ","))
	}
	sort.Strings(lineParts)

	branches := make([]string, 0, len(branchIDs))
	for _, id := range branchIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			branches = append(branches, trimmed)
		}
	}
	sort.Strings(branches)

	return strings.Join(lineParts, ";") + "|" + strings.Join(branches, ";")
}

type availabilityCache struct {
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
	m   map[string]availabilityCacheEntry
}

type availabilityCacheEntry struct {
	statuses []BranchAvailability
	expires  time.Time
}

func newAvailabilityCache(ttl time.Duration, now func() time.Time) *availabilityCache {
	return &availabilityCache{
		ttl: ttl,
		now: now,
		m:   make(map[string]availabilityCacheEntry),
	}
}

func (c *availabilityCache) Get(key string) ([]BranchAvailability, bool) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.statuses, true
}

func (c *availabilityCache) Put(key string, statuses []BranchAvailability) {
	c.mu.Lock()
	c.m[key] = availabilityCacheEntry{statuses: statuses, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
