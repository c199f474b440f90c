package services

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/khobz-app/checkout/internal/domain"
)

const defaultAutoApplyDebounce = 800 * time.Millisecond

// ErrNoEligiblePromotion is returned when no available promotion satisfies
// the current subtotal.
var ErrNoEligiblePromotion = errors.New("promotions: no eligible promotion")

// AutoApplySelectorDeps wires the dependencies of the auto-apply selector.
type AutoApplySelectorDeps struct {
	Promotions PromotionBackend
	Debounce   time.Duration
	Logger     EventLogger
}

// AutoApplySelector picks the best available promotion for the current
// subtotal and validates it against the backend before it is applied.
// Failures are logged and swallowed: auto-apply never surfaces an error.
type AutoApplySelector struct {
	promotions PromotionBackend
	debounce   time.Duration
	logger     EventLogger

	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
}

// NewAutoApplySelector constructs the selector validating required dependencies.
func NewAutoApplySelector(deps AutoApplySelectorDeps) (*AutoApplySelector, error) {
	if deps.Promotions == nil {
		return nil, errors.New("auto apply selector: promotion backend is required")
	}
	debounce := deps.Debounce
	if debounce <= 0 {
		debounce = defaultAutoApplyDebounce
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopEventLogger
	}
	return &AutoApplySelector{
		promotions: deps.Promotions,
		debounce:   debounce,
		logger:     logger,
	}, nil
}

// Select fetches the available promotions, filters those whose minimum order
// amount is satisfied, ranks the rest, and validates the top candidate.
func (s *AutoApplySelector) Select(ctx context.Context, subtotal float64) (Promotion, error) {
	if subtotal <= 0 {
		return Promotion{}, ErrNoEligiblePromotion
	}

	available, err := s.promotions.ListAvailablePromotions(ctx)
	if err != nil {
		return Promotion{}, err
	}

	best, ok := rankPromotions(available, subtotal)
	if !ok {
		return Promotion{}, ErrNoEligiblePromotion
	}

	validated, err := s.promotions.ValidatePromotion(ctx, best.Code, subtotal)
	if err != nil {
		return Promotion{}, err
	}
	return validated.Normalize(), nil
}

// Schedule debounces a selection attempt and hands the winner to apply. The
// attempt fires after the debounce window, typically long after the request
// that scheduled it has completed, so it runs on a context detached from the
// caller's cancelation while keeping its values. A pending or in-flight
// attempt suppresses new ones; errors are swallowed. Schedule never runs
// backend work on the caller's goroutine: callers may hold locks that apply
// needs to take again.
func (s *AutoApplySelector) Schedule(ctx context.Context, subtotal float64, apply func(context.Context, Promotion)) {
	if apply == nil || subtotal <= 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	run := func() {
		s.mu.Lock()
		s.timer = nil
		s.inFlight = true
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			s.inFlight = false
			s.mu.Unlock()
		}()

		promo, err := s.Select(ctx, subtotal)
		if err != nil {
			if !errors.Is(err, ErrNoEligiblePromotion) {
				s.logger(ctx, "promotions.auto_apply_failed", map[string]any{"error": err.Error()})
			}
			return
		}
		apply(ctx, promo)
	}
	s.timer = time.AfterFunc(s.debounce, run)
	s.mu.Unlock()
}

// rankPromotions orders eligible candidates by computed discount descending,
// breaking ties by preferring percentage promotions, then by raw value.
func rankPromotions(available []Promotion, subtotal float64) (Promotion, bool) {
	var best Promotion
	bestDiscount := -1.0
	found := false

	for _, candidate := range available {
		promo := candidate.Normalize()
		if !MeetsMinimum(&promo, subtotal) {
			continue
		}
		discount := ComputeDiscount(&promo, subtotal)
		if discount <= 0 && !promo.IsFreeShipping() {
			continue
		}
		if !found || betterCandidate(promo, discount, best, bestDiscount) {
			best = promo
			bestDiscount = discount
			found = true
		}
	}
	return best, found
}

func betterCandidate(candidate Promotion, discount float64, incumbent Promotion, incumbentDiscount float64) bool {
	if discount != incumbentDiscount {
		return discount > incumbentDiscount
	}
	candidatePct := candidate.Kind == domain.DiscountPercentage
	incumbentPct := incumbent.Kind == domain.DiscountPercentage
	if candidatePct != incumbentPct {
		return candidatePct
	}
	return candidate.Value > incumbent.Value
}
