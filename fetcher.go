package marketsdk

import (
	"context"
	"sync"
	"time"

	"github.com/imkira/go-ttlmap"
	"go.uber.org/zap"
)

// StepFetcher generates fresh step lists for order actions. Approval probes
// are memoized with a short TTL so rendering an action button does not hit
// the backend on every poll.
type StepFetcher struct {
	api      *APIClient
	mu       sync.RWMutex
	probes   *ttlmap.Map
	probeTTL time.Duration
	logger   *zap.Logger
}

func NewStepFetcher(api *APIClient, probeTTL time.Duration, logger *zap.Logger) *StepFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepFetcher{
		api:      api,
		probes:   ttlmap.New(&ttlmap.Options{InitialCapacity: 32}),
		probeTTL: probeTTL,
		logger:   logger,
	}
}

// ListingSteps fetches the steps for creating a listing. Steps are consumed
// once; callers must re-fetch for every execution.
func (f *StepFetcher) ListingSteps(ctx context.Context, params *ListingParams) ([]*Step, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return f.api.GenerateListingTransaction(ctx, params)
}

// OfferSteps fetches the steps for creating an offer.
func (f *StepFetcher) OfferSteps(ctx context.Context, params *OfferParams) ([]*Step, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return f.api.GenerateOfferTransaction(ctx, params)
}

// SellSteps fetches the steps for accepting an offer.
func (f *StepFetcher) SellSteps(ctx context.Context, params *SellParams) ([]*Step, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return f.api.GenerateSellTransaction(ctx, params)
}

// CancelSteps fetches the steps for cancelling an order.
func (f *StepFetcher) CancelSteps(ctx context.Context, params *CancelParams) ([]*Step, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return f.api.GenerateCancelTransaction(ctx, params)
}

// BuySteps fetches the steps for filling a listing.
func (f *StepFetcher) BuySteps(ctx context.Context, params *BuyParams) ([]*Step, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return f.api.GenerateBuyTransaction(ctx, params)
}

// ListingApprovalRequired probes whether creating this listing would require
// a token approval step. Results are memoized per input set for probeTTL.
func (f *StepFetcher) ListingApprovalRequired(ctx context.Context, params *ListingParams) (bool, error) {
	if err := params.validate(); err != nil {
		return false, err
	}
	return f.probeApproval(ctx, "listing|"+params.probeKey(), func(ctx context.Context) ([]*Step, error) {
		return f.api.GenerateListingTransaction(ctx, params)
	})
}

// OfferApprovalRequired probes whether creating this offer would require a
// token approval step.
func (f *StepFetcher) OfferApprovalRequired(ctx context.Context, params *OfferParams) (bool, error) {
	if err := params.validate(); err != nil {
		return false, err
	}
	return f.probeApproval(ctx, "offer|"+params.probeKey(), func(ctx context.Context) ([]*Step, error) {
		return f.api.GenerateOfferTransaction(ctx, params)
	})
}

// SellApprovalRequired probes whether accepting this offer would require a
// token approval step.
func (f *StepFetcher) SellApprovalRequired(ctx context.Context, params *SellParams) (bool, error) {
	if err := params.validate(); err != nil {
		return false, err
	}
	return f.probeApproval(ctx, "sell|"+params.probeKey(), func(ctx context.Context) ([]*Step, error) {
		return f.api.GenerateSellTransaction(ctx, params)
	})
}

func (f *StepFetcher) probeApproval(ctx context.Context, key string, fetch func(context.Context) ([]*Step, error)) (bool, error) {
	f.mu.RLock()
	probes := f.probes
	f.mu.RUnlock()

	if item, err := probes.Get(key); err == nil {
		return item.Value().(bool), nil
	}

	steps, err := fetch(ctx)
	if err != nil {
		return false, err
	}
	required := findStep(steps, StepIDTokenApproval) != nil

	if err := probes.Set(key, ttlmap.NewItem(required, ttlmap.WithTTL(f.probeTTL)), nil); err != nil {
		f.logger.Debug("approval probe memoization failed", zap.Error(err))
	}
	return required, nil
}

// InvalidateProbes drops all memoized approval probes, used after an
// approval transaction lands.
func (f *StepFetcher) InvalidateProbes() {
	f.mu.Lock()
	old := f.probes
	f.probes = ttlmap.New(&ttlmap.Options{InitialCapacity: 32})
	f.mu.Unlock()
	old.Drain()
}
