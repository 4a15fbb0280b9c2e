package marketsdk

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []TrackEvent
}

func (r *recordingTracker) Track(event string, props map[string]string, nums map[string]float64) {
	r.mu.Lock()
	r.events = append(r.events, TrackEvent{Event: event, Props: props, Nums: nums})
	r.mu.Unlock()
}

type orchestratorFixture struct {
	wallet  *fakeWallet
	backend *testBackend
	source  *fakeReceiptSource
	cache   *QueryCache
	tracker *recordingTracker
	fees    *FeeOptionManager
}

func newTestOrchestrator(t *testing.T, steps []*Step, orderID string, cb Callbacks) (*Orchestrator, *orchestratorFixture) {
	t.Helper()

	f := &orchestratorFixture{
		wallet:  newFakeWallet(),
		source:  newFakeReceiptSource(),
		cache:   newTestCache(t),
		tracker: &recordingTracker{},
		fees:    NewFeeOptionManager(nil, true, nil),
	}
	var api *APIClient
	f.backend, api = newTestBackend(t, steps, orderID)

	fetcher := NewStepFetcher(api, time.Minute, nil)
	processor := NewStepProcessor(f.wallet, api, nil)
	monitor := NewStatusMonitor(f.source, nil, time.Second, time.Millisecond, nil)

	o := newOrchestrator(
		f.wallet, fetcher, nil, processor, monitor, f.cache, f.fees,
		f.tracker, ChainIDPolygon, 10*time.Millisecond, nil, cb,
	)
	return o, f
}

func intPtr(v int) *int { return &v }

func signStepWithPost() *Step {
	return &Step{
		ID:        StepIDSignEIP712,
		Signature: &apitypes.TypedData{},
		Post: &PostRequest{
			Method:   "POST",
			Endpoint: "/execute",
			Body:     json.RawMessage(`{}`),
		},
	}
}

func TestListingHappyPathWithApproval(t *testing.T) {
	steps := []*Step{
		{ID: StepIDTokenApproval, To: "0xBBB", Data: "0x095ea7b3"},
		signStepWithPost(),
	}

	var statuses []TransactionStatus
	var closed bool
	var success *TransactionResult
	o, f := newTestOrchestrator(t, steps, "L-1", Callbacks{
		OnClose:   func() { closed = true },
		OnStatus:  func(s TransactionStatus) { statuses = append(statuses, s) },
		OnSuccess: func(r *TransactionResult) { success = r },
	})

	// approval transaction confirms
	f.source.setReceipt(f.wallet.hash, types.ReceiptStatusSuccessful)

	// seed entries that the listing plan must invalidate
	groups := []QueryGroup{
		QueryGroupLowestListings, QueryGroupListings, QueryGroupListingsCount,
		QueryGroupUserBalances, QueryGroupBalances,
	}
	for _, g := range groups {
		f.cache.Set(QueryKey{Group: g, Parts: []string{"0xAAA", "1"}}, "stale")
	}

	result, err := o.CreateListing(context.Background(), &ListingParams{
		ChainID:           ChainIDPolygon,
		CollectionAddress: "0xAAA",
		TokenID:           "1",
		Owner:             "0xOWNER",
		Price:             Price{Amount: "1000000000000000000", CurrencyAddress: "0xBBB", CurrencyDecimals: intPtr(18)},
		Quantity:          "1",
	})
	require.NoError(t, err)
	assert.Equal(t, "L-1", result.OrderID)
	assert.Equal(t, StatusSuccess, result.Status)

	// approval ran before the signature step
	assert.Equal(t, []string{"sendTransaction", "signTypedData"}, f.wallet.calls)

	// both slots fully cleared
	snap := o.Steps().Snapshot()
	assert.Equal(t, StepExecutionState{}, snap.Approval)
	assert.Equal(t, StepExecutionState{}, snap.Transaction)

	// callbacks: close fired before any status
	assert.True(t, closed)
	assert.Equal(t, []TransactionStatus{StatusSuccess}, statuses)
	require.NotNil(t, success)
	assert.Equal(t, "L-1", success.OrderID)

	// analytics fired exactly once with the order id
	require.Len(t, f.tracker.events, 1)
	assert.Equal(t, "listing", f.tracker.events[0].Event)
	assert.Equal(t, "L-1", f.tracker.events[0].Props["requestId"])
	assert.InDelta(t, 1.0, f.tracker.events[0].Nums["price"], 1e-9)

	// every listing group invalidated
	for _, g := range groups {
		_, ok := f.cache.Get(QueryKey{Group: g, Parts: []string{"0xAAA", "1"}})
		assert.False(t, ok, "group %s should be invalidated", g)
	}
}

func TestApprovalRunsFirstRegardlessOfListOrder(t *testing.T) {
	steps := []*Step{
		signStepWithPost(),
		{ID: StepIDTokenApproval, To: "0xBBB", Data: "0x095ea7b3"},
	}
	o, f := newTestOrchestrator(t, steps, "O-1", Callbacks{})
	f.source.setReceipt(f.wallet.hash, types.ReceiptStatusSuccessful)

	_, err := o.MakeOffer(context.Background(), &OfferParams{
		CollectionAddress: "0xAAA", TokenID: "1", Maker: "0xM",
		Price: Price{Amount: "1"}, Quantity: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sendTransaction", "signTypedData"}, f.wallet.calls)
}

func TestApprovalFailureKeepsExistForRetry(t *testing.T) {
	steps := []*Step{
		{ID: StepIDTokenApproval, To: "0xBBB", Data: "0x095ea7b3"},
		signStepWithPost(),
	}
	var gotErr error
	o, f := newTestOrchestrator(t, steps, "L-1", Callbacks{OnError: func(err error) { gotErr = err }})
	f.wallet.sendErr = errors.New("nonce too low")

	_, err := o.CreateListing(context.Background(), &ListingParams{
		CollectionAddress: "0xAAA", TokenID: "1", Owner: "0xO",
		Price: Price{Amount: "1"}, Quantity: "1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, gotErr, f.wallet.sendErr)

	// the approval slot stays visible and idle so the UI can offer a retry;
	// only the transaction slot is torn down
	snap := o.Steps().Snapshot()
	assert.Equal(t, StepExecutionState{Exist: true}, snap.Approval)
	assert.Equal(t, StepExecutionState{}, snap.Transaction)
}

func TestExecutingClearedForAllOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		steps   []*Step
		orderID string
		prep    func(f *orchestratorFixture)
		wantErr bool
	}{
		{
			name:    "success with hash",
			steps:   []*Step{{ID: StepIDCreateListing, To: "0xAA", Data: "0x01"}},
			prep:    func(f *orchestratorFixture) { f.source.setReceipt(f.wallet.hash, types.ReceiptStatusSuccessful) },
			wantErr: false,
		},
		{
			name:    "success with orderId",
			steps:   []*Step{signStepWithPost()},
			orderID: "L-9",
			prep:    func(f *orchestratorFixture) {},
			wantErr: false,
		},
		{
			name:    "thrown error",
			steps:   []*Step{{ID: StepIDCreateListing, To: "0xAA", Data: "0x01"}},
			prep:    func(f *orchestratorFixture) { f.wallet.sendErr = errors.New("boom") },
			wantErr: true,
		},
		{
			name:    "rejected by user",
			steps:   []*Step{{ID: StepIDCreateListing, To: "0xAA", Data: "0x01"}},
			prep:    func(f *orchestratorFixture) { f.wallet.sendErr = errors.New("user rejected signing") },
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, f := newTestOrchestrator(t, tc.steps, tc.orderID, Callbacks{OnError: func(error) {}})
			tc.prep(f)

			_, err := o.CreateListing(context.Background(), &ListingParams{
				CollectionAddress: "0xAAA", TokenID: "1", Owner: "0xO",
				Price: Price{Amount: "1"}, Quantity: "1",
			})
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.False(t, o.Steps().Snapshot().Transaction.IsExecuting,
				"transaction must never stay executing after a run")
		})
	}
}

func TestEmptyStepListFailsWithStepNotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t, []*Step{}, "", Callbacks{OnError: func(error) {}})
	_, err := o.CreateListing(context.Background(), &ListingParams{
		CollectionAddress: "0xAAA", TokenID: "1", Owner: "0xO",
		Price: Price{Amount: "1"}, Quantity: "1",
	})
	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestCancelSuccessOptimisticPatchAndDelayedInvalidation(t *testing.T) {
	steps := []*Step{{ID: StepIDCancel, To: "0xAA", Data: "0x01"}}
	o, f := newTestOrchestrator(t, steps, "", Callbacks{})
	f.source.setReceipt(f.wallet.hash, types.ReceiptStatusSuccessful)

	offersKey := QueryKey{Group: QueryGroupOffers, Parts: []string{"0xAAA", "1"}}
	countKey := QueryKey{Group: QueryGroupOffersCount, Parts: []string{"0xAAA", "1"}}
	highestKey := QueryKey{Group: QueryGroupHighestOffers, Parts: []string{"0xAAA", "1"}}
	f.cache.Set(offersKey, []*Order{{OrderID: "O-1"}, {OrderID: "O-2"}})
	f.cache.Set(countKey, 2)
	f.cache.Set(highestKey, &Order{OrderID: "O-1"})

	result, err := o.CancelOrder(context.Background(), &CancelParams{
		CollectionAddress: "0xAAA", Maker: "0xM", OrderID: "O-1",
	})
	require.NoError(t, err)
	assert.Equal(t, f.wallet.hash, result.Hash)

	// optimistic patch applied immediately on success
	v, ok := f.cache.Get(offersKey)
	require.True(t, ok)
	require.Len(t, v.([]*Order), 1)
	assert.Equal(t, "O-2", v.([]*Order)[0].OrderID)
	count, _ := f.cache.Get(countKey)
	assert.Equal(t, 1, count)

	// aggregate views re-fetched after the configured delay
	assert.Eventually(t, func() bool {
		_, ok := f.cache.Get(highestKey)
		return !ok
	}, time.Second, 2*time.Millisecond)
}

func TestCancelFailureForceInvalidatesAllGroups(t *testing.T) {
	steps := []*Step{{ID: StepIDCancel, To: "0xAA", Data: "0x01"}}
	var gotErr error
	o, f := newTestOrchestrator(t, steps, "", Callbacks{OnError: func(err error) { gotErr = err }})
	f.wallet.sendErr = errors.New("execution reverted")

	groups := []QueryGroup{
		QueryGroupOffers, QueryGroupOffersCount, QueryGroupListings,
		QueryGroupListingsCount, QueryGroupHighestOffers, QueryGroupLowestListings,
	}
	for _, g := range groups {
		f.cache.Set(QueryKey{Group: g, Parts: []string{"0xAAA", "1"}}, "stale")
	}

	_, err := o.CancelOrder(context.Background(), &CancelParams{
		CollectionAddress: "0xAAA", Maker: "0xM", OrderID: "O-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, gotErr, f.wallet.sendErr)
	assert.False(t, o.Steps().Snapshot().Transaction.IsExecuting)

	for _, g := range groups {
		_, ok := f.cache.Get(QueryKey{Group: g, Parts: []string{"0xAAA", "1"}})
		assert.False(t, ok, "group %s must be force-invalidated", g)
	}
}

func TestCancelWithNeitherStepFails(t *testing.T) {
	steps := []*Step{{ID: StepIDSignEIP191, Data: "msg"}}
	o, _ := newTestOrchestrator(t, steps, "", Callbacks{OnError: func(error) {}})

	_, err := o.CancelOrder(context.Background(), &CancelParams{
		CollectionAddress: "0xAAA", Maker: "0xM", OrderID: "O-1",
	})
	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestCancelViaSignatureStep(t *testing.T) {
	steps := []*Step{signStepWithPost()}
	o, _ := newTestOrchestrator(t, steps, "C-1", Callbacks{})

	result, err := o.CancelOrder(context.Background(), &CancelParams{
		CollectionAddress: "0xAAA", Maker: "0xM", OrderID: "O-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "C-1", result.OrderID)
}

func TestWaaSDefersExecutingUntilFeeResolution(t *testing.T) {
	steps := []*Step{{ID: StepIDCreateListing, To: "0xAA", Data: "0x01"}}

	wallet := newFakeWallet()
	wallet.kind = WalletKindWaaS
	source := newFakeReceiptSource()
	source.setReceipt(wallet.hash, types.ReceiptStatusSuccessful)
	fees := NewFeeOptionManager(nil, true, nil)
	_, api := newTestBackend(t, steps, "")

	o := newOrchestrator(
		wallet,
		NewStepFetcher(api, time.Minute, nil),
		nil,
		NewStepProcessor(wallet, api, nil),
		NewStatusMonitor(source, nil, time.Second, time.Millisecond, nil),
		newTestCache(t),
		fees,
		nil, ChainIDPolygon, 10*time.Millisecond, nil, Callbacks{},
	)

	fees.Watch(func(conf *FeeOptionConfirmation) {
		go fees.Confirm(conf.ID, nil)
	})

	var executingWhilePending, executingAfterResolve bool
	wallet.sendHook = func(ctx context.Context, req *TransactionRequest) (common.Hash, error) {
		executingWhilePending = o.Steps().Snapshot().Transaction.IsExecuting
		result, err := fees.RequestConfirmation(ctx, "0xACC", "", feeOptionsFixture(), ChainIDPolygon)
		if err != nil {
			return common.Hash{}, err
		}
		require.True(t, result.Confirmed)
		executingAfterResolve = o.Steps().Snapshot().Transaction.IsExecuting
		return wallet.hash, nil
	}

	_, err := o.CreateListing(context.Background(), &ListingParams{
		CollectionAddress: "0xAAA", TokenID: "1", Owner: "0xO",
		Price: Price{Amount: "1"}, Quantity: "1",
	})
	require.NoError(t, err)

	assert.False(t, executingWhilePending, "executing must stay false while the fee picker is up")
	assert.True(t, executingAfterResolve, "executing flips once the fee option resolves")
	assert.False(t, o.Steps().Snapshot().Transaction.IsExecuting)
}

func TestAnalyticsPriceNormalization(t *testing.T) {
	cases := []struct {
		name     string
		price    Price
		wantNums float64
	}{
		{
			name:     "unknown decimals default to 18",
			price:    Price{Amount: "2000000000000000000", CurrencyAddress: "0xBBB"},
			wantNums: 2.0,
		},
		{
			name:     "zero-decimal currency is taken at face value",
			price:    Price{Amount: "5", CurrencyAddress: "0xBBB", CurrencyDecimals: intPtr(0)},
			wantNums: 5.0,
		},
		{
			name:     "explicit decimals divide the amount",
			price:    Price{Amount: "1500000", CurrencyAddress: "0xBBB", CurrencyDecimals: intPtr(6)},
			wantNums: 1.5,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, f := newTestOrchestrator(t, []*Step{signStepWithPost()}, "L-1", Callbacks{})

			_, err := o.CreateListing(context.Background(), &ListingParams{
				CollectionAddress: "0xAAA", TokenID: "1", Owner: "0xO",
				Price: tc.price, Quantity: "1",
			})
			require.NoError(t, err)

			require.Len(t, f.tracker.events, 1)
			assert.InDelta(t, tc.wantNums, f.tracker.events[0].Nums["price"], 1e-9)
		})
	}
}

func TestAutoConfirmFeeOptionInsufficientFiresCallback(t *testing.T) {
	var insufficient bool
	o, f := newTestOrchestrator(t, nil, "", Callbacks{
		OnBalanceInsufficientForFeeOption: func() { insufficient = true },
	})

	go func() {
		_, _ = f.fees.RequestConfirmation(context.Background(), "0xACC", "", feeOptionsFixture(), ChainIDPolygon)
	}()
	require.Eventually(t, func() bool { return f.fees.Pending() != nil }, time.Second, time.Millisecond)

	outcome := o.AutoConfirmFeeOption(map[string]*big.Int{"native": big.NewInt(1)})
	assert.Equal(t, FeeSelectionInsufficientBalanceForAnyFeeOption, outcome.Failure)
	assert.True(t, insufficient)

	// now with funds the first option confirms and resolves the slot
	outcome = o.AutoConfirmFeeOption(map[string]*big.Int{"native": big.NewInt(5000)})
	require.NotNil(t, outcome.Option)
	assert.Eventually(t, func() bool { return f.fees.Pending() == nil }, time.Second, time.Millisecond)
}
