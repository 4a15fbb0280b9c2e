package marketsdk

import (
	"context"
	"math/big"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/tokenreef/marketplace-sdk-go/chain"
)

// Callbacks are the caller-supplied hooks of one order action. Every field
// is optional; a missing OnError downgrades failures to debug logs.
type Callbacks struct {
	// OnSuccess fires after the action reaches a successful terminal state.
	OnSuccess func(*TransactionResult)
	// OnError fires on any failure, including user rejection. Callers can
	// match ErrUserRejected to keep rejections quiet.
	OnError func(error)
	// OnClose asks the initiating UI surface to close. It always fires
	// before the first OnStatus so the status surface is not rendered
	// underneath the closing one.
	OnClose func()
	// OnStatus reports confirmation progress: StatusPending once a hash is
	// being awaited, then the terminal status.
	OnStatus func(TransactionStatus)
	// OnBalanceInsufficientForFeeOption fires when fee auto-selection finds
	// no affordable option, so the caller can redirect to a top-up flow.
	OnBalanceInsufficientForFeeOption func()
}

// cachePlan declares how the query cache reconciles after one action.
type cachePlan struct {
	optimistic        func(c *QueryCache)
	invalidate        []QueryGroup
	invalidateDelayed []QueryGroup
	// invalidateOnFailure lists groups whose optimistic patches may now be
	// wrong; they are force-invalidated, never patched.
	invalidateOnFailure []QueryGroup
}

// Orchestrator drives one order action end to end: fetch steps, run the
// approval first when present, execute the remaining steps in order, await
// confirmation, reconcile caches and fire analytics. It is the error
// boundary for everything below it; steps state never stays executing after
// an error.
type Orchestrator struct {
	wallet     Wallet
	fetcher    *StepFetcher
	shop       *ShopStepFetcher
	processor  *StepProcessor
	monitor    *StatusMonitor
	cache      *QueryCache
	feeOptions *FeeOptionManager
	tracker    Tracker
	steps      *ExecutionSteps
	chainID    ChainID

	invalidationDelay time.Duration
	awaitingFee       atomic.Bool
	logger            *zap.Logger
	cb                Callbacks
}

func newOrchestrator(
	wallet Wallet,
	fetcher *StepFetcher,
	shop *ShopStepFetcher,
	processor *StepProcessor,
	monitor *StatusMonitor,
	cache *QueryCache,
	feeOptions *FeeOptionManager,
	tracker Tracker,
	chainID ChainID,
	invalidationDelay time.Duration,
	logger *zap.Logger,
	cb Callbacks,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = NopTracker{}
	}
	o := &Orchestrator{
		wallet:            wallet,
		fetcher:           fetcher,
		shop:              shop,
		processor:         processor,
		monitor:           monitor,
		cache:             cache,
		feeOptions:        feeOptions,
		tracker:           tracker,
		steps:             NewExecutionSteps(),
		chainID:           chainID,
		invalidationDelay: invalidationDelay,
		logger:            logger,
		cb:                cb,
	}

	// Custodial wallets defer the executing flag until the fee negotiation
	// resolves; the UI shows the fee picker, not a spinner, in between.
	if wallet.Kind() == WalletKindWaaS && feeOptions != nil {
		feeOptions.OnResolved(func() {
			if o.awaitingFee.CompareAndSwap(true, false) {
				o.steps.SetTransactionExecuting(true)
			}
		})
	}
	return o
}

// Steps exposes the observable step slots for UI binding.
func (o *Orchestrator) Steps() *ExecutionSteps {
	return o.steps
}

func (o *Orchestrator) reportError(err error) {
	if o.cb.OnError != nil {
		o.cb.OnError(err)
		return
	}
	o.logger.Debug("order action failed", zap.Error(err))
}

// ProbeListingApproval checks whether creating this listing would need a
// token approval and reflects the answer in the approval slot.
func (o *Orchestrator) ProbeListingApproval(ctx context.Context, params *ListingParams) error {
	required, err := o.fetcher.ListingApprovalRequired(ctx, params)
	if err != nil {
		o.reportError(err)
		return err
	}
	o.steps.SetApprovalExist(required)
	return nil
}

// ProbeOfferApproval checks whether creating this offer would need a token
// approval and reflects the answer in the approval slot.
func (o *Orchestrator) ProbeOfferApproval(ctx context.Context, params *OfferParams) error {
	required, err := o.fetcher.OfferApprovalRequired(ctx, params)
	if err != nil {
		o.reportError(err)
		return err
	}
	o.steps.SetApprovalExist(required)
	return nil
}

// ProbeSellApproval checks whether accepting this offer would need a token
// approval and reflects the answer in the approval slot.
func (o *Orchestrator) ProbeSellApproval(ctx context.Context, params *SellParams) error {
	required, err := o.fetcher.SellApprovalRequired(ctx, params)
	if err != nil {
		o.reportError(err)
		return err
	}
	o.steps.SetApprovalExist(required)
	return nil
}

// AutoConfirmFeeOption resolves the pending fee confirmation with the first
// affordable option. An unaffordable set fires the dedicated callback
// instead of the generic failure path.
func (o *Orchestrator) AutoConfirmFeeOption(balances map[string]*big.Int) AutoSelectOutcome {
	if o.feeOptions == nil {
		return AutoSelectOutcome{Failure: FeeSelectionNoOptionsProvided}
	}
	conf := o.feeOptions.Pending()
	_, connected := o.wallet.Address()

	outcome := AutoSelectFeeOption(conf, connected, balances)
	switch {
	case outcome.Option != nil:
		o.feeOptions.Confirm(conf.ID, outcome.Option.Token.ContractAddress)
	case outcome.Failure == FeeSelectionInsufficientBalanceForAnyFeeOption:
		if o.cb.OnBalanceInsufficientForFeeOption != nil {
			o.cb.OnBalanceInsufficientForFeeOption()
		}
	}
	return outcome
}

// RejectPendingFeeOption unblocks a suspended fee negotiation when the
// hosting UI is dismissed.
func (o *Orchestrator) RejectPendingFeeOption() {
	if o.feeOptions == nil {
		return
	}
	if conf := o.feeOptions.Pending(); conf != nil {
		o.feeOptions.Reject(conf.ID)
	}
}

// CreateListing runs the create-listing action.
func (o *Orchestrator) CreateListing(ctx context.Context, params *ListingParams) (*TransactionResult, error) {
	fetch := func(ctx context.Context) ([]*Step, error) {
		return o.fetcher.ListingSteps(ctx, params)
	}
	plan := &cachePlan{
		invalidate: []QueryGroup{
			QueryGroupBalances, QueryGroupLowestListings, QueryGroupListings,
			QueryGroupListingsCount, QueryGroupUserBalances,
		},
	}
	return o.execute(ctx, ActionListing, fetch, o.runStepsInOrder, plan, func(result *TransactionResult) {
		o.trackAction(ActionListing, result, map[string]string{
			"collectionAddress": params.CollectionAddress,
			"tokenId":           params.TokenID,
			"currency":          params.Price.CurrencyAddress,
		}, params.Price)
	})
}

// MakeOffer runs the create-offer action.
func (o *Orchestrator) MakeOffer(ctx context.Context, params *OfferParams) (*TransactionResult, error) {
	fetch := func(ctx context.Context) ([]*Step, error) {
		return o.fetcher.OfferSteps(ctx, params)
	}
	plan := &cachePlan{
		invalidate: []QueryGroup{
			QueryGroupBalances, QueryGroupHighestOffers, QueryGroupOffers,
			QueryGroupOffersCount, QueryGroupUserBalances,
		},
	}
	return o.execute(ctx, ActionOffer, fetch, o.runStepsInOrder, plan, func(result *TransactionResult) {
		o.trackAction(ActionOffer, result, map[string]string{
			"collectionAddress": params.CollectionAddress,
			"tokenId":           params.TokenID,
			"currency":          params.Price.CurrencyAddress,
		}, params.Price)
	})
}

// Sell runs the accept-offer action.
func (o *Orchestrator) Sell(ctx context.Context, params *SellParams) (*TransactionResult, error) {
	fetch := func(ctx context.Context) ([]*Step, error) {
		return o.fetcher.SellSteps(ctx, params)
	}
	plan := &cachePlan{
		invalidate: []QueryGroup{QueryGroupBalances, QueryGroupUserBalances},
	}
	return o.execute(ctx, ActionSell, fetch, o.runStepsInOrder, plan, func(result *TransactionResult) {
		o.trackAction(ActionSell, result, map[string]string{
			"collectionAddress": params.CollectionAddress,
			"orderId":           params.OrderID,
		}, params.Price)
	})
}

// CancelOrder runs the cancel action. On success, the cancelled order is
// optimistically removed from cached lists and counts; the aggregate views
// are re-fetched after a short delay once the order book catches up. On
// failure, every affected group is force-invalidated because the optimistic
// patch may no longer match reality.
func (o *Orchestrator) CancelOrder(ctx context.Context, params *CancelParams) (*TransactionResult, error) {
	fetch := func(ctx context.Context) ([]*Step, error) {
		return o.fetcher.CancelSteps(ctx, params)
	}
	plan := &cachePlan{
		optimistic: func(c *QueryCache) {
			removeCachedOrder(c, QueryGroupOffers, QueryGroupOffersCount, params.OrderID)
			removeCachedOrder(c, QueryGroupListings, QueryGroupListingsCount, params.OrderID)
		},
		invalidateDelayed: []QueryGroup{QueryGroupHighestOffers, QueryGroupLowestListings},
		invalidateOnFailure: []QueryGroup{
			QueryGroupOffers, QueryGroupOffersCount, QueryGroupListings,
			QueryGroupListingsCount, QueryGroupHighestOffers, QueryGroupLowestListings,
		},
	}
	return o.execute(ctx, ActionCancel, fetch, o.runCancelSteps, plan, func(result *TransactionResult) {
		o.trackAction(ActionCancel, result, map[string]string{
			"collectionAddress": params.CollectionAddress,
			"orderId":           params.OrderID,
		}, Price{})
	})
}

// BuyMarket runs the secondary-market buy action.
func (o *Orchestrator) BuyMarket(ctx context.Context, params *BuyParams) (*TransactionResult, error) {
	fetch := func(ctx context.Context) ([]*Step, error) {
		return o.fetcher.BuySteps(ctx, params)
	}
	plan := &cachePlan{
		invalidate: []QueryGroup{
			QueryGroupBalances, QueryGroupListings, QueryGroupListingsCount,
			QueryGroupLowestListings, QueryGroupUserBalances, QueryGroupCollectionBalanceDetails,
		},
	}
	return o.execute(ctx, ActionBuy, fetch, o.runStepsInOrder, plan, func(result *TransactionResult) {
		o.trackAction(ActionBuy, result, map[string]string{
			"collectionAddress": params.CollectionAddress,
			"orderId":           params.OrderID,
			"marketplace":       "market",
		}, params.Price)
	})
}

// BuyShop runs the primary-sale buy action. Steps are constructed locally
// from the sale contract layout and the buyer's current allowance.
func (o *Orchestrator) BuyShop(ctx context.Context, params *MintParams) (*TransactionResult, error) {
	fetch := func(ctx context.Context) ([]*Step, error) {
		return o.shop.MintSteps(ctx, params)
	}
	plan := &cachePlan{
		invalidate: []QueryGroup{
			QueryGroupBalances, QueryGroupUserBalances, QueryGroupCollectionBalanceDetails,
		},
	}
	return o.execute(ctx, ActionBuy, fetch, o.runStepsInOrder, plan, func(result *TransactionResult) {
		o.trackAction(ActionBuy, result, map[string]string{
			"collectionAddress": params.CollectionAddress,
			"marketplace":       "shop",
		}, Price{Amount: params.MaxTotal, CurrencyAddress: params.PaymentToken})
	})
}

// Transfer moves a collectible to another account.
func (o *Orchestrator) Transfer(ctx context.Context, params *TransferParams) (*TransactionResult, error) {
	fetch := func(ctx context.Context) ([]*Step, error) {
		return transferSteps(params)
	}
	plan := &cachePlan{
		invalidate: []QueryGroup{
			QueryGroupBalances, QueryGroupCollectionBalanceDetails, QueryGroupUserBalances,
		},
	}
	return o.execute(ctx, ActionTransfer, fetch, o.runStepsInOrder, plan, func(result *TransactionResult) {
		o.trackAction(ActionTransfer, result, map[string]string{
			"collectionAddress": params.CollectionAddress,
			"tokenId":           params.TokenID,
		}, Price{})
	})
}

type stepsFunc func(ctx context.Context) ([]*Step, error)
type runFunc func(ctx context.Context, steps []*Step) (common.Hash, string, error)

func (o *Orchestrator) execute(ctx context.Context, action ActionKind, fetch stepsFunc, run runFunc, plan *cachePlan, track func(*TransactionResult)) (*TransactionResult, error) {
	o.steps.SetTransactionExist(true)
	if o.wallet.Kind() == WalletKindWaaS {
		o.awaitingFee.Store(true)
	} else {
		o.steps.SetTransactionExecuting(true)
	}

	fail := func(err error) (*TransactionResult, error) {
		o.awaitingFee.Store(false)
		// A failed approval stays visible so the UI can offer a retry; only
		// the executing flags and the transaction slot are cleared.
		o.steps.SetTransactionExist(false)
		o.steps.SetApprovalExecuting(false)
		for _, g := range plan.invalidateOnFailure {
			o.cache.InvalidateGroup(g)
		}
		o.reportError(err)
		return nil, err
	}

	steps, err := fetch(ctx)
	if err != nil {
		return fail(err)
	}

	hash, orderID, err := run(ctx, steps)
	if err != nil {
		return fail(err)
	}
	o.awaitingFee.Store(false)

	if o.cb.OnClose != nil {
		o.cb.OnClose()
	}

	result := &TransactionResult{Hash: hash, OrderID: orderID, Status: StatusSuccess}
	if hash != (common.Hash{}) {
		if o.cb.OnStatus != nil {
			o.cb.OnStatus(StatusPending)
		}
		status, waitErr := o.monitor.WaitForConfirmation(ctx, hash)
		result.Status = status
		o.steps.Reset()
		if o.cb.OnStatus != nil {
			o.cb.OnStatus(status)
		}
		if status != StatusSuccess {
			for _, g := range plan.invalidateOnFailure {
				o.cache.InvalidateGroup(g)
			}
			if status == StatusFailed {
				if waitErr == nil {
					waitErr = &APIError{Message: "transaction reverted"}
				}
				o.reportError(waitErr)
			}
			return result, waitErr
		}
	} else {
		o.steps.Reset()
		if o.cb.OnStatus != nil {
			o.cb.OnStatus(StatusSuccess)
		}
	}

	o.reconcileCache(plan)
	track(result)
	o.logger.Debug("order action completed",
		zap.String("action", action.String()),
		zap.String("hash", hash.Hex()),
		zap.String("orderId", orderID))

	if o.cb.OnSuccess != nil {
		o.cb.OnSuccess(result)
	}
	return result, nil
}

func (o *Orchestrator) reconcileCache(plan *cachePlan) {
	if plan.optimistic != nil {
		plan.optimistic(o.cache)
	}
	for _, g := range plan.invalidate {
		o.cache.InvalidateGroup(g)
	}
	for _, g := range plan.invalidateDelayed {
		o.cache.InvalidateGroupAfter(g, o.invalidationDelay)
	}
}

// runStepsInOrder executes a fetched step list. The approval step always
// runs first and its receipt is awaited before anything else; remaining
// steps run strictly in list order. A hash and an order id are tracked
// independently since one run may yield both.
func (o *Orchestrator) runStepsInOrder(ctx context.Context, steps []*Step) (common.Hash, string, error) {
	if approval := findStep(steps, StepIDTokenApproval); approval != nil {
		if err := o.runApproval(ctx, approval); err != nil {
			return common.Hash{}, "", err
		}
	}

	var hash common.Hash
	var orderID string
	for _, step := range steps {
		if step.ID == StepIDTokenApproval {
			continue
		}
		result, err := o.processor.ProcessStep(ctx, step, o.chainID)
		if err != nil {
			return hash, orderID, err
		}
		switch result.Type {
		case StepResultTransaction:
			hash = result.Hash
		case StepResultSignature:
			if result.OrderID != "" {
				orderID = result.OrderID
			}
		}
	}

	if hash == (common.Hash{}) && orderID == "" {
		return hash, orderID, ErrStepNotFound
	}
	return hash, orderID, nil
}

// runCancelSteps handles the cancel shape: at most one cancel transaction
// step or one EIP-712 signature step is expected.
func (o *Orchestrator) runCancelSteps(ctx context.Context, steps []*Step) (common.Hash, string, error) {
	step := findStep(steps, StepIDCancel)
	if step == nil {
		step = findStep(steps, StepIDSignEIP712)
	}
	if step == nil {
		return common.Hash{}, "", ErrStepNotFound
	}

	result, err := o.processor.ProcessStep(ctx, step, o.chainID)
	if err != nil {
		return common.Hash{}, "", err
	}
	if result.Type == StepResultTransaction {
		return result.Hash, "", nil
	}
	return common.Hash{}, result.OrderID, nil
}

// runApproval executes the token approval step and awaits its receipt. On
// failure only the executing flag is cleared; the slot stays visible so the
// UI can offer a retry.
func (o *Orchestrator) runApproval(ctx context.Context, step *Step) error {
	o.steps.SetApprovalExist(true)
	o.steps.SetApprovalExecuting(true)

	result, err := o.processor.ProcessStep(ctx, step, o.chainID)
	if err != nil {
		o.steps.SetApprovalExecuting(false)
		return err
	}
	if result.Type == StepResultTransaction {
		status, err := o.monitor.WaitForConfirmation(ctx, result.Hash)
		if err != nil {
			o.steps.SetApprovalExecuting(false)
			return err
		}
		if status != StatusSuccess {
			o.steps.SetApprovalExecuting(false)
			return &APIError{Message: "approval transaction did not succeed"}
		}
	}

	o.steps.SetApprovalExist(false)
	o.fetcher.InvalidateProbes()
	return nil
}

func (o *Orchestrator) trackAction(action ActionKind, result *TransactionResult, props map[string]string, price Price) {
	props["chainId"] = strconv.Itoa(int(o.chainID))
	if result.OrderID != "" {
		props["requestId"] = result.OrderID
	}
	if result.Hash != (common.Hash{}) {
		props["txnHash"] = result.Hash.Hex()
	}

	nums := map[string]float64{}
	if price.Amount != "" {
		if amount, err := ParseBig(price.Amount); err == nil {
			decimals := MaxDecimals
			if price.CurrencyDecimals != nil {
				decimals = *price.CurrencyDecimals
			}
			nums["price"] = UnitsToFloat(amount, decimals)
		}
	}
	o.tracker.Track(action.String(), props, nums)
}

// removeCachedOrder drops one order from every cached list of a group and
// decrements the matching cached counts. Only present entries are touched.
func removeCachedOrder(c *QueryCache, listGroup, countGroup QueryGroup, orderID string) {
	removed := false
	c.UpdateGroupIfPresent(listGroup, func(key string, old interface{}) interface{} {
		orders, ok := old.([]*Order)
		if !ok {
			return old
		}
		filtered := make([]*Order, 0, len(orders))
		for _, ord := range orders {
			if ord.OrderID == orderID {
				removed = true
				continue
			}
			filtered = append(filtered, ord)
		}
		return filtered
	})
	if !removed {
		return
	}
	c.UpdateGroupIfPresent(countGroup, func(key string, old interface{}) interface{} {
		count, ok := old.(int)
		if !ok || count <= 0 {
			return old
		}
		return count - 1
	})
}

func transferSteps(params *TransferParams) ([]*Step, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	from := common.HexToAddress(params.From)
	to := common.HexToAddress(params.To)
	tokenID, err := ParseBig(params.TokenID)
	if err != nil {
		return nil, err
	}

	var calldata []byte
	switch params.ContractType {
	case ContractTypeERC1155:
		quantity, err := ParseBig(params.Quantity)
		if err != nil {
			return nil, err
		}
		if quantity.Sign() == 0 {
			quantity = big.NewInt(1)
		}
		calldata, err = chain.EncodeERC1155Transfer(from, to, tokenID, quantity)
		if err != nil {
			return nil, err
		}
	default:
		calldata, err = chain.EncodeERC721Transfer(from, to, tokenID)
		if err != nil {
			return nil, err
		}
	}

	// Transfers ride the generic transaction path; no backend round trip.
	return []*Step{{
		ID:   StepIDBuy,
		To:   params.CollectionAddress,
		Data: hexutil.Encode(calldata),
	}}, nil
}
