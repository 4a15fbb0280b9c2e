package marketsdk

import (
	"context"
	"fmt"
	"strconv"

	"github.com/imkira/go-ttlmap"
	"go.uber.org/zap"

	"github.com/tokenreef/marketplace-sdk-go/chain"
)

// Client is the main SDK client
type Client struct {
	config     ClientConfig
	api        *APIClient
	indexer    *IndexerClient
	reader     *chain.Reader
	fetcher    *StepFetcher
	shop       *ShopStepFetcher
	feeOptions *FeeOptionManager
	cache      *QueryCache
	receipts   *ReceiptStream
	currencies *ttlmap.Map
	logger     *zap.Logger
}

// NewClient creates a new marketplace SDK client
func NewClient(config ClientConfig) (*Client, error) {
	isSupported := false
	for _, supportedID := range SupportedChainIDs {
		if config.ChainID == supportedID {
			isSupported = true
			break
		}
	}
	if !isSupported {
		return nil, &InvalidParamError{
			Message: fmt.Sprintf("chain_id must be one of %v", SupportedChainIDs),
		}
	}

	config.applyDefaults()

	api := NewAPIClient(config.MarketplaceHost, config.APIKey, config.ChainID)
	indexer := NewIndexerClient(config.IndexerHost, config.APIKey)

	cache, err := NewQueryCache(config.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	c := &Client{
		config:     config,
		api:        api,
		indexer:    indexer,
		fetcher:    NewStepFetcher(api, config.ApprovalProbeTTL, config.Logger),
		feeOptions: NewFeeOptionManager(indexer, config.SkipFeeBalanceChecks, config.Logger),
		cache:      cache,
		currencies: ttlmap.New(&ttlmap.Options{InitialCapacity: 4}),
		logger:     config.Logger,
	}

	// On-chain reads are optional; orchestrators require them.
	if config.RPCURL != "" {
		reader, err := chain.NewReader(config.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create chain reader: %w", err)
		}
		c.reader = reader
		c.shop = NewShopStepFetcher(reader, config.Logger)
	}

	if config.IndexerWSHost != "" {
		c.receipts = NewReceiptStream(ReceiptStreamConfig{
			Endpoint: config.IndexerWSHost,
			APIKey:   config.APIKey,
			OnError: func(err error) {
				config.Logger.Debug("receipt stream error", zap.Error(err))
			},
		})
	}

	return c, nil
}

// API exposes the raw marketplace API client.
func (c *Client) API() *APIClient {
	return c.api
}

// Indexer exposes the raw indexer client.
func (c *Client) Indexer() *IndexerClient {
	return c.indexer
}

// Cache exposes the query cache shared by orchestrators and read helpers.
func (c *Client) Cache() *QueryCache {
	return c.cache
}

// FeeOptions exposes the fee-option negotiation state so UIs can render
// the pending confirmation and resolve it.
func (c *Client) FeeOptions() *FeeOptionManager {
	return c.feeOptions
}

// StepFetcher exposes the step fetcher for approval probes.
func (c *Client) StepFetcher() *StepFetcher {
	return c.fetcher
}

// WatchReceipts connects the indexer receipt stream so confirmations are
// pushed instead of polled. Polling remains the fallback.
func (c *Client) WatchReceipts(ctx context.Context) error {
	if c.receipts == nil {
		return &InvalidParamError{Message: "no indexer websocket host configured"}
	}
	return c.receipts.Connect(ctx)
}

// NewOrchestrator builds an orchestrator bound to a wallet. Requires an
// RPC URL since receipt confirmation and allowance probes read the chain.
// Custodial wallets get the client's fee negotiation handler registered.
func (c *Client) NewOrchestrator(wallet Wallet, cb Callbacks) (*Orchestrator, error) {
	if c.reader == nil {
		return nil, &InvalidParamError{Message: "orchestrators require an RPC URL"}
	}

	var stream ReceiptSubscriber
	if c.receipts != nil && c.receipts.IsConnected() {
		stream = c.receipts
	}
	monitor := NewStatusMonitor(c.reader, stream, c.config.ConfirmationTimeout, c.config.ReceiptPollInterval, c.logger)
	processor := NewStepProcessor(wallet, c.api, c.logger)

	if fw, ok := wallet.(FeeHandlingWallet); ok && wallet.Kind() == WalletKindWaaS {
		fw.SetFeeConfirmationHandler(func(ctx context.Context, conf *FeeOptionConfirmation) (*FeeOptionResult, error) {
			account := ""
			if addr, connected := wallet.Address(); connected {
				account = addr.Hex()
			}
			return c.feeOptions.RequestConfirmation(ctx, account, conf.ID, conf.Options, conf.ChainID)
		})
	}

	return newOrchestrator(
		wallet,
		c.fetcher,
		c.shop,
		processor,
		monitor,
		c.cache,
		c.feeOptions,
		c.config.Tracker,
		c.config.ChainID,
		c.config.InvalidationDelay,
		c.logger,
		cb,
	), nil
}

// CancelOrdersBatch cancels several orders sequentially through one
// orchestrator. Failures stop the batch; completed cancels stay applied.
func (c *Client) CancelOrdersBatch(ctx context.Context, wallet Wallet, cb Callbacks, params []*CancelParams) ([]*TransactionResult, error) {
	orchestrator, err := c.NewOrchestrator(wallet, cb)
	if err != nil {
		return nil, err
	}

	results := make([]*TransactionResult, 0, len(params))
	for _, p := range params {
		result, err := orchestrator.CancelOrder(ctx, p)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// ListListings fetches active listings through the query cache.
func (c *Client) ListListings(ctx context.Context, collectionAddress, tokenID string, page, limit int) ([]*Order, error) {
	key := QueryKey{Group: QueryGroupListings, Parts: []string{collectionAddress, tokenID, strconv.Itoa(page), strconv.Itoa(limit)}}
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]*Order), nil
	}
	orders, err := c.api.ListListings(ctx, collectionAddress, tokenID, page, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, orders)
	return orders, nil
}

// ListOffers fetches active offers through the query cache.
func (c *Client) ListOffers(ctx context.Context, collectionAddress, tokenID string, page, limit int) ([]*Order, error) {
	key := QueryKey{Group: QueryGroupOffers, Parts: []string{collectionAddress, tokenID, strconv.Itoa(page), strconv.Itoa(limit)}}
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]*Order), nil
	}
	orders, err := c.api.ListOffers(ctx, collectionAddress, tokenID, page, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, orders)
	return orders, nil
}

// CountListings fetches the listing count through the query cache.
func (c *Client) CountListings(ctx context.Context, collectionAddress, tokenID string) (int, error) {
	key := QueryKey{Group: QueryGroupListingsCount, Parts: []string{collectionAddress, tokenID}}
	if cached, ok := c.cache.Get(key); ok {
		return cached.(int), nil
	}
	count, err := c.api.CountListings(ctx, collectionAddress, tokenID)
	if err != nil {
		return 0, err
	}
	c.cache.Set(key, count)
	return count, nil
}

// CountOffers fetches the offer count through the query cache.
func (c *Client) CountOffers(ctx context.Context, collectionAddress, tokenID string) (int, error) {
	key := QueryKey{Group: QueryGroupOffersCount, Parts: []string{collectionAddress, tokenID}}
	if cached, ok := c.cache.Get(key); ok {
		return cached.(int), nil
	}
	count, err := c.api.CountOffers(ctx, collectionAddress, tokenID)
	if err != nil {
		return 0, err
	}
	c.cache.Set(key, count)
	return count, nil
}

// HighestOffer fetches the best offer through the query cache. A nil order
// means no offers exist.
func (c *Client) HighestOffer(ctx context.Context, collectionAddress, tokenID string) (*Order, error) {
	key := QueryKey{Group: QueryGroupHighestOffers, Parts: []string{collectionAddress, tokenID}}
	if cached, ok := c.cache.Get(key); ok {
		order, _ := cached.(*Order)
		return order, nil
	}
	order, err := c.api.GetHighestOffer(ctx, collectionAddress, tokenID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, order)
	return order, nil
}

// LowestListing fetches the cheapest listing through the query cache. A nil
// order means no listings exist.
func (c *Client) LowestListing(ctx context.Context, collectionAddress, tokenID string) (*Order, error) {
	key := QueryKey{Group: QueryGroupLowestListings, Parts: []string{collectionAddress, tokenID}}
	if cached, ok := c.cache.Get(key); ok {
		order, _ := cached.(*Order)
		return order, nil
	}
	order, err := c.api.GetLowestListing(ctx, collectionAddress, tokenID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, order)
	return order, nil
}

const currenciesCacheKey = "currencies"

// Currencies fetches accepted currencies with a TTL cache; the set changes
// rarely.
func (c *Client) Currencies(ctx context.Context) ([]*Currency, error) {
	if item, err := c.currencies.Get(currenciesCacheKey); err == nil {
		return item.Value().([]*Currency), nil
	}
	currencies, err := c.api.GetCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.currencies.Set(currenciesCacheKey, ttlmap.NewItem(currencies, ttlmap.WithTTL(c.config.CurrenciesCacheTTL)), nil); err != nil {
		c.logger.Debug("currencies cache write failed", zap.Error(err))
	}
	return currencies, nil
}

// CheckoutOptionsMarketplace fetches supported checkout routes for orders.
func (c *Client) CheckoutOptionsMarketplace(ctx context.Context, wallet string, orderIDs []string) (*CheckoutOptions, error) {
	return c.api.CheckoutOptionsMarketplace(ctx, wallet, orderIDs)
}

// CheckoutOptionsSalesContract fetches supported checkout routes for a
// primary sale.
func (c *Client) CheckoutOptionsSalesContract(ctx context.Context, wallet, contractAddress, collectionAddress string) (*CheckoutOptions, error) {
	return c.api.CheckoutOptionsSalesContract(ctx, wallet, contractAddress, collectionAddress)
}

// Close closes the client and cleans up resources
func (c *Client) Close() {
	if c.receipts != nil {
		_ = c.receipts.Disconnect()
	}
	if c.reader != nil {
		c.reader.Close()
	}
	c.cache.Purge()
	c.currencies.Drain()
}
