package marketsdk

import (
	"time"

	"go.uber.org/zap"
)

// ChainID represents a blockchain chain ID
type ChainID int

const (
	ChainIDEthereum ChainID = 1
	ChainIDPolygon  ChainID = 137
	ChainIDArbitrum ChainID = 42161
	ChainIDBase     ChainID = 8453
)

// SupportedChainIDs lists all supported chain IDs
var SupportedChainIDs = []ChainID{ChainIDEthereum, ChainIDPolygon, ChainIDArbitrum, ChainIDBase}

// Endpoints holds the backend hosts for a chain
type Endpoints struct {
	Marketplace string
	Indexer     string
	IndexerWS   string
}

// DefaultEndpoints maps chain IDs to their backend hosts
var DefaultEndpoints = map[ChainID]Endpoints{
	ChainIDEthereum: {
		Marketplace: "https://marketplace-api.tokenreef.app/mainnet",
		Indexer:     "https://mainnet-indexer.tokenreef.app",
		IndexerWS:   "wss://mainnet-indexer.tokenreef.app/ws",
	},
	ChainIDPolygon: {
		Marketplace: "https://marketplace-api.tokenreef.app/polygon",
		Indexer:     "https://polygon-indexer.tokenreef.app",
		IndexerWS:   "wss://polygon-indexer.tokenreef.app/ws",
	},
	ChainIDArbitrum: {
		Marketplace: "https://marketplace-api.tokenreef.app/arbitrum",
		Indexer:     "https://arbitrum-indexer.tokenreef.app",
		IndexerWS:   "wss://arbitrum-indexer.tokenreef.app/ws",
	},
	ChainIDBase: {
		Marketplace: "https://marketplace-api.tokenreef.app/base",
		Indexer:     "https://base-indexer.tokenreef.app",
		IndexerWS:   "wss://base-indexer.tokenreef.app/ws",
	},
}

// ClientConfig holds configuration for creating a Client
type ClientConfig struct {
	// Hosts default per chain when empty.
	MarketplaceHost string
	IndexerHost     string
	IndexerWSHost   string
	APIKey          string
	ChainID         ChainID

	// RPCURL enables on-chain reads (allowance probes, receipt polling).
	// Orchestrators cannot be constructed without it.
	RPCURL string

	// Logger defaults to zap.NewNop(); errors without a caller-supplied
	// OnError callback are only ever debug-logged.
	Logger *zap.Logger

	// Tracker receives fire-and-forget analytics events. Defaults to
	// NopTracker.
	Tracker Tracker

	// ConfirmationTimeout bounds the receipt wait; exceeding it yields
	// StatusTimeout, not StatusFailed.
	ConfirmationTimeout time.Duration
	ReceiptPollInterval time.Duration

	// InvalidationDelay is the grace period before the delayed cache
	// invalidation after a cancel, covering order-book re-aggregation lag.
	InvalidationDelay time.Duration

	// ApprovalProbeTTL bounds memoization of "would an approval step
	// exist" probes, keyed by the probe inputs.
	ApprovalProbeTTL time.Duration

	CurrenciesCacheTTL time.Duration
	QueryCacheSize     int

	// SkipFeeBalanceChecks disables balance annotation of fee options.
	SkipFeeBalanceChecks bool
}

func (c *ClientConfig) applyDefaults() {
	endpoints := DefaultEndpoints[c.ChainID]
	if c.MarketplaceHost == "" {
		c.MarketplaceHost = endpoints.Marketplace
	}
	if c.IndexerHost == "" {
		c.IndexerHost = endpoints.Indexer
	}
	if c.IndexerWSHost == "" {
		c.IndexerWSHost = endpoints.IndexerWS
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Tracker == nil {
		c.Tracker = NopTracker{}
	}
	if c.ConfirmationTimeout == 0 {
		c.ConfirmationTimeout = 120 * time.Second
	}
	if c.ReceiptPollInterval == 0 {
		c.ReceiptPollInterval = 2 * time.Second
	}
	if c.InvalidationDelay == 0 {
		c.InvalidationDelay = 2 * time.Second
	}
	if c.ApprovalProbeTTL == 0 {
		c.ApprovalProbeTTL = 30 * time.Second
	}
	if c.CurrenciesCacheTTL == 0 {
		c.CurrenciesCacheTTL = 1 * time.Hour
	}
	if c.QueryCacheSize == 0 {
		c.QueryCacheSize = 512
	}
}
