package marketsdk

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/tokenreef/marketplace-sdk-go/chain"
)

// StepID identifies one unit of work required to realize an order action.
// The set is closed; anything else must be rejected by the processor.
type StepID string

const (
	StepIDTokenApproval StepID = "token_approval"
	StepIDBuy           StepID = "buy"
	StepIDSell          StepID = "sell"
	StepIDCancel        StepID = "cancel"
	StepIDCreateListing StepID = "create_listing"
	StepIDCreateOffer   StepID = "create_offer"
	StepIDSignEIP191    StepID = "sign_eip191"
	StepIDSignEIP712    StepID = "sign_eip712"
	StepIDUnknown       StepID = "unknown"
)

// PostRequest describes the backend registration call a signature step
// carries when the signed payload must be turned into an order.
type PostRequest struct {
	Method   string          `json:"method"`
	Endpoint string          `json:"endpoint"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// Step is one unit of work in an order action. Steps are produced fresh by
// each fetch, are immutable, and are consumed exactly once by the processor.
// A step is either transaction-like or signature-like; classification is by
// id membership, never by field presence.
type Step struct {
	ID                   StepID              `json:"id"`
	To                   string              `json:"to,omitempty"`
	Data                 string              `json:"data,omitempty"`
	Value                string              `json:"value,omitempty"`
	Gas                  string              `json:"gas,omitempty"`
	MaxFeePerGas         string              `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string              `json:"maxPriorityFeePerGas,omitempty"`
	Price                string              `json:"price,omitempty"`
	Signature            *apitypes.TypedData `json:"signature,omitempty"`
	Post                 *PostRequest        `json:"post,omitempty"`
}

// StepResultType discriminates the step processor's result union.
type StepResultType int

const (
	StepResultTransaction StepResultType = iota
	StepResultSignature
)

// StepResult is the processor's discriminated result: a transaction hash,
// a detached signature, or an order id when the signature was registered
// with the backend.
type StepResult struct {
	Type      StepResultType
	Hash      common.Hash
	Signature string
	OrderID   string
}

// TransactionStatus is the terminal (or pending) state of a confirmation.
type TransactionStatus int

const (
	StatusPending TransactionStatus = iota
	StatusSuccess
	StatusFailed
	StatusTimeout
)

func (s TransactionStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// WalletKind distinguishes self-custody wallets from custodial (WaaS)
// wallets, which require the fee-option confirmation protocol.
type WalletKind int

const (
	WalletKindEOA WalletKind = iota
	WalletKindWaaS
)

// OrderbookKind is the marketplace protocol an order is placed against.
type OrderbookKind string

const (
	OrderbookKindNative  OrderbookKind = "native"
	OrderbookKindSeaport OrderbookKind = "seaport"
)

// ContractType is the collection's token standard.
type ContractType string

const (
	ContractTypeERC721  ContractType = "ERC721"
	ContractTypeERC1155 ContractType = "ERC1155"
)

// ActionKind is the tagged set of order actions an orchestrator can run.
type ActionKind int

const (
	ActionListing ActionKind = iota
	ActionOffer
	ActionSell
	ActionCancel
	ActionBuy
	ActionTransfer
)

func (a ActionKind) String() string {
	switch a {
	case ActionListing:
		return "listing"
	case ActionOffer:
		return "offer"
	case ActionSell:
		return "sell"
	case ActionCancel:
		return "cancel"
	case ActionBuy:
		return "buy"
	case ActionTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Price is an amount in base units of a specific currency. A nil
// CurrencyDecimals means the decimals are unknown; zero is a valid value.
type Price struct {
	Amount           string `json:"amount"`
	CurrencyAddress  string `json:"currencyAddress"`
	CurrencyDecimals *int   `json:"currencyDecimals,omitempty"`
}

// AdditionalFee is an extra fee line attached to a buy or sell.
type AdditionalFee struct {
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

// ListingParams are the inputs for generating create-listing steps.
type ListingParams struct {
	ChainID           ChainID       `json:"chainId"`
	CollectionAddress string        `json:"collectionAddress"`
	TokenID           string        `json:"tokenId"`
	Owner             string        `json:"owner"`
	ContractType      ContractType  `json:"contractType"`
	OrderbookKind     OrderbookKind `json:"orderbook"`
	Price             Price         `json:"price"`
	Quantity          string        `json:"quantity"`
	Expiry            int64         `json:"expiry,omitempty"`
}

func (p *ListingParams) validate() error {
	if p.CollectionAddress == "" || p.TokenID == "" || p.Owner == "" {
		return &InvalidParamError{Message: "collectionAddress, tokenId and owner are required"}
	}
	if p.Price.Amount == "" {
		return &InvalidParamError{Message: "price amount is required"}
	}
	return nil
}

func (p *ListingParams) probeKey() string {
	return strings.Join([]string{p.CollectionAddress, p.TokenID, p.Owner, p.Price.CurrencyAddress, p.Price.Amount, p.Quantity}, "|")
}

// OfferParams are the inputs for generating create-offer steps.
type OfferParams struct {
	ChainID           ChainID       `json:"chainId"`
	CollectionAddress string        `json:"collectionAddress"`
	TokenID           string        `json:"tokenId"`
	Maker             string        `json:"maker"`
	ContractType      ContractType  `json:"contractType"`
	OrderbookKind     OrderbookKind `json:"orderbook"`
	Price             Price         `json:"price"`
	Quantity          string        `json:"quantity"`
	Expiry            int64         `json:"expiry,omitempty"`
}

func (p *OfferParams) validate() error {
	if p.CollectionAddress == "" || p.TokenID == "" || p.Maker == "" {
		return &InvalidParamError{Message: "collectionAddress, tokenId and maker are required"}
	}
	if p.Price.Amount == "" {
		return &InvalidParamError{Message: "price amount is required"}
	}
	return nil
}

func (p *OfferParams) probeKey() string {
	return strings.Join([]string{p.CollectionAddress, p.TokenID, p.Maker, p.Price.CurrencyAddress, p.Price.Amount, p.Quantity}, "|")
}

// SellParams are the inputs for accepting an offer.
type SellParams struct {
	ChainID           ChainID         `json:"chainId"`
	CollectionAddress string          `json:"collectionAddress"`
	Seller            string          `json:"seller"`
	OrderID           string          `json:"orderId"`
	Quantity          string          `json:"quantity"`
	Price             Price           `json:"price,omitempty"`
	AdditionalFees    []AdditionalFee `json:"additionalFees,omitempty"`
}

func (p *SellParams) validate() error {
	if p.CollectionAddress == "" || p.Seller == "" || p.OrderID == "" {
		return &InvalidParamError{Message: "collectionAddress, seller and orderId are required"}
	}
	return nil
}

func (p *SellParams) probeKey() string {
	return strings.Join([]string{p.CollectionAddress, p.Seller, p.OrderID, p.Quantity}, "|")
}

// CancelParams are the inputs for cancelling an order.
type CancelParams struct {
	ChainID           ChainID `json:"chainId"`
	CollectionAddress string  `json:"collectionAddress"`
	Maker             string  `json:"maker"`
	OrderID           string  `json:"orderId"`
}

func (p *CancelParams) validate() error {
	if p.OrderID == "" || p.Maker == "" {
		return &InvalidParamError{Message: "orderId and maker are required"}
	}
	return nil
}

// BuyParams are the inputs for the market buy path. Steps come from a
// single backend call keyed by these fields.
type BuyParams struct {
	ChainID           ChainID         `json:"chainId"`
	CollectionAddress string          `json:"collectionAddress"`
	Buyer             string          `json:"buyer"`
	OrderID           string          `json:"orderId"`
	CollectibleID     string          `json:"collectibleId"`
	Quantity          string          `json:"quantity"`
	Price             Price           `json:"price,omitempty"`
	OrderbookKind     OrderbookKind   `json:"orderbook,omitempty"`
	AdditionalFees    []AdditionalFee `json:"additionalFees,omitempty"`
}

func (p *BuyParams) validate() error {
	if p.CollectionAddress == "" || p.Buyer == "" || p.OrderID == "" {
		return &InvalidParamError{Message: "collectionAddress, buyer and orderId are required"}
	}
	return nil
}

// MintParams are the inputs for the primary-sale (shop) buy path. Steps are
// constructed locally, never fetched from the marketplace backend.
type MintParams struct {
	ChainID             ChainID
	SaleContractAddress string
	CollectionAddress   string
	Recipient           string
	TokenIDs            []string
	Amounts             []string
	// PaymentToken is the ERC-20 used to pay; the zero address means the
	// chain's native token.
	PaymentToken    string
	MaxTotal        string
	MerkleProof     []string
	ContractVersion chain.SaleContractVersion
}

func (p *MintParams) validate() error {
	if p.SaleContractAddress == "" || p.Recipient == "" {
		return &InvalidParamError{Message: "saleContractAddress and recipient are required"}
	}
	if len(p.TokenIDs) == 0 || len(p.TokenIDs) != len(p.Amounts) {
		return &InvalidParamError{Message: "tokenIds and amounts must be non-empty and equal length"}
	}
	if p.MaxTotal == "" {
		return &InvalidParamError{Message: "maxTotal is required"}
	}
	return nil
}

// TransferParams are the inputs for transferring a collectible.
type TransferParams struct {
	ChainID           ChainID
	CollectionAddress string
	From              string
	To                string
	TokenID           string
	Quantity          string
	ContractType      ContractType
}

func (p *TransferParams) validate() error {
	if p.CollectionAddress == "" || p.From == "" || p.To == "" || p.TokenID == "" {
		return &InvalidParamError{Message: "collectionAddress, from, to and tokenId are required"}
	}
	return nil
}

// TransactionResult is the outcome of an orchestrated action. Hash and
// OrderID are tracked independently; one run may yield both.
type TransactionResult struct {
	Hash    common.Hash
	OrderID string
	Status  TransactionStatus
}

// Order is the read-model shape cached for listings and offers.
type Order struct {
	OrderID           string `json:"orderId"`
	CollectionAddress string `json:"collectionAddress"`
	TokenID           string `json:"tokenId"`
	Maker             string `json:"maker"`
	PriceAmount       string `json:"priceAmount"`
	CurrencyAddress   string `json:"currencyAddress"`
	Quantity          string `json:"quantity"`
	CreatedAt         int64  `json:"createdAt"`
}

// Currency describes a currency accepted by the marketplace.
type Currency struct {
	ChainID         ChainID `json:"chainId"`
	ContractAddress string  `json:"contractAddress"`
	Name            string  `json:"name"`
	Symbol          string  `json:"symbol"`
	Decimals        int     `json:"decimals"`
	NativeCurrency  bool    `json:"nativeCurrency"`
}

// CheckoutOptions describes which checkout routes the backend supports for
// a given order or sales contract.
type CheckoutOptions struct {
	Crypto bool `json:"crypto"`
	Swap   bool `json:"swap"`
	OnRamp bool `json:"onRamp"`
}

// FeeToken identifies the asset of a fee option. A nil contract address
// means the chain's native token.
type FeeToken struct {
	ContractAddress *string `json:"contractAddress"`
	Decimals        int     `json:"decimals"`
	Symbol          string  `json:"symbol"`
}

// FeeOption is a candidate asset for paying network fees, annotated with
// the connected account's balance when balance checking is enabled.
type FeeOption struct {
	Token FeeToken `json:"token"`
	Value string   `json:"value"`

	Balance                *big.Int `json:"-"`
	BalanceFormatted       string   `json:"balanceFormatted,omitempty"`
	HasEnoughBalanceForFee bool     `json:"hasEnoughBalanceForFee,omitempty"`
}

// FeeOptionConfirmation is a pending fee negotiation. At most one exists
// per wallet session.
type FeeOptionConfirmation struct {
	ID      string
	Options []*FeeOption
	ChainID ChainID
}

// FeeOptionResult resumes the suspended wallet provider call.
type FeeOptionResult struct {
	ID              string
	FeeTokenAddress *string
	Confirmed       bool
}
