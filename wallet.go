package marketsdk

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TransactionRequest is the wallet-facing shape of a transaction step after
// amount parsing.
type TransactionRequest struct {
	ChainID              ChainID
	To                   common.Address
	Data                 []byte
	Value                *big.Int
	Gas                  uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Wallet abstracts the connected signer. Implementations wrap browser
// providers, WaaS backends or local keys; the SDK never sees private keys.
type Wallet interface {
	// Address returns the connected account, or false when disconnected.
	Address() (common.Address, bool)
	Kind() WalletKind
	ChainID(ctx context.Context) (ChainID, error)
	SendTransaction(ctx context.Context, req *TransactionRequest) (common.Hash, error)
	SignMessage(ctx context.Context, msg []byte) (string, error)
	SignTypedData(ctx context.Context, data *apitypes.TypedData) (string, error)
	SwitchChain(ctx context.Context, chainID ChainID) error
}

// FeeConfirmationHandler is invoked by a custodial wallet when a sponsored
// transaction requires the user to pick a fee asset. The wallet call stays
// suspended until the returned confirmation resolves.
type FeeConfirmationHandler func(ctx context.Context, confirmation *FeeOptionConfirmation) (*FeeOptionResult, error)

// FeeHandlingWallet is implemented by custodial wallets that surface fee
// option negotiation.
type FeeHandlingWallet interface {
	Wallet
	SetFeeConfirmationHandler(handler FeeConfirmationHandler)
}

// EnsureChain switches the wallet to the target chain when it is elsewhere.
// A user rejection surfaces as ErrUserRejected; any other failure is wrapped
// in a ChainSwitchError.
func EnsureChain(ctx context.Context, w Wallet, chainID ChainID) error {
	current, err := w.ChainID(ctx)
	if err == nil && current == chainID {
		return nil
	}
	if err := w.SwitchChain(ctx, chainID); err != nil {
		if IsUserRejection(err) {
			return ErrUserRejected
		}
		return &ChainSwitchError{ChainID: chainID, Err: err}
	}
	return nil
}
