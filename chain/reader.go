package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Reader performs read-only chain access: allowance and balance probes and
// receipt lookups. Signing stays with the connected wallet.
type Reader struct {
	client *ethclient.Client
}

// NewReader creates a new Reader instance
func NewReader(rpcURL string) (*Reader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return &Reader{client: client}, nil
}

// ERC20Allowance reads allowance(owner, spender) on a token contract.
func (r *Reader) ERC20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	erc20ABI := GetERC20ABI()
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance call: %w", err)
	}

	result, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("allowance call failed: %w", err)
	}

	values, err := erc20ABI.Unpack("allowance", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack allowance result: %w", err)
	}
	allowance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance result type")
	}
	return allowance, nil
}

// ERC20Balance reads balanceOf(account) on a token contract.
func (r *Reader) ERC20Balance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	erc20ABI := GetERC20ABI()
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	result, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	values, err := erc20ABI.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type")
	}
	return balance, nil
}

// NativeBalance reads the account's native token balance.
func (r *Reader) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := r.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// TransactionReceipt fetches the receipt for a mined transaction. Returns
// ethereum.NotFound while the transaction is pending.
func (r *Reader) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return r.client.TransactionReceipt(ctx, hash)
}

// Close releases the underlying RPC connection.
func (r *Reader) Close() {
	r.client.Close()
}
