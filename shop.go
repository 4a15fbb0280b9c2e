package marketsdk

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/tokenreef/marketplace-sdk-go/chain"
)

// AllowanceReader reads an ERC-20 allowance from the chain.
type AllowanceReader interface {
	ERC20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// ShopStepFetcher builds steps for the primary-sale buy path. Unlike the
// marketplace actions, mint steps are constructed locally from the sale
// contract's layout and the buyer's current allowance.
type ShopStepFetcher struct {
	allowances AllowanceReader
	logger     *zap.Logger
}

func NewShopStepFetcher(allowances AllowanceReader, logger *zap.Logger) *ShopStepFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShopStepFetcher{allowances: allowances, logger: logger}
}

// MintSteps builds the step list for a mint. When payment is an ERC-20 and
// the sale contract's allowance does not cover maxTotal, a token approval
// step precedes the mint step.
func (f *ShopStepFetcher) MintSteps(ctx context.Context, params *MintParams) ([]*Step, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	maxTotal, err := ParseBig(params.MaxTotal)
	if err != nil {
		return nil, err
	}

	call := &chain.MintCall{
		Recipient:    common.HexToAddress(params.Recipient),
		PaymentToken: common.HexToAddress(params.PaymentToken),
		MaxTotal:     maxTotal,
	}
	for i := range params.TokenIDs {
		tokenID, err := ParseBig(params.TokenIDs[i])
		if err != nil {
			return nil, err
		}
		amount, err := ParseBig(params.Amounts[i])
		if err != nil {
			return nil, err
		}
		call.TokenIDs = append(call.TokenIDs, tokenID)
		call.Amounts = append(call.Amounts, amount)
	}
	for _, p := range params.MerkleProof {
		raw, err := hexutil.Decode(p)
		if err != nil || len(raw) != 32 {
			return nil, &InvalidParamError{Message: fmt.Sprintf("invalid merkle proof element: %s", p)}
		}
		var node [32]byte
		copy(node[:], raw)
		call.Proof = append(call.Proof, node)
	}

	encoder, err := chain.NewMintEncoder(params.ContractVersion)
	if err != nil {
		return nil, err
	}
	calldata, err := encoder.Encode(call)
	if err != nil {
		return nil, err
	}

	var steps []*Step

	nativePayment := params.PaymentToken == "" || strings.EqualFold(params.PaymentToken, ZeroAddress)
	if !nativePayment {
		approval, err := f.approvalStep(ctx, params, maxTotal)
		if err != nil {
			return nil, err
		}
		if approval != nil {
			steps = append(steps, approval)
		}
	}

	mint := &Step{
		ID:   StepIDBuy,
		To:   params.SaleContractAddress,
		Data: hexutil.Encode(calldata),
	}
	if nativePayment {
		mint.Value = maxTotal.String()
	}
	steps = append(steps, mint)

	return steps, nil
}

func (f *ShopStepFetcher) approvalStep(ctx context.Context, params *MintParams, maxTotal *big.Int) (*Step, error) {
	token := common.HexToAddress(params.PaymentToken)
	owner := common.HexToAddress(params.Recipient)
	spender := common.HexToAddress(params.SaleContractAddress)

	allowance, err := f.allowances.ERC20Allowance(ctx, token, owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to check payment token allowance: %w", err)
	}
	if allowance.Cmp(maxTotal) >= 0 {
		return nil, nil
	}

	calldata, err := chain.EncodeApprove(spender, maxTotal)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("mint requires payment token approval",
		zap.String("token", params.PaymentToken),
		zap.String("allowance", allowance.String()),
		zap.String("maxTotal", maxTotal.String()))
	return &Step{
		ID:   StepIDTokenApproval,
		To:   params.PaymentToken,
		Data: hexutil.Encode(calldata),
	}, nil
}
