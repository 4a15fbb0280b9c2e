package marketsdk

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// StepProcessor consumes steps one at a time, routing each to the wallet or
// the backend based on its id classification.
type StepProcessor struct {
	wallet Wallet
	api    *APIClient
	logger *zap.Logger
}

func NewStepProcessor(wallet Wallet, api *APIClient, logger *zap.Logger) *StepProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepProcessor{wallet: wallet, api: api, logger: logger}
}

// ProcessStep executes a single step. Transaction-like steps switch the
// wallet to the target chain and dispatch, returning the hash. Signature
// steps sign, optionally register the order via the step's post request,
// and return the signature and order id.
func (p *StepProcessor) ProcessStep(ctx context.Context, step *Step, chainID ChainID) (*StepResult, error) {
	switch {
	case IsTransactionStep(step.ID):
		return p.processTransaction(ctx, step, chainID)
	case IsSignatureStep(step.ID):
		return p.processSignature(ctx, step)
	default:
		return nil, &UnsupportedStepError{ID: step.ID}
	}
}

func (p *StepProcessor) processTransaction(ctx context.Context, step *Step, chainID ChainID) (*StepResult, error) {
	if err := EnsureChain(ctx, p.wallet, chainID); err != nil {
		return nil, err
	}

	value, err := ParseBig(step.Value)
	if err != nil {
		return nil, err
	}
	req := &TransactionRequest{
		ChainID: chainID,
		To:      common.HexToAddress(step.To),
		Data:    messageBytes(step.Data),
		Value:   value,
	}
	if step.Gas != "" {
		gas, err := ParseBig(step.Gas)
		if err != nil {
			return nil, err
		}
		req.Gas = gas.Uint64()
	}
	if step.MaxFeePerGas != "" {
		if req.MaxFeePerGas, err = ParseBig(step.MaxFeePerGas); err != nil {
			return nil, err
		}
	}
	if step.MaxPriorityFeePerGas != "" {
		if req.MaxPriorityFeePerGas, err = ParseBig(step.MaxPriorityFeePerGas); err != nil {
			return nil, err
		}
	}

	hash, err := p.wallet.SendTransaction(ctx, req)
	if err != nil {
		if IsUserRejection(err) {
			return nil, ErrUserRejected
		}
		return nil, err
	}

	p.logger.Debug("transaction step dispatched",
		zap.String("step", string(step.ID)),
		zap.String("hash", hash.Hex()))
	return &StepResult{Type: StepResultTransaction, Hash: hash}, nil
}

func (p *StepProcessor) processSignature(ctx context.Context, step *Step) (*StepResult, error) {
	var signature string
	var err error

	switch step.ID {
	case StepIDSignEIP191:
		signature, err = p.wallet.SignMessage(ctx, messageBytes(step.Data))
	case StepIDSignEIP712:
		if step.Signature == nil {
			return nil, &SignatureFailedError{StepID: step.ID, Err: &InvalidParamError{Message: "missing typed data payload"}}
		}
		signature, err = p.wallet.SignTypedData(ctx, step.Signature)
	}
	if err != nil {
		if IsUserRejection(err) {
			return nil, ErrUserRejected
		}
		return nil, &SignatureFailedError{StepID: step.ID, Err: err}
	}

	result := &StepResult{Type: StepResultSignature, Signature: signature}
	if step.Post != nil {
		orderID, err := p.api.Execute(ctx, step.Post, signature)
		if err != nil {
			return nil, err
		}
		result.OrderID = orderID
	}

	p.logger.Debug("signature step completed", zap.String("step", string(step.ID)))
	return result, nil
}
