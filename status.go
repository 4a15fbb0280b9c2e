package marketsdk

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ReceiptSource looks up receipts for mined transactions. Pending
// transactions surface ethereum.NotFound.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// ReceiptSubscriber is an optional push channel for confirmations. The
// monitor falls back to polling when no subscriber is configured or the
// stream drops.
type ReceiptSubscriber interface {
	Subscribe(hash common.Hash) (<-chan TransactionStatus, func(), error)
}

// StatusMonitor resolves a dispatched transaction to a terminal status.
// Exceeding the deadline yields StatusTimeout, never StatusFailed: a timed
// out transaction may still land.
type StatusMonitor struct {
	source       ReceiptSource
	stream       ReceiptSubscriber
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewStatusMonitor(source ReceiptSource, stream ReceiptSubscriber, timeout, pollInterval time.Duration, logger *zap.Logger) *StatusMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusMonitor{
		source:       source,
		stream:       stream,
		timeout:      timeout,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// WaitForConfirmation blocks until the transaction reaches a terminal
// status. Signature-only flows carry no hash and confirm immediately.
func (m *StatusMonitor) WaitForConfirmation(ctx context.Context, hash common.Hash) (TransactionStatus, error) {
	if hash == (common.Hash{}) {
		return StatusSuccess, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var push <-chan TransactionStatus
	if m.stream != nil {
		ch, unsubscribe, err := m.stream.Subscribe(hash)
		if err != nil {
			m.logger.Debug("receipt stream unavailable, polling only", zap.Error(err))
		} else {
			defer unsubscribe()
			push = ch
		}
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		status, err, done := m.checkReceipt(ctx, hash)
		if done {
			return status, err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return StatusTimeout, ErrConfirmationTimeout
			}
			return StatusTimeout, ctx.Err()
		case status, ok := <-push:
			if ok && (status == StatusSuccess || status == StatusFailed) {
				return status, nil
			}
			push = nil
		case <-ticker.C:
		}
	}
}

func (m *StatusMonitor) checkReceipt(ctx context.Context, hash common.Hash) (TransactionStatus, error, bool) {
	receipt, err := m.source.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return StatusPending, nil, false
		}
		if ctx.Err() != nil {
			return StatusPending, nil, false
		}
		return StatusFailed, err, true
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return StatusSuccess, nil, true
	}
	return StatusFailed, nil, true
}
