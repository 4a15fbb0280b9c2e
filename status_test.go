package marketsdk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiptSource struct {
	mu       sync.Mutex
	receipts map[common.Hash]*types.Receipt
	errs     map[common.Hash]error
	calls    int
}

func newFakeReceiptSource() *fakeReceiptSource {
	return &fakeReceiptSource{
		receipts: make(map[common.Hash]*types.Receipt),
		errs:     make(map[common.Hash]error),
	}
}

func (f *fakeReceiptSource) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[hash]; ok {
		return nil, err
	}
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeReceiptSource) setReceipt(hash common.Hash, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = &types.Receipt{Status: status}
}

func newTestMonitor(source ReceiptSource, timeout time.Duration) *StatusMonitor {
	return NewStatusMonitor(source, nil, timeout, time.Millisecond, nil)
}

func TestWaitForConfirmationNoHashIsSuccess(t *testing.T) {
	m := newTestMonitor(newFakeReceiptSource(), time.Second)
	status, err := m.WaitForConfirmation(context.Background(), common.Hash{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
}

func TestWaitForConfirmationSuccess(t *testing.T) {
	source := newFakeReceiptSource()
	hash := common.HexToHash("0x01")
	source.setReceipt(hash, types.ReceiptStatusSuccessful)

	m := newTestMonitor(source, time.Second)
	status, err := m.WaitForConfirmation(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
}

func TestWaitForConfirmationRevertedIsFailed(t *testing.T) {
	source := newFakeReceiptSource()
	hash := common.HexToHash("0x02")
	source.setReceipt(hash, types.ReceiptStatusFailed)

	m := newTestMonitor(source, time.Second)
	status, err := m.WaitForConfirmation(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)
}

func TestWaitForConfirmationTimeoutIsNotFailed(t *testing.T) {
	// receipt never appears
	m := newTestMonitor(newFakeReceiptSource(), 30*time.Millisecond)
	status, err := m.WaitForConfirmation(context.Background(), common.HexToHash("0x03"))
	assert.Equal(t, StatusTimeout, status)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
}

func TestWaitForConfirmationSourceError(t *testing.T) {
	source := newFakeReceiptSource()
	hash := common.HexToHash("0x04")
	boom := errors.New("rpc exploded")
	source.errs[hash] = boom

	m := newTestMonitor(source, time.Second)
	status, err := m.WaitForConfirmation(context.Background(), hash)
	assert.Equal(t, StatusFailed, status)
	assert.ErrorIs(t, err, boom)
}

func TestWaitForConfirmationPollsUntilMined(t *testing.T) {
	source := newFakeReceiptSource()
	hash := common.HexToHash("0x05")

	go func() {
		time.Sleep(15 * time.Millisecond)
		source.setReceipt(hash, types.ReceiptStatusSuccessful)
	}()

	m := newTestMonitor(source, time.Second)
	status, err := m.WaitForConfirmation(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Greater(t, source.calls, 1, "should have polled through the pending window")
}
