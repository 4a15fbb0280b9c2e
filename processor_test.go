package marketsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWallet is a scriptable Wallet for tests. Operations append to calls
// so ordering invariants can be asserted.
type fakeWallet struct {
	mu       sync.Mutex
	kind     WalletKind
	addr     common.Address
	chainID  ChainID
	hash     common.Hash
	sendErr  error
	signErr  error
	sendHook func(ctx context.Context, req *TransactionRequest) (common.Hash, error)
	calls    []string
	sent     []*TransactionRequest
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		kind:    WalletKindEOA,
		addr:    common.HexToAddress("0x00000000000000000000000000000000000ACC01"),
		chainID: ChainIDPolygon,
		hash:    common.HexToHash("0xbeef"),
	}
}

func (w *fakeWallet) record(call string) {
	w.mu.Lock()
	w.calls = append(w.calls, call)
	w.mu.Unlock()
}

func (w *fakeWallet) Address() (common.Address, bool) { return w.addr, true }
func (w *fakeWallet) Kind() WalletKind                { return w.kind }

func (w *fakeWallet) ChainID(ctx context.Context) (ChainID, error) { return w.chainID, nil }

func (w *fakeWallet) SendTransaction(ctx context.Context, req *TransactionRequest) (common.Hash, error) {
	w.record("sendTransaction")
	w.mu.Lock()
	w.sent = append(w.sent, req)
	hook := w.sendHook
	w.mu.Unlock()
	if hook != nil {
		return hook(ctx, req)
	}
	if w.sendErr != nil {
		return common.Hash{}, w.sendErr
	}
	return w.hash, nil
}

func (w *fakeWallet) SignMessage(ctx context.Context, msg []byte) (string, error) {
	w.record("signMessage")
	if w.signErr != nil {
		return "", w.signErr
	}
	return "0x191sig", nil
}

func (w *fakeWallet) SignTypedData(ctx context.Context, data *apitypes.TypedData) (string, error) {
	w.record("signTypedData")
	if w.signErr != nil {
		return "", w.signErr
	}
	return "0x712sig", nil
}

func (w *fakeWallet) SwitchChain(ctx context.Context, chainID ChainID) error {
	w.record("switchChain")
	w.mu.Lock()
	w.chainID = chainID
	w.mu.Unlock()
	return nil
}

// testBackend serves step generation and order registration.
type testBackend struct {
	mu         sync.Mutex
	steps      []*Step
	orderID    string
	executed   int
	lastBody   map[string]interface{}
	stepsCalls int
}

func newTestBackend(t *testing.T, steps []*Step, orderID string) (*testBackend, *APIClient) {
	t.Helper()
	b := &testBackend{steps: steps, orderID: orderID}

	mux := http.NewServeMux()
	mux.HandleFunc("/transactions/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.stepsCalls++
		steps := b.steps
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"steps": steps})
	})
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.executed++
		b.lastBody = body
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"orderId": b.orderID})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, NewAPIClient(srv.URL, "test-key", ChainIDPolygon)
}

func TestProcessStepUnknownIsFatal(t *testing.T) {
	_, api := newTestBackend(t, nil, "")
	p := NewStepProcessor(newFakeWallet(), api, nil)

	_, err := p.ProcessStep(context.Background(), &Step{ID: StepIDUnknown}, ChainIDPolygon)
	var unsupported *UnsupportedStepError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, StepIDUnknown, unsupported.ID)

	_, err = p.ProcessStep(context.Background(), &Step{ID: StepID("mystery")}, ChainIDPolygon)
	assert.ErrorAs(t, err, &unsupported)
}

func TestProcessTransactionStep(t *testing.T) {
	_, api := newTestBackend(t, nil, "")
	wallet := newFakeWallet()
	wallet.chainID = ChainIDEthereum // force a chain switch
	p := NewStepProcessor(wallet, api, nil)

	step := &Step{
		ID:    StepIDBuy,
		To:    "0x00000000000000000000000000000000000000AA",
		Data:  "0xdead",
		Value: "1000",
	}
	result, err := p.ProcessStep(context.Background(), step, ChainIDPolygon)
	require.NoError(t, err)
	assert.Equal(t, StepResultTransaction, result.Type)
	assert.Equal(t, wallet.hash, result.Hash)

	assert.Equal(t, []string{"switchChain", "sendTransaction"}, wallet.calls)
	require.Len(t, wallet.sent, 1)
	assert.Equal(t, "1000", wallet.sent[0].Value.String())
	assert.Equal(t, []byte{0xde, 0xad}, wallet.sent[0].Data)
}

func TestProcessTransactionUserRejection(t *testing.T) {
	_, api := newTestBackend(t, nil, "")
	wallet := newFakeWallet()
	wallet.sendErr = errors.New("MetaMask: User denied transaction signature")
	p := NewStepProcessor(wallet, api, nil)

	_, err := p.ProcessStep(context.Background(), &Step{ID: StepIDBuy, To: "0xAA"}, ChainIDPolygon)
	assert.ErrorIs(t, err, ErrUserRejected)
}

func TestProcessSignatureStepWithPost(t *testing.T) {
	backend, api := newTestBackend(t, nil, "L-1")
	wallet := newFakeWallet()
	p := NewStepProcessor(wallet, api, nil)

	step := &Step{
		ID:        StepIDSignEIP712,
		Signature: &apitypes.TypedData{},
		Post: &PostRequest{
			Method:   "POST",
			Endpoint: "/execute",
			Body:     json.RawMessage(`{"order":"payload"}`),
		},
	}
	result, err := p.ProcessStep(context.Background(), step, ChainIDPolygon)
	require.NoError(t, err)
	assert.Equal(t, StepResultSignature, result.Type)
	assert.Equal(t, "0x712sig", result.Signature)
	assert.Equal(t, "L-1", result.OrderID)

	assert.Equal(t, 1, backend.executed)
	assert.Equal(t, "0x712sig", backend.lastBody["signature"])
	assert.Equal(t, "order", backend.lastBody["executeType"])
	assert.Equal(t, "payload", backend.lastBody["order"])
}

func TestProcessSignatureStepEIP191(t *testing.T) {
	_, api := newTestBackend(t, nil, "")
	wallet := newFakeWallet()
	p := NewStepProcessor(wallet, api, nil)

	result, err := p.ProcessStep(context.Background(), &Step{ID: StepIDSignEIP191, Data: "hello"}, ChainIDPolygon)
	require.NoError(t, err)
	assert.Equal(t, "0x191sig", result.Signature)
	assert.Empty(t, result.OrderID)
}

func TestProcessSignatureStepMissingTypedData(t *testing.T) {
	_, api := newTestBackend(t, nil, "")
	p := NewStepProcessor(newFakeWallet(), api, nil)

	_, err := p.ProcessStep(context.Background(), &Step{ID: StepIDSignEIP712}, ChainIDPolygon)
	var sigErr *SignatureFailedError
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, StepIDSignEIP712, sigErr.StepID)
}

func TestProcessSignatureFailureWrapsStep(t *testing.T) {
	_, api := newTestBackend(t, nil, "")
	wallet := newFakeWallet()
	wallet.signErr = errors.New("hardware wallet unreachable")
	p := NewStepProcessor(wallet, api, nil)

	_, err := p.ProcessStep(context.Background(), &Step{ID: StepIDSignEIP191, Data: "x"}, ChainIDPolygon)
	var sigErr *SignatureFailedError
	require.ErrorAs(t, err, &sigErr)
	assert.ErrorIs(t, err, wallet.signErr)
}
