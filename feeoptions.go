package marketsdk

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FeeSelectionFailure enumerates why no fee option could be auto-selected.
type FeeSelectionFailure int

const (
	FeeSelectionOK FeeSelectionFailure = iota
	FeeSelectionUserNotConnected
	FeeSelectionNoOptionsProvided
	FeeSelectionFailedToCheckBalances
	FeeSelectionInsufficientBalanceForAnyFeeOption
)

func (f FeeSelectionFailure) String() string {
	switch f {
	case FeeSelectionOK:
		return "ok"
	case FeeSelectionUserNotConnected:
		return "user not connected"
	case FeeSelectionNoOptionsProvided:
		return "no options provided"
	case FeeSelectionFailedToCheckBalances:
		return "failed to check balances"
	case FeeSelectionInsufficientBalanceForAnyFeeOption:
		return "insufficient balance for any fee option"
	default:
		return "unknown"
	}
}

// AutoSelectOutcome is the result of automatic fee option selection.
type AutoSelectOutcome struct {
	Option  *FeeOption
	Failure FeeSelectionFailure
}

type feeResolution struct {
	result *FeeOptionResult
	err    error
}

// feeOptionDeferred is a single-use promise bridging the suspended wallet
// call and whichever of confirm, reject or supersede fires first.
type feeOptionDeferred struct {
	once sync.Once
	ch   chan feeResolution
}

func newFeeOptionDeferred() *feeOptionDeferred {
	return &feeOptionDeferred{ch: make(chan feeResolution, 1)}
}

func (d *feeOptionDeferred) resolve(result *FeeOptionResult, err error) {
	d.once.Do(func() {
		d.ch <- feeResolution{result: result, err: err}
	})
}

func (d *feeOptionDeferred) await(ctx context.Context) (*FeeOptionResult, error) {
	select {
	case r := <-d.ch:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FeeOptionManager mediates fee-asset negotiation for custodial wallets.
// At most one confirmation is pending at a time; a newer request displaces
// the previous deferred with ErrFeeConfirmationSuperseded.
type FeeOptionManager struct {
	mu       sync.Mutex
	pending  *FeeOptionConfirmation
	deferred *feeOptionDeferred

	balances         BalanceReader
	skipBalanceCheck bool

	watchers []func(*FeeOptionConfirmation)
	resolved []func()

	logger *zap.Logger
}

func NewFeeOptionManager(balances BalanceReader, skipBalanceCheck bool, logger *zap.Logger) *FeeOptionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeOptionManager{
		balances:         balances,
		skipBalanceCheck: skipBalanceCheck,
		logger:           logger,
	}
}

// Watch registers a callback invoked whenever a new confirmation becomes
// pending, so UIs can render the option picker.
func (m *FeeOptionManager) Watch(fn func(*FeeOptionConfirmation)) {
	m.mu.Lock()
	m.watchers = append(m.watchers, fn)
	m.mu.Unlock()
}

// OnResolved registers a callback invoked after any confirmation resolves,
// whether confirmed, rejected or superseded.
func (m *FeeOptionManager) OnResolved(fn func()) {
	m.mu.Lock()
	m.resolved = append(m.resolved, fn)
	m.mu.Unlock()
}

// Pending returns the confirmation currently awaiting a decision, or nil.
func (m *FeeOptionManager) Pending() *FeeOptionConfirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// RequestConfirmation suspends until the user confirms or rejects a fee
// option, or the context ends. The id correlates the pending confirmation
// with its resolution, so providers pass the id they issued; an empty id
// gets a generated one. Options are annotated with the account's balances
// unless balance checking is disabled.
func (m *FeeOptionManager) RequestConfirmation(ctx context.Context, account, id string, options []*FeeOption, chainID ChainID) (*FeeOptionResult, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if !m.skipBalanceCheck {
		m.annotate(ctx, account, options)
	}

	conf := &FeeOptionConfirmation{
		ID:      id,
		Options: options,
		ChainID: chainID,
	}
	d := newFeeOptionDeferred()

	m.mu.Lock()
	if m.deferred != nil {
		m.deferred.resolve(nil, ErrFeeConfirmationSuperseded)
	}
	m.pending = conf
	m.deferred = d
	watchers := make([]func(*FeeOptionConfirmation), len(m.watchers))
	copy(watchers, m.watchers)
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(conf)
	}
	m.logger.Debug("fee option confirmation pending",
		zap.String("id", conf.ID),
		zap.Int("options", len(options)))

	return d.await(ctx)
}

// Confirm resolves the pending confirmation with the chosen fee token.
// A stale or unknown id is a silent no-op.
func (m *FeeOptionManager) Confirm(id string, feeTokenAddress *string) {
	m.finish(id, &FeeOptionResult{ID: id, FeeTokenAddress: feeTokenAddress, Confirmed: true}, nil)
}

// Reject resolves the pending confirmation as declined. The suspended
// wallet call resumes with Confirmed false rather than an error so the
// provider can abort quietly. A stale or unknown id is a silent no-op.
func (m *FeeOptionManager) Reject(id string) {
	m.finish(id, &FeeOptionResult{ID: id, Confirmed: false}, nil)
}

func (m *FeeOptionManager) finish(id string, result *FeeOptionResult, err error) {
	m.mu.Lock()
	if m.pending == nil || m.pending.ID != id {
		m.mu.Unlock()
		return
	}
	d := m.deferred
	m.pending = nil
	m.deferred = nil
	resolved := make([]func(), len(m.resolved))
	copy(resolved, m.resolved)
	m.mu.Unlock()

	// Hooks run before the suspended call resumes so state they set is
	// visible to whatever the resolution unblocks.
	for _, fn := range resolved {
		fn()
	}
	d.resolve(result, err)
}

// annotate fills balance fields on each option. Failures leave the option
// unannotated rather than blocking the negotiation.
func (m *FeeOptionManager) annotate(ctx context.Context, account string, options []*FeeOption) {
	if m.balances == nil || account == "" {
		return
	}
	for _, opt := range options {
		var balance *big.Int
		var err error
		if opt.Token.ContractAddress == nil {
			balance, err = m.balances.NativeBalance(ctx, account)
		} else {
			balance, err = m.balances.TokenBalance(ctx, *opt.Token.ContractAddress, account)
		}
		if err != nil {
			m.logger.Debug("fee option balance check failed",
				zap.String("symbol", opt.Token.Symbol),
				zap.Error(err))
			continue
		}
		required, err := ParseBig(opt.Value)
		if err != nil {
			continue
		}
		opt.Balance = balance
		opt.BalanceFormatted = FormatUnits(balance, opt.Token.Decimals)
		opt.HasEnoughBalanceForFee = balance.Cmp(required) >= 0
	}
}

// feeBalanceKey normalizes the map key of a fee asset: "native" for the
// chain's native token, the lowercase contract address otherwise.
func feeBalanceKey(contractAddress *string) string {
	if contractAddress == nil || *contractAddress == "" || strings.EqualFold(*contractAddress, ZeroAddress) {
		return "native"
	}
	return strings.ToLower(*contractAddress)
}

// AutoSelectFeeOption picks the first option the account can afford, in the
// order provided. Selection is monotone in balances: raising a balance never
// moves the selection to a later option.
func AutoSelectFeeOption(conf *FeeOptionConfirmation, connected bool, balances map[string]*big.Int) AutoSelectOutcome {
	if !connected {
		return AutoSelectOutcome{Failure: FeeSelectionUserNotConnected}
	}
	if conf == nil || len(conf.Options) == 0 {
		return AutoSelectOutcome{Failure: FeeSelectionNoOptionsProvided}
	}
	if balances == nil {
		return AutoSelectOutcome{Failure: FeeSelectionFailedToCheckBalances}
	}
	for _, opt := range conf.Options {
		balance, ok := balances[feeBalanceKey(opt.Token.ContractAddress)]
		if !ok || balance == nil {
			continue
		}
		required, err := ParseBig(opt.Value)
		if err != nil {
			continue
		}
		if balance.Cmp(required) >= 0 {
			return AutoSelectOutcome{Option: opt}
		}
	}
	return AutoSelectOutcome{Failure: FeeSelectionInsufficientBalanceForAnyFeeOption}
}
