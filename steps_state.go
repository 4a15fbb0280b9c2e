package marketsdk

import "sync"

// StepExecutionState is the observable state of one step slot.
type StepExecutionState struct {
	Exist       bool
	IsExecuting bool
}

// ExecutionStepsSnapshot is a point-in-time copy of both step slots.
type ExecutionStepsSnapshot struct {
	Approval    StepExecutionState
	Transaction StepExecutionState
}

// ExecutionSteps tracks the two step slots a UI renders during an order
// action: the approval slot and the main transaction slot. All mutations
// notify registered watchers with a snapshot.
type ExecutionSteps struct {
	mu          sync.Mutex
	approval    StepExecutionState
	transaction StepExecutionState
	watchers    []func(ExecutionStepsSnapshot)
}

func NewExecutionSteps() *ExecutionSteps {
	return &ExecutionSteps{}
}

// Watch registers a callback invoked on every state change. Callbacks run
// after the transition commits, outside the state lock, so a watcher may
// call back into ExecutionSteps.
func (e *ExecutionSteps) Watch(fn func(ExecutionStepsSnapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watchers = append(e.watchers, fn)
}

// Snapshot returns the current state of both slots.
func (e *ExecutionSteps) Snapshot() ExecutionStepsSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ExecutionStepsSnapshot{Approval: e.approval, Transaction: e.transaction}
}

// Reset clears both slots entirely. Safe to call on an already-clear state.
func (e *ExecutionSteps) Reset() {
	e.mu.Lock()
	e.approval = StepExecutionState{}
	e.transaction = StepExecutionState{}
	snap, watchers := e.changedLocked()
	e.mu.Unlock()
	notifyStepWatchers(watchers, snap)
}

// ClearExecuting drops the executing flags on both slots while preserving
// existence, for outcomes where the steps remain pending but nothing runs.
func (e *ExecutionSteps) ClearExecuting() {
	e.mu.Lock()
	e.approval.IsExecuting = false
	e.transaction.IsExecuting = false
	snap, watchers := e.changedLocked()
	e.mu.Unlock()
	notifyStepWatchers(watchers, snap)
}

func (e *ExecutionSteps) SetApprovalExist(exist bool) {
	e.mu.Lock()
	e.approval.Exist = exist
	if !exist {
		e.approval.IsExecuting = false
	}
	snap, watchers := e.changedLocked()
	e.mu.Unlock()
	notifyStepWatchers(watchers, snap)
}

func (e *ExecutionSteps) SetApprovalExecuting(executing bool) {
	e.mu.Lock()
	e.approval.IsExecuting = executing
	snap, watchers := e.changedLocked()
	e.mu.Unlock()
	notifyStepWatchers(watchers, snap)
}

func (e *ExecutionSteps) SetTransactionExist(exist bool) {
	e.mu.Lock()
	e.transaction.Exist = exist
	if !exist {
		e.transaction.IsExecuting = false
	}
	snap, watchers := e.changedLocked()
	e.mu.Unlock()
	notifyStepWatchers(watchers, snap)
}

func (e *ExecutionSteps) SetTransactionExecuting(executing bool) {
	e.mu.Lock()
	e.transaction.IsExecuting = executing
	snap, watchers := e.changedLocked()
	e.mu.Unlock()
	notifyStepWatchers(watchers, snap)
}

func (e *ExecutionSteps) changedLocked() (ExecutionStepsSnapshot, []func(ExecutionStepsSnapshot)) {
	snap := ExecutionStepsSnapshot{Approval: e.approval, Transaction: e.transaction}
	watchers := make([]func(ExecutionStepsSnapshot), len(e.watchers))
	copy(watchers, e.watchers)
	return snap, watchers
}

func notifyStepWatchers(watchers []func(ExecutionStepsSnapshot), snap ExecutionStepsSnapshot) {
	for _, fn := range watchers {
		fn(snap)
	}
}
