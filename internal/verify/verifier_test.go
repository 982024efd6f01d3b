package verify

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"ledgerfund/internal/model"
)

type balanceFunc func(ctx context.Context, token, holder common.Address) (*big.Int, error)

func (f balanceFunc) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return f(ctx, token, holder)
}

func testConfig(target string) Config {
	amount, err := decimal.NewFromString(target)
	if err != nil {
		panic(err)
	}
	return Config{
		Token:         common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Holder:        common.HexToAddress("0x3333333333333333333333333333333333333333"),
		TokenDecimals: 0,
		TargetAmount:  amount,
		TokenLabel:    "LGR",
	}
}

func sequenceBalances(amounts ...int64) (BalanceSource, *int64) {
	var calls int64
	return balanceFunc(func(context.Context, common.Address, common.Address) (*big.Int, error) {
		n := atomic.AddInt64(&calls, 1)
		if n > int64(len(amounts)) {
			n = int64(len(amounts))
		}
		return big.NewInt(amounts[n-1]), nil
	}), &calls
}

func TestVerifyTransferBelowTarget(t *testing.T) {
	source, _ := sequenceBalances(40)
	v := New(source, testConfig("100"), nil)

	if v.State().Status != model.StatusAwaitingTokens {
		t.Fatalf("initial status = %s", v.State().Status)
	}

	done, err := v.VerifyTransfer(context.Background())
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if done {
		t.Fatalf("transfer reported complete below target")
	}

	state := v.State()
	if state.Status != model.StatusVerifying {
		t.Fatalf("status = %s, want verifying", state.Status)
	}
	if state.CurrentAmount != "40" {
		t.Fatalf("current = %s, want 40", state.CurrentAmount)
	}
	if len(state.MissingTokens) != 1 || state.MissingTokens[0] != "LGR" {
		t.Fatalf("missing tokens = %v", state.MissingTokens)
	}
}

func TestVerifyTransferProgressSequence(t *testing.T) {
	source, _ := sequenceBalances(40, 90, 100)
	v := New(source, testConfig("100"), nil)
	ctx := context.Background()

	wantProgress := []float64{40, 90, 100}
	wantStatus := []model.TransferStatus{model.StatusVerifying, model.StatusVerifying, model.StatusCompleted}
	for i := range wantProgress {
		done, err := v.VerifyTransfer(ctx)
		if err != nil {
			t.Fatalf("verify %d failed: %v", i, err)
		}
		state := v.State()
		if got := state.Progress(); got != wantProgress[i] {
			t.Fatalf("progress %d = %v, want %v", i, got, wantProgress[i])
		}
		if state.Status != wantStatus[i] {
			t.Fatalf("status %d = %s, want %s", i, state.Status, wantStatus[i])
		}
		if done != (i == len(wantProgress)-1) {
			t.Fatalf("done %d = %v", i, done)
		}
	}

	if len(v.State().MissingTokens) != 0 {
		t.Fatalf("missing tokens should clear on completion: %v", v.State().MissingTokens)
	}
}

func TestVerifyTransferCompleteOnFirstPass(t *testing.T) {
	source, _ := sequenceBalances(120)
	v := New(source, testConfig("100"), nil)

	done, err := v.VerifyTransfer(context.Background())
	if err != nil || !done {
		t.Fatalf("verify = %v, %v; want complete", done, err)
	}
	if v.State().Status != model.StatusCompleted {
		t.Fatalf("status = %s", v.State().Status)
	}
	if got := v.State().Progress(); got != 100 {
		t.Fatalf("progress = %v, want 100 (clamped)", got)
	}
}

func TestVerifyTransferTransientError(t *testing.T) {
	source := balanceFunc(func(context.Context, common.Address, common.Address) (*big.Int, error) {
		return nil, errors.New("connection reset")
	})
	v := New(source, testConfig("100"), nil)

	done, err := v.VerifyTransfer(context.Background())
	if done || err == nil {
		t.Fatalf("verify = %v, %v", done, err)
	}
	if got := v.State().Status; got != model.StatusAwaitingTokens {
		t.Fatalf("status = %s, transient error must not change it", got)
	}
}

func TestVerifyTransferTerminalError(t *testing.T) {
	source := balanceFunc(func(context.Context, common.Address, common.Address) (*big.Int, error) {
		return nil, Terminal(errors.New("holding address revoked"))
	})
	v := New(source, testConfig("100"), nil)

	done, err := v.VerifyTransfer(context.Background())
	if done || !IsTerminal(err) {
		t.Fatalf("verify = %v, %v", done, err)
	}
	if got := v.State().Status; got != model.StatusFailed {
		t.Fatalf("status = %s, want failed", got)
	}

	// Terminal state is sticky: further passes are no-ops.
	done, err = v.VerifyTransfer(context.Background())
	if done || err != nil {
		t.Fatalf("post-terminal verify = %v, %v", done, err)
	}
	if got := v.State().Status; got != model.StatusFailed {
		t.Fatalf("status changed after terminal state: %s", got)
	}
}

func TestWatcherStopsAfterCompletion(t *testing.T) {
	source, calls := sequenceBalances(40, 90, 100)
	v := New(source, testConfig("100"), nil)
	w := NewWatcher(v, 5*time.Millisecond, nil)

	w.Start(context.Background())
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatalf("watcher did not stop after completion")
	}

	if v.State().Status != model.StatusCompleted {
		t.Fatalf("status = %s, want completed", v.State().Status)
	}

	// No fourth poll after the timer is cleared.
	settled := atomic.LoadInt64(calls)
	if settled != 3 {
		t.Fatalf("polls = %d, want 3", settled)
	}
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt64(calls); got != settled {
		t.Fatalf("polls continued after completion: %d -> %d", settled, got)
	}
}

func TestWatcherKeepsPollingThroughTransientErrors(t *testing.T) {
	var calls int64
	source := balanceFunc(func(context.Context, common.Address, common.Address) (*big.Int, error) {
		if atomic.AddInt64(&calls, 1) < 3 {
			return nil, errors.New("rpc hiccup")
		}
		return big.NewInt(100), nil
	})
	v := New(source, testConfig("100"), nil)
	w := NewWatcher(v, 5*time.Millisecond, nil)

	w.Start(context.Background())
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatalf("watcher gave up on transient errors")
	}

	if v.State().Status != model.StatusCompleted {
		t.Fatalf("status = %s, want completed", v.State().Status)
	}
}

func TestWatcherStopsOnTerminalError(t *testing.T) {
	source := balanceFunc(func(context.Context, common.Address, common.Address) (*big.Int, error) {
		return nil, Terminal(errors.New("contract self-destructed"))
	})
	v := New(source, testConfig("100"), nil)
	w := NewWatcher(v, 5*time.Millisecond, nil)

	w.Start(context.Background())
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatalf("watcher did not stop on terminal error")
	}

	if v.State().Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", v.State().Status)
	}
}

func TestWatcherStopOnUnmount(t *testing.T) {
	source, calls := sequenceBalances(10)
	v := New(source, testConfig("100"), nil)
	w := NewWatcher(v, 5*time.Millisecond, nil)

	w.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	w.Stop()

	settled := atomic.LoadInt64(calls)
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt64(calls); got != settled {
		t.Fatalf("polls continued after stop: %d -> %d", settled, got)
	}
}

func TestManagerJoinsExistingWatch(t *testing.T) {
	source, _ := sequenceBalances(10)
	m := NewManager(source, 5*time.Millisecond, nil)
	defer m.StopAll()

	ctx := context.Background()
	if _, err := m.Watch(ctx, "bounty-1", testConfig("100")); err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	if _, err := m.Watch(ctx, "bounty-1", testConfig("100")); err != nil {
		t.Fatalf("second watch failed: %v", err)
	}

	m.mu.Lock()
	count := len(m.watches)
	m.mu.Unlock()
	if count != 1 {
		t.Fatalf("watches = %d, want 1", count)
	}

	if _, ok := m.Status("bounty-1"); !ok {
		t.Fatalf("status missing for registered bounty")
	}
	if _, ok := m.Status("unknown"); ok {
		t.Fatalf("status returned for unknown bounty")
	}
}
