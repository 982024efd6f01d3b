package verify

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledgerfund/internal/model"
)

// BalanceSource reads an ERC20 balance from the chain.
type BalanceSource interface {
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// Config describes the expected deposit: which token must arrive at
// which holding address, and how much (human-readable units).
type Config struct {
	Token         common.Address
	Holder        common.Address
	TokenDecimals uint8
	TargetAmount  decimal.Decimal
	// TokenLabel names the token in the missing-tokens list; defaults to
	// the token contract address.
	TokenLabel string
}

// Verifier checks whether the target amount has arrived at the holding
// address. State is replaced wholesale on every update so readers never
// observe a mismatched status/amount pair.
type Verifier struct {
	source BalanceSource
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	state model.TransferState
}

// New builds a Verifier in the awaiting_tokens state.
func New(source BalanceSource, cfg Config, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenLabel == "" {
		cfg.TokenLabel = cfg.Token.Hex()
	}

	return &Verifier{
		source: source,
		cfg:    cfg,
		logger: logger,
		state: model.TransferState{
			Status:        model.StatusAwaitingTokens,
			CurrentAmount: "0",
			TargetAmount:  cfg.TargetAmount.String(),
			MissingTokens: []string{cfg.TokenLabel},
		},
	}
}

// State returns a copy of the current transfer state.
func (v *Verifier) State() model.TransferState {
	v.mu.Lock()
	defer v.mu.Unlock()
	state := v.state
	if v.state.MissingTokens != nil {
		state.MissingTokens = append([]string(nil), v.state.MissingTokens...)
	}
	return state
}

// VerifyTransfer performs one verification pass and reports whether the
// transfer is complete. Transient errors leave the state untouched so a
// polling loop can retry; terminal errors move the state to failed.
func (v *Verifier) VerifyTransfer(ctx context.Context) (bool, error) {
	v.mu.Lock()
	if v.state.Status.Terminal() {
		done := v.state.Status == model.StatusCompleted
		v.mu.Unlock()
		return done, nil
	}
	v.mu.Unlock()

	raw, err := v.source.TokenBalance(ctx, v.cfg.Token, v.cfg.Holder)
	if err != nil {
		if IsTerminal(err) {
			v.logger.Error("transfer verification failed",
				zap.String("holder", v.cfg.Holder.Hex()),
				zap.Error(err),
			)
			v.replace(model.TransferState{
				Status:        model.StatusFailed,
				CurrentAmount: v.State().CurrentAmount,
				TargetAmount:  v.cfg.TargetAmount.String(),
				MissingTokens: []string{v.cfg.TokenLabel},
			})
			return false, err
		}
		v.logger.Warn("balance check failed, retrying next cycle",
			zap.String("holder", v.cfg.Holder.Hex()),
			zap.Error(err),
		)
		return false, err
	}

	current := decimal.NewFromBigInt(raw, -int32(v.cfg.TokenDecimals))
	complete := v.cfg.TargetAmount.IsPositive() && current.GreaterThanOrEqual(v.cfg.TargetAmount)

	next := model.TransferState{
		CurrentAmount: current.String(),
		TargetAmount:  v.cfg.TargetAmount.String(),
	}
	if complete {
		next.Status = model.StatusCompleted
	} else {
		next.Status = model.StatusVerifying
		next.MissingTokens = []string{v.cfg.TokenLabel}
	}
	v.replace(next)

	if complete {
		v.logger.Info("transfer complete",
			zap.String("holder", v.cfg.Holder.Hex()),
			zap.String("amount", current.String()),
		)
	}
	return complete, nil
}

func (v *Verifier) replace(state model.TransferState) {
	v.mu.Lock()
	v.state = state
	v.mu.Unlock()
}
