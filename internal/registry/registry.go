package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledgerfund/internal/chain"
	"ledgerfund/internal/model"
)

// Registry reads proposal data from the factory contract.
type Registry struct {
	client   *chain.Client
	address  common.Address
	parsed   abi.ABI
	decimals uint8
	logger   *zap.Logger
}

// New builds a Registry bound to the factory contract at address. Token
// amounts are rendered through decimals into human-readable strings.
func New(client *chain.Client, address common.Address, decimals uint8, logger *zap.Logger) (*Registry, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := RegistryABI()
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	return &Registry{
		client:   client,
		address:  address,
		parsed:   parsed,
		decimals: decimals,
		logger:   logger,
	}, nil
}

// CreatedEvents queries the full creation-event history of the factory.
func (r *Registry) CreatedEvents(ctx context.Context) ([]model.ProposalEvent, error) {
	topic0 := r.parsed.Events["ProposalCreated"].ID

	logs, err := r.client.FilterLogs(ctx, 0, []common.Address{r.address}, []common.Hash{topic0})
	if err != nil {
		return nil, fmt.Errorf("filter creation events: %w", err)
	}

	events := make([]model.ProposalEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		event, err := parseCreatedEvent(lg)
		if err != nil {
			r.logger.Warn("skip malformed creation event",
				zap.String("tx_hash", lg.TxHash.Hex()),
				zap.Uint64("block_number", lg.BlockNumber),
				zap.Error(err),
			)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Hydrate resolves the on-chain detail for one creation event into a
// proposal record with amounts in human-readable form.
func (r *Registry) Hydrate(ctx context.Context, event model.ProposalEvent) (model.ProposalRecord, error) {
	tokenID, ok := new(big.Int).SetString(event.TokenID, 10)
	if !ok {
		return model.ProposalRecord{}, fmt.Errorf("invalid token id: %s", event.TokenID)
	}

	values, err := r.call(ctx, "proposals", tokenID)
	if err != nil {
		return model.ProposalRecord{}, err
	}
	if len(values) < 4 {
		return model.ProposalRecord{}, fmt.Errorf("proposals returned %d values, want 4", len(values))
	}
	title, err := asString(values[0])
	if err != nil {
		return model.ProposalRecord{}, fmt.Errorf("title: %w", err)
	}
	contentHash, err := asString(values[1])
	if err != nil {
		return model.ProposalRecord{}, fmt.Errorf("content hash: %w", err)
	}
	targetCapital, err := asBigInt(values[2])
	if err != nil {
		return model.ProposalRecord{}, fmt.Errorf("target capital: %w", err)
	}
	votingEnds, err := asBigInt(values[3])
	if err != nil {
		return model.ProposalRecord{}, fmt.Errorf("voting ends: %w", err)
	}

	values, err = r.call(ctx, "pledgedAmount", tokenID)
	if err != nil {
		return model.ProposalRecord{}, err
	}
	pledged, err := asBigInt(values[0])
	if err != nil {
		return model.ProposalRecord{}, fmt.Errorf("pledged amount: %w", err)
	}

	return model.ProposalRecord{
		TokenID:       event.TokenID,
		Creator:       event.Creator,
		BlockNumber:   event.BlockNumber,
		TxHash:        event.TxHash,
		Title:         title,
		ContentHash:   contentHash,
		TargetCapital: r.renderAmount(targetCapital),
		PledgedAmount: r.renderAmount(pledged),
		VotingEndsAt:  votingEnds.Int64(),
	}, nil
}

func (r *Registry) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &r.address, Data: data}
	resp, err := r.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := r.parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (r *Registry) renderAmount(raw *big.Int) string {
	return decimal.NewFromBigInt(raw, -int32(r.decimals)).String()
}

func parseCreatedEvent(lg types.Log) (model.ProposalEvent, error) {
	if len(lg.Topics) < 3 {
		return model.ProposalEvent{}, fmt.Errorf("expected 3 topics, got %d", len(lg.Topics))
	}

	tokenID := new(big.Int).SetBytes(lg.Topics[1].Bytes())
	creator := common.BytesToAddress(lg.Topics[2].Bytes())

	return model.ProposalEvent{
		TokenID:     tokenID.String(),
		Creator:     creator.Hex(),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
	}, nil
}
