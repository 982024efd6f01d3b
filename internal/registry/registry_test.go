package registry

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestParseCreatedEvent(t *testing.T) {
	parsed, err := RegistryABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}

	creator := common.HexToAddress("0x1111111111111111111111111111111111111111")
	lg := types.Log{
		Topics: []common.Hash{
			parsed.Events["ProposalCreated"].ID,
			common.BigToHash(big.NewInt(42)),
			common.BytesToHash(creator.Bytes()),
		},
		BlockNumber: 123,
		TxHash:      common.HexToHash("0xabc"),
	}

	event, err := parseCreatedEvent(lg)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.TokenID != "42" {
		t.Fatalf("token id = %s, want 42", event.TokenID)
	}
	if event.Creator != creator.Hex() {
		t.Fatalf("creator = %s, want %s", event.Creator, creator.Hex())
	}
	if event.BlockNumber != 123 {
		t.Fatalf("block number = %d, want 123", event.BlockNumber)
	}
}

func TestParseCreatedEventMissingTopics(t *testing.T) {
	lg := types.Log{Topics: []common.Hash{common.HexToHash("0x1")}}
	if _, err := parseCreatedEvent(lg); err == nil {
		t.Fatalf("expected error for missing topics")
	}
}

func TestRenderAmount(t *testing.T) {
	r := &Registry{decimals: 18}
	raw, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := r.renderAmount(raw); got != "1.5" {
		t.Fatalf("rendered amount = %s, want 1.5", got)
	}

	r = &Registry{decimals: 0}
	if got := r.renderAmount(big.NewInt(100)); got != "100" {
		t.Fatalf("rendered amount = %s, want 100", got)
	}
}
