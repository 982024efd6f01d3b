package model

// ProposalEvent is the creation-event view of a proposal, resolved in the
// events tier. It carries the provenance of the on-chain creation log.
type ProposalEvent struct {
	TokenID     string `json:"token_id"`
	Creator     string `json:"creator"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
}

// ProposalMetadata is the off-chain document fetched by content hash.
type ProposalMetadata struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Website     string `json:"website,omitempty"`
}

// ProposalRecord is one investment proposal assembled across all tiers.
// Creation-event fields are always populated; Metadata is nil until the
// ipfs tier resolves it, and stays nil when that fetch fails. Whether nil
// means "not fetched" or "fetch failed" is answered by the tier state
// list, not by the record itself.
type ProposalRecord struct {
	TokenID       string            `json:"token_id"`
	Creator       string            `json:"creator"`
	BlockNumber   uint64            `json:"block_number"`
	TxHash        string            `json:"tx_hash"`
	Title         string            `json:"title"`
	ContentHash   string            `json:"content_hash"`
	TargetCapital string            `json:"target_capital"`
	PledgedAmount string            `json:"pledged_amount"`
	VotingEndsAt  int64             `json:"voting_ends_at"`
	Metadata      *ProposalMetadata `json:"metadata,omitempty"`
}
