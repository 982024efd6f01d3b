package model

// Tier identifies one sequential stage of the proposal loading pipeline.
type Tier string

const (
	TierEvents  Tier = "events"
	TierOnchain Tier = "onchain"
	TierIPFS    Tier = "ipfs"
)

// Tiers lists the pipeline stages in execution order.
func Tiers() []Tier {
	return []Tier{TierEvents, TierOnchain, TierIPFS}
}

// TierState is the loading state of one tier. Error is set only when the
// most recent attempt failed and is cleared when the tier starts again.
type TierState struct {
	Tier      Tier   `json:"tier"`
	IsLoading bool   `json:"is_loading"`
	Error     string `json:"error,omitempty"`
}
