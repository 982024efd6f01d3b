package model

import "time"

// Referral is one referrer-to-referred relationship. The address pair is
// the natural dedup key; the two flags only ever move false to true.
type Referral struct {
	ID               string    `json:"id"`
	ReferrerAddress  string    `json:"referrer_address"`
	ReferredAddress  string    `json:"referred_address"`
	NFTPurchased     bool      `json:"nft_purchased"`
	PaymentProcessed bool      `json:"payment_processed"`
	CreatedAt        time.Time `json:"created_at"`
}
