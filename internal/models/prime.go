package models

// Portfolio is the Prime portfolio payouts are sent from
type Portfolio struct {
	Id   string
	Name string
}

// Wallet is a Prime wallet holding the payout asset
type Wallet struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

// Withdrawal is a payout sent on-chain through Prime. PayoutId doubles as
// the withdrawal's idempotency key.
type Withdrawal struct {
	ActivityId  string
	PayoutId    string
	Symbol      string
	Network     string // empty when Prime's default network was used
	Amount      string
	Destination string
}
