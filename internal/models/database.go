package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// User represents a platform member
type User struct {
	Id                int64     `db:"id"`
	Name              string    `db:"name"`
	Email             string    `db:"email"`
	TrustScore        float64   `db:"trust_score"`
	VerificationTier  string    `db:"verification_tier"`
	VerificationBadge string    `db:"verification_badge"`
	KybStatus         string    `db:"kyb_status"`
	TotalDeals        int       `db:"total_deals"`
	PayoutAddress     string    `db:"payout_address"`
	PayoutNetwork     string    `db:"payout_network"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// Relationship is a custody record: the owner's provable first claim on a contact
type Relationship struct {
	Id               int64     `db:"id"`
	OwnerId          int64     `db:"owner_id"`
	ContactId        int64     `db:"contact_id"`
	RelationshipType string    `db:"relationship_type"`
	EstablishedAt    time.Time `db:"established_at"`
	TimestampHash    string    `db:"timestamp_hash"`
	PrevHash         string    `db:"prev_hash"`
	TimestampProof   string    `db:"timestamp_proof"`
	Notes            string    `db:"notes"`
	CreatedAt        time.Time `db:"created_at"`
}

// AuditEntry is one link of the global audit chain
type AuditEntry struct {
	Id            int64           `db:"id"`
	ActorId       *int64          `db:"user_id"`
	Action        string          `db:"action"`
	EntityType    string          `db:"entity_type"`
	EntityId      *int64          `db:"entity_id"`
	PreviousState json.RawMessage `db:"previous_state"`
	NewState      json.RawMessage `db:"new_state"`
	Metadata      json.RawMessage `db:"metadata"`
	Hash          string          `db:"hash"`
	PrevHash      string          `db:"prev_hash"`
	Proof         string          `db:"proof"`
	CreatedAt     time.Time       `db:"created_at"`
}

// TrustSnapshot is an append-only trust score history row
type TrustSnapshot struct {
	Id                int64     `db:"id"`
	UserId            int64     `db:"user_id"`
	PreviousScore     float64   `db:"previous_score"`
	NewScore          float64   `db:"new_score"`
	Reason            string    `db:"change_reason"`
	Source            string    `db:"change_source"`
	RelatedEntityId   *int64    `db:"related_entity_id"`
	RelatedEntityType string    `db:"related_entity_type"`
	CreatedAt         time.Time `db:"created_at"`
}

// PeerReview is a rating left by one member about another
type PeerReview struct {
	Id         int64     `db:"id"`
	ReviewerId int64     `db:"reviewer_id"`
	RevieweeId int64     `db:"reviewee_id"`
	DealId     *int64    `db:"deal_id"`
	Rating     int       `db:"rating"`
	CreatedAt  time.Time `db:"created_at"`
}

// ComplianceCheck is the outcome of an external compliance screen on a user
type ComplianceCheck struct {
	Id        int64     `db:"id"`
	UserId    int64     `db:"user_id"`
	CheckType string    `db:"check_type"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

// Milestone is a step of a deal; trigger milestones pay bonuses on completion
type Milestone struct {
	Id            string     `json:"id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	PayoutTrigger bool       `json:"payoutTrigger"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Deal represents a deal between members
type Deal struct {
	Id             int64           `db:"id"`
	Title          string          `db:"title"`
	OriginatorId   int64           `db:"originator_id"`
	CounterpartyId *int64          `db:"counterparty_id"`
	DealValue      decimal.Decimal `db:"deal_value"`
	Currency       string          `db:"currency"`
	Stage          string          `db:"stage"`
	IsFollowOn     bool            `db:"is_follow_on"`
	OriginalDealId *int64          `db:"original_deal_id"`
	Milestones     []Milestone     `db:"milestones"`
	CreatedAt      time.Time       `db:"created_at"`
	ClosedAt       *time.Time      `db:"closed_at"`
}

// DealParticipant links a user to a deal in a role
type DealParticipant struct {
	Id                    int64            `db:"id"`
	DealId                int64            `db:"deal_id"`
	UserId                int64            `db:"user_id"`
	Role                  string           `db:"role"`
	AttributionPercentage *decimal.Decimal `db:"attribution_percentage"`
	RelationshipId        *int64           `db:"relationship_id"`
}

// Payout is a persisted payout line item
type Payout struct {
	Id                    string          `db:"id"`
	DealId                int64           `db:"deal_id"`
	UserId                int64           `db:"user_id"`
	Amount                decimal.Decimal `db:"amount"`
	Currency              string          `db:"currency"`
	PayoutType            string          `db:"payout_type"`
	Role                  string          `db:"role"`
	AttributionPercentage decimal.Decimal `db:"attribution_percentage"`
	RelationshipId        *int64          `db:"relationship_id"`
	IsFollowOn            bool            `db:"is_follow_on"`
	OriginalDealId        *int64          `db:"original_deal_id"`
	MilestoneId           string          `db:"milestone_id"`
	MilestoneName         string          `db:"milestone_name"`
	Status                string          `db:"status"`
	ExternalRef           string          `db:"external_ref"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

// AccountBalance represents current balance state (hot data)
type AccountBalance struct {
	Id                string          `db:"id"`
	UserId            string          `db:"user_id"`
	Asset             string          `db:"asset"`
	Balance           decimal.Decimal `db:"balance"`
	LastTransactionId string          `db:"last_transaction_id"`
	Version           int64           `db:"version"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Transaction represents immutable transaction history (cold data)
type Transaction struct {
	Id                    string          `db:"id"`
	UserId                string          `db:"user_id"`
	Asset                 string          `db:"asset"`
	TransactionType       string          `db:"transaction_type"`
	Amount                decimal.Decimal `db:"amount"`
	BalanceBefore         decimal.Decimal `db:"balance_before"`
	BalanceAfter          decimal.Decimal `db:"balance_after"`
	ExternalTransactionId string          `db:"external_transaction_id"`
	Address               string          `db:"address"`
	Reference             string          `db:"reference"`
	Status                string          `db:"status"`
	CreatedAt             time.Time       `db:"created_at"`
	ProcessedAt           time.Time       `db:"processed_at"`
}
