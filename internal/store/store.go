package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"relationship-custody-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrDealNotFound           = errors.New("deal not found")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrChainFork              = errors.New("chain fork: predecessor already has a successor")
	ErrDuplicateSnapshot      = errors.New("trust snapshot already recorded for event")
	ErrPayoutsExist           = errors.New("payouts already exist for deal milestone")
	ErrInvalidPayoutStatus    = errors.New("invalid payout status transition")
)

// CreateUserParams contains the parameters for registering a member.
type CreateUserParams struct {
	Name             string
	Email            string
	KybStatus        string
	VerificationTier string
	PayoutAddress    string
	PayoutNetwork    string
	CreatedAt        time.Time // zero means now
}

// CustodyParams describes a relationship to append to the owner's custody chain.
type CustodyParams struct {
	OwnerId          int64
	ContactId        int64
	RelationshipType string
	EstablishedAt    time.Time
	Notes            string
}

// AuditParams describes an entity mutation to append to the audit chain.
type AuditParams struct {
	ActorId       *int64
	Action        string
	EntityType    string
	EntityId      *int64
	PreviousState json.RawMessage
	NewState      json.RawMessage
	Metadata      json.RawMessage
	CreatedAt     time.Time // zero means now
}

// AuditCursor positions a descending (created_at, id) page.
type AuditCursor struct {
	CreatedAt time.Time
	Id        int64
}

// AuditPage is one page of audit entries, newest first.
type AuditPage struct {
	Entries []models.AuditEntry
	Next    *AuditCursor
}

// ScoreEventParams applies one incremental trust event. The backend must check
// for an existing snapshot with the same (UserId, Source, RelatedEntityId),
// read the current score, call Next, and write the snapshot and the user in a
// single transaction.
type ScoreEventParams struct {
	UserId            int64
	Source            string
	RelatedEntityId   int64
	RelatedEntityType string
	Reason            string
	Next              func(prev float64) float64
}

// RecalculationParams records a normalized recomputation. It is never deduplicated.
type RecalculationParams struct {
	UserId   int64
	NewScore float64
	Reason   string
	Source   string
}

// TrustInputs is the state a normalized recomputation reads.
type TrustInputs struct {
	User               models.User
	PeerRatings        []int
	ComplianceStatuses []string
}

// CreateDealParams contains the parameters for opening a deal.
type CreateDealParams struct {
	Title          string
	OriginatorId   int64
	CounterpartyId *int64
	DealValue      decimal.Decimal
	Currency       string
	IsFollowOn     bool
	OriginalDealId *int64
	Milestones     []models.Milestone
}

// AddParticipantParams attaches a user to a deal.
type AddParticipantParams struct {
	DealId                int64
	UserId                int64
	Role                  string
	AttributionPercentage *decimal.Decimal
	RelationshipId        *int64
}

// NewPayout is a computed payout line to persist.
type NewPayout struct {
	UserId                int64
	Amount                decimal.Decimal
	PayoutType            string
	Role                  string
	AttributionPercentage decimal.Decimal
	RelationshipId        *int64
	IsFollowOn            bool
}

// CreatePayoutsParams persists every payout for one deal milestone at once.
type CreatePayoutsParams struct {
	DealId         int64
	Currency       string
	MilestoneId    string
	MilestoneName  string
	OriginalDealId *int64
	Payouts        []NewPayout
}

// UserStore manages members and the signals their trust score is built from.
type UserStore interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	UpdateKybStatus(ctx context.Context, userId int64, status string) error
	AddPeerReview(ctx context.Context, review models.PeerReview) (*models.PeerReview, error)
	AddComplianceCheck(ctx context.Context, check models.ComplianceCheck) (*models.ComplianceCheck, error)
}

// CustodyStore owns the per-owner relationship custody chains.
type CustodyStore interface {
	// AppendCustody reads the owner's chain tail and inserts the next link in
	// one transaction. A concurrent append against the same tail fails with
	// ErrChainFork.
	AppendCustody(ctx context.Context, params CustodyParams) (*models.Relationship, error)
	GetRelationshipById(ctx context.Context, id int64) (*models.Relationship, error)
	GetRelationshipByHash(ctx context.Context, hash string) (*models.Relationship, error)
	GetOwnerRelationships(ctx context.Context, ownerId int64) ([]models.Relationship, error)
	GetRelationshipForAttribution(ctx context.Context, ownerId, contactId int64) (*models.Relationship, error)
	GetCustodyOwners(ctx context.Context) ([]int64, error)
}

// AuditStore owns the global audit chain.
type AuditStore interface {
	AppendAudit(ctx context.Context, params AuditParams) (*models.AuditEntry, error)
	ListAudit(ctx context.Context, limit int, cursor *AuditCursor) (AuditPage, error)
	GetAuditChain(ctx context.Context) ([]models.AuditEntry, error)
}

// TrustStore persists trust score history.
type TrustStore interface {
	GetUserById(ctx context.Context, userId int64) (*models.User, error)
	ApplyScoreEvent(ctx context.Context, params ScoreEventParams) (*models.TrustSnapshot, error)
	RecordRecalculation(ctx context.Context, params RecalculationParams) (*models.TrustSnapshot, error)
	GetTrustInputs(ctx context.Context, userId int64) (*TrustInputs, error)
	SetVerificationTier(ctx context.Context, userId int64, tier string) error
	GetTrustHistory(ctx context.Context, userId int64, limit int) ([]models.TrustSnapshot, error)
}

// DealStore manages deals and their participants.
type DealStore interface {
	CreateDeal(ctx context.Context, params CreateDealParams) (*models.Deal, error)
	GetDealById(ctx context.Context, dealId int64) (*models.Deal, error)
	AddParticipant(ctx context.Context, params AddParticipantParams) (*models.DealParticipant, error)
	GetDealParticipants(ctx context.Context, dealId int64) ([]models.DealParticipant, error)
	ListCompletedDealsByOriginator(ctx context.Context, originatorId int64) ([]models.Deal, error)
	UpdateDealStage(ctx context.Context, dealId int64, stage string) error
	UpdateMilestones(ctx context.Context, dealId int64, milestones []models.Milestone) error
}

// PayoutStore persists payouts and the payout subledger they are credited to.
type PayoutStore interface {
	// CreatePayouts inserts every row and credits each payee in one
	// transaction. It fails with ErrPayoutsExist when the milestone was
	// already paid for the deal.
	CreatePayouts(ctx context.Context, params CreatePayoutsParams) ([]models.Payout, error)
	HasPayouts(ctx context.Context, dealId int64, milestoneName string) (bool, error)
	GetPayoutsByUser(ctx context.Context, userId int64) ([]models.Payout, error)
	GetPayoutsByDeal(ctx context.Context, dealId int64) ([]models.Payout, error)
	GetPayoutsByStatus(ctx context.Context, status string) ([]models.Payout, error)
	UpdatePayoutStatus(ctx context.Context, payoutId, status, externalRef string) error
	RecordDisbursement(ctx context.Context, payout models.Payout, externalRef string) error
	GetUserBalance(ctx context.Context, userId int64, asset string) (decimal.Decimal, error)
	GetAllUserBalances(ctx context.Context, userId int64) ([]models.AccountBalance, error)
	GetTransactionHistory(ctx context.Context, userId int64, asset string, limit, offset int) ([]models.Transaction, error)
}

// Store defines the contract that every backend must satisfy.
type Store interface {
	UserStore
	CustodyStore
	AuditStore
	TrustStore
	DealStore
	PayoutStore

	Ping(ctx context.Context) error
	Close()
}
