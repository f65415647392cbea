/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package attribution

import (
	"context"
	"fmt"
	"time"

	"relationship-custody-go/internal/payout"

	"github.com/shopspring/decimal"
)

// Deal is the subset of a deal needed to resolve follow-on attribution.
type Deal struct {
	Id             int64
	IsFollowOn     bool
	OriginalDealId *int64
}

// Resolve returns one lifetime attribution per originator of the original deal
// that holds a relationship. A deal that is not a follow-on yields none.
func Resolve(deal Deal, originalParticipants []payout.Participant) []payout.FollowOnAttribution {
	attributions := []payout.FollowOnAttribution{}
	if !deal.IsFollowOn || deal.OriginalDealId == nil {
		return attributions
	}

	for _, p := range originalParticipants {
		if p.Role != payout.RoleOriginator || p.RelationshipId == nil {
			continue
		}
		attributions = append(attributions, payout.FollowOnAttribution{
			UserId:                p.UserId,
			RelationshipId:        *p.RelationshipId,
			AttributionPercentage: decimal.NewFromInt(payout.FollowOnPct),
		})
	}
	return attributions
}

// PriorDeal is a deal considered when deciding whether a new deal is a follow-on.
type PriorDeal struct {
	Id             int64
	OriginatorId   int64
	Completed      bool
	ParticipantIds []int64
	ClosedAt       time.Time
}

// FindOriginalDeal returns the most recently closed completed deal the
// originator ran with the counterparty participating.
func FindOriginalDeal(deals []PriorDeal, originatorId, counterpartyId int64) (PriorDeal, bool) {
	var (
		original PriorDeal
		found    bool
	)
	for _, d := range deals {
		if !d.Completed || d.OriginatorId != originatorId || !contains(d.ParticipantIds, counterpartyId) {
			continue
		}
		if !found || d.ClosedAt.After(original.ClosedAt) {
			original, found = d, true
		}
	}
	return original, found
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// ParticipantSource loads the participants of a deal.
type ParticipantSource interface {
	GetDealParticipants(ctx context.Context, dealId int64) ([]payout.Participant, error)
}

// Resolver resolves attributions against stored deal participants.
type Resolver struct {
	participants ParticipantSource
}

func NewResolver(participants ParticipantSource) *Resolver {
	return &Resolver{participants: participants}
}

// FollowOns loads the original deal's participants and resolves attributions.
func (r *Resolver) FollowOns(ctx context.Context, deal Deal) ([]payout.FollowOnAttribution, error) {
	if !deal.IsFollowOn || deal.OriginalDealId == nil {
		return []payout.FollowOnAttribution{}, nil
	}

	original, err := r.participants.GetDealParticipants(ctx, *deal.OriginalDealId)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants of original deal %d: %w", *deal.OriginalDealId, err)
	}
	return Resolve(deal, original), nil
}
