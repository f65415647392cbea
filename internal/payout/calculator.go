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

package payout

import (
	"github.com/shopspring/decimal"
)

const (
	DefaultOriginatorPct = 50
	MinOriginatorPct     = 40
	MaxOriginatorPct     = 60

	// FollowOnPct is the flat share of the fee pool paid per lifetime attribution.
	FollowOnPct = 10
)

var hundred = decimal.NewFromInt(100)

// Participant is a deal participant as seen by the calculator.
type Participant struct {
	UserId                int64
	Role                  Role
	AttributionPercentage *decimal.Decimal
	RelationshipId        *int64
}

// FollowOnAttribution grants a relationship custodian a cut of a later deal.
type FollowOnAttribution struct {
	UserId                int64
	RelationshipId        int64
	AttributionPercentage decimal.Decimal
}

// Split is one computed payout line item.
type Split struct {
	UserId                int64
	Role                  Role
	Type                  Type
	AttributionPercentage decimal.Decimal
	Amount                decimal.Decimal
	IsFollowOn            bool
	RelationshipId        *int64
}

// TotalFees is the distributable pool for a deal.
func TotalFees(dealValue, feeRate decimal.Decimal) decimal.Decimal {
	return dealValue.Mul(feeRate)
}

// Calculate splits the fee pool between the originator, any follow-on
// attributions and the remaining participants.
//
// The first originator takes its requested percentage clamped to
// [MinOriginatorPct, MaxOriginatorPct]. Each follow-on takes FollowOnPct of the
// pool. Whatever is left goes to the non-originators in proportion to their
// requested percentages. When nothing is left no proportional splits are made.
func Calculate(dealValue, feeRate decimal.Decimal, participants []Participant, followOns []FollowOnAttribution) []Split {
	splits := []Split{}
	if len(participants) == 0 {
		return splits
	}

	total := TotalFees(dealValue, feeRate)

	originatorAmount := decimal.Zero
	if o, ok := firstOriginator(participants); ok {
		pct := ClampOriginatorPct(o.AttributionPercentage)
		originatorAmount = total.Mul(pct).Div(hundred)
		splits = append(splits, Split{
			UserId:                o.UserId,
			Role:                  RoleOriginator,
			Type:                  TypeOriginatorFee,
			AttributionPercentage: pct,
			Amount:                originatorAmount,
			RelationshipId:        o.RelationshipId,
		})
	}

	followOnPct := decimal.NewFromInt(FollowOnPct)
	followOnTotal := decimal.Zero
	for _, fo := range followOns {
		amount := total.Mul(followOnPct).Div(hundred)
		followOnTotal = followOnTotal.Add(amount)
		relationshipId := fo.RelationshipId
		splits = append(splits, Split{
			UserId:                fo.UserId,
			Role:                  RoleIntroducer,
			Type:                  TypeLifetimeAttribution,
			AttributionPercentage: followOnPct,
			Amount:                amount,
			IsFollowOn:            true,
			RelationshipId:        &relationshipId,
		})
	}

	remaining := total.Sub(originatorAmount).Sub(followOnTotal)
	if !remaining.IsPositive() {
		return splits
	}

	otherTotal := decimal.Zero
	for _, p := range participants {
		if p.Role != RoleOriginator {
			otherTotal = otherTotal.Add(requestedPct(p))
		}
	}
	if !otherTotal.IsPositive() {
		return splits
	}

	for _, p := range participants {
		if p.Role == RoleOriginator {
			continue
		}
		pct := requestedPct(p)
		if !pct.IsPositive() {
			continue
		}
		payoutType, err := TypeForRole(p.Role)
		if err != nil {
			continue
		}
		splits = append(splits, Split{
			UserId:                p.UserId,
			Role:                  p.Role,
			Type:                  payoutType,
			AttributionPercentage: pct,
			Amount:                remaining.Mul(pct).Div(otherTotal),
			RelationshipId:        p.RelationshipId,
		})
	}

	return splits
}

// MilestoneSplits pays originators and introducers a bonus when a payout
// triggering milestone completes. Each one with a positive percentage gets
// dealValue * pct / 100 divided evenly across the deal's trigger milestones.
func MilestoneSplits(dealValue decimal.Decimal, participants []Participant, payoutTriggers int) []Split {
	splits := []Split{}
	if payoutTriggers <= 0 || !dealValue.IsPositive() {
		return splits
	}

	triggers := decimal.NewFromInt(int64(payoutTriggers))
	for _, p := range participants {
		if p.Role != RoleOriginator && p.Role != RoleIntroducer {
			continue
		}
		pct := requestedPct(p)
		if !pct.IsPositive() {
			continue
		}
		splits = append(splits, Split{
			UserId:                p.UserId,
			Role:                  p.Role,
			Type:                  TypeMilestoneBonus,
			AttributionPercentage: pct,
			Amount:                dealValue.Mul(pct).Div(hundred).Div(triggers),
			RelationshipId:        p.RelationshipId,
		})
	}
	return splits
}

// ClampOriginatorPct applies the default and the [40, 60] policy bounds.
func ClampOriginatorPct(requested *decimal.Decimal) decimal.Decimal {
	pct := decimal.NewFromInt(DefaultOriginatorPct)
	if requested != nil {
		pct = *requested
	}
	lo, hi := decimal.NewFromInt(MinOriginatorPct), decimal.NewFromInt(MaxOriginatorPct)
	if pct.LessThan(lo) {
		return lo
	}
	if pct.GreaterThan(hi) {
		return hi
	}
	return pct
}

// Sum totals the amounts of a set of splits.
func Sum(splits []Split) decimal.Decimal {
	total := decimal.Zero
	for _, s := range splits {
		total = total.Add(s.Amount)
	}
	return total
}

// Round rounds an amount to cents for persistence.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

func firstOriginator(participants []Participant) (Participant, bool) {
	for _, p := range participants {
		if p.Role == RoleOriginator {
			return p, true
		}
	}
	return Participant{}, false
}

func requestedPct(p Participant) decimal.Decimal {
	if p.AttributionPercentage == nil {
		return decimal.Zero
	}
	return *p.AttributionPercentage
}
