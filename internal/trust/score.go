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

package trust

import (
	"math"
	"time"
)

// Tier is both the verification tier and the badge a user displays. The two
// are always written together.
type Tier string

const (
	TierNone          Tier = "none"
	TierBasic         Tier = "basic"
	TierEnhanced      Tier = "enhanced"
	TierInstitutional Tier = "institutional"
)

// ComplianceStatus is the outcome of one compliance check against a user.
type ComplianceStatus string

const (
	CompliancePending ComplianceStatus = "pending"
	CompliancePassed  ComplianceStatus = "passed"
	ComplianceFailed  ComplianceStatus = "failed"
	ComplianceFlagged ComplianceStatus = "flagged"
)

const (
	weightTier       = 0.30
	weightDeals      = 0.25
	weightReviews    = 0.20
	weightCompliance = 0.15
	weightTenure     = 0.10

	dealCap      = 20
	tenureCap    = 24
	daysPerMonth = 30.44

	minRating = 1
	maxRating = 5

	// RecalculationReason is the reason recorded for normalized recomputations.
	RecalculationReason = "trust_score_recalculation"
)

var tierScores = map[Tier]float64{
	TierNone:          0,
	TierBasic:         33.33,
	TierEnhanced:      66.66,
	TierInstitutional: 100,
}

// Inputs is the point-in-time state the normalized score is derived from.
type Inputs struct {
	VerificationTier   Tier
	CompletedDeals     int
	PeerRatings        []int
	ComplianceStatuses []ComplianceStatus
	AccountCreatedAt   time.Time
	Now                time.Time
}

// Breakdown holds each component on a 0-100 scale plus the final score.
type Breakdown struct {
	Tier       float64
	Deals      float64
	Reviews    float64
	Compliance float64
	Tenure     float64
	Score      int
}

// Normalized computes the weighted 0-100 score.
func Normalized(in Inputs) Breakdown {
	b := Breakdown{
		Tier:       tierScores[in.VerificationTier],
		Deals:      math.Min(float64(max(in.CompletedDeals, 0))/dealCap, 1) * 100,
		Reviews:    reviewComponent(in.PeerRatings),
		Compliance: complianceComponent(in.ComplianceStatuses),
		Tenure:     tenureComponent(in.AccountCreatedAt, in.Now),
	}

	raw := b.Tier*weightTier +
		b.Deals*weightDeals +
		b.Reviews*weightReviews +
		b.Compliance*weightCompliance +
		b.Tenure*weightTenure

	b.Score = int(math.Round(math.Min(math.Max(raw, 0), 100)))
	return b
}

func reviewComponent(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += min(max(r, minRating), maxRating)
	}
	avg := float64(sum) / float64(len(ratings))
	return (avg - minRating) / (maxRating - minRating) * 100
}

func complianceComponent(statuses []ComplianceStatus) float64 {
	if len(statuses) == 0 {
		return 0
	}
	passed := 0
	for _, s := range statuses {
		if s == CompliancePassed {
			passed++
		}
	}
	return float64(passed) / float64(len(statuses)) * 100
}

func tenureComponent(createdAt, now time.Time) float64 {
	if createdAt.IsZero() || now.Before(createdAt) {
		return 0
	}
	months := now.Sub(createdAt).Hours() / 24 / daysPerMonth
	return math.Min(months/tenureCap, 1) * 100
}

// AllCompliancePassed is true only when at least one check exists and every
// check passed.
func AllCompliancePassed(statuses []ComplianceStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if s != CompliancePassed {
			return false
		}
	}
	return true
}

// AssignBadge maps a normalized score and the two compliance gates to a tier.
func AssignBadge(score int, kybApproved, allCompliancePassed bool) Tier {
	switch {
	case score >= 90 && allCompliancePassed:
		return TierInstitutional
	case score >= 70 && kybApproved:
		return TierEnhanced
	case score >= 40:
		return TierBasic
	default:
		return TierNone
	}
}
