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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VerifyResult is the public answer to a custody proof lookup
type VerifyResult struct {
	Valid         bool   `json:"valid"`
	EstablishedAt string `json:"establishedAt,omitempty"`
}

// UserBalance represents a user's balance for a specific asset
type UserBalance struct {
	Asset   string          `json:"asset"`
	Balance decimal.Decimal `json:"balance"`
}

// PayoutRecord is a payout line as shown on a statement
type PayoutRecord struct {
	Id                    string          `json:"id"`
	DealId                int64           `json:"deal_id"`
	PayoutType            string          `json:"payout_type"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	AttributionPercentage decimal.Decimal `json:"attribution_percentage"`
	IsFollowOn            bool            `json:"is_follow_on"`
	RelationshipId        *int64          `json:"relationship_id,omitempty"`
	MilestoneName         string          `json:"milestone_name"`
	Status                string          `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
}

// PayoutStatement summarizes what a user has earned
type PayoutStatement struct {
	UserId     int64          `json:"user_id"`
	TrustScore float64        `json:"trust_score"`
	Badge      string         `json:"badge,omitempty"`
	Balances   []UserBalance  `json:"balances"`
	Payouts    []PayoutRecord `json:"payouts"`
}

// DealCloseResult reports what closing a deal produced
type DealCloseResult struct {
	DealId              int64    `json:"deal_id"`
	AlreadyClosed       bool     `json:"already_closed"`
	TotalFees           string   `json:"total_fees"`
	Payouts             []Payout `json:"payouts"`
	FollowOnCount       int      `json:"follow_on_count"`
	OriginatorsRescored []int64  `json:"originators_rescored"`
}
