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
	"fmt"
)

// EventKind identifies a trust-affecting event delivered to the incremental path.
type EventKind string

const (
	EventDealCompletion      EventKind = "deal_completion"
	EventPeerReview          EventKind = "peer_review"
	EventVerificationUpgrade EventKind = "verification_upgrade"
	EventComplianceCheck     EventKind = "compliance_check"
	EventDisputeResolution   EventKind = "dispute_resolution"
	EventTimeDecay           EventKind = "time_decay"
	EventManualAdjustment    EventKind = "manual_adjustment"
	EventDocApproved         EventKind = "doc_approved"
	EventDocRejected         EventKind = "doc_rejected"
)

// SourceCategory is the category recorded on a snapshot. It is one half of the
// idempotency key together with the related entity id.
type SourceCategory string

const (
	SourceDealCompletion      SourceCategory = "deal_completion"
	SourcePeerReview          SourceCategory = "peer_review"
	SourceVerificationUpgrade SourceCategory = "verification_upgrade"
	SourceComplianceCheck     SourceCategory = "compliance_check"
	SourceDisputeResolution   SourceCategory = "dispute_resolution"
	SourceTimeDecay           SourceCategory = "time_decay"
	SourceManualAdjustment    SourceCategory = "manual_adjustment"
)

const (
	// IncrementalFloor and IncrementalCeiling bound scores on the event-delta path.
	IncrementalFloor   = 0
	IncrementalCeiling = 1000
)

// Weights is the signed point delta applied per event kind.
var Weights = map[EventKind]float64{
	EventDealCompletion:      50,
	EventPeerReview:          20,
	EventVerificationUpgrade: 15,
	EventComplianceCheck:     0,
	EventDisputeResolution:   -30,
	EventTimeDecay:           0,
	EventManualAdjustment:    0,
	EventDocApproved:         15,
	EventDocRejected:         -10,
}

// ParseEventKind validates an event kind received from a caller.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if _, ok := Weights[k]; !ok {
		return "", fmt.Errorf("unknown trust event kind %q", s)
	}
	return k, nil
}

// Source maps an event kind to the category stored on its snapshot. Document
// review outcomes are filed under verification_upgrade.
func (k EventKind) Source() SourceCategory {
	switch k {
	case EventDocApproved, EventDocRejected:
		return SourceVerificationUpgrade
	default:
		return SourceCategory(k)
	}
}

// EventPlan is what the incremental path will write for one event.
type EventPlan struct {
	Kind   EventKind
	Delta  float64
	Source SourceCategory
	Reason string
}

// PlanEvent resolves the delta for kind, honoring an explicit override. ok is
// false when the event carries no delta and must not produce a snapshot.
func PlanEvent(kind EventKind, override *float64) (EventPlan, bool) {
	delta, known := Weights[kind]
	if override != nil {
		delta, known = *override, true
	}
	if !known || delta == 0 {
		return EventPlan{}, false
	}

	reason := fmt.Sprintf("%g %s", delta, kind)
	if delta > 0 {
		reason = "+" + reason
	}
	return EventPlan{Kind: kind, Delta: delta, Source: kind.Source(), Reason: reason}, true
}

// ApplyDelta adds delta to prev and clamps to the incremental range.
func ApplyDelta(prev, delta float64) float64 {
	next := prev + delta
	if next < IncrementalFloor {
		return IncrementalFloor
	}
	if next > IncrementalCeiling {
		return IncrementalCeiling
	}
	return next
}
