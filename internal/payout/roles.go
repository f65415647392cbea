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

import "fmt"

// Role is a participant's role on a deal.
type Role string

const (
	RoleOriginator   Role = "originator"
	RoleBuyer        Role = "buyer"
	RoleSeller       Role = "seller"
	RoleCounterparty Role = "counterparty"
	RoleIntroducer   Role = "introducer"
	RoleAdvisor      Role = "advisor"
	RoleLegal        Role = "legal"
	RoleEscrow       Role = "escrow"
	RoleObserver     Role = "observer"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{
		RoleOriginator,
		RoleBuyer,
		RoleSeller,
		RoleCounterparty,
		RoleIntroducer,
		RoleAdvisor,
		RoleLegal,
		RoleEscrow,
		RoleObserver,
	}
}

// ParseRole rejects anything outside the closed role set.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown participant role %q", s)
}

// Type classifies a payout line item.
type Type string

const (
	TypeOriginatorFee       Type = "originator_fee"
	TypeIntroducerFee       Type = "introducer_fee"
	TypeAdvisorFee          Type = "advisor_fee"
	TypeLifetimeAttribution Type = "lifetime_attribution"
	TypeMilestoneBonus      Type = "milestone_bonus"
	TypeSuccessFee          Type = "success_fee"
)

// TypeForRole maps a role to the payout type it earns from the fee pool.
// Every role is listed; a new role must be added here before it can be paid.
func TypeForRole(r Role) (Type, error) {
	switch r {
	case RoleOriginator:
		return TypeOriginatorFee, nil
	case RoleIntroducer:
		return TypeIntroducerFee, nil
	case RoleAdvisor:
		return TypeAdvisorFee, nil
	case RoleBuyer, RoleSeller, RoleCounterparty, RoleLegal, RoleEscrow, RoleObserver:
		return TypeSuccessFee, nil
	default:
		return "", fmt.Errorf("no payout type for role %q", r)
	}
}
