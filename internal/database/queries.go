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

package database

const (
	userColumns = `id, name, email, trust_score, verification_tier, verification_badge, kyb_status,
		total_deals, payout_address, payout_network, created_at, updated_at`

	// User queries
	queryGetActiveUsers = `
		SELECT ` + userColumns + `
		FROM users
		WHERE active = 1
		ORDER BY id`

	queryInsertUser = `
		INSERT INTO users (name, email, kyb_status, verification_tier, payout_address, payout_network, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + userColumns

	queryGetUserById = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = ? AND active = 1`

	queryUpdateKybStatus = `
		UPDATE users SET kyb_status = ?, updated_at = ? WHERE id = ? AND active = 1`

	queryInsertPeerReview = `
		INSERT INTO peer_reviews (reviewer_id, reviewee_id, deal_id, rating, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`

	queryInsertComplianceCheck = `
		INSERT INTO compliance_checks (user_id, check_type, status, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`

	// Custody queries
	relationshipColumns = `id, owner_id, contact_id, relationship_type, established_at,
		timestamp_hash, prev_hash, timestamp_proof, notes, created_at`

	queryGetCustodyTail = `
		SELECT timestamp_hash FROM relationships WHERE owner_id = ? ORDER BY id DESC LIMIT 1`

	queryInsertRelationship = `
		INSERT INTO relationships (owner_id, contact_id, relationship_type, established_at,
			timestamp_hash, prev_hash, timestamp_proof, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + relationshipColumns

	queryGetRelationshipById = `
		SELECT ` + relationshipColumns + ` FROM relationships WHERE id = ?`

	queryGetRelationshipByHash = `
		SELECT ` + relationshipColumns + ` FROM relationships WHERE timestamp_hash = ?`

	queryGetOwnerRelationships = `
		SELECT ` + relationshipColumns + ` FROM relationships WHERE owner_id = ? ORDER BY id`

	queryGetRelationshipForAttribution = `
		SELECT ` + relationshipColumns + `
		FROM relationships
		WHERE owner_id = ? AND contact_id = ?
		ORDER BY established_at DESC, id DESC
		LIMIT 1`

	queryGetCustodyOwners = `
		SELECT DISTINCT owner_id FROM relationships ORDER BY owner_id`

	// Audit queries
	auditColumns = `id, user_id, action, entity_type, entity_id, previous_state, new_state, metadata,
		hash, prev_hash, proof, created_at`

	queryGetAuditTail = `
		SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1`

	queryInsertAudit = `
		INSERT INTO audit_log (user_id, action, entity_type, entity_id, previous_state, new_state, metadata,
			hash, prev_hash, proof, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + auditColumns

	queryListAudit = `
		SELECT ` + auditColumns + `
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	queryListAuditBefore = `
		SELECT ` + auditColumns + `
		FROM audit_log
		WHERE created_at < ? OR (created_at = ? AND id < ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	queryGetAuditChain = `
		SELECT ` + auditColumns + ` FROM audit_log ORDER BY id`

	// Trust queries
	snapshotColumns = `id, user_id, previous_score, new_score, change_reason, change_source,
		related_entity_id, related_entity_type, created_at`

	queryCheckTrustEvent = `
		SELECT id FROM trust_score_history
		WHERE user_id = ? AND change_source = ? AND related_entity_id = ?
		LIMIT 1`

	queryGetTrustScore = `
		SELECT trust_score FROM users WHERE id = ? AND active = 1`

	queryInsertSnapshot = `
		INSERT INTO trust_score_history (user_id, previous_score, new_score, change_reason, change_source,
			related_entity_id, related_entity_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + snapshotColumns

	queryUpdateTrustScore = `
		UPDATE users SET trust_score = ?, updated_at = ? WHERE id = ?`

	queryGetPeerRatings = `
		SELECT rating FROM peer_reviews WHERE reviewee_id = ? ORDER BY id`

	queryGetComplianceStatuses = `
		SELECT status FROM compliance_checks WHERE user_id = ? ORDER BY id`

	queryUpdateVerificationTier = `
		UPDATE users SET verification_tier = ?, verification_badge = ?, updated_at = ? WHERE id = ? AND active = 1`

	queryGetTrustHistory = `
		SELECT ` + snapshotColumns + `
		FROM trust_score_history
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	// Deal queries
	dealColumns = `id, title, originator_id, counterparty_id, deal_value, currency, stage,
		is_follow_on, original_deal_id, milestones, created_at, closed_at`

	queryInsertDeal = `
		INSERT INTO deals (title, originator_id, counterparty_id, deal_value, currency, stage,
			is_follow_on, original_deal_id, milestones, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + dealColumns

	queryGetDealById = `
		SELECT ` + dealColumns + ` FROM deals WHERE id = ?`

	queryListCompletedDealsByOriginator = `
		SELECT ` + dealColumns + `
		FROM deals
		WHERE originator_id = ? AND stage = 'completed'
		ORDER BY closed_at DESC, id DESC`

	queryUpdateDealStage = `
		UPDATE deals SET stage = ?, closed_at = ? WHERE id = ?`

	queryIncrementTotalDeals = `
		UPDATE users SET total_deals = total_deals + 1, updated_at = ?
		WHERE id IN (SELECT DISTINCT user_id FROM deal_participants WHERE deal_id = ?)`

	queryUpdateMilestones = `
		UPDATE deals SET milestones = ? WHERE id = ?`

	participantColumns = `id, deal_id, user_id, role, attribution_percentage, relationship_id`

	queryInsertParticipant = `
		INSERT INTO deal_participants (deal_id, user_id, role, attribution_percentage, relationship_id)
		VALUES (?, ?, ?, ?, ?)
		RETURNING ` + participantColumns

	queryGetDealParticipants = `
		SELECT ` + participantColumns + ` FROM deal_participants WHERE deal_id = ? ORDER BY id`

	// Payout queries
	payoutColumns = `id, deal_id, user_id, amount, currency, payout_type, role, attribution_percentage,
		relationship_id, is_follow_on, original_deal_id, milestone_id, milestone_name, status,
		external_ref, created_at, updated_at`

	queryHasPayouts = `
		SELECT EXISTS(SELECT 1 FROM payouts WHERE deal_id = ? AND milestone_name = ?)`

	queryInsertPayout = `
		INSERT INTO payouts (id, deal_id, user_id, amount, currency, payout_type, role, attribution_percentage,
			relationship_id, is_follow_on, original_deal_id, milestone_id, milestone_name, status,
			external_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + payoutColumns

	queryGetPayoutsByUser = `
		SELECT ` + payoutColumns + ` FROM payouts WHERE user_id = ? ORDER BY created_at DESC, id`

	queryGetPayoutsByDeal = `
		SELECT ` + payoutColumns + ` FROM payouts WHERE deal_id = ? ORDER BY created_at, id`

	queryGetPayoutsByStatus = `
		SELECT ` + payoutColumns + ` FROM payouts WHERE status = ? ORDER BY created_at, id`

	queryGetPayoutStatus = `
		SELECT status FROM payouts WHERE id = ?`

	queryUpdatePayoutStatus = `
		UPDATE payouts SET status = ?, external_ref = ?, updated_at = ? WHERE id = ? AND status = ?`

	// Balance queries
	queryGetBalance = `
		SELECT balance 
		FROM account_balances 
		WHERE user_id = ? AND asset = ?`

	queryGetAllUserBalances = `
		SELECT id, user_id, asset, balance, last_transaction_id, version, updated_at
		FROM account_balances 
		WHERE user_id = ? AND balance != 0
		ORDER BY asset`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount), 0) as calculated_balance
		FROM transactions 
		WHERE user_id = ? AND asset = ? AND status = 'confirmed'`

	// Transaction queries
	queryCheckDuplicateTransaction = `
		SELECT id FROM transactions WHERE external_transaction_id = ? LIMIT 1`

	queryGetAccountBalance = `
		SELECT id, balance, version 
		FROM account_balances 
		WHERE user_id = ? AND asset = ?`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (id, user_id, asset, balance, version)
		VALUES (?, ?, ?, ?, ?)`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, user_id, asset, transaction_type, amount, balance_before, balance_after,
			external_transaction_id, address, reference, status, created_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, user_id, asset, transaction_type, amount, balance_before, balance_after,
		          external_transaction_id, address, reference, status, created_at, processed_at`

	queryUpdateAccountBalance = `
		UPDATE account_balances 
		SET balance = ?, last_transaction_id = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND asset = ? AND version = ?`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT id, user_id, asset, transaction_type, amount, balance_before, balance_after,
		       external_transaction_id, address, reference, status, created_at, processed_at
		FROM transactions 
		WHERE user_id = ? AND asset = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`
)
