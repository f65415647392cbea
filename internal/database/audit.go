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

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"relationship-custody-go/internal/hashchain"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"
)

const (
	DefaultAuditPageSize = 100
	MaxAuditPageSize     = 500
)

func scanAudit(row rowScanner) (*models.AuditEntry, error) {
	var (
		entry                   models.AuditEntry
		actorId, entityId       sql.NullInt64
		previous, next, details sql.NullString
	)
	err := row.Scan(&entry.Id, &actorId, &entry.Action, &entry.EntityType, &entityId,
		&previous, &next, &details, &entry.Hash, &entry.PrevHash, &entry.Proof, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.ActorId = int64Ptr(actorId)
	entry.EntityId = int64Ptr(entityId)
	entry.PreviousState = rawJSON(previous)
	entry.NewState = rawJSON(next)
	entry.Metadata = rawJSON(details)
	return &entry, nil
}

func rawJSON(v sql.NullString) json.RawMessage {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.RawMessage(v.String)
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// AppendAudit links an entity mutation onto the global audit chain.
func (s *Service) AppendAudit(ctx context.Context, params store.AuditParams) (*models.AuditEntry, error) {
	if params.Action == "" || params.EntityType == "" {
		return nil, fmt.Errorf("action and entity type are required")
	}
	if params.CreatedAt.IsZero() {
		params.CreatedAt = now()
	}
	params.CreatedAt = params.CreatedAt.UTC().Truncate(time.Millisecond)

	var entry *models.AuditEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var prev string
		err := tx.QueryRowContext(ctx, queryGetAuditTail).Scan(&prev)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unable to read audit tail: %w", err)
		}

		entry, err = insertAudit(ctx, tx, params, prev)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, params store.AuditParams, prev string) (*models.AuditEntry, error) {
	link, err := hashchain.Append(prev, hashchain.AuditEvent{
		ActorId:       params.ActorId,
		Action:        params.Action,
		EntityType:    params.EntityType,
		EntityId:      params.EntityId,
		PreviousState: params.PreviousState,
		NewState:      params.NewState,
		Metadata:      params.Metadata,
		CreatedAt:     params.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	entry, err := scanAudit(tx.QueryRowContext(ctx, queryInsertAudit,
		nullInt64(params.ActorId), params.Action, params.EntityType, nullInt64(params.EntityId),
		nullJSON(params.PreviousState), nullJSON(params.NewState), nullJSON(params.Metadata),
		link.PayloadDigest, link.PrevDigest, link.Proof(), params.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: audit prev %s", store.ErrChainFork, link.PrevDigest)
		}
		return nil, fmt.Errorf("unable to insert audit entry: %w", err)
	}
	return entry, nil
}

// ListAudit returns one page of the audit log, newest first. The page size is
// capped at MaxAuditPageSize.
func (s *Service) ListAudit(ctx context.Context, limit int, cursor *store.AuditCursor) (store.AuditPage, error) {
	if limit <= 0 {
		limit = DefaultAuditPageSize
	}
	if limit > MaxAuditPageSize {
		limit = MaxAuditPageSize
	}

	var (
		rows *sql.Rows
		err  error
	)
	if cursor == nil {
		rows, err = s.db.QueryContext(ctx, queryListAudit, limit+1)
	} else {
		at := cursor.CreatedAt.UTC()
		rows, err = s.db.QueryContext(ctx, queryListAuditBefore, at, at, cursor.Id, limit+1)
	}
	if err != nil {
		return store.AuditPage{}, fmt.Errorf("unable to query audit log: %w", err)
	}
	defer closeRows(rows)

	entries, err := collectAudit(rows)
	if err != nil {
		return store.AuditPage{}, err
	}

	page := store.AuditPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		last := page.Entries[limit-1]
		page.Next = &store.AuditCursor{CreatedAt: last.CreatedAt, Id: last.Id}
	}
	return page, nil
}

// GetAuditChain returns the whole audit chain in append order.
func (s *Service) GetAuditChain(ctx context.Context) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAuditChain)
	if err != nil {
		return nil, fmt.Errorf("unable to query audit chain: %w", err)
	}
	defer closeRows(rows)
	return collectAudit(rows)
}

func collectAudit(rows *sql.Rows) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan audit entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return entries, nil
}
