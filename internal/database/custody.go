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
	"errors"
	"fmt"
	"time"

	"relationship-custody-go/internal/hashchain"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"go.uber.org/zap"
)

func scanRelationship(row rowScanner) (*models.Relationship, error) {
	var r models.Relationship
	err := row.Scan(&r.Id, &r.OwnerId, &r.ContactId, &r.RelationshipType, &r.EstablishedAt,
		&r.TimestampHash, &r.PrevHash, &r.TimestampProof, &r.Notes, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// AppendCustody links a new relationship onto the tail of the owner's chain.
func (s *Service) AppendCustody(ctx context.Context, params store.CustodyParams) (*models.Relationship, error) {
	if params.OwnerId == params.ContactId {
		return nil, fmt.Errorf("owner and contact must differ")
	}
	if params.EstablishedAt.IsZero() {
		params.EstablishedAt = now()
	}
	params.EstablishedAt = params.EstablishedAt.UTC().Truncate(time.Millisecond)
	if params.RelationshipType == "" {
		params.RelationshipType = "direct"
	}

	var relationship *models.Relationship
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var prev string
		err := tx.QueryRowContext(ctx, queryGetCustodyTail, params.OwnerId).Scan(&prev)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unable to read custody tail: %w", err)
		}

		relationship, err = insertCustody(ctx, tx, params, prev)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Relationship custody recorded",
		zap.Int64("owner_id", relationship.OwnerId),
		zap.Int64("contact_id", relationship.ContactId),
		zap.String("hash", relationship.TimestampHash))
	return relationship, nil
}

// insertCustody writes the link that follows prev. A prev that already has a
// successor in the owner's chain yields store.ErrChainFork.
func insertCustody(ctx context.Context, tx *sql.Tx, params store.CustodyParams, prev string) (*models.Relationship, error) {
	link, err := hashchain.Append(prev, hashchain.CustodyEvent{
		OwnerId:       params.OwnerId,
		ContactId:     params.ContactId,
		EstablishedAt: params.EstablishedAt,
	})
	if err != nil {
		return nil, err
	}

	relationship, err := scanRelationship(tx.QueryRowContext(ctx, queryInsertRelationship,
		params.OwnerId, params.ContactId, params.RelationshipType, params.EstablishedAt,
		link.PayloadDigest, link.PrevDigest, link.Proof(), params.Notes, now()))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: owner %d prev %s", store.ErrChainFork, params.OwnerId, link.PrevDigest)
		}
		return nil, fmt.Errorf("unable to insert relationship: %w", err)
	}
	return relationship, nil
}

func (s *Service) GetRelationshipById(ctx context.Context, id int64) (*models.Relationship, error) {
	return s.getRelationship(ctx, queryGetRelationshipById, id)
}

func (s *Service) GetRelationshipByHash(ctx context.Context, hash string) (*models.Relationship, error) {
	return s.getRelationship(ctx, queryGetRelationshipByHash, hash)
}

// GetRelationshipForAttribution returns the most recently established custody
// record between owner and contact.
func (s *Service) GetRelationshipForAttribution(ctx context.Context, ownerId, contactId int64) (*models.Relationship, error) {
	return s.getRelationship(ctx, queryGetRelationshipForAttribution, ownerId, contactId)
}

func (s *Service) getRelationship(ctx context.Context, query string, args ...any) (*models.Relationship, error) {
	relationship, err := scanRelationship(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("unable to query relationship: %w", err)
	}
	return relationship, nil
}

// GetOwnerRelationships returns the owner's chain in append order.
func (s *Service) GetOwnerRelationships(ctx context.Context, ownerId int64) ([]models.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, queryGetOwnerRelationships, ownerId)
	if err != nil {
		return nil, fmt.Errorf("unable to query relationships: %w", err)
	}
	defer closeRows(rows)

	var relationships []models.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan relationship: %w", err)
		}
		relationships = append(relationships, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationship rows: %w", err)
	}
	return relationships, nil
}

func (s *Service) GetCustodyOwners(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, queryGetCustodyOwners)
	if err != nil {
		return nil, fmt.Errorf("unable to query custody owners: %w", err)
	}
	defer closeRows(rows)

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("unable to scan owner id: %w", err)
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}
