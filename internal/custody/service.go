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

package custody

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"relationship-custody-go/internal/auditlog"
	"relationship-custody-go/internal/events"
	"relationship-custody-go/internal/hashchain"
	"relationship-custody-go/internal/lock"
	"relationship-custody-go/internal/metrics"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"go.uber.org/zap"
)

const chainName = "custody"

// Store is what the custody service reads and writes.
type Store interface {
	store.CustodyStore
	GetUserById(ctx context.Context, userId int64) (*models.User, error)
}

type Service struct {
	store  Store
	locker lock.Locker
	audit  *auditlog.Recorder
	events events.Publisher
}

func NewService(s Store, locker lock.Locker, audit *auditlog.Recorder, publisher events.Publisher) *Service {
	return &Service{store: s, locker: locker, audit: audit, events: publisher}
}

// RegisterRelationship records the owner's claim on a contact as the next link
// of the owner's custody chain.
func (s *Service) RegisterRelationship(ctx context.Context, params store.CustodyParams) (*models.Relationship, error) {
	for _, id := range []int64{params.OwnerId, params.ContactId} {
		if _, err := s.store.GetUserById(ctx, id); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	var relationship *models.Relationship
	err := s.locker.WithLock(ctx, lock.CustodyKey(params.OwnerId), func(ctx context.Context) error {
		var err error
		relationship, err = s.store.AppendCustody(ctx, params)
		return err
	})
	metrics.ChainAppendDuration.WithLabelValues(chainName).Observe(time.Since(start).Seconds())
	if err != nil {
		status := "error"
		if errors.Is(err, store.ErrChainFork) {
			status = "fork"
			zap.L().Error("Custody chain fork rejected", zap.Int64("owner_id", params.OwnerId), zap.Error(err))
		}
		metrics.ChainAppendsTotal.WithLabelValues(chainName, status).Inc()
		return nil, fmt.Errorf("failed to register relationship: %w", err)
	}
	metrics.ChainAppendsTotal.WithLabelValues(chainName, "ok").Inc()

	// The custody link is committed; an audit failure is logged, not returned.
	if _, err := s.audit.Record(ctx, auditlog.Entry{
		Action:     "relationship_registered",
		EntityType: "relationship",
		EntityId:   &relationship.Id,
		NewState: map[string]any{
			"ownerId":       relationship.OwnerId,
			"contactId":     relationship.ContactId,
			"establishedAt": hashchain.FormatTimestamp(relationship.EstablishedAt),
			"timestampHash": relationship.TimestampHash,
		},
	}); err != nil {
		zap.L().Error("Failed to audit registered relationship",
			zap.Int64("relationship_id", relationship.Id),
			zap.String("hash", relationship.TimestampHash),
			zap.Error(err))
	}

	if err := s.events.CustodyRegistered(ctx, *relationship); err != nil {
		zap.L().Warn("Failed to publish custody event", zap.Int64("relationship_id", relationship.Id), zap.Error(err))
	}
	return relationship, nil
}

// VerifyDigest answers a public proof lookup. It never fails: malformed,
// unknown and mismatching digests all come back as invalid.
func (s *Service) VerifyDigest(ctx context.Context, digest string) models.VerifyResult {
	if !hashchain.IsDigest(digest) {
		metrics.VerificationsTotal.WithLabelValues("malformed").Inc()
		return models.VerifyResult{Valid: false}
	}

	relationship, err := s.store.GetRelationshipByHash(ctx, digest)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Error("Relationship lookup failed", zap.String("hash", digest), zap.Error(err))
		}
		metrics.VerificationsTotal.WithLabelValues("unknown").Inc()
		return models.VerifyResult{Valid: false}
	}

	if !hashchain.Verify(relationship.TimestampHash, relationship.TimestampProof) {
		metrics.VerificationsTotal.WithLabelValues("invalid").Inc()
		return models.VerifyResult{Valid: false}
	}

	metrics.VerificationsTotal.WithLabelValues("valid").Inc()
	return models.VerifyResult{
		Valid:         true,
		EstablishedAt: hashchain.FormatTimestamp(relationship.EstablishedAt),
	}
}

func (s *Service) ListRelationships(ctx context.Context, ownerId int64) ([]models.Relationship, error) {
	return s.store.GetOwnerRelationships(ctx, ownerId)
}

// VerifyOwnerChain walks the owner's chain from genesis. Besides digest and
// back-reference checks it recomputes each link from the stored columns, so an
// edited row is caught even when its proof was left alone.
func (s *Service) VerifyOwnerChain(ctx context.Context, ownerId int64) (int, error) {
	relationships, err := s.store.GetOwnerRelationships(ctx, ownerId)
	if err != nil {
		return 0, err
	}

	links := make([]hashchain.ChainLink, 0, len(relationships))
	for _, r := range relationships {
		key := strconv.FormatInt(r.Id, 10)
		link, err := hashchain.LinkFromProof(key, r.TimestampHash, r.PrevHash, r.TimestampProof)
		if err != nil {
			return len(relationships), fmt.Errorf("relationship %d: %w", r.Id, err)
		}

		recomputed, err := hashchain.Append(r.PrevHash, hashchain.CustodyEvent{
			OwnerId:       r.OwnerId,
			ContactId:     r.ContactId,
			EstablishedAt: r.EstablishedAt,
		})
		if err != nil {
			return len(relationships), fmt.Errorf("relationship %d: %w", r.Id, err)
		}
		if recomputed.PayloadDigest != r.TimestampHash {
			return len(relationships), fmt.Errorf("relationship %d: stored fields: %w", r.Id, hashchain.ErrDigestMismatch)
		}
		links = append(links, link)
	}
	return len(relationships), hashchain.VerifyChain(links)
}

// Owners lists every user with at least one custody record.
func (s *Service) Owners(ctx context.Context) ([]int64, error) {
	return s.store.GetCustodyOwners(ctx)
}
