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

package auditlog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"relationship-custody-go/internal/hashchain"
	"relationship-custody-go/internal/lock"
	"relationship-custody-go/internal/metrics"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"go.uber.org/zap"
)

const chainName = "audit"

// CSVHeader is the column layout of an audit export.
var CSVHeader = []string{"timestamp", "actorId", "action", "entityType", "entityId", "previousState", "newState", "hash"}

var ErrInvalidCursor = errors.New("invalid audit cursor")

// Recorder appends entity mutations to the global audit chain. Appends are
// serialized through the locker so two writers never read the same tail.
type Recorder struct {
	store  store.AuditStore
	locker lock.Locker
}

func NewRecorder(s store.AuditStore, locker lock.Locker) *Recorder {
	return &Recorder{store: s, locker: locker}
}

// Entry describes one mutation. States are marshalled to JSON; nil stays null.
type Entry struct {
	Action        string
	EntityType    string
	EntityId      *int64
	PreviousState any
	NewState      any
	Metadata      any
}

// Record appends e with the actor carried on ctx.
func (r *Recorder) Record(ctx context.Context, e Entry) (*models.AuditEntry, error) {
	params := store.AuditParams{
		ActorId:    models.ActorFromContext(ctx),
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityId:   e.EntityId,
	}
	var err error
	if params.PreviousState, err = marshalState(e.PreviousState); err != nil {
		return nil, fmt.Errorf("previous state: %w", err)
	}
	if params.NewState, err = marshalState(e.NewState); err != nil {
		return nil, fmt.Errorf("new state: %w", err)
	}
	if params.Metadata, err = marshalState(e.Metadata); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	start := time.Now()
	var entry *models.AuditEntry
	err = r.locker.WithLock(ctx, lock.AuditKey, func(ctx context.Context) error {
		var err error
		entry, err = r.store.AppendAudit(ctx, params)
		return err
	})
	metrics.ChainAppendDuration.WithLabelValues(chainName).Observe(time.Since(start).Seconds())
	if err != nil {
		status := "error"
		if errors.Is(err, store.ErrChainFork) {
			status = "fork"
		}
		metrics.ChainAppendsTotal.WithLabelValues(chainName, status).Inc()
		return nil, fmt.Errorf("failed to append audit entry %s: %w", e.Action, err)
	}

	metrics.ChainAppendsTotal.WithLabelValues(chainName, "ok").Inc()
	zap.L().Debug("Audit entry recorded",
		zap.String("action", entry.Action),
		zap.String("entity_type", entry.EntityType),
		zap.String("hash", entry.Hash))
	return entry, nil
}

func marshalState(v any) (json.RawMessage, error) {
	switch state := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return state, nil
	}
	return json.Marshal(v)
}

// VerifyChain walks the whole audit chain from genesis.
func (r *Recorder) VerifyChain(ctx context.Context) (int, error) {
	entries, err := r.store.GetAuditChain(ctx)
	if err != nil {
		return 0, err
	}

	links := make([]hashchain.ChainLink, 0, len(entries))
	for _, entry := range entries {
		link, err := hashchain.LinkFromProof(strconv.FormatInt(entry.Id, 10), entry.Hash, entry.PrevHash, entry.Proof)
		if err != nil {
			return len(entries), fmt.Errorf("audit entry %d: %w", entry.Id, err)
		}
		links = append(links, link)
	}
	return len(entries), hashchain.VerifyChain(links)
}

// Export writes one CSV page of the audit log, newest first, and returns the
// cursor of the next page, or nil on the last one.
func (r *Recorder) Export(ctx context.Context, w io.Writer, limit int, cursor *store.AuditCursor) (*store.AuditCursor, error) {
	page, err := r.store.ListAudit(ctx, limit, cursor)
	if err != nil {
		return nil, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return nil, err
	}
	for _, entry := range page.Entries {
		if err := cw.Write(csvRecord(entry)); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to write audit export: %w", err)
	}
	return page.Next, nil
}

func csvRecord(e models.AuditEntry) []string {
	return []string{
		hashchain.FormatTimestamp(e.CreatedAt),
		optionalId(e.ActorId),
		e.Action,
		e.EntityType,
		optionalId(e.EntityId),
		string(e.PreviousState),
		string(e.NewState),
		e.Hash,
	}
}

func optionalId(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

// EncodeCursor renders a cursor as "<unix millis>_<id>".
func EncodeCursor(c *store.AuditCursor) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%d_%d", c.CreatedAt.UnixMilli(), c.Id)
}

// ParseCursor is the inverse of EncodeCursor. An empty string means the first page.
func ParseCursor(s string) (*store.AuditCursor, error) {
	if s == "" {
		return nil, nil
	}
	millis, id, ok := strings.Cut(s, "_")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	return &store.AuditCursor{CreatedAt: time.UnixMilli(ms).UTC(), Id: n}, nil
}
