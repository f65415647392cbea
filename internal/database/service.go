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

	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.Store.
var _ store.Store = (*Service)(nil)

const dsnParams = "?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_txlock=immediate&_foreign_keys=1&_busy_timeout=5000"

type Service struct {
	db        *sql.DB
	subledger *SubledgerService
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	subledger := NewSubledgerService(db)
	service := &Service{db: db, subledger: subledger}
	if err := service.initSchema(ctx, cfg.CreateDummyUsers); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	// Initialize subledger schema
	if err := subledger.InitSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize subledger schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema(ctx context.Context, createDummyUsers bool) error {
	schema := `
	-- Members
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		trust_score REAL NOT NULL DEFAULT 0,
		verification_tier TEXT NOT NULL DEFAULT 'none',
		verification_badge TEXT NOT NULL DEFAULT '',
		kyb_status TEXT NOT NULL DEFAULT 'pending',
		total_deals INTEGER NOT NULL DEFAULT 0,
		payout_address TEXT NOT NULL DEFAULT '',
		payout_network TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_users_active ON users(active);

	-- Relationship custody chain, one chain per owner
	CREATE TABLE IF NOT EXISTS relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL REFERENCES users(id),
		contact_id INTEGER NOT NULL REFERENCES users(id),
		relationship_type TEXT NOT NULL DEFAULT 'direct',
		established_at TIMESTAMP NOT NULL,
		timestamp_hash TEXT NOT NULL UNIQUE,
		prev_hash TEXT NOT NULL,
		timestamp_proof TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	-- Two links may never claim the same predecessor within an owner's chain
	CREATE UNIQUE INDEX IF NOT EXISTS idx_relationships_owner_prev ON relationships(owner_id, prev_hash);
	CREATE INDEX IF NOT EXISTS idx_relationships_pair ON relationships(owner_id, contact_id, established_at);

	-- Global audit chain
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id INTEGER,
		previous_state TEXT,
		new_state TEXT,
		metadata TEXT,
		hash TEXT NOT NULL UNIQUE,
		prev_hash TEXT NOT NULL UNIQUE,
		proof TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_cursor ON audit_log(created_at, id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id);

	-- Trust score history
	CREATE TABLE IF NOT EXISTS trust_score_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		previous_score REAL NOT NULL,
		new_score REAL NOT NULL,
		change_reason TEXT NOT NULL,
		change_source TEXT NOT NULL,
		related_entity_id INTEGER,
		related_entity_type TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	-- Incremental events apply at most once per (user, source, entity)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trust_history_event
		ON trust_score_history(user_id, change_source, related_entity_id)
		WHERE related_entity_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_trust_history_user ON trust_score_history(user_id, created_at);

	CREATE TABLE IF NOT EXISTS peer_reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reviewer_id INTEGER NOT NULL REFERENCES users(id),
		reviewee_id INTEGER NOT NULL REFERENCES users(id),
		deal_id INTEGER,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_peer_reviews_reviewee ON peer_reviews(reviewee_id);

	CREATE TABLE IF NOT EXISTS compliance_checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		check_type TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'passed', 'failed', 'flagged')),
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_compliance_checks_user ON compliance_checks(user_id);

	CREATE TABLE IF NOT EXISTS deals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		originator_id INTEGER NOT NULL REFERENCES users(id),
		counterparty_id INTEGER REFERENCES users(id),
		deal_value TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT 'USD',
		stage TEXT NOT NULL DEFAULT 'lead',
		is_follow_on BOOLEAN NOT NULL DEFAULT 0,
		original_deal_id INTEGER REFERENCES deals(id),
		milestones TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_deals_originator_stage ON deals(originator_id, stage);

	CREATE TABLE IF NOT EXISTS deal_participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		deal_id INTEGER NOT NULL REFERENCES deals(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		role TEXT NOT NULL,
		attribution_percentage TEXT,
		relationship_id INTEGER REFERENCES relationships(id),
		UNIQUE(deal_id, user_id, role)
	);

	CREATE INDEX IF NOT EXISTS idx_deal_participants_user ON deal_participants(user_id);

	CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		deal_id INTEGER NOT NULL REFERENCES deals(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		payout_type TEXT NOT NULL,
		role TEXT NOT NULL,
		attribution_percentage TEXT NOT NULL,
		relationship_id INTEGER,
		is_follow_on BOOLEAN NOT NULL DEFAULT 0,
		original_deal_id INTEGER,
		milestone_id TEXT NOT NULL,
		milestone_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		external_ref TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payouts_deal_milestone ON payouts(deal_id, milestone_name);
	CREATE INDEX IF NOT EXISTS idx_payouts_user ON payouts(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_payouts_status ON payouts(status);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	// Insert 3 dummy users for testing if configured to do so
	if createDummyUsers {
		users := []store.CreateUserParams{
			{Name: "Alice Johnson", Email: "alice.johnson@example.com", KybStatus: "approved"},
			{Name: "Bob Smith", Email: "bob.smith@example.com"},
			{Name: "Carol Williams", Email: "carol.williams@example.com"},
		}

		for _, params := range users {
			user, err := s.CreateUser(ctx, params)
			if err != nil {
				zap.L().Error("Failed to insert dummy user", zap.String("name", params.Name), zap.Error(err))
			} else {
				zap.L().Info("Dummy user created", zap.Int64("id", user.Id), zap.String("name", user.Name))
			}
		}
	} else {
		zap.L().Info("Skipping dummy user creation (CREATE_DUMMY_USERS=false)")
	}

	return nil
}

// withTx runs fn inside a transaction and commits when fn succeeds.
func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// now returns the current time in the precision stored on chain payloads.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}
