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

package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"relationship-custody-go/internal/metrics"

	"go.uber.org/zap"
)

const (
	chainCustody = "custody"
	chainAudit   = "audit"
)

// CustodyVerifier walks owners' custody chains.
type CustodyVerifier interface {
	Owners(ctx context.Context) ([]int64, error)
	VerifyOwnerChain(ctx context.Context, ownerId int64) (int, error)
}

// AuditVerifier walks the global audit chain.
type AuditVerifier interface {
	VerifyChain(ctx context.Context) (int, error)
}

type Config struct {
	Custody         CustodyVerifier
	Audit           AuditVerifier
	PollingInterval time.Duration
}

// Failure is a chain that did not verify on the last walk.
type Failure struct {
	Chain   string
	OwnerId int64
	Err     error
}

// Report summarizes one integrity walk.
type Report struct {
	StartedAt     time.Time
	OwnersChecked int
	LinksChecked  int
	Failures      []Failure
}

func (r Report) Healthy() bool { return len(r.Failures) == 0 }

// ChainWatcher periodically re-verifies every custody chain and the audit
// chain, so tampering in the database is noticed without a client asking.
type ChainWatcher struct {
	custody         CustodyVerifier
	audit           AuditVerifier
	pollingInterval time.Duration

	// chains currently failing, so a break is logged once when it appears
	// and once when it clears
	failing map[string]error
	last    Report
	mutex   sync.RWMutex

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewChainWatcher(cfg Config) *ChainWatcher {
	interval := cfg.PollingInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ChainWatcher{
		custody:         cfg.Custody,
		audit:           cfg.Audit,
		pollingInterval: interval,
		failing:         make(map[string]error),
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start runs one walk immediately and then one per polling interval.
func (w *ChainWatcher) Start(ctx context.Context) {
	zap.L().Info("Starting chain watcher", zap.Duration("polling_interval", w.pollingInterval))
	go w.pollLoop(ctx)
}

// Stop waits for the running walk to finish.
func (w *ChainWatcher) Stop() {
	zap.L().Info("Stopping chain watcher")
	close(w.stopChan)
	<-w.doneChan
	zap.L().Info("Chain watcher stopped")
}

// LastReport returns the result of the most recent walk.
func (w *ChainWatcher) LastReport() Report {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.last
}

func (w *ChainWatcher) pollLoop(ctx context.Context) {
	defer close(w.doneChan)

	ticker := time.NewTicker(w.pollingInterval)
	defer ticker.Stop()

	w.Check(ctx)

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Check walks every chain once.
func (w *ChainWatcher) Check(ctx context.Context) Report {
	report := Report{StartedAt: time.Now().UTC()}
	custodyHealthy := true

	owners, err := w.custody.Owners(ctx)
	if err != nil {
		custodyHealthy = false
		report.Failures = append(report.Failures, Failure{Chain: chainCustody, Err: fmt.Errorf("failed to list custody owners: %w", err)})
		metrics.ChainIntegrityFailures.WithLabelValues(chainCustody).Inc()
	}
	// The owner listing is tracked under the bare chain name.
	w.transition(chainCustody, err)
	for _, ownerId := range owners {
		if ctx.Err() != nil {
			break
		}
		n, err := w.custody.VerifyOwnerChain(ctx, ownerId)
		report.OwnersChecked++
		report.LinksChecked += n
		key := fmt.Sprintf("%s:%d", chainCustody, ownerId)
		if err != nil {
			custodyHealthy = false
			report.Failures = append(report.Failures, Failure{Chain: chainCustody, OwnerId: ownerId, Err: err})
			metrics.ChainIntegrityFailures.WithLabelValues(chainCustody).Inc()
		}
		w.transition(key, err)
	}
	if custodyHealthy && ctx.Err() == nil {
		metrics.ChainLastVerified.WithLabelValues(chainCustody).SetToCurrentTime()
	}

	n, err := w.audit.VerifyChain(ctx)
	report.LinksChecked += n
	if err != nil {
		report.Failures = append(report.Failures, Failure{Chain: chainAudit, Err: err})
		metrics.ChainIntegrityFailures.WithLabelValues(chainAudit).Inc()
	} else {
		metrics.ChainLastVerified.WithLabelValues(chainAudit).SetToCurrentTime()
	}
	w.transition(chainAudit, err)

	w.mutex.Lock()
	w.last = report
	w.mutex.Unlock()

	zap.L().Info("Chain integrity walk finished",
		zap.Int("owners", report.OwnersChecked),
		zap.Int("links", report.LinksChecked),
		zap.Int("failures", len(report.Failures)))
	return report
}

func (w *ChainWatcher) transition(key string, err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	_, wasFailing := w.failing[key]
	switch {
	case err != nil && !wasFailing:
		w.failing[key] = err
		zap.L().Error("Chain integrity check failed", zap.String("chain", key), zap.Error(err))
	case err == nil && wasFailing:
		delete(w.failing, key)
		zap.L().Info("Chain integrity restored", zap.String("chain", key))
	}
}

// Failing lists the chains currently failing verification.
func (w *ChainWatcher) Failing() []string {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	keys := make([]string, 0, len(w.failing))
	for k := range w.failing {
		keys = append(keys, k)
	}
	return keys
}
