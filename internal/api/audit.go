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

package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"relationship-custody-go/internal/auditlog"
	"relationship-custody-go/internal/database"

	"go.uber.org/zap"
)

const nextCursorHeader = "X-Next-Cursor"

func (s *Service) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	limit := database.DefaultAuditPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, database.MaxAuditPageSize)
	}

	cursor, err := auditlog.ParseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	// The next cursor is only known after the page is read, and it travels
	// in a header, so the page is buffered.
	var body bytes.Buffer
	next, err := s.audit.Export(r.Context(), &body, limit, cursor)
	if err != nil {
		if errors.Is(err, auditlog.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		zap.L().Error("Audit export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	if next != nil {
		w.Header().Set(nextCursorHeader, auditlog.EncodeCursor(next))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := body.WriteTo(w); err != nil {
		zap.L().Warn("Failed to write audit export", zap.Error(err))
	}
}
