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
	"errors"
	"net/http"
	"strconv"

	"relationship-custody-go/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (s *Service) handleStatement(w http.ResponseWriter, r *http.Request) {
	userId, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userId <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	statement, err := s.statements.Statement(r.Context(), userId)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		zap.L().Error("Failed to build payout statement", zap.Int64("user_id", userId), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to retrieve statement")
		return
	}
	writeJSON(w, http.StatusOK, statement)
}
