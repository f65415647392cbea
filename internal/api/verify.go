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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleVerify is public. Every lookup answers 200 with valid true or false;
// malformed, unknown and tampered digests are indistinguishable.
func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	result := s.verifier.VerifyDigest(r.Context(), chi.URLParam(r, "hash"))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, result)
}
