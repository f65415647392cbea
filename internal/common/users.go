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

package common

import (
	"context"
	"fmt"

	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"go.uber.org/zap"
)

// ResolveUsers returns the user with the given email, or every user when the
// filter is empty.
func ResolveUsers(ctx context.Context, users store.UserStore, emailFilter string) ([]models.User, error) {
	if emailFilter != "" {
		zap.L().Info("Looking up user by email", zap.String("email", emailFilter))
		user, err := users.GetUserByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return []models.User{*user}, nil
	}

	all, err := users.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	zap.L().Info("Retrieved users", zap.Int("count", len(all)))
	return all, nil
}

// ResolveUser accepts either a numeric id or an email address.
func ResolveUser(ctx context.Context, users store.UserStore, ref string) (*models.User, error) {
	var id int64
	if _, err := fmt.Sscanf(ref, "%d", &id); err == nil && fmt.Sprint(id) == ref {
		return users.GetUserById(ctx, id)
	}
	return users.GetUserByEmail(ctx, ref)
}
