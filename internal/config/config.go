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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/trust"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	mode, err := trust.ParseMode(getEnvString("TRUST_SCORE_MODE", string(trust.ModeNormalized)))
	if err != nil {
		return nil, fmt.Errorf("invalid TRUST_SCORE_MODE: %w", err)
	}

	feeRate, err := getEnvDecimal("DEFAULT_FEE_RATE", decimal.RequireFromString("0.02"))
	if err != nil {
		return nil, err
	}

	lockExpiration, err := getEnvDuration("LOCK_EXPIRATION", 30*time.Second)
	if err != nil {
		return nil, err
	}

	lockRetryInterval, err := getEnvDuration("LOCK_RETRY_INTERVAL", 50*time.Millisecond)
	if err != nil {
		return nil, err
	}

	batchTimeout, err := getEnvDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond)
	if err != nil {
		return nil, err
	}

	readTimeout, err := getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	watcherInterval, err := getEnvDuration("WATCHER_POLLING_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:             getEnvString("DATABASE_PATH", "custody.db"),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  connMaxLifetime,
			ConnMaxIdleTime:  connMaxIdleTime,
			PingTimeout:      pingTimeout,
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Trust: models.TrustConfig{
			Mode: string(mode),
		},
		Settlement: models.SettlementConfig{
			FeeScheduleFile: getEnvString("FEE_SCHEDULE_FILE", "fees.yaml"),
			DefaultFeeRate:  feeRate,
			Currency:        getEnvString("SETTLEMENT_CURRENCY", "USD"),
		},
		Lock: models.LockConfig{
			RedisAddr:     getEnvString("REDIS_ADDR", ""),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			KeyPrefix:     getEnvString("LOCK_KEY_PREFIX", "relationship-custody:lock:"),
			Expiration:    lockExpiration,
			RetryInterval: lockRetryInterval,
		},
		Events: models.EventsConfig{
			Brokers:      getEnvList("KAFKA_BROKERS"),
			Topic:        getEnvString("KAFKA_TOPIC", "relationship-custody.events"),
			BatchTimeout: batchTimeout,
			RequiredAcks: getEnvInt("KAFKA_REQUIRED_ACKS", -1),
		},
		Formance: models.FormanceConfig{
			Enabled:      getEnvBool("FORMANCE_ENABLED", false),
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", ""),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("SERVER_ADDR", ":8080"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
		Watcher: models.WatcherConfig{
			Enabled:         getEnvBool("WATCHER_ENABLED", true),
			PollingInterval: watcherInterval,
		},
		Disburse: models.DisburseConfig{
			WalletId: getEnvString("PRIME_PAYOUT_WALLET_ID", ""),
			Asset:    getEnvString("PRIME_PAYOUT_ASSET", "USDC"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
			return decimal.Zero, fmt.Errorf("%s must be between 0 and 1, got %s", key, value)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
