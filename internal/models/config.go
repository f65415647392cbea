package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Trust      TrustConfig
	Settlement SettlementConfig
	Lock       LockConfig
	Events     EventsConfig
	Formance   FormanceConfig
	Server     ServerConfig
	Watcher    WatcherConfig
	Disburse   DisburseConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	CreateDummyUsers bool
}

// TrustConfig selects which scoring path owns the current-score field
type TrustConfig struct {
	Mode string // "normalized" or "incremental"
}

// SettlementConfig holds fee settings applied when deals close
type SettlementConfig struct {
	FeeScheduleFile string
	DefaultFeeRate  decimal.Decimal
	Currency        string
}

// LockConfig holds chain-append lock settings. An empty RedisAddr selects the
// in-process locker.
type LockConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	Expiration    time.Duration
	RetryInterval time.Duration
}

// EventsConfig holds Kafka publisher settings. No brokers disables publishing.
type EventsConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	RequiredAcks int
}

// FormanceConfig holds remote ledger settings
type FormanceConfig struct {
	Enabled      bool
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// WatcherConfig holds chain integrity watcher settings
type WatcherConfig struct {
	Enabled         bool
	PollingInterval time.Duration
}

// DisburseConfig holds Prime disbursement settings
type DisburseConfig struct {
	WalletId string
	Asset    string
}
