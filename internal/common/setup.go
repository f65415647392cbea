package common

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"

	"relationship-custody-go/internal/auditlog"
	"relationship-custody-go/internal/custody"
	"relationship-custody-go/internal/database"
	"relationship-custody-go/internal/events"
	"relationship-custody-go/internal/formance"
	"relationship-custody-go/internal/lock"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/prime"
	"relationship-custody-go/internal/settlement"
	"relationship-custody-go/internal/trust"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService  *database.Service
	Locker     lock.Locker
	Events     events.Publisher
	Audit      *auditlog.Recorder
	Trust      *trust.Service
	Custody    *custody.Service
	Settlement *settlement.Service
	Formance   *formance.Service // nil unless enabled

	redis redis.UniversalClient
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the store, chain locker, event publisher and the
// custody, trust and settlement services.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	svcs := &Services{DbService: dbService}

	if err := svcs.initLocker(ctx, cfg.Lock); err != nil {
		svcs.Close()
		return nil, err
	}

	fees, err := loadFees(cfg.Settlement)
	if err != nil {
		svcs.Close()
		return nil, err
	}

	svcs.Events = events.New(cfg.Events)
	svcs.Audit = auditlog.NewRecorder(dbService, svcs.Locker)
	svcs.Trust = trust.NewService(dbService, trust.Mode(cfg.Trust.Mode)).WithPublisher(svcs.Events)
	svcs.Custody = custody.NewService(dbService, svcs.Locker, svcs.Audit, svcs.Events)
	svcs.Settlement = settlement.NewService(dbService, svcs.Trust, svcs.Audit, svcs.Locker, fees).
		WithPublisher(svcs.Events)

	if cfg.Formance.Enabled {
		ledger, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			svcs.Close()
			return nil, err
		}
		svcs.Formance = ledger
		svcs.Settlement.WithLedger(ledger)
	}

	zap.L().Info("Services initialized",
		zap.String("trust_mode", cfg.Trust.Mode),
		zap.Bool("redis_locks", svcs.redis != nil),
		zap.Bool("formance", svcs.Formance != nil))
	return svcs, nil
}

func (svcs *Services) initLocker(ctx context.Context, cfg models.LockConfig) error {
	if cfg.RedisAddr == "" {
		zap.L().Info("Using in-process chain locks")
		svcs.Locker = lock.NewKeyedMutex()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("unable to reach redis at %s: %w", cfg.RedisAddr, err)
	}

	zap.L().Info("Using redis chain locks", zap.String("addr", cfg.RedisAddr))
	svcs.redis = client
	svcs.Locker = lock.NewRedisLocker(client, cfg.KeyPrefix, cfg.Expiration, cfg.RetryInterval)
	return nil
}

func loadFees(cfg models.SettlementConfig) (*settlement.FeeSchedule, error) {
	fees, err := settlement.LoadFeeSchedule(cfg.FeeScheduleFile, cfg.DefaultFeeRate, cfg.Currency)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("Fee schedule file not found, using default rate",
			zap.String("file", cfg.FeeScheduleFile),
			zap.String("rate", cfg.DefaultFeeRate.String()))
		return settlement.NewFeeSchedule(cfg.DefaultFeeRate, cfg.Currency), nil
	}
	return fees, err
}

// InitializeDisburser connects to Prime and resolves the payout wallet.
func InitializeDisburser(ctx context.Context, cfg *models.Config, svcs *Services) (*settlement.Disburser, error) {
	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		return nil, err
	}

	primeService, err := prime.NewService(creds)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Finding default portfolio")
	portfolio, err := primeService.FindDefaultPortfolio(ctx)
	if err != nil {
		return nil, err
	}

	disburse := cfg.Disburse
	if disburse.WalletId == "" {
		wallets, err := primeService.ListWallets(ctx, portfolio.Id, "TRADING", []string{disburse.Asset})
		if err != nil {
			return nil, err
		}
		if len(wallets) == 0 {
			return nil, fmt.Errorf("no %s trading wallet in portfolio %s", disburse.Asset, portfolio.Name)
		}
		disburse.WalletId = wallets[0].Id
	}
	zap.L().Info("Using payout wallet",
		zap.String("portfolio", portfolio.Name),
		zap.String("wallet_id", disburse.WalletId),
		zap.String("asset", disburse.Asset))

	disburser := settlement.NewDisburser(svcs.DbService, primeService, svcs.Audit, portfolio.Id, disburse)
	if svcs.Formance != nil {
		disburser.WithLedger(svcs.Formance)
	}
	return disburser, nil
}

func (svcs *Services) Close() {
	if svcs.Events != nil {
		if err := svcs.Events.Close(); err != nil {
			zap.L().Warn("Failed to close event publisher", zap.Error(err))
		}
	}
	if svcs.redis != nil {
		svcs.redis.Close()
	}
	if svcs.DbService != nil {
		svcs.DbService.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
