package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"relationship-custody-go/internal/models"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const defaultPortfolioName = "Default Portfolio"

// Service disburses member payouts from the platform's Prime wallet.
type Service struct {
	client          client.RestClient
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService
}

func NewService(creds *credentials.Credentials) (*Service, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	return &Service{
		client:          restClient,
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (s *Service) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	response, err := s.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return nil, fmt.Errorf("unable to list portfolios: %w", err)
	}

	portfolioList := make([]models.Portfolio, len(response.Portfolios))
	for i, p := range response.Portfolios {
		portfolioList[i] = models.Portfolio{
			Id:   p.Id,
			Name: p.Name,
		}
	}
	return portfolioList, nil
}

func (s *Service) FindDefaultPortfolio(ctx context.Context) (*models.Portfolio, error) {
	portfolioList, err := s.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	for _, portfolio := range portfolioList {
		if portfolio.Name == defaultPortfolioName {
			return &portfolio, nil
		}
	}
	return nil, fmt.Errorf("default portfolio not found")
}

// ListWallets lists the portfolio's wallets; disbursement needs a trading
// wallet holding the payout asset.
func (s *Service) ListWallets(ctx context.Context, portfolioId, walletType string, symbols []string) ([]models.Wallet, error) {
	response, err := s.walletsSvc.ListWallets(ctx, &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        walletType,
		Symbols:     symbols,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list wallets: %w", err)
	}

	walletList := make([]models.Wallet, len(response.Wallets))
	for i, w := range response.Wallets {
		walletList[i] = models.Wallet{
			Id:     w.Id,
			Name:   w.Name,
			Symbol: w.Symbol,
			Type:   w.Type,
		}
	}
	return walletList, nil
}

// CreateWithdrawalParams describes one payout withdrawal
type CreateWithdrawalParams struct {
	PortfolioId        string
	WalletId           string
	DestinationAddress string
	Amount             string
	Asset              string
	IdempotencyKey     string
}

// CreateWithdrawal sends a payout to a blockchain address. Repeating a
// request with the same idempotency key returns the original activity.
func (s *Service) CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*models.Withdrawal, error) {
	if params.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}

	symbol, network := parseAsset(params.Asset)
	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:     params.PortfolioId,
		SourceWalletId:  params.WalletId,
		Amount:          params.Amount,
		IdempotencyKey:  params.IdempotencyKey,
		Symbol:          symbol,
		DestinationType: "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: &model.BlockchainAddress{
			Address: params.DestinationAddress,
			Network: network,
		},
	}

	zap.L().Info("Creating payout withdrawal",
		zap.String("wallet_id", params.WalletId),
		zap.String("symbol", symbol),
		zap.String("amount", params.Amount),
		zap.String("destination", params.DestinationAddress),
		zap.String("idempotency_key", params.IdempotencyKey))

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to create withdrawal for %s: %w", params.IdempotencyKey, err)
	}

	zap.L().Info("Payout withdrawal created",
		zap.String("activity_id", response.ActivityId),
		zap.String("idempotency_key", params.IdempotencyKey))

	withdrawal := &models.Withdrawal{
		ActivityId:  response.ActivityId,
		PayoutId:    params.IdempotencyKey,
		Symbol:      symbol,
		Amount:      params.Amount,
		Destination: params.DestinationAddress,
	}
	if network != nil {
		withdrawal.Network = network.Id + "-" + network.Type
	}
	return withdrawal, nil
}

// parseAsset splits USDC-ethereum-mainnet into its symbol and network. A bare
// symbol leaves the network to Prime's default.
func parseAsset(asset string) (string, *model.NetworkDetails) {
	parts := strings.SplitN(asset, "-", 3)
	if len(parts) < 3 {
		return parts[0], nil
	}
	return parts[0], &model.NetworkDetails{Id: parts[1], Type: parts[2]}
}
