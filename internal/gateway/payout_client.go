package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/pkg/mylogger"
	"github.com/bibekshah220/app-server/pkg/utils"
)

// PayoutClient calls the external disbursement provider that pays sellers
// out to their bank accounts.
type PayoutClient interface {
	RequestPayout(ctx context.Context, sellerID, amount int64) (string, error)
}

type payoutClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewPayoutClient(baseURL string, timeout time.Duration, logger *zap.Logger) PayoutClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payout-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &payoutClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

type payoutRequest struct {
	SellerID int64 `json:"seller_id"`
	Amount   int64 `json:"amount"`
}

type payoutResponse struct {
	Reference string `json:"reference"`
}

func (c *payoutClient) RequestPayout(ctx context.Context, sellerID, amount int64) (string, error) {
	body, err := json.Marshal(payoutRequest{SellerID: sellerID, Amount: amount})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payout request: %w", err)
	}

	ref, err := utils.ExecuteWithBreaker(c.breaker, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payouts", bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return "", fmt.Errorf("payout gateway returned status %d", resp.StatusCode)
		}

		var result payoutResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", fmt.Errorf("failed to decode payout response: %w", err)
		}

		return result.Reference, nil
	})
	if err != nil {
		mylogger.Error(
			ctx,
			c.logger,
			"Payout request failed",
			zap.Int64("seller_id", sellerID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)

		return "", fmt.Errorf("payout request failed: %w", err)
	}

	return ref, nil
}
