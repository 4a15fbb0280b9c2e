package marketsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"
)

// BalanceReader reports an account's balances for fee-option annotation.
// A nil contract address means the chain's native token.
type BalanceReader interface {
	NativeBalance(ctx context.Context, account string) (*big.Int, error)
	TokenBalance(ctx context.Context, contractAddress, account string) (*big.Int, error)
}

// IndexerClient handles HTTP requests to the indexer API
type IndexerClient struct {
	host   string
	apiKey string
	client *http.Client
}

// NewIndexerClient creates a new indexer client
func NewIndexerClient(host, apiKey string) *IndexerClient {
	return &IndexerClient{
		host:   host,
		apiKey: apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

func (c *IndexerClient) getBalance(ctx context.Context, endpoint string) (*big.Int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.host+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	var result balanceResponse
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return ParseBig(result.Balance)
}

// NativeBalance fetches the account's native token balance.
func (c *IndexerClient) NativeBalance(ctx context.Context, account string) (*big.Int, error) {
	endpoint := fmt.Sprintf("/balances/native?account=%s", url.QueryEscape(account))
	return c.getBalance(ctx, endpoint)
}

// TokenBalance fetches the account's balance of an ERC-20 token.
func (c *IndexerClient) TokenBalance(ctx context.Context, contractAddress, account string) (*big.Int, error) {
	endpoint := fmt.Sprintf("/balances/token?contractAddress=%s&account=%s",
		url.QueryEscape(contractAddress), url.QueryEscape(account))
	return c.getBalance(ctx, endpoint)
}
