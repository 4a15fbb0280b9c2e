package marketsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIClient handles HTTP requests to the marketplace API
type APIClient struct {
	host    string
	apiKey  string
	chainID ChainID
	client  *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(host, apiKey string, chainID ChainID) *APIClient {
	return &APIClient{
		host:    host,
		apiKey:  apiKey,
		chainID: chainID,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request
func (c *APIClient) doRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	// Post steps may carry absolute endpoints pointing at another service.
	reqURL := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		reqURL = fmt.Sprintf("%s%s", c.host, endpoint)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// decodeJSONResponse reads the response body, checks HTTP status, and decodes JSON
func (c *APIClient) decodeJSONResponse(resp *http.Response, result interface{}) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyStr := string(bodyBytes)
		if bodyStr == "" {
			bodyStr = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: bodyStr}
	}

	if err := json.Unmarshal(bodyBytes, result); err != nil {
		bodyStr := string(bodyBytes)
		if len(bodyStr) > 200 {
			bodyStr = bodyStr[:200] + "..."
		}
		return fmt.Errorf("failed to decode JSON response: %w (body: %s)", err, bodyStr)
	}

	return nil
}

type stepsResponse struct {
	Steps []*Step `json:"steps"`
}

func (c *APIClient) generateSteps(ctx context.Context, action string, body interface{}) ([]*Step, error) {
	endpoint := fmt.Sprintf("/transactions/%s", action)
	resp, err := c.doRequest(ctx, "POST", endpoint, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result stepsResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Steps, nil
}

// GenerateListingTransaction fetches the steps required to create a listing.
func (c *APIClient) GenerateListingTransaction(ctx context.Context, params *ListingParams) ([]*Step, error) {
	return c.generateSteps(ctx, "listing", params)
}

// GenerateOfferTransaction fetches the steps required to create an offer.
func (c *APIClient) GenerateOfferTransaction(ctx context.Context, params *OfferParams) ([]*Step, error) {
	return c.generateSteps(ctx, "offer", params)
}

// GenerateSellTransaction fetches the steps required to accept an offer.
func (c *APIClient) GenerateSellTransaction(ctx context.Context, params *SellParams) ([]*Step, error) {
	return c.generateSteps(ctx, "sell", params)
}

// GenerateCancelTransaction fetches the steps required to cancel an order.
func (c *APIClient) GenerateCancelTransaction(ctx context.Context, params *CancelParams) ([]*Step, error) {
	return c.generateSteps(ctx, "cancel", params)
}

// GenerateBuyTransaction fetches the steps required to fill a listing.
func (c *APIClient) GenerateBuyTransaction(ctx context.Context, params *BuyParams) ([]*Step, error) {
	return c.generateSteps(ctx, "buy", params)
}

type executeResponse struct {
	OrderID string `json:"orderId"`
}

// Execute registers a signed order payload with the backend and returns the
// resulting order id.
func (c *APIClient) Execute(ctx context.Context, post *PostRequest, signature string) (string, error) {
	body := map[string]interface{}{}
	if len(post.Body) > 0 {
		if err := json.Unmarshal(post.Body, &body); err != nil {
			return "", fmt.Errorf("failed to decode post body: %w", err)
		}
	}
	body["signature"] = signature
	body["executeType"] = "order"

	method := post.Method
	if method == "" {
		method = "POST"
	}
	resp, err := c.doRequest(ctx, method, post.Endpoint, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result executeResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return "", err
	}
	return result.OrderID, nil
}

type checkoutOptionsResponse struct {
	Options CheckoutOptions `json:"options"`
}

// CheckoutOptionsMarketplace fetches the supported checkout routes for a
// set of marketplace orders.
func (c *APIClient) CheckoutOptionsMarketplace(ctx context.Context, wallet string, orderIDs []string) (*CheckoutOptions, error) {
	body := map[string]interface{}{
		"chainId": c.chainID,
		"wallet":  wallet,
		"orders":  orderIDs,
	}
	resp, err := c.doRequest(ctx, "POST", "/checkout/options/marketplace", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result checkoutOptionsResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result.Options, nil
}

// CheckoutOptionsSalesContract fetches the supported checkout routes for a
// primary sale contract.
func (c *APIClient) CheckoutOptionsSalesContract(ctx context.Context, wallet, contractAddress, collectionAddress string) (*CheckoutOptions, error) {
	body := map[string]interface{}{
		"chainId":           c.chainID,
		"wallet":            wallet,
		"contractAddress":   contractAddress,
		"collectionAddress": collectionAddress,
	}
	resp, err := c.doRequest(ctx, "POST", "/checkout/options/sales-contract", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result checkoutOptionsResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result.Options, nil
}

type ordersResponse struct {
	Orders []*Order `json:"orders"`
}

type countResponse struct {
	Count int `json:"count"`
}

type orderResponse struct {
	Order *Order `json:"order"`
}

// ListListings fetches active listings for a collectible.
func (c *APIClient) ListListings(ctx context.Context, collectionAddress, tokenID string, page, limit int) ([]*Order, error) {
	endpoint := fmt.Sprintf("/orders/listings?chainId=%d&collectionAddress=%s&tokenId=%s&page=%d&limit=%d",
		c.chainID, url.QueryEscape(collectionAddress), url.QueryEscape(tokenID), page, limit)
	resp, err := c.doRequest(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ordersResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Orders, nil
}

// ListOffers fetches active offers for a collectible.
func (c *APIClient) ListOffers(ctx context.Context, collectionAddress, tokenID string, page, limit int) ([]*Order, error) {
	endpoint := fmt.Sprintf("/orders/offers?chainId=%d&collectionAddress=%s&tokenId=%s&page=%d&limit=%d",
		c.chainID, url.QueryEscape(collectionAddress), url.QueryEscape(tokenID), page, limit)
	resp, err := c.doRequest(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ordersResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Orders, nil
}

// CountListings fetches the number of active listings for a collectible.
func (c *APIClient) CountListings(ctx context.Context, collectionAddress, tokenID string) (int, error) {
	endpoint := fmt.Sprintf("/orders/listings/count?chainId=%d&collectionAddress=%s&tokenId=%s",
		c.chainID, url.QueryEscape(collectionAddress), url.QueryEscape(tokenID))
	resp, err := c.doRequest(ctx, "GET", endpoint, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var result countResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// CountOffers fetches the number of active offers for a collectible.
func (c *APIClient) CountOffers(ctx context.Context, collectionAddress, tokenID string) (int, error) {
	endpoint := fmt.Sprintf("/orders/offers/count?chainId=%d&collectionAddress=%s&tokenId=%s",
		c.chainID, url.QueryEscape(collectionAddress), url.QueryEscape(tokenID))
	resp, err := c.doRequest(ctx, "GET", endpoint, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var result countResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// GetHighestOffer fetches the best offer for a collectible. A nil order
// means no offers exist.
func (c *APIClient) GetHighestOffer(ctx context.Context, collectionAddress, tokenID string) (*Order, error) {
	endpoint := fmt.Sprintf("/orders/offers/highest?chainId=%d&collectionAddress=%s&tokenId=%s",
		c.chainID, url.QueryEscape(collectionAddress), url.QueryEscape(tokenID))
	resp, err := c.doRequest(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result orderResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Order, nil
}

// GetLowestListing fetches the cheapest listing for a collectible. A nil
// order means no listings exist.
func (c *APIClient) GetLowestListing(ctx context.Context, collectionAddress, tokenID string) (*Order, error) {
	endpoint := fmt.Sprintf("/orders/listings/lowest?chainId=%d&collectionAddress=%s&tokenId=%s",
		c.chainID, url.QueryEscape(collectionAddress), url.QueryEscape(tokenID))
	resp, err := c.doRequest(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result orderResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Order, nil
}

type currenciesResponse struct {
	Currencies []*Currency `json:"currencies"`
}

// GetCurrencies fetches the currencies accepted on this chain.
func (c *APIClient) GetCurrencies(ctx context.Context) ([]*Currency, error) {
	endpoint := fmt.Sprintf("/currencies?chainId=%d", c.chainID)
	resp, err := c.doRequest(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result currenciesResponse
	if err := c.decodeJSONResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Currencies, nil
}
