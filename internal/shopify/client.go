package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxPageLimit is the page size cap of the Shopify Admin REST API.
	MaxPageLimit = 250

	// defaultRetryAfter is used when Shopify rate limits without a usable
	// Retry-After header.
	defaultRetryAfter = 2 * time.Second

	accessTokenHeader = "X-Shopify-Access-Token"
)

// Client issues paginated product list requests against the Shopify Admin
// REST API. It never mutates local state.
type Client struct {
	httpClient *http.Client
	apiVersion string
	logger     *zap.Logger
}

// NewClient creates a Shopify API client for the given API version
// (e.g. "2024-01").
func NewClient(apiVersion string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiVersion: apiVersion,
		logger:     logger,
	}
}

// NewClientWithHTTP creates a client with a custom http.Client, used by
// tests to point at a stub server.
func NewClientWithHTTP(apiVersion string, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		apiVersion: apiVersion,
		logger:     logger,
	}
}

// ListProducts fetches one page of products. sinceID 0 means the first
// page; otherwise only products with a Shopify id greater than sinceID are
// returned, in ascending id order. Never returns more than limit items.
func (c *Client) ListProducts(ctx context.Context, baseURL, accessToken string, sinceID int64, limit int) ([]RawProduct, error) {
	if limit <= 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	url := fmt.Sprintf("%s/admin/api/%s/products.json?limit=%d", baseURL, c.apiVersion, limit)
	if sinceID > 0 {
		url += fmt.Sprintf("&since_id=%d", sinceID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build products request: %w", err)
	}
	req.Header.Set(accessTokenHeader, accessToken)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	products, err := decodeProductsPage(body)
	if err != nil {
		c.logger.Error("Failed to decode Shopify products page",
			zap.Error(err),
			zap.Int64("since_id", sinceID),
		)
		return nil, &MalformedResponseError{Err: err, Excerpt: string(body)}
	}

	// Shopify should honor the limit, but the guarantee is ours to keep.
	if len(products) > limit {
		products = products[:limit]
	}

	c.logger.Debug("Fetched Shopify products page",
		zap.Int64("since_id", sinceID),
		zap.Int("limit", limit),
		zap.Int("count", len(products)),
	)

	return products, nil
}

// GetShop fetches the shop profile from shop.json. The refresh job uses it
// to keep the locally stored name, email, plan and domains current.
func (c *Client) GetShop(ctx context.Context, baseURL, accessToken string) (*RawShop, error) {
	url := fmt.Sprintf("%s/admin/api/%s/shop.json", baseURL, c.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build shop request: %w", err)
	}
	req.Header.Set(accessTokenHeader, accessToken)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Shop *RawShop `json:"shop"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.Error("Failed to decode Shopify shop profile", zap.Error(err))
		return nil, &MalformedResponseError{Err: err, Excerpt: string(body)}
	}
	if envelope.Shop == nil {
		return nil, &MalformedResponseError{
			Err:     fmt.Errorf("missing shop field"),
			Excerpt: string(body),
		}
	}

	c.logger.Debug("Fetched Shopify shop profile",
		zap.String("myshopify_domain", envelope.Shop.MyshopifyDomain),
		zap.String("plan_name", envelope.Shop.PlanName),
	)

	return envelope.Shop, nil
}

// do executes the request and maps non-200 responses onto the error
// taxonomy shared by every Admin API call.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("shopify returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &MalformedResponseError{
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
			Excerpt: string(body),
		}
	}

	return body, nil
}

// decodeProductsPage decodes a products.json body, retaining the raw JSON
// of every record and its children.
func decodeProductsPage(body []byte) ([]RawProduct, error) {
	var envelope struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Products == nil {
		return nil, fmt.Errorf("missing products field")
	}

	products := make([]RawProduct, 0, len(envelope.Products))
	for i, raw := range envelope.Products {
		var p RawProduct
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		p.Raw = raw

		// Children keep their own raw snapshots too.
		var children struct {
			Variants []json.RawMessage `json:"variants"`
			Images   []json.RawMessage `json:"images"`
		}
		if err := json.Unmarshal(raw, &children); err == nil {
			for j := range p.Variants {
				if j < len(children.Variants) {
					p.Variants[j].Raw = children.Variants[j]
				}
			}
			for j := range p.Images {
				if j < len(children.Images) {
					p.Images[j].Raw = children.Images[j]
				}
			}
		}

		products = append(products, p)
	}
	return products, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	// Shopify sends fractional seconds, e.g. "2.0"
	if secs, err := strconv.ParseFloat(header, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultRetryAfter
}
