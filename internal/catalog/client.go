// Package catalog is the HTTP client for the product catalog service. The
// cart only trusts the catalog for product identity; prices are snapshotted
// into the cart at add time.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	apperrors "github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/httpclient"
)

// Product is the catalog's view of a product.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `json:"image_url,omitempty"`
	InStock  bool   `json:"in_stock"`
}

// Client fetches products from the catalog service through a circuit breaker.
type Client struct {
	baseURL string
	http    *httpclient.CircuitBreakerClient
	logger  *slog.Logger
}

// New creates a catalog client for the given base URL.
func New(baseURL string, client *httpclient.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig("catalog"), logger),
		logger:  logger,
	}
}

// GetProduct fetches a product by id. A missing product maps to a not-found
// error; an unreachable catalog or open breaker maps to an unavailable error.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	endpoint := fmt.Sprintf("%s/api/v1/products/%s", c.baseURL, url.PathEscape(productID))

	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		if errors.Is(err, httpclient.ErrCircuitOpen) {
			c.logger.WarnContext(ctx, "catalog breaker open, rejecting lookup",
				slog.String("product_id", productID),
			)
		}
		return nil, apperrors.Unavailable("catalog")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("product", productID)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.Unavailable("catalog")
	}

	var body struct {
		Data Product `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return &body.Data, nil
}
