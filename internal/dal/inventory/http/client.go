package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/service/models/product"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrProductNotFound is returned when the inventory service does not know the SKU.
	ErrProductNotFound = errors.New("product not found")
	// ErrInventoryResponse is returned for any other unexpected response.
	ErrInventoryResponse = errors.New("unexpected inventory response")
)

// Client queries the inventory service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// MustNewClient reads inventory.base_url and inventory.timeout_seconds.
func MustNewClient() *Client {
	baseURL := viper.GetString("inventory.base_url")
	if baseURL == "" {
		panic("inventory.base_url is not set in config")
	}
	timeoutSeconds := viper.GetInt("inventory.timeout_seconds")
	if timeoutSeconds == 0 {
		timeoutSeconds = 10
	}

	return NewClient(baseURL, time.Duration(timeoutSeconds)*time.Second)
}

// GetProduct returns the product with its current price and stock.
func (c *Client) GetProduct(ctx context.Context, sku string) (product.Product, error) {
	endpoint := c.baseURL + "/products/" + url.PathEscape(sku)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return product.Product{}, fmt.Errorf("failed to build inventory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return product.Product{}, fmt.Errorf("failed to query inventory for %s: %w", sku, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return product.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
	default:
		return product.Product{}, fmt.Errorf("%w: status %d for %s", ErrInventoryResponse, resp.StatusCode, sku)
	}

	var p product.Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return product.Product{}, fmt.Errorf("%w: %w", ErrInventoryResponse, err)
	}

	return p, nil
}
