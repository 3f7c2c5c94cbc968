package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CatalogClient exposes authoritative current prices. The fraud revalidator
// never trusts client-declared prices.
type CatalogClient interface {
	UnitPrice(ctx context.Context, productID uuid.UUID) (int64, error)
}

type catalogProduct struct {
	ID         uuid.UUID `json:"id"`
	PriceMinor int64     `json:"price_minor"`
}

type httpCatalogClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPCatalogClient(baseURL string) CatalogClient {
	return &httpCatalogClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *httpCatalogClient) UnitPrice(ctx context.Context, productID uuid.UUID) (int64, error) {
	url := fmt.Sprintf("%s/products/internal/%s", c.baseURL, productID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("catalog service returned %d", resp.StatusCode)
	}

	var prod catalogProduct
	if err := json.NewDecoder(resp.Body).Decode(&prod); err != nil {
		return 0, err
	}
	return prod.PriceMinor, nil
}
