package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrCourseNotFound indicates the catalog has no such course.
	ErrCourseNotFound = errors.New("catalog: course not found")
	// ErrCatalogUnavailable indicates the catalog could not be reached.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CoursePrice is the catalog's current price for a course, in integer minor
// units of the given currency.
type CoursePrice struct {
	CourseID    int64  `json:"course_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// CatalogClient reads course prices from the catalog service. The price is
// captured at checkout-session creation and never recomputed from client
// input afterwards.
type CatalogClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewCatalogClient returns HTTP client wrapper.
func NewCatalogClient(baseURL string, timeout time.Duration, logger *zap.Logger) *CatalogClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CatalogClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// GetCoursePrice fetches the current price for a course.
func (c *CatalogClient) GetCoursePrice(ctx context.Context, courseID int64) (*CoursePrice, error) {
	url := fmt.Sprintf("%s/internal/courses/%d/price", c.baseURL, courseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("catalog request failed", zap.Int64("course_id", courseID), zap.Error(err))
		return nil, ErrCatalogUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrCourseNotFound
	case resp.StatusCode >= 300:
		c.logger.Warn("catalog returned non-success", zap.Int("status", resp.StatusCode))
		return nil, ErrCatalogUnavailable
	}

	var price CoursePrice
	if err := json.NewDecoder(resp.Body).Decode(&price); err != nil {
		return nil, ErrCatalogUnavailable
	}
	if price.AmountMinor <= 0 || price.Currency == "" {
		return nil, fmt.Errorf("%w: invalid price payload", ErrCatalogUnavailable)
	}
	return &price, nil
}
