package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"condo-manager/backend/internal/repository"
	"condo-manager/backend/pkg/models"
)

// HTTPRosterClient reads building rosters from an external owners registry.
type HTTPRosterClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRosterClient creates a new HTTPRosterClient. A zero timeout falls
// back to ten seconds.
func NewHTTPRosterClient(baseURL string, timeout time.Duration) *HTTPRosterClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRosterClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Members returns the owners of a building from GET /buildings/{id}/members.
func (c *HTTPRosterClient) Members(ctx context.Context, buildingID string) ([]models.Member, error) {
	endpoint := c.baseURL + "/buildings/" + url.PathEscape(buildingID) + "/members"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("building %s: %w", buildingID, repository.ErrNotFound)
	default:
		return nil, fmt.Errorf("failed to get roster: status code %d", resp.StatusCode)
	}

	var members []models.Member
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return members, nil
}

var _ repository.RosterProvider = (*HTTPRosterClient)(nil)
