package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/apperrors"
)

// Client is the synchronous request/reply client for the quota authority.
// There is no built-in retry: call failures propagate to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// GetSubscription answers "what is this user's tier". An unknown user is
// reported as NotFound; every other failure propagates unchanged.
func (c *Client) GetSubscription(ctx context.Context, userID int64) (internal.Subscription, error) {
	url := c.baseURL + "/subscriptions/" + strconv.FormatInt(userID, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return internal.Subscription{}, fmt.Errorf("build subscription request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return internal.Subscription{}, fmt.Errorf("call quota service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return internal.Subscription{}, apperrors.NotFound("User not found.")
	}
	if resp.StatusCode != http.StatusOK {
		return internal.Subscription{}, fmt.Errorf("quota service returned non-200 status: %s", resp.Status)
	}

	var sub internal.Subscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return internal.Subscription{}, fmt.Errorf("decode subscription response: %w", err)
	}
	return sub, nil
}
