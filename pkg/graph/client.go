// Package graph is a minimal Microsoft Graph client covering the delegated
// profile and group membership reads the gateway performs.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/downstream"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/logger"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/metrics"
)

// DefaultBaseURL is the public Microsoft Graph endpoint.
const DefaultBaseURL = "https://graph.microsoft.com"

// groupODataType marks group entries in memberOf pages. The endpoint also
// returns directory roles and administrative units, which do not feed
// security filtering.
const groupODataType = "#microsoft.graph.group"

// Client calls Microsoft Graph with a delegated token passed per request.
// It holds no token state and is safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewClient creates a Graph client. A nil httpClient gets a default with a
// bounded timeout.
func NewClient(baseURL string, httpClient *http.Client, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpClient,
		log:     log,
	}
}

// Profile is the subset of the /me resource the gateway returns.
type Profile struct {
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	JobTitle          string `json:"jobTitle"`
	ID                string `json:"id"`
}

// Me fetches the signed-in user's profile.
func (c *Client) Me(ctx context.Context, accessToken string) (*Profile, error) {
	body, err := c.get(ctx, "/v1.0/me", accessToken, "graph_me")
	if err != nil {
		return nil, err
	}
	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}
	return &profile, nil
}

type directoryObject struct {
	ODataType   string `json:"@odata.type"`
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// MemberOf returns the object IDs of the groups the signed-in user belongs
// to. Non-group directory objects in the page are skipped.
func (c *Client) MemberOf(ctx context.Context, accessToken string) ([]string, error) {
	body, err := c.get(ctx, "/v1.0/me/memberOf", accessToken, "graph_member_of")
	if err != nil {
		return nil, err
	}
	var page struct {
		Value []directoryObject `json:"value"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse memberOf response: %w", err)
	}
	groups := make([]string, 0, len(page.Value))
	for _, obj := range page.Value {
		if obj.ODataType == groupODataType {
			groups = append(groups, obj.ID)
		}
	}
	return groups, nil
}

func (c *Client) get(ctx context.Context, path, accessToken, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	c.log.Flow(logger.DirectionOutgoing, "Calling Microsoft Graph", "path", path)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph response: %w", err)
	}
	metrics.DownstreamRequests.WithLabelValues(target, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		c.log.Deny("Graph call failed", "path", path, "status", resp.StatusCode)
		return nil, &downstream.Error{Target: target, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
