// Package search queries the document index over its REST API.
package search

import (
	"bytes"
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

// Credential selects how a query authenticates to the index.
type Credential struct {
	bearerToken string
	queryAuth   bool
	apiKey      string
}

// BearerCredential authenticates with an Authorization header.
func BearerCredential(token string) Credential {
	return Credential{bearerToken: token}
}

// QueryAuthCredential authenticates with the token and also passes it in
// x-ms-query-source-authorization so the index applies query-time access
// control for the user.
func QueryAuthCredential(token string) Credential {
	return Credential{bearerToken: token, queryAuth: true}
}

// APIKeyCredential authenticates with an admin or query key.
func APIKeyCredential(key string) Credential {
	return Credential{apiKey: key}
}

func (c Credential) apply(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	if c.queryAuth {
		req.Header.Set("x-ms-query-source-authorization", c.bearerToken)
	}
}

// Query is one search request. The field names follow the index REST API;
// zero-valued optional fields are omitted from the request body.
type Query struct {
	Search    string `json:"search"`
	Select    string `json:"select,omitempty"`
	Top       int    `json:"top,omitempty"`
	QueryType string `json:"queryType,omitempty"`
	OrderBy   string `json:"orderby,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

// Response is one search result page.
type Response struct {
	Results []map[string]any
	Count   int64
}

// Client posts queries to one index. Credentials are passed per request; the
// client itself holds none and is safe for concurrent use.
type Client struct {
	endpoint   string
	index      string
	apiVersion string
	client     *http.Client
	log        *logger.Logger
}

// NewClient creates a search client for the given index. A nil httpClient
// gets a default with a bounded timeout.
func NewClient(endpoint, index, apiVersion string, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		index:      index,
		apiVersion: apiVersion,
		client:     httpClient,
		log:        log,
	}
}

// Search runs one query and returns the result page. Non-success statuses
// surface as *downstream.Error so handlers can mirror them.
func (c *Client) Search(ctx context.Context, cred Credential, q Query) (*Response, error) {
	searchURL := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", c.endpoint, c.index, c.apiVersion)

	jsonBody, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	cred.apply(req)

	c.log.Flow(logger.DirectionOutgoing, "Querying search index",
		"index", c.index,
		"has_filter", q.Filter != "")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	metrics.DownstreamRequests.WithLabelValues("search", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		c.log.Deny("Search query failed", "status", resp.StatusCode)
		return nil, &downstream.Error{Target: "search", Status: resp.StatusCode, Body: string(body)}
	}

	var page struct {
		ODataCount *int64           `json:"@odata.count"`
		Value      []map[string]any `json:"value"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if page.Value == nil {
		page.Value = []map[string]any{}
	}

	// The index reports @odata.count only when asked for it; fall back to
	// the page length.
	count := int64(len(page.Value))
	if page.ODataCount != nil {
		count = *page.ODataCount
	}

	c.log.Success("Search completed", "results", count)
	return &Response{Results: page.Value, Count: count}, nil
}
