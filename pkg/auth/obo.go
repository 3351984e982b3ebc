package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/logger"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/metrics"
)

// On-Behalf-Of grant parameters (Microsoft identity platform v2.0).
const (
	GrantTypeJWTBearer   = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	RequestedTokenUseOBO = "on_behalf_of"
)

// maxTokenResponseBody bounds reads of token endpoint responses.
const maxTokenResponseBody = 1 << 20

// ExchangerConfig holds the confidential client performing exchanges.
type ExchangerConfig struct {
	// Authority is the tenant authority, e.g.
	// https://login.microsoftonline.com/<tenant-id>.
	Authority    string
	ClientID     string
	ClientSecret string
	// DiscoverEndpoint reads the token endpoint from the authority's OIDC
	// discovery document instead of composing the v2.0 URL.
	DiscoverEndpoint bool
}

// Exchanger performs On-Behalf-Of exchanges against the authority's token
// endpoint. It holds no per-user state and is safe for concurrent use; every
// call is one uncached exchange.
type Exchanger struct {
	cfg      ExchangerConfig
	endpoint string
	client   *http.Client
	log      *logger.Logger
}

// NewExchanger creates an Exchanger. With DiscoverEndpoint set it resolves
// the token endpoint through OIDC discovery, otherwise it composes the v2.0
// endpoint from the authority without any network I/O.
func NewExchanger(ctx context.Context, cfg ExchangerConfig, client *http.Client, log *logger.Logger) (*Exchanger, error) {
	authority := strings.TrimSuffix(cfg.Authority, "/")
	endpoint := authority + "/oauth2/v2.0/token"
	if cfg.DiscoverEndpoint {
		provider, err := oidc.NewProvider(ctx, authority+"/v2.0")
		if err != nil {
			return nil, fmt.Errorf("failed to discover token endpoint: %w", err)
		}
		endpoint = provider.Endpoint().TokenURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Exchanger{
		cfg:      cfg,
		endpoint: endpoint,
		client:   client,
		log:      log,
	}, nil
}

// TokenEndpoint returns the resolved token endpoint URL.
func (e *Exchanger) TokenEndpoint() string {
	return e.endpoint
}

// ExchangeResult is the outcome of one exchange attempt. Provider rejections
// are data rather than Go errors so handlers can surface the provider's own
// diagnostics.
type ExchangeResult struct {
	// Token is set on success.
	Token *oauth2.Token
	// Claims holds the decoded payload of the exchanged token, when it
	// decodes. Opaque downstream tokens leave it nil.
	Claims *Claims

	// Provider failure fields.
	ErrorCode        string
	ErrorDescription string
	CorrelationID    string
}

// Failed reports whether the provider rejected the exchange.
func (r *ExchangeResult) Failed() bool {
	return r.Token == nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	CorrelationID    string `json:"correlation_id"`
}

// Exchange trades the user's assertion for a token scoped to the target
// resource. One POST per call, no retries, nothing cached.
func (e *Exchanger) Exchange(ctx context.Context, userAssertion string, scopes []string) (*ExchangeResult, error) {
	form := url.Values{}
	form.Set("grant_type", GrantTypeJWTBearer)
	form.Set("client_id", e.cfg.ClientID)
	form.Set("client_secret", e.cfg.ClientSecret)
	form.Set("assertion", userAssertion)
	form.Set("scope", strings.Join(scopes, " "))
	form.Set("requested_token_use", RequestedTokenUseOBO)

	target := targetLabel(scopes)
	e.log.Exchange("Requesting On-Behalf-Of token", "target", target, "scopes", strings.Join(scopes, " "))

	start := time.Now()
	result, err := e.post(ctx, form)
	metrics.ExchangeDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TokenExchanges.WithLabelValues(target, "transport_error").Inc()
		return nil, err
	}
	if result.Failed() {
		metrics.TokenExchanges.WithLabelValues(target, "provider_error").Inc()
		e.log.Deny("On-Behalf-Of exchange rejected",
			"target", target,
			"error_code", result.ErrorCode,
			"correlation_id", result.CorrelationID)
		return result, nil
	}
	metrics.TokenExchanges.WithLabelValues(target, "success").Inc()
	e.log.Success("On-Behalf-Of token acquired", "target", target)
	return result, nil
}

func (e *Exchanger) post(ctx context.Context, form url.Values) (*ExchangeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: e.endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBody))
	if err != nil {
		return nil, &TransportError{Endpoint: e.endpoint, Err: err}
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &TransportError{
			Endpoint: e.endpoint,
			Err:      fmt.Errorf("non-JSON token response (status %d): %w", resp.StatusCode, err),
		}
	}

	if payload.Error != "" {
		return &ExchangeResult{
			ErrorCode:        payload.Error,
			ErrorDescription: payload.ErrorDescription,
			CorrelationID:    payload.CorrelationID,
		}, nil
	}
	if payload.AccessToken == "" {
		return nil, &TransportError{
			Endpoint: e.endpoint,
			Err:      fmt.Errorf("token response missing access_token (status %d)", resp.StatusCode),
		}
	}

	token := &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
	}
	if payload.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}

	result := &ExchangeResult{Token: token}
	if claims, err := ParseClaims(payload.AccessToken); err == nil {
		result.Claims = claims
	}
	return result, nil
}

// targetLabel maps scope sets to low-cardinality metric labels.
func targetLabel(scopes []string) string {
	for _, s := range scopes {
		switch {
		case strings.Contains(s, "graph.microsoft.com"):
			return "graph"
		case strings.Contains(s, "search.azure.com"):
			return "search"
		}
	}
	return "other"
}
