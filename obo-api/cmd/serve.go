package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/auth"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/authz"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/config"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/downstream"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/graph"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/logger"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/search"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OBO API gateway",
	Long:  `Start the On-Behalf-Of gateway on the configured port.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// tokenExchanger trades a user assertion for a downstream token.
type tokenExchanger interface {
	Exchange(ctx context.Context, userAssertion string, scopes []string) (*auth.ExchangeResult, error)
}

// profileAPI reads the signed-in user's profile and group memberships.
type profileAPI interface {
	Me(ctx context.Context, accessToken string) (*graph.Profile, error)
	MemberOf(ctx context.Context, accessToken string) ([]string, error)
}

// searchAPI queries the document index.
type searchAPI interface {
	Search(ctx context.Context, cred search.Credential, q search.Query) (*search.Response, error)
}

// Gateway orchestrates the On-Behalf-Of routes: decode the caller's token,
// exchange it where the route needs a downstream call, apply group-based
// filtering, and assemble the response. It holds no per-request state.
type Gateway struct {
	cfg       *config.Config
	exchanger tokenExchanger
	profiles  profileAPI
	searcher  searchAPI
	log       *logger.Logger
}

// searchRequest is the body accepted by the search routes.
type searchRequest struct {
	Query string `json:"query"`
}

// writeJSON writes a JSON response body with the given status
func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// jsonError writes a JSON error response
func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]any{"error": message})
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	if err := config.Load(v, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(logger.ComponentAPI)

	// Initialize OpenTelemetry
	ctx := context.Background()
	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:       "obo-api",
		Enabled:           cfg.OTel.Enabled,
		CollectorEndpoint: cfg.OTel.CollectorEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer otelShutdown(ctx)

	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		log.Warn("Incomplete configuration, On-Behalf-Of routes will fail until set",
			"missing", strings.Join(missing, ", "))
	}

	httpClient := downstream.NewHTTPClient(cfg.Service.DownstreamTimeout())

	exchanger, err := auth.NewExchanger(ctx, auth.ExchangerConfig{
		Authority:        cfg.AzureAD.AuthorityURL(),
		ClientID:         cfg.AzureAD.ClientID,
		ClientSecret:     cfg.AzureAD.ClientSecret,
		DiscoverEndpoint: cfg.AzureAD.DiscoverEndpoint,
	}, httpClient, logger.New(logger.ComponentExchange))
	if err != nil {
		return fmt.Errorf("failed to create token exchanger: %w", err)
	}

	gw := &Gateway{
		cfg:       &cfg,
		exchanger: exchanger,
		profiles:  graph.NewClient(cfg.Graph.BaseURL, httpClient, logger.New(logger.ComponentGraph)),
		searcher:  search.NewClient(cfg.Search.Endpoint, cfg.Search.Index, cfg.Search.APIVersion, httpClient, logger.New(logger.ComponentSearch)),
		log:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/profile", gw.handleProfile)
	mux.HandleFunc("/search", gw.handleSearch)
	mux.HandleFunc("/search-simple", gw.handleSearchSimple)
	mux.HandleFunc("/search-unified", gw.handleSearchUnified)

	var handler http.Handler = corsMiddleware(cfg.Service.CORSOrigins, mux)
	if cfg.OTel.Enabled {
		handler = telemetry.WrapHandler(handler, "obo-api")
	}

	server := &http.Server{
		Addr:         cfg.Service.Addr(),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.Info("Shutting down OBO API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Shutdown error", "error", err)
		}
		close(done)
	}()

	log.Section("STARTING OBO API")
	log.Info("OBO API starting", "addr", cfg.Service.Addr())
	log.Info("Health server starting", "addr", cfg.Service.HealthAddr())
	log.Info("Token endpoint", "url", exchanger.TokenEndpoint())
	log.Info("Graph scopes", "scopes", strings.Join(cfg.Graph.Scopes, " "))
	log.Info("Search scopes", "scopes", strings.Join(cfg.Search.Scopes, " "))
	log.Info("Search auth mode", "mode", cfg.Search.AuthMode)
	log.Info("Empty groups policy", "policy", cfg.Search.EmptyGroupsPolicy)
	log.Info("Flow: React SPA -> OBO API -> Microsoft Graph / Azure AI Search")

	// Separate plain HTTP health server for probes and metrics scraping
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", gw.handleHealth)
	healthMux.HandleFunc("/ready", gw.handleHealth)
	healthMux.Handle("/metrics", promhttp.Handler())
	healthServer := &http.Server{
		Addr:         cfg.Service.HealthAddr(),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Health server error", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	log.Info("OBO API stopped")
	return nil
}

// corsMiddleware allows the configured SPA origins to call the API from the
// browser, including credentialed preflight requests.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "OBO API is running",
	})
}

// bearerClaims extracts and decodes the caller's token. On failure it writes
// the response (401 for a missing or non-Bearer header, 400 for a token that
// does not decode) and reports ok=false; no downstream call happens in
// either case.
func (g *Gateway) bearerClaims(w http.ResponseWriter, r *http.Request) (string, *auth.Claims, bool) {
	token, err := auth.BearerFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		g.log.Deny("Request rejected", "reason", err.Error())
		jsonError(w, "No authorization token provided", http.StatusUnauthorized)
		return "", nil, false
	}

	claims, err := auth.ParseClaims(token)
	if err != nil {
		g.log.Deny("Token decode failed", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Malformed access token",
			"details": err.Error(),
		})
		return "", nil, false
	}

	g.log.Token("incoming",
		"upn", claims.PrincipalName(),
		"oid", claims.ObjectID,
		"groups", claims.GroupCount())
	return token, claims, true
}

// searchQueryFromBody reads the optional JSON body of a search route. An
// absent body or query falls back to the match-everything query.
func (g *Gateway) searchQueryFromBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return "", false
	}
	if req.Query == "" {
		req.Query = "*"
	}
	return req.Query, true
}

func (g *Gateway) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token, claims, ok := g.bearerClaims(w, r)
	if !ok {
		return
	}

	g.log.Section("PROFILE REQUEST (OBO FLOW)")

	ctx, span := telemetry.StartSpan(r.Context(), "obo.profile",
		telemetry.AttrUserOID.String(claims.ObjectID),
		telemetry.AttrUserUPN.String(claims.PrincipalName()),
		telemetry.AttrGroupCount.Int(claims.GroupCount()),
		telemetry.AttrExchangeTarget.String("graph"),
	)
	defer span.End()

	result, err := g.exchanger.Exchange(ctx, token, g.cfg.Graph.Scopes)
	if err != nil {
		telemetry.SetSpanError(span, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "OBO token acquisition failed",
			"details": err.Error(),
		})
		return
	}
	if result.Failed() {
		span.SetAttributes(telemetry.AttrExchangeOutcome.String("provider_error"))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":          "OBO token acquisition failed",
			"details":        result.ErrorDescription,
			"error_code":     result.ErrorCode,
			"correlation_id": result.CorrelationID,
		})
		return
	}
	span.SetAttributes(telemetry.AttrExchangeOutcome.String("success"))

	profile, err := g.profiles.Me(ctx, result.Token.AccessToken)
	if err != nil {
		recordDownstreamFailure(span, err)
		g.writeGraphError(w, err)
		return
	}

	// Graph tokens carry no group claims, so memberships come from the API.
	// A failure here degrades the comparison payload instead of the request.
	queriedGroups, err := g.profiles.MemberOf(ctx, result.Token.AccessToken)
	if err != nil {
		g.log.Warn("Group membership query failed", "error", err)
		queriedGroups = []string{}
	}

	oboClaims := result.Claims
	if oboClaims == nil {
		oboClaims = &auth.Claims{Groups: []string{}, Roles: []string{}}
	}

	telemetry.SetSpanOK(span)
	g.log.Success("Profile retrieved", "user", profile.UserPrincipalName)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Profile retrieved using the On-Behalf-Of flow",
		"flow":    "On-Behalf-Of (OBO) Flow Successful",
		"user_info": map[string]any{
			"displayName":       profile.DisplayName,
			"userPrincipalName": profile.UserPrincipalName,
			"jobTitle":          profile.JobTitle,
			"id":                profile.ID,
		},
		"incoming_token_info": map[string]any{
			"aud":         claims.Audience.Value(),
			"iss":         claims.Issuer,
			"scp":         claims.Scope,
			"appid":       claims.AppID,
			"groups":      claims.Groups,
			"roles":       claims.Roles,
			"group_count": claims.GroupCount(),
			"token_type":  "Access token for the OBO API",
		},
		"obo_token_info": map[string]any{
			"aud":                    oboClaims.Audience.Value(),
			"iss":                    oboClaims.Issuer,
			"scp":                    oboClaims.Scope,
			"appid":                  oboClaims.AppID,
			"groups_in_token":        oboClaims.Groups,
			"groups_in_token_count":  oboClaims.GroupCount(),
			"groups_queried_via_api": queriedGroups,
			"groups_queried_count":   len(queriedGroups),
			"roles":                  oboClaims.Roles,
			"token_type":             "OBO Access token for Microsoft Graph",
			"obtained_via":           "On-Behalf-Of flow",
			"note":                   "Graph tokens don't include group claims. Groups must be queried via /me/memberOf API.",
		},
		"token_comparison": map[string]any{
			"same_user":          claims.ObjectID == oboClaims.ObjectID,
			"different_audience": !claims.Audience.Equal(oboClaims.Audience),
			"incoming_audience":  claims.Audience.Value(),
			"obo_audience":       oboClaims.Audience.Value(),
		},
		"description": "This shows both the incoming token (from the SPA) and the OBO token (for Graph)",
	})
}

// recordDownstreamFailure notes a failed downstream call on the span,
// including the mirrored status when the failure carries one.
func recordDownstreamFailure(span trace.Span, err error) {
	telemetry.SetSpanError(span, err)
	var dsErr *downstream.Error
	if errors.As(err, &dsErr) {
		span.SetAttributes(telemetry.AttrDownstreamStatus.Int(dsErr.Status))
	}
}

// writeGraphError mirrors a Graph failure status to the caller.
func (g *Gateway) writeGraphError(w http.ResponseWriter, err error) {
	var dsErr *downstream.Error
	if errors.As(err, &dsErr) {
		writeJSON(w, dsErr.Status, map[string]any{
			"error":   "Failed to call Microsoft Graph",
			"status":  dsErr.Status,
			"details": dsErr.Body,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   "Failed to call Microsoft Graph",
		"details": err.Error(),
	})
}

func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token, claims, ok := g.bearerClaims(w, r)
	if !ok {
		return
	}
	query, ok := g.searchQueryFromBody(w, r)
	if !ok {
		return
	}

	ctx, span := telemetry.StartSpan(r.Context(), "obo.search",
		telemetry.AttrUserOID.String(claims.ObjectID),
		telemetry.AttrGroupCount.Int(claims.GroupCount()),
		telemetry.AttrExchangeTarget.String("search"),
	)
	defer span.End()

	result, err := g.exchanger.Exchange(ctx, token, g.cfg.Search.Scopes)
	if err != nil {
		telemetry.SetSpanError(span, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "OBO token acquisition failed for AI Search",
			"details": err.Error(),
		})
		return
	}
	if result.Failed() {
		span.SetAttributes(telemetry.AttrExchangeOutcome.String("provider_error"))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":            "OBO token acquisition failed for AI Search",
			"details":          result.ErrorDescription,
			"error_code":       result.ErrorCode,
			"correlation_id":   result.CorrelationID,
			"scopes_requested": g.cfg.Search.Scopes,
			"suggestion":       "Check if Azure AD permission 'https://search.azure.com/user_impersonation' is granted and consented",
		})
		return
	}
	span.SetAttributes(telemetry.AttrExchangeOutcome.String("success"))

	g.filteredSearch(ctx, w, claims, query,
		search.BearerCredential(result.Token.AccessToken),
		"AI Search completed successfully using OBO flow",
		"React SPA -> OBO API (OBO) -> Azure AI Search")
}

func (g *Gateway) handleSearchSimple(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The key check comes first: an unconfigured deployment answers without
	// touching the token or the network.
	if g.cfg.Search.APIKey == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":       "SEARCH_API_KEY not configured",
			"instruction": "Set SEARCH_API_KEY environment variable with your AI Search admin or query key",
		})
		return
	}

	_, claims, ok := g.bearerClaims(w, r)
	if !ok {
		return
	}
	query, ok := g.searchQueryFromBody(w, r)
	if !ok {
		return
	}

	ctx, span := telemetry.StartSpan(r.Context(), "obo.search_simple",
		telemetry.AttrUserOID.String(claims.ObjectID),
		telemetry.AttrGroupCount.Int(claims.GroupCount()),
		telemetry.AttrSearchAuthMode.String("api_key"),
	)
	defer span.End()

	g.filteredSearch(ctx, w, claims, query,
		search.APIKeyCredential(g.cfg.Search.APIKey),
		"AI Search completed successfully (using API key)",
		"React SPA -> OBO API -> Azure AI Search (with API key)")
}

// filteredSearch builds the caller's security filter, runs the query, and
// writes the shared response shape of the manually filtered search routes.
func (g *Gateway) filteredSearch(ctx context.Context, w http.ResponseWriter, claims *auth.Claims, query string, cred search.Credential, message, flow string) {
	span := trace.SpanFromContext(ctx)
	filter := authz.BuildGroupFilter(claims.Groups, authz.EmptyGroupsPolicy(g.cfg.Search.EmptyGroupsPolicy))
	span.SetAttributes(telemetry.AttrFilterOutcome.String(filter.Outcome()))
	g.log.Filter(filter.Description, "groups", filter.GroupCount)

	userContext := map[string]any{
		"oid":         claims.ObjectID,
		"upn":         claims.PrincipalName(),
		"groups":      claims.Groups,
		"group_count": claims.GroupCount(),
	}
	securityFiltering := map[string]any{
		"filter":      filterValue(filter),
		"description": filter.Description,
	}

	if filter.DenyAll {
		telemetry.SetSpanOK(span)
		writeJSON(w, http.StatusOK, map[string]any{
			"message":            "Search skipped: user has no groups and the deny policy is active",
			"flow":               flow,
			"user_context":       userContext,
			"security_filtering": securityFiltering,
			"search_query":       query,
			"result_count":       0,
			"results":            []any{},
		})
		return
	}

	resp, err := g.searcher.Search(ctx, cred, search.Query{
		Search:    query,
		Select:    "*",
		Top:       g.cfg.Query.DefaultTop,
		QueryType: g.cfg.Query.DefaultQueryType,
		Filter:    filter.Expression,
	})
	if err != nil {
		recordDownstreamFailure(span, err)
		g.writeSearchError(w, err, "", "")
		return
	}
	span.SetAttributes(telemetry.AttrResultCount.Int64(resp.Count))
	telemetry.SetSpanOK(span)

	writeJSON(w, http.StatusOK, map[string]any{
		"message":            message,
		"flow":               flow,
		"user_context":       userContext,
		"security_filtering": securityFiltering,
		"search_query":       query,
		"result_count":       resp.Count,
		"results":            resp.Results,
	})
}

// filterValue renders a filter expression for response payloads, null when
// no restriction applies.
func filterValue(f authz.Filter) any {
	if !f.Restricted {
		return nil
	}
	return f.Expression
}

func (g *Gateway) handleSearchUnified(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token, claims, ok := g.bearerClaims(w, r)
	if !ok {
		return
	}
	query, ok := g.searchQueryFromBody(w, r)
	if !ok {
		return
	}

	ctx, span := telemetry.StartSpan(r.Context(), "obo.search_unified",
		telemetry.AttrUserOID.String(claims.ObjectID),
		telemetry.AttrGroupCount.Int(claims.GroupCount()),
	)
	defer span.End()

	// The index evaluates GroupIds/UserIds itself in OBO mode; no manual
	// filter is built on this route.
	filterDescription := "Query-time access control: Azure AI Search evaluates GroupIds/UserIds based on user's token"

	var (
		cred         search.Credential
		authMethod   string
		searchClaims *auth.Claims
	)
	if g.cfg.Search.UseOBO() {
		span.SetAttributes(telemetry.AttrSearchAuthMode.String("obo"))
		result, err := g.exchanger.Exchange(ctx, token, g.cfg.Search.Scopes)
		if err != nil {
			telemetry.SetSpanError(span, err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "OBO token acquisition failed for AI Search",
				"details": err.Error(),
			})
			return
		}
		if result.Failed() {
			span.SetAttributes(telemetry.AttrExchangeOutcome.String("provider_error"))
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":            "OBO token acquisition failed for AI Search",
				"details":          result.ErrorDescription,
				"error_code":       result.ErrorCode,
				"correlation_id":   result.CorrelationID,
				"scopes_requested": g.cfg.Search.Scopes,
				"suggestion":       "The 'invalid_grant' error often means the Azure AD permission isn't configured or consented. Try setting SEARCH_AUTH_MODE=API_KEY as a workaround.",
			})
			return
		}
		span.SetAttributes(telemetry.AttrExchangeOutcome.String("success"))
		cred = search.QueryAuthCredential(result.Token.AccessToken)
		authMethod = "OBO Flow with Query-Time Access Control"
		searchClaims = result.Claims
	} else {
		span.SetAttributes(telemetry.AttrSearchAuthMode.String("api_key"))
		if g.cfg.Search.APIKey == "" {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":       "SEARCH_API_KEY not configured",
				"instruction": "Set SEARCH_API_KEY environment variable or use SEARCH_AUTH_MODE=OBO",
			})
			return
		}
		cred = search.APIKeyCredential(g.cfg.Search.APIKey)
		authMethod = "API Key"
	}

	resp, err := g.searcher.Search(ctx, cred, search.Query{
		Search:    query,
		Select:    g.cfg.Query.SelectFields,
		Top:       g.cfg.Query.DefaultTop,
		QueryType: g.cfg.Query.DefaultQueryType,
		OrderBy:   g.cfg.Query.DefaultOrderBy,
	})
	if err != nil {
		recordDownstreamFailure(span, err)
		g.writeSearchError(w, err, authMethod, unifiedSuggestion(err))
		return
	}
	span.SetAttributes(telemetry.AttrResultCount.Int64(resp.Count))
	telemetry.SetSpanOK(span)

	response := map[string]any{
		"message":        "AI Search completed successfully",
		"authentication": authMethod,
		"flow":           fmt.Sprintf("React SPA -> OBO API (%s) -> Azure AI Search", authMethod),
		"user_context": map[string]any{
			"oid":           claims.ObjectID,
			"upn":           claims.PrincipalName(),
			"groups":        claims.Groups,
			"group_count":   claims.GroupCount(),
			"groups_source": "Incoming token from the SPA (not from OBO token)",
		},
		"security_filtering": map[string]any{
			"method":      "query-time access control",
			"description": filterDescription,
			"note":        "Azure AI Search evaluates access based on x-ms-query-source-authorization header",
		},
		"search_query": query,
		"result_count": resp.Count,
		"results":      resp.Results,
	}

	if searchClaims != nil {
		response["incoming_token_info"] = map[string]any{
			"aud":         claims.Audience.Value(),
			"iss":         claims.Issuer,
			"oid":         claims.ObjectID,
			"upn":         claims.UPN,
			"appid":       claims.AppID,
			"scp":         claims.Scope,
			"groups":      claims.Groups,
			"group_count": claims.GroupCount(),
			"token_type":  "Incoming Access Token from the SPA (contains groups)",
		}
		response["search_token_info"] = map[string]any{
			"aud":        searchClaims.Audience.Value(),
			"iss":        searchClaims.Issuer,
			"oid":        searchClaims.ObjectID,
			"upn":        searchClaims.UPN,
			"appid":      searchClaims.AppID,
			"scp":        searchClaims.Scope,
			"roles":      searchClaims.Roles,
			"groups":     searchClaims.Groups,
			"exp":        searchClaims.ExpiresAt,
			"token_type": "OBO Access Token for Azure AI Search (scoped for search, no groups)",
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// writeSearchError mirrors a search failure status to the caller. The
// optional authMethod and suggestion enrich the unified route's payload.
func (g *Gateway) writeSearchError(w http.ResponseWriter, err error, authMethod, suggestion string) {
	var dsErr *downstream.Error
	if errors.As(err, &dsErr) {
		body := map[string]any{
			"error":   "AI Search request failed",
			"status":  dsErr.Status,
			"details": dsErr.Body,
		}
		if authMethod != "" {
			body["auth_method"] = authMethod
		}
		if suggestion != "" {
			body["suggestion"] = suggestion
		}
		writeJSON(w, dsErr.Status, body)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   "AI Search request failed",
		"details": err.Error(),
	})
}

// unifiedSuggestion returns remediation guidance for a failed unified
// search. A 403 almost always means a missing index role assignment.
func unifiedSuggestion(err error) string {
	var dsErr *downstream.Error
	if !errors.As(err, &dsErr) {
		return ""
	}
	if dsErr.Status == http.StatusForbidden {
		return "403 Forbidden: The OBO token doesn't have permission to access the search index. " +
			"Ensure the user (or service principal) has 'Search Index Data Reader' role assigned on the Azure AI Search service. " +
			"For user-based OBO, the signed-in user needs the role, not just the service principal."
	}
	return fmt.Sprintf("HTTP %d error from Azure AI Search", dsErr.Status)
}
