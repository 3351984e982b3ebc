package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/logger"
)

func discardLogger() *logger.Logger {
	return logger.NewWithWriter(logger.ComponentExchange, io.Discard, false)
}

// newTestExchanger builds an Exchanger pointed at a local token endpoint.
func newTestExchanger(t *testing.T, handler http.HandlerFunc) (*Exchanger, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	exchanger, err := NewExchanger(context.Background(), ExchangerConfig{
		Authority:    srv.URL,
		ClientID:     "confidential-client",
		ClientSecret: "confidential-secret",
	}, srv.Client(), discardLogger())
	if err != nil {
		t.Fatalf("NewExchanger failed: %v", err)
	}
	return exchanger, srv
}

func TestNewExchanger_ComposesEndpoint(t *testing.T) {
	exchanger, err := NewExchanger(context.Background(), ExchangerConfig{
		Authority: "https://login.microsoftonline.com/tenant-id/",
	}, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewExchanger failed: %v", err)
	}

	want := "https://login.microsoftonline.com/tenant-id/oauth2/v2.0/token"
	if exchanger.TokenEndpoint() != want {
		t.Errorf("Expected endpoint %q, got %q", want, exchanger.TokenEndpoint())
	}
}

func TestExchange_Success(t *testing.T) {
	keyPair := GenerateTestKeyPair(t, "obo-kid")
	oboToken := NewTokenBuilder(t, keyPair).
		WithObjectID("user-oid-123").
		WithAudience("https://graph.microsoft.com").
		WithScope("User.Read").
		Build()

	var gotPath string
	exchanger, _ := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Expected form content type, got %s", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != GrantTypeJWTBearer {
			t.Errorf("Expected grant_type=%s, got %s", GrantTypeJWTBearer, got)
		}
		if got := r.PostForm.Get("requested_token_use"); got != RequestedTokenUseOBO {
			t.Errorf("Expected requested_token_use=on_behalf_of, got %s", got)
		}
		if got := r.PostForm.Get("client_id"); got != "confidential-client" {
			t.Errorf("Expected client_id=confidential-client, got %s", got)
		}
		if got := r.PostForm.Get("client_secret"); got != "confidential-secret" {
			t.Errorf("Expected the client secret in the form, got %s", got)
		}
		if got := r.PostForm.Get("assertion"); got != "user-assertion" {
			t.Errorf("Expected assertion=user-assertion, got %s", got)
		}
		if got := r.PostForm.Get("scope"); got != "https://graph.microsoft.com/User.Read offline_access" {
			t.Errorf("Expected space-joined scopes, got %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"` + oboToken + `","token_type":"Bearer","expires_in":3599}`))
	})

	result, err := exchanger.Exchange(context.Background(), "user-assertion",
		[]string{"https://graph.microsoft.com/User.Read", "offline_access"})
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	if gotPath != "/oauth2/v2.0/token" {
		t.Errorf("Expected the v2.0 token path, got %s", gotPath)
	}
	if result.Failed() {
		t.Fatalf("Expected success, got provider error %s: %s", result.ErrorCode, result.ErrorDescription)
	}
	if result.Token.AccessToken != oboToken {
		t.Error("Expected the exchanged access token to be returned")
	}
	if result.Token.TokenType != "Bearer" {
		t.Errorf("Expected token_type=Bearer, got %s", result.Token.TokenType)
	}
	if result.Token.Expiry.Before(time.Now().Add(time.Hour / 2)) {
		t.Errorf("Expected expiry derived from expires_in, got %v", result.Token.Expiry)
	}
	if result.Claims == nil {
		t.Fatal("Expected the exchanged token's claims to be decoded")
	}
	if result.Claims.ObjectID != "user-oid-123" {
		t.Errorf("Expected oid=user-oid-123 in exchanged claims, got %s", result.Claims.ObjectID)
	}
}

func TestExchange_ProviderError(t *testing.T) {
	exchanger, _ := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{
			"error": "invalid_grant",
			"error_description": "AADSTS65001: The user or administrator has not consented.",
			"correlation_id": "corr-123"
		}`))
	})

	result, err := exchanger.Exchange(context.Background(), "user-assertion",
		[]string{"https://search.azure.com/.default"})
	if err != nil {
		t.Fatalf("Expected provider rejection as data, got error: %v", err)
	}

	if !result.Failed() {
		t.Fatal("Expected Failed()=true for a provider rejection")
	}
	if result.ErrorCode != "invalid_grant" {
		t.Errorf("Expected error_code=invalid_grant, got %s", result.ErrorCode)
	}
	if result.CorrelationID != "corr-123" {
		t.Errorf("Expected correlation_id=corr-123, got %s", result.CorrelationID)
	}
	if result.ErrorDescription == "" {
		t.Error("Expected the provider's error description to be preserved")
	}
}

func TestExchange_TransportError(t *testing.T) {
	exchanger, srv := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := exchanger.Exchange(context.Background(), "user-assertion",
		[]string{"https://graph.microsoft.com/User.Read"})
	if err == nil {
		t.Fatal("Expected a transport error for an unreachable endpoint")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("Expected TransportError, got %T", err)
	}
}

func TestExchange_NonJSONResponse(t *testing.T) {
	exchanger, _ := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>upstream proxy error</html>"))
	})

	_, err := exchanger.Exchange(context.Background(), "user-assertion",
		[]string{"https://graph.microsoft.com/User.Read"})
	if err == nil {
		t.Fatal("Expected an error for a non-JSON token response")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("Expected TransportError, got %T", err)
	}
}

func TestExchange_OpaqueToken(t *testing.T) {
	// Some resources issue tokens that are not JWS compact strings. The
	// exchange still succeeds; only the decoded claims are unavailable.
	exchanger, _ := newTestExchanger(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"opaque-token-value","token_type":"Bearer","expires_in":600}`))
	})

	result, err := exchanger.Exchange(context.Background(), "user-assertion",
		[]string{"https://search.azure.com/.default"})
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if result.Failed() {
		t.Fatal("Expected success for an opaque token")
	}
	if result.Claims != nil {
		t.Errorf("Expected nil claims for an opaque token, got %+v", result.Claims)
	}
}

func TestTargetLabel(t *testing.T) {
	tests := []struct {
		scopes []string
		want   string
	}{
		{[]string{"https://graph.microsoft.com/User.Read"}, "graph"},
		{[]string{"offline_access", "https://search.azure.com/.default"}, "search"},
		{[]string{"api://something/else"}, "other"},
		{nil, "other"},
	}

	for _, tt := range tests {
		if got := targetLabel(tt.scopes); got != tt.want {
			t.Errorf("targetLabel(%v): expected %s, got %s", tt.scopes, tt.want, got)
		}
	}
}
