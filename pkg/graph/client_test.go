package graph

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/downstream"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := logger.NewWithWriter(logger.ComponentGraph, io.Discard, false)
	return NewClient(srv.URL, srv.Client(), log)
}

func TestMe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/me" {
			t.Errorf("Expected path /v1.0/me, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer obo-access-token" {
			t.Errorf("Expected bearer auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"displayName": "Alice Example",
			"userPrincipalName": "alice@contoso.example",
			"jobTitle": "Engineer",
			"id": "user-oid-123",
			"mail": "alice@contoso.example"
		}`))
	})

	profile, err := client.Me(context.Background(), "obo-access-token")
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}

	if profile.DisplayName != "Alice Example" {
		t.Errorf("Expected displayName=Alice Example, got %s", profile.DisplayName)
	}
	if profile.UserPrincipalName != "alice@contoso.example" {
		t.Errorf("Expected userPrincipalName=alice@contoso.example, got %s", profile.UserPrincipalName)
	}
	if profile.JobTitle != "Engineer" {
		t.Errorf("Expected jobTitle=Engineer, got %s", profile.JobTitle)
	}
	if profile.ID != "user-oid-123" {
		t.Errorf("Expected id=user-oid-123, got %s", profile.ID)
	}
}

func TestMemberOf_FiltersNonGroups(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/me/memberOf" {
			t.Errorf("Expected path /v1.0/me/memberOf, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"value": [
				{"@odata.type": "#microsoft.graph.group", "id": "group-1", "displayName": "Engineering"},
				{"@odata.type": "#microsoft.graph.directoryRole", "id": "role-1", "displayName": "Global Reader"},
				{"@odata.type": "#microsoft.graph.group", "id": "group-2", "displayName": "Finance"}
			]
		}`))
	})

	groups, err := client.MemberOf(context.Background(), "obo-access-token")
	if err != nil {
		t.Fatalf("MemberOf failed: %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d: %v", len(groups), groups)
	}
	if groups[0] != "group-1" || groups[1] != "group-2" {
		t.Errorf("Expected [group-1 group-2], got %v", groups)
	}
}

func TestMemberOf_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value": []}`))
	})

	groups, err := client.MemberOf(context.Background(), "obo-access-token")
	if err != nil {
		t.Fatalf("MemberOf failed: %v", err)
	}
	if groups == nil {
		t.Error("Expected non-nil group slice")
	}
	if len(groups) != 0 {
		t.Errorf("Expected 0 groups, got %v", groups)
	}
}

func TestMe_MirrorsErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"InvalidAuthenticationToken"}}`))
	})

	_, err := client.Me(context.Background(), "bad-token")
	if err == nil {
		t.Fatal("Expected an error for a 401 response")
	}

	var dsErr *downstream.Error
	if !errors.As(err, &dsErr) {
		t.Fatalf("Expected downstream.Error, got %T", err)
	}
	if dsErr.Status != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", dsErr.Status)
	}
	if dsErr.Target != "graph_me" {
		t.Errorf("Expected target graph_me, got %s", dsErr.Target)
	}
	if !strings.Contains(dsErr.Body, "InvalidAuthenticationToken") {
		t.Errorf("Expected the response body to be preserved, got %q", dsErr.Body)
	}
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	log := logger.NewWithWriter(logger.ComponentGraph, io.Discard, false)
	client := NewClient("", nil, log)
	if client.baseURL != DefaultBaseURL {
		t.Errorf("Expected default base URL %s, got %s", DefaultBaseURL, client.baseURL)
	}
}
