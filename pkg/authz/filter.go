// Package authz builds the per-user OData security filter applied to search
// queries. Authorization here is trimming, not a gate: the filter narrows
// results to documents tagged with one of the caller's groups.
package authz

import (
	"fmt"
	"strings"

	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/metrics"
)

// EmptyGroupsPolicy decides what a token with no group claims may see.
type EmptyGroupsPolicy string

const (
	// AllowAll applies no filter for group-less users: every document is
	// visible.
	AllowAll EmptyGroupsPolicy = "allow_all"
	// DenyAll returns an empty result set for group-less users without
	// querying the index.
	DenyAll EmptyGroupsPolicy = "deny_all"
)

// Filter is the outcome of building a security filter for one request.
type Filter struct {
	// Expression is the OData filter string. Empty means unrestricted.
	Expression string
	// Restricted is set when Expression narrows results by group.
	Restricted bool
	// DenyAll is set when the request must yield zero documents. No
	// Expression accompanies it; callers skip the index entirely.
	DenyAll bool
	// Description explains the decision in responses and logs.
	Description string
	// GroupCount is the number of groups the filter was built from.
	GroupCount int
}

// Outcome returns the decision label: restricted, deny_all, or allow_all.
func (f Filter) Outcome() string {
	switch {
	case f.Restricted:
		return "restricted"
	case f.DenyAll:
		return "deny_all"
	default:
		return "allow_all"
	}
}

// BuildGroupFilter constructs the security filter for a user's group claims.
// Group order is preserved, one equality clause per group:
//
//	security_groups/any(g: g eq 'id1' or g eq 'id2')
//
// Group IDs are interpolated without quote escaping; directory-issued group
// claims are GUIDs, which cannot contain quotes.
// TODO: escape single quotes in group values before interpolating if groups
// ever come from a non-directory claim source.
func BuildGroupFilter(groups []string, policy EmptyGroupsPolicy) Filter {
	f := build(groups, policy)
	metrics.FilterDecisions.WithLabelValues(f.Outcome()).Inc()
	return f
}

func build(groups []string, policy EmptyGroupsPolicy) Filter {
	if len(groups) > 0 {
		clauses := make([]string, 0, len(groups))
		for _, group := range groups {
			clauses = append(clauses, fmt.Sprintf("g eq '%s'", group))
		}
		return Filter{
			Expression:  fmt.Sprintf("security_groups/any(g: %s)", strings.Join(clauses, " or ")),
			Restricted:  true,
			Description: fmt.Sprintf("User can see documents where security_groups contains one of their %d group(s)", len(groups)),
			GroupCount:  len(groups),
		}
	}

	if policy == DenyAll {
		return Filter{
			DenyAll:     true,
			Description: "User has no groups and the deny policy is active, returning no documents",
		}
	}

	return Filter{
		Description: "User has no groups, showing all documents (no security filter)",
	}
}
