package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/auth"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/authz"
	"github.com/chcalder/msal-react-obo-aisearch-demo/pkg/config"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [token]",
	Short: "Decode a token and preview its security filter",
	Long: `Decode an access token without verifying its signature and print the
claims the gateway would act on, together with the OData filter its group
memberships produce. The token is read from the argument or, when absent,
from stdin. No network calls are made.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read token from stdin: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return fmt.Errorf("no token provided")
	}

	claims, err := auth.ParseClaims(token)
	if err != nil {
		return err
	}

	var cfg config.Config
	if err := config.Load(v, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	filter := authz.BuildGroupFilter(claims.Groups, authz.EmptyGroupsPolicy(cfg.Search.EmptyGroupsPolicy))

	out := map[string]any{
		"claims": map[string]any{
			"aud":         claims.Audience.Value(),
			"iss":         claims.Issuer,
			"sub":         claims.Subject,
			"oid":         claims.ObjectID,
			"tid":         claims.TenantID,
			"upn":         claims.PrincipalName(),
			"name":        claims.Name,
			"appid":       claims.AppID,
			"scp":         claims.Scope,
			"groups":      claims.Groups,
			"roles":       claims.Roles,
			"group_count": claims.GroupCount(),
			"exp":         claims.ExpiresAt,
			"iat":         claims.IssuedAt,
		},
		"security_filter": map[string]any{
			"expression":  filterValue(filter),
			"restricted":  filter.Restricted,
			"deny_all":    filter.DenyAll,
			"description": filter.Description,
			"policy":      cfg.Search.EmptyGroupsPolicy,
		},
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
