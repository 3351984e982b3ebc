package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Search authentication modes
const (
	AuthModeOBO    = "OBO"
	AuthModeAPIKey = "API_KEY"
)

// Empty-groups policies for the security filter
const (
	EmptyGroupsAllowAll = "allow_all"
	EmptyGroupsDenyAll  = "deny_all"
)

// ServiceConfig holds HTTP server configuration
type ServiceConfig struct {
	Port                     int      `mapstructure:"port"`
	HealthPort               int      `mapstructure:"health_port"`
	Host                     string   `mapstructure:"host"`
	LogLevel                 string   `mapstructure:"log_level"`
	CORSOrigins              []string `mapstructure:"cors_origins"`
	DownstreamTimeoutSeconds int      `mapstructure:"downstream_timeout_seconds"`
}

// Addr returns the API listen address
func (c ServiceConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HealthAddr returns the health check listen address (plain HTTP)
func (c ServiceConfig) HealthAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HealthPort)
}

// DownstreamTimeout returns the timeout applied to every outbound HTTP call
func (c ServiceConfig) DownstreamTimeout() time.Duration {
	return time.Duration(c.DownstreamTimeoutSeconds) * time.Second
}

// AzureADConfig holds the app registration used for On-Behalf-Of exchanges
type AzureADConfig struct {
	TenantID         string `mapstructure:"tenant_id"`
	ClientID         string `mapstructure:"client_id"`
	ClientSecret     string `mapstructure:"client_secret"`
	Authority        string `mapstructure:"authority"`
	DiscoverEndpoint bool   `mapstructure:"discover_endpoint"`
}

// AuthorityURL returns the configured authority, defaulting to the
// tenant-scoped Microsoft identity platform authority.
func (c AzureADConfig) AuthorityURL() string {
	if c.Authority != "" {
		return strings.TrimSuffix(c.Authority, "/")
	}
	return "https://login.microsoftonline.com/" + c.TenantID
}

// GraphConfig holds Microsoft Graph client configuration
type GraphConfig struct {
	BaseURL string   `mapstructure:"base_url"`
	Scopes  []string `mapstructure:"scopes"`
}

// SearchConfig holds search service client configuration
type SearchConfig struct {
	Endpoint          string   `mapstructure:"endpoint"`
	Index             string   `mapstructure:"index"`
	APIVersion        string   `mapstructure:"api_version"`
	Scopes            []string `mapstructure:"scopes"`
	APIKey            string   `mapstructure:"api_key"`
	AuthMode          string   `mapstructure:"auth_mode"`
	EmptyGroupsPolicy string   `mapstructure:"empty_groups_policy"`
}

// UseOBO reports whether the unified search route authenticates with an
// exchanged token rather than the admin API key.
func (c SearchConfig) UseOBO() bool {
	return strings.EqualFold(c.AuthMode, AuthModeOBO)
}

// QueryConfig holds search query defaults applied when a request omits them
type QueryConfig struct {
	DefaultTop       int    `mapstructure:"default_top"`
	DefaultQueryType string `mapstructure:"default_query_type"`
	DefaultOrderBy   string `mapstructure:"default_orderby"`
	SelectFields     string `mapstructure:"select_fields"`
}

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

// Config is the full gateway configuration
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	AzureAD AzureADConfig `mapstructure:"azuread"`
	Graph   GraphConfig   `mapstructure:"graph"`
	Search  SearchConfig  `mapstructure:"search"`
	Query   QueryConfig   `mapstructure:"query"`
	OTel    OTelConfig    `mapstructure:"otel"`
}

// InitViper initializes Viper with common settings
func InitViper(serviceName string) *viper.Viper {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(fmt.Sprintf("./%s", serviceName))
	v.AddConfigPath("/etc/obo-api/")

	// Environment variable settings
	v.SetEnvPrefix("OBO_API")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	return v
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.port", 5000)
	v.SetDefault("service.health_port", 5100)
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("service.downstream_timeout_seconds", 10)

	// Azure AD defaults: authority is derived from the tenant unless set
	v.SetDefault("azuread.authority", "")
	v.SetDefault("azuread.discover_endpoint", false)

	// Graph defaults
	v.SetDefault("graph.base_url", "https://graph.microsoft.com")
	v.SetDefault("graph.scopes", []string{"https://graph.microsoft.com/User.Read"})

	// Search defaults
	v.SetDefault("search.api_version", "2025-11-01-preview")
	v.SetDefault("search.scopes", []string{"https://search.azure.com/.default"})
	v.SetDefault("search.auth_mode", AuthModeOBO)
	v.SetDefault("search.empty_groups_policy", EmptyGroupsAllowAll)

	// Query defaults
	v.SetDefault("query.default_top", 50)
	v.SetDefault("query.default_query_type", "simple")
	v.SetDefault("query.default_orderby", "name asc")
	v.SetDefault("query.select_fields", "name,description,location,GroupIds,UserIds")

	// OTel defaults
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.collector_endpoint", "")
}

// Load reads the configuration from file and environment
func Load(v *viper.Viper, cfg *Config) error {
	// Support standard PORT/HOST env vars used by container platforms
	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			v.Set("service.port", port)
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		v.Set("service.host", host)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	LoadSecretsFromEnv(cfg)

	return nil
}

// LoadSecretsFromEnv overlays secrets from their conventional plain
// environment variable names. These take precedence over file values so
// secrets never need to live in config.yaml.
func LoadSecretsFromEnv(cfg *Config) {
	if secret := os.Getenv("CLIENT_SECRET"); secret != "" {
		cfg.AzureAD.ClientSecret = secret
	}
	if key := os.Getenv("SEARCH_API_KEY"); key != "" {
		cfg.Search.APIKey = key
	}
	if mode := os.Getenv("SEARCH_AUTH_MODE"); mode != "" {
		cfg.Search.AuthMode = mode
	}
	if tenant := os.Getenv("TENANT_ID"); tenant != "" {
		cfg.AzureAD.TenantID = tenant
	}
	if client := os.Getenv("CLIENT_ID"); client != "" {
		cfg.AzureAD.ClientID = client
	}
}

// Validate checks enumerated settings. Missing credentials are not errors
// here; routes that need them fail per request, so a deployment can run a
// subset of the surface (API key search only, for example).
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Search.AuthMode) {
	case AuthModeOBO, AuthModeAPIKey:
	default:
		return fmt.Errorf("search.auth_mode must be %s or %s, got %q", AuthModeOBO, AuthModeAPIKey, c.Search.AuthMode)
	}
	switch c.Search.EmptyGroupsPolicy {
	case EmptyGroupsAllowAll, EmptyGroupsDenyAll:
	default:
		return fmt.Errorf("search.empty_groups_policy must be %s or %s, got %q", EmptyGroupsAllowAll, EmptyGroupsDenyAll, c.Search.EmptyGroupsPolicy)
	}
	return nil
}

// MissingCredentials lists the unset settings the On-Behalf-Of routes need.
// The search API key is reported per request by the key-based routes.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.AzureAD.TenantID == "" {
		missing = append(missing, "azuread.tenant_id")
	}
	if c.AzureAD.ClientID == "" {
		missing = append(missing, "azuread.client_id")
	}
	if c.AzureAD.ClientSecret == "" {
		missing = append(missing, "azuread.client_secret")
	}
	if c.Search.Endpoint == "" {
		missing = append(missing, "search.endpoint")
	}
	if c.Search.Index == "" {
		missing = append(missing, "search.index")
	}
	return missing
}

// BindFlags binds common CLI flags to Viper
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.PersistentFlags().IntP("port", "p", 0, "Port to listen on")
	cmd.PersistentFlags().String("host", "", "Host to bind to")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("tenant-id", "", "Azure AD tenant ID")
	cmd.PersistentFlags().String("client-id", "", "App registration client ID")
	cmd.PersistentFlags().String("search-endpoint", "", "Search service endpoint URL")
	cmd.PersistentFlags().String("search-index", "", "Search index name")
	cmd.PersistentFlags().String("search-auth-mode", "", "Search auth mode (OBO or API_KEY)")
	cmd.PersistentFlags().Bool("otel-enabled", false, "Enable OpenTelemetry tracing")
	cmd.PersistentFlags().String("otel-collector-endpoint", "", "OpenTelemetry collector gRPC endpoint (e.g. localhost:4317)")

	v.BindPFlag("service.port", cmd.PersistentFlags().Lookup("port"))
	v.BindPFlag("service.host", cmd.PersistentFlags().Lookup("host"))
	v.BindPFlag("service.log_level", cmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("azuread.tenant_id", cmd.PersistentFlags().Lookup("tenant-id"))
	v.BindPFlag("azuread.client_id", cmd.PersistentFlags().Lookup("client-id"))
	v.BindPFlag("search.endpoint", cmd.PersistentFlags().Lookup("search-endpoint"))
	v.BindPFlag("search.index", cmd.PersistentFlags().Lookup("search-index"))
	v.BindPFlag("search.auth_mode", cmd.PersistentFlags().Lookup("search-auth-mode"))
	v.BindPFlag("otel.enabled", cmd.PersistentFlags().Lookup("otel-enabled"))
	v.BindPFlag("otel.collector_endpoint", cmd.PersistentFlags().Lookup("otel-collector-endpoint"))
}
