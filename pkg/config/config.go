// Package config loads layered configuration for the issuer, verifier and
// wallet binaries: defaults, then an optional YAML file, then environment
// variables. Required values are validated at startup; a missing value aborts
// the process instead of surfacing mid-flow.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Backend type selectors.
const (
	BackendMattr = "mattr"
	BackendEntra = "entra"
)

// Issuance flow selectors.
const (
	FlowAuthorizationCode = "authorization_code"
	FlowPreAuthorizedCode = "pre-authorized_code"
)

// Config is the root configuration shared by all binaries.
type Config struct {
	Issuer       IssuerConfig       `yaml:"issuer" envconfig:"ISSUER"`
	Verifier     VerifierConfig     `yaml:"verifier" envconfig:"VERIFIER"`
	Wallet       WalletConfig       `yaml:"wallet" envconfig:"WALLET"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	SessionStore SessionStoreConfig `yaml:"session_store" envconfig:"SESSION_STORE"`
	Storage      StorageConfig      `yaml:"storage" envconfig:"STORAGE"`
}

// IssuerConfig configures the issuer service.
type IssuerConfig struct {
	Host    string `yaml:"host" envconfig:"HOST"`
	Port    int    `yaml:"port" envconfig:"PORT"`
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`

	// Backend selects the signing backend: mattr or entra.
	Backend string `yaml:"backend" envconfig:"BACKEND"`

	// CredentialID names the credential template offered by this deployment.
	CredentialID string `yaml:"credential_id" envconfig:"CREDENTIAL_ID"`

	// CredentialType is the credential type used for scope synthesis and
	// presentation matching.
	CredentialType string `yaml:"credential_type" envconfig:"CREDENTIAL_TYPE"`

	// Flow selects the issuance grant: authorization_code or pre-authorized_code.
	Flow string `yaml:"flow" envconfig:"FLOW"`

	// ResolverURL is the universal resolver used for non-did:key holder DIDs.
	// Optional; did:key resolves locally.
	ResolverURL string `yaml:"resolver_url" envconfig:"RESOLVER_URL"`

	// OfferScheme is the URI scheme of the offer QR code.
	OfferScheme string `yaml:"offer_scheme" envconfig:"OFFER_SCHEME"`

	// PreAuthRequestURI is the signed-token resource bound to each
	// pre-authorized code. Required for the pre-authorized_code flow.
	PreAuthRequestURI string `yaml:"pre_auth_request_uri" envconfig:"PRE_AUTH_REQUEST_URI"`

	Auth  UpstreamAuthConfig `yaml:"auth" envconfig:"AUTH"`
	Mattr MattrConfig        `yaml:"mattr" envconfig:"MATTR"`
	Entra EntraConfig        `yaml:"entra" envconfig:"ENTRA"`
}

// UpstreamAuthConfig holds the upstream authorization server used by the
// authorization_code flow.
type UpstreamAuthConfig struct {
	AuthorizeURL string `yaml:"authorize_url" envconfig:"AUTHORIZE_URL"`
	TokenURL     string `yaml:"token_url" envconfig:"TOKEN_URL"`
	ClientID     string `yaml:"client_id" envconfig:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" envconfig:"CLIENT_SECRET"`
}

// MattrConfig holds MATTR tenant credentials.
type MattrConfig struct {
	TenantURL    string `yaml:"tenant_url" envconfig:"TENANT_URL"`
	AuthTokenURL string `yaml:"auth_token_url" envconfig:"AUTH_TOKEN_URL"`
	Audience     string `yaml:"audience" envconfig:"AUDIENCE"`
	ClientID     string `yaml:"client_id" envconfig:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" envconfig:"CLIENT_SECRET"`
}

// EntraConfig holds Microsoft Entra Verified ID tenant settings.
type EntraConfig struct {
	TenantID        string `yaml:"tenant_id" envconfig:"TENANT_ID"`
	ManifestBaseURL string `yaml:"manifest_base_url" envconfig:"MANIFEST_BASE_URL"`
	IssuanceURL     string `yaml:"issuance_url" envconfig:"ISSUANCE_URL"`
	AccessToken     string `yaml:"access_token" envconfig:"ACCESS_TOKEN"`
}

// VerifierConfig configures the verifier service.
type VerifierConfig struct {
	Host    string `yaml:"host" envconfig:"HOST"`
	Port    int    `yaml:"port" envconfig:"PORT"`
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`

	// CredentialType is the type required by the single input descriptor.
	CredentialType string `yaml:"credential_type" envconfig:"CREDENTIAL_TYPE"`

	// DefinitionPath optionally loads the presentation definition from a JSON
	// file instead of synthesizing it from CredentialType.
	DefinitionPath string `yaml:"definition_path" envconfig:"DEFINITION_PATH"`

	// FixedState/FixedNonce pin the challenge instead of generating one per
	// request. Weaker deployment mode, intended for demos only.
	FixedState string `yaml:"fixed_state" envconfig:"FIXED_STATE"`
	FixedNonce string `yaml:"fixed_nonce" envconfig:"FIXED_NONCE"`

	// ResolverURL is the universal resolver used for non-did:key holder DIDs.
	// Optional; did:key resolves locally.
	ResolverURL string `yaml:"resolver_url" envconfig:"RESOLVER_URL"`
}

// WalletConfig configures the wallet CLI.
type WalletConfig struct {
	// ResolverURL is the universal resolver used for non-did:key methods.
	ResolverURL string `yaml:"resolver_url" envconfig:"RESOLVER_URL"`

	// RedirectURI is the redirect target of the authorization_code flow.
	RedirectURI string `yaml:"redirect_uri" envconfig:"REDIRECT_URI"`

	// KeyPath persists the wallet key pair between invocations.
	KeyPath string `yaml:"key_path" envconfig:"KEY_PATH"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// SessionStoreConfig selects the session cache implementation.
type SessionStoreConfig struct {
	// Type is memory or redis.
	Type string `yaml:"type" envconfig:"TYPE"`

	// TTLSeconds is the hard session lifetime.
	TTLSeconds int `yaml:"ttl_seconds" envconfig:"TTL_SECONDS"`

	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Address   string `yaml:"address" envconfig:"ADDRESS"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	DB        int    `yaml:"db" envconfig:"DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// StorageConfig selects the wallet credential store.
type StorageConfig struct {
	// Type is memory or mongodb.
	Type    string        `yaml:"type" envconfig:"TYPE"`
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration.
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// Load loads configuration from file and environment variables.
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := envconfig.Process("OID4VC", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if cfg.Issuer.BaseURL == "" {
		cfg.Issuer.BaseURL = fmt.Sprintf("http://%s:%d", cfg.Issuer.Host, cfg.Issuer.Port)
	}
	if cfg.Verifier.BaseURL == "" {
		cfg.Verifier.BaseURL = fmt.Sprintf("http://%s:%d", cfg.Verifier.Host, cfg.Verifier.Port)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Issuer: IssuerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			Backend:     BackendMattr,
			Flow:        FlowAuthorizationCode,
			OfferScheme: "openid-credential-offer",
		},
		Verifier: VerifierConfig{
			Host: "0.0.0.0",
			Port: 8001,
		},
		Wallet: WalletConfig{
			RedirectURI: "http://localhost:3000",
			KeyPath:     "wallet-key.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		SessionStore: SessionStoreConfig{
			Type:       "memory",
			TTLSeconds: 600,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "oid4vc:session:",
			},
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "wallet",
				Timeout:  10,
			},
		},
	}
}

// ValidateIssuer checks the values the issuer binary requires.
func (c *Config) ValidateIssuer() error {
	issuer := c.Issuer
	if issuer.Port < 1 || issuer.Port > 65535 {
		return fmt.Errorf("invalid issuer port: %d", issuer.Port)
	}
	if issuer.CredentialID == "" {
		return fmt.Errorf("issuer credential_id is required")
	}
	if issuer.CredentialType == "" {
		return fmt.Errorf("issuer credential_type is required")
	}
	switch issuer.Backend {
	case BackendMattr:
		if issuer.Mattr.TenantURL == "" {
			return fmt.Errorf("mattr tenant_url is required for the mattr backend")
		}
		if issuer.Mattr.ClientID == "" || issuer.Mattr.ClientSecret == "" {
			return fmt.Errorf("mattr client credentials are required for the mattr backend")
		}
	case BackendEntra:
		if issuer.Entra.TenantID == "" {
			return fmt.Errorf("entra tenant_id is required for the entra backend")
		}
	default:
		return fmt.Errorf("invalid issuer backend: %s (must be %s or %s)", issuer.Backend, BackendMattr, BackendEntra)
	}
	switch issuer.Flow {
	case FlowAuthorizationCode:
		if issuer.Auth.AuthorizeURL == "" || issuer.Auth.TokenURL == "" {
			return fmt.Errorf("upstream authorize_url and token_url are required for the authorization_code flow")
		}
		if issuer.Auth.ClientID == "" {
			return fmt.Errorf("upstream client_id is required for the authorization_code flow")
		}
	case FlowPreAuthorizedCode:
		if issuer.PreAuthRequestURI == "" {
			return fmt.Errorf("pre_auth_request_uri is required for the pre-authorized_code flow")
		}
	default:
		return fmt.Errorf("invalid issuance flow: %s", issuer.Flow)
	}
	return c.validateShared()
}

// ValidateVerifier checks the values the verifier binary requires.
func (c *Config) ValidateVerifier() error {
	verifier := c.Verifier
	if verifier.Port < 1 || verifier.Port > 65535 {
		return fmt.Errorf("invalid verifier port: %d", verifier.Port)
	}
	if verifier.CredentialType == "" && verifier.DefinitionPath == "" {
		return fmt.Errorf("verifier credential_type or definition_path is required")
	}
	return c.validateShared()
}

// ValidateWallet checks the values the wallet binary requires.
func (c *Config) ValidateWallet() error {
	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}
	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}
	return nil
}

func (c *Config) validateShared() error {
	if c.SessionStore.Type != "memory" && c.SessionStore.Type != "redis" {
		return fmt.Errorf("invalid session store type: %s (must be memory or redis)", c.SessionStore.Type)
	}
	if c.SessionStore.TTLSeconds <= 0 {
		return fmt.Errorf("session store ttl_seconds must be positive")
	}
	return nil
}

// SessionTTL returns the configured session lifetime.
func (c *SessionStoreConfig) SessionTTL() int {
	return c.TTLSeconds
}

// Address returns the issuer listen address.
func (c *IssuerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Address returns the verifier listen address.
func (c *VerifierConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
