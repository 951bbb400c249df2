// Package config provides configuration loading and validation for the CLI
// and the HTTP server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jonathan/taxform-extractor/internal/auth"
	"github.com/jonathan/taxform-extractor/internal/docanalysis"
	"github.com/jonathan/taxform-extractor/internal/llm"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. TAXFORM_SERVER_PORT
	EnvPrefix = "TAXFORM"

	DefaultHost           = "0.0.0.0"
	DefaultPort           = 5002
	DefaultUploadDir      = "uploads"
	DefaultMaxUploadBytes = 16 * 1024 * 1024
	DefaultSessionMaxAge  = 24 * time.Hour
	DefaultSweepInterval  = time.Hour
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultRateLimit      = 300 // requests per minute per client
)

// Config holds every setting of the service. Values resolve in the order
// defaults, config file, environment, flags; later sources win.
type Config struct {
	// Server
	Host           string
	Port           int
	AllowedOrigins []string
	RateLimit      RateLimitConfig

	// Uploads
	UploadDir      string
	MaxUploadBytes int64
	SessionMaxAge  time.Duration
	SweepInterval  time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// KeepExtras keeps model output keys that match no form field
	KeepExtras bool

	Analyzer AnalyzerConfig
	LLM      LLMConfig
}

// RateLimitConfig bounds request rates per client address.
type RateLimitConfig struct {
	Enabled   bool
	PerMinute int
	Whitelist []string
	Blacklist []string
}

// AnalyzerConfig selects and configures the document layout analyzer.
type AnalyzerConfig struct {
	Provider   docanalysis.Provider
	Endpoint   string
	APIVersion string
	ModelID    string
	APIKey     string // subscription key; used when no client credentials are set

	TenantID     string
	ClientID     string
	ClientSecret string
}

// LLMConfig selects and configures the language model.
type LLMConfig struct {
	Provider    llm.Provider
	Model       string
	Temperature float32
	Timeout     time.Duration

	Endpoint   string
	APIVersion string
	ProjectID  string

	TokenURL     string
	TokenScope   string
	ClientID     string
	ClientSecret string

	APIKey     string
	GCPProject string
	Location   string
}

// flagKeys maps flag names onto viper keys.
var flagKeys = map[string]string{
	"host":          "server.host",
	"port":          "server.port",
	"upload-dir":    "uploads.dir",
	"max-upload":    "uploads.max_bytes",
	"session-ttl":   "uploads.session_max_age",
	"sweep-every":   "uploads.sweep_interval",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"keep-extras":   "extract.keep_extras",
	"analyzer":      "analyzer.provider",
	"llm-provider":  "llm.provider",
	"llm-model":     "llm.model",
	"llm-endpoint":  "llm.endpoint",
	"gemini-key":    "llm.api_key",
	"gcp-project":   "llm.gcp_project",
	"gcp-location":  "llm.location",
	"analyzer-host": "analyzer.endpoint",
}

// envAliases are the unprefixed variable names the deployment has always
// used. They are consulted after the TAXFORM_* name.
var envAliases = map[string][]string{
	"llm.client_id":          {"AZURE_CLIENT_ID"},
	"llm.client_secret":      {"AZURE_CLIENT_SECRET"},
	"llm.project_id":         {"AZURE_PROJECT_ID"},
	"llm.api_key":            {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"llm.gcp_project":        {"GOOGLE_CLOUD_PROJECT"},
	"analyzer.tenant_id":     {"tenant_id"},
	"analyzer.client_id":     {"client_id"},
	"analyzer.client_secret": {"client_secret"},
	"analyzer.endpoint":      {"endpoint"},
}

// RegisterFlags defines the configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("host", DefaultHost, "Server host address")
	fs.Int("port", DefaultPort, "Server port")
	fs.String("upload-dir", DefaultUploadDir, "Directory holding session uploads")
	fs.Int64("max-upload", DefaultMaxUploadBytes, "Maximum request body size in bytes")
	fs.Duration("session-ttl", DefaultSessionMaxAge, "Age after which session directories are removed")
	fs.Duration("sweep-every", DefaultSweepInterval, "Interval between session sweeps")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-format", DefaultLogFormat, "Log format (text, json)")
	fs.Bool("keep-extras", false, "Keep model output keys that match no form field")
	fs.String("analyzer", string(docanalysis.ProviderAzure), "Layout analyzer (azure, local)")
	fs.String("llm-provider", string(llm.ProviderAzureOpenAI), "LLM provider (azure, gemini, vertex)")
	fs.String("llm-model", "", "Model or deployment name (provider default when empty)")
	fs.String("llm-endpoint", "", "Azure OpenAI endpoint")
	fs.String("gemini-key", "", "Gemini API key")
	fs.String("gcp-project", "", "Google Cloud project for Vertex AI")
	fs.String("gcp-location", "", "Google Cloud location for Vertex AI")
	fs.String("analyzer-host", "", "Document Intelligence endpoint")
}

// Load resolves the configuration. configFile may be empty, in which case
// taxform.{yaml,json,toml} is looked up in the working directory and is
// optional. fs may be nil.
func Load(fs *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		envNames := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envNames...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("taxform")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.per_minute", DefaultRateLimit)

	v.SetDefault("uploads.dir", DefaultUploadDir)
	v.SetDefault("uploads.max_bytes", DefaultMaxUploadBytes)
	v.SetDefault("uploads.session_max_age", DefaultSessionMaxAge)
	v.SetDefault("uploads.sweep_interval", DefaultSweepInterval)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("extract.keep_extras", false)

	v.SetDefault("analyzer.provider", string(docanalysis.ProviderAzure))
	v.SetDefault("analyzer.api_version", docanalysis.DefaultAPIVersion)
	v.SetDefault("analyzer.model_id", docanalysis.DefaultModelID)

	v.SetDefault("llm.provider", string(llm.ProviderAzureOpenAI))
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Host:           v.GetString("server.host"),
		Port:           v.GetInt("server.port"),
		AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		RateLimit: RateLimitConfig{
			Enabled:   v.GetBool("server.rate_limit.enabled"),
			PerMinute: v.GetInt("server.rate_limit.per_minute"),
			Whitelist: v.GetStringSlice("server.rate_limit.whitelist"),
			Blacklist: v.GetStringSlice("server.rate_limit.blacklist"),
		},
		UploadDir:      v.GetString("uploads.dir"),
		MaxUploadBytes: v.GetInt64("uploads.max_bytes"),
		SessionMaxAge:  v.GetDuration("uploads.session_max_age"),
		SweepInterval:  v.GetDuration("uploads.sweep_interval"),
		LogLevel:       strings.ToLower(v.GetString("log.level")),
		LogFormat:      strings.ToLower(v.GetString("log.format")),
		KeepExtras:     v.GetBool("extract.keep_extras"),
		Analyzer: AnalyzerConfig{
			Provider:     docanalysis.Provider(strings.ToLower(v.GetString("analyzer.provider"))),
			Endpoint:     v.GetString("analyzer.endpoint"),
			APIVersion:   v.GetString("analyzer.api_version"),
			ModelID:      v.GetString("analyzer.model_id"),
			APIKey:       v.GetString("analyzer.api_key"),
			TenantID:     v.GetString("analyzer.tenant_id"),
			ClientID:     v.GetString("analyzer.client_id"),
			ClientSecret: v.GetString("analyzer.client_secret"),
		},
	}

	provider := llm.Provider(strings.ToLower(v.GetString("llm.provider")))
	base := providerDefaults(provider)
	cfg.LLM = LLMConfig{
		Provider:     provider,
		Model:        stringOr(v, "llm.model", base.Model),
		Temperature:  float32(floatOr(v, "llm.temperature", float64(base.Temperature))),
		Timeout:      durationOr(v, "llm.timeout", base.Timeout),
		Endpoint:     v.GetString("llm.endpoint"),
		APIVersion:   stringOr(v, "llm.api_version", base.APIVersion),
		ProjectID:    v.GetString("llm.project_id"),
		TokenURL:     v.GetString("llm.token_url"),
		TokenScope:   v.GetString("llm.token_scope"),
		ClientID:     v.GetString("llm.client_id"),
		ClientSecret: v.GetString("llm.client_secret"),
		APIKey:       v.GetString("llm.api_key"),
		GCPProject:   v.GetString("llm.gcp_project"),
		Location:     stringOr(v, "llm.location", base.Location),
	}
	return cfg
}

func providerDefaults(p llm.Provider) *llm.Config {
	switch p {
	case llm.ProviderGemini:
		return llm.DefaultGeminiConfig()
	case llm.ProviderVertex:
		return llm.DefaultVertexConfig()
	default:
		return llm.DefaultConfig()
	}
}

func stringOr(v *viper.Viper, key, fallback string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return fallback
}

func floatOr(v *viper.Viper, key string, fallback float64) float64 {
	if v.IsSet(key) {
		return v.GetFloat64(key)
	}
	return fallback
}

func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if c.UploadDir == "" {
		return errors.New("upload directory cannot be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("maximum upload size must be positive")
	}
	if c.SessionMaxAge <= 0 {
		return errors.New("session max age must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.RateLimit.Enabled && c.RateLimit.PerMinute <= 0 {
		return errors.New("rate limit must be positive when enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.LogFormat)
	}

	switch c.Analyzer.Provider {
	case docanalysis.ProviderAzure, docanalysis.ProviderLocal:
	default:
		return fmt.Errorf("unknown analyzer %q (must be azure or local)", c.Analyzer.Provider)
	}

	switch c.LLM.Provider {
	case llm.ProviderAzureOpenAI, llm.ProviderGemini, llm.ProviderVertex:
	default:
		return fmt.Errorf("unknown llm provider %q (must be azure, gemini or vertex)", c.LLM.Provider)
	}
	return nil
}

// ValidateCredentials checks that the secrets needed to reach the
// configured services are present. Commands that never call out, such as
// sweep, skip it.
func (c *Config) ValidateCredentials() error {
	if c.Analyzer.Provider == docanalysis.ProviderAzure {
		if c.Analyzer.Endpoint == "" {
			return errors.New("document intelligence endpoint is required (TAXFORM_ANALYZER_ENDPOINT or endpoint)")
		}
		if c.Analyzer.APIKey == "" && (c.Analyzer.TenantID == "" || c.Analyzer.ClientID == "" || c.Analyzer.ClientSecret == "") {
			return errors.New("document intelligence needs an API key or tenant_id, client_id and client_secret")
		}
	}
	if err := c.llmConfig().Validate(); err != nil {
		return err
	}
	if c.LLM.Provider == llm.ProviderAzureOpenAI {
		if c.LLM.TokenURL == "" {
			return errors.New("LLM token URL is required (TAXFORM_LLM_TOKEN_URL)")
		}
		if c.LLM.ClientID == "" || c.LLM.ClientSecret == "" {
			return errors.New("LLM client credentials are required (AZURE_CLIENT_ID, AZURE_CLIENT_SECRET)")
		}
	}
	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// LLMClientConfig converts the LLM settings into the client configuration.
func (c *Config) LLMClientConfig() *llm.Config {
	return c.llmConfig()
}

func (c *Config) llmConfig() *llm.Config {
	return &llm.Config{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		Timeout:     c.LLM.Timeout,
		Endpoint:    c.LLM.Endpoint,
		APIVersion:  c.LLM.APIVersion,
		ProjectID:   c.LLM.ProjectID,
		APIKey:      c.LLM.APIKey,
		GCPProject:  c.LLM.GCPProject,
		Location:    c.LLM.Location,
	}
}

// LLMTokenConfig returns the client-credentials settings for the LLM
// gateway token.
func (c *Config) LLMTokenConfig() auth.ClientCredentialsConfig {
	var scopes []string
	if c.LLM.TokenScope != "" {
		scopes = []string{c.LLM.TokenScope}
	}
	return auth.ClientCredentialsConfig{
		TokenURL:     c.LLM.TokenURL,
		ClientID:     c.LLM.ClientID,
		ClientSecret: c.LLM.ClientSecret,
		Scopes:       scopes,
	}
}

// AnalyzerTokenConfig returns the client-credentials settings for Document
// Intelligence. ok is false when the analyzer authenticates with a key.
func (c *Config) AnalyzerTokenConfig() (cfg auth.ClientCredentialsConfig, ok bool) {
	if c.Analyzer.TenantID == "" || c.Analyzer.ClientID == "" || c.Analyzer.ClientSecret == "" {
		return auth.ClientCredentialsConfig{}, false
	}
	return auth.ClientCredentialsConfig{
		TokenURL:     auth.AzureADTokenURL(c.Analyzer.TenantID),
		ClientID:     c.Analyzer.ClientID,
		ClientSecret: c.Analyzer.ClientSecret,
		Scopes:       []string{auth.CognitiveServicesScope},
	}, true
}

// String returns a representation of the configuration without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Addr: %s, UploadDir: %s, MaxUpload: %d, SessionMaxAge: %s, Analyzer: %s, LLM: %s/%s, LogLevel: %s}",
		c.Address(), c.UploadDir, c.MaxUploadBytes, c.SessionMaxAge, c.Analyzer.Provider, c.LLM.Provider, c.LLM.Model, c.LogLevel)
}
