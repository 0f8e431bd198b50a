package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sqlassist/sqlassist-go/internal/query"
	"github.com/sqlassist/sqlassist-go/internal/remote"
	"github.com/sqlassist/sqlassist-go/internal/translator"
)

// EnvPrefix prefixes environment overrides, e.g. SQLASSIST_MODEL.
const EnvPrefix = "SQLASSIST"

// Settings are the persistent options read from ~/.sqlassist/config.yaml.
type Settings struct {
	// Storage
	Engine          string `mapstructure:"engine" yaml:"engine"`
	TableName       string `mapstructure:"table_name" yaml:"table_name"`
	HasHeader       bool   `mapstructure:"has_header" yaml:"has_header"`
	QueryTimeoutSec int    `mapstructure:"query_timeout_sec" yaml:"query_timeout_sec"`

	// Repair
	RepairEnabled bool              `mapstructure:"repair_enabled" yaml:"repair_enabled"`
	RepairRules   []query.FuzzyRule `mapstructure:"repair_rules" yaml:"repair_rules"`

	// Translator
	Provider         string  `mapstructure:"provider" yaml:"provider"`
	Model            string  `mapstructure:"model" yaml:"model"`
	APIKey           string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL          string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature      float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens        int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	HTTPTimeoutSec   int     `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int     `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int     `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`

	// Remote sources and sinks
	S3Region    string `mapstructure:"s3_region" yaml:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key" yaml:"s3_secret_key"`

	// HTTP API
	ServerAddr  string `mapstructure:"server_addr" yaml:"server_addr"`
	MaxUploadMB int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine", "sqlite")
	v.SetDefault("table_name", "data")
	v.SetDefault("has_header", true)
	v.SetDefault("query_timeout_sec", 30)

	v.SetDefault("repair_enabled", true)
	v.SetDefault("repair_rules", query.DefaultFuzzyRules())

	v.SetDefault("provider", translator.ProviderOpenAI)
	v.SetDefault("model", "llama-3.3-70b-versatile")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("temperature", 0.1)
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)

	v.SetDefault("s3_region", "")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")

	v.SetDefault("server_addr", ":8080")
	v.SetDefault("max_upload_mb", 32)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("jwt_audience", "")
}

// DefaultPath returns ~/.sqlassist/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".sqlassist", "config.yaml"), nil
}

// LoadDotEnv loads variables from .env files that exist. Variables already
// set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads settings from defaults, the config file and the environment.
// Precedence: env > config file > defaults. A missing file is not an error.
func Load(cfgFile string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &s, nil
}

// Save writes the settings as YAML to cfgFile, or to DefaultPath when empty,
// creating the directory if necessary.
func Save(s *Settings, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Keys returns the setting names in sorted order.
func (s *Settings) Keys() []string {
	m, _ := s.asMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Settings) asMap() (map[string]any, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Set assigns value, parsed as YAML, to the setting named key.
func (s *Settings) Set(key, value string) error {
	m, err := s.asMap()
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown setting: %s", key)
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	m[key] = parsed

	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	var updated Settings
	if err := yaml.Unmarshal(b, &updated); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*s = updated
	return nil
}

var secretKeys = map[string]bool{
	"api_key":       true,
	"s3_secret_key": true,
	"jwt_secret":    true,
}

// Masked returns the settings as YAML with secrets hidden.
func (s *Settings) Masked() (string, error) {
	m, err := s.asMap()
	if err != nil {
		return "", err
	}
	for k := range secretKeys {
		if v, ok := m[k].(string); ok && v != "" {
			m[k] = mask(v)
		}
	}
	b, err := yaml.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func mask(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}

// providerKeyEnv lists the conventional key variables per provider.
var providerKeyEnv = map[string][]string{
	translator.ProviderOpenAI:    {"OPENAI_API_KEY", "GROQ_API_KEY", "OPENROUTER_API_KEY"},
	translator.ProviderAnthropic: {"ANTHROPIC_API_KEY"},
}

// ResolveAPIKey returns api_key, falling back to the provider's
// conventional environment variable.
func (s *Settings) ResolveAPIKey() string {
	if s.APIKey != "" {
		return s.APIKey
	}
	provider := strings.ToLower(s.Provider)
	if provider == "" {
		provider = translator.ProviderOpenAI
	}
	for _, name := range providerKeyEnv[provider] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// TranslatorConfig maps the settings onto a translator configuration.
func (s *Settings) TranslatorConfig(engine string) translator.Config {
	return translator.Config{
		Provider:       s.Provider,
		Model:          s.Model,
		APIKey:         s.ResolveAPIKey(),
		BaseURL:        s.BaseURL,
		Engine:         engineLabel(engine),
		Temperature:    s.Temperature,
		MaxTokens:      s.MaxTokens,
		Timeout:        time.Duration(s.HTTPTimeoutSec) * time.Second,
		RetryMax:       s.RetryMaxAttempts,
		RetryBaseDelay: time.Duration(s.RetryBaseDelayMs) * time.Millisecond,
	}
}

func engineLabel(engine string) string {
	if strings.EqualFold(engine, "duckdb") {
		return "DuckDB"
	}
	return "SQLite"
}

// RemoteConfig maps the settings onto remote source/sink options.
func (s *Settings) RemoteConfig() remote.Config {
	return remote.Config{
		S3AccessKey: s.S3AccessKey,
		S3SecretKey: s.S3SecretKey,
		S3Region:    s.S3Region,
		S3Endpoint:  s.S3Endpoint,
		HTTPTimeout: time.Duration(s.HTTPTimeoutSec) * time.Second,
	}
}

// QueryTimeout returns the per-interaction timeout; zero disables it.
func (s *Settings) QueryTimeout() time.Duration {
	if s.QueryTimeoutSec <= 0 {
		return 0
	}
	return time.Duration(s.QueryTimeoutSec) * time.Second
}

// RepairStrategies returns the repair strategies for the configured rules.
func (s *Settings) RepairStrategies() []query.Strategy {
	rules := s.RepairRules
	if len(rules) == 0 {
		rules = query.DefaultFuzzyRules()
	}
	return query.DefaultStrategies(rules)
}
