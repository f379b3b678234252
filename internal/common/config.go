package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/vetting-core/internal/interfaces"
)

// Config is the application configuration, loaded once at startup and
// passed explicitly to every component constructor.
type Config struct {
	Environment string        `toml:"environment"` // "production" or "staging" — scopes the scheduler lock key
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	ATS         ATSConfig     `toml:"ats"`
	Mail        MailConfig    `toml:"mail"`
	Remote      RemoteConfig  `toml:"remote"`
	LLM         LLMConfig     `toml:"llm"`
	Claude      ClaudeConfig  `toml:"claude"`
	Gemini      GeminiConfig  `toml:"gemini"`
	Vetting     VettingConfig `toml:"vetting"`
	Scoring     ScoringConfig `toml:"scoring"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	Feed        FeedConfig    `toml:"feed"`
	Cron        CronConfig    `toml:"cron"`
	Workers     WorkersConfig `toml:"workers"`
	Dedup       DedupConfig   `toml:"dedup"`
}

// DedupConfig holds the per-channel windows the Deduplication Ledger
// (C11) suppresses repeat side effects within. Zero means "use the
// default for this channel."
type DedupConfig struct {
	NoteWindowSeconds  int64 `toml:"note_window_seconds"`
	EmailWindowSeconds int64 `toml:"email_window_seconds"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration.
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Output     []string `toml:"output"`
	Dir        string   `toml:"dir"`
	TimeFormat string   `toml:"time_format"`
}

// ATSConfig holds the OAuth 2.0 authorization-code-by-password
// credentials and connection pool tuning for the ATS client (C2).
type ATSConfig struct {
	BaseURL         string `toml:"base_url"`
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	TearsheetIDs    []string `toml:"tearsheet_ids"`
	ExcludeJobIDs   []string `toml:"exclude_job_ids"`
	PoolSize        int    `toml:"pool_size"`
	RequestTimeout  string `toml:"request_timeout"`
	AutomationOwnerID string `toml:"automation_owner_id"`
}

// MailConfig holds transactional mail sender configuration (C12).
type MailConfig struct {
	APIKey   string `toml:"api_key"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	From     string `toml:"from"`
	ReplyTo  string `toml:"reply_to"`
	AdminBCC string `toml:"admin_bcc"`
}

// RemoteConfig is the secure file-transfer destination for the feed
// publisher (C4).
type RemoteConfig struct {
	Host              string `toml:"host"`
	User              string `toml:"user"`
	Password          string `toml:"password"`
	Port              int    `toml:"port"`
	Path              string `toml:"path"`
	HostKeyFingerprint string `toml:"host_key_fingerprint"` // base64 authorized_keys-format key; empty pins nothing
}

// LLMConfig selects the primary/escalation/embedding model names; the
// provider (Claude vs Gemini) is inferred from the model name prefix.
type LLMConfig struct {
	APIKey           string `toml:"api_key"`
	PrimaryModel     string `toml:"primary_model"`
	EscalationModel  string `toml:"escalation_model"`
	EmbeddingModel   string `toml:"embedding_model"`
}

// ClaudeConfig contains Anthropic Claude API configuration.
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

// GeminiConfig contains Google Gemini API configuration.
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// VettingConfig drives the scheduler cycles and candidate batching.
type VettingConfig struct {
	Enabled                bool   `toml:"enabled"`
	BatchSize              int    `toml:"batch_size"`
	TickMinutes            int    `toml:"tick_minutes"`
	PublishTickMinutes     int    `toml:"publish_tick_minutes"`
	DigestDailyUTC         string `toml:"digest_daily_utc"` // HH:MM
	CandidateConcurrency   int    `toml:"candidate_concurrency"`
	CycleDeadlineSeconds   int    `toml:"cycle_deadline_seconds"`
	PublishDeadlineSeconds int    `toml:"publish_deadline_seconds"`
	FallbackWindowMinutes  int    `toml:"fallback_window_minutes"`
	SupplementaryWindowHours int  `toml:"supplementary_window_hours"`
}

// ScoringConfig holds the Layer 2/3 policy thresholds.
type ScoringConfig struct {
	MatchThresholdDefault int `toml:"match_threshold_default"`
	EscalationLow         int `toml:"escalation_low"`
	EscalationHigh        int `toml:"escalation_high"`
}

// EmbeddingConfig holds the Layer 1 pre-filter policy.
type EmbeddingConfig struct {
	Threshold float64 `toml:"threshold"`
	MinJobs   int     `toml:"min_jobs"`
	MaxTokens int     `toml:"max_tokens"`
	OllamaURL string  `toml:"ollama_url"`
}

// FeedConfig holds the feed builder's freeze switch and brand identity.
type FeedConfig struct {
	Frozen       bool   `toml:"frozen"`
	CompanyName  string `toml:"company_name"`
	ApplyURLBase string `toml:"apply_url_base"`
}

// CronConfig holds the external cron ingress bearer secret.
type CronConfig struct {
	BearerSecret string `toml:"bearer_secret"`
}

type WorkersConfig struct {
	ScoringPoolSize int `toml:"scoring_pool_size"`
}

// NewDefaultConfig returns a Config populated with the spec's documented
// defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/vetting.db",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
			Dir:    "./logs",
		},
		ATS: ATSConfig{
			PoolSize:       8,
			RequestTimeout: "30s",
		},
		Vetting: VettingConfig{
			Enabled:                  true,
			BatchSize:                25,
			TickMinutes:              5,
			PublishTickMinutes:       30,
			DigestDailyUTC:           "13:00",
			CandidateConcurrency:     3,
			CycleDeadlineSeconds:     360,
			PublishDeadlineSeconds:   90,
			FallbackWindowMinutes:    30,
			SupplementaryWindowHours: 24,
		},
		Scoring: ScoringConfig{
			MatchThresholdDefault: 80,
			EscalationLow:         60,
			EscalationHigh:        85,
		},
		Embedding: EmbeddingConfig{
			Threshold: 0.35,
			MinJobs:   5,
			MaxTokens: 8000,
			OllamaURL: "http://localhost:11434",
		},
		Workers: WorkersConfig{
			ScoringPoolSize: 8,
		},
	}
}

// LoadFromFile loads configuration from a single TOML file over the
// documented defaults, then applies environment variable overrides.
func LoadFromFile(path string) (*Config, error) {
	return LoadFromFiles(path)
}

// LoadFromFiles loads and merges configuration from one or more TOML
// files, in order, over the documented defaults, then applies
// environment variable overrides. Secrets that are KV-store-backed are
// resolved later, once storage is initialized, via ResolveAPIKey.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies VETTING_<SECTION>_<FIELD> environment
// variables over whatever the TOML files set. Environment variables
// always win.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VETTING_ENVIRONMENT"); env != "" {
		config.Environment = env
	}
	if port := os.Getenv("VETTING_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VETTING_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("VETTING_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if level := os.Getenv("VETTING_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("VETTING_ATS_BASE_URL"); v != "" {
		config.ATS.BaseURL = v
	}
	if v := os.Getenv("VETTING_ATS_CLIENT_ID"); v != "" {
		config.ATS.ClientID = v
	}
	if v := os.Getenv("VETTING_ATS_CLIENT_SECRET"); v != "" {
		config.ATS.ClientSecret = v
	}
	if v := os.Getenv("VETTING_ATS_USER"); v != "" {
		config.ATS.User = v
	}
	if v := os.Getenv("VETTING_ATS_PASSWORD"); v != "" {
		config.ATS.Password = v
	}
	if v := os.Getenv("VETTING_ATS_TEARSHEET_IDS"); v != "" {
		config.ATS.TearsheetIDs = splitAndTrim(v, ",")
	}

	if v := os.Getenv("VETTING_MAIL_API_KEY"); v != "" {
		config.Mail.APIKey = v
	}
	if v := os.Getenv("VETTING_MAIL_FROM"); v != "" {
		config.Mail.From = v
	}
	if v := os.Getenv("VETTING_MAIL_REPLY_TO"); v != "" {
		config.Mail.ReplyTo = v
	}
	if v := os.Getenv("VETTING_MAIL_ADMIN_BCC"); v != "" {
		config.Mail.AdminBCC = v
	}

	if v := os.Getenv("VETTING_REMOTE_HOST"); v != "" {
		config.Remote.Host = v
	}
	if v := os.Getenv("VETTING_REMOTE_USER"); v != "" {
		config.Remote.User = v
	}
	if v := os.Getenv("VETTING_REMOTE_PASSWORD"); v != "" {
		config.Remote.Password = v
	}
	if v := os.Getenv("VETTING_REMOTE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.Remote.Port = p
		}
	}
	if v := os.Getenv("VETTING_REMOTE_PATH"); v != "" {
		config.Remote.Path = v
	}

	if v := os.Getenv("VETTING_LLM_API_KEY"); v != "" {
		config.LLM.APIKey = v
	}
	if v := os.Getenv("VETTING_LLM_PRIMARY_MODEL"); v != "" {
		config.LLM.PrimaryModel = v
	}
	if v := os.Getenv("VETTING_LLM_ESCALATION_MODEL"); v != "" {
		config.LLM.EscalationModel = v
	}
	if v := os.Getenv("VETTING_LLM_EMBEDDING_MODEL"); v != "" {
		config.LLM.EmbeddingModel = v
	}

	if v := os.Getenv("VETTING_ENABLED"); v != "" {
		config.Vetting.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("VETTING_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Vetting.BatchSize = n
		}
	}
	if v := os.Getenv("VETTING_TICK_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Vetting.TickMinutes = n
		}
	}
	if v := os.Getenv("VETTING_PUBLISH_TICK_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Vetting.PublishTickMinutes = n
		}
	}
	if v := os.Getenv("VETTING_DIGEST_DAILY_UTC"); v != "" {
		config.Vetting.DigestDailyUTC = v
	}

	if v := os.Getenv("VETTING_MATCH_THRESHOLD_DEFAULT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scoring.MatchThresholdDefault = n
		}
	}
	if v := os.Getenv("VETTING_ESCALATION_LOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scoring.EscalationLow = n
		}
	}
	if v := os.Getenv("VETTING_ESCALATION_HIGH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scoring.EscalationHigh = n
		}
	}

	if v := os.Getenv("VETTING_EMBEDDING_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Embedding.Threshold = f
		}
	}
	if v := os.Getenv("VETTING_EMBEDDING_MIN_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Embedding.MinJobs = n
		}
	}
	if v := os.Getenv("VETTING_EMBEDDING_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Embedding.MaxTokens = n
		}
	}

	if v := os.Getenv("VETTING_FEED_FROZEN"); v != "" {
		config.Feed.Frozen = v == "true" || v == "1"
	}

	if v := os.Getenv("VETTING_CRON_BEARER_SECRET"); v != "" {
		config.Cron.BearerSecret = v
	}
}

// ApplyFlagOverrides applies command-line flag values over the loaded
// configuration. A zero value means the flag was not set and is ignored.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResolveAPIKey resolves a secret by KV-store-first, then config
// fallback. Environment variables that map directly to a config field
// are already applied by applyEnvOverrides before this runs, so the KV
// store is checked next, then the (possibly env-overridden) config
// value is used as the last resort.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	if name == "anthropic_api_key" || name == "claude_api_key" {
		if envValue := os.Getenv("ANTHROPIC_API_KEY"); envValue != "" {
			return envValue, nil
		}
	}
	if name == "gemini_api_key" || name == "google_api_key" {
		if envValue := os.Getenv("GOOGLE_API_KEY"); envValue != "" {
			return envValue, nil
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("secret '%s' not found in environment, KV store, or config", name)
}
