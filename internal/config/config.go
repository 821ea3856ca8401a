package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Pipeline     PipelineConfig
	Triage       TriageConfig
	Critic       CriticConfig
	Surge        SurgeConfig
	Feedback     FeedbackConfig
	Inference    InferenceConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	// Clients is parsed from AUTH_CLIENTS: "id:ROLE:bcrypt-hash,..."
	Clients []ClientCredential
}

// ClientCredential is one machine client allowed to request tokens.
type ClientCredential struct {
	ID         string
	Role       string
	SecretHash string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	ChatChannel string
	WebhookURL  string
}

// PipelineConfig bounds the orchestrator.
type PipelineConfig struct {
	MaxAttempts              int
	MaxConcurrent            int64
	StageTimeout             time.Duration
	IOMaxTries               uint
	IOInitialBackoff         time.Duration
	IOTimeout                time.Duration
	AutoResolveConfidence    float64
	SurgeSweepInterval       time.Duration
	FeedbackCycleInterval    time.Duration
	KnowledgeContextArticles int
}

// TriageConfig holds the composite priority weights and normalisation knobs.
type TriageConfig struct {
	TierWeight       float64
	SLAWeight        float64
	RecurrenceWeight float64
	RecurrenceHalf   float64
	SimilarLimit     int
	SimilarMinScore  float64
	DefaultSLAHours  int
	TierScores       map[string]float64
}

// CriticConfig configures the quality gate.
type CriticConfig struct {
	InitialThreshold float64
	RulesFile        string
}

// SurgeConfig configures ghost ticket prediction.
type SurgeConfig struct {
	Window             time.Duration
	Multiplier         float64
	BaselinePeriod     time.Duration
	MinBaseline        float64
	MinElapsed         time.Duration
	SaturationCount    int
	ComponentsLookback time.Duration
}

// FeedbackConfig configures the threshold adaptation loop.
type FeedbackConfig struct {
	Period       time.Duration
	UpperBound   float64
	LowerBound   float64
	Step         float64
	MinThreshold float64
	MaxThreshold float64
	MinSignals   int
	DedupeWindow time.Duration
	RedisKey     string
	DedupePrefix string
}

// InferenceConfig selects and configures the inference backend.
type InferenceConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	clients, err := parseClients(os.Getenv("AUTH_CLIENTS"))
	if err != nil {
		return nil, err
	}

	tierScores, err := parseTierScores(getEnv("TRIAGE_TIER_SCORES",
		"enterprise=1.0,platinum=1.0,gold=0.6,pro=0.4,silver=0.4,free=0.1,bronze=0.1"))
	if err != nil {
		return nil, err
	}

	strict := &strictFloats{}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-iq"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			Clients:               clients,
		},
		Notification: NotificationConfig{
			ChatChannel: getEnv("NOTIFY_CHAT_CHANNEL", ""),
			WebhookURL:  getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:              getEnvAsInt("PIPELINE_MAX_ATTEMPTS", 3),
			MaxConcurrent:            int64(getEnvAsInt("PIPELINE_MAX_CONCURRENT", 16)),
			StageTimeout:             getEnvAsDuration("PIPELINE_STAGE_TIMEOUT", 30*time.Second),
			IOMaxTries:               uint(getEnvAsInt("PIPELINE_IO_MAX_TRIES", 3)),
			IOInitialBackoff:         getEnvAsDuration("PIPELINE_IO_INITIAL_BACKOFF", 200*time.Millisecond),
			IOTimeout:                getEnvAsDuration("PIPELINE_IO_TIMEOUT", 5*time.Second),
			AutoResolveConfidence:    getEnvAsFloat("PIPELINE_AUTO_RESOLVE_CONFIDENCE", 0.90),
			SurgeSweepInterval:       getEnvAsDuration("PIPELINE_SURGE_SWEEP_INTERVAL", time.Minute),
			FeedbackCycleInterval:    getEnvAsDuration("PIPELINE_FEEDBACK_CYCLE_INTERVAL", 7*24*time.Hour),
			KnowledgeContextArticles: getEnvAsInt("PIPELINE_KB_ARTICLES", 3),
		},
		Triage: TriageConfig{
			TierWeight:       strict.get("TRIAGE_WEIGHT_TIER", 1.0/3),
			SLAWeight:        strict.get("TRIAGE_WEIGHT_SLA", 1.0/3),
			RecurrenceWeight: strict.get("TRIAGE_WEIGHT_RECURRENCE", 1.0/3),
			RecurrenceHalf:   getEnvAsFloat("TRIAGE_RECURRENCE_HALF", 5),
			SimilarLimit:     getEnvAsInt("TRIAGE_SIMILAR_LIMIT", 20),
			SimilarMinScore:  getEnvAsFloat("TRIAGE_SIMILAR_MIN_SCORE", 0.3),
			DefaultSLAHours:  getEnvAsInt("TRIAGE_DEFAULT_SLA_HOURS", 72),
			TierScores:       tierScores,
		},
		Critic: CriticConfig{
			InitialThreshold: strict.get("CRITIC_INITIAL_THRESHOLD", 0.6),
			RulesFile:        os.Getenv("CRITIC_RULES_FILE"),
		},
		Surge: SurgeConfig{
			Window:             getEnvAsDuration("SURGE_WINDOW", 30*time.Minute),
			Multiplier:         getEnvAsFloat("SURGE_MULTIPLIER", 3),
			BaselinePeriod:     getEnvAsDuration("SURGE_BASELINE_PERIOD", 7*24*time.Hour),
			MinBaseline:        getEnvAsFloat("SURGE_MIN_BASELINE", 1),
			MinElapsed:         getEnvAsDuration("SURGE_MIN_ELAPSED", 5*time.Minute),
			SaturationCount:    getEnvAsInt("SURGE_SATURATION_COUNT", 50),
			ComponentsLookback: getEnvAsDuration("SURGE_COMPONENTS_LOOKBACK", 2*time.Hour),
		},
		Feedback: FeedbackConfig{
			Period:       getEnvAsDuration("FEEDBACK_PERIOD", 7*24*time.Hour),
			UpperBound:   strict.get("FEEDBACK_UPPER_BOUND", 0.90),
			LowerBound:   strict.get("FEEDBACK_LOWER_BOUND", 0.70),
			Step:         strict.get("FEEDBACK_STEP", 0.02),
			MinThreshold: strict.get("FEEDBACK_MIN_THRESHOLD", 0.3),
			MaxThreshold: strict.get("FEEDBACK_MAX_THRESHOLD", 0.95),
			MinSignals:   getEnvAsInt("FEEDBACK_MIN_SIGNALS", 10),
			DedupeWindow: getEnvAsDuration("FEEDBACK_DEDUPE_WINDOW", 10*time.Minute),
			RedisKey:     getEnv("FEEDBACK_THRESHOLD_KEY", "supportiq:threshold"),
			DedupePrefix: getEnv("FEEDBACK_DEDUPE_PREFIX", "supportiq:feedback:"),
		},
		Inference: InferenceConfig{
			Provider:  getEnv("INFERENCE_PROVIDER", "template"),
			APIKey:    os.Getenv("INFERENCE_API_KEY"),
			BaseURL:   os.Getenv("INFERENCE_BASE_URL"),
			Model:     os.Getenv("INFERENCE_MODEL"),
			MaxTokens: int64(getEnvAsInt("INFERENCE_MAX_TOKENS", 1024)),
		},
	}

	if strict.err != nil {
		return nil, strict.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// strictFloats parses settings that must not silently fall back when malformed.
type strictFloats struct {
	err error
}

func (s *strictFloats) get(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		s.err = errors.Join(s.err, apperrors.Configuration(key, "not a number: %q", val))
		return fallback
	}
	return parsed
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	t := c.Triage
	if t.TierWeight < 0 || t.SLAWeight < 0 || t.RecurrenceWeight < 0 {
		return apperrors.Configuration("TRIAGE_WEIGHT_*", "weights must be non-negative")
	}
	if t.TierWeight+t.SLAWeight+t.RecurrenceWeight == 0 {
		return apperrors.Configuration("TRIAGE_WEIGHT_*", "at least one weight must be positive")
	}
	if t.RecurrenceHalf <= 0 {
		return apperrors.Configuration("TRIAGE_RECURRENCE_HALF", "must be positive, got %v", t.RecurrenceHalf)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return apperrors.Configuration("PIPELINE_MAX_ATTEMPTS", "must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.MaxConcurrent < 1 {
		return apperrors.Configuration("PIPELINE_MAX_CONCURRENT", "must be at least 1")
	}
	if c.Pipeline.StageTimeout <= 0 {
		return apperrors.Configuration("PIPELINE_STAGE_TIMEOUT", "must be positive")
	}
	if c.Pipeline.IOTimeout <= 0 {
		return apperrors.Configuration("PIPELINE_IO_TIMEOUT", "must be positive")
	}
	if !inUnit(c.Critic.InitialThreshold) {
		return apperrors.Configuration("CRITIC_INITIAL_THRESHOLD", "must be within [0,1], got %v", c.Critic.InitialThreshold)
	}
	f := c.Feedback
	if !inUnit(f.LowerBound) || !inUnit(f.UpperBound) || f.LowerBound >= f.UpperBound {
		return apperrors.Configuration("FEEDBACK_*_BOUND", "need 0 <= lower < upper <= 1")
	}
	if f.Step <= 0 || f.Step > 0.5 {
		return apperrors.Configuration("FEEDBACK_STEP", "must be within (0,0.5], got %v", f.Step)
	}
	if !inUnit(f.MinThreshold) || !inUnit(f.MaxThreshold) || f.MinThreshold > f.MaxThreshold {
		return apperrors.Configuration("FEEDBACK_*_THRESHOLD", "need 0 <= min <= max <= 1")
	}
	if c.Critic.InitialThreshold < f.MinThreshold || c.Critic.InitialThreshold > f.MaxThreshold {
		return apperrors.Configuration("CRITIC_INITIAL_THRESHOLD", "must be within [%v,%v], got %v",
			f.MinThreshold, f.MaxThreshold, c.Critic.InitialThreshold)
	}
	if c.Surge.Multiplier <= 1 {
		return apperrors.Configuration("SURGE_MULTIPLIER", "must be greater than 1, got %v", c.Surge.Multiplier)
	}
	if c.Surge.Window <= 0 {
		return apperrors.Configuration("SURGE_WINDOW", "must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

func parseClients(raw string) ([]ClientCredential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var clients []ClientCredential
	for _, entry := range strings.Split(raw, ",") {
		// bcrypt hashes contain '$' but never ':', so a 3-way split is safe.
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, apperrors.Configuration("AUTH_CLIENTS", "malformed entry %q", entry)
		}
		clients = append(clients, ClientCredential{ID: parts[0], Role: strings.ToUpper(parts[1]), SecretHash: parts[2]})
	}
	return clients, nil
}

func parseTierScores(raw string) (map[string]float64, error) {
	scores := make(map[string]float64)
	for _, entry := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			return nil, apperrors.Configuration("TRIAGE_TIER_SCORES", "malformed entry %q", entry)
		}
		score, err := strconv.ParseFloat(val, 64)
		if err != nil || !inUnit(score) {
			return nil, apperrors.Configuration("TRIAGE_TIER_SCORES", "score for %q must be within [0,1]", key)
		}
		scores[strings.ToLower(strings.TrimSpace(key))] = score
	}
	return scores, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
