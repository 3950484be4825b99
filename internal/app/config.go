package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/verbatim-backend/internal/data/db"
	"github.com/yungbote/verbatim-backend/internal/observability"
	"github.com/yungbote/verbatim-backend/internal/platform/envutil"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/services"
)

type Config struct {
	App        AppInfo                  `yaml:"app"`
	Server     ServerConfig             `yaml:"server"`
	Database   DatabaseConfig           `yaml:"database"`
	OpenAI     OpenAIConfig             `yaml:"openai"`
	Pipeline   PipelineConfig           `yaml:"pipeline"`
	Redis      RedisConfig              `yaml:"redis"`
	Storage    StorageConfig            `yaml:"storage"`
	DocumentAI DocumentAIConfig         `yaml:"documentai"`
	Speech     SpeechConfig             `yaml:"speech"`
	Qdrant     QdrantConfig             `yaml:"qdrant"`
	Auth       AuthConfig               `yaml:"auth"`
	Otel       observability.OtelConfig `yaml:"otel"`
}

type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogMode     string `yaml:"log_mode"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
	LogLevel   string `yaml:"log_level"`
}

type OpenAIConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	EmbedModel    string        `yaml:"embed_model"`
	MaxTokens     int           `yaml:"max_tokens"`
	Temperature   *float64      `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	MaxConcurrent int           `yaml:"max_concurrent_requests"`
	DryRun        bool          `yaml:"dry_run"`
}

type PipelineConfig struct {
	MappingBatchSize      int           `yaml:"mapping_batch_size"`
	TranscriptConcurrency int           `yaml:"transcript_concurrency"`
	MinQuoteWords         int           `yaml:"min_quote_words"`
	MaxVerbatimsPerTopic  int           `yaml:"max_verbatims_per_topic"`
	ChunkTokens           int           `yaml:"target_input_tokens_per_chunk"`
	BaseEstimateSeconds   int           `yaml:"base_estimate_seconds"`
	RetryPolicy           string        `yaml:"retry_policy"`
	AllowRetryCompleted   bool          `yaml:"allow_retry_completed"`
	Weighting             string        `yaml:"weighting"`
	Synchronous           bool          `yaml:"synchronous"`
	WorkerConcurrency     int           `yaml:"worker_concurrency"`
	PollInterval          time.Duration `yaml:"poll_interval"`
	StaleAfter            time.Duration `yaml:"stale_after"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type StorageConfig struct {
	Mode         string `yaml:"mode"`
	Bucket       string `yaml:"bucket"`
	EmulatorHost string `yaml:"emulator_host"`
	Credentials  string `yaml:"credentials"`
}

type DocumentAIConfig struct {
	ProjectID        string `yaml:"project_id"`
	Location         string `yaml:"location"`
	ProcessorID      string `yaml:"processor_id"`
	ProcessorVersion string `yaml:"processor_version"`
}

type SpeechConfig struct {
	Enabled         bool   `yaml:"enabled"`
	LanguageCode    string `yaml:"language_code"`
	Model           string `yaml:"model"`
	MinSpeakerCount int    `yaml:"min_speaker_count"`
	MaxSpeakerCount int    `yaml:"max_speaker_count"`
}

type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
	VectorDim  int    `yaml:"vector_dim"`
}

type AuthConfig struct {
	JWTSecretKey   string        `yaml:"jwt_secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

func defaultConfig() Config {
	return Config{
		App: AppInfo{Name: "verbatim", Version: "dev", Environment: "development", LogMode: "development"},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			MetricsInterval: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:     db.DriverPostgres,
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			Name:       "verbatim",
			SSLMode:    "disable",
			SQLitePath: "verbatim.db",
			LogLevel:   "warn",
		},
		OpenAI: OpenAIConfig{
			Model:         "gpt-4o",
			EmbedModel:    "text-embedding-3-small",
			MaxTokens:     4000,
			Timeout:       180 * time.Second,
			MaxRetries:    3,
			MaxConcurrent: 5,
		},
		Pipeline: PipelineConfig{
			MappingBatchSize:      10,
			TranscriptConcurrency: 3,
			MinQuoteWords:         10,
			MaxVerbatimsPerTopic:  50,
			ChunkTokens:           6000,
			BaseEstimateSeconds:   300,
			RetryPolicy:           services.RetryPolicyAppend,
			Weighting:             "fixed",
			WorkerConcurrency:     2,
			PollInterval:          time.Second,
			StaleAfter:            10 * time.Minute,
		},
		Redis:   RedisConfig{Channel: "analysis-progress"},
		Storage: StorageConfig{Mode: "memory"},
		DocumentAI: DocumentAIConfig{
			Location: "us",
		},
		Speech: SpeechConfig{LanguageCode: "en-US", MinSpeakerCount: 2, MaxSpeakerCount: 6},
		Qdrant: QdrantConfig{Port: 6334, Collection: "verbatims", VectorDim: 1536},
		Auth:   AuthConfig{AccessTokenTTL: time.Hour},
		Otel:   observability.OtelConfig{ServiceName: "verbatim", SampleRatio: 0.1},
	}
}

// LoadConfig reads the YAML file named by CONFIG_PATH, if any, over the
// built-in defaults and then applies environment overrides. "${VAR}" in the
// file is expanded from the environment before parsing.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("CONFIG_PATH", "", log); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := parseConfig(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}
	applyEnv(&cfg, log)
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseConfig(raw []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(raw))
	return yaml.Unmarshal([]byte(expanded), cfg)
}

func applyEnv(c *Config, log *logger.Logger) {
	c.App.LogMode = envutil.String("LOG_MODE", c.App.LogMode, log)
	c.App.Environment = envutil.String("APP_ENV", c.App.Environment, log)
	c.App.Version = envutil.String("APP_VERSION", c.App.Version, log)

	if port := envutil.String("PORT", "", log); port != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	if origins := envutil.String("CORS_ORIGINS", "", log); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.Database.Driver = envutil.String("DB_DRIVER", c.Database.Driver, log)
	c.Database.Host = envutil.String("POSTGRES_HOST", c.Database.Host, log)
	c.Database.Port = envutil.String("POSTGRES_PORT", c.Database.Port, log)
	c.Database.User = envutil.String("POSTGRES_USER", c.Database.User, log)
	c.Database.Password = envutil.String("POSTGRES_PASSWORD", c.Database.Password, log)
	c.Database.Name = envutil.String("POSTGRES_NAME", c.Database.Name, log)
	c.Database.SSLMode = envutil.String("POSTGRES_SSLMODE", c.Database.SSLMode, log)
	c.Database.SQLitePath = envutil.String("SQLITE_PATH", c.Database.SQLitePath, log)
	c.Database.LogLevel = envutil.String("DB_LOG_LEVEL", c.Database.LogLevel, log)

	c.OpenAI.APIKey = envutil.String("OPENAI_API_KEY", c.OpenAI.APIKey, log)
	c.OpenAI.BaseURL = envutil.String("OPENAI_BASE_URL", c.OpenAI.BaseURL, log)
	c.OpenAI.Model = envutil.String("OPENAI_MODEL", c.OpenAI.Model, log)
	c.OpenAI.EmbedModel = envutil.String("OPENAI_EMBED_MODEL", c.OpenAI.EmbedModel, log)
	c.OpenAI.MaxTokens = envutil.Int("OPENAI_MAX_TOKENS", c.OpenAI.MaxTokens, log)
	c.OpenAI.Timeout = envutil.Duration("OPENAI_TIMEOUT", c.OpenAI.Timeout)
	c.OpenAI.MaxRetries = envutil.Int("OPENAI_MAX_RETRIES", c.OpenAI.MaxRetries, log)
	c.OpenAI.MaxConcurrent = envutil.Int("OPENAI_MAX_CONCURRENT", c.OpenAI.MaxConcurrent, log)
	c.OpenAI.DryRun = envutil.Bool("OPENAI_DRY_RUN", c.OpenAI.DryRun)
	if raw := envutil.String("OPENAI_TEMPERATURE", "", log); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			c.OpenAI.Temperature = &t
		} else if log != nil {
			log.Warn("OPENAI_TEMPERATURE is not a number; ignoring", "provided", raw)
		}
	}

	p := &c.Pipeline
	p.MappingBatchSize = envutil.Int("PIPELINE_MAPPING_BATCH_SIZE", p.MappingBatchSize, log)
	p.TranscriptConcurrency = envutil.Int("PIPELINE_TRANSCRIPT_CONCURRENCY", p.TranscriptConcurrency, log)
	p.MinQuoteWords = envutil.Int("PIPELINE_MIN_QUOTE_WORDS", p.MinQuoteWords, log)
	p.MaxVerbatimsPerTopic = envutil.Int("PIPELINE_MAX_VERBATIMS_PER_TOPIC", p.MaxVerbatimsPerTopic, log)
	p.ChunkTokens = envutil.Int("PIPELINE_CHUNK_TOKENS", p.ChunkTokens, log)
	p.BaseEstimateSeconds = envutil.Int("PIPELINE_BASE_ESTIMATE_SECONDS", p.BaseEstimateSeconds, log)
	p.RetryPolicy = envutil.String("PIPELINE_RETRY_POLICY", p.RetryPolicy, log)
	p.AllowRetryCompleted = envutil.Bool("PIPELINE_ALLOW_RETRY_COMPLETED", p.AllowRetryCompleted)
	p.Weighting = envutil.String("PIPELINE_WEIGHTING", p.Weighting, log)
	p.Synchronous = envutil.Bool("PIPELINE_SYNCHRONOUS", p.Synchronous)
	p.WorkerConcurrency = envutil.Int("WORKER_CONCURRENCY", p.WorkerConcurrency, log)
	p.PollInterval = envutil.Duration("WORKER_POLL_INTERVAL", p.PollInterval)
	p.StaleAfter = envutil.Duration("WORKER_STALE_AFTER", p.StaleAfter)

	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr, log)
	c.Redis.Password = envutil.String("REDIS_PASSWORD", c.Redis.Password, log)
	c.Redis.DB = envutil.Int("REDIS_DB", c.Redis.DB, log)
	c.Redis.Channel = envutil.String("REDIS_CHANNEL", c.Redis.Channel, log)

	c.Storage.Mode = envutil.String("OBJECT_STORAGE_MODE", c.Storage.Mode, log)
	c.Storage.Bucket = envutil.String("GCS_BUCKET", c.Storage.Bucket, log)
	c.Storage.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", c.Storage.EmulatorHost, log)
	c.Storage.Credentials = envutil.String("GOOGLE_APPLICATION_CREDENTIALS", c.Storage.Credentials, log)

	c.DocumentAI.ProjectID = envutil.String("DOCUMENTAI_PROJECT_ID", c.DocumentAI.ProjectID, log)
	c.DocumentAI.Location = envutil.String("DOCUMENTAI_LOCATION", c.DocumentAI.Location, log)
	c.DocumentAI.ProcessorID = envutil.String("DOCUMENTAI_PROCESSOR_ID", c.DocumentAI.ProcessorID, log)
	c.DocumentAI.ProcessorVersion = envutil.String("DOCUMENTAI_PROCESSOR_VERSION", c.DocumentAI.ProcessorVersion, log)

	c.Speech.Enabled = envutil.Bool("SPEECH_ENABLED", c.Speech.Enabled)
	c.Speech.LanguageCode = envutil.String("SPEECH_LANGUAGE_CODE", c.Speech.LanguageCode, log)
	c.Speech.Model = envutil.String("SPEECH_MODEL", c.Speech.Model, log)

	c.Qdrant.Host = envutil.String("QDRANT_HOST", c.Qdrant.Host, log)
	c.Qdrant.Port = envutil.Int("QDRANT_PORT", c.Qdrant.Port, log)
	c.Qdrant.APIKey = envutil.String("QDRANT_API_KEY", c.Qdrant.APIKey, log)
	c.Qdrant.UseTLS = envutil.Bool("QDRANT_USE_TLS", c.Qdrant.UseTLS)
	c.Qdrant.Collection = envutil.String("QDRANT_COLLECTION", c.Qdrant.Collection, log)
	c.Qdrant.VectorDim = envutil.Int("QDRANT_VECTOR_DIM", c.Qdrant.VectorDim, log)

	c.Auth.JWTSecretKey = envutil.String("JWT_SECRET_KEY", c.Auth.JWTSecretKey, log)
	c.Auth.AccessTokenTTL = envutil.Duration("ACCESS_TOKEN_TTL", c.Auth.AccessTokenTTL)

	c.Otel.Enabled = envutil.Bool("OTEL_ENABLED", c.Otel.Enabled)
	c.Otel.ServiceName = envutil.String("OTEL_SERVICE_NAME", c.Otel.ServiceName, log)
	c.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", c.Otel.Endpoint, log)
	c.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", c.Otel.Insecure)
	c.Otel.SampleRatio = envutil.Float("OTEL_TRACES_SAMPLER_ARG", c.Otel.SampleRatio, log)
	if h := observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "", log)); h != nil {
		c.Otel.Headers = h
	}
}

func (c *Config) normalize() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", db.DriverPostgres, db.DriverSQLite, c.Database.Driver)
	}
	c.Pipeline.RetryPolicy = services.NormalizeRetryPolicy(c.Pipeline.RetryPolicy)
	if c.Pipeline.MappingBatchSize <= 0 {
		return fmt.Errorf("pipeline.mapping_batch_size must be positive, got %d", c.Pipeline.MappingBatchSize)
	}
	if c.Pipeline.BaseEstimateSeconds <= 0 {
		c.Pipeline.BaseEstimateSeconds = 300
	}
	c.Storage.Mode = strings.ToLower(strings.TrimSpace(c.Storage.Mode))
	if c.Otel.Environment == "" {
		c.Otel.Environment = c.App.Environment
	}
	if c.Otel.Version == "" {
		c.Otel.Version = c.App.Version
	}
	return nil
}

func (c Config) dbConfig() db.Config {
	return db.Config{
		Driver:     c.Database.Driver,
		Host:       c.Database.Host,
		Port:       c.Database.Port,
		User:       c.Database.User,
		Password:   c.Database.Password,
		Name:       c.Database.Name,
		SSLMode:    c.Database.SSLMode,
		SQLitePath: c.Database.SQLitePath,
		LogLevel:   c.Database.LogLevel,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
