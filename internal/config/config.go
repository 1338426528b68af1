package config

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"podrag"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"podrag"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// Podcast ingestion
	FeedURL             string `envconfig:"FEED_URL" default:"https://feedpress.me/rdvtech"`
	EpisodesPerRun      int    `envconfig:"EPISODES_PER_RUN" default:"4"`
	AudioDir            string `envconfig:"AUDIO_DIR" default:"data/audio"`
	AudioSizeLimitMB    int64  `envconfig:"AUDIO_SIZE_LIMIT_MB" default:"25"`
	SegmentSeconds      int    `envconfig:"SEGMENT_SECONDS" default:"600"`
	FFmpegBinary        string `envconfig:"FFMPEG_BINARY" default:"ffmpeg"`
	FFprobeBinary       string `envconfig:"FFPROBE_BINARY" default:"ffprobe"`
	IngestIntervalMins  int    `envconfig:"INGEST_INTERVAL_MINS" default:"60"`
	EnableAPI           bool   `envconfig:"ENABLE_API" default:"true"`
	EnableIngestWorker  bool   `envconfig:"ENABLE_INGEST_WORKER" default:"true"`
	EnableIndexConsumer bool   `envconfig:"ENABLE_INDEX_CONSUMER" default:"true"`

	// External services
	TranscriptionURL    string `envconfig:"TRANSCRIPTION_URL" default:"https://api.openai.com/v1/audio/transcriptions"`
	TranscriptionModel  string `envconfig:"TRANSCRIPTION_MODEL" default:"whisper-1"`
	TranscriptionAPIKey string `envconfig:"TRANSCRIPTION_API_KEY"`
	GeminiAPIKey        string `envconfig:"GEMINI_API_KEY"`
	CompletionModel     string `envconfig:"COMPLETION_MODEL" default:"gemini-1.5-flash"`
	RerankProvider      string `envconfig:"RERANK_PROVIDER" default:"cohere"`
	RerankAPIKey        string `envconfig:"RERANK_API_KEY"`
	RerankTopN          int    `envconfig:"RERANK_TOP_N" default:"3"`
	RetrievalTopK       int    `envconfig:"RETRIEVAL_TOP_K" default:"10"`
	HistoryTokenBudget  int    `envconfig:"HISTORY_TOKEN_BUDGET" default:"3000"`
	ChunkMaxTokens      int    `envconfig:"CHUNK_MAX_TOKENS" default:"512"`

	// Authentication
	PublicKeyPath string `envconfig:"PUBLIC_KEY_PATH" default:"public_key.pem"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
	ServiceRetryAttempts       int `envconfig:"SERVICE_RETRY_ATTEMPTS" default:"3"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell instead; a missing .env is fine.
	_ = godotenv.Load(".env")

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.FeedURL == "" {
		return fmt.Errorf("%w: FEED_URL", ErrMissingRequired)
	}
	if c.EpisodesPerRun < 1 {
		return fmt.Errorf("%w: EPISODES_PER_RUN must be at least 1", ErrMissingRequired)
	}
	if c.SegmentSeconds < 1 {
		return fmt.Errorf("%w: SEGMENT_SECONDS must be at least 1", ErrMissingRequired)
	}
	return nil
}

// AudioSizeLimitBytes is the transcription upload threshold above which audio
// is split into fixed-duration segments before being sent out.
func (c *Config) AudioSizeLimitBytes() int64 {
	return c.AudioSizeLimitMB * 1024 * 1024
}
