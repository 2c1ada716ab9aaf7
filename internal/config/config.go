package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process-wide immutable configuration, loaded once at boot
// and passed by reference to every component that needs it.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Ingestion
	BotPort       int    `env:"BOT_PORT" envDefault:"8080"`
	PublicDomain  string `env:"PUBLIC_DOMAIN"`
	APIKeyFile    string `env:"API_KEY_FILE" envDefault:"./apikeys.json"`
	StorageMode   string `env:"STORAGE_MODE" envDefault:"local"` // local | s3
	AudioDir      string `env:"AUDIO_DIR" envDefault:"./audio"`
	AudioRetainDays int  `env:"AUDIO_RETAIN_DAYS" envDefault:"7"`

	S3Endpoint      string        `env:"S3_ENDPOINT"`
	S3Bucket        string        `env:"S3_BUCKET"`
	S3Key           string        `env:"S3_KEY"`
	S3Secret        string        `env:"S3_SECRET"`
	S3Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Prefix        string        `env:"S3_PREFIX"`
	S3PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
	S3LocalCache    bool          `env:"S3_LOCAL_CACHE" envDefault:"true"`
	S3CacheRetention time.Duration `env:"S3_CACHE_RETENTION" envDefault:"168h"`
	S3CacheMaxGB    int           `env:"S3_CACHE_MAX_GB" envDefault:"0"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthEnabled        bool   `env:"AUTH_ENABLED" envDefault:"true"`
	AuthToken          string `env:"AUTH_TOKEN"`
	AuthTokenGenerated bool
	WriteToken         string  `env:"WRITE_TOKEN"`
	RateLimitRPS       float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
	CORSOrigins        string  `env:"CORS_ORIGINS"`
	LogLevel           string  `env:"LOG_LEVEL" envDefault:"info"`
	MetricsEnabled     bool    `env:"METRICS_ENABLED" envDefault:"true"`

	// Transcription Engine (spec.md §4.2)
	TranscriptionMode  string        `env:"TRANSCRIPTION_MODE" envDefault:"local"` // local | remote | openai | icad
	LocalASRCommand    string        `env:"LOCAL_ASR_COMMAND"`                     // e.g. "python3 ./asr_worker.py"
	LocalASRConcurrency int          `env:"LOCAL_ASR_CONCURRENCY" envDefault:"1"`
	FasterWhisperServerURL string    `env:"FASTER_WHISPER_SERVER_URL"`
	WhisperModel       string        `env:"WHISPER_MODEL" envDefault:"whisper-1"`
	TranscriptionDevice string       `env:"TRANSCRIPTION_DEVICE" envDefault:"cpu"`
	OpenAIAPIKey       string        `env:"OPENAI_API_KEY"`
	ICADURL            string        `env:"ICAD_URL"`
	ICADAPIKey         string        `env:"ICAD_API_KEY"`
	ICADProfile        string        `env:"ICAD_PROFILE"`
	MaxConcurrentTranscriptions int   `env:"MAX_CONCURRENT_TRANSCRIPTIONS" envDefault:"3"`
	TranscribeQueueSize int          `env:"TRANSCRIBE_QUEUE_SIZE" envDefault:"500"`
	RemoteTranscribeTimeout time.Duration `env:"REMOTE_TRANSCRIBE_TIMEOUT" envDefault:"120s"`
	PreprocessAudio    bool          `env:"PREPROCESS_AUDIO" envDefault:"false"` // sox cleanup pass before ASR, local Path refs only

	// Address Extractor / Geocoder (spec.md §4.3)
	MappedTalkGroups   string `env:"MAPPED_TALK_GROUPS"` // comma list of talkgroup ids
	GeocodingState     string `env:"GEOCODING_STATE"`
	GeocodingCountry   string `env:"GEOCODING_COUNTRY" envDefault:"US"`
	GeocodingCity      string `env:"GEOCODING_CITY"`
	TargetCounties     string `env:"TARGET_COUNTIES"` // comma list
	AIProvider         string `env:"AI_PROVIDER" envDefault:"ollama"` // ollama | openai
	OllamaURL          string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel        string `env:"OLLAMA_MODEL" envDefault:"llama3.1"`
	OpenAIModel        string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GoogleMapsAPIKey   string `env:"GOOGLE_MAPS_API_KEY"`
	LocationIQAPIKey   string `env:"LOCATIONIQ_API_KEY"`
	GeocodeProvider    string `env:"GEOCODE_PROVIDER" envDefault:"nominatim"` // google | locationiq | nominatim

	// Discord Fan-out (spec.md §4.4)
	DiscordToken          string        `env:"DISCORD_TOKEN"`
	DiscordGuildID        string        `env:"DISCORD_GUILD_ID"`
	CoalesceCooldown      time.Duration `env:"COALESCE_COOLDOWN" envDefault:"15s"`
	CoalesceBodyBudget    int           `env:"COALESCE_BODY_BUDGET" envDefault:"4096"`

	// Periodic Summariser & Ask-AI (spec.md §4.6)
	SummaryInterval      time.Duration `env:"SUMMARY_INTERVAL" envDefault:"10m"`
	SummaryLookbackHours int           `env:"SUMMARY_LOOKBACK_HOURS" envDefault:"1"`
	SummaryChannelID     string        `env:"SUMMARY_CHANNEL_ID"` // Discord channel to pin the rolling summary in; empty disables Discord posting
	AskAILookbackHours   int           `env:"ASK_AI_LOOKBACK_HOURS" envDefault:"8"`
	AskAIContextTokens   int           `env:"ASK_AI_CONTEXT_TOKENS" envDefault:"35000"`
	Timezone             string        `env:"TIMEZONE" envDefault:"UTC"`

	// Live Fan-out (spec.md §4.5)
	LiveMapPollInterval  time.Duration `env:"LIVE_MAP_POLL_INTERVAL" envDefault:"2s"`
	LiveFeedPollInterval time.Duration `env:"LIVE_FEED_POLL_INTERVAL" envDefault:"2500ms"`
	LivePlaceholderWait  time.Duration `env:"LIVE_PLACEHOLDER_WAIT" envDefault:"10s"`
	LivePollBatchSize    int           `env:"LIVE_POLL_BATCH_SIZE" envDefault:"10"`
}

// S3Config is the subset of Config the storage package needs, kept as its
// own type so storage doesn't import the whole Config and so tests can
// build one without loading env vars.
type S3Config struct {
	Endpoint       string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	Region         string
	PresignExpiry  time.Duration
	LocalCache     bool
	CacheRetention time.Duration
	CacheMaxGB     int
}

// Enabled reports whether S3 storage is configured (STORAGE_MODE=s3 with
// both an endpoint and a bucket set).
func (s S3Config) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// S3 builds the storage package's view of the S3 configuration.
func (c *Config) S3() S3Config {
	if c.StorageMode != "s3" {
		return S3Config{}
	}
	return S3Config{
		Endpoint:       c.S3Endpoint,
		Bucket:         c.S3Bucket,
		Prefix:         c.S3Prefix,
		AccessKey:      c.S3Key,
		SecretKey:      c.S3Secret,
		Region:         c.S3Region,
		PresignExpiry:  c.S3PresignExpiry,
		LocalCache:     c.S3LocalCache,
		CacheRetention: c.S3CacheRetention,
		CacheMaxGB:     c.S3CacheMaxGB,
	}
}

// MappedTalkGroupIDs parses MAPPED_TALK_GROUPS into a set.
func (c *Config) MappedTalkGroupIDs() map[string]bool {
	set := make(map[string]bool)
	for _, s := range strings.Split(c.MappedTalkGroups, ",") {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = true
		}
	}
	return set
}

// TalkGroupTown returns the town configured for a mapped talkgroup via
// TALK_GROUP_<id>=<town>, read directly from the environment since it is a
// dynamic per-id key that struct tags cannot express.
func TalkGroupTown(tgid string) string {
	return os.Getenv("TALK_GROUP_" + tgid)
}

// TargetCountySet parses TARGET_COUNTIES into a lookup set.
func (c *Config) TargetCountySet() map[string]bool {
	set := make(map[string]bool)
	for _, s := range strings.Split(c.TargetCounties, ",") {
		if s = strings.TrimSpace(s); s != "" {
			set[strings.ToLower(s)] = true
		}
	}
	return set
}

// Validate checks cross-field invariants not expressible via struct tags.
func (c *Config) Validate() error {
	switch c.StorageMode {
	case "local", "s3":
	default:
		return fmt.Errorf("STORAGE_MODE must be 'local' or 's3', got %q", c.StorageMode)
	}
	if c.StorageMode == "s3" && (c.S3Endpoint == "" || c.S3Bucket == "") {
		return fmt.Errorf("STORAGE_MODE=s3 requires S3_ENDPOINT and S3_BUCKET")
	}
	switch c.TranscriptionMode {
	case "local", "remote", "openai", "icad", "none", "":
	default:
		return fmt.Errorf("TRANSCRIPTION_MODE must be one of local, remote, openai, icad, none")
	}
	if c.TranscriptionMode == "icad" && c.ICADURL == "" {
		return fmt.Errorf("TRANSCRIPTION_MODE=icad requires ICAD_URL")
	}
	switch c.AIProvider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("AI_PROVIDER must be 'ollama' or 'openai', got %q", c.AIProvider)
	}
	return nil
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	AudioDir    string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}

	if !cfg.AuthEnabled {
		cfg.AuthToken = ""
		cfg.WriteToken = ""
	} else if cfg.AuthToken == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err == nil {
			cfg.AuthToken = base64.URLEncoding.EncodeToString(b)
			cfg.AuthTokenGenerated = true
		}
	}

	return cfg, nil
}

// parseBoolEnv reads an optional boolean env var outside the struct-tag
// binding, returning def when it is unset or unparseable. Nothing calls it.
func parseBoolEnv(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
