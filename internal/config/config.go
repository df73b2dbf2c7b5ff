package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"docqa-be/pkg/rag/rank"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Cache    CacheConfig
	Context  ContextConfig
}

type AppConfig struct {
	Port               string `validate:"required"`
	Environment        string
	LogFilePath        string `validate:"required"`
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	// InstanceID names this replica's durable NATS consumer.
	InstanceID  string `validate:"required"`
	OtelEnabled bool
}

type DatabaseConfig struct {
	Connection   string
	MaxOpenConns int `validate:"gte=0"`
	MaxIdleConns int `validate:"gte=0"`
	// SlowQuery is the threshold above which GORM logs a query.
	SlowQuery time.Duration
}

type APIKeys struct {
	GoogleGemini string
	Jina         string
	HuggingFace  string
}

type AIConfig struct {
	EmbeddingProvider string `validate:"oneof=gemini ollama jina"`
	OllamaBaseURL     string
	OllamaModel       string
	LLMProvider       string `validate:"oneof=ollama huggingface"`
	LLMModel          string
	UpstreamTimeout   time.Duration `validate:"gt=0"`
	CompletionTimeout time.Duration `validate:"gt=0"`
}

type CacheConfig struct {
	Backend         string        `validate:"oneof=memory redis tiered"`
	KeyPrefix       string        `validate:"required"`
	EmbeddingTTL    time.Duration `validate:"gt=0"`
	SearchTTL       time.Duration `validate:"gt=0"`
	ConversationTTL time.Duration `validate:"gt=0"`
	OpTimeout       time.Duration `validate:"gt=0"`
	CleanupInterval time.Duration `validate:"gt=0"`
}

type ContextConfig struct {
	TokenBudget     int `validate:"gt=0"`
	ReserveTokens   int `validate:"gte=0,ltfield=TokenBudget"`
	MinUsefulTokens int `validate:"gt=0"`
	MaxTurns        int `validate:"gte=0"`
	MaxTokens       int `validate:"gte=0"`
	MaxPassages     int `validate:"gte=0"`
	SearchTopK      int `validate:"gt=0"`
	// SearchThreshold applies to the combined rank score.
	SearchThreshold    float64 `validate:"gte=0,lte=1"`
	RankWeightSemantic float64
	RankWeightLexical  float64
	RankWeightLength   float64
	IdealMinTokens     int    `validate:"gt=0"`
	IdealMaxTokens     int    `validate:"gtfield=IdealMinTokens"`
	VectorIndex        string `validate:"oneof=pgvector chromem"`
	// ChromemPath persists the chromem index; empty keeps it in memory.
	ChromemPath string
}

func (c ContextConfig) RankWeights() rank.Weights {
	return rank.Weights{
		Semantic: c.RankWeightSemantic,
		Lexical:  c.RankWeightLexical,
		Length:   c.RankWeightLength,
	}
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "docqa-local"
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			InstanceID:         getEnv("INSTANCE_ID", hostname),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Database: DatabaseConfig{
			Connection:   getEnv("DB_CONNECTION_STRING", ""),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			SlowQuery:    getEnvAsMillis("DB_SLOW_QUERY_MS", 200),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
			UpstreamTimeout:   getEnvAsMillis("UPSTREAM_TIMEOUT_MS", 8000),
			CompletionTimeout: getEnvAsMillis("COMPLETION_TIMEOUT_MS", 60000),
		},
		Cache: CacheConfig{
			Backend:         getEnv("CACHE_BACKEND", "memory"),
			KeyPrefix:       getEnv("CACHE_KEY_PREFIX", "docqa:"),
			EmbeddingTTL:    getEnvAsSeconds("CACHE_EMBEDDING_TTL_SECONDS", 3600),
			SearchTTL:       getEnvAsSeconds("CACHE_SEARCH_TTL_SECONDS", 300),
			ConversationTTL: getEnvAsSeconds("CACHE_CONVERSATION_TTL_SECONDS", 1800),
			OpTimeout:       getEnvAsMillis("CACHE_OP_TIMEOUT_MS", 150),
			CleanupInterval: getEnvAsSeconds("CACHE_CLEANUP_INTERVAL_SECONDS", 60),
		},
		Context: ContextConfig{
			TokenBudget:        getEnvAsInt("CONTEXT_TOKEN_BUDGET", 3000),
			ReserveTokens:      getEnvAsInt("CONTEXT_RESERVE_TOKENS", 500),
			MinUsefulTokens:    getEnvAsInt("CONTEXT_MIN_USEFUL_TOKENS", 50),
			MaxTurns:           getEnvAsInt("CONVERSATION_MAX_TURNS", 20),
			MaxTokens:          getEnvAsInt("CONVERSATION_MAX_TOKENS", 2000),
			MaxPassages:        getEnvAsInt("CONTEXT_MAX_PASSAGES", 10),
			SearchTopK:         getEnvAsInt("SEARCH_TOP_K", 20),
			SearchThreshold:    getEnvAsFloat("SEARCH_THRESHOLD", 0.35),
			RankWeightSemantic: getEnvAsFloat("RANK_WEIGHT_SEMANTIC", 0.7),
			RankWeightLexical:  getEnvAsFloat("RANK_WEIGHT_LEXICAL", 0.2),
			RankWeightLength:   getEnvAsFloat("RANK_WEIGHT_LENGTH", 0.1),
			IdealMinTokens:     getEnvAsInt("RANK_IDEAL_MIN_TOKENS", 50),
			IdealMaxTokens:     getEnvAsInt("RANK_IDEAL_MAX_TOKENS", 400),
			VectorIndex:        getEnv("VECTOR_INDEX", "pgvector"),
			ChromemPath:        getEnv("CHROMEM_PATH", ""),
		},
	}
}

// Validate checks field constraints and cross-field rules that tags cannot
// express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Context.RankWeights().Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Context.VectorIndex == "pgvector" && c.Database.Connection == "" {
		return fmt.Errorf("invalid configuration: VECTOR_INDEX=pgvector requires DB_CONNECTION_STRING")
	}
	if c.Cache.Backend != "memory" && c.App.RedisURL == "" {
		return fmt.Errorf("invalid configuration: CACHE_BACKEND=%s requires REDIS_URL", c.Cache.Backend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Second
}

func getEnvAsMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Millisecond
}
