package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	LLMGatewayURL    string
	PrimaryModel     string
	FallbackModel    string
	EmbeddingURL     string
	EmbeddingModel   string
	ExternalTimeout  int // seconds, applied to every outbound collaborator call
	LLMRequestsPerSec float64

	HistoryLimit     int
	MaxAnswerTokens  int
	CRAGMinRelevance float64
	ReflectMinScore  float64
	ReflectMinLength int
	ReflectMaxRetries int

	CacheSize       int
	CacheTTLMinutes int
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		DBHost:     getEnv("DB_HOST", "docqa-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "docqa_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "docqa_password"),
		DBName:     getEnv("DB_NAME", "docqa_db"),

		LLMGatewayURL:     getEnv("LLM_GATEWAY_URL", "http://llm-gateway:8000"),
		PrimaryModel:      getEnv("LLM_PRIMARY_MODEL", "qa-large"),
		FallbackModel:     getEnv("LLM_FALLBACK_MODEL", "qa-small"),
		EmbeddingURL:      getEnvWithAlt("EMBEDDING_URL", "LLM_GATEWAY_URL", "http://llm-gateway:8000"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "embeddinggemma"),
		ExternalTimeout:   getEnvInt("EXTERNAL_TIMEOUT_SECONDS", 10),
		LLMRequestsPerSec: getEnvFloat("LLM_REQUESTS_PER_SEC", 10),

		HistoryLimit:      getEnvInt("QA_HISTORY_LIMIT", 10),
		MaxAnswerTokens:   getEnvInt("QA_MAX_ANSWER_TOKENS", 1024),
		CRAGMinRelevance:  getEnvFloat("CRAG_MIN_RELEVANCE", 0.4),
		ReflectMinScore:   getEnvFloat("REFLECT_MIN_SCORE", 0.6),
		ReflectMinLength:  getEnvInt("REFLECT_MIN_LENGTH", 80),
		ReflectMaxRetries: getEnvInt("REFLECT_MAX_RETRIES", 1),

		CacheSize:       getEnvInt("ANSWER_CACHE_SIZE", 256),
		CacheTTLMinutes: getEnvInt("ANSWER_CACHE_TTL_MINUTES", 60),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvWithAlt(key, altKey, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := os.LookupEnv(altKey); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
