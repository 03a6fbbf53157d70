package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	DBDriver   string
	DBPath     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	MetaGraphURL       string
	MetaAPIVersion     string
	MetaSystemToken    string
	DefaultCountryCode string
	TargetCountry      string

	PublishPollAttempts int
	PublishPollDelay    time.Duration

	GeminiAPIKey string
	GeminiModel  string
	ImageAPIURL  string
	ImageAPIKey  string
	ImageModel   string

	// Operator chat channel (WhatsApp Cloud API)
	VerifyToken   string
	WhatsAppToken string
	PhoneNumberID string

	AutoExecute bool
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./adpilot.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "adpilot"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		MetaGraphURL:       getEnv("META_GRAPH_URL", "https://graph.facebook.com"),
		MetaAPIVersion:     getEnv("META_API_VERSION", "v19.0"),
		MetaSystemToken:    getEnv("META_SYSTEM_TOKEN", ""),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "91"),
		TargetCountry:      getEnv("DEFAULT_TARGET_COUNTRY", "IN"),

		PublishPollAttempts: getEnvInt("PUBLISH_POLL_ATTEMPTS", 5),
		PublishPollDelay:    getEnvDuration("PUBLISH_POLL_DELAY", 2*time.Second),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ImageAPIURL:  getEnv("IMAGE_API_URL", "https://api.openai.com"),
		ImageAPIKey:  getEnv("IMAGE_API_KEY", ""),
		ImageModel:   getEnv("IMAGE_MODEL", "dall-e-3"),

		VerifyToken:   getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken: getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID: getEnv("PHONE_NUMBER_ID", ""),

		AutoExecute: getEnv("AUTO_EXECUTE", "false") == "true",
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return fallback
}
