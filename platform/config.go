package platform

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 应用配置，从 .env 和环境变量读取
type Config struct {
	Port   string
	LogDir string

	DB DBConfig

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	AccessSecret string
	CORSOrigin   string

	ReserveFraction  float64
	ModelTokenLimits string

	MemoryEnabled       bool
	MemoryReconcileSpec string
	DigestSpec          string

	SMTP SMTPConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

func (s SMTPConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LoadConfig reads the .env file when present and then the environment.
func LoadConfig(files ...string) *Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		logrus.Warnf("failed to load the env file: %s", err)
	}

	return &Config{
		Port:   getenv("PORT", "8080"),
		LogDir: getenv("LOG_DIR", "./log"),
		DB: DBConfig{
			Host:     getenv("SQL_HOST", "127.0.0.1"),
			Port:     getenv("SQL_PORT", "3306"),
			User:     os.Getenv("SQL_USER"),
			Password: os.Getenv("SQL_PASSWORD"),
			DBName:   os.Getenv("SQL_DBNAME"),
		},
		LLMBaseURL:          os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:           os.Getenv("LLM_API_KEY"),
		LLMModel:            getenv("LLM_MODEL", "gpt-3.5-turbo"),
		AccessSecret:        os.Getenv("ACCESS_SECRET"),
		CORSOrigin:          getenv("CORS_ORIGIN", "http://localhost"),
		ReserveFraction:     getFloat("RESERVE_FRACTION", 0),
		ModelTokenLimits:    os.Getenv("MODEL_TOKEN_LIMITS"),
		MemoryEnabled:       getBool("MEMORY_ENABLED", true),
		MemoryReconcileSpec: getenv("MEMORY_RECONCILE_SPEC", "@every 10m"),
		DigestSpec:          os.Getenv("DIGEST_SPEC"),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getenv("SMTP_PORT", "587"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logrus.Warnf("invalid %s %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logrus.Warnf("invalid %s %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
