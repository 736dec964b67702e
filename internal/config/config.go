package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はマイグレーションツール全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Source (MongoDB)
	MongoURI            string
	MongoDatabase       string
	MongoConnectTimeout time.Duration

	// Destination (Supabase)
	SupabaseURL            string
	SupabaseServiceRoleKey string
	DatabaseURL            string

	// Auth API
	AuthRateLimit float64
	AuthTimeout   time.Duration

	// Migration
	WriteMode     string
	IDStrategy    string
	Resume        bool
	Compensate    bool
	TempPassword  string
	ReportDir     string
	SchemaVersion uint

	// Observability
	MetricsAddr    string
	PushgatewayURL string
	LogLevel       string
}

// 書き込みモード
const (
	WriteModeAppend = "append"
	WriteModeUpsert = "upsert"
)

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.MongoURI = os.Getenv("MONGODB_URI")
	if cfg.MongoURI == "" {
		missing = append(missing, "MONGODB_URI")
	}

	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	if cfg.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}

	cfg.SupabaseServiceRoleKey = os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if cfg.SupabaseServiceRoleKey == "" {
		missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MongoDatabase = getEnvString("MONGODB_DATABASE", "casting")
	cfg.MongoConnectTimeout = getEnvDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second)
	cfg.AuthRateLimit = getEnvFloat("AUTH_RATE_LIMIT", 10)
	cfg.AuthTimeout = getEnvDuration("AUTH_TIMEOUT", 10*time.Second)
	cfg.WriteMode = strings.ToLower(getEnvString("MIGRATION_WRITE_MODE", WriteModeAppend))
	cfg.IDStrategy = strings.ToLower(getEnvString("MIGRATION_ID_STRATEGY", "positional"))
	cfg.Resume = getEnvBool("MIGRATION_RESUME", false)
	cfg.Compensate = getEnvBool("MIGRATION_COMPENSATE", true)
	cfg.TempPassword = os.Getenv("MIGRATION_TEMP_PASSWORD")
	cfg.ReportDir = getEnvString("REPORT_DIR", ".")
	cfg.SchemaVersion = uint(getEnvInt("SCHEMA_VERSION", 0))
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	cfg.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if cfg.WriteMode != WriteModeAppend && cfg.WriteMode != WriteModeUpsert {
		return nil, fmt.Errorf("invalid MIGRATION_WRITE_MODE: %q (append or upsert)", cfg.WriteMode)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
