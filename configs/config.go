package configs

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	Env     string

	StoreDriver     string // "postgres" or "memory"
	DBHost          string
	DBPort          string
	DBUser          string
	DBPass          string
	DBName          string
	DBReplicas      []string
	AutoMigrate     bool
	RedisHost       string
	RedisPort       string
	KafkaBrokers    string
	KafkaTopic      string
	KafkaGroupID    string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioUseSSL     bool
	MinioBucket     string
	BlobPublicURL   string
	JWTSecret       string
	JWTTTL          time.Duration
	SessionSecret   string
	SessionIdle     time.Duration
	SessionSweep    string
	PushSecret      string
	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	AssetManifest   string
	AssetOrigin     string
	CORSOrigins     []string
	RateLimit       int64
	RateLimitWindow time.Duration
}

// LoadConfig reads a .env file when present and then the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env: %v", err)
	}
	return &Config{
		AppPort:         getEnv("APP_PORT", ":8080"),
		Env:             getEnv("ENV", "local"),
		StoreDriver:     getEnv("STORE_DRIVER", "postgres"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPass:          getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "glassy_social"),
		DBReplicas:      splitList(getEnv("DB_REPLICA_DSNS", "")),
		AutoMigrate:     getBool("AUTO_MIGRATE", true),
		RedisHost:       getEnv("REDIS_HOST", "localhost"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		KafkaBrokers:    getEnv("KAFKA_BOOTSTRAP_SERVERS", ""),
		KafkaTopic:      getEnv("KAFKA_TOPIC_ACTIVITY", "social.activity"),
		KafkaGroupID:    getEnv("KAFKA_GROUP_ID", "glassy-social"),
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:     getBool("MINIO_USE_SSL", false),
		MinioBucket:     getEnv("MINIO_BUCKET", "glassy-media"),
		BlobPublicURL:   getEnv("BLOB_PUBLIC_URL", ""),
		JWTSecret:       getEnv("JWT_SECRET", "replace-this-with-a-strong-secret"),
		JWTTTL:          getDuration("JWT_TTL", 24*time.Hour),
		SessionSecret:   getEnv("SESSION_SECRET", "replace-this-session-secret"),
		SessionIdle:     getDuration("SESSION_IDLE", 30*time.Minute),
		SessionSweep:    getEnv("SESSION_SWEEP_CRON", "*/5 * * * *"),
		PushSecret:      getEnv("PUSH_SECRET", ""),
		GoogleClientID:  getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirect:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
		AssetManifest:   getEnv("ASSET_MANIFEST", "configs/assets.yaml"),
		AssetOrigin:     getEnv("ASSET_ORIGIN", ""),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		RateLimit:       int64(getInt("RATE_LIMIT", 60)),
		RateLimitWindow: getDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleSecret != ""
}

// String renders the config without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("port=%s env=%s store=%s db=%s:%s/%s replicas=%d redis=%s kafka=%q minio=%s/%s google=%t",
		c.AppPort, c.Env, c.StoreDriver, c.DBHost, c.DBPort, c.DBName, len(c.DBReplicas),
		c.RedisAddr(), c.KafkaBrokers, c.MinioEndpoint, c.MinioBucket, c.GoogleEnabled())
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
