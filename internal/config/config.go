package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Storage   StorageConfig   `json:"storage"`
	Gotenberg GotenbergConfig `json:"gotenberg"`
	Renderer  RendererConfig  `json:"renderer"`
	LLM       LLMConfig       `json:"llm"`
	Auth      AuthConfig      `json:"auth"`
	State     StateConfig     `json:"state"`
	Templates TemplatesConfig `json:"templates"`
	Poller    PollerConfig    `json:"poller"`
	Log       LogConfig       `json:"log"`
}

type ServerConfig struct {
	Port         string   `json:"port"`
	Environment  string   `json:"environment"`
	BaseURL      string   `json:"base_url"`
	AllowOrigins []string `json:"allow_origins"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
}

// StorageConfig selects the object storage backend. Provider is one of
// "gcs", "s3" or "minio".
type StorageConfig struct {
	Provider        string        `json:"provider"`
	Bucket          string        `json:"bucket"`
	SignedURLTTL    time.Duration `json:"signed_url_ttl"`
	ProjectID       string        `json:"project_id"`
	CredentialsPath string        `json:"credentials_path"`
	Region          string        `json:"region"`
	Endpoint        string        `json:"endpoint"`
	AccessKey       string        `json:"-"`
	SecretKey       string        `json:"-"`
	UseSSL          bool          `json:"use_ssl"`
}

type GotenbergConfig struct {
	URL     string `json:"url"`
	Timeout string `json:"timeout"`
}

// RendererConfig controls HTML to PDF rendering. Backend is "chromium"
// (local headless browser) or "gotenberg".
type RendererConfig struct {
	Backend        string        `json:"backend"`
	ChromePath     string        `json:"chrome_path"`
	MaxAttempts    int           `json:"max_attempts"`
	RetryDelay     time.Duration `json:"retry_delay"`
	ContentTimeout time.Duration `json:"content_timeout"`
}

type LLMConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"-"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
}

type AuthConfig struct {
	JWTSecret        string `json:"-"`
	TokenExpireHours int    `json:"token_expire_hours"`
}

// StateConfig picks where in-flight document generation state lives.
type StateConfig struct {
	Backend       string        `json:"backend"`
	TTL           time.Duration `json:"ttl"`
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
}

type TemplatesConfig struct {
	RemotePrefix string        `json:"remote_prefix"`
	CacheTTL     time.Duration `json:"cache_ttl"`
}

type PollerConfig struct {
	Interval    time.Duration `json:"interval"`
	MaxAttempts int           `json:"max_attempts"`
	StaleAfter  time.Duration `json:"stale_after"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

func (d *DatabaseConfig) DSN() string {
	// Cloud SQL Unix socket support
	if len(d.Host) > 0 && d.Host[0] == '/' {
		return fmt.Sprintf("%s:%s@unix(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			d.User, d.Password, d.Host, d.DBName)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("No .env file loaded (%v), using system environment variables", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			BaseURL:      getEnv("BASE_URL", ""),
			AllowOrigins: parseAllowOrigins(),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "legalmind"),
		},
		Storage: StorageConfig{
			Provider:        strings.ToLower(getEnv("STORAGE_PROVIDER", "gcs")),
			Bucket:          getEnv("STORAGE_BUCKET", getEnv("GCS_BUCKET_NAME", "")),
			SignedURLTTL:    getDuration("STORAGE_SIGNED_URL_TTL", time.Hour),
			ProjectID:       getEnv("GOOGLE_CLOUD_PROJECT", ""),
			CredentialsPath: getEnv("GCS_CREDENTIALS_PATH", ""),
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			Endpoint:        getEnv("STORAGE_ENDPOINT", ""),
			AccessKey:       getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:       getEnv("STORAGE_SECRET_KEY", ""),
			UseSSL:          getBool("STORAGE_USE_SSL", true),
		},
		Gotenberg: GotenbergConfig{
			URL:     getEnv("GOTENBERG_URL", "http://localhost:3000"),
			Timeout: getEnv("GOTENBERG_TIMEOUT", "30s"),
		},
		Renderer: RendererConfig{
			Backend:        strings.ToLower(getEnv("PDF_RENDERER", "chromium")),
			ChromePath:     getEnv("CHROME_PATH", ""),
			MaxAttempts:    getInt("PDF_MAX_ATTEMPTS", 3),
			RetryDelay:     getDuration("PDF_RETRY_DELAY", time.Second),
			ContentTimeout: getDuration("PDF_CONTENT_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			Provider: strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
			APIKey:   getEnv("LLM_API_KEY", ""),
			Model:    getEnv("LLM_MODEL", "gemini-1.5-flash"),
			BaseURL:  getEnv("LLM_BASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:        getEnv("JWT_SECRET", ""),
			TokenExpireHours: getInt("JWT_EXPIRE_HOURS", 24),
		},
		State: StateConfig{
			Backend:       strings.ToLower(getEnv("STATE_BACKEND", "memory")),
			TTL:           getDuration("STATE_TTL", 30*time.Minute),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getInt("REDIS_DB", 0),
		},
		Templates: TemplatesConfig{
			RemotePrefix: getEnv("TEMPLATES_REMOTE_PREFIX", "templates"),
			CacheTTL:     getDuration("TEMPLATES_CACHE_TTL", 5*time.Minute),
		},
		Poller: PollerConfig{
			Interval:    getDuration("POLL_INTERVAL", 2*time.Second),
			MaxAttempts: getInt("POLL_MAX_ATTEMPTS", 30),
			StaleAfter:  getDuration("STALE_PROCESSING_AFTER", 10*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects unknown backend names early so misconfiguration fails at startup.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "gcs", "s3", "minio":
	default:
		return fmt.Errorf("unsupported storage provider: %s", c.Storage.Provider)
	}
	switch c.Renderer.Backend {
	case "chromium", "gotenberg":
	default:
		return fmt.Errorf("unsupported PDF renderer: %s", c.Renderer.Backend)
	}
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}
	switch c.State.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported state backend: %s", c.State.Backend)
	}
	if c.Renderer.MaxAttempts < 1 {
		return fmt.Errorf("PDF_MAX_ATTEMPTS must be at least 1")
	}
	if c.Poller.MaxAttempts < 1 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Invalid integer for %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		logrus.Warnf("Invalid boolean for %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logrus.Warnf("Invalid duration for %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func parseAllowOrigins() []string {
	if origins := os.Getenv("ALLOW_ORIGINS"); origins != "" {
		var allowOrigins []string
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowOrigins = append(allowOrigins, trimmed)
			}
		}
		return allowOrigins
	}

	var allowOrigins []string
	if url1 := getEnv("FRONTEND_URL_1", ""); url1 != "" {
		allowOrigins = append(allowOrigins, url1)
	}
	if url2 := getEnv("FRONTEND_URL_2", ""); url2 != "" {
		allowOrigins = append(allowOrigins, url2)
	}

	if len(allowOrigins) == 0 {
		allowOrigins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
		}
	}

	return allowOrigins
}
