// Package config собирает настройки сервера из .env, YAML файла,
// переменных окружения и флагов командной строки. Каждый следующий
// источник перекрывает предыдущий.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/dudaji/dudaji-chat/internal/models"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"

	ObjectStoreFS     = "fs"
	ObjectStoreGridFS = "gridfs"
)

type Config struct {
	Port            string `yaml:"port"`
	DocstoreBackend string `yaml:"docstore_backend"`

	RedisURL      string `yaml:"redis_url"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	DatabaseURL   string `yaml:"database_url"`

	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	ObjectStore    string `yaml:"object_store"`
	UploadDir      string `yaml:"upload_dir"`
	PublicBaseURL  string `yaml:"public_base_url"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	EnforceAdminApproval bool   `yaml:"enforce_admin_approval"`
	DefaultRoomAvatar    string `yaml:"default_room_avatar"`

	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func defaults() Config {
	return Config{
		Port:                 "8080",
		DocstoreBackend:      BackendMemory,
		RedisURL:             "redis://localhost:6379/0",
		MongoDatabase:        "dudaji",
		TokenTTL:             24 * time.Hour,
		ObjectStore:          ObjectStoreFS,
		UploadDir:            "./uploads",
		PublicBaseURL:        "http://localhost:8080",
		MaxUploadBytes:       10 << 20,
		EnforceAdminApproval: true,
		DefaultRoomAvatar:    models.DefaultRoomAvatar,
		RateLimitRPS:         10,
		RateLimitBurst:       20,
	}
}

// Load читает конфигурацию. args: аргументы командной строки без
// имени программы.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println(".env not found, using environment variables")
		}
	}

	cfg := defaults()

	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	configFile := fs.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	port := fs.String("port", "", "HTTP port")
	backend := fs.String("docstore", "", "document store backend: memory, redis or mongo")
	objects := fs.String("object-store", "", "object store: fs or gridfs")
	uploadDir := fs.String("upload-dir", "", "directory for the fs object store")
	enforce := fs.Bool("enforce-admin", true, "require admin role to approve join requests")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configFile != "" {
		if err := loadFile(*configFile, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if fs.Changed("port") {
		cfg.Port = *port
	}
	if fs.Changed("docstore") {
		cfg.DocstoreBackend = *backend
	}
	if fs.Changed("object-store") {
		cfg.ObjectStore = *objects
	}
	if fs.Changed("upload-dir") {
		cfg.UploadDir = *uploadDir
	}
	if fs.Changed("enforce-admin") {
		cfg.EnforceAdminApproval = *enforce
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = envOr("PORT", cfg.Port)
	cfg.DocstoreBackend = envOr("DOCSTORE_BACKEND", cfg.DocstoreBackend)
	cfg.RedisURL = envOr("REDIS_URL", cfg.RedisURL)
	cfg.MongoURI = envOr("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = envOr("MONGO_DATABASE", cfg.MongoDatabase)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)
	cfg.JWTSecret = envOr("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = envDuration("TOKEN_TTL", cfg.TokenTTL)
	cfg.ObjectStore = envOr("OBJECT_STORE", cfg.ObjectStore)
	cfg.UploadDir = envOr("UPLOAD_DIR", cfg.UploadDir)
	cfg.PublicBaseURL = envOr("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.MaxUploadBytes = int64(envInt("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))
	cfg.EnforceAdminApproval = envBool("ENFORCE_ADMIN_APPROVAL", cfg.EnforceAdminApproval)
	cfg.DefaultRoomAvatar = envOr("DEFAULT_ROOM_AVATAR", cfg.DefaultRoomAvatar)
	cfg.RateLimitRPS = envFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = envInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.AllowedOrigins = envCSV("CORS_ALLOWED_ORIGINS", cfg.AllowedOrigins)
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.DocstoreBackend {
	case BackendMemory, BackendRedis:
	case BackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown docstore backend %q", c.DocstoreBackend))
	}
	switch c.ObjectStore {
	case ObjectStoreFS:
	case ObjectStoreGridFS:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the gridfs object store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown object store %q", c.ObjectStore))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid %s=%s, fallback to default (%d)", key, v, def)
			return def
		}
		return i
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Printf("invalid %s=%s, fallback to default (%g)", key, v, def)
			return def
		}
		return f
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("invalid %s=%s, fallback to default (%t)", key, v, def)
			return def
		}
		return b
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid %s=%s, fallback to default (%s)", key, v, def)
			return def
		}
		return d
	}
	return def
}

// envCSV читает список через запятую, пустые элементы пропускаются.
func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
