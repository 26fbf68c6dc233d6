package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo  = "mongo"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

type Config struct {
	App struct {
		HTTPAddr      string
		GRPCAddr      string
		PublicBaseURL string
		UploadDir     string
		LogLevel      string
		LogFormat     string
	}
	Store struct {
		Driver     string
		MongoURI   string
		MongoDB    string
		MySQLDSN   string
		RedisAddr  string
		SessionTTL time.Duration
		CartTTL    time.Duration
	}
	Events struct {
		KafkaBrokers string
		KafkaTopic   string
		WorkerCount  int
		QueueSize    int
	}
	Admin struct {
		Email    string
		Password string
	}
}

// Load reads an optional .env file at path, then the environment. Variables
// already set in the environment win over the file.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	cfg.App.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.App.GRPCAddr = getEnv("GRPC_ADDR", ":50051")
	cfg.App.PublicBaseURL = getEnv("PUBLIC_BASE_URL", "http://localhost:8080")
	cfg.App.UploadDir = getEnv("UPLOAD_DIR", "./uploads")
	cfg.App.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.App.LogFormat = getEnv("LOG_FORMAT", "json")

	cfg.Store.Driver = getEnv("STORE_DRIVER", DriverMongo)
	switch cfg.Store.Driver {
	case DriverMongo, DriverMySQL, DriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.Store.Driver)
	}
	cfg.Store.MongoURI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	cfg.Store.MongoDB = getEnv("MONGO_DB", "storefront")
	cfg.Store.MySQLDSN = getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront")
	cfg.Store.RedisAddr = os.Getenv("REDIS_ADDR")

	var err error
	if cfg.Store.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Store.CartTTL, err = getDuration("CART_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}

	cfg.Events.KafkaBrokers = os.Getenv("KAFKA_BROKERS")
	cfg.Events.KafkaTopic = getEnv("KAFKA_TOPIC", "storefront.orders")
	if cfg.Events.WorkerCount, err = getInt("WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.Events.QueueSize, err = getInt("EVENT_QUEUE_SIZE", 1000); err != nil {
		return nil, err
	}

	cfg.Admin.Email = os.Getenv("ADMIN_EMAIL")
	cfg.Admin.Password = os.Getenv("ADMIN_PASSWORD")
	if (cfg.Admin.Email == "") != (cfg.Admin.Password == "") {
		return nil, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid positive integer %q", key, v)
	}
	return n, nil
}
