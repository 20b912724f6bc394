package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bar-pos/internal/logger"
)

// Server holds the remote store settings.
type Server struct {
	HTTPAddr          string
	Backend           string // mysql | mongo | memory
	DSN               string
	MongoURI          string
	MongoDatabase     string
	RedisAddr         string
	KafkaBrokers      []string
	JWTSecret         string
	AllowRegistration bool
	CORSOrigins       []string
	TrialPeriod       time.Duration
	UploadDir         string
	BaseURL           string
	LogDir            string
}

// Terminal holds the point-of-sale client settings.
type Terminal struct {
	RemoteURL     string
	LocalDBPath   string
	SyncTimeout   time.Duration
	SyncAttempts  int
	ProbeInterval time.Duration
	LogDir        string
}

// LoadEnv reads a .env file if there is one.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.LogWarn("No .env file found, using process environment")
	}
}

func LoadServer() Server {
	return Server{
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		Backend:           getenv("DB_BACKEND", "mysql"),
		DSN:               os.Getenv("DB_DSN"),
		MongoURI:          getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getenv("MONGO_DATABASE", "barpos"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		KafkaBrokers:      splitCSV(os.Getenv("KAFKA_BROKERS")),
		JWTSecret:         getenv("JWT_SECRET", "dev_secret"),
		AllowRegistration: getbool("ALLOW_REGISTRATION", true),
		CORSOrigins:       splitCSV(getenv("CORS_ORIGINS", "http://localhost:5173")),
		TrialPeriod:       time.Duration(getint("TRIAL_DAYS", 14)) * 24 * time.Hour,
		UploadDir:         getenv("UPLOAD_DIR", "./uploads"),
		BaseURL:           getenv("BASE_URL", "http://localhost:8080"),
		LogDir:            os.Getenv("LOG_DIR"),
	}
}

func LoadTerminal() Terminal {
	timeout := getduration("SYNC_TIMEOUT", 5*time.Second)
	// remote calls must stay short
	if timeout <= 0 || timeout >= 10*time.Second {
		logger.LogWarn("SYNC_TIMEOUT %s out of range, using 5s", timeout)
		timeout = 5 * time.Second
	}
	return Terminal{
		RemoteURL:     getenv("REMOTE_URL", "http://localhost:8080"),
		LocalDBPath:   getenv("LOCAL_DB_PATH", "pos.db"),
		SyncTimeout:   timeout,
		SyncAttempts:  getint("SYNC_MAX_ATTEMPTS", 3),
		ProbeInterval: getduration("SYNC_PROBE_INTERVAL", 15*time.Second),
		LogDir:        os.Getenv("LOG_DIR"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger.LogWarn("invalid %s value %q, defaulting to %d", k, v, def)
		return def
	}
	return i
}

func getbool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.LogWarn("invalid %s value %q, defaulting to %t", k, v, def)
		return def
	}
	return b
}

func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.LogWarn("invalid %s value %q, defaulting to %s", k, v, def)
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
