package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	AppPort         string
	AppEnv          string
	AppBaseURL      string
	StoreDriver     string
	DBDSN           string
	JWTSecret       string
	JWTExpiresMin   int
	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	FrontendBaseURL string
	CORSOrigins     string
	UploadDir       string
	AuthRateLimit   int

	RedisAddr     string
	RedisPassword string

	Location         *time.Location
	AccrualCron      string
	AccrualBatchSize int

	TxMaxAttempts int
	TxRetryBase   time.Duration
	OpTimeout     time.Duration

	OutboxInterval    time.Duration
	OutboxMaxAttempts int

	TripayAPIKey       string
	TripayPrivateKey   string
	TripayMerchantCode string
	TripayProduction   bool

	AdminEmail    string
	AdminPassword string
}

func (c Config) Production() bool { return c.AppEnv == "production" }

func Load() Config {
	driver := strings.ToLower(get("STORE_DRIVER", "postgres"))
	dsn := get("DB_DSN", "")
	if driver == "postgres" {
		dsn = must("DB_DSN")
	}

	loc, err := time.LoadLocation(get("TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		panic("invalid TIMEZONE: " + err.Error())
	}

	return Config{
		AppPort:         get("APP_PORT", "8080"),
		AppEnv:          get("APP_ENV", "development"),
		AppBaseURL:      get("APP_BASE_URL", "http://localhost:8080"),
		StoreDriver:     driver,
		DBDSN:           dsn,
		JWTSecret:       must("JWT_SECRET"),
		JWTExpiresMin:   getInt("JWT_EXPIRES_MIN", 10080),
		GoogleClientID:  get("GOOGLE_CLIENT_ID", ""),
		GoogleSecret:    get("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirect:  get("GOOGLE_REDIRECT_URL", ""),
		FrontendBaseURL: get("FRONTEND_BASE_URL", "http://localhost:3000"),
		CORSOrigins:     get("CORS_ORIGINS", "http://127.0.0.1:3000, http://localhost:3000"),
		UploadDir:       get("UPLOAD_DIR", "./uploads"),
		AuthRateLimit:   getInt("AUTH_RATE_LIMIT", 20),

		RedisAddr:     get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: get("REDIS_PASSWORD", ""),

		Location:         loc,
		AccrualCron:      get("ACCRUAL_CRON", "5 0 * * *"),
		AccrualBatchSize: getInt("ACCRUAL_BATCH_SIZE", 100),

		TxMaxAttempts: getInt("TX_MAX_ATTEMPTS", 5),
		TxRetryBase:   time.Duration(getInt("TX_RETRY_BASE_MS", 20)) * time.Millisecond,
		OpTimeout:     time.Duration(getInt("OP_TIMEOUT_MS", 10000)) * time.Millisecond,

		OutboxInterval:    time.Duration(max(getInt("OUTBOX_INTERVAL_SEC", 5), 1)) * time.Second,
		OutboxMaxAttempts: getInt("OUTBOX_MAX_ATTEMPTS", 8),

		TripayAPIKey:       get("TRIPAY_API_KEY", ""),
		TripayPrivateKey:   get("TRIPAY_PRIVATE_KEY", ""),
		TripayMerchantCode: get("TRIPAY_MERCHANT_CODE", ""),
		TripayProduction:   get("TRIPAY_ENV", "") == "production",

		AdminEmail:    get("ADMIN_EMAIL", ""),
		AdminPassword: get("ADMIN_PASSWORD", ""),
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getInt(k string, def int) int {
	v, err := strconv.Atoi(get(k, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}
