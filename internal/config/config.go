package config

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port string

	JWT       JWTConfig
	Argon2    Argon2Config
	Ledger    LedgerConfig
	Scheduler SchedulerConfig
	Notify    NotifyConfig
	Session   SessionConfig
}

type JWTConfig struct {
	SecretKey   string
	ExpiryHours int
}

type Argon2Config struct {
	Time      uint32
	Memory    uint32
	Threads   uint8
	KeyLength uint32
}

type LedgerConfig struct {
	// TxAttempts bounds retries of a ledger transaction on serialization
	// failures and reference collisions.
	TxAttempts int
}

type SchedulerConfig struct {
	Enabled      bool
	SweepSpec    string
	WarningSpec  string
	WarningDays  []int
	WarningDedup time.Duration
}

type NotifyConfig struct {
	AMQPURL  string
	Exchange string
}

type SessionConfig struct {
	StatusCacheTTL time.Duration
}

var envBindings = map[string]string{
	"server.port":              "PORT",
	"jwt.secret_key":           "JWT_SECRET_KEY",
	"jwt.expiry_hours":         "JWT_EXPIRY_HOURS",
	"argon2.time":              "ARGON2_TIME",
	"argon2.memory":            "ARGON2_MEMORY",
	"argon2.threads":           "ARGON2_THREADS",
	"argon2.key_length":        "ARGON2_KEY_LENGTH",
	"ledger.tx_attempts":       "LEDGER_TX_ATTEMPTS",
	"scheduler.enabled":        "SCHEDULER_ENABLED",
	"scheduler.sweep_spec":     "SCHEDULER_SWEEP_SPEC",
	"scheduler.warning_spec":   "SCHEDULER_WARNING_SPEC",
	"scheduler.warning_days":   "SCHEDULER_WARNING_DAYS",
	"scheduler.warning_dedup":  "SCHEDULER_WARNING_DEDUP",
	"notify.amqp_url":          "NOTIFY_AMQP_URL",
	"notify.exchange":          "NOTIFY_EXCHANGE",
	"session.status_cache_ttl": "SESSION_STATUS_CACHE_TTL",
	"database.host":            "DATABASE_HOST",
	"database.port":            "DATABASE_PORT",
	"database.user":            "DATABASE_USER",
	"database.password":        "DATABASE_PASSWORD",
	"database.name":            "DATABASE_NAME",
	"database.ssl_mode":        "DATABASE_SSL_MODE",
	"redis.host":               "REDIS_HOST",
	"redis.port":               "REDIS_PORT",
	"redis.password":           "REDIS_PASSWORD",
	"redis.db":                 "REDIS_DB",
}

// Load reads .env into the process environment, binds the known keys and
// returns the typed configuration. A missing .env file is not an error.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[CONFIG] No .env file loaded: %v", err)
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}
	setDefaults()

	return &Config{
		Port: viper.GetString("server.port"),
		JWT: JWTConfig{
			SecretKey:   viper.GetString("jwt.secret_key"),
			ExpiryHours: viper.GetInt("jwt.expiry_hours"),
		},
		Argon2: Argon2Config{
			Time:      viper.GetUint32("argon2.time"),
			Memory:    viper.GetUint32("argon2.memory"),
			Threads:   uint8(viper.GetUint("argon2.threads")),
			KeyLength: viper.GetUint32("argon2.key_length"),
		},
		Ledger: LedgerConfig{
			TxAttempts: viper.GetInt("ledger.tx_attempts"),
		},
		Scheduler: SchedulerConfig{
			Enabled:      viper.GetBool("scheduler.enabled"),
			SweepSpec:    viper.GetString("scheduler.sweep_spec"),
			WarningSpec:  viper.GetString("scheduler.warning_spec"),
			WarningDays:  parseDays(viper.GetString("scheduler.warning_days")),
			WarningDedup: viper.GetDuration("scheduler.warning_dedup"),
		},
		Notify: NotifyConfig{
			AMQPURL:  viper.GetString("notify.amqp_url"),
			Exchange: viper.GetString("notify.exchange"),
		},
		Session: SessionConfig{
			StatusCacheTTL: viper.GetDuration("session.status_cache_ttl"),
		},
	}
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("ledger.tx_attempts", 3)
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.sweep_spec", "0 0 * * *")
	viper.SetDefault("scheduler.warning_spec", "0 9 * * *")
	viper.SetDefault("scheduler.warning_days", "7,3,1")
	viper.SetDefault("scheduler.warning_dedup", 48*time.Hour)
	viper.SetDefault("notify.exchange", "notifications")
	viper.SetDefault("session.status_cache_ttl", 5*time.Minute)
}

// parseDays reads a comma separated list such as "7,3,1". Entries that are
// not positive integers are skipped.
func parseDays(raw string) []int {
	var days []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		days = append(days, n)
	}
	return days
}
