package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from the environment at startup. Token TTLs use the
// compact duration grammar (<integer><unit>, unit in s/m/h/d).
type Config struct {
	Issuer string `env:"IDENTITY_ISSUER" envDefault:"identity"`

	AccessSecret  string `env:"IDENTITY_ACCESS_SECRET,required"`
	RefreshSecret string `env:"IDENTITY_REFRESH_SECRET,required"`
	AccessTTL     string `env:"IDENTITY_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    string `env:"IDENTITY_REFRESH_TTL" envDefault:"7d"`

	DatabaseFile string `env:"IDENTITY_DATABASE_FILE" envDefault:"identity.db"`

	PasswordAlgo   string `env:"IDENTITY_PASSWORD_ALGO" envDefault:"argon2id"`
	BcryptCost     int    `env:"IDENTITY_BCRYPT_COST" envDefault:"12"`
	PasswordPepper string `env:"IDENTITY_PASSWORD_PEPPER"`

	TOTPIssuer     string `env:"IDENTITY_TOTP_ISSUER" envDefault:"identity"`
	InviteTTLHours int    `env:"IDENTITY_INVITE_TTL_HOURS" envDefault:"48"`

	// RedisAddr enables the asynq event queue; empty means events are
	// logged instead of delivered.
	RedisAddr     string `env:"IDENTITY_REDIS_ADDR"`
	RedisPassword string `env:"IDENTITY_REDIS_PASSWORD"`

	Env                  string        `env:"ENV" envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT" envDefault:"json"`
	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

// LoadConfig parses Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
