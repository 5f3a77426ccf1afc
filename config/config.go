package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env  string `envconfig:"NODE_ENV" default:"development"`
	Port string `envconfig:"PORT" default:"3000"`

	// Database
	DatabaseURI      string `envconfig:"DATABASE" default:"mongodb://localhost:27017"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"natours"`

	// JWT
	JWTSecret          string `envconfig:"JWT_SECRET" required:"true"`
	JWTExpiresIn       string `envconfig:"JWT_EXPIRES_IN" default:"90d"`
	JWTCookieExpiresIn int    `envconfig:"JWT_COOKIE_EXPIRES_IN" default:"90"`

	// Email
	EmailHost     string `envconfig:"EMAIL_HOST"`
	EmailPort     int    `envconfig:"EMAIL_PORT" default:"587"`
	EmailUsername string `envconfig:"EMAIL_USERNAME"`
	EmailPassword string `envconfig:"EMAIL_PASSWORD"`
	EmailFrom     string `envconfig:"EMAIL_FROM" default:"Natours <hello@natours.io>"`

	// Stripe
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	// Infrastructure
	RedisAddr     string   `envconfig:"REDIS_ADDR"`
	RedisPassword string   `envconfig:"REDIS_PASSWORD"`
	NatsURL       string   `envconfig:"NATS_URL"`
	CORSOrigins   []string `envconfig:"CORS_ORIGINS" default:"http://localhost:4200"`

	// Rate limiting on /api
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"100"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1h"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	OTELEnabled bool   `envconfig:"OTEL_ENABLED" default:"false"`
}

// Load reads .env style files when present and then the process environment.
func Load() (*Config, error) {
	// Missing files are fine, the environment may already be populated.
	_ = godotenv.Load(".env", "config.env")

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := ParseExpiry(c.JWTExpiresIn); err != nil {
		return nil, fmt.Errorf("config: JWT_EXPIRES_IN: %w", err)
	}
	return &c, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MongoURI substitutes the <PASSWORD> placeholder of hosted connection strings.
func (c *Config) MongoURI() string {
	return strings.Replace(c.DatabaseURI, "<PASSWORD>", c.DatabasePassword, 1)
}

func (c *Config) JWTTTL() time.Duration {
	d, _ := ParseExpiry(c.JWTExpiresIn)
	return d
}

func (c *Config) CookieTTL() time.Duration {
	return time.Duration(c.JWTCookieExpiresIn) * 24 * time.Hour
}

// ParseExpiry accepts Go durations ("90m", "12h") and day counts ("90d").
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("expiry must be positive, got %q", s)
	}
	return d, nil
}
