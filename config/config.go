package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	StoreDriver    string
	MongoURI       string
	MongoDatabase  string
	JWTSecret      string
	JWTTTL         time.Duration
	AdminSignupKey string
	CORSOrigin     string

	RedisAddress  string
	RedisPassword string

	ComplaintRateLimit       int
	ComplaintRateLimitPrefix string
	ComplaintRateWindow      time.Duration
	AnalyticsCacheTTL        time.Duration

	StrictTaskTransitions bool
	SeedDemo              bool
	RequestTimeout        time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "5000")
	v.SetDefault("GO_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("MONGODB_DATABASE", "civicconnect")
	v.SetDefault("JWT_TTL", "168h")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("COMPLAINT_RATE_LIMIT", 20)
	v.SetDefault("COMPLAINT_RATE_LIMIT_PREFIX", "complaint_limit")
	v.SetDefault("COMPLAINT_RATE_WINDOW", "24h")
	v.SetDefault("ANALYTICS_CACHE_TTL", "60s")
	v.SetDefault("STRICT_TASK_TRANSITIONS", false)
	v.SetDefault("SEED_DEMO", false)
	v.SetDefault("REQUEST_TIMEOUT", "10s")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return FromViper(viper.New())
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port:                     v.GetString("PORT"),
		Env:                      v.GetString("GO_ENV"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		StoreDriver:              strings.ToLower(v.GetString("STORE_DRIVER")),
		MongoURI:                 v.GetString("MONGODB_URI"),
		MongoDatabase:            v.GetString("MONGODB_DATABASE"),
		JWTSecret:                v.GetString("JWT_SECRET"),
		JWTTTL:                   v.GetDuration("JWT_TTL"),
		AdminSignupKey:           v.GetString("ADMIN_SIGNUP_KEY"),
		CORSOrigin:               v.GetString("CORS_ORIGIN"),
		RedisAddress:             v.GetString("REDIS_ADDRESS"),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		ComplaintRateLimit:       v.GetInt("COMPLAINT_RATE_LIMIT"),
		ComplaintRateLimitPrefix: v.GetString("COMPLAINT_RATE_LIMIT_PREFIX"),
		ComplaintRateWindow:      v.GetDuration("COMPLAINT_RATE_WINDOW"),
		AnalyticsCacheTTL:        v.GetDuration("ANALYTICS_CACHE_TTL"),
		StrictTaskTransitions:    v.GetBool("STRICT_TASK_TRANSITIONS"),
		SeedDemo:                 v.GetBool("SEED_DEMO"),
		RequestTimeout:           v.GetDuration("REQUEST_TIMEOUT"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("please define the JWT_SECRET environment variable")
	}
	switch c.StoreDriver {
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("please define the MONGODB_URI environment variable")
		}
	case "memory":
	default:
		return errors.New("STORE_DRIVER must be mongo or memory")
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
