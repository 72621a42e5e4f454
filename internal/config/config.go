package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	AuthMode    string   `mapstructure:"AUTH_MODE"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	DatasetBackend   string `mapstructure:"DATASET_BACKEND"`
	ICD11DatasetPath string `mapstructure:"ICD11_DATASET_PATH"`
	AyurvedaCSVPath  string `mapstructure:"AYURVEDA_CSV_PATH"`
	UnaniCSVPath     string `mapstructure:"UNANI_CSV_PATH"`
	SiddhaCSVPath    string `mapstructure:"SIDDHA_CSV_PATH"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AutocompleteMinScore int `mapstructure:"AUTOCOMPLETE_MIN_SCORE"`
	AutocompleteLimit    int `mapstructure:"AUTOCOMPLETE_LIMIT"`
	MappingMinScore      int `mapstructure:"MAPPING_MIN_SCORE"`

	ReloadCron string `mapstructure:"RELOAD_CRON"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DATASET_BACKEND", "files")
	v.SetDefault("ICD11_DATASET_PATH", "./data/icd11_tm2.json")
	v.SetDefault("AYURVEDA_CSV_PATH", "./data/ayurveda.csv")
	v.SetDefault("UNANI_CSV_PATH", "./data/unani.csv")
	v.SetDefault("SIDDHA_CSV_PATH", "./data/siddha.csv")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTOCOMPLETE_MIN_SCORE", 60)
	v.SetDefault("AUTOCOMPLETE_LIMIT", 10)
	v.SetDefault("MAPPING_MIN_SCORE", 80)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("DATASET_BACKEND")
	v.BindEnv("ICD11_DATASET_PATH")
	v.BindEnv("AYURVEDA_CSV_PATH")
	v.BindEnv("UNANI_CSV_PATH")
	v.BindEnv("SIDDHA_CSV_PATH")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTOCOMPLETE_MIN_SCORE")
	v.BindEnv("AUTOCOMPLETE_LIMIT")
	v.BindEnv("MAPPING_MIN_SCORE")
	v.BindEnv("RELOAD_CRON")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure JWT_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise, the mode is inferred:
//   - ENV=development → "development" (no auth, all requests get admin)
//   - Otherwise       → "jwt" (HS256 bearer tokens signed with JWT_SECRET)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Validate checks that the configuration is safe to run. Outside
// development mode JWT_SECRET must be set so that real authentication is
// enforced, and the dataset backend must be fully specified.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "jwt" {
		if c.JWTSecret == "" {
			return fmt.Errorf(
				"JWT_SECRET must be set when AUTH_MODE is \"jwt\" (current ENV=%q). "+
					"Refusing to start without authentication configuration", c.Env)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
		}
	}

	switch c.DatasetBackend {
	case "files":
		if c.ICD11DatasetPath == "" {
			return fmt.Errorf("ICD11_DATASET_PATH is required with DATASET_BACKEND=files")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required with DATASET_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("DATASET_BACKEND must be \"files\" or \"postgres\", got %q", c.DatasetBackend)
	}

	if c.AutocompleteMinScore < 0 || c.AutocompleteMinScore > 100 {
		return fmt.Errorf("AUTOCOMPLETE_MIN_SCORE must be between 0 and 100, got %d", c.AutocompleteMinScore)
	}
	if c.MappingMinScore < 0 || c.MappingMinScore > 100 {
		return fmt.Errorf("MAPPING_MIN_SCORE must be between 0 and 100, got %d", c.MappingMinScore)
	}
	if c.AutocompleteLimit < 1 {
		return fmt.Errorf("AUTOCOMPLETE_LIMIT must be at least 1, got %d", c.AutocompleteLimit)
	}

	return nil
}
