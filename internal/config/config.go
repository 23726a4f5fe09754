package config

import (
	"log"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Security SecurityConfig `mapstructure:"security"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type JWTConfig struct {
	AccessSecret        string `mapstructure:"access_secret"`
	RefreshSecret       string `mapstructure:"refresh_secret"`
	AccessExpiryMinutes int    `mapstructure:"access_expiry_minutes"`
	RefreshExpiryHours  int    `mapstructure:"refresh_expiry_hours"`
	Issuer              string `mapstructure:"issuer"`
	Audience            string `mapstructure:"audience"`
	RotateRefresh       bool   `mapstructure:"rotate_refresh"`
}

type SecurityConfig struct {
	BcryptCost         int `mapstructure:"bcrypt_cost"`
	HashWorkers        int `mapstructure:"hash_workers"`
	StoreTimeoutSecs   int `mapstructure:"store_timeout_seconds"`
	AbuseFlagThreshold int `mapstructure:"abuse_flag_threshold"`
	AbuseFlagWindowMin int `mapstructure:"abuse_flag_window_minutes"`
}

type ThrottleConfig struct {
	TokenPerMinute   int `mapstructure:"token_per_minute"`
	RefreshPerMinute int `mapstructure:"refresh_per_minute"`
	GeneralPerMinute int `mapstructure:"general_per_minute"`
}

type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

func LoadConfig() *Config {
	config := &Config{}

	// Set default values
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "3090")
	viper.SetDefault("server.mode", "debug")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "dev")
	viper.SetDefault("database.password", "devpass")
	viper.SetDefault("database.name", "authz")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.enabled", true)

	viper.SetDefault("nats.url", "nats://localhost:4222")
	viper.SetDefault("nats.enabled", false)

	viper.SetDefault("jwt.access_secret", "your-super-secret-jwt-key-change-in-production")
	viper.SetDefault("jwt.refresh_secret", "your-refresh-token-secret-here")
	viper.SetDefault("jwt.access_expiry_minutes", 15)
	viper.SetDefault("jwt.refresh_expiry_hours", 168)
	viper.SetDefault("jwt.issuer", "authz-service")
	viper.SetDefault("jwt.audience", "authz-service")
	viper.SetDefault("jwt.rotate_refresh", false)

	viper.SetDefault("security.bcrypt_cost", 12)
	viper.SetDefault("security.hash_workers", 0) // 0 means 2 x NumCPU
	viper.SetDefault("security.store_timeout_seconds", 5)
	viper.SetDefault("security.abuse_flag_threshold", 10)
	viper.SetDefault("security.abuse_flag_window_minutes", 5)

	viper.SetDefault("throttle.token_per_minute", 10)
	viper.SetDefault("throttle.refresh_per_minute", 30)
	viper.SetDefault("throttle.general_per_minute", 120)

	viper.SetDefault("cache.ttl_seconds", 30)

	// Read from environment variables
	viper.AutomaticEnv()

	// Override with environment variables if they exist
	if host := os.Getenv("SERVER_HOST"); host != "" {
		viper.Set("server.host", host)
	}
	if port := os.Getenv("PORT"); port != "" {
		viper.Set("server.port", port)
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		viper.Set("server.mode", mode)
	}

	// Database environment variables
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		viper.Set("database.host", dbHost)
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		viper.Set("database.port", dbPort)
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		viper.Set("database.user", dbUser)
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		viper.Set("database.password", dbPassword)
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		viper.Set("database.name", dbName)
	}
	if dbSSLMode := os.Getenv("DB_SSLMODE"); dbSSLMode != "" {
		viper.Set("database.sslmode", dbSSLMode)
	}

	// Redis environment variables
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		viper.Set("redis.port", redisPort)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		viper.Set("redis.password", redisPassword)
	}
	if redisEnabled := os.Getenv("REDIS_ENABLED"); redisEnabled == "false" {
		viper.Set("redis.enabled", false)
	}

	// NATS environment variables
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		viper.Set("nats.url", natsURL)
		viper.Set("nats.enabled", true)
	}

	// JWT environment variables
	if accessSecret := os.Getenv("JWT_ACCESS_SECRET"); accessSecret != "" {
		viper.Set("jwt.access_secret", accessSecret)
	}
	if refreshSecret := os.Getenv("JWT_REFRESH_SECRET"); refreshSecret != "" {
		viper.Set("jwt.refresh_secret", refreshSecret)
	}
	if issuer := os.Getenv("JWT_ISSUER"); issuer != "" {
		viper.Set("jwt.issuer", issuer)
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}

	return config
}
