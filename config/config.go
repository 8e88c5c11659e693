package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DatabaseName      string `mapstructure:"DATABASE_NAME"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Redis configuration.
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisSessionDB int    `mapstructure:"REDIS_SESSION_DB"`
	RedisDialogDB  int    `mapstructure:"REDIS_DIALOG_DB"`
	RedisArchiveDB int    `mapstructure:"REDIS_ARCHIVE_DB"`

	// Upstream supplier negotiation API.
	SupplierAPIBaseURL   string `mapstructure:"SUPPLIER_API_BASE_URL"`
	SupplierAPITimeoutMs int    `mapstructure:"SUPPLIER_API_TIMEOUT_MS"`

	// Static dialogue pack.
	DialoguePackPath string `mapstructure:"DIALOGUE_PACK_PATH"`

	// Negotiation windows (seconds). Decision and hold windows are wall-clock
	// deadlines, not counters.
	DecisionWindowSec int `mapstructure:"DECISION_WINDOW_SEC"`
	HoldWindowSec     int `mapstructure:"HOLD_WINDOW_SEC"`
}

var AppConfig Config

// LoadConfig initializes Viper to load config values from env, file, or defaults.
func LoadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "tripdeal")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_SESSION_DB", 0)
	viper.SetDefault("REDIS_DIALOG_DB", 1)
	viper.SetDefault("REDIS_ARCHIVE_DB", 2)
	viper.SetDefault("SUPPLIER_API_BASE_URL", "http://localhost:9090")
	viper.SetDefault("SUPPLIER_API_TIMEOUT_MS", 4000)
	viper.SetDefault("DIALOGUE_PACK_PATH", "./config/dialogue.yaml")
	viper.SetDefault("DECISION_WINDOW_SEC", 30)
	viper.SetDefault("HOLD_WINDOW_SEC", 30)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

// GetEnv returns the application environment.
func GetEnv() string {
	return AppConfig.Env
}

// IsProduction checks if the environment is production.
func IsProduction() bool {
	return GetEnv() == "production"
}
