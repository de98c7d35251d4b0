/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the funds-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                     string `mapstructure:"SERVER_PORT"`
	DatabaseURL                    string `mapstructure:"DATABASE_URL"`
	RedisURL                       string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix           string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                    string `mapstructure:"RABBITMQ_URL"`
	JWTSecret                      string `mapstructure:"JWT_SECRET"`
	BankCode                       string `mapstructure:"BANK_CODE"`
	BankPrivateKeyPath             string `mapstructure:"BANK_PRIVATE_KEY_PATH"`
	TransferFee                    string `mapstructure:"TRANSFER_FEE"`
	OTPTTLMinutes                  int    `mapstructure:"OTP_TTL_MINUTES"`
	OTPConfirmRateLimitPerMinute   int    `mapstructure:"OTP_CONFIRM_RATE_LIMIT_PER_MINUTE"`
	InterbankRequestTimeoutSeconds int    `mapstructure:"INTERBANK_REQUEST_TIMEOUT_SECONDS"`
	ReconcileSchedule              string `mapstructure:"RECONCILE_SCHEDULE"`
	ReconcilePendingAgeMinutes     int    `mapstructure:"RECONCILE_PENDING_AGE_MINUTES"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "meridian:rate_limit")
	viper.SetDefault("TRANSFER_FEE", "5000")
	viper.SetDefault("OTP_TTL_MINUTES", 5)
	viper.SetDefault("OTP_CONFIRM_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("INTERBANK_REQUEST_TIMEOUT_SECONDS", 10)
	viper.SetDefault("RECONCILE_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("RECONCILE_PENDING_AGE_MINUTES", 15)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("BANK_CODE")
	_ = viper.BindEnv("BANK_PRIVATE_KEY_PATH")
	_ = viper.BindEnv("TRANSFER_FEE")
	_ = viper.BindEnv("OTP_TTL_MINUTES")
	_ = viper.BindEnv("OTP_CONFIRM_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("INTERBANK_REQUEST_TIMEOUT_SECONDS")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_PENDING_AGE_MINUTES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "meridian:rate_limit"
	}
	config.TransferFee = strings.TrimSpace(config.TransferFee)
	if config.TransferFee == "" {
		config.TransferFee = "5000"
	}

	if config.OTPTTLMinutes <= 0 {
		config.OTPTTLMinutes = 5
	}
	if config.OTPConfirmRateLimitPerMinute <= 0 {
		config.OTPConfirmRateLimitPerMinute = 10
	}
	if config.InterbankRequestTimeoutSeconds <= 0 {
		config.InterbankRequestTimeoutSeconds = 10
	}
	if strings.TrimSpace(config.ReconcileSchedule) == "" {
		config.ReconcileSchedule = "*/5 * * * *"
	}
	if config.ReconcilePendingAgeMinutes <= 0 {
		config.ReconcilePendingAgeMinutes = 15
	}

	return
}
