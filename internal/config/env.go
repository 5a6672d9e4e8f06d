package config

import (
	"github.com/spf13/viper"
)

// Env holds the environment-provided defaults for command-line flags.
type Env struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	Port        string `mapstructure:"PORT"`
	Profile     string `mapstructure:"INTAKE_PROFILE"`
}

// LoadEnv reads the process environment and an optional .env file in the
// working directory. Missing or malformed .env files are ignored.
func LoadEnv() Env {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "3001")

	v.BindEnv("DATABASE_URL")
	v.BindEnv("STORE_DRIVER")
	v.BindEnv("LOG_FORMAT")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("PORT")
	v.BindEnv("INTAKE_PROFILE")

	_ = v.ReadInConfig()

	var env Env
	if err := v.Unmarshal(&env); err != nil {
		return Env{StoreDriver: DriverPostgres, LogFormat: "text", LogLevel: "info", Port: "3001"}
	}
	return env
}
