package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Schema    SchemaConfig   `mapstructure:"schema"`
	Sentry    SentryConfig   `mapstructure:"sentry"`
	JWTSecret string         `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

// SchemaConfig holds the knobs of the tab/field engine.
type SchemaConfig struct {
	// TextMaxLength bounds the VARCHAR used for single-line text fields.
	TextMaxLength int `mapstructure:"text_max_length"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

const DefaultTextMaxLength = 255

// textMaxLength is the live value of schema.text_max_length; Watch updates it.
var textMaxLength atomic.Int64

func init() {
	textMaxLength.Store(DefaultTextMaxLength)
}

// TextMaxLength returns the currently configured VARCHAR bound for text fields.
func TextMaxLength() int {
	return int(textMaxLength.Load())
}

// SetTextMaxLength overrides the VARCHAR bound. Non-positive values are ignored.
func SetTextMaxLength(n int) {
	if n > 0 {
		textMaxLength.Store(int64(n))
	}
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "clienttabs")
	viper.SetDefault("database.password", "clienttabs")
	viper.SetDefault("database.name", "clienttabs")
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("schema.text_max_length", DefaultTextMaxLength)
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("jwt_secret", "changeme-secret")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Println("WARN: app.yaml not found, using defaults and environment")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	SetTextMaxLength(cfg.Schema.TextMaxLength)

	return &cfg, nil
}

// Watch reloads hot-reloadable settings when app.yaml changes on disk.
func Watch() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		n := viper.GetInt("schema.text_max_length")
		SetTextMaxLength(n)
		log.Printf("Config %s changed (schema.text_max_length: %d)", e.Name, TextMaxLength())
	})
	viper.WatchConfig()
}
