package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	envPrefix                = "STICKYNOTES"
	defaultHTTPAddress       = "127.0.0.1:8080"
	defaultDatabasePath      = "notes.db"
	defaultLogLevel          = "info"
	defaultBackupStorageKey  = "notes_backup"
	defaultBackupInterval    = time.Hour
	defaultBackupAutoEnabled = true
	defaultExportDirectory   = "."

	// BackupStoreSQLite keeps snapshots in the notes database.
	BackupStoreSQLite = "sqlite"
	// BackupStoreMemory keeps snapshots for the lifetime of the process only.
	BackupStoreMemory = "memory"
)

var defaultAllowedOrigins = []string{"http://localhost:8080", "http://127.0.0.1:8080"}

// AppConfig captures runtime configuration for the notes service and CLI.
type AppConfig struct {
	HTTPAddress       string   `validate:"required"`
	AllowedOrigins    []string `validate:"min=1,dive,required,url"`
	DatabasePath      string   `validate:"required"`
	LogLevel          string   `validate:"omitempty,oneof=debug info warn warning error"`
	LogFile           string
	BackupStore       string        `validate:"oneof=sqlite memory"`
	BackupStorageKey  string        `validate:"required"`
	BackupInterval    time.Duration `validate:"min=1s"`
	BackupAutoEnabled bool
	ExportDirectory   string `validate:"required"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("backup.store", BackupStoreSQLite)
	configViper.SetDefault("backup.storage_key", defaultBackupStorageKey)
	configViper.SetDefault("backup.interval", defaultBackupInterval)
	configViper.SetDefault("backup.auto_enabled", defaultBackupAutoEnabled)
	configViper.SetDefault("export.dir", defaultExportDirectory)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       strings.TrimSpace(configViper.GetString("http.address")),
		AllowedOrigins:    splitList(configViper.GetStringSlice("http.allowed_origins")),
		DatabasePath:      strings.TrimSpace(configViper.GetString("database.path")),
		LogLevel:          strings.ToLower(strings.TrimSpace(configViper.GetString("log.level"))),
		LogFile:           strings.TrimSpace(configViper.GetString("log.file")),
		BackupStore:       strings.ToLower(strings.TrimSpace(configViper.GetString("backup.store"))),
		BackupStorageKey:  strings.TrimSpace(configViper.GetString("backup.storage_key")),
		BackupInterval:    configViper.GetDuration("backup.interval"),
		BackupAutoEnabled: configViper.GetBool("backup.auto_enabled"),
		ExportDirectory:   strings.TrimSpace(configViper.GetString("export.dir")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// splitList accepts both repeated values and comma-separated entries.
func splitList(values []string) []string {
	var items []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimRight(strings.TrimSpace(item), "/"); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items
}

func (c AppConfig) validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return err
	}
	first := validationErrors[0]
	return fmt.Errorf("config: %s failed %q validation", configKeyFor(first.StructField()), first.Tag())
}

func configKeyFor(field string) string {
	if index := strings.Index(field, "["); index >= 0 {
		field = field[:index]
	}
	switch field {
	case "HTTPAddress":
		return "http.address"
	case "AllowedOrigins":
		return "http.allowed_origins"
	case "BackupStore":
		return "backup.store"
	case "DatabasePath":
		return "database.path"
	case "LogLevel":
		return "log.level"
	case "BackupStorageKey":
		return "backup.storage_key"
	case "BackupInterval":
		return "backup.interval"
	case "ExportDirectory":
		return "export.dir"
	default:
		return field
	}
}
