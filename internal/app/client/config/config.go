package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"offsync/internal/domain/replication"
)

const (
	defaultServerAddress = "localhost:8080"
	defaultLogLevel      = "info"
	defaultEnv           = "local"
	defaultConfigDir     = ".offsync"
	defaultRemoteDriver  = DriverHTTP

	DriverHTTP     = "http"
	DriverPostgres = "postgres"
)

type Config struct {
	Env               string `mapstructure:"app_env"`
	ServerAddress     string `mapstructure:"server_address"`
	LogLevel          string `mapstructure:"log_level"`
	ConfigDir         string `mapstructure:"config_dir"`
	DataPath          string `mapstructure:"data_path"`
	RemoteDriver      string `mapstructure:"remote_driver"`
	RemoteDatabaseURI string `mapstructure:"remote_database_uri"`
	SyncInterval      int    `mapstructure:"sync_interval_seconds"`
	SyncBatchSize     int    `mapstructure:"sync_batch_size"`
	ProbeTimeout      int    `mapstructure:"probe_timeout_seconds"`
	RemoteTimeout     int    `mapstructure:"remote_timeout_seconds"`
	SyncWaitInFlight  bool   `mapstructure:"sync_wait_in_flight"`
	EnableTLS         bool   `mapstructure:"enable_tls"`
}

// Load читает конфигурацию через v: переменные окружения, .env и файл,
// если он уже подключен к v (флаг --config).
func Load(v *viper.Viper) (*Config, error) {
	// Определяем путь к .env файлу (относительно места запуска)
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}

	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Ошибка загрузки .env файла: %v\n", err)
		}
	}

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", defaultEnv)
	v.SetDefault("SERVER_ADDRESS", defaultServerAddress)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("CONFIG_DIR", defaultConfigDir)
	v.SetDefault("REMOTE_DRIVER", defaultRemoteDriver)
	v.SetDefault("SYNC_INTERVAL_SECONDS", 30)
	v.SetDefault("SYNC_BATCH_SIZE", 100)
	v.SetDefault("PROBE_TIMEOUT_SECONDS", 5)
	v.SetDefault("REMOTE_TIMEOUT_SECONDS", 30)
	v.SetDefault("SYNC_WAIT_IN_FLIGHT", false)
	v.SetDefault("ENABLE_TLS", false)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	configDir := v.GetString("CONFIG_DIR")
	if configDir == defaultConfigDir {
		configDir = filepath.Join(homeDir, configDir)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("создание директории конфигурации: %w", err)
	}

	dataPath := v.GetString("DATA_PATH")
	if dataPath == "" {
		dataPath = filepath.Join(configDir, "local.db")
	}

	config := &Config{
		Env:               v.GetString("APP_ENV"),
		ServerAddress:     v.GetString("SERVER_ADDRESS"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		ConfigDir:         configDir,
		DataPath:          dataPath,
		RemoteDriver:      v.GetString("REMOTE_DRIVER"),
		RemoteDatabaseURI: v.GetString("REMOTE_DATABASE_URI"),
		SyncInterval:      v.GetInt("SYNC_INTERVAL_SECONDS"),
		SyncBatchSize:     v.GetInt("SYNC_BATCH_SIZE"),
		ProbeTimeout:      v.GetInt("PROBE_TIMEOUT_SECONDS"),
		RemoteTimeout:     v.GetInt("REMOTE_TIMEOUT_SECONDS"),
		SyncWaitInFlight:  v.GetBool("SYNC_WAIT_IN_FLIGHT"),
		EnableTLS:         v.GetBool("ENABLE_TLS"),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.RemoteDriver {
	case DriverHTTP:
		if c.ServerAddress == "" {
			return fmt.Errorf("server_address не может быть пустым")
		}
	case DriverPostgres:
		if c.RemoteDatabaseURI == "" {
			return fmt.Errorf("remote_database_uri обязателен для драйвера postgres")
		}
	default:
		return fmt.Errorf("неизвестный remote_driver: %q", c.RemoteDriver)
	}
	if c.SyncBatchSize < 1 {
		return fmt.Errorf("sync_batch_size должен быть не меньше 1")
	}
	return nil
}

// Replication параметры движка синхронизации
func (c *Config) Replication() *replication.Config {
	return &replication.Config{
		BatchSize:     c.SyncBatchSize,
		ProbeTimeout:  time.Duration(c.ProbeTimeout) * time.Second,
		RemoteTimeout: time.Duration(c.RemoteTimeout) * time.Second,
		WaitInFlight:  c.SyncWaitInFlight,
	}
}

// Interval период автоматической синхронизации
func (c *Config) Interval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}
