package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/vetiver-inc/vetiver/internal/shared/config"
	"github.com/vetiver-inc/vetiver/internal/shared/utils"
)

type Config struct {
	Server       sharedConfig.ServerConfig       `mapstructure:"server" yaml:"server"`
	Database     sharedConfig.DatabaseConfig     `mapstructure:"database" yaml:"database"`
	Logger       sharedConfig.LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Redis        sharedConfig.RedisConfig        `mapstructure:"redis" yaml:"redis"`
	Collection   sharedConfig.CollectionConfig   `mapstructure:"collection" yaml:"collection"`
	Reconcile    sharedConfig.ReconcileConfig    `mapstructure:"reconcile" yaml:"reconcile"`
	Backup       sharedConfig.BackupConfig       `mapstructure:"backup" yaml:"backup"`
	Supervisor   sharedConfig.SupervisorConfig   `mapstructure:"supervisor" yaml:"supervisor"`
	Master       sharedConfig.MasterConfig       `mapstructure:"master" yaml:"master"`
	Email        sharedConfig.EmailConfig        `mapstructure:"email" yaml:"email"`
	Notification sharedConfig.NotificationConfig `mapstructure:"notification" yaml:"notification"`
	Timezone     string                          `mapstructure:"timezone" yaml:"timezone"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables
func Load(env string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	viper.SetEnvPrefix("VETIVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine: defaults plus env cover every key.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Allow env parameter to override server mode if provided
	if env != "" && env != "default" {
		viper.Set("server.mode", env)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := utils.ValidateStruct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// Set replaces the loaded configuration. Intended for tests.
func Set(cfg *Config) {
	appConfigMu.Lock()
	appConfig = cfg
	appConfigMu.Unlock()
}

// Default returns a Config populated with the same defaults Load applies.
// Used by `config init` to render a starter config file.
func Default() *Config {
	v := viper.New()
	setDefaultsOn(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		// Defaults are static; a decode failure is a programming error.
		panic(fmt.Sprintf("config: failed to build defaults: %v", err))
	}
	return &config
}

// setDefaults sets default configuration values
func setDefaults() {
	setDefaultsOn(viper.GetViper())
}

func setDefaultsOn(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")

	// Database defaults
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "vetiver_dev")
	v.SetDefault("database.path", "vetiver.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Collection defaults
	v.SetDefault("collection.user_interval_seconds", 30)
	v.SetDefault("collection.outbound_interval_seconds", 20)
	v.SetDefault("collection.user_timeout_seconds", 120)
	v.SetDefault("collection.outbound_timeout_seconds", 15)
	v.SetDefault("collection.workers", 10)

	// Reconcile defaults
	v.SetDefault("reconcile.interval_seconds", 60)
	v.SetDefault("reconcile.max_items_per_run", 2000)
	v.SetDefault("reconcile.retention_days", 90)

	// Backup defaults
	v.SetDefault("backup.dir", "./data/pending")

	// Supervisor defaults
	v.SetDefault("supervisor.review_interval_seconds", 60)
	v.SetDefault("supervisor.connect_timeout_seconds", 30)
	v.SetDefault("supervisor.backoff_initial_seconds", 5)
	v.SetDefault("supervisor.backoff_max_seconds", 300)
	v.SetDefault("supervisor.minimum_engine_version", "")
	v.SetDefault("supervisor.config_dir", "./configs/engine")

	// Master engine defaults
	v.SetDefault("master.binary_path", "")
	v.SetDefault("master.config_path", "")
	v.SetDefault("master.api_host", "127.0.0.1")
	v.SetDefault("master.api_port", 8443)
	v.SetDefault("master.api_token", "")
	v.SetDefault("master.log_buffer_lines", 200)
	v.SetDefault("master.coefficient", 1.0)

	// Email defaults
	v.SetDefault("email.smtp_host", "localhost")
	v.SetDefault("email.smtp_port", 1025)
	v.SetDefault("email.smtp_user", "")
	v.SetDefault("email.smtp_password", "")
	v.SetDefault("email.from_address", "noreply@vetiver.local")
	v.SetDefault("email.from_name", "Vetiver")

	// Notification defaults
	v.SetDefault("notification.mode", "log")
	v.SetDefault("notification.recipients", []string{})

	// Business timezone for hour-bucket boundaries
	v.SetDefault("timezone", "Asia/Shanghai")
}
