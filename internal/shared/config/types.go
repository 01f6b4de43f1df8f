package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	Mode string `mapstructure:"mode" yaml:"mode" validate:"omitempty,oneof=debug release test"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" yaml:"driver" validate:"oneof=mysql sqlite"`
	Host            string `mapstructure:"host" yaml:"host"`
	Port            int    `mapstructure:"port" yaml:"port"`
	Username        string `mapstructure:"username" yaml:"username"`
	Password        string `mapstructure:"password" yaml:"password"`
	Database        string `mapstructure:"database" yaml:"database"`
	Path            string `mapstructure:"path" yaml:"path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

func (d *DatabaseConfig) IsMySQL() bool {
	return d.Driver != "sqlite"
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CollectionConfig controls the periodic usage-harvesting jobs.
type CollectionConfig struct {
	UserIntervalSeconds     int `mapstructure:"user_interval_seconds" yaml:"user_interval_seconds" validate:"min=1"`
	OutboundIntervalSeconds int `mapstructure:"outbound_interval_seconds" yaml:"outbound_interval_seconds" validate:"min=1"`
	UserTimeoutSeconds      int `mapstructure:"user_timeout_seconds" yaml:"user_timeout_seconds" validate:"min=1"`
	OutboundTimeoutSeconds  int `mapstructure:"outbound_timeout_seconds" yaml:"outbound_timeout_seconds" validate:"min=1"`
	Workers                 int `mapstructure:"workers" yaml:"workers" validate:"min=1"`
}

func (c *CollectionConfig) UserInterval() time.Duration {
	return time.Duration(c.UserIntervalSeconds) * time.Second
}

func (c *CollectionConfig) OutboundInterval() time.Duration {
	return time.Duration(c.OutboundIntervalSeconds) * time.Second
}

func (c *CollectionConfig) UserTimeout() time.Duration {
	return time.Duration(c.UserTimeoutSeconds) * time.Second
}

func (c *CollectionConfig) OutboundTimeout() time.Duration {
	return time.Duration(c.OutboundTimeoutSeconds) * time.Second
}

// ReconcileConfig controls the cache-to-store reconciliation job.
type ReconcileConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds" yaml:"interval_seconds" validate:"min=1"`
	MaxItemsPerRun  int `mapstructure:"max_items_per_run" yaml:"max_items_per_run" validate:"min=1"`
	RetentionDays   int `mapstructure:"retention_days" yaml:"retention_days"`
}

func (r *ReconcileConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// BackupConfig locates the on-disk pending-batch mirrors.
type BackupConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir" validate:"required"`
}

// SupervisorConfig controls node connection management.
type SupervisorConfig struct {
	ReviewIntervalSeconds int    `mapstructure:"review_interval_seconds" yaml:"review_interval_seconds" validate:"min=1"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds" yaml:"connect_timeout_seconds" validate:"min=1"`
	BackoffInitialSeconds int    `mapstructure:"backoff_initial_seconds" yaml:"backoff_initial_seconds"`
	BackoffMaxSeconds     int    `mapstructure:"backoff_max_seconds" yaml:"backoff_max_seconds"`
	MinimumEngineVersion  string `mapstructure:"minimum_engine_version" yaml:"minimum_engine_version"`
	ConfigDir             string `mapstructure:"config_dir" yaml:"config_dir"`
}

func (s *SupervisorConfig) ReviewInterval() time.Duration {
	return time.Duration(s.ReviewIntervalSeconds) * time.Second
}

func (s *SupervisorConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutSeconds) * time.Second
}

func (s *SupervisorConfig) BackoffInitial() time.Duration {
	return time.Duration(s.BackoffInitialSeconds) * time.Second
}

func (s *SupervisorConfig) BackoffMax() time.Duration {
	return time.Duration(s.BackoffMaxSeconds) * time.Second
}

// MasterConfig describes the locally run proxy engine.
type MasterConfig struct {
	BinaryPath     string  `mapstructure:"binary_path" yaml:"binary_path"`
	ConfigPath     string  `mapstructure:"config_path" yaml:"config_path"`
	APIHost        string  `mapstructure:"api_host" yaml:"api_host"`
	APIPort        int     `mapstructure:"api_port" yaml:"api_port"`
	APIToken       string  `mapstructure:"api_token" yaml:"api_token"`
	LogBufferLines int     `mapstructure:"log_buffer_lines" yaml:"log_buffer_lines"`
	Coefficient    float64 `mapstructure:"coefficient" yaml:"coefficient"`
}

type EmailConfig struct {
	SMTPHost     string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port" yaml:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user" yaml:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password" yaml:"smtp_password"`
	FromAddress  string `mapstructure:"from_address" yaml:"from_address"`
	FromName     string `mapstructure:"from_name" yaml:"from_name"`
}

// NotificationConfig selects how status-change events reach operators.
type NotificationConfig struct {
	Mode       string   `mapstructure:"mode" yaml:"mode" validate:"omitempty,oneof=log email"`
	Recipients []string `mapstructure:"recipients" yaml:"recipients"`
}
