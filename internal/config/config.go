package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Proximity ProximityConfig `mapstructure:"proximity" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"required,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains all database-related configuration settings.
// URL is only required when the postgres store driver is selected.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gt=0"`
}

// StoreConfig selects the task store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory postgres"`
}

// SchedulerConfig controls the three reconciliation triggers.
type SchedulerConfig struct {
	// HeartbeatInterval is the foreground reconciliation period.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gt=0"`
	// ProcessingInterval is the earliest-begin hint for the periodic background slot.
	ProcessingInterval time.Duration `mapstructure:"processing_interval" validate:"gt=0"`
	// RefreshInterval is the earliest-begin hint for the opportunistic refresh slot.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
	// ExpirationWindow bounds how long a background invocation may run.
	ExpirationWindow time.Duration `mapstructure:"expiration_window" validate:"gt=0"`
}

// ProximityConfig controls geofence evaluation.
type ProximityConfig struct {
	// CompletionMode is "complete" (retain the record as completed) or
	// "delete" (remove the task on arrival).
	CompletionMode string `mapstructure:"completion_mode" validate:"required,oneof=complete delete"`
}
