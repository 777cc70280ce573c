//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-dwload.
// Configuration is layered: built-in defaults, then the config file, then
// environment variables (a .env file in the working directory is honored),
// then CLI flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Staging write policies.
const (
	PolicyAppend  = "append"
	PolicyReplace = "replace"
)

// Duplicate natural key policies for dimension loads.
const (
	DuplicateLatest = "latest"
	DuplicateReject = "reject"
)

// Unmatched customer policies for the order fact load.
const (
	UnmatchedNull   = "null"
	UnmatchedReject = "reject"
)

// Config holds all configuration for pgedge-dwload.
type Config struct {
	// Connection is a full PostgreSQL connection string. When set it takes
	// precedence over the individual Database fields.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// DataDir holds customers.csv, products.csv, orders.csv and order_items.csv.
	DataDir string `mapstructure:"data_dir" validate:"required"`

	Database   DatabaseConfig   `mapstructure:"database"`
	Staging    StagingConfig    `mapstructure:"staging"`
	ETL        ETLConfig        `mapstructure:"etl"`
	Validation ValidationConfig `mapstructure:"validation"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Generate   GenerateConfig   `mapstructure:"generate"`
}

// DatabaseConfig holds the individual connection fields.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	// MaxConns is the pool size used by the pipeline. The pipeline is
	// sequential, so one connection is enough.
	MaxConns int32 `mapstructure:"max_conns" validate:"min=1"`
}

// StagingConfig controls the staging loader.
type StagingConfig struct {
	// Policies maps an entity kind to its write policy (append or replace).
	Policies map[string]string `mapstructure:"policies" validate:"dive,keys,oneof=customers products orders order_items,endkeys,oneof=append replace"`

	// BatchSize is the number of rows per COPY chunk.
	BatchSize int `mapstructure:"batch_size" validate:"min=1"`
}

// ETLConfig controls the dimension and fact transformations.
type ETLConfig struct {
	// DuplicatePolicy decides how duplicate natural keys in staging are
	// handled when building dimensions: latest or reject.
	DuplicatePolicy string `mapstructure:"duplicate_policy" validate:"oneof=latest reject"`

	// UnmatchedCustomer decides what happens to orders whose customer is
	// not in the customer dimension: null or reject.
	UnmatchedCustomer string `mapstructure:"unmatched_customer" validate:"oneof=null reject"`

	// AtomicSteps runs each step's truncate and insert in one transaction.
	AtomicSteps bool `mapstructure:"atomic_steps"`
}

// ValidationConfig controls the validation pass.
type ValidationConfig struct {
	// Strict makes a failed validation fail the whole run.
	Strict bool `mapstructure:"strict"`
}

// DashboardConfig holds configuration for the query API.
type DashboardConfig struct {
	Listen   string        `mapstructure:"listen" validate:"required"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	MaxConns int32         `mapstructure:"max_conns" validate:"min=1"`
}

// GenerateConfig holds configuration for sample data synthesis.
type GenerateConfig struct {
	Customers int    `mapstructure:"customers" validate:"min=1"`
	Products  int    `mapstructure:"products" validate:"min=1"`
	Orders    int    `mapstructure:"orders" validate:"min=0"`
	Seed      uint64 `mapstructure:"seed"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"connection":        "DATABASE_URL",
	"data_dir":          "DATA_DIR",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.name":     "DB_NAME",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.sslmode":  "DB_SSLMODE",
}

var validate = validator.New()

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		DataDir:  "data/sample",
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "ecommerce_dw",
			User:     "dataeng",
			Password: "dataeng123",
			SSLMode:  "prefer",
			MaxConns: 1,
		},
		Staging: StagingConfig{
			Policies: map[string]string{
				"customers":   PolicyAppend,
				"products":    PolicyReplace,
				"orders":      PolicyReplace,
				"order_items": PolicyReplace,
			},
			BatchSize: 1000,
		},
		ETL: ETLConfig{
			DuplicatePolicy:   DuplicateLatest,
			UnmatchedCustomer: UnmatchedNull,
			AtomicSteps:       true,
		},
		Dashboard: DashboardConfig{
			Listen:   ":8050",
			CacheTTL: 5 * time.Minute,
			MaxConns: 4,
		},
		Generate: GenerateConfig{
			Customers: 1000,
			Products:  200,
			Orders:    5000,
			Seed:      42,
		},
	}
}

// Load reads configuration from config files and the environment.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-dwload.yaml
// 3. ~/.config/pgedge-dwload/config.yaml
func Load(configFile string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("pgedge-dwload")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-dwload"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// ConnString returns the connection string for the configured database.
func (c *Config) ConnString() string {
	if c.Connection != "" {
		return c.Connection
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Database.User, c.Database.Password),
		Host:   net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port)),
		Path:   "/" + c.Database.Name,
	}
	if c.Database.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.Database.SSLMode}}.Encode()
	}
	return u.String()
}

// String describes the target database without credentials.
func (c *Config) String() string {
	return fmt.Sprintf("<Config DB=%s@%s:%d>", c.Database.Name, c.Database.Host, c.Database.Port)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Connection == "" && (c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "") {
		return fmt.Errorf("connection string or database host, name and user are required")
	}
	return structError(validate.Struct(c))
}

// ValidateRun checks configuration required for the pipeline.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, kind := range []string{"customers", "products", "orders", "order_items"} {
		if _, ok := c.Staging.Policies[kind]; !ok {
			return fmt.Errorf("staging policy for %s is required", kind)
		}
	}
	return nil
}

// structError flattens validator errors into one readable error.
func structError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
