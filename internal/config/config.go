// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

// Executor backends.
const (
	ExecutorSQLite   = "sqlite"
	ExecutorPostgres = "postgres"
)

// Config holds the service configuration.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	DatabasePath    string        `env:"DATABASE_PATH" envDefault:"tenantdb.db"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"` // json | console
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	RegistryPath string        `env:"REGISTRY_PATH" envDefault:"./data/registry.yaml"`
	StepTimeout  time.Duration `env:"PROVISION_STEP_TIMEOUT" envDefault:"5m"`
	EventWorkers int           `env:"EVENT_WORKERS" envDefault:"2"`

	Executor         string `env:"TENANT_EXECUTOR" envDefault:"sqlite"` // sqlite | postgres
	TenantDataDir    string `env:"TENANT_DATA_DIR" envDefault:"./data/tenants"`
	AdminDatabaseURL string `env:"ADMIN_DATABASE_URL"` // required when TENANT_EXECUTOR=postgres
	AdminMaxConns    int32  `env:"ADMIN_DB_MAX_CONNS" envDefault:"4"`

	Template TemplateConfig `envPrefix:"TENANT_DB_"`
}

// TemplateConfig is the connection template shared by tenant databases.
type TemplateConfig struct {
	Driver      string            `env:"DRIVER"`
	Host        string            `env:"HOST"`
	Port        int               `env:"PORT"`
	User        string            `env:"USER"`
	PasswordRef string            `env:"PASSWORD_REF" envDefault:"env:TENANT_DB_PASSWORD"`
	Charset     string            `env:"CHARSET"`
	Options     map[string]string `env:"OPTIONS"` // key:value,key:value
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Executor {
	case ExecutorSQLite:
		if c.TenantDataDir == "" {
			errs = append(errs, errors.New("TENANT_DATA_DIR is required for the sqlite executor"))
		}
	case ExecutorPostgres:
		if c.AdminDatabaseURL == "" {
			errs = append(errs, errors.New("ADMIN_DATABASE_URL is required for the postgres executor"))
		}
	default:
		errs = append(errs, fmt.Errorf("TENANT_EXECUTOR %q is not one of sqlite, postgres", c.Executor))
	}
	if c.StepTimeout <= 0 {
		errs = append(errs, errors.New("PROVISION_STEP_TIMEOUT must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.RegistryPath == "" {
		errs = append(errs, errors.New("REGISTRY_PATH is required"))
	}
	if c.Template.Port < 0 || c.Template.Port > 65535 {
		errs = append(errs, fmt.Errorf("TENANT_DB_PORT %d is out of range", c.Template.Port))
	}
	return errors.Join(errs...)
}

// ConnectionTemplate returns the template written into every registry
// entry. The driver defaults to the executor backend, and SQLite entries
// record the data directory holding the tenant files.
func (c Config) ConnectionTemplate() domain.ConnectionTemplate {
	t := domain.ConnectionTemplate{
		Driver:      c.Template.Driver,
		Host:        c.Template.Host,
		Port:        c.Template.Port,
		User:        c.Template.User,
		PasswordRef: c.Template.PasswordRef,
		Charset:     c.Template.Charset,
	}
	if t.Driver == "" {
		t.Driver = c.Executor
	}

	if len(c.Template.Options) > 0 || c.Executor == ExecutorSQLite {
		t.Options = make(map[string]string, len(c.Template.Options)+1)
		for k, v := range c.Template.Options {
			t.Options[k] = v
		}
	}
	if c.Executor == ExecutorSQLite {
		if _, ok := t.Options["data_dir"]; !ok {
			t.Options["data_dir"] = c.TenantDataDir
		}
	}
	return t
}
