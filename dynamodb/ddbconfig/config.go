// Package ddbconfig loads toolkit settings from ddbtk.yaml and builds the
// wire client they describe.
package ddbconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbadapter"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbbatch"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbmw"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbpage"
	"github.com/acksell/dynamodb-toolkit/dynamodb/table"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// FileName is the config file searched for by [Load].
const FileName = "ddbtk.yaml"

type Config struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
	// Endpoint overrides the service URL, e.g. for DynamoDB Local.
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	Table     string `yaml:"table"`
	WireStyle string `yaml:"wireStyle" validate:"omitempty,oneof=auto raw marshalled"`

	Backoff    BackoffConfig    `yaml:"backoff"`
	Pagination PaginationConfig `yaml:"pagination"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Local      LocalConfig      `yaml:"local"`

	// Tables are created in the local store.
	Tables []table.TableDefinition `yaml:"tables" validate:"dive"`
}

type BackoffConfig struct {
	Base   time.Duration `yaml:"base" validate:"gt=0"`
	Cap    time.Duration `yaml:"cap" validate:"gtefield=Base"`
	Finite bool          `yaml:"finite"`
}

type PaginationConfig struct {
	MinLimit int  `yaml:"minLimit" validate:"gte=1,lte=100"`
	MaxLimit int  `yaml:"maxLimit" validate:"gtefield=MinLimit"`
	Total    bool `yaml:"total"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"required_if=Enabled true"`
}

type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"maxRequests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failureThreshold" validate:"gte=0,lte=1"`
	MinRequests      uint32        `yaml:"minRequests"`
}

type LocalConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path is the badger directory. Empty keeps data in memory.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"inMemory"`
}

func Default() Config {
	b := ddbmw.DefaultBreakerConfig("dynamodb")
	return Config{
		WireStyle: "auto",
		Backoff: BackoffConfig{
			Base: ddbbatch.DefaultBackoffBase,
			Cap:  ddbbatch.DefaultBackoffCap,
		},
		Pagination: PaginationConfig{
			MinLimit: ddbpage.DefaultMinLimit,
			MaxLimit: ddbpage.DefaultMaxLimit,
			Total:    true,
		},
		Log:     LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Namespace: "ddbtk"},
		Breaker: BreakerConfig{
			MaxRequests:      b.MaxRequests,
			Interval:         b.Interval,
			Timeout:          b.Timeout,
			FailureThreshold: b.FailureThreshold,
			MinRequests:      b.MinRequests,
		},
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, t := range c.Tables {
		defs := []table.PrimaryKeyDefinition{t.KeyDefinitions}
		for _, g := range t.GSIs {
			defs = append(defs, g.KeyDefinitions)
		}
		for _, d := range defs {
			if d.SortKey.Name == "" {
				continue
			}
			if err := validate.Struct(d.SortKey); err != nil {
				return fmt.Errorf("invalid config: table %s sort key: %w", t.Name, err)
			}
		}
	}
	return nil
}

// Parse overlays YAML onto the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Load reads the nearest ddbtk.yaml from the working directory upwards,
// falling back to the defaults when there is none.
func Load() (Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}
	path := Find(dir)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// Find searches for ddbtk.yaml walking up from dir. Returns "" if not found.
func Find(dir string) string {
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (c Config) BatchBackoff() ddbbatch.Backoff {
	return ddbbatch.NewBackoff(
		ddbbatch.WithBase(c.Backoff.Base),
		ddbbatch.WithCap(c.Backoff.Cap),
		ddbbatch.Finite(c.Backoff.Finite))
}

func (c Config) PagerOptions() []ddbpage.Option {
	return []ddbpage.Option{
		ddbpage.WithMinLimit(c.Pagination.MinLimit),
		ddbpage.WithMaxLimit(c.Pagination.MaxLimit),
		ddbpage.WithTotal(c.Pagination.Total),
	}
}

func (c Config) Style() (ddbadapter.WireStyle, error) {
	return ddbadapter.ParseWireStyle(c.WireStyle)
}

func (c Config) BreakerSettings() ddbmw.BreakerConfig {
	return ddbmw.BreakerConfig{
		Name:             "dynamodb",
		MaxRequests:      c.Breaker.MaxRequests,
		Interval:         c.Breaker.Interval,
		Timeout:          c.Breaker.Timeout,
		FailureThreshold: c.Breaker.FailureThreshold,
		MinRequests:      c.Breaker.MinRequests,
	}
}

// TableDefinition looks up a local table by name.
func (c Config) TableDefinition(name string) (table.TableDefinition, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return table.TableDefinition{}, false
}

var errLogFormat = errors.New("unknown log format")

func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	switch c.Log.Format {
	case "json", "":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("%w: %q", errLogFormat, c.Log.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
