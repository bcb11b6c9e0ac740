// Package config loads the pipeline configuration.
//
// Values come, in increasing precedence, from defaults, an optional config
// file (YAML, JSON or TOML by extension), a .env file and SNOWLOAD_*
// environment variables, and CLI flags bound to the same keys.
// SNOWLOAD_STORAGE_DSN overrides storage.dsn, for example.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"snowload/internal/parser/csv"
	"snowload/internal/source"
	"snowload/internal/storage"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SNOWLOAD"

// Pipeline is the complete run configuration.
type Pipeline struct {
	Job     string  `mapstructure:"job"`
	Sources Sources `mapstructure:"sources"`
	Parser  Parser  `mapstructure:"parser"`
	Storage Storage `mapstructure:"storage"`
	Metrics Metrics `mapstructure:"metrics"`
	Runtime Runtime `mapstructure:"runtime"`
}

// Sources holds one file path per source.
type Sources struct {
	Sales    string `mapstructure:"sales"`
	Customer string `mapstructure:"customer"`
	Product  string `mapstructure:"product"`
	Location string `mapstructure:"location"`
	Date     string `mapstructure:"date"`
}

type Parser struct {
	// Comma is the field delimiter; exactly one character. "\t" means tab.
	Comma      string            `mapstructure:"comma"`
	Encoding   string            `mapstructure:"encoding"`
	TrimSpace  bool              `mapstructure:"trim_space"`
	LazyQuotes bool              `mapstructure:"lazy_quotes"`
	HeaderMap  map[string]string `mapstructure:"header_map"`
}

type Storage struct {
	// Backend kind: "postgres" | "sqlite" | "mssql"
	Kind string `mapstructure:"kind"`
	// DSN is expanded with os.ExpandEnv after loading.
	DSN          string `mapstructure:"dsn"`
	CreateSchema bool   `mapstructure:"create_schema"`
}

type Metrics struct {
	// Backend: "none" | "datadog" | "pushgateway"
	Backend        string `mapstructure:"backend"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	// Tags is a comma separated list of extra tags, e.g. "env:prod,team:bi".
	Tags       string        `mapstructure:"tags"`
	FlushEvery time.Duration `mapstructure:"flush_every"`
}

type Runtime struct {
	DryRun       bool `mapstructure:"dry_run"`
	Verify       bool `mapstructure:"verify"`
	DebugTimings bool `mapstructure:"debug_timings"`
}

var defaults = map[string]any{
	"job":                     "snowload",
	"sources.sales":           "",
	"sources.customer":        "",
	"sources.product":         "",
	"sources.location":        "",
	"sources.date":            "",
	"parser.comma":            ",",
	"parser.encoding":         "",
	"parser.trim_space":       true,
	"parser.lazy_quotes":      false,
	"parser.header_map":       map[string]string{},
	"storage.kind":            "postgres",
	"storage.dsn":             "",
	"storage.create_schema":   false,
	"metrics.backend":         "none",
	"metrics.pushgateway_url": "http://localhost:9091",
	"metrics.tags":            "",
	"metrics.flush_every":     "60s",
	"runtime.dry_run":         false,
	"runtime.verify":          true,
	"runtime.debug_timings":   false,
}

// NewViper returns a viper instance with every default set and environment
// overrides enabled. Callers bind flags to it before calling LoadWith.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration at path (optional) on top of the defaults.
func Load(path string) (Pipeline, error) {
	return LoadWith(NewViper(), path)
}

// LoadWith loads a .env file when present, reads the config file at path
// when set, and decodes the merged result.
func LoadWith(v *viper.Viper, path string) (Pipeline, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Pipeline{}, fmt.Errorf("config: .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var p Pipeline
	if err := v.Unmarshal(&p); err != nil {
		return Pipeline{}, fmt.Errorf("config: decode: %w", err)
	}
	p.Storage.DSN = os.ExpandEnv(p.Storage.DSN)
	return p, nil
}

// CSVOptions maps the parser section onto reader options.
func (p Pipeline) CSVOptions() (csv.Options, error) {
	opt := csv.DefaultOptions()
	comma, err := parseComma(p.Parser.Comma)
	if err != nil {
		return csv.Options{}, err
	}
	opt.Comma = comma
	opt.TrimSpace = p.Parser.TrimSpace
	opt.LazyQuotes = p.Parser.LazyQuotes
	opt.Encoding = p.Parser.Encoding
	if len(p.Parser.HeaderMap) > 0 {
		opt.HeaderMap = make(map[string]string, len(p.Parser.HeaderMap))
		for k, v := range p.Parser.HeaderMap {
			opt.HeaderMap[k] = v
		}
	}
	return opt, nil
}

func parseComma(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("config: parser.comma must be a single character, got %q", s)
	}
	if r[0] == '"' || r[0] == '\r' || r[0] == '\n' {
		return 0, fmt.Errorf("config: parser.comma %q is not a valid delimiter", s)
	}
	return r[0], nil
}

// Files returns the file-backed source set for p.
func (p Pipeline) Files() (source.Files, error) {
	opt, err := p.CSVOptions()
	if err != nil {
		return source.Files{}, err
	}
	return source.Files{
		Paths: map[source.Kind]string{
			source.Sales:    p.Sources.Sales,
			source.Customer: p.Sources.Customer,
			source.Product:  p.Sources.Product,
			source.Location: p.Sources.Location,
			source.Date:     p.Sources.Date,
		},
		Options: opt,
	}, nil
}

// StorageConfig returns the gateway configuration.
func (p Pipeline) StorageConfig() storage.Config {
	return storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN}
}
