// Package config loads catalyst's HCL configuration file.
//
//	engine {
//	  dsn         = "file::memory:"
//	  batch_size  = 5000
//	  atomic_load = true
//	}
//
//	catalog {
//	  base_url      = "http://localhost:8000/api"
//	  timeout       = "30s"
//	  rows_selector = "$.data[*]"
//	  limit         = 10000
//	  sample_size   = 1000
//	}
//
//	server {
//	  addr = ":8080"
//	}
//
//	log {
//	  level  = "info"
//	  format = "console"
//	}
//
// Every block and attribute is optional.
package config

import (
	"fmt"
	"time"

	"github.com/agentic-research/catalyst/internal/catalog"
	"github.com/agentic-research/catalyst/internal/engine"
	"github.com/agentic-research/catalyst/internal/ingest"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the resolved configuration.
type Config struct {
	Engine  Engine
	Catalog Catalog
	Server  Server
	Log     Log
}

type Engine struct {
	DSN        string
	BatchSize  int
	AtomicLoad bool
}

// Catalog selects where datasets come from: a catalog service (BaseURL) or a
// directory of dataset files (Dir). Dir wins when both are set.
type Catalog struct {
	BaseURL      string
	Dir          string
	Timeout      time.Duration
	RowsSelector string
	Limit        int
	SampleSize   int
}

type Server struct {
	Addr string
}

type Log struct {
	Level  string
	Format string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: Engine{
			DSN:        engine.DefaultDSN,
			BatchSize:  ingest.DefaultBatchSize,
			AtomicLoad: true,
		},
		Catalog: Catalog{
			Timeout:      catalog.DefaultTimeout,
			RowsSelector: catalog.DefaultRowsSelector,
			SampleSize:   1000,
		},
		Server: Server{Addr: ":8080"},
		Log:    Log{Level: "info", Format: "console"},
	}
}

// file mirrors the HCL document. Attributes are pointers so an absent one
// keeps its default.
type file struct {
	Engine *struct {
		DSN        *string `hcl:"dsn,optional"`
		BatchSize  *int    `hcl:"batch_size,optional"`
		AtomicLoad *bool   `hcl:"atomic_load,optional"`
	} `hcl:"engine,block"`
	Catalog *struct {
		BaseURL      *string `hcl:"base_url,optional"`
		Dir          *string `hcl:"dir,optional"`
		Timeout      *string `hcl:"timeout,optional"`
		RowsSelector *string `hcl:"rows_selector,optional"`
		Limit        *int    `hcl:"limit,optional"`
		SampleSize   *int    `hcl:"sample_size,optional"`
	} `hcl:"catalog,block"`
	Server *struct {
		Addr *string `hcl:"addr,optional"`
	} `hcl:"server,block"`
	Log *struct {
		Level  *string `hcl:"level,optional"`
		Format *string `hcl:"format,optional"`
	} `hcl:"log,block"`
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	var f file
	if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg.apply(f)
}

// Parse decodes src as if read from filename, which must end in .hcl.
func Parse(filename string, src []byte) (Config, error) {
	var f file
	if err := hclsimple.Decode(filename, src, nil, &f); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	return Default().apply(f)
}

func (c Config) apply(f file) (Config, error) {
	if e := f.Engine; e != nil {
		set(&c.Engine.DSN, e.DSN)
		set(&c.Engine.BatchSize, e.BatchSize)
		set(&c.Engine.AtomicLoad, e.AtomicLoad)
	}
	if s := f.Catalog; s != nil {
		set(&c.Catalog.BaseURL, s.BaseURL)
		set(&c.Catalog.Dir, s.Dir)
		set(&c.Catalog.RowsSelector, s.RowsSelector)
		set(&c.Catalog.Limit, s.Limit)
		set(&c.Catalog.SampleSize, s.SampleSize)
		if s.Timeout != nil {
			d, err := time.ParseDuration(*s.Timeout)
			if err != nil {
				return c, fmt.Errorf("catalog.timeout: %w", err)
			}
			c.Catalog.Timeout = d
		}
	}
	if s := f.Server; s != nil {
		set(&c.Server.Addr, s.Addr)
	}
	if l := f.Log; l != nil {
		set(&c.Log.Level, l.Level)
		set(&c.Log.Format, l.Format)
	}
	return c, c.Validate()
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	if c.Engine.BatchSize <= 0 {
		return fmt.Errorf("engine.batch_size must be positive, got %d", c.Engine.BatchSize)
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog.timeout must be positive, got %s", c.Catalog.Timeout)
	}
	if c.Catalog.Limit < 0 {
		return fmt.Errorf("catalog.limit must not be negative, got %d", c.Catalog.Limit)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
