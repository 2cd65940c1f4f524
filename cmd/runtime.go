package cmd

import (
	"github.com/agentic-research/catalyst/internal/analyze"
	"github.com/agentic-research/catalyst/internal/catalog"
	"github.com/agentic-research/catalyst/internal/config"
	"github.com/agentic-research/catalyst/internal/engine"
	"github.com/agentic-research/catalyst/internal/ingest"
	"github.com/agentic-research/catalyst/internal/lifecycle"
	"github.com/agentic-research/catalyst/internal/server"
	"github.com/rs/zerolog"
)

// runtime is the engine, registry and controller wired from one config.
type runtime struct {
	sess     *engine.Session
	ctrl     *lifecycle.Controller
	datasets server.Lister
}

// source is what a configured catalog provides: fetch for the controller and
// a listing for the HTTP API.
type source interface {
	lifecycle.Source
	server.Lister
}

func newRuntime(cfg config.Config, log zerolog.Logger) (*runtime, error) {
	src, err := newSource(cfg.Catalog, log)
	if err != nil {
		return nil, err
	}

	sess := engine.NewSession(cfg.Engine.DSN, log)
	reg := ingest.NewRegistry(sess,
		ingest.WithBatchSize(cfg.Engine.BatchSize),
		ingest.WithAtomicLoad(cfg.Engine.AtomicLoad),
		ingest.WithLogger(log),
	)

	rt := &runtime{sess: sess, ctrl: lifecycle.New(reg, src, log)}
	if src != nil {
		rt.datasets = src
	}
	return rt, nil
}

// newSource picks the dataset directory over the catalog service. It returns
// nil when neither is configured.
func newSource(c config.Catalog, log zerolog.Logger) (source, error) {
	analysis := analyze.DefaultConfig()
	analysis.SampleSize = c.SampleSize

	switch {
	case c.Dir != "":
		return catalog.NewFileSource(c.Dir, c.RowsSelector, analysis)
	case c.BaseURL != "":
		return catalog.NewClient(catalog.ClientConfig{
			BaseURL:      c.BaseURL,
			Timeout:      c.Timeout,
			RowsSelector: c.RowsSelector,
			Limit:        c.Limit,
			Analysis:     analysis,
			Logger:       log,
		})
	}
	return nil, nil
}

func (rt *runtime) Close() error {
	return rt.sess.Close()
}
