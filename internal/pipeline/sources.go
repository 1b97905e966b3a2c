package pipeline

import (
	"errors"
	"fmt"

	"github.com/david/anansi/internal/ingest"
	"github.com/david/anansi/internal/logger"
)

// ErrNoSources is returned when no enabled source could be built.
var ErrNoSources = errors.New("no usable sources")

type sourceConfigurer interface {
	ConfigureSource(src ingest.SourceConfig)
}

// BuildSources builds a connector for every enabled registry entry. A source
// that fails to build is logged and skipped so the remaining ones still run.
func BuildSources(reg *ingest.Registry, factory *ingest.ConnectorFactory, deps ingest.Deps, log logger.Logger) ([]Source, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if factory == nil {
		factory = ingest.DefaultFactory
	}
	if deps.Log == nil {
		deps.Log = log
	}

	var sources []Source
	for _, cfg := range reg.Enabled() {
		if c, ok := deps.HTTP.(sourceConfigurer); ok {
			c.ConfigureSource(cfg)
		}
		conn, err := factory.Build(cfg, deps)
		if err != nil {
			log.Warn("Skipping source", logger.String("source", cfg.ID), logger.Err(err))
			continue
		}
		sources = append(sources, Source{Config: cfg, Connector: conn})
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %d enabled in registry", ErrNoSources, len(reg.Enabled()))
	}
	return sources, nil
}
