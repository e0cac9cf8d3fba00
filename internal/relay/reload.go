package relay

import (
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/switchrelay/internal/catalog"
	"github.com/gyaneshwarpardhi/switchrelay/internal/config"
	"github.com/gyaneshwarpardhi/switchrelay/internal/hooks"
)

type prepared struct {
	graph   *hooks.Graph
	catalog *catalog.Catalog
}

func (s *Service) prepare(cfg *config.Config) (*prepared, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	p := &prepared{}
	if s.engine != nil {
		g, err := hooks.Build(cfg.Hooks, s.engine.Registry())
		if err != nil {
			return nil, fmt.Errorf("build hooks: %w", err)
		}
		p.graph = g
	}
	cat, err := catalog.New(cfg.Catalog.Titles, 0)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	p.catalog = cat
	return p, nil
}

// Check reports whether cfg could be applied, without changing anything.
func (s *Service) Check(cfg *config.Config) error {
	_, err := s.prepare(cfg)
	return err
}

// Apply validates cfg and swaps in the hook graph, title catalog, and serial
// masking it describes. On error nothing is changed. History capacity and
// listener settings only take effect on restart.
func (s *Service) Apply(cfg *config.Config) error {
	p, err := s.prepare(cfg)
	if err != nil {
		return err
	}
	if p.graph != nil {
		s.engine.SwapGraph(p.graph)
	}
	s.SetCatalog(p.catalog)
	s.SetSerialMasking(cfg.Relay.MaskSerialsEnabled())
	return nil
}

// Bind makes l reject configs the service cannot apply and applies every
// config l accepts.
func (s *Service) Bind(l *config.Loader) {
	l.AddCheck(s.Check)
	l.OnChange(func(cfg *config.Config) {
		if err := s.Apply(cfg); err != nil {
			slog.Error("accepted config could not be applied", "err", err)
			return
		}
		slog.Info("config applied", "hooks", len(cfg.Hooks), "catalog_titles", s.Catalog().Len())
	})
}
