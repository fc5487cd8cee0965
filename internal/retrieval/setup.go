package retrieval

import (
	"go.uber.org/zap"

	"github.com/rahul/quill/internal/governance"
	"github.com/rahul/quill/internal/observability"
	"github.com/rahul/quill/pkg/config"
)

// Build registers every backend the configuration allows and returns the
// chain in the configured order, with a func releasing backend resources.
// A backend that cannot be created is logged and left out.
func Build(cfg config.RetrievalConfig, log *observability.Logger, metrics *observability.Metrics) (*Chain, func(), error) {
	policy, err := governance.FromConfig(cfg.DisabledBackends, cfg.DenyPatterns)
	if err != nil {
		return nil, nil, err
	}

	registry := NewRegistry()
	closer := func() {}

	if cfg.Browser {
		bf := NewBrowserFetcher()
		registry.Register(NewPageBackend(bf, cfg.MaxPageChars))
		closer = bf.Close
	} else {
		registry.Register(NewPageBackend(NewHTTPFetcher(), cfg.MaxPageChars))
	}

	if cfg.SerpAPIKey != "" {
		if s, err := NewSerpAPI(cfg.SerpAPIKey); err != nil {
			log.Warn("serpapi backend unavailable", zap.Error(err))
		} else {
			registry.Register(s)
		}
	}

	if ddg, err := NewDuckDuckGo(cfg.MaxResults); err != nil {
		log.Warn("duckduckgo backend unavailable", zap.Error(err))
	} else {
		registry.Register(ddg)
	}

	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	chain := registry.Chain(cfg.Order,
		WithPolicy(policy),
		WithRateLimit(cfg.RatePerSecond, burst),
		WithLogger(log),
		WithMetrics(metrics),
	)
	log.Info("retrieval chain ready", zap.Strings("order", cfg.Order), zap.Strings("registered", registry.Names()))
	return chain, closer, nil
}
