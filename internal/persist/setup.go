package persist

import (
	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"github.com/rahul/quill/internal/observability"
	"github.com/rahul/quill/internal/store"
	"github.com/rahul/quill/pkg/config"
)

// Deps are the shared resources backends may need.
type Deps struct {
	Contents *store.ContentStore
	Embedder embeddings.Embedder
	Log      *observability.Logger
}

// Build creates the configured backends. A backend that cannot be set up is
// logged and left out, so the commit degrades to the remaining ones (or to
// skipped). The returned func releases backend connections.
func Build(cfg config.PersistenceConfig, deps Deps) (*Fanout, func()) {
	log := deps.Log
	if log == nil {
		log = observability.NewNopLogger()
	}

	var backends []Backend
	var closers []func()
	unavailable := func(name, reason string, err error) {
		log.Warn("persistence backend unavailable",
			zap.String("backend", name), zap.String("reason", reason), zap.Error(err))
	}

	for _, name := range cfg.Backends {
		switch name {
		case "none":
		case "sqlite":
			if deps.Contents == nil {
				unavailable(name, "no database", nil)
				continue
			}
			backends = append(backends, NewSQLite(deps.Contents))
		case "markdown":
			md, err := NewMarkdown(cfg.Markdown.Dir)
			if err != nil {
				unavailable(name, "directory", err)
				continue
			}
			backends = append(backends, md)
		case "chromem":
			if deps.Embedder == nil {
				unavailable(name, "no embedder", nil)
				continue
			}
			db, err := OpenChromemDB(cfg.Chromem.Path, cfg.Chromem.Compress)
			if err != nil {
				unavailable(name, "open", err)
				continue
			}
			c, err := NewChromem(db, cfg.Chromem.Collection, EmbeddingFunc(deps.Embedder))
			if err != nil {
				unavailable(name, "collection", err)
				continue
			}
			backends = append(backends, c)
		case "qdrant":
			if deps.Embedder == nil {
				unavailable(name, "no embedder", nil)
				continue
			}
			client, err := DialQdrant(cfg.Qdrant)
			if err != nil {
				unavailable(name, "dial", err)
				continue
			}
			closers = append(closers, func() { _ = client.Close() })
			backends = append(backends, NewQdrant(client, deps.Embedder, cfg.Qdrant.Collection, cfg.Qdrant.VectorSize))
		default:
			unavailable(name, "unknown backend", nil)
		}
	}

	f := NewFanout(log, backends...)
	log.Info("persistence ready", zap.Strings("backends", f.Names()))
	return f, func() {
		for _, c := range closers {
			c()
		}
	}
}
