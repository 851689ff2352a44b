package store

import (
	"fmt"

	"github.com/fyrsmithlabs/personad/internal/config"
	"github.com/fyrsmithlabs/personad/internal/logging"
)

// New creates a Store from configuration.
//
// The backend is selected by cfg.Backend:
//   - "memory" (default): in-process maps, nothing persisted
//   - "chromem": embedded chromem-go database (no external service)
//   - "qdrant": external Qdrant server over gRPC
func New(cfg config.StoreConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Backend {
	case config.StoreMemory, "":
		return NewMemoryStore(), nil

	case config.StoreChromem:
		return NewChromemStore(ChromemOptions{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			VectorSize: cfg.VectorSize,
		}, logger)

	case config.StoreQdrant:
		return NewQdrantStore(QdrantOptions{
			Host:             cfg.Qdrant.Host,
			Port:             cfg.Qdrant.Port,
			APIKey:           cfg.Qdrant.APIKey.Value(),
			UseTLS:           cfg.Qdrant.UseTLS,
			CollectionPrefix: cfg.Qdrant.CollectionPrefix,
			VectorSize:       cfg.VectorSize,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported store backend %q (supported: memory, chromem, qdrant)",
			ErrInvalidConfig, cfg.Backend)
	}
}
