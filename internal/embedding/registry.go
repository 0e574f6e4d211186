package embedding

import (
	"context"
	"sync"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// RegistryConfig names the ordered fallback chain of model names to try
// when the dataset's primary embedding model is unhealthy. This
// supplements spec §4.A: a dataset without a configured fallback chain
// behaves exactly as the base spec describes (the primary model's errors
// propagate unchanged).
type RegistryConfig struct {
	FallbackChain []string
}

// Registry holds named EmbeddingModel instances and resolves a dataset's
// configured primary model plus its fallback chain, grounded on the
// teacher's models.EmbeddingModelRegistry used throughout internal/rag's
// tests (Register/mock pattern).
type Registry struct {
	mu     sync.RWMutex
	models map[string]EmbeddingModel
	config RegistryConfig
}

func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{models: make(map[string]EmbeddingModel), config: cfg}
}

func (r *Registry) Register(name string, model EmbeddingModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = model
}

func (r *Registry) Get(name string) (EmbeddingModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Encode embeds texts with the named primary model; if that model's
// Health check fails, it is retried against each model in the fallback
// chain, in order, and the first healthy model's Encode result is
// returned. If none are registered or healthy, the primary model's own
// error is returned unchanged.
func (r *Registry) Encode(ctx context.Context, primary string, texts []string) ([][]float32, error) {
	model, ok := r.Get(primary)
	if !ok {
		return nil, errs.Internal("embedding_model_missing", "no embedding model registered as "+primary, nil)
	}

	if err := model.Health(ctx); err == nil {
		return model.Encode(ctx, texts)
	}

	for _, name := range r.config.FallbackChain {
		fallback, ok := r.Get(name)
		if !ok {
			continue
		}
		if err := fallback.Health(ctx); err != nil {
			continue
		}
		return fallback.Encode(ctx, texts)
	}

	// No healthy fallback found; fall through to the primary so its
	// underlying error (not a synthetic one) is what callers observe.
	return model.Encode(ctx, texts)
}
