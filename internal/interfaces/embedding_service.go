package interfaces

import "context"

// EmbeddingService produces fixed-dimension unit vectors for the
// cosine-similarity pre-filter (C7). A low-cost model is expected;
// callers fail safe (bypass filtering) on error rather than block
// Layer 2.
type EmbeddingService interface {
	// Embed returns a unit vector embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension reports the embedding's vector length.
	Dimension() int

	// IsAvailable performs a lightweight reachability probe.
	IsAvailable(ctx context.Context) bool
}
