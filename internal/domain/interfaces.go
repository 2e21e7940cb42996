package domain

import "context"

// Embedder converts free text into numeric vectors.
type Embedder interface {
	Name() string
	// Dimension is the vector size, or 0 when only known after the first call.
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
