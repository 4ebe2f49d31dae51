package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (c *countingEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.vec, c.err
}

func TestCachedEmbedderNilCachePassesThrough(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{0.1, 0.2}}
	e := NewCachedEmbedder(inner, nil)

	vec, err := e.GenerateEmbedding(context.Background(), "le compresseur")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedderPropagatesError(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("service down")}
	e := NewCachedEmbedder(inner, nil)

	_, err := e.GenerateEmbedding(context.Background(), "le compresseur")
	assert.Error(t, err)
}
