package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_CosineIdenticalVectorsIsOne(t *testing.T) {
	a := []float32{1, 0, 0}
	assert.InDelta(t, 1.0, score(Cosine, a, a), 1e-9)
}

func TestScore_CosineZeroNormReturnsZeroNotNaN(t *testing.T) {
	zero := []float32{0, 0, 0}
	got := score(Cosine, zero, zero)
	assert.Equal(t, 0.0, got)
	assert.False(t, math.IsNaN(got))
}

func TestScore_DotProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.InDelta(t, 32.0, score(DotProduct, a, b), 1e-9)
}

func TestScore_EuclideanIsNegatedDistance(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	assert.InDelta(t, -5.0, score(Euclidean, a, b), 1e-9)
}

func TestScore_EuclideanOrdersNearestFirstLikeCosine(t *testing.T) {
	query := []float32{0, 0}
	near := []float32{1, 0}
	far := []float32{10, 0}
	assert.Greater(t, score(Euclidean, query, near), score(Euclidean, query, far),
		"a closer point must score higher than a farther one, same as cosine/dot-product")
}
