package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGeocoder struct {
	name  string
	err   error
	calls int
}

func (g *countingGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	g.calls++
	return g.name, g.err
}

func TestCachedGeocoderHit(t *testing.T) {
	inner := &countingGeocoder{name: "Berlin, Germany"}
	cached := NewCachedGeocoder(inner, 16)

	for i := 0; i < 3; i++ {
		name, err := cached.ReverseGeocode(context.Background(), 52.52, 13.405)
		require.NoError(t, err)
		assert.Equal(t, "Berlin, Germany", name)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoderDistinctCoordinates(t *testing.T) {
	inner := &countingGeocoder{name: "Somewhere"}
	cached := NewCachedGeocoder(inner, 16)

	_, err := cached.ReverseGeocode(context.Background(), 52.52, 13.405)
	require.NoError(t, err)
	_, err = cached.ReverseGeocode(context.Background(), 48.85, 2.35)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoderDoesNotCacheErrors(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("quota exceeded")}
	cached := NewCachedGeocoder(inner, 16)

	_, err := cached.ReverseGeocode(context.Background(), 52.52, 13.405)
	require.Error(t, err)
	_, err = cached.ReverseGeocode(context.Background(), 52.52, 13.405)
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoderDoesNotCacheEmpty(t *testing.T) {
	inner := &countingGeocoder{name: ""}
	cached := NewCachedGeocoder(inner, 16)

	_, err := cached.ReverseGeocode(context.Background(), 52.52, 13.405)
	require.NoError(t, err)
	_, err = cached.ReverseGeocode(context.Background(), 52.52, 13.405)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestLRUCacheEviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", "1")
	c.put("b", "2")

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.get("a")
	require.True(t, ok)

	c.put("c", "3")

	_, ok = c.get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestLRUCacheUpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", "1")
	c.put("a", "2")

	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}
