package locate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenWithoutDatabase(t *testing.T) {
	l := Open("")
	defer l.Close()
	ext, located := l.Extent("8.8.8.8")
	assert.False(t, located)
	assert.Equal(t, [4]float64{-125, 24, -66, 50}, ext)
}

func TestDefaultExtentFromEnv(t *testing.T) {
	t.Setenv("DEFAULT_EXTENT", "-10.5,35,5,45")
	l := Open("nonexistent.mmdb")
	defer l.Close()
	ext, located := l.Extent("not-an-ip")
	assert.False(t, located)
	assert.Equal(t, [4]float64{-10.5, 35, 5, 45}, ext)

	t.Setenv("DEFAULT_EXTENT", "garbage")
	l2 := Open("")
	ext, _ = l2.Extent("1.2.3.4")
	assert.Equal(t, [4]float64{-125, 24, -66, 50}, ext)
}
