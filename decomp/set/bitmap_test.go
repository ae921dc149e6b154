package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap(t *testing.T) {
	s := MakeBitmap(16)

	assert.False(t, s.IsSet(3))
	assert.True(t, s.Add(3))
	assert.False(t, s.Add(3))

	s.Set(200)
	s.Set(64)

	assert.Equal(t, []int{3, 64, 200}, s.Slice())
	assert.Equal(t, 3, s.Len())

	assert.False(t, s.IsSet(-1))
	assert.False(t, s.IsSet(10000))

	var z Bitmap
	assert.Empty(t, z.Slice())
	z.Set(0)
	assert.Equal(t, []int{0}, z.Slice())
}
