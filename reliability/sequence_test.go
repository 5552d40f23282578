package reliability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGapSignAndMagnitude(t *testing.T) {
	assert.Equal(t, int32(1), Gap(1, 0))
	assert.Equal(t, int32(-1), Gap(0, 1))
	assert.Equal(t, int32(0), Gap(42, 42))

	// Wraparound: 0 is one step after 65535.
	assert.Equal(t, int32(1), Gap(0, 65535))
	assert.Equal(t, int32(-1), Gap(65535, 0))

	for a := SequenceID(0); a < 60000; a += 977 {
		for _, d := range []int{1, 100, 32767, -1, -100, -32767} {
			b := SequenceID(int32(a) + int32(d))
			assert.Equal(t, int32(d), Gap(b, a), "a=%d d=%d", a, d)
			assert.Equal(t, Gap(b, a), -Gap(a, b), "antisymmetry a=%d b=%d", a, b)
		}
	}

	// Exactly half the circle apart the magnitude is 32768 and the sign
	// depends on the order of the arguments, but antisymmetry still holds.
	for a := SequenceID(0); a < 60000; a += 977 {
		b := a + 32768
		assert.Equal(t, Gap(b, a), -Gap(a, b), "antisymmetry at half circle a=%d", a)
		assert.Contains(t, []int32{32768, -32768}, Gap(b, a), "magnitude at half circle a=%d", a)
	}
}

func TestPrecedes(t *testing.T) {
	assert.True(t, Precedes(0, 1))
	assert.False(t, Precedes(1, 0))
	assert.False(t, Precedes(5, 5))
}
