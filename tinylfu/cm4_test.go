package tinylfu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	c := make(counters, 4)

	c.increment(0)
	assert.Equal(t, byte(0x01), c[0])
	assert.Equal(t, byte(1), c.get(0))
	assert.Equal(t, byte(0), c.get(1))

	c.increment(1)
	assert.Equal(t, byte(0x11), c[0])

	for range 20 {
		c.increment(1)
	}
	// Counters saturate instead of overflowing into their neighbor.
	assert.Equal(t, byte(0xf1), c[0])
	assert.Equal(t, byte(15), c.get(1))
	assert.Equal(t, byte(1), c.get(0))

	c.halve()
	assert.Equal(t, byte(7), c.get(1))
	assert.Equal(t, byte(0), c.get(0))
}

func TestSketch(t *testing.T) {
	s := newSketch(64)
	const hot, cold = uint64(0xdeadbeef_00c0ffee), uint64(0x12345678_9abcdef0)

	for range 10 {
		s.increment(hot)
	}
	s.increment(cold)

	assert.GreaterOrEqual(t, s.frequency(hot), byte(10))
	assert.GreaterOrEqual(t, s.frequency(cold), byte(1))
	assert.Less(t, s.frequency(cold), s.frequency(hot))

	s.age()
	assert.GreaterOrEqual(t, s.frequency(hot), byte(5))
	assert.Less(t, s.frequency(hot), byte(10))
}

func TestNextPowerOfTwo(t *testing.T) {
	for in, want := range map[uint32]uint32{1: 1, 2: 2, 3: 4, 5: 8, 64: 64, 65: 128} {
		assert.Equal(t, want, nextPowerOfTwo(in), in)
	}
}
