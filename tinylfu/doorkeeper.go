package tinylfu

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bloom/v3"
)

// doorkeeper is the bloom filter in front of the count-min sketch. Keys have to be seen once before they are
// considered for admission.
type doorkeeper struct {
	f   *bloom.BloomFilter
	buf [8]byte
}

func newDoorkeeper(capacity int, falsePositiveRate float64) *doorkeeper {
	if capacity < 1 {
		capacity = 1
	}
	return &doorkeeper{f: bloom.NewWithEstimates(uint(capacity), falsePositiveRate)}
}

// allow reports whether keyh has been seen before, recording it if it hasn't.
func (d *doorkeeper) allow(keyh uint64) bool {
	binary.LittleEndian.PutUint64(d.buf[:], keyh)
	if d.f.Test(d.buf[:]) {
		return true
	}
	d.f.Add(d.buf[:])
	return false
}

func (d *doorkeeper) reset() {
	d.f.ClearAll()
}

func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
