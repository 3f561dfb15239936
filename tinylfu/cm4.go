package tinylfu

// sketch is a count-min sketch with four rows of 4-bit saturating counters and conservative aging.
type sketch struct {
	rows [rows]counters
	mask uint32
}

const rows = 4

// newSketch sizes the sketch for about n distinct keys, using 16 counters per key in total.
func newSketch(n int) *sketch {
	if n < 1 {
		panic("tinylfu: sketch needs room for at least one key")
	}
	width := nextPowerOfTwo(uint32(n) * 4)
	s := &sketch{mask: width - 1}
	for i := range s.rows {
		s.rows[i] = make(counters, width/2)
	}
	return s
}

// slot derives the counter index of keyh in row by double hashing.
func (s *sketch) slot(keyh uint64, row int) uint32 {
	lo, hi := uint32(keyh), uint32(keyh>>32)
	return (lo + uint32(row)*hi) & s.mask
}

func (s *sketch) increment(keyh uint64) {
	for row := range s.rows {
		s.rows[row].increment(s.slot(keyh, row))
	}
}

// frequency returns the smallest counter of keyh, which overestimates the true count at most.
func (s *sketch) frequency(keyh uint64) byte {
	f := byte(15)
	for row := range s.rows {
		f = min(f, s.rows[row].get(s.slot(keyh, row)))
	}
	return f
}

// age halves all counters.
func (s *sketch) age() {
	for _, r := range s.rows {
		r.halve()
	}
}

// counters packs two 4-bit counters per byte. Even indices use the low nibble.
type counters []byte

func (c counters) get(i uint32) byte {
	return c[i/2] >> ((i & 1) * 4) & 0x0f
}

func (c counters) increment(i uint32) {
	shift := (i & 1) * 4
	if (c[i/2]>>shift)&0x0f < 15 {
		c[i/2] += 1 << shift
	}
}

func (c counters) halve() {
	for i, b := range c {
		c[i] = (b >> 1) & 0x77
	}
}
