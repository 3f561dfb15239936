package lantern

const (
	maxSegmentSize       = 1460
	initialCongestionWnd = 10 * maxSegmentSize
)

// connection models a TCP connection.
type connection struct {
	// freeAt is the simulated time, in milliseconds, at which the connection can serve its next request.
	freeAt float64
	warm   bool
	// cwnd is the congestion window in bytes.
	cwnd float64
}

func newConnection() *connection {
	return &connection{cwnd: initialCongestionWnd}
}

// download returns the time in milliseconds needed to receive bytes over the connection once the first byte
// arrived. The congestion window doubles every round trip, up to the bandwidth-delay product, and the transfer is
// bounded by the throughput.
func (c *connection) download(bytes, rtt, throughput float64) float64 {
	if bytes <= 0 {
		return 0
	}
	// kilobits per second are bits per millisecond
	bytesPerMs := throughput / 8
	maxWnd := max(bytesPerMs*rtt, maxSegmentSize)
	wnd := min(c.cwnd, maxWnd)
	var elapsed float64
	for remaining := bytes; ; {
		remaining -= wnd
		wnd = min(wnd*2, maxWnd)
		if remaining <= 0 {
			break
		}
		elapsed += rtt
	}
	c.cwnd = wnd
	return elapsed + bytes/bytesPerMs
}

// pool holds the connections to one origin.
type pool struct {
	conns []*connection
	// unlimited pools hand out a new connection for every request. New connections are warm once the origin has been
	// connected to.
	unlimited bool
	used      bool
}

func newPool(size int, unlimited bool) *pool {
	p := &pool{unlimited: unlimited}
	if !unlimited {
		p.conns = make([]*connection, max(size, 1))
		for i := range p.conns {
			p.conns[i] = newConnection()
		}
	}
	return p
}

// available returns the earliest time at or after t at which a connection can start a request, and that connection.
// Warm connections are preferred over cold ones that are available at the same time.
func (p *pool) available(t float64) (float64, *connection) {
	if p.unlimited {
		return t, nil
	}
	var best *connection
	var bestAt float64
	for _, c := range p.conns {
		at := max(t, c.freeAt)
		if best == nil || at < bestAt || (at == bestAt && c.warm && !best.warm) {
			best, bestAt = c, at
		}
	}
	return bestAt, best
}

// acquire returns the connection to use for a request starting at t.
func (p *pool) acquire(t float64) *connection {
	if p.unlimited {
		c := newConnection()
		c.warm = p.used
		p.used = true
		return c
	}
	_, c := p.available(t)
	return c
}
