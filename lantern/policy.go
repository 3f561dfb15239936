package lantern

// Settings describe the conditions the page load is simulated under.
type Settings struct {
	// RTT is the round trip time in milliseconds. Defaults to 150.
	RTT float64
	// Throughput is the network throughput in kilobits per second. Defaults to 1638.4.
	Throughput float64
	// CPUSlowdown multiplies the duration of main thread tasks. Defaults to 4.
	CPUSlowdown float64
	// OptimisticMaxConnections is the minimum number of connections per origin assumed by the optimistic policy.
	// Defaults to 6.
	OptimisticMaxConnections int
	// PessimisticColdRTTs is the number of round trips the pessimistic policy charges for connection setup on every
	// request. Defaults to 2.
	PessimisticColdRTTs int
	// PessimisticThroughputFloor caps the throughput of the pessimistic policy, in kilobits per second. Defaults to
	// 400.
	PessimisticThroughputFloor float64
}

func DefaultSettings() Settings {
	return Settings{
		RTT:                        150,
		Throughput:                 1638.4,
		CPUSlowdown:                4,
		OptimisticMaxConnections:   6,
		PessimisticColdRTTs:        2,
		PessimisticThroughputFloor: 400,
	}
}

// Policy controls how the simulator schedules and times nodes.
type Policy struct {
	Name string

	RTT         float64 // milliseconds
	Throughput  float64 // kilobits per second
	CPUSlowdown float64

	// MinConnectionsPerOrigin raises the number of connections per origin above the observed number.
	MinConnectionsPerOrigin int
	// Multiplex allows unlimited concurrent requests on origins that were observed to use HTTP/2 or later.
	Multiplex bool
	// ColdRTTs, if positive, is the number of round trips charged for connection setup on every request, regardless
	// of whether a warm connection is available. Otherwise, setup is charged only for new connections.
	ColdRTTs int
	// KeepCongestionWindow lets warm connections keep their grown congestion window between requests.
	KeepCongestionWindow bool
}

// Optimistic returns the policy for the lower bound estimate: as much parallelism as the observed load allows, warm
// connections, and the full throughput.
func (s Settings) Optimistic() Policy {
	return Policy{
		Name:                    "optimistic",
		RTT:                     s.RTT,
		Throughput:              s.Throughput,
		CPUSlowdown:             s.CPUSlowdown,
		MinConnectionsPerOrigin: s.OptimisticMaxConnections,
		Multiplex:               true,
		KeepCongestionWindow:    true,
	}
}

// Pessimistic returns the policy for the upper bound estimate: the observed number of connections, connection setup
// on every request, and throughput limited to the floor.
func (s Settings) Pessimistic() Policy {
	throughput := s.Throughput
	if s.PessimisticThroughputFloor > 0 {
		throughput = min(throughput, s.PessimisticThroughputFloor)
	}
	return Policy{
		Name:        "pessimistic",
		RTT:         s.RTT,
		Throughput:  throughput,
		CPUSlowdown: s.CPUSlowdown,
		ColdRTTs:    max(s.PessimisticColdRTTs, 1),
	}
}
