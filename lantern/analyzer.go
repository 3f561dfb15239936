package lantern

import (
	"math"

	"golang.org/x/exp/slices"

	"honnef.co/go/lantern/netlog"
)

// OriginStats are the network characteristics observed for one origin.
type OriginStats struct {
	// RTT is the estimated round trip time in milliseconds, NaN if it could not be estimated.
	RTT float64
	// ServerResponseTime is the estimated time the server took to respond, in milliseconds, excluding the round trip.
	// NaN if it could not be estimated.
	ServerResponseTime float64
	// Connections is the number of distinct connections that were used.
	Connections int
	// Multiplexed is set if any request used a multiplexing protocol.
	Multiplexed bool
}

// NetworkAnalysis summarizes observed network behavior per origin.
type NetworkAnalysis struct {
	Origins map[string]*OriginStats
	// MinRTT is the smallest per-origin RTT estimate, NaN if there are none.
	MinRTT float64
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	slices.Sort(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}

// AnalyzeNetwork estimates per-origin round trip and server response times from the resource timing of records.
// Connection setup of fresh connections yields RTT samples; the remaining wait time yields server response time
// samples.
func AnalyzeNetwork(records []*netlog.Record) *NetworkAnalysis {
	type samples struct {
		rtt, wait []float64
		conns     map[int64]struct{}
		stats     *OriginStats
	}
	byOrigin := map[string]*samples{}
	var order []string

	for _, rec := range records {
		if netlog.IsNonNetworkRequest(rec) || rec.FromDiskCache || rec.FromMemoryCache {
			continue
		}
		origin := netlog.Origin(rec)
		s := byOrigin[origin]
		if s == nil {
			s = &samples{conns: map[int64]struct{}{}, stats: &OriginStats{}}
			byOrigin[origin] = s
			order = append(order, origin)
		}
		if rec.ConnectionID != 0 {
			s.conns[rec.ConnectionID] = struct{}{}
		}
		if isMultiplexed(rec.Protocol) {
			s.stats.Multiplexed = true
		}

		t := rec.Timing
		if t == nil {
			continue
		}
		if !rec.ConnectionReused && t.ConnectStart >= 0 && t.ConnectEnd > t.ConnectStart {
			connect := t.ConnectEnd - t.ConnectStart
			if t.SSLStart >= 0 && t.SSLEnd > t.SSLStart {
				ssl := t.SSLEnd - t.SSLStart
				s.rtt = append(s.rtt, ssl)
				connect -= ssl
			}
			if connect > 0 {
				s.rtt = append(s.rtt, connect)
			}
		}
		if t.SendEnd >= 0 && t.ReceiveHeadersEnd > t.SendEnd {
			s.wait = append(s.wait, t.ReceiveHeadersEnd-t.SendEnd)
		}
	}

	a := &NetworkAnalysis{Origins: map[string]*OriginStats{}, MinRTT: math.NaN()}
	for _, origin := range order {
		s := byOrigin[origin]
		st := s.stats
		st.Connections = max(len(s.conns), 1)
		st.RTT = median(s.rtt)
		if wait := median(s.wait); !math.IsNaN(wait) {
			rtt := st.RTT
			if math.IsNaN(rtt) {
				rtt = 0
			}
			st.ServerResponseTime = max(wait-rtt, 0)
		} else {
			st.ServerResponseTime = math.NaN()
		}
		if !math.IsNaN(st.RTT) && (math.IsNaN(a.MinRTT) || st.RTT < a.MinRTT) {
			a.MinRTT = st.RTT
		}
		a.Origins[origin] = st
	}
	return a
}

// AdditionalRTT returns how much longer round trips to origin took than those to the fastest origin.
func (a *NetworkAnalysis) AdditionalRTT(origin string) float64 {
	if a == nil {
		return 0
	}
	st := a.Origins[origin]
	if st == nil || math.IsNaN(st.RTT) || math.IsNaN(a.MinRTT) {
		return 0
	}
	return st.RTT - a.MinRTT
}

// ServerResponseTime returns the estimated server response time of origin, 0 if unknown.
func (a *NetworkAnalysis) ServerResponseTime(origin string) float64 {
	if a == nil {
		return 0
	}
	st := a.Origins[origin]
	if st == nil || math.IsNaN(st.ServerResponseTime) {
		return 0
	}
	return st.ServerResponseTime
}

// Connections returns the number of connections observed for origin, at least 1.
func (a *NetworkAnalysis) Connections(origin string) int {
	if a == nil {
		return 1
	}
	st := a.Origins[origin]
	if st == nil {
		return 1
	}
	return st.Connections
}

// Multiplexed reports whether origin was observed to use a multiplexing protocol.
func (a *NetworkAnalysis) Multiplexed(origin string) bool {
	if a == nil {
		return false
	}
	st := a.Origins[origin]
	return st != nil && st.Multiplexed
}

func networkRecords(root Node) []*netlog.Record {
	var out []*netlog.Record
	for n := range Traverse(root) {
		if nn, ok := n.(*NetworkNode); ok {
			out = append(out, nn.Record)
		}
	}
	return out
}
