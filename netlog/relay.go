package netlog

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"honnef.co/go/lantern/diag"
)

// Response headers injected by a trusted relay. Durations are in milliseconds.
const (
	HeaderTotal        = "X-TotalMs"
	HeaderTCP          = "X-TCPMs"
	HeaderSSL          = "X-SSLMs"
	HeaderRequest      = "X-RequestMs"
	HeaderResponse     = "X-ResponseMs"
	HeaderFetchedSize  = "X-TotalFetchedSize"
	HeaderProtocolIsH2 = "X-ProtocolIsH2"
)

// parseNumber parses a header value strictly. NaN and infinities are rejected.
func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// applyTrustedRelay overrides transfer size and protocol and computes LRStatistics from relay headers. The statistics
// are only set if the headers are consistent; record times and the timing breakdown are never modified.
func applyTrustedRelay(r *Record, d *diag.Recorder, log *zap.Logger) {
	if v, ok := r.Header(HeaderFetchedSize); ok {
		f, ok := parseNumber(v)
		if size, inRange := byteCount(f); ok && inRange {
			r.TransferSize = size
		} else {
			d.Inc(diag.RelayMalformedHeader)
			log.Debug("ignoring malformed fetched size", zap.String("requestId", r.RequestID), zap.String("value", v))
		}
	}

	if v, ok := r.Header(HeaderProtocolIsH2); ok && (v == "1" || strings.EqualFold(v, "true")) {
		r.Protocol = "h2"
	}

	if stats, ok := relayStatistics(r, d); ok {
		r.LRStatistics = stats
	} else if _, hasTotal := r.Header(HeaderTotal); hasTotal {
		d.Inc(diag.RelayDeclined)
		log.Debug("declining inconsistent relay timing", zap.String("requestId", r.RequestID))
	}
}

func relayStatistics(r *Record, d *diag.Recorder) (*LRStatistics, bool) {
	totalValue, ok := r.Header(HeaderTotal)
	if !ok {
		return nil, false
	}
	total, ok := parseNumber(totalValue)
	if !ok {
		d.Inc(diag.RelayMalformedHeader)
		return nil, false
	}

	// component returns a missing header as 0 and clamps negative durations.
	component := func(name string) (float64, bool) {
		v, ok := r.Header(name)
		if !ok {
			return 0, true
		}
		ms, ok := parseNumber(v)
		if !ok {
			d.Inc(diag.RelayMalformedHeader)
			return 0, false
		}
		return max(ms, 0), true
	}
	tcp, ok1 := component(HeaderTCP)
	ssl, ok2 := component(HeaderSSL)
	req, ok3 := component(HeaderRequest)
	res, ok4 := component(HeaderResponse)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, false
	}
	if ssl > tcp {
		return nil, false
	}
	if tcp+req+res != total {
		return nil, false
	}

	return &LRStatistics{
		EndTimeDeltaMs: (r.EndTime - (r.StartTime + total/1000)) * 1000,
		TCPMs:          tcp,
		RequestMs:      req,
		ResponseMs:     res,
	}, true
}
