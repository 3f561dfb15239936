package netlog

import (
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"honnef.co/go/lantern/diag"
)

type Options struct {
	// TrustedRelay applies timing and size information injected by a trusted relay into response headers.
	TrustedRelay bool
	Logger       *zap.Logger
	Diag         *diag.Recorder
}

type recorder struct {
	opts Options
	log  *zap.Logger

	records []*Record
	// open maps request IDs to the latest record using them. Redirects replace the entry.
	open map[string]*Record
}

// Reconstruct turns protocol messages into one record per request, ordered by first appearance. Malformed or
// out-of-order messages are skipped.
func Reconstruct(msgs []Message, opts Options) []*Record {
	rec := &recorder{
		opts: opts,
		log:  opts.Logger,
		open: map[string]*Record{},
	}
	if rec.log == nil {
		rec.log = zap.NewNop()
	}

	for _, msg := range msgs {
		switch msg := msg.(type) {
		case *RequestWillBeSent:
			rec.onRequestWillBeSent(msg)
		case *RequestServedFromCache:
			if r := rec.lookup(msg); r != nil {
				r.FromMemoryCache = true
			}
		case *ResponseReceived:
			if r := rec.lookup(msg); r != nil {
				rec.onResponse(r, &msg.Response, msg.Timestamp, msg.Type)
			}
		case *DataReceived:
			if r := rec.lookup(msg); r != nil {
				r.ResourceSize += msg.DataLength
				if msg.EncodedDataLength != -1 {
					r.TransferSize += msg.EncodedDataLength
				}
			}
		case *LoadingFinished:
			if r := rec.lookup(msg); r != nil {
				rec.onFinished(r, msg.Timestamp, msg.EncodedDataLength)
			}
		case *LoadingFailed:
			if r := rec.lookup(msg); r != nil {
				rec.onFailed(r, msg)
			}
		case *ResourceChangedPriority:
			if r := rec.lookup(msg); r != nil {
				r.Priority = msg.NewPriority
			}
		}
	}

	for _, r := range rec.records {
		if !r.Finished() {
			rec.opts.Diag.Inc(diag.NetlogUnfinished)
			rec.log.Debug("request never finished", zap.String("requestId", r.RequestID), zap.String("url", r.URL))
		}
		if r.EndTime >= 0 && r.StartTime > r.EndTime {
			rec.opts.Diag.Inc(diag.NetlogNegativeWindow)
			rec.log.Debug("request ends before it starts",
				zap.String("requestId", r.RequestID),
				zap.Float64("startTime", r.StartTime),
				zap.Float64("endTime", r.EndTime))
		} else if r.EndTime < 0 && r.Finished() {
			rec.opts.Diag.Inc(diag.NetlogNegativeWindow)
		}
	}
	return rec.records
}

func (rec *recorder) lookup(msg Message) *Record {
	r, ok := rec.open[msg.ID()]
	if !ok {
		rec.opts.Diag.Inc(diag.NetlogUnmatchedEvent)
		rec.log.Debug("message for unknown request", zap.String("method", msg.Method()), zap.String("requestId", msg.ID()))
		return nil
	}
	if r.Finished() {
		if _, ok := msg.(*ResourceChangedPriority); !ok {
			rec.opts.Diag.Inc(diag.NetlogUnmatchedEvent)
			rec.log.Debug("message for finished request", zap.String("method", msg.Method()), zap.String("requestId", msg.ID()))
			return nil
		}
	}
	return r
}

func newRecord(msg *RequestWillBeSent) *Record {
	return &Record{
		RequestID:            msg.RequestID,
		URL:                  msg.Request.URL,
		ParsedURL:            parseURL(msg.Request.URL),
		DocumentURL:          msg.DocumentURL,
		FrameID:              msg.FrameID,
		Method:               msg.Request.Method,
		ResourceType:         msg.Type,
		Priority:             msg.Request.InitialPriority,
		StartTime:            msg.Timestamp,
		ResponseReceivedTime: -1,
		EndTime:              -1,
		Initiator:            msg.Initiator,
	}
}

func (rec *recorder) onRequestWillBeSent(msg *RequestWillBeSent) {
	prev, ok := rec.open[msg.RequestID]
	if !ok {
		r := newRecord(msg)
		rec.records = append(rec.records, r)
		rec.open[msg.RequestID] = r
		return
	}
	if msg.RedirectResponse == nil {
		rec.opts.Diag.Inc(diag.NetlogDuplicateRequest)
		rec.log.Debug("duplicate request", zap.String("requestId", msg.RequestID), zap.String("url", msg.Request.URL))
		return
	}

	// The redirect response completes the previous hop.
	rec.onResponse(prev, msg.RedirectResponse, msg.Timestamp, "")
	rec.onFinished(prev, msg.Timestamp, msg.RedirectResponse.EncodedDataLength)

	r := newRecord(msg)
	r.RequestID = prev.RequestID + ":redirect"
	if r.Priority == "" {
		r.Priority = prev.Priority
	}
	if r.ResourceType == "" {
		r.ResourceType = prev.ResourceType
	}
	if r.Initiator.Type == "" {
		r.Initiator = prev.Initiator
	}
	r.RedirectSource = prev
	prev.RedirectDestination = r
	rec.records = append(rec.records, r)
	rec.open[msg.RequestID] = r
}

func (rec *recorder) onResponse(r *Record, resp *Response, ts float64, typ ResourceType) {
	r.ResponseReceivedTime = ts
	r.Protocol = resp.Protocol
	r.StatusCode = resp.Status
	r.MimeType = resp.MimeType
	r.ConnectionID = resp.ConnectionID
	r.ConnectionReused = resp.ConnectionReused
	r.FromDiskCache = resp.FromDiskCache
	r.FromServiceWorker = resp.FromServiceWorker
	if resp.EncodedDataLength >= 0 {
		rec.setTransferSize(r, resp.EncodedDataLength)
	}
	if typ != "" {
		r.ResourceType = typ
	}

	r.ResponseHeaders = r.ResponseHeaders[:0]
	for name, value := range resp.Headers {
		r.ResponseHeaders = append(r.ResponseHeaders, Header{Name: name, Value: value})
	}
	slices.SortFunc(r.ResponseHeaders, func(a, b Header) int { return strings.Compare(a.Name, b.Name) })

	if resp.Timing != nil {
		t := *resp.Timing
		r.Timing = &t
		r.recomputeTimes()
	}
}

// recomputeTimes derives start and response times from resource timing, which is more precise than message
// timestamps.
func (r *Record) recomputeTimes() {
	t := r.Timing
	if t.RequestTime == 0 || t.ReceiveHeadersEnd == -1 {
		return
	}
	r.StartTime = t.RequestTime
	headersReceived := t.RequestTime + t.ReceiveHeadersEnd/1000
	if r.ResponseReceivedTime < 0 {
		r.ResponseReceivedTime = headersReceived
	}
	r.ResponseReceivedTime = min(r.ResponseReceivedTime, headersReceived)
	r.ResponseReceivedTime = max(r.ResponseReceivedTime, r.StartTime)
	if r.EndTime >= 0 {
		r.EndTime = max(r.EndTime, r.ResponseReceivedTime)
	}
}

func (rec *recorder) finalize(r *Record, ts float64) {
	r.EndTime = ts
	if r.ResponseReceivedTime < 0 || r.ResponseReceivedTime > r.EndTime {
		r.ResponseReceivedTime = r.EndTime
	}
	r.Phases = computePhases(r)
	if rec.opts.TrustedRelay {
		applyTrustedRelay(r, rec.opts.Diag, rec.log)
	}
}

func (rec *recorder) onFinished(r *Record, ts float64, encodedDataLength float64) {
	r.Status = StatusFinished
	if encodedDataLength >= 0 {
		rec.setTransferSize(r, encodedDataLength)
	}
	rec.finalize(r, ts)
}

// byteCount converts a size in bytes to an int64. Sizes outside [0, MaxInt64) and NaN are rejected.
func byteCount(v float64) (int64, bool) {
	if math.IsNaN(v) || v < 0 || v >= math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func (rec *recorder) setTransferSize(r *Record, v float64) {
	size, ok := byteCount(v)
	if !ok {
		rec.opts.Diag.Inc(diag.NetlogMalformedParams)
		rec.log.Debug("ignoring invalid transfer size", zap.String("requestId", r.RequestID), zap.Float64("size", v))
		return
	}
	r.TransferSize = size
}

func (rec *recorder) onFailed(r *Record, msg *LoadingFailed) {
	r.Status = StatusFailed
	if msg.Canceled {
		r.Status = StatusCanceled
	}
	r.FailureText = msg.ErrorText
	if msg.Type != "" {
		r.ResourceType = msg.Type
	}
	rec.finalize(r, msg.Timestamp)
}

func span(start, end float64) float64 {
	if start < 0 || end < 0 || end < start {
		return 0
	}
	return end - start
}

func computePhases(r *Record) Phases {
	var p Phases
	if t := r.Timing; t != nil {
		p.DNS = span(t.DNSStart, t.DNSEnd)
		p.Connect = span(t.ConnectStart, t.ConnectEnd)
		p.SSL = span(t.SSLStart, t.SSLEnd)
		p.Send = span(t.SendStart, t.SendEnd)
		p.Wait = span(t.SendEnd, t.ReceiveHeadersEnd)
	}
	p.Receive = span(r.ResponseReceivedTime, r.EndTime) * 1000
	return p
}
