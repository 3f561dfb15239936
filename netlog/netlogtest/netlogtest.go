// Package netlogtest turns descriptions of network requests into protocol messages, for tests.
package netlogtest

import (
	"fmt"
	"strconv"

	"honnef.co/go/lantern/netlog"
)

// Request describes a request. Zero values are replaced with defaults where noted.
type Request struct {
	RequestID string // defaults to the request's index
	URL       string // defaults to https://example.com/
	FrameID   string
	Type      netlog.ResourceType
	Priority  netlog.Priority
	Protocol  string // defaults to http/1.1
	Status    int    // defaults to 200

	// Times in seconds. ResponseReceivedTime defaults to the midpoint of the request.
	StartTime            float64
	ResponseReceivedTime float64
	EndTime              float64

	TransferSize    int64
	ResponseHeaders []netlog.Header
	Timing          *netlog.ResourceTiming

	ConnectionID     int64
	ConnectionReused bool
	Initiator        netlog.Initiator

	// RedirectTo makes the request redirect to a new URL. The redirect hop starts at the request's EndTime.
	RedirectTo *Request

	Failed   bool
	Canceled bool
}

// Messages returns the messages a browser would have logged for reqs.
func Messages(reqs []Request) []netlog.Message {
	var msgs []netlog.Message
	for i := range reqs {
		req := reqs[i]
		if req.RequestID == "" {
			req.RequestID = strconv.Itoa(i + 1)
		}
		msgs = appendRequest(msgs, req, nil)
	}
	return msgs
}

func defaults(req *Request) {
	if req.URL == "" {
		req.URL = "https://example.com/"
	}
	if req.Protocol == "" {
		req.Protocol = "http/1.1"
	}
	if req.Status == 0 {
		req.Status = 200
	}
	if req.ResponseReceivedTime == 0 {
		req.ResponseReceivedTime = (req.StartTime + req.EndTime) / 2
	}
}

func response(req *Request) netlog.Response {
	headers := map[string]string{}
	for _, h := range req.ResponseHeaders {
		headers[h.Name] = h.Value
	}
	return netlog.Response{
		URL:               req.URL,
		Status:            req.Status,
		Headers:           headers,
		MimeType:          "text/html",
		ConnectionReused:  req.ConnectionReused,
		ConnectionID:      req.ConnectionID,
		Protocol:          req.Protocol,
		EncodedDataLength: float64(req.TransferSize),
		Timing:            req.Timing,
	}
}

func appendRequest(msgs []netlog.Message, req Request, redirectResponse *netlog.Response) []netlog.Message {
	defaults(&req)
	msgs = append(msgs, &netlog.RequestWillBeSent{
		RequestID:        req.RequestID,
		FrameID:          req.FrameID,
		DocumentURL:      req.URL,
		Request:          netlog.Request{URL: req.URL, Method: "GET", InitialPriority: req.Priority},
		Timestamp:        req.StartTime,
		Initiator:        req.Initiator,
		RedirectResponse: redirectResponse,
		Type:             req.Type,
	})

	if req.RedirectTo != nil {
		next := *req.RedirectTo
		next.RequestID = req.RequestID
		next.StartTime = req.EndTime
		resp := response(&req)
		resp.Status = 302
		resp.Headers["Location"] = next.URL
		return appendRequest(msgs, next, &resp)
	}

	msgs = append(msgs, &netlog.ResponseReceived{
		RequestID: req.RequestID,
		FrameID:   req.FrameID,
		Timestamp: req.ResponseReceivedTime,
		Type:      req.Type,
		Response:  response(&req),
	})
	if req.Failed || req.Canceled {
		return append(msgs, &netlog.LoadingFailed{
			RequestID: req.RequestID,
			Timestamp: req.EndTime,
			ErrorText: fmt.Sprintf("net::ERR_FAILED (%s)", req.URL),
			Canceled:  req.Canceled,
		})
	}
	return append(msgs, &netlog.LoadingFinished{
		RequestID:         req.RequestID,
		Timestamp:         req.EndTime,
		EncodedDataLength: float64(req.TransferSize),
	})
}
