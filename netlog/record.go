package netlog

import (
	"net/url"
	"strings"
)

type ResourceType string

const (
	ResourceTypeDocument   ResourceType = "Document"
	ResourceTypeStylesheet ResourceType = "Stylesheet"
	ResourceTypeImage      ResourceType = "Image"
	ResourceTypeMedia      ResourceType = "Media"
	ResourceTypeFont       ResourceType = "Font"
	ResourceTypeScript     ResourceType = "Script"
	ResourceTypeXHR        ResourceType = "XHR"
	ResourceTypeFetch      ResourceType = "Fetch"
	ResourceTypeOther      ResourceType = "Other"
)

type Priority string

const (
	PriorityVeryLow  Priority = "VeryLow"
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityVeryHigh Priority = "VeryHigh"
)

type Status uint8

const (
	StatusPending Status = iota
	StatusFinished
	StatusFailed
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type ParsedURL struct {
	Scheme string
	Host   string
	// SecurityOrigin is scheme://host[:port] for hierarchical URLs and "null" otherwise.
	SecurityOrigin string
}

func parseURL(s string) ParsedURL {
	u, err := url.Parse(s)
	if err != nil {
		return ParsedURL{SecurityOrigin: "null"}
	}
	p := ParsedURL{Scheme: u.Scheme, Host: u.Hostname(), SecurityOrigin: "null"}
	if u.Host != "" {
		p.SecurityOrigin = u.Scheme + "://" + u.Host
	}
	return p
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Phases is the timing breakdown of a request, in milliseconds. Absent phases are zero.
type Phases struct {
	DNS     float64 `json:"dns"`
	Connect float64 `json:"connect"`
	SSL     float64 `json:"ssl"`
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// LRStatistics holds the timing reported by a trusted relay.
type LRStatistics struct {
	EndTimeDeltaMs float64 `json:"endTimeDeltaMs"`
	TCPMs          float64 `json:"TCPMs"`
	RequestMs      float64 `json:"requestMs"`
	ResponseMs     float64 `json:"responseMs"`
}

// Record is a single network request, reconstructed from protocol messages. Times are in seconds on the protocol
// clock, -1 if unknown.
type Record struct {
	RequestID   string
	URL         string
	ParsedURL   ParsedURL
	DocumentURL string
	FrameID     string
	Method      string

	ResourceType ResourceType
	Priority     Priority
	Protocol     string
	StatusCode   int
	MimeType     string

	TransferSize int64
	ResourceSize int64

	StartTime            float64
	ResponseReceivedTime float64
	EndTime              float64

	Timing          *ResourceTiming
	Phases          Phases
	ResponseHeaders []Header

	ConnectionID      int64
	ConnectionReused  bool
	FromDiskCache     bool
	FromMemoryCache   bool
	FromServiceWorker bool

	Initiator Initiator

	RedirectSource      *Record
	RedirectDestination *Record

	Status      Status
	FailureText string

	LRStatistics *LRStatistics
}

// Header returns the value of the first response header with the given name, compared case-insensitively.
func (r *Record) Header(name string) (string, bool) {
	for _, h := range r.ResponseHeaders {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Finished reports whether the request completed, successfully or not.
func (r *Record) Finished() bool {
	return r.Status != StatusPending
}

// Origin returns the security origin of the request's URL.
func Origin(r *Record) string {
	return r.ParsedURL.SecurityOrigin
}

var secureSchemes = map[string]bool{
	"data":             true,
	"https":            true,
	"wss":              true,
	"blob":             true,
	"chrome":           true,
	"chrome-extension": true,
	"about":            true,
	"filesystem":       true,
}

var nonNetworkSchemes = map[string]bool{
	"blob":             true,
	"data":             true,
	"intent":           true,
	"file":             true,
	"filesystem":       true,
	"chrome-extension": true,
}

func isLikeLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".localhost")
}

// IsSecureRequest reports whether the request used a secure scheme, went to the local machine, or was upgraded by
// HSTS.
func IsSecureRequest(r *Record) bool {
	return secureSchemes[r.ParsedURL.Scheme] ||
		secureSchemes[r.Protocol] ||
		isLikeLocalhost(r.ParsedURL.Host) ||
		IsHSTSRequest(r)
}

// IsHSTSRequest reports whether the browser itself redirected the request to a secure URL because of HSTS.
func IsHSTSRequest(r *Record) bool {
	dst := r.RedirectDestination
	if dst == nil {
		return false
	}
	reason, _ := r.Header("Non-Authoritative-Reason")
	return reason == "HSTS" && IsSecureRequest(dst)
}

// IsNonNetworkRequest reports whether the request was served without touching the network.
func IsNonNetworkRequest(r *Record) bool {
	return nonNetworkSchemes[r.Protocol] || nonNetworkSchemes[r.ParsedURL.Scheme]
}

// HasRenderBlockingPriority reports whether the browser prioritized the request as blocking rendering.
func HasRenderBlockingPriority(r *Record) bool {
	switch r.Priority {
	case PriorityVeryHigh:
		return true
	case PriorityHigh:
		return r.ResourceType == ResourceTypeScript || r.ResourceType == ResourceTypeDocument
	default:
		return false
	}
}
