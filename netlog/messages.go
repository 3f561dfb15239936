package netlog

import "github.com/go-json-experiment/json"

// Message is a DevTools protocol Network domain event. The set of implementations is closed.
type Message interface {
	// Method returns the protocol method name, such as Network.requestWillBeSent.
	Method() string
	ID() string
	isMessage()
}

const (
	MethodRequestWillBeSent       = "Network.requestWillBeSent"
	MethodRequestServedFromCache  = "Network.requestServedFromCache"
	MethodResponseReceived        = "Network.responseReceived"
	MethodDataReceived            = "Network.dataReceived"
	MethodLoadingFinished         = "Network.loadingFinished"
	MethodLoadingFailed           = "Network.loadingFailed"
	MethodResourceChangedPriority = "Network.resourceChangedPriority"
)

type Request struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers,omitempty"`
	InitialPriority Priority          `json:"initialPriority,omitempty"`
}

// ResourceTiming is the resource timing of a response. RequestTime is in seconds on the protocol clock, all other
// fields are offsets from it in milliseconds, with -1 meaning absent.
type ResourceTiming struct {
	RequestTime       float64 `json:"requestTime"`
	ProxyStart        float64 `json:"proxyStart"`
	ProxyEnd          float64 `json:"proxyEnd"`
	DNSStart          float64 `json:"dnsStart"`
	DNSEnd            float64 `json:"dnsEnd"`
	ConnectStart      float64 `json:"connectStart"`
	ConnectEnd        float64 `json:"connectEnd"`
	SSLStart          float64 `json:"sslStart"`
	SSLEnd            float64 `json:"sslEnd"`
	WorkerStart       float64 `json:"workerStart"`
	WorkerReady       float64 `json:"workerReady"`
	SendStart         float64 `json:"sendStart"`
	SendEnd           float64 `json:"sendEnd"`
	PushStart         float64 `json:"pushStart"`
	PushEnd           float64 `json:"pushEnd"`
	ReceiveHeadersEnd float64 `json:"receiveHeadersEnd"`
}

// NewResourceTiming returns a timing with all offsets absent.
func NewResourceTiming(requestTime float64) *ResourceTiming {
	return &ResourceTiming{
		RequestTime:       requestTime,
		ProxyStart:        -1,
		ProxyEnd:          -1,
		DNSStart:          -1,
		DNSEnd:            -1,
		ConnectStart:      -1,
		ConnectEnd:        -1,
		SSLStart:          -1,
		SSLEnd:            -1,
		WorkerStart:       -1,
		WorkerReady:       -1,
		SendStart:         -1,
		SendEnd:           -1,
		PushStart:         -1,
		PushEnd:           -1,
		ReceiveHeadersEnd: -1,
	}
}

// UnmarshalJSON treats missing offsets as absent rather than zero.
func (t *ResourceTiming) UnmarshalJSON(b []byte) error {
	type plain ResourceTiming
	v := plain(*NewResourceTiming(0))
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = ResourceTiming(v)
	return nil
}

type Response struct {
	URL               string            `json:"url"`
	Status            int               `json:"status"`
	StatusText        string            `json:"statusText,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	MimeType          string            `json:"mimeType,omitempty"`
	ConnectionReused  bool              `json:"connectionReused"`
	ConnectionID      int64             `json:"connectionId"`
	FromDiskCache     bool              `json:"fromDiskCache,omitempty"`
	FromServiceWorker bool              `json:"fromServiceWorker,omitempty"`
	EncodedDataLength float64           `json:"encodedDataLength"`
	Timing            *ResourceTiming   `json:"timing,omitempty"`
	Protocol          string            `json:"protocol,omitempty"`
}

type CallFrame struct {
	FunctionName string `json:"functionName"`
	URL          string `json:"url"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

type StackTrace struct {
	CallFrames []CallFrame `json:"callFrames"`
	Parent     *StackTrace `json:"parent,omitempty"`
}

type Initiator struct {
	Type       string      `json:"type"`
	URL        string      `json:"url,omitempty"`
	LineNumber float64     `json:"lineNumber,omitempty"`
	Stack      *StackTrace `json:"stack,omitempty"`
}

// StackURLs returns the distinct script URLs on the initiator's stack, innermost first.
func (in Initiator) StackURLs() []string {
	var out []string
	seen := map[string]bool{}
	for st := in.Stack; st != nil; st = st.Parent {
		for _, cf := range st.CallFrames {
			if cf.URL != "" && !seen[cf.URL] {
				seen[cf.URL] = true
				out = append(out, cf.URL)
			}
		}
	}
	return out
}

type RequestWillBeSent struct {
	RequestID        string       `json:"requestId"`
	FrameID          string       `json:"frameId,omitempty"`
	DocumentURL      string       `json:"documentURL,omitempty"`
	Request          Request      `json:"request"`
	Timestamp        float64      `json:"timestamp"`
	WallTime         float64      `json:"wallTime,omitempty"`
	Initiator        Initiator    `json:"initiator"`
	RedirectResponse *Response    `json:"redirectResponse,omitempty"`
	Type             ResourceType `json:"type,omitempty"`
}

type RequestServedFromCache struct {
	RequestID string `json:"requestId"`
}

type ResponseReceived struct {
	RequestID string       `json:"requestId"`
	FrameID   string       `json:"frameId,omitempty"`
	Timestamp float64      `json:"timestamp"`
	Type      ResourceType `json:"type,omitempty"`
	Response  Response     `json:"response"`
}

type DataReceived struct {
	RequestID         string  `json:"requestId"`
	Timestamp         float64 `json:"timestamp"`
	DataLength        int64   `json:"dataLength"`
	EncodedDataLength int64   `json:"encodedDataLength"`
}

type LoadingFinished struct {
	RequestID         string  `json:"requestId"`
	Timestamp         float64 `json:"timestamp"`
	EncodedDataLength float64 `json:"encodedDataLength"`
}

type LoadingFailed struct {
	RequestID string       `json:"requestId"`
	Timestamp float64      `json:"timestamp"`
	Type      ResourceType `json:"type,omitempty"`
	ErrorText string       `json:"errorText"`
	Canceled  bool         `json:"canceled,omitempty"`
}

type ResourceChangedPriority struct {
	RequestID   string   `json:"requestId"`
	NewPriority Priority `json:"newPriority"`
	Timestamp   float64  `json:"timestamp"`
}

func (*RequestWillBeSent) Method() string       { return MethodRequestWillBeSent }
func (*RequestServedFromCache) Method() string  { return MethodRequestServedFromCache }
func (*ResponseReceived) Method() string        { return MethodResponseReceived }
func (*DataReceived) Method() string            { return MethodDataReceived }
func (*LoadingFinished) Method() string         { return MethodLoadingFinished }
func (*LoadingFailed) Method() string           { return MethodLoadingFailed }
func (*ResourceChangedPriority) Method() string { return MethodResourceChangedPriority }

func (m *RequestWillBeSent) ID() string       { return m.RequestID }
func (m *RequestServedFromCache) ID() string  { return m.RequestID }
func (m *ResponseReceived) ID() string        { return m.RequestID }
func (m *DataReceived) ID() string            { return m.RequestID }
func (m *LoadingFinished) ID() string         { return m.RequestID }
func (m *LoadingFailed) ID() string           { return m.RequestID }
func (m *ResourceChangedPriority) ID() string { return m.RequestID }

func (*RequestWillBeSent) isMessage()       {}
func (*RequestServedFromCache) isMessage()  {}
func (*ResponseReceived) isMessage()        {}
func (*DataReceived) isMessage()            {}
func (*LoadingFinished) isMessage()         {}
func (*LoadingFailed) isMessage()           {}
func (*ResourceChangedPriority) isMessage() {}

// newMessage returns a zero message for a method, or nil for methods we don't process.
func newMessage(method string) Message {
	switch method {
	case MethodRequestWillBeSent:
		return &RequestWillBeSent{}
	case MethodRequestServedFromCache:
		return &RequestServedFromCache{}
	case MethodResponseReceived:
		return &ResponseReceived{}
	case MethodDataReceived:
		return &DataReceived{}
	case MethodLoadingFinished:
		return &LoadingFinished{}
	case MethodLoadingFailed:
		return &LoadingFailed{}
	case MethodResourceChangedPriority:
		return &ResourceChangedPriority{}
	default:
		return nil
	}
}
