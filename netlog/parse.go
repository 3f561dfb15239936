// Package netlog reconstructs network requests from a DevTools protocol log.
package netlog

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"honnef.co/go/lantern/trace"
)

// ParseResult is the result of ParseLog.
type ParseResult struct {
	// Messages are the Network domain messages we understand, in log order.
	Messages []Message
	// UnknownMethods counts log entries of other methods and domains.
	UnknownMethods int
	// MalformedParams counts entries whose params could not be decoded. They are dropped.
	MalformedParams int
}

type rawEntry struct {
	Method string         `json:"method"`
	Params jsontext.Value `json:"params"`
}

var decodeOptions = json.JoinOptions(
	jsontext.AllowDuplicateNames(true),
	jsontext.AllowInvalidUTF8(true),
)

// ParseLog decodes a DevTools log, a JSON array of {method, params} objects. Snappy-framed input is decompressed.
func ParseLog(r io.Reader) (ParseResult, error) {
	data, err := io.ReadAll(trace.Decompress(r))
	if err != nil {
		return ParseResult{}, fmt.Errorf("failed to read network log: %w", err)
	}
	data = bytes.TrimSpace(data)

	var raws []rawEntry
	if err := json.Unmarshal(data, &raws, decodeOptions); err != nil {
		return ParseResult{}, fmt.Errorf("failed to decode network log: %w", err)
	}

	var res ParseResult
	res.Messages = make([]Message, 0, len(raws))
	for i := range raws {
		raw := &raws[i]
		msg := newMessage(raw.Method)
		if msg == nil {
			res.UnknownMethods++
			continue
		}
		if len(raw.Params) == 0 {
			res.MalformedParams++
			continue
		}
		if err := json.Unmarshal(raw.Params, msg, decodeOptions); err != nil || msg.ID() == "" {
			res.MalformedParams++
			continue
		}
		res.Messages = append(res.Messages, msg)
	}
	return res, nil
}

type wireEntry struct {
	Method string  `json:"method"`
	Params Message `json:"params"`
}

// MarshalLog encodes messages in the format read by ParseLog.
func MarshalLog(msgs []Message) ([]byte, error) {
	entries := make([]wireEntry, len(msgs))
	for i, msg := range msgs {
		entries[i] = wireEntry{Method: msg.Method(), Params: msg}
	}
	return json.Marshal(entries)
}
