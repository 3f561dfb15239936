package trace

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormats(t *testing.T) {
	const array = `[
		{"name":"b","ph":"I","pid":1,"tid":2,"ts":20,"s":"t"},
		{"name":"a","ph":"R","pid":1,"tid":2,"ts":10,"args":{"frame":"F"}}
	]`
	const object = `{"traceEvents":` + array + `,"metadata":{"source":"test"}}`

	for _, input := range []string{array, object} {
		res, err := Parse(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, res.Events, 2)
		assert.Equal(t, "a", res.Events[0].Name)
		assert.Equal(t, PhaseMark, res.Events[0].Ph)
		assert.Equal(t, "F", res.Events[0].FrameID())
		assert.Equal(t, Timestamp(20), res.Events[1].Ts)
		assert.Equal(t, 0, res.Quarantined)
	}
}

func TestParseStableOrder(t *testing.T) {
	const input = `[
		{"name":"first","ph":"I","ts":5},
		{"name":"early","ph":"I","ts":1},
		{"name":"second","ph":"I","ts":5},
		{"name":"third","ph":"I","ts":5}
	]`
	res, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	var names []string
	for _, ev := range res.Events {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"early", "first", "second", "third"}, names)
	assert.True(t, IsSorted(res.Events))
}

func TestParseQuarantine(t *testing.T) {
	const input = `[
		{"name":"ok","ph":"X","ts":1,"dur":4},
		{"name":"weird","ph":"?","ts":2},
		{"name":"empty","ph":"","ts":3},
		{"name":"broken","ph":"I","ts":4,"args":{"data":{"frames":"not a list"}}}
	]`
	res, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, 2, res.Quarantined)
	assert.Equal(t, 1, res.MalformedArgs)
	assert.Equal(t, Timestamp(5), res.Events[0].End())
	assert.Equal(t, "broken", res.Events[1].Name)
	assert.Nil(t, res.Events[1].Args.Data)
}

func TestParseMistypedFields(t *testing.T) {
	const input = `{"traceEvents":[
		{"name":"navigationStart","ph":"R","pid":1,"tid":2,"ts":10},
		{"name":"firstContentfulPaint","ph":"R","pid":1,"tid":2,"ts":20},
		{"name":"bad","ph":"X","pid":1,"tid":"CrBrowserMain","ts":30},
		"not an event"
	]}`
	res, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, 2, res.Quarantined)
	assert.Equal(t, "navigationStart", res.Events[0].Name)
	assert.Equal(t, "firstContentfulPaint", res.Events[1].Name)
	assert.Equal(t, 1, res.Events[1].Seq)
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{"", "   ", "[]", `{"traceEvents":[]}`, `[{"ph":"?"}]`} {
		_, err := Parse(strings.NewReader(input))
		assert.ErrorIs(t, err, ErrEmptyTrace, "input %q", input)
	}
	for _, input := range []string{"[", `{"traceEvents":`, "nope", `[{"ph":"I",}]`} {
		_, err := Parse(strings.NewReader(input))
		assert.Error(t, err, "input %q", input)
		assert.NotErrorIs(t, err, ErrEmptyTrace, "input %q", input)
	}
}

func TestParseSnappy(t *testing.T) {
	const input = `[{"name":"a","ph":"I","ts":1}]`
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	_, err := w.Write([]byte(input))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	res, err := Parse(&buf)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "a", res.Events[0].Name)
}

func TestTimestampSince(t *testing.T) {
	origin := Timestamp(225414172015)
	fcp := Timestamp(225414670885)
	assert.Equal(t, 498.87, fcp.Since(origin))
}

func TestParsePhase(t *testing.T) {
	for _, s := range []string{"B", "E", "X", "I", "i", "R", "M", "b", "e", "n", "S", "T", "F", "s", "t", "f", "P", "O", "N", "D", "C"} {
		ph, ok := ParsePhase(s)
		assert.True(t, ok, s)
		assert.Equal(t, s, ph.String())
	}
	for _, s := range []string{"", "Q", "XX", "z"} {
		_, ok := ParsePhase(s)
		assert.False(t, ok, s)
	}
	assert.True(t, PhaseInstantLegacy.IsInstant())
	assert.True(t, PhaseMark.IsInstant())
	assert.False(t, PhaseComplete.IsInstant())
}
