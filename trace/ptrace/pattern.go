package ptrace

// TaskTags summarizes the kind of work a task did.
type TaskTags uint8

const (
	TaskTagScript TaskTags = 1 << iota
	TaskTagParseHTML
	TaskTagStyleLayout
	TaskTagPaint
	TaskTagNetwork
	TaskTagTimer
	TaskTagXHR
)

var taskTagNames = [...]string{
	"script",
	"parseHTML",
	"styleLayout",
	"paint",
	"network",
	"timer",
	"xhr",
}

func (tags TaskTags) String() string {
	if tags == 0 {
		return "other"
	}
	var out []byte
	for i, name := range taskTagNames {
		if tags&(1<<i) == 0 {
			continue
		}
		if len(out) != 0 {
			out = append(out, '|')
		}
		out = append(out, name...)
	}
	return string(out)
}

type pattern struct {
	names []string
	tags  TaskTags
}

var patterns = []pattern{
	{
		names: []string{"EvaluateScript", "v8.compile", "v8.compileModule", "v8.evaluateModule", "FunctionCall", "v8.run"},
		tags:  TaskTagScript,
	},
	{
		names: []string{"ParseHTML"},
		tags:  TaskTagParseHTML,
	},
	{
		names: []string{
			"ScheduleStyleRecalculation", "RecalculateStyles", "UpdateLayoutTree", "InvalidateLayout", "Layout",
			"ParseAuthorStyleSheet",
		},
		tags: TaskTagStyleLayout,
	},
	{
		names: []string{"Paint", "PaintImage", "PrePaint", "CompositeLayers", "RasterTask"},
		tags:  TaskTagPaint,
	},
	{
		names: []string{"ResourceSendRequest", "ResourceReceiveResponse", "ResourceReceivedData", "ResourceFinish"},
		tags:  TaskTagNetwork,
	},
	{
		names: []string{"TimerInstall", "TimerFire", "TimerRemove"},
		tags:  TaskTagTimer,
	},
	{
		names: []string{"XHRReadyStateChange", "XHRLoad"},
		tags:  TaskTagXHR,
	},
}

var tagsByName = func() map[string]TaskTags {
	m := map[string]TaskTags{}
	for _, p := range patterns {
		for _, name := range p.names {
			m[name] |= p.tags
		}
	}
	return m
}()

// EventTags returns the tags that an event with the given name contributes to its task.
func EventTags(name string) TaskTags {
	return tagsByName[name]
}
