package ptrace

import (
	"cmp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"honnef.co/go/lantern/container"
	"honnef.co/go/lantern/diag"
	"honnef.co/go/lantern/trace"
)

// Task is a top-level task of the main thread.
type Task struct {
	Event EventID
	Name  string
	Start trace.Timestamp
	End   trace.Timestamp
	// Children are the events that happened during the task, in trace order. Nested tasks are children, too.
	Children []EventID
	Tags     TaskTags
}

func (t *Task) Duration() time.Duration {
	return time.Duration(float64(t.End-t.Start) * float64(time.Microsecond))
}

func isTopLevelTask(name string) bool {
	switch name {
	case "RunTask", "ThreadControllerImpl::RunTask", "ThreadControllerImpl::DoWork", "TaskQueueManager::ProcessTaskFromWorkQueue":
		return true
	default:
		return false
	}
}

// MainThreadTasks returns the top-level tasks of the tracked main thread, sorted by start time.
func MainThreadTasks(tr *Trace) []*Task {
	var tasks []*Task
	var open []*Task
	taskEvents := container.Set[EventID]{}

	for _, id := range tr.MainThreadEvents {
		ev := tr.Event(id)
		if !isTopLevelTask(ev.Name) {
			continue
		}
		state := trace.PhaseNone
		if len(open) != 0 {
			state = trace.PhaseBegin
		}
		if !legalPhaseTransitions[state][ev.Ph] {
			if ev.Ph == trace.PhaseEnd {
				tr.diag.Inc(diag.TraceUnmatchedEnd)
				tr.log.Debug("dropping unmatched end of task", zap.String("name", ev.Name), zap.Float64("ts", float64(ev.Ts)))
			}
			continue
		}

		taskEvents.Add(id)
		switch ev.Ph {
		case trace.PhaseComplete:
			tasks = append(tasks, &Task{Event: id, Name: ev.Name, Start: ev.Ts, End: ev.End()})
		case trace.PhaseBegin:
			open = append(open, &Task{Event: id, Name: ev.Name, Start: ev.Ts})
		case trace.PhaseEnd:
			t := open[len(open)-1]
			open = open[:len(open)-1]
			t.End = ev.Ts
			tasks = append(tasks, t)
		}
	}
	for _, t := range open {
		tr.diag.Inc(diag.TraceUnclosedTask)
		t.End = tr.TraceEndTs
		tasks = append(tasks, t)
	}

	// Outer tasks sort before the tasks they enclose.
	slices.SortStableFunc(tasks, func(a, b *Task) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(b.End, a.End)
	})

	tree := container.NewIntervalTree[trace.Timestamp, *Task]()
	var top []*Task
	for _, t := range tasks {
		var outer *Task
		tree.Enclosing(t.Start, t.End, func(_ container.Interval[trace.Timestamp], v *Task) bool {
			outer = v
			return true
		})
		if outer != nil {
			outer.Children = append(outer.Children, t.Event)
			continue
		}
		top = append(top, t)
		tree.Insert(t.Start, t.End, t)
	}

	for _, id := range tr.MainThreadEvents {
		ev := tr.Event(id)
		if taskEvents.Has(id) || ev.Ph == trace.PhaseEnd || ev.Ph == trace.PhaseMetadata {
			continue
		}
		tree.Enclosing(ev.Ts, ev.End(), func(_ container.Interval[trace.Timestamp], t *Task) bool {
			t.Children = append(t.Children, id)
			t.Tags |= EventTags(ev.Name)
			return true
		})
	}
	for _, t := range top {
		slices.Sort(t.Children)
	}

	return top
}
