package ptrace

import (
	"time"

	"golang.org/x/exp/slices"
)

type Statistic struct {
	Count           int
	Min, Max, Total time.Duration
	// Average and Median are in nanoseconds.
	Average, Median float64
}

// ComputeStatistics summarizes the durations of tasks.
func ComputeStatistics(tasks []*Task) Statistic {
	var stat Statistic
	if len(tasks) == 0 {
		return stat
	}

	values := make([]time.Duration, 0, len(tasks))
	for _, task := range tasks {
		stat.Count++
		d := task.Duration()
		if d > stat.Max {
			stat.Max = d
		}
		if d < stat.Min || stat.Count == 1 {
			stat.Min = d
		}
		stat.Total += d
		values = append(values, d)
	}

	stat.Average = float64(stat.Total) / float64(len(values))

	slices.Sort(values)
	if len(values)%2 == 0 {
		mid := len(values) / 2
		stat.Median = float64(values[mid]+values[mid-1]) / 2
	} else {
		stat.Median = float64(values[len(values)/2])
	}

	return stat
}

// ComputeStatisticsByTag groups tasks by each tag they carry and summarizes every group. Untagged tasks are grouped
// under the zero value.
func ComputeStatisticsByTag(tasks []*Task) map[TaskTags]Statistic {
	groups := map[TaskTags][]*Task{}
	for _, task := range tasks {
		if task.Tags == 0 {
			groups[0] = append(groups[0], task)
			continue
		}
		for i := range taskTagNames {
			if tag := TaskTags(1 << i); task.Tags&tag != 0 {
				groups[tag] = append(groups[tag], task)
			}
		}
	}
	out := make(map[TaskTags]Statistic, len(groups))
	for tag, group := range groups {
		out[tag] = ComputeStatistics(group)
	}
	return out
}
