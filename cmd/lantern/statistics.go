package main

import (
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/exp/slices"

	"honnef.co/go/lantern/trace/ptrace"
)

// writeStatistics writes the duration statistics of main thread tasks, grouped by their tags, as CSV. Durations are
// in nanoseconds.
func writeStatistics(w io.Writer, stats map[ptrace.TaskTags]ptrace.Statistic) error {
	tags := make([]ptrace.TaskTags, 0, len(stats))
	for tag := range stats {
		tags = append(tags, tag)
	}
	slices.Sort(tags)

	cw := csv.NewWriter(w)
	cw.Write([]string{"Tags", "Count", "Min", "Max", "Total", "Average", "Median"})
	for _, tag := range tags {
		stat := stats[tag]
		cw.Write([]string{
			tag.String(),
			fmt.Sprintf("%d", stat.Count),
			fmt.Sprintf("%d", stat.Min),
			fmt.Sprintf("%d", stat.Max),
			fmt.Sprintf("%d", stat.Total),
			fmt.Sprintf("%f", stat.Average),
			fmt.Sprintf("%f", stat.Median),
		})
	}

	cw.Flush()
	return cw.Error()
}
