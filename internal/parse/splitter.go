package parse

import (
	"regexp"
	"strings"
)

var trailingTaskRe = regexp.MustCompile(`(?i)[\s.,]*\btask\b[\s.,]*$`)

// SplitTasks detects multi-task transcripts. The convention is spoken
// end-markers: each sub-task is terminated by a standalone "task" sentence,
// and the final marker delimits the shared project name rather than another
// task. A transcript with N markers therefore yields N-1 sub-tasks.
//
// Returns nil when the text does not encode multiple tasks.
func SplitTasks(text string) []string {
	segments := strings.Split(text, ".")

	var markers []int
	for i, seg := range segments {
		if taskWordRe.MatchString(seg) {
			markers = append(markers, i)
		}
	}
	if len(markers) < 2 {
		return nil
	}
	// The trailing marker closes the project name, not a task.
	markers = markers[:len(markers)-1]

	var tasks []string
	prev := 0
	for _, m := range markers {
		chunk := strings.TrimSpace(strings.Join(segments[prev:m+1], "."))
		chunk = trailingTaskRe.ReplaceAllString(chunk, "")
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			tasks = append(tasks, chunk)
		}
		prev = m + 1
	}
	return tasks
}
