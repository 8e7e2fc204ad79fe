package segment

import (
	"fmt"
	"os"
	"strings"
)

// NoSegmentsMessage is reported when a run produces no segments.
const NoSegmentsMessage = "No valid segments found."

// Format renders segments numbered from 1 as
// "Segment n [start s - end s]:\ntext\n\n" with two-decimal times.
func Format(segments []Segment) string {
	var b strings.Builder
	for i, s := range segments {
		fmt.Fprintf(&b, "Segment %d [%.2fs - %.2fs]:\n%s\n\n", i+1, s.StartTime, s.EndTime, s.Text)
	}
	return b.String()
}

// WriteFile writes the formatted segments of res to path. It returns false
// without touching the file when res has no segments.
func WriteFile(path string, res Result) (bool, error) {
	if len(res.Segments) == 0 {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(Format(res.Segments)), 0o644); err != nil {
		return false, fmt.Errorf("write segments: %w", err)
	}
	return true, nil
}
