package segment

import (
	"strings"

	"github.com/snarg/transcript-segmenter/internal/transcript"
)

// MinSentencesPerSegment is the smallest span a boundary may cut off. It
// does not apply to the trailing segment.
const MinSentencesPerSegment = 5

// Segment is a contiguous run of sentences with its recovered time range.
type Segment struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Assemble cuts sentences at the given boundary indices. A boundary i is
// taken only when i > 0 and at least MinSentencesPerSegment sentences have
// accumulated since the previous cut; otherwise it is skipped. Whatever is
// left after the last cut is emitted as a final segment when its text is not
// empty. Boundaries past the end of the sentence list are clamped: the span
// ends at the last sentence and its end time is the last sentence's end.
func Assemble(sentences []transcript.TimedSentence, boundaries []int) []Segment {
	if len(sentences) == 0 {
		return nil
	}
	lastEnd := sentences[len(sentences)-1].End

	var segments []Segment
	startIdx := 0
	for _, i := range boundaries {
		if i <= 0 || i-startIdx < MinSentencesPerSegment {
			continue
		}

		if text := joinSpan(sentences, startIdx, i); text != "" {
			end := lastEnd
			if i-1 < len(sentences) {
				end = sentences[i-1].End
			}
			segments = append(segments, Segment{
				Text:      text,
				StartTime: sentences[startIdx].Start,
				EndTime:   end,
			})
		}
		startIdx = i
	}

	if text := joinSpan(sentences, startIdx, len(sentences)); text != "" {
		segments = append(segments, Segment{
			Text:      text,
			StartTime: sentences[startIdx].Start,
			EndTime:   lastEnd,
		})
	}
	return segments
}

// Whole returns the single segment spanning every sentence.
func Whole(sentences []transcript.TimedSentence) Segment {
	return Segment{
		Text:      joinSpan(sentences, 0, len(sentences)),
		StartTime: sentences[0].Start,
		EndTime:   sentences[len(sentences)-1].End,
	}
}

// joinSpan space-joins sentences[from:to] with both bounds clamped to the
// slice, trimming the result.
func joinSpan(sentences []transcript.TimedSentence, from, to int) string {
	if to > len(sentences) {
		to = len(sentences)
	}
	if from >= to {
		return ""
	}
	parts := make([]string, 0, to-from)
	for _, s := range sentences[from:to] {
		parts = append(parts, s.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
