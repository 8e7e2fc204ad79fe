package transcript

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// rangeSeparator splits the start and end seconds on a timestamp line.
const rangeSeparator = " --> "

// TimedSentence is one transcript sentence with its start/end time in seconds.
type TimedSentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is the parsed form of a line-triplet transcript.
type Transcript struct {
	Sentences []TimedSentence
	Tokens    []string
}

// Texts returns the sentence texts in transcript order.
func (t *Transcript) Texts() []string {
	out := make([]string, len(t.Sentences))
	for i, s := range t.Sentences {
		out[i] = s.Text
	}
	return out
}

// Duration returns the span from the first sentence's start to the last
// sentence's end, or 0 for an empty transcript.
func (t *Transcript) Duration() float64 {
	if len(t.Sentences) == 0 {
		return 0
	}
	return t.Sentences[len(t.Sentences)-1].End - t.Sentences[0].Start
}

// ParseLines reads lines in groups of three: a "start --> end" line, a text
// line, and a blank separator. Groups that don't parse are dropped without
// error. A trailing group with fewer than two lines is ignored.
func ParseLines(lines []string) *Transcript {
	t := &Transcript{}
	for i := 0; i < len(lines); i += 3 {
		if i+1 >= len(lines) {
			continue
		}

		s, ok := parseGroup(lines[i], lines[i+1])
		if !ok {
			continue
		}
		t.Sentences = append(t.Sentences, s)
	}
	t.Tokens = TokenizeSentences(t.Sentences)
	return t
}

// FromSentences builds a Transcript from already-parsed sentences. Text is
// trimmed and blank sentences are dropped, as the parser does.
func FromSentences(sentences []TimedSentence) *Transcript {
	kept := make([]TimedSentence, 0, len(sentences))
	for _, s := range sentences {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		kept = append(kept, s)
	}
	return &Transcript{
		Sentences: kept,
		Tokens:    TokenizeSentences(kept),
	}
}

func parseGroup(rangeLine, textLine string) (TimedSentence, bool) {
	fields := strings.Split(strings.TrimSpace(rangeLine), rangeSeparator)
	if len(fields) != 2 {
		return TimedSentence{}, false
	}

	start, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return TimedSentence{}, false
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return TimedSentence{}, false
	}

	text := strings.TrimSpace(textLine)
	if text == "" {
		return TimedSentence{}, false
	}
	return TimedSentence{Text: text, Start: start, End: end}, true
}

// Parse reads a transcript from r. Only read errors are returned; malformed
// groups are skipped.
func Parse(r io.Reader) (*Transcript, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return ParseLines(lines), nil
}

// ParseString is Parse over an in-memory transcript.
func ParseString(s string) *Transcript {
	return ParseLines(splitLines(s))
}

// ParseFile opens and parses a transcript file.
func ParseFile(path string) (*Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// splitLines splits on newlines the way a line reader would: CRLF is folded
// and a final newline does not produce an extra empty line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
