package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/snarg/transcript-segmenter/internal/model"
	"github.com/snarg/transcript-segmenter/internal/transcript"
	"gonum.org/v1/gonum/mat"
)

// countFeatures returns an n x 1 matrix of token positions.
type countFeatures struct{}

func (countFeatures) Features(tokens []string) *mat.Dense {
	data := make([]float64, len(tokens))
	for i := range data {
		data[i] = float64(i)
	}
	return mat.NewDense(len(tokens), 1, data)
}

// passthrough returns its input and counts calls.
type passthrough struct{ calls int }

func (p *passthrough) Encode(x *mat.Dense) (*mat.Dense, error) {
	p.calls++
	return x, nil
}

// fixedScorer returns profile regardless of input.
func fixedScorer(profile []float64) ScorerFunc {
	return func(encoded *mat.Dense) ([]float64, error) {
		out := make([]float64, len(profile))
		copy(out, profile)
		return out, nil
	}
}

func flatScorer() ScorerFunc {
	return func(encoded *mat.Dense) ([]float64, error) {
		n, _ := encoded.Dims()
		out := make([]float64, n)
		for i := range out {
			out[i] = 1 / float64(n)
		}
		return out, nil
	}
}

func newTestSegmenter(t *testing.T, enc Encoder, sc Scorer) *Segmenter {
	t.Helper()
	s, err := New(Options{Features: countFeatures{}, Encoder: enc, Scorer: sc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// oneTokenSentences builds n single-token sentences "s0".."s{n-1}".
func oneTokenSentences(n int) *transcript.Transcript {
	return transcript.FromSentences(evenSentences(n))
}

// spike returns a profile of length n that is 0 everywhere except 1 at each
// given index.
func spike(n int, at ...int) []float64 {
	p := make([]float64, n)
	for _, i := range at {
		p[i] = 1
	}
	return p
}

func TestNew_RequiresStages(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for missing stages")
	}
}

func TestSegment_FlatProfileSingleSegment(t *testing.T) {
	s := newTestSegmenter(t, &passthrough{}, flatScorer())
	tr := oneTokenSentences(8)

	res, err := s.Segment(tr)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if res.Outcome != OutcomeSingle {
		t.Errorf("outcome = %v, want single", res.Outcome)
	}
	if len(res.Boundaries) != 0 {
		t.Errorf("boundaries = %v, want none", res.Boundaries)
	}
	want := []Segment{{Text: "s0 s1 s2 s3 s4 s5 s6 s7", StartTime: 0, EndTime: 16}}
	if !reflect.DeepEqual(res.Segments, want) {
		t.Errorf("segments = %+v, want %+v", res.Segments, want)
	}
}

func TestSegment_RoundTripSingleTriplet(t *testing.T) {
	tr := transcript.ParseLines([]string{"0.5 --> 3.25", "hello there world", ""})
	if len(tr.Sentences) != 1 {
		t.Fatalf("expected 1 sentence, got %d", len(tr.Sentences))
	}

	s := newTestSegmenter(t, &passthrough{}, flatScorer())
	res, err := s.Segment(tr)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(res.Segments))
	}
	seg := res.Segments[0]
	if seg.Text != "hello there world" || seg.StartTime != 0.5 || seg.EndTime != 3.25 {
		t.Errorf("segment = %+v", seg)
	}
}

func TestSegment_TooShortRejectedBeforeEncoder(t *testing.T) {
	tests := []struct {
		name string
		tr   *transcript.Transcript
	}{
		{"empty", transcript.ParseLines(nil)},
		{"single_token", transcript.ParseLines([]string{"0 --> 1", "hello", ""})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &passthrough{}
			s := newTestSegmenter(t, enc, flatScorer())
			_, err := s.Segment(tt.tr)
			if !errors.Is(err, ErrSequenceTooShort) {
				t.Errorf("expected ErrSequenceTooShort, got %v", err)
			}
			if !errors.Is(err, model.ErrSequenceTooShort) {
				t.Error("segment and model sentinels should match")
			}
			if enc.calls != 0 {
				t.Errorf("encoder called %d times", enc.calls)
			}
		})
	}
}

func TestSegment_CutsAtPeaks(t *testing.T) {
	tr := oneTokenSentences(12)
	s := newTestSegmenter(t, &passthrough{}, fixedScorer(spike(12, 6)))

	res, err := s.Segment(tr)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if res.Outcome != OutcomeSegmented {
		t.Fatalf("outcome = %v, want segmented", res.Outcome)
	}
	if !reflect.DeepEqual(res.Boundaries, []int{6}) {
		t.Errorf("boundaries = %v, want [6]", res.Boundaries)
	}
	want := []Segment{
		{Text: "s0 s1 s2 s3 s4 s5", StartTime: 0, EndTime: 12},
		{Text: "s6 s7 s8 s9 s10 s11", StartTime: 12, EndTime: 24},
	}
	if !reflect.DeepEqual(res.Segments, want) {
		t.Errorf("segments = %+v, want %+v", res.Segments, want)
	}
	if res.Sentences != 12 || res.Tokens != 12 {
		t.Errorf("counts = %d/%d, want 12/12", res.Sentences, res.Tokens)
	}
}

func TestSegment_PeakBelowFloorFlushesWhole(t *testing.T) {
	tr := oneTokenSentences(10)
	s := newTestSegmenter(t, &passthrough{}, fixedScorer(spike(10, 3)))

	res, err := s.Segment(tr)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if res.Outcome != OutcomeSegmented {
		t.Errorf("outcome = %v, want segmented", res.Outcome)
	}
	if len(res.Segments) != 1 || res.Segments[0].EndTime != 20 {
		t.Errorf("segments = %+v", res.Segments)
	}
}

func TestSegment_EmptyOutcome(t *testing.T) {
	// Blank sentence texts with externally supplied tokens: boundaries exist
	// but every span is empty.
	sentences := make([]transcript.TimedSentence, 8)
	for i := range sentences {
		sentences[i] = transcript.TimedSentence{Text: "", Start: float64(i), End: float64(i + 1)}
	}
	tokens := make([]string, 8)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}
	tr := &transcript.Transcript{Sentences: sentences, Tokens: tokens}

	s := newTestSegmenter(t, &passthrough{}, fixedScorer(spike(8, 5)))
	res, err := s.Segment(tr)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if res.Outcome != OutcomeEmpty {
		t.Errorf("outcome = %v, want empty", res.Outcome)
	}
	if len(res.Segments) != 0 {
		t.Errorf("segments = %+v, want none", res.Segments)
	}
}

func TestSegment_ScoreLengthMismatch(t *testing.T) {
	s := newTestSegmenter(t, &passthrough{}, fixedScorer([]float64{1, 2}))
	if _, err := s.Segment(oneTokenSentences(5)); err == nil {
		t.Error("expected error for short score profile")
	}
}

func TestSegment_ScorerErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	s := newTestSegmenter(t, &passthrough{}, ScorerFunc(func(*mat.Dense) ([]float64, error) {
		return nil, boom
	}))
	_, err := s.Segment(oneTokenSentences(4))
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped scorer error, got %v", err)
	}
}

func TestSegment_TokenIndicesUsedAsSentenceIndices(t *testing.T) {
	// Two tokens per sentence: peak at token 6 cuts at sentence 6, not 3.
	sentences := make([]transcript.TimedSentence, 10)
	for i := range sentences {
		sentences[i] = transcript.TimedSentence{Text: fmt.Sprintf("w%d x%d", i, i), Start: float64(i), End: float64(i + 1)}
	}
	tr := transcript.FromSentences(sentences)
	if len(tr.Tokens) != 20 {
		t.Fatalf("tokens = %d, want 20", len(tr.Tokens))
	}

	s := newTestSegmenter(t, &passthrough{}, fixedScorer(spike(20, 6)))
	res, err := s.Segment(tr)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Segments) != 2 || res.Segments[0].EndTime != 6 {
		t.Errorf("segments = %+v", res.Segments)
	}
}

func TestSegment_AlignToSentences(t *testing.T) {
	sentences := make([]transcript.TimedSentence, 10)
	for i := range sentences {
		sentences[i] = transcript.TimedSentence{Text: fmt.Sprintf("w%d x%d", i, i), Start: float64(i), End: float64(i + 1)}
	}
	tr := transcript.FromSentences(sentences)

	s, err := New(Options{
		Features:         countFeatures{},
		Encoder:          &passthrough{},
		Scorer:           fixedScorer(spike(20, 3, 13)),
		AlignToSentences: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Segment(tr)
	if err != nil {
		t.Fatal(err)
	}
	// token 3 -> sentence 1 (skipped, below floor), token 13 -> sentence 6.
	if !reflect.DeepEqual(res.Boundaries, []int{1, 6}) {
		t.Errorf("boundaries = %v, want [1 6]", res.Boundaries)
	}
	if len(res.Segments) != 2 || res.Segments[0].EndTime != 6 {
		t.Errorf("segments = %+v", res.Segments)
	}
}

func TestSegment_WithModel(t *testing.T) {
	m, err := model.New(model.Config{InputDim: 16, HiddenDim: 8}, model.DefaultSeed)
	if err != nil {
		t.Fatal(err)
	}

	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("%d --> %d", i*2, i*2+2), fmt.Sprintf("sentence number %d here.", i), "")
	}
	tr := transcript.ParseLines(lines)

	for _, heuristic := range []bool{false, true} {
		t.Run(fmt.Sprintf("heuristic_%v", heuristic), func(t *testing.T) {
			s, err := FromModel(m, model.HashedFeatures{Dim: 16, Seed: 1}, heuristic, Options{})
			if err != nil {
				t.Fatal(err)
			}
			a, err := s.Segment(tr)
			if err != nil {
				t.Fatalf("Segment: %v", err)
			}
			b, err := s.Segment(tr)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(a, b) {
				t.Error("segmentation is not deterministic")
			}
			if len(a.Segments) == 0 {
				t.Fatal("expected segments")
			}

			var texts []string
			for _, seg := range a.Segments {
				texts = append(texts, seg.Text)
			}
			if strings.Join(texts, " ") != strings.Join(tr.Texts(), " ") {
				t.Error("segments do not partition the transcript")
			}
		})
	}
}

func TestOutcome_JSON(t *testing.T) {
	b, err := json.Marshal(Result{Outcome: OutcomeSegmented})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"outcome":"segmented"`) {
		t.Errorf("json = %s", b)
	}
	if Outcome(9).String() != "outcome(9)" {
		t.Errorf("unknown outcome string = %q", Outcome(9).String())
	}
}

func TestOutcome_UnmarshalText(t *testing.T) {
	var res Result
	if err := json.Unmarshal([]byte(`{"outcome":"single"}`), &res); err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSingle {
		t.Errorf("outcome = %v, want single", res.Outcome)
	}
	if err := json.Unmarshal([]byte(`{"outcome":"partial"}`), &res); err == nil {
		t.Error("expected error for unknown outcome")
	}
}
