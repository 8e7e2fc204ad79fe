// Package segment turns a timed transcript into topical segments: it scores
// token positions, extracts boundary peaks from the score profile, and cuts
// the sentence sequence at those boundaries.
package segment

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/transcript-segmenter/internal/model"
	"github.com/snarg/transcript-segmenter/internal/transcript"
	"gonum.org/v1/gonum/mat"
)

// ErrSequenceTooShort is returned when a transcript has fewer than two
// tokens. It is the same value as model.ErrSequenceTooShort.
var ErrSequenceTooShort = model.ErrSequenceTooShort

// Featurizer maps tokens to an n x d feature matrix.
type Featurizer interface {
	Features(tokens []string) *mat.Dense
}

// Encoder maps a feature matrix to per-position hidden vectors.
type Encoder interface {
	Encode(x *mat.Dense) (*mat.Dense, error)
}

// Scorer produces one score per encoded position.
type Scorer interface {
	Score(encoded *mat.Dense) ([]float64, error)
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(encoded *mat.Dense) ([]float64, error)

// Score calls f.
func (f ScorerFunc) Score(encoded *mat.Dense) ([]float64, error) { return f(encoded) }

// Outcome distinguishes the three terminal results of a run.
type Outcome int

const (
	// OutcomeEmpty means boundaries were found but no segment had text.
	OutcomeEmpty Outcome = iota
	// OutcomeSingle means no boundary peak was found and the whole
	// transcript is one segment.
	OutcomeSingle
	// OutcomeSegmented means the transcript was cut at one or more peaks.
	OutcomeSegmented
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeSingle:
		return "single"
	case OutcomeSegmented:
		return "segmented"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "empty":
		*o = OutcomeEmpty
	case "single":
		*o = OutcomeSingle
	case "segmented":
		*o = OutcomeSegmented
	default:
		return fmt.Errorf("unknown outcome %q", b)
	}
	return nil
}

// Result is the output of one segmentation run.
type Result struct {
	Outcome    Outcome   `json:"outcome"`
	Segments   []Segment `json:"segments"`
	Boundaries []int     `json:"boundaries"`
	Sentences  int       `json:"sentence_count"`
	Tokens     int       `json:"token_count"`
}

// Options wires the stages of a Segmenter.
type Options struct {
	Features Featurizer
	Encoder  Encoder
	Scorer   Scorer

	// AlignToSentences maps token-position peaks to the index of the
	// sentence containing that token before assembly. When false, peak
	// positions are used as sentence indices unchanged.
	AlignToSentences bool

	Log *zerolog.Logger
}

// Segmenter runs the full pipeline. It holds no per-call state and is safe
// for concurrent use when its stages are.
type Segmenter struct {
	features Featurizer
	encoder  Encoder
	scorer   Scorer
	align    bool
	log      zerolog.Logger
}

// New builds a Segmenter from its stages.
func New(opts Options) (*Segmenter, error) {
	if opts.Features == nil || opts.Encoder == nil || opts.Scorer == nil {
		return nil, errors.New("segmenter requires features, encoder and scorer")
	}
	log := zerolog.Nop()
	if opts.Log != nil {
		log = *opts.Log
	}
	return &Segmenter{
		features: opts.Features,
		encoder:  opts.Encoder,
		scorer:   opts.Scorer,
		align:    opts.AlignToSentences,
		log:      log,
	}, nil
}

// FromModel builds a Segmenter that uses m's encoder and either its pointer
// scorer or, when heuristic is true, the cosine-distance scorer.
func FromModel(m *model.SegBot, features Featurizer, heuristic bool, opts Options) (*Segmenter, error) {
	opts.Features = features
	opts.Encoder = m.Encoder()
	opts.Scorer = m.Scorer()
	if heuristic {
		opts.Scorer = model.HeuristicScorer{}
	}
	return New(opts)
}

// Segment runs the pipeline over a parsed transcript.
func (s *Segmenter) Segment(t *transcript.Transcript) (Result, error) {
	start := time.Now()
	n := len(t.Tokens)
	if n <= 1 {
		return Result{}, fmt.Errorf("transcript has %d tokens: %w", n, ErrSequenceTooShort)
	}

	scores, err := s.Scores(t.Tokens)
	if err != nil {
		return Result{}, err
	}

	boundaries, varied := ExtractBoundaries(scores)
	if s.align {
		boundaries = alignToSentences(t, boundaries)
	}

	res := Result{
		Boundaries: boundaries,
		Sentences:  len(t.Sentences),
		Tokens:     n,
	}
	if len(boundaries) == 0 {
		res.Outcome = OutcomeSingle
		res.Segments = []Segment{Whole(t.Sentences)}
	} else if segs := Assemble(t.Sentences, boundaries); len(segs) > 0 {
		res.Outcome = OutcomeSegmented
		res.Segments = segs
	} else {
		res.Outcome = OutcomeEmpty
	}

	s.log.Debug().
		Int("tokens", n).
		Int("sentences", len(t.Sentences)).
		Bool("flat_profile", !varied).
		Ints("boundaries", boundaries).
		Str("outcome", res.Outcome.String()).
		Int("segments", len(res.Segments)).
		Dur("elapsed", time.Since(start)).
		Msg("segmentation complete")

	return res, nil
}

// SegmentSentences tokenizes already-parsed sentences and segments them.
func (s *Segmenter) SegmentSentences(sentences []transcript.TimedSentence) (Result, error) {
	return s.Segment(transcript.FromSentences(sentences))
}

// Scores returns the raw score profile for tokens, one value per token.
func (s *Segmenter) Scores(tokens []string) ([]float64, error) {
	if len(tokens) <= 1 {
		return nil, fmt.Errorf("%d tokens: %w", len(tokens), ErrSequenceTooShort)
	}
	x := s.features.Features(tokens)
	encoded, err := s.encoder.Encode(x)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	scores, err := s.scorer.Score(encoded)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	if len(scores) != len(tokens) {
		return nil, fmt.Errorf("scorer returned %d scores for %d tokens", len(scores), len(tokens))
	}
	return scores, nil
}

// alignToSentences converts token positions to the index of the sentence
// containing each token, dropping duplicates.
func alignToSentences(t *transcript.Transcript, peaks []int) []int {
	if len(peaks) == 0 {
		return peaks
	}
	// offsets[k] is the index of sentence k's first token.
	offsets := make([]int, len(t.Sentences))
	total := 0
	for k, sent := range t.Sentences {
		offsets[k] = total
		total += len(transcript.Tokenize(sent.Text))
	}

	var out []int
	for _, p := range peaks {
		k := sort.Search(len(offsets), func(i int) bool { return offsets[i] > p }) - 1
		if k < 0 {
			k = 0
		}
		if len(out) == 0 || out[len(out)-1] != k {
			out = append(out, k)
		}
	}
	return out
}
